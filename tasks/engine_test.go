package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragit/core"
	"github.com/poiesic/ragit/storage"
	"github.com/poiesic/ragit/storage/badger"
)

func setupTestEngine(t *testing.T, opts ...Option) (*Engine, *badger.Store) {
	t.Helper()

	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	defaults := []Option{
		WithConcurrency(2),
		WithRetryPolicy(core.JobTypeIngest, RetryPolicy{MaxAttempts: 3, Delay: 10 * time.Millisecond}),
		WithRetryPolicy(core.JobTypeIndex, RetryPolicy{MaxAttempts: 3, Delay: 10 * time.Millisecond}),
	}
	engine, err := NewEngine(store.Jobs, append(defaults, opts...)...)
	require.NoError(t, err)
	t.Cleanup(engine.Release)

	return engine, store
}

func TestEngine_SubmitIngest_Success(t *testing.T) {
	engine, store := setupTestEngine(t)
	ctx := context.Background()

	engine.RegisterHandler(core.JobTypeIngest, func(ctx context.Context, job *core.Job) error {
		job.InsertedChunks = 9
		job.ProcessedFiles = 2
		return nil
	})

	id, err := engine.SubmitIngest(ctx, core.ID(1), "", 500, 50, false)
	require.NoError(t, err)
	require.NotZero(t, id)
	engine.Wait()

	state, signal, err := engine.JobStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStateSuccess, state)
	assert.Equal(t, core.SignalProcessingSuccess, signal)

	// Result counts are persisted on the job record
	job, err := store.Jobs.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 9, job.InsertedChunks)
	assert.Equal(t, 2, job.ProcessedFiles)
	assert.Equal(t, 1, job.Attempts)
}

func TestEngine_RetryThenSuccess(t *testing.T) {
	engine, store := setupTestEngine(t)
	ctx := context.Background()

	var calls atomic.Int32
	engine.RegisterHandler(core.JobTypeIndex, func(ctx context.Context, job *core.Job) error {
		if calls.Add(1) == 1 {
			return errors.New("embedding service unavailable")
		}
		job.IndexedCount = 4
		return nil
	})

	id, err := engine.SubmitIndex(ctx, core.ID(1), false)
	require.NoError(t, err)
	engine.Wait()

	job, err := store.Jobs.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStateSuccess, job.State)
	assert.Equal(t, core.SignalIndexingSuccess, job.Signal)
	assert.Equal(t, 2, job.Attempts)
	assert.Equal(t, 4, job.IndexedCount)
}

func TestEngine_FailureAfterMaxAttempts(t *testing.T) {
	engine, store := setupTestEngine(t,
		WithRetryPolicy(core.JobTypeIngest, RetryPolicy{MaxAttempts: 2, Delay: 10 * time.Millisecond}))
	ctx := context.Background()

	var calls atomic.Int32
	engine.RegisterHandler(core.JobTypeIngest, func(ctx context.Context, job *core.Job) error {
		calls.Add(1)
		return errors.New("disk on fire")
	})

	id, err := engine.SubmitIngest(ctx, core.ID(1), "", 500, 50, false)
	require.NoError(t, err)
	engine.Wait()

	job, err := store.Jobs.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStateFailure, job.State)
	assert.Equal(t, core.SignalProcessingFailed, job.Signal)
	assert.Equal(t, 2, job.Attempts)
	assert.Contains(t, job.LastError, "disk on fire")
	assert.EqualValues(t, 2, calls.Load())
}

func TestEngine_InputErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantSignal string
	}{
		{"no files", core.ErrNoFiles, core.SignalNoFilesError},
		{"asset not found", core.ErrAssetNotFound, core.SignalFileIDError},
		{"bad chunk params", core.ErrInvalidChunkParams, core.SignalProcessingFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, store := setupTestEngine(t)
			ctx := context.Background()

			var calls atomic.Int32
			engine.RegisterHandler(core.JobTypeIngest, func(ctx context.Context, job *core.Job) error {
				calls.Add(1)
				return tt.err
			})

			id, err := engine.SubmitIngest(ctx, core.ID(1), "", 500, 50, false)
			require.NoError(t, err)
			engine.Wait()

			job, err := store.Jobs.GetJob(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, core.JobStateFailure, job.State)
			assert.Equal(t, tt.wantSignal, job.Signal)
			assert.EqualValues(t, 1, calls.Load(), "input errors must fail on the first attempt")
		})
	}
}

func TestEngine_WorkflowChainsIndexJob(t *testing.T) {
	engine, store := setupTestEngine(t)
	ctx := context.Background()

	engine.RegisterHandler(core.JobTypeIngest, func(ctx context.Context, job *core.Job) error {
		job.InsertedChunks = 3
		return nil
	})

	var indexJob atomic.Pointer[core.Job]
	engine.RegisterHandler(core.JobTypeIndex, func(ctx context.Context, job *core.Job) error {
		snapshot := *job
		indexJob.Store(&snapshot)
		job.IndexedCount = 3
		return nil
	})

	ingestID, err := engine.SubmitWorkflow(ctx, core.ID(1), "notes.txt", 500, 50, true)
	require.NoError(t, err)
	engine.Wait()

	state, _, err := engine.JobStatus(ctx, ingestID)
	require.NoError(t, err)
	assert.Equal(t, core.JobStateSuccess, state)

	chained := indexJob.Load()
	require.NotNil(t, chained, "index job should run after ingest succeeds")
	assert.Equal(t, core.ID(1), chained.ProjectId)
	assert.True(t, chained.DoReset)
	assert.Equal(t, ingestID, chained.WorkflowId)

	// The handoff carries only the project ID and reset flag
	assert.Empty(t, chained.FileName)
	assert.Zero(t, chained.ChunkSize)
	assert.Zero(t, chained.OverlapSize)

	succeeded, err := store.Jobs.GetJobsByState(ctx, core.JobStateSuccess)
	require.NoError(t, err)
	assert.Len(t, succeeded, 2)
}

func TestEngine_WorkflowDoesNotChainOnFailure(t *testing.T) {
	engine, store := setupTestEngine(t)
	ctx := context.Background()

	engine.RegisterHandler(core.JobTypeIngest, func(ctx context.Context, job *core.Job) error {
		return core.ErrNoFiles
	})
	engine.RegisterHandler(core.JobTypeIndex, func(ctx context.Context, job *core.Job) error {
		t.Error("index job must not run when the ingest stage fails")
		return nil
	})

	id, err := engine.SubmitWorkflow(ctx, core.ID(1), "", 500, 50, false)
	require.NoError(t, err)
	engine.Wait()

	job, err := store.Jobs.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStateFailure, job.State)

	failed, err := store.Jobs.GetJobsByState(ctx, core.JobStateFailure)
	require.NoError(t, err)
	assert.Len(t, failed, 1, "only the ingest job should exist")
}

func TestEngine_Recover(t *testing.T) {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	// Jobs left behind by a previous process: one abandoned mid-run, one
	// never started
	abandoned, err := store.Jobs.AddJob(ctx, &core.Job{
		Type: core.JobTypeIndex, State: core.JobStateRunning,
		ProjectId: core.ID(1), MaxAttempts: 3, Attempts: 1,
	})
	require.NoError(t, err)
	queued, err := store.Jobs.AddJob(ctx, &core.Job{
		Type: core.JobTypeIngest, State: core.JobStatePending,
		ProjectId: core.ID(2), ChunkSize: 500, OverlapSize: 50, MaxAttempts: 3,
	})
	require.NoError(t, err)

	engine, err := NewEngine(store.Jobs, WithConcurrency(2))
	require.NoError(t, err)
	defer engine.Release()

	engine.RegisterHandler(core.JobTypeIngest, func(ctx context.Context, job *core.Job) error { return nil })
	engine.RegisterHandler(core.JobTypeIndex, func(ctx context.Context, job *core.Job) error { return nil })

	require.NoError(t, engine.Recover(ctx))
	engine.Wait()

	for _, id := range []core.ID{abandoned.Id, queued.Id} {
		job, err := store.Jobs.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, core.JobStateSuccess, job.State, "job %d should complete after recovery", id)
	}
}

func TestEngine_JobStatus_NotFound(t *testing.T) {
	engine, _ := setupTestEngine(t)

	_, _, err := engine.JobStatus(context.Background(), core.ID(12345))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEngine_HandlerNotRegistered(t *testing.T) {
	engine, store := setupTestEngine(t,
		WithRetryPolicy(core.JobTypeIndex, RetryPolicy{MaxAttempts: 1, Delay: time.Millisecond}))
	ctx := context.Background()

	id, err := engine.SubmitIndex(ctx, core.ID(1), false)
	require.NoError(t, err)
	engine.Wait()

	job, err := store.Jobs.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStateFailure, job.State)
	assert.Contains(t, job.LastError, ErrHandlerNotRegistered.Error())
}

func TestEngine_SubmitAfterRelease(t *testing.T) {
	engine, _ := setupTestEngine(t)
	engine.Release()

	_, err := engine.SubmitIndex(context.Background(), core.ID(1), false)
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestEngine_InvalidJobRejected(t *testing.T) {
	engine, _ := setupTestEngine(t)

	// A zero project ID never reaches the queue
	_, err := engine.SubmitIngest(context.Background(), core.ID(0), "", 500, 50, false)
	assert.ErrorIs(t, err, core.ErrInvalidJob)
}
