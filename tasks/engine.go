// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package tasks

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/ragit/core"
	"github.com/poiesic/ragit/storage"
)

// Handler executes one attempt of a job. Handlers write their results into
// the job's result fields; the engine persists the job around the call.
// Handlers must be idempotent: the engine provides at-least-once execution.
type Handler func(ctx context.Context, job *core.Job) error

// RetryPolicy controls how often a failing job is retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int

	// Delay is the fixed wait between attempts
	Delay time.Duration
}

// DefaultRetryPolicy returns the retry policy used unless overridden per
// job type.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       60 * time.Second,
	}
}

// Engine runs jobs on a bounded worker pool, persisting every state
// transition through the job repository.
type Engine struct {
	jobs     storage.JobRepository
	pool     *ants.Pool
	handlers map[core.JobType]Handler
	policies map[core.JobType]RetryPolicy
	logger   *slog.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	locks  map[core.ID]*sync.Mutex
	closed bool
}

// Option configures an Engine.
type Option func(*Engine) error

// WithConcurrency sets the number of worker slots.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithConcurrency(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			n = 1
		}
		if e.pool != nil {
			e.pool.Release()
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		e.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithRetryPolicy overrides the retry policy for one job type.
func WithRetryPolicy(jobType core.JobType, policy RetryPolicy) Option {
	return func(e *Engine) error {
		if err := core.ValidateJobType(jobType); err != nil {
			return err
		}
		e.policies[jobType] = policy
		return nil
	}
}

// NewEngine creates a job engine. Handlers must be registered before jobs
// are submitted or recovered.
func NewEngine(jobs storage.JobRepository, opts ...Option) (*Engine, error) {
	if jobs == nil {
		return nil, ErrJobRepositoryRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		jobs:     jobs,
		pool:     pool,
		handlers: make(map[core.JobType]Handler),
		policies: make(map[core.JobType]RetryPolicy),
		logger:   slog.Default(),
		locks:    make(map[core.ID]*sync.Mutex),
	}

	for _, opt := range opts {
		if optErr := opt(e); optErr != nil {
			e.Release()
			return nil, optErr
		}
	}

	return e, nil
}

// RegisterHandler installs the handler for a job type, replacing any
// previous one.
func (e *Engine) RegisterHandler(jobType core.JobType, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[jobType] = handler
}

// SubmitIngest persists and queues an ingest job for the project.
// An empty fileName means every registered file is processed.
func (e *Engine) SubmitIngest(ctx context.Context, projectID core.ID, fileName string, chunkSize, overlap int, doReset bool) (core.ID, error) {
	job := &core.Job{
		Type:        core.JobTypeIngest,
		State:       core.JobStatePending,
		ProjectId:   projectID,
		FileName:    fileName,
		ChunkSize:   chunkSize,
		OverlapSize: overlap,
		DoReset:     doReset,
		MaxAttempts: e.policy(core.JobTypeIngest).MaxAttempts,
	}
	return e.submit(ctx, job)
}

// SubmitIndex persists and queues an index job for the project.
func (e *Engine) SubmitIndex(ctx context.Context, projectID core.ID, doReset bool) (core.ID, error) {
	job := &core.Job{
		Type:        core.JobTypeIndex,
		State:       core.JobStatePending,
		ProjectId:   projectID,
		DoReset:     doReset,
		MaxAttempts: e.policy(core.JobTypeIndex).MaxAttempts,
	}
	return e.submit(ctx, job)
}

// SubmitWorkflow queues an ingest job that, on success, submits the index
// job for the same project. The handoff carries only the project ID and the
// reset flag; the index job re-derives everything else from storage.
func (e *Engine) SubmitWorkflow(ctx context.Context, projectID core.ID, fileName string, chunkSize, overlap int, doReset bool) (core.ID, error) {
	job := &core.Job{
		Type:        core.JobTypeIngest,
		State:       core.JobStatePending,
		ProjectId:   projectID,
		FileName:    fileName,
		ChunkSize:   chunkSize,
		OverlapSize: overlap,
		DoReset:     doReset,
		Chained:     true,
		MaxAttempts: e.policy(core.JobTypeIngest).MaxAttempts,
	}

	id, err := e.submit(ctx, job)
	if err != nil {
		return 0, err
	}

	// The first job of a workflow names the workflow after itself
	job.WorkflowId = id
	if _, err := e.jobs.UpdateJob(ctx, job); err != nil {
		return 0, err
	}
	return id, nil
}

// JobStatus reports a job's state and its machine-readable outcome signal.
func (e *Engine) JobStatus(ctx context.Context, id core.ID) (core.JobState, string, error) {
	job, err := e.jobs.GetJob(ctx, id)
	if err != nil {
		return 0, "", err
	}
	return job.State, job.Signal, nil
}

// Recover requeues jobs left PENDING or RUNNING by a previous process.
// RUNNING jobs were abandoned mid-run; handlers are idempotent, so running
// them again is safe.
func (e *Engine) Recover(ctx context.Context) error {
	pending, err := e.jobs.GetJobsByState(ctx, core.JobStatePending)
	if err != nil {
		return err
	}

	running, err := e.jobs.GetJobsByState(ctx, core.JobStateRunning)
	if err != nil {
		return err
	}
	for _, job := range running {
		job.State = core.JobStatePending
		if _, err := e.jobs.UpdateJob(ctx, job); err != nil {
			return err
		}
		e.logger.Info("requeued abandoned job", "job", job.Id, "type", job.Type)
	}

	for _, job := range append(pending, running...) {
		e.dispatch(job)
	}
	return nil
}

// Wait blocks until every queued job has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Release stops the worker pool. Queued jobs stay PENDING in storage and
// can be picked up again by Recover.
func (e *Engine) Release() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	if e.pool != nil {
		e.pool.Release()
	}
}

func (e *Engine) policy(jobType core.JobType) RetryPolicy {
	if p, ok := e.policies[jobType]; ok {
		return p
	}
	return DefaultRetryPolicy()
}

func (e *Engine) handler(jobType core.JobType) (Handler, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.handlers[jobType]
	return h, ok
}

// projectLock returns the mutex serializing job execution for one project,
// so a reset cannot interleave with another job's inserts.
func (e *Engine) projectLock(projectID core.ID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[projectID] = lock
	}
	return lock
}

func (e *Engine) submit(ctx context.Context, job *core.Job) (core.ID, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0, ErrEngineClosed
	}
	e.mu.Unlock()

	if err := core.ValidateJob(job); err != nil {
		return 0, err
	}

	added, err := e.jobs.AddJob(ctx, job)
	if err != nil {
		return 0, err
	}
	*job = *added

	e.dispatch(job)
	return job.Id, nil
}

// dispatch queues a job for execution. The pool submit happens on its own
// goroutine: a worker submitting a chained job must not block on the very
// slot it occupies.
func (e *Engine) dispatch(job *core.Job) {
	e.wg.Add(1)
	go func() {
		err := e.pool.Submit(func() {
			defer e.wg.Done()
			e.execute(context.Background(), job)
		})
		if err != nil {
			e.wg.Done()
			e.logger.Error("failed to queue job", "job", job.Id, "err", err)
		}
	}()
}

// execute runs a job to a terminal state, retrying transient failures per
// the job type's policy.
func (e *Engine) execute(ctx context.Context, job *core.Job) {
	for {
		err := e.runAttempt(ctx, job)
		if err == nil {
			e.succeed(ctx, job)
			return
		}

		job.LastError = err.Error()

		// Input errors are terminal no matter how many attempts remain
		if errors.Is(err, core.ErrInput) || job.Attempts >= job.MaxAttempts {
			e.fail(ctx, job, err)
			return
		}

		// Back to PENDING while attempts remain
		job.State = core.JobStatePending
		if _, uerr := e.jobs.UpdateJob(ctx, job); uerr != nil {
			e.logger.Error("failed to persist job state", "job", job.Id, "err", uerr)
			return
		}
		e.logger.Warn("job attempt failed, will retry",
			"job", job.Id, "attempt", job.Attempts, "maxAttempts", job.MaxAttempts, "err", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(e.policy(job.Type).Delay):
		}
	}
}

// runAttempt performs one handler invocation under the project lock.
func (e *Engine) runAttempt(ctx context.Context, job *core.Job) error {
	handler, ok := e.handler(job.Type)
	if !ok {
		return ErrHandlerNotRegistered
	}

	lock := e.projectLock(job.ProjectId)
	lock.Lock()
	defer lock.Unlock()

	job.State = core.JobStateRunning
	job.Attempts++
	if _, err := e.jobs.UpdateJob(ctx, job); err != nil {
		return err
	}

	return handler(ctx, job)
}

func (e *Engine) succeed(ctx context.Context, job *core.Job) {
	job.State = core.JobStateSuccess
	switch job.Type {
	case core.JobTypeIngest:
		job.Signal = core.SignalProcessingSuccess
	case core.JobTypeIndex:
		job.Signal = core.SignalIndexingSuccess
	}

	if _, err := e.jobs.UpdateJob(ctx, job); err != nil {
		e.logger.Error("failed to persist job state", "job", job.Id, "err", err)
		return
	}
	e.logger.Info("job succeeded", "job", job.Id, "type", job.Type, "attempts", job.Attempts)

	if job.Type == core.JobTypeIngest && job.Chained {
		e.submitChained(ctx, job)
	}
}

func (e *Engine) fail(ctx context.Context, job *core.Job, err error) {
	job.State = core.JobStateFailure
	job.Signal = failureSignal(job, err)

	if _, uerr := e.jobs.UpdateJob(ctx, job); uerr != nil {
		e.logger.Error("failed to persist job state", "job", job.Id, "err", uerr)
		return
	}
	e.logger.Error("job failed", "job", job.Id, "type", job.Type, "attempts", job.Attempts, "err", err)
}

// submitChained queues the index stage of a workflow after its ingest stage
// succeeded.
func (e *Engine) submitChained(ctx context.Context, ingest *core.Job) {
	index := &core.Job{
		WorkflowId:  ingest.WorkflowId,
		Type:        core.JobTypeIndex,
		State:       core.JobStatePending,
		ProjectId:   ingest.ProjectId,
		DoReset:     ingest.DoReset,
		MaxAttempts: e.policy(core.JobTypeIndex).MaxAttempts,
	}

	if _, err := e.submit(ctx, index); err != nil {
		e.logger.Error("failed to submit chained index job",
			"workflow", ingest.WorkflowId, "project", ingest.ProjectId, "err", err)
	}
}

func failureSignal(job *core.Job, err error) string {
	if job.Type == core.JobTypeIndex {
		return core.SignalIndexingFailed
	}
	switch {
	case errors.Is(err, core.ErrNoFiles):
		return core.SignalNoFilesError
	case errors.Is(err, core.ErrAssetNotFound):
		return core.SignalFileIDError
	default:
		return core.SignalProcessingFailed
	}
}
