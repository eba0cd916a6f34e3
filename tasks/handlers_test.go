package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragit/ai/mock"
	"github.com/poiesic/ragit/core"
	"github.com/poiesic/ragit/indexing"
	"github.com/poiesic/ragit/ingestion"
	"github.com/poiesic/ragit/search"
	"github.com/poiesic/ragit/storage/badger"
	"github.com/poiesic/ragit/vectordb"
	"github.com/poiesic/ragit/vectordb/embedded"
)

// TestWorkflow_EndToEnd drives a complete register -> ingest -> index ->
// search cycle through the job engine with real handlers.
func TestWorkflow_EndToEnd(t *testing.T) {
	ctx := context.Background()
	projectID := core.ID(1)

	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	vectors := embedded.NewProvider()
	require.NoError(t, vectors.Connect(ctx))
	defer vectors.Disconnect()

	embedder := mock.NewMockEmbedder()
	embedder.Dim = 8

	dataDir := t.TempDir()
	pipeline, err := ingestion.NewPipeline(store.Projects, store.Assets, store.Chunks, vectors, dataDir)
	require.NoError(t, err)

	indexerConfig := indexing.DefaultConfig()
	indexerConfig.EmbeddingSize = 8
	indexerConfig.RetryDelay = 10 * time.Millisecond
	indexer := indexing.NewIndexer(store.Chunks, embedder, vectors, indexerConfig, io.Discard)

	engine, err := NewEngine(store.Jobs,
		WithConcurrency(2),
		WithRetryPolicy(core.JobTypeIngest, RetryPolicy{MaxAttempts: 3, Delay: 10 * time.Millisecond}),
		WithRetryPolicy(core.JobTypeIndex, RetryPolicy{MaxAttempts: 3, Delay: 10 * time.Millisecond}),
	)
	require.NoError(t, err)
	defer engine.Release()
	engine.RegisterHandler(core.JobTypeIngest, NewIngestHandler(pipeline))
	engine.RegisterHandler(core.JobTypeIndex, NewIndexHandler(indexer))

	// Register a project file
	dir := filepath.Join(dataDir, "projects", fmt.Sprintf("%d", projectID))
	require.NoError(t, os.MkdirAll(dir, 0700))
	content := strings.Repeat("Gophers build concurrent pipelines with channels. ", 20)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gophers.txt"), []byte(content), 0600))
	_, err = pipeline.RegisterFile(ctx, projectID, "gophers.txt")
	require.NoError(t, err)

	// Run the two-stage workflow
	ingestID, err := engine.SubmitWorkflow(ctx, projectID, "", 200, 20, true)
	require.NoError(t, err)
	engine.Wait()

	state, signal, err := engine.JobStatus(ctx, ingestID)
	require.NoError(t, err)
	require.Equal(t, core.JobStateSuccess, state)
	assert.Equal(t, core.SignalProcessingSuccess, signal)

	ingestJob, err := store.Jobs.GetJob(ctx, ingestID)
	require.NoError(t, err)
	assert.Equal(t, 1, ingestJob.ProcessedFiles)
	assert.Greater(t, ingestJob.InsertedChunks, 1)

	// The chained index job put every chunk into the collection
	count, err := vectors.CountRecords(ctx, vectordb.CollectionName(projectID))
	require.NoError(t, err)
	assert.Equal(t, ingestJob.InsertedChunks, count)

	succeeded, err := store.Jobs.GetJobsByState(ctx, core.JobStateSuccess)
	require.NoError(t, err)
	require.Len(t, succeeded, 2)
	for _, job := range succeeded {
		if job.Type == core.JobTypeIndex {
			assert.Equal(t, ingestJob.InsertedChunks, job.IndexedCount)
			assert.Equal(t, ingestID, job.WorkflowId)
		}
	}

	// And the indexed content is searchable, ordered by score
	searcher := search.NewSearcher(embedder, vectors)
	results, err := searcher.Search(ctx, projectID, "concurrent pipelines", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

// TestWorkflow_MissingFile checks that a workflow against an unregistered
// file fails terminally with the file-not-found signal and never reaches
// the index stage.
func TestWorkflow_MissingFile(t *testing.T) {
	ctx := context.Background()

	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	vectors := embedded.NewProvider()
	require.NoError(t, vectors.Connect(ctx))
	defer vectors.Disconnect()

	pipeline, err := ingestion.NewPipeline(store.Projects, store.Assets, store.Chunks, vectors, t.TempDir())
	require.NoError(t, err)

	engine, err := NewEngine(store.Jobs, WithConcurrency(1))
	require.NoError(t, err)
	defer engine.Release()
	engine.RegisterHandler(core.JobTypeIngest, NewIngestHandler(pipeline))
	engine.RegisterHandler(core.JobTypeIndex, func(ctx context.Context, job *core.Job) error {
		t.Error("index stage must not run")
		return nil
	})

	id, err := engine.SubmitWorkflow(ctx, core.ID(1), "ghost.txt", 500, 50, false)
	require.NoError(t, err)
	engine.Wait()

	job, err := store.Jobs.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStateFailure, job.State)
	assert.Equal(t, core.SignalFileIDError, job.Signal)
	assert.Equal(t, 1, job.Attempts, "input errors are not retried")
}
