package indexing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragit/ai/mock"
	"github.com/poiesic/ragit/core"
	"github.com/poiesic/ragit/storage"
	"github.com/poiesic/ragit/storage/badger"
	"github.com/poiesic/ragit/vectordb"
	"github.com/poiesic/ragit/vectordb/embedded"
)

func setupTestStore(t *testing.T) *badger.Store {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func setupTestVectors(t *testing.T) *embedded.Provider {
	t.Helper()
	provider := embedded.NewProvider()
	require.NoError(t, provider.Connect(context.Background()))
	t.Cleanup(func() { provider.Disconnect() })
	return provider
}

func addTestChunks(t *testing.T, chunks storage.ChunkRepository, projectID core.ID, n int) {
	t.Helper()
	records := make([]*core.Chunk, n)
	for i := 0; i < n; i++ {
		records[i] = &core.Chunk{
			ProjectId: projectID,
			AssetId:   core.ID(1),
			Order:     i + 1,
			Text:      fmt.Sprintf("chunk text %d", i),
		}
	}
	added, err := chunks.AddChunks(context.Background(), records...)
	require.NoError(t, err)
	require.Len(t, added, n)
}

func testConfig() *Config {
	return &Config{
		EmbeddingSize:  4,
		PageSize:       5,
		BatchSize:      5,
		ReportInterval: 5,
		MaxRetries:     3,
		RetryDelay:     10 * time.Millisecond,
	}
}

func TestIndexer_Run(t *testing.T) {
	store := setupTestStore(t)
	vectors := setupTestVectors(t)
	ctx := context.Background()
	projectID := core.ID(1)

	addTestChunks(t, store.Chunks, projectID, 12)

	var buf bytes.Buffer
	embedder := mock.NewMockEmbedder()
	embedder.Dim = 4

	indexer := NewIndexer(store.Chunks, embedder, vectors, testConfig(), &buf)
	indexed, err := indexer.Run(ctx, projectID, false)
	require.NoError(t, err)
	assert.Equal(t, 12, indexed)

	// Every chunk landed in the project collection
	count, err := vectors.CountRecords(ctx, vectordb.CollectionName(projectID))
	require.NoError(t, err)
	assert.Equal(t, 12, count)

	// Check progress output
	output := buf.String()
	assert.Contains(t, output, "12/12", "should show completion")
}

func TestIndexer_EmptyProject(t *testing.T) {
	store := setupTestStore(t)
	vectors := setupTestVectors(t)
	ctx := context.Background()
	projectID := core.ID(2)

	var buf bytes.Buffer
	embedder := mock.NewMockEmbedder()
	embedder.Dim = 4

	indexer := NewIndexer(store.Chunks, embedder, vectors, testConfig(), &buf)
	indexed, err := indexer.Run(ctx, projectID, false)
	require.NoError(t, err)
	assert.Equal(t, 0, indexed)

	// The collection is still created even with nothing to index
	exists, err := vectors.CollectionExists(ctx, vectordb.CollectionName(projectID))
	require.NoError(t, err)
	assert.True(t, exists)

	output := buf.String()
	assert.Contains(t, output, "0 chunks", "should report zero chunks")
}

func TestIndexer_RerunWithReset(t *testing.T) {
	store := setupTestStore(t)
	vectors := setupTestVectors(t)
	ctx := context.Background()
	projectID := core.ID(3)

	addTestChunks(t, store.Chunks, projectID, 7)

	var buf bytes.Buffer
	embedder := mock.NewMockEmbedder()
	embedder.Dim = 4

	indexer := NewIndexer(store.Chunks, embedder, vectors, testConfig(), &buf)

	indexed, err := indexer.Run(ctx, projectID, true)
	require.NoError(t, err)
	assert.Equal(t, 7, indexed)

	// Rerunning with reset rebuilds to the same state
	indexed, err = indexer.Run(ctx, projectID, true)
	require.NoError(t, err)
	assert.Equal(t, 7, indexed)

	count, err := vectors.CountRecords(ctx, vectordb.CollectionName(projectID))
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestIndexer_RerunWithoutReset(t *testing.T) {
	store := setupTestStore(t)
	vectors := setupTestVectors(t)
	ctx := context.Background()
	projectID := core.ID(4)

	addTestChunks(t, store.Chunks, projectID, 6)

	var buf bytes.Buffer
	embedder := mock.NewMockEmbedder()
	embedder.Dim = 4

	indexer := NewIndexer(store.Chunks, embedder, vectors, testConfig(), &buf)

	_, err := indexer.Run(ctx, projectID, false)
	require.NoError(t, err)
	_, err = indexer.Run(ctx, projectID, false)
	require.NoError(t, err)

	// Records are keyed by chunk ID, so a rerun overwrites instead of duplicating
	count, err := vectors.CountRecords(ctx, vectordb.CollectionName(projectID))
	require.NoError(t, err)
	assert.Equal(t, 6, count)
}

func TestIndexer_EmbeddingRetry(t *testing.T) {
	store := setupTestStore(t)
	vectors := setupTestVectors(t)
	ctx := context.Background()
	projectID := core.ID(5)

	addTestChunks(t, store.Chunks, projectID, 3)

	calls := 0
	embedder := mock.NewMockEmbedder()
	embedder.Dim = 4
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("embedding service unavailable")
		}
		result := make([][]float32, len(texts))
		for i := range result {
			result[i] = []float32{1, 0, 0, 0}
		}
		return result, nil
	}

	var buf bytes.Buffer
	indexer := NewIndexer(store.Chunks, embedder, vectors, testConfig(), &buf)
	indexed, err := indexer.Run(ctx, projectID, false)
	require.NoError(t, err)
	assert.Equal(t, 3, indexed)
	assert.Equal(t, 3, calls, "should succeed on third attempt")
}

func TestIndexer_EmbeddingFailureAborts(t *testing.T) {
	store := setupTestStore(t)
	vectors := setupTestVectors(t)
	ctx := context.Background()
	projectID := core.ID(6)

	addTestChunks(t, store.Chunks, projectID, 3)

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("embedding service down")
	}

	var buf bytes.Buffer
	indexer := NewIndexer(store.Chunks, embedder, vectors, testConfig(), &buf)
	_, err := indexer.Run(ctx, projectID, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to generate embeddings")
}

func TestIndexer_InsertFailureAborts(t *testing.T) {
	store := setupTestStore(t)
	vectors := setupTestVectors(t)
	ctx := context.Background()
	projectID := core.ID(7)

	addTestChunks(t, store.Chunks, projectID, 3)

	// Vectors of the wrong dimension make the insert fail
	embedder := mock.NewMockEmbedder()
	embedder.Dim = 3

	var buf bytes.Buffer
	indexer := NewIndexer(store.Chunks, embedder, vectors, testConfig(), &buf)
	_, err := indexer.Run(ctx, projectID, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, vectordb.ErrDimensionMismatch)
}

func TestIndexer_ContextCancellation(t *testing.T) {
	store := setupTestStore(t)
	vectors := setupTestVectors(t)
	projectID := core.ID(8)

	addTestChunks(t, store.Chunks, projectID, 20)

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	embedder := mock.NewMockEmbedder()
	embedder.Dim = 4
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		result := make([][]float32, len(texts))
		for i := range result {
			result[i] = []float32{1, 0, 0, 0}
		}
		return result, nil
	}

	var buf bytes.Buffer
	indexer := NewIndexer(store.Chunks, embedder, vectors, testConfig(), &buf)
	_, err := indexer.Run(ctx, projectID, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, calls, 2, "should stop paging once canceled")
}
