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


package indexing

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/ragit/ai"
	"github.com/poiesic/ragit/core"
	"github.com/poiesic/ragit/storage"
	"github.com/poiesic/ragit/vectordb"
)

// Config holds configuration for the indexing operation.
type Config struct {
	// EmbeddingSize is the dimension vector collections are created with
	EmbeddingSize int

	// PageSize is the number of chunks fetched from storage per page
	PageSize int

	// BatchSize is the number of records per vector store insert batch
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for embedding calls
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		EmbeddingSize:  ai.DefaultConfig().EmbeddingSize,
		PageSize:       vectordb.DefaultBatchSize,
		BatchSize:      vectordb.DefaultBatchSize,
		ReportInterval: vectordb.DefaultBatchSize,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Indexer rebuilds a project's vector collection from its stored chunks.
//
// Work is re-derived entirely from chunk storage, so a rerun after a crash
// or partial failure produces the same collection as a clean run.
type Indexer struct {
	chunks   storage.ChunkRepository
	embedder ai.Embedder
	vectors  vectordb.Provider
	config   *Config
	progress io.Writer
}

// NewIndexer creates a new indexer.
// progress: where to write progress output (typically os.Stderr)
func NewIndexer(chunks storage.ChunkRepository, embedder ai.Embedder, vectors vectordb.Provider, config *Config, progress io.Writer) *Indexer {
	if config == nil {
		config = DefaultConfig()
	}

	return &Indexer{
		chunks:   chunks,
		embedder: embedder,
		vectors:  vectors,
		config:   config,
		progress: progress,
	}
}

// Run indexes all of a project's chunks into its vector collection and
// returns the number of chunks indexed.
//
// When doReset is set the collection is deleted and recreated first, so the
// rebuilt collection holds exactly the chunks currently in storage. Without
// it existing records are overwritten in place, keyed by chunk ID. A project
// with zero chunks is a valid terminal state and indexes to count 0.
func (idx *Indexer) Run(ctx context.Context, projectID core.ID, doReset bool) (int, error) {
	name := vectordb.CollectionName(projectID)

	if err := idx.vectors.CreateCollection(ctx, name, idx.config.EmbeddingSize, doReset); err != nil {
		return 0, fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	total, err := idx.chunks.CountProjectChunks(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(idx.progress, "No chunks found for project %d (0 chunks)\n", projectID)
		return 0, nil
	}

	fmt.Fprintf(idx.progress, "Starting indexing of %d chunks (page size: %d)\n",
		total, idx.config.PageSize)

	tracker := NewProgressTracker(idx.progress, total, idx.config.ReportInterval)
	tracker.Start()

	indexed := 0
	for page := 1; ; page++ {
		// Check context between pages
		select {
		case <-ctx.Done():
			return indexed, ctx.Err()
		default:
		}

		chunks, err := idx.chunks.GetChunkPage(ctx, projectID, page, idx.config.PageSize)
		if err != nil {
			return indexed, fmt.Errorf("failed to fetch chunk page %d: %w", page, err)
		}
		if len(chunks) == 0 {
			break
		}

		if err := idx.indexPage(ctx, name, chunks); err != nil {
			return indexed, err
		}

		indexed += len(chunks)
		tracker.Update(indexed)
	}

	if err := idx.vectors.EnsureIndex(ctx, name); err != nil {
		return indexed, fmt.Errorf("failed to ensure collection index: %w", err)
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(idx.progress, "Indexing complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		indexed, elapsed.Round(time.Second), float64(indexed)/elapsed.Seconds())

	return indexed, nil
}

// indexPage embeds one page of chunks and upserts the vectors.
// The embedding call preserves input order, so chunk-to-vector
// correspondence is by index.
func (idx *Indexer) indexPage(ctx context.Context, name string, chunks []*core.Chunk) error {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	// Generate embeddings with retry
	var embeddings [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = idx.embedder.EmbedTexts(ctx, texts)
		return err
	}, idx.config.MaxRetries, idx.config.RetryDelay)

	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", idx.config.MaxRetries, err)
	}

	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(embeddings))
	}

	records := make([]vectordb.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = vectordb.Record{
			ChunkID:  chunk.Id,
			Text:     chunk.Text,
			Vector:   embeddings[i],
			Metadata: chunk.Metadata,
		}
	}

	if err := idx.vectors.InsertMany(ctx, name, records, idx.config.BatchSize); err != nil {
		return fmt.Errorf("failed to insert vectors: %w", err)
	}

	return nil
}
