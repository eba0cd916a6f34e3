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


// Package vectordb defines the vector store abstraction used by indexing
// and search.
//
// Two implementations are provided:
//
//   - vectordb/embedded: in-process engine built on vecgo
//   - vectordb/sqlite: relational backend storing vectors in table columns
//
// Callers pick a backend at startup; everything above this interface is
// backend-agnostic.
package vectordb

import (
	"context"
	"fmt"

	"github.com/poiesic/ragit/core"
)

const (
	// DefaultBatchSize is the insert batch size used when a caller passes
	// a batch size of zero.
	DefaultBatchSize = 50

	// DefaultIndexThreshold is the record count at which backends that
	// support deferred index builds create their search index.
	DefaultIndexThreshold = 100
)

// CollectionName returns the canonical collection name for a project.
// All of a project's vectors live in this one collection.
func CollectionName(projectID core.ID) string {
	return fmt.Sprintf("collection_%d", projectID)
}

// Record is one vector entry. The record is identified by the chunk it
// was embedded from, so re-indexing the same chunk overwrites rather
// than duplicates.
type Record struct {
	ChunkID  core.ID
	Text     string
	Vector   []float32
	Metadata map[string]string
}

// Provider is the capability interface every vector store backend implements.
// Implementations must be thread-safe.
type Provider interface {
	// Connect establishes the backend connection. Must be called before
	// any other operation.
	Connect(ctx context.Context) error

	// Disconnect releases the backend connection. The provider must not
	// be used afterwards.
	Disconnect() error

	// CollectionExists reports whether the named collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// CreateCollection creates a collection for vectors of the given
	// dimension. If the collection already exists and doReset is false,
	// the call is a no-op. If doReset is true, any existing collection
	// is deleted first and a fresh one created.
	CreateCollection(ctx context.Context, name string, embeddingSize int, doReset bool) error

	// DeleteCollection removes a collection and all its records.
	// Deleting a collection that does not exist is not an error.
	DeleteCollection(ctx context.Context, name string) error

	// CountRecords returns the number of records in a collection.
	CountRecords(ctx context.Context, name string) (int, error)

	// InsertMany inserts records in batches of batchSize (DefaultBatchSize
	// when zero). Records whose chunk ID is already present are
	// overwritten. Returns an error as soon as a batch fails; earlier
	// batches stay inserted.
	InsertMany(ctx context.Context, name string, records []Record, batchSize int) error

	// EnsureIndex builds the backend's search index for a collection once
	// its record count reaches the backend's threshold. Safe to call
	// repeatedly; backends without deferred indexes treat it as a no-op.
	EnsureIndex(ctx context.Context, name string) error

	// SearchByVector returns up to limit records most similar to the query
	// vector, ordered by score descending. Scores are cosine similarities
	// in [-1, 1].
	SearchByVector(ctx context.Context, name string, vector []float32, limit int) ([]core.RetrievedDocument, error)
}
