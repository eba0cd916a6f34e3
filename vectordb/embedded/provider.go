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


// Package embedded implements vectordb.Provider with an in-process vecgo
// engine. Collections live in memory; indexing rebuilds them from the
// chunk store, so nothing needs to survive a restart.
package embedded

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hupe1980/vecgo"
	"github.com/poiesic/ragit/core"
	"github.com/poiesic/ragit/vectordb"
)

// payload is the per-record data stored next to each vector.
type payload struct {
	ChunkID  core.ID
	Text     string
	Metadata map[string]string
}

// collection wraps one vecgo instance plus the chunk-to-engine ID mapping.
type collection struct {
	mu     sync.RWMutex
	dim    int
	engine *vecgo.Vecgo[payload]
	ids    map[core.ID]uint64 // chunk ID -> engine-assigned ID
}

// Provider implements vectordb.Provider with vecgo Flat indexes.
// Flat gives exact cosine search, which is the right trade-off for the
// per-project collection sizes this backend targets.
type Provider struct {
	mu          sync.RWMutex
	collections map[string]*collection
	connected   bool
	logger      *slog.Logger
}

var _ vectordb.Provider = (*Provider)(nil)

// NewProvider creates an embedded vector store provider.
func NewProvider() *Provider {
	return &Provider{
		logger: slog.Default().With("component", "embedded-vectordb"),
	}
}

// Connect initializes the collection registry.
func (p *Provider) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		return nil
	}
	p.collections = make(map[string]*collection)
	p.connected = true
	p.logger.Info("connected to embedded vector store")
	return nil
}

// Disconnect drops all collections.
func (p *Provider) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for name, coll := range p.collections {
		coll.close()
		delete(p.collections, name)
	}
	p.collections = nil
	p.connected = false
	p.logger.Info("disconnected from embedded vector store")
	return nil
}

// CollectionExists reports whether the named collection exists.
func (p *Provider) CollectionExists(ctx context.Context, name string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.connected {
		return false, vectordb.ErrNotConnected
	}
	_, ok := p.collections[name]
	return ok, nil
}

// CreateCollection creates a vecgo Flat index for the collection.
func (p *Provider) CreateCollection(ctx context.Context, name string, embeddingSize int, doReset bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return vectordb.ErrNotConnected
	}

	if existing, ok := p.collections[name]; ok {
		if !doReset {
			return nil
		}
		existing.close()
		delete(p.collections, name)
		p.logger.Info("reset collection", "collection", name)
	}

	engine, err := vecgo.Flat[payload](embeddingSize).Cosine().Build()
	if err != nil {
		return err
	}

	p.collections[name] = &collection{
		dim:    embeddingSize,
		engine: engine,
		ids:    make(map[core.ID]uint64),
	}
	p.logger.Info("created collection", "collection", name, "dimension", embeddingSize)
	return nil
}

// DeleteCollection removes a collection. Missing collections are ignored.
func (p *Provider) DeleteCollection(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return vectordb.ErrNotConnected
	}
	if coll, ok := p.collections[name]; ok {
		coll.close()
		delete(p.collections, name)
		p.logger.Info("deleted collection", "collection", name)
	}
	return nil
}

// CountRecords returns the number of records in a collection.
func (p *Provider) CountRecords(ctx context.Context, name string) (int, error) {
	coll, err := p.getCollection(name)
	if err != nil {
		return 0, err
	}

	coll.mu.RLock()
	defer coll.mu.RUnlock()
	if coll.engine == nil {
		return 0, vectordb.ErrCollectionNotFound
	}
	return len(coll.ids), nil
}

// InsertMany inserts records in batches. Records for chunk IDs already in
// the collection overwrite the old vector.
func (p *Provider) InsertMany(ctx context.Context, name string, records []Record, batchSize int) error {
	coll, err := p.getCollection(name)
	if err != nil {
		return err
	}
	if batchSize <= 0 {
		batchSize = vectordb.DefaultBatchSize
	}

	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		if err := coll.insertBatch(ctx, records[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// EnsureIndex is a no-op: vecgo Flat search is exact and needs no
// separate index build.
func (p *Provider) EnsureIndex(ctx context.Context, name string) error {
	_, err := p.getCollection(name)
	return err
}

// SearchByVector performs an exact cosine search.
func (p *Provider) SearchByVector(ctx context.Context, name string, vector []float32, limit int) ([]core.RetrievedDocument, error) {
	coll, err := p.getCollection(name)
	if err != nil {
		return nil, err
	}
	if len(vector) != coll.dim {
		return nil, vectordb.ErrDimensionMismatch
	}

	coll.mu.RLock()
	defer coll.mu.RUnlock()

	// The collection may have been deleted between lookup and lock
	if coll.engine == nil {
		return nil, vectordb.ErrCollectionNotFound
	}
	if len(coll.ids) == 0 {
		return nil, nil
	}
	if limit > len(coll.ids) {
		limit = len(coll.ids)
	}

	hits, err := coll.engine.KNNSearch(ctx, vector, limit)
	if err != nil {
		return nil, err
	}

	results := make([]core.RetrievedDocument, 0, len(hits))
	for _, hit := range hits {
		results = append(results, core.RetrievedDocument{
			Text: hit.Data.Text,
			// Cosine distance is 1 - similarity
			Score: 1 - hit.Distance,
		})
	}
	return results, nil
}

// Record aliases the shared record type for readability inside this package.
type Record = vectordb.Record

func (p *Provider) getCollection(name string) (*collection, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.connected {
		return nil, vectordb.ErrNotConnected
	}
	coll, ok := p.collections[name]
	if !ok {
		return nil, vectordb.ErrCollectionNotFound
	}
	return coll, nil
}

func (c *collection) insertBatch(ctx context.Context, records []Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The collection may have been deleted between lookup and lock
	if c.engine == nil {
		return vectordb.ErrCollectionNotFound
	}

	for _, record := range records {
		if len(record.Vector) != c.dim {
			return vectordb.ErrDimensionMismatch
		}

		item := vecgo.VectorWithData[payload]{
			Vector: record.Vector,
			Data: payload{
				ChunkID:  record.ChunkID,
				Text:     record.Text,
				Metadata: record.Metadata,
			},
		}

		// Re-indexed chunks replace their previous vector
		if engineID, ok := c.ids[record.ChunkID]; ok {
			if err := c.engine.Update(ctx, engineID, item); err != nil {
				return err
			}
			continue
		}

		engineID, err := c.engine.Insert(ctx, item)
		if err != nil {
			return err
		}
		c.ids[record.ChunkID] = engineID
	}
	return nil
}

// close tears the collection down under its own lock: callers holding a
// stale pointer may still be inside a search or insert.
func (c *collection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = nil
	c.engine = nil
}
