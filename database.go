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


package ragit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/poiesic/ragit/ai"
	"github.com/poiesic/ragit/ai/openai"
	"github.com/poiesic/ragit/core"
	"github.com/poiesic/ragit/indexing"
	"github.com/poiesic/ragit/ingestion"
	"github.com/poiesic/ragit/search"
	"github.com/poiesic/ragit/storage"
	"github.com/poiesic/ragit/storage/badger"
	"github.com/poiesic/ragit/tasks"
	"github.com/poiesic/ragit/vectordb"
	"github.com/poiesic/ragit/vectordb/embedded"
	"github.com/poiesic/ragit/vectordb/sqlite"
)

// VectorBackend selects the vector store implementation.
type VectorBackend string

const (
	// VectorBackendEmbedded keeps collections in an in-process vecgo engine.
	VectorBackendEmbedded VectorBackend = "embedded"

	// VectorBackendSQLite persists collections in a SQLite database.
	VectorBackendSQLite VectorBackend = "sqlite"
)

// Database wires the chunk store, vector store, and embedder together and
// hands out the pipeline, indexer, searcher, and job engine built on them.
type Database struct {
	store    *badger.Store
	vectors  vectordb.Provider
	embedder ai.Embedder
	dataDir  string
	progress io.Writer
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig      *ai.Config
	vectorBackend VectorBackend
	embedder      ai.Embedder
	progress      io.Writer
}

// WithAIConfig sets the embedding service configuration.
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		if config != nil {
			o.aiConfig = config
		}
	}
}

// WithVectorBackend selects the vector store implementation.
// Default is VectorBackendEmbedded.
func WithVectorBackend(backend VectorBackend) DatabaseOption {
	return func(o *databaseOptions) {
		o.vectorBackend = backend
	}
}

// WithEmbedder overrides the embedder built from the AI config.
// Primarily for tests.
func WithEmbedder(embedder ai.Embedder) DatabaseOption {
	return func(o *databaseOptions) {
		o.embedder = embedder
	}
}

// WithProgress sets where long-running operations report progress.
// Default is os.Stderr.
func WithProgress(w io.Writer) DatabaseOption {
	return func(o *databaseOptions) {
		if w != nil {
			o.progress = w
		}
	}
}

// NewDatabase opens the chunk store at filePath and connects the configured
// vector backend. dataDir holds project files and, for the SQLite backend,
// the vector database.
func NewDatabase(filePath, dataDir string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig:      ai.DefaultConfig(),
		vectorBackend: VectorBackendEmbedded,
		progress:      os.Stderr,
	}
	for _, opt := range opts {
		opt(options)
	}

	store, err := badger.NewStore(filePath)
	if err != nil {
		return nil, err
	}

	var vectors vectordb.Provider
	switch options.vectorBackend {
	case VectorBackendEmbedded:
		vectors = embedded.NewProvider()
	case VectorBackendSQLite:
		vectors = sqlite.NewProvider(dataDir)
	default:
		store.Close()
		return nil, fmt.Errorf("unknown vector backend: %q", options.vectorBackend)
	}

	if err := vectors.Connect(context.Background()); err != nil {
		store.Close()
		return nil, err
	}

	embedder := options.embedder
	if embedder == nil {
		embedder, err = openai.NewEmbedder(options.aiConfig)
		if err != nil {
			vectors.Disconnect()
			store.Close()
			return nil, err
		}
	}

	return &Database{
		store:    store,
		vectors:  vectors,
		embedder: embedder,
		dataDir:  dataDir,
		progress: options.progress,
		logger:   slog.Default(),
	}, nil
}

// Close disconnects the vector store and closes the chunk store.
func (db *Database) Close() error {
	if err := db.vectors.Disconnect(); err != nil {
		db.logger.Error("error disconnecting vector store", "err", err)
	}
	return db.store.Close()
}

func (db *Database) ProjectRepository() storage.ProjectRepository {
	return db.store.Projects
}

func (db *Database) AssetRepository() storage.AssetRepository {
	return db.store.Assets
}

func (db *Database) ChunkRepository() storage.ChunkRepository {
	return db.store.Chunks
}

func (db *Database) JobRepository() storage.JobRepository {
	return db.store.Jobs
}

func (db *Database) VectorProvider() vectordb.Provider {
	return db.vectors
}

func (db *Database) Embedder() ai.Embedder {
	return db.embedder
}

// NewIngestionPipeline builds the file ingestion pipeline over this
// database's repositories.
func (db *Database) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	return ingestion.NewPipeline(db.store.Projects, db.store.Assets, db.store.Chunks,
		db.vectors, db.dataDir, opts...)
}

// NewIndexer builds an indexer over this database's chunk and vector stores.
// A nil config uses defaults sized to the embedder's vectors.
func (db *Database) NewIndexer(config *indexing.Config) *indexing.Indexer {
	if config == nil {
		config = indexing.DefaultConfig()
		config.EmbeddingSize = db.embedder.Size()
	}
	return indexing.NewIndexer(db.store.Chunks, db.embedder, db.vectors, config, db.progress)
}

// NewSearcher builds a searcher over this database's embedder and vector
// store.
func (db *Database) NewSearcher(opts ...search.Option) *search.Searcher {
	return search.NewSearcher(db.embedder, db.vectors, opts...)
}

// NewJobEngine builds a job engine with the ingest and index handlers
// already registered.
func (db *Database) NewJobEngine(opts ...tasks.Option) (*tasks.Engine, error) {
	pipeline, err := db.NewIngestionPipeline()
	if err != nil {
		return nil, err
	}

	engine, err := tasks.NewEngine(db.store.Jobs, opts...)
	if err != nil {
		return nil, err
	}

	engine.RegisterHandler(core.JobTypeIngest, tasks.NewIngestHandler(pipeline))
	engine.RegisterHandler(core.JobTypeIndex, tasks.NewIndexHandler(db.NewIndexer(nil)))
	return engine, nil
}
