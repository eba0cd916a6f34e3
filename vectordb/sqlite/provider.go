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


// Package sqlite implements vectordb.Provider on a relational database.
//
// Each collection is one table. Vectors are stored as JSON text in a
// column next to the chunk text and metadata; similarity search is an
// exact cosine scan over the table. A norm column is precomputed at
// insert time, and once a collection crosses the index threshold a
// covering index over the scanned columns is created so large scans run
// off the index instead of the full table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/poiesic/ragit/core"
	"github.com/poiesic/ragit/vectordb"
)

// Collection names become table names, so only identifier characters
// are allowed.
var validCollectionName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Provider implements vectordb.Provider on SQLite.
type Provider struct {
	dataDir        string
	db             *sql.DB
	indexThreshold int
	logger         *slog.Logger
}

var _ vectordb.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithIndexThreshold overrides the record count at which EnsureIndex
// builds the collection index.
func WithIndexThreshold(n int) Option {
	return func(p *Provider) {
		p.indexThreshold = n
	}
}

// NewProvider creates a SQLite vector store provider writing to
// dataDir/vectors.db.
func NewProvider(dataDir string, opts ...Option) *Provider {
	p := &Provider{
		dataDir:        dataDir,
		indexThreshold: vectordb.DefaultIndexThreshold,
		logger:         slog.Default().With("component", "sqlite-vectordb"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect opens the database and prepares the collection registry table.
func (p *Provider) Connect(ctx context.Context) error {
	if p.db != nil {
		return nil
	}

	if err := os.MkdirAll(p.dataDir, 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(p.dataDir, "vectors.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS vector_collections (
			name      TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL
		)`); err != nil {
		db.Close()
		return fmt.Errorf("creating collection registry: %w", err)
	}

	p.db = db
	p.logger.Info("connected to sqlite vector store", "path", dbPath)
	return nil
}

// Disconnect closes the database.
func (p *Provider) Disconnect() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	p.logger.Info("disconnected from sqlite vector store")
	return err
}

// CollectionExists reports whether the named collection exists.
func (p *Provider) CollectionExists(ctx context.Context, name string) (bool, error) {
	if p.db == nil {
		return false, vectordb.ErrNotConnected
	}

	var dim int
	err := p.db.QueryRowContext(ctx,
		`SELECT dimension FROM vector_collections WHERE name = ?`, name).Scan(&dim)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateCollection creates the collection table and registers it.
func (p *Provider) CreateCollection(ctx context.Context, name string, embeddingSize int, doReset bool) error {
	if p.db == nil {
		return vectordb.ErrNotConnected
	}
	if !validCollectionName.MatchString(name) {
		return fmt.Errorf("%w: %q", vectordb.ErrInvalidCollectionName, name)
	}

	exists, err := p.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		if !doReset {
			return nil
		}
		if err := p.DeleteCollection(ctx, name); err != nil {
			return err
		}
		p.logger.Info("reset collection", "collection", name)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	createTable := fmt.Sprintf(`
		CREATE TABLE %q (
			chunk_id INTEGER PRIMARY KEY,
			text     TEXT NOT NULL,
			vector   TEXT NOT NULL,
			metadata TEXT,
			norm     REAL NOT NULL
		)`, name)
	if _, err := tx.ExecContext(ctx, createTable); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO vector_collections (name, dimension) VALUES (?, ?)`,
		name, embeddingSize); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	p.logger.Info("created collection", "collection", name, "dimension", embeddingSize)
	return nil
}

// DeleteCollection drops the collection table. Missing collections are
// ignored.
func (p *Provider) DeleteCollection(ctx context.Context, name string) error {
	if p.db == nil {
		return vectordb.ErrNotConnected
	}
	if !validCollectionName.MatchString(name) {
		return fmt.Errorf("%w: %q", vectordb.ErrInvalidCollectionName, name)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, name)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM vector_collections WHERE name = ?`, name); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	p.logger.Info("deleted collection", "collection", name)
	return nil
}

// CountRecords returns the number of records in a collection.
func (p *Provider) CountRecords(ctx context.Context, name string) (int, error) {
	if _, err := p.collectionDimension(ctx, name); err != nil {
		return 0, err
	}

	var count int
	err := p.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %q`, name)).Scan(&count)
	return count, err
}

// InsertMany inserts records in batches. Each batch is one transaction,
// so a failure never leaves a batch half-written. Records with a chunk
// ID already present are replaced.
func (p *Provider) InsertMany(ctx context.Context, name string, records []Record, batchSize int) error {
	dim, err := p.collectionDimension(ctx, name)
	if err != nil {
		return err
	}
	if batchSize <= 0 {
		batchSize = vectordb.DefaultBatchSize
	}

	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		if err := p.insertBatch(ctx, name, dim, records[start:end]); err != nil {
			return err
		}
	}

	return p.EnsureIndex(ctx, name)
}

// EnsureIndex builds the search index once the collection is large
// enough. The index covers every column SearchByVector reads, so the
// scan becomes an index-only scan over live records. Safe to call
// repeatedly.
func (p *Provider) EnsureIndex(ctx context.Context, name string) error {
	count, err := p.CountRecords(ctx, name)
	if err != nil {
		return err
	}
	if count < p.indexThreshold {
		return nil
	}

	stmt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (norm, text, vector)`,
		"idx_"+name+"_norm", name)
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return err
	}
	p.logger.Debug("ensured collection index", "collection", name, "records", count)
	return nil
}

// SearchByVector scans the collection and returns the best cosine matches.
func (p *Provider) SearchByVector(ctx context.Context, name string, vector []float32, limit int) ([]core.RetrievedDocument, error) {
	dim, err := p.collectionDimension(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, vectordb.ErrDimensionMismatch
	}

	queryNorm := vectorNorm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	rows, err := p.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT text, vector, norm FROM %q WHERE norm > 0`, name))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []core.RetrievedDocument
	for rows.Next() {
		var text, encoded string
		var norm float64
		if err := rows.Scan(&text, &encoded, &norm); err != nil {
			return nil, err
		}

		stored, err := decodeVector(encoded)
		if err != nil {
			return nil, err
		}
		if len(stored) != dim {
			continue
		}

		results = append(results, core.RetrievedDocument{
			Text:  text,
			Score: float32(dotProduct(vector, stored) / (queryNorm * norm)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Record aliases the shared record type for readability inside this package.
type Record = vectordb.Record

func (p *Provider) insertBatch(ctx context.Context, name string, dim int, records []Record) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT OR REPLACE INTO %q (chunk_id, text, vector, metadata, norm)
		VALUES (?, ?, ?, ?, ?)`, name))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, record := range records {
		if len(record.Vector) != dim {
			return vectordb.ErrDimensionMismatch
		}

		encoded, err := encodeVector(record.Vector)
		if err != nil {
			return err
		}
		metadata, err := encodeMetadata(record.Metadata)
		if err != nil {
			return err
		}

		if _, err := stmt.ExecContext(ctx,
			int64(record.ChunkID), record.Text, encoded, metadata,
			vectorNorm(record.Vector)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (p *Provider) collectionDimension(ctx context.Context, name string) (int, error) {
	if p.db == nil {
		return 0, vectordb.ErrNotConnected
	}
	if !validCollectionName.MatchString(name) {
		return 0, fmt.Errorf("%w: %q", vectordb.ErrInvalidCollectionName, name)
	}

	var dim int
	err := p.db.QueryRowContext(ctx,
		`SELECT dimension FROM vector_collections WHERE name = ?`, name).Scan(&dim)
	if err == sql.ErrNoRows {
		return 0, vectordb.ErrCollectionNotFound
	}
	if err != nil {
		return 0, err
	}
	return dim, nil
}

func encodeVector(v []float32) (string, error) {
	bs, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(bs), nil
}

func decodeVector(s string) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	bs, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(bs), nil
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
