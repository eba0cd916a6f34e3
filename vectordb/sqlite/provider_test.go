package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/poiesic/ragit/core"
	"github.com/poiesic/ragit/vectordb"
)

func newConnectedProvider(t *testing.T, opts ...Option) *Provider {
	t.Helper()
	p := NewProvider(t.TempDir(), opts...)
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { p.Disconnect() })
	return p
}

func unitVector(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

// indexSQL returns the CREATE INDEX statement for the collection's search
// index, or "" if the index does not exist.
func indexSQL(t *testing.T, p *Provider, name string) string {
	t.Helper()
	var stmt string
	err := p.db.QueryRow(
		`SELECT sql FROM sqlite_master WHERE type = 'index' AND name = ?`,
		"idx_"+name+"_norm").Scan(&stmt)
	if err == sql.ErrNoRows {
		return ""
	}
	if err != nil {
		t.Fatalf("Reading index definition failed: %v", err)
	}
	return stmt
}

func TestCollectionLifecycle(t *testing.T) {
	p := newConnectedProvider(t)
	ctx := context.Background()
	name := vectordb.CollectionName(3)

	exists, err := p.CollectionExists(ctx, name)
	if err != nil {
		t.Fatalf("CollectionExists failed: %v", err)
	}
	if exists {
		t.Fatal("Collection should not exist before creation")
	}

	if err := p.CreateCollection(ctx, name, 4, false); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	exists, err = p.CollectionExists(ctx, name)
	if err != nil {
		t.Fatalf("CollectionExists failed: %v", err)
	}
	if !exists {
		t.Fatal("Collection should exist after creation")
	}

	if err := p.DeleteCollection(ctx, name); err != nil {
		t.Fatalf("DeleteCollection failed: %v", err)
	}
	exists, _ = p.CollectionExists(ctx, name)
	if exists {
		t.Fatal("Collection should not exist after deletion")
	}

	// Deleting again is not an error
	if err := p.DeleteCollection(ctx, name); err != nil {
		t.Fatalf("Second DeleteCollection failed: %v", err)
	}
}

func TestCreateCollection_Reset(t *testing.T) {
	p := newConnectedProvider(t)
	ctx := context.Background()
	name := vectordb.CollectionName(1)

	if err := p.CreateCollection(ctx, name, 4, false); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	if err := p.InsertMany(ctx, name, []vectordb.Record{
		{ChunkID: 1, Text: "keep me", Vector: unitVector(4, 0)},
	}, 0); err != nil {
		t.Fatalf("InsertMany failed: %v", err)
	}

	// Idempotent create keeps records
	if err := p.CreateCollection(ctx, name, 4, false); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	count, err := p.CountRecords(ctx, name)
	if err != nil {
		t.Fatalf("CountRecords failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("Expected 1 record, got %d", count)
	}

	// Reset empties the collection
	if err := p.CreateCollection(ctx, name, 4, true); err != nil {
		t.Fatalf("CreateCollection with reset failed: %v", err)
	}
	count, err = p.CountRecords(ctx, name)
	if err != nil {
		t.Fatalf("CountRecords failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("Expected 0 records after reset, got %d", count)
	}
}

func TestCreateCollection_InvalidName(t *testing.T) {
	p := newConnectedProvider(t)
	ctx := context.Background()

	err := p.CreateCollection(ctx, "bad name; drop table", 4, false)
	if !errors.Is(err, vectordb.ErrInvalidCollectionName) {
		t.Fatalf("Expected ErrInvalidCollectionName, got %v", err)
	}
}

func TestInsertMany_AndSearch(t *testing.T) {
	p := newConnectedProvider(t)
	ctx := context.Background()
	name := vectordb.CollectionName(7)

	if err := p.CreateCollection(ctx, name, 4, false); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}

	records := []vectordb.Record{
		{ChunkID: 1, Text: "north", Vector: unitVector(4, 0), Metadata: map[string]string{"source": "a.txt"}},
		{ChunkID: 2, Text: "east", Vector: unitVector(4, 1)},
		{ChunkID: 3, Text: "south", Vector: unitVector(4, 2)},
	}
	if err := p.InsertMany(ctx, name, records, 2); err != nil {
		t.Fatalf("InsertMany failed: %v", err)
	}

	count, err := p.CountRecords(ctx, name)
	if err != nil {
		t.Fatalf("CountRecords failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("Expected 3 records, got %d", count)
	}

	hits, err := p.SearchByVector(ctx, name, unitVector(4, 0), 2)
	if err != nil {
		t.Fatalf("SearchByVector failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Expected 2 hits, got %d", len(hits))
	}
	if hits[0].Text != "north" {
		t.Fatalf("Best hit = %q, want north", hits[0].Text)
	}
	if hits[0].Score < 0.999 {
		t.Fatalf("Identical vector should score ~1, got %f", hits[0].Score)
	}
	if hits[1].Score >= hits[0].Score {
		t.Fatal("Hits not ordered by score descending")
	}
}

func TestInsertMany_ReplacesSameChunk(t *testing.T) {
	p := newConnectedProvider(t)
	ctx := context.Background()
	name := vectordb.CollectionName(1)

	if err := p.CreateCollection(ctx, name, 4, false); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}

	if err := p.InsertMany(ctx, name, []vectordb.Record{
		{ChunkID: 5, Text: "old", Vector: unitVector(4, 0)},
	}, 0); err != nil {
		t.Fatalf("InsertMany failed: %v", err)
	}
	if err := p.InsertMany(ctx, name, []vectordb.Record{
		{ChunkID: 5, Text: "new", Vector: unitVector(4, 1)},
	}, 0); err != nil {
		t.Fatalf("Second InsertMany failed: %v", err)
	}

	count, err := p.CountRecords(ctx, name)
	if err != nil {
		t.Fatalf("CountRecords failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("Expected 1 record after replace, got %d", count)
	}

	hits, err := p.SearchByVector(ctx, name, unitVector(4, 1), 1)
	if err != nil {
		t.Fatalf("SearchByVector failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Text != "new" {
		t.Fatalf("Expected replaced record, got %v", hits)
	}
}

func TestInsertMany_DimensionMismatch(t *testing.T) {
	p := newConnectedProvider(t)
	ctx := context.Background()
	name := vectordb.CollectionName(1)

	if err := p.CreateCollection(ctx, name, 4, false); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}

	err := p.InsertMany(ctx, name, []vectordb.Record{
		{ChunkID: core.ID(1), Text: "bad", Vector: unitVector(3, 0)},
	}, 0)
	if !errors.Is(err, vectordb.ErrDimensionMismatch) {
		t.Fatalf("Expected ErrDimensionMismatch, got %v", err)
	}
}

func TestEnsureIndex_Threshold(t *testing.T) {
	p := newConnectedProvider(t, WithIndexThreshold(10))
	ctx := context.Background()
	name := vectordb.CollectionName(1)

	if err := p.CreateCollection(ctx, name, 4, false); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}

	// Below threshold: EnsureIndex succeeds without creating the index
	if err := p.EnsureIndex(ctx, name); err != nil {
		t.Fatalf("EnsureIndex below threshold failed: %v", err)
	}
	if stmt := indexSQL(t, p, name); stmt != "" {
		t.Fatalf("Index created below threshold: %s", stmt)
	}

	records := make([]vectordb.Record, 12)
	for i := range records {
		records[i] = vectordb.Record{
			ChunkID: core.ID(i + 1),
			Text:    fmt.Sprintf("record %d", i),
			Vector:  unitVector(4, i%4),
		}
	}
	if err := p.InsertMany(ctx, name, records, 5); err != nil {
		t.Fatalf("InsertMany failed: %v", err)
	}

	// Crossing the threshold builds the index; repeat calls are no-ops
	if err := p.EnsureIndex(ctx, name); err != nil {
		t.Fatalf("EnsureIndex failed: %v", err)
	}
	if err := p.EnsureIndex(ctx, name); err != nil {
		t.Fatalf("Repeated EnsureIndex failed: %v", err)
	}

	// The index must cover every column the similarity scan reads, so the
	// scan can be satisfied from the index alone.
	stmt := indexSQL(t, p, name)
	if stmt == "" {
		t.Fatal("Index not created above threshold")
	}
	for _, column := range []string{"norm", "text", "vector"} {
		if !strings.Contains(stmt, column) {
			t.Fatalf("Index does not cover %q: %s", column, stmt)
		}
	}

	// Search still works with the index in place
	hits, err := p.SearchByVector(ctx, name, unitVector(4, 0), 3)
	if err != nil {
		t.Fatalf("SearchByVector failed: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("Expected 3 hits, got %d", len(hits))
	}
}

func TestSearchByVector_Errors(t *testing.T) {
	p := newConnectedProvider(t)
	ctx := context.Background()

	if _, err := p.SearchByVector(ctx, vectordb.CollectionName(1), unitVector(4, 0), 5); !errors.Is(err, vectordb.ErrCollectionNotFound) {
		t.Errorf("Search on missing collection = %v, want ErrCollectionNotFound", err)
	}

	name := vectordb.CollectionName(1)
	if err := p.CreateCollection(ctx, name, 4, false); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	if _, err := p.SearchByVector(ctx, name, unitVector(8, 0), 5); !errors.Is(err, vectordb.ErrDimensionMismatch) {
		t.Errorf("Search with wrong dimension = %v, want ErrDimensionMismatch", err)
	}
}

func TestPersistenceAcrossReconnect(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	name := vectordb.CollectionName(9)

	p := NewProvider(dir)
	if err := p.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := p.CreateCollection(ctx, name, 4, false); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	if err := p.InsertMany(ctx, name, []vectordb.Record{
		{ChunkID: 1, Text: "durable", Vector: unitVector(4, 0)},
	}, 0); err != nil {
		t.Fatalf("InsertMany failed: %v", err)
	}
	if err := p.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	reopened := NewProvider(dir)
	if err := reopened.Connect(ctx); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	defer reopened.Disconnect()

	hits, err := reopened.SearchByVector(ctx, name, unitVector(4, 0), 1)
	if err != nil {
		t.Fatalf("SearchByVector after reconnect failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Text != "durable" {
		t.Fatalf("Expected durable record after reconnect, got %v", hits)
	}
}
