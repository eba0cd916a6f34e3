package mock

import (
	"context"
	"errors"
	"testing"
)

func TestDefaultQueryMatchesDocument(t *testing.T) {
	m := NewMockEmbedder()
	m.Dim = 8
	ctx := context.Background()

	doc, err := m.EmbedText(ctx, "harbor lights")
	if err != nil {
		t.Fatalf("EmbedText failed: %v", err)
	}
	query, err := m.EmbedQuery(ctx, "harbor lights")
	if err != nil {
		t.Fatalf("EmbedQuery failed: %v", err)
	}

	if len(doc) != len(query) {
		t.Fatalf("Vector lengths differ: %d vs %d", len(doc), len(query))
	}
	for i := range doc {
		if doc[i] != query[i] {
			t.Fatalf("Vectors differ at %d: %f vs %f", i, doc[i], query[i])
		}
	}
}

func TestSize(t *testing.T) {
	m := NewMockEmbedder()
	if m.Size() != 384 {
		t.Fatalf("Default Size = %d, want 384", m.Size())
	}
	m.Dim = 8
	if m.Size() != 8 {
		t.Fatalf("Size = %d, want 8", m.Size())
	}
}

func TestEmbedQueryInjection(t *testing.T) {
	m := NewMockEmbedder()
	m.EmbedQueryFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("down")
	}

	if _, err := m.EmbedQuery(context.Background(), "x"); err == nil {
		t.Fatal("Expected injected error")
	}
	if m.CallCount() != 1 {
		t.Fatalf("CallCount = %d, want 1", m.CallCount())
	}

	m.Reset()
	if vec, err := m.EmbedQuery(context.Background(), "x"); err != nil || len(vec) != 384 {
		t.Fatalf("After Reset: vec len %d, err %v", len(vec), err)
	}
}
