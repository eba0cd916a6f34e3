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


// Package search answers semantic queries against a project's vector
// collection.
package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/ragit/ai"
	"github.com/poiesic/ragit/core"
	"github.com/poiesic/ragit/vectordb"
)

// DefaultLimit is the number of results returned when no limit is given.
const DefaultLimit = 5

// Searcher embeds queries and searches project collections.
type Searcher struct {
	embedder ai.Embedder
	vectors  vectordb.Provider
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSearcher creates a searcher over the given embedder and vector store.
func NewSearcher(embedder ai.Embedder, vectors vectordb.Provider, opts ...Option) *Searcher {
	s := &Searcher{
		embedder: embedder,
		vectors:  vectors,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search embeds the query and returns the best matching chunks from the
// project's collection, ordered by descending score. An indexed project
// with no matches returns an empty result, not an error.
func (s *Searcher) Search(ctx context.Context, projectID core.ID, query string, limit int) ([]core.RetrievedDocument, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	name := vectordb.CollectionName(projectID)
	results, err := s.vectors.SearchByVector(ctx, name, vector, limit)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("search complete", "project", projectID, "hits", len(results))
	return results, nil
}
