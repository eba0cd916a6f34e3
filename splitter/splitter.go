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


// Package splitter turns loaded documents into ordered text fragments.
//
// Splitting is a pure function of its inputs: the same documents and the
// same parameters always produce the same fragments in the same order.
package splitter

import (
	"strings"

	"github.com/poiesic/ragit/core"
	"github.com/tmc/langchaingo/textsplitter"
)

// Document is one loaded source document before splitting.
type Document struct {
	PageContent string
	Metadata    map[string]string
}

// Fragment is one split piece of a document, carrying the source metadata.
type Fragment struct {
	Text     string
	Metadata map[string]string
}

// Splitter splits documents into fragments using recursive
// character splitting.
type Splitter struct {
	chunkSize int
	overlap   int
}

// New creates a Splitter. Returns an input error if chunkSize is not
// positive or overlap is not in [0, chunkSize).
func New(chunkSize, overlap int) (*Splitter, error) {
	if err := core.ValidateChunkParams(chunkSize, overlap); err != nil {
		return nil, err
	}
	return &Splitter{
		chunkSize: chunkSize,
		overlap:   overlap,
	}, nil
}

// Split splits the documents in order. Documents that are empty or
// whitespace-only are skipped. An empty input yields an empty output.
func (s *Splitter) Split(docs []Document) ([]Fragment, error) {
	sp := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.chunkSize),
		textsplitter.WithChunkOverlap(s.overlap),
	)

	var fragments []Fragment
	for _, doc := range docs {
		if strings.TrimSpace(doc.PageContent) == "" {
			continue
		}

		pieces, err := sp.SplitText(doc.PageContent)
		if err != nil {
			return nil, err
		}

		for _, piece := range pieces {
			if strings.TrimSpace(piece) == "" {
				continue
			}
			fragments = append(fragments, Fragment{
				Text:     piece,
				Metadata: doc.Metadata,
			})
		}
	}

	return fragments, nil
}
