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


// Package loader reads project files into documents for splitting.
package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/ragit/splitter"
	"github.com/tmc/langchaingo/documentloaders"
)

// Supported file extensions. Files with any other extension are skipped
// rather than failing the whole ingest run.
var supportedExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// FileLoader loads documents from files inside a base directory.
type FileLoader struct {
	baseDir string
}

// NewFileLoader creates a loader rooted at baseDir. File names passed to
// Load are resolved relative to this directory.
func NewFileLoader(baseDir string) *FileLoader {
	return &FileLoader{baseDir: baseDir}
}

// Supported reports whether the loader can read the named file.
func (l *FileLoader) Supported(name string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(name))]
}

// Load reads one file and returns its documents. Returns (nil, nil) for
// unsupported file types so callers can skip them.
func (l *FileLoader) Load(ctx context.Context, name string) ([]splitter.Document, error) {
	if !l.Supported(name) {
		return nil, nil
	}

	f, err := os.Open(filepath.Join(l.baseDir, name))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	docs, err := documentloaders.NewText(f).Load(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]splitter.Document, 0, len(docs))
	for _, doc := range docs {
		metadata := map[string]string{"source": name}
		for k, v := range doc.Metadata {
			if s, ok := v.(string); ok {
				metadata[k] = s
			}
		}
		result = append(result, splitter.Document{
			PageContent: doc.PageContent,
			Metadata:    metadata,
		})
	}
	return result, nil
}
