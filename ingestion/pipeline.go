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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/poiesic/ragit/core"
	"github.com/poiesic/ragit/loader"
	"github.com/poiesic/ragit/splitter"
	"github.com/poiesic/ragit/storage"
	"github.com/poiesic/ragit/vectordb"
)

// Pipeline orchestrates the registration and processing of project files.
type Pipeline struct {
	projects storage.ProjectRepository
	assets   storage.AssetRepository
	chunks   storage.ChunkRepository
	vectors  vectordb.Provider
	dataDir  string
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline. Project files are read from
// <dataDir>/projects/<projectID>/.
func NewPipeline(
	projects storage.ProjectRepository,
	assets storage.AssetRepository,
	chunks storage.ChunkRepository,
	vectors vectordb.Provider,
	dataDir string,
	opts ...Option,
) (*Pipeline, error) {
	if projects == nil {
		return nil, ErrProjectRepositoryRequired
	}
	if assets == nil {
		return nil, ErrAssetRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if vectors == nil {
		return nil, ErrVectorProviderRequired
	}

	p := &Pipeline{
		projects: projects,
		assets:   assets,
		chunks:   chunks,
		vectors:  vectors,
		dataDir:  dataDir,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			return nil, optErr
		}
	}

	return p, nil
}

// ProjectDir returns the directory holding a project's files.
func (p *Pipeline) ProjectDir(projectID core.ID) string {
	return filepath.Join(p.dataDir, "projects", fmt.Sprintf("%d", projectID))
}

// RegisterFile records a file already present in the project directory as an
// asset. The asset ID is derived from the project and file name, so calling
// this again for the same file refreshes the record instead of duplicating it.
func (p *Pipeline) RegisterFile(ctx context.Context, projectID core.ID, name string) (*core.Asset, error) {
	if _, err := p.projects.GetOrCreateProject(ctx, projectID); err != nil {
		return nil, err
	}

	info, err := os.Stat(filepath.Join(p.ProjectDir(projectID), name))
	if err != nil {
		return nil, fmt.Errorf("failed to stat project file: %w", err)
	}

	asset, err := p.assets.UpsertAsset(ctx, &core.Asset{
		ProjectId: projectID,
		Type:      core.AssetTypeFile,
		Name:      name,
		Size:      info.Size(),
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("registered file", "project", projectID, "file", name, "size", info.Size())
	return asset, nil
}

// ProcessProject loads, splits, and stores chunks for a project's files.
//
// When fileName is set only that asset is processed; resolving an unknown
// name is an input error (core.ErrAssetNotFound). Otherwise all file assets
// are processed, and a project without any is an input error (core.ErrNoFiles).
//
// With doReset the project's chunks and vector collection are deleted first.
// Each asset's previous chunks are always replaced, so re-running the same
// ingest never accumulates duplicates. Files that cannot be read or have an
// unsupported type are logged and skipped rather than failing the run.
//
// Returns the number of chunks inserted and the number of files processed.
func (p *Pipeline) ProcessProject(ctx context.Context, projectID core.ID, fileName string, chunkSize, overlap int, doReset bool) (int, int, error) {
	split, err := splitter.New(chunkSize, overlap)
	if err != nil {
		return 0, 0, err
	}

	if _, err := p.projects.GetOrCreateProject(ctx, projectID); err != nil {
		return 0, 0, err
	}

	targets, err := p.resolveAssets(ctx, projectID, fileName)
	if err != nil {
		return 0, 0, err
	}

	if doReset {
		deleted, err := p.chunks.DeleteProjectChunks(ctx, projectID)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to reset project chunks: %w", err)
		}
		if err := p.vectors.DeleteCollection(ctx, vectordb.CollectionName(projectID)); err != nil {
			return 0, 0, fmt.Errorf("failed to reset project collection: %w", err)
		}
		p.logger.Info("reset project", "project", projectID, "deletedChunks", deleted)
	}

	files := loader.NewFileLoader(p.ProjectDir(projectID))

	insertedChunks := 0
	processedFiles := 0
	for _, asset := range targets {
		inserted, err := p.processAsset(ctx, files, split, asset)
		if err != nil {
			p.logger.Warn("skipping file", "project", projectID, "file", asset.Name, "err", err)
			continue
		}

		insertedChunks += inserted
		processedFiles++
	}

	p.logger.Info("processed project", "project", projectID,
		"files", processedFiles, "chunks", insertedChunks)
	return insertedChunks, processedFiles, nil
}

// resolveAssets picks the assets to process: one by name, or every file
// asset the project has.
func (p *Pipeline) resolveAssets(ctx context.Context, projectID core.ID, fileName string) ([]*core.Asset, error) {
	if fileName != "" {
		asset, err := p.assets.GetAssetByName(ctx, projectID, fileName)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", core.ErrAssetNotFound, fileName)
		}
		if err != nil {
			return nil, err
		}
		return []*core.Asset{asset}, nil
	}

	all, err := p.assets.GetProjectAssets(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var files []*core.Asset
	for _, asset := range all {
		if asset.Type == core.AssetTypeFile {
			files = append(files, asset)
		}
	}
	if len(files) == 0 {
		return nil, core.ErrNoFiles
	}
	return files, nil
}

// processAsset replaces one asset's chunks with a fresh split of its file.
func (p *Pipeline) processAsset(ctx context.Context, files *loader.FileLoader, split *splitter.Splitter, asset *core.Asset) (int, error) {
	if !files.Supported(asset.Name) {
		return 0, fmt.Errorf("unsupported file type: %s", asset.Name)
	}

	docs, err := files.Load(ctx, asset.Name)
	if err != nil {
		return 0, err
	}

	fragments, err := split.Split(docs)
	if err != nil {
		return 0, err
	}

	// Replace this asset's chunks so re-processing stays idempotent
	if _, err := p.chunks.DeleteAssetChunks(ctx, asset.ProjectId, asset.Id); err != nil {
		return 0, err
	}

	if len(fragments) == 0 {
		return 0, nil
	}

	records := make([]*core.Chunk, len(fragments))
	for i, fragment := range fragments {
		records[i] = &core.Chunk{
			ProjectId: asset.ProjectId,
			AssetId:   asset.Id,
			Order:     i + 1,
			Text:      fragment.Text,
			Metadata:  fragment.Metadata,
		}
	}

	added, err := p.chunks.AddChunks(ctx, records...)
	if err != nil {
		return 0, err
	}
	return len(added), nil
}
