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


package tasks

import (
	"context"

	"github.com/poiesic/ragit/core"
	"github.com/poiesic/ragit/indexing"
	"github.com/poiesic/ragit/ingestion"
)

// NewIngestHandler returns the handler for ingest jobs. It loads, splits,
// and stores the project's files per the job's parameters and records the
// counts on the job.
func NewIngestHandler(pipeline *ingestion.Pipeline) Handler {
	return func(ctx context.Context, job *core.Job) error {
		inserted, processed, err := pipeline.ProcessProject(ctx,
			job.ProjectId, job.FileName, job.ChunkSize, job.OverlapSize, job.DoReset)
		if err != nil {
			return err
		}

		job.InsertedChunks = inserted
		job.ProcessedFiles = processed
		return nil
	}
}

// NewIndexHandler returns the handler for index jobs. It rebuilds the
// project's vector collection from stored chunks and records the count on
// the job.
func NewIndexHandler(indexer *indexing.Indexer) Handler {
	return func(ctx context.Context, job *core.Job) error {
		indexed, err := indexer.Run(ctx, job.ProjectId, job.DoReset)
		if err != nil {
			return err
		}

		job.IndexedCount = indexed
		return nil
	}
}
