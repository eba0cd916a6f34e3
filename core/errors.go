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


package core

import (
	"errors"
	"fmt"
)

// ErrInput is the common ancestor of all input errors. Jobs failing with an
// input error are reported as FAILURE immediately and never retried.
var ErrInput = errors.New("invalid input")

// Domain validation errors
var (
	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmptyText indicates the chunk Text field is empty.
	ErrEmptyText = errors.New("chunk text cannot be empty")

	// ErrInvalidOrder indicates a chunk order that is not a positive integer.
	ErrInvalidOrder = errors.New("chunk order must be a positive integer")

	// ErrMissingProject indicates a record without an owning project.
	ErrMissingProject = errors.New("project id is required")

	// ErrInvalidJob indicates a Job failed validation.
	ErrInvalidJob = errors.New("invalid job")

	// ErrInvalidJobType indicates an unknown JobType value.
	ErrInvalidJobType = errors.New("invalid job type")
)

// Input errors surfaced by the ingestion pipeline.
var (
	// ErrInvalidChunkParams indicates malformed chunk size or overlap parameters.
	ErrInvalidChunkParams = fmt.Errorf("%w: chunk size must be positive and overlap must be smaller", ErrInput)

	// ErrAssetNotFound indicates that the requested file has no asset record.
	ErrAssetNotFound = fmt.Errorf("%w: asset not found", ErrInput)

	// ErrNoFiles indicates that the project has no file assets to process.
	ErrNoFiles = fmt.Errorf("%w: no files found for the project", ErrInput)
)
