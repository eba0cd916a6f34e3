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

import "fmt"

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - Text must not be empty
//   - Order must be a positive integer
//   - ProjectId must be set
//
// NOT validated:
//   - ID (0 is valid before database sequences assign one)
//   - AssetId (chunks seeded outside the ingest path may not have one)
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyText)
	}

	if chunk.Order <= 0 {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrInvalidOrder)
	}

	if chunk.ProjectId == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrMissingProject)
	}

	return nil
}

// ValidateChunkParams validates splitting parameters supplied by a caller.
// The splitter itself assumes they are valid.
func ValidateChunkParams(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size %d", ErrInvalidChunkParams, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return fmt.Errorf("%w: overlap %d for chunk size %d", ErrInvalidChunkParams, overlap, chunkSize)
	}
	return nil
}

// ValidateJob validates a Job according to domain rules.
func ValidateJob(job *Job) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", ErrInvalidJob)
	}

	if err := ValidateJobType(job.Type); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	if job.ProjectId == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidJob, ErrMissingProject)
	}

	if job.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max attempts must be positive", ErrInvalidJob)
	}

	return nil
}

// ValidateJobType validates that a JobType has a valid value.
func ValidateJobType(t JobType) error {
	switch t {
	case JobTypeIngest, JobTypeIndex:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrInvalidJobType, int(t))
	}
}
