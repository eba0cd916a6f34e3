package storage

import (
	"context"

	"github.com/poiesic/ragit/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// The context passed to fn may contain transaction state.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// ProjectRepository provides operations for managing projects.
type ProjectRepository interface {
	Repository
	// GetOrCreateProject finds or creates a project by ID.
	// Projects are created lazily on first reference.
	// Thread-safe: handles concurrent creation attempts.
	GetOrCreateProject(ctx context.Context, id core.ID) (*core.Project, error)

	// GetProjectPage retrieves one page of projects ordered by ID ascending.
	// Page numbering starts at 1.
	GetProjectPage(ctx context.Context, page, pageSize int) ([]*core.Project, error)
}

// AssetRepository provides operations for managing assets.
type AssetRepository interface {
	Repository
	// UpsertAsset inserts or refreshes an asset record. The asset ID is
	// derived from the project and name, so re-registering the same file
	// updates the existing record instead of creating a duplicate.
	// Sets InsertedAt on first insert and UpdatedAt on every call.
	UpsertAsset(ctx context.Context, asset *core.Asset) (*core.Asset, error)

	// GetAssetByName finds an asset by its project and file name.
	// Returns ErrNotFound if no matching asset exists.
	GetAssetByName(ctx context.Context, projectID core.ID, name string) (*core.Asset, error)

	// GetProjectAssets retrieves all assets belonging to a project,
	// ordered by asset ID ascending.
	GetProjectAssets(ctx context.Context, projectID core.ID) ([]*core.Asset, error)
}

// ChunkRepository provides operations for managing chunks.
type ChunkRepository interface {
	Repository
	// AddChunks adds one or more chunks to storage in a single transaction.
	// For chunks with ID=0, generates new IDs from sequence.
	// Sets InsertedAt timestamp if not already set.
	// If any chunk fails validation, nothing is written.
	// Returns the chunks with generated IDs and timestamps populated.
	AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// GetChunkPage retrieves one page of a project's chunks, ordered by
	// chunk ID ascending. Page numbering starts at 1. Returns an empty
	// slice past the end; the ordering is stable across repeated scans
	// as long as no chunks are added or deleted in between.
	GetChunkPage(ctx context.Context, projectID core.ID, page, pageSize int) ([]*core.Chunk, error)

	// DeleteProjectChunks removes every chunk belonging to a project.
	// Returns the number of chunks deleted. Deleting a project with no
	// chunks is not an error.
	DeleteProjectChunks(ctx context.Context, projectID core.ID) (int, error)

	// DeleteAssetChunks removes every chunk belonging to one asset.
	// Returns the number of chunks deleted.
	DeleteAssetChunks(ctx context.Context, projectID, assetID core.ID) (int, error)

	// CountProjectChunks returns the number of chunks stored for a project.
	CountProjectChunks(ctx context.Context, projectID core.ID) (int, error)
}

// JobRepository provides operations for managing background jobs.
type JobRepository interface {
	Repository
	// AddJob persists a new job. For jobs with ID=0, generates a new ID
	// from sequence. Sets InsertedAt and UpdatedAt timestamps.
	// Returns the job with its generated ID populated.
	AddJob(ctx context.Context, job *core.Job) (*core.Job, error)

	// UpdateJob persists job state changes. Updates the UpdatedAt
	// timestamp automatically. Returns ErrNotFound if the job doesn't exist.
	UpdateJob(ctx context.Context, job *core.Job) (*core.Job, error)

	// GetJob retrieves a single job by ID.
	// Returns ErrNotFound if the job doesn't exist.
	GetJob(ctx context.Context, id core.ID) (*core.Job, error)

	// GetJobsByState retrieves all jobs currently in the given state,
	// ordered by job ID ascending.
	GetJobsByState(ctx context.Context, state core.JobState) ([]*core.Job, error)
}
