package ingestion

import "errors"

var (
	// ErrProjectRepositoryRequired is returned when a project repository is not provided.
	ErrProjectRepositoryRequired = errors.New("project repository required")

	// ErrAssetRepositoryRequired is returned when an asset repository is not provided.
	ErrAssetRepositoryRequired = errors.New("asset repository required")

	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrVectorProviderRequired is returned when a vector store provider is not provided.
	ErrVectorProviderRequired = errors.New("vector store provider required")
)
