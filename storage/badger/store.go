package badger

import (
	"errors"

	"github.com/poiesic/ragit/storage"
)

// Store bundles all repositories sharing one BadgerDB backend.
type Store struct {
	backend *Backend

	Projects storage.ProjectRepository
	Assets   storage.AssetRepository
	Chunks   storage.ChunkRepository
	Jobs     storage.JobRepository
}

// NewStore opens a BadgerDB database at path and wires all repositories.
func NewStore(path string) (*Store, error) {
	return newStore(path, false)
}

// NewMemoryStore creates an in-memory store for testing.
func NewMemoryStore() (*Store, error) {
	return newStore("", true)
}

func newStore(path string, inMemory bool) (*Store, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}

	projects, err := NewProjectRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	assets, err := NewAssetRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	chunks, err := NewChunkRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	jobs, err := NewJobRepository(backend)
	if err != nil {
		chunks.Close()
		backend.Close()
		return nil, err
	}

	return &Store{
		backend:  backend,
		Projects: projects,
		Assets:   assets,
		Chunks:   chunks,
		Jobs:     jobs,
	}, nil
}

// Close releases all sequences and closes the backend.
func (s *Store) Close() error {
	var errs []error
	for _, c := range []interface{ Close() error }{s.Chunks, s.Jobs, s.Projects, s.Assets} {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.backend.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
