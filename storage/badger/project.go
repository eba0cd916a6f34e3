package badger

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragit/core"
	"github.com/poiesic/ragit/storage"
)

// ProjectRepository implements storage.ProjectRepository for BadgerDB.
type ProjectRepository struct {
	backend *Backend

	// serializes concurrent GetOrCreateProject calls for the same ID
	createMu sync.Mutex
}

var _ storage.ProjectRepository = (*ProjectRepository)(nil)

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(backend *Backend) (*ProjectRepository, error) {
	return &ProjectRepository{
		backend: backend,
	}, nil
}

// Close releases resources. ProjectRepository has no resources to release.
func (r *ProjectRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *ProjectRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// GetOrCreateProject finds or creates a project by ID.
func (r *ProjectRepository) GetOrCreateProject(ctx context.Context, id core.ID) (*core.Project, error) {
	// Fast path: project already exists
	project, err := r.getProject(id)
	if err != nil {
		return nil, err
	}
	if project != nil {
		return project, nil
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	// Re-check under the lock in case another goroutine created it
	project, err = r.getProject(id)
	if err != nil {
		return nil, err
	}
	if project != nil {
		return project, nil
	}

	now := time.Now().UTC()
	project = &core.Project{
		Id:         id,
		InsertedAt: now,
		UpdatedAt:  now,
	}

	err = r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeProjectKey(id)
		if err := tx.Set(key, storage.MarshalProject(project)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	return project, nil
}

// GetProjectPage retrieves one page of projects ordered by ID ascending.
func (r *ProjectRepository) GetProjectPage(ctx context.Context, page, pageSize int) ([]*core.Project, error) {
	if page < 1 || pageSize < 1 {
		return nil, storage.ErrInvalidQuery
	}

	skip := (page - 1) * pageSize
	var results []*core.Project

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := []byte(projectRecordPrefix + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		seen := 0
		for iter.Rewind(); iter.Valid(); iter.Next() {
			if !bytes.HasPrefix(iter.Item().Key(), prefix) {
				break
			}
			if seen < skip {
				seen++
				continue
			}
			if len(results) >= pageSize {
				break
			}

			var project *core.Project
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				project, err = storage.UnmarshalProject(val)
				return err
			}); err != nil {
				return err
			}
			results = append(results, project)
			seen++
		}
		return nil
	}, false)

	return results, err
}

// getProject reads a project record, returning nil if absent.
func (r *ProjectRepository) getProject(id core.ID) (*core.Project, error) {
	var project *core.Project
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeProjectKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			project, unmarshalErr = storage.UnmarshalProject(val)
			return unmarshalErr
		})
	}, false)
	return project, err
}
