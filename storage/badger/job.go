package badger

import (
	"bytes"
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragit/core"
	"github.com/poiesic/ragit/storage"
)

// JobRepository implements storage.JobRepository for BadgerDB.
//
// Besides the primary record, each job has a state index entry so that
// recovery can find PENDING and RUNNING jobs without a full scan.
type JobRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository.
func NewJobRepository(backend *Backend) (*JobRepository, error) {
	idSeq, err := backend.GetSequence(jobIDSeq)
	if err != nil {
		return nil, err
	}

	return &JobRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *JobRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *JobRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddJob persists a new job.
func (r *JobRepository) AddJob(ctx context.Context, job *core.Job) (*core.Job, error) {
	if err := core.ValidateJob(job); err != nil {
		return nil, err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if job.Id == 0 {
			nextID, err := r.idSeq.Next()
			if err != nil {
				return err
			}
			// BadgerDB sequences can return 0 on first call, so we skip it
			if nextID == 0 {
				nextID, err = r.idSeq.Next()
				if err != nil {
					return err
				}
			}
			job.Id = core.ID(nextID)
		}

		job.InsertedAt = time.Now().UTC()
		job.UpdatedAt = job.InsertedAt

		key := makeJobKey(job.Id)
		if err := tx.Set(key, storage.MarshalJob(job)); err != nil {
			return err
		}

		stateKey := makeJobStateKey(job.State, job.Id)
		if err := tx.Set(stateKey, storage.MarshalID(job.Id)); err != nil {
			return err
		}

		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	return job, nil
}

// UpdateJob persists job state changes.
func (r *JobRepository) UpdateJob(ctx context.Context, job *core.Job) (*core.Job, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeJobKey(job.Id)

		old, err := readJob(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		job.UpdatedAt = time.Now().UTC()

		if err := tx.Set(key, storage.MarshalJob(job)); err != nil {
			return err
		}

		// Move the state index entry when the state changes
		if old.State != job.State {
			if err := tx.Delete(makeJobStateKey(old.State, job.Id)); err != nil {
				return err
			}
			if err := tx.Set(makeJobStateKey(job.State, job.Id), storage.MarshalID(job.Id)); err != nil {
				return err
			}
		}

		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	return job, nil
}

// GetJob retrieves a single job by ID.
func (r *JobRepository) GetJob(ctx context.Context, id core.ID) (*core.Job, error) {
	var result *core.Job
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readJob(tx, makeJobKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetJobsByState retrieves all jobs currently in the given state.
func (r *JobRepository) GetJobsByState(ctx context.Context, state core.JobState) ([]*core.Job, error) {
	var results []*core.Job
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makePartialJobStateKey(state)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if !bytes.HasPrefix(iter.Item().Key(), prefix) {
				break
			}

			var jobID core.ID
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				jobID, err = storage.UnmarshalID(val)
				return err
			}); err != nil {
				return err
			}

			job, err := readJob(tx, makeJobKey(jobID))
			if err != nil {
				return err
			}
			if job != nil {
				results = append(results, job)
			}
		}
		return nil
	}, false)
	return results, err
}

// readJob reads a job record from the transaction, returning nil if absent.
func readJob(tx *badger.Txn, key []byte) (*core.Job, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var job *core.Job
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		job, unmarshalErr = storage.UnmarshalJob(val)
		return unmarshalErr
	})
	return job, err
}
