package badger

import (
	"bytes"
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragit/core"
	"github.com/poiesic/ragit/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) (*ChunkRepository, error) {
	idSeq, err := backend.GetSequence(chunkIDSeq)
	if err != nil {
		return nil, err
	}

	return &ChunkRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *ChunkRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *ChunkRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddChunks adds one or more chunks to storage in a single transaction.
// If any chunk fails validation, nothing is written.
func (r *ChunkRepository) AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	// Validate everything up front so a bad chunk never leaves a
	// partially written batch behind.
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return nil, err
		}
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			if chunk.Id == 0 {
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
				chunk.Id = core.ID(nextID)
			}

			if chunk.InsertedAt.IsZero() {
				chunk.InsertedAt = time.Now().UTC()
			}

			key := makeChunkKey(chunk.ProjectId, chunk.Id)
			if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	return chunks, nil
}

// GetChunkPage retrieves one page of a project's chunks, ordered by chunk ID
// ascending. Page numbering starts at 1.
func (r *ChunkRepository) GetChunkPage(ctx context.Context, projectID core.ID, page, pageSize int) ([]*core.Chunk, error) {
	if page < 1 || pageSize < 1 {
		return nil, storage.ErrInvalidQuery
	}

	skip := (page - 1) * pageSize
	var results []*core.Chunk

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makePartialChunkKey(projectID)
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

			var chunk *core.Chunk
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			}); err != nil {
				return err
			}
			results = append(results, chunk)
			seen++
		}
		return nil
	}, false)

	return results, err
}

// DeleteProjectChunks removes every chunk belonging to a project.
func (r *ChunkRepository) DeleteProjectChunks(ctx context.Context, projectID core.ID) (int, error) {
	return r.deleteChunks(projectID, func(*core.Chunk) bool { return true })
}

// DeleteAssetChunks removes every chunk belonging to one asset.
func (r *ChunkRepository) DeleteAssetChunks(ctx context.Context, projectID, assetID core.ID) (int, error) {
	return r.deleteChunks(projectID, func(c *core.Chunk) bool { return c.AssetId == assetID })
}

// CountProjectChunks returns the number of chunks stored for a project.
func (r *ChunkRepository) CountProjectChunks(ctx context.Context, projectID core.ID) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makePartialChunkKey(projectID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if !bytes.HasPrefix(iter.Item().Key(), prefix) {
				break
			}
			count++
		}
		return nil
	}, false)
	return count, err
}

// deleteChunks removes a project's chunks matching the filter.
func (r *ChunkRepository) deleteChunks(projectID core.ID, match func(*core.Chunk) bool) (int, error) {
	// Collect keys first; deleting under an open iterator is not safe.
	var keys [][]byte
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makePartialChunkKey(projectID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if !bytes.HasPrefix(iter.Item().Key(), prefix) {
				break
			}
			var chunk *core.Chunk
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			}); err != nil {
				return err
			}
			if match(chunk) {
				keys = append(keys, iter.Item().KeyCopy(nil))
			}
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}

	if len(keys) == 0 {
		return 0, nil
	}

	err = r.backend.WithTx(func(tx *badger.Txn) error {
		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return 0, err
	}

	return len(keys), nil
}
