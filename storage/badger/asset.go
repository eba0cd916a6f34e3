package badger

import (
	"bytes"
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragit/core"
	"github.com/poiesic/ragit/storage"
)

// AssetRepository implements storage.AssetRepository for BadgerDB.
type AssetRepository struct {
	backend *Backend
}

var _ storage.AssetRepository = (*AssetRepository)(nil)

// NewAssetRepository creates a new AssetRepository.
func NewAssetRepository(backend *Backend) (*AssetRepository, error) {
	return &AssetRepository{
		backend: backend,
	}, nil
}

// Close releases resources. AssetRepository has no resources to release.
func (r *AssetRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *AssetRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// UpsertAsset inserts or refreshes an asset record.
func (r *AssetRepository) UpsertAsset(ctx context.Context, asset *core.Asset) (*core.Asset, error) {
	if asset.ProjectId == 0 {
		return nil, storage.ErrInvalidQuery
	}

	// Content-based ID, so the same project/name pair always maps to
	// the same record.
	if asset.Id == 0 {
		asset.Id = core.AssetID(asset.ProjectId, asset.Name)
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeAssetKey(asset.ProjectId, asset.Id)

		old, err := readAsset(tx, key)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if old != nil {
			asset.InsertedAt = old.InsertedAt
		} else {
			asset.InsertedAt = now
		}
		asset.UpdatedAt = now

		if err := tx.Set(key, storage.MarshalAsset(asset)); err != nil {
			return err
		}

		// Name index for single-file lookups
		nameKey := makeAssetNameKey(asset.ProjectId, asset.Name)
		if err := tx.Set(nameKey, storage.MarshalID(asset.Id)); err != nil {
			return err
		}

		return tx.Commit()
	}, true)

	return asset, err
}

// GetAssetByName finds an asset by its project and file name.
func (r *AssetRepository) GetAssetByName(ctx context.Context, projectID core.ID, name string) (*core.Asset, error) {
	var result *core.Asset
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeAssetNameKey(projectID, name))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}

		var assetID core.ID
		if err := item.Value(func(val []byte) error {
			var err error
			assetID, err = storage.UnmarshalID(val)
			return err
		}); err != nil {
			return err
		}

		result, err = readAsset(tx, makeAssetKey(projectID, assetID))
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

// GetProjectAssets retrieves all assets belonging to a project.
func (r *AssetRepository) GetProjectAssets(ctx context.Context, projectID core.ID) ([]*core.Asset, error) {
	var results []*core.Asset
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makePartialAssetKey(projectID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if !bytes.HasPrefix(iter.Item().Key(), prefix) {
				break
			}
			var asset *core.Asset
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				asset, err = storage.UnmarshalAsset(val)
				return err
			}); err != nil {
				return err
			}
			results = append(results, asset)
		}
		return nil
	}, false)
	return results, err
}

// readAsset reads an asset record from the transaction, returning nil if absent.
func readAsset(tx *badger.Txn, key []byte) (*core.Asset, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var asset *core.Asset
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		asset, unmarshalErr = storage.UnmarshalAsset(val)
		return unmarshalErr
	})
	return asset, err
}
