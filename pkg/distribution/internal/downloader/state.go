package downloader

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/buntdb"

	"github.com/clocksmith/doppler/pkg/distribution/types"
)

// StateStore persists one DownloadState record per model ID in a small
// embedded key-value database, the durable sidecar a resumed download
// reconciles against.
type StateStore struct {
	db *buntdb.DB
}

// OpenStateStore opens (creating if absent) the sidecar database at path.
func OpenStateStore(path string) (*StateStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open download-state store: %w", err)
	}
	return &StateStore{db: db}, nil
}

// Close releases the underlying database file.
func (s *StateStore) Close() error {
	return s.db.Close()
}

// Save upserts state, keyed by its ModelID.
func (s *StateStore) Save(state types.DownloadState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal download state: %w", err)
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(state.ModelID, string(data), nil)
		return err
	})
}

// Load returns the persisted state for modelID, and false if none exists.
func (s *StateStore) Load(modelID string) (types.DownloadState, bool, error) {
	var raw string
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(modelID)
		if err != nil {
			return err
		}
		raw = v
		return nil
	})
	if err == buntdb.ErrNotFound {
		return types.DownloadState{}, false, nil
	}
	if err != nil {
		return types.DownloadState{}, false, fmt.Errorf("load download state: %w", err)
	}
	var state types.DownloadState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return types.DownloadState{}, false, fmt.Errorf("decode download state: %w", err)
	}
	return state, true, nil
}

// Delete removes the persisted state for modelID, a no-op if absent.
func (s *StateStore) Delete(modelID string) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(modelID)
		return err
	})
	if err != nil && err != buntdb.ErrNotFound {
		return fmt.Errorf("delete download state: %w", err)
	}
	return nil
}
