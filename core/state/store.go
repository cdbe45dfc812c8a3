package state

import (
	"errors"

	"whalehub/storage"
)

// Store is the raw ordered key-value view that modules execute against.
type Store interface {
	Get(key []byte) ([]byte, bool, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	// Iterate walks keys with prefix in ascending order starting at start.
	Iterate(prefix, start []byte, fn storage.IterFunc) error
}

// DBStore exposes a storage.Database as the root Store. Writes made directly
// against it are not transactional; callers go through Tx.
type DBStore struct {
	db storage.Database
}

func NewDBStore(db storage.Database) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) Get(key []byte) ([]byte, bool, error) {
	value, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *DBStore) Set(key, value []byte) error { return s.db.Put(key, value) }

func (s *DBStore) Delete(key []byte) error { return s.db.Delete(key) }

func (s *DBStore) Iterate(prefix, start []byte, fn storage.IterFunc) error {
	return s.db.Iterate(prefix, start, fn)
}

// Database returns the underlying database.
func (s *DBStore) Database() storage.Database { return s.db }
