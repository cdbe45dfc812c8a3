package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// Manager reads and writes RLP-encoded records on top of a Store.
type Manager struct {
	store Store
}

// NewManager creates a state manager operating on the provided store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Store returns the raw store.
func (m *Manager) Store() Store { return m.store }

// KVPut RLP-encodes value and stores it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.store.Set(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := m.store.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return true, nil
}

// KVHas reports whether key exists.
func (m *Manager) KVHas(key []byte) (bool, error) {
	return m.KVGet(key, nil)
}

// KVDelete removes key. Removing an absent key is a no-op.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.store.Delete(key)
}

// KVMarker stores an empty index entry under key.
func (m *Manager) KVMarker(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.store.Set(key, []byte{})
}

// KVIterate walks every key under prefix in ascending order. decode may be
// used inside fn to decode the current value.
func (m *Manager) KVIterate(prefix, start []byte, fn func(key []byte, decode func(out interface{}) error) (bool, error)) error {
	return m.store.Iterate(prefix, start, func(key, value []byte) (bool, error) {
		return fn(key, func(out interface{}) error {
			return rlp.DecodeBytes(value, out)
		})
	})
}

// NextSequence increments and returns the counter stored under key. The first
// value returned is 1.
func (m *Manager) NextSequence(key []byte) (uint64, error) {
	var current uint64
	if _, err := m.KVGet(key, &current); err != nil {
		return 0, err
	}
	current++
	if current == 0 {
		return 0, fmt.Errorf("kv: sequence %q overflow", key)
	}
	if err := m.KVPut(key, current); err != nil {
		return 0, err
	}
	return current, nil
}
