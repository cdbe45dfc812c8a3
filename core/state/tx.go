package state

import (
	"bytes"
	"errors"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"whalehub/storage"
)

// ErrTxClosed is returned when a committed or discarded transaction is used.
var ErrTxClosed = errors.New("state: transaction closed")

type pending struct {
	value   []byte
	deleted bool
}

// Tx is a write overlay on a parent Store. Reads see the overlay first. Commit
// pushes the overlay into the parent, which is atomic against a DBStore and
// merges into the parent overlay for nested transactions.
type Tx struct {
	parent Store
	writes map[string]pending
	closed bool
}

// Begin opens a transaction over parent.
func Begin(parent Store) *Tx {
	return &Tx{parent: parent, writes: make(map[string]pending)}
}

// Begin opens a nested transaction whose commit lands in tx.
func (tx *Tx) Begin() *Tx { return Begin(tx) }

func (tx *Tx) Get(key []byte) ([]byte, bool, error) {
	if tx.closed {
		return nil, false, ErrTxClosed
	}
	if w, ok := tx.writes[string(key)]; ok {
		if w.deleted {
			return nil, false, nil
		}
		return append([]byte(nil), w.value...), true, nil
	}
	return tx.parent.Get(key)
}

func (tx *Tx) Set(key, value []byte) error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.writes[string(key)] = pending{value: append([]byte(nil), value...)}
	return nil
}

func (tx *Tx) Delete(key []byte) error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.writes[string(key)] = pending{deleted: true}
	return nil
}

// Iterate merges the overlay with the parent view in ascending key order.
func (tx *Tx) Iterate(prefix, start []byte, fn storage.IterFunc) error {
	if tx.closed {
		return ErrTxClosed
	}
	merged := make(map[string][]byte)
	err := tx.parent.Iterate(prefix, start, func(key, value []byte) (bool, error) {
		merged[string(key)] = append([]byte(nil), value...)
		return true, nil
	})
	if err != nil {
		return err
	}
	for k, w := range tx.writes {
		kb := []byte(k)
		if !bytes.HasPrefix(kb, prefix) {
			continue
		}
		if len(start) > 0 && bytes.Compare(kb, start) < 0 {
			continue
		}
		if w.deleted {
			delete(merged, k)
			continue
		}
		merged[k] = w.value
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		more, err := fn([]byte(k), merged[k])
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// Len returns the number of keys touched by the transaction.
func (tx *Tx) Len() int { return len(tx.writes) }

// Digest returns keccak256 over the sorted write set. Deletions are encoded
// with a tombstone marker so that replaying the same calls yields the same
// digest.
func (tx *Tx) Digest() []byte {
	keys := tx.sortedKeys()
	var buf bytes.Buffer
	for _, k := range keys {
		w := tx.writes[k]
		buf.WriteString(k)
		if w.deleted {
			buf.WriteByte(0x00)
			continue
		}
		buf.WriteByte(0x01)
		buf.Write(w.value)
	}
	return ethcrypto.Keccak256(buf.Bytes())
}

// Commit flushes the overlay into the parent and closes the transaction.
func (tx *Tx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	defer tx.close()
	if root, ok := tx.parent.(*DBStore); ok {
		batch := storage.NewBatch()
		for _, k := range tx.sortedKeys() {
			w := tx.writes[k]
			if w.deleted {
				batch.Delete([]byte(k))
			} else {
				batch.Put([]byte(k), w.value)
			}
		}
		return root.db.Write(batch)
	}
	for _, k := range tx.sortedKeys() {
		w := tx.writes[k]
		var err error
		if w.deleted {
			err = tx.parent.Delete([]byte(k))
		} else {
			err = tx.parent.Set([]byte(k), w.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Discard drops the overlay. Discarding a closed transaction is a no-op.
func (tx *Tx) Discard() {
	if tx.closed {
		return
	}
	tx.close()
}

func (tx *Tx) close() {
	tx.closed = true
	tx.writes = nil
}

func (tx *Tx) sortedKeys() []string {
	keys := make([]string, 0, len(tx.writes))
	for k := range tx.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
