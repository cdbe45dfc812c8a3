package state

import (
	"bytes"
	"errors"
	"math/big"
	"strings"
	"testing"

	"whalehub/storage"
)

type record struct {
	Name   string
	Amount *big.Int
}

func TestTxCommitAndDiscard(t *testing.T) {
	root := NewDBStore(storage.NewMemDB())

	tx := Begin(root)
	mgr := NewManager(tx)
	if err := mgr.KVPut(Key("test", "a"), record{Name: "a", Amount: big.NewInt(5)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	tx.Discard()
	if ok, err := NewManager(root).KVHas(Key("test", "a")); err != nil || ok {
		t.Fatalf("discarded write visible: %v %v", ok, err)
	}

	tx = Begin(root)
	mgr = NewManager(tx)
	if err := mgr.KVPut(Key("test", "a"), record{Name: "a", Amount: big.NewInt(5)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	var got record
	ok, err := NewManager(root).KVGet(Key("test", "a"), &got)
	if err != nil || !ok {
		t.Fatalf("committed write missing: %v %v", ok, err)
	}
	if got.Amount.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("unexpected amount %s", got.Amount)
	}
	if err := tx.Commit(); !errors.Is(err, ErrTxClosed) {
		t.Fatalf("expected ErrTxClosed on double commit, got %v", err)
	}
}

func TestNestedTxDiscardKeepsParent(t *testing.T) {
	root := NewDBStore(storage.NewMemDB())
	outer := Begin(root)
	if err := NewManager(outer).KVPut(Key("test", "outer"), uint64(1)); err != nil {
		t.Fatalf("put: %v", err)
	}

	inner := outer.Begin()
	if err := NewManager(inner).KVPut(Key("test", "inner"), uint64(2)); err != nil {
		t.Fatalf("put: %v", err)
	}
	inner.Discard()

	committed := outer.Begin()
	if err := NewManager(committed).KVPut(Key("test", "kept"), uint64(3)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := committed.Commit(); err != nil {
		t.Fatalf("commit inner: %v", err)
	}
	if err := outer.Commit(); err != nil {
		t.Fatalf("commit outer: %v", err)
	}

	mgr := NewManager(root)
	for key, want := range map[string]bool{"outer": true, "inner": false, "kept": true} {
		ok, err := mgr.KVHas(Key("test", key))
		if err != nil {
			t.Fatalf("has %s: %v", key, err)
		}
		if ok != want {
			t.Fatalf("key %s: expected present=%v", key, want)
		}
	}
}

func TestTxIterateMergesOverlay(t *testing.T) {
	root := NewDBStore(storage.NewMemDB())
	seed := Begin(root)
	m := NewManager(seed)
	for _, epoch := range []uint64{1, 3, 5} {
		if err := m.KVPut(Key("w", "uLP", epoch), epoch); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := seed.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx := Begin(root)
	m = NewManager(tx)
	if err := m.KVDelete(Key("w", "uLP", uint64(3))); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.KVPut(Key("w", "uLP", uint64(4)), uint64(4)); err != nil {
		t.Fatalf("put: %v", err)
	}
	var seen []uint64
	err := m.KVIterate(Key("w", "uLP"), nil, func(key []byte, decode func(interface{}) error) (bool, error) {
		var v uint64
		if err := decode(&v); err != nil {
			return false, err
		}
		seen = append(seen, v)
		return true, nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[1] != 4 || seen[2] != 5 {
		t.Fatalf("unexpected iteration %v", seen)
	}
}

func TestKeySegmentsSortNumerically(t *testing.T) {
	a := Key("lp_weight", "uLP", uint64(2))
	b := Key("lp_weight", "uLP", uint64(10))
	if bytes.Compare(a, b) >= 0 {
		t.Fatalf("expected epoch 2 to sort before epoch 10")
	}
	epoch, err := DecodeUint64Suffix(b)
	if err != nil || epoch != 10 {
		t.Fatalf("decode suffix: %d %v", epoch, err)
	}
	prefix := Key("positions_by_receiver", "addr")
	id, err := DecodeStringSuffix(prefix, Key("positions_by_receiver", "addr", "p-1"))
	if err != nil || id != "p-1" {
		t.Fatalf("decode string suffix: %q %v", id, err)
	}
}

func TestKeyLongSegmentsDoNotCollide(t *testing.T) {
	long := strings.Repeat("a", 70_000)
	a := Key("positions", long)
	b := Key("positions", long[:70_000-65_536])
	if bytes.Equal(a, b) || bytes.HasPrefix(a, b) {
		t.Fatalf("long segment collides with a shorter one")
	}
	got, err := DecodeStringSuffix(Key("positions"), a)
	if err != nil || got != long {
		t.Fatalf("decode long suffix: %d bytes, %v", len(got), err)
	}
	if _, err := DecodeStringSuffix(Key("positions"), append(a, 'x')); err == nil {
		t.Fatalf("expected trailing bytes to be rejected")
	}
}

func TestDigestDeterministic(t *testing.T) {
	build := func() []byte {
		tx := Begin(NewDBStore(storage.NewMemDB()))
		m := NewManager(tx)
		_ = m.KVPut(Key("x", uint64(2)), uint64(7))
		_ = m.KVPut(Key("x", uint64(1)), uint64(9))
		_ = m.KVDelete(Key("x", uint64(3)))
		return tx.Digest()
	}
	if !bytes.Equal(build(), build()) {
		t.Fatalf("digest not deterministic")
	}
}

func TestEnsureStateVersion(t *testing.T) {
	root := NewDBStore(storage.NewMemDB())
	if err := EnsureStateVersion(root); err != nil {
		t.Fatalf("stamp: %v", err)
	}
	if err := EnsureStateVersion(root); err != nil {
		t.Fatalf("recheck: %v", err)
	}
	tx := Begin(root)
	if err := NewManager(tx).SetStateVersion(StateVersion + 1); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := EnsureStateVersion(root); !errors.Is(err, ErrStateVersionMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}
