package epoch

import (
	"whalehub/core/state"
)

const namespace = "epoch"

var (
	configKey  = state.Key(namespace, "config")
	ownerKey   = state.Key(namespace, "owner")
	hooksKey   = state.Key(namespace, "hooks")
	currentKey = state.Key(namespace, "current")
	oldestKey  = state.Key(namespace, "oldest")
)

func epochKey(id uint64) []byte { return state.Key(namespace, "epochs", id) }

// State persists the epoch manager records.
type State struct {
	m *state.Manager
}

// NewState binds the epoch records to store.
func NewState(store state.Store) *State {
	return &State{m: state.NewManager(store)}
}

// Manager exposes the underlying KV manager, used by version tracking.
func (s *State) Manager() *state.Manager { return s.m }

func (s *State) ConfigGet() (Config, bool, error) {
	var stored storedConfig
	ok, err := s.m.KVGet(configKey, &stored)
	if err != nil || !ok {
		return Config{}, ok, err
	}
	return stored.toConfig(), true, nil
}

func (s *State) ConfigPut(cfg Config) error {
	return s.m.KVPut(configKey, newStoredConfig(cfg))
}

func (s *State) OwnerGet() (string, error) {
	var owner string
	if _, err := s.m.KVGet(ownerKey, &owner); err != nil {
		return "", err
	}
	return owner, nil
}

func (s *State) OwnerPut(owner string) error { return s.m.KVPut(ownerKey, owner) }

func (s *State) HooksGet() ([]string, error) {
	var hooks []string
	if _, err := s.m.KVGet(hooksKey, &hooks); err != nil {
		return nil, err
	}
	return hooks, nil
}

func (s *State) HooksPut(hooks []string) error {
	if hooks == nil {
		hooks = []string{}
	}
	return s.m.KVPut(hooksKey, hooks)
}

func (s *State) EpochGet(id uint64) (Epoch, bool, error) {
	var stored storedEpoch
	ok, err := s.m.KVGet(epochKey(id), &stored)
	if err != nil || !ok {
		return Epoch{}, ok, err
	}
	return stored.toEpoch(), true, nil
}

// EpochPut stores e and moves the current pointer forward when e is newer.
func (s *State) EpochPut(e Epoch) error {
	if err := s.m.KVPut(epochKey(e.ID), newStoredEpoch(e)); err != nil {
		return err
	}
	cur, ok, err := s.CurrentID()
	if err != nil {
		return err
	}
	if !ok || e.ID > cur {
		if err := s.m.KVPut(currentKey, e.ID); err != nil {
			return err
		}
	}
	if _, ok, err := s.OldestID(); err != nil {
		return err
	} else if !ok {
		return s.m.KVPut(oldestKey, e.ID)
	}
	return nil
}

func (s *State) EpochDelete(id uint64) error { return s.m.KVDelete(epochKey(id)) }

func (s *State) CurrentID() (uint64, bool, error) {
	var id uint64
	ok, err := s.m.KVGet(currentKey, &id)
	return id, ok, err
}

func (s *State) OldestID() (uint64, bool, error) {
	var id uint64
	ok, err := s.m.KVGet(oldestKey, &id)
	return id, ok, err
}

func (s *State) OldestPut(id uint64) error { return s.m.KVPut(oldestKey, id) }

// StartIDGet returns the id of the first epoch ever stored.
func (s *State) StartIDGet() (uint64, error) {
	var id uint64
	_, err := s.m.KVGet(state.Key(namespace, "start_id"), &id)
	return id, err
}

func (s *State) StartIDPut(id uint64) error {
	return s.m.KVPut(state.Key(namespace, "start_id"), id)
}
