package incentive

import (
	"bytes"
	"math/big"
	"sort"

	"whalehub/core/numeric"
	"whalehub/core/state"
)

const namespace = "incentive"

var (
	configKey               = state.Key(namespace, "config")
	incentiveCounterKey     = state.Key(namespace, "incentive_counter")
	positionCounterKey      = state.Key(namespace, "position_counter")
	incentivesPrefix        = state.Key(namespace, "incentives")
	incentivesByStartPrefix = state.Key(namespace, "incentives_by_start")
	lpDenomsPrefix          = state.Key(namespace, "lp_denoms")
)

func incentiveKey(identifier string) []byte { return state.Key(namespace, "incentives", identifier) }

func incentiveByStartKey(start, id uint64, identifier string) []byte {
	return state.Key(namespace, "incentives_by_start", start, id, identifier)
}

func incentivesByLPPrefix(lp string) []byte { return state.Key(namespace, "incentives_by_lp", lp) }

func incentiveByLPKey(lp, identifier string) []byte {
	return state.Key(namespace, "incentives_by_lp", lp, identifier)
}

func positionKey(identifier string) []byte { return state.Key(namespace, "positions", identifier) }

func positionsByReceiverPrefix(addr string) []byte {
	return state.Key(namespace, "positions_by_receiver", addr)
}

func positionByReceiverKey(addr, identifier string) []byte {
	return state.Key(namespace, "positions_by_receiver", addr, identifier)
}

func addressWeightPrefix(addr, denom string) []byte {
	return state.Key(namespace, "address_lp_weight", addr, denom)
}

func addressWeightKey(addr, denom string, epoch uint64) []byte {
	return state.Key(namespace, "address_lp_weight", addr, denom, epoch)
}

func lpWeightPrefix(denom string) []byte { return state.Key(namespace, "lp_weight", denom) }

func lpWeightKey(denom string, epoch uint64) []byte {
	return state.Key(namespace, "lp_weight", denom, epoch)
}

func lpDenomKey(denom string) []byte { return state.Key(namespace, "lp_denoms", denom) }

func lastClaimedKey(addr string) []byte { return state.Key(namespace, "last_claimed_epoch", addr) }

// WeightPoint is a weight recorded for an epoch.
type WeightPoint struct {
	Epoch  uint64   `json:"epoch_id"`
	Weight *big.Int `json:"weight"`
}

// weightHistory is an ascending list of recorded weights.
type weightHistory []WeightPoint

// at returns the weight recorded exactly at epoch.
func (h weightHistory) at(epoch uint64) (*big.Int, bool) {
	idx := sort.Search(len(h), func(n int) bool { return h[n].Epoch >= epoch })
	if idx < len(h) && h[idx].Epoch == epoch {
		return numeric.Clone(h[idx].Weight), true
	}
	return nil, false
}

// latest returns the most recent weight recorded at or before epoch.
func (h weightHistory) latest(epoch uint64) (*big.Int, bool) {
	idx := sort.Search(len(h), func(n int) bool { return h[n].Epoch > epoch })
	if idx == 0 {
		return numeric.Zero(), false
	}
	return numeric.Clone(h[idx-1].Weight), true
}

// State persists the incentive manager records.
type State struct {
	m *state.Manager
}

// NewState binds the incentive records to store.
func NewState(store state.Store) *State {
	return &State{m: state.NewManager(store)}
}

func (s *State) Manager() *state.Manager { return s.m }

func (s *State) ConfigGet() (*Config, bool, error) {
	var stored storedConfig
	ok, err := s.m.KVGet(configKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.toConfig(), true, nil
}

func (s *State) ConfigPut(cfg *Config) error {
	return s.m.KVPut(configKey, newStoredConfig(cfg))
}

func (s *State) NextIncentiveID() (uint64, error) { return s.m.NextSequence(incentiveCounterKey) }

func (s *State) NextPositionID() (uint64, error) { return s.m.NextSequence(positionCounterKey) }

func (s *State) IncentiveGet(identifier string) (*Incentive, bool, error) {
	var stored storedIncentive
	ok, err := s.m.KVGet(incentiveKey(identifier), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.toIncentive(), true, nil
}

// IncentivePut stores inc together with its start and LP indexes. Callers
// changing the start epoch of a stored incentive must delete it first.
func (s *State) IncentivePut(inc *Incentive) error {
	if err := s.m.KVPut(incentiveKey(inc.Identifier), newStoredIncentive(inc)); err != nil {
		return err
	}
	if err := s.m.KVPut(incentiveByStartKey(inc.StartEpoch, inc.ID, inc.Identifier), inc.Identifier); err != nil {
		return err
	}
	return s.m.KVMarker(incentiveByLPKey(inc.LPDenom, inc.Identifier))
}

func (s *State) IncentiveDelete(inc *Incentive) error {
	if err := s.m.KVDelete(incentiveKey(inc.Identifier)); err != nil {
		return err
	}
	if err := s.m.KVDelete(incentiveByStartKey(inc.StartEpoch, inc.ID, inc.Identifier)); err != nil {
		return err
	}
	return s.m.KVDelete(incentiveByLPKey(inc.LPDenom, inc.Identifier))
}

// IncentivesByLP returns the incentives of an LP denom in identifier key order.
func (s *State) IncentivesByLP(lp string) ([]*Incentive, error) {
	prefix := incentivesByLPPrefix(lp)
	var identifiers []string
	err := s.m.Store().Iterate(prefix, nil, func(key, _ []byte) (bool, error) {
		identifier, err := state.DecodeStringSuffix(prefix, key)
		if err != nil {
			return false, err
		}
		identifiers = append(identifiers, identifier)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return s.loadIncentives(identifiers)
}

// IncentivesByStart returns every incentive ordered by start epoch and then
// creation order.
func (s *State) IncentivesByStart() ([]*Incentive, error) {
	var identifiers []string
	err := s.m.KVIterate(incentivesByStartPrefix, nil, func(_ []byte, decode func(interface{}) error) (bool, error) {
		var identifier string
		if err := decode(&identifier); err != nil {
			return false, err
		}
		identifiers = append(identifiers, identifier)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return s.loadIncentives(identifiers)
}

// Incentives pages through every incentive in identifier key order starting
// after startAfter. A limit of zero returns everything.
func (s *State) Incentives(startAfter string, limit int, keep func(*Incentive) bool) ([]*Incentive, error) {
	var start []byte
	if startAfter != "" {
		start = incentiveKey(startAfter)
	}
	var out []*Incentive
	err := s.m.KVIterate(incentivesPrefix, start, func(key []byte, decode func(interface{}) error) (bool, error) {
		if start != nil && bytes.Equal(key, start) {
			return true, nil
		}
		var stored storedIncentive
		if err := decode(&stored); err != nil {
			return false, err
		}
		inc := stored.toIncentive()
		if keep != nil && !keep(inc) {
			return true, nil
		}
		out = append(out, inc)
		return limit == 0 || len(out) < limit, nil
	})
	return out, err
}

func (s *State) loadIncentives(identifiers []string) ([]*Incentive, error) {
	out := make([]*Incentive, 0, len(identifiers))
	for _, identifier := range identifiers {
		inc, ok, err := s.IncentiveGet(identifier)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, inc)
		}
	}
	return out, nil
}

func (s *State) PositionGet(identifier string) (*Position, bool, error) {
	var stored storedPosition
	ok, err := s.m.KVGet(positionKey(identifier), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.toPosition(), true, nil
}

func (s *State) PositionPut(p *Position) error {
	if err := s.m.KVPut(positionKey(p.Identifier), newStoredPosition(p)); err != nil {
		return err
	}
	return s.m.KVMarker(positionByReceiverKey(p.Receiver, p.Identifier))
}

func (s *State) PositionDelete(p *Position) error {
	if err := s.m.KVDelete(positionKey(p.Identifier)); err != nil {
		return err
	}
	return s.m.KVDelete(positionByReceiverKey(p.Receiver, p.Identifier))
}

// PositionsByReceiver returns the positions of addr, optionally filtered by
// open status.
func (s *State) PositionsByReceiver(addr string, open *bool) ([]*Position, error) {
	prefix := positionsByReceiverPrefix(addr)
	var identifiers []string
	err := s.m.Store().Iterate(prefix, nil, func(key, _ []byte) (bool, error) {
		identifier, err := state.DecodeStringSuffix(prefix, key)
		if err != nil {
			return false, err
		}
		identifiers = append(identifiers, identifier)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Position, 0, len(identifiers))
	for _, identifier := range identifiers {
		p, ok, err := s.PositionGet(identifier)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if open != nil && p.Open != *open {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *State) AddressWeights(addr, denom string) (weightHistory, error) {
	return s.history(addressWeightPrefix(addr, denom))
}

func (s *State) AddressWeightPut(addr, denom string, epoch uint64, weight *big.Int) error {
	return s.m.KVPut(addressWeightKey(addr, denom, epoch), numeric.Clone(weight))
}

func (s *State) LPWeights(denom string) (weightHistory, error) {
	return s.history(lpWeightPrefix(denom))
}

func (s *State) LPWeightPut(denom string, epoch uint64, weight *big.Int) error {
	return s.m.KVPut(lpWeightKey(denom, epoch), numeric.Clone(weight))
}

func (s *State) history(prefix []byte) (weightHistory, error) {
	var out weightHistory
	err := s.m.KVIterate(prefix, nil, func(key []byte, decode func(interface{}) error) (bool, error) {
		epoch, err := state.DecodeUint64Suffix(key)
		if err != nil {
			return false, err
		}
		weight := new(big.Int)
		if err := decode(weight); err != nil {
			return false, err
		}
		out = append(out, WeightPoint{Epoch: epoch, Weight: weight})
		return true, nil
	})
	return out, err
}

func (s *State) LPDenomMark(denom string) error { return s.m.KVMarker(lpDenomKey(denom)) }

// LPDenoms returns every LP denom that has ever carried weight.
func (s *State) LPDenoms() ([]string, error) {
	var out []string
	err := s.m.Store().Iterate(lpDenomsPrefix, nil, func(key, _ []byte) (bool, error) {
		denom, err := state.DecodeStringSuffix(lpDenomsPrefix, key)
		if err != nil {
			return false, err
		}
		out = append(out, denom)
		return true, nil
	})
	return out, err
}

func (s *State) LastClaimedGet(addr string) (uint64, bool, error) {
	var epoch uint64
	ok, err := s.m.KVGet(lastClaimedKey(addr), &epoch)
	return epoch, ok, err
}

func (s *State) LastClaimedPut(addr string, epoch uint64) error {
	return s.m.KVPut(lastClaimedKey(addr), epoch)
}
