package bonding

import (
	"whalehub/core/state"
	"whalehub/core/types"
)

const namespace = "bonding"

var (
	configKey         = state.Key(namespace, "config")
	bondCounterKey    = state.Key(namespace, "bond_counter")
	globalKey         = state.Key(namespace, "global")
	upcomingBucketKey = state.Key(namespace, "upcoming_reward_bucket")
	bucketsPrefix     = state.Key(namespace, "reward_buckets")
)

func bondKey(id uint64) []byte { return state.Key(namespace, "bonds", id) }

func bondsByReceiverPrefix(addr string) []byte {
	return state.Key(namespace, "bonds_by_receiver", addr)
}

func bondsByReceiverKey(addr string, id uint64) []byte {
	return state.Key(namespace, "bonds_by_receiver", addr, id)
}

func lastClaimedKey(addr string) []byte { return state.Key(namespace, "last_claimed_epoch", addr) }

func bucketKey(id uint64) []byte { return state.Key(namespace, "reward_buckets", id) }

// State persists the bonding manager records.
type State struct {
	m *state.Manager
}

// NewState binds the bonding records to store.
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
	return &Config{
		Owner:            stored.Owner,
		EpochManagerAddr: stored.EpochManagerAddr,
		UnbondingPeriod:  stored.UnbondingPeriod,
		GrowthRate:       stored.GrowthRate,
		BondingAssets:    append([]string{}, stored.BondingAssets...),
		GracePeriod:      stored.GracePeriod,
	}, true, nil
}

func (s *State) ConfigPut(cfg *Config) error {
	return s.m.KVPut(configKey, &storedConfig{
		Owner:            cfg.Owner,
		EpochManagerAddr: cfg.EpochManagerAddr,
		UnbondingPeriod:  cfg.UnbondingPeriod,
		GrowthRate:       cfg.GrowthRate,
		BondingAssets:    append([]string{}, cfg.BondingAssets...),
		GracePeriod:      cfg.GracePeriod,
	})
}

func (s *State) NextBondID() (uint64, error) { return s.m.NextSequence(bondCounterKey) }

func (s *State) BondGet(id uint64) (*Bond, bool, error) {
	var stored storedBond
	ok, err := s.m.KVGet(bondKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.toBond(), true, nil
}

func (s *State) BondPut(b *Bond) error {
	if err := s.m.KVPut(bondKey(b.ID), newStoredBond(b)); err != nil {
		return err
	}
	return s.m.KVMarker(bondsByReceiverKey(b.Receiver, b.ID))
}

func (s *State) BondDelete(b *Bond) error {
	if err := s.m.KVDelete(bondKey(b.ID)); err != nil {
		return err
	}
	return s.m.KVDelete(bondsByReceiverKey(b.Receiver, b.ID))
}

// BondsByReceiver returns the bonds of addr in id order, optionally filtered
// by bonding status and denom.
func (s *State) BondsByReceiver(addr string, bonding *bool, denom string) ([]*Bond, error) {
	prefix := bondsByReceiverPrefix(addr)
	var ids []uint64
	err := s.m.Store().Iterate(prefix, nil, func(key, _ []byte) (bool, error) {
		id, err := state.DecodeUint64Suffix(key)
		if err != nil {
			return false, err
		}
		ids = append(ids, id)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Bond, 0, len(ids))
	for _, id := range ids {
		b, ok, err := s.BondGet(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if bonding != nil && b.IsBonding() != *bonding {
			continue
		}
		if denom != "" && b.Asset.Denom != denom {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *State) GlobalGet() (GlobalIndex, bool, error) {
	var stored storedGlobalIndex
	ok, err := s.m.KVGet(globalKey, &stored)
	if err != nil || !ok {
		return newGlobalIndex(), ok, err
	}
	return stored.toGlobalIndex(), true, nil
}

func (s *State) GlobalPut(g GlobalIndex) error {
	stored := newStoredGlobalIndex(g)
	return s.m.KVPut(globalKey, &stored)
}

func (s *State) LastClaimedGet(addr string) (uint64, bool, error) {
	var epoch uint64
	ok, err := s.m.KVGet(lastClaimedKey(addr), &epoch)
	return epoch, ok, err
}

func (s *State) LastClaimedPut(addr string, epoch uint64) error {
	return s.m.KVPut(lastClaimedKey(addr), epoch)
}

func (s *State) BucketGet(id uint64) (*RewardBucket, bool, error) {
	var stored storedRewardBucket
	ok, err := s.m.KVGet(bucketKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.toRewardBucket(), true, nil
}

func (s *State) BucketPut(b *RewardBucket) error {
	return s.m.KVPut(bucketKey(b.ID), newStoredRewardBucket(b))
}

// BucketsFrom returns every reward bucket with id >= from in ascending order.
func (s *State) BucketsFrom(from uint64) ([]*RewardBucket, error) {
	var out []*RewardBucket
	err := s.m.KVIterate(bucketsPrefix, bucketKey(from), func(_ []byte, decode func(interface{}) error) (bool, error) {
		var stored storedRewardBucket
		if err := decode(&stored); err != nil {
			return false, err
		}
		out = append(out, stored.toRewardBucket())
		return true, nil
	})
	return out, err
}

// HasBuckets reports whether at least one reward bucket exists.
func (s *State) HasBuckets() (bool, error) {
	found := false
	err := s.m.Store().Iterate(bucketsPrefix, nil, func(_, _ []byte) (bool, error) {
		found = true
		return false, nil
	})
	return found, err
}

// UpcomingGet returns the rewards collected for the next reward bucket.
func (s *State) UpcomingGet() (types.Coins, error) {
	var stored []types.Coin
	if _, err := s.m.KVGet(upcomingBucketKey, &stored); err != nil {
		return nil, err
	}
	return types.Coins(stored), nil
}

func (s *State) UpcomingPut(c types.Coins) error {
	if c == nil {
		c = types.Coins{}
	}
	return s.m.KVPut(upcomingBucketKey, []types.Coin(c))
}
