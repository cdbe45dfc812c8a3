package bonding

import (
	"math/big"
	"time"

	"whalehub/core/numeric"
	"whalehub/core/types"
)

// BondingAssetsLimit caps how many denoms can be bonded.
const BondingAssetsLimit = 2

// Config holds the bonding manager parameters.
type Config struct {
	Owner            string          `json:"owner"`
	EpochManagerAddr string          `json:"epoch_manager_addr"`
	UnbondingPeriod  uint64          `json:"unbonding_period"`
	GrowthRate       numeric.Decimal `json:"growth_rate"`
	BondingAssets    []string        `json:"bonding_assets"`
	GracePeriod      uint64          `json:"grace_period"`
}

// InstantiateMsg configures a fresh bonding manager.
type InstantiateMsg struct {
	EpochManagerAddr string          `json:"epoch_manager_addr" yaml:"epoch_manager_addr"`
	UnbondingPeriod  uint64          `json:"unbonding_period" yaml:"unbonding_period"`
	GrowthRate       numeric.Decimal `json:"growth_rate" yaml:"growth_rate"`
	BondingAssets    []string        `json:"bonding_assets" yaml:"bonding_assets"`
	GracePeriod      uint64          `json:"grace_period" yaml:"grace_period"`
}

// UpdateConfigMsg carries optional config changes. Nil fields are left as is.
type UpdateConfigMsg struct {
	Owner            *string          `json:"owner,omitempty"`
	EpochManagerAddr *string          `json:"epoch_manager_addr,omitempty"`
	UnbondingPeriod  *uint64          `json:"unbonding_period,omitempty"`
	GrowthRate       *numeric.Decimal `json:"growth_rate,omitempty"`
	GracePeriod      *uint64          `json:"grace_period,omitempty"`
}

// Bond is a stake of a single asset. A bond with UnbondedAt set is an
// unbonding request waiting for the unbonding period to pass.
type Bond struct {
	ID             uint64     `json:"id"`
	Asset          types.Coin `json:"asset"`
	Weight         *big.Int   `json:"weight"`
	CreatedAtEpoch uint64     `json:"created_at_epoch"`
	LastUpdated    uint64     `json:"last_updated"`
	UnbondedAt     *uint64    `json:"unbonded_at,omitempty"`
	Receiver       string     `json:"receiver"`
}

// IsBonding reports whether the bond is active (not unbonding).
func (b Bond) IsBonding() bool { return b.UnbondedAt == nil }

// GlobalIndex aggregates every active bond.
type GlobalIndex struct {
	EpochID      uint64      `json:"epoch_id"`
	BondedAmount *big.Int    `json:"bonded_amount"`
	BondedAssets types.Coins `json:"bonded_assets"`
	LastUpdated  uint64      `json:"last_updated"`
	LastWeight   *big.Int    `json:"last_weight"`
}

func newGlobalIndex() GlobalIndex {
	return GlobalIndex{BondedAmount: numeric.Zero(), LastWeight: numeric.Zero()}
}

// RewardBucket holds the rewards distributable for one epoch together with a
// snapshot of the global index taken when the bucket was created.
type RewardBucket struct {
	ID             uint64      `json:"id"`
	EpochStartTime time.Time   `json:"epoch_start_time"`
	Total          types.Coins `json:"total"`
	Available      types.Coins `json:"available"`
	Claimed        types.Coins `json:"claimed"`
	GlobalIndex    GlobalIndex `json:"global_index"`
}

// BondedResponse is returned by the bonded query.
type BondedResponse struct {
	TotalBonded        *big.Int    `json:"total_bonded"`
	BondedAssets       types.Coins `json:"bonded_assets"`
	FirstBondedEpochID *uint64     `json:"first_bonded_epoch_id,omitempty"`
}

// UnbondingResponse is returned by the unbonding query.
type UnbondingResponse struct {
	TotalAmount       *big.Int `json:"total_amount"`
	UnbondingRequests []Bond   `json:"unbonding_requests"`
}

// WeightResponse is returned by the weight query.
type WeightResponse struct {
	Address      string          `json:"address"`
	Weight       *big.Int        `json:"weight"`
	GlobalWeight *big.Int        `json:"global_weight"`
	Share        numeric.Decimal `json:"share"`
	EpochID      uint64          `json:"epoch_id"`
}

type storedBond struct {
	ID             uint64
	Denom          string
	Amount         *big.Int
	Weight         *big.Int
	CreatedAtEpoch uint64
	LastUpdated    uint64
	Unbonding      bool
	UnbondedAt     uint64
	Receiver       string
}

func newStoredBond(b *Bond) *storedBond {
	stored := &storedBond{
		ID:             b.ID,
		Denom:          b.Asset.Denom,
		Amount:         numeric.Clone(b.Asset.Amount),
		Weight:         numeric.Clone(b.Weight),
		CreatedAtEpoch: b.CreatedAtEpoch,
		LastUpdated:    b.LastUpdated,
		Receiver:       b.Receiver,
	}
	if b.UnbondedAt != nil {
		stored.Unbonding = true
		stored.UnbondedAt = *b.UnbondedAt
	}
	return stored
}

func (s *storedBond) toBond() *Bond {
	b := &Bond{
		ID:             s.ID,
		Asset:          types.NewCoinBig(s.Denom, s.Amount),
		Weight:         numeric.Clone(s.Weight),
		CreatedAtEpoch: s.CreatedAtEpoch,
		LastUpdated:    s.LastUpdated,
		Receiver:       s.Receiver,
	}
	if s.Unbonding {
		at := s.UnbondedAt
		b.UnbondedAt = &at
	}
	return b
}

type storedGlobalIndex struct {
	EpochID      uint64
	BondedAmount *big.Int
	BondedAssets []types.Coin
	LastUpdated  uint64
	LastWeight   *big.Int
}

func newStoredGlobalIndex(g GlobalIndex) storedGlobalIndex {
	return storedGlobalIndex{
		EpochID:      g.EpochID,
		BondedAmount: numeric.Clone(g.BondedAmount),
		BondedAssets: g.BondedAssets.Clone(),
		LastUpdated:  g.LastUpdated,
		LastWeight:   numeric.Clone(g.LastWeight),
	}
}

func (s storedGlobalIndex) toGlobalIndex() GlobalIndex {
	return GlobalIndex{
		EpochID:      s.EpochID,
		BondedAmount: numeric.Clone(s.BondedAmount),
		BondedAssets: types.Coins(s.BondedAssets).Clone(),
		LastUpdated:  s.LastUpdated,
		LastWeight:   numeric.Clone(s.LastWeight),
	}
}

type storedRewardBucket struct {
	ID         uint64
	StartNanos uint64
	Total      []types.Coin
	Available  []types.Coin
	Claimed    []types.Coin
	Global     storedGlobalIndex
}

func newStoredRewardBucket(b *RewardBucket) *storedRewardBucket {
	nanos := b.EpochStartTime.UnixNano()
	if nanos < 0 {
		nanos = 0
	}
	return &storedRewardBucket{
		ID:         b.ID,
		StartNanos: uint64(nanos),
		Total:      b.Total.Clone(),
		Available:  b.Available.Clone(),
		Claimed:    b.Claimed.Clone(),
		Global:     newStoredGlobalIndex(b.GlobalIndex),
	}
}

func (s *storedRewardBucket) toRewardBucket() *RewardBucket {
	return &RewardBucket{
		ID:             s.ID,
		EpochStartTime: time.Unix(0, int64(s.StartNanos)).UTC(),
		Total:          types.Coins(s.Total).Clone(),
		Available:      types.Coins(s.Available).Clone(),
		Claimed:        types.Coins(s.Claimed).Clone(),
		GlobalIndex:    s.Global.toGlobalIndex(),
	}
}

type storedConfig struct {
	Owner            string
	EpochManagerAddr string
	UnbondingPeriod  uint64
	GrowthRate       numeric.Decimal
	BondingAssets    []string
	GracePeriod      uint64
}
