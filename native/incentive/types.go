package incentive

import (
	"math/big"
	"sort"

	"whalehub/core/numeric"
	"whalehub/core/types"
)

const (
	// DefaultIncentiveDuration is the length of an incentive, in epochs, when
	// no end epoch is given.
	DefaultIncentiveDuration uint64 = 14
	// IncentiveExpansionBuffer is how close to its end an incentive must be
	// for an expansion to push the end epoch out.
	IncentiveExpansionBuffer uint64 = 5
	// IncentiveExpansionLimit caps the epochs an incentive may span before an
	// expansion resets it.
	IncentiveExpansionLimit uint64 = 180
)

// MinIncentiveAmount is the smallest amount an incentive can be created with.
func MinIncentiveAmount() *big.Int { return big.NewInt(1_000) }

// Config holds the incentive manager parameters.
type Config struct {
	Owner                   string          `json:"owner"`
	BondingManagerAddr      string          `json:"bonding_manager_addr"`
	EpochManagerAddr        string          `json:"epoch_manager_addr"`
	CreateIncentiveFee      types.Coin      `json:"create_incentive_fee"`
	MaxConcurrentIncentives uint32          `json:"max_concurrent_incentives"`
	MaxIncentiveEpochBuffer uint32          `json:"max_incentive_epoch_buffer"`
	MinUnlockingDuration    uint64          `json:"min_unlocking_duration"`
	MaxUnlockingDuration    uint64          `json:"max_unlocking_duration"`
	EmergencyUnlockPenalty  numeric.Decimal `json:"emergency_unlock_penalty"`
	ClaimGracePeriod        uint64          `json:"claim_grace_period"`
}

// InstantiateMsg configures a fresh incentive manager.
type InstantiateMsg struct {
	BondingManagerAddr      string          `json:"bonding_manager_addr" yaml:"bonding_manager_addr"`
	EpochManagerAddr        string          `json:"epoch_manager_addr" yaml:"epoch_manager_addr"`
	CreateIncentiveFee      types.Coin      `json:"create_incentive_fee" yaml:"-"`
	MaxConcurrentIncentives uint32          `json:"max_concurrent_incentives" yaml:"max_concurrent_incentives"`
	MaxIncentiveEpochBuffer uint32          `json:"max_incentive_epoch_buffer" yaml:"max_incentive_epoch_buffer"`
	MinUnlockingDuration    uint64          `json:"min_unlocking_duration" yaml:"min_unlocking_duration"`
	MaxUnlockingDuration    uint64          `json:"max_unlocking_duration" yaml:"max_unlocking_duration"`
	EmergencyUnlockPenalty  numeric.Decimal `json:"emergency_unlock_penalty" yaml:"emergency_unlock_penalty"`
	ClaimGracePeriod        uint64          `json:"claim_grace_period" yaml:"claim_grace_period"`
}

// UpdateConfigMsg carries optional config changes. Nil fields are left as is.
type UpdateConfigMsg struct {
	Owner                   *string          `json:"owner,omitempty"`
	BondingManagerAddr      *string          `json:"bonding_manager_addr,omitempty"`
	EpochManagerAddr        *string          `json:"epoch_manager_addr,omitempty"`
	CreateIncentiveFee      *types.Coin      `json:"create_incentive_fee,omitempty"`
	MaxConcurrentIncentives *uint32          `json:"max_concurrent_incentives,omitempty"`
	MaxIncentiveEpochBuffer *uint32          `json:"max_incentive_epoch_buffer,omitempty"`
	MinUnlockingDuration    *uint64          `json:"min_unlocking_duration,omitempty"`
	MaxUnlockingDuration    *uint64          `json:"max_unlocking_duration,omitempty"`
	EmergencyUnlockPenalty  *numeric.Decimal `json:"emergency_unlock_penalty,omitempty"`
	ClaimGracePeriod        *uint64          `json:"claim_grace_period,omitempty"`
}

// IncentiveParams describes an incentive to create or expand.
type IncentiveParams struct {
	LPDenom             string     `json:"lp_denom"`
	StartEpoch          *uint64    `json:"start_epoch,omitempty"`
	PreliminaryEndEpoch *uint64    `json:"preliminary_end_epoch,omitempty"`
	Curve               *Curve     `json:"curve,omitempty"`
	IncentiveAsset      types.Coin `json:"incentive_asset"`
	Identifier          string     `json:"incentive_identifier,omitempty"`
}

// AssetHistoryEntry records the schedule in force from Epoch onwards.
type AssetHistoryEntry struct {
	Epoch    uint64   `json:"epoch"`
	Amount   *big.Int `json:"amount"`
	EndEpoch uint64   `json:"end_epoch"`
	Rate     *big.Int `json:"rate"`
}

// Incentive is a funded emission schedule for stakers of an LP denom.
type Incentive struct {
	Identifier          string              `json:"identifier"`
	ID                  uint64              `json:"id"`
	Owner               string              `json:"owner"`
	LPDenom             string              `json:"lp_denom"`
	IncentiveAsset      types.Coin          `json:"incentive_asset"`
	ClaimedAmount       *big.Int            `json:"claimed_amount"`
	EmissionRate        *big.Int            `json:"emission_rate"`
	Curve               Curve               `json:"curve"`
	StartEpoch          uint64              `json:"start_epoch"`
	PreliminaryEndEpoch uint64              `json:"preliminary_end_epoch"`
	LastEpochClaimed    uint64              `json:"last_epoch_claimed"`
	AssetHistory        []AssetHistoryEntry `json:"asset_history"`
	EmittedTokens       map[uint64]*big.Int `json:"emitted_tokens"`
}

// IsExpired reports whether the incentive can no longer pay out meaningful
// rewards at epoch: either less than MinIncentiveAmount is left, or nobody
// has claimed from it for DefaultIncentiveDuration epochs.
func (i *Incentive) IsExpired(epoch uint64) bool {
	remaining := numeric.SaturatingSub(i.IncentiveAsset.Amount, i.ClaimedAmount)
	if remaining.Cmp(MinIncentiveAmount()) < 0 {
		return true
	}
	return epoch >= i.LastEpochClaimed+DefaultIncentiveDuration
}

// scheduleAt returns the history entry in force at epoch.
func (i *Incentive) scheduleAt(epoch uint64) (AssetHistoryEntry, bool) {
	idx := sort.Search(len(i.AssetHistory), func(n int) bool { return i.AssetHistory[n].Epoch > epoch })
	if idx == 0 {
		return AssetHistoryEntry{}, false
	}
	return i.AssetHistory[idx-1], true
}

// setSchedule records entry, replacing one already recorded for the same
// epoch.
func (i *Incentive) setSchedule(entry AssetHistoryEntry) {
	for n := range i.AssetHistory {
		if i.AssetHistory[n].Epoch == entry.Epoch {
			i.AssetHistory[n] = entry
			return
		}
	}
	i.AssetHistory = append(i.AssetHistory, entry)
	sort.Slice(i.AssetHistory, func(a, b int) bool { return i.AssetHistory[a].Epoch < i.AssetHistory[b].Epoch })
}

func (i *Incentive) emittedAt(epoch uint64) *big.Int {
	if i.EmittedTokens == nil {
		return numeric.Zero()
	}
	return numeric.Clone(i.EmittedTokens[epoch])
}

// Position is an LP deposit locked for an unlocking duration.
type Position struct {
	Identifier        string     `json:"identifier"`
	LPAsset           types.Coin `json:"lp_asset"`
	UnlockingDuration uint64     `json:"unlocking_duration"`
	Open              bool       `json:"open"`
	ExpiringAt        *uint64    `json:"expiring_at,omitempty"`
	Receiver          string     `json:"receiver"`
	// Weight is what the position currently adds to the LP and receiver
	// weights. It is zero once the position is closed.
	Weight            *big.Int   `json:"weight"`
}

// IncentivesFilter narrows the incentives query. At most one field is used,
// in the order Identifier, LPDenom, IncentiveDenom.
type IncentivesFilter struct {
	Identifier     string `json:"identifier,omitempty"`
	LPDenom        string `json:"lp_denom,omitempty"`
	IncentiveDenom string `json:"incentive_denom,omitempty"`
}

// WeightResponse reports an address weight together with the LP total.
type WeightResponse struct {
	Address  string   `json:"address"`
	LPDenom  string   `json:"lp_denom"`
	EpochID  uint64   `json:"epoch_id"`
	Weight   *big.Int `json:"weight"`
	LPWeight *big.Int `json:"lp_weight"`
}

type storedConfig struct {
	Owner                   string
	BondingManagerAddr      string
	EpochManagerAddr        string
	FeeDenom                string
	FeeAmount               *big.Int
	MaxConcurrentIncentives uint32
	MaxIncentiveEpochBuffer uint32
	MinUnlockingDuration    uint64
	MaxUnlockingDuration    uint64
	EmergencyUnlockPenalty  numeric.Decimal
	ClaimGracePeriod        uint64
}

func newStoredConfig(c *Config) *storedConfig {
	return &storedConfig{
		Owner:                   c.Owner,
		BondingManagerAddr:      c.BondingManagerAddr,
		EpochManagerAddr:        c.EpochManagerAddr,
		FeeDenom:                c.CreateIncentiveFee.Denom,
		FeeAmount:               numeric.Clone(c.CreateIncentiveFee.Amount),
		MaxConcurrentIncentives: c.MaxConcurrentIncentives,
		MaxIncentiveEpochBuffer: c.MaxIncentiveEpochBuffer,
		MinUnlockingDuration:    c.MinUnlockingDuration,
		MaxUnlockingDuration:    c.MaxUnlockingDuration,
		EmergencyUnlockPenalty:  c.EmergencyUnlockPenalty,
		ClaimGracePeriod:        c.ClaimGracePeriod,
	}
}

func (s *storedConfig) toConfig() *Config {
	return &Config{
		Owner:                   s.Owner,
		BondingManagerAddr:      s.BondingManagerAddr,
		EpochManagerAddr:        s.EpochManagerAddr,
		CreateIncentiveFee:      types.NewCoinBig(s.FeeDenom, s.FeeAmount),
		MaxConcurrentIncentives: s.MaxConcurrentIncentives,
		MaxIncentiveEpochBuffer: s.MaxIncentiveEpochBuffer,
		MinUnlockingDuration:    s.MinUnlockingDuration,
		MaxUnlockingDuration:    s.MaxUnlockingDuration,
		EmergencyUnlockPenalty:  s.EmergencyUnlockPenalty,
		ClaimGracePeriod:        s.ClaimGracePeriod,
	}
}

type storedHistoryEntry struct {
	Epoch    uint64
	Amount   *big.Int
	EndEpoch uint64
	Rate     *big.Int
}

type storedEmission struct {
	Epoch  uint64
	Amount *big.Int
}

type storedIncentive struct {
	Identifier          string
	ID                  uint64
	Owner               string
	LPDenom             string
	Denom               string
	Amount              *big.Int
	ClaimedAmount       *big.Int
	EmissionRate        *big.Int
	Curve               uint8
	StartEpoch          uint64
	PreliminaryEndEpoch uint64
	LastEpochClaimed    uint64
	History             []storedHistoryEntry
	Emitted             []storedEmission
}

func newStoredIncentive(i *Incentive) *storedIncentive {
	stored := &storedIncentive{
		Identifier:          i.Identifier,
		ID:                  i.ID,
		Owner:               i.Owner,
		LPDenom:             i.LPDenom,
		Denom:               i.IncentiveAsset.Denom,
		Amount:              numeric.Clone(i.IncentiveAsset.Amount),
		ClaimedAmount:       numeric.Clone(i.ClaimedAmount),
		EmissionRate:        numeric.Clone(i.EmissionRate),
		Curve:               uint8(i.Curve),
		StartEpoch:          i.StartEpoch,
		PreliminaryEndEpoch: i.PreliminaryEndEpoch,
		LastEpochClaimed:    i.LastEpochClaimed,
	}
	for _, h := range i.AssetHistory {
		stored.History = append(stored.History, storedHistoryEntry{
			Epoch:    h.Epoch,
			Amount:   numeric.Clone(h.Amount),
			EndEpoch: h.EndEpoch,
			Rate:     numeric.Clone(h.Rate),
		})
	}
	epochs := make([]uint64, 0, len(i.EmittedTokens))
	for epoch := range i.EmittedTokens {
		epochs = append(epochs, epoch)
	}
	sort.Slice(epochs, func(a, b int) bool { return epochs[a] < epochs[b] })
	for _, epoch := range epochs {
		stored.Emitted = append(stored.Emitted, storedEmission{Epoch: epoch, Amount: numeric.Clone(i.EmittedTokens[epoch])})
	}
	return stored
}

func (s *storedIncentive) toIncentive() *Incentive {
	i := &Incentive{
		Identifier:          s.Identifier,
		ID:                  s.ID,
		Owner:               s.Owner,
		LPDenom:             s.LPDenom,
		IncentiveAsset:      types.NewCoinBig(s.Denom, s.Amount),
		ClaimedAmount:       numeric.Clone(s.ClaimedAmount),
		EmissionRate:        numeric.Clone(s.EmissionRate),
		Curve:               Curve(s.Curve),
		StartEpoch:          s.StartEpoch,
		PreliminaryEndEpoch: s.PreliminaryEndEpoch,
		LastEpochClaimed:    s.LastEpochClaimed,
		EmittedTokens:       make(map[uint64]*big.Int, len(s.Emitted)),
	}
	for _, h := range s.History {
		i.AssetHistory = append(i.AssetHistory, AssetHistoryEntry{
			Epoch:    h.Epoch,
			Amount:   numeric.Clone(h.Amount),
			EndEpoch: h.EndEpoch,
			Rate:     numeric.Clone(h.Rate),
		})
	}
	for _, e := range s.Emitted {
		i.EmittedTokens[e.Epoch] = numeric.Clone(e.Amount)
	}
	return i
}

type storedPosition struct {
	Identifier        string
	Denom             string
	Amount            *big.Int
	UnlockingDuration uint64
	Open              bool
	ExpiringAt        uint64
	Receiver          string
	Weight            *big.Int
}

func newStoredPosition(p *Position) *storedPosition {
	stored := &storedPosition{
		Identifier:        p.Identifier,
		Denom:             p.LPAsset.Denom,
		Amount:            numeric.Clone(p.LPAsset.Amount),
		UnlockingDuration: p.UnlockingDuration,
		Open:              p.Open,
		Receiver:          p.Receiver,
		Weight:            numeric.Clone(p.Weight),
	}
	if p.ExpiringAt != nil {
		stored.ExpiringAt = *p.ExpiringAt
	}
	return stored
}

func (s *storedPosition) toPosition() *Position {
	p := &Position{
		Identifier:        s.Identifier,
		LPAsset:           types.NewCoinBig(s.Denom, s.Amount),
		UnlockingDuration: s.UnlockingDuration,
		Open:              s.Open,
		Receiver:          s.Receiver,
		Weight:            numeric.Clone(s.Weight),
	}
	if !s.Open {
		at := s.ExpiringAt
		p.ExpiringAt = &at
	}
	return p
}
