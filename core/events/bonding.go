package events

import (
	"math/big"

	"whalehub/core/types"
)

const (
	TypeBonded              = "bonding.bonded"
	TypeUnbonded            = "bonding.unbonded"
	TypeBondWithdrawn       = "bonding.withdrawn"
	TypeRewardsFilled       = "bonding.rewardsFilled"
	TypeRewardBucketCreated = "bonding.rewardBucketCreated"
	TypeBondingClaimed      = "bonding.claimed"
)

// Bonded captures a bond or unbond of a single asset.
type Bonded struct {
	Address string
	Asset   types.Coin
	Weight  *big.Int
	Unbond  bool
}

// EventType implements the Event interface.
func (e Bonded) EventType() string {
	if e.Unbond {
		return TypeUnbonded
	}
	return TypeBonded
}

// Event converts the struct into a types.Event payload.
func (e Bonded) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{
		"address": e.Address,
		"asset":   e.Asset.String(),
		"weight":  formatAmount(e.Weight),
	}}
}

// BondWithdrawn captures matured unbonding bonds being paid out.
type BondWithdrawn struct {
	Address string
	Amount  types.Coin
}

// EventType implements the Event interface.
func (BondWithdrawn) EventType() string { return TypeBondWithdrawn }

// Event converts the struct into a types.Event payload.
func (e BondWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeBondWithdrawn, Attributes: map[string]string{
		"address": e.Address,
		"amount":  e.Amount.String(),
	}}
}

// RewardsFilled captures funds added to the upcoming reward bucket.
type RewardsFilled struct {
	Sender string
	Amount types.Coins
}

// EventType implements the Event interface.
func (RewardsFilled) EventType() string { return TypeRewardsFilled }

// Event converts the struct into a types.Event payload.
func (e RewardsFilled) Event() *types.Event {
	return &types.Event{Type: TypeRewardsFilled, Attributes: map[string]string{
		"sender": e.Sender,
		"amount": formatCoins(e.Amount),
	}}
}

// RewardBucketCreated captures the bucket snapshot taken on epoch change.
type RewardBucketCreated struct {
	ID        uint64
	Total     types.Coins
	Forwarded types.Coins
	Weight    *big.Int
}

// EventType implements the Event interface.
func (RewardBucketCreated) EventType() string { return TypeRewardBucketCreated }

// Event converts the struct into a types.Event payload.
func (e RewardBucketCreated) Event() *types.Event {
	return &types.Event{Type: TypeRewardBucketCreated, Attributes: map[string]string{
		"bucket_id":     formatUint(e.ID),
		"total":         formatCoins(e.Total),
		"forwarded":     formatCoins(e.Forwarded),
		"global_weight": formatAmount(e.Weight),
	}}
}
