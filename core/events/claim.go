package events

import "whalehub/core/types"

const (
	TypeBondingRewardsClaimed   = TypeBondingClaimed
	TypeIncentiveRewardsClaimed = "incentive.claimed"
)

// RewardsClaimed captures a settled claim. Module is "bonding" or "incentive".
type RewardsClaimed struct {
	Module  string
	Address string
	Epoch   uint64
	Amount  types.Coins
}

// EventType implements the Event interface.
func (e RewardsClaimed) EventType() string {
	if e.Module == "incentive" {
		return TypeIncentiveRewardsClaimed
	}
	return TypeBondingRewardsClaimed
}

// Event converts the struct into a types.Event payload.
func (e RewardsClaimed) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{
		"address":  e.Address,
		"epoch_id": formatUint(e.Epoch),
		"amount":   formatCoins(e.Amount),
	}}
}
