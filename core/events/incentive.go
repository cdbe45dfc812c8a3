package events

import (
	"math/big"

	"whalehub/core/types"
)

const (
	TypeIncentiveCreated  = "incentive.created"
	TypeIncentiveExpanded = "incentive.expanded"
	TypeIncentiveReset    = "incentive.reset"
	TypeIncentiveClosed   = "incentive.closed"
	TypePositionFilled    = "position.filled"
	TypePositionClosed    = "position.closed"
	TypePositionWithdrawn = "position.withdrawn"
)

// IncentiveCreated captures a new emission schedule.
type IncentiveCreated struct {
	Identifier string
	Owner      string
	LPDenom    string
	Asset      types.Coin
	StartEpoch uint64
	EndEpoch   uint64
	Rate       *big.Int
}

// EventType implements the Event interface.
func (IncentiveCreated) EventType() string { return TypeIncentiveCreated }

// Event converts the struct into a types.Event payload.
func (e IncentiveCreated) Event() *types.Event {
	return &types.Event{Type: TypeIncentiveCreated, Attributes: map[string]string{
		"identifier":  e.Identifier,
		"owner":       e.Owner,
		"lp_denom":    e.LPDenom,
		"asset":       e.Asset.String(),
		"start_epoch": formatUint(e.StartEpoch),
		"end_epoch":   formatUint(e.EndEpoch),
		"rate":        formatAmount(e.Rate),
	}}
}

// IncentiveExpanded captures an expansion, or a reset when Reset is set.
type IncentiveExpanded struct {
	Identifier string
	Added      types.Coin
	StartEpoch uint64
	EndEpoch   uint64
	Rate       *big.Int
	Reset      bool
}

// EventType implements the Event interface.
func (e IncentiveExpanded) EventType() string {
	if e.Reset {
		return TypeIncentiveReset
	}
	return TypeIncentiveExpanded
}

// Event converts the struct into a types.Event payload.
func (e IncentiveExpanded) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{
		"identifier":  e.Identifier,
		"added":       e.Added.String(),
		"start_epoch": formatUint(e.StartEpoch),
		"end_epoch":   formatUint(e.EndEpoch),
		"rate":        formatAmount(e.Rate),
	}}
}

// IncentiveClosed captures the removal of an incentive and its refund.
type IncentiveClosed struct {
	Identifier string
	Refund     types.Coin
	Expired    bool
}

// EventType implements the Event interface.
func (IncentiveClosed) EventType() string { return TypeIncentiveClosed }

// Event converts the struct into a types.Event payload.
func (e IncentiveClosed) Event() *types.Event {
	expired := "false"
	if e.Expired {
		expired = "true"
	}
	return &types.Event{Type: TypeIncentiveClosed, Attributes: map[string]string{
		"identifier": e.Identifier,
		"refund":     e.Refund.String(),
		"expired":    expired,
	}}
}

// PositionChanged captures fill, close and withdraw transitions of a position.
type PositionChanged struct {
	Type       string
	Identifier string
	Receiver   string
	Asset      types.Coin
	Duration   uint64
	Penalty    *big.Int
}

// EventType implements the Event interface.
func (e PositionChanged) EventType() string { return e.Type }

// Event converts the struct into a types.Event payload.
func (e PositionChanged) Event() *types.Event {
	attrs := map[string]string{
		"identifier": e.Identifier,
		"receiver":   e.Receiver,
		"asset":      e.Asset.String(),
		"duration":   formatUint(e.Duration),
	}
	if e.Penalty != nil {
		attrs["penalty"] = e.Penalty.String()
	}
	return &types.Event{Type: e.Type, Attributes: attrs}
}
