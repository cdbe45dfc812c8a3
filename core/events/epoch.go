package events

import (
	"strconv"

	"whalehub/core/types"
)

const (
	TypeEpochCreated  = "epoch.created"
	TypeHookAdded     = "epoch.hookAdded"
	TypeHookRemoved   = "epoch.hookRemoved"
	TypeHookDelivered = "epoch.hookDelivered"
	TypeHookFailed    = "epoch.hookFailed"
)

// EpochCreated signals that the epoch clock advanced.
type EpochCreated struct {
	ID        uint64
	StartTime int64
}

// EventType implements the Event interface.
func (EpochCreated) EventType() string { return TypeEpochCreated }

// Event converts the struct into a types.Event payload.
func (e EpochCreated) Event() *types.Event {
	return &types.Event{Type: TypeEpochCreated, Attributes: map[string]string{
		"epoch_id":   formatUint(e.ID),
		"start_time": strconv.FormatInt(e.StartTime, 10),
	}}
}

// HookChanged records a hook registration change.
type HookChanged struct {
	Hook    string
	Removed bool
}

// EventType implements the Event interface.
func (e HookChanged) EventType() string {
	if e.Removed {
		return TypeHookRemoved
	}
	return TypeHookAdded
}

// Event converts the struct into a types.Event payload.
func (e HookChanged) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{"hook": e.Hook}}
}

// HookDelivery reports the outcome of an epoch-changed notification.
type HookDelivery struct {
	Hook          string
	Epoch         uint64
	CorrelationID string
	Err           string
}

// EventType implements the Event interface.
func (e HookDelivery) EventType() string {
	if e.Err != "" {
		return TypeHookFailed
	}
	return TypeHookDelivered
}

// Event converts the struct into a types.Event payload.
func (e HookDelivery) Event() *types.Event {
	attrs := map[string]string{
		"hook":           e.Hook,
		"epoch_id":       formatUint(e.Epoch),
		"correlation_id": e.CorrelationID,
	}
	if e.Err != "" {
		attrs["error"] = e.Err
	}
	return &types.Event{Type: e.EventType(), Attributes: attrs}
}
