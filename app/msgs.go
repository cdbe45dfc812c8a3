package app

import (
	"encoding/json"
	"fmt"
	"sort"

	"whalehub/core/epoch"
	"whalehub/core/types"
	"whalehub/native/bonding"
	"whalehub/native/incentive"
)

// Msg is an executable message addressed to one module.
type Msg interface {
	// Route names the module that handles the message. Attached funds are
	// moved into that module's account before execution.
	Route() string
	// Type is the registry name used on the wire.
	Type() string
}

// Epoch manager messages.
type (
	CreateEpochMsg struct{}

	AddHookMsg struct {
		Hook string `json:"hook"`
	}

	RemoveHookMsg struct {
		Hook string `json:"hook"`
	}

	UpdateEpochConfigMsg struct {
		Owner  *string       `json:"owner,omitempty"`
		Config *epoch.Config `json:"epoch_config,omitempty"`
	}
)

func (CreateEpochMsg) Route() string       { return epoch.ModuleName }
func (CreateEpochMsg) Type() string        { return "epoch/create_epoch" }
func (AddHookMsg) Route() string           { return epoch.ModuleName }
func (AddHookMsg) Type() string            { return "epoch/add_hook" }
func (RemoveHookMsg) Route() string        { return epoch.ModuleName }
func (RemoveHookMsg) Type() string         { return "epoch/remove_hook" }
func (UpdateEpochConfigMsg) Route() string { return epoch.ModuleName }
func (UpdateEpochConfigMsg) Type() string  { return "epoch/update_config" }

// Bonding manager messages.
type (
	BondMsg struct {
		Asset types.Coin `json:"asset"`
	}

	UnbondMsg struct {
		Asset types.Coin `json:"asset"`
	}

	WithdrawMsg struct {
		Denom string `json:"denom"`
	}

	ClaimBondingMsg struct{}

	FillRewardsMsg struct{}

	UpdateBondingConfigMsg struct {
		bonding.UpdateConfigMsg
	}
)

func (BondMsg) Route() string                { return bonding.ModuleName }
func (BondMsg) Type() string                 { return "bonding/bond" }
func (UnbondMsg) Route() string              { return bonding.ModuleName }
func (UnbondMsg) Type() string               { return "bonding/unbond" }
func (WithdrawMsg) Route() string            { return bonding.ModuleName }
func (WithdrawMsg) Type() string             { return "bonding/withdraw" }
func (ClaimBondingMsg) Route() string        { return bonding.ModuleName }
func (ClaimBondingMsg) Type() string         { return "bonding/claim" }
func (FillRewardsMsg) Route() string         { return bonding.ModuleName }
func (FillRewardsMsg) Type() string          { return "bonding/fill_rewards" }
func (UpdateBondingConfigMsg) Route() string { return bonding.ModuleName }
func (UpdateBondingConfigMsg) Type() string  { return "bonding/update_config" }

// Incentive manager messages.
type (
	FillIncentiveMsg struct {
		incentive.IncentiveParams
	}

	CloseIncentiveMsg struct {
		Identifier string `json:"incentive_identifier"`
	}

	FillPositionMsg struct {
		Identifier        string `json:"identifier,omitempty"`
		UnlockingDuration uint64 `json:"unlocking_duration"`
		Receiver          string `json:"receiver,omitempty"`
	}

	ClosePositionMsg struct {
		Identifier string      `json:"identifier"`
		LPAsset    *types.Coin `json:"lp_asset,omitempty"`
	}

	WithdrawPositionMsg struct {
		Identifier      string `json:"identifier"`
		EmergencyUnlock bool   `json:"emergency_unlock"`
	}

	WithdrawMaturedMsg struct{}

	ClaimIncentivesMsg struct{}

	UpdateIncentiveConfigMsg struct {
		incentive.UpdateConfigMsg
	}
)

func (FillIncentiveMsg) Route() string         { return incentive.ModuleName }
func (FillIncentiveMsg) Type() string          { return "incentive/fill_incentive" }
func (CloseIncentiveMsg) Route() string        { return incentive.ModuleName }
func (CloseIncentiveMsg) Type() string         { return "incentive/close_incentive" }
func (FillPositionMsg) Route() string          { return incentive.ModuleName }
func (FillPositionMsg) Type() string           { return "incentive/fill_position" }
func (ClosePositionMsg) Route() string         { return incentive.ModuleName }
func (ClosePositionMsg) Type() string          { return "incentive/close_position" }
func (WithdrawPositionMsg) Route() string      { return incentive.ModuleName }
func (WithdrawPositionMsg) Type() string       { return "incentive/withdraw_position" }
func (WithdrawMaturedMsg) Route() string       { return incentive.ModuleName }
func (WithdrawMaturedMsg) Type() string        { return "incentive/withdraw_matured" }
func (ClaimIncentivesMsg) Route() string       { return incentive.ModuleName }
func (ClaimIncentivesMsg) Type() string        { return "incentive/claim" }
func (UpdateIncentiveConfigMsg) Route() string { return incentive.ModuleName }
func (UpdateIncentiveConfigMsg) Type() string  { return "incentive/update_config" }

var registry = map[string]func() Msg{}

func register(factory func() Msg) {
	registry[factory().Type()] = factory
}

func init() {
	register(func() Msg { return &CreateEpochMsg{} })
	register(func() Msg { return &AddHookMsg{} })
	register(func() Msg { return &RemoveHookMsg{} })
	register(func() Msg { return &UpdateEpochConfigMsg{} })
	register(func() Msg { return &BondMsg{} })
	register(func() Msg { return &UnbondMsg{} })
	register(func() Msg { return &WithdrawMsg{} })
	register(func() Msg { return &ClaimBondingMsg{} })
	register(func() Msg { return &FillRewardsMsg{} })
	register(func() Msg { return &UpdateBondingConfigMsg{} })
	register(func() Msg { return &FillIncentiveMsg{} })
	register(func() Msg { return &CloseIncentiveMsg{} })
	register(func() Msg { return &FillPositionMsg{} })
	register(func() Msg { return &ClosePositionMsg{} })
	register(func() Msg { return &WithdrawPositionMsg{} })
	register(func() Msg { return &WithdrawMaturedMsg{} })
	register(func() Msg { return &ClaimIncentivesMsg{} })
	register(func() Msg { return &UpdateIncentiveConfigMsg{} })
}

// MsgTypes lists every registered message type in lexical order.
func MsgTypes() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DecodeMsg builds the message registered under msgType from its JSON body.
// An empty body decodes to the zero message.
func DecodeMsg(msgType string, raw json.RawMessage) (Msg, error) {
	factory, ok := registry[msgType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMsg, msgType)
	}
	msg := factory()
	if len(raw) == 0 || string(raw) == "null" {
		return msg, nil
	}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", msgType, err)
	}
	return msg, nil
}

// Envelope is the wire form of a transaction.
type Envelope struct {
	Type   string          `json:"type"`
	Sender string          `json:"sender"`
	Funds  types.Coins     `json:"funds,omitempty"`
	Msg    json.RawMessage `json:"msg,omitempty"`
}

// Decode returns the message carried by the envelope.
func (e Envelope) Decode() (Msg, error) { return DecodeMsg(e.Type, e.Msg) }

// NewEnvelope encodes msg for the wire.
func NewEnvelope(sender string, funds types.Coins, msg Msg) (Envelope, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msg.Type(), Sender: sender, Funds: funds, Msg: body}, nil
}
