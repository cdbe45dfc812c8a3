package incentive

import (
	"fmt"
	"math/big"

	"whalehub/core/events"
	"whalehub/core/numeric"
	"whalehub/core/types"
	"whalehub/crypto"
)

// FillPosition locks the attached LP tokens for unlockingDuration seconds.
// The tokens are added to the position named by identifier, to an open
// position of the receiver with the same denom and duration, or to a new
// position, in that order of preference.
func (e *Engine) FillPosition(info types.MessageInfo, identifier string, unlockingDuration uint64, receiver string) (*types.Response, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	funds, err := types.NewCoins(info.Funds...)
	if err != nil {
		return nil, err
	}
	if funds.IsZero() {
		return nil, ErrNoFunds
	}
	if len(funds) != 1 {
		return nil, ErrAssetMismatch
	}
	lp := funds[0]
	if err := cfg.checkUnlockingDuration(unlockingDuration); err != nil {
		return nil, err
	}
	if receiver == "" {
		receiver = info.Sender
	} else if receiver, err = crypto.ValidateAddress(e.prefix, receiver); err != nil {
		return nil, err
	}
	current, err := e.epochs.CurrentEpoch()
	if err != nil {
		return nil, err
	}

	var position *Position
	if identifier != "" {
		existing, ok, err := e.state.PositionGet(identifier)
		if err != nil {
			return nil, err
		}
		if ok {
			if existing.Receiver != receiver {
				return nil, ErrUnauthorized
			}
			if !existing.Open {
				return nil, ErrPositionAlreadyClosed
			}
			if existing.LPAsset.Denom != lp.Denom {
				return nil, ErrAssetMismatch
			}
			position = existing
		}
	} else {
		open := true
		positions, err := e.state.PositionsByReceiver(receiver, &open)
		if err != nil {
			return nil, err
		}
		for _, p := range positions {
			if p.LPAsset.Denom == lp.Denom && p.UnlockingDuration == unlockingDuration {
				position = p
				break
			}
		}
	}

	if position != nil {
		amount, err := numeric.CheckedAdd(position.LPAsset.Amount, lp.Amount)
		if err != nil {
			return nil, err
		}
		position.LPAsset.Amount = amount
	} else {
		if identifier == "" {
			if identifier, err = e.nextPositionIdentifier(); err != nil {
				return nil, err
			}
		}
		position = &Position{
			Identifier:        identifier,
			LPAsset:           lp.Clone(),
			UnlockingDuration: unlockingDuration,
			Open:              true,
			Receiver:          receiver,
		}
	}

	added, err := CalculateWeight(lp.Amount, position.UnlockingDuration)
	if err != nil {
		return nil, err
	}
	if position.Weight, err = numeric.CheckedAdd(position.Weight, added); err != nil {
		return nil, err
	}
	if err := e.updateWeights(current.ID, receiver, lp.Denom, added, true); err != nil {
		return nil, err
	}
	if err := e.state.PositionPut(position); err != nil {
		return nil, err
	}
	e.emit(events.PositionChanged{
		Type:       events.TypePositionFilled,
		Identifier: position.Identifier,
		Receiver:   receiver,
		Asset:      lp.Clone(),
		Duration:   position.UnlockingDuration,
	})
	return types.NewResponse("fill_position").
		AddAttribute("position_identifier", position.Identifier).
		AddAttribute("receiver", receiver).
		AddAttribute("lp_asset", lp.String()).
		AddAttribute("unlocking_duration", formatID(position.UnlockingDuration)), nil
}

// ClosePosition starts the unlocking period of a position. A partial close
// splits the given amount off into a new closed position and leaves the rest
// open.
func (e *Engine) ClosePosition(info types.MessageInfo, env types.BlockInfo, identifier string, partial *types.Coin) (*types.Response, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if !info.Funds.IsZero() {
		return nil, ErrNonPayable
	}
	current, err := e.epochs.CurrentEpoch()
	if err != nil {
		return nil, err
	}
	if err := e.ensureNoPendingRewards(info.Sender, current.ID, cfg); err != nil {
		return nil, err
	}
	position, ok, err := e.state.PositionGet(identifier)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNonExistentPosition, identifier)
	}
	if position.Receiver != info.Sender {
		return nil, ErrUnauthorized
	}
	if !position.Open {
		return nil, ErrPositionAlreadyClosed
	}

	expiringAt := unixSeconds(env) + position.UnlockingDuration
	closed := position.LPAsset.Clone()
	closedIdentifier := position.Identifier
	removed := numeric.Clone(position.Weight)
	if partial != nil {
		if partial.Denom != position.LPAsset.Denom || partial.IsZero() || numeric.Cmp(partial.Amount, position.LPAsset.Amount) >= 0 {
			return nil, ErrAssetMismatch
		}
		if removed, err = numeric.MulDivFloor(position.Weight, partial.Amount, position.LPAsset.Amount); err != nil {
			return nil, err
		}
		closed = partial.Clone()
		position.LPAsset.Amount = new(big.Int).Sub(position.LPAsset.Amount, partial.Amount)
		position.Weight = numeric.SaturatingSub(position.Weight, removed)
		if err := e.state.PositionPut(position); err != nil {
			return nil, err
		}
		if closedIdentifier, err = e.nextPositionIdentifier(); err != nil {
			return nil, err
		}
		split := &Position{
			Identifier:        closedIdentifier,
			LPAsset:           closed.Clone(),
			UnlockingDuration: position.UnlockingDuration,
			ExpiringAt:        &expiringAt,
			Receiver:          position.Receiver,
		}
		if err := e.state.PositionPut(split); err != nil {
			return nil, err
		}
	} else {
		position.Open = false
		position.ExpiringAt = &expiringAt
		position.Weight = numeric.Zero()
		if err := e.state.PositionPut(position); err != nil {
			return nil, err
		}
	}

	if err := e.updateWeights(current.ID, info.Sender, closed.Denom, removed, false); err != nil {
		return nil, err
	}
	e.emit(events.PositionChanged{
		Type:       events.TypePositionClosed,
		Identifier: closedIdentifier,
		Receiver:   info.Sender,
		Asset:      closed.Clone(),
		Duration:   position.UnlockingDuration,
	})
	return types.NewResponse("close_position").
		AddAttribute("position_identifier", closedIdentifier).
		AddAttribute("lp_asset", closed.String()).
		AddAttribute("expiring_at", formatID(expiringAt)), nil
}

// WithdrawPosition releases the LP tokens of a position. Without emergency
// the position must be closed and past its unlocking period. An emergency
// withdrawal skips the wait and pays the configured penalty to the bonding
// manager.
func (e *Engine) WithdrawPosition(info types.MessageInfo, env types.BlockInfo, identifier string, emergency bool) (*types.Response, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if !info.Funds.IsZero() {
		return nil, ErrNonPayable
	}
	position, ok, err := e.state.PositionGet(identifier)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNonExistentPosition, identifier)
	}
	if position.Receiver != info.Sender {
		return nil, ErrUnauthorized
	}
	current, err := e.epochs.CurrentEpoch()
	if err != nil {
		return nil, err
	}
	// An emergency exit forfeits unclaimed rewards instead of computing them.
	if !emergency {
		if err := e.ensureNoPendingRewards(info.Sender, current.ID, cfg); err != nil {
			return nil, err
		}
	}

	resp := types.NewResponse("withdraw_position")
	payout := position.LPAsset.Clone()
	var penalty *big.Int
	if emergency {
		penalty, err = cfg.EmergencyUnlockPenalty.MulFloor(position.LPAsset.Amount)
		if err != nil {
			return nil, err
		}
		if penalty.Cmp(position.LPAsset.Amount) >= 0 {
			return nil, ErrInvalidEmergencyUnlockPenalty
		}
		if penalty.Sign() > 0 {
			resp.AddMessage(types.FillRewards{Amount: types.Coins{types.NewCoinBig(position.LPAsset.Denom, penalty)}})
		}
		if position.Open {
			if err := e.updateWeights(current.ID, position.Receiver, position.LPAsset.Denom, position.Weight, false); err != nil {
				return nil, err
			}
		}
		payout.Amount = new(big.Int).Sub(position.LPAsset.Amount, penalty)
		resp.AddAttribute("emergency_penalty", penalty.String()+position.LPAsset.Denom)
	} else {
		if position.Open || position.ExpiringAt == nil {
			return nil, ErrUnauthorized
		}
		if *position.ExpiringAt > unixSeconds(env) {
			return nil, ErrPositionNotExpired
		}
	}

	if err := e.state.PositionDelete(position); err != nil {
		return nil, err
	}
	resp.AddMessage(types.BankSend{To: position.Receiver, Amount: types.Coins{payout}})
	e.emit(events.PositionChanged{
		Type:       events.TypePositionWithdrawn,
		Identifier: position.Identifier,
		Receiver:   position.Receiver,
		Asset:      payout.Clone(),
		Duration:   position.UnlockingDuration,
		Penalty:    penalty,
	})
	return resp.
		AddAttribute("position_identifier", position.Identifier).
		AddAttribute("lp_asset", payout.String()), nil
}

// WithdrawMatured withdraws every closed position of the sender whose
// unlocking period has passed.
func (e *Engine) WithdrawMatured(info types.MessageInfo, env types.BlockInfo) (*types.Response, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := e.config(); err != nil {
		return nil, err
	}
	if !info.Funds.IsZero() {
		return nil, ErrNonPayable
	}
	closed := false
	positions, err := e.state.PositionsByReceiver(info.Sender, &closed)
	if err != nil {
		return nil, err
	}
	now := unixSeconds(env)
	var total types.Coins
	withdrawn := 0
	for _, p := range positions {
		if p.ExpiringAt == nil || *p.ExpiringAt > now {
			continue
		}
		if total, err = total.Add(p.LPAsset); err != nil {
			return nil, err
		}
		if err := e.state.PositionDelete(p); err != nil {
			return nil, err
		}
		e.emit(events.PositionChanged{
			Type:       events.TypePositionWithdrawn,
			Identifier: p.Identifier,
			Receiver:   p.Receiver,
			Asset:      p.LPAsset.Clone(),
			Duration:   p.UnlockingDuration,
		})
		withdrawn++
	}
	if total.IsZero() {
		return nil, ErrNothingToWithdraw
	}
	resp := types.NewResponse("withdraw_matured")
	for _, coin := range total {
		resp.AddMessage(types.BankSend{To: info.Sender, Amount: types.Coins{coin}})
	}
	return resp.
		AddAttribute("positions", formatID(uint64(withdrawn))).
		AddAttribute("amount", total.String()), nil
}

// updateWeights adds weight to, or removes it from, the LP total of denom and
// the weight of addr. The change takes effect from the epoch after current.
func (e *Engine) updateWeights(current uint64, addr, denom string, weight *big.Int, fill bool) error {
	next := current + 1
	apply := func(base *big.Int) (*big.Int, error) {
		if fill {
			return numeric.CheckedAdd(base, weight)
		}
		return numeric.SaturatingSub(base, weight), nil
	}

	lpHistory, err := e.state.LPWeights(denom)
	if err != nil {
		return err
	}
	base, _ := lpHistory.latest(next)
	total, err := apply(base)
	if err != nil {
		return err
	}
	if err := e.state.LPWeightPut(denom, next, total); err != nil {
		return err
	}

	addrHistory, err := e.state.AddressWeights(addr, denom)
	if err != nil {
		return err
	}
	base, _ = addrHistory.latest(next)
	own, err := apply(base)
	if err != nil {
		return err
	}
	if err := e.state.AddressWeightPut(addr, denom, next, own); err != nil {
		return err
	}
	return e.state.LPDenomMark(denom)
}

func (e *Engine) nextPositionIdentifier() (string, error) {
	for {
		id, err := e.state.NextPositionID()
		if err != nil {
			return "", err
		}
		identifier := formatID(id)
		if _, taken, err := e.state.PositionGet(identifier); err != nil {
			return "", err
		} else if !taken {
			return identifier, nil
		}
	}
}

func unixSeconds(env types.BlockInfo) uint64 {
	secs := env.Time.Unix()
	if secs < 0 {
		return 0
	}
	return uint64(secs)
}
