package incentive

import (
	"math/big"

	"whalehub/core/events"
	"whalehub/core/numeric"
	"whalehub/core/types"
)

// Claim pays out the incentive rewards the sender accrued since the last
// claim.
func (e *Engine) Claim(info types.MessageInfo) (*types.Response, error) {
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
	if last, ok, err := e.state.LastClaimedGet(info.Sender); err != nil {
		return nil, err
	} else if ok && last == current.ID {
		return types.NewResponse("claim"), nil
	}
	open := true
	positions, err := e.state.PositionsByReceiver(info.Sender, &open)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, ErrNoOpenPositions
	}

	total, modified, err := e.calculateRewards(info.Sender, current.ID, cfg, false)
	if err != nil {
		return nil, err
	}
	if total.IsZero() {
		return nil, ErrNothingToClaim
	}
	for _, inc := range modified {
		if err := e.state.IncentivePut(inc); err != nil {
			return nil, err
		}
	}
	if err := e.state.LastClaimedPut(info.Sender, current.ID); err != nil {
		return nil, err
	}

	resp := types.NewResponse("claim")
	for _, coin := range total {
		resp.AddMessage(types.BankSend{To: info.Sender, Amount: types.Coins{coin}})
	}
	resp.Data = total.Clone()
	e.emit(events.RewardsClaimed{Module: ModuleName, Address: info.Sender, Epoch: current.ID, Amount: total.Clone()})
	return resp.
		AddAttribute("address", info.Sender).
		AddAttribute("epoch_id", formatID(current.ID)).
		AddAttribute("rewards", total.String()), nil
}

// ensureNoPendingRewards fails when addr has rewards to claim first. Epochs
// without an LP weight snapshot cannot be paid out and do not count.
func (e *Engine) ensureNoPendingRewards(addr string, current uint64, cfg *Config) error {
	if last, ok, err := e.state.LastClaimedGet(addr); err != nil {
		return err
	} else if ok && last == current {
		return nil
	}
	total, _, err := e.calculateRewards(addr, current, cfg, true)
	if err != nil {
		return err
	}
	if !total.IsZero() {
		return ErrPendingRewards
	}
	return nil
}

// calculateRewards computes what addr can claim at epoch current from every
// incentive of the LP denoms it holds open positions in. It returns the
// incentives with the claim applied but does not persist them. An epoch the
// address holds weight in but that has no LP snapshot fails the calculation
// unless skipMissing is set, in which case it pays nothing.
func (e *Engine) calculateRewards(addr string, current uint64, cfg *Config, skipMissing bool) (types.Coins, []*Incentive, error) {
	last, claimedBefore, err := e.state.LastClaimedGet(addr)
	if err != nil {
		return nil, nil, err
	}
	open := true
	positions, err := e.state.PositionsByReceiver(addr, &open)
	if err != nil {
		return nil, nil, err
	}
	if len(positions) == 0 {
		return nil, nil, nil
	}
	denoms := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		denoms[p.LPAsset.Denom] = struct{}{}
	}
	incentives, err := e.state.IncentivesByStart()
	if err != nil {
		return nil, nil, err
	}

	histories := make(map[string][2]weightHistory, len(denoms))
	var (
		total    types.Coins
		modified []*Incentive
	)
	for _, inc := range incentives {
		if _, held := denoms[inc.LPDenom]; !held || inc.StartEpoch > current {
			continue
		}
		h, loaded := histories[inc.LPDenom]
		if !loaded {
			own, err := e.state.AddressWeights(addr, inc.LPDenom)
			if err != nil {
				return nil, nil, err
			}
			lp, err := e.state.LPWeights(inc.LPDenom)
			if err != nil {
				return nil, nil, err
			}
			h = [2]weightHistory{own, lp}
			histories[inc.LPDenom] = h
		}
		own, lp := h[0], h[1]
		if len(own) == 0 {
			continue
		}

		from := own[0].Epoch
		if claimedBefore {
			from = last + 1
		}
		if inc.StartEpoch > from {
			from = inc.StartEpoch
		}
		if g := cfg.graceStart(current); g > from {
			from = g
		}
		until := current
		if inc.PreliminaryEndEpoch-1 < until {
			until = inc.PreliminaryEndEpoch - 1
		}

		sum := numeric.Zero()
		for ep := from; ep <= until; ep++ {
			userWeight, _ := own.latest(ep)
			if userWeight.Sign() == 0 {
				continue
			}
			lpWeight, ok := lp.at(ep)
			if !ok || lpWeight.Sign() == 0 {
				if skipMissing {
					continue
				}
				return nil, nil, &GlobalWeightSnapshotNotTakenError{Epoch: ep}
			}
			emission, err := inc.Curve.Emission(inc, ep)
			if err != nil {
				return nil, nil, err
			}
			reward, err := numeric.MulDivFloor(emission, numeric.Min(userWeight, lpWeight), lpWeight)
			if err != nil {
				return nil, nil, err
			}
			// Never pay more than is left of the epoch's emission or of the
			// incentive itself.
			reward = numeric.Min(reward, numeric.SaturatingSub(emission, inc.emittedAt(ep)))
			unclaimed := numeric.SaturatingSub(inc.IncentiveAsset.Amount, inc.ClaimedAmount)
			reward = numeric.Min(reward, numeric.SaturatingSub(unclaimed, sum))
			if reward.Sign() == 0 {
				continue
			}
			emitted, err := numeric.CheckedAdd(inc.emittedAt(ep), reward)
			if err != nil {
				return nil, nil, err
			}
			if inc.EmittedTokens == nil {
				inc.EmittedTokens = map[uint64]*big.Int{}
			}
			inc.EmittedTokens[ep] = emitted
			sum.Add(sum, reward)
		}
		if sum.Sign() == 0 {
			continue
		}
		claimed, err := numeric.CheckedAdd(inc.ClaimedAmount, sum)
		if err != nil {
			return nil, nil, err
		}
		if claimed.Cmp(inc.IncentiveAsset.Amount) > 0 {
			return nil, nil, ErrIncentiveExhausted
		}
		inc.ClaimedAmount = claimed
		inc.LastEpochClaimed = current
		if total, err = total.Add(types.NewCoinBig(inc.IncentiveAsset.Denom, sum)); err != nil {
			return nil, nil, err
		}
		modified = append(modified, inc)
	}
	return total, modified, nil
}
