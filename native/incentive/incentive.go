package incentive

import (
	"fmt"
	"math/big"

	"whalehub/core/epoch"
	"whalehub/core/events"
	"whalehub/core/numeric"
	"whalehub/core/types"
)

// FillIncentive expands the incentive named by params.Identifier when it
// exists and creates a new one otherwise.
func (e *Engine) FillIncentive(info types.MessageInfo, env types.BlockInfo, params IncentiveParams) (*types.Response, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	current, err := e.epochs.CurrentEpoch()
	if err != nil {
		return nil, err
	}
	if params.Identifier != "" {
		inc, ok, err := e.state.IncentiveGet(params.Identifier)
		if err != nil {
			return nil, err
		}
		if ok {
			return e.expandIncentive(info, current, cfg, inc, params)
		}
	}
	return e.createIncentive(info, env, current, cfg, params)
}

func (e *Engine) createIncentive(info types.MessageInfo, env types.BlockInfo, current epoch.Epoch, cfg *Config, params IncentiveParams) (*types.Response, error) {
	if current.ID != 0 && env.Time.After(current.StartTime.Add(epochWindow)) {
		return nil, ErrEpochExpired
	}
	if err := params.IncentiveAsset.Validate(); err != nil {
		return nil, err
	}
	if params.LPDenom == "" {
		return nil, fmt.Errorf("%w: lp denom required", types.ErrInvalidDenom)
	}
	curve := CurveLinear
	if params.Curve != nil {
		curve = *params.Curve
	}
	if err := curve.Validate(); err != nil {
		return nil, err
	}

	resp := types.NewResponse("fill_incentive").AddAttribute("kind", "create")

	existing, err := e.state.IncentivesByLP(params.LPDenom)
	if err != nil {
		return nil, err
	}
	active := 0
	for _, inc := range existing {
		if !inc.IsExpired(current.ID) {
			active++
			continue
		}
		if err := e.removeIncentive(resp, inc, true); err != nil {
			return nil, err
		}
	}
	if active >= int(cfg.MaxConcurrentIncentives) {
		return nil, &TooManyIncentivesError{Max: cfg.MaxConcurrentIncentives}
	}
	if numeric.Cmp(params.IncentiveAsset.Amount, MinIncentiveAmount()) < 0 {
		return nil, &InvalidIncentiveAmountError{Min: MinIncentiveAmount()}
	}

	funds, err := types.NewCoins(info.Funds...)
	if err != nil {
		return nil, err
	}
	if err := e.collectFee(resp, info.Sender, funds, cfg.CreateIncentiveFee, params.IncentiveAsset); err != nil {
		return nil, err
	}

	start := current.ID
	if params.StartEpoch != nil {
		start = *params.StartEpoch
	}
	end := start + DefaultIncentiveDuration
	if params.PreliminaryEndEpoch != nil {
		end = *params.PreliminaryEndEpoch
	}
	if err := validateIncentiveEpochs(current.ID, start, end, cfg); err != nil {
		return nil, err
	}

	id, err := e.state.NextIncentiveID()
	if err != nil {
		return nil, err
	}
	identifier := params.Identifier
	if identifier == "" {
		identifier = formatID(id)
	}
	if _, exists, err := e.state.IncentiveGet(identifier); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrIncentiveAlreadyExists
	}

	amount := numeric.Clone(params.IncentiveAsset.Amount)
	rate, err := numeric.CheckedDiv(amount, numeric.NewUint(end-start))
	if err != nil {
		return nil, err
	}
	lastClaimed := uint64(0)
	if current.ID > 0 {
		lastClaimed = current.ID - 1
	}
	inc := &Incentive{
		Identifier:          identifier,
		ID:                  id,
		Owner:               info.Sender,
		LPDenom:             params.LPDenom,
		IncentiveAsset:      params.IncentiveAsset.Clone(),
		ClaimedAmount:       numeric.Zero(),
		EmissionRate:        rate,
		Curve:               curve,
		StartEpoch:          start,
		PreliminaryEndEpoch: end,
		LastEpochClaimed:    lastClaimed,
		AssetHistory: []AssetHistoryEntry{{
			Epoch:    start,
			Amount:   numeric.Clone(amount),
			EndEpoch: end,
			Rate:     numeric.Clone(rate),
		}},
		EmittedTokens: map[uint64]*big.Int{},
	}
	if err := e.state.IncentivePut(inc); err != nil {
		return nil, err
	}
	e.emit(events.IncentiveCreated{
		Identifier: inc.Identifier,
		Owner:      inc.Owner,
		LPDenom:    inc.LPDenom,
		Asset:      inc.IncentiveAsset.Clone(),
		StartEpoch: start,
		EndEpoch:   end,
		Rate:       numeric.Clone(rate),
	})
	return resp.
		AddAttribute("incentive_identifier", inc.Identifier).
		AddAttribute("lp_denom", inc.LPDenom).
		AddAttribute("incentive_asset", inc.IncentiveAsset.String()).
		AddAttribute("start_epoch", formatID(start)).
		AddAttribute("end_epoch", formatID(end)).
		AddAttribute("emission_rate", rate.String()), nil
}

// collectFee checks the attached funds cover the incentive asset and the
// creation fee. The fee is forwarded to the bonding manager and any
// overpayment in a separate fee denom is refunded.
func (e *Engine) collectFee(resp *types.Response, sender string, funds types.Coins, fee, asset types.Coin) error {
	expected := numeric.Clone(asset.Amount)
	if !fee.IsZero() {
		paid := funds.AmountOf(fee.Denom)
		if paid.Sign() == 0 {
			return ErrIncentiveFeeMissing
		}
		if paid.Cmp(fee.Amount) < 0 {
			return &IncentiveFeeNotPaidError{Paid: paid, Required: numeric.Clone(fee.Amount)}
		}
		if fee.Denom == asset.Denom {
			sum, err := numeric.CheckedAdd(asset.Amount, fee.Amount)
			if err != nil {
				return err
			}
			if paid.Cmp(sum) != 0 {
				return ErrAssetMismatch
			}
			expected = sum
		} else if paid.Cmp(fee.Amount) > 0 {
			refund := new(big.Int).Sub(paid, fee.Amount)
			resp.AddMessage(types.BankSend{To: sender, Amount: types.Coins{types.NewCoinBig(fee.Denom, refund)}})
			resp.AddAttribute("fee_refund", refund.String()+fee.Denom)
		}
		resp.AddMessage(types.FillRewards{Amount: types.Coins{fee.Clone()}})
	}
	if funds.AmountOf(asset.Denom).Cmp(expected) != 0 {
		return ErrAssetMismatch
	}
	for _, coin := range funds {
		if coin.Denom != asset.Denom && (fee.IsZero() || coin.Denom != fee.Denom) {
			return ErrAssetMismatch
		}
	}
	return nil
}

func validateIncentiveEpochs(current, start, end uint64, cfg *Config) error {
	if start >= end {
		return ErrIncentiveStartTimeAfterEndTime
	}
	if end <= current {
		return ErrIncentiveEndsInPast
	}
	if start > current+uint64(cfg.MaxIncentiveEpochBuffer) {
		return ErrIncentiveStartTooFar
	}
	return nil
}

// expandIncentive adds funds to an existing incentive. The new balance is
// spread over the remaining epochs from the next one onwards. An incentive
// that would span more than IncentiveExpansionLimit epochs is reset to start
// at the current epoch instead.
func (e *Engine) expandIncentive(info types.MessageInfo, current epoch.Epoch, cfg *Config, inc *Incentive, params IncentiveParams) (*types.Response, error) {
	if info.Sender != inc.Owner {
		return nil, ErrUnauthorized
	}
	c := current.ID
	if inc.IsExpired(c) {
		return nil, ErrIncentiveAlreadyExpired
	}
	sent, err := types.OneCoin(info.Funds)
	if err != nil {
		return nil, ErrAssetMismatch
	}
	if sent.Denom != inc.IncentiveAsset.Denom || params.IncentiveAsset.Denom != inc.IncentiveAsset.Denom {
		return nil, ErrAssetMismatch
	}
	if numeric.Cmp(sent.Amount, params.IncentiveAsset.Amount) != 0 {
		return nil, ErrAssetMismatch
	}
	total, err := numeric.CheckedAdd(inc.IncentiveAsset.Amount, sent.Amount)
	if err != nil {
		return nil, err
	}

	end := inc.PreliminaryEndEpoch
	if end < c+1 {
		end = c + 1
	}
	if c+IncentiveExpansionBuffer >= inc.PreliminaryEndEpoch {
		end += DefaultIncentiveDuration
	}

	if end-inc.StartEpoch > IncentiveExpansionLimit {
		return e.resetIncentive(c, inc, total, sent)
	}

	outstanding, err := e.outstanding(c, cfg, inc)
	if err != nil {
		return nil, err
	}
	from := c + 1
	if from < inc.StartEpoch {
		from = inc.StartEpoch
	}
	unreserved := numeric.SaturatingSub(numeric.SaturatingSub(total, inc.ClaimedAmount), outstanding)
	rate, err := numeric.CheckedDiv(unreserved, numeric.NewUint(end-from))
	if err != nil {
		return nil, err
	}
	inc.IncentiveAsset.Amount = total
	inc.PreliminaryEndEpoch = end
	inc.EmissionRate = rate
	inc.setSchedule(AssetHistoryEntry{Epoch: from, Amount: numeric.Clone(total), EndEpoch: end, Rate: numeric.Clone(rate)})
	if err := e.state.IncentivePut(inc); err != nil {
		return nil, err
	}
	e.emit(events.IncentiveExpanded{
		Identifier: inc.Identifier,
		Added:      sent.Clone(),
		StartEpoch: inc.StartEpoch,
		EndEpoch:   end,
		Rate:       numeric.Clone(rate),
	})
	return types.NewResponse("fill_incentive").
		AddAttribute("kind", "expand").
		AddAttribute("incentive_identifier", inc.Identifier).
		AddAttribute("added", sent.String()).
		AddAttribute("end_epoch", formatID(end)).
		AddAttribute("emission_rate", rate.String()), nil
}

// outstanding sums what the incentive still owes for epochs up to c that are
// inside the claim grace period and have not been claimed yet.
func (e *Engine) outstanding(c uint64, cfg *Config, inc *Incentive) (*big.Int, error) {
	lo := inc.StartEpoch
	if g := cfg.graceStart(c); g > lo {
		lo = g
	}
	hi := c
	if inc.PreliminaryEndEpoch > 0 && inc.PreliminaryEndEpoch-1 < hi {
		hi = inc.PreliminaryEndEpoch - 1
	}
	sum := numeric.Zero()
	for ep := lo; ep <= hi; ep++ {
		emission, err := inc.Curve.Emission(inc, ep)
		if err != nil {
			return nil, err
		}
		if sum, err = numeric.CheckedAdd(sum, numeric.SaturatingSub(emission, inc.emittedAt(ep))); err != nil {
			return nil, err
		}
	}
	return sum, nil
}

func (e *Engine) resetIncentive(c uint64, inc *Incentive, total *big.Int, sent types.Coin) (*types.Response, error) {
	if err := e.state.IncentiveDelete(inc); err != nil {
		return nil, err
	}
	principal := numeric.SaturatingSub(total, inc.ClaimedAmount)
	rate, err := numeric.CheckedDiv(principal, numeric.NewUint(DefaultIncentiveDuration))
	if err != nil {
		return nil, err
	}
	end := c + DefaultIncentiveDuration
	inc.IncentiveAsset.Amount = principal
	inc.ClaimedAmount = numeric.Zero()
	inc.StartEpoch = c
	inc.PreliminaryEndEpoch = end
	inc.EmissionRate = rate
	inc.AssetHistory = []AssetHistoryEntry{{Epoch: c, Amount: numeric.Clone(principal), EndEpoch: end, Rate: numeric.Clone(rate)}}
	inc.EmittedTokens = map[uint64]*big.Int{}
	inc.LastEpochClaimed = 0
	if c > 0 {
		inc.LastEpochClaimed = c - 1
	}
	if err := e.state.IncentivePut(inc); err != nil {
		return nil, err
	}
	e.emit(events.IncentiveExpanded{
		Identifier: inc.Identifier,
		Added:      sent.Clone(),
		StartEpoch: c,
		EndEpoch:   end,
		Rate:       numeric.Clone(rate),
		Reset:      true,
	})
	e.logger.Info("incentive reset",
		"identifier", inc.Identifier,
		"start_epoch", c,
		"principal", principal.String())
	return types.NewResponse("fill_incentive").
		AddAttribute("kind", "reset").
		AddAttribute("incentive_identifier", inc.Identifier).
		AddAttribute("added", sent.String()).
		AddAttribute("end_epoch", formatID(end)).
		AddAttribute("emission_rate", rate.String()), nil
}

// CloseIncentive refunds the unclaimed balance of an incentive to its owner
// and removes it. The incentive owner or the contract owner may close it
// while it has not expired.
func (e *Engine) CloseIncentive(info types.MessageInfo, identifier string) (*types.Response, error) {
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
	inc, ok, err := e.state.IncentiveGet(identifier)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNonExistentIncentive, identifier)
	}
	current, err := e.epochs.CurrentEpoch()
	if err != nil {
		return nil, err
	}
	if inc.IsExpired(current.ID) || (info.Sender != inc.Owner && info.Sender != cfg.Owner) {
		return nil, ErrUnauthorized
	}
	resp := types.NewResponse("close_incentive")
	if err := e.removeIncentive(resp, inc, false); err != nil {
		return nil, err
	}
	return resp.AddAttribute("incentive_identifier", inc.Identifier), nil
}

// removeIncentive deletes inc and refunds its unclaimed balance to the owner.
func (e *Engine) removeIncentive(resp *types.Response, inc *Incentive, expired bool) error {
	refund := types.NewCoinBig(inc.IncentiveAsset.Denom, numeric.SaturatingSub(inc.IncentiveAsset.Amount, inc.ClaimedAmount))
	if err := e.state.IncentiveDelete(inc); err != nil {
		return err
	}
	if !refund.IsZero() {
		resp.AddMessage(types.BankSend{To: inc.Owner, Amount: types.Coins{refund}})
	}
	e.emit(events.IncentiveClosed{Identifier: inc.Identifier, Refund: refund.Clone(), Expired: expired})
	resp.AddAttribute("closed_"+inc.Identifier, refund.String())
	return nil
}
