package bonding

import (
	"math/big"

	"whalehub/core/epoch"
	"whalehub/core/events"
	"whalehub/core/numeric"
	"whalehub/core/types"
	"whalehub/crypto"
)

// Bond stakes asset for the sender. The attached funds must match asset
// exactly.
func (e *Engine) Bond(info types.MessageInfo, env types.BlockInfo, asset types.Coin) (*types.Response, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	sender, err := crypto.ValidateAddress(e.prefix, info.Sender)
	if err != nil {
		return nil, err
	}
	if err := validateBondFunds(info.Funds, asset, cfg); err != nil {
		return nil, err
	}
	current, err := e.currentEpoch()
	if err != nil {
		return nil, err
	}
	if err := e.validateBondingWindow(sender, env, current, cfg); err != nil {
		return nil, err
	}

	bonding := true
	existing, err := e.state.BondsByReceiver(sender, &bonding, asset.Denom)
	if err != nil {
		return nil, err
	}
	var bond *Bond
	if len(existing) > 0 {
		bond = existing[0]
		if err := e.updateBondWeight(current.ID, bond, cfg); err != nil {
			return nil, err
		}
	} else {
		id, err := e.state.NextBondID()
		if err != nil {
			return nil, err
		}
		bond = &Bond{
			ID:             id,
			Asset:          types.NewCoinBig(asset.Denom, numeric.Zero()),
			Weight:         numeric.Zero(),
			CreatedAtEpoch: current.ID,
			LastUpdated:    current.ID,
			Receiver:       sender,
		}
	}
	if bond.Asset.Amount, err = numeric.CheckedAdd(bond.Asset.Amount, asset.Amount); err != nil {
		return nil, err
	}
	if bond.Weight, err = numeric.CheckedAdd(bond.Weight, asset.Amount); err != nil {
		return nil, err
	}
	if err := e.state.BondPut(bond); err != nil {
		return nil, err
	}

	global, err := e.loadGlobal(current.ID, cfg)
	if err != nil {
		return nil, err
	}
	if global.LastWeight, err = numeric.CheckedAdd(global.LastWeight, asset.Amount); err != nil {
		return nil, err
	}
	if global.BondedAmount, err = numeric.CheckedAdd(global.BondedAmount, asset.Amount); err != nil {
		return nil, err
	}
	if global.BondedAssets, err = global.BondedAssets.Add(asset); err != nil {
		return nil, err
	}
	if err := e.state.GlobalPut(global); err != nil {
		return nil, err
	}
	if err := e.state.LastClaimedPut(sender, current.ID); err != nil {
		return nil, err
	}

	e.emit(events.Bonded{Address: sender, Asset: asset.Clone(), Weight: numeric.Clone(bond.Weight)})
	return types.NewResponse("bond").
		AddAttribute("address", sender).
		AddAttribute("asset", asset.String()), nil
}

// Unbond starts unbonding asset from the sender's bond. The weight removed is
// proportional to the share of the bond being unbonded.
func (e *Engine) Unbond(info types.MessageInfo, env types.BlockInfo, asset types.Coin) (*types.Response, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !info.Funds.IsZero() {
		return nil, ErrNonPayable
	}
	if numeric.IsZero(asset.Amount) {
		return nil, ErrInvalidUnbondingAmount
	}
	if err := asset.Validate(); err != nil {
		return nil, err
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	sender, err := crypto.ValidateAddress(e.prefix, info.Sender)
	if err != nil {
		return nil, err
	}
	current, err := e.currentEpoch()
	if err != nil {
		return nil, err
	}
	if err := e.validateBondingWindow(sender, env, current, cfg); err != nil {
		return nil, err
	}

	bonding := true
	existing, err := e.state.BondsByReceiver(sender, &bonding, asset.Denom)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, ErrNothingToUnbond
	}
	bond := existing[0]
	if numeric.Cmp(bond.Asset.Amount, asset.Amount) < 0 {
		return nil, ErrInsufficientBond
	}
	if err := e.updateBondWeight(current.ID, bond, cfg); err != nil {
		return nil, err
	}
	ratio, err := numeric.DecimalFromRatio(asset.Amount, bond.Asset.Amount)
	if err != nil {
		return nil, err
	}
	slash, err := ratio.MulFloor(bond.Weight)
	if err != nil {
		return nil, err
	}
	bond.Weight = numeric.SaturatingSub(bond.Weight, slash)
	bond.Asset.Amount = numeric.SaturatingSub(bond.Asset.Amount, asset.Amount)
	if bond.Asset.IsZero() {
		err = e.state.BondDelete(bond)
	} else {
		err = e.state.BondPut(bond)
	}
	if err != nil {
		return nil, err
	}

	id, err := e.state.NextBondID()
	if err != nil {
		return nil, err
	}
	unbondedAt := uint64(env.Time.Unix())
	if err := e.state.BondPut(&Bond{
		ID:             id,
		Asset:          asset.Clone(),
		Weight:         numeric.Zero(),
		CreatedAtEpoch: current.ID,
		LastUpdated:    current.ID,
		UnbondedAt:     &unbondedAt,
		Receiver:       sender,
	}); err != nil {
		return nil, err
	}

	global, err := e.loadGlobal(current.ID, cfg)
	if err != nil {
		return nil, err
	}
	global.BondedAmount = numeric.SaturatingSub(global.BondedAmount, asset.Amount)
	global.LastWeight = numeric.SaturatingSub(global.LastWeight, slash)
	if global.BondedAssets, err = global.BondedAssets.Sub(asset); err != nil {
		return nil, err
	}
	if err := e.state.GlobalPut(global); err != nil {
		return nil, err
	}
	if err := e.state.LastClaimedPut(sender, current.ID); err != nil {
		return nil, err
	}

	e.emit(events.Bonded{Address: sender, Asset: asset.Clone(), Weight: slash, Unbond: true})
	return types.NewResponse("unbond").
		AddAttribute("address", sender).
		AddAttribute("asset", asset.String()).
		AddAttribute("unbond_id", formatID(id)), nil
}

// Withdraw pays out every matured unbonding request of denom.
func (e *Engine) Withdraw(info types.MessageInfo, denom string) (*types.Response, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !info.Funds.IsZero() {
		return nil, ErrNonPayable
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	sender, err := crypto.ValidateAddress(e.prefix, info.Sender)
	if err != nil {
		return nil, err
	}
	current, err := e.currentEpoch()
	if err != nil {
		return nil, err
	}
	matured, total, err := e.maturedUnbonds(sender, denom, current.ID, cfg)
	if err != nil {
		return nil, err
	}
	if len(matured) == 0 || numeric.IsZero(total) {
		return nil, ErrNothingToWithdraw
	}
	for _, b := range matured {
		if err := e.state.BondDelete(b); err != nil {
			return nil, err
		}
	}
	payout := types.NewCoinBig(denom, total)
	e.emit(events.BondWithdrawn{Address: sender, Amount: payout.Clone()})
	return types.NewResponse("withdraw").
		AddAttribute("address", sender).
		AddAttribute("amount", payout.String()).
		AddMessage(types.BankSend{To: sender, Amount: types.Coins{payout}}), nil
}

func (e *Engine) maturedUnbonds(addr, denom string, current uint64, cfg *Config) ([]*Bond, *big.Int, error) {
	unbonding := false
	bonds, err := e.state.BondsByReceiver(addr, &unbonding, denom)
	if err != nil {
		return nil, nil, err
	}
	total := numeric.Zero()
	var matured []*Bond
	for _, b := range bonds {
		if current < b.CreatedAtEpoch || current-b.CreatedAtEpoch < cfg.UnbondingPeriod {
			continue
		}
		if total, err = numeric.CheckedAdd(total, b.Asset.Amount); err != nil {
			return nil, nil, err
		}
		matured = append(matured, b)
	}
	return matured, total, nil
}

// loadGlobal returns the global index brought forward to current.
func (e *Engine) loadGlobal(current uint64, cfg *Config) (GlobalIndex, error) {
	global, ok, err := e.state.GlobalGet()
	if err != nil {
		return GlobalIndex{}, err
	}
	if !ok {
		global = newGlobalIndex()
		global.EpochID = current
		global.LastUpdated = current
	}
	return e.updateGlobalWeight(current, global, cfg)
}

func validateBondFunds(funds types.Coins, asset types.Coin, cfg *Config) error {
	if funds.IsZero() {
		return ErrNoFunds
	}
	if err := asset.Validate(); err != nil {
		return ErrAssetMismatch
	}
	paid, err := types.OneCoin(funds)
	if err != nil {
		return ErrAssetMismatch
	}
	if paid.Denom != asset.Denom || numeric.Cmp(paid.Amount, asset.Amount) != 0 {
		return ErrAssetMismatch
	}
	if !cfg.acceptsDenom(asset.Denom) {
		return ErrAssetMismatch
	}
	return nil
}

// validateBondingWindow checks the preconditions shared by Bond and Unbond: a
// reward bucket exists, the user has no rewards left to claim and the current
// epoch is not overdue.
func (e *Engine) validateBondingWindow(addr string, env types.BlockInfo, current epoch.Epoch, cfg *Config) error {
	has, err := e.state.HasBuckets()
	if err != nil {
		return err
	}
	if !has {
		return ErrNoRewardBuckets
	}
	pending, _, err := e.calculateRewards(addr, current.ID, cfg)
	if err != nil {
		return err
	}
	if !pending.IsZero() {
		return ErrUnclaimedRewards
	}
	if current.ID != 0 && env.Time.After(current.StartTime.Add(bondingWindow)) {
		return ErrNewEpochNotCreatedYet
	}
	return nil
}
