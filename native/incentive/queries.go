package incentive

import (
	"math/big"

	"whalehub/core/types"
)

const (
	defaultQueryLimit = 10
	maxQueryLimit     = 100
)

// Config returns the stored configuration.
func (e *Engine) Config() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.config()
}

// Incentives lists incentives in identifier order after startAfter. When
// filter names an identifier only that incentive is returned.
func (e *Engine) Incentives(filter IncentivesFilter, startAfter string, limit int) ([]*Incentive, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if filter.Identifier != "" {
		inc, ok, err := e.state.IncentiveGet(filter.Identifier)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNonExistentIncentive
		}
		return []*Incentive{inc}, nil
	}
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	var keep func(*Incentive) bool
	switch {
	case filter.LPDenom != "":
		keep = func(inc *Incentive) bool { return inc.LPDenom == filter.LPDenom }
	case filter.IncentiveDenom != "":
		keep = func(inc *Incentive) bool { return inc.IncentiveAsset.Denom == filter.IncentiveDenom }
	}
	return e.state.Incentives(startAfter, limit, keep)
}

// Positions lists the positions of addr, optionally only open or closed ones.
func (e *Engine) Positions(addr string, open *bool) ([]*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.PositionsByReceiver(addr, open)
}

func (e *Engine) Position(identifier string) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	p, ok, err := e.state.PositionGet(identifier)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNonExistentPosition
	}
	return p, nil
}

// Rewards returns what addr could claim right now.
func (e *Engine) Rewards(addr string) (types.Coins, error) {
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
	if last, ok, err := e.state.LastClaimedGet(addr); err != nil {
		return nil, err
	} else if ok && last == current.ID {
		return types.Coins{}, nil
	}
	total, _, err := e.calculateRewards(addr, current.ID, cfg, false)
	if err != nil {
		return nil, err
	}
	if total == nil {
		total = types.Coins{}
	}
	return total, nil
}

// Weight returns the weight addr holds in denom at epoch together with the LP
// total. Address weights carry forward from their latest change.
func (e *Engine) Weight(addr, denom string, epochID uint64) (WeightResponse, error) {
	if e == nil || e.state == nil {
		return WeightResponse{}, errNilState
	}
	own, err := e.state.AddressWeights(addr, denom)
	if err != nil {
		return WeightResponse{}, err
	}
	lp, err := e.state.LPWeights(denom)
	if err != nil {
		return WeightResponse{}, err
	}
	weight, _ := own.latest(epochID)
	total, _ := lp.latest(epochID)
	return WeightResponse{Address: addr, LPDenom: denom, EpochID: epochID, Weight: weight, LPWeight: total}, nil
}

// LPWeight returns the LP weight snapshot taken for epoch.
func (e *Engine) LPWeight(denom string, epochID uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	lp, err := e.state.LPWeights(denom)
	if err != nil {
		return nil, err
	}
	weight, ok := lp.at(epochID)
	if !ok {
		return nil, &GlobalWeightSnapshotNotTakenError{Epoch: epochID}
	}
	return weight, nil
}
