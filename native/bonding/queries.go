package bonding

import (
	"math/big"

	"whalehub/core/numeric"
	"whalehub/core/types"
)

// Config returns the stored configuration.
func (e *Engine) Config() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.config()
}

// Bonded returns what addr has bonded, or the global totals when addr is nil.
func (e *Engine) Bonded(addr *string) (BondedResponse, error) {
	if e == nil || e.state == nil {
		return BondedResponse{}, errNilState
	}
	if addr == nil {
		global, _, err := e.state.GlobalGet()
		if err != nil {
			return BondedResponse{}, err
		}
		return BondedResponse{TotalBonded: global.BondedAmount, BondedAssets: global.BondedAssets}, nil
	}
	bonding := true
	bonds, err := e.state.BondsByReceiver(*addr, &bonding, "")
	if err != nil {
		return BondedResponse{}, err
	}
	resp := BondedResponse{TotalBonded: numeric.Zero()}
	for _, b := range bonds {
		if resp.TotalBonded, err = numeric.CheckedAdd(resp.TotalBonded, b.Asset.Amount); err != nil {
			return BondedResponse{}, err
		}
		if resp.BondedAssets, err = resp.BondedAssets.Add(b.Asset); err != nil {
			return BondedResponse{}, err
		}
		if resp.FirstBondedEpochID == nil || b.CreatedAtEpoch < *resp.FirstBondedEpochID {
			first := b.CreatedAtEpoch
			resp.FirstBondedEpochID = &first
		}
	}
	return resp, nil
}

// Unbonding lists the pending unbonding requests of addr for denom.
func (e *Engine) Unbonding(addr, denom string) (UnbondingResponse, error) {
	if e == nil || e.state == nil {
		return UnbondingResponse{}, errNilState
	}
	unbonding := false
	bonds, err := e.state.BondsByReceiver(addr, &unbonding, denom)
	if err != nil {
		return UnbondingResponse{}, err
	}
	resp := UnbondingResponse{TotalAmount: numeric.Zero(), UnbondingRequests: make([]Bond, 0, len(bonds))}
	for _, b := range bonds {
		if resp.TotalAmount, err = numeric.CheckedAdd(resp.TotalAmount, b.Asset.Amount); err != nil {
			return UnbondingResponse{}, err
		}
		resp.UnbondingRequests = append(resp.UnbondingRequests, *b)
	}
	return resp, nil
}

// Withdrawable returns the matured unbonding amount of addr for denom.
func (e *Engine) Withdrawable(addr, denom string) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	current, err := e.currentEpoch()
	if err != nil {
		return nil, err
	}
	_, total, err := e.maturedUnbonds(addr, denom, current.ID, cfg)
	return total, err
}

// Weight returns the weight of addr and its share of the global weight at
// epochID, defaulting to the current epoch.
func (e *Engine) Weight(addr string, epochID *uint64) (WeightResponse, error) {
	if err := e.ready(); err != nil {
		return WeightResponse{}, err
	}
	cfg, err := e.config()
	if err != nil {
		return WeightResponse{}, err
	}
	at := uint64(0)
	if epochID != nil {
		at = *epochID
	} else {
		current, err := e.currentEpoch()
		if err != nil {
			return WeightResponse{}, err
		}
		at = current.ID
	}
	bonding := true
	bonds, err := e.state.BondsByReceiver(addr, &bonding, "")
	if err != nil {
		return WeightResponse{}, err
	}
	userWeight, err := bondsWeight(bonds, at, cfg)
	if err != nil {
		return WeightResponse{}, err
	}
	global, _, err := e.state.GlobalGet()
	if err != nil {
		return WeightResponse{}, err
	}
	globalWeight, err := getWeight(at, global.LastWeight, global.BondedAmount, cfg.GrowthRate, global.LastUpdated)
	if err != nil {
		return WeightResponse{}, err
	}
	resp := WeightResponse{Address: addr, Weight: userWeight, GlobalWeight: globalWeight, EpochID: at}
	if !numeric.IsZero(globalWeight) {
		if resp.Share, err = numeric.DecimalFromRatio(userWeight, globalWeight); err != nil {
			return WeightResponse{}, err
		}
	}
	return resp, nil
}

// GlobalIndex returns the live global index, or the snapshot stored in a
// reward bucket when bucketID is set.
func (e *Engine) GlobalIndex(bucketID *uint64) (GlobalIndex, error) {
	if e == nil || e.state == nil {
		return GlobalIndex{}, errNilState
	}
	if bucketID == nil {
		global, _, err := e.state.GlobalGet()
		return global, err
	}
	bucket, err := e.RewardBucket(*bucketID)
	if err != nil {
		return GlobalIndex{}, err
	}
	return bucket.GlobalIndex, nil
}

// Claimable lists the reward buckets addr can claim from. A nil addr lists
// every bucket still inside the grace period.
func (e *Engine) Claimable(addr *string) ([]*RewardBucket, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	current, err := e.currentEpoch()
	if err != nil {
		return nil, err
	}
	if addr == nil {
		return e.claimableBuckets("", current.ID, cfg)
	}
	if *addr == "" {
		return nil, nil
	}
	return e.claimableBuckets(*addr, current.ID, cfg)
}

// Rewards returns what addr would receive by claiming now.
func (e *Engine) Rewards(addr string) (types.Coins, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	current, err := e.currentEpoch()
	if err != nil {
		return nil, err
	}
	total, _, err := e.calculateRewards(addr, current.ID, cfg)
	if err != nil {
		return nil, err
	}
	if total == nil {
		total = types.Coins{}
	}
	return total, nil
}

// RewardBucket returns the bucket created for epoch id.
func (e *Engine) RewardBucket(id uint64) (*RewardBucket, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	bucket, ok, err := e.state.BucketGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRewardBucketNotFound
	}
	return bucket, nil
}
