package bonding

import (
	"fmt"
	"math/big"
	"strconv"

	"whalehub/core/epoch"
	"whalehub/core/events"
	"whalehub/core/numeric"
	"whalehub/core/types"
	"whalehub/crypto"
)

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }

// FillRewards adds the attached funds to the upcoming reward bucket. They are
// distributed once the next epoch is created.
func (e *Engine) FillRewards(info types.MessageInfo) (*types.Response, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.config(); err != nil {
		return nil, err
	}
	funds, err := types.NewCoins(info.Funds...)
	if err != nil {
		return nil, err
	}
	if funds.IsZero() {
		return nil, ErrNoFunds
	}
	upcoming, err := e.state.UpcomingGet()
	if err != nil {
		return nil, err
	}
	if upcoming, err = upcoming.Add(funds...); err != nil {
		return nil, err
	}
	if err := e.state.UpcomingPut(upcoming); err != nil {
		return nil, err
	}
	e.emit(events.RewardsFilled{Sender: info.Sender, Amount: funds.Clone()})
	return types.NewResponse("fill_rewards").
		AddAttribute("amount", funds.String()), nil
}

// OnEpochChanged is the epoch hook. It creates the reward bucket of the new
// epoch from the upcoming rewards, snapshots the global index into it and
// forwards whatever is left in the bucket falling out of the grace period.
// Replaying the hook for an epoch that already has a bucket is a no-op.
func (e *Engine) OnEpochChanged(info types.MessageInfo, ep epoch.Epoch) (*types.Response, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if info.Sender != cfg.EpochManagerAddr {
		return nil, ErrUnauthorized
	}
	if !info.Funds.IsZero() {
		return nil, ErrNonPayable
	}
	if _, exists, err := e.state.BucketGet(ep.ID); err != nil {
		return nil, err
	} else if exists {
		return types.NewResponse("epoch_changed_hook").
			AddAttribute("epoch_id", formatID(ep.ID)).
			AddAttribute("replayed", "true"), nil
	}

	global, ok, err := e.state.GlobalGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		global = newGlobalIndex()
		global.LastUpdated = ep.ID
	}
	global.EpochID = ep.ID
	if numeric.IsZero(global.BondedAmount) {
		global.LastUpdated = ep.ID
	}
	if err := e.state.GlobalPut(global); err != nil {
		return nil, err
	}

	upcoming, err := e.state.UpcomingGet()
	if err != nil {
		return nil, err
	}
	total, err := types.NewCoins(upcoming...)
	if err != nil {
		return nil, err
	}
	bucket := &RewardBucket{
		ID:             ep.ID,
		EpochStartTime: ep.StartTime,
		Total:          total.Clone(),
		Available:      total.Clone(),
		GlobalIndex:    global,
	}

	var forwarded types.Coins
	if ep.ID > cfg.GracePeriod {
		expiring, found, err := e.state.BucketGet(ep.ID - cfg.GracePeriod)
		if err != nil {
			return nil, err
		}
		if found && !expiring.Available.IsZero() {
			forwarded = expiring.Available.Clone()
			if bucket.Total, err = bucket.Total.Add(forwarded...); err != nil {
				return nil, err
			}
			if bucket.Available, err = bucket.Available.Add(forwarded...); err != nil {
				return nil, err
			}
			expiring.Available = nil
			if err := e.state.BucketPut(expiring); err != nil {
				return nil, err
			}
		}
	}
	if err := e.state.BucketPut(bucket); err != nil {
		return nil, err
	}
	if err := e.state.UpcomingPut(nil); err != nil {
		return nil, err
	}

	e.logger.Info("reward bucket created",
		"bucket", ep.ID,
		"total", bucket.Total.String(),
		"forwarded", forwarded.String(),
		"global_weight", global.LastWeight.String())
	e.emit(events.RewardBucketCreated{ID: ep.ID, Total: bucket.Total.Clone(), Forwarded: forwarded, Weight: numeric.Clone(global.LastWeight)})
	return types.NewResponse("epoch_changed_hook").
		AddAttribute("epoch_id", formatID(ep.ID)).
		AddAttribute("total", bucket.Total.String()), nil
}

// Claim pays the sender's share of every claimable reward bucket.
func (e *Engine) Claim(info types.MessageInfo) (*types.Response, error) {
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
	last, ok, err := e.state.LastClaimedGet(sender)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNothingToClaim
	}
	if last == current.ID {
		return types.NewResponse("claim").AddAttribute("address", sender), nil
	}
	total, buckets, err := e.calculateRewards(sender, current.ID, cfg)
	if err != nil {
		return nil, err
	}
	if total.IsZero() {
		return nil, ErrNothingToClaim
	}
	for _, b := range buckets {
		if err := e.state.BucketPut(b); err != nil {
			return nil, err
		}
	}
	if err := e.state.LastClaimedPut(sender, current.ID); err != nil {
		return nil, err
	}

	e.logger.Debug("bonding rewards claimed", "address", sender, "epoch", current.ID, "amount", total.String())
	e.emit(events.RewardsClaimed{Module: ModuleName, Address: sender, Epoch: current.ID, Amount: total.Clone()})
	resp := types.NewResponse("claim").
		AddAttribute("address", sender).
		AddAttribute("amount", total.String()).
		AddMessage(types.BankSend{To: sender, Amount: total.Clone()})
	resp.Data = total.Clone()
	return resp, nil
}

// claimableBuckets lists the buckets within the grace period of current. With
// a non-empty addr the list is narrowed to buckets the address has not
// claimed yet and that still hold rewards.
func (e *Engine) claimableBuckets(addr string, current uint64, cfg *Config) ([]*RewardBucket, error) {
	from := uint64(0)
	if current >= cfg.GracePeriod {
		from = current - cfg.GracePeriod + 1
	}
	if addr != "" {
		last, ok, err := e.state.LastClaimedGet(addr)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		if last+1 > from {
			from = last + 1
		}
	}
	buckets, err := e.state.BucketsFrom(from)
	if err != nil {
		return nil, err
	}
	out := buckets[:0]
	for _, b := range buckets {
		if b.ID > current {
			break
		}
		if addr != "" && b.Available.IsZero() {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// calculateRewards returns the rewards addr can claim at current together
// with the buckets updated as if the claim went through. Nothing is written.
func (e *Engine) calculateRewards(addr string, current uint64, cfg *Config) (types.Coins, []*RewardBucket, error) {
	buckets, err := e.claimableBuckets(addr, current, cfg)
	if err != nil || len(buckets) == 0 {
		return nil, nil, err
	}
	bonding := true
	bonds, err := e.state.BondsByReceiver(addr, &bonding, "")
	if err != nil {
		return nil, nil, err
	}
	if len(bonds) == 0 {
		return nil, nil, nil
	}

	var total types.Coins
	updated := make([]*RewardBucket, 0, len(buckets))
	for _, bucket := range buckets {
		userWeight, err := bondsWeight(bonds, bucket.ID, cfg)
		if err != nil {
			return nil, nil, err
		}
		gi := bucket.GlobalIndex
		globalWeight, err := getWeight(bucket.ID, gi.LastWeight, gi.BondedAmount, cfg.GrowthRate, gi.LastUpdated)
		if err != nil {
			return nil, nil, err
		}
		if numeric.IsZero(globalWeight) || numeric.IsZero(userWeight) {
			continue
		}
		share, err := numeric.DecimalFromRatio(userWeight, globalWeight)
		if err != nil {
			return nil, nil, err
		}
		if share.IsZero() {
			continue
		}
		// Bonds floor their growth one by one while the global weight floors
		// it in aggregate, so the ratio can land a hair above one.
		if share.Cmp(numeric.OneDecimal()) > 0 {
			share = numeric.OneDecimal()
		}
		rewards, err := bucketShare(bucket, share)
		if err != nil {
			return nil, nil, err
		}
		if rewards.IsZero() {
			continue
		}
		if total, err = total.Add(rewards...); err != nil {
			return nil, nil, err
		}
		updated = append(updated, bucket)
	}
	return total, updated, nil
}

// bucketShare applies share to every denom of the bucket total and moves the
// result from available to claimed. A reward never exceeds what the bucket
// still holds, so the last claimant of a bucket gets the remainder.
func bucketShare(bucket *RewardBucket, share numeric.Decimal) (types.Coins, error) {
	var rewards types.Coins
	for _, coin := range bucket.Total {
		amount, err := share.MulFloor(coin.Amount)
		if err != nil {
			return nil, err
		}
		amount = numeric.Min(amount, bucket.Available.AmountOf(coin.Denom))
		if numeric.IsZero(amount) {
			continue
		}
		reward := types.NewCoinBig(coin.Denom, amount)
		available, err := bucket.Available.Sub(reward)
		if err != nil {
			return nil, err
		}
		claimed, err := bucket.Claimed.Add(reward)
		if err != nil {
			return nil, err
		}
		if numeric.Cmp(claimed.AmountOf(coin.Denom), coin.Amount) > 0 {
			return nil, fmt.Errorf("%w: claimed %s exceeds total %s", ErrInvalidShare, claimed, bucket.Total)
		}
		bucket.Available = available
		bucket.Claimed = claimed
		if rewards, err = rewards.Add(reward); err != nil {
			return nil, err
		}
	}
	return rewards, nil
}

func bondsWeight(bonds []*Bond, at uint64, cfg *Config) (*big.Int, error) {
	total := numeric.Zero()
	for _, b := range bonds {
		w, err := getWeight(at, b.Weight, b.Asset.Amount, cfg.GrowthRate, b.LastUpdated)
		if err != nil {
			return nil, err
		}
		if total, err = numeric.CheckedAdd(total, w); err != nil {
			return nil, err
		}
	}
	return total, nil
}
