package bonding

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"whalehub/core/epoch"
	"whalehub/core/events"
	"whalehub/core/numeric"
	"whalehub/core/state"
	"whalehub/core/types"
	"whalehub/crypto"
	"whalehub/storage"
)

var (
	genesis      = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	owner        = crypto.AccountFromSeed(crypto.DefaultPrefix, "owner").String()
	alice        = crypto.AccountFromSeed(crypto.DefaultPrefix, "alice").String()
	bob          = crypto.AccountFromSeed(crypto.DefaultPrefix, "bob").String()
	carol        = crypto.AccountFromSeed(crypto.DefaultPrefix, "carol").String()
	epochManager = crypto.ModuleAddress(crypto.DefaultPrefix, "epoch").String()
)

type fakeEpochs struct {
	current epoch.Epoch
}

func (f *fakeEpochs) CurrentEpoch() (epoch.Epoch, error) { return f.current, nil }

type harness struct {
	t      *testing.T
	engine *Engine
	epochs *fakeEpochs
	events *events.Buffer
}

func defaultInstantiate() InstantiateMsg {
	return InstantiateMsg{
		EpochManagerAddr: epochManager,
		UnbondingPeriod:  1,
		GrowthRate:       numeric.MustParseDecimal("0.1"),
		BondingAssets:    []string{"ampWHALE", "bWHALE"},
		GracePeriod:      2,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, engine: NewEngine(), epochs: &fakeEpochs{}, events: events.NewBuffer()}
	h.engine.SetState(NewState(state.NewDBStore(storage.NewMemDB())))
	h.engine.SetEpochSource(h.epochs)
	h.engine.SetEmitter(h.events)
	if _, err := h.engine.Instantiate(types.MessageInfo{Sender: owner}, defaultInstantiate()); err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return h
}

func (h *harness) advance(id uint64) {
	h.t.Helper()
	h.epochs.current = epoch.Epoch{ID: id, StartTime: genesis.Add(time.Duration(id-1) * 24 * time.Hour)}
	if _, err := h.engine.OnEpochChanged(types.MessageInfo{Sender: epochManager}, h.epochs.current); err != nil {
		h.t.Fatalf("epoch %d hook: %v", id, err)
	}
}

func (h *harness) env() types.BlockInfo {
	return types.BlockInfo{Height: h.epochs.current.ID, Time: h.epochs.current.StartTime.Add(time.Hour)}
}

func (h *harness) bond(addr string, coin types.Coin) {
	h.t.Helper()
	info := types.MessageInfo{Sender: addr, Funds: types.Coins{coin}}
	if _, err := h.engine.Bond(info, h.env(), coin); err != nil {
		h.t.Fatalf("bond %s: %v", coin, err)
	}
}

func (h *harness) fill(coins ...types.Coin) {
	h.t.Helper()
	if _, err := h.engine.FillRewards(types.MessageInfo{Sender: owner, Funds: coins}); err != nil {
		h.t.Fatalf("fill rewards: %v", err)
	}
}

func claimedAmount(t *testing.T, resp *types.Response, denom string) *big.Int {
	t.Helper()
	if len(resp.Messages) != 1 {
		t.Fatalf("expected one payout message, got %d", len(resp.Messages))
	}
	send, ok := resp.Messages[0].(types.BankSend)
	if !ok {
		t.Fatalf("expected bank send, got %T", resp.Messages[0])
	}
	return send.Amount.AmountOf(denom)
}

func TestInstantiateValidation(t *testing.T) {
	newEngine := func() *Engine {
		e := NewEngine()
		e.SetState(NewState(state.NewDBStore(storage.NewMemDB())))
		return e
	}
	info := types.MessageInfo{Sender: owner}

	msg := defaultInstantiate()
	msg.BondingAssets = []string{"ampWHALE", "bWHALE", "uwhale"}
	_, err := newEngine().Instantiate(info, msg)
	var limitErr *InvalidBondingAssetsLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected InvalidBondingAssetsLimitError, got %v", err)
	}
	if limitErr.Limit != 2 || limitErr.Got != 3 {
		t.Fatalf("unexpected limit error %+v", limitErr)
	}

	msg = defaultInstantiate()
	msg.GrowthRate = numeric.MustParseDecimal("2.0")
	if _, err := newEngine().Instantiate(info, msg); !errors.Is(err, ErrInvalidGrowthRate) {
		t.Fatalf("expected ErrInvalidGrowthRate, got %v", err)
	}

	msg = defaultInstantiate()
	msg.GracePeriod = 0
	if _, err := newEngine().Instantiate(info, msg); !errors.Is(err, ErrInvalidGracePeriod) {
		t.Fatalf("expected ErrInvalidGracePeriod, got %v", err)
	}

	e := newEngine()
	if _, err := e.Instantiate(info, defaultInstantiate()); err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if _, err := e.Instantiate(info, defaultInstantiate()); !errors.Is(err, ErrAlreadyInstantiated) {
		t.Fatalf("expected ErrAlreadyInstantiated, got %v", err)
	}
	cfg, err := e.Config()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Owner != owner || cfg.EpochManagerAddr != epochManager {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestUpdateConfig(t *testing.T) {
	h := newHarness(t)
	rate := numeric.MustParseDecimal("2")
	if _, err := h.engine.UpdateConfig(types.MessageInfo{Sender: alice}, UpdateConfigMsg{GrowthRate: &rate}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := h.engine.UpdateConfig(types.MessageInfo{Sender: owner}, UpdateConfigMsg{GrowthRate: &rate}); !errors.Is(err, ErrInvalidGrowthRate) {
		t.Fatalf("expected ErrInvalidGrowthRate, got %v", err)
	}
	period := uint64(3)
	if _, err := h.engine.UpdateConfig(types.MessageInfo{Sender: owner}, UpdateConfigMsg{UnbondingPeriod: &period}); err != nil {
		t.Fatalf("update config: %v", err)
	}
	cfg, err := h.engine.Config()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.UnbondingPeriod != 3 || cfg.GrowthRate.String() != "0.1" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestGetWeightMonotonic(t *testing.T) {
	growth := numeric.MustParseDecimal("0.25")
	amount := big.NewInt(1_000)
	prev := big.NewInt(1_000)
	for epochID := uint64(1); epochID <= 20; epochID++ {
		w, err := getWeight(epochID, big.NewInt(1_000), amount, growth, 1)
		if err != nil {
			t.Fatalf("weight at %d: %v", epochID, err)
		}
		if w.Cmp(prev) < 0 {
			t.Fatalf("weight decreased at %d: %s < %s", epochID, w, prev)
		}
		prev = w
	}
	if prev.Cmp(big.NewInt(1_000+250*19)) != 0 {
		t.Fatalf("unexpected weight %s", prev)
	}
	same, err := getWeight(7, big.NewInt(42), amount, growth, 7)
	if err != nil || same.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("expected no-op at same epoch, got %v %v", same, err)
	}
	if _, err := getWeight(3, big.NewInt(1), amount, growth, 4); !errors.Is(err, numeric.ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestBondPreconditions(t *testing.T) {
	h := newHarness(t)
	coin := types.NewCoin("ampWHALE", 1_000)
	info := types.MessageInfo{Sender: alice, Funds: types.Coins{coin}}

	if _, err := h.engine.Bond(info, h.env(), coin); !errors.Is(err, ErrNoRewardBuckets) {
		t.Fatalf("expected ErrNoRewardBuckets, got %v", err)
	}
	h.advance(1)

	if _, err := h.engine.Bond(types.MessageInfo{Sender: alice}, h.env(), coin); !errors.Is(err, ErrNoFunds) {
		t.Fatalf("expected ErrNoFunds, got %v", err)
	}
	other := types.NewCoin("uwhale", 1_000)
	if _, err := h.engine.Bond(types.MessageInfo{Sender: alice, Funds: types.Coins{other}}, h.env(), other); !errors.Is(err, ErrAssetMismatch) {
		t.Fatalf("expected ErrAssetMismatch for unsupported denom, got %v", err)
	}
	if _, err := h.engine.Bond(info, h.env(), types.NewCoin("ampWHALE", 999)); !errors.Is(err, ErrAssetMismatch) {
		t.Fatalf("expected ErrAssetMismatch for amount mismatch, got %v", err)
	}
	late := types.BlockInfo{Time: h.epochs.current.StartTime.Add(25 * time.Hour)}
	if _, err := h.engine.Bond(info, late, coin); !errors.Is(err, ErrNewEpochNotCreatedYet) {
		t.Fatalf("expected ErrNewEpochNotCreatedYet, got %v", err)
	}
	if _, err := h.engine.Bond(info, h.env(), coin); err != nil {
		t.Fatalf("bond: %v", err)
	}
	bonded, err := h.engine.Bonded(&alice)
	if err != nil {
		t.Fatalf("bonded: %v", err)
	}
	if bonded.TotalBonded.Cmp(big.NewInt(1_000)) != 0 || bonded.FirstBondedEpochID == nil || *bonded.FirstBondedEpochID != 1 {
		t.Fatalf("unexpected bonded response %+v", bonded)
	}
}

func TestClaimDistributesProRata(t *testing.T) {
	h := newHarness(t)
	h.advance(1)
	h.bond(alice, types.NewCoin("ampWHALE", 1_000))
	h.bond(bob, types.NewCoin("bWHALE", 3_000))
	h.fill(types.NewCoin("uwhale", 400))
	h.advance(2)

	bucket, err := h.engine.RewardBucket(2)
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}
	if bucket.Total.AmountOf("uwhale").Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("unexpected bucket total %s", bucket.Total)
	}

	more := types.NewCoin("ampWHALE", 10)
	if _, err := h.engine.Bond(types.MessageInfo{Sender: alice, Funds: types.Coins{more}}, h.env(), more); !errors.Is(err, ErrUnclaimedRewards) {
		t.Fatalf("expected ErrUnclaimedRewards, got %v", err)
	}

	weight, err := h.engine.Weight(alice, nil)
	if err != nil {
		t.Fatalf("weight: %v", err)
	}
	if weight.Weight.Cmp(big.NewInt(1_100)) != 0 || weight.GlobalWeight.Cmp(big.NewInt(4_400)) != 0 {
		t.Fatalf("unexpected weight %+v", weight)
	}
	if weight.Share.String() != "0.25" {
		t.Fatalf("unexpected share %s", weight.Share)
	}

	resp, err := h.engine.Claim(types.MessageInfo{Sender: alice})
	if err != nil {
		t.Fatalf("alice claim: %v", err)
	}
	if got := claimedAmount(t, resp, "uwhale"); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("alice expected 100, got %s", got)
	}
	again, err := h.engine.Claim(types.MessageInfo{Sender: alice})
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again.Messages) != 0 {
		t.Fatalf("second claim paid out %d messages", len(again.Messages))
	}

	resp, err = h.engine.Claim(types.MessageInfo{Sender: bob})
	if err != nil {
		t.Fatalf("bob claim: %v", err)
	}
	if got := claimedAmount(t, resp, "uwhale"); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("bob expected 300, got %s", got)
	}

	bucket, err = h.engine.RewardBucket(2)
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}
	if !bucket.Available.IsZero() || bucket.Claimed.AmountOf("uwhale").Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("unexpected bucket after claims: available %s claimed %s", bucket.Available, bucket.Claimed)
	}
	if _, err := h.engine.Claim(types.MessageInfo{Sender: carol}); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("expected ErrNothingToClaim, got %v", err)
	}
}

func TestExpiringBucketIsForwarded(t *testing.T) {
	h := newHarness(t)
	h.advance(1)
	h.bond(alice, types.NewCoin("ampWHALE", 1_000))
	h.bond(bob, types.NewCoin("bWHALE", 3_000))
	h.fill(types.NewCoin("uwhale", 400))
	h.advance(2)
	h.advance(3)
	h.advance(4)

	expired, err := h.engine.RewardBucket(2)
	if err != nil {
		t.Fatalf("bucket 2: %v", err)
	}
	if !expired.Available.IsZero() {
		t.Fatalf("expired bucket still holds %s", expired.Available)
	}
	latest, err := h.engine.RewardBucket(4)
	if err != nil {
		t.Fatalf("bucket 4: %v", err)
	}
	if latest.Total.AmountOf("uwhale").Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("forwarded rewards missing: %s", latest.Total)
	}

	claimable, err := h.engine.Claimable(&alice)
	if err != nil {
		t.Fatalf("claimable: %v", err)
	}
	for _, b := range claimable {
		if b.ID <= 4-2 {
			t.Fatalf("bucket %d outside the grace period is claimable", b.ID)
		}
	}

	resp, err := h.engine.Claim(types.MessageInfo{Sender: alice})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got := claimedAmount(t, resp, "uwhale"); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("alice expected 100, got %s", got)
	}
}

func TestOnEpochChangedGuards(t *testing.T) {
	h := newHarness(t)
	ep := epoch.Epoch{ID: 1, StartTime: genesis}
	if _, err := h.engine.OnEpochChanged(types.MessageInfo{Sender: alice}, ep); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	h.fill(types.NewCoin("uwhale", 50))
	h.advance(1)
	h.fill(types.NewCoin("uwhale", 70))
	if _, err := h.engine.OnEpochChanged(types.MessageInfo{Sender: epochManager}, ep); err != nil {
		t.Fatalf("replay: %v", err)
	}
	bucket, err := h.engine.RewardBucket(1)
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}
	if bucket.Total.AmountOf("uwhale").Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("replayed hook changed bucket: %s", bucket.Total)
	}
	var created int
	for _, ev := range h.events.Events() {
		if ev.EventType() == events.TypeRewardBucketCreated {
			created++
		}
	}
	if created != 1 {
		t.Fatalf("expected one bucket event, got %d", created)
	}
}

func TestUnbondAndWithdraw(t *testing.T) {
	h := newHarness(t)
	h.advance(1)
	h.bond(alice, types.NewCoin("ampWHALE", 1_000))
	h.bond(bob, types.NewCoin("bWHALE", 3_000))
	h.advance(2)

	unbond := func(c types.Coin) error {
		_, err := h.engine.Unbond(types.MessageInfo{Sender: alice}, h.env(), c)
		return err
	}
	if err := unbond(types.NewCoin("ampWHALE", 0)); !errors.Is(err, ErrInvalidUnbondingAmount) {
		t.Fatalf("expected ErrInvalidUnbondingAmount, got %v", err)
	}
	if err := unbond(types.NewCoin("bWHALE", 1)); !errors.Is(err, ErrNothingToUnbond) {
		t.Fatalf("expected ErrNothingToUnbond, got %v", err)
	}
	if err := unbond(types.NewCoin("ampWHALE", 1_001)); !errors.Is(err, ErrInsufficientBond) {
		t.Fatalf("expected ErrInsufficientBond, got %v", err)
	}
	paid := types.MessageInfo{Sender: alice, Funds: types.Coins{types.NewCoin("uwhale", 1)}}
	if _, err := h.engine.Unbond(paid, h.env(), types.NewCoin("ampWHALE", 1)); !errors.Is(err, ErrNonPayable) {
		t.Fatalf("expected ErrNonPayable, got %v", err)
	}
	if err := unbond(types.NewCoin("ampWHALE", 400)); err != nil {
		t.Fatalf("unbond: %v", err)
	}

	weight, err := h.engine.Weight(alice, nil)
	if err != nil {
		t.Fatalf("weight: %v", err)
	}
	if weight.Weight.Cmp(big.NewInt(660)) != 0 || weight.GlobalWeight.Cmp(big.NewInt(3_960)) != 0 {
		t.Fatalf("unexpected weight after unbond %+v", weight)
	}
	global, err := h.engine.GlobalIndex(nil)
	if err != nil {
		t.Fatalf("global index: %v", err)
	}
	if global.BondedAmount.Cmp(big.NewInt(3_600)) != 0 || global.BondedAssets.AmountOf("ampWHALE").Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("unexpected global index %+v", global)
	}

	pending, err := h.engine.Unbonding(alice, "ampWHALE")
	if err != nil {
		t.Fatalf("unbonding: %v", err)
	}
	if len(pending.UnbondingRequests) != 1 || pending.TotalAmount.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("unexpected unbonding response %+v", pending)
	}
	if _, err := h.engine.Withdraw(types.MessageInfo{Sender: alice}, "ampWHALE"); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("expected ErrNothingToWithdraw, got %v", err)
	}

	h.advance(3)
	withdrawable, err := h.engine.Withdrawable(alice, "ampWHALE")
	if err != nil {
		t.Fatalf("withdrawable: %v", err)
	}
	if withdrawable.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected 400 withdrawable, got %s", withdrawable)
	}
	resp, err := h.engine.Withdraw(types.MessageInfo{Sender: alice}, "ampWHALE")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := claimedAmount(t, resp, "ampWHALE"); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected 400 withdrawn, got %s", got)
	}
	pending, err = h.engine.Unbonding(alice, "ampWHALE")
	if err != nil {
		t.Fatalf("unbonding: %v", err)
	}
	if len(pending.UnbondingRequests) != 0 {
		t.Fatalf("withdrawn requests still pending: %+v", pending.UnbondingRequests)
	}
}

func TestClaimsNeverExceedBucketWithStaggeredBonds(t *testing.T) {
	h := newHarness(t)
	h.advance(1)
	h.bond(alice, types.NewCoin("ampWHALE", 5))
	h.advance(2)
	h.bond(bob, types.NewCoin("bWHALE", 4))
	h.fill(types.NewCoin("uwhale", 900))
	h.advance(3)

	// alice grew to 6 and bob stayed at 4, while the aggregate rounded to 9.
	resp, err := h.engine.Claim(types.MessageInfo{Sender: alice})
	if err != nil {
		t.Fatalf("alice claim: %v", err)
	}
	if got := claimedAmount(t, resp, "uwhale"); got.Cmp(big.NewInt(599)) != 0 {
		t.Fatalf("alice expected 599, got %s", got)
	}

	if _, err := h.engine.Unbond(types.MessageInfo{Sender: bob}, h.env(), types.NewCoin("bWHALE", 4)); !errors.Is(err, ErrUnclaimedRewards) {
		t.Fatalf("expected ErrUnclaimedRewards before bob claims, got %v", err)
	}
	resp, err = h.engine.Claim(types.MessageInfo{Sender: bob})
	if err != nil {
		t.Fatalf("bob claim: %v", err)
	}
	if got := claimedAmount(t, resp, "uwhale"); got.Cmp(big.NewInt(301)) != 0 {
		t.Fatalf("bob expected the remaining 301, got %s", got)
	}

	bucket, err := h.engine.RewardBucket(3)
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}
	if !bucket.Available.IsZero() || bucket.Claimed.AmountOf("uwhale").Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("bucket over or under paid: available %s claimed %s", bucket.Available, bucket.Claimed)
	}
	if _, err := h.engine.Unbond(types.MessageInfo{Sender: bob}, h.env(), types.NewCoin("bWHALE", 4)); err != nil {
		t.Fatalf("bob unbond: %v", err)
	}
}

func TestShareAboveOneIsCapped(t *testing.T) {
	bucket := &RewardBucket{
		ID:        3,
		Total:     types.Coins{types.NewCoin("uwhale", 100)},
		Available: types.Coins{types.NewCoin("uwhale", 40)},
		Claimed:   types.Coins{types.NewCoin("uwhale", 60)},
	}
	rewards, err := bucketShare(bucket, numeric.OneDecimal())
	if err != nil {
		t.Fatalf("bucket share: %v", err)
	}
	if rewards.AmountOf("uwhale").Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("expected the 40 left in the bucket, got %s", rewards)
	}
	if !bucket.Available.IsZero() || bucket.Claimed.AmountOf("uwhale").Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected bucket %+v", bucket)
	}
}
