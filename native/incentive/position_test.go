package incentive

import (
	"errors"
	"testing"
	"time"

	"whalehub/core/events"
	"whalehub/core/types"
)

const halfYear = 15_778_476

func (h *harness) fillPosition(sender, identifier string, duration uint64, lp types.Coin) *types.Response {
	h.t.Helper()
	resp, err := h.engine.FillPosition(types.MessageInfo{Sender: sender, Funds: types.Coins{lp}}, identifier, duration, "")
	if err != nil {
		h.t.Fatalf("fill position: %v", err)
	}
	return resp
}

func (h *harness) weightAt(addr string, epochID uint64) (int64, int64) {
	h.t.Helper()
	w, err := h.engine.Weight(addr, lpDenom, epochID)
	if err != nil {
		h.t.Fatalf("weight: %v", err)
	}
	return w.Weight.Int64(), w.LPWeight.Int64()
}

func TestFillPosition(t *testing.T) {
	h := newHarness(t)
	resp := h.fillPosition(alice, "", MinLockSeconds, types.NewCoin(lpDenom, 1_000))
	if resp.Attributes["position_identifier"] != "1" {
		t.Fatalf("expected counter identifier, got %q", resp.Attributes["position_identifier"])
	}
	if own, total := h.weightAt(alice, 2); own != 1_000 || total != 1_000 {
		t.Fatalf("expected weight 1000/1000 at epoch 2, got %d/%d", own, total)
	}
	if own, _ := h.weightAt(alice, 1); own != 0 {
		t.Fatalf("expected no weight in the fill epoch, got %d", own)
	}
	var snapshotErr *GlobalWeightSnapshotNotTakenError
	if _, err := h.engine.LPWeight(lpDenom, 1); !errors.As(err, &snapshotErr) || snapshotErr.Epoch != 1 {
		t.Fatalf("expected GlobalWeightSnapshotNotTakenError, got %v", err)
	}

	h.fillPosition(alice, "", MinLockSeconds, types.NewCoin(lpDenom, 1_000))
	p, err := h.engine.Position("1")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if p.LPAsset.Amount.Int64() != 2_000 || !p.Open || p.Receiver != alice {
		t.Fatalf("expected fill to top up the matching position, got %+v", p)
	}

	h.fillPosition(alice, "", halfYear, types.NewCoin(lpDenom, 100))
	if own, total := h.weightAt(alice, 2); own != 2_500 || total != 2_500 {
		t.Fatalf("expected weight 2500/2500, got %d/%d", own, total)
	}
	positions, _ := h.engine.Positions(alice, nil)
	if len(positions) != 2 {
		t.Fatalf("expected two positions, got %d", len(positions))
	}

	_, err = h.engine.FillPosition(types.MessageInfo{Sender: bob, Funds: types.Coins{types.NewCoin(lpDenom, 10)}}, "1", MinLockSeconds, "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	var durationErr *InvalidUnlockingDurationError
	_, err = h.engine.FillPosition(types.MessageInfo{Sender: bob, Funds: types.Coins{types.NewCoin(lpDenom, 10)}}, "", 100, "")
	if !errors.As(err, &durationErr) || durationErr.Specified != 100 {
		t.Fatalf("expected InvalidUnlockingDurationError, got %v", err)
	}
	if _, err := h.engine.FillPosition(types.MessageInfo{Sender: bob}, "", MinLockSeconds, ""); !errors.Is(err, ErrNoFunds) {
		t.Fatalf("expected ErrNoFunds, got %v", err)
	}
	two := types.Coins{types.NewCoin(lpDenom, 10), types.NewCoin("uwhale", 10)}
	if _, err := h.engine.FillPosition(types.MessageInfo{Sender: bob, Funds: two}, "", MinLockSeconds, ""); !errors.Is(err, ErrAssetMismatch) {
		t.Fatalf("expected ErrAssetMismatch, got %v", err)
	}
}

func TestFillPositionForReceiver(t *testing.T) {
	h := newHarness(t)
	info := types.MessageInfo{Sender: alice, Funds: types.Coins{types.NewCoin(lpDenom, 500)}}
	if _, err := h.engine.FillPosition(info, "gift", MinLockSeconds, bob); err != nil {
		t.Fatalf("fill for receiver: %v", err)
	}
	p, err := h.engine.Position("gift")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if p.Receiver != bob {
		t.Fatalf("expected bob to receive the position, got %s", p.Receiver)
	}
	if own, _ := h.weightAt(bob, 2); own != 500 {
		t.Fatalf("expected receiver weight 500, got %d", own)
	}
}

func TestCloseAndWithdrawPosition(t *testing.T) {
	h := newHarness(t)
	h.fillPosition(alice, "", MinLockSeconds, types.NewCoin(lpDenom, 1_000))

	partial := types.NewCoin(lpDenom, 400)
	resp, err := h.engine.ClosePosition(types.MessageInfo{Sender: alice}, h.env(), "1", &partial)
	if err != nil {
		t.Fatalf("partial close: %v", err)
	}
	if resp.Attributes["position_identifier"] != "2" {
		t.Fatalf("expected split position 2, got %q", resp.Attributes["position_identifier"])
	}
	split, err := h.engine.Position("2")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	wantExpiry := uint64(h.env().Time.Unix()) + MinLockSeconds
	if split.Open || split.ExpiringAt == nil || *split.ExpiringAt != wantExpiry || split.LPAsset.Amount.Int64() != 400 {
		t.Fatalf("unexpected split position %+v", split)
	}
	if own, total := h.weightAt(alice, 2); own != 600 || total != 600 {
		t.Fatalf("expected weight 600/600 after partial close, got %d/%d", own, total)
	}

	full := types.NewCoin(lpDenom, 600)
	if _, err := h.engine.ClosePosition(types.MessageInfo{Sender: alice}, h.env(), "1", &full); !errors.Is(err, ErrAssetMismatch) {
		t.Fatalf("expected ErrAssetMismatch, got %v", err)
	}
	if _, err := h.engine.ClosePosition(types.MessageInfo{Sender: bob}, h.env(), "1", nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := h.engine.ClosePosition(types.MessageInfo{Sender: alice}, h.env(), "2", nil); !errors.Is(err, ErrPositionAlreadyClosed) {
		t.Fatalf("expected ErrPositionAlreadyClosed, got %v", err)
	}
	if _, err := h.engine.ClosePosition(types.MessageInfo{Sender: alice}, h.env(), "missing", nil); !errors.Is(err, ErrNonExistentPosition) {
		t.Fatalf("expected ErrNonExistentPosition, got %v", err)
	}

	if _, err := h.engine.WithdrawPosition(types.MessageInfo{Sender: alice}, h.env(), "2", false); !errors.Is(err, ErrPositionNotExpired) {
		t.Fatalf("expected ErrPositionNotExpired, got %v", err)
	}
	if _, err := h.engine.WithdrawPosition(types.MessageInfo{Sender: alice}, h.env(), "1", false); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for an open position, got %v", err)
	}
	if _, err := h.engine.WithdrawMatured(types.MessageInfo{Sender: alice}, h.env()); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("expected ErrNothingToWithdraw, got %v", err)
	}

	later := h.env()
	later.Time = later.Time.Add(48 * time.Hour)
	resp, err = h.engine.WithdrawMatured(types.MessageInfo{Sender: alice}, later)
	if err != nil {
		t.Fatalf("withdraw matured: %v", err)
	}
	send := resp.Messages[0].(types.BankSend)
	if len(resp.Messages) != 1 || send.To != alice || send.Amount.AmountOf(lpDenom).Int64() != 400 {
		t.Fatalf("unexpected matured payout %+v", resp.Messages)
	}
	if _, err := h.engine.Position("2"); !errors.Is(err, ErrNonExistentPosition) {
		t.Fatalf("expected matured position to be removed, got %v", err)
	}

	resp, err = h.engine.WithdrawPosition(types.MessageInfo{Sender: alice}, h.env(), "1", true)
	if err != nil {
		t.Fatalf("emergency withdraw: %v", err)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("expected penalty and payout, got %d messages", len(resp.Messages))
	}
	penalty := resp.Messages[0].(types.FillRewards)
	payout := resp.Messages[1].(types.BankSend)
	if penalty.Amount.AmountOf(lpDenom).Int64() != 60 || payout.Amount.AmountOf(lpDenom).Int64() != 540 {
		t.Fatalf("unexpected emergency split %+v / %+v", penalty, payout)
	}
	if own, total := h.weightAt(alice, 2); own != 0 || total != 0 {
		t.Fatalf("expected weights removed, got %d/%d", own, total)
	}
	evs := h.events.Events()
	last := evs[len(evs)-1].(events.PositionChanged)
	if last.Type != events.TypePositionWithdrawn || last.Penalty.Int64() != 60 {
		t.Fatalf("unexpected withdraw event %+v", last)
	}
}

const oneMonth = 2_629_746

func (h *harness) positionWeight(identifier string) int64 {
	h.t.Helper()
	p, err := h.engine.Position(identifier)
	if err != nil {
		h.t.Fatalf("position %s: %v", identifier, err)
	}
	return p.Weight.Int64()
}

func TestCloseRemovesExactlyTheFilledWeight(t *testing.T) {
	h := newHarness(t)
	h.mustCreate(owner, "flow", types.NewCoin("uusdc", 14_000))
	h.fillPosition(alice, "", oneMonth, types.NewCoin(lpDenom, 3))
	h.fillPosition(alice, "", oneMonth, types.NewCoin(lpDenom, 3))
	h.fillPosition(bob, "", oneMonth, types.NewCoin(lpDenom, 100))

	// two fills of 3 weigh 3 each, while 6 filled at once would weigh 7.
	if got := h.positionWeight("1"); got != 6 {
		t.Fatalf("expected alice position weight 6, got %d", got)
	}
	if got := h.positionWeight("2"); got != 117 {
		t.Fatalf("expected bob position weight 117, got %d", got)
	}
	if own, total := h.weightAt(alice, 2); own != 6 || total != 123 {
		t.Fatalf("expected 6/123 at epoch 2, got %d/%d", own, total)
	}

	h.advance(2)
	if _, err := h.engine.Claim(types.MessageInfo{Sender: alice}); err != nil {
		t.Fatalf("alice claim: %v", err)
	}
	if _, err := h.engine.ClosePosition(types.MessageInfo{Sender: alice}, h.env(), "1", nil); err != nil {
		t.Fatalf("alice close: %v", err)
	}
	if got := h.positionWeight("1"); got != 0 {
		t.Fatalf("closed position still carries weight %d", got)
	}
	if own, total := h.weightAt(alice, 3); own != 0 || total != 117 {
		t.Fatalf("expected 0/117 at epoch 3, got %d/%d", own, total)
	}
	if own, total := h.weightAt(bob, 3); own != total {
		t.Fatalf("bob alone should hold the LP total, got %d/%d", own, total)
	}

	h.advance(3)
	resp, err := h.engine.Claim(types.MessageInfo{Sender: bob})
	if err != nil {
		t.Fatalf("bob claim: %v", err)
	}
	if got := claimed(t, resp, "uusdc"); got < 1_000 {
		t.Fatalf("expected bob to collect the whole of epoch 3, got %d", got)
	}
	inc, _, _ := h.state.IncentiveGet("flow")
	if inc.emittedAt(2).Int64() > 1_000 || inc.emittedAt(3).Int64() != 1_000 {
		t.Fatalf("unexpected emissions: epoch 2 %s, epoch 3 %s", inc.emittedAt(2), inc.emittedAt(3))
	}
	if _, err := h.engine.ClosePosition(types.MessageInfo{Sender: bob}, h.env(), "2", nil); err != nil {
		t.Fatalf("bob close: %v", err)
	}
	if _, total := h.weightAt(bob, 4); total != 0 {
		t.Fatalf("expected no LP weight left, got %d", total)
	}
}

func TestPartialCloseSplitsWeight(t *testing.T) {
	h := newHarness(t)
	h.fillPosition(alice, "", oneMonth, types.NewCoin(lpDenom, 7))
	before := h.positionWeight("1")

	partial := types.NewCoin(lpDenom, 3)
	if _, err := h.engine.ClosePosition(types.MessageInfo{Sender: alice}, h.env(), "1", &partial); err != nil {
		t.Fatalf("partial close: %v", err)
	}
	remaining := h.positionWeight("1")
	if remaining <= 0 || remaining >= before {
		t.Fatalf("expected remaining weight between 0 and %d, got %d", before, remaining)
	}
	if own, total := h.weightAt(alice, 2); own != remaining || total != remaining {
		t.Fatalf("expected weights to match the open position %d, got %d/%d", remaining, own, total)
	}

	if _, err := h.engine.ClosePosition(types.MessageInfo{Sender: alice}, h.env(), "1", nil); err != nil {
		t.Fatalf("close rest: %v", err)
	}
	if own, total := h.weightAt(alice, 2); own != 0 || total != 0 {
		t.Fatalf("expected no weight left, got %d/%d", own, total)
	}
}

func TestEmergencyWithdrawIgnoresRewardErrors(t *testing.T) {
	h := newHarness(t)
	h.mustCreate(owner, "flow", types.NewCoin("uusdc", 14_000))
	h.fillPosition(alice, "", MinLockSeconds, types.NewCoin(lpDenom, 1_000))
	h.setEpoch(3)

	var snapshotErr *GlobalWeightSnapshotNotTakenError
	if _, err := h.engine.Claim(types.MessageInfo{Sender: alice}); !errors.As(err, &snapshotErr) {
		t.Fatalf("expected the claim to fail on the missing snapshot, got %v", err)
	}
	resp, err := h.engine.WithdrawPosition(types.MessageInfo{Sender: alice}, h.env(), "1", true)
	if err != nil {
		t.Fatalf("emergency withdraw: %v", err)
	}
	payout := resp.Messages[len(resp.Messages)-1].(types.BankSend)
	if payout.Amount.AmountOf(lpDenom).Int64() != 900 {
		t.Fatalf("expected 900 back after the penalty, got %s", payout.Amount)
	}
	if own, total := h.weightAt(alice, 4); own != 0 || total != 0 {
		t.Fatalf("expected weights removed, got %d/%d", own, total)
	}
}

func TestCloseSkipsEpochsWithoutSnapshot(t *testing.T) {
	h := newHarness(t)
	h.mustCreate(owner, "flow", types.NewCoin("uusdc", 14_000))
	h.fillPosition(alice, "", MinLockSeconds, types.NewCoin(lpDenom, 1_000))
	h.advance(2)
	if _, err := h.engine.Claim(types.MessageInfo{Sender: alice}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	h.setEpoch(3)

	if _, err := h.engine.ClosePosition(types.MessageInfo{Sender: alice}, h.env(), "1", nil); err != nil {
		t.Fatalf("close with a missing snapshot: %v", err)
	}
}
