package incentive

import (
	"errors"
	"testing"

	"whalehub/core/events"
	"whalehub/core/types"
)

func claimed(t *testing.T, resp *types.Response, denom string) int64 {
	t.Helper()
	if len(resp.Messages) != 1 {
		t.Fatalf("expected one payout, got %d messages", len(resp.Messages))
	}
	send, ok := resp.Messages[0].(types.BankSend)
	if !ok {
		t.Fatalf("expected bank send, got %T", resp.Messages[0])
	}
	return send.Amount.AmountOf(denom).Int64()
}

func TestClaimDistributesByWeight(t *testing.T) {
	h := newHarness(t)
	h.mustCreate(owner, "flow", types.NewCoin("uusdc", 14_000))
	h.fillPosition(alice, "", MinLockSeconds, types.NewCoin(lpDenom, 1_000))
	h.fillPosition(bob, "", MinLockSeconds, types.NewCoin(lpDenom, 3_000))

	if _, err := h.engine.Claim(types.MessageInfo{Sender: alice}); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("expected ErrNothingToClaim in the fill epoch, got %v", err)
	}

	h.advance(2)
	if _, err := h.engine.ClosePosition(types.MessageInfo{Sender: alice}, h.env(), "1", nil); !errors.Is(err, ErrPendingRewards) {
		t.Fatalf("expected ErrPendingRewards, got %v", err)
	}
	rewards, err := h.engine.Rewards(alice)
	if err != nil || rewards.AmountOf("uusdc").Int64() != 250 {
		t.Fatalf("expected 250 claimable, got %s (%v)", rewards, err)
	}

	resp, err := h.engine.Claim(types.MessageInfo{Sender: alice})
	if err != nil {
		t.Fatalf("alice claim: %v", err)
	}
	if got := claimed(t, resp, "uusdc"); got != 250 {
		t.Fatalf("expected alice to claim 250, got %d", got)
	}
	resp, err = h.engine.Claim(types.MessageInfo{Sender: bob})
	if err != nil {
		t.Fatalf("bob claim: %v", err)
	}
	if got := claimed(t, resp, "uusdc"); got != 750 {
		t.Fatalf("expected bob to claim 750, got %d", got)
	}

	resp, err = h.engine.Claim(types.MessageInfo{Sender: alice})
	if err != nil || len(resp.Messages) != 0 {
		t.Fatalf("expected an empty second claim, got %v (%v)", resp, err)
	}

	inc, _, _ := h.state.IncentiveGet("flow")
	if inc.ClaimedAmount.Int64() != 1_000 || inc.emittedAt(2).Int64() != 1_000 || inc.LastEpochClaimed != 2 {
		t.Fatalf("unexpected incentive after claims %+v", inc)
	}

	h.advance(3)
	resp, err = h.engine.Claim(types.MessageInfo{Sender: alice})
	if err != nil {
		t.Fatalf("alice claim at epoch 3: %v", err)
	}
	if got := claimed(t, resp, "uusdc"); got != 250 {
		t.Fatalf("expected 250 at epoch 3, got %d", got)
	}
	evs := h.events.Events()
	ev := evs[len(evs)-1].(events.RewardsClaimed)
	if ev.EventType() != events.TypeIncentiveRewardsClaimed || ev.Epoch != 3 || ev.Address != alice {
		t.Fatalf("unexpected claim event %+v", ev)
	}
}

func TestClaimHonoursGracePeriod(t *testing.T) {
	msg := defaultInstantiate()
	msg.ClaimGracePeriod = 2
	h := newHarnessWith(t, msg)
	h.mustCreate(owner, "flow", types.NewCoin("uusdc", 14_000))
	h.fillPosition(alice, "", MinLockSeconds, types.NewCoin(lpDenom, 1_000))
	for id := uint64(2); id <= 6; id++ {
		h.advance(id)
	}

	resp, err := h.engine.Claim(types.MessageInfo{Sender: alice})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got := claimed(t, resp, "uusdc"); got != 2_000 {
		t.Fatalf("expected only epochs 5 and 6 to pay out, got %d", got)
	}

	h.advance(7)
	resp, err = h.engine.Claim(types.MessageInfo{Sender: alice})
	if err != nil {
		t.Fatalf("claim at epoch 7: %v", err)
	}
	if got := claimed(t, resp, "uusdc"); got != 1_000 {
		t.Fatalf("expected 1000 at epoch 7, got %d", got)
	}
}

func TestClaimRequiresSnapshot(t *testing.T) {
	h := newHarness(t)
	h.mustCreate(owner, "flow", types.NewCoin("uusdc", 14_000))
	h.fillPosition(alice, "", MinLockSeconds, types.NewCoin(lpDenom, 1_000))
	h.setEpoch(3)

	_, err := h.engine.Claim(types.MessageInfo{Sender: alice})
	var snapshotErr *GlobalWeightSnapshotNotTakenError
	if !errors.As(err, &snapshotErr) || snapshotErr.Epoch != 3 {
		t.Fatalf("expected GlobalWeightSnapshotNotTakenError for epoch 3, got %v", err)
	}
}

func TestClaimPreconditions(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.Claim(types.MessageInfo{Sender: alice}); !errors.Is(err, ErrNoOpenPositions) {
		t.Fatalf("expected ErrNoOpenPositions, got %v", err)
	}
	paid := types.MessageInfo{Sender: alice, Funds: types.Coins{types.NewCoin("uwhale", 1)}}
	if _, err := h.engine.Claim(paid); !errors.Is(err, ErrNonPayable) {
		t.Fatalf("expected ErrNonPayable, got %v", err)
	}
	if _, err := h.engine.OnEpochChanged(types.MessageInfo{Sender: alice}, h.epochs.current); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized from the epoch hook, got %v", err)
	}
}
