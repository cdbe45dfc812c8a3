package app

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"whalehub/core/epoch"
	"whalehub/core/events"
	"whalehub/core/state"
	"whalehub/core/types"
	"whalehub/native/bonding"
	"whalehub/native/incentive"
	telemetry "whalehub/observability/otel"
)

// ErrUnknownHook is returned when a registered hook address is not a module
// that can receive epoch notifications.
var ErrUnknownHook = errors.New("app: hook has no receiver")

// Result is the outcome of a committed message.
type Result struct {
	Height     uint64            `json:"height"`
	AppHash    string            `json:"app_hash"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Data       any               `json:"data,omitempty"`
	Events     []*types.Event    `json:"events"`
	Dispatches []uuid.UUID       `json:"dispatches,omitempty"`
}

type payout struct {
	module string
	coins  types.Coins
}

type hookOutcome struct {
	module string
	ok     bool
}

// execution carries the per-transaction bookkeeping of one Execute call.
type execution struct {
	app        *App
	ctx        context.Context
	tx         *state.Tx
	buf        *events.Buffer
	env        types.BlockInfo
	dispatched []uuid.UUID
	payouts    []payout
	hooks      []hookOutcome
	created    *epoch.Epoch
}

// Execute runs msg on behalf of sender with funds attached. The call either
// commits as a whole, including every sub-message it produced, or leaves the
// state untouched. Events reach subscribers only after commit.
func (a *App) Execute(ctx context.Context, sender string, funds types.Coins, msg Msg) (res *Result, err error) {
	if msg == nil {
		return nil, ErrUnknownMsg
	}
	msg = normalize(msg)

	a.mu.Lock()
	defer a.mu.Unlock()

	started := time.Now()
	ctx, span := telemetry.Start(ctx, a.tracer, "app.Execute", "msg", msg.Type(), "sender", sender)
	defer func() {
		telemetry.Finish(span, err)
		a.metrics.ObserveTx(msg.Type(), err == nil, time.Since(started))
	}()

	root := state.NewManager(a.store)
	if ok, err := root.KVHas(genesisKey); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNotInitialized
	}
	height, err := readHeight(root)
	if err != nil {
		return nil, err
	}

	run := &execution{
		app: a,
		ctx: ctx,
		tx:  state.Begin(a.store),
		buf: events.NewBuffer(),
		env: a.blockInfo(height + 1),
	}
	defer run.tx.Discard()

	resp, err := run.execute(sender, funds, msg)
	if err != nil {
		a.dispatches.finish(run.dispatched, DispatchFailed, err)
		a.logger.Debug("transaction rejected", "msg", msg.Type(), "sender", sender, "error", err)
		return nil, err
	}

	hash, err := run.seal(height + 1)
	if err != nil {
		a.dispatches.finish(run.dispatched, DispatchFailed, err)
		return nil, err
	}
	if err := run.tx.Commit(); err != nil {
		a.dispatches.finish(run.dispatched, DispatchFailed, err)
		return nil, fmt.Errorf("commit: %w", err)
	}
	a.dispatches.finish(run.dispatched, DispatchCommitted, nil)

	emitted := run.buf.Events()
	rendered := make([]*types.Event, 0, len(emitted))
	for _, ev := range emitted {
		rendered = append(rendered, events.Render(ev))
	}
	run.buf.FlushTo(a.subscribers)
	run.observe()

	return &Result{
		Height:     height + 1,
		AppHash:    hex.EncodeToString(hash),
		Attributes: resp.Attributes,
		Data:       resp.Data,
		Events:     rendered,
		Dispatches: run.dispatched,
	}, nil
}

func (r *execution) execute(sender string, funds types.Coins, msg Msg) (*types.Response, error) {
	a := r.app
	module := a.addrs.of(msg.Route())
	if module == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMsg, msg.Type())
	}
	funds, err := types.NewCoins(funds...)
	if err != nil {
		return nil, err
	}
	mods := a.modules(r.tx, r.buf)
	if !funds.IsZero() {
		if err := mods.Bank.Send(sender, module, funds); err != nil {
			return nil, err
		}
	}
	info := types.MessageInfo{Sender: sender, Funds: funds}
	resp, err := r.route(mods, info, msg)
	if err != nil {
		return nil, err
	}
	ids, err := r.dispatch(mods, module, resp)
	r.dispatched = append(r.dispatched, ids...)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *execution) route(m *Modules, info types.MessageInfo, msg Msg) (*types.Response, error) {
	env := r.env
	switch msg := msg.(type) {
	case CreateEpochMsg:
		ep, hooks, err := m.Epochs.CreateEpoch(info, env)
		if err != nil {
			return nil, err
		}
		r.created = &ep
		r.deliverHooks(ep, hooks)
		resp := types.NewResponse("create_epoch").
			AddAttribute("epoch_id", strconv.FormatUint(ep.ID, 10)).
			AddAttribute("hooks", strconv.Itoa(len(hooks)))
		resp.Data = ep
		return resp, nil
	case AddHookMsg:
		return m.Epochs.AddHook(info, msg.Hook)
	case RemoveHookMsg:
		return m.Epochs.RemoveHook(info, msg.Hook)
	case UpdateEpochConfigMsg:
		return m.Epochs.UpdateConfig(info, msg.Owner, msg.Config)

	case BondMsg:
		return m.Bonding.Bond(info, env, msg.Asset)
	case UnbondMsg:
		return m.Bonding.Unbond(info, env, msg.Asset)
	case WithdrawMsg:
		return m.Bonding.Withdraw(info, msg.Denom)
	case ClaimBondingMsg:
		return m.Bonding.Claim(info)
	case FillRewardsMsg:
		return m.Bonding.FillRewards(info)
	case UpdateBondingConfigMsg:
		return m.Bonding.UpdateConfig(info, msg.UpdateConfigMsg)

	case FillIncentiveMsg:
		return m.Incentive.FillIncentive(info, env, msg.IncentiveParams)
	case CloseIncentiveMsg:
		return m.Incentive.CloseIncentive(info, msg.Identifier)
	case FillPositionMsg:
		return m.Incentive.FillPosition(info, msg.Identifier, msg.UnlockingDuration, msg.Receiver)
	case ClosePositionMsg:
		return m.Incentive.ClosePosition(info, env, msg.Identifier, msg.LPAsset)
	case WithdrawPositionMsg:
		return m.Incentive.WithdrawPosition(info, env, msg.Identifier, msg.EmergencyUnlock)
	case WithdrawMaturedMsg:
		return m.Incentive.WithdrawMatured(info, env)
	case ClaimIncentivesMsg:
		return m.Incentive.Claim(info)
	case UpdateIncentiveConfigMsg:
		return m.Incentive.UpdateConfig(info, msg.UpdateConfigMsg)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownMsg, msg.Type())
}

// dispatch executes the sub-messages of resp on behalf of the module account
// from. The ids of every attempted sub-message are returned even on error.
func (r *execution) dispatch(m *Modules, from string, resp *types.Response) ([]uuid.UUID, error) {
	if resp == nil {
		return nil, nil
	}
	a := r.app
	claim := resp.Attributes["action"] == "claim"
	var ids []uuid.UUID
	for _, sub := range resp.Messages {
		rec := DispatchRecord{Height: r.env.Height, From: from, MsgType: sub.MsgType(), At: r.env.Time}
		switch sub := sub.(type) {
		case types.BankSend:
			rec.To, rec.Amount = sub.To, sub.Amount.Clone()
			id := a.dispatches.begin(rec)
			ids = append(ids, id)
			if err := m.Bank.Send(from, sub.To, sub.Amount); err != nil {
				return ids, fmt.Errorf("dispatch %s %s: %w", sub.MsgType(), id, err)
			}
			if claim {
				r.payouts = append(r.payouts, payout{module: a.addrs.module(from), coins: sub.Amount.Clone()})
			}
		case types.FillRewards:
			rec.To, rec.Amount = a.addrs.Bonding, sub.Amount.Clone()
			id := a.dispatches.begin(rec)
			ids = append(ids, id)
			if err := m.Bank.Send(from, a.addrs.Bonding, sub.Amount); err != nil {
				return ids, fmt.Errorf("dispatch %s %s: %w", sub.MsgType(), id, err)
			}
			filled, err := m.Bonding.FillRewards(types.MessageInfo{Sender: from, Funds: sub.Amount})
			if err != nil {
				return ids, fmt.Errorf("dispatch %s %s: %w", sub.MsgType(), id, err)
			}
			nested, err := r.dispatch(m, a.addrs.Bonding, filled)
			ids = append(ids, nested...)
			if err != nil {
				return ids, err
			}
		default:
			return ids, fmt.Errorf("%w: sub-message %s", ErrUnknownMsg, sub.MsgType())
		}
	}
	return ids, nil
}

// deliverHooks notifies every hook of ep. Each delivery runs in its own
// nested transaction. A failed delivery is rolled back on its own and never
// fails the epoch creation.
func (r *execution) deliverHooks(ep epoch.Epoch, hooks []string) {
	a := r.app
	info := types.MessageInfo{Sender: a.addrs.Epoch}
	for _, hook := range hooks {
		correlation := uuid.NewString()
		child := r.tx.Begin()
		mark := r.buf.Mark()

		ids, err := r.deliverHook(a.modules(child, r.buf), hook, info, ep)
		if err == nil {
			err = child.Commit()
		} else {
			child.Discard()
		}

		outcome := hookOutcome{module: a.addrs.module(hook), ok: err == nil}
		if outcome.module == "" {
			outcome.module = "external"
		}
		r.hooks = append(r.hooks, outcome)

		if err != nil {
			r.buf.Truncate(mark)
			a.dispatches.finish(ids, DispatchFailed, err)
			a.logger.Warn("epoch hook delivery failed",
				"hook", hook,
				"epoch_id", ep.ID,
				"correlation_id", correlation,
				"error", err)
			r.buf.Emit(events.HookDelivery{Hook: hook, Epoch: ep.ID, CorrelationID: correlation, Err: err.Error()})
			continue
		}
		r.dispatched = append(r.dispatched, ids...)
		r.buf.Emit(events.HookDelivery{Hook: hook, Epoch: ep.ID, CorrelationID: correlation})
	}
}

func (r *execution) deliverHook(m *Modules, hook string, info types.MessageInfo, ep epoch.Epoch) ([]uuid.UUID, error) {
	var (
		resp *types.Response
		err  error
	)
	switch r.app.addrs.module(hook) {
	case bonding.ModuleName:
		resp, err = m.Bonding.OnEpochChanged(info, ep)
	case incentive.ModuleName:
		resp, err = m.Incentive.OnEpochChanged(info, ep)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownHook, hook)
	}
	if err != nil {
		return nil, err
	}
	return r.dispatch(m, hook, resp)
}

// seal records the new height and chains the write set digest into the app
// hash.
func (r *execution) seal(height uint64) ([]byte, error) {
	m := state.NewManager(r.tx)
	var prev []byte
	if _, err := m.KVGet(appHashKey, &prev); err != nil {
		return nil, err
	}
	hash := ethcrypto.Keccak256(prev, r.tx.Digest())
	if err := m.KVPut(heightKey, height); err != nil {
		return nil, err
	}
	if err := m.KVPut(appHashKey, hash); err != nil {
		return nil, err
	}
	return hash, nil
}

// observe publishes metrics for a committed execution. It runs with the app
// lock held.
func (r *execution) observe() {
	a := r.app
	for _, h := range r.hooks {
		a.metrics.ObserveHookDelivery(h.module, h.ok)
	}
	for _, p := range r.payouts {
		for _, coin := range p.coins {
			a.metrics.ObserveRewardsPaid(p.module, coin.Denom, coin.Amount)
		}
	}
	if r.created == nil {
		return
	}
	a.metrics.ObserveEpochCreated(r.created.ID)

	view := state.Begin(a.store)
	defer view.Discard()
	m := a.modules(view, events.NoopEmitter{})
	if global, err := m.Bonding.GlobalIndex(nil); err == nil {
		a.metrics.SetGlobalWeight(global.LastWeight)
	}
	if active, err := countActiveIncentives(m, r.created.ID); err == nil {
		a.metrics.SetActiveIncentives(active)
	} else {
		a.logger.Debug("count active incentives", "error", err)
	}
}

func countActiveIncentives(m *Modules, current uint64) (int, error) {
	const page = 100
	active := 0
	after := ""
	for {
		batch, err := m.Incentive.Incentives(incentive.IncentivesFilter{}, after, page)
		if err != nil {
			return 0, err
		}
		for _, inc := range batch {
			if !inc.IsExpired(current) {
				active++
			}
		}
		if len(batch) < page {
			return active, nil
		}
		after = batch[len(batch)-1].Identifier
	}
}
