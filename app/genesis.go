package app

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"whalehub/core/epoch"
	"whalehub/core/events"
	"whalehub/core/state"
	"whalehub/core/types"
	"whalehub/crypto"
	"whalehub/native/bonding"
	"whalehub/native/incentive"
)

var genesisKey = state.Key(namespace, "genesis_time")

// Balance is an initial account balance.
type Balance struct {
	Address string      `json:"address"`
	Coins   types.Coins `json:"coins"`
}

// Genesis describes the initial state of the hub. Empty manager addresses in
// the instantiate messages default to the module accounts.
type Genesis struct {
	GenesisTime  time.Time                `json:"genesis_time"`
	Owner        string                   `json:"owner"`
	StartEpochID uint64                   `json:"start_epoch_id"`
	Epoch        epoch.Config             `json:"epoch_config"`
	Bonding      bonding.InstantiateMsg   `json:"bonding"`
	Incentive    incentive.InstantiateMsg `json:"incentive"`
	Balances     []Balance                `json:"balances"`
}

// InitChain applies genesis to an empty store. The three managers are
// instantiated by the owner, the bonding and incentive managers are
// registered as epoch hooks and the start epoch is delivered to both so the
// first reward bucket and weight snapshots exist.
func (a *App) InitChain(ctx context.Context, g Genesis) (*Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ok, err := state.NewManager(a.store).KVHas(genesisKey); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyInitialized
	}
	if g.GenesisTime.IsZero() {
		return nil, errors.New("app: genesis time required")
	}
	owner, err := crypto.ValidateAddress(a.prefix, g.Owner)
	if err != nil {
		return nil, fmt.Errorf("genesis owner: %w", err)
	}

	run := &execution{
		app: a,
		ctx: ctx,
		tx:  state.Begin(a.store),
		buf: events.NewBuffer(),
		env: types.BlockInfo{Height: 0, Time: g.GenesisTime.UTC()},
	}
	defer run.tx.Discard()
	mods := a.modules(run.tx, run.buf)

	for _, bal := range g.Balances {
		addr, err := crypto.ValidateAddress(a.prefix, bal.Address)
		if err != nil {
			return nil, fmt.Errorf("genesis balance: %w", err)
		}
		if err := mods.Bank.Mint(addr, bal.Coins); err != nil {
			return nil, fmt.Errorf("genesis balance %s: %w", addr, err)
		}
	}

	info := types.MessageInfo{Sender: owner}
	startID := g.StartEpochID
	if startID == 0 {
		startID = 1
	}
	cfg := g.Epoch
	cfg.GenesisEpoch = run.env.Time
	start := epoch.Epoch{ID: startID, StartTime: run.env.Time}
	if _, err := mods.Epochs.Instantiate(info, run.env, start, cfg); err != nil {
		return nil, fmt.Errorf("instantiate epoch manager: %w", err)
	}

	bondingMsg := g.Bonding
	if bondingMsg.EpochManagerAddr == "" {
		bondingMsg.EpochManagerAddr = a.addrs.Epoch
	}
	if _, err := mods.Bonding.Instantiate(info, bondingMsg); err != nil {
		return nil, fmt.Errorf("instantiate bonding manager: %w", err)
	}

	incentiveMsg := g.Incentive
	if incentiveMsg.EpochManagerAddr == "" {
		incentiveMsg.EpochManagerAddr = a.addrs.Epoch
	}
	if incentiveMsg.BondingManagerAddr == "" {
		incentiveMsg.BondingManagerAddr = a.addrs.Bonding
	}
	if _, err := mods.Incentive.Instantiate(info, incentiveMsg); err != nil {
		return nil, fmt.Errorf("instantiate incentive manager: %w", err)
	}

	for _, hook := range []string{a.addrs.Bonding, a.addrs.Incentive} {
		if _, err := mods.Epochs.AddHook(info, hook); err != nil {
			return nil, fmt.Errorf("register hook %s: %w", hook, err)
		}
	}
	run.deliverHooks(start, []string{a.addrs.Bonding, a.addrs.Incentive})
	for _, h := range run.hooks {
		if !h.ok {
			return nil, fmt.Errorf("genesis: %s hook rejected the start epoch", h.module)
		}
	}

	m := state.NewManager(run.tx)
	if err := m.SetStateVersion(state.StateVersion); err != nil {
		return nil, err
	}
	if err := m.KVPut(genesisKey, uint64(run.env.Time.Unix())); err != nil {
		return nil, err
	}
	hash, err := run.seal(0)
	if err != nil {
		return nil, err
	}
	if err := run.tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit genesis: %w", err)
	}
	a.dispatches.finish(run.dispatched, DispatchCommitted, nil)

	emitted := run.buf.Events()
	rendered := make([]*types.Event, 0, len(emitted))
	for _, ev := range emitted {
		rendered = append(rendered, events.Render(ev))
	}
	run.buf.FlushTo(a.subscribers)
	a.metrics.ObserveEpochCreated(start.ID)

	a.logger.Info("genesis applied",
		"owner", owner,
		"start_epoch", start.ID,
		"epoch_duration", cfg.Duration.String(),
		"balances", len(g.Balances))
	return &Result{Height: 0, AppHash: hex.EncodeToString(hash), Events: rendered}, nil
}

// Initialized reports whether genesis has been applied to the store.
func (a *App) Initialized() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return state.NewManager(a.store).KVHas(genesisKey)
}

// Migrate records a newer contract version for module. The stored version
// must be older and carry the same contract name.
func (a *App) Migrate(module, version string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	tx := state.Begin(a.store)
	defer tx.Discard()
	mods := a.modules(tx, events.NoopEmitter{})
	var err error
	switch module {
	case epoch.ModuleName:
		err = mods.Epochs.Migrate(version)
	case bonding.ModuleName:
		err = mods.Bonding.Migrate(version)
	case incentive.ModuleName:
		err = mods.Incentive.Migrate(version)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMsg, module)
	}
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	a.logger.Info("module migrated", "module", module, "version", version)
	return nil
}
