package epoch

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"whalehub/core/events"
	"whalehub/core/state"
	"whalehub/core/types"
	"whalehub/core/version"
	"whalehub/crypto"
)

const (
	// ModuleName keys the module account and version record.
	ModuleName      = "epoch"
	ContractName    = "white-whale_epoch-manager"
	ContractVersion = "1.0.0"
)

var errNilState = errors.New("epoch manager: state not configured")

type engineState interface {
	Manager() *state.Manager
	ConfigGet() (Config, bool, error)
	ConfigPut(Config) error
	OwnerGet() (string, error)
	OwnerPut(string) error
	HooksGet() ([]string, error)
	HooksPut([]string) error
	EpochGet(id uint64) (Epoch, bool, error)
	EpochPut(Epoch) error
	EpochDelete(id uint64) error
	CurrentID() (uint64, bool, error)
	OldestID() (uint64, bool, error)
	OldestPut(uint64) error
	StartIDGet() (uint64, error)
	StartIDPut(uint64) error
}

// Manager is the epoch clock. It creates epochs at fixed intervals and keeps
// the hook registry notified on every advance.
type Manager struct {
	state   engineState
	emitter events.Emitter
	logger  *slog.Logger
	prefix  string
}

// NewManager creates an epoch manager with a no-op emitter.
func NewManager() *Manager {
	return &Manager{
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		prefix:  crypto.DefaultPrefix,
	}
}

// SetState configures the state backend used by the manager.
func (m *Manager) SetState(s engineState) { m.state = s }

// SetEmitter configures the event emitter. Passing nil resets the emitter to a
// no-op implementation.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

func (m *Manager) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	m.logger = logger
}

// SetAddressPrefix overrides the bech32 prefix used to validate hooks.
func (m *Manager) SetAddressPrefix(prefix string) { m.prefix = prefix }

func (m *Manager) emit(e events.Event) {
	if m == nil || m.emitter == nil {
		return
	}
	m.emitter.Emit(e)
}

func (m *Manager) ready() error {
	if m == nil || m.state == nil {
		return errNilState
	}
	return nil
}

// Instantiate stores the first epoch and the clock configuration. The sender
// becomes the owner.
func (m *Manager) Instantiate(info types.MessageInfo, env types.BlockInfo, start Epoch, cfg Config) (*types.Response, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	if _, ok, err := m.state.ConfigGet(); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyInstantiated
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if start.StartTime.Before(env.Time) {
		return nil, ErrInvalidStartTime
	}
	if !cfg.GenesisEpoch.Equal(start.StartTime) {
		return nil, ErrEpochConfigMismatch
	}
	owner, err := crypto.ValidateAddress(m.prefix, info.Sender)
	if err != nil {
		return nil, err
	}
	if err := version.Set(m.state.Manager(), ModuleName, version.ContractVersion{Contract: ContractName, Version: ContractVersion}); err != nil {
		return nil, err
	}
	if err := m.state.OwnerPut(owner); err != nil {
		return nil, err
	}
	if err := m.state.ConfigPut(cfg); err != nil {
		return nil, err
	}
	if err := m.state.EpochPut(start); err != nil {
		return nil, err
	}
	if err := m.state.StartIDPut(start.ID); err != nil {
		return nil, err
	}
	if err := m.state.HooksPut(nil); err != nil {
		return nil, err
	}
	return types.NewResponse("instantiate").
		AddAttribute("start_epoch", start.String()).
		AddAttribute("epoch_config", cfg.String()), nil
}

// CreateEpoch advances the clock by one epoch when the current one has run for
// the configured duration. The new epoch starts exactly one duration after the
// previous one regardless of when the call lands. The registered hooks are
// returned so the caller can deliver EpochChangedHook to each of them.
func (m *Manager) CreateEpoch(info types.MessageInfo, env types.BlockInfo) (Epoch, []string, error) {
	if err := m.ready(); err != nil {
		return Epoch{}, nil, err
	}
	if !info.Funds.IsZero() {
		return Epoch{}, nil, ErrNonPayable
	}
	cfg, err := m.config()
	if err != nil {
		return Epoch{}, nil, err
	}
	if env.Time.Before(cfg.GenesisEpoch) {
		return Epoch{}, nil, ErrGenesisEpochHasNotStarted
	}
	current, err := m.CurrentEpoch()
	if err != nil {
		return Epoch{}, nil, err
	}
	if env.Time.Sub(current.StartTime) < cfg.Duration {
		return Epoch{}, nil, ErrCurrentEpochNotExpired
	}
	if current.ID == math.MaxUint64 {
		return Epoch{}, nil, ErrEpochOverflow
	}
	next := Epoch{ID: current.ID + 1, StartTime: current.StartTime.Add(cfg.Duration)}
	if err := m.state.EpochPut(next); err != nil {
		return Epoch{}, nil, err
	}
	if err := m.prune(next.ID, cfg.Retention); err != nil {
		return Epoch{}, nil, err
	}
	hooks, err := m.state.HooksGet()
	if err != nil {
		return Epoch{}, nil, err
	}
	m.emit(events.EpochCreated{ID: next.ID, StartTime: next.StartTime.UnixNano()})
	m.logger.Info("epoch created", "epoch_id", next.ID, "start_time", next.StartTime, "hooks", len(hooks))
	return next, hooks, nil
}

func (m *Manager) prune(current, retention uint64) error {
	if retention == 0 || current < retention {
		return nil
	}
	oldest, ok, err := m.state.OldestID()
	if err != nil || !ok {
		return err
	}
	keepFrom := current - retention + 1
	for id := oldest; id < keepFrom; id++ {
		if err := m.state.EpochDelete(id); err != nil {
			return err
		}
	}
	if keepFrom > oldest {
		return m.state.OldestPut(keepFrom)
	}
	return nil
}

// AddHook registers addr for epoch change notifications.
func (m *Manager) AddHook(info types.MessageInfo, addr string) (*types.Response, error) {
	if err := m.assertOwner(info.Sender); err != nil {
		return nil, err
	}
	hook, err := crypto.ValidateAddress(m.prefix, addr)
	if err != nil {
		return nil, err
	}
	hooks, err := m.state.HooksGet()
	if err != nil {
		return nil, err
	}
	for _, existing := range hooks {
		if existing == hook {
			return nil, ErrHookAlreadyRegistered
		}
	}
	if err := m.state.HooksPut(append(hooks, hook)); err != nil {
		return nil, err
	}
	m.emit(events.HookChanged{Hook: hook})
	return types.NewResponse("add_hook").AddAttribute("hook", hook), nil
}

// RemoveHook unregisters addr.
func (m *Manager) RemoveHook(info types.MessageInfo, addr string) (*types.Response, error) {
	if err := m.assertOwner(info.Sender); err != nil {
		return nil, err
	}
	hook, err := crypto.ValidateAddress(m.prefix, addr)
	if err != nil {
		return nil, err
	}
	hooks, err := m.state.HooksGet()
	if err != nil {
		return nil, err
	}
	kept := make([]string, 0, len(hooks))
	found := false
	for _, existing := range hooks {
		if existing == hook {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	if !found {
		return nil, ErrHookNotRegistered
	}
	if err := m.state.HooksPut(kept); err != nil {
		return nil, err
	}
	m.emit(events.HookChanged{Hook: hook, Removed: true})
	return types.NewResponse("remove_hook").AddAttribute("hook", hook), nil
}

// UpdateConfig replaces the owner and/or the clock configuration.
func (m *Manager) UpdateConfig(info types.MessageInfo, owner *string, cfg *Config) (*types.Response, error) {
	if err := m.assertOwner(info.Sender); err != nil {
		return nil, err
	}
	resp := types.NewResponse("update_config")
	if owner != nil {
		validated, err := crypto.ValidateAddress(m.prefix, *owner)
		if err != nil {
			return nil, err
		}
		if err := m.state.OwnerPut(validated); err != nil {
			return nil, err
		}
		resp.AddAttribute("owner", validated)
	}
	if cfg != nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if err := m.state.ConfigPut(*cfg); err != nil {
			return nil, err
		}
		resp.AddAttribute("epoch_config", cfg.String())
	}
	return resp, nil
}

// Migrate records a newer contract version.
func (m *Manager) Migrate(next string) error {
	if err := m.ready(); err != nil {
		return err
	}
	return version.Migrate(m.state.Manager(), ModuleName, version.ContractVersion{Contract: ContractName, Version: next})
}

func (m *Manager) assertOwner(sender string) error {
	if err := m.ready(); err != nil {
		return err
	}
	owner, err := m.state.OwnerGet()
	if err != nil {
		return err
	}
	if owner == "" || owner != sender {
		return ErrUnauthorized
	}
	return nil
}

func (m *Manager) config() (Config, error) {
	cfg, ok, err := m.state.ConfigGet()
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Config{}, ErrNotInstantiated
	}
	return cfg, nil
}

// Config returns the owner and clock configuration.
func (m *Manager) Config() (ConfigResponse, error) {
	if err := m.ready(); err != nil {
		return ConfigResponse{}, err
	}
	cfg, err := m.config()
	if err != nil {
		return ConfigResponse{}, err
	}
	owner, err := m.state.OwnerGet()
	if err != nil {
		return ConfigResponse{}, err
	}
	return ConfigResponse{Owner: owner, Config: cfg}, nil
}

// CurrentEpoch returns the epoch with the highest id.
func (m *Manager) CurrentEpoch() (Epoch, error) {
	if err := m.ready(); err != nil {
		return Epoch{}, err
	}
	id, ok, err := m.state.CurrentID()
	if err != nil {
		return Epoch{}, err
	}
	if !ok {
		return Epoch{}, ErrNoEpochs
	}
	e, ok, err := m.state.EpochGet(id)
	if err != nil {
		return Epoch{}, err
	}
	if !ok {
		return Epoch{}, fmt.Errorf("epoch manager: current epoch %d missing from state", id)
	}
	return e, nil
}

// Epoch returns the epoch with the given id. Epochs dropped by retention are
// reconstructed from the current epoch and the configured duration.
func (m *Manager) Epoch(id uint64) (Epoch, error) {
	if err := m.ready(); err != nil {
		return Epoch{}, err
	}
	current, err := m.CurrentEpoch()
	if err != nil {
		return Epoch{}, err
	}
	if id > current.ID {
		return Epoch{}, noEpochFound(id)
	}
	stored, ok, err := m.state.EpochGet(id)
	if err != nil {
		return Epoch{}, err
	}
	if ok {
		return stored, nil
	}
	startID, err := m.state.StartIDGet()
	if err != nil {
		return Epoch{}, err
	}
	if id < startID {
		return Epoch{}, noEpochFound(id)
	}
	cfg, err := m.config()
	if err != nil {
		return Epoch{}, err
	}
	back := time.Duration(current.ID-id) * cfg.Duration
	return Epoch{ID: id, StartTime: current.StartTime.Add(-back)}, nil
}

// Hooks returns the registered hook addresses in registration order.
func (m *Manager) Hooks() ([]string, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	hooks, err := m.state.HooksGet()
	if err != nil {
		return nil, err
	}
	return append([]string{}, hooks...), nil
}

// Hook reports whether addr is registered.
func (m *Manager) Hook(addr string) (bool, error) {
	hooks, err := m.Hooks()
	if err != nil {
		return false, err
	}
	for _, h := range hooks {
		if h == addr {
			return true, nil
		}
	}
	return false, nil
}
