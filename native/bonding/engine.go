package bonding

import (
	"errors"
	"log/slog"
	"time"

	"whalehub/core/epoch"
	"whalehub/core/events"
	"whalehub/core/state"
	"whalehub/core/types"
	"whalehub/core/version"
	"whalehub/crypto"
)

const (
	ModuleName      = "bonding"
	ContractName    = "white_whale-bonding_manager"
	ContractVersion = "1.0.0"
)

// bondingWindow is how long after an epoch starts bonds may still change
// before the next epoch must be created.
const bondingWindow = 24 * time.Hour

var (
	errNilState  = errors.New("bonding engine: state not configured")
	errNilEpochs = errors.New("bonding engine: epoch source not configured")
)

type engineState interface {
	Manager() *state.Manager
	ConfigGet() (*Config, bool, error)
	ConfigPut(*Config) error
	NextBondID() (uint64, error)
	BondGet(id uint64) (*Bond, bool, error)
	BondPut(*Bond) error
	BondDelete(*Bond) error
	BondsByReceiver(addr string, bonding *bool, denom string) ([]*Bond, error)
	GlobalGet() (GlobalIndex, bool, error)
	GlobalPut(GlobalIndex) error
	LastClaimedGet(addr string) (uint64, bool, error)
	LastClaimedPut(addr string, epoch uint64) error
	BucketGet(id uint64) (*RewardBucket, bool, error)
	BucketPut(*RewardBucket) error
	BucketsFrom(from uint64) ([]*RewardBucket, error)
	HasBuckets() (bool, error)
	UpcomingGet() (types.Coins, error)
	UpcomingPut(types.Coins) error
}

// EpochSource answers current-epoch queries.
type EpochSource interface {
	CurrentEpoch() (epoch.Epoch, error)
}

// Engine is the bonding manager. It tracks time-weighted bonds and distributes
// per-epoch reward buckets pro rata to weight.
type Engine struct {
	state   engineState
	epochs  EpochSource
	emitter events.Emitter
	logger  *slog.Logger
	prefix  string
}

// NewEngine creates a bonding engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		prefix:  crypto.DefaultPrefix,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(s engineState) { e.state = s }

// SetEpochSource configures where the current epoch is read from.
func (e *Engine) SetEpochSource(src EpochSource) { e.epochs = src }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

func (e *Engine) SetAddressPrefix(prefix string) { e.prefix = prefix }

func (e *Engine) emit(ev events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(ev)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.epochs == nil {
		return errNilEpochs
	}
	return nil
}

func (e *Engine) config() (*Config, error) {
	cfg, ok, err := e.state.ConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInstantiated
	}
	return cfg, nil
}

// Instantiate stores the initial configuration. The sender becomes the owner.
func (e *Engine) Instantiate(info types.MessageInfo, msg InstantiateMsg) (*types.Response, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, ok, err := e.state.ConfigGet(); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyInstantiated
	}
	owner, err := crypto.ValidateAddress(e.prefix, info.Sender)
	if err != nil {
		return nil, err
	}
	epochManager, err := crypto.ValidateAddress(e.prefix, msg.EpochManagerAddr)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Owner:            owner,
		EpochManagerAddr: epochManager,
		UnbondingPeriod:  msg.UnbondingPeriod,
		GrowthRate:       msg.GrowthRate,
		BondingAssets:    append([]string{}, msg.BondingAssets...),
		GracePeriod:      msg.GracePeriod,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := version.Set(e.state.Manager(), ModuleName, version.ContractVersion{Contract: ContractName, Version: ContractVersion}); err != nil {
		return nil, err
	}
	if err := e.state.ConfigPut(cfg); err != nil {
		return nil, err
	}
	if err := e.state.UpcomingPut(nil); err != nil {
		return nil, err
	}
	return types.NewResponse("instantiate").
		AddAttribute("owner", cfg.Owner).
		AddAttribute("growth_rate", cfg.GrowthRate.String()), nil
}

// UpdateConfig applies the non-nil fields of msg. Owner only.
func (e *Engine) UpdateConfig(info types.MessageInfo, msg UpdateConfigMsg) (*types.Response, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if info.Sender != cfg.Owner {
		return nil, ErrUnauthorized
	}
	if msg.Owner != nil {
		if cfg.Owner, err = crypto.ValidateAddress(e.prefix, *msg.Owner); err != nil {
			return nil, err
		}
	}
	if msg.EpochManagerAddr != nil {
		if cfg.EpochManagerAddr, err = crypto.ValidateAddress(e.prefix, *msg.EpochManagerAddr); err != nil {
			return nil, err
		}
	}
	if msg.UnbondingPeriod != nil {
		cfg.UnbondingPeriod = *msg.UnbondingPeriod
	}
	if msg.GrowthRate != nil {
		cfg.GrowthRate = *msg.GrowthRate
	}
	if msg.GracePeriod != nil {
		cfg.GracePeriod = *msg.GracePeriod
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := e.state.ConfigPut(cfg); err != nil {
		return nil, err
	}
	return types.NewResponse("update_config").
		AddAttribute("epoch_manager_addr", cfg.EpochManagerAddr).
		AddAttribute("growth_rate", cfg.GrowthRate.String()), nil
}

// Migrate records a newer contract version.
func (e *Engine) Migrate(next string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return version.Migrate(e.state.Manager(), ModuleName, version.ContractVersion{Contract: ContractName, Version: next})
}

func (e *Engine) currentEpoch() (epoch.Epoch, error) {
	return e.epochs.CurrentEpoch()
}
