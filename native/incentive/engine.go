package incentive

import (
	"errors"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"whalehub/core/epoch"
	"whalehub/core/events"
	"whalehub/core/state"
	"whalehub/core/types"
	"whalehub/core/version"
	"whalehub/crypto"
)

const (
	ModuleName      = "incentive"
	ContractName    = "white_whale-incentive_manager"
	ContractVersion = "1.0.0"
)

// epochWindow is how long after an epoch starts incentives may be created
// before the next epoch must be created.
const epochWindow = 24 * time.Hour

var (
	errNilState  = errors.New("incentive engine: state not configured")
	errNilEpochs = errors.New("incentive engine: epoch source not configured")
)

type engineState interface {
	Manager() *state.Manager
	ConfigGet() (*Config, bool, error)
	ConfigPut(*Config) error
	NextIncentiveID() (uint64, error)
	NextPositionID() (uint64, error)
	IncentiveGet(identifier string) (*Incentive, bool, error)
	IncentivePut(*Incentive) error
	IncentiveDelete(*Incentive) error
	IncentivesByLP(lp string) ([]*Incentive, error)
	IncentivesByStart() ([]*Incentive, error)
	Incentives(startAfter string, limit int, keep func(*Incentive) bool) ([]*Incentive, error)
	PositionGet(identifier string) (*Position, bool, error)
	PositionPut(*Position) error
	PositionDelete(*Position) error
	PositionsByReceiver(addr string, open *bool) ([]*Position, error)
	AddressWeights(addr, denom string) (weightHistory, error)
	AddressWeightPut(addr, denom string, epoch uint64, weight *big.Int) error
	LPWeights(denom string) (weightHistory, error)
	LPWeightPut(denom string, epoch uint64, weight *big.Int) error
	LPDenomMark(denom string) error
	LPDenoms() ([]string, error)
	LastClaimedGet(addr string) (uint64, bool, error)
	LastClaimedPut(addr string, epoch uint64) error
}

// EpochSource answers current-epoch queries.
type EpochSource interface {
	CurrentEpoch() (epoch.Epoch, error)
}

// Engine is the incentive manager. It holds LP positions, weighs them by lock
// duration and pays out per-epoch incentive emissions pro rata to weight.
type Engine struct {
	state   engineState
	epochs  EpochSource
	emitter events.Emitter
	logger  *slog.Logger
	prefix  string
}

// NewEngine creates an incentive engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		prefix:  crypto.DefaultPrefix,
	}
}

func (e *Engine) SetState(s engineState) { e.state = s }

func (e *Engine) SetEpochSource(src EpochSource) { e.epochs = src }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
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

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }

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
	bondingManager, err := crypto.ValidateAddress(e.prefix, msg.BondingManagerAddr)
	if err != nil {
		return nil, err
	}
	epochManager, err := crypto.ValidateAddress(e.prefix, msg.EpochManagerAddr)
	if err != nil {
		return nil, err
	}
	grace := msg.ClaimGracePeriod
	if grace == 0 {
		grace = DefaultIncentiveDuration
	}
	cfg := &Config{
		Owner:                   owner,
		BondingManagerAddr:      bondingManager,
		EpochManagerAddr:        epochManager,
		CreateIncentiveFee:      msg.CreateIncentiveFee.Clone(),
		MaxConcurrentIncentives: msg.MaxConcurrentIncentives,
		MaxIncentiveEpochBuffer: msg.MaxIncentiveEpochBuffer,
		MinUnlockingDuration:    msg.MinUnlockingDuration,
		MaxUnlockingDuration:    msg.MaxUnlockingDuration,
		EmergencyUnlockPenalty:  msg.EmergencyUnlockPenalty,
		ClaimGracePeriod:        grace,
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
	return types.NewResponse("instantiate").
		AddAttribute("owner", cfg.Owner).
		AddAttribute("max_concurrent_incentives", strconv.FormatUint(uint64(cfg.MaxConcurrentIncentives), 10)), nil
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
	if !info.Funds.IsZero() {
		return nil, ErrNonPayable
	}
	if msg.Owner != nil {
		if cfg.Owner, err = crypto.ValidateAddress(e.prefix, *msg.Owner); err != nil {
			return nil, err
		}
	}
	if msg.BondingManagerAddr != nil {
		if cfg.BondingManagerAddr, err = crypto.ValidateAddress(e.prefix, *msg.BondingManagerAddr); err != nil {
			return nil, err
		}
	}
	if msg.EpochManagerAddr != nil {
		if cfg.EpochManagerAddr, err = crypto.ValidateAddress(e.prefix, *msg.EpochManagerAddr); err != nil {
			return nil, err
		}
	}
	if msg.CreateIncentiveFee != nil {
		cfg.CreateIncentiveFee = msg.CreateIncentiveFee.Clone()
	}
	if msg.MaxConcurrentIncentives != nil {
		cfg.MaxConcurrentIncentives = *msg.MaxConcurrentIncentives
	}
	if msg.MaxIncentiveEpochBuffer != nil {
		cfg.MaxIncentiveEpochBuffer = *msg.MaxIncentiveEpochBuffer
	}
	if msg.MinUnlockingDuration != nil {
		cfg.MinUnlockingDuration = *msg.MinUnlockingDuration
	}
	if msg.MaxUnlockingDuration != nil {
		cfg.MaxUnlockingDuration = *msg.MaxUnlockingDuration
	}
	if msg.EmergencyUnlockPenalty != nil {
		cfg.EmergencyUnlockPenalty = *msg.EmergencyUnlockPenalty
	}
	if msg.ClaimGracePeriod != nil {
		cfg.ClaimGracePeriod = *msg.ClaimGracePeriod
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := e.state.ConfigPut(cfg); err != nil {
		return nil, err
	}
	return types.NewResponse("update_config").
		AddAttribute("owner", cfg.Owner).
		AddAttribute("emergency_unlock_penalty", cfg.EmergencyUnlockPenalty.String()), nil
}

// Migrate records a newer contract version.
func (e *Engine) Migrate(next string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return version.Migrate(e.state.Manager(), ModuleName, version.ContractVersion{Contract: ContractName, Version: next})
}

// OnEpochChanged is the epoch hook. Every LP denom without a weight snapshot
// for the new epoch gets one carried forward from its latest entry.
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
	denoms, err := e.state.LPDenoms()
	if err != nil {
		return nil, err
	}
	snapshots := 0
	for _, denom := range denoms {
		history, err := e.state.LPWeights(denom)
		if err != nil {
			return nil, err
		}
		if _, ok := history.at(ep.ID); ok {
			continue
		}
		weight, _ := history.latest(ep.ID)
		if err := e.state.LPWeightPut(denom, ep.ID, weight); err != nil {
			return nil, err
		}
		snapshots++
	}
	e.logger.Info("lp weights snapshotted",
		slog.Uint64("epoch_id", ep.ID),
		slog.Int("snapshots", snapshots))
	return types.NewResponse("epoch_changed_hook").
		AddAttribute("epoch_id", formatID(ep.ID)).
		AddAttribute("snapshots", strconv.Itoa(snapshots)), nil
}
