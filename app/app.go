package app

import (
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"whalehub/core/epoch"
	"whalehub/core/events"
	"whalehub/core/state"
	"whalehub/core/types"
	"whalehub/crypto"
	"whalehub/native/bank"
	"whalehub/native/bonding"
	"whalehub/native/incentive"
	"whalehub/observability/metrics"
	telemetry "whalehub/observability/otel"
)

const namespace = "app"

var (
	heightKey  = state.Key(namespace, "height")
	appHashKey = state.Key(namespace, "app_hash")
)

var (
	// ErrUnknownMsg is returned for message types that have no handler.
	ErrUnknownMsg = errors.New("app: unknown message type")
	// ErrNotInitialized is returned when genesis has not been applied.
	ErrNotInitialized = errors.New("app: genesis not applied")
	// ErrAlreadyInitialized is returned when genesis is applied twice.
	ErrAlreadyInitialized = errors.New("app: genesis already applied")
)

// Addresses holds the module accounts. Funds attached to a message land in
// the account of the module it is routed to and payouts leave from it.
type Addresses struct {
	Epoch     string `json:"epoch"`
	Bonding   string `json:"bonding"`
	Incentive string `json:"incentive"`
}

// ModuleAddresses derives the module accounts for prefix.
func ModuleAddresses(prefix string) Addresses {
	return Addresses{
		Epoch:     crypto.ModuleAddress(prefix, epoch.ModuleName).String(),
		Bonding:   crypto.ModuleAddress(prefix, bonding.ModuleName).String(),
		Incentive: crypto.ModuleAddress(prefix, incentive.ModuleName).String(),
	}
}

func (a Addresses) of(module string) string {
	switch module {
	case epoch.ModuleName:
		return a.Epoch
	case bonding.ModuleName:
		return a.Bonding
	case incentive.ModuleName:
		return a.Incentive
	}
	return ""
}

func (a Addresses) module(addr string) string {
	switch addr {
	case a.Epoch:
		return epoch.ModuleName
	case a.Bonding:
		return bonding.ModuleName
	case a.Incentive:
		return incentive.ModuleName
	}
	return ""
}

// Modules is one set of engines bound to a store. Every call gets a fresh set
// bound to its transaction.
type Modules struct {
	Bank      *bank.Keeper
	Epochs    *epoch.Manager
	Bonding   *bonding.Engine
	Incentive *incentive.Engine
}

// Option customises the App.
type Option func(*App)

func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithEmitter registers a subscriber for committed events.
func WithEmitter(emitter events.Emitter) Option {
	return func(a *App) {
		if emitter != nil {
			a.subscribers = append(a.subscribers, emitter)
		}
	}
}

// WithClock overrides the block time source.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		if now != nil {
			a.now = now
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(a *App) {
		if tracer != nil {
			a.tracer = tracer
		}
	}
}

func WithAddressPrefix(prefix string) Option {
	return func(a *App) {
		if prefix != "" {
			a.prefix = prefix
		}
	}
}

// WithDispatchLogSize bounds the number of sub-message records kept.
func WithDispatchLogSize(n int) Option {
	return func(a *App) {
		if n > 0 {
			a.dispatches = NewDispatchLog(n)
		}
	}
}

// App hosts the epoch, bonding and incentive managers over one store and
// executes messages against them one at a time.
type App struct {
	mu          sync.Mutex
	store       state.Store
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *metrics.HubMetrics
	subscribers events.MultiEmitter
	dispatches  *DispatchLog
	now         func() time.Time
	prefix      string
	addrs       Addresses
}

// New builds an App over store.
func New(store state.Store, opts ...Option) *App {
	a := &App{
		store:      store,
		logger:     slog.Default(),
		tracer:     telemetry.Tracer("app"),
		metrics:    metrics.Hub(),
		dispatches: NewDispatchLog(defaultDispatchLogSize),
		now:        time.Now,
		prefix:     crypto.DefaultPrefix,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.addrs = ModuleAddresses(a.prefix)
	return a
}

// Subscribe adds a subscriber for committed events.
func (a *App) Subscribe(emitter events.Emitter) {
	if emitter == nil {
		return
	}
	a.mu.Lock()
	a.subscribers = append(a.subscribers, emitter)
	a.mu.Unlock()
}

func (a *App) Addresses() Addresses { return a.addrs }

func (a *App) Prefix() string { return a.prefix }

// Dispatches exposes the sub-message log.
func (a *App) Dispatches() *DispatchLog { return a.dispatches }

func (a *App) modules(store state.Store, emitter events.Emitter) *Modules {
	bk := bank.NewKeeper()
	bk.SetState(store)
	bk.SetEmitter(emitter)

	em := epoch.NewManager()
	em.SetState(epoch.NewState(store))
	em.SetEmitter(emitter)
	em.SetLogger(a.logger.With("module", epoch.ModuleName))
	em.SetAddressPrefix(a.prefix)

	bd := bonding.NewEngine()
	bd.SetState(bonding.NewState(store))
	bd.SetEpochSource(em)
	bd.SetEmitter(emitter)
	bd.SetLogger(a.logger.With("module", bonding.ModuleName))
	bd.SetAddressPrefix(a.prefix)

	inc := incentive.NewEngine()
	inc.SetState(incentive.NewState(store))
	inc.SetEpochSource(em)
	inc.SetEmitter(emitter)
	inc.SetLogger(a.logger.With("module", incentive.ModuleName))
	inc.SetAddressPrefix(a.prefix)

	return &Modules{Bank: bk, Epochs: em, Bonding: bd, Incentive: inc}
}

// View runs fn against the committed state. Writes made by fn are dropped.
func (a *App) View(fn func(*Modules) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	tx := state.Begin(a.store)
	defer tx.Discard()
	return fn(a.modules(tx, events.NoopEmitter{}))
}

// CurrentEpoch returns the epoch with the highest id.
func (a *App) CurrentEpoch() (epoch.Epoch, error) {
	var out epoch.Epoch
	err := a.View(func(m *Modules) error {
		var err error
		out, err = m.Epochs.CurrentEpoch()
		return err
	})
	return out, err
}

// Height returns the number of committed transactions.
func (a *App) Height() (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return readHeight(state.NewManager(a.store))
}

// AppHash returns the running hash over every committed write set.
func (a *App) AppHash() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var hash []byte
	if _, err := state.NewManager(a.store).KVGet(appHashKey, &hash); err != nil {
		return nil, err
	}
	return hash, nil
}

func readHeight(m *state.Manager) (uint64, error) {
	var height uint64
	if _, err := m.KVGet(heightKey, &height); err != nil {
		return 0, err
	}
	return height, nil
}

func (a *App) blockInfo(height uint64) types.BlockInfo {
	return types.BlockInfo{Height: height, Time: a.now().UTC()}
}

// normalize dereferences messages decoded through the registry so handlers
// only see values.
func normalize(msg Msg) Msg {
	v := reflect.ValueOf(msg)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		if inner, ok := v.Elem().Interface().(Msg); ok {
			return inner
		}
	}
	return msg
}
