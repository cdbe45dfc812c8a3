package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"whalehub/app"
	"whalehub/cmd/internal/secret"
	"whalehub/config"
	"whalehub/core/state"
	"whalehub/crypto"
	"whalehub/observability/logging"
	telemetry "whalehub/observability/otel"
	"whalehub/rpc"
	"whalehub/services/indexer"
	"whalehub/storage"
)

const buildVersion = "0.1.0"

type options struct {
	configPath  string
	genesisPath string
	initGenesis bool
	owner       string
	migrate     string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "./config.toml", "Path to the configuration file")
	flag.StringVar(&opts.genesisPath, "genesis", "", "Path to the genesis file (overrides GenesisFile in the config)")
	flag.BoolVar(&opts.initGenesis, "init-genesis", false, "Write a development genesis when the genesis file is missing")
	flag.StringVar(&opts.owner, "owner", "", "Owner address used by -init-genesis")
	flag.StringVar(&opts.migrate, "migrate", "", "Record a module upgrade as module=version and exit")
	flag.Parse()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logOpts := []logging.Option{logging.WithLevel(logging.ParseLevel(cfg.Log.Level))}
	if cfg.Log.File != "" {
		logOpts = append(logOpts, logging.WithFile(logging.FileSink{
			Path:       config.ResolvePath(opts.configPath, cfg.Log.File),
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		}))
	}
	logger, closer := logging.Setup("whalehubd", cfg.Environment, logOpts...)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error("whalehubd stopped", "error", err)
		stop()
		closer.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger) error {
	shutdown, err := telemetry.Init(ctx, telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	dataDir := config.ResolvePath(opts.configPath, cfg.DataDir)
	db, err := storage.Open(cfg.StorageBackend, dataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()
	store := state.NewDBStore(db)
	if err := state.EnsureStateVersion(store); err != nil {
		return err
	}

	appOpts := []app.Option{
		app.WithLogger(logger),
		app.WithAddressPrefix(cfg.AddressPrefix),
		app.WithTracer(telemetry.Tracer("app")),
	}
	var index *indexer.Indexer
	if cfg.Indexer.Enabled {
		dsn := cfg.Indexer.DSN
		if strings.EqualFold(cfg.Indexer.Driver, indexer.DriverSQLite) {
			dsn = config.ResolvePath(opts.configPath, dsn)
		}
		index, err = indexer.Open(cfg.Indexer.Driver, dsn, logger.With("component", "indexer"))
		if err != nil {
			return err
		}
		defer index.Close()
		appOpts = append(appOpts, app.WithEmitter(index))
	}
	hub := app.New(store, appOpts...)

	if opts.migrate != "" {
		module, version, err := parseMigrate(opts.migrate)
		if err != nil {
			return err
		}
		if err := hub.Migrate(module, version); err != nil {
			return err
		}
		logger.Info("module migrated", "module", module, "version", version)
		return nil
	}

	if err := ensureGenesis(ctx, hub, cfg, opts, logger); err != nil {
		return err
	}

	jwtSecret, err := secret.NewSource(cfg.API.JWTSecretEnv, "API signing secret", false).Get()
	if err != nil {
		logger.Warn("transaction endpoint disabled", "reason", err.Error())
	}
	server := rpc.NewServer(hub, rpc.Config{
		Auth:               rpc.AuthConfig{HMACSecret: jwtSecret, Issuer: cfg.API.JWTIssuer},
		RateLimitPerSecond: cfg.API.RateLimitPerSecond,
		RateLimitBurst:     cfg.API.RateLimitBurst,
		ReadHeaderTimeout:  cfg.API.ReadHeaderTimeout(),
		AllowedOrigins:     cfg.API.AllowedOrigins,
	}, logger.With("component", "rpc"))
	if index != nil {
		server.SetIndex(index)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 2)
	go func() { errCh <- server.Serve(runCtx, cfg.API.ListenAddress) }()
	go func() { errCh <- hub.RunTicker(runCtx, cfg.TickInterval()) }()

	var firstErr error
	for i := 0; i < 2; i++ {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
			firstErr = err
		}
		cancel()
	}
	logger.Info("whalehubd shut down")
	return firstErr
}

func ensureGenesis(ctx context.Context, hub *app.App, cfg *config.Config, opts options, logger *slog.Logger) error {
	ok, err := hub.Initialized()
	if err != nil {
		return err
	}
	if ok {
		height, err := hub.Height()
		if err != nil {
			return err
		}
		logger.Info("resuming from stored state", "height", height)
		return nil
	}
	path := resolveGenesisPath(opts, cfg)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if !opts.initGenesis {
			return fmt.Errorf("genesis file %s not found; pass -init-genesis to create one", path)
		}
		owner, err := crypto.ValidateAddress(cfg.AddressPrefix, opts.owner)
		if err != nil {
			return fmt.Errorf("-owner: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := config.WriteGenesis(path, config.DefaultGenesis(owner, time.Now())); err != nil {
			return err
		}
		logger.Info("development genesis written", "path", path, "owner", owner)
	} else if err != nil {
		return err
	}
	genesis, err := config.LoadGenesis(path)
	if err != nil {
		return err
	}
	if _, err := hub.InitChain(ctx, genesis); err != nil {
		return fmt.Errorf("init chain: %w", err)
	}
	return nil
}

func resolveGenesisPath(opts options, cfg *config.Config) string {
	if opts.genesisPath != "" {
		return opts.genesisPath
	}
	return config.ResolvePath(opts.configPath, cfg.GenesisFile)
}

func parseMigrate(raw string) (string, string, error) {
	module, version, ok := strings.Cut(strings.TrimSpace(raw), "=")
	module, version = strings.TrimSpace(module), strings.TrimSpace(version)
	if !ok || module == "" || version == "" {
		return "", "", fmt.Errorf("invalid -migrate %q, expected module=version", raw)
	}
	return module, version, nil
}

func telemetryConfig(cfg *config.Config) telemetry.Config {
	attrs := map[string]string{
		"address_prefix":  cfg.AddressPrefix,
		"storage_backend": cfg.StorageBackend,
	}
	if cfg.Indexer.Enabled {
		attrs["indexer_driver"] = cfg.Indexer.Driver
	}
	return telemetry.Config{
		ServiceName:    "whalehubd",
		ServiceVersion: buildVersion,
		Environment:    cfg.Environment,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Gzip:           cfg.Telemetry.Gzip,
		Headers:        telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:         cfg.Telemetry.Traces,
		Metrics:        cfg.Telemetry.Metrics,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		ExportInterval: cfg.Telemetry.ExportInterval(),
		BatchTimeout:   cfg.Telemetry.BatchTimeout(),
		Attributes:     attrs,
	}
}
