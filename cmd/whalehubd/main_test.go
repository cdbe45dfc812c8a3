package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"whalehub/app"
	"whalehub/config"
	"whalehub/core/state"
	"whalehub/crypto"
	"whalehub/storage"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestParseMigrate(t *testing.T) {
	module, version, err := parseMigrate(" bonding = 1.2.0 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if module != "bonding" || version != "1.2.0" {
		t.Fatalf("got %q %q", module, version)
	}
	for _, raw := range []string{"bonding", "=1.0.0", "bonding="} {
		if _, _, err := parseMigrate(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestResolveGenesisPath(t *testing.T) {
	cfg := config.Default()
	opts := options{configPath: "/etc/whalehub/config.toml"}
	if got := resolveGenesisPath(opts, cfg); got != "/etc/whalehub/genesis.yaml" {
		t.Fatalf("unexpected path %s", got)
	}
	opts.genesisPath = "/tmp/other.yaml"
	if got := resolveGenesisPath(opts, cfg); got != "/tmp/other.yaml" {
		t.Fatalf("flag should win, got %s", got)
	}
}

func TestEnsureGenesisWritesDevelopmentGenesis(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	opts := options{configPath: filepath.Join(dir, "config.toml")}
	hub := app.New(state.NewDBStore(storage.NewMemDB()), app.WithLogger(quietLogger()))

	if err := ensureGenesis(context.Background(), hub, cfg, opts, quietLogger()); err == nil {
		t.Fatalf("expected missing genesis to fail without -init-genesis")
	}

	opts.initGenesis = true
	opts.owner = crypto.AccountFromSeed(crypto.DefaultPrefix, "owner").String()
	if err := ensureGenesis(context.Background(), hub, cfg, opts, quietLogger()); err != nil {
		t.Fatalf("ensure genesis: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "genesis.yaml")); err != nil {
		t.Fatalf("genesis not written: %v", err)
	}
	ok, err := hub.Initialized()
	if err != nil || !ok {
		t.Fatalf("expected initialized hub, got %v %v", ok, err)
	}
	current, err := hub.CurrentEpoch()
	if err != nil || current.ID != 1 {
		t.Fatalf("expected epoch 1, got %+v %v", current, err)
	}

	if err := ensureGenesis(context.Background(), hub, cfg, opts, quietLogger()); err != nil {
		t.Fatalf("second start should resume: %v", err)
	}
}

func TestEnsureGenesisRejectsBadOwner(t *testing.T) {
	cfg := config.Default()
	opts := options{configPath: filepath.Join(t.TempDir(), "config.toml"), initGenesis: true, owner: "nope"}
	hub := app.New(state.NewDBStore(storage.NewMemDB()), app.WithLogger(quietLogger()))
	if err := ensureGenesis(context.Background(), hub, cfg, opts, quietLogger()); err == nil {
		t.Fatalf("expected invalid owner to fail")
	}
}

func TestTelemetryConfigDescribesNode(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.Gzip = true
	got := telemetryConfig(cfg)
	if got.ServiceName != "whalehubd" || got.ServiceVersion != buildVersion || !got.Gzip {
		t.Fatalf("unexpected telemetry config %+v", got)
	}
	if got.Attributes["storage_backend"] != cfg.StorageBackend || got.Attributes["address_prefix"] != cfg.AddressPrefix {
		t.Fatalf("unexpected attributes %v", got.Attributes)
	}
	if _, ok := got.Attributes["indexer_driver"]; ok {
		t.Fatalf("indexer driver reported while the indexer is disabled")
	}
	if got.ExportInterval != cfg.Telemetry.ExportInterval() || got.BatchTimeout != cfg.Telemetry.BatchTimeout() {
		t.Fatalf("unexpected intervals %v %v", got.ExportInterval, got.BatchTimeout)
	}

	cfg.Indexer.Enabled = true
	if got := telemetryConfig(cfg); got.Attributes["indexer_driver"] != cfg.Indexer.Driver {
		t.Fatalf("expected indexer driver attribute, got %v", got.Attributes)
	}
}
