package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"whalehub/crypto"
	"whalehub/storage"
)

// Config is the node configuration read from TOML.
type Config struct {
	Environment    string `toml:"Environment"`
	DataDir        string `toml:"DataDir"`
	StorageBackend string `toml:"StorageBackend"`
	GenesisFile    string `toml:"GenesisFile"`
	AddressPrefix  string `toml:"AddressPrefix"`
	// TickIntervalSecs is how often the daemon checks whether an epoch is due.
	TickIntervalSecs uint64 `toml:"TickIntervalSecs"`

	API       API       `toml:"api"`
	Log       Log       `toml:"log"`
	Telemetry Telemetry `toml:"telemetry"`
	Indexer   Indexer   `toml:"indexer"`
}

type API struct {
	ListenAddress string `toml:"ListenAddress"`
	// JWTSecretEnv names the environment variable holding the HMAC secret
	// that signs transaction bearer tokens. Transactions are refused when it
	// is unset.
	JWTSecretEnv          string   `toml:"JWTSecretEnv"`
	JWTIssuer             string   `toml:"JWTIssuer"`
	RateLimitPerSecond    float64  `toml:"RateLimitPerSecond"`
	RateLimitBurst        int      `toml:"RateLimitBurst"`
	ReadHeaderTimeoutSecs uint64   `toml:"ReadHeaderTimeoutSecs"`
	AllowedOrigins        []string `toml:"AllowedOrigins"`
}

type Log struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Gzip        bool    `toml:"Gzip"`
	Headers     string  `toml:"Headers"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
	// ExportIntervalSecs is the metric push period.
	ExportIntervalSecs uint64 `toml:"ExportIntervalSecs"`
	BatchTimeoutSecs   uint64 `toml:"BatchTimeoutSecs"`
}

// ExportInterval returns the metric push period as a duration.
func (t Telemetry) ExportInterval() time.Duration {
	return time.Duration(t.ExportIntervalSecs) * time.Second
}

// BatchTimeout returns the span batch flush timeout as a duration.
func (t Telemetry) BatchTimeout() time.Duration {
	return time.Duration(t.BatchTimeoutSecs) * time.Second
}

// Indexer configures the SQL event indexer. Driver is "sqlite" or
// "postgres".
type Indexer struct {
	Enabled bool   `toml:"Enabled"`
	Driver  string `toml:"Driver"`
	DSN     string `toml:"DSN"`
}

// Default returns the configuration written on first run.
func Default() *Config {
	return &Config{
		Environment:      "local",
		DataDir:          "./whalehub-data",
		StorageBackend:   storage.BackendLevelDB,
		GenesisFile:      "genesis.yaml",
		AddressPrefix:    crypto.DefaultPrefix,
		TickIntervalSecs: 30,
		API: API{
			ListenAddress:         ":8080",
			JWTSecretEnv:          "WHALEHUB_JWT_SECRET",
			JWTIssuer:             "whalehub",
			RateLimitPerSecond:    20,
			RateLimitBurst:        40,
			ReadHeaderTimeoutSecs: 5,
			AllowedOrigins:        []string{},
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Telemetry: Telemetry{
			Endpoint:           "localhost:4318",
			Insecure:           true,
			SampleRatio:        1,
			ExportIntervalSecs: 15,
			BatchTimeoutSecs:   2,
		},
		Indexer: Indexer{
			Driver: "sqlite",
			DSN:    "whalehub-index.db",
		},
	}
}

// Load reads the configuration at path. A default file is created when none
// exists. Keys missing from the file take their default values.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if cfg.API.AllowedOrigins == nil {
		cfg.API.AllowedOrigins = []string{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DataDir) == "" && c.StorageBackend != storage.BackendMemory {
		errs = append(errs, errors.New("DataDir is required"))
	}
	switch c.StorageBackend {
	case storage.BackendLevelDB, storage.BackendBolt, storage.BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("StorageBackend %q is not one of leveldb, bolt, memory", c.StorageBackend))
	}
	if strings.TrimSpace(c.AddressPrefix) == "" {
		errs = append(errs, errors.New("AddressPrefix is required"))
	}
	if c.TickIntervalSecs == 0 {
		errs = append(errs, errors.New("TickIntervalSecs must be greater than zero"))
	}
	if strings.TrimSpace(c.API.ListenAddress) == "" {
		errs = append(errs, errors.New("api.ListenAddress is required"))
	}
	if c.API.RateLimitPerSecond < 0 || c.API.RateLimitBurst < 0 {
		errs = append(errs, errors.New("api rate limits must not be negative"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry.SampleRatio %v outside [0,1]", c.Telemetry.SampleRatio))
	}
	if c.Telemetry.Metrics && c.Telemetry.ExportIntervalSecs == 0 {
		errs = append(errs, errors.New("telemetry.ExportIntervalSecs must be greater than zero when metrics are enabled"))
	}
	if c.Indexer.Enabled {
		switch c.Indexer.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, fmt.Errorf("indexer.Driver %q is not one of sqlite, postgres", c.Indexer.Driver))
		}
		if strings.TrimSpace(c.Indexer.DSN) == "" {
			errs = append(errs, errors.New("indexer.DSN is required when the indexer is enabled"))
		}
	}
	return errors.Join(errs...)
}

// TickInterval returns the epoch ticker period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSecs) * time.Second
}

// ReadHeaderTimeout returns the API header read timeout.
func (a API) ReadHeaderTimeout() time.Duration {
	return time.Duration(a.ReadHeaderTimeoutSecs) * time.Second
}

// ResolvePath returns p relative to the directory of the config file unless
// it is absolute.
func ResolvePath(configPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
