package epoch

import (
	"fmt"
	"time"
)

// Config describes how epochs are created.
type Config struct {
	// Duration is the length of every epoch. The value must be greater than
	// zero.
	Duration time.Duration `json:"duration"`

	// GenesisEpoch is the start time of the first epoch.
	GenesisEpoch time.Time `json:"genesis_epoch"`

	// Retention controls how many epochs are kept in state. Older epochs are
	// synthesized from the current one when queried. A zero value means that
	// all epochs are retained.
	Retention uint64 `json:"retention"`
}

// DefaultConfig returns a one-day epoch configuration starting at genesis.
func DefaultConfig(genesis time.Time) Config {
	return Config{
		Duration:     24 * time.Hour,
		GenesisEpoch: genesis.UTC(),
		Retention:    0,
	}
}

// Validate ensures the configuration is self-consistent.
func (c Config) Validate() error {
	if c.Duration <= 0 {
		return fmt.Errorf("epoch duration must be greater than zero")
	}
	if c.GenesisEpoch.IsZero() {
		return fmt.Errorf("genesis epoch must be set")
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("EpochConfig { duration: %d, genesis_epoch: %d }", c.Duration.Nanoseconds(), unixNanos(c.GenesisEpoch))
}

type storedConfig struct {
	DurationNanos uint64
	GenesisNanos  uint64
	Retention     uint64
}

func newStoredConfig(c Config) *storedConfig {
	return &storedConfig{
		DurationNanos: uint64(c.Duration.Nanoseconds()),
		GenesisNanos:  unixNanos(c.GenesisEpoch),
		Retention:     c.Retention,
	}
}

func (s *storedConfig) toConfig() Config {
	return Config{
		Duration:     time.Duration(s.DurationNanos),
		GenesisEpoch: fromNanos(s.GenesisNanos),
		Retention:    s.Retention,
	}
}

// CalculateEpoch returns the epoch number containing ts for a clock that
// starts at genesis with epochs of the given duration. Timestamps before
// genesis map to epoch 0; the first epoch is 1.
func CalculateEpoch(genesis time.Time, duration time.Duration, ts time.Time) (uint64, error) {
	if duration <= 0 {
		return 0, fmt.Errorf("epoch duration must be greater than zero")
	}
	if ts.Before(genesis) {
		return 0, nil
	}
	elapsed := ts.Sub(genesis)
	return uint64(elapsed/duration) + 1, nil
}
