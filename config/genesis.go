package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"whalehub/app"
	"whalehub/core/epoch"
	"whalehub/core/numeric"
	"whalehub/core/types"
	"whalehub/native/bonding"
	"whalehub/native/incentive"
)

// GenesisFile is the YAML form of the hub genesis. Decimals and coins are
// strings such as "0.1" and "1000uwhale".
type GenesisFile struct {
	GenesisTime  time.Time        `yaml:"genesis_time"`
	Owner        string           `yaml:"owner"`
	StartEpochID uint64           `yaml:"start_epoch_id,omitempty"`
	Epoch        GenesisEpoch     `yaml:"epoch"`
	Bonding      GenesisBonding   `yaml:"bonding"`
	Incentive    GenesisIncentive `yaml:"incentive"`
	Balances     []GenesisBalance `yaml:"balances,omitempty"`
}

type GenesisEpoch struct {
	Duration  time.Duration `yaml:"duration"`
	Retention uint64        `yaml:"retention,omitempty"`
}

type GenesisBonding struct {
	EpochManagerAddr string   `yaml:"epoch_manager_addr,omitempty"`
	UnbondingPeriod  uint64   `yaml:"unbonding_period"`
	GrowthRate       string   `yaml:"growth_rate"`
	BondingAssets    []string `yaml:"bonding_assets"`
	GracePeriod      uint64   `yaml:"grace_period"`
}

type GenesisIncentive struct {
	BondingManagerAddr      string `yaml:"bonding_manager_addr,omitempty"`
	EpochManagerAddr        string `yaml:"epoch_manager_addr,omitempty"`
	CreateIncentiveFee      string `yaml:"create_incentive_fee,omitempty"`
	MaxConcurrentIncentives uint32 `yaml:"max_concurrent_incentives"`
	MaxIncentiveEpochBuffer uint32 `yaml:"max_incentive_epoch_buffer"`
	MinUnlockingDuration    uint64 `yaml:"min_unlocking_duration"`
	MaxUnlockingDuration    uint64 `yaml:"max_unlocking_duration"`
	EmergencyUnlockPenalty  string `yaml:"emergency_unlock_penalty"`
	ClaimGracePeriod        uint64 `yaml:"claim_grace_period,omitempty"`
}

type GenesisBalance struct {
	Address string   `yaml:"address"`
	Coins   []string `yaml:"coins"`
}

var coinPattern = regexp.MustCompile(`^([0-9]+)([a-zA-Z][a-zA-Z0-9/:._-]*)$`)

// ParseCoin parses "<amount><denom>". The amount must be a non-negative
// integer.
func ParseCoin(raw string) (types.Coin, error) {
	m := coinPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return types.Coin{}, fmt.Errorf("invalid coin %q", raw)
	}
	amount, err := decimal.NewFromString(m[1])
	if err != nil {
		return types.Coin{}, fmt.Errorf("invalid coin %q: %w", raw, err)
	}
	if !amount.IsInteger() || amount.IsNegative() {
		return types.Coin{}, fmt.Errorf("invalid coin amount %q", m[1])
	}
	coin := types.NewCoinBig(m[2], amount.BigInt())
	if err := coin.Validate(); err != nil {
		return types.Coin{}, fmt.Errorf("invalid coin %q: %w", raw, err)
	}
	return coin, nil
}

// ParseCoins parses a list of coin strings into normalized coins.
func ParseCoins(raw []string) (types.Coins, error) {
	coins := make(types.Coins, 0, len(raw))
	for _, r := range raw {
		coin, err := ParseCoin(r)
		if err != nil {
			return nil, err
		}
		coins = append(coins, coin)
	}
	return types.NewCoins(coins...)
}

// LoadGenesis reads and converts the YAML genesis at path.
func LoadGenesis(path string) (app.Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return app.Genesis{}, err
	}
	var file GenesisFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return app.Genesis{}, fmt.Errorf("decode genesis %s: %w", path, err)
	}
	return file.ToGenesis()
}

// WriteGenesis stores file as YAML at path.
func WriteGenesis(path string, file GenesisFile) error {
	data, err := yaml.Marshal(file)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ToGenesis converts the file form into the app genesis.
func (g GenesisFile) ToGenesis() (app.Genesis, error) {
	if g.GenesisTime.IsZero() {
		return app.Genesis{}, fmt.Errorf("genesis_time is required")
	}
	if g.Epoch.Duration <= 0 {
		return app.Genesis{}, fmt.Errorf("epoch.duration must be greater than zero")
	}
	growth, err := numeric.ParseDecimal(g.Bonding.GrowthRate)
	if err != nil {
		return app.Genesis{}, fmt.Errorf("bonding.growth_rate: %w", err)
	}
	penalty, err := numeric.ParseDecimal(g.Incentive.EmergencyUnlockPenalty)
	if err != nil {
		return app.Genesis{}, fmt.Errorf("incentive.emergency_unlock_penalty: %w", err)
	}
	var fee types.Coin
	if strings.TrimSpace(g.Incentive.CreateIncentiveFee) != "" {
		if fee, err = ParseCoin(g.Incentive.CreateIncentiveFee); err != nil {
			return app.Genesis{}, fmt.Errorf("incentive.create_incentive_fee: %w", err)
		}
	}

	out := app.Genesis{
		GenesisTime:  g.GenesisTime.UTC(),
		Owner:        g.Owner,
		StartEpochID: g.StartEpochID,
		Epoch: epoch.Config{
			Duration:     g.Epoch.Duration,
			GenesisEpoch: g.GenesisTime.UTC(),
			Retention:    g.Epoch.Retention,
		},
		Bonding: bonding.InstantiateMsg{
			EpochManagerAddr: g.Bonding.EpochManagerAddr,
			UnbondingPeriod:  g.Bonding.UnbondingPeriod,
			GrowthRate:       growth,
			BondingAssets:    append([]string(nil), g.Bonding.BondingAssets...),
			GracePeriod:      g.Bonding.GracePeriod,
		},
		Incentive: incentive.InstantiateMsg{
			BondingManagerAddr:      g.Incentive.BondingManagerAddr,
			EpochManagerAddr:        g.Incentive.EpochManagerAddr,
			CreateIncentiveFee:      fee,
			MaxConcurrentIncentives: g.Incentive.MaxConcurrentIncentives,
			MaxIncentiveEpochBuffer: g.Incentive.MaxIncentiveEpochBuffer,
			MinUnlockingDuration:    g.Incentive.MinUnlockingDuration,
			MaxUnlockingDuration:    g.Incentive.MaxUnlockingDuration,
			EmergencyUnlockPenalty:  penalty,
			ClaimGracePeriod:        g.Incentive.ClaimGracePeriod,
		},
	}
	for i, bal := range g.Balances {
		coins, err := ParseCoins(bal.Coins)
		if err != nil {
			return app.Genesis{}, fmt.Errorf("balances[%d]: %w", i, err)
		}
		out.Balances = append(out.Balances, app.Balance{Address: bal.Address, Coins: coins})
	}
	return out, nil
}

// DefaultGenesis returns a local development genesis owned by owner with
// one-day epochs starting at start.
func DefaultGenesis(owner string, start time.Time) GenesisFile {
	return GenesisFile{
		GenesisTime:  start.UTC().Truncate(time.Second),
		Owner:        owner,
		StartEpochID: 1,
		Epoch:        GenesisEpoch{Duration: 24 * time.Hour},
		Bonding: GenesisBonding{
			UnbondingPeriod: 14,
			GrowthRate:      "0.1",
			BondingAssets:   []string{"ampWHALE", "bWHALE"},
			GracePeriod:     10,
		},
		Incentive: GenesisIncentive{
			CreateIncentiveFee:      "1000000uwhale",
			MaxConcurrentIncentives: 5,
			MaxIncentiveEpochBuffer: 14,
			MinUnlockingDuration:    incentive.MinLockSeconds,
			MaxUnlockingDuration:    incentive.MaxLockSeconds,
			EmergencyUnlockPenalty:  "0.01",
			ClaimGracePeriod:        incentive.DefaultIncentiveDuration,
		},
		Balances: []GenesisBalance{{Address: owner, Coins: []string{"1000000000uwhale"}}},
	}
}
