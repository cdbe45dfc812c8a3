package config

import (
	"path/filepath"
	"testing"
	"time"

	"whalehub/crypto"
)

func TestParseCoin(t *testing.T) {
	coin, err := ParseCoin("1500factory/pool/uLP")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if coin.Denom != "factory/pool/uLP" || coin.Amount.Int64() != 1500 {
		t.Fatalf("unexpected coin %s", coin)
	}
	for _, bad := range []string{"", "uwhale", "-5uwhale", "1.5uwhale", "10"} {
		if _, err := ParseCoin(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}

	coins, err := ParseCoins([]string{"5uwhale", "10ampWHALE", "7uwhale"})
	if err != nil {
		t.Fatalf("parse coins: %v", err)
	}
	if len(coins) != 2 || coins.AmountOf("uwhale").Int64() != 12 {
		t.Fatalf("coins not normalized: %s", coins)
	}
}

func TestGenesisRoundTrip(t *testing.T) {
	owner := crypto.AccountFromSeed(crypto.DefaultPrefix, "owner").String()
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := WriteGenesis(path, DefaultGenesis(owner, start)); err != nil {
		t.Fatalf("write: %v", err)
	}

	g, err := LoadGenesis(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !g.GenesisTime.Equal(start) || !g.Epoch.GenesisEpoch.Equal(start) || g.Epoch.Duration != 24*time.Hour {
		t.Fatalf("unexpected epoch settings %+v", g.Epoch)
	}
	if g.Bonding.GrowthRate.String() != "0.1" || g.Incentive.EmergencyUnlockPenalty.String() != "0.01" {
		t.Fatalf("decimals not parsed: %s %s", g.Bonding.GrowthRate, g.Incentive.EmergencyUnlockPenalty)
	}
	if g.Incentive.CreateIncentiveFee.String() != "1000000uwhale" {
		t.Fatalf("unexpected fee %s", g.Incentive.CreateIncentiveFee)
	}
	if len(g.Balances) != 1 || g.Balances[0].Address != owner {
		t.Fatalf("unexpected balances %+v", g.Balances)
	}
}

func TestGenesisRejectsBadDecimals(t *testing.T) {
	file := DefaultGenesis("owner", time.Now())
	file.Bonding.GrowthRate = "-0.5"
	if _, err := file.ToGenesis(); err == nil {
		t.Fatalf("expected negative growth rate to be rejected")
	}
	file = DefaultGenesis("owner", time.Now())
	file.Epoch.Duration = 0
	if _, err := file.ToGenesis(); err == nil {
		t.Fatalf("expected zero duration to be rejected")
	}
}
