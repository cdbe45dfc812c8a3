package version

import (
	"errors"
	"testing"

	"whalehub/core/state"
	"whalehub/storage"
)

func TestMigrateGuards(t *testing.T) {
	m := state.NewManager(state.NewDBStore(storage.NewMemDB()))
	if err := Set(m, "bonding", ContractVersion{Contract: "white-whale_bonding-manager", Version: "1.0.0"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	err := Migrate(m, "bonding", ContractVersion{Contract: "white-whale_bonding-manager", Version: "1.0.0"})
	var invalid *MigrateInvalidVersionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected MigrateInvalidVersionError for equal version, got %v", err)
	}
	if err := Migrate(m, "bonding", ContractVersion{Contract: "white-whale_bonding-manager", Version: "0.9.0"}); !errors.As(err, &invalid) {
		t.Fatalf("expected MigrateInvalidVersionError for downgrade, got %v", err)
	}
	if err := Migrate(m, "bonding", ContractVersion{Contract: "other", Version: "2.0.0"}); !errors.Is(err, ErrContractNameMismatch) {
		t.Fatalf("expected ErrContractNameMismatch, got %v", err)
	}
	if err := Migrate(m, "bonding", ContractVersion{Contract: "white-whale_bonding-manager", Version: "1.1.0"}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cv, err := Get(m, "bonding")
	if err != nil || cv.Version != "1.1.0" {
		t.Fatalf("unexpected stored version %+v %v", cv, err)
	}
}

func TestGetUnset(t *testing.T) {
	m := state.NewManager(state.NewDBStore(storage.NewMemDB()))
	if _, err := Get(m, "epoch"); !errors.Is(err, ErrNotSet) {
		t.Fatalf("expected ErrNotSet, got %v", err)
	}
	if err := Set(m, "epoch", ContractVersion{Contract: "x", Version: "not-a-version"}); !errors.Is(err, ErrInvalidSemver) {
		t.Fatalf("expected ErrInvalidSemver, got %v", err)
	}
}
