package crypto

import (
	"errors"
	"testing"
)

func TestModuleAddressRoundTrip(t *testing.T) {
	addr := ModuleAddress(DefaultPrefix, "bonding")
	canonical, err := ValidateAddress(DefaultPrefix, addr.String())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if canonical != addr.String() {
		t.Fatalf("canonical mismatch: %s != %s", canonical, addr.String())
	}
	if ModuleAddress(DefaultPrefix, "bonding").String() != addr.String() {
		t.Fatalf("module address not deterministic")
	}
	if ModuleAddress(DefaultPrefix, "incentive").String() == addr.String() {
		t.Fatalf("distinct modules share an address")
	}
}

func TestValidateAddressRejectsForeignPrefix(t *testing.T) {
	addr := ModuleAddress("osmo", "bonding")
	if _, err := ValidateAddress(DefaultPrefix, addr.String()); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if _, err := ValidateAddress(DefaultPrefix, "not-an-address"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress for garbage, got %v", err)
	}
}
