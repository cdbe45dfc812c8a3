package numeric

import (
	"errors"
	"math/big"
	"testing"
)

func TestCheckedAddRejectsUint128Overflow(t *testing.T) {
	if _, err := CheckedAdd(MaxUint128(), big.NewInt(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	sum, err := CheckedAdd(big.NewInt(40), big.NewInt(2))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if sum.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("unexpected sum %s", sum)
	}
}

func TestCheckedSubRejectsUnderflow(t *testing.T) {
	if _, err := CheckedSub(big.NewInt(1), big.NewInt(2)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if got := SaturatingSub(big.NewInt(1), big.NewInt(2)); got.Sign() != 0 {
		t.Fatalf("expected saturation at zero, got %s", got)
	}
}

func TestCheckedDivByZero(t *testing.T) {
	if _, err := CheckedDiv(big.NewInt(1), nil); !errors.Is(err, ErrDivideByZero) {
		t.Fatalf("expected divide by zero, got %v", err)
	}
	if _, err := DecimalFromRatio(big.NewInt(1), big.NewInt(0)); !errors.Is(err, ErrDivideByZero) {
		t.Fatalf("expected divide by zero, got %v", err)
	}
}

func TestParseDecimal(t *testing.T) {
	d, err := ParseDecimal("0.25")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Atomics().String() != "250000000000000000" {
		t.Fatalf("unexpected atomics %s", d.Atomics())
	}
	if d.String() != "0.25" {
		t.Fatalf("unexpected string %s", d.String())
	}
	if _, err := ParseDecimal("-1"); err == nil {
		t.Fatalf("expected negative decimal to be rejected")
	}
	if _, err := ParseDecimal("0.0000000000000000001"); err == nil {
		t.Fatalf("expected excess precision to be rejected")
	}
	if d.Cmp(Percent(25)) != 0 {
		t.Fatalf("expected 25%% to equal 0.25")
	}
}

func TestDecimalMulFloorTruncates(t *testing.T) {
	third, err := DecimalFromRatio(big.NewInt(1), big.NewInt(3))
	if err != nil {
		t.Fatalf("ratio: %v", err)
	}
	got, err := third.MulFloor(big.NewInt(100))
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	if got.Cmp(big.NewInt(33)) != 0 {
		t.Fatalf("expected 33, got %s", got)
	}
}

func TestDecimalCheckedMulAndDiv(t *testing.T) {
	two := MustParseDecimal("2")
	half := MustParseDecimal("0.5")
	prod, err := two.CheckedMul(half)
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	if prod.Cmp(OneDecimal()) != 0 {
		t.Fatalf("expected 1, got %s", prod)
	}
	quo, err := OneDecimal().CheckedDiv(half)
	if err != nil {
		t.Fatalf("div: %v", err)
	}
	if quo.Cmp(two) != 0 {
		t.Fatalf("expected 2, got %s", quo)
	}
	sq, err := two.CheckedPow(2)
	if err != nil {
		t.Fatalf("pow: %v", err)
	}
	if sq.String() != "4" {
		t.Fatalf("expected 4, got %s", sq)
	}
}
