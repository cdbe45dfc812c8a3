package numeric

import (
	"errors"
	"math/big"
)

var (
	// ErrOverflow is returned when a checked operation leaves the Uint128
	// domain, including subtraction below zero.
	ErrOverflow = errors.New("numeric: overflow")
	// ErrDivideByZero is returned when a checked division has a zero divisor.
	ErrDivideByZero = errors.New("numeric: divide by zero")
)

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// MaxUint128 returns a copy of 2^128-1.
func MaxUint128() *big.Int { return new(big.Int).Set(maxUint128) }

// Zero returns a fresh zero value.
func Zero() *big.Int { return big.NewInt(0) }

// Clone returns a copy of v, treating nil as zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// IsZero reports whether v is nil or zero.
func IsZero(v *big.Int) bool { return v == nil || v.Sign() == 0 }

// CheckUint128 validates that v fits an unsigned 128-bit integer.
func CheckUint128(v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 || v.Cmp(maxUint128) > 0 {
		return ErrOverflow
	}
	return nil
}

func CheckedAdd(a, b *big.Int) (*big.Int, error) {
	out := new(big.Int).Add(Clone(a), Clone(b))
	if err := CheckUint128(out); err != nil {
		return nil, err
	}
	return out, nil
}

func CheckedSub(a, b *big.Int) (*big.Int, error) {
	out := new(big.Int).Sub(Clone(a), Clone(b))
	if err := CheckUint128(out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaturatingSub returns a-b, or zero when b exceeds a.
func SaturatingSub(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(Clone(a), Clone(b))
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

func CheckedMul(a, b *big.Int) (*big.Int, error) {
	out := new(big.Int).Mul(Clone(a), Clone(b))
	if err := CheckUint128(out); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckedDiv performs floor division.
func CheckedDiv(a, b *big.Int) (*big.Int, error) {
	if IsZero(b) {
		return nil, ErrDivideByZero
	}
	return new(big.Int).Quo(Clone(a), b), nil
}

// MulDivFloor computes floor(a*b/d) with a full-width intermediate. The result
// must fit Uint128.
func MulDivFloor(a, b, d *big.Int) (*big.Int, error) {
	if IsZero(d) {
		return nil, ErrDivideByZero
	}
	out := new(big.Int).Mul(Clone(a), Clone(b))
	out.Quo(out, d)
	if err := CheckUint128(out); err != nil {
		return nil, err
	}
	return out, nil
}

func Min(a, b *big.Int) *big.Int {
	if Clone(a).Cmp(Clone(b)) <= 0 {
		return Clone(a)
	}
	return Clone(b)
}

func Max(a, b *big.Int) *big.Int {
	if Clone(a).Cmp(Clone(b)) >= 0 {
		return Clone(a)
	}
	return Clone(b)
}

// Cmp compares a and b treating nil as zero.
func Cmp(a, b *big.Int) int { return Clone(a).Cmp(Clone(b)) }

// NewUint returns v as a big integer.
func NewUint(v uint64) *big.Int { return new(big.Int).SetUint64(v) }

// ParseUint parses a base-10 Uint128 string.
func ParseUint(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.New("numeric: invalid integer " + s)
	}
	if err := CheckUint128(v); err != nil {
		return nil, err
	}
	return v, nil
}
