package numeric

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DecimalPlaces is the fixed precision of Decimal values.
const DecimalPlaces = 18

var (
	decimalFractional    = uint256.NewInt(1_000_000_000_000_000_000)
	decimalFractionalBig = decimalFractional.ToBig()

	errNegativeDecimal = errors.New("numeric: decimal must not be negative")
	errDecimalDigits   = errors.New("numeric: decimal has more than 18 fractional digits")
)

// Decimal is an unsigned fixed-point number with 18 fractional digits backed
// by 256-bit atomics. Every arithmetic method truncates toward zero and
// reports overflow instead of wrapping.
type Decimal struct {
	atomics uint256.Int
}

// DecimalRaw builds a Decimal from raw atomics, i.e. value*10^-18.
func DecimalRaw(atomics uint64) Decimal {
	var d Decimal
	d.atomics.SetUint64(atomics)
	return d
}

// DecimalFromAtomics builds a Decimal from big atomics.
func DecimalFromAtomics(atomics *big.Int) (Decimal, error) {
	var d Decimal
	if atomics == nil {
		return d, nil
	}
	if atomics.Sign() < 0 {
		return d, errNegativeDecimal
	}
	v, overflow := uint256.FromBig(atomics)
	if overflow {
		return d, ErrOverflow
	}
	d.atomics = *v
	return d, nil
}

// DecimalFromInt returns n as a Decimal with zero fractional part.
func DecimalFromInt(n *big.Int) (Decimal, error) {
	return DecimalFromAtomics(new(big.Int).Mul(Clone(n), decimalFractionalBig))
}

// OneDecimal returns 1.0.
func OneDecimal() Decimal {
	var d Decimal
	d.atomics.Set(decimalFractional)
	return d
}

// Percent returns p/100.
func Percent(p uint64) Decimal {
	return DecimalRaw(p * 10_000_000_000_000_000)
}

// DecimalFromRatio returns floor(num/den) at 18 digits of precision.
func DecimalFromRatio(num, den *big.Int) (Decimal, error) {
	if IsZero(den) {
		return Decimal{}, ErrDivideByZero
	}
	atomics := new(big.Int).Mul(Clone(num), decimalFractionalBig)
	atomics.Quo(atomics, den)
	return DecimalFromAtomics(atomics)
}

// ParseDecimal parses a base-10 decimal string such as "0.25".
func ParseDecimal(s string) (Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Decimal{}, nil
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Decimal{}, fmt.Errorf("numeric: parse decimal %q: %w", s, err)
	}
	if parsed.IsNegative() {
		return Decimal{}, errNegativeDecimal
	}
	scaled := parsed.Shift(DecimalPlaces)
	if !scaled.IsInteger() {
		return Decimal{}, errDecimalDigits
	}
	return DecimalFromAtomics(scaled.BigInt())
}

// MustParseDecimal is ParseDecimal for constants and tests.
func MustParseDecimal(s string) Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Atomics returns the raw 10^-18 units.
func (d Decimal) Atomics() *big.Int { return d.atomics.ToBig() }

func (d Decimal) IsZero() bool { return d.atomics.IsZero() }

func (d Decimal) Cmp(other Decimal) int { return d.atomics.Cmp(&other.atomics) }

func (d Decimal) String() string {
	return decimal.NewFromBigInt(d.atomics.ToBig(), -DecimalPlaces).String()
}

func (d Decimal) CheckedAdd(other Decimal) (Decimal, error) {
	var out Decimal
	if _, overflow := out.atomics.AddOverflow(&d.atomics, &other.atomics); overflow {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

func (d Decimal) CheckedSub(other Decimal) (Decimal, error) {
	var out Decimal
	if _, underflow := out.atomics.SubOverflow(&d.atomics, &other.atomics); underflow {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

func (d Decimal) CheckedMul(other Decimal) (Decimal, error) {
	var out Decimal
	if _, overflow := out.atomics.MulDivOverflow(&d.atomics, &other.atomics, decimalFractional); overflow {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

func (d Decimal) CheckedDiv(other Decimal) (Decimal, error) {
	if other.atomics.IsZero() {
		return Decimal{}, ErrDivideByZero
	}
	var out Decimal
	if _, overflow := out.atomics.MulDivOverflow(&d.atomics, decimalFractional, &other.atomics); overflow {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

// CheckedPow raises d to the power exp by repeated truncating multiplication.
func (d Decimal) CheckedPow(exp uint) (Decimal, error) {
	out := OneDecimal()
	for i := uint(0); i < exp; i++ {
		next, err := out.CheckedMul(d)
		if err != nil {
			return Decimal{}, err
		}
		out = next
	}
	return out, nil
}

// MulFloor returns floor(amount*d) as a Uint128.
func (d Decimal) MulFloor(amount *big.Int) (*big.Int, error) {
	return MulDivFloor(amount, d.atomics.ToBig(), decimalFractionalBig)
}

// Floor returns the integer part of d.
func (d Decimal) Floor() *big.Int {
	return new(big.Int).Quo(d.atomics.ToBig(), decimalFractionalBig)
}

func (d Decimal) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Decimal) UnmarshalText(text []byte) error {
	parsed, err := ParseDecimal(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// EncodeRLP stores the atomics as a big integer.
func (d Decimal) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, d.atomics.ToBig())
}

func (d *Decimal) DecodeRLP(s *rlp.Stream) error {
	var atomics big.Int
	if err := s.Decode(&atomics); err != nil {
		return err
	}
	parsed, err := DecimalFromAtomics(&atomics)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
