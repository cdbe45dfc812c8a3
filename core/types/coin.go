package types

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"whalehub/core/numeric"
)

var (
	// ErrInvalidDenom is returned when a coin carries an empty denomination.
	ErrInvalidDenom = errors.New("types: invalid denom")
	// ErrInsufficientCoins is returned when subtracting more than is held.
	ErrInsufficientCoins = errors.New("types: insufficient coins")
)

// Coin is an amount of a single native denomination.
type Coin struct {
	Denom  string   `json:"denom"`
	Amount *big.Int `json:"amount"`
}

// NewCoin constructs a coin from a uint64 amount.
func NewCoin(denom string, amount uint64) Coin {
	return Coin{Denom: denom, Amount: new(big.Int).SetUint64(amount)}
}

// NewCoinBig constructs a coin copying the provided amount.
func NewCoinBig(denom string, amount *big.Int) Coin {
	return Coin{Denom: denom, Amount: numeric.Clone(amount)}
}

func (c Coin) IsZero() bool { return numeric.IsZero(c.Amount) }

func (c Coin) Clone() Coin { return NewCoinBig(c.Denom, c.Amount) }

func (c Coin) String() string {
	return numeric.Clone(c.Amount).String() + c.Denom
}

// Validate checks the denomination and that the amount fits Uint128.
func (c Coin) Validate() error {
	if strings.TrimSpace(c.Denom) == "" {
		return ErrInvalidDenom
	}
	return numeric.CheckUint128(c.Amount)
}

// Coins is a list of coins. Normalized lists are sorted by denom, hold at most
// one entry per denom and never contain zero amounts.
type Coins []Coin

// NewCoins normalizes the provided coins, summing duplicates.
func NewCoins(coins ...Coin) (Coins, error) {
	return Coins(nil).Add(coins...)
}

// Add returns the normalized sum of c and the provided coins.
func (c Coins) Add(coins ...Coin) (Coins, error) {
	totals := make(map[string]*big.Int, len(c)+len(coins))
	for _, coin := range append(append(Coins{}, c...), coins...) {
		if err := coin.Validate(); err != nil {
			return nil, err
		}
		sum, err := numeric.CheckedAdd(totals[coin.Denom], coin.Amount)
		if err != nil {
			return nil, fmt.Errorf("add %s: %w", coin.Denom, err)
		}
		totals[coin.Denom] = sum
	}
	return fromTotals(totals), nil
}

// Sub returns c minus the provided coins. Every subtracted denom must be held
// in sufficient quantity.
func (c Coins) Sub(coins ...Coin) (Coins, error) {
	totals := make(map[string]*big.Int, len(c))
	for _, coin := range c {
		totals[coin.Denom] = numeric.Clone(coin.Amount)
	}
	for _, coin := range coins {
		if coin.IsZero() {
			continue
		}
		held := totals[coin.Denom]
		if numeric.Cmp(held, coin.Amount) < 0 {
			return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientCoins, numeric.Clone(held).String()+coin.Denom, coin.String())
		}
		totals[coin.Denom] = new(big.Int).Sub(held, coin.Amount)
	}
	return fromTotals(totals), nil
}

// AmountOf returns the amount held for denom, zero when absent.
func (c Coins) AmountOf(denom string) *big.Int {
	for _, coin := range c {
		if coin.Denom == denom {
			return numeric.Clone(coin.Amount)
		}
	}
	return numeric.Zero()
}

func (c Coins) IsZero() bool {
	for _, coin := range c {
		if !coin.IsZero() {
			return false
		}
	}
	return true
}

func (c Coins) Clone() Coins {
	if c == nil {
		return nil
	}
	out := make(Coins, len(c))
	for i := range c {
		out[i] = c[i].Clone()
	}
	return out
}

func (c Coins) String() string {
	parts := make([]string, 0, len(c))
	for _, coin := range c {
		parts = append(parts, coin.String())
	}
	return strings.Join(parts, ",")
}

func fromTotals(totals map[string]*big.Int) Coins {
	out := make(Coins, 0, len(totals))
	for denom, amount := range totals {
		if numeric.IsZero(amount) {
			continue
		}
		out = append(out, Coin{Denom: denom, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Denom < out[j].Denom })
	return out
}

// OneCoin returns the single coin in funds. It fails with ErrInvalidDenom when
// funds do not hold exactly one non-zero coin.
func OneCoin(funds Coins) (Coin, error) {
	normalized, err := NewCoins(funds...)
	if err != nil {
		return Coin{}, err
	}
	if len(normalized) != 1 {
		return Coin{}, fmt.Errorf("%w: expected exactly one coin, got %d", ErrInvalidDenom, len(normalized))
	}
	return normalized[0], nil
}
