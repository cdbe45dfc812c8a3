package bank

import (
	"errors"
	"fmt"
	"math/big"

	"whalehub/core/events"
	"whalehub/core/numeric"
	"whalehub/core/state"
	"whalehub/core/types"
)

const namespace = "bank"

var (
	errNilState = errors.New("bank: state not configured")
	// ErrInsufficientFunds is returned when a sender cannot cover a transfer.
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
)

// TypeTransfer is emitted for every balance movement.
const TypeTransfer = "bank.transfer"

// Transfer records a movement of coins between two accounts.
type Transfer struct {
	From   string
	To     string
	Amount types.Coins
}

// EventType implements the events.Event interface.
func (Transfer) EventType() string { return TypeTransfer }

// Event converts the transfer into a types.Event payload.
func (e Transfer) Event() *types.Event {
	return &types.Event{Type: TypeTransfer, Attributes: map[string]string{
		"from":   e.From,
		"to":     e.To,
		"amount": e.Amount.String(),
	}}
}

func balanceKey(addr, denom string) []byte { return state.Key(namespace, "balances", addr, denom) }

func balancePrefix(addr string) []byte { return state.Key(namespace, "balances", addr) }

func supplyKey(denom string) []byte { return state.Key(namespace, "supply", denom) }

// Keeper moves native coins between accounts.
type Keeper struct {
	state   *state.Manager
	emitter events.Emitter
}

func NewKeeper() *Keeper {
	return &Keeper{emitter: events.NoopEmitter{}}
}

// SetState binds the keeper to store.
func (k *Keeper) SetState(store state.Store) { k.state = state.NewManager(store) }

// SetEmitter configures the event emitter. Passing nil resets the emitter to a
// no-op implementation.
func (k *Keeper) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		k.emitter = events.NoopEmitter{}
		return
	}
	k.emitter = emitter
}

// Balance returns the amount of denom held by addr.
func (k *Keeper) Balance(addr, denom string) (*big.Int, error) {
	if k.state == nil {
		return nil, errNilState
	}
	amount := new(big.Int)
	ok, err := k.state.KVGet(balanceKey(addr, denom), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return numeric.Zero(), nil
	}
	return amount, nil
}

// AllBalances returns every non-zero balance of addr sorted by denom.
func (k *Keeper) AllBalances(addr string) (types.Coins, error) {
	if k.state == nil {
		return nil, errNilState
	}
	prefix := balancePrefix(addr)
	var out types.Coins
	err := k.state.KVIterate(prefix, nil, func(key []byte, decode func(interface{}) error) (bool, error) {
		denom, err := state.DecodeStringSuffix(prefix, key)
		if err != nil {
			return false, err
		}
		amount := new(big.Int)
		if err := decode(amount); err != nil {
			return false, err
		}
		out = append(out, types.Coin{Denom: denom, Amount: amount})
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Supply returns the total minted amount of denom.
func (k *Keeper) Supply(denom string) (*big.Int, error) {
	if k.state == nil {
		return nil, errNilState
	}
	amount := new(big.Int)
	if _, err := k.state.KVGet(supplyKey(denom), amount); err != nil {
		return nil, err
	}
	return amount, nil
}

func (k *Keeper) setBalance(addr, denom string, amount *big.Int) error {
	if numeric.IsZero(amount) {
		return k.state.KVDelete(balanceKey(addr, denom))
	}
	return k.state.KVPut(balanceKey(addr, denom), amount)
}

// Mint credits coins to addr and grows the supply. Used by genesis.
func (k *Keeper) Mint(addr string, coins types.Coins) error {
	if k.state == nil {
		return errNilState
	}
	for _, coin := range coins {
		if err := coin.Validate(); err != nil {
			return err
		}
		balance, err := k.Balance(addr, coin.Denom)
		if err != nil {
			return err
		}
		next, err := numeric.CheckedAdd(balance, coin.Amount)
		if err != nil {
			return err
		}
		if err := k.setBalance(addr, coin.Denom, next); err != nil {
			return err
		}
		supply, err := k.Supply(coin.Denom)
		if err != nil {
			return err
		}
		supply, err = numeric.CheckedAdd(supply, coin.Amount)
		if err != nil {
			return err
		}
		if err := k.state.KVPut(supplyKey(coin.Denom), supply); err != nil {
			return err
		}
	}
	return nil
}

// Send moves coins from one account to another. Either every coin moves or
// none does, within the caller's transaction.
func (k *Keeper) Send(from, to string, coins types.Coins) error {
	if k.state == nil {
		return errNilState
	}
	coins, err := types.NewCoins(coins...)
	if err != nil {
		return err
	}
	if len(coins) == 0 {
		return nil
	}
	for _, coin := range coins {
		fromBalance, err := k.Balance(from, coin.Denom)
		if err != nil {
			return err
		}
		if fromBalance.Cmp(coin.Amount) < 0 {
			return fmt.Errorf("%w: %s has %s%s, needs %s", ErrInsufficientFunds, from, fromBalance, coin.Denom, coin)
		}
		if err := k.setBalance(from, coin.Denom, new(big.Int).Sub(fromBalance, coin.Amount)); err != nil {
			return err
		}
		toBalance, err := k.Balance(to, coin.Denom)
		if err != nil {
			return err
		}
		next, err := numeric.CheckedAdd(toBalance, coin.Amount)
		if err != nil {
			return err
		}
		if err := k.setBalance(to, coin.Denom, next); err != nil {
			return err
		}
	}
	k.emitter.Emit(Transfer{From: from, To: to, Amount: coins})
	return nil
}
