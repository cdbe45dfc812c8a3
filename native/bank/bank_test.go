package bank

import (
	"errors"
	"math/big"
	"testing"

	"whalehub/core/state"
	"whalehub/core/types"
	"whalehub/storage"
)

func newKeeper(t *testing.T) *Keeper {
	t.Helper()
	k := NewKeeper()
	k.SetState(state.NewDBStore(storage.NewMemDB()))
	return k
}

func TestSendMovesBalances(t *testing.T) {
	k := newKeeper(t)
	if err := k.Mint("alice", types.Coins{types.NewCoin("uwhale", 100), types.NewCoin("uusdc", 5)}); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := k.Send("alice", "bob", types.Coins{types.NewCoin("uwhale", 40)}); err != nil {
		t.Fatalf("send: %v", err)
	}
	alice, _ := k.Balance("alice", "uwhale")
	bob, _ := k.Balance("bob", "uwhale")
	if alice.Cmp(big.NewInt(60)) != 0 || bob.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unexpected balances alice=%s bob=%s", alice, bob)
	}
	all, err := k.AllBalances("alice")
	if err != nil {
		t.Fatalf("all balances: %v", err)
	}
	if len(all) != 2 || all[0].Denom != "uusdc" {
		t.Fatalf("unexpected balances %s", all)
	}
	supply, _ := k.Supply("uwhale")
	if supply.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected supply %s", supply)
	}
}

func TestSendInsufficientFunds(t *testing.T) {
	k := newKeeper(t)
	if err := k.Send("alice", "bob", types.Coins{types.NewCoin("uwhale", 1)}); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}
