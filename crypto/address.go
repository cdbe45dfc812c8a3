package crypto

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultPrefix is the human-readable part used for accounts on the hub.
const DefaultPrefix = "migaloo"

// AddressLength is the byte length of every account address.
const AddressLength = 20

var ErrInvalidAddress = errors.New("crypto: invalid address")

// Address is a 20-byte account identifier rendered with a bech32 prefix.
type Address struct {
	prefix string
	bytes  []byte
}

func NewAddress(prefix string, b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AddressLength, len(b))
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}, nil
}

// MustNewAddress panics on malformed input. Intended for fixed module names.
func MustNewAddress(prefix string, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(a.prefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte { return a.bytes }

func (a Address) Prefix() string { return a.prefix }

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("%w: converting bits: %v", ErrInvalidAddress, err)
	}
	return NewAddress(prefix, conv)
}

// ValidateAddress decodes addr and checks it carries the expected prefix. It
// returns the canonical encoding.
func ValidateAddress(prefix, addr string) (string, error) {
	decoded, err := DecodeAddress(addr)
	if err != nil {
		return "", err
	}
	if decoded.Prefix() != prefix {
		return "", fmt.Errorf("%w: unexpected prefix %q", ErrInvalidAddress, decoded.Prefix())
	}
	return decoded.String(), nil
}

// ModuleAddress derives the account of a named module from the last 20 bytes
// of keccak256(name).
func ModuleAddress(prefix, name string) Address {
	hash := crypto.Keccak256([]byte(name))
	return MustNewAddress(prefix, hash[len(hash)-AddressLength:])
}

// AccountFromSeed derives a deterministic account address from a seed string.
// Used by genesis fixtures and tests.
func AccountFromSeed(prefix, seed string) Address {
	return ModuleAddress(prefix, "account/"+seed)
}
