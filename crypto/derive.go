package crypto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// MaxSeedLength bounds each seed passed to DeriveAddress.
	MaxSeedLength = 32
	// MaxSeeds bounds the number of seeds passed to DeriveAddress.
	MaxSeeds = 16
)

var derivationDomain = []byte("tipledger/derive/v1")

var (
	ErrEmptyRole    = errors.New("crypto: derivation role must not be empty")
	ErrSeedTooLong  = errors.New("crypto: derivation seed exceeds 32 bytes")
	ErrTooManySeeds = errors.New("crypto: too many derivation seeds")
)

// DeriveAddress maps a role label and seed tuple to a deterministic record
// address. The role and each seed are length-prefixed so that no two distinct
// tuples share an encoding.
func DeriveAddress(role string, seeds ...[]byte) (Address, error) {
	label := strings.TrimSpace(role)
	if label == "" || len(label) > 255 {
		return Address{}, ErrEmptyRole
	}
	if len(seeds) > MaxSeeds {
		return Address{}, ErrTooManySeeds
	}
	size := len(derivationDomain) + 1 + len(label)
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Address{}, fmt.Errorf("%w: seed %d has %d bytes", ErrSeedTooLong, i, len(seed))
		}
		size += 1 + len(seed)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, derivationDomain...)
	buf = append(buf, byte(len(label)))
	buf = append(buf, label...)
	for _, seed := range seeds {
		buf = append(buf, byte(len(seed)))
		buf = append(buf, seed...)
	}
	digest := crypto.Keccak256(buf)
	var addr Address
	copy(addr[:], digest[len(digest)-AddressLength:])
	return addr, nil
}

// MustDeriveAddress is DeriveAddress for seed sets known to be valid.
func MustDeriveAddress(role string, seeds ...[]byte) Address {
	addr, err := DeriveAddress(role, seeds...)
	if err != nil {
		panic(err)
	}
	return addr
}
