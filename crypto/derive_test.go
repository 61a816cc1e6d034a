package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveAddressDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 32)
	first, err := DeriveAddress("vault", seed)
	require.NoError(t, err)
	second, err := DeriveAddress("vault", seed)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.False(t, first.IsZero())
}

func TestDeriveAddressRoleSeparatesDomains(t *testing.T) {
	seed := bytes.Repeat([]byte{0x01}, 32)
	vault := MustDeriveAddress("vault", seed)
	allowance := MustDeriveAddress("allowance", seed)
	require.NotEqual(t, vault, allowance)

	other := bytes.Repeat([]byte{0x02}, 32)
	require.NotEqual(t, vault, MustDeriveAddress("vault", other))
}

func TestDeriveAddressLengthPrefixPreventsConcatenationCollisions(t *testing.T) {
	a := MustDeriveAddress("fee", []byte("_vault"))
	b := MustDeriveAddress("fee_vault")
	require.NotEqual(t, a, b)

	c := MustDeriveAddress("x", []byte{0x01, 0x02})
	d := MustDeriveAddress("x", []byte{0x01}, []byte{0x02})
	require.NotEqual(t, c, d)
}

func TestDeriveAddressRejectsInvalidSeeds(t *testing.T) {
	_, err := DeriveAddress("vault", make([]byte, 33))
	require.True(t, errors.Is(err, ErrSeedTooLong))

	_, err = DeriveAddress("  ")
	require.ErrorIs(t, err, ErrEmptyRole)

	seeds := make([][]byte, MaxSeeds+1)
	_, err = DeriveAddress("vault", seeds...)
	require.ErrorIs(t, err, ErrTooManySeeds)

	require.Panics(t, func() { MustDeriveAddress("") })
}
