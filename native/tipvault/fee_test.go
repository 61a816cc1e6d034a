package tipvault

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculateFee(t *testing.T) {
	cases := []struct {
		amount    uint64
		feeBps    uint16
		wantFee   uint64
		wantTotal uint64
	}{
		{150_000, 50, 750, 150_750},
		{1, 1, 1, 2},
		{10_000, 1, 1, 10_001},
		{9_999, 1, 1, 10_000},
		{100, 0, 0, 100},
		{123, 10_000, 123, 246},
		{math.MaxUint64 / 2, 10_000, math.MaxUint64 / 2, math.MaxUint64 - 1},
	}
	for _, tc := range cases {
		fee, total, err := CalculateFee(tc.amount, tc.feeBps)
		require.NoError(t, err)
		require.Equal(t, tc.wantFee, fee, "amount=%d bps=%d", tc.amount, tc.feeBps)
		require.Equal(t, tc.wantTotal, total)
	}
}

func TestCalculateFeeErrors(t *testing.T) {
	_, _, err := CalculateFee(math.MaxUint64, 1)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	_, _, err = CalculateFee(1, 10_001)
	require.ErrorIs(t, err, ErrInvalidFeeRate)
}

func TestValidateFeeBps(t *testing.T) {
	v, err := ValidateFeeBps(10_000)
	require.NoError(t, err)
	require.Equal(t, uint16(10_000), v)

	_, err = ValidateFeeBps(70_000)
	require.ErrorIs(t, err, ErrInvalidFeeRate)
}

func TestHashedIdentityParsing(t *testing.T) {
	id := hashedID("alice")
	parsed, err := ParseHashedIdentity(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = ParseHashedIdentity("0xabcd")
	require.Error(t, err)
	_, err = ParseHashedIdentity("zz")
	require.Error(t, err)

	tipID, err := ParseTipID("0x01")
	require.NoError(t, err)
	require.Equal(t, byte(1), tipID[31])
	_, err = ParseTipID("0x" + id.String()[2:] + "00")
	require.Error(t, err)
}

func TestDeriveAddressesAreDistinct(t *testing.T) {
	set := DeriveAddresses(hashedID("alice"))
	other := DeriveAddresses(hashedID("bob"))

	require.NotEqual(t, set.Vault, set.Allowance)
	require.NotEqual(t, set.Vault, other.Vault)
	require.Equal(t, set.Config, other.Config)
	require.Equal(t, set.FeeVault, other.FeeVault)
	require.NotEqual(t, set.Config, set.FeeVault)
}
