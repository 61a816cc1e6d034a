package tipvault

import (
	"github.com/holiman/uint256"
)

var bpsDenominator = uint256.NewInt(uint64(MaxFeeBps))

// CalculateFee returns ceil(amount*feeBps/10000) and amount+fee. The product
// is computed in 256-bit space; results that do not fit uint64 fail with
// ErrArithmeticOverflow.
func CalculateFee(amount uint64, feeBps uint16) (fee uint64, total uint64, err error) {
	if feeBps > MaxFeeBps {
		return 0, 0, ErrInvalidFeeRate
	}
	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(amount), uint256.NewInt(uint64(feeBps)))
	if overflow {
		return 0, 0, ErrArithmeticOverflow
	}
	rounded, overflow := new(uint256.Int).AddOverflow(product, new(uint256.Int).SubUint64(bpsDenominator, 1))
	if overflow {
		return 0, 0, ErrArithmeticOverflow
	}
	feeWide := new(uint256.Int).Div(rounded, bpsDenominator)
	if !feeWide.IsUint64() {
		return 0, 0, ErrArithmeticOverflow
	}
	totalWide, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(amount), feeWide)
	if overflow || !totalWide.IsUint64() {
		return 0, 0, ErrArithmeticOverflow
	}
	return feeWide.Uint64(), totalWide.Uint64(), nil
}
