package tipvault

import (
	"errors"

	"tipledger/native/token"
)

var (
	ErrUnauthorized             = errors.New("tipvault: unauthorized")
	ErrAlreadyInitialized       = errors.New("tipvault: config already initialized")
	ErrAlreadyRegistered        = errors.New("tipvault: identity already registered")
	ErrInvalidFeeRate           = errors.New("tipvault: fee rate must be between 0 and 10000 bps")
	ErrInsufficientAllowance    = errors.New("tipvault: insufficient allowance")
	ErrInsufficientVaultBalance = errors.New("tipvault: insufficient vault balance")
	ErrArithmeticOverflow       = errors.New("tipvault: arithmetic overflow")
	ErrIdentityMismatch         = errors.New("tipvault: identity mismatch")

	ErrConfigNotFound        = errors.New("tipvault: config not initialized")
	ErrVaultNotFound         = errors.New("tipvault: vault not found")
	ErrAllowanceNotFound     = errors.New("tipvault: allowance not found")
	ErrFeeVaultNotFound      = errors.New("tipvault: fee vault not found")
	ErrInvalidAmount         = errors.New("tipvault: amount must be positive")
	ErrInvalidRelayer        = errors.New("tipvault: relayer must not be zero")
	ErrInvalidTokenMint      = errors.New("tipvault: invalid token mint")
	ErrInvalidHashedIdentity = errors.New("tipvault: hashed identity must not be zero")
	ErrInvalidDestination    = errors.New("tipvault: invalid destination")
	ErrDuplicateTip          = errors.New("tipvault: tip id already executed")
	ErrTipIDRequired         = errors.New("tipvault: tip id required when replay guard is enabled")
	ErrNilState              = errors.New("tipvault: state not configured")

	// ErrInsufficientBalance is raised by the token ledger when a user
	// account cannot cover a deposit.
	ErrInsufficientBalance = token.ErrInsufficientBalance
)

// vaultTransferError maps the token ledger's balance error onto the vault
// taxonomy for transfers sourced from custody accounts.
func vaultTransferError(err error) error {
	if errors.Is(err, token.ErrInsufficientBalance) {
		return ErrInsufficientVaultBalance
	}
	if errors.Is(err, token.ErrBalanceOverflow) {
		return ErrArithmeticOverflow
	}
	return err
}
