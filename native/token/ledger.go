// Package token describes the fungible balance ledger that custody accounts
// are held in. The ledger keeps one balance per (mint, owner) pair.
package token

import (
	"errors"

	"tipledger/crypto"
)

var (
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrBalanceOverflow     = errors.New("token: balance overflow")
	ErrInvalidMint         = errors.New("token: mint must not be zero")
	ErrSelfTransfer        = errors.New("token: source and destination are identical")
)

// Ledger is the transfer primitive used by the vault engine. Transfer must
// fail without side effects when the source lacks funds.
type Ledger interface {
	TokenBalance(mint, owner crypto.Address) (uint64, error)
	TokenTransfer(mint, from, to crypto.Address, amount uint64) error
}

// Minter credits balances out of thin air. Only bootstrap tooling and tests
// mint; the vault engine never does.
type Minter interface {
	TokenCredit(mint, owner crypto.Address, amount uint64) error
}
