package state

import (
	"math"

	"tipledger/crypto"
	"tipledger/native/token"
)

// TokenBalance returns owner's balance in mint. Missing balances read as 0.
func (tx *Tx) TokenBalance(mint, owner crypto.Address) (uint64, error) {
	var balance uint64
	if _, err := tx.KVGet(balanceKey(mint, owner), &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func (tx *Tx) setBalance(mint, owner crypto.Address, amount uint64) error {
	key := balanceKey(mint, owner)
	if amount == 0 {
		return tx.KVDelete(key)
	}
	return tx.KVPut(key, amount)
}

// TokenTransfer debits from and credits to. Nothing is written when the
// source balance is short or the destination would overflow.
func (tx *Tx) TokenTransfer(mint, from, to crypto.Address, amount uint64) error {
	if mint.IsZero() {
		return token.ErrInvalidMint
	}
	if from == to {
		return token.ErrSelfTransfer
	}
	src, err := tx.TokenBalance(mint, from)
	if err != nil {
		return err
	}
	if src < amount {
		return token.ErrInsufficientBalance
	}
	dst, err := tx.TokenBalance(mint, to)
	if err != nil {
		return err
	}
	if dst > math.MaxUint64-amount {
		return token.ErrBalanceOverflow
	}
	if err := tx.setBalance(mint, from, src-amount); err != nil {
		return err
	}
	return tx.setBalance(mint, to, dst+amount)
}

// TokenCredit mints amount into owner's balance.
func (tx *Tx) TokenCredit(mint, owner crypto.Address, amount uint64) error {
	if mint.IsZero() {
		return token.ErrInvalidMint
	}
	current, err := tx.TokenBalance(mint, owner)
	if err != nil {
		return err
	}
	if current > math.MaxUint64-amount {
		return token.ErrBalanceOverflow
	}
	return tx.setBalance(mint, owner, current+amount)
}

var (
	_ token.Ledger = (*Tx)(nil)
	_ token.Minter = (*Tx)(nil)
)
