package tipvault

import (
	"tipledger/core/events"
	"tipledger/crypto"
)

// Withdraw lets a vault authority pull custody funds out to destination.
func (e *Engine) Withdraw(caller, vaultAddr, destination crypto.Address, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if destination.IsZero() || destination == vaultAddr {
		return ErrInvalidDestination
	}
	var evt events.Withdraw
	err := e.update(func(st State) error {
		cfg, err := loadConfig(st)
		if err != nil {
			return err
		}
		vault, err := loadVault(st, vaultAddr)
		if err != nil {
			return err
		}
		if vault.Authority != caller {
			return ErrUnauthorized
		}
		if err := drain(st, cfg.TokenMint, vaultAddr, destination, amount); err != nil {
			return err
		}
		evt = events.Withdraw{
			Authority:    caller,
			Vault:        vaultAddr,
			HashedUserID: vault.HashedUserID,
			Destination:  destination,
			Amount:       amount,
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(evt)
	return nil
}

// WithdrawFee sweeps amount from the fee vault to destination. Only the
// upgrade authority may call it.
func (e *Engine) WithdrawFee(caller, destination crypto.Address, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	feeVaultAddr := FeeVaultAddress()
	if destination.IsZero() || destination == feeVaultAddr {
		return ErrInvalidDestination
	}
	err := e.update(func(st State) error {
		cfg, err := loadConfig(st)
		if err != nil {
			return err
		}
		if cfg.UpgradeAuthority != caller {
			return ErrUnauthorized
		}
		_, ok, err := st.TipFeeVaultGet(feeVaultAddr)
		if err != nil {
			return err
		}
		if !ok {
			return ErrFeeVaultNotFound
		}
		return drain(st, cfg.TokenMint, feeVaultAddr, destination, amount)
	})
	if err != nil {
		return err
	}
	e.emit(events.FeeWithdrawn{
		Authority:   caller,
		FeeVault:    feeVaultAddr,
		Destination: destination,
		Amount:      amount,
	})
	return nil
}

func drain(st State, mint, from, to crypto.Address, amount uint64) error {
	balance, err := st.TokenBalance(mint, from)
	if err != nil {
		return err
	}
	if balance < amount {
		return ErrInsufficientVaultBalance
	}
	if err := st.TokenTransfer(mint, from, to, amount); err != nil {
		return vaultTransferError(err)
	}
	return nil
}
