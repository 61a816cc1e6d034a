package tipvault

import (
	"tipledger/core/events"
	"tipledger/crypto"
)

// Deposit moves amount from the caller's token balance into the custody
// balance of the vault at vaultAddr. Only the vault authority may deposit.
func (e *Engine) Deposit(caller, vaultAddr crypto.Address, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	var evt events.Deposit
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
		if vault.TokenMint != cfg.TokenMint {
			return ErrInvalidTokenMint
		}
		if err := st.TokenTransfer(cfg.TokenMint, caller, vaultAddr, amount); err != nil {
			return err
		}
		evt = events.Deposit{
			Authority:    caller,
			Vault:        vaultAddr,
			HashedUserID: vault.HashedUserID,
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
