package tipvault

import (
	"tipledger/core/events"
	"tipledger/crypto"
)

// ApproveAllowance replaces both cap and remaining with amount. Approval does
// not accumulate onto the previous remaining value.
func (e *Engine) ApproveAllowance(caller, allowanceAddr crypto.Address, amount uint64) (*Allowance, error) {
	return e.resetAllowance(caller, allowanceAddr, amount)
}

// RevokeAllowance zeroes the allowance so the relayer can no longer spend.
func (e *Engine) RevokeAllowance(caller, allowanceAddr crypto.Address) (*Allowance, error) {
	return e.resetAllowance(caller, allowanceAddr, 0)
}

func (e *Engine) resetAllowance(caller, allowanceAddr crypto.Address, amount uint64) (*Allowance, error) {
	var updated *Allowance
	err := e.update(func(st State) error {
		allowance, err := loadAllowance(st, allowanceAddr)
		if err != nil {
			return err
		}
		if allowance.Authority != caller {
			return ErrUnauthorized
		}
		allowance.Cap = amount
		allowance.Remaining = amount
		updated = allowance
		return st.TipAllowancePut(allowanceAddr, allowance)
	})
	if err != nil {
		return nil, err
	}
	e.emit(events.AllowanceUpdated{
		Authority:    updated.Authority,
		Vault:        VaultAddress(updated.HashedUserID),
		HashedUserID: updated.HashedUserID,
		Cap:          updated.Cap,
		Remaining:    updated.Remaining,
	})
	return updated.Clone(), nil
}
