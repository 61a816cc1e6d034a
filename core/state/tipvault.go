package state

import (
	"tipledger/crypto"
	"tipledger/native/tipvault"
)

type tipReceiptRecord struct {
	TipID       [32]byte
	SenderVault crypto.Address
	Amount      uint64
	ExecutedAt  uint64
}

func (tx *Tx) TipConfigGet(addr crypto.Address) (*tipvault.Config, bool, error) {
	cfg := new(tipvault.Config)
	ok, err := tx.KVGet(TipConfigKey(addr), cfg)
	if err != nil || !ok {
		return nil, false, err
	}
	return cfg, true, nil
}

func (tx *Tx) TipConfigPut(addr crypto.Address, cfg *tipvault.Config) error {
	return tx.KVPut(TipConfigKey(addr), cfg)
}

func (tx *Tx) TipVaultGet(addr crypto.Address) (*tipvault.Vault, bool, error) {
	vault := new(tipvault.Vault)
	ok, err := tx.KVGet(TipVaultKey(addr), vault)
	if err != nil || !ok {
		return nil, false, err
	}
	return vault, true, nil
}

func (tx *Tx) TipVaultPut(addr crypto.Address, vault *tipvault.Vault) error {
	return tx.KVPut(TipVaultKey(addr), vault)
}

func (tx *Tx) TipAllowanceGet(addr crypto.Address) (*tipvault.Allowance, bool, error) {
	allowance := new(tipvault.Allowance)
	ok, err := tx.KVGet(TipAllowanceKey(addr), allowance)
	if err != nil || !ok {
		return nil, false, err
	}
	return allowance, true, nil
}

func (tx *Tx) TipAllowancePut(addr crypto.Address, allowance *tipvault.Allowance) error {
	return tx.KVPut(TipAllowanceKey(addr), allowance)
}

func (tx *Tx) TipFeeVaultGet(addr crypto.Address) (*tipvault.FeeVault, bool, error) {
	fv := new(tipvault.FeeVault)
	ok, err := tx.KVGet(TipFeeVaultKey(addr), fv)
	if err != nil || !ok {
		return nil, false, err
	}
	return fv, true, nil
}

func (tx *Tx) TipFeeVaultPut(addr crypto.Address, fv *tipvault.FeeVault) error {
	return tx.KVPut(TipFeeVaultKey(addr), fv)
}

func (tx *Tx) TipReceiptGet(addr crypto.Address) (*tipvault.TipReceipt, bool, error) {
	var record tipReceiptRecord
	ok, err := tx.KVGet(TipReceiptKey(addr), &record)
	if err != nil || !ok {
		return nil, false, err
	}
	return &tipvault.TipReceipt{
		TipID:       tipvault.TipID(record.TipID),
		SenderVault: record.SenderVault,
		Amount:      record.Amount,
		ExecutedAt:  int64(record.ExecutedAt),
	}, true, nil
}

func (tx *Tx) TipReceiptPut(addr crypto.Address, receipt *tipvault.TipReceipt) error {
	executedAt := receipt.ExecutedAt
	if executedAt < 0 {
		executedAt = 0
	}
	return tx.KVPut(TipReceiptKey(addr), &tipReceiptRecord{
		TipID:       receipt.TipID,
		SenderVault: receipt.SenderVault,
		Amount:      receipt.Amount,
		ExecutedAt:  uint64(executedAt),
	})
}

var _ tipvault.State = (*Tx)(nil)

// TipvaultStore adapts the manager to the vault engine's Store contract.
func (m *Manager) TipvaultStore() tipvault.Store { return tipvaultStore{m: m} }

type tipvaultStore struct {
	m *Manager
}

func (s tipvaultStore) Update(fn func(tipvault.State) error) error {
	return s.m.Update(func(tx *Tx) error { return fn(tx) })
}

func (s tipvaultStore) View(fn func(tipvault.State) error) error {
	return s.m.View(func(tx *Tx) error { return fn(tx) })
}

// Genesis balance credited once on first start.
type GenesisBalance struct {
	Owner  crypto.Address
	Amount uint64
}

// ApplyBootstrapBalances credits balances in mint exactly once per database.
// It reports whether the credit ran.
func (m *Manager) ApplyBootstrapBalances(mint crypto.Address, balances []GenesisBalance) (bool, error) {
	applied := false
	err := m.Update(func(tx *Tx) error {
		done, err := tx.KVGet(bootstrapKey, nil)
		if err != nil || done {
			return err
		}
		for _, bal := range balances {
			if err := tx.TokenCredit(mint, bal.Owner, bal.Amount); err != nil {
				return err
			}
		}
		applied = true
		return tx.KVPut(bootstrapKey, uint64(len(balances)))
	})
	return applied, err
}
