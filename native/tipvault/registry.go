package tipvault

import (
	"tipledger/crypto"
)

// Register creates the vault and allowance pair for id. The caller becomes the
// only party allowed to deposit into, withdraw from, or approve spending for
// the vault.
func (e *Engine) Register(caller crypto.Address, id HashedIdentity) (*Vault, *Allowance, error) {
	if id.IsZero() {
		return nil, nil, ErrInvalidHashedIdentity
	}
	vaultAddr := VaultAddress(id)
	allowanceAddr := AllowanceAddress(id)
	var (
		vault     *Vault
		allowance *Allowance
	)
	err := e.update(func(st State) error {
		cfg, err := loadConfig(st)
		if err != nil {
			return err
		}
		_, vaultExists, err := st.TipVaultGet(vaultAddr)
		if err != nil {
			return err
		}
		_, allowanceExists, err := st.TipAllowanceGet(allowanceAddr)
		if err != nil {
			return err
		}
		if vaultExists || allowanceExists {
			return ErrAlreadyRegistered
		}
		vault = &Vault{Authority: caller, TokenMint: cfg.TokenMint, HashedUserID: id}
		allowance = &Allowance{Authority: caller, HashedUserID: id}
		if err := st.TipVaultPut(vaultAddr, vault); err != nil {
			return err
		}
		return st.TipAllowancePut(allowanceAddr, allowance)
	})
	if err != nil {
		return nil, nil, err
	}
	return vault.Clone(), allowance.Clone(), nil
}

// Vault looks up the vault registered for id.
func (e *Engine) Vault(id HashedIdentity) (*Vault, error) {
	return e.VaultAt(VaultAddress(id))
}

// VaultAt looks up the vault stored at addr.
func (e *Engine) VaultAt(addr crypto.Address) (*Vault, error) {
	var out *Vault
	err := e.view(func(st State) error {
		vault, err := loadVault(st, addr)
		if err != nil {
			return err
		}
		out = vault.Clone()
		return nil
	})
	return out, err
}

// Allowance looks up the allowance registered for id.
func (e *Engine) Allowance(id HashedIdentity) (*Allowance, error) {
	return e.AllowanceAt(AllowanceAddress(id))
}

func (e *Engine) AllowanceAt(addr crypto.Address) (*Allowance, error) {
	var out *Allowance
	err := e.view(func(st State) error {
		allowance, err := loadAllowance(st, addr)
		if err != nil {
			return err
		}
		out = allowance.Clone()
		return nil
	})
	return out, err
}

// FeeVault returns the fee vault record once the first tip created it.
func (e *Engine) FeeVault() (*FeeVault, error) {
	var out *FeeVault
	err := e.view(func(st State) error {
		fv, ok, err := st.TipFeeVaultGet(FeeVaultAddress())
		if err != nil {
			return err
		}
		if !ok || fv == nil {
			return ErrFeeVaultNotFound
		}
		out = fv.Clone()
		return nil
	})
	return out, err
}

// Balance reports the custody balance held by owner in the configured mint.
// Owner may be a vault, the fee vault, or a user identity.
func (e *Engine) Balance(owner crypto.Address) (uint64, error) {
	var out uint64
	err := e.view(func(st State) error {
		cfg, err := loadConfig(st)
		if err != nil {
			return err
		}
		out, err = st.TokenBalance(cfg.TokenMint, owner)
		return err
	})
	return out, err
}
