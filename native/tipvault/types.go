package tipvault

import (
	"encoding/hex"
	"fmt"
	"strings"

	"tipledger/crypto"
)

// Role labels used to derive record addresses.
const (
	RoleConfig     = "config"
	RoleVault      = "vault"
	RoleAllowance  = "allowance"
	RoleFeeVault   = "fee_vault"
	RoleTipReceipt = "tip_receipt"
)

// MaxFeeBps is the upper bound for the protocol fee rate (100%).
const MaxFeeBps uint16 = 10_000

// HashedIdentity is the opaque 32-byte key a caller registers a vault under.
// The engine never hashes or verifies it.
type HashedIdentity [32]byte

// ParseHashedIdentity decodes a 64 character hex string with optional 0x
// prefix.
func ParseHashedIdentity(value string) (HashedIdentity, error) {
	var id HashedIdentity
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, fmt.Errorf("tipvault: invalid hashed identity: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("tipvault: hashed identity must be %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func (h HashedIdentity) String() string { return "0x" + hex.EncodeToString(h[:]) }

func (h HashedIdentity) IsZero() bool { return h == HashedIdentity{} }

// TipID is the caller-supplied audit tag attached to a tip.
type TipID [32]byte

func (t TipID) String() string { return "0x" + hex.EncodeToString(t[:]) }

func (t TipID) IsZero() bool { return t == TipID{} }

// ParseTipID decodes a hex tip identifier. Shorter values are left-padded.
func ParseTipID(value string) (TipID, error) {
	var id TipID
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return id, nil
	}
	if len(trimmed)%2 == 1 {
		trimmed = "0" + trimmed
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, fmt.Errorf("tipvault: invalid tip id: %w", err)
	}
	if len(raw) > len(id) {
		return id, fmt.Errorf("tipvault: tip id exceeds %d bytes", len(id))
	}
	copy(id[len(id)-len(raw):], raw)
	return id, nil
}

// Config is the protocol-wide singleton.
type Config struct {
	UpgradeAuthority crypto.Address
	Relayer          crypto.Address
	TokenMint        crypto.Address
	FeeBps           uint16
}

// Clone returns a copy safe for mutation.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Vault records custody ownership for a registered identity. The custody
// balance itself lives in the token ledger under the vault address.
type Vault struct {
	Authority    crypto.Address
	TokenMint    crypto.Address
	HashedUserID HashedIdentity
}

func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}

// Address returns the derived address the vault is stored at.
func (v *Vault) Address() crypto.Address { return VaultAddress(v.HashedUserID) }

// Allowance is the relayer spending budget paired with a vault. Remaining
// never exceeds Cap.
type Allowance struct {
	Authority    crypto.Address
	HashedUserID HashedIdentity
	Cap          uint64
	Remaining    uint64
}

func (a *Allowance) Clone() *Allowance {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// Address returns the derived address the allowance is stored at.
func (a *Allowance) Address() crypto.Address { return AllowanceAddress(a.HashedUserID) }

// FeeVault accumulates protocol fees.
type FeeVault struct {
	Config    crypto.Address
	TokenMint crypto.Address
}

func (f *FeeVault) Clone() *FeeVault {
	if f == nil {
		return nil
	}
	clone := *f
	return &clone
}

// TipReceipt marks a tip identifier as consumed when replay protection is on.
type TipReceipt struct {
	TipID       TipID
	SenderVault crypto.Address
	Amount      uint64
	ExecutedAt  int64
}

func (r *TipReceipt) Clone() *TipReceipt {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// ConfigAddress returns the derived address of the config singleton.
func ConfigAddress() crypto.Address { return crypto.MustDeriveAddress(RoleConfig) }

func VaultAddress(id HashedIdentity) crypto.Address {
	return crypto.MustDeriveAddress(RoleVault, id[:])
}

func AllowanceAddress(id HashedIdentity) crypto.Address {
	return crypto.MustDeriveAddress(RoleAllowance, id[:])
}

// FeeVaultAddress returns the fee vault address, keyed by the config address.
func FeeVaultAddress() crypto.Address {
	cfg := ConfigAddress()
	return crypto.MustDeriveAddress(RoleFeeVault, cfg[:])
}

func TipReceiptAddress(id TipID) crypto.Address {
	return crypto.MustDeriveAddress(RoleTipReceipt, id[:])
}

// Addresses bundles every derived address for one identity.
type Addresses struct {
	Config    crypto.Address `json:"config"`
	Vault     crypto.Address `json:"vault"`
	Allowance crypto.Address `json:"allowance"`
	FeeVault  crypto.Address `json:"feeVault"`
}

// DeriveAddresses computes the full address set for id without touching state.
func DeriveAddresses(id HashedIdentity) Addresses {
	return Addresses{
		Config:    ConfigAddress(),
		Vault:     VaultAddress(id),
		Allowance: AllowanceAddress(id),
		FeeVault:  FeeVaultAddress(),
	}
}
