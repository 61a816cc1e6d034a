package events

import (
	"encoding/hex"
	"strconv"

	"tipledger/core/types"
	"tipledger/crypto"
)

const (
	TypeConfigUpdated    = "tipvault.config.updated"
	TypeDeposit          = "tipvault.deposit"
	TypeAllowanceUpdated = "tipvault.allowance.updated"
	TypeTip              = "tipvault.tip"
	TypeWithdraw         = "tipvault.withdraw"
	TypeFeeWithdrawn     = "tipvault.fee.withdrawn"
)

// Config change kinds carried by ConfigUpdated.
const (
	ConfigInitialized    = "initialized"
	ConfigRelayerChanged = "relayer"
	ConfigFeeRateChanged = "fee_rate"
)

type ConfigUpdated struct {
	Kind             string
	UpgradeAuthority crypto.Address
	Relayer          crypto.Address
	TokenMint        crypto.Address
	FeeBps           uint16
}

func (ConfigUpdated) EventType() string { return TypeConfigUpdated }

func (e ConfigUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeConfigUpdated,
		Attributes: map[string]string{
			"kind":             e.Kind,
			"upgradeAuthority": e.UpgradeAuthority.String(),
			"relayer":          e.Relayer.String(),
			"tokenMint":        e.TokenMint.String(),
			"feeBps":           strconv.FormatUint(uint64(e.FeeBps), 10),
		},
	}
}

// Deposit is emitted when tokens move from an authority into its vault.
type Deposit struct {
	Authority    crypto.Address
	Vault        crypto.Address
	HashedUserID [32]byte
	Amount       uint64
}

func (Deposit) EventType() string { return TypeDeposit }

func (e Deposit) Event() *types.Event {
	return &types.Event{
		Type: TypeDeposit,
		Attributes: map[string]string{
			"authority":    e.Authority.String(),
			"vault":        e.Vault.String(),
			"hashedUserId": hex.EncodeToString(e.HashedUserID[:]),
			"amount":       formatUint(e.Amount),
		},
	}
}

type AllowanceUpdated struct {
	Authority    crypto.Address
	Vault        crypto.Address
	HashedUserID [32]byte
	Cap          uint64
	Remaining    uint64
}

func (AllowanceUpdated) EventType() string { return TypeAllowanceUpdated }

func (e AllowanceUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeAllowanceUpdated,
		Attributes: map[string]string{
			"authority":    e.Authority.String(),
			"vault":        e.Vault.String(),
			"hashedUserId": hex.EncodeToString(e.HashedUserID[:]),
			"cap":          formatUint(e.Cap),
			"remaining":    formatUint(e.Remaining),
		},
	}
}

// Tip is emitted after a relayer-executed tip commits. AllowanceRemaining is
// the post-debit value and FeeBps the rate applied to this tip.
type Tip struct {
	Relayer               crypto.Address
	SenderVault           crypto.Address
	RecipientVault        crypto.Address
	SenderHashedUserID    [32]byte
	RecipientHashedUserID [32]byte
	FeeVault              crypto.Address
	Amount                uint64
	AllowanceRemaining    uint64
	TipID                 [32]byte
	FeeAmount             uint64
	TotalAmount           uint64
	FeeBps                uint16
	Memo                  *string
}

func (Tip) EventType() string { return TypeTip }

func (e Tip) Event() *types.Event {
	attrs := map[string]string{
		"relayer":               e.Relayer.String(),
		"senderVault":           e.SenderVault.String(),
		"recipientVault":        e.RecipientVault.String(),
		"senderHashedUserId":    hex.EncodeToString(e.SenderHashedUserID[:]),
		"recipientHashedUserId": hex.EncodeToString(e.RecipientHashedUserID[:]),
		"feeVault":              e.FeeVault.String(),
		"amount":                formatUint(e.Amount),
		"allowanceRemaining":    formatUint(e.AllowanceRemaining),
		"tipId":                 hex.EncodeToString(e.TipID[:]),
		"feeAmount":             formatUint(e.FeeAmount),
		"totalAmount":           formatUint(e.TotalAmount),
		"feeBps":                strconv.FormatUint(uint64(e.FeeBps), 10),
	}
	if e.Memo != nil {
		attrs["memo"] = *e.Memo
	}
	return &types.Event{Type: TypeTip, Attributes: attrs}
}

type Withdraw struct {
	Authority    crypto.Address
	Vault        crypto.Address
	HashedUserID [32]byte
	Destination  crypto.Address
	Amount       uint64
}

func (Withdraw) EventType() string { return TypeWithdraw }

func (e Withdraw) Event() *types.Event {
	return &types.Event{
		Type: TypeWithdraw,
		Attributes: map[string]string{
			"authority":    e.Authority.String(),
			"vault":        e.Vault.String(),
			"hashedUserId": hex.EncodeToString(e.HashedUserID[:]),
			"destination":  e.Destination.String(),
			"amount":       formatUint(e.Amount),
		},
	}
}

type FeeWithdrawn struct {
	Authority   crypto.Address
	FeeVault    crypto.Address
	Destination crypto.Address
	Amount      uint64
}

func (FeeWithdrawn) EventType() string { return TypeFeeWithdrawn }

func (e FeeWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeFeeWithdrawn,
		Attributes: map[string]string{
			"authority":   e.Authority.String(),
			"feeVault":    e.FeeVault.String(),
			"destination": e.Destination.String(),
			"amount":      formatUint(e.Amount),
		},
	}
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
