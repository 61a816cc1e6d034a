package config

import (
	"fmt"
	"strconv"
	"strings"

	"tipledger/crypto"
	"tipledger/native/tipvault"
)

// Validate checks the decoded configuration for well-formedness.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "leveldb", "bolt":
	default:
		return fmt.Errorf("storage backend %q not supported", c.Storage.Backend)
	}
	switch c.Indexer.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("indexer driver %q not supported", c.Indexer.Driver)
	}
	if c.Indexer.Enabled && strings.TrimSpace(c.Indexer.DSN) == "" {
		return fmt.Errorf("indexer dsn must be configured")
	}
	if _, err := tipvault.ValidateFeeBps(c.Bootstrap.FeeBps); err != nil {
		return fmt.Errorf("bootstrap fee_bps %d: %w", c.Bootstrap.FeeBps, err)
	}
	if c.Bootstrap.Enabled() {
		if _, err := c.Bootstrap.Resolve(); err != nil {
			return err
		}
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample_ratio must be within [0,1]")
	}
	return nil
}

// BootstrapParams is the decoded form of BootstrapConfig.
type BootstrapParams struct {
	Authority crypto.Address
	Args      tipvault.InitializeConfigArgs
	Balances  []BootstrapBalance
}

type BootstrapBalance struct {
	Owner  crypto.Address
	Amount uint64
}

// Resolve decodes addresses and the fee rate.
func (b BootstrapConfig) Resolve() (BootstrapParams, error) {
	var out BootstrapParams
	authority, err := crypto.DecodeAddress(b.Authority)
	if err != nil {
		return out, fmt.Errorf("bootstrap authority: %w", err)
	}
	relayer, err := crypto.DecodeAddress(b.Relayer)
	if err != nil {
		return out, fmt.Errorf("bootstrap relayer: %w", err)
	}
	mint, err := crypto.DecodeAddress(b.TokenMint)
	if err != nil {
		return out, fmt.Errorf("bootstrap token_mint: %w", err)
	}
	feeBps, err := tipvault.ValidateFeeBps(b.FeeBps)
	if err != nil {
		return out, fmt.Errorf("bootstrap fee_bps: %w", err)
	}
	out.Authority = authority
	out.Args = tipvault.InitializeConfigArgs{Relayer: relayer, TokenMint: mint, FeeBps: feeBps}
	for i, bal := range b.Balances {
		owner, err := crypto.DecodeAddress(bal.Owner)
		if err != nil {
			return out, fmt.Errorf("bootstrap balance %d: %w", i, err)
		}
		out.Balances = append(out.Balances, BootstrapBalance{Owner: owner, Amount: bal.Amount})
	}
	return out, nil
}

// ParseFeeBps validates an operator-supplied fee rate such as the FEE_BPS
// environment variable.
func ParseFeeBps(raw string) (uint16, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("fee bps required")
	}
	value, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("fee bps %q: %w", raw, err)
	}
	return tipvault.ValidateFeeBps(value)
}
