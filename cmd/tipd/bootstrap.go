package main

import (
	"errors"
	"fmt"
	"log/slog"

	"tipledger/config"
	"tipledger/core/state"
	"tipledger/crypto"
	"tipledger/native/tipvault"
	"tipledger/observability/logging"
)

// bootstrapLedger initializes the config singleton on an empty ledger and
// seeds genesis balances in the configured mint. Both steps are skipped once
// they have run against the database.
func bootstrapLedger(engine *tipvault.Engine, mgr *state.Manager, cfg config.BootstrapConfig, logger *slog.Logger) error {
	current, err := engine.Config()
	switch {
	case err == nil:
		logger.Info("ledger config present",
			logging.Abbrev("relayer", current.Relayer.String()),
			slog.Int("fee_bps", int(current.FeeBps)))
	case errors.Is(err, tipvault.ErrConfigNotFound):
		if !cfg.Enabled() {
			logger.Warn("ledger config not initialized; waiting for tip_initializeConfig")
			return nil
		}
		params, err := cfg.Resolve()
		if err != nil {
			return err
		}
		current, err = engine.InitializeConfig(params.Authority, params.Args)
		if err != nil {
			return fmt.Errorf("initialize config: %w", err)
		}
		logger.Info("ledger config initialized",
			logging.Abbrev("authority", params.Authority.String()),
			slog.Int("fee_bps", int(current.FeeBps)))
	default:
		return err
	}

	if len(cfg.Balances) == 0 {
		return nil
	}
	genesis := make([]state.GenesisBalance, 0, len(cfg.Balances))
	for i, bal := range cfg.Balances {
		owner, err := crypto.DecodeAddress(bal.Owner)
		if err != nil {
			return fmt.Errorf("bootstrap balance %d: %w", i, err)
		}
		genesis = append(genesis, state.GenesisBalance{Owner: owner, Amount: bal.Amount})
	}
	applied, err := mgr.ApplyBootstrapBalances(current.TokenMint, genesis)
	if err != nil {
		return fmt.Errorf("apply balances: %w", err)
	}
	if applied {
		logger.Info("genesis balances credited", slog.Int("accounts", len(genesis)))
	}
	return nil
}
