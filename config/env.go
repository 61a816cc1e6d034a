package config

import (
	"strconv"
	"strings"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "TIPLEDGER_"

type lookupFunc func(string) (string, bool)

// applyEnv overlays TIPLEDGER_* variables. The bootstrap names follow the
// operator scripts: RELAYER_AUTHORITY, TOKEN_MINT_ADDRESS and FEE_BPS.
func applyEnv(cfg *Config, lookup lookupFunc) {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("LISTEN", &cfg.ListenAddress)
	str("DATA_DIR", &cfg.DataDir)
	str("ENV", &cfg.Environment)
	str("STORAGE_BACKEND", &cfg.Storage.Backend)
	str("UPGRADE_AUTHORITY", &cfg.Bootstrap.Authority)
	str("RELAYER_AUTHORITY", &cfg.Bootstrap.Relayer)
	str("TOKEN_MINT_ADDRESS", &cfg.Bootstrap.TokenMint)
	str("NATS_URL", &cfg.Events.NATSURL)
	str("INDEXER_DRIVER", &cfg.Indexer.Driver)
	str("INDEXER_DSN", &cfg.Indexer.DSN)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("OTEL_ENDPOINT", &cfg.Telemetry.Endpoint)
	str("OTEL_HEADERS", &cfg.Telemetry.Headers)

	if v, ok := lookup(EnvPrefix + "FEE_BPS"); ok {
		if parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.Bootstrap.FeeBps = parsed
		}
	}
	if v, ok := lookup(EnvPrefix + "TIP_REPLAY_GUARD"); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Ledger.TipReplayGuard = parsed
		}
	}
}
