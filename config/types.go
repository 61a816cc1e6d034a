package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written as "5s" in TOML and YAML.
type Duration struct {
	time.Duration
}

// UnmarshalText parses human readable duration strings.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// StorageConfig selects the key-value backend for ledger state.
type StorageConfig struct {
	Backend string `toml:"Backend" yaml:"backend"`
	Path    string `toml:"Path,omitempty" yaml:"path,omitempty"`
}

// BalanceConfig seeds a token balance on first start.
type BalanceConfig struct {
	Owner  string `toml:"Owner" yaml:"owner"`
	Amount uint64 `toml:"Amount" yaml:"amount"`
}

// BootstrapConfig initializes the config singleton when the ledger starts
// empty. Authority becomes the upgrade authority.
type BootstrapConfig struct {
	Authority string          `toml:"Authority,omitempty" yaml:"authority,omitempty"`
	Relayer   string          `toml:"Relayer,omitempty" yaml:"relayer,omitempty"`
	TokenMint string          `toml:"TokenMint,omitempty" yaml:"token_mint,omitempty"`
	FeeBps    uint64          `toml:"FeeBps" yaml:"fee_bps"`
	Balances  []BalanceConfig `toml:"Balances,omitempty" yaml:"balances,omitempty"`
}

// Enabled reports whether enough fields are set to initialize the config.
func (b BootstrapConfig) Enabled() bool {
	return strings.TrimSpace(b.Authority) != "" && strings.TrimSpace(b.Relayer) != "" && strings.TrimSpace(b.TokenMint) != ""
}

// LedgerConfig toggles optional engine behavior.
type LedgerConfig struct {
	TipReplayGuard bool `toml:"TipReplayGuard" yaml:"tip_replay_guard"`
}

// EventsConfig configures the in-process bus and the optional NATS sink.
type EventsConfig struct {
	SubscriberBuffer int      `toml:"SubscriberBuffer" yaml:"subscriber_buffer"`
	NATSURL          string   `toml:"NATSURL,omitempty" yaml:"nats_url,omitempty"`
	SubjectPrefix    string   `toml:"SubjectPrefix,omitempty" yaml:"subject_prefix,omitempty"`
	ConnectTimeout   Duration `toml:"ConnectTimeout" yaml:"connect_timeout"`
}

// IndexerConfig configures the SQL event archive.
type IndexerConfig struct {
	Enabled bool   `toml:"Enabled" yaml:"enabled"`
	Driver  string `toml:"Driver" yaml:"driver"`
	DSN     string `toml:"DSN,omitempty" yaml:"dsn,omitempty"`
}

// RPCConfig tunes the JSON-RPC server.
type RPCConfig struct {
	RequestsPerMinute int      `toml:"RequestsPerMinute" yaml:"requests_per_minute"`
	Burst             int      `toml:"Burst" yaml:"burst"`
	ReadTimeout       Duration `toml:"ReadTimeout" yaml:"read_timeout"`
	WriteTimeout      Duration `toml:"WriteTimeout" yaml:"write_timeout"`
	MaxBodyBytes      int64    `toml:"MaxBodyBytes" yaml:"max_body_bytes"`
}

// LoggingConfig mirrors logging.Options.
type LoggingConfig struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Endpoint    string  `toml:"Endpoint,omitempty" yaml:"endpoint,omitempty"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Headers     string  `toml:"Headers,omitempty" yaml:"headers,omitempty"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	Traces      bool    `toml:"Traces" yaml:"traces"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sample_ratio"`
}
