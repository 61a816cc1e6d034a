package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddress string          `toml:"ListenAddress" yaml:"listen"`
	DataDir       string          `toml:"DataDir" yaml:"data_dir"`
	Environment   string          `toml:"Environment,omitempty" yaml:"environment,omitempty"`
	Storage       StorageConfig   `toml:"storage" yaml:"storage"`
	Bootstrap     BootstrapConfig `toml:"bootstrap" yaml:"bootstrap"`
	Ledger        LedgerConfig    `toml:"ledger" yaml:"ledger"`
	Events        EventsConfig    `toml:"events" yaml:"events"`
	Indexer       IndexerConfig   `toml:"indexer" yaml:"indexer"`
	RPC           RPCConfig       `toml:"rpc" yaml:"rpc"`
	Logging       LoggingConfig   `toml:"logging" yaml:"logging"`
	Telemetry     TelemetryConfig `toml:"telemetry" yaml:"telemetry"`
}

// Load loads the configuration from the given path. Files ending in .yaml or
// .yml are decoded as YAML, everything else as TOML. A missing file is
// replaced by a default TOML config written to path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	if isYAML(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0].String())
		}
	}

	applyEnv(cfg, os.LookupEnv)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Default returns the configuration written for a fresh install.
func Default() *Config {
	cfg := &Config{
		ListenAddress: ":8547",
		DataDir:       "./tipledger-data",
		Storage:       StorageConfig{Backend: "leveldb"},
		Bootstrap:     BootstrapConfig{FeeBps: 50},
		Indexer:       IndexerConfig{Driver: "sqlite"},
	}
	applyDefaults(cfg)
	return cfg
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	applyEnv(cfg, os.LookupEnv)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8547"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./tipledger-data"
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "leveldb"
	}
	if cfg.Storage.Path == "" && cfg.Storage.Backend != "memory" {
		name := "state"
		if cfg.Storage.Backend == "bolt" {
			name = "state.bolt"
		}
		cfg.Storage.Path = filepath.Join(cfg.DataDir, name)
	}
	if cfg.Events.SubscriberBuffer <= 0 {
		cfg.Events.SubscriberBuffer = 256
	}
	if cfg.Events.ConnectTimeout.Duration == 0 {
		cfg.Events.ConnectTimeout.Duration = 10 * time.Second
	}
	cfg.Indexer.Driver = strings.ToLower(strings.TrimSpace(cfg.Indexer.Driver))
	if cfg.Indexer.Driver == "" {
		cfg.Indexer.Driver = "sqlite"
	}
	if cfg.Indexer.DSN == "" && cfg.Indexer.Driver == "sqlite" {
		cfg.Indexer.DSN = filepath.Join(cfg.DataDir, "events.db")
	}
	if cfg.RPC.RequestsPerMinute <= 0 {
		cfg.RPC.RequestsPerMinute = 600
	}
	if cfg.RPC.Burst <= 0 {
		cfg.RPC.Burst = 60
	}
	if cfg.RPC.ReadTimeout.Duration == 0 {
		cfg.RPC.ReadTimeout.Duration = 10 * time.Second
	}
	if cfg.RPC.WriteTimeout.Duration == 0 {
		cfg.RPC.WriteTimeout.Duration = 15 * time.Second
	}
	if cfg.RPC.MaxBodyBytes <= 0 {
		cfg.RPC.MaxBodyBytes = 1 << 20
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}
