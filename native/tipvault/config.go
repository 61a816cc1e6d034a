package tipvault

import (
	"tipledger/core/events"
	"tipledger/crypto"
)

// InitializeConfigArgs carries the bootstrap parameters for the singleton.
type InitializeConfigArgs struct {
	Relayer   crypto.Address
	TokenMint crypto.Address
	FeeBps    uint16
}

// ValidateFeeBps narrows a wide fee rate into the accepted range.
func ValidateFeeBps(value uint64) (uint16, error) {
	if value > uint64(MaxFeeBps) {
		return 0, ErrInvalidFeeRate
	}
	return uint16(value), nil
}

// InitializeConfig creates the config singleton. The caller becomes the
// upgrade authority.
func (e *Engine) InitializeConfig(caller crypto.Address, args InitializeConfigArgs) (*Config, error) {
	if args.FeeBps > MaxFeeBps {
		return nil, ErrInvalidFeeRate
	}
	if args.Relayer.IsZero() {
		return nil, ErrInvalidRelayer
	}
	if args.TokenMint.IsZero() {
		return nil, ErrInvalidTokenMint
	}
	cfg := &Config{
		UpgradeAuthority: caller,
		Relayer:          args.Relayer,
		TokenMint:        args.TokenMint,
		FeeBps:           args.FeeBps,
	}
	err := e.update(func(st State) error {
		_, ok, err := st.TipConfigGet(ConfigAddress())
		if err != nil {
			return err
		}
		if ok {
			return ErrAlreadyInitialized
		}
		return st.TipConfigPut(ConfigAddress(), cfg)
	})
	if err != nil {
		return nil, err
	}
	e.emit(configEvent(events.ConfigInitialized, cfg))
	return cfg.Clone(), nil
}

// SetRelayer replaces the relayer. Only the upgrade authority may call it.
func (e *Engine) SetRelayer(caller, relayer crypto.Address) error {
	if relayer.IsZero() {
		return ErrInvalidRelayer
	}
	return e.mutateConfig(caller, events.ConfigRelayerChanged, func(cfg *Config) {
		cfg.Relayer = relayer
	})
}

// SetFeeRate replaces the fee rate applied to subsequent tips.
func (e *Engine) SetFeeRate(caller crypto.Address, feeBps uint16) error {
	if feeBps > MaxFeeBps {
		return ErrInvalidFeeRate
	}
	return e.mutateConfig(caller, events.ConfigFeeRateChanged, func(cfg *Config) {
		cfg.FeeBps = feeBps
	})
}

func (e *Engine) mutateConfig(caller crypto.Address, kind string, apply func(*Config)) error {
	var updated *Config
	err := e.update(func(st State) error {
		cfg, err := loadConfig(st)
		if err != nil {
			return err
		}
		if cfg.UpgradeAuthority != caller {
			return ErrUnauthorized
		}
		apply(cfg)
		updated = cfg
		return st.TipConfigPut(ConfigAddress(), cfg)
	})
	if err != nil {
		return err
	}
	e.emit(configEvent(kind, updated))
	return nil
}

// Config returns the current singleton.
func (e *Engine) Config() (*Config, error) {
	var out *Config
	err := e.view(func(st State) error {
		cfg, err := loadConfig(st)
		if err != nil {
			return err
		}
		out = cfg.Clone()
		return nil
	})
	return out, err
}

func configEvent(kind string, cfg *Config) events.ConfigUpdated {
	return events.ConfigUpdated{
		Kind:             kind,
		UpgradeAuthority: cfg.UpgradeAuthority,
		Relayer:          cfg.Relayer,
		TokenMint:        cfg.TokenMint,
		FeeBps:           cfg.FeeBps,
	}
}
