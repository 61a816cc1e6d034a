package tipvault

import (
	"time"

	"tipledger/core/events"
	"tipledger/crypto"
	"tipledger/native/token"
)

// State is the transactional view an operation runs against. Records are
// addressed by their derived address.
type State interface {
	token.Ledger
	TipConfigGet(addr crypto.Address) (*Config, bool, error)
	TipConfigPut(addr crypto.Address, cfg *Config) error
	TipVaultGet(addr crypto.Address) (*Vault, bool, error)
	TipVaultPut(addr crypto.Address, vault *Vault) error
	TipAllowanceGet(addr crypto.Address) (*Allowance, bool, error)
	TipAllowancePut(addr crypto.Address, allowance *Allowance) error
	TipFeeVaultGet(addr crypto.Address) (*FeeVault, bool, error)
	TipFeeVaultPut(addr crypto.Address, vault *FeeVault) error
	TipReceiptGet(addr crypto.Address) (*TipReceipt, bool, error)
	TipReceiptPut(addr crypto.Address, receipt *TipReceipt) error
}

// Store executes operations atomically. Update commits every write made by
// fn only when fn returns nil; concurrent Updates are totally ordered.
type Store interface {
	Update(fn func(State) error) error
	View(fn func(State) error) error
}

// Engine wires the vault business logic with the atomic store and event
// emission. It holds no locks of its own.
type Engine struct {
	store       Store
	emitter     events.Emitter
	nowFn       func() int64
	replayGuard bool
}

// NewEngine constructs an engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}
}

// SetStore configures the atomic store used by the engine.
func (e *Engine) SetStore(store Store) { e.store = store }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetTipReplayGuard toggles persistence of tip receipts. When enabled a tip
// identifier can only be executed once.
func (e *Engine) SetTipReplayGuard(enabled bool) { e.replayGuard = enabled }

// TipReplayGuard reports whether tip identifiers are deduplicated.
func (e *Engine) TipReplayGuard() bool { return e.replayGuard }

func (e *Engine) update(fn func(State) error) error {
	if e == nil || e.store == nil {
		return ErrNilState
	}
	return e.store.Update(fn)
}

func (e *Engine) view(fn func(State) error) error {
	if e == nil || e.store == nil {
		return ErrNilState
	}
	return e.store.View(fn)
}

// emit is only called after the owning Update committed.
func (e *Engine) emit(evt events.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func loadConfig(st State) (*Config, error) {
	cfg, ok, err := st.TipConfigGet(ConfigAddress())
	if err != nil {
		return nil, err
	}
	if !ok || cfg == nil {
		return nil, ErrConfigNotFound
	}
	return cfg, nil
}

// loadVault fetches the vault at addr and checks it is stored at the address
// derived from its own identity.
func loadVault(st State, addr crypto.Address) (*Vault, error) {
	vault, ok, err := st.TipVaultGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok || vault == nil {
		return nil, ErrVaultNotFound
	}
	if vault.Address() != addr {
		return nil, ErrIdentityMismatch
	}
	return vault, nil
}

func loadAllowance(st State, addr crypto.Address) (*Allowance, error) {
	allowance, ok, err := st.TipAllowanceGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok || allowance == nil {
		return nil, ErrAllowanceNotFound
	}
	if allowance.Address() != addr {
		return nil, ErrIdentityMismatch
	}
	return allowance, nil
}
