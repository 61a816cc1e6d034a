package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"tipledger/storage"
)

var errReadOnly = errors.New("state: write attempted inside a read-only view")

// Manager is the atomic execution substrate for ledger operations. Writers are
// serialized; each Update buffers its writes in a Tx overlay and commits them
// through a single storage batch, or discards them all on error.
type Manager struct {
	db storage.Database
	mu sync.RWMutex
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Database exposes the backing store.
func (m *Manager) Database() storage.Database { return m.db }

// Update runs fn with exclusive write access. Writes become visible only if fn
// returns nil and the batch commits.
func (m *Manager) Update(fn func(*Tx) error) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: database not configured")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := newTx(m.db, false)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// View runs fn against committed state. Writes inside fn fail.
func (m *Manager) View(fn func(*Tx) error) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: database not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(newTx(m.db, true))
}

type pending struct {
	value   []byte
	deleted bool
}

// Tx is a write-buffering overlay over the committed store.
type Tx struct {
	db       storage.Database
	readOnly bool
	writes   map[string]pending
	order    []string
}

func newTx(db storage.Database, readOnly bool) *Tx {
	return &Tx{db: db, readOnly: readOnly, writes: make(map[string]pending)}
}

func (tx *Tx) get(key []byte) ([]byte, bool, error) {
	if p, ok := tx.writes[string(key)]; ok {
		if p.deleted {
			return nil, false, nil
		}
		return append([]byte(nil), p.value...), true, nil
	}
	value, err := tx.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (tx *Tx) put(key, value []byte) error {
	if tx.readOnly {
		return errReadOnly
	}
	k := string(key)
	if _, ok := tx.writes[k]; !ok {
		tx.order = append(tx.order, k)
	}
	tx.writes[k] = pending{value: append([]byte(nil), value...)}
	return nil
}

func (tx *Tx) delete(key []byte) error {
	if tx.readOnly {
		return errReadOnly
	}
	k := string(key)
	if _, ok := tx.writes[k]; !ok {
		tx.order = append(tx.order, k)
	}
	tx.writes[k] = pending{deleted: true}
	return nil
}

// Pending reports how many keys the transaction will write on commit.
func (tx *Tx) Pending() int { return len(tx.writes) }

func (tx *Tx) commit() error {
	if len(tx.writes) == 0 {
		return nil
	}
	batch := tx.db.NewBatch()
	for _, k := range tx.order {
		p := tx.writes[k]
		if p.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), p.value)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

// KVPut stores value under key using RLP encoding.
func (tx *Tx) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return tx.put(key, encoded)
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (tx *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := tx.get(key)
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes key.
func (tx *Tx) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return tx.delete(key)
}
