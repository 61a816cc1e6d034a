package state

import "tipledger/crypto"

var rpcNoncePrefix = []byte("rpc/nonce/")

// RPCNonceKey returns the storage key of caller's highest accepted nonce.
func RPCNonceKey(caller crypto.Address) []byte { return recordKey(rpcNoncePrefix, caller) }

// AdvanceNonce commits nonce as caller's highest accepted value when it
// exceeds the stored one. It reports whether the nonce was accepted.
func (m *Manager) AdvanceNonce(caller crypto.Address, nonce uint64) (bool, error) {
	accepted := false
	err := m.Update(func(tx *Tx) error {
		var last uint64
		if _, err := tx.KVGet(RPCNonceKey(caller), &last); err != nil {
			return err
		}
		if nonce <= last {
			return nil
		}
		accepted = true
		return tx.KVPut(RPCNonceKey(caller), nonce)
	})
	if err != nil {
		return false, err
	}
	return accepted, nil
}

// LastNonce returns caller's highest accepted nonce, zero when none.
func (m *Manager) LastNonce(caller crypto.Address) (uint64, error) {
	var last uint64
	err := m.View(func(tx *Tx) error {
		_, err := tx.KVGet(RPCNonceKey(caller), &last)
		return err
	})
	return last, err
}
