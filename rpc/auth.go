package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"tipledger/crypto"
)

const signatureField = "signature"

// signedEnvelope carries the authentication fields every mutating call
// embeds in its parameter object.
type signedEnvelope struct {
	Caller    string `json:"caller"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

// SigningDigest returns keccak256(method || 0x00 || payload) where payload is
// the parameter object re-encoded with sorted keys and without the signature.
func SigningDigest(method string, params json.RawMessage) ([]byte, error) {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(params, &fields); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	payload, err := canonicalPayload(fields)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256([]byte(method), []byte{0}, payload), nil
}

func canonicalPayload(fields map[string]json.RawMessage) ([]byte, error) {
	trimmed := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		if k == signatureField {
			continue
		}
		trimmed[k] = v
	}
	return json.Marshal(trimmed)
}

// SignParams stamps caller and nonce into params, signs the canonical
// payload for method and returns the encoded parameter object.
func SignParams(key *crypto.PrivateKey, method string, params interface{}, nonce uint64) (json.RawMessage, error) {
	if key == nil || key.PrivateKey == nil {
		return nil, fmt.Errorf("rpc: signing key required")
	}
	fields := make(map[string]json.RawMessage)
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("rpc: encode params: %w", err)
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("rpc: params must be an object: %w", err)
		}
	}
	caller, err := json.Marshal(key.PubKey().Address().String())
	if err != nil {
		return nil, err
	}
	fields["caller"] = caller
	fields["nonce"] = json.RawMessage(fmt.Sprintf("%d", nonce))
	payload, err := canonicalPayload(fields)
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(crypto.Keccak256([]byte(method), []byte{0}, payload))
	if err != nil {
		return nil, fmt.Errorf("rpc: sign params: %w", err)
	}
	encodedSig, err := json.Marshal("0x" + hex.EncodeToString(sig))
	if err != nil {
		return nil, err
	}
	fields[signatureField] = encodedSig
	return json.Marshal(fields)
}

// NonceStore records the highest accepted nonce per caller. AdvanceNonce
// reports false when nonce does not exceed the stored value.
type NonceStore interface {
	AdvanceNonce(caller crypto.Address, nonce uint64) (bool, error)
}

// nonceTracker enforces strictly increasing nonces per caller in memory.
type nonceTracker struct {
	mu   sync.Mutex
	last map[crypto.Address]uint64
}

func newNonceTracker() *nonceTracker {
	return &nonceTracker{last: make(map[crypto.Address]uint64)}
}

func (t *nonceTracker) AdvanceNonce(caller crypto.Address, nonce uint64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if nonce <= t.last[caller] {
		return false, nil
	}
	t.last[caller] = nonce
	return true, nil
}

// authenticate verifies the signed envelope of raw and returns the caller.
func (s *Server) authenticate(method string, raw json.RawMessage) (crypto.Address, int, *RPCError) {
	var env signedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return crypto.Address{}, http.StatusBadRequest, &RPCError{Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	if strings.TrimSpace(env.Caller) == "" || strings.TrimSpace(env.Signature) == "" {
		return crypto.Address{}, http.StatusUnauthorized, &RPCError{Code: codeUnauthorized, Message: "caller and signature required"}
	}
	caller, err := crypto.DecodeAddress(env.Caller)
	if err != nil {
		return crypto.Address{}, http.StatusBadRequest, &RPCError{Code: codeInvalidParams, Message: "invalid caller", Data: err.Error()}
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(env.Signature), "0x"))
	if err != nil {
		return crypto.Address{}, http.StatusUnauthorized, &RPCError{Code: codeUnauthorized, Message: "malformed signature", Data: err.Error()}
	}
	digest, err := SigningDigest(method, raw)
	if err != nil {
		return crypto.Address{}, http.StatusBadRequest, &RPCError{Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	signer, err := crypto.RecoverAddress(digest, sig)
	if err != nil {
		return crypto.Address{}, http.StatusUnauthorized, &RPCError{Code: codeUnauthorized, Message: "signature recovery failed", Data: err.Error()}
	}
	if signer != caller {
		return crypto.Address{}, http.StatusUnauthorized, &RPCError{Code: codeUnauthorized, Message: "signature does not match caller"}
	}
	fresh, err := s.nonces.AdvanceNonce(caller, env.Nonce)
	if err != nil {
		s.logger.Error("nonce store failed", slog.String("caller", caller.String()), slog.Any("error", err))
		return crypto.Address{}, http.StatusInternalServerError, &RPCError{Code: codeServerError, Message: "nonce store unavailable"}
	}
	if !fresh {
		return crypto.Address{}, http.StatusConflict, &RPCError{Code: codeDuplicateNonce, Message: "nonce already used", Data: env.Nonce}
	}
	return caller, http.StatusOK, nil
}
