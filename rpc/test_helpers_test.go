package rpc

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"tipledger/core/events"
	"tipledger/core/state"
	"tipledger/crypto"
	"tipledger/native/tipvault"
	"tipledger/storage"
)

type testEnv struct {
	t         *testing.T
	server    *Server
	http      *httptest.Server
	engine    *tipvault.Engine
	mgr       *state.Manager
	bus       *events.Bus
	authority *crypto.PrivateKey
	relayer   *crypto.PrivateKey
	user      *crypto.PrivateKey
	mint      crypto.Address
	nonce     atomic.Uint64
}

func newTestEnv(t *testing.T, cfg ServerConfig) *testEnv {
	t.Helper()
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = 60_000
		cfg.Burst = 1_000
	}
	mgr := state.NewManager(storage.NewMemDB())
	if cfg.Nonces == nil {
		cfg.Nonces = mgr
	}
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	engine := tipvault.NewEngine()
	engine.SetStore(mgr.TipvaultStore())
	engine.SetEmitter(bus)

	srv := NewServer(engine, bus, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	env := &testEnv{
		t:         t,
		server:    srv,
		http:      ts,
		engine:    engine,
		mgr:       mgr,
		bus:       bus,
		authority: mustKey(t),
		relayer:   mustKey(t),
		user:      mustKey(t),
		mint:      crypto.MustDeriveAddress("mint", []byte("test-token")),
	}
	return env
}

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}

func (e *testEnv) client(key *crypto.PrivateKey) *Client {
	e.t.Helper()
	c, err := NewClient(e.http.URL, WithSigner(key), WithNonceSource(func() uint64 { return e.nonce.Add(1) }))
	require.NoError(e.t, err)
	return c
}

func (e *testEnv) initialize(feeBps uint64) {
	e.t.Helper()
	params := map[string]interface{}{
		"relayer":   e.relayer.PubKey().Address().String(),
		"tokenMint": e.mint.String(),
		"feeBps":    feeBps,
	}
	var cfg configResult
	require.NoError(e.t, e.client(e.authority).CallSigned(context.Background(), "tip_initializeConfig", params, &cfg))
	require.Equal(e.t, uint16(feeBps), cfg.FeeBps)
}

func (e *testEnv) fund(owner crypto.Address, amount uint64) {
	e.t.Helper()
	_, err := e.mgr.ApplyBootstrapBalances(e.mint, []state.GenesisBalance{{Owner: owner, Amount: amount}})
	require.NoError(e.t, err)
}

func hashedID(user string) tipvault.HashedIdentity {
	return tipvault.HashedIdentity(sha256.Sum256([]byte(user)))
}

func (e *testEnv) post(body []byte) (*http.Response, RPCResponse) {
	e.t.Helper()
	resp, err := http.Post(e.http.URL, "application/json", bytes.NewReader(body))
	require.NoError(e.t, err)
	defer resp.Body.Close()
	var decoded RPCResponse
	require.NoError(e.t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func rpcCode(t *testing.T, err error) int {
	t.Helper()
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr), "expected rpc error, got %v", err)
	return rpcErr.Code
}
