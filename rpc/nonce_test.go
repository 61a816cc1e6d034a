package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"tipledger/crypto"
	"tipledger/native/tipvault"
)

func TestReplayRejectedAfterServerRestart(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	ctx := context.Background()
	env.initialize(0)
	userAddr := env.user.PubKey().Address()
	env.fund(userAddr, 1_000)

	sender := hashedID("discord:1")
	recipient := hashedID("discord:2")
	user := env.client(env.user)
	require.NoError(t, user.CallSigned(ctx, "tip_register", registerParams{HashedUserID: sender.String()}, nil))
	require.NoError(t, user.CallSigned(ctx, "tip_register", registerParams{HashedUserID: recipient.String()}, nil))
	require.NoError(t, user.CallSigned(ctx, "tip_deposit", depositParams{Vault: tipvault.VaultAddress(sender).String(), Amount: "1000"}, nil))
	require.NoError(t, user.CallSigned(ctx, "tip_approveAllowance", allowanceParams{Allowance: tipvault.AllowanceAddress(sender).String(), Amount: "1000"}, nil))

	params, err := SignParams(env.relayer, "tip_send", sendParams{
		SenderVault:           tipvault.VaultAddress(sender).String(),
		SenderAllowance:       tipvault.AllowanceAddress(sender).String(),
		RecipientVault:        tipvault.VaultAddress(recipient).String(),
		RecipientHashedUserID: recipient.String(),
		Amount:                "100",
	}, 1)
	require.NoError(t, err)
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: "tip_send", Params: []json.RawMessage{params}, ID: 1})
	require.NoError(t, err)

	resp, decoded := env.post(body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, decoded.Error)

	resp, decoded = env.post(body)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, codeDuplicateNonce, decoded.Error.Code)

	// A fresh server over the same ledger still remembers the nonce.
	restarted := NewServer(env.engine, env.bus, ServerConfig{RequestsPerMinute: 600, Burst: 10, Nonces: env.mgr}, nil)
	ts := httptest.NewServer(restarted.Router())
	defer ts.Close()
	replay, err := http.Post(ts.URL, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer replay.Body.Close()
	var replayed RPCResponse
	require.NoError(t, json.NewDecoder(replay.Body).Decode(&replayed))
	require.Equal(t, http.StatusConflict, replay.StatusCode)
	require.NotNil(t, replayed.Error)
	require.Equal(t, codeDuplicateNonce, replayed.Error.Code)

	var vault vaultResult
	require.NoError(t, user.Call(ctx, "tip_getVault", lookupParams{HashedUserID: recipient.String()}, &vault))
	require.Equal(t, "100", vault.Balance)
	require.NoError(t, user.Call(ctx, "tip_getVault", lookupParams{HashedUserID: sender.String()}, &vault))
	require.Equal(t, "900", vault.Balance)
}

type failingNonceStore struct{}

func (failingNonceStore) AdvanceNonce(crypto.Address, uint64) (bool, error) {
	return false, errors.New("disk full")
}

func TestNonceStoreFailureIsServerError(t *testing.T) {
	env := newTestEnv(t, ServerConfig{Nonces: failingNonceStore{}})
	err := env.client(env.authority).CallSigned(context.Background(), "tip_initializeConfig", initializeConfigParams{
		Relayer:   env.relayer.PubKey().Address().String(),
		TokenMint: env.mint.String(),
	}, nil)
	require.Equal(t, codeServerError, rpcCode(t, err))

	_, err = env.engine.Config()
	require.ErrorIs(t, err, tipvault.ErrConfigNotFound)
}

func TestInMemoryNonceTracker(t *testing.T) {
	tracker := newNonceTracker()
	caller := crypto.MustDeriveAddress("rpc-test", []byte("caller"))
	ok, err := tracker.AdvanceNonce(caller, 3)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = tracker.AdvanceNonce(caller, 3)
	require.NoError(t, err)
	require.False(t, ok)
}
