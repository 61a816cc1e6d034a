package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"tipledger/core/events"
	"tipledger/core/types"
	"tipledger/native/tipvault"
)

func TestTipFlowOverRPC(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	ctx := context.Background()
	env.initialize(50)
	userAddr := env.user.PubKey().Address()
	env.fund(userAddr, 1_000_000)

	user := env.client(env.user)
	sender := hashedID("discord:1001")
	recipient := hashedID("discord:2002")

	var reg registerResult
	require.NoError(t, user.CallSigned(ctx, "tip_register", registerParams{HashedUserID: sender.String()}, &reg))
	require.Equal(t, tipvault.VaultAddress(sender).String(), reg.Vault.Address)
	require.Equal(t, userAddr.String(), reg.Allowance.Authority)
	require.NoError(t, user.CallSigned(ctx, "tip_register", registerParams{HashedUserID: recipient.String()}, nil))

	addrs := tipvault.DeriveAddresses(sender)
	var vault vaultResult
	require.NoError(t, user.CallSigned(ctx, "tip_deposit", depositParams{Vault: addrs.Vault.String(), Amount: "400000"}, &vault))
	require.Equal(t, "400000", vault.Balance)

	var allowance allowanceResult
	require.NoError(t, user.CallSigned(ctx, "tip_approveAllowance", allowanceParams{Allowance: addrs.Allowance.String(), Amount: "600000"}, &allowance))
	require.Equal(t, "600000", allowance.Cap)

	memo := "gg"
	var sent sendResult
	require.NoError(t, env.client(env.relayer).CallSigned(ctx, "tip_send", sendParams{
		SenderVault:           addrs.Vault.String(),
		SenderAllowance:       addrs.Allowance.String(),
		RecipientVault:        tipvault.VaultAddress(recipient).String(),
		RecipientHashedUserID: recipient.String(),
		Amount:                "150000",
		TipID:                 "0x01",
		Memo:                  &memo,
	}, &sent))
	require.Equal(t, "750", sent.FeeAmount)
	require.Equal(t, "150750", sent.TotalAmount)
	require.Equal(t, "599250", sent.AllowanceRemaining)
	require.Equal(t, tipvault.FeeVaultAddress().String(), sent.FeeVault)

	require.NoError(t, user.Call(ctx, "tip_getVault", lookupParams{HashedUserID: sender.String()}, &vault))
	require.Equal(t, "249250", vault.Balance)
	require.NoError(t, user.Call(ctx, "tip_getVault", lookupParams{Address: tipvault.VaultAddress(recipient).String()}, &vault))
	require.Equal(t, "150000", vault.Balance)

	var fee feeVaultResult
	require.NoError(t, user.Call(ctx, "tip_getFeeVault", nil, &fee))
	require.Equal(t, "750", fee.Balance)

	var bal balanceResult
	require.NoError(t, user.Call(ctx, "tip_getBalance", lookupParams{Address: userAddr.String()}, &bal))
	require.Equal(t, "600000", bal.Balance)

	dest := env.authority.PubKey().Address()
	require.NoError(t, env.client(env.authority).CallSigned(ctx, "tip_withdrawFee", withdrawFeeParams{Destination: dest.String(), Amount: "750"}, nil))
	require.NoError(t, user.Call(ctx, "tip_getBalance", lookupParams{Address: dest.String()}, &bal))
	require.Equal(t, "750", bal.Balance)

	require.NoError(t, user.CallSigned(ctx, "tip_withdraw", withdrawParams{Vault: addrs.Vault.String(), Destination: userAddr.String(), Amount: "249250"}, &vault))
	require.Equal(t, "0", vault.Balance)

	require.NoError(t, user.CallSigned(ctx, "tip_revokeAllowance", allowanceParams{Allowance: addrs.Allowance.String()}, &allowance))
	require.Equal(t, "0", allowance.Remaining)
}

func TestConfigMethods(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	ctx := context.Background()
	env.initialize(50)
	admin := env.client(env.authority)

	var cfg configResult
	require.NoError(t, admin.CallSigned(ctx, "tip_setFeeRate", setFeeRateParams{FeeBps: 125}, &cfg))
	require.Equal(t, uint16(125), cfg.FeeBps)

	next := mustKey(t).PubKey().Address()
	require.NoError(t, admin.CallSigned(ctx, "tip_setRelayer", setRelayerParams{Relayer: next.String()}, &cfg))
	require.Equal(t, next.String(), cfg.Relayer)

	require.NoError(t, admin.Call(ctx, "tip_getConfig", nil, &cfg))
	require.Equal(t, env.authority.PubKey().Address().String(), cfg.UpgradeAuthority)
	require.Equal(t, tipvault.ConfigAddress().String(), cfg.Address)

	var addrs addressesResult
	id := hashedID("discord:42")
	require.NoError(t, admin.Call(ctx, "tip_deriveAddresses", lookupParams{HashedUserID: id.String()}, &addrs))
	require.Equal(t, tipvault.AllowanceAddress(id).String(), addrs.Allowance)
	require.Equal(t, tipvault.FeeVaultAddress().String(), addrs.FeeVault)
}

func TestEngineErrorsMapToCodes(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	ctx := context.Background()

	err := env.client(env.user).Call(ctx, "tip_getConfig", nil, nil)
	require.Equal(t, codeTipNotFound, rpcCode(t, err))

	env.initialize(50)

	err = env.client(env.user).CallSigned(ctx, "tip_setFeeRate", setFeeRateParams{FeeBps: 10}, nil)
	require.Equal(t, codeTipForbidden, rpcCode(t, err))

	err = env.client(env.authority).CallSigned(ctx, "tip_setFeeRate", setFeeRateParams{FeeBps: 10_001}, nil)
	require.Equal(t, codeTipInvalid, rpcCode(t, err))

	err = env.client(env.authority).CallSigned(ctx, "tip_initializeConfig", initializeConfigParams{
		Relayer:   env.relayer.PubKey().Address().String(),
		TokenMint: env.mint.String(),
	}, nil)
	require.Equal(t, codeTipConflict, rpcCode(t, err))

	err = env.client(env.user).Call(ctx, "tip_getVault", lookupParams{HashedUserID: hashedID("nobody").String()}, nil)
	require.Equal(t, codeTipNotFound, rpcCode(t, err))

	id := hashedID("discord:7")
	require.NoError(t, env.client(env.user).CallSigned(ctx, "tip_register", registerParams{HashedUserID: id.String()}, nil))
	err = env.client(env.user).CallSigned(ctx, "tip_deposit", depositParams{Vault: tipvault.VaultAddress(id).String(), Amount: "5"}, nil)
	require.Equal(t, codeTipInsufficient, rpcCode(t, err))

	err = env.client(env.user).CallSigned(ctx, "tip_deposit", depositParams{Vault: tipvault.VaultAddress(id).String(), Amount: "-5"}, nil)
	require.Equal(t, codeInvalidParams, rpcCode(t, err))
}

func TestSignedCallRejectsForgedCaller(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	params := initializeConfigParams{
		Relayer:   env.relayer.PubKey().Address().String(),
		TokenMint: env.mint.String(),
		FeeBps:    50,
	}
	signed, err := SignParams(env.user, "tip_initializeConfig", params, 1)
	require.NoError(t, err)

	fields := map[string]json.RawMessage{}
	require.NoError(t, json.Unmarshal(signed, &fields))
	forged, err := json.Marshal(env.authority.PubKey().Address().String())
	require.NoError(t, err)
	fields["caller"] = forged
	tampered, err := json.Marshal(fields)
	require.NoError(t, err)

	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: "tip_initializeConfig", Params: []json.RawMessage{tampered}, ID: 1})
	require.NoError(t, err)
	resp, decoded := env.post(body)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeUnauthorized, decoded.Error.Code)

	_, err = env.engine.Config()
	require.ErrorIs(t, err, tipvault.ErrConfigNotFound)
}

func TestSignedCallRequiresSignature(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	err := env.client(env.user).Call(context.Background(), "tip_register", map[string]string{
		"caller":       env.user.PubKey().Address().String(),
		"hashedUserId": hashedID("x").String(),
	}, nil)
	require.Equal(t, codeUnauthorized, rpcCode(t, err))
}

func TestSignedCallRejectsReplayedNonce(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	c, err := NewClient(env.http.URL, WithSigner(env.authority), WithNonceSource(func() uint64 { return 7 }))
	require.NoError(t, err)
	params := initializeConfigParams{
		Relayer:   env.relayer.PubKey().Address().String(),
		TokenMint: env.mint.String(),
		FeeBps:    50,
	}
	require.NoError(t, c.CallSigned(context.Background(), "tip_initializeConfig", params, nil))
	err = c.CallSigned(context.Background(), "tip_setFeeRate", setFeeRateParams{FeeBps: 1}, nil)
	require.Equal(t, codeDuplicateNonce, rpcCode(t, err))

	cfg, err := env.engine.Config()
	require.NoError(t, err)
	require.Equal(t, uint16(50), cfg.FeeBps)
}

func TestSigningDigestIgnoresKeyOrderAndSignature(t *testing.T) {
	a, err := SigningDigest("tip_send", json.RawMessage(`{"amount":"1","caller":"x","nonce":3}`))
	require.NoError(t, err)
	b, err := SigningDigest("tip_send", json.RawMessage(`{ "nonce": 3, "caller": "x", "amount": "1", "signature": "0xdead" }`))
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := SigningDigest("tip_withdraw", json.RawMessage(`{"amount":"1","caller":"x","nonce":3}`))
	require.NoError(t, err)
	require.NotEqual(t, a, c)

	_, err = SigningDigest("tip_send", json.RawMessage(`[1,2]`))
	require.Error(t, err)
}

func TestHandleRejectsMalformedRequests(t *testing.T) {
	env := newTestEnv(t, ServerConfig{MaxBodyBytes: 256})
	cases := []struct {
		name   string
		body   string
		status int
		code   int
	}{
		{"empty", "   ", http.StatusBadRequest, codeInvalidRequest},
		{"bad json", "{", http.StatusBadRequest, codeParseError},
		{"version", `{"jsonrpc":"1.0","method":"tip_getConfig","id":1}`, http.StatusBadRequest, codeInvalidRequest},
		{"no method", `{"jsonrpc":"2.0","id":1}`, http.StatusBadRequest, codeInvalidRequest},
		{"unknown", `{"jsonrpc":"2.0","method":"tip_nope","id":1}`, http.StatusNotFound, codeMethodNotFound},
		{"too large", `{"jsonrpc":"2.0","method":"` + strings.Repeat("a", 512) + `"}`, http.StatusRequestEntityTooLarge, codeInvalidRequest},
		{"two params", `{"jsonrpc":"2.0","method":"tip_getVault","params":[{},{}],"id":1}`, http.StatusBadRequest, codeInvalidParams},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, decoded := env.post([]byte(tc.body))
			require.Equal(t, tc.status, resp.StatusCode)
			require.NotNil(t, decoded.Error)
			require.Equal(t, tc.code, decoded.Error.Code)
		})
	}
}

func TestRateLimitRejectsBurst(t *testing.T) {
	env := newTestEnv(t, ServerConfig{RequestsPerMinute: 1, Burst: 2})
	body := []byte(`{"jsonrpc":"2.0","method":"tip_deriveAddresses","params":[{"hashedUserId":"` + hashedID("a").String() + `"}],"id":1}`)
	for i := 0; i < 2; i++ {
		resp, decoded := env.post(body)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Nil(t, decoded.Error)
	}
	resp, decoded := env.post(body)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, codeRateLimited, decoded.Error.Code)
}

func TestRateLimiterRefillsPerClient(t *testing.T) {
	limiter := NewRateLimiter(60, 1)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }

	require.True(t, limiter.Allow("10.0.0.1"))
	require.False(t, limiter.Allow("10.0.0.1"))
	require.True(t, limiter.Allow("10.0.0.2"))

	now = now.Add(time.Second)
	require.True(t, limiter.Allow("10.0.0.1"))

	now = now.Add(visitorIdleTTL + time.Second)
	require.True(t, limiter.Allow("10.0.0.3"))
	limiter.mu.Lock()
	require.Len(t, limiter.visitors, 1)
	limiter.mu.Unlock()
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	resp, err := http.Get(env.http.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(requestIDHeader))

	resp, err = http.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventStreamFiltersByType(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/events?types=" + events.TypeConfigUpdated
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")
	require.Eventually(t, func() bool { return env.bus.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	env.initialize(50)
	userAddr := env.user.PubKey().Address()
	env.fund(userAddr, 10)
	id := hashedID("discord:9")
	require.NoError(t, env.client(env.user).CallSigned(ctx, "tip_register", registerParams{HashedUserID: id.String()}, nil))
	require.NoError(t, env.client(env.user).CallSigned(ctx, "tip_deposit", depositParams{Vault: tipvault.VaultAddress(id).String(), Amount: "10"}, nil))
	require.NoError(t, env.client(env.authority).CallSigned(ctx, "tip_setFeeRate", setFeeRateParams{FeeBps: 75}, nil))

	for _, kind := range []string{events.ConfigInitialized, events.ConfigFeeRateChanged} {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var evt types.Event
		require.NoError(t, json.Unmarshal(data, &evt))
		require.Equal(t, events.TypeConfigUpdated, evt.Type)
		require.Equal(t, kind, evt.Attributes["kind"])
		require.NotEmpty(t, evt.ID)
	}
}

func TestEventStreamUnavailableWithoutBus(t *testing.T) {
	srv := NewServer(tipvault.NewEngine(), nil, ServerConfig{RequestsPerMinute: 600, Burst: 10}, nil)
	rec := httptest.NewRecorder()
	srv.handleEventsWS(rec, httptest.NewRequest(http.MethodGet, "/ws/events", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWithdrawToSourceIsInvalid(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	ctx := context.Background()
	env.initialize(0)
	userAddr := env.user.PubKey().Address()
	env.fund(userAddr, 100)
	id := hashedID("discord:5")
	vault := tipvault.VaultAddress(id).String()
	user := env.client(env.user)
	require.NoError(t, user.CallSigned(ctx, "tip_register", registerParams{HashedUserID: id.String()}, nil))
	require.NoError(t, user.CallSigned(ctx, "tip_deposit", depositParams{Vault: vault, Amount: "100"}, nil))

	err := user.CallSigned(ctx, "tip_withdraw", withdrawParams{Vault: vault, Destination: vault, Amount: "10"}, nil)
	require.Equal(t, codeTipInvalid, rpcCode(t, err))

	err = env.client(env.authority).CallSigned(ctx, "tip_withdrawFee", withdrawFeeParams{
		Destination: tipvault.FeeVaultAddress().String(),
		Amount:      "1",
	}, nil)
	require.Equal(t, codeTipInvalid, rpcCode(t, err))

	var res vaultResult
	require.NoError(t, user.Call(ctx, "tip_getVault", lookupParams{Address: vault}, &res))
	require.Equal(t, "100", res.Balance)
}
