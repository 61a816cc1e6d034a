package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"tipledger/crypto"
)

// Client calls a tipledger JSON-RPC endpoint, signing mutating calls with
// the configured key.
type Client struct {
	endpoint   string
	httpClient *http.Client
	key        *crypto.PrivateKey
	nonceFn    func() uint64
	nextID     atomic.Int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for RPC calls.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithSigner sets the key used by CallSigned.
func WithSigner(key *crypto.PrivateKey) ClientOption {
	return func(c *Client) {
		c.key = key
	}
}

// WithNonceSource overrides the nonce generator. The default uses the wall
// clock in nanoseconds, which stays increasing across process restarts.
func WithNonceSource(fn func() uint64) ClientOption {
	return func(c *Client) {
		c.nonceFn = fn
	}
}

// NewClient binds a client to endpoint.
func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("client: endpoint required")
	}
	c := &Client{
		endpoint:   trimmed,
		httpClient: http.DefaultClient,
		nonceFn:    func() uint64 { return uint64(time.Now().UnixNano()) },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c, nil
}

// Signer returns the address of the signing key, if any.
func (c *Client) Signer() (crypto.Address, bool) {
	if c == nil || c.key == nil || c.key.PrivateKey == nil {
		return crypto.Address{}, false
	}
	return c.key.PubKey().Address(), true
}

// Call invokes an unsigned method. params may be nil.
func (c *Client) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	var raw []json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("client: encode params: %w", err)
		}
		raw = []json.RawMessage{encoded}
	}
	return c.do(ctx, method, raw, out)
}

// CallSigned stamps caller and nonce into params, signs them and invokes
// method.
func (c *Client) CallSigned(ctx context.Context, method string, params interface{}, out interface{}) error {
	if c.key == nil {
		return fmt.Errorf("client: signing key required for %s", method)
	}
	signed, err := SignParams(c.key, method, params, c.nonceFn())
	if err != nil {
		return err
	}
	return c.do(ctx, method, []json.RawMessage{signed}, out)
}

func (c *Client) do(ctx context.Context, method string, params []json.RawMessage, out interface{}) error {
	if params == nil {
		params = []json.RawMessage{}
	}
	payload := RPCRequest{
		JSONRPC: jsonRPCVersion,
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("client: encode rpc payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: rpc call failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBodyBytes))
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}
	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("client: rpc error status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out == nil || len(decoded.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("client: decode result: %w", err)
	}
	return nil
}
