package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"tipledger/cmd/internal/passphrase"
	"tipledger/crypto"
	"tipledger/native/tipvault"
	"tipledger/rpc"
)

const defaultTimeout = 30 * time.Second

// identityFlags returns the --<prefix>user and --<prefix>hashed-id pair.
func identityFlags(prefix, who string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  prefix + "user",
			Usage: "Platform identity of the " + who + " such as discord:1234; hashed with SHA-256",
		},
		&cli.StringFlag{
			Name:  prefix + "hashed-id",
			Usage: "Pre-hashed identity of the " + who + " as 64 hex characters",
		},
	}
}

func amountFlag() cli.Flag {
	return &cli.Uint64Flag{
		Name:     "amount",
		Aliases:  []string{"a"},
		Usage:    "Amount in base units",
		Required: true,
	}
}

func addressFlagDef(name, usage string) cli.Flag {
	return &cli.StringFlag{Name: name, Usage: usage, Required: true}
}

// HashIdentity turns a platform identity string into the key a vault is
// registered under.
func HashIdentity(user string) tipvault.HashedIdentity {
	return tipvault.HashedIdentity(sha256.Sum256([]byte(strings.TrimSpace(user))))
}

// identityFromFlags resolves --user or --hashed-id under the given prefix.
func identityFromFlags(c *cli.Context, prefix string) (tipvault.HashedIdentity, error) {
	user := strings.TrimSpace(c.String(prefix + "user"))
	hashed := strings.TrimSpace(c.String(prefix + "hashed-id"))
	switch {
	case user != "" && hashed != "":
		return tipvault.HashedIdentity{}, fmt.Errorf("--%suser and --%shashed-id are mutually exclusive", prefix, prefix)
	case user != "":
		return HashIdentity(user), nil
	case hashed != "":
		return tipvault.ParseHashedIdentity(hashed)
	default:
		return tipvault.HashedIdentity{}, fmt.Errorf("--%suser or --%shashed-id required", prefix, prefix)
	}
}

func addressFlag(c *cli.Context, name string) (crypto.Address, error) {
	raw := strings.TrimSpace(c.String(name))
	if raw == "" {
		return crypto.Address{}, fmt.Errorf("--%s required", name)
	}
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("--%s: %w", name, err)
	}
	return addr, nil
}

func formatAmount(v uint64) string { return strconv.FormatUint(v, 10) }

func requestContext(c *cli.Context) (context.Context, context.CancelFunc) {
	timeout := c.Duration("timeout")
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(c.Context, timeout)
}

func newClient(c *cli.Context) (*rpc.Client, error) {
	return rpc.NewClient(c.String("rpc"))
}

func loadSigner(c *cli.Context) (*crypto.PrivateKey, error) {
	path := strings.TrimSpace(c.String("keystore"))
	if path == "" {
		return nil, fmt.Errorf("--keystore required for %s", c.Command.Name)
	}
	pass, err := passphrase.NewSource(c.String("pass-env"), "signing keystore").Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("load keystore %s: %w", path, err)
	}
	return key, nil
}

func newSignedClient(c *cli.Context) (*rpc.Client, error) {
	key, err := loadSigner(c)
	if err != nil {
		return nil, err
	}
	return rpc.NewClient(c.String("rpc"), rpc.WithSigner(key))
}

// callSigned signs params with the keystore key and prints the result.
func callSigned(c *cli.Context, method string, params interface{}) error {
	client, err := newSignedClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	var result json.RawMessage
	if err := client.CallSigned(ctx, method, params, &result); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return printResult(c, result)
}

func call(c *cli.Context, method string, params interface{}) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	var result json.RawMessage
	if err := client.Call(ctx, method, params, &result); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return printResult(c, result)
}

func printResult(c *cli.Context, value interface{}) error {
	if raw, ok := value.(json.RawMessage); ok {
		var decoded interface{}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		value = decoded
	}
	out := c.App.Writer
	switch strings.ToLower(c.String("output")) {
	case "", "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(value)
	default:
		return fmt.Errorf("unsupported output format %q", c.String("output"))
	}
}
