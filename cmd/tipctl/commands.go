package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"tipledger/cmd/internal/passphrase"
	"tipledger/crypto"
	"tipledger/native/tipvault"
)

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate a secp256k1 key and write it to an encrypted keystore",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "out",
				Usage:    "Keystore path to create",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			pass, err := passphrase.NewSource(c.String("pass-env"), "new keystore").Get()
			if err != nil {
				return err
			}
			key, err := crypto.GeneratePrivateKey()
			if err != nil {
				return err
			}
			path := c.String("out")
			if err := crypto.SaveToKeystore(path, key, pass); err != nil {
				return fmt.Errorf("write keystore: %w", err)
			}
			return printResult(c, map[string]string{
				"address":  key.PubKey().Address().String(),
				"keystore": path,
			})
		},
	}
}

func deriveCommand() *cli.Command {
	return &cli.Command{
		Name:  "derive",
		Usage: "Compute the config, vault, allowance and fee vault addresses for an identity",
		Flags: identityFlags("", "user"),
		Action: func(c *cli.Context) error {
			id, err := identityFromFlags(c, "")
			if err != nil {
				return err
			}
			addrs := tipvault.DeriveAddresses(id)
			return printResult(c, map[string]string{
				"hashedUserId": id.String(),
				"config":       addrs.Config.String(),
				"vault":        addrs.Vault.String(),
				"allowance":    addrs.Allowance.String(),
				"feeVault":     addrs.FeeVault.String(),
			})
		},
	}
}

func initConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "init-config",
		Usage: "Create the config singleton; the signer becomes upgrade authority",
		Flags: []cli.Flag{
			addressFlagDef("relayer", "Relayer address allowed to submit tips"),
			addressFlagDef("mint", "Token mint held by every vault"),
			&cli.Uint64Flag{Name: "fee-bps", Usage: "Protocol fee in basis points"},
		},
		Action: func(c *cli.Context) error {
			relayer, err := addressFlag(c, "relayer")
			if err != nil {
				return err
			}
			mint, err := addressFlag(c, "mint")
			if err != nil {
				return err
			}
			return callSigned(c, "tip_initializeConfig", map[string]interface{}{
				"relayer":   relayer.String(),
				"tokenMint": mint.String(),
				"feeBps":    c.Uint64("fee-bps"),
			})
		},
	}
}

func setFeeRateCommand() *cli.Command {
	return &cli.Command{
		Name:  "set-fee-rate",
		Usage: "Update the protocol fee (authority only)",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "fee-bps", Usage: "Protocol fee in basis points", Required: true},
		},
		Action: func(c *cli.Context) error {
			return callSigned(c, "tip_setFeeRate", map[string]interface{}{"feeBps": c.Uint64("fee-bps")})
		},
	}
}

func setRelayerCommand() *cli.Command {
	return &cli.Command{
		Name:  "set-relayer",
		Usage: "Rotate the relayer (authority only)",
		Flags: []cli.Flag{addressFlagDef("relayer", "New relayer address")},
		Action: func(c *cli.Context) error {
			relayer, err := addressFlag(c, "relayer")
			if err != nil {
				return err
			}
			return callSigned(c, "tip_setRelayer", map[string]interface{}{"relayer": relayer.String()})
		},
	}
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Create or re-claim the vault and allowance for an identity",
		Flags: identityFlags("", "user"),
		Action: func(c *cli.Context) error {
			id, err := identityFromFlags(c, "")
			if err != nil {
				return err
			}
			return callSigned(c, "tip_register", map[string]interface{}{"hashedUserId": id.String()})
		},
	}
}

func depositCommand() *cli.Command {
	return &cli.Command{
		Name:  "deposit",
		Usage: "Move tokens from the signer's balance into its vault",
		Flags: append(identityFlags("", "vault owner"), amountFlag()),
		Action: func(c *cli.Context) error {
			id, err := identityFromFlags(c, "")
			if err != nil {
				return err
			}
			return callSigned(c, "tip_deposit", map[string]interface{}{
				"vault":  tipvault.VaultAddress(id).String(),
				"amount": formatAmount(c.Uint64("amount")),
			})
		},
	}
}

func approveCommand() *cli.Command {
	return &cli.Command{
		Name:  "approve",
		Usage: "Reset the tipping allowance cap for an identity",
		Flags: append(identityFlags("", "allowance owner"), amountFlag()),
		Action: func(c *cli.Context) error {
			id, err := identityFromFlags(c, "")
			if err != nil {
				return err
			}
			return callSigned(c, "tip_approveAllowance", map[string]interface{}{
				"allowance": tipvault.AllowanceAddress(id).String(),
				"amount":    formatAmount(c.Uint64("amount")),
			})
		},
	}
}

func revokeCommand() *cli.Command {
	return &cli.Command{
		Name:  "revoke",
		Usage: "Zero the tipping allowance for an identity",
		Flags: identityFlags("", "allowance owner"),
		Action: func(c *cli.Context) error {
			id, err := identityFromFlags(c, "")
			if err != nil {
				return err
			}
			return callSigned(c, "tip_revokeAllowance", map[string]interface{}{
				"allowance": tipvault.AllowanceAddress(id).String(),
			})
		},
	}
}

func tipCommand() *cli.Command {
	flags := append(identityFlags("from-", "sender"), identityFlags("to-", "recipient")...)
	flags = append(flags,
		amountFlag(),
		&cli.StringFlag{Name: "tip-id", Usage: "Hex tip identifier, up to 32 bytes"},
		&cli.StringFlag{Name: "memo", Usage: "Optional memo recorded in the tip event"},
	)
	return &cli.Command{
		Name:  "tip",
		Usage: "Send a tip between two vaults (relayer only)",
		Flags: flags,
		Action: func(c *cli.Context) error {
			sender, err := identityFromFlags(c, "from-")
			if err != nil {
				return err
			}
			recipient, err := identityFromFlags(c, "to-")
			if err != nil {
				return err
			}
			params := map[string]interface{}{
				"senderVault":           tipvault.VaultAddress(sender).String(),
				"senderAllowance":       tipvault.AllowanceAddress(sender).String(),
				"recipientVault":        tipvault.VaultAddress(recipient).String(),
				"recipientHashedUserId": recipient.String(),
				"amount":                formatAmount(c.Uint64("amount")),
			}
			if tipID := strings.TrimSpace(c.String("tip-id")); tipID != "" {
				params["tipId"] = tipID
			}
			if c.IsSet("memo") {
				params["memo"] = c.String("memo")
			}
			return callSigned(c, "tip_send", params)
		},
	}
}

func withdrawCommand() *cli.Command {
	return &cli.Command{
		Name:  "withdraw",
		Usage: "Drain tokens from the signer's vault to a destination",
		Flags: append(identityFlags("", "vault owner"),
			addressFlagDef("destination", "Receiving account"),
			amountFlag(),
		),
		Action: func(c *cli.Context) error {
			id, err := identityFromFlags(c, "")
			if err != nil {
				return err
			}
			dest, err := addressFlag(c, "destination")
			if err != nil {
				return err
			}
			return callSigned(c, "tip_withdraw", map[string]interface{}{
				"vault":       tipvault.VaultAddress(id).String(),
				"destination": dest.String(),
				"amount":      formatAmount(c.Uint64("amount")),
			})
		},
	}
}

func withdrawFeeCommand() *cli.Command {
	return &cli.Command{
		Name:  "withdraw-fee",
		Usage: "Drain accrued protocol fees (authority only)",
		Flags: []cli.Flag{
			addressFlagDef("destination", "Receiving account"),
			amountFlag(),
		},
		Action: func(c *cli.Context) error {
			dest, err := addressFlag(c, "destination")
			if err != nil {
				return err
			}
			return callSigned(c, "tip_withdrawFee", map[string]interface{}{
				"destination": dest.String(),
				"amount":      formatAmount(c.Uint64("amount")),
			})
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show the config singleton",
		Action: func(c *cli.Context) error {
			return call(c, "tip_getConfig", nil)
		},
	}
}

func vaultCommand() *cli.Command {
	return &cli.Command{
		Name:  "vault",
		Usage: "Show the vault and allowance for an identity",
		Flags: identityFlags("", "user"),
		Action: func(c *cli.Context) error {
			id, err := identityFromFlags(c, "")
			if err != nil {
				return err
			}
			return call(c, "tip_getVault", map[string]interface{}{"hashedUserId": id.String()})
		},
	}
}

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:  "balance",
		Usage: "Show the token balance of an account in the configured mint",
		Flags: []cli.Flag{addressFlagDef("address", "Account to query")},
		Action: func(c *cli.Context) error {
			addr, err := addressFlag(c, "address")
			if err != nil {
				return err
			}
			return call(c, "tip_getBalance", map[string]interface{}{"address": addr.String()})
		},
	}
}
