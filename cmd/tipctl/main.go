// Command tipctl is the operator CLI for a tipd ledger. Mutating commands
// are signed with a keystore key; read commands need only the endpoint.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "tipctl",
		Usage:   "Operate a custodial tip ledger over JSON-RPC",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			keygenCommand(),
			deriveCommand(),
			initConfigCommand(),
			setFeeRateCommand(),
			setRelayerCommand(),
			registerCommand(),
			depositCommand(),
			approveCommand(),
			revokeCommand(),
			tipCommand(),
			withdrawCommand(),
			withdrawFeeCommand(),
			configCommand(),
			vaultCommand(),
			balanceCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "rpc",
			Usage:   "tipd JSON-RPC endpoint",
			EnvVars: []string{"TIPLEDGER_RPC_URL"},
			Value:   "http://127.0.0.1:8547",
		},
		&cli.StringFlag{
			Name:    "keystore",
			Aliases: []string{"k"},
			Usage:   "Path to the signing keystore",
			EnvVars: []string{"TIPLEDGER_KEYSTORE"},
		},
		&cli.StringFlag{
			Name:  "pass-env",
			Usage: "Environment variable holding the keystore passphrase",
			Value: "TIPLEDGER_KEY_PASS",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Per-request timeout",
			Value: defaultTimeout,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: json, yaml",
			Value:   "json",
		},
	}
}
