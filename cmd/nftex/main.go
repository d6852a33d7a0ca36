package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/nftex/service/lookup"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "nftex",
		Usage: "NFT inventory and exchange CLI",
		Description: `A command-line tool for the nftex service.

Use it to aggregate an address's NFT inventory directly from the lookup
service, run exchanges against the ledger, talk to a running server, inspect
the exchange journal, follow NATS events, and start exchange workflows.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Direct commands (no server required)
			inventoryCommand(),
			balanceCommand(),
			exchangeCommand(),
			// Client commands (HTTP API)
			clientCommands(),
			// Exchange journal commands
			{
				Name:  "db",
				Usage: "Exchange journal commands",
				Subcommands: []*cli.Command{
					listExchangesCommand(),
					exchangeStatsCommand(),
					migrateCommand(),
				},
			},
			// Temporal commands
			{
				Name:  "temporal",
				Usage: "Exchange workflow commands",
				Subcommands: []*cli.Command{
					startExchangeCommand(),
					describeExchangeCommand(),
				},
			},
			// NATS event streaming commands
			{
				Name:  "nats",
				Usage: "NATS event streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: globalFlags(),
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Database connection URL",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "temporal-host",
			Usage:   "Temporal server address",
			EnvVars: []string{"TEMPORAL_HOST"},
			Value:   "localhost:7233",
		},
		&cli.StringFlag{
			Name:    "temporal-namespace",
			Usage:   "Temporal namespace",
			EnvVars: []string{"TEMPORAL_NAMESPACE"},
			Value:   "default",
		},
		&cli.StringFlag{
			Name:    "temporal-task-queue",
			Usage:   "Temporal task queue for exchange workflows",
			EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
			Value:   "nftex-exchanges",
		},
		&cli.StringFlag{
			Name:    "server-url",
			Usage:   "nftex server URL",
			EnvVars: []string{"SERVER_URL"},
			Value:   "http://localhost:8080",
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server URL",
			EnvVars: []string{"NATS_URL"},
			Value:   "nats://localhost:4222",
		},
		&cli.StringFlag{
			Name:    "lookup-url",
			Usage:   "Collection lookup service base URL",
			EnvVars: []string{"LOOKUP_URL"},
		},
		&cli.StringFlag{
			Name:    "lookup-path",
			Usage:   "Collection lookup path, {address} is substituted",
			EnvVars: []string{"LOOKUP_PATH"},
			Value:   lookup.DefaultPath,
		},
		&cli.StringFlag{
			Name:    "eth-rpc-url",
			Usage:   "Ethereum JSON-RPC endpoint",
			EnvVars: []string{"ETH_RPC_URL"},
		},
		&cli.Int64Flag{
			Name:    "chain-id",
			Usage:   "Chain id used to sign transfers",
			EnvVars: []string{"CHAIN_ID"},
			Value:   1,
		},
		&cli.StringFlag{
			Name:    "marketplace-contract",
			Usage:   "Marketplace contract address",
			EnvVars: []string{"MARKETPLACE_CONTRACT"},
		},
		&cli.StringFlag{
			Name:    "balance-token",
			Usage:   "Balance token (ERC-20) address",
			EnvVars: []string{"BALANCE_TOKEN_ADDRESS"},
		},
		&cli.StringFlag{
			Name:    "ledger-private-key",
			Usage:   "Hex private key that signs transfers",
			EnvVars: []string{"LEDGER_PRIVATE_KEY"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level for diagnostics on stderr (debug, info, warn, error)",
			Value: "error",
		},
		&cli.BoolFlag{
			Name:    "json",
			Aliases: []string{"j"},
			Usage:   "Output in JSON format",
		},
	}
}
