package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/nftex/service/db"
)

func listExchangesCommand() *cli.Command {
	return &cli.Command{
		Name:      "exchanges",
		Usage:     "List journaled exchanges of an address",
		Aliases:   []string{"ls"},
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of exchanges",
				Value:   50,
			},
			&cli.StringFlag{
				Name:    "outcome",
				Aliases: []string{"o"},
				Usage:   "Filter by outcome (success, cancelled, failed)",
			},
			jqFlag,
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("address is required")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			exchanges, err := store.ListExchangesByAddress(context.Background(), c.Args().First(), int32(c.Int("limit")))
			if err != nil {
				return fmt.Errorf("failed to list exchanges: %w", err)
			}

			// Filter by outcome if specified
			if outcome := c.String("outcome"); outcome != "" {
				filtered := make([]*db.Exchange, 0)
				for _, ex := range exchanges {
					if ex.Outcome == outcome {
						filtered = append(filtered, ex)
					}
				}
				exchanges = filtered
			}

			if done, err := printOutput(c, exchanges); done {
				return err
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tOUTCOME\tCONTRACT\tTOKEN ID\tPRICE\tTX\tCREATED")
			for _, ex := range exchanges {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					ex.ID,
					ex.Outcome,
					ex.ContractAddress,
					ex.TokenID,
					ex.PriceDecimal,
					formatOptional(ex.TxHash),
					ex.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d exchanges\n", len(exchanges))
			return nil
		},
	}
}

func exchangeStatsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Count journaled exchanges per outcome",
		ArgsUsage: "[ADDRESS]",
		Description: `Counts exchanges per outcome for ADDRESS, or across all addresses when
no address is given.`,
		Flags: []cli.Flag{jqFlag},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			counts, err := store.CountExchangesByOutcome(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to count exchanges: %w", err)
			}

			if done, err := printOutput(c, counts); done {
				return err
			}

			outcomes := make([]string, 0, len(counts))
			var total int64
			for outcome, n := range counts {
				outcomes = append(outcomes, outcome)
				total += n
			}
			sort.Strings(outcomes)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "OUTCOME\tCOUNT")
			for _, outcome := range outcomes {
				fmt.Fprintf(w, "%s\t%d\n", outcome, counts[outcome])
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d exchanges\n", total)
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the exchange journal schema",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			fmt.Println("✓ Schema up to date")
			return nil
		},
	}
}

// Helper function to get database store
func getStore(c *cli.Context) (*db.Store, func(), error) {
	// Try to get from parent context first (for global flags)
	dbURL := c.String("database-url")
	if dbURL == "" && c.App != nil {
		// Try environment variable directly if flag not found
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool, nil)
	closer := func() { pool.Close() }

	return store, closer, nil
}

func formatOptional(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
