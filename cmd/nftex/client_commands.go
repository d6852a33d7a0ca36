package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/nftex/client"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with the nftex server",
		Subcommands: []*cli.Command{
			clientInventoryCommand(),
			clientExchangeCommand(),
			clientHistoryCommand(),
			clientBalanceCommand(),
			clientCloseCommand(),
		},
	}
}

func newServerClient(c *cli.Context) (*client.Client, error) {
	serverURL := c.String("server-url")
	if serverURL == "" {
		return nil, fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
	}
	logger := setupLogger(c.String("log-level"))
	return client.NewClient(serverURL, nil, logger), nil
}

func clientInventoryCommand() *cli.Command {
	return &cli.Command{
		Name:      "inventory",
		Aliases:   []string{"inv"},
		Usage:     "Refresh and show the inventory of an address",
		ArgsUsage: "ADDRESS",
		Flags:     []cli.Flag{jqFlag},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("address is required")
			}
			cl, err := newServerClient(c)
			if err != nil {
				return err
			}

			inv, err := cl.GetInventory(c.Context, c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get inventory: %w", err)
			}
			if done, err := printOutput(c, inv); done {
				return err
			}

			if inv.Warning != "" {
				fmt.Fprintf(c.App.ErrWriter, "warning: %s\n\n", inv.Warning)
			}
			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MEMBERSHIP\tCONTRACT\tTOKEN ID\tNAME\tPRICE\tCURRENCY")
			for _, rec := range append(append([]*client.Record{}, inv.Listed...), inv.Owned...) {
				price, currency := "-", "-"
				if rec.Price != nil {
					price = rec.Price.Decimal
					currency = rec.CurrencySymbol
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					rec.Membership,
					rec.ContractAddress,
					rec.TokenID,
					rec.Name,
					price,
					currency,
				)
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d listed, %d owned\n", len(inv.Listed), len(inv.Owned))
			return nil
		},
	}
}

func clientExchangeCommand() *cli.Command {
	return &cli.Command{
		Name:      "exchange",
		Usage:     "Exchange a listed NFT through the server",
		ArgsUsage: "ADDRESS CONTRACT_ADDRESS TOKEN_ID",
		Flags:     []cli.Flag{jqFlag},
		Action: func(c *cli.Context) error {
			if c.NArg() != 3 {
				return fmt.Errorf("requires ADDRESS, CONTRACT_ADDRESS and TOKEN_ID")
			}
			cl, err := newServerClient(c)
			if err != nil {
				return err
			}

			result, err := cl.Exchange(c.Context, c.Args().Get(0), c.Args().Get(1), c.Args().Get(2))
			if err != nil {
				return fmt.Errorf("exchange request failed: %w", err)
			}

			if done, err := printOutput(c, result); !done {
				w := c.App.Writer
				fmt.Fprintf(w, "Outcome:      %s\n", result.Outcome)
				if result.Reason != "" {
					fmt.Fprintf(w, "Reason:       %s\n", result.Reason)
				}
				if result.ExchangeID != "" {
					fmt.Fprintf(w, "Exchange ID:  %s\n", result.ExchangeID)
				}
				if result.PriceDecimal != "" {
					fmt.Fprintf(w, "Price:        %s\n", result.PriceDecimal)
				}
				if result.TxHash != "" {
					fmt.Fprintf(w, "Tx:           %s\n", result.TxHash)
				}
				if result.Refreshed {
					fmt.Fprintf(w, "Inventory:    %d listed, %d owned\n", result.Listed, result.Owned)
				}
			} else if err != nil {
				return err
			}

			if result.Outcome != "success" {
				return cli.Exit(fmt.Sprintf("exchange %s: %s", result.Outcome, result.Reason), 1)
			}
			return nil
		},
	}
}

func clientHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "List journaled exchanges of an address",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of exchanges",
				Value:   50,
			},
			jqFlag,
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("address is required")
			}
			cl, err := newServerClient(c)
			if err != nil {
				return err
			}

			exchanges, err := cl.ListExchanges(c.Context, c.Args().First(), c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to list exchanges: %w", err)
			}
			if done, err := printOutput(c, exchanges); done {
				return err
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tOUTCOME\tCONTRACT\tTOKEN ID\tPRICE\tTX")
			for _, ex := range exchanges {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					ex.CreatedAt.Format(time.RFC3339),
					ex.Outcome,
					ex.ContractAddress,
					ex.TokenID,
					ex.PriceDecimal,
					ex.TxHash,
				)
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d exchanges\n", len(exchanges))
			return nil
		},
	}
}

func clientBalanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Show the balance-token holdings of an address",
		ArgsUsage: "ADDRESS",
		Flags:     []cli.Flag{jqFlag},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("address is required")
			}
			cl, err := newServerClient(c)
			if err != nil {
				return err
			}

			bal, err := cl.GetBalance(c.Context, c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get balance: %w", err)
			}
			if done, err := printOutput(c, bal); done {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%s\n", bal.Formatted)
			return nil
		},
	}
}

func clientCloseCommand() *cli.Command {
	return &cli.Command{
		Name:      "close",
		Usage:     "Close the server-side session of an address",
		ArgsUsage: "ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("address is required")
			}
			cl, err := newServerClient(c)
			if err != nil {
				return err
			}
			if err := cl.CloseSession(c.Context, c.Args().First()); err != nil {
				return fmt.Errorf("failed to close session: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ Session closed\n")
			return nil
		},
	}
}
