package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/nftex/service/exchange"
	"github.com/brojonat/nftex/service/inventory"
	"github.com/brojonat/nftex/service/ledger"
	"github.com/brojonat/nftex/service/lookup"
	"github.com/brojonat/nftex/service/session"
	"github.com/brojonat/nftex/service/temporal"
)

// inventoryOutput is the JSON shape of the inventory command.
type inventoryOutput struct {
	Address string                `json:"address"`
	Listed  []inventory.NftRecord `json:"listed"`
	Owned   []inventory.NftRecord `json:"owned"`
}

func inventoryCommand() *cli.Command {
	return &cli.Command{
		Name:      "inventory",
		Aliases:   []string{"inv"},
		Usage:     "Aggregate the NFT inventory of an address from the lookup service",
		ArgsUsage: "ADDRESS",
		Description: `Calls the collection lookup service directly and prints the merged,
deduplicated inventory. Listed records come first; a record that is both
listed and owned appears only as listed.

Example:
  nftex inventory 0xabc... --jq '.listed[] | .name'`,
		Flags: []cli.Flag{jqFlag},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("address is required")
			}
			address := c.Args().First()

			logger := setupLogger(c.String("log-level"))
			aggregator, err := aggregatorFromFlags(c, logger)
			if err != nil {
				return err
			}

			inv, err := aggregator.Load(c.Context, address)
			if err != nil {
				return fmt.Errorf("failed to load inventory: %w", err)
			}

			out := inventoryOutput{Address: address, Listed: inv.Listed, Owned: inv.Owned}
			if done, err := printOutput(c, out); done {
				return err
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MEMBERSHIP\tCONTRACT\tTOKEN ID\tNAME\tPRICE")
			for _, rec := range append(append([]inventory.NftRecord{}, inv.Listed...), inv.Owned...) {
				price := "-"
				if rec.Price != nil {
					price = rec.Price.Decimal
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					rec.Membership,
					rec.ContractAddress,
					rec.TokenID,
					rec.Name,
					price,
				)
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d listed, %d owned\n", len(inv.Listed), len(inv.Owned))
			return nil
		},
	}
}

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Show the balance-token holdings of an address",
		ArgsUsage: "ADDRESS",
		Flags:     []cli.Flag{jqFlag},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("address is required")
			}
			address := c.Args().First()
			if !common.IsHexAddress(address) {
				return fmt.Errorf("invalid address %q", address)
			}

			logger := setupLogger(c.String("log-level"))
			ledgerClient, err := ledgerFromFlags(c.Context, c, logger)
			if err != nil {
				return err
			}

			bal, err := ledgerClient.GetBalance(c.Context, address)
			if err != nil {
				return fmt.Errorf("failed to get balance: %w", err)
			}

			out := balanceOutput(address, bal)
			if done, err := printOutput(c, out); done {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%s\n", out.Formatted)
			return nil
		},
	}
}

func exchangeCommand() *cli.Command {
	return &cli.Command{
		Name:      "exchange",
		Usage:     "Exchange a listed NFT in-process, without a server",
		ArgsUsage: "ADDRESS CONTRACT_ADDRESS TOKEN_ID",
		Description: `Loads the inventory of ADDRESS, submits a transfer for the listed record
identified by CONTRACT_ADDRESS and TOKEN_ID, waits for confirmation, then
reloads the inventory. Requires --ledger-private-key.`,
		Flags: []cli.Flag{jqFlag},
		Action: func(c *cli.Context) error {
			if c.NArg() != 3 {
				return fmt.Errorf("requires ADDRESS, CONTRACT_ADDRESS and TOKEN_ID")
			}
			address := c.Args().Get(0)
			key := inventory.DedupKey{ContractAddress: c.Args().Get(1), TokenID: c.Args().Get(2)}

			logger := setupLogger(c.String("log-level"))
			aggregator, err := aggregatorFromFlags(c, logger)
			if err != nil {
				return err
			}
			ledgerClient, err := ledgerFromFlags(c.Context, c, logger)
			if err != nil {
				return err
			}
			if !ledgerClient.CanSubmit() {
				return fmt.Errorf("ledger-private-key is required (set LEDGER_PRIVATE_KEY env var or use --ledger-private-key)")
			}

			sess := session.New(aggregator, ledgerClient, nil, logger)
			defer sess.Close()
			if _, err := sess.SetAddress(c.Context, address); err != nil {
				return fmt.Errorf("failed to load inventory: %w", err)
			}

			outcome := sess.Exchange(c.Context, key)
			result := temporal.ResultFromOutcome(outcome)
			if done, err := printOutput(c, result); done {
				if err != nil {
					return err
				}
				return exitForOutcome(outcome)
			}

			printExchangeResult(c, result)
			return exitForOutcome(outcome)
		},
	}
}

func printExchangeResult(c *cli.Context, r *temporal.ExchangeResult) {
	w := c.App.Writer
	fmt.Fprintf(w, "Outcome:      %s\n", r.Outcome)
	if r.Reason != "" {
		fmt.Fprintf(w, "Reason:       %s\n", r.Reason)
	}
	fmt.Fprintf(w, "Address:      %s\n", r.Address)
	fmt.Fprintf(w, "NFT:          %s #%s\n", r.ContractAddress, r.TokenID)
	if r.PriceDecimal != "" {
		fmt.Fprintf(w, "Price:        %s\n", r.PriceDecimal)
	}
	if r.TxHash != "" {
		fmt.Fprintf(w, "Tx:           %s\n", r.TxHash)
	}
	if r.Refreshed {
		fmt.Fprintf(w, "Inventory:    %d listed, %d owned\n", r.Listed, r.Owned)
	}
	if r.RefreshError != "" {
		fmt.Fprintf(w, "Refresh:      %s\n", r.RefreshError)
	}
}

func exitForOutcome(out exchange.Outcome) error {
	if out.Kind == exchange.KindSuccess {
		return nil
	}
	return cli.Exit(fmt.Sprintf("exchange %s: %s", out.Kind, out.Reason), 1)
}

// balanceView is the JSON shape of a balance, matching the server's.
type balanceView struct {
	Address   string `json:"address"`
	Balance   string `json:"balance"`
	Formatted string `json:"formatted"`
	Decimals  int    `json:"decimals"`
}

func balanceOutput(address string, bal *big.Int) balanceView {
	return balanceView{
		Address:   address,
		Balance:   bal.String(),
		Formatted: ledger.FormatUnits(bal, inventory.MinorUnitDecimals, 4),
		Decimals:  inventory.MinorUnitDecimals,
	}
}

func aggregatorFromFlags(c *cli.Context, logger *slog.Logger) (*inventory.Aggregator, error) {
	lookupURL := c.String("lookup-url")
	if lookupURL == "" {
		return nil, fmt.Errorf("lookup-url is required (set LOOKUP_URL env var or use --lookup-url)")
	}
	cfg := lookup.DefaultConfig(lookupURL)
	if path := c.String("lookup-path"); path != "" {
		cfg.Path = path
	}
	return inventory.NewAggregator(lookup.NewClient(cfg, nil, logger), nil, logger), nil
}

func ledgerFromFlags(ctx context.Context, c *cli.Context, logger *slog.Logger) (*ledger.Client, error) {
	rpcURL := c.String("eth-rpc-url")
	if rpcURL == "" {
		return nil, fmt.Errorf("eth-rpc-url is required (set ETH_RPC_URL env var or use --eth-rpc-url)")
	}
	marketplace := c.String("marketplace-contract")
	if !common.IsHexAddress(marketplace) {
		return nil, fmt.Errorf("marketplace-contract must be a hex address, got %q", marketplace)
	}
	token := c.String("balance-token")
	if !common.IsHexAddress(token) {
		return nil, fmt.Errorf("balance-token must be a hex address, got %q", token)
	}

	cfg := ledger.Config{
		ChainID:             big.NewInt(c.Int64("chain-id")),
		MarketplaceContract: common.HexToAddress(marketplace),
		BalanceToken:        common.HexToAddress(token),
	}
	if hexKey := c.String("ledger-private-key"); hexKey != "" {
		key, err := ledger.ParsePrivateKey(hexKey)
		if err != nil {
			return nil, err
		}
		cfg.PrivateKey = key
	}
	return ledger.Dial(ctx, rpcURL, cfg, nil, logger)
}
