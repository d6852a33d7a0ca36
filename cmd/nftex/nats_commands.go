package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"

	natspkg "github.com/brojonat/nftex/service/nats"
)

// subscribeCommand streams exchange and inventory events.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to exchange and inventory events",
		ArgsUsage: "[ADDRESS]",
		Description: `Subscribe to real-time events published to NATS JetStream.

Events are published to exchanges.{address} and inventory.{address}. Without
an address every event on the stream is shown.

Example:
  nftex nats subscribe 0xabc... --json`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "nftex-cli",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Stop after this long (0 waits for Ctrl-C)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 1 {
				return fmt.Errorf("at most one address may be given")
			}

			return streamEvents(c.Context, streamOptions{
				address:      c.Args().First(),
				natsURL:      c.String("nats-url"),
				durable:      c.Bool("durable"),
				consumerName: c.String("consumer-name"),
				timeout:      c.Duration("timeout"),
				jsonOutput:   c.Bool("json"),
				out:          c.App.Writer,
			})
		},
	}
}

type streamOptions struct {
	address      string
	natsURL      string
	durable      bool
	consumerName string
	timeout      time.Duration
	jsonOutput   bool
	out          io.Writer
}

// streamEvents connects to NATS and streams events until interrupted.
func streamEvents(ctx context.Context, opts streamOptions) error {
	// Connect to NATS
	nc, err := nats.Connect(opts.natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	subjects := natspkg.FilterSubjects(opts.address)

	if !opts.jsonOutput {
		fmt.Fprintf(opts.out, "📡 Subscribing to: %v\n", subjects)
		fmt.Fprintf(opts.out, "   NATS: %s\n", opts.natsURL)
		if opts.durable {
			fmt.Fprintf(opts.out, "   Consumer: %s (durable)\n", opts.consumerName)
		}
		fmt.Fprintf(opts.out, "\nWaiting for events... (Ctrl-C to exit)\n\n")
	}

	// Create consumer config
	consumerConfig := jetstream.ConsumerConfig{
		FilterSubjects: subjects,
		AckPolicy:      jetstream.AckExplicitPolicy,
	}

	if opts.durable {
		consumerConfig.Durable = opts.consumerName
		consumerConfig.Name = opts.consumerName
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	msgChan := make(chan jetstream.Msg, 10)
	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}
	defer consumeCtx.Stop()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			ev, err := natspkg.DecodeEvent(msg.Subject(), msg.Data())
			if err != nil {
				if !opts.jsonOutput {
					fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				}
				msg.Ack()
				continue
			}

			count++
			if opts.jsonOutput {
				data, _ := json.Marshal(ev)
				fmt.Fprintln(opts.out, string(data))
			} else {
				printEvent(opts.out, count, ev)
			}

			msg.Ack()

		case <-ctx.Done():
			if !opts.jsonOutput {
				fmt.Fprintf(opts.out, "\n✅ Received %d events\n", count)
			}
			return nil

		case <-sigChan:
			if !opts.jsonOutput {
				fmt.Fprintf(opts.out, "\n\n✅ Received %d events\n", count)
				fmt.Fprintln(opts.out, "Shutting down...")
			}
			return nil
		}
	}
}

func printEvent(w io.Writer, n int, ev interface{}) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
	switch e := ev.(type) {
	case *natspkg.ExchangeEvent:
		fmt.Fprintf(w, "Exchange #%d\n", n)
		fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Address:      %s\n", e.Address)
		fmt.Fprintf(w, "NFT:          %s #%s\n", e.ContractAddress, e.TokenID)
		fmt.Fprintf(w, "Outcome:      %s\n", e.Outcome)
		if e.Reason != "" {
			fmt.Fprintf(w, "Reason:       %s\n", e.Reason)
		}
		if e.PriceDecimal != "" {
			fmt.Fprintf(w, "Price:        %s\n", e.PriceDecimal)
		}
		if e.TxHash != "" {
			fmt.Fprintf(w, "Tx:           %s\n", e.TxHash)
		}
		fmt.Fprintf(w, "Published:    %s\n", e.PublishedAt.Format(time.RFC3339))
	case *natspkg.InventoryEvent:
		fmt.Fprintf(w, "Inventory #%d\n", n)
		fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Address:      %s\n", e.Address)
		fmt.Fprintf(w, "Status:       %s\n", e.Status)
		fmt.Fprintf(w, "Records:      %d listed, %d owned\n", e.Listed, e.Owned)
		if e.Error != "" {
			fmt.Fprintf(w, "Error:        %s\n", e.Error)
		}
		fmt.Fprintf(w, "Published:    %s\n", e.PublishedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "\n")
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the NFTEX JetStream stream",
		Description: `Show information about the JetStream stream including:
- Message count
- Consumers
- Storage usage
- Stream configuration

Example:
  nftex nats inspect-stream`,
		Flags: []cli.Flag{jqFlag},
		Action: func(c *cli.Context) error {
			natsURL := c.String("nats-url")

			// Connect to NATS
			nc, err := nats.Connect(natsURL)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(c.Context, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if done, err := printOutput(c, info); done {
				return err
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Stream: %s\n", info.Config.Name)
			fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
			fmt.Fprintf(w, "Description:  %s\n", info.Config.Description)
			fmt.Fprintf(w, "Subjects:     %v\n", info.Config.Subjects)
			fmt.Fprintf(w, "Messages:     %d\n", info.State.Msgs)
			fmt.Fprintf(w, "Bytes:        %d\n", info.State.Bytes)
			fmt.Fprintf(w, "First Seq:    %d\n", info.State.FirstSeq)
			fmt.Fprintf(w, "Last Seq:     %d\n", info.State.LastSeq)
			fmt.Fprintf(w, "Consumers:    %d\n", info.State.Consumers)
			fmt.Fprintf(w, "Max Age:      %s\n", info.Config.MaxAge)
			fmt.Fprintf(w, "Storage:      %s\n", info.Config.Storage)
			fmt.Fprintf(w, "\n")
			return nil
		},
	}
}
