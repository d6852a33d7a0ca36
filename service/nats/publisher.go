package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/brojonat/nftex/service/metrics"
	"github.com/brojonat/nftex/service/session"
)

// Publisher defines the interface for publishing nftex events to NATS.
type Publisher interface {
	// PublishExchange publishes to "exchanges.{address}".
	PublishExchange(ctx context.Context, event *ExchangeEvent) error

	// PublishInventory publishes to "inventory.{address}".
	PublishInventory(ctx context.Context, event *InventoryEvent) error

	// Close closes the connection to NATS.
	Close() error
}

const (
	// StreamName is the name of the JetStream stream for nftex events.
	StreamName = "NFTEX"

	// ExchangeSubjectPrefix and InventorySubjectPrefix are followed by the
	// address.
	ExchangeSubjectPrefix  = "exchanges"
	InventorySubjectPrefix = "inventory"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour
)

// StreamSubjects are the subject patterns captured by the stream.
var StreamSubjects = []string{ExchangeSubjectPrefix + ".*", InventorySubjectPrefix + ".*"}

// Subject builds "{prefix}.{address}". An empty address maps to "none" so
// the subject stays valid.
func Subject(prefix, address string) string {
	if address == "" {
		address = "none"
	}
	return fmt.Sprintf("%s.%s", prefix, address)
}

// FilterSubjects returns the subjects carrying events for address, or
// every event when address is empty.
func FilterSubjects(address string) []string {
	if address == "" {
		return StreamSubjects
	}
	return []string{
		Subject(ExchangeSubjectPrefix, address),
		Subject(InventorySubjectPrefix, address),
	}
}

// JetStreamPublisher publishes events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("nftex-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "NFT exchange and inventory events",
		Subjects:    StreamSubjects,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishExchange publishes an exchange event.
func (p *JetStreamPublisher) PublishExchange(ctx context.Context, event *ExchangeEvent) error {
	return p.publish(ctx, Subject(ExchangeSubjectPrefix, event.Address), event)
}

// PublishInventory publishes an inventory event.
func (p *JetStreamPublisher) PublishInventory(ctx context.Context, event *InventoryEvent) error {
	return p.publish(ctx, Subject(InventorySubjectPrefix, event.Address), event)
}

func (p *JetStreamPublisher) publish(ctx context.Context, subject string, event any) error {
	start := time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.js.Publish(ctx, subject, data)
	status := "success"
	if err != nil {
		status = "error"
	}
	if p.metrics != nil {
		// Label by prefix only; full subjects carry addresses.
		p.metrics.RecordNATSPublish(subjectPrefix(subject), status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	p.logger.Debug("published event", "subject", subject)
	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}

// SessionHandler returns a session handler that publishes exchange and
// inventory events. Publish failures are logged and never affect the session.
func SessionHandler(pub Publisher, logger *slog.Logger) session.Handler {
	return sessionHandler(pub, logger, true)
}

// InventoryHandler is SessionHandler without exchange events, for
// processes where exchanges are published elsewhere.
func InventoryHandler(pub Publisher, logger *slog.Logger) session.Handler {
	return sessionHandler(pub, logger, false)
}

func sessionHandler(pub Publisher, logger *slog.Logger, exchanges bool) session.Handler {
	return func(ctx context.Context, ev session.Event) {
		var err error
		switch ev.Type {
		case session.ExchangeCompleted:
			if !exchanges || ev.Outcome == nil {
				return
			}
			err = pub.PublishExchange(ctx, FromOutcome(*ev.Outcome))
		case session.InventoryLoaded, session.InventoryLoadFailed:
			err = pub.PublishInventory(ctx, FromSessionEvent(ev))
		default:
			return
		}
		if err != nil {
			logger.WarnContext(ctx, "failed to publish session event",
				"type", ev.Type,
				"address", ev.Address,
				"error", err,
			)
		}
	}
}

func subjectPrefix(subject string) string {
	prefix, _, _ := strings.Cut(subject, ".")
	return prefix
}
