package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/brojonat/nftex/service/metrics"
)

// Client is a production implementation of ExchangeStarter that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewClient creates a new Temporal client. m may be nil.
func NewClient(host, namespace, taskQueue string, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		metrics:   m,
		logger:    logger,
	}, nil
}

// StartExchange runs ExchangeWorkflow for input and waits for its result.
// If an exchange for the address is already running anywhere, it returns
// InProgressResult without starting a second workflow.
func (c *Client) StartExchange(ctx context.Context, input ExchangeInput) (*ExchangeResult, error) {
	id := WorkflowID(input.Address)
	start := time.Now()

	c.logger.DebugContext(ctx, "starting exchange workflow",
		"workflow_id", id,
		"contract_address", input.ContractAddress,
		"token_id", input.TokenID,
	)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                                       id,
		TaskQueue:                                c.taskQueue,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, ExchangeWorkflow, input)
	if err != nil {
		if IsAlreadyStarted(err) {
			c.logger.InfoContext(ctx, "exchange already in progress", "workflow_id", id)
			c.recordWorkflow(InProgressResult(input).Outcome, start)
			return InProgressResult(input), nil
		}
		return nil, fmt.Errorf("failed to start workflow %q: %w", id, err)
	}

	var result ExchangeResult
	if err := run.Get(ctx, &result); err != nil {
		c.recordWorkflow("error", start)
		return nil, fmt.Errorf("workflow %q failed: %w", id, err)
	}
	c.recordWorkflow(result.Outcome, start)

	c.logger.InfoContext(ctx, "exchange workflow completed",
		"workflow_id", id,
		"run_id", run.GetRunID(),
		"exchange_id", result.ExchangeID,
		"outcome", result.Outcome,
	)
	return &result, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

func (c *Client) recordWorkflow(outcome string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordWorkflowDuration(outcome, time.Since(start).Seconds())
	}
}

// WorkflowID is the exchange workflow id for an address.
func WorkflowID(address string) string {
	return "exchange-" + address
}

// IsAlreadyStarted reports whether err says the workflow id is taken by a
// running execution.
func IsAlreadyStarted(err error) bool {
	var already *serviceerror.WorkflowExecutionAlreadyStarted
	return errors.As(err, &already)
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
