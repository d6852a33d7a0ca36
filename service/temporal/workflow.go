package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// ExchangeWorkflow submits one exchange and then journals and publishes the
// outcome.
//
// The workflow id is derived from the address, so at most one exchange per
// address runs across all processes. SubmitExchange is attempted exactly
// once; a transfer must never be sent twice. The bookkeeping steps are
// retried, and their failure is logged without failing the workflow since
// the transfer has already happened.
func ExchangeWorkflow(ctx workflow.Context, input ExchangeInput) (*ExchangeResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("ExchangeWorkflow started",
		"address", input.Address,
		"contract_address", input.ContractAddress,
		"token_id", input.TokenID,
	)

	submitCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	var result *ExchangeResult
	err := workflow.ExecuteActivity(submitCtx, a.SubmitExchange, input).Get(ctx, &result)
	if err != nil {
		logger.Error("exchange submission failed", "address", input.Address, "error", err)
		return nil, fmt.Errorf("failed to submit exchange: %w", err)
	}

	bookkeepingCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	})

	if err := workflow.ExecuteActivity(bookkeepingCtx, a.RecordExchange, *result).Get(ctx, nil); err != nil {
		logger.Warn("failed to record exchange", "exchange_id", result.ExchangeID, "error", err)
	}
	if err := workflow.ExecuteActivity(bookkeepingCtx, a.PublishExchange, *result).Get(ctx, nil); err != nil {
		logger.Warn("failed to publish exchange", "exchange_id", result.ExchangeID, "error", err)
	}

	logger.Info("ExchangeWorkflow completed",
		"exchange_id", result.ExchangeID,
		"outcome", result.Outcome,
	)
	return result, nil
}
