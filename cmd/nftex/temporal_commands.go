package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	enumspb "go.temporal.io/api/enums/v1"

	"github.com/brojonat/nftex/service/temporal"
)

func startExchangeCommand() *cli.Command {
	return &cli.Command{
		Name:      "exchange",
		Usage:     "Run an exchange through ExchangeWorkflow and wait for its result",
		ArgsUsage: "ADDRESS CONTRACT_ADDRESS TOKEN_ID",
		Description: `Starts ExchangeWorkflow with id exchange-{ADDRESS} on the configured task
queue and waits for it to finish. A worker must be running. When a workflow
for the address is already running the result is "already in progress".`,
		Flags: []cli.Flag{jqFlag},
		Action: func(c *cli.Context) error {
			if c.NArg() != 3 {
				return fmt.Errorf("requires ADDRESS, CONTRACT_ADDRESS and TOKEN_ID")
			}

			starter, closeStarter, err := dialExchangeStarter(c)
			if err != nil {
				return err
			}
			defer closeStarter()

			result, err := starter.StartExchange(c.Context, temporal.ExchangeInput{
				Address:         c.Args().Get(0),
				ContractAddress: c.Args().Get(1),
				TokenID:         c.Args().Get(2),
			})
			if err != nil {
				return fmt.Errorf("exchange workflow failed: %w", err)
			}

			if done, err := printOutput(c, result); done {
				if err != nil {
					return err
				}
			} else {
				printExchangeResult(c, result)
			}

			if result.Outcome != "success" {
				return cli.Exit(fmt.Sprintf("exchange %s: %s", result.Outcome, result.Reason), 1)
			}
			return nil
		},
	}
}

// workflowView is the JSON shape of describeExchangeCommand.
type workflowView struct {
	WorkflowID string                   `json:"workflow_id"`
	RunID      string                   `json:"run_id"`
	Status     string                   `json:"status"`
	StartTime  time.Time                `json:"start_time"`
	CloseTime  *time.Time               `json:"close_time,omitempty"`
	Result     *temporal.ExchangeResult `json:"result,omitempty"`
}

func describeExchangeCommand() *cli.Command {
	return &cli.Command{
		Name:      "describe",
		Usage:     "Describe the latest exchange workflow of an address",
		Aliases:   []string{"desc"},
		ArgsUsage: "ADDRESS",
		Flags:     []cli.Flag{jqFlag},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: address")
			}

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			workflowID := temporal.WorkflowID(c.Args().First())
			sdk := temporalClient.SDKClient()
			desc, err := sdk.DescribeWorkflowExecution(c.Context, workflowID, "")
			if err != nil {
				return fmt.Errorf("failed to describe workflow: %w", err)
			}

			info := desc.GetWorkflowExecutionInfo()
			view := workflowView{
				WorkflowID: workflowID,
				RunID:      info.GetExecution().GetRunId(),
				Status:     info.GetStatus().String(),
				StartTime:  info.GetStartTime().AsTime(),
			}
			if info.GetCloseTime() != nil {
				closed := info.GetCloseTime().AsTime()
				view.CloseTime = &closed
			}
			if info.GetStatus() == enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED {
				var result temporal.ExchangeResult
				if err := sdk.GetWorkflow(c.Context, workflowID, view.RunID).Get(c.Context, &result); err != nil {
					return fmt.Errorf("failed to get workflow result: %w", err)
				}
				view.Result = &result
			}

			if done, err := printOutput(c, view); done {
				return err
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Workflow ID:  %s\n", view.WorkflowID)
			fmt.Fprintf(w, "Run ID:       %s\n", view.RunID)
			fmt.Fprintf(w, "Status:       %s\n", view.Status)
			fmt.Fprintf(w, "Started:      %s\n", view.StartTime.Format(time.RFC3339))
			if view.CloseTime != nil {
				fmt.Fprintf(w, "Closed:       %s\n", view.CloseTime.Format(time.RFC3339))
			}
			if view.Result != nil {
				fmt.Fprintf(w, "\n")
				printExchangeResult(c, view.Result)
			}
			return nil
		},
	}
}

// dialExchangeStarter connects the starter used by "temporal exchange".
// Tests replace it.
var dialExchangeStarter = func(c *cli.Context) (temporal.ExchangeStarter, func(), error) {
	temporalClient, err := getTemporalClient(c)
	if err != nil {
		return nil, nil, err
	}
	return temporalClient, temporalClient.Close, nil
}

// Helper function to get a Temporal client
func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	host := c.String("temporal-host")
	if host == "" {
		host = "localhost:7233"
	}
	namespace := c.String("temporal-namespace")
	if namespace == "" {
		namespace = "default"
	}
	taskQueue := c.String("temporal-task-queue")
	if taskQueue == "" {
		taskQueue = "nftex-exchanges"
	}

	temporalClient, err := temporal.NewClient(host, namespace, taskQueue, nil, setupLogger(c.String("log-level")))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}
	return temporalClient, nil
}
