package engine

import (
	"context"

	"github.com/meshagent/meshagent/pkg/aiclient"
	"github.com/meshagent/meshagent/pkg/models"
)

// directSDKStrategy concatenates the node's system prompt and the routed
// user text into a single prompt and forwards it to an external SDK
// adapter, still behind AIClient semantics (spec.md §4.7.2 "Direct-SDK
// strategy"). No multi-step loop runs here; the adapter's own transcript is
// mapped straight to trace steps.
type directSDKStrategy struct{}

func (d *directSDKStrategy) run(ctx context.Context, client aiclient.Client, nc *NodeContext, trace *models.Trace, cancel *cancelState) (float64, error) {
	if err := checkCancelled(ctx, cancel); err != nil {
		return 0, err
	}

	prompt := nc.Node.SystemPrompt + "\n\n" + nc.IncomingText
	_ = trace.Append(models.NewPrepareStep(prompt))

	req := aiclient.Request{
		ModelID: nc.Node.ModelName,
		Messages: []aiclient.Message{
			{Role: aiclient.RoleUser, Content: prompt},
		},
		Mode:     aiclient.ModeText,
		MaxSteps: 1,
	}

	result, err := client.Complete(ctx, req)
	if err != nil {
		return 0, err
	}
	cost := result.Cost()
	nc.SpendingBudget.AddCost(nc.InvocationID, cost)
	if !result.IsSuccess() {
		_ = trace.Append(models.NewErrorStep(result.ErrorMessage))
		_ = trace.Append(models.NewTerminateStep("", "direct-sdk strategy failed: "+result.ErrorMessage))
		return cost, nil
	}

	_ = trace.Append(models.NewTextStep(result.Content))
	_ = trace.Append(models.NewTerminateStep(result.Content, shortSummary(result.Content)))
	return cost, nil
}
