package engine

import (
	"context"

	"github.com/meshagent/meshagent/pkg/aiclient"
	"github.com/meshagent/meshagent/pkg/models"
)

// singleCallStrategy issues exactly one AIClient call in tool-or-text mode,
// generalized from the teacher's one-shot node_executor.go path: when a node
// has no tools (or multi-step is disabled) there is nothing to loop over.
type singleCallStrategy struct{}

func (s *singleCallStrategy) run(ctx context.Context, client aiclient.Client, nc *NodeContext, trace *models.Trace, cancel *cancelState) (float64, error) {
	if err := checkCancelled(ctx, cancel); err != nil {
		return 0, err
	}

	maxSteps := nc.Node.EffectiveMaxSteps(defaultIntOr(nc.Options.SingleCallMaxStepsDefault, 1))
	choice := initialToolChoice(nc)
	if choice.Policy == aiclient.ToolChoiceRequired {
		maxSteps = 1
	}

	req := aiclient.Request{
		ModelID: nc.Node.ModelName,
		Messages: []aiclient.Message{
			{Role: aiclient.RoleSystem, Content: nc.Node.SystemPrompt},
			{Role: aiclient.RoleUser, Content: nc.IncomingText},
		},
		Mode:       aiclient.ModeTool,
		Tools:      toolSchemas(nc.Tools),
		ToolChoice: choice,
		MaxSteps:   maxSteps,
	}

	_ = trace.Append(models.NewPrepareStep(nc.IncomingText))

	result, err := client.Complete(ctx, req)
	if err != nil {
		return 0, err
	}

	cost := result.Cost()
	nc.SpendingBudget.AddCost(nc.InvocationID, cost)
	if !result.IsSuccess() {
		_ = trace.Append(models.NewErrorStep(result.ErrorMessage))
		_ = trace.Append(models.NewTerminateStep("", "single-call strategy failed: "+result.ErrorMessage))
		return cost, nil
	}

	for _, tc := range result.ToolCalls {
		ret, callErr := nc.Tools.Call(ctx, tc.Name, tc.Arguments)
		if callErr != nil {
			_ = trace.Append(models.NewErrorStep("tool " + tc.Name + ": " + callErr.Error()))
			continue
		}
		_ = trace.Append(models.NewToolStep(tc.Name, tc.Arguments, ret, ""))
	}
	if result.Content != "" {
		_ = trace.Append(models.NewTextStep(result.Content))
	}
	_ = trace.Append(models.NewTerminateStep(result.Content, shortSummary(result.Content)))

	return cost, nil
}

func toolSchemas(tb ToolBindings) []aiclient.ToolSchema {
	names := tb.Names()
	out := make([]aiclient.ToolSchema, 0, len(names))
	for _, n := range names {
		out = append(out, aiclient.ToolSchema{Name: n, Parameters: tb.Schema(n)})
	}
	return out
}

func defaultIntOr(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func shortSummary(content string) string {
	const max = 120
	if len(content) <= max {
		return content
	}
	return content[:max] + "..."
}
