package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/meshagent/meshagent/pkg/aiclient"
	"github.com/meshagent/meshagent/pkg/models"
)

// multiStepStrategy drives the bounded round-based tool-execution loop
// (spec.md §4.7.2 "Multi-step strategy"), generalized from the teacher's
// pkg/executor/builtin/llm.go executeWithToolCalling: that loop picked the
// next tool call directly from the model's tool_calls; here a dedicated
// StrategySelector call decides Terminate | CallTool | Error each round,
// since the spec routes that decision through an explicit, auditable step.
type multiStepStrategy struct {
	selector *StrategySelector
	v3       bool // true selects V3 (self-check, mutation tracking, per-tool summarization); false selects V2.
}

func (m *multiStepStrategy) run(ctx context.Context, client aiclient.Client, nc *NodeContext, trace *models.Trace, cancel *cancelState) (float64, error) {
	maxRounds := nc.Node.EffectiveMaxSteps(defaultIntOr(nc.Options.MultiStepMaxRoundsDefault, 6))
	var totalCost float64

	_ = trace.Append(models.NewPrepareStep(nc.IncomingText))

	if maxRounds == 0 {
		return m.terminate(ctx, client, nc, trace, &totalCost, "no rounds available")
	}

	for round := 1; round <= maxRounds; round++ {
		if err := checkCancelled(ctx, cancel); err != nil {
			return totalCost, err
		}
		if st := nc.SpendingBudget.Check(nc.InvocationID); !st.OK {
			return totalCost, models.ErrSpendingExceeded
		}

		roundsLeft := maxRounds - round + 1
		decision, err := m.selector.Select(ctx, nc, trace, roundsLeft)
		if err != nil {
			return totalCost, err
		}
		totalCost += decision.USDCost
		nc.SpendingBudget.AddCost(nc.InvocationID, decision.USDCost)

		reasoningStep := models.NewReasoningStep(decision.Reasoning, decision.Plan, decision.Check, decision.ExpectsMutation)
		_ = trace.Append(reasoningStep)
		if decision.Plan != "" {
			_ = trace.Append(AgentStepPlan(decision.Plan))
		}

		switch decision.Kind {
		case DecisionTerminate:
			return m.terminate(ctx, client, nc, trace, &totalCost, decision.Reasoning)

		case DecisionError:
			_ = trace.Append(models.NewErrorStep(decision.Reasoning))
			continue

		case DecisionCallTool:
			cost, err := m.callRound(ctx, client, nc, trace, decision)
			totalCost += cost
			if err != nil {
				return totalCost, err
			}
		}

		if round == maxRounds {
			return m.terminate(ctx, client, nc, trace, &totalCost, "max rounds reached")
		}
	}

	return totalCost, nil
}

// AgentStepPlan emits a standalone plan step alongside the reasoning step
// that already carries the same plan text inline.
func AgentStepPlan(plan string) models.AgentStep {
	return models.AgentStep{Kind: models.StepPlan, Plan: plan}
}

func (m *multiStepStrategy) callRound(ctx context.Context, client aiclient.Client, nc *NodeContext, trace *models.Trace, decision Decision) (float64, error) {
	req := aiclient.Request{
		ModelID: nc.Node.ModelName,
		Messages: []aiclient.Message{
			{Role: aiclient.RoleSystem, Content: nc.Node.SystemPrompt},
			{Role: aiclient.RoleUser, Content: nc.IncomingText},
		},
		Mode:       aiclient.ModeTool,
		Tools:      toolSchemas(nc.Tools),
		ToolChoice: aiclient.ToolChoice{Policy: aiclient.ToolChoiceNamed, Tool: decision.ToolName},
		MaxSteps:   1,
		Repair:     false,
	}

	result, err := client.Complete(ctx, req)
	if err != nil {
		return 0, err
	}
	cost := result.Cost()
	if !result.IsSuccess() {
		_ = trace.Append(models.NewErrorStep(result.ErrorMessage))
		return cost, nil
	}

	var lastToolOutput string
	for _, tc := range result.ToolCalls {
		ret, callErr := nc.Tools.Call(ctx, tc.Name, tc.Arguments)
		if callErr != nil {
			_ = trace.Append(models.NewErrorStep("tool " + tc.Name + ": " + callErr.Error()))
			continue
		}
		summary := ""
		if m.v3 {
			summary = miniSummarize(ret)
		}
		_ = trace.Append(models.NewToolStep(tc.Name, tc.Arguments, ret, summary))
		lastToolOutput = fmt.Sprintf("%v", ret)
	}

	if m.v3 && decision.Check != "" {
		if !selfCheckPasses(decision.Check, lastToolOutput) {
			_ = trace.Append(models.NewErrorStep("Self-check failed: expected tokens from \"" + decision.Check + "\" not found in tool output"))
		}
	}

	return cost, nil
}

func (m *multiStepStrategy) terminate(ctx context.Context, client aiclient.Client, nc *NodeContext, trace *models.Trace, totalCost *float64, reasoning string) (float64, error) {
	content := trace.LastText()
	if content == "" {
		content = reasoning
	}
	summary, cost := summarizeForTerminate(ctx, client, nc, content)
	*totalCost += cost

	learningStep, learnCost, learnErr := runLearning(ctx, client, nc, trace)
	*totalCost += learnCost
	if learnErr == nil {
		_ = trace.Append(learningStep)
	} else {
		_ = trace.Append(models.NewErrorStep("learning: " + learnErr.Error()))
	}

	_ = trace.Append(models.NewTerminateStep(content, summary))
	return *totalCost, nil
}

// miniSummarize implements spec.md §4.7.2 step 5's "mini-summarizer":
// deterministic, no AI call, truncates tool output to a short one-liner.
func miniSummarize(ret any) string {
	s := fmt.Sprintf("%v", ret)
	s = strings.TrimSpace(s)
	const max = 160
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

// summarizeForTerminate is bounded by spec.md §4.7.2 "2-retry-bounded short
// summary"; here that bound is a loop over at most 3 attempts (initial + 2
// retries) falling back to a truncated raw content on repeated failure.
func summarizeForTerminate(ctx context.Context, client aiclient.Client, nc *NodeContext, content string) (string, float64) {
	var total float64
	for attempt := 0; attempt < 3; attempt++ {
		req := aiclient.Request{
			ModelID: nc.Node.ModelName,
			Messages: []aiclient.Message{
				{Role: aiclient.RoleSystem, Content: "Summarize the following in one short sentence."},
				{Role: aiclient.RoleUser, Content: content},
			},
			Mode:     aiclient.ModeText,
			MaxSteps: 1,
		}
		result, err := client.Complete(ctx, req)
		if err != nil {
			continue
		}
		total += result.Cost()
		if result.IsSuccess() && result.Content != "" {
			return result.Content, total
		}
	}
	return shortSummary(content), total
}

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9_.-]+`)

// selfCheckPasses implements spec.md §4.7.2 step 6: extract keywords and
// numeric tokens from check, search the latest tool output for any.
func selfCheckPasses(check, toolOutput string) bool {
	tokens := tokenPattern.FindAllString(check, -1)
	if len(tokens) == 0 {
		return true
	}
	lowerOutput := strings.ToLower(toolOutput)
	for _, tok := range tokens {
		if len(tok) < 2 {
			continue
		}
		if strings.Contains(lowerOutput, strings.ToLower(tok)) {
			return true
		}
	}
	return false
}

// runLearning implements spec.md §4.7.4: a learning prompt receiving the
// trace, node system prompt, current memory, and main workflow goal,
// returning either a learning step or an error (memory unchanged).
func runLearning(ctx context.Context, client aiclient.Client, nc *NodeContext, trace *models.Trace) (models.AgentStep, float64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "workflow_goal: %s\nmemory: %v\n", nc.WorkflowGoal, nc.Memory)
	for _, step := range trace.Steps {
		b.WriteString(summarizeStepForPrompt(step))
		b.WriteString("\n")
	}

	req := aiclient.Request{
		ModelID: nc.Node.ModelName,
		Messages: []aiclient.Message{
			{Role: aiclient.RoleSystem, Content: nc.Node.SystemPrompt + "\n\nPropose a memory update as key:value lines, or reply NONE."},
			{Role: aiclient.RoleUser, Content: b.String()},
		},
		Mode:     aiclient.ModeText,
		MaxSteps: 1,
	}
	result, err := client.Complete(ctx, req)
	if err != nil {
		return models.AgentStep{}, 0, err
	}
	if !result.IsSuccess() {
		return models.AgentStep{}, result.Cost(), fmt.Errorf("%s", result.ErrorMessage)
	}
	delta := parseMemoryDelta(result.Content)
	return models.NewLearningStep(delta), result.Cost(), nil
}

func parseMemoryDelta(content string) map[string]string {
	delta := map[string]string{}
	if strings.TrimSpace(content) == "" || strings.EqualFold(strings.TrimSpace(content), "NONE") {
		return delta
	}
	for _, line := range strings.Split(content, "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key != "" {
			delta[key] = val
		}
	}
	return delta
}
