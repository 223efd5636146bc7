package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meshagent/meshagent/pkg/aiclient"
	"github.com/meshagent/meshagent/pkg/models"
	"github.com/meshagent/meshagent/pkg/schemavalidate"
)

// DecisionKind tags StrategySelector's output (spec.md §4.6).
type DecisionKind string

const (
	DecisionTerminate DecisionKind = "terminate"
	DecisionCallTool  DecisionKind = "call_tool"
	DecisionError     DecisionKind = "error"
)

// Decision is StrategySelector.Select's tagged result. Only the fields
// relevant to Kind are populated.
type Decision struct {
	Kind DecisionKind

	// Terminate / Error
	Reasoning string
	USDCost   float64

	// CallTool
	ToolName        string
	Plan            string
	Check           string
	ExpectsMutation bool

	// Auditability
	DebugPrompt string
}

// decisionSchema is the fixed JSON schema the selector forces the model's
// response into, following the teacher's response_format JSON-schema
// handling in pkg/executor/builtin/llm.go, generalized from "tool call
// arguments" to "which of three fixed actions to take next".
var decisionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"kind":             map[string]any{"type": "string", "enum": []string{"terminate", "call_tool", "error"}},
		"reasoning":        map[string]any{"type": "string"},
		"tool_name":        map[string]any{"type": "string"},
		"plan":             map[string]any{"type": "string"},
		"check":            map[string]any{"type": "string"},
		"expects_mutation": map[string]any{"type": "boolean"},
	},
	"required": []string{"kind", "reasoning"},
}

// StrategySelector asks the AI which next action a multi-step node
// invocation should take (spec.md §4.6).
type StrategySelector struct {
	client aiclient.Client
}

// NewStrategySelector constructs a StrategySelector bound to client.
func NewStrategySelector(client aiclient.Client) *StrategySelector {
	return &StrategySelector{client: client}
}

// Select builds the identity prompt (node system prompt, workflow goal,
// node id, current memory), the trace-so-far as structured text, and the
// available tool schemas, then asks the model to pick one of
// Terminate | CallTool | Error.
//
// The contract from spec.md §4.6 is enforced here, not left to the model:
// when roundsLeft == 1 the selector forces Terminate regardless of what the
// model returned, and a CallTool naming an undeclared tool is downgraded to
// Error rather than trusted.
func (s *StrategySelector) Select(ctx context.Context, nc *NodeContext, trace *models.Trace, roundsLeft int) (Decision, error) {
	if roundsLeft <= 1 {
		return s.forceTerminate(ctx, nc, trace)
	}

	prompt := s.identityPrompt(nc, trace, roundsLeft)
	req := aiclient.Request{
		ModelID: nc.Node.ModelName,
		Messages: []aiclient.Message{
			{Role: aiclient.RoleSystem, Content: nc.Node.SystemPrompt},
			{Role: aiclient.RoleUser, Content: prompt},
		},
		Mode: aiclient.ModeText,
		Tools: []aiclient.ToolSchema{
			{Name: "decide", Description: "Choose the next action", Parameters: decisionSchema},
		},
		ToolChoice: aiclient.ToolChoice{Policy: aiclient.ToolChoiceNamed, Tool: "decide"},
		MaxSteps:   1,
	}

	result, err := s.client.Complete(ctx, req)
	if err != nil {
		return Decision{}, err
	}
	if !result.IsSuccess() {
		return Decision{Kind: DecisionError, Reasoning: result.ErrorMessage, USDCost: result.Cost(), DebugPrompt: prompt}, nil
	}

	d, parseErr := parseDecision(result, nc.Tools.Names())
	d.USDCost = result.Cost()
	d.DebugPrompt = prompt
	if parseErr != nil {
		d.Kind = DecisionError
		d.Reasoning = parseErr.Error()
	}
	return d, nil
}

func (s *StrategySelector) forceTerminate(ctx context.Context, nc *NodeContext, trace *models.Trace) (Decision, error) {
	_ = ctx
	return Decision{Kind: DecisionTerminate, Reasoning: "rounds_left == 1: terminate required", DebugPrompt: s.identityPrompt(nc, trace, 1)}, nil
}

func (s *StrategySelector) identityPrompt(nc *NodeContext, trace *models.Trace, roundsLeft int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "node_id: %s\n", nc.NodeID)
	fmt.Fprintf(&b, "workflow_goal: %s\n", nc.WorkflowGoal)
	fmt.Fprintf(&b, "memory: %v\n", nc.Memory)
	fmt.Fprintf(&b, "rounds_left: %d\n", roundsLeft)
	b.WriteString("available_tools: ")
	b.WriteString(strings.Join(nc.Tools.Names(), ", "))
	b.WriteString("\ntrace_so_far:\n")
	for _, step := range trace.Steps {
		fmt.Fprintf(&b, "- %s\n", summarizeStepForPrompt(step))
	}
	return b.String()
}

func summarizeStepForPrompt(step models.AgentStep) string {
	switch step.Kind {
	case models.StepReasoning:
		return fmt.Sprintf("reasoning: %s (plan=%s)", step.Reasoning, step.Plan)
	case models.StepTool:
		return fmt.Sprintf("tool %s -> %s", step.ToolName, step.Summary)
	case models.StepText:
		return fmt.Sprintf("text: %s", step.Content)
	case models.StepError:
		return fmt.Sprintf("error: %s", step.Reason)
	default:
		return string(step.Kind)
	}
}

func parseDecision(result *aiclient.Result, available []string) (Decision, error) {
	var raw map[string]any
	source := result.Content
	if len(result.ToolCalls) > 0 {
		data, _ := json.Marshal(result.ToolCalls[0].Arguments)
		source = string(data)
	}
	if err := json.Unmarshal([]byte(source), &raw); err != nil {
		return Decision{}, fmt.Errorf("strategy_selector: decoding decision: %w", err)
	}
	if err := schemavalidate.Against(decisionSchema, raw); err != nil {
		return Decision{}, fmt.Errorf("strategy_selector: decision failed schema validation: %w", err)
	}

	kind, _ := raw["kind"].(string)
	d := Decision{
		Kind:      DecisionKind(kind),
		Reasoning: asStr(raw["reasoning"]),
		ToolName:  asStr(raw["tool_name"]),
		Plan:      asStr(raw["plan"]),
		Check:     asStr(raw["check"]),
	}
	if em, ok := raw["expects_mutation"].(bool); ok {
		d.ExpectsMutation = em
	}

	switch d.Kind {
	case DecisionTerminate, DecisionError:
		return d, nil
	case DecisionCallTool:
		if !containsStr(available, d.ToolName) {
			return Decision{}, fmt.Errorf("strategy_selector: tool %q is not among available tools", d.ToolName)
		}
		return d, nil
	default:
		return Decision{}, fmt.Errorf("strategy_selector: unrecognized decision kind %q", kind)
	}
}

func asStr(v any) string {
	s, _ := v.(string)
	return s
}

func containsStr(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}
