// Package aiclient defines the narrow AIClient port (spec.md §4.3): a
// single Complete call in text or tool mode, returning content, tool
// calls, token usage, and USD cost as a tagged success/failure result.
// Concrete providers (openai, anthropic, gemini) live in subpackages and
// are wired behind this interface; the core never imports a provider SDK
// directly.
package aiclient

import "context"

// Role is the role of one message in a Request's conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Mode selects whether the model must answer in plain text or may/must
// call a tool.
type Mode string

const (
	ModeText Mode = "text"
	ModeTool Mode = "tool"
)

// ToolChoicePolicy selects how strongly the model is steered toward
// calling a tool.
type ToolChoicePolicy string

const (
	ToolChoiceAuto     ToolChoicePolicy = "auto"
	ToolChoiceRequired ToolChoicePolicy = "required"
	ToolChoiceNamed    ToolChoicePolicy = "named"
)

// ToolChoice is a tagged selection: Policy selects the case, Tool is only
// meaningful when Policy == ToolChoiceNamed.
type ToolChoice struct {
	Policy ToolChoicePolicy
	Tool   string
}

// Message is one turn in the conversation sent to Complete.
type Message struct {
	Role       Role
	Content    string
	ToolCallID string // set on Role == RoleTool: which call this responds to
	Name       string // tool name, set on Role == RoleTool
}

// ToolSchema describes one callable tool the model may choose among.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// Request is the full input to one Complete call.
type Request struct {
	ModelID     string
	Messages    []Message
	Mode        Mode
	Tools       []ToolSchema
	ToolChoice  ToolChoice
	MaxSteps    int
	Repair      bool
	SaveOutputs bool
}

// ToolCall is one tool invocation the model asked for.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Usage carries raw token accounting from the provider.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ResultKind tags which case of Result is populated. Callers must switch on
// Kind; Result has no open interface.
type ResultKind string

const (
	ResultSuccess ResultKind = "success"
	ResultFailure ResultKind = "failure"
)

// Result is the tagged outcome of one Complete call. The client never
// returns a Go error for model-level failure (refusals, bad tool-call JSON,
// rate limits the provider itself reports) — those surface as a Failure
// result, still carrying whatever cost was incurred. A returned Go error
// means the provider connection itself could not be reached or the request
// was malformed; the caller cannot recover from that locally.
type Result struct {
	Kind ResultKind

	// Success fields.
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	UsageTokens  Usage
	USDCost      float64

	// Failure fields.
	ErrorMessage string
	DebugOutput  string
	USDCostSoFar float64
}

// IsSuccess reports whether Kind == ResultSuccess.
func (r *Result) IsSuccess() bool { return r != nil && r.Kind == ResultSuccess }

// Cost returns the USD cost regardless of outcome, since cost is always
// reported per spec.md §4.3 "Cost is always reported, including on failure."
func (r *Result) Cost() float64 {
	if r == nil {
		return 0
	}
	if r.Kind == ResultSuccess {
		return r.USDCost
	}
	return r.USDCostSoFar
}

// NewSuccess constructs a ResultSuccess.
func NewSuccess(content string, toolCalls []ToolCall, finishReason string, usage Usage, cost float64) *Result {
	return &Result{
		Kind:         ResultSuccess,
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: finishReason,
		UsageTokens:  usage,
		USDCost:      cost,
	}
}

// NewFailure constructs a ResultFailure.
func NewFailure(message, debug string, costSoFar float64) *Result {
	return &Result{
		Kind:         ResultFailure,
		ErrorMessage: message,
		DebugOutput:  debug,
		USDCostSoFar: costSoFar,
	}
}

// Client is the single-method AIClient port (spec.md §4.3). Implementations
// must never panic or return a Go error for model-level failures; only
// provider-connectivity faults the caller cannot recover from propagate as
// an error.
type Client interface {
	Complete(ctx context.Context, req Request) (*Result, error)
}
