package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// StepKind enumerates the fixed, closed set of trace step cases. AgentStep
// is a tagged variant keyed on Kind; every consumption site switches on Kind,
// never on the presence/absence of payload fields.
type StepKind string

const (
	StepPrepare   StepKind = "prepare"
	StepReasoning StepKind = "reasoning"
	StepPlan      StepKind = "plan"
	StepTool      StepKind = "tool"
	StepText      StepKind = "text"
	StepError     StepKind = "error"
	StepLearning  StepKind = "learning"
	StepTerminate StepKind = "terminate"
	StepDebug     StepKind = "debug"
)

// AgentStep is one entry in an AgentStepTrace. Only the fields relevant to
// Kind are populated; callers must switch on Kind before reading payload
// fields.
type AgentStep struct {
	Kind      StepKind  `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	// prepare
	ContextMessage string `json:"context_message,omitempty"`

	// reasoning
	Reasoning string `json:"reasoning,omitempty"`
	Plan      string `json:"plan,omitempty"`
	Check     string `json:"check,omitempty"`
	ExpectsMutation bool `json:"expects_mutation,omitempty"`

	// tool
	ToolName   string `json:"tool_name,omitempty"`
	ToolArgs   map[string]any `json:"tool_args,omitempty"`
	ToolReturn any    `json:"tool_return,omitempty"`
	Summary    string `json:"summary,omitempty"`

	// text / terminate
	Content string `json:"content,omitempty"`

	// error / learning
	Reason string            `json:"reason,omitempty"`
	Delta  map[string]string `json:"delta,omitempty"`

	// debug
	Debug string `json:"debug,omitempty"`
}

// NewPrepareStep, NewReasoningStep, ... construct a tagged AgentStep of the
// named kind with its timestamp stamped at call time.
func NewPrepareStep(contextMessage string) AgentStep {
	return AgentStep{Kind: StepPrepare, Timestamp: time.Now(), ContextMessage: contextMessage}
}

func NewReasoningStep(reasoning, plan, check string, expectsMutation bool) AgentStep {
	return AgentStep{
		Kind: StepReasoning, Timestamp: time.Now(),
		Reasoning: reasoning, Plan: plan, Check: check, ExpectsMutation: expectsMutation,
	}
}

func NewToolStep(name string, args map[string]any, ret any, summary string) AgentStep {
	return AgentStep{
		Kind: StepTool, Timestamp: time.Now(),
		ToolName: name, ToolArgs: args, ToolReturn: ret, Summary: summary,
	}
}

func NewTextStep(content string) AgentStep {
	return AgentStep{Kind: StepText, Timestamp: time.Now(), Content: content}
}

func NewErrorStep(reason string) AgentStep {
	return AgentStep{Kind: StepError, Timestamp: time.Now(), Reason: reason}
}

func NewLearningStep(delta map[string]string) AgentStep {
	return AgentStep{Kind: StepLearning, Timestamp: time.Now(), Delta: delta}
}

func NewTerminateStep(content, summary string) AgentStep {
	return AgentStep{Kind: StepTerminate, Timestamp: time.Now(), Content: content, Summary: summary}
}

func NewDebugStep(debug string) AgentStep {
	return AgentStep{Kind: StepDebug, Timestamp: time.Now(), Debug: debug}
}

// Trace is an append-only, ordered list of AgentSteps produced during one
// node invocation. The zero value is a usable empty trace.
type Trace struct {
	Steps []AgentStep `json:"steps"`
}

// MaxTraceSteps bounds the serialized size of a trace; beyond this, older
// non-terminal steps are collapsed, mirroring the teacher's MaxTotalMemory
// handling in ExecutionState.
const MaxTraceSteps = 200

// Append adds a step to the trace. It refuses to append after a terminate
// step has already been recorded, since terminate must be the last step.
func (t *Trace) Append(step AgentStep) error {
	if t.hasTerminate() {
		return fmt.Errorf("trace: cannot append %s after terminate", step.Kind)
	}
	t.Steps = append(t.Steps, step)
	return nil
}

func (t *Trace) hasTerminate() bool {
	for _, s := range t.Steps {
		if s.Kind == StepTerminate {
			return true
		}
	}
	return false
}

// Finalize validates that the trace carries exactly one terminate step and
// that it is the last step. Called once by InvocationPipeline before the
// trace is frozen and handed to persistence.
func (t *Trace) Finalize() error {
	count := 0
	for i, s := range t.Steps {
		if s.Kind == StepTerminate {
			count++
			if i != len(t.Steps)-1 {
				return fmt.Errorf("trace: terminate step must be last, found at index %d of %d", i, len(t.Steps))
			}
		}
	}
	if count != 1 {
		return fmt.Errorf("trace: expected exactly one terminate step, found %d", count)
	}
	return nil
}

// ToolStepCount returns the number of tool steps recorded, used to enforce
// the "tool steps <= effective_max_steps" invariant.
func (t *Trace) ToolStepCount() int {
	n := 0
	for _, s := range t.Steps {
		if s.Kind == StepTool {
			n++
		}
	}
	return n
}

// LastText returns the content of the last text step, or "" if none.
func (t *Trace) LastText() string {
	for i := len(t.Steps) - 1; i >= 0; i-- {
		if t.Steps[i].Kind == StepText {
			return t.Steps[i].Content
		}
	}
	return ""
}

// Terminate returns the trace's terminate step, if present.
func (t *Trace) Terminate() (AgentStep, bool) {
	for _, s := range t.Steps {
		if s.Kind == StepTerminate {
			return s, true
		}
	}
	return AgentStep{}, false
}

// Collapse summarizes older non-terminal steps once the trace exceeds n
// steps, replacing the oldest run with a single debug step carrying a
// one-line summary. The terminate step, if present, is never collapsed.
func (t *Trace) Collapse(n int) {
	if len(t.Steps) <= n {
		return
	}
	keep := n - 1 // leave room for the summary step
	if keep < 0 {
		keep = 0
	}
	drop := len(t.Steps) - keep
	if drop <= 0 {
		return
	}
	collapsed := t.Steps[:drop]
	summary := fmt.Sprintf("collapsed %d earlier steps", len(collapsed))
	rest := t.Steps[drop:]
	t.Steps = append([]AgentStep{NewDebugStep(summary)}, rest...)
}

// MarshalJSON and UnmarshalJSON round-trip through the Steps slice directly
// so Trace serializes as a plain JSON array, matching the PersistenceError
// expectation that a trace round-trips byte-for-byte through JSON.
func (t Trace) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Steps)
}

func (t *Trace) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Steps = nil
		return nil
	}
	return json.Unmarshal(data, &t.Steps)
}
