package engine

import (
	"context"
	"sync"
	"time"

	"github.com/meshagent/meshagent/pkg/models"
	"github.com/meshagent/meshagent/pkg/spending"
)

// EngineOptions configures a WorkflowExecutor run, generalized from the
// teacher's ExecutionOptions: parallelism/timeouts survive, template
// resolution and DAG-wave knobs do not since handoffs are chosen at
// runtime rather than precomputed.
type EngineOptions struct {
	MaxParallelism           int
	WallClock                time.Duration
	NodeTimeout              time.Duration
	RetryPolicy              *RetryPolicy
	MaxNodesPerInvocation    int
	MultiStepEnabled         bool
	MultiStepStrategy        string // "v2" | "v3"
	MultiStepMaxRoundsDefault int
	SingleCallMaxStepsDefault int
	SpendingCapUSD           float64
	HandoffContentMode       string // "full" | "truncated"
	CoordinationType         string // "sequential" | "delegation"
	StaleCleanupGrace        time.Duration
	ToolGraceWindow          time.Duration
}

// DefaultEngineOptions mirrors spec.md §6 defaults.
func DefaultEngineOptions() *EngineOptions {
	return &EngineOptions{
		MaxParallelism:            10,
		WallClock:                 5 * time.Minute,
		NodeTimeout:               1 * time.Minute,
		RetryPolicy:               DefaultRetryPolicy(),
		MaxNodesPerInvocation:     64,
		MultiStepEnabled:          true,
		MultiStepStrategy:         "v3",
		MultiStepMaxRoundsDefault: 6,
		SingleCallMaxStepsDefault: 1,
		HandoffContentMode:        "full",
		CoordinationType:          "sequential",
		StaleCleanupGrace:         10 * time.Minute,
		ToolGraceWindow:           2 * time.Second,
	}
}

// NodeContext carries everything a node invocation needs to build its
// identity prompt (spec.md §4.6): the node's own config, the workflow's
// goal, its current memory snapshot, and the payload routed to it.
type NodeContext struct {
	InvocationID   string
	NodeID         string
	Node           models.WorkflowNodeConfig
	WorkflowGoal   string
	Memory         map[string]string
	IncomingText   string
	Files          []string
	Tools          ToolBindings
	Options        *EngineOptions
	SpendingBudget SpendingChecker
}

// ToolBindings is the resolved, per-invocation set of tools a node may
// call, keyed by name. Kept as an interface{} at this layer to avoid an
// import cycle with pkg/toolregistry; concrete wiring happens in
// cmd/server where ToolRegistry.Resolve's result is adapted into this
// shape.
type ToolBindings interface {
	Names() []string
	Schema(name string) map[string]any
	Call(ctx context.Context, name string, args map[string]any) (any, error)
}

// SpendingChecker is the narrow slice of spending.Tracker the pipeline
// consults before issuing an AI or tool call (spec.md §4.4 enforcement
// points).
type SpendingChecker interface {
	Check(invocationID string) spending.Status
	AddCost(invocationID string, usd float64)
}

// HandoffDecision is HandoffResolver's output (spec.md §4.8).
type HandoffDecision struct {
	NextIDs       []string
	ReplyPayloads map[string]string // next node id -> payload text
	USDCost       float64
}

// NodeInvocationResult is InvocationPipeline.Process's output (spec.md
// §4.7.3).
type NodeInvocationResult struct {
	FinalOutput     string
	SummaryWithInfo string
	Handoff         HandoffDecision
	USDCost         float64
	Trace           models.Trace
	UpdatedMemory   map[string]string
	DebugPrompts    []string
	Error           string
}

// cancelState is the minimal cancellation-token shape WorkflowExecutor
// and the pipeline both consult at every suspension point (spec.md §5).
type cancelState struct {
	mu     sync.RWMutex
	reason string
	fired  bool
}

func newCancelState() *cancelState { return &cancelState{} }

func (c *cancelState) Fire(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fired {
		c.fired = true
		c.reason = reason
	}
}

func (c *cancelState) Fired() (bool, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fired, c.reason
}

// checkCancelled returns a non-nil error wrapping models.ErrCancelled if
// ctx is done or the token has fired, observed at every suspension point
// per spec.md §5.
func checkCancelled(ctx context.Context, c *cancelState) error {
	select {
	case <-ctx.Done():
		return models.ErrCancelled
	default:
	}
	if fired, _ := c.Fired(); fired {
		return models.ErrCancelled
	}
	return nil
}
