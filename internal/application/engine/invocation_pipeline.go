// Package engine implements the Node Invocation Pipeline, StrategySelector,
// HandoffResolver, and WorkflowExecutor (spec.md §4.6-4.9). Grounded on the
// teacher's internal/application/engine/node_executor.go (single-node
// execution lifecycle: build context, execute, collect result, notify
// observers) and pkg/executor/builtin/llm.go (tool-calling loop shape),
// generalized from "one executor call per node" to a bounded, strategy-
// selected round loop.
package engine

import (
	"fmt"

	"context"

	"github.com/meshagent/meshagent/pkg/aiclient"
	"github.com/meshagent/meshagent/pkg/models"
)

// InvocationPipeline runs the prepare/execute/process lifecycle for one
// node invocation (spec.md §4.7). Each phase is idempotent within one
// pipeline instance: run can be called exactly once per NodeContext, since
// prepare mutates nothing but execute/process build up trace state owned
// by this call.
type InvocationPipeline struct {
	client   aiclient.Client
	selector *StrategySelector
	handoffs *HandoffResolver
}

// NewInvocationPipeline constructs a pipeline bound to one AIClient.
// selector and handoffs may share the same underlying client.
func NewInvocationPipeline(client aiclient.Client, selector *StrategySelector, handoffs *HandoffResolver) *InvocationPipeline {
	return &InvocationPipeline{client: client, selector: selector, handoffs: handoffs}
}

// Run drives nc through prepare, execute, and process, returning a
// NodeInvocationResult. On internal exception during execute, the pipeline
// catches and transforms it into an error result carrying the partially
// built trace; it never re-throws to the caller (spec.md §4.7.3, §9
// "Exceptions for control flow").
func (p *InvocationPipeline) Run(ctx context.Context, nc *NodeContext, cancel *cancelState) (res NodeInvocationResult) {
	trace := &models.Trace{}

	defer func() {
		if r := recover(); r != nil {
			res = p.errorResult(trace, fmt.Sprintf("panic during node invocation: %v", r))
		}
	}()

	// Prepare (spec.md §4.7.1): tools are already resolved into nc.Tools by
	// the caller (WorkflowExecutor), which owns ToolRegistry.Resolve since
	// that call needs the PersistencePort-derived ExecutionContext this
	// package does not construct.
	strat := selectStrategy(nc, p.selector)

	cost, err := strat.run(ctx, p.client, nc, trace, cancel)
	if err != nil {
		return p.errorResultWithCost(trace, err.Error(), cost)
	}

	if err := trace.Finalize(); err != nil {
		// End-of-loop fallback (spec.md §4.7.2): the loop exited without an
		// explicit terminate; synthesize one exactly as the terminate branch
		// would, from the last text step if any.
		content := trace.LastText()
		_ = trace.Append(models.NewTerminateStep(content, shortSummary(content)))
		if finalizeErr := trace.Finalize(); finalizeErr != nil {
			return p.errorResultWithCost(trace, finalizeErr.Error(), cost)
		}
	}

	if len(trace.Steps) > models.MaxTraceSteps {
		trace.Collapse(models.MaxTraceSteps)
	}

	return p.process(ctx, nc, trace, cost)
}

// process implements spec.md §4.7.3.
func (p *InvocationPipeline) process(ctx context.Context, nc *NodeContext, trace *models.Trace, accumulatedCost float64) NodeInvocationResult {
	terminate, _ := trace.Terminate()
	finalOutput := terminate.Content
	if finalOutput == "" {
		finalOutput = trace.LastText()
	}

	handoff, err := p.handoffs.Resolve(ctx, nc.Node, finalOutput, nc.Options.HandoffContentMode)
	if err != nil {
		return NodeInvocationResult{
			FinalOutput:     finalOutput,
			SummaryWithInfo: nc.NodeID + ": " + terminate.Summary,
			USDCost:         accumulatedCost,
			Trace:           *trace,
			Error:           err.Error(),
		}
	}
	accumulatedCost += handoff.USDCost

	var updatedMemory map[string]string
	for _, step := range trace.Steps {
		if step.Kind == models.StepLearning {
			updatedMemory = mergeMemory(nc.Memory, step.Delta)
		}
	}

	var debugPrompts []string
	for _, step := range trace.Steps {
		if step.Kind == models.StepReasoning {
			debugPrompts = append(debugPrompts, step.Reasoning)
		}
	}

	return NodeInvocationResult{
		FinalOutput:     finalOutput,
		SummaryWithInfo: nc.NodeID + ": " + terminate.Summary,
		Handoff:         handoff,
		USDCost:         accumulatedCost,
		Trace:           *trace,
		UpdatedMemory:   updatedMemory,
		DebugPrompts:    debugPrompts,
	}
}

func (p *InvocationPipeline) errorResult(trace *models.Trace, reason string) NodeInvocationResult {
	return p.errorResultWithCost(trace, reason, 0)
}

func (p *InvocationPipeline) errorResultWithCost(trace *models.Trace, reason string, cost float64) NodeInvocationResult {
	if _, ok := trace.Terminate(); !ok {
		_ = trace.Append(models.NewErrorStep(reason))
		_ = trace.Append(models.NewTerminateStep("", "failed: "+reason))
	}
	return NodeInvocationResult{
		USDCost: cost,
		Trace:   *trace,
		Error:   reason,
	}
}

func mergeMemory(current map[string]string, delta map[string]string) map[string]string {
	merged := make(map[string]string, len(current)+len(delta))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range delta {
		merged[k] = v
	}
	return merged
}
