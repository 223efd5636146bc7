package engine

import (
	"context"

	"github.com/meshagent/meshagent/pkg/aiclient"
	"github.com/meshagent/meshagent/pkg/models"
)

// strategy is the shared interface every execution strategy implements,
// generalized from the teacher's NodeExecutor.Execute dispatch-by-node-type
// (internal/application/engine/node_executor.go) to dispatch-by-execution-
// strategy: every node in this domain is an agent, so the axis of variation
// is *how* the agent is driven, not *what kind* of node it is.
type strategy interface {
	// run drives nc to completion, appending steps to trace and returning
	// the accumulated usd cost. It never panics and never returns an error
	// for model/tool-level failures — those become trace `error` steps —
	// only for context cancellation or a programming invariant violation.
	run(ctx context.Context, client aiclient.Client, nc *NodeContext, trace *models.Trace, cancel *cancelState) (float64, error)
}

// selectStrategy implements spec.md §4.7.1 step 3.
func selectStrategy(nc *NodeContext, sel *StrategySelector) strategy {
	cfg := nc.Node
	switch {
	case cfg.UseDirectSDK:
		return &directSDKStrategy{}
	case nc.Options.MultiStepEnabled && len(nc.Tools.Names()) > 0:
		if nc.Options.MultiStepStrategy == "v2" {
			return &multiStepStrategy{selector: sel, v3: false}
		}
		return &multiStepStrategy{selector: sel, v3: true}
	default:
		return &singleCallStrategy{}
	}
}

// initialToolChoice implements spec.md §4.7.1 step 4.
func initialToolChoice(nc *NodeContext) aiclient.ToolChoice {
	if len(nc.Tools.Names()) == 1 {
		return aiclient.ToolChoice{Policy: aiclient.ToolChoiceRequired}
	}
	return aiclient.ToolChoice{Policy: aiclient.ToolChoiceAuto}
}
