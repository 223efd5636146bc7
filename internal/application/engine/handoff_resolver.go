package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"

	"github.com/meshagent/meshagent/pkg/aiclient"
	"github.com/meshagent/meshagent/pkg/models"
)

// HandoffResolver implements spec.md §4.8: given a node's declared
// hand_offs, its hand_off_type, and its final output, decides which
// downstream node(s) receive the output. Parallel fan-out is modeled after
// the teacher's dag_executor.go executeWave goroutine/WaitGroup pattern,
// generalized from "every node in a wave" to "every target of one parallel
// handoff"; conditional routing reuses condition_cache.go's compiled
// expr-lang/expr program cache instead of asking the AI, when the node
// declares a HandoffExpr.
type HandoffResolver struct {
	client    aiclient.Client
	exprCache *ConditionCache
}

// NewHandoffResolver constructs a HandoffResolver bound to client.
func NewHandoffResolver(client aiclient.Client) *HandoffResolver {
	return &HandoffResolver{client: client, exprCache: NewConditionCache(100)}
}

// Resolve implements spec.md §4.8's three cases. The reply "kind" used for
// a parallel handoff's outgoing Messages (sequential vs delegation) is a
// workflow-wide coordination setting the caller applies when mapping
// ReplyPayloads onto Messages; this resolver only decides targets and
// content.
func (h *HandoffResolver) Resolve(ctx context.Context, node models.WorkflowNodeConfig, finalOutput string, contentMode string) (HandoffDecision, error) {
	if isParallel(node) {
		return h.resolveParallel(node, finalOutput, contentMode), nil
	}
	return h.resolveSequentialOrConditional(ctx, node, finalOutput, contentMode)
}

// isParallel implements spec.md §4.8 "Parallel: iff hand_off_type ==
// parallel, len(hand_offs) > 1, and 'end' not in hand_offs."
func isParallel(node models.WorkflowNodeConfig) bool {
	if node.HandOffType != models.HandOffParallel || len(node.HandOffs) <= 1 {
		return false
	}
	for _, h := range node.HandOffs {
		if h == "end" {
			return false
		}
	}
	return true
}

func (h *HandoffResolver) resolveParallel(node models.WorkflowNodeConfig, finalOutput, contentMode string) HandoffDecision {
	payload := applyContentMode(finalOutput, contentMode)
	payloads := make(map[string]string, len(node.HandOffs))
	for _, target := range node.HandOffs {
		payloads[target] = payload
	}
	return HandoffDecision{NextIDs: append([]string(nil), node.HandOffs...), ReplyPayloads: payloads}
}

func (h *HandoffResolver) resolveSequentialOrConditional(ctx context.Context, node models.WorkflowNodeConfig, finalOutput, contentMode string) (HandoffDecision, error) {
	if node.HandOffType == models.HandOffConditional && node.HandoffExpr != "" {
		return h.resolveByExpr(node, finalOutput, contentMode)
	}
	return h.resolveByAI(ctx, node, finalOutput, contentMode)
}

func (h *HandoffResolver) resolveByExpr(node models.WorkflowNodeConfig, finalOutput, contentMode string) (HandoffDecision, error) {
	program, ok := h.exprCache.Get(node.HandoffExpr)
	if !ok {
		compiled, err := expr.Compile(node.HandoffExpr, expr.Env(map[string]any{"output": finalOutput}))
		if err != nil {
			return fallbackDecision(node, finalOutput, contentMode), nil
		}
		h.exprCache.Put(node.HandoffExpr, compiled)
		program = compiled
	}
	out, err := expr.Run(program, map[string]any{"output": finalOutput})
	if err != nil {
		return fallbackDecision(node, finalOutput, contentMode), nil
	}
	pick, _ := out.(string)
	if !containsStr(node.HandOffs, pick) {
		return fallbackDecision(node, finalOutput, contentMode), nil
	}
	return singleTargetDecision(pick, finalOutput, contentMode), nil
}

// resolveByAI implements spec.md §4.8: "asks the AI to pick one of the
// declared successors (inclusive of 'end') ... must be validated to be a
// member of hand_offs; otherwise the resolver falls back to the first
// declared successor."
func (h *HandoffResolver) resolveByAI(ctx context.Context, node models.WorkflowNodeConfig, finalOutput, contentMode string) (HandoffDecision, error) {
	req := aiclient.Request{
		ModelID: node.ModelName,
		Messages: []aiclient.Message{
			{Role: aiclient.RoleSystem, Content: node.SystemPrompt + "\n\nReply with exactly one of: " + joinComma(node.HandOffs)},
			{Role: aiclient.RoleUser, Content: finalOutput},
		},
		Mode:     aiclient.ModeText,
		MaxSteps: 1,
	}
	result, err := h.client.Complete(ctx, req)
	if err != nil {
		return HandoffDecision{}, err
	}
	cost := result.Cost()
	if !result.IsSuccess() {
		d := fallbackDecision(node, finalOutput, contentMode)
		d.USDCost = cost
		return d, nil
	}
	pick := trimToFirstLine(result.Content)
	if !containsStr(node.HandOffs, pick) {
		d := fallbackDecision(node, finalOutput, contentMode)
		d.USDCost = cost
		return d, nil
	}
	d := singleTargetDecision(pick, finalOutput, contentMode)
	d.USDCost = cost
	return d, nil
}

func fallbackDecision(node models.WorkflowNodeConfig, finalOutput, contentMode string) HandoffDecision {
	return singleTargetDecision(node.HandOffs[0], finalOutput, contentMode)
}

func singleTargetDecision(target, finalOutput, contentMode string) HandoffDecision {
	return HandoffDecision{
		NextIDs:       []string{target},
		ReplyPayloads: map[string]string{target: applyContentMode(finalOutput, contentMode)},
	}
}

// applyContentMode implements the handoff_content_mode config option:
// full passes the output through verbatim, truncated clips to 500 chars.
func applyContentMode(content, mode string) string {
	if mode == "truncated" || mode == "truncated_to_500_chars" {
		const max = 500
		if len(content) > max {
			return content[:max]
		}
	}
	return content
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

func trimToFirstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}

// executeParallelHandoff runs fn once per target concurrently, mirroring
// dag_executor.go's executeWave goroutine-per-branch + sync.WaitGroup +
// buffered error channel, generalized from "all nodes in a wave" to "all
// targets of one parallel handoff". All branches share the same
// cancellation token and SpendingTracker counter per spec.md §5.
func executeParallelHandoff(ctx context.Context, targets []string, fn func(ctx context.Context, target string) error) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(targets))

	for _, target := range targets {
		wg.Add(1)
		go func(t string) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				errs <- fmt.Errorf("handoff to %s cancelled: %w", t, ctx.Err())
				return
			default:
			}
			if err := fn(ctx, t); err != nil {
				errs <- fmt.Errorf("handoff to %s: %w", t, err)
			}
		}(target)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
