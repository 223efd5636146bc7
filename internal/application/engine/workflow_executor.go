package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meshagent/meshagent/internal/application/observer"
	"github.com/meshagent/meshagent/internal/domain/repository"
	"github.com/meshagent/meshagent/pkg/aiclient"
	"github.com/meshagent/meshagent/pkg/models"
	"github.com/meshagent/meshagent/pkg/toolregistry"
)

// WorkflowExecutor drives a single WorkflowInvocation (spec.md §4.9),
// replacing the teacher's static-DAG DAGExecutor (topological waves,
// internal/application/engine/dag_executor.go) with a message-driven
// executor: a FIFO queue of Messages plus cooperative scheduling, since
// handoffs here are chosen at runtime by agents/AI rather than fixed by a
// precomputed DAG. Keeps the teacher's per-node timeout wrapping and
// ObserverManager notification calls at the same lifecycle points.
type WorkflowExecutor struct {
	port     repository.PersistencePort
	tools    *toolregistry.Registry
	spending SpendingChecker
	obs      *observer.ObserverManager

	selector *StrategySelector
	handoffs *HandoffResolver
	pipeline *InvocationPipeline
	client   aiclient.Client

	opts *EngineOptions
	runs *runManager
}

// NewWorkflowExecutor wires the InvocationPipeline, StrategySelector, and
// HandoffResolver against one AIClient, one PersistencePort, and one
// ToolRegistry.
func NewWorkflowExecutor(port repository.PersistencePort, tools *toolregistry.Registry, spending SpendingChecker, obs *observer.ObserverManager, client aiclient.Client, opts *EngineOptions) *WorkflowExecutor {
	if opts == nil {
		opts = DefaultEngineOptions()
	}
	selector := NewStrategySelector(client)
	handoffs := NewHandoffResolver(client)
	return &WorkflowExecutor{
		port:     port,
		tools:    tools,
		spending: spending,
		obs:      obs,
		selector: selector,
		handoffs: handoffs,
		pipeline: NewInvocationPipeline(client, selector, handoffs),
		client:   client,
		opts:     opts,
		runs:     newRunManager(),
	}
}

// RunWorkflow starts versionID executing in the background and returns its
// invocation id immediately, per spec.md §6 "run_workflow(...) -> invocation
// id (async handle)".
func (w *WorkflowExecutor) RunWorkflow(ctx context.Context, versionID string, input map[string]any, mainGoal string) (string, error) {
	version, err := w.port.GetWorkflowVersion(ctx, versionID)
	if err != nil {
		return "", err
	}
	if _, ok := version.DSL.Nodes[version.DSL.EntryNodeID]; !ok {
		return "", models.ErrNodeNotFound
	}

	invocationID := uuid.NewString()
	w.runs.start(invocationID)

	go func() {
		bg := context.Background()
		inv, runErr := w.execute(bg, invocationID, version, input, mainGoal)
		w.runs.finish(invocationID, inv, runErr)
	}()

	return invocationID, nil
}

// AwaitInvocation blocks until invocationID reaches a terminal state,
// returning the final WorkflowInvocation row.
func (w *WorkflowExecutor) AwaitInvocation(ctx context.Context, invocationID string) (*models.WorkflowInvocation, error) {
	return w.runs.await(ctx, invocationID)
}

// Execute runs versionID to completion synchronously, returning the final
// WorkflowInvocation row. Used directly by the CLI's `run` subcommand and
// by tests that want to observe the result inline rather than polling.
func (w *WorkflowExecutor) Execute(ctx context.Context, versionID string, input map[string]any, mainGoal string) (*models.WorkflowInvocation, error) {
	version, err := w.port.GetWorkflowVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return w.execute(ctx, uuid.NewString(), version, input, mainGoal)
}

func (w *WorkflowExecutor) execute(ctx context.Context, invocationID string, version *models.WorkflowVersion, input map[string]any, mainGoal string) (*models.WorkflowInvocation, error) {
	inv := &models.WorkflowInvocation{
		InvocationID: invocationID,
		VersionID:    version.VersionID,
		Status:       models.InvocationRunning,
		StartTime:    time.Now(),
		WorkflowInput: input,
	}
	if err := w.port.CreateWorkflowInvocation(ctx, inv); err != nil {
		return nil, err
	}

	cancel := newCancelState()
	deadline := ctx
	if w.opts.WallClock > 0 {
		var cancelFunc context.CancelFunc
		deadline, cancelFunc = context.WithTimeout(ctx, w.opts.WallClock)
		defer cancelFunc()
	}

	entry := version.DSL.EntryNodeID
	seed := &models.Message{
		MsgID:        uuid.NewString(),
		InvocationID: inv.InvocationID,
		ToNodeID:     &entry,
		Seq:          1,
		Role:         models.MessageRoleSequential,
		Payload:      map[string]any{"text": renderInput(input)},
		CreatedAt:    time.Now(),
	}
	if err := w.port.SaveMessage(deadline, seed); err != nil {
		return w.fail(ctx, inv, "persisting seed message: "+err.Error())
	}

	queue := []*models.Message{seed}
	nextSeq := int64(2)
	var outputs []string
	nodesRun := 0

	for len(queue) > 0 {
		if err := checkCancelled(deadline, cancel); err != nil {
			return w.fail(ctx, inv, "cancelled")
		}

		current := queue[0]
		queue = queue[1:]

		if current.ToNodeID == nil || *current.ToNodeID == "end" {
			outputs = append(outputs, payloadText(current.Payload))
			continue
		}
		targetNodeID := *current.ToNodeID

		nodesRun++
		if nodesRun > w.opts.MaxNodesPerInvocation {
			return w.fail(ctx, inv, models.ErrStepBudgetExhausted.Error())
		}

		if st := w.spending.Check(inv.InvocationID); !st.OK {
			w.notify(ctx, observer.EventTypeNodeFailed, inv.InvocationID, &targetNodeID, fmt.Sprintf("spending cap exceeded: %.4f >= %.4f", st.Total, st.Limit))
			return w.fail(ctx, inv, "spending_exceeded")
		}

		nodeCfg, ok := version.DSL.Nodes[targetNodeID]
		if !ok {
			return w.fail(ctx, inv, fmt.Sprintf("%s: %s", models.ErrNodeNotFound.Error(), targetNodeID))
		}

		targets, cost, runErr := w.runNode(deadline, inv, version.VersionID, nodeCfg, current, mainGoal, cancel)
		inv.USDCost += cost
		if runErr != nil {
			return w.fail(ctx, inv, runErr.Error())
		}

		replyRole := models.MessageRoleSequential
		if isParallel(nodeCfg) {
			if w.opts.CoordinationType == "delegation" {
				replyRole = models.MessageRoleDelegation
			}
		}

		for _, target := range targets {
			next := target.nodeID
			msg := &models.Message{
				MsgID:              uuid.NewString(),
				InvocationID:       inv.InvocationID,
				FromNodeID:         &targetNodeID,
				ToNodeID:           &next,
				Seq:                nextSeq,
				Role:               replyRole,
				Payload:            map[string]any{"text": target.payload},
				CreatedAt:          time.Now(),
				OriginInvocationID: &inv.InvocationID,
			}
			nextSeq++
			if err := w.port.SaveMessage(deadline, msg); err != nil {
				return w.fail(ctx, inv, "persisting message: "+err.Error())
			}
			w.notify(ctx, observer.EventTypeMessageEnqueued, inv.InvocationID, &next, "")
			queue = append(queue, msg)
		}
	}

	completed := models.InvocationCompleted
	endTime := time.Now()
	output := joinOutputs(outputs)
	cost := inv.USDCost
	if err := w.port.UpdateWorkflowInvocation(ctx, &models.WorkflowInvocationPatch{
		InvocationID:   inv.InvocationID,
		Status:         &completed,
		EndTime:        &endTime,
		USDCost:        &cost,
		WorkflowOutput: map[string]any{"text": output},
	}); err != nil {
		return nil, err
	}
	inv.Status = completed
	inv.EndTime = &endTime
	inv.WorkflowOutput = map[string]any{"text": output}
	w.notify(ctx, observer.EventTypeInvocationTerminated, inv.InvocationID, nil, "completed")
	return inv, nil
}

type handoffTarget struct {
	nodeID  string
	payload string
}

// runNode implements spec.md §4.9 steps e-g: construct context, persist
// node start, run the pipeline, persist node end, commit the memory delta.
func (w *WorkflowExecutor) runNode(ctx context.Context, inv *models.WorkflowInvocation, versionID string, nodeCfg models.WorkflowNodeConfig, msg *models.Message, mainGoal string, cancel *cancelState) ([]handoffTarget, float64, error) {
	memory := w.loadMemory(ctx, nodeCfg.NodeID, versionID, nodeCfg.Memory)

	ec := toolregistry.ExecutionContext{
		WorkflowInvocationID: inv.InvocationID,
		WorkflowVersionID:    versionID,
		NodeID:               nodeCfg.NodeID,
		MainGoal:             mainGoal,
	}
	toolNames := append(append([]string(nil), nodeCfg.CodeTools...), nodeCfg.MCPTools...)
	toolSet, err := w.tools.Resolve(toolNames, ec)
	if err != nil {
		return nil, 0, err
	}

	startID, err := w.port.StartNodeInvocation(ctx, &models.NodeInvocation{
		InvocationID:  inv.InvocationID,
		NodeID:        nodeCfg.NodeID,
		NodeVersionID: versionID,
		Model:         nodeCfg.ModelName,
		AttemptNo:     1,
		Status:        models.NodeInvocationRunning,
		StartTime:     time.Now(),
	})
	if err != nil {
		return nil, 0, err
	}
	w.notify(ctx, observer.EventTypeNodeStarted, inv.InvocationID, &nodeCfg.NodeID, "")

	nc := &NodeContext{
		InvocationID:   inv.InvocationID,
		NodeID:         nodeCfg.NodeID,
		Node:           nodeCfg,
		WorkflowGoal:   mainGoal,
		Memory:         memory,
		IncomingText:   payloadText(msg.Payload),
		Tools:          toolSet.Bind(ec),
		Options:        w.opts,
		SpendingBudget: w.spending,
	}

	result := w.pipeline.Run(ctx, nc, cancel)

	endStatus := models.NodeInvocationCompleted
	if result.Error != "" {
		endStatus = models.NodeInvocationFailed
	}
	endTime := time.Now()
	if err := w.port.EndNodeInvocation(ctx, &models.NodeInvocation{
		NodeInvocationID: startID,
		InvocationID:     inv.InvocationID,
		NodeID:           nodeCfg.NodeID,
		NodeVersionID:    versionID,
		Model:            nodeCfg.ModelName,
		AttemptNo:        1,
		Status:           endStatus,
		EndTime:          &endTime,
		Output:           map[string]any{"text": result.FinalOutput},
		Summary:          result.SummaryWithInfo,
		USDCost:          result.USDCost,
		Error:            result.Error,
		Extras: models.NodeInvocationExtras{
			Trace:         result.Trace,
			UpdatedMemory: result.UpdatedMemory,
			DebugPrompts:  result.DebugPrompts,
		},
	}); err != nil {
		return nil, result.USDCost, err
	}

	if result.Error != "" {
		w.notify(ctx, observer.EventTypeNodeFailed, inv.InvocationID, &nodeCfg.NodeID, result.Error)
		return nil, result.USDCost, fmt.Errorf("node %s: %s", nodeCfg.NodeID, result.Error)
	}
	w.notify(ctx, observer.EventTypeNodeCompleted, inv.InvocationID, &nodeCfg.NodeID, "")

	if result.UpdatedMemory != nil && !memoryEqual(memory, result.UpdatedMemory) {
		if err := w.port.SaveNodeVersion(ctx, &models.NodeVersion{
			NodeID:    nodeCfg.NodeID,
			VersionID: versionID,
			Memory:    result.UpdatedMemory,
		}); err != nil {
			return nil, result.USDCost, err
		}
	}

	targets := make([]handoffTarget, 0, len(result.Handoff.NextIDs))
	for _, id := range result.Handoff.NextIDs {
		targets = append(targets, handoffTarget{nodeID: id, payload: result.Handoff.ReplyPayloads[id]})
	}
	return targets, result.USDCost, nil
}

func (w *WorkflowExecutor) loadMemory(ctx context.Context, nodeID, versionID string, seed map[string]string) map[string]string {
	memory := make(map[string]string, len(seed))
	for k, v := range seed {
		memory[k] = v
	}
	latest, err := w.port.LatestNodeVersion(ctx, nodeID, versionID)
	if err == nil && latest != nil {
		for k, v := range latest.Memory {
			memory[k] = v
		}
	}
	return memory
}

func (w *WorkflowExecutor) fail(ctx context.Context, inv *models.WorkflowInvocation, reason string) (*models.WorkflowInvocation, error) {
	failed := models.InvocationFailed
	endTime := time.Now()
	cost := inv.USDCost
	_ = w.port.UpdateWorkflowInvocation(ctx, &models.WorkflowInvocationPatch{
		InvocationID: inv.InvocationID,
		Status:       &failed,
		EndTime:      &endTime,
		USDCost:      &cost,
		Extras:       map[string]any{"error": reason},
	})
	inv.Status = failed
	inv.EndTime = &endTime
	w.notify(ctx, observer.EventTypeExecutionFailed, inv.InvocationID, nil, reason)
	return inv, nil
}

func (w *WorkflowExecutor) notify(ctx context.Context, t observer.EventType, invocationID string, nodeID *string, message string) {
	if w.obs == nil {
		return
	}
	ev := observer.Event{
		Type:        t,
		ExecutionID: invocationID,
		Timestamp:   time.Now(),
		NodeID:      nodeID,
	}
	if message != "" {
		ev.Message = &message
	}
	w.obs.Notify(ctx, ev)
}

func renderInput(input map[string]any) string {
	if text, ok := input["text"].(string); ok {
		return text
	}
	return fmt.Sprintf("%v", input)
}

func payloadText(payload map[string]any) string {
	if payload == nil {
		return ""
	}
	if text, ok := payload["text"].(string); ok {
		return text
	}
	return fmt.Sprintf("%v", payload)
}

func joinOutputs(outputs []string) string {
	if len(outputs) == 1 {
		return outputs[0]
	}
	out := ""
	for i, o := range outputs {
		if i > 0 {
			out += "\n"
		}
		out += o
	}
	return out
}

func memoryEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || v != bv {
			return false
		}
	}
	return true
}

// runManager tracks background RunWorkflow executions for AwaitInvocation,
// per spec.md §6 "run_workflow(...) -> invocation_id (async handle)".
type runManager struct {
	mu     sync.Mutex
	done   map[string]chan struct{}
	result map[string]*models.WorkflowInvocation
	err    map[string]error
}

func newRunManager() *runManager {
	return &runManager{
		done:   make(map[string]chan struct{}),
		result: make(map[string]*models.WorkflowInvocation),
		err:    make(map[string]error),
	}
}

func (m *runManager) start(invocationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done[invocationID] = make(chan struct{})
}

func (m *runManager) finish(invocationID string, inv *models.WorkflowInvocation, err error) {
	m.mu.Lock()
	ch := m.done[invocationID]
	m.result[invocationID] = inv
	m.err[invocationID] = err
	m.mu.Unlock()
	close(ch)
}

func (m *runManager) await(ctx context.Context, invocationID string) (*models.WorkflowInvocation, error) {
	m.mu.Lock()
	ch, ok := m.done[invocationID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("workflow_executor: unknown invocation %s", invocationID)
	}
	select {
	case <-ch:
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.result[invocationID], m.err[invocationID]
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
