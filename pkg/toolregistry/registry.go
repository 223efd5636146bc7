// Package toolregistry implements ToolRegistry (spec.md §4.2): resolving
// tool names to callable handles with their parameter schemas, injecting a
// per-invocation ExecutionContext. Grounded on the teacher's
// pkg/executor.Manager (thread-safe name -> implementation registry) and
// pkg/executor/builtin.ToolCallingRegistry (dispatch by declared kind), now
// generalized from "node type -> Executor" to "tool name -> Tool" with a
// code/MCP source distinction.
package toolregistry

import (
	"context"
	"fmt"
	"sync"

	"github.com/meshagent/meshagent/pkg/models"
	"github.com/meshagent/meshagent/pkg/schemavalidate"
)

// ExecutionContext is the per-invocation context injected into every Tool
// call, per spec.md §4.2: workflow_invocation_id, workflow_version_id,
// node_id, main_goal, files.
type ExecutionContext struct {
	WorkflowInvocationID string
	WorkflowVersionID    string
	NodeID               string
	MainGoal             string
	Files                []string
}

// Tool is a named callable with a declared JSON-Schema argument shape.
// MCP tools are external (network); code tools are in-process. Both
// implement the same interface so StrategySelector and the multi-step
// loop never branch on source.
type Tool interface {
	Name() string
	ParametersSchema() map[string]any
	Call(ctx context.Context, ec ExecutionContext, args map[string]any) (any, error)
	// Cacheable reports whether ToolRegistry may consult its memoization
	// cache before invoking Call for identical (name, args) pairs. Only
	// deterministic code tools should answer true.
	Cacheable() bool
}

// Source distinguishes where a Tool's implementation lives, mirroring
// WorkflowNodeConfig's MCPTools/CodeTools split.
type Source string

const (
	SourceCode Source = "code"
	SourceMCP  Source = "mcp"
)

// Factory constructs a Tool, given the ExecutionContext it will run under.
// Code tools are constructed per invocation (teacher: ExecutorFunc wrapping
// per call); MCP tools are constructed once at node entry and reused, since
// they carry a live network connection.
type Factory func(ec ExecutionContext) (Tool, error)

// registration pairs a Factory with the Source it was registered under, so
// Resolve can apply the "code wins over MCP on name collision" rule.
type registration struct {
	source  Source
	factory Factory
}

// Registry is ToolRegistry: a thread-safe map from canonical tool name to
// Factory, generalized from the teacher's Registry (executor.Registry).
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registration

	// mcpPool holds already-constructed MCP tool instances keyed by name,
	// since MCP tools are "initialized eagerly at node entry" and reused
	// across the calls within one node invocation rather than rebuilt per
	// Call, per spec.md §4.2.
	mcpPool   map[string]Tool
	mcpPoolMu sync.Mutex

	onCollision func(name string)
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		tools:   make(map[string]registration),
		mcpPool: make(map[string]Tool),
	}
}

// OnCollision installs a callback invoked whenever RegisterCode/RegisterMCP
// names collide; the registry never treats a collision as fatal (spec.md
// §4.2 "collision logged, not fatal").
func (r *Registry) OnCollision(fn func(name string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCollision = fn
}

// RegisterCode registers a code (in-process) tool factory under name.
func (r *Registry) RegisterCode(name string, factory Factory) {
	r.register(name, SourceCode, factory)
}

// RegisterMCP registers an MCP (network) tool factory under name.
func (r *Registry) RegisterMCP(name string, factory Factory) {
	r.register(name, SourceMCP, factory)
}

func (r *Registry) register(name string, source Source, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tools[name]; ok && existing.source != source {
		if r.onCollision != nil {
			r.onCollision(name)
		}
	}
	r.tools[name] = registration{source: source, factory: factory}
}

// Has reports whether name is registered under either source.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	return names
}

// ToolSet is the per-invocation mapping from canonical tool name to handle,
// returned by Resolve.
type ToolSet map[string]Tool

// Names returns the set's tool names.
func (ts ToolSet) Names() []string {
	names := make([]string, 0, len(ts))
	for n := range ts {
		names = append(names, n)
	}
	return names
}

// Schemas returns every tool's parameter schema, for StrategySelector's
// prompt construction and the AIClient tool-declaration payload.
func (ts ToolSet) Schemas() map[string]map[string]any {
	out := make(map[string]map[string]any, len(ts))
	for name, t := range ts {
		out[name] = t.ParametersSchema()
	}
	return out
}

// Resolve builds a ToolSet for one node invocation from the declared tool
// names, mirroring the teacher's per-invocation executor lookup. Code tools
// (constructed fresh per invocation) win over MCP tools (pooled, reused) on
// name collision, per spec.md §4.2.
func (r *Registry) Resolve(names []string, ec ExecutionContext) (ToolSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ts := make(ToolSet, len(names))
	for _, name := range names {
		reg, ok := r.tools[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", models.ErrToolNotFound, name)
		}
		if reg.source == SourceMCP {
			tool, err := r.pooledMCP(name, reg.factory, ec)
			if err != nil {
				return nil, err
			}
			ts[name] = tool
			continue
		}
		tool, err := reg.factory(ec)
		if err != nil {
			return nil, fmt.Errorf("constructing code tool %q: %w", name, err)
		}
		ts[name] = tool
	}
	return ts, nil
}

func (r *Registry) pooledMCP(name string, factory Factory, ec ExecutionContext) (Tool, error) {
	r.mcpPoolMu.Lock()
	defer r.mcpPoolMu.Unlock()
	if t, ok := r.mcpPool[name]; ok {
		return t, nil
	}
	t, err := factory(ec)
	if err != nil {
		return nil, fmt.Errorf("constructing mcp tool %q: %w", name, err)
	}
	r.mcpPool[name] = t
	return t, nil
}

// ResetMCPPool drops every pooled MCP tool instance; a test hook and a
// graceful-shutdown hook, not something production request handling calls.
func (r *Registry) ResetMCPPool() {
	r.mcpPoolMu.Lock()
	defer r.mcpPoolMu.Unlock()
	r.mcpPool = make(map[string]Tool)
}

// BoundToolSet pairs a ToolSet with the ExecutionContext its tools were
// resolved under, satisfying engine.ToolBindings structurally (no import of
// internal/application/engine here — the interface is duck-typed) so the
// InvocationPipeline can call tools without depending on this package's
// concrete types beyond this file.
type BoundToolSet struct {
	Set ToolSet
	EC  ExecutionContext
}

// Bind pairs ts with ec for use as engine.ToolBindings.
func (ts ToolSet) Bind(ec ExecutionContext) *BoundToolSet {
	return &BoundToolSet{Set: ts, EC: ec}
}

func (b *BoundToolSet) Names() []string { return b.Set.Names() }

func (b *BoundToolSet) Schema(name string) map[string]any {
	if t, ok := b.Set[name]; ok {
		return t.ParametersSchema()
	}
	return nil
}

func (b *BoundToolSet) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := b.Set[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrToolNotFound, name)
	}
	if schema := t.ParametersSchema(); schema != nil {
		if err := schemavalidate.Against(schema, args); err != nil {
			return nil, fmt.Errorf("%w: %s: %s", models.ErrToolArgumentsInvalid, name, err)
		}
	}
	return t.Call(ctx, b.EC, args)
}
