package models

import (
	"encoding/json"
	"time"
)

// Workflow is an immutable identity: a named, versioned agent graph.
// All mutable structure lives in WorkflowVersion.DSL.
type Workflow struct {
	WorkflowID  string `json:"workflow_id"`
	Description string `json:"description,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks Workflow identity invariants.
func (w *Workflow) Validate() error {
	if w.WorkflowID == "" {
		return &ValidationError{Field: "workflow_id", Message: "workflow ID is required"}
	}
	return nil
}

// VersionOperation classifies how a WorkflowVersion came to exist, mirroring
// the evolutionary-optimizer's vocabulary (the optimizer itself is an
// external collaborator; the core only records which operation produced a
// version).
type VersionOperation string

const (
	VersionOperationInit      VersionOperation = "init"
	VersionOperationMutation  VersionOperation = "mutation"
	VersionOperationCrossover VersionOperation = "crossover"
	VersionOperationImmigrant VersionOperation = "immigrant"
)

func (op VersionOperation) valid() bool {
	switch op {
	case VersionOperationInit, VersionOperationMutation, VersionOperationCrossover, VersionOperationImmigrant:
		return true
	}
	return false
}

// CurrentDSLSchemaVersion is annotated onto a DSL document at creation time
// if the caller didn't set one. A WorkflowVersion whose DSL carries a
// different, unrecognized schema version is refused at creation, never run.
const CurrentDSLSchemaVersion = 1

// WorkflowVersion is an append-only, immutable snapshot of a workflow's
// node graph. Versions are never mutated in place; a new version is always
// a new row.
type WorkflowVersion struct {
	VersionID     string           `json:"version_id"`
	WorkflowID    string           `json:"workflow_id"`
	DSL           DSL              `json:"dsl"`
	Operation     VersionOperation `json:"operation"`
	CommitMessage string           `json:"commit_message,omitempty"`
	GenerationID  *string          `json:"generation_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Validate checks structural invariants of a WorkflowVersion and its DSL,
// including the "end" reservation and schema version agreement.
func (v *WorkflowVersion) Validate() error {
	if v.VersionID == "" {
		return &ValidationError{Field: "version_id", Message: "version ID is required"}
	}
	if v.WorkflowID == "" {
		return &ValidationError{Field: "workflow_id", Message: "workflow ID is required"}
	}
	if !v.Operation.valid() {
		return &ValidationError{Field: "operation", Message: "must be one of init, mutation, crossover, immigrant"}
	}
	if v.DSL.SchemaVersion != 0 && v.DSL.SchemaVersion != CurrentDSLSchemaVersion {
		return &ValidationError{Field: "dsl.schema_version", Message: "unrecognized DSL schema version"}
	}
	return v.DSL.Validate()
}

// DSL is the opaque-to-storage, structured-to-the-core blob describing a
// workflow's entry node and node graph.
type DSL struct {
	SchemaVersion int                           `json:"schema_version"`
	EntryNodeID   string                        `json:"entry_node_id"`
	Nodes         map[string]WorkflowNodeConfig `json:"nodes"`
}

// Validate enforces the "end" reservation, entry-node presence, and
// hand_offs referential integrity.
func (d *DSL) Validate() error {
	if d.EntryNodeID == "" {
		return &ValidationError{Field: "entry_node_id", Message: "entry node is required"}
	}
	if d.EntryNodeID == "end" {
		return ErrReservedNodeID
	}
	if len(d.Nodes) == 0 {
		return &ValidationError{Field: "nodes", Message: "at least one node is required"}
	}
	if _, ok := d.Nodes["end"]; ok {
		return ErrReservedNodeID
	}
	if _, ok := d.Nodes[d.EntryNodeID]; !ok {
		return &ValidationError{Field: "entry_node_id", Message: "entry node not declared in nodes"}
	}
	for id, n := range d.Nodes {
		if n.NodeID != "" && n.NodeID != id {
			return &ValidationError{Field: "nodes", Message: "node_id " + n.NodeID + " does not match map key " + id}
		}
		if err := n.Validate(); err != nil {
			return err
		}
		for _, h := range n.HandOffs {
			if h == "end" {
				continue
			}
			if _, ok := d.Nodes[h]; !ok {
				return &ValidationError{Field: "hand_offs", Message: "node " + id + " hands off to undeclared node " + h}
			}
		}
	}
	return nil
}

// HandOffType selects how a node's successor(s) are chosen once it
// terminates.
type HandOffType string

const (
	HandOffSequential  HandOffType = "sequential"
	HandOffParallel    HandOffType = "parallel"
	HandOffConditional HandOffType = "conditional"
)

func (h HandOffType) valid() bool {
	switch h {
	case HandOffSequential, HandOffParallel, HandOffConditional, "":
		return true
	}
	return false
}

// WorkflowNodeConfig is one agent node inside a DSL: a model, a system
// prompt, the tools it may call, and its handoff edges.
type WorkflowNodeConfig struct {
	NodeID       string            `json:"node_id"`
	Description  string            `json:"description,omitempty"`
	SystemPrompt string            `json:"system_prompt"`
	ModelName    string            `json:"model_name"`
	MCPTools     []string          `json:"mcp_tools,omitempty"`
	CodeTools    []string          `json:"code_tools,omitempty"`
	HandOffs     []string          `json:"hand_offs"`
	HandOffType  HandOffType       `json:"hand_off_type,omitempty"`
	Memory       map[string]string `json:"memory,omitempty"`
	MaxSteps     *int              `json:"max_steps,omitempty"`
	WaitFor      []string          `json:"wait_for,omitempty"`
	UseDirectSDK bool              `json:"use_direct_sdk,omitempty"`

	// HandoffExpr: when set on a conditional node, HandoffResolver evaluates
	// it with expr-lang/expr instead of asking the AI.
	HandoffExpr string `json:"handoff_expr,omitempty"`
}

// Validate checks node-level structural invariants.
func (n *WorkflowNodeConfig) Validate() error {
	if n.NodeID == "end" {
		return ErrReservedNodeID
	}
	if n.SystemPrompt == "" {
		return &ValidationError{Field: "system_prompt", Message: "system prompt is required"}
	}
	if n.ModelName == "" {
		return &ValidationError{Field: "model_name", Message: "model name is required"}
	}
	if len(n.HandOffs) == 0 {
		return &ValidationError{Field: "hand_offs", Message: "at least one hand-off (possibly \"end\") is required"}
	}
	if !n.HandOffType.valid() {
		return &ValidationError{Field: "hand_off_type", Message: "must be one of sequential, parallel, conditional"}
	}
	if n.HandOffType == HandOffParallel {
		for _, h := range n.HandOffs {
			if h == "end" {
				return &ValidationError{Field: "hand_offs", Message: "parallel hand-off must not include \"end\""}
			}
		}
	}
	if n.MaxSteps != nil && *n.MaxSteps < 0 {
		return &ValidationError{Field: "max_steps", Message: "must be >= 0"}
	}
	return nil
}

// EffectiveMaxSteps implements the effective bound on tool steps a node
// invocation may take, clamped to the hard cap of 10.
func (n *WorkflowNodeConfig) EffectiveMaxSteps(globalDefault int) int {
	const hardCap = 10
	v := globalDefault
	if n.MaxSteps != nil {
		v = *n.MaxSteps
	}
	if v > hardCap {
		return hardCap
	}
	if v < 0 {
		return 0
	}
	return v
}

// Clone returns a deep copy of the DSL via a JSON round-trip.
func (d *DSL) Clone() (*DSL, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var clone DSL
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, err
	}
	return &clone, nil
}
