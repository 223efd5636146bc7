package models

import "time"

// InvocationStatus is the lifecycle of a WorkflowInvocation. It starts at
// running and transitions exactly once to a terminal state.
type InvocationStatus string

const (
	InvocationRunning    InvocationStatus = "running"
	InvocationCompleted  InvocationStatus = "completed"
	InvocationFailed     InvocationStatus = "failed"
	InvocationRolledBack InvocationStatus = "rolled_back"
)

// IsTerminal reports whether the status admits no further transitions.
func (s InvocationStatus) IsTerminal() bool {
	return s == InvocationCompleted || s == InvocationFailed || s == InvocationRolledBack
}

// CanTransitionTo enforces the one-way transition PersistencePort must
// validate on every UpdateWorkflowInvocation call: running -> terminal,
// never terminal -> anything.
func (s InvocationStatus) CanTransitionTo(next InvocationStatus) bool {
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	return next == InvocationCompleted || next == InvocationFailed || next == InvocationRolledBack
}

// WorkflowInvocation is one execution of a WorkflowVersion, tracked
// end-to-end. Created in InvocationRunning; transitions once to a terminal
// state.
type WorkflowInvocation struct {
	InvocationID string           `json:"invocation_id"`
	VersionID    string           `json:"version_id"`
	Status       InvocationStatus `json:"status"`
	StartTime    time.Time        `json:"start_time"`
	EndTime      *time.Time       `json:"end_time,omitempty"`
	USDCost      float64          `json:"usd_cost"`

	WorkflowInput  map[string]any `json:"workflow_input,omitempty"`
	WorkflowOutput map[string]any `json:"workflow_output,omitempty"`

	Fitness      *Fitness `json:"fitness,omitempty"`
	Accuracy     *int     `json:"accuracy,omitempty"` // integer percentage
	FitnessScore *float64 `json:"fitness_score,omitempty"`

	RunID        *string        `json:"run_id,omitempty"`
	GenerationID *string        `json:"generation_id,omitempty"`
	Extras       map[string]any `json:"extras,omitempty"`
}

// Duration returns the elapsed wall-clock time, using time.Now for a still
// running invocation.
func (w *WorkflowInvocation) Duration() time.Duration {
	if w.EndTime == nil {
		return time.Since(w.StartTime)
	}
	return w.EndTime.Sub(w.StartTime)
}

// WorkflowInvocationPatch is a partial update applied by
// PersistencePort.UpdateWorkflowInvocation. Nil fields are left unchanged.
// Accuracy is rounded to an integer percentage before storage per spec.
type WorkflowInvocationPatch struct {
	InvocationID   string
	Status         *InvocationStatus
	EndTime        *time.Time
	USDCost        *float64
	WorkflowOutput map[string]any
	Fitness        *Fitness
	Accuracy       *float64 // raw fraction or percentage; port rounds it
	FitnessScore   *float64
	Extras         map[string]any
}

// NodeVersion is one row per (node_id, version_id, bump): a config snapshot
// plus the node's persisted memory, versioned monotonically within its
// workflow version.
type NodeVersion struct {
	NodeID    string            `json:"node_id"`
	VersionID string            `json:"version_id"`
	Version   int               `json:"version"` // monotonic per (node_id, version_id)
	Config    WorkflowNodeConfig `json:"config"`
	Memory    map[string]string `json:"memory,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NodeInvocationStatus is the lifecycle of a NodeInvocation.
type NodeInvocationStatus string

const (
	NodeInvocationRunning   NodeInvocationStatus = "running"
	NodeInvocationCompleted NodeInvocationStatus = "completed"
	NodeInvocationFailed    NodeInvocationStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s NodeInvocationStatus) IsTerminal() bool {
	return s == NodeInvocationCompleted || s == NodeInvocationFailed
}

// NodeInvocation is one execution of a node inside a workflow invocation.
// Created on entry with status running, updated once on exit.
type NodeInvocation struct {
	NodeInvocationID string                `json:"node_invocation_id"`
	NodeID           string                `json:"node_id"`
	NodeVersionID    string                `json:"node_version_id"`
	InvocationID     string                `json:"invocation_id"`
	StartTime        time.Time             `json:"start_time"`
	EndTime          *time.Time            `json:"end_time,omitempty"`
	Status           NodeInvocationStatus  `json:"status"`
	Model            string                `json:"model"`
	AttemptNo        int                   `json:"attempt_no"` // >= 1
	USDCost          float64               `json:"usd_cost"`
	Output           map[string]any        `json:"output,omitempty"`
	Summary          string                `json:"summary,omitempty"`
	Files            []string              `json:"files,omitempty"`
	Error            string                `json:"error,omitempty"`
	Extras           NodeInvocationExtras  `json:"extras"`
}

// NodeInvocationExtras holds the serialized trace and the proposed memory
// delta produced at terminate, per spec §3 "extras (holds trace, updated
// memory)".
type NodeInvocationExtras struct {
	Trace         Trace             `json:"trace,omitempty"`
	UpdatedMemory map[string]string `json:"updated_memory,omitempty"`
	DebugPrompts  []string          `json:"debug_prompts,omitempty"`
}

// Duration returns the elapsed wall-clock time, using time.Now for a still
// running node invocation.
func (n *NodeInvocation) Duration() time.Duration {
	if n.EndTime == nil {
		return time.Since(n.StartTime)
	}
	return n.EndTime.Sub(n.StartTime)
}

// MessageRole classifies why a Message was emitted.
type MessageRole string

const (
	MessageRoleDelegation MessageRole = "delegation"
	MessageRoleResult     MessageRole = "result"
	MessageRoleSequential MessageRole = "sequential"
	MessageRoleAggregated MessageRole = "aggregated"
	MessageRoleError      MessageRole = "error"
)

// Message is one hop in the workflow's message-routing graph. Seq is
// assigned monotonically by the WorkflowExecutor at emit time, starting at
// 1, with no gaps within one invocation.
type Message struct {
	MsgID              string         `json:"msg_id"`
	InvocationID       string         `json:"invocation_id"`
	FromNodeID         *string        `json:"from_node_id,omitempty"`
	ToNodeID           *string        `json:"to_node_id,omitempty"`
	Seq                int64          `json:"seq"`
	Role               MessageRole    `json:"role"`
	Payload            map[string]any `json:"payload,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	OriginInvocationID *string        `json:"origin_invocation_id,omitempty"`
}
