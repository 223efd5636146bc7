// Package models defines the public domain types and error taxonomy shared
// across the invocation pipeline, workflow executor, and persistence port.
package models

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers should prefer errors.Is/errors.As over string
// matching; these exist for the cases that don't carry extra context.
var (
	ErrWorkflowNotFound       = errors.New("workflow not found")
	ErrVersionNotFound        = errors.New("workflow version not found")
	ErrInvocationNotFound     = errors.New("workflow invocation not found")
	ErrNodeVersionNotFound    = errors.New("node version not found")
	ErrNodeInvocationNotFound = errors.New("node invocation not found")
	ErrMessageNotFound        = errors.New("message not found")
	ErrDuplicateKey           = errors.New("duplicate key")
	ErrIllegalTransition      = errors.New("illegal status transition")

	// ErrReservedNodeID is returned when a DSL declares a node named "end",
	// which is reserved as the workflow termination sentinel.
	ErrReservedNodeID = errors.New(`node_id "end" is reserved`)

	// ErrSpendingExceeded is surfaced by SpendingTracker.Check and propagates
	// out of the node boundary, terminating the enclosing workflow invocation.
	ErrSpendingExceeded = errors.New("spending cap exceeded")

	// ErrCancelled is raised at a suspension point once a workflow
	// invocation's cancellation token has fired.
	ErrCancelled = errors.New("invocation cancelled")

	// ErrSchemaVersionMismatch is refused at version-creation time, never at
	// run time; the core must never run an unknown DSL schema version.
	ErrSchemaVersionMismatch = errors.New("DSL schema version mismatch")

	// ErrStepBudgetExhausted marks a workflow invocation failed when it
	// exceeds MaxNodesPerInvocation.
	ErrStepBudgetExhausted = errors.New("step_budget_exhausted")

	// ErrToolNotFound is returned by ToolRegistry.Resolve for an undeclared
	// tool name.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolArgumentsInvalid is returned when a tool call's arguments fail
	// validation against the tool's declared parameters schema.
	ErrToolArgumentsInvalid = errors.New("tool arguments invalid")

	// ErrNodeNotFound is returned when a workflow's DSL has no node for a
	// routed message's target id.
	ErrNodeNotFound = errors.New("node not found in workflow version")
)

// ValidationError represents a schema or invariant violation caught at a
// boundary. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors aggregates multiple ValidationError values, e.g. from
// validating an entire DSL document in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Error()
}

// PersistenceKind enumerates the error kinds a PersistencePort is allowed to
// surface. No backend-specific type (sql.ErrNoRows, pgconn.PgError, ...) may
// cross the port boundary; it must be translated into one of these.
type PersistenceKind string

const (
	PersistenceNotFound     PersistenceKind = "not_found"
	PersistenceDuplicateKey PersistenceKind = "duplicate_key"
	PersistenceConflict     PersistenceKind = "conflict"
	PersistenceBackend      PersistenceKind = "backend"
)

// PersistenceError wraps a backend failure with a caller-actionable Kind.
// Backend carries the original driver error for logging only; callers must
// switch on Kind, never on the wrapped error's concrete type.
type PersistenceError struct {
	Kind    PersistenceKind
	Op      string
	Backend error
}

func (e *PersistenceError) Error() string {
	if e.Backend != nil {
		return fmt.Sprintf("persistence: %s (%s): %v", e.Op, e.Kind, e.Backend)
	}
	return fmt.Sprintf("persistence: %s (%s)", e.Op, e.Kind)
}

func (e *PersistenceError) Unwrap() error {
	return e.Backend
}

// Retryable reports whether a PersistenceError is worth retrying. Only
// Backend errors are retried, per the back-pressure rule.
func (e *PersistenceError) Retryable() bool {
	return e.Kind == PersistenceBackend
}

// NewPersistenceError constructs a PersistenceError, translating a nil
// backend error into a bare Kind-only error.
func NewPersistenceError(op string, kind PersistenceKind, backend error) *PersistenceError {
	return &PersistenceError{Op: op, Kind: kind, Backend: backend}
}

// ToolExecutionError records a single failed tool call. It never escapes the
// node invocation boundary: InvocationPipeline converts it to a trace error
// step and continues the loop.
type ToolExecutionError struct {
	ToolName string
	Err      error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q: %v", e.ToolName, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// AIProviderError records a failed AIClient.Complete call. Within a
// multi-step loop it becomes a trace error step and the loop continues; in
// the single-call strategy it terminates the invocation with a synthesized
// error terminate step.
type AIProviderError struct {
	Provider string
	Err      error
}

func (e *AIProviderError) Error() string {
	return fmt.Sprintf("ai provider %q: %v", e.Provider, e.Err)
}

func (e *AIProviderError) Unwrap() error {
	return e.Err
}
