// Package repository defines PersistencePort (spec.md §4.1): the narrow,
// domain-noun capability the core speaks to storage through. Grounded on
// the teacher's WorkflowRepository (one interface per aggregate, ctx-first
// methods, typed filters) but generalized: this module does not expose
// relational CRUD on workflow/node/edge rows, only the append-only
// invocation/trace record the spec describes.
package repository

import (
	"context"
	"time"

	"github.com/meshagent/meshagent/pkg/models"
)

// InvocationFilters narrows ListInvocations, per spec.md §6 Read API.
type InvocationFilters struct {
	Status       *models.InvocationStatus
	MinCost      *float64
	MaxCost      *float64
	MinAccuracy  *int
	MaxAccuracy  *int
	MinFitness   *float64
	MaxFitness   *float64
	DateFrom     *time.Time
	DateTo       *time.Time
	RunID        *string
	GenerationID *string
	VersionID    *string
}

// SortField enumerates the columns ListInvocations may sort by.
type SortField string

const (
	SortByStartTime SortField = "start_time"
	SortByUSDCost   SortField = "usd_cost"
	SortByStatus    SortField = "status"
	SortByFitness   SortField = "fitness"
	SortByAccuracy  SortField = "accuracy"
	SortByDuration  SortField = "duration"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)

// Sort pairs a field with a direction.
type Sort struct {
	Field SortField
	Order SortOrder
}

// Aggregates summarizes a ListInvocations page across the full filtered set,
// not just the returned page, per spec.md §4.1 "aggregates (total spent,
// avg accuracy, failed count)".
type Aggregates struct {
	TotalSpentUSD float64
	AvgAccuracy   float64
	FailedCount   int
}

// InvocationPage is one page of ListInvocations results.
type InvocationPage struct {
	Rows       []*models.WorkflowInvocation
	TotalCount int
	Aggregates Aggregates
}

// Trace is the full record get_trace returns: the workflow, the version,
// every node invocation, and every message, ordered by seq/start_time.
type Trace struct {
	Workflow        *models.Workflow
	Version         *models.WorkflowVersion
	NodeInvocations []*models.NodeInvocation
	Messages        []*models.Message
}

// StaleCleanupResult reports how many rows cleanup_stale force-transitioned.
type StaleCleanupResult struct {
	WorkflowInvocations int
	NodeInvocations     int
}

// PersistencePort is the single capability the InvocationPipeline and
// WorkflowExecutor depend on for all durable state. Every method that can
// fail returns an error that is either nil, a *models.PersistenceError
// (one of the kinds in spec.md §4.1), or — for input validation caught at
// the boundary — a *models.ValidationError. No backend-specific type may
// cross this boundary.
type PersistencePort interface {
	// EnsureWorkflow idempotently upserts a Workflow's identity row.
	EnsureWorkflow(ctx context.Context, workflowID, description string) error

	// CreateWorkflowVersion inserts or upserts by VersionID. The DSL is
	// annotated with models.CurrentDSLSchemaVersion if it carries none.
	// Calling this twice with an identical payload yields exactly one row
	// and no error (spec.md §8 property 7).
	CreateWorkflowVersion(ctx context.Context, v *models.WorkflowVersion) error

	// GetWorkflowVersion fetches one version by id.
	GetWorkflowVersion(ctx context.Context, versionID string) (*models.WorkflowVersion, error)

	// CreateWorkflowInvocation inserts a new row in InvocationRunning.
	CreateWorkflowInvocation(ctx context.Context, inv *models.WorkflowInvocation) error

	// UpdateWorkflowInvocation applies a partial update, enforcing status
	// monotonicity (models.InvocationStatus.CanTransitionTo) and rounding
	// Accuracy to an integer percentage before storage.
	UpdateWorkflowInvocation(ctx context.Context, patch *models.WorkflowInvocationPatch) error

	// GetWorkflowInvocation fetches one invocation by id.
	GetWorkflowInvocation(ctx context.Context, invocationID string) (*models.WorkflowInvocation, error)

	// SaveNodeVersion assigns the next Version integer atomically under
	// (NodeID, VersionID) and persists the config/memory snapshot.
	SaveNodeVersion(ctx context.Context, nv *models.NodeVersion) error

	// LatestNodeVersion returns the highest-Version NodeVersion row for
	// (nodeID, versionID), used to load a node's current memory.
	LatestNodeVersion(ctx context.Context, nodeID, versionID string) (*models.NodeVersion, error)

	// StartNodeInvocation inserts a row with Status=running and returns its
	// assigned NodeInvocationID.
	StartNodeInvocation(ctx context.Context, start *models.NodeInvocation) (string, error)

	// EndNodeInvocation sets the terminal status, output, summary, cost,
	// end time, files, error, and extras (serialized trace + proposed
	// memory delta) on an existing row.
	EndNodeInvocation(ctx context.Context, end *models.NodeInvocation) error

	// SaveMessage inserts a Message, enforcing uniqueness on MsgID.
	SaveMessage(ctx context.Context, msg *models.Message) error

	// ListInvocations returns one page plus total count and aggregates.
	ListInvocations(ctx context.Context, page, pageSize int, filters InvocationFilters, sort Sort) (*InvocationPage, error)

	// GetTrace assembles the full audit record for one invocation.
	GetTrace(ctx context.Context, invocationID string) (*Trace, error)

	// DeleteInvocations cascades delete to dependent NodeInvocation and
	// Message rows.
	DeleteInvocations(ctx context.Context, invocationIDs []string) error

	// CleanupStale force-transitions invocations still running past the
	// configured grace window to failed, returning counts.
	CleanupStale(ctx context.Context, graceWindow time.Duration) (*StaleCleanupResult, error)

	// WithTransaction runs fn against a transactional subview of the port,
	// committing on success and rolling back on any returned error.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx PersistencePort) error) error
}
