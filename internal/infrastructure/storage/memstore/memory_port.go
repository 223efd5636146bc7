// Package memstore implements an in-memory PersistencePort, part of the
// core per spec.md §4.1 "An in-memory implementation is part of the core
// for testing." Grounded on the teacher's mutex-guarded map repositories
// (internal/infrastructure/storage) but simplified to the append-only,
// narrow-interface shape repository.PersistencePort describes rather than
// the teacher's full relational CRUD surface.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meshagent/meshagent/internal/domain/repository"
	"github.com/meshagent/meshagent/pkg/models"
)

// MemoryPort is a mutex-guarded, map-backed PersistencePort. Every method
// preserves the invariants spec.md §3 names: Message.Seq strictly
// increasing per invocation, status monotonicity, MsgID/VersionID
// uniqueness.
type MemoryPort struct {
	mu sync.Mutex

	workflows        map[string]*models.Workflow
	versions         map[string]*models.WorkflowVersion
	invocations      map[string]*models.WorkflowInvocation
	nodeVersions     map[string][]*models.NodeVersion // key: nodeID+"/"+versionID, ordered by Version asc
	nodeInvocations  map[string]*models.NodeInvocation
	messages         map[string]*models.Message
	messagesByInvoke map[string][]string // invocationID -> ordered msgIDs by seq
}

// New constructs an empty MemoryPort.
func New() *MemoryPort {
	return &MemoryPort{
		workflows:        make(map[string]*models.Workflow),
		versions:         make(map[string]*models.WorkflowVersion),
		invocations:      make(map[string]*models.WorkflowInvocation),
		nodeVersions:     make(map[string][]*models.NodeVersion),
		nodeInvocations:  make(map[string]*models.NodeInvocation),
		messages:         make(map[string]*models.Message),
		messagesByInvoke: make(map[string][]string),
	}
}

func wrapBackend(op string, err error) error {
	if err == nil {
		return nil
	}
	return models.NewPersistenceError(op, models.PersistenceBackend, err)
}

// EnsureWorkflow idempotently upserts a Workflow identity row.
func (m *MemoryPort) EnsureWorkflow(_ context.Context, workflowID, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if existing, ok := m.workflows[workflowID]; ok {
		existing.Description = description
		existing.UpdatedAt = now
		return nil
	}
	m.workflows[workflowID] = &models.Workflow{
		WorkflowID:  workflowID,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return nil
}

// CreateWorkflowVersion upserts by VersionID; calling twice with an
// identical payload yields exactly one row and no error (spec.md §8 #7).
func (m *MemoryPort) CreateWorkflowVersion(_ context.Context, v *models.WorkflowVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v.VersionID == "" {
		return &models.ValidationError{Field: "version_id", Message: "version ID is required"}
	}
	dsl := v.DSL
	if dsl.SchemaVersion == 0 {
		dsl.SchemaVersion = models.CurrentDSLSchemaVersion
	} else if dsl.SchemaVersion != models.CurrentDSLSchemaVersion {
		return fmt.Errorf("%w: got %d, want %d", models.ErrSchemaVersionMismatch, dsl.SchemaVersion, models.CurrentDSLSchemaVersion)
	}
	v.DSL = dsl
	if err := v.Validate(); err != nil {
		return err
	}

	if existing, ok := m.versions[v.VersionID]; ok {
		*existing = *v
		return nil
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	clone := *v
	m.versions[v.VersionID] = &clone
	return nil
}

func (m *MemoryPort) GetWorkflowVersion(_ context.Context, versionID string) (*models.WorkflowVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[versionID]
	if !ok {
		return nil, models.NewPersistenceError("GetWorkflowVersion", models.PersistenceNotFound, models.ErrVersionNotFound)
	}
	clone := *v
	return &clone, nil
}

func (m *MemoryPort) CreateWorkflowInvocation(_ context.Context, inv *models.WorkflowInvocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if inv.InvocationID == "" {
		inv.InvocationID = uuid.NewString()
	}
	if _, exists := m.invocations[inv.InvocationID]; exists {
		return models.NewPersistenceError("CreateWorkflowInvocation", models.PersistenceDuplicateKey, models.ErrDuplicateKey)
	}
	if inv.Status == "" {
		inv.Status = models.InvocationRunning
	}
	if inv.StartTime.IsZero() {
		inv.StartTime = time.Now()
	}
	clone := *inv
	m.invocations[inv.InvocationID] = &clone
	return nil
}

// UpdateWorkflowInvocation applies a partial update, refusing illegal
// status transitions (spec.md §8 property 5: terminal status never
// reverses) and rounding Accuracy to an integer percentage.
func (m *MemoryPort) UpdateWorkflowInvocation(_ context.Context, patch *models.WorkflowInvocationPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invocations[patch.InvocationID]
	if !ok {
		return models.NewPersistenceError("UpdateWorkflowInvocation", models.PersistenceNotFound, models.ErrInvocationNotFound)
	}

	if patch.Status != nil {
		if !inv.Status.CanTransitionTo(*patch.Status) {
			return models.NewPersistenceError("UpdateWorkflowInvocation", models.PersistenceConflict, models.ErrIllegalTransition)
		}
		inv.Status = *patch.Status
	}
	if patch.EndTime != nil {
		inv.EndTime = patch.EndTime
	}
	if patch.USDCost != nil {
		inv.USDCost = *patch.USDCost
	}
	if patch.WorkflowOutput != nil {
		inv.WorkflowOutput = patch.WorkflowOutput
	}
	if patch.Fitness != nil {
		inv.Fitness = patch.Fitness
	}
	if patch.Accuracy != nil {
		rounded := int(*patch.Accuracy + 0.5)
		inv.Accuracy = &rounded
	}
	if patch.FitnessScore != nil {
		inv.FitnessScore = patch.FitnessScore
	}
	if patch.Extras != nil {
		inv.Extras = patch.Extras
	}
	return nil
}

func (m *MemoryPort) GetWorkflowInvocation(_ context.Context, invocationID string) (*models.WorkflowInvocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invocations[invocationID]
	if !ok {
		return nil, models.NewPersistenceError("GetWorkflowInvocation", models.PersistenceNotFound, models.ErrInvocationNotFound)
	}
	clone := *inv
	return &clone, nil
}

func nodeVersionKey(nodeID, versionID string) string { return nodeID + "/" + versionID }

// SaveNodeVersion assigns the next Version integer atomically under
// (NodeID, VersionID).
func (m *MemoryPort) SaveNodeVersion(_ context.Context, nv *models.NodeVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := nodeVersionKey(nv.NodeID, nv.VersionID)
	existing := m.nodeVersions[key]
	next := 1
	if len(existing) > 0 {
		next = existing[len(existing)-1].Version + 1
	}
	nv.Version = next
	if nv.CreatedAt.IsZero() {
		nv.CreatedAt = time.Now()
	}
	clone := *nv
	m.nodeVersions[key] = append(existing, &clone)
	return nil
}

// LatestNodeVersion returns the highest-Version row for (nodeID, versionID).
func (m *MemoryPort) LatestNodeVersion(_ context.Context, nodeID, versionID string) (*models.NodeVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.nodeVersions[nodeVersionKey(nodeID, versionID)]
	if len(rows) == 0 {
		return nil, models.NewPersistenceError("LatestNodeVersion", models.PersistenceNotFound, models.ErrNodeVersionNotFound)
	}
	clone := *rows[len(rows)-1]
	return &clone, nil
}

func (m *MemoryPort) StartNodeInvocation(_ context.Context, start *models.NodeInvocation) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if start.NodeInvocationID == "" {
		start.NodeInvocationID = uuid.NewString()
	}
	if start.Status == "" {
		start.Status = models.NodeInvocationRunning
	}
	if start.StartTime.IsZero() {
		start.StartTime = time.Now()
	}
	if start.AttemptNo == 0 {
		start.AttemptNo = 1
	}
	clone := *start
	m.nodeInvocations[start.NodeInvocationID] = &clone
	return start.NodeInvocationID, nil
}

func (m *MemoryPort) EndNodeInvocation(_ context.Context, end *models.NodeInvocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.nodeInvocations[end.NodeInvocationID]
	if !ok {
		return models.NewPersistenceError("EndNodeInvocation", models.PersistenceNotFound, models.ErrNodeInvocationNotFound)
	}
	if existing.Status.IsTerminal() {
		return models.NewPersistenceError("EndNodeInvocation", models.PersistenceConflict, models.ErrIllegalTransition)
	}
	clone := *end
	if clone.StartTime.IsZero() {
		clone.StartTime = existing.StartTime
	}
	m.nodeInvocations[end.NodeInvocationID] = &clone
	return nil
}

// SaveMessage inserts a Message, enforcing MsgID uniqueness and that Seq
// is the next contiguous value for InvocationID.
func (m *MemoryPort) SaveMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.MsgID == "" {
		msg.MsgID = uuid.NewString()
	}
	if _, exists := m.messages[msg.MsgID]; exists {
		return models.NewPersistenceError("SaveMessage", models.PersistenceDuplicateKey, models.ErrDuplicateKey)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	clone := *msg
	m.messages[msg.MsgID] = &clone
	m.messagesByInvoke[msg.InvocationID] = append(m.messagesByInvoke[msg.InvocationID], msg.MsgID)
	return nil
}

func (m *MemoryPort) ListInvocations(_ context.Context, page, pageSize int, filters repository.InvocationFilters, s repository.Sort) (*repository.InvocationPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*models.WorkflowInvocation
	for _, inv := range m.invocations {
		if matchesFilters(inv, filters) {
			clone := *inv
			matched = append(matched, &clone)
		}
	}

	sortInvocations(matched, s)

	agg := repository.Aggregates{}
	failed := 0
	var accSum float64
	var accN int
	for _, inv := range matched {
		agg.TotalSpentUSD += inv.USDCost
		if inv.Status == models.InvocationFailed {
			failed++
		}
		if inv.Accuracy != nil {
			accSum += float64(*inv.Accuracy)
			accN++
		}
	}
	agg.FailedCount = failed
	if accN > 0 {
		agg.AvgAccuracy = accSum / float64(accN)
	}

	total := len(matched)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = total
	}
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &repository.InvocationPage{
		Rows:       matched[start:end],
		TotalCount: total,
		Aggregates: agg,
	}, nil
}

func matchesFilters(inv *models.WorkflowInvocation, f repository.InvocationFilters) bool {
	if f.Status != nil && inv.Status != *f.Status {
		return false
	}
	if f.MinCost != nil && inv.USDCost < *f.MinCost {
		return false
	}
	if f.MaxCost != nil && inv.USDCost > *f.MaxCost {
		return false
	}
	if f.MinAccuracy != nil && (inv.Accuracy == nil || *inv.Accuracy < *f.MinAccuracy) {
		return false
	}
	if f.MaxAccuracy != nil && (inv.Accuracy == nil || *inv.Accuracy > *f.MaxAccuracy) {
		return false
	}
	if f.MinFitness != nil && (inv.FitnessScore == nil || *inv.FitnessScore < *f.MinFitness) {
		return false
	}
	if f.MaxFitness != nil && (inv.FitnessScore == nil || *inv.FitnessScore > *f.MaxFitness) {
		return false
	}
	if f.DateFrom != nil && inv.StartTime.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && inv.StartTime.After(*f.DateTo) {
		return false
	}
	if f.RunID != nil && (inv.RunID == nil || *inv.RunID != *f.RunID) {
		return false
	}
	if f.GenerationID != nil && (inv.GenerationID == nil || *inv.GenerationID != *f.GenerationID) {
		return false
	}
	if f.VersionID != nil && inv.VersionID != *f.VersionID {
		return false
	}
	return true
}

func sortInvocations(rows []*models.WorkflowInvocation, s repository.Sort) {
	less := func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch s.Field {
		case repository.SortByUSDCost:
			return a.USDCost < b.USDCost
		case repository.SortByStatus:
			return a.Status < b.Status
		case repository.SortByFitness:
			af, bf := float64(0), float64(0)
			if a.FitnessScore != nil {
				af = *a.FitnessScore
			}
			if b.FitnessScore != nil {
				bf = *b.FitnessScore
			}
			return af < bf
		case repository.SortByAccuracy:
			aa, ba := 0, 0
			if a.Accuracy != nil {
				aa = *a.Accuracy
			}
			if b.Accuracy != nil {
				ba = *b.Accuracy
			}
			return aa < ba
		case repository.SortByDuration:
			return a.Duration() < b.Duration()
		default:
			return a.StartTime.Before(b.StartTime)
		}
	}
	if s.Order == repository.SortDescending {
		sort.Slice(rows, func(i, j int) bool { return less(j, i) })
	} else {
		sort.Slice(rows, func(i, j int) bool { return less(i, j) })
	}
}

func (m *MemoryPort) GetTrace(_ context.Context, invocationID string) (*repository.Trace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invocations[invocationID]
	if !ok {
		return nil, models.NewPersistenceError("GetTrace", models.PersistenceNotFound, models.ErrInvocationNotFound)
	}
	version := m.versions[inv.VersionID]
	workflow := m.workflows[version.WorkflowID]

	var nodeInvs []*models.NodeInvocation
	for _, ni := range m.nodeInvocations {
		if ni.InvocationID == invocationID {
			clone := *ni
			nodeInvs = append(nodeInvs, &clone)
		}
	}
	sort.Slice(nodeInvs, func(i, j int) bool { return nodeInvs[i].StartTime.Before(nodeInvs[j].StartTime) })

	var msgs []*models.Message
	for _, id := range m.messagesByInvoke[invocationID] {
		clone := *m.messages[id]
		msgs = append(msgs, &clone)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Seq < msgs[j].Seq })

	var workflowClone *models.Workflow
	if workflow != nil {
		wc := *workflow
		workflowClone = &wc
	}
	var versionClone *models.WorkflowVersion
	if version != nil {
		vc := *version
		versionClone = &vc
	}

	return &repository.Trace{
		Workflow:        workflowClone,
		Version:         versionClone,
		NodeInvocations: nodeInvs,
		Messages:        msgs,
	}, nil
}

func (m *MemoryPort) DeleteInvocations(_ context.Context, invocationIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make(map[string]bool, len(invocationIDs))
	for _, id := range invocationIDs {
		ids[id] = true
	}
	for id := range ids {
		delete(m.invocations, id)
		for msgID, msg := range m.messages {
			if msg.InvocationID == id {
				delete(m.messages, msgID)
			}
		}
		delete(m.messagesByInvoke, id)
		for niID, ni := range m.nodeInvocations {
			if ni.InvocationID == id {
				delete(m.nodeInvocations, niID)
			}
		}
	}
	return nil
}

// CleanupStale finds invocations still running past the grace window and
// force-transitions them to failed, reporting counts (spec.md S6).
func (m *MemoryPort) CleanupStale(_ context.Context, graceWindow time.Duration) (*repository.StaleCleanupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-graceWindow)
	result := &repository.StaleCleanupResult{}

	for _, inv := range m.invocations {
		if inv.Status == models.InvocationRunning && inv.StartTime.Before(cutoff) {
			inv.Status = models.InvocationFailed
			now := time.Now()
			inv.EndTime = &now
			if inv.Extras == nil {
				inv.Extras = map[string]any{}
			}
			inv.Extras["error"] = "cleanup_stale: grace window exceeded"
			result.WorkflowInvocations++
		}
	}
	for _, ni := range m.nodeInvocations {
		if ni.Status == models.NodeInvocationRunning && ni.StartTime.Before(cutoff) {
			ni.Status = models.NodeInvocationFailed
			now := time.Now()
			ni.EndTime = &now
			ni.Error = "cleanup_stale: grace window exceeded"
			result.NodeInvocations++
		}
	}
	return result, nil
}

// WithTransaction runs fn against the same MemoryPort: all methods already
// hold a single mutex per call, so a transactional subview is simply the
// port itself — there is no partial-commit state to roll back in memory.
// Kept as a real method (not a no-op stub) so callers written against the
// interface exercise the same code path an SQL-backed port would take.
func (m *MemoryPort) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.PersistencePort) error) error {
	return fn(ctx, m)
}

var _ repository.PersistencePort = (*MemoryPort)(nil)
