package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshagent/meshagent/internal/domain/repository"
	"github.com/meshagent/meshagent/pkg/models"
)

func TestCreateWorkflowVersion_IdempotentUpsert(t *testing.T) {
	m := New()
	ctx := context.Background()

	v := &models.WorkflowVersion{
		VersionID:  "v1",
		WorkflowID: "wf1",
		Operation:  models.VersionOperationInit,
		DSL: models.DSL{
			EntryNodeID: "start",
			Nodes: map[string]models.WorkflowNodeConfig{
				"start": {NodeID: "start", SystemPrompt: "x", ModelName: "m", HandOffs: []string{"end"}},
			},
		},
	}
	require.NoError(t, m.CreateWorkflowVersion(ctx, v))
	require.NoError(t, m.CreateWorkflowVersion(ctx, v))
	require.Len(t, m.versions, 1)
}

func TestUpdateWorkflowInvocation_StatusMonotonicity(t *testing.T) {
	m := New()
	ctx := context.Background()

	inv := &models.WorkflowInvocation{InvocationID: "i1", VersionID: "v1"}
	require.NoError(t, m.CreateWorkflowInvocation(ctx, inv))

	completed := models.InvocationCompleted
	require.NoError(t, m.UpdateWorkflowInvocation(ctx, &models.WorkflowInvocationPatch{InvocationID: "i1", Status: &completed}))

	running := models.InvocationRunning
	err := m.UpdateWorkflowInvocation(ctx, &models.WorkflowInvocationPatch{InvocationID: "i1", Status: &running})
	require.Error(t, err)

	var perr *models.PersistenceError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, models.PersistenceConflict, perr.Kind)
}

func TestUpdateWorkflowInvocation_RoundsAccuracy(t *testing.T) {
	m := New()
	ctx := context.Background()
	require.NoError(t, m.CreateWorkflowInvocation(ctx, &models.WorkflowInvocation{InvocationID: "i1"}))

	acc := 87.6
	require.NoError(t, m.UpdateWorkflowInvocation(ctx, &models.WorkflowInvocationPatch{InvocationID: "i1", Accuracy: &acc}))

	inv, err := m.GetWorkflowInvocation(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, 88, *inv.Accuracy)
}

func TestSaveMessage_DuplicateKeyRejected(t *testing.T) {
	m := New()
	ctx := context.Background()
	msg := &models.Message{MsgID: "m1", InvocationID: "i1", Seq: 1}
	require.NoError(t, m.SaveMessage(ctx, msg))
	err := m.SaveMessage(ctx, msg)
	require.Error(t, err)
	var perr *models.PersistenceError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, models.PersistenceDuplicateKey, perr.Kind)
}

func TestSaveNodeVersion_MonotonicPerNodeAndVersion(t *testing.T) {
	m := New()
	ctx := context.Background()

	nv1 := &models.NodeVersion{NodeID: "n1", VersionID: "v1"}
	require.NoError(t, m.SaveNodeVersion(ctx, nv1))
	require.Equal(t, 1, nv1.Version)

	nv2 := &models.NodeVersion{NodeID: "n1", VersionID: "v1"}
	require.NoError(t, m.SaveNodeVersion(ctx, nv2))
	require.Equal(t, 2, nv2.Version)

	other := &models.NodeVersion{NodeID: "n2", VersionID: "v1"}
	require.NoError(t, m.SaveNodeVersion(ctx, other))
	require.Equal(t, 1, other.Version)

	latest, err := m.LatestNodeVersion(ctx, "n1", "v1")
	require.NoError(t, err)
	require.Equal(t, 2, latest.Version)
}

func TestCleanupStale_TransitionsOldRunningInvocations(t *testing.T) {
	m := New()
	ctx := context.Background()

	old := &models.WorkflowInvocation{
		InvocationID: "old",
		Status:       models.InvocationRunning,
		StartTime:    time.Now().Add(-time.Hour),
	}
	m.invocations["old"] = old

	fresh := &models.WorkflowInvocation{
		InvocationID: "fresh",
		Status:       models.InvocationRunning,
		StartTime:    time.Now(),
	}
	m.invocations["fresh"] = fresh

	result, err := m.CleanupStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, result.WorkflowInvocations)

	got, err := m.GetWorkflowInvocation(ctx, "old")
	require.NoError(t, err)
	require.Equal(t, models.InvocationFailed, got.Status)
	require.NotNil(t, got.EndTime)

	got, err = m.GetWorkflowInvocation(ctx, "fresh")
	require.NoError(t, err)
	require.Equal(t, models.InvocationRunning, got.Status)
}

func TestListInvocations_FiltersSortsAndAggregates(t *testing.T) {
	m := New()
	ctx := context.Background()

	acc1, acc2 := 90, 50
	require.NoError(t, m.CreateWorkflowInvocation(ctx, &models.WorkflowInvocation{
		InvocationID: "a", Status: models.InvocationCompleted, USDCost: 1.0, Accuracy: &acc1,
	}))
	require.NoError(t, m.CreateWorkflowInvocation(ctx, &models.WorkflowInvocation{
		InvocationID: "b", Status: models.InvocationFailed, USDCost: 2.0, Accuracy: &acc2,
	}))

	page, err := m.ListInvocations(ctx, 1, 10, repository.InvocationFilters{}, repository.Sort{Field: repository.SortByUSDCost, Order: repository.SortDescending})
	require.NoError(t, err)
	require.Equal(t, 2, page.TotalCount)
	require.Equal(t, "b", page.Rows[0].InvocationID)
	require.InDelta(t, 3.0, page.Aggregates.TotalSpentUSD, 1e-9)
	require.Equal(t, 1, page.Aggregates.FailedCount)
	require.InDelta(t, 70.0, page.Aggregates.AvgAccuracy, 1e-9)

	failed := models.InvocationFailed
	page, err = m.ListInvocations(ctx, 1, 10, repository.InvocationFilters{Status: &failed}, repository.Sort{})
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalCount)
	require.Equal(t, "b", page.Rows[0].InvocationID)
}

func TestDeleteInvocations_CascadesMessagesAndNodeInvocations(t *testing.T) {
	m := New()
	ctx := context.Background()
	require.NoError(t, m.CreateWorkflowInvocation(ctx, &models.WorkflowInvocation{InvocationID: "i1"}))
	require.NoError(t, m.SaveMessage(ctx, &models.Message{MsgID: "m1", InvocationID: "i1", Seq: 1}))
	_, err := m.StartNodeInvocation(ctx, &models.NodeInvocation{NodeInvocationID: "ni1", InvocationID: "i1"})
	require.NoError(t, err)

	require.NoError(t, m.DeleteInvocations(ctx, []string{"i1"}))

	_, err = m.GetWorkflowInvocation(ctx, "i1")
	require.Error(t, err)
	require.Empty(t, m.messagesByInvoke["i1"])
	require.NotContains(t, m.nodeInvocations, "ni1")
}
