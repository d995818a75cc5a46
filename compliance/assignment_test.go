package compliance_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/adherence-engine/compliance"
	"github.com/warp/adherence-engine/compliance/store"
)

func newTestLifecycle(t *testing.T) (*compliance.Lifecycle, *store.Memory, *store.Faulty) {
	t.Helper()
	mem, faulty := newFaultyMemory()
	return compliance.NewLifecycle(mem, faulty, nil, quietLog()), mem, faulty
}

func createAssigned(t *testing.T, l *compliance.Lifecycle) compliance.Plan {
	t.Helper()
	ctx := context.Background()
	p, err := l.CreateTemplate(ctx, compliance.Plan{
		ID:    plan,
		Name:  "Foundations",
		Items: []compliance.PlanItem{{Name: "Creatine"}, {Name: "Vitamin D"}},
	})
	require.NoError(t, err)
	p, err = l.Assign(ctx, p.ID, client)
	require.NoError(t, err)
	return p
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to compliance.PlanState
		want     bool
	}{
		{compliance.PlanTemplate, compliance.PlanAssigned, true},
		{compliance.PlanTemplate, compliance.PlanDeleted, true},
		{compliance.PlanTemplate, compliance.PlanUnassigned, false},
		{compliance.PlanAssigned, compliance.PlanUnassigned, true},
		{compliance.PlanAssigned, compliance.PlanDeleted, true},
		{compliance.PlanAssigned, compliance.PlanAssigned, false},
		{compliance.PlanUnassigned, compliance.PlanAssigned, true},
		{compliance.PlanUnassigned, compliance.PlanDeleted, true},
		{compliance.PlanDeleted, compliance.PlanAssigned, false},
		{compliance.PlanDeleted, compliance.PlanTemplate, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, compliance.CanTransition(tt.from, tt.to))
		})
	}
}

func TestCreateTemplate_AssignsIDsAndDefaults(t *testing.T) {
	l, mem, _ := newTestLifecycle(t)

	p, err := l.CreateTemplate(context.Background(), compliance.Plan{
		Name:  "Morning stack",
		Items: []compliance.PlanItem{{Name: "Creatine"}},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.NotEmpty(t, p.Items[0].ID)
	assert.Equal(t, compliance.PlanSupplement, p.Kind)
	assert.Equal(t, compliance.PlanTemplate, p.State)

	saved, err := mem.GetPlan(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, saved.Name)
}

func TestAssign_BindsClient(t *testing.T) {
	l, _, _ := newTestLifecycle(t)

	p := createAssigned(t, l)

	assert.Equal(t, compliance.PlanAssigned, p.State)
	assert.Equal(t, client, p.ClientID)
}

func TestUnassign_CascadesOnlyThatClientsRecords(t *testing.T) {
	// GIVEN: client-1 has 3 days of history on plan-1, client-2 has one day
	// WHEN: plan-1 is unassigned
	// THEN: client-1's records are gone, client-2's remain

	l, mem, _ := newTestLifecycle(t)
	createAssigned(t, l)

	other := record("other", march10, "x")
	other.ClientID = "client-2"
	seed(t, mem,
		record("a", march10, "x"),
		record("b", march10, "y"),
		record("c", march10.AddDays(1), "x"),
		other,
	)

	p, removed, err := l.Unassign(context.Background(), plan)

	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Equal(t, compliance.PlanUnassigned, p.State)
	assert.Empty(t, p.ClientID)
	assert.Equal(t, 1, mem.Len())
}

func TestUnassign_ThenReassign_StartsWithEmptyHistory(t *testing.T) {
	l, mem, _ := newTestLifecycle(t)
	ctx := context.Background()
	createAssigned(t, l)
	seed(t, mem, record("a", march10, "x"))

	_, _, err := l.Unassign(ctx, plan)
	require.NoError(t, err)

	p, err := l.Assign(ctx, plan, client)
	require.NoError(t, err)
	assert.Equal(t, compliance.PlanAssigned, p.State)
	assert.Empty(t, stored(t, mem, march10))
}

func TestDelete_Template_NoCascade(t *testing.T) {
	l, _, faulty := newTestLifecycle(t)
	_, err := l.CreateTemplate(context.Background(), compliance.Plan{ID: plan, Name: "Unused"})
	require.NoError(t, err)

	p, removed, err := l.Delete(context.Background(), plan)

	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, compliance.PlanDeleted, p.State)
	assert.Zero(t, faulty.CallCount("filter"))
}

func TestDelete_Assigned_Cascades(t *testing.T) {
	l, mem, _ := newTestLifecycle(t)
	createAssigned(t, l)
	seed(t, mem, record("a", march10, "x"), record("b", march10.AddDays(1), "x"))

	p, removed, err := l.Delete(context.Background(), plan)

	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, compliance.PlanDeleted, p.State)
	assert.Zero(t, mem.Len())
}

func TestDelete_Deleted_InvalidTransition(t *testing.T) {
	l, _, _ := newTestLifecycle(t)
	ctx := context.Background()
	createAssigned(t, l)
	_, _, err := l.Delete(ctx, plan)
	require.NoError(t, err)

	_, _, err = l.Delete(ctx, plan)
	assert.ErrorIs(t, err, compliance.ErrInvalidTransition)

	_, err = l.Assign(ctx, plan, client)
	assert.ErrorIs(t, err, compliance.ErrInvalidTransition)
}

func TestUnassign_CascadeFails_PlanStaysAssigned(t *testing.T) {
	l, mem, faulty := newTestLifecycle(t)
	ctx := context.Background()
	createAssigned(t, l)
	seed(t, mem, record("a", march10, "x"), record("b", march10.AddDays(1), "x"))
	faulty.FailDelete = func(id compliance.RecordID) error {
		if id == "b" {
			return errors.New("unavailable")
		}
		return nil
	}

	_, removed, err := l.Unassign(ctx, plan)

	require.Error(t, err)
	assert.ErrorIs(t, err, compliance.ErrStorage)
	assert.Equal(t, 1, removed)
	p, err := mem.GetPlan(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, compliance.PlanAssigned, p.State)

	faulty.FailDelete = nil
	_, removed, err = l.Unassign(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Zero(t, mem.Len())
}

func TestAssign_UnknownPlan_NotFound(t *testing.T) {
	l, _, _ := newTestLifecycle(t)

	_, err := l.Assign(context.Background(), "missing", client)

	assert.ErrorIs(t, err, compliance.ErrPlanNotFound)
	assert.True(t, compliance.IsNotFound(err))
}
