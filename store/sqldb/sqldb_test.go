package sqldb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/adherence-engine/compliance"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// Deterministic, strictly increasing arrival stamps.
	clock := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	return store
}

var day = compliance.NewDate(2025, 3, 10)

func rec(id string, items ...string) compliance.Record {
	return compliance.Record{
		ID:             compliance.RecordID(id),
		ClientID:       "client-1",
		PlanID:         "plan-1",
		Date:           day,
		ItemsCompleted: compliance.NewItemSet(items...),
	}
}

// =============================================================================
// RECORDS
// =============================================================================

func TestStore_DuplicateKeysAcceptedInArrivalOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// IDs sort opposite to arrival so ordering cannot come from id.
	_, err := s.Create(ctx, rec("z-phone", "Creatine"))
	require.NoError(t, err)
	_, err = s.Create(ctx, rec("a-tablet", "Vitamin D"))
	require.NoError(t, err)

	got, err := s.Filter(ctx, compliance.KeyQuery(rec("x").Key()))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, compliance.RecordID("z-phone"), got[0].ID)
	assert.Equal(t, compliance.RecordID("a-tablet"), got[1].ID)
	assert.Equal(t, day, got[0].Date)
	assert.Equal(t, []string{"Creatine"}, got[0].ItemsCompleted.Sorted())
}

func TestStore_UpdateAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, rec("r1", "x"))
	require.NoError(t, err)

	items := compliance.NewItemSet("x", "y")
	notes := "after lunch"
	updated, err := s.Update(ctx, "r1", compliance.RecordPatch{ItemsCompleted: &items, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, updated.ItemsCompleted.Sorted())

	got, err := s.Filter(ctx, compliance.PairQuery("client-1", "plan-1"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "after lunch", got[0].Notes)
	assert.True(t, got[0].ItemsCompleted.Equal(items))

	require.NoError(t, s.Delete(ctx, "r1"))
	assert.ErrorIs(t, s.Delete(ctx, "r1"), compliance.ErrRecordNotFound)
	_, err = s.Update(ctx, "r1", compliance.RecordPatch{})
	assert.ErrorIs(t, err, compliance.ErrRecordNotFound)
}

func TestStore_FilterScopes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	other := rec("r2", "x")
	other.ClientID = "client-2"
	nextDay := rec("r3", "x")
	nextDay.Date = day.AddDays(1)
	for _, r := range []compliance.Record{rec("r1", "x"), other, nextDay} {
		_, err := s.Create(ctx, r)
		require.NoError(t, err)
	}

	all, err := s.Filter(ctx, compliance.Query{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pair, err := s.Filter(ctx, compliance.PairQuery("client-1", "plan-1"))
	require.NoError(t, err)
	assert.Len(t, pair, 2)

	key, err := s.Filter(ctx, compliance.KeyQuery(rec("r1").Key()))
	require.NoError(t, err)
	require.Len(t, key, 1)
	assert.Equal(t, compliance.RecordID("r1"), key[0].ID)
}

func TestStore_ReconcilerEndToEnd(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, r := range []compliance.Record{rec("a", "x"), rec("b", "y"), rec("c", "z")} {
		_, err := s.Create(ctx, r)
		require.NoError(t, err)
	}

	m := compliance.NewMutator(s, compliance.MutatorOptions{})
	merged, err := m.ToggleItem(ctx, "client-1", "plan-1", day, "w", true)
	require.NoError(t, err)

	assert.Equal(t, compliance.RecordID("a"), merged.ID)
	assert.Equal(t, []string{"w", "x", "y", "z"}, merged.ItemsCompleted.Sorted())

	left, err := s.Filter(ctx, compliance.Query{})
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

// =============================================================================
// PLANS
// =============================================================================

func TestStore_Plans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetPlan(ctx, "plan-1")
	assert.ErrorIs(t, err, compliance.ErrPlanNotFound)

	p := compliance.Plan{
		ID:    "plan-1",
		Name:  "Foundations",
		Kind:  compliance.PlanSupplement,
		State: compliance.PlanTemplate,
		Items: []compliance.PlanItem{{ID: "i1", Name: "Creatine", Dosage: "5g", Timing: "morning"}},
	}
	require.NoError(t, s.SavePlan(ctx, p))

	p.State = compliance.PlanAssigned
	p.ClientID = "client-1"
	require.NoError(t, s.SavePlan(ctx, p))

	got, err := s.GetPlan(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, compliance.PlanAssigned, got.State)
	assert.Equal(t, compliance.ClientID("client-1"), got.ClientID)
	assert.Equal(t, p.Items, got.Items)

	plans, err := s.ListPlans(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 1)
}

func TestStore_Reset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, rec("r1"))
	require.NoError(t, err)
	require.NoError(t, s.SavePlan(ctx, compliance.Plan{ID: "p", Name: "p", Kind: compliance.PlanSupplement, State: compliance.PlanTemplate}))

	require.NoError(t, s.Reset(ctx))

	all, err := s.Filter(ctx, compliance.Query{})
	require.NoError(t, err)
	assert.Empty(t, all)
	plans, err := s.ListPlans(ctx)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("mysql", "whatever")
	assert.Error(t, err)
}
