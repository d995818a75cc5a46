package api_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/adherence-engine/api"
	"github.com/warp/adherence-engine/compliance"
	"github.com/warp/adherence-engine/compliance/store"
)

func TestNewSweepScheduler_InvalidSchedule(t *testing.T) {
	_, err := api.NewSweepScheduler(nil, "every tuesday-ish", quietLog())

	assert.Error(t, err)
}

func TestSweepScheduler_RunNow(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := mem.Create(ctx, compliance.Record{
			ID: compliance.RecordID(id), ClientID: "client-1", PlanID: "plan-1",
			Date: today, ItemsCompleted: compliance.NewItemSet(id),
		})
		require.NoError(t, err)
	}
	sweeper := compliance.NewSweeper(mem, compliance.NewReconciler(mem, quietLog()), nil, quietLog())
	sched, err := api.NewSweepScheduler(sweeper, "", quietLog())
	require.NoError(t, err)

	report, err := sched.RunNow(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, report.Removed)
	assert.Equal(t, report, sched.LastReport())
	assert.Equal(t, 1, mem.Len())
}

func TestSweepScheduler_StartStop(t *testing.T) {
	mem := store.NewMemory()
	sweeper := compliance.NewSweeper(mem, compliance.NewReconciler(mem, quietLog()), nil, quietLog())
	sched, err := api.NewSweepScheduler(sweeper, "@every 1h", quietLog())
	require.NoError(t, err)
	assert.True(t, sched.NextRunTime().IsZero())

	sched.Start()
	assert.False(t, sched.NextRunTime().IsZero())
	sched.Stop()
	sched.Stop()
}

func TestSweepScheduler_Disabled(t *testing.T) {
	sched, err := api.NewSweepScheduler(nil, "", quietLog())
	require.NoError(t, err)
	sched.Enabled = false

	sched.Start()
	sched.Stop()

	assert.True(t, sched.NextRunTime().IsZero())
}
