package compliance_test

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/warp/adherence-engine/compliance"
	"github.com/warp/adherence-engine/compliance/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	client compliance.ClientID = "client-1"
	plan   compliance.PlanID   = "plan-1"
)

var march10 = compliance.NewDate(2025, 3, 10)

func quietLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func record(id string, date compliance.Date, items ...string) compliance.Record {
	return compliance.Record{
		ID:             compliance.RecordID(id),
		ClientID:       client,
		PlanID:         plan,
		Date:           date,
		ItemsCompleted: compliance.NewItemSet(items...),
	}
}

// seed writes records straight to the store, the way concurrent devices do.
func seed(t *testing.T, s compliance.Store, recs ...compliance.Record) []compliance.Record {
	t.Helper()
	out := make([]compliance.Record, 0, len(recs))
	for _, r := range recs {
		created, err := s.Create(context.Background(), r)
		require.NoError(t, err)
		out = append(out, created)
	}
	return out
}

func stored(t *testing.T, s compliance.Store, date compliance.Date) []compliance.Record {
	t.Helper()
	recs, err := s.Filter(context.Background(), compliance.KeyQuery(compliance.Key{ClientID: client, PlanID: plan, Date: date}))
	require.NoError(t, err)
	return recs
}

func newFaultyMemory() (*store.Memory, *store.Faulty) {
	mem := store.NewMemory()
	return mem, store.NewFaulty(mem)
}

// sequentialIDs returns an ID generator yielding r1, r2, ...
func sequentialIDs() func() compliance.RecordID {
	n := 0
	return func() compliance.RecordID {
		n++
		return compliance.RecordID(fmt.Sprintf("r%d", n))
	}
}
