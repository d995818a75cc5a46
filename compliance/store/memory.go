// Package store provides in-process Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/adherence-engine/compliance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps records in arrival order and enforces no uniqueness, exactly
// like the hosted entity API it stands in for.
type Memory struct {
	mu      sync.RWMutex
	records []compliance.Record
	plans   map[compliance.PlanID]compliance.Plan
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		plans: make(map[compliance.PlanID]compliance.Plan),
		now:   time.Now,
	}
}

// Create appends a record. Duplicate keys are accepted.
func (m *Memory) Create(_ context.Context, rec compliance.Record) (compliance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec = rec.Clone()
	if rec.ItemsCompleted == nil {
		rec.ItemsCompleted = compliance.NewItemSet()
	}
	m.records = append(m.records, rec)
	return rec.Clone(), nil
}

func (m *Memory) Update(_ context.Context, id compliance.RecordID, patch compliance.RecordPatch) (compliance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 {
		return compliance.Record{}, compliance.ErrRecordNotFound
	}
	rec := m.records[i]
	if patch.ItemsCompleted != nil {
		rec.ItemsCompleted = patch.ItemsCompleted.Clone()
	}
	if patch.Notes != nil {
		rec.Notes = *patch.Notes
	}
	rec.UpdatedAt = m.now().UTC()
	m.records[i] = rec
	return rec.Clone(), nil
}

func (m *Memory) Delete(_ context.Context, id compliance.RecordID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 {
		return compliance.ErrRecordNotFound
	}
	m.records = append(m.records[:i], m.records[i+1:]...)
	return nil
}

func (m *Memory) Filter(_ context.Context, q compliance.Query) ([]compliance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []compliance.Record
	for _, rec := range m.records {
		if q.Matches(rec) {
			result = append(result, rec.Clone())
		}
	}
	return result, nil
}

// Len returns the number of stored records, duplicates included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *Memory) indexLocked(id compliance.RecordID) int {
	for i, rec := range m.records {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

// =============================================================================
// PLANS
// =============================================================================

func (m *Memory) GetPlan(_ context.Context, id compliance.PlanID) (compliance.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plans[id]
	if !ok {
		return compliance.Plan{}, compliance.ErrPlanNotFound
	}
	return clonePlan(p), nil
}

func (m *Memory) SavePlan(_ context.Context, plan compliance.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.ID] = clonePlan(plan)
	return nil
}

func (m *Memory) ListPlans(_ context.Context) ([]compliance.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plans := make([]compliance.Plan, 0, len(m.plans))
	for _, p := range m.plans {
		plans = append(plans, clonePlan(p))
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].Name != plans[j].Name {
			return plans[i].Name < plans[j].Name
		}
		return plans[i].ID < plans[j].ID
	})
	return plans, nil
}

// Reset drops all records and plans.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.plans = make(map[compliance.PlanID]compliance.Plan)
	return nil
}

func clonePlan(p compliance.Plan) compliance.Plan {
	p.Items = append([]compliance.PlanItem(nil), p.Items...)
	return p
}
