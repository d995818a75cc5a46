/*
mutator.go - The toggle-item-taken operation

PURPOSE:
  ToggleItem is the only write path of daily tracking. It reconciles the
  day's candidates, applies the toggle to the canonical record, and either
  updates it in place or creates the first record of the day.

ALGORITHM:
  0. With a PlanProvider, require the plan to be Assigned to the client
  1. Filter records by (client, plan, date)
  2. Reconcile them into the canonical record (or nil)
  3. items := canonical ∪ {item}  or  canonical \ {item}
  4. Update canonical in place, or Create a new record (empty set allowed)
  5. Invalidate the cached history of (client, plan)

IDEMPOTENCE:
  Set semantics make the same call twice land in the same state, so a caller
  that saw a StorageError can retry blindly. ToggleItem itself retries once
  under RetryPolicy.

CONSISTENCY:
  This is eventually consistent, not linearizable. Two devices toggling the
  same fresh day at the same time may both miss each other's create in step 1
  and produce two records. The next ToggleItem, History read or Sweep merges
  them without loss. No locks are taken anywhere.

SEE ALSO:
  - reconcile.go: Step 2
  - optimistic.go: Client-side rollback around ToggleItem
*/
package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/warp/adherence-engine/metrics"
)

// MutatorOptions configures a Mutator. Every field is optional.
type MutatorOptions struct {
	Plans PlanProvider // when set, writes require an assigned plan
	Cache Cache
	Retry *RetryPolicy
	Log   logrus.FieldLogger
	NewID func() RecordID
	Now   func() time.Time
}

// Mutator applies toggles to compliance records.
type Mutator struct {
	store      Store
	reconciler *Reconciler
	plans      PlanProvider
	cache      Cache
	retry      RetryPolicy
	log        logrus.FieldLogger
	newID      func() RecordID
	now        func() time.Time
}

func NewMutator(store Store, opts MutatorOptions) *Mutator {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Cache == nil {
		opts.Cache = NopCache{}
	}
	if opts.NewID == nil {
		opts.NewID = func() RecordID { return RecordID(uuid.NewString()) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	retry := DefaultRetryPolicy
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	return &Mutator{
		store:      store,
		reconciler: NewReconciler(store, opts.Log),
		plans:      opts.Plans,
		cache:      opts.Cache,
		retry:      retry,
		log:        opts.Log.WithField("component", "mutator"),
		newID:      opts.NewID,
		now:        opts.Now,
	}
}

// Reconciler returns the reconciler the mutator runs before every write.
func (m *Mutator) Reconciler() *Reconciler { return m.reconciler }

// ToggleResult is the outcome of Toggle.
type ToggleResult struct {
	Record Record
	// Warning is set when the item is outside the plan's current items.
	Warning *ValidationWarning
}

// ToggleItem marks itemName taken (setTaken) or not taken for a day and
// returns the resulting canonical record.
func (m *Mutator) ToggleItem(ctx context.Context, clientID ClientID, planID PlanID, date Date, itemName string, setTaken bool) (Record, error) {
	res, err := m.Toggle(ctx, clientID, planID, date, itemName, setTaken)
	return res.Record, err
}

// Toggle is ToggleItem that also reports an unknown-item warning. The
// warning never blocks the write.
func (m *Mutator) Toggle(ctx context.Context, clientID ClientID, planID PlanID, date Date, itemName string, setTaken bool) (ToggleResult, error) {
	if itemName == "" {
		return ToggleResult{}, ErrEmptyItemName
	}
	key := Key{ClientID: clientID, PlanID: planID, Date: date}
	log := m.log.WithFields(logrus.Fields{
		"client_id": clientID,
		"plan_id":   planID,
		"date":      date.String(),
		"item":      itemName,
		"taken":     setTaken,
	})

	plan, err := m.assignedPlan(ctx, clientID, planID)
	if err != nil {
		metrics.RecordToggle("rejected")
		return ToggleResult{}, err
	}
	var warning *ValidationWarning
	if plan != nil && !plan.HasItem(itemName) {
		warning = &ValidationWarning{PlanID: planID, Item: itemName}
		metrics.RecordUnknownItem()
		log.Warn(warning.String())
	}

	var result Record
	var outcome string
	err = m.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		result, outcome, err = m.toggleOnce(ctx, key, itemName, setTaken)
		return err
	}, func(attempt int, err error) {
		metrics.RecordToggleRetry()
		log.WithError(err).WithField("attempt", attempt).Warn("retrying toggle")
	})
	if err != nil {
		metrics.RecordToggle("error")
		return ToggleResult{}, err
	}

	metrics.RecordToggle(outcome)
	m.invalidate(ctx, key)
	return ToggleResult{Record: result, Warning: warning}, nil
}

// assignedPlan loads the plan and checks it is Assigned to clientID. It
// returns nil, nil when the mutator has no PlanProvider.
func (m *Mutator) assignedPlan(ctx context.Context, clientID ClientID, planID PlanID) (*Plan, error) {
	if m.plans == nil {
		return nil, nil
	}
	plan, err := m.plans.GetPlan(ctx, planID)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, &StorageError{Op: "get_plan", Key: string(planID), Err: err}
	}
	if plan.State != PlanAssigned || plan.ClientID != clientID {
		return nil, fmt.Errorf("%w: plan %s is %s", ErrPlanNotAssigned, planID, plan.State)
	}
	return &plan, nil
}

func (m *Mutator) toggleOnce(ctx context.Context, key Key, itemName string, setTaken bool) (Record, string, error) {
	current, err := m.Canonical(ctx, key)
	if err != nil {
		return Record{}, "", err
	}

	items := NewItemSet()
	if current != nil {
		items = current.ItemsCompleted.Clone()
	}
	if setTaken {
		items = items.With(itemName)
	} else {
		items = items.Without(itemName)
	}

	if current == nil {
		created, err := m.create(ctx, key, items, "")
		return created, "created", err
	}
	if items.Equal(current.ItemsCompleted) {
		return *current, "unchanged", nil
	}
	updated, err := m.store.Update(ctx, current.ID, RecordPatch{ItemsCompleted: &items})
	if err != nil {
		return Record{}, "", storageErr("update", key, err)
	}
	return updated, "updated", nil
}

// SetNotes replaces the free-text notes of a day, creating the day's record
// if none exists yet.
func (m *Mutator) SetNotes(ctx context.Context, clientID ClientID, planID PlanID, date Date, notes string) (Record, error) {
	if _, err := m.assignedPlan(ctx, clientID, planID); err != nil {
		return Record{}, err
	}
	key := Key{ClientID: clientID, PlanID: planID, Date: date}
	var result Record
	err := m.retry.Do(ctx, func(ctx context.Context) error {
		current, err := m.Canonical(ctx, key)
		if err != nil {
			return err
		}
		if current == nil {
			result, err = m.create(ctx, key, NewItemSet(), notes)
			return err
		}
		if current.Notes == notes {
			result = *current
			return nil
		}
		result, err = m.store.Update(ctx, current.ID, RecordPatch{Notes: &notes})
		return storageErr("update", key, err)
	}, nil)
	if err != nil {
		return Record{}, err
	}
	m.invalidate(ctx, key)
	return result, nil
}

// RenameItem rewrites historical completions of oldName to newName for every
// record of a client+plan. Use it when a plan edit renames an item so that
// history is not orphaned. Returns the number of records rewritten.
func (m *Mutator) RenameItem(ctx context.Context, clientID ClientID, planID PlanID, oldName, newName string) (int, error) {
	if oldName == "" || newName == "" {
		return 0, ErrEmptyItemName
	}
	if oldName == newName {
		return 0, nil
	}
	if _, err := m.assignedPlan(ctx, clientID, planID); err != nil {
		return 0, err
	}
	records, err := m.store.Filter(ctx, PairQuery(clientID, planID))
	if err != nil {
		return 0, storageErr("filter", Key{}, err)
	}

	touched := 0
	for _, rec := range records {
		if !rec.ItemsCompleted.Has(oldName) {
			continue
		}
		items := rec.ItemsCompleted.Without(oldName).With(newName)
		if _, err := m.store.Update(ctx, rec.ID, RecordPatch{ItemsCompleted: &items}); err != nil {
			m.invalidate(ctx, rec.Key())
			return touched, storageErr("update", rec.Key(), err)
		}
		touched++
	}

	m.invalidate(ctx, Key{ClientID: clientID, PlanID: planID})
	m.log.WithFields(logrus.Fields{
		"client_id": clientID,
		"plan_id":   planID,
		"from":      oldName,
		"to":        newName,
		"records":   touched,
	}).Info("renamed item in compliance history")
	return touched, nil
}

// Canonical fetches and reconciles the candidates for key. Returns nil when
// the day has no record yet.
func (m *Mutator) Canonical(ctx context.Context, key Key) (*Record, error) {
	candidates, err := m.store.Filter(ctx, KeyQuery(key))
	if err != nil {
		return nil, storageErr("filter", key, err)
	}
	return m.reconciler.Reconcile(ctx, candidates)
}

// CheckItem reports whether itemName is outside the plan's current items.
// A missing plan or provider yields no warning.
func (m *Mutator) CheckItem(ctx context.Context, planID PlanID, itemName string) *ValidationWarning {
	if m.plans == nil {
		return nil
	}
	plan, err := m.plans.GetPlan(ctx, planID)
	if err != nil {
		m.log.WithError(err).WithField("plan_id", planID).Debug("plan lookup skipped for item check")
		return nil
	}
	if plan.HasItem(itemName) {
		return nil
	}
	return &ValidationWarning{PlanID: planID, Item: itemName}
}

func (m *Mutator) create(ctx context.Context, key Key, items ItemSet, notes string) (Record, error) {
	now := m.now().UTC()
	rec := Record{
		ID:             m.newID(),
		ClientID:       key.ClientID,
		PlanID:         key.PlanID,
		Date:           key.Date,
		ItemsCompleted: items,
		Notes:          notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := m.store.Create(ctx, rec)
	if err != nil {
		return Record{}, storageErr("create", key, err)
	}
	return created, nil
}

func (m *Mutator) invalidate(ctx context.Context, key Key) {
	pair := PairKey{ClientID: key.ClientID, PlanID: key.PlanID}
	if err := m.cache.Invalidate(ctx, pair); err != nil {
		m.log.WithError(err).WithField("key", pair.String()).Warn("cache invalidation failed")
	}
}
