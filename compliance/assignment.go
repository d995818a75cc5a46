/*
assignment.go - Plan assignment lifecycle and cascade deletion

PURPOSE:
  A plan starts as a reusable template, gets assigned to exactly one client,
  and eventually leaves that client by being unassigned or deleted:

      Template --assign--> Assigned(client) --unassign--> Unassigned
          |                      |                           |
          +-------delete---------+-------delete--------------+--> Deleted

  Unassigned plans may be assigned again (the plan ID is reused).

CASCADE:
  Leaving Assigned removes every compliance record of (client, plan). This
  is a required side effect: records left behind would be counted again if
  the plan ID is reused. The cascade runs BEFORE the state change is saved,
  so a failed cascade leaves the plan Assigned and the call can be retried.

SEE ALSO:
  - store.go: PlanStore
  - cache.go: The client's cached history is invalidated after a cascade
*/
package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/warp/adherence-engine/metrics"
)

var transitions = map[PlanState][]PlanState{
	PlanTemplate:   {PlanAssigned, PlanDeleted},
	PlanAssigned:   {PlanUnassigned, PlanDeleted},
	PlanUnassigned: {PlanAssigned, PlanDeleted},
}

// CanTransition reports whether a plan may move from one state to another.
func CanTransition(from, to PlanState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Lifecycle drives plan state transitions.
type Lifecycle struct {
	Plans   PlanStore
	Records Store
	Cache   Cache
	Log     logrus.FieldLogger
	Now     func() time.Time
}

func NewLifecycle(plans PlanStore, records Store, cache Cache, log logrus.FieldLogger) *Lifecycle {
	if cache == nil {
		cache = NopCache{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Lifecycle{
		Plans:   plans,
		Records: records,
		Cache:   cache,
		Log:     log.WithField("component", "lifecycle"),
		Now:     time.Now,
	}
}

// CreateTemplate stores a new unassigned plan. Items without an ID get one.
func (l *Lifecycle) CreateTemplate(ctx context.Context, plan Plan) (Plan, error) {
	if plan.ID == "" {
		plan.ID = PlanID(uuid.NewString())
	}
	if plan.Kind == "" {
		plan.Kind = PlanSupplement
	}
	for i := range plan.Items {
		if plan.Items[i].ID == "" {
			plan.Items[i].ID = uuid.NewString()
		}
	}
	now := l.Now().UTC()
	plan.State = PlanTemplate
	plan.ClientID = ""
	plan.CreatedAt = now
	plan.UpdatedAt = now

	if err := l.Plans.SavePlan(ctx, plan); err != nil {
		return Plan{}, &StorageError{Op: "save_plan", Key: string(plan.ID), Err: err}
	}
	return plan, nil
}

// Assign binds a template (or previously unassigned) plan to a client.
func (l *Lifecycle) Assign(ctx context.Context, planID PlanID, clientID ClientID) (Plan, error) {
	if clientID == "" {
		return Plan{}, fmt.Errorf("%w: client id is required", ErrInvalidTransition)
	}
	plan, err := l.load(ctx, planID, PlanAssigned)
	if err != nil {
		return Plan{}, err
	}
	plan.ClientID = clientID
	return l.save(ctx, plan, PlanAssigned)
}

// Unassign detaches the plan from its client and deletes the client's
// compliance history for it. Returns the number of records removed.
func (l *Lifecycle) Unassign(ctx context.Context, planID PlanID) (Plan, int, error) {
	return l.leave(ctx, planID, PlanUnassigned)
}

// Delete retires the plan. An assigned plan cascades like Unassign.
func (l *Lifecycle) Delete(ctx context.Context, planID PlanID) (Plan, int, error) {
	return l.leave(ctx, planID, PlanDeleted)
}

func (l *Lifecycle) leave(ctx context.Context, planID PlanID, to PlanState) (Plan, int, error) {
	plan, err := l.load(ctx, planID, to)
	if err != nil {
		return Plan{}, 0, err
	}

	removed := 0
	if plan.State == PlanAssigned {
		removed, err = l.cascade(ctx, plan.ClientID, plan.ID)
		if err != nil {
			return Plan{}, removed, err
		}
	}

	if to == PlanUnassigned {
		plan.ClientID = ""
	}
	saved, err := l.save(ctx, plan, to)
	return saved, removed, err
}

func (l *Lifecycle) cascade(ctx context.Context, clientID ClientID, planID PlanID) (int, error) {
	records, err := l.Records.Filter(ctx, PairQuery(clientID, planID))
	if err != nil {
		return 0, &StorageError{Op: "filter", Key: PairKey{clientID, planID}.String(), Err: err}
	}

	removed := 0
	for _, rec := range records {
		if err := l.Records.Delete(ctx, rec.ID); err != nil && !errors.Is(err, ErrRecordNotFound) {
			metrics.RecordCascadeDeleted(removed)
			return removed, storageErr("delete", rec.Key(), err)
		}
		removed++
	}

	metrics.RecordCascadeDeleted(removed)
	if err := l.Cache.Invalidate(ctx, PairKey{ClientID: clientID, PlanID: planID}); err != nil {
		l.Log.WithError(err).Warn("cache invalidation failed")
	}
	l.Log.WithFields(logrus.Fields{
		"client_id": clientID,
		"plan_id":   planID,
		"removed":   removed,
	}).Info("cascade deleted compliance history")
	return removed, nil
}

func (l *Lifecycle) load(ctx context.Context, planID PlanID, to PlanState) (Plan, error) {
	plan, err := l.Plans.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return Plan{}, err
		}
		return Plan{}, &StorageError{Op: "get_plan", Key: string(planID), Err: err}
	}
	if !CanTransition(plan.State, to) {
		return Plan{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, plan.State, to)
	}
	return plan, nil
}

func (l *Lifecycle) save(ctx context.Context, plan Plan, to PlanState) (Plan, error) {
	from := plan.State
	plan.State = to
	plan.UpdatedAt = l.Now().UTC()
	if err := l.Plans.SavePlan(ctx, plan); err != nil {
		return Plan{}, &StorageError{Op: "save_plan", Key: string(plan.ID), Err: err}
	}
	l.Log.WithFields(logrus.Fields{
		"plan_id":   plan.ID,
		"client_id": plan.ClientID,
		"from":      from,
		"to":        to,
	}).Info("plan state changed")
	return plan, nil
}
