/*
reconcile.go - Duplicate detection and loss-free merging

PURPOSE:
  The store has no uniqueness constraint on (client, plan, day). Two devices
  that both see "no record yet" will both create one. The Reconciler folds
  such duplicates back into a single canonical record.

ALGORITHM:
  0 candidates  -> nil (nothing tracked yet)
  1 candidate   -> returned unchanged
  N candidates  -> union of every ItemsCompleted, identity of the first
                   candidate in arrival order; canonical updated (only if the
                   union grew), then every other candidate deleted

FAILURE HANDLING:
  - Canonical update fails: StorageError, nothing deleted. No data moved yet.
  - Some deletes fail: ReconciliationPartialFailure is logged and counted,
    leftovers stay in the store, and the merged record is still returned.
    The next pass finds the leftovers again and the union is a no-op, so
    only the deletes are retried.
  - A duplicate already gone (deleted by another device's pass) is fine.

IDEMPOTENCE:
  Reconcile(Reconcile(x)) == Reconcile(x). The output is one record, which
  takes the single-candidate path.

SEE ALSO:
  - mutator.go: Runs Reconcile before every write
  - sweep.go: Runs Reconcile over the whole store
*/
package compliance

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/warp/adherence-engine/metrics"
)

// Reconciler merges duplicate records for one key into a canonical record.
type Reconciler struct {
	Store Store
	Log   logrus.FieldLogger
}

func NewReconciler(store Store, log logrus.FieldLogger) *Reconciler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reconciler{Store: store, Log: log.WithField("component", "reconciler")}
}

// Merge is the pure half of reconciliation. It returns the canonical record
// and whether it differs from the first candidate. candidates must be
// non-empty and share a key.
func Merge(candidates []Record) (Record, bool) {
	canonical := candidates[0].Clone()
	if canonical.ItemsCompleted == nil {
		canonical.ItemsCompleted = NewItemSet()
	}
	changed := false
	for _, dup := range candidates[1:] {
		merged := canonical.ItemsCompleted.Union(dup.ItemsCompleted)
		if !merged.Equal(canonical.ItemsCompleted) {
			canonical.ItemsCompleted = merged
			changed = true
		}
		if canonical.Notes == "" && dup.Notes != "" {
			canonical.Notes = dup.Notes
			changed = true
		}
	}
	return canonical, changed
}

// Reconcile returns the canonical record among candidates, or nil when there
// are none. See the file header for the failure policy.
func (r *Reconciler) Reconcile(ctx context.Context, candidates []Record) (*Record, error) {
	rec, _, err := r.reconcile(ctx, candidates)
	return rec, err
}

// reconcile is Reconcile that also reports how many duplicates it removed.
func (r *Reconciler) reconcile(ctx context.Context, candidates []Record) (*Record, int, error) {
	switch len(candidates) {
	case 0:
		return nil, 0, nil
	case 1:
		rec := candidates[0]
		return &rec, 0, nil
	}

	key := candidates[0].Key()
	canonical, changed := Merge(candidates)

	if changed {
		items := canonical.ItemsCompleted
		notes := canonical.Notes
		updated, err := r.Store.Update(ctx, canonical.ID, RecordPatch{ItemsCompleted: &items, Notes: &notes})
		if err != nil {
			return nil, 0, storageErr("update", key, err)
		}
		canonical = updated
	}

	var failure *ReconciliationPartialFailure
	removed := 0
	for _, dup := range candidates[1:] {
		if dup.ID == canonical.ID {
			continue
		}
		err := r.Store.Delete(ctx, dup.ID)
		if err == nil || errors.Is(err, ErrRecordNotFound) {
			removed++
			continue
		}
		if failure == nil {
			failure = &ReconciliationPartialFailure{Key: key, Canonical: canonical.ID}
		}
		failure.Leftover = append(failure.Leftover, dup.ID)
		failure.Errs = append(failure.Errs, err)
	}

	metrics.RecordDuplicatesRemoved(removed)
	log := r.Log.WithFields(logrus.Fields{
		"client_id": key.ClientID,
		"plan_id":   key.PlanID,
		"date":      key.Date.String(),
		"canonical": canonical.ID,
	})
	if failure != nil {
		metrics.RecordPartialFailure()
		log.WithError(failure).Warn("reconciliation left duplicates behind; a later pass will retry")
	} else {
		log.WithField("removed", removed).Info("merged duplicate compliance records")
	}

	return &canonical, removed, nil
}
