/*
store.go - Persistence contracts for compliance records and plans

PURPOSE:
  Defines the interface between the compliance logic and whatever hosts the
  data. The store is a plain entity API: create, update, delete and
  filter-by-fields. It enforces NO uniqueness, so two devices creating the
  first record of a day at the same moment produce two rows. The engine is
  written to tolerate that (see reconcile.go).

KEY INTERFACES:
  Store:        Compliance record persistence
  PlanProvider: Read-only access to current plan definitions
  PlanStore:    Plan persistence used by the assignment lifecycle

ORDERING:
  Filter returns records in arrival order (creation order). The Reconciler
  keeps the identity of the first record, so every implementation must
  preserve this order.

IMPLEMENTATIONS:
  - compliance/store/memory.go: In-memory for tests and dev
  - store/sqldb: SQLite / PostgreSQL

SEE ALSO:
  - reconcile.go: Depends on Filter ordering
  - cache.go: Read-side cache owned by the caller
*/
package compliance

import "context"

// =============================================================================
// STORE - Compliance record persistence
// =============================================================================

// Store persists compliance records. Implementations return raw errors; the
// engine wraps them in StorageError.
type Store interface {
	// Create persists a new record. The store assigns nothing; ID and audit
	// fields are filled by the caller.
	Create(ctx context.Context, rec Record) (Record, error)

	// Update applies patch to the record with the given ID and returns it.
	// Returns ErrRecordNotFound if the ID is unknown.
	Update(ctx context.Context, id RecordID, patch RecordPatch) (Record, error)

	// Delete removes a record. Returns ErrRecordNotFound if the ID is unknown.
	Delete(ctx context.Context, id RecordID) error

	// Filter returns every record matching the non-nil fields of q, in
	// arrival order. An empty Query returns everything.
	Filter(ctx context.Context, q Query) ([]Record, error)
}

// Query selects records by field. Nil fields match anything.
type Query struct {
	ClientID *ClientID
	PlanID   *PlanID
	Date     *Date
}

// KeyQuery selects the candidates for one canonical record.
func KeyQuery(k Key) Query {
	return Query{ClientID: &k.ClientID, PlanID: &k.PlanID, Date: &k.Date}
}

// PairQuery selects every record for a client+plan.
func PairQuery(clientID ClientID, planID PlanID) Query {
	return Query{ClientID: &clientID, PlanID: &planID}
}

// Matches reports whether rec satisfies q. Shared by in-process stores.
func (q Query) Matches(rec Record) bool {
	if q.ClientID != nil && rec.ClientID != *q.ClientID {
		return false
	}
	if q.PlanID != nil && rec.PlanID != *q.PlanID {
		return false
	}
	if q.Date != nil && !rec.Date.Equal(*q.Date) {
		return false
	}
	return true
}

// =============================================================================
// PLANS
// =============================================================================

// PlanProvider gives read-only access to plan definitions. Returns
// ErrPlanNotFound for unknown IDs.
type PlanProvider interface {
	GetPlan(ctx context.Context, id PlanID) (Plan, error)
}

// PlanStore extends PlanProvider with writes for the assignment lifecycle.
type PlanStore interface {
	PlanProvider

	// SavePlan inserts or replaces a plan.
	SavePlan(ctx context.Context, plan Plan) error

	// ListPlans returns all plans ordered by name.
	ListPlans(ctx context.Context) ([]Plan, error)
}
