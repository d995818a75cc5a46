/*
errors.go - Centralized error types for the compliance engine

ERROR CATEGORIES:
  1. Storage errors - Any failure reaching the Store (surfaced to callers)
  2. Reconciliation errors - Duplicates that could not be removed (logged only)
  3. Validation - Unknown item names (a warning value, never an error path)
  4. Lifecycle errors - Illegal plan or mutation state transitions, writes
     against a plan the client does not hold

USAGE:
    rec, err := mutator.ToggleItem(ctx, client, plan, day, "Zinc", true)
    var se *compliance.StorageError
    if errors.As(err, &se) {
        // roll back optimistic state, offer retry
    }

SEE ALSO:
  - reconcile.go: Produces ReconciliationPartialFailure
  - mutator.go: Wraps store failures in StorageError
*/
package compliance

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrStorage is the root of every store failure.
	ErrStorage = errors.New("compliance store failure")

	// ErrRecordNotFound is returned by stores for an unknown record ID.
	ErrRecordNotFound = errors.New("compliance record not found")

	// ErrPlanNotFound is returned when a referenced plan doesn't exist.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("invalid date (use YYYY-MM-DD)")

	// ErrPlanNotAssigned is returned for a write against a plan that is not
	// currently assigned to the writing client.
	ErrPlanNotAssigned = errors.New("plan not assigned to client")

	// ErrInvalidTransition is returned for an illegal plan assignment move.
	ErrInvalidTransition = errors.New("invalid plan state transition")

	// ErrInvalidMutationState is returned when an optimistic mutation is
	// driven out of order (commit before apply, double rollback, ...).
	ErrInvalidMutationState = errors.New("invalid optimistic mutation state")

	// ErrPartialReconciliation marks duplicates left behind after a merge.
	ErrPartialReconciliation = errors.New("reconciliation left duplicate records")

	// ErrEmptyItemName is returned when toggling an item with no name.
	ErrEmptyItemName = errors.New("item name is required")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StorageError wraps any failure returned by a Store call.
type StorageError struct {
	Op  string // "filter", "create", "update", "delete", "get_plan", ...
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

// Unwrap exposes both ErrStorage and the underlying cause to errors.Is.
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

func storageErr(op string, key Key, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	k := ""
	if key != (Key{}) {
		k = key.String()
	}
	return &StorageError{Op: op, Key: k, Err: err}
}

// ReconciliationPartialFailure reports duplicates that survived a merge
// because their deletion failed. The canonical record is still valid.
type ReconciliationPartialFailure struct {
	Key       Key
	Canonical RecordID
	Leftover  []RecordID
	Errs      []error
}

func (e *ReconciliationPartialFailure) Error() string {
	ids := make([]string, len(e.Leftover))
	for i, id := range e.Leftover {
		ids[i] = string(id)
	}
	return fmt.Sprintf("reconcile %s: kept %s, could not delete [%s]: %v",
		e.Key, e.Canonical, strings.Join(ids, ", "), errors.Join(e.Errs...))
}

func (e *ReconciliationPartialFailure) Unwrap() error {
	return ErrPartialReconciliation
}

// ValidationWarning flags an item name that is not in the plan's current
// item list. The write is still accepted; the name just never counts
// towards a ratio.
type ValidationWarning struct {
	PlanID PlanID `json:"plan_id"`
	Item   string `json:"item"`
}

func (w ValidationWarning) String() string {
	return fmt.Sprintf("item %q is not in plan %s; stored but excluded from ratios", w.Item, w.PlanID)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry. Every store
// failure qualifies because ToggleItem is idempotent.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorage) && !errors.Is(err, ErrPlanNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrEmptyItemName)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrRecordNotFound)
}
