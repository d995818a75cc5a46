/*
Package compliance provides the per-day compliance tracking engine.

PURPOSE:
  Records which prescribed protocol items (supplements, logged meals) a
  client actually completed on each calendar day, and keeps exactly one
  canonical record per (client, plan, day) even though the backing store
  has no uniqueness constraint and several devices may write at once.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record:  One day of completions for a client+plan
  - ItemSet: Set of completed item names (order irrelevant)
  - Plan:    The protocol a client follows, with its current items
  - Key:     The (client, plan, day) identity of a canonical record

DESIGN PRINCIPLES:
  1. Reconcile on read: duplicates are merged before every mutation
  2. Loss-free: a merge never drops a completed item
  3. No locks: concurrent writers converge through idempotent reconciliation
  4. Type Safety: distinct ID types prevent mixing clients and plans

USAGE:
  m := compliance.NewMutator(store, compliance.MutatorOptions{})
  rec, err := m.ToggleItem(ctx, "client-1", "plan-1", compliance.Today(), "Creatine", true)

SEE ALSO:
  - reconcile.go: Duplicate detection and merging
  - mutator.go: The toggle-item-taken operation
  - store.go: Persistence contract
*/
package compliance

import (
	"encoding/json"
	"sort"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID string
type PlanID string
type RecordID string

// Key identifies the single canonical record for a client, plan and day.
type Key struct {
	ClientID ClientID
	PlanID   PlanID
	Date     Date
}

func (k Key) String() string {
	return string(k.ClientID) + "/" + string(k.PlanID) + "/" + k.Date.String()
}

// =============================================================================
// ITEM SET - Completed item names
// =============================================================================

// ItemSet is a set of item names. The zero value is an empty set ready to use
// for reads; use NewItemSet or Add for writes.
type ItemSet map[string]struct{}

func NewItemSet(names ...string) ItemSet {
	s := make(ItemSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s ItemSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s ItemSet) Len() int { return len(s) }

// With returns a copy of s that includes name.
func (s ItemSet) With(name string) ItemSet {
	out := s.Clone()
	out[name] = struct{}{}
	return out
}

// Without returns a copy of s that excludes name.
func (s ItemSet) Without(name string) ItemSet {
	out := s.Clone()
	delete(out, name)
	return out
}

// Union returns a new set holding every name of s and other.
func (s ItemSet) Union(other ItemSet) ItemSet {
	out := s.Clone()
	for n := range other {
		out[n] = struct{}{}
	}
	return out
}

// CountIn returns |s ∩ names|.
func (s ItemSet) CountIn(names []string) int {
	count := 0
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		if s.Has(n) {
			count++
		}
	}
	return count
}

func (s ItemSet) Clone() ItemSet {
	out := make(ItemSet, len(s))
	for n := range s {
		out[n] = struct{}{}
	}
	return out
}

func (s ItemSet) Equal(other ItemSet) bool {
	if len(s) != len(other) {
		return false
	}
	for n := range s {
		if !other.Has(n) {
			return false
		}
	}
	return true
}

// Sorted returns the names in lexical order.
func (s ItemSet) Sorted() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s ItemSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *ItemSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewItemSet(names...)
	return nil
}

// =============================================================================
// RECORD - One day of completions
// =============================================================================

// Record is what a client completed of a plan on one calendar day.
type Record struct {
	ID             RecordID `json:"id"`
	ClientID       ClientID `json:"client_id"`
	PlanID         PlanID   `json:"plan_id"`
	Date           Date     `json:"date"`
	ItemsCompleted ItemSet  `json:"items_completed"`
	Notes          string   `json:"notes,omitempty"`

	// Audit fields, never read by analytics
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r Record) Key() Key {
	return Key{ClientID: r.ClientID, PlanID: r.PlanID, Date: r.Date}
}

// Clone returns a deep copy; ItemSet is a map and would otherwise be shared.
func (r Record) Clone() Record {
	r.ItemsCompleted = r.ItemsCompleted.Clone()
	return r
}

// RecordPatch holds the mutable fields of a Record. Nil fields are left alone.
type RecordPatch struct {
	ItemsCompleted *ItemSet
	Notes          *string
}

// =============================================================================
// PLAN - Protocol definition and assignment state
// =============================================================================

type PlanKind string

const (
	PlanSupplement PlanKind = "supplement"
	PlanNutrition  PlanKind = "nutrition"
)

type PlanState string

const (
	PlanTemplate   PlanState = "template"
	PlanAssigned   PlanState = "assigned"
	PlanUnassigned PlanState = "unassigned"
	PlanDeleted    PlanState = "deleted"
)

// PlanItem is one prescribed item. ID is stable across renames; completions
// are still recorded by Name.
type PlanItem struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Dosage string `json:"dosage,omitempty"`
	Timing string `json:"timing,omitempty"`
}

type Plan struct {
	ID       PlanID     `json:"id"`
	Name     string     `json:"name"`
	Kind     PlanKind   `json:"kind"`
	ClientID ClientID   `json:"client_id,omitempty"`
	State    PlanState  `json:"state"`
	Items    []PlanItem `json:"items"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ItemNames returns the current item names in plan order. These are the
// denominators of every ratio.
func (p Plan) ItemNames() []string {
	names := make([]string, 0, len(p.Items))
	for _, it := range p.Items {
		names = append(names, it.Name)
	}
	return names
}

func (p Plan) HasItem(name string) bool {
	for _, it := range p.Items {
		if it.Name == name {
			return true
		}
	}
	return false
}
