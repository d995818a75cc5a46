package compliance

import (
	"context"
	"fmt"
)

// MutationState is the phase of one in-flight optimistic toggle.
type MutationState int

const (
	MutationIdle MutationState = iota
	MutationPending
	MutationCommitted
	MutationRolledBack
)

func (s MutationState) String() string {
	switch s {
	case MutationIdle:
		return "idle"
	case MutationPending:
		return "pending"
	case MutationCommitted:
		return "committed"
	case MutationRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("MutationState(%d)", int(s))
	}
}

// Optimistic tracks one toggle applied to a local view before the server
// confirms it:
//
//	Idle -> Pending(pre) -> Committed
//	                     -> RolledBack(pre)
//
// On rollback the caller gets back exactly the snapshot taken in Apply and
// may offer a retry of the same ToggleItem call.
type Optimistic struct {
	state MutationState
	pre   Record
	local Record
	final Record
}

// State returns the current phase.
func (o *Optimistic) State() MutationState { return o.state }

// Apply snapshots current and returns the optimistic local view with the
// toggle applied.
func (o *Optimistic) Apply(current Record, itemName string, setTaken bool) (Record, error) {
	if o.state != MutationIdle {
		return Record{}, fmt.Errorf("%w: apply from %s", ErrInvalidMutationState, o.state)
	}
	o.pre = current.Clone()
	local := current.Clone()
	if local.ItemsCompleted == nil {
		local.ItemsCompleted = NewItemSet()
	}
	if setTaken {
		local.ItemsCompleted = local.ItemsCompleted.With(itemName)
	} else {
		local.ItemsCompleted = local.ItemsCompleted.Without(itemName)
	}
	o.local = local
	o.state = MutationPending
	return local.Clone(), nil
}

// Commit replaces the local view with the server's record.
func (o *Optimistic) Commit(server Record) (Record, error) {
	if o.state != MutationPending {
		return Record{}, fmt.Errorf("%w: commit from %s", ErrInvalidMutationState, o.state)
	}
	o.final = server.Clone()
	o.state = MutationCommitted
	return o.final.Clone(), nil
}

// Rollback restores the pre-toggle snapshot.
func (o *Optimistic) Rollback() (Record, error) {
	if o.state != MutationPending {
		return Record{}, fmt.Errorf("%w: rollback from %s", ErrInvalidMutationState, o.state)
	}
	o.final = o.pre.Clone()
	o.state = MutationRolledBack
	return o.final.Clone(), nil
}

// Pre returns the snapshot taken by Apply.
func (o *Optimistic) Pre() Record { return o.pre.Clone() }

// Toggler is the subset of Mutator an optimistic caller needs.
type Toggler interface {
	ToggleItem(ctx context.Context, clientID ClientID, planID PlanID, date Date, itemName string, setTaken bool) (Record, error)
}

// Run applies the toggle locally, reports the optimistic view through
// onLocal, calls the server, then commits or rolls back. The returned
// record is what the caller should display; err is the server error, if any.
func (o *Optimistic) Run(ctx context.Context, t Toggler, current Record, itemName string, setTaken bool, onLocal func(Record)) (Record, error) {
	local, err := o.Apply(current, itemName, setTaken)
	if err != nil {
		return Record{}, err
	}
	if onLocal != nil {
		onLocal(local)
	}

	server, err := t.ToggleItem(ctx, current.ClientID, current.PlanID, current.Date, itemName, setTaken)
	if err != nil {
		restored, rbErr := o.Rollback()
		if rbErr != nil {
			return Record{}, rbErr
		}
		return restored, err
	}
	return o.Commit(server)
}
