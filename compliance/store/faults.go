package store

import (
	"context"
	"sync"

	"github.com/warp/adherence-engine/compliance"
)

// Faulty wraps a Store and fails selected calls. It exists to exercise the
// engine's StorageError and partial-reconciliation paths.
type Faulty struct {
	compliance.Store

	mu sync.Mutex

	// FailDelete, when set, decides per record whether Delete fails.
	FailDelete func(id compliance.RecordID) error
	// FailNext queues errors returned by the next calls of an op
	// ("create", "update", "delete", "filter"), one per call.
	FailNext map[string][]error

	Calls map[string]int
}

func NewFaulty(inner compliance.Store) *Faulty {
	return &Faulty{
		Store:    inner,
		FailNext: make(map[string][]error),
		Calls:    make(map[string]int),
	}
}

// QueueFailure makes the next call of op return err.
func (f *Faulty) QueueFailure(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailNext[op] = append(f.FailNext[op], err)
}

func (f *Faulty) next(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[op]++
	q := f.FailNext[op]
	if len(q) == 0 {
		return nil
	}
	f.FailNext[op] = q[1:]
	return q[0]
}

// CallCount returns how many times op was invoked.
func (f *Faulty) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[op]
}

func (f *Faulty) Create(ctx context.Context, rec compliance.Record) (compliance.Record, error) {
	if err := f.next("create"); err != nil {
		return compliance.Record{}, err
	}
	return f.Store.Create(ctx, rec)
}

func (f *Faulty) Update(ctx context.Context, id compliance.RecordID, patch compliance.RecordPatch) (compliance.Record, error) {
	if err := f.next("update"); err != nil {
		return compliance.Record{}, err
	}
	return f.Store.Update(ctx, id, patch)
}

func (f *Faulty) Delete(ctx context.Context, id compliance.RecordID) error {
	if err := f.next("delete"); err != nil {
		return err
	}
	if f.FailDelete != nil {
		if err := f.FailDelete(id); err != nil {
			return err
		}
	}
	return f.Store.Delete(ctx, id)
}

func (f *Faulty) Filter(ctx context.Context, q compliance.Query) ([]compliance.Record, error) {
	if err := f.next("filter"); err != nil {
		return nil, err
	}
	return f.Store.Filter(ctx, q)
}
