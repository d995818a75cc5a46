package compliance

import (
	"context"

	"github.com/sirupsen/logrus"
)

// SweepReport summarises one pass over the whole store. Removed and Leftover
// count only the sweep's own work on the keys it saw duplicated.
type SweepReport struct {
	Records    int `json:"records"`
	Keys       int `json:"keys"`
	Duplicated int `json:"duplicated_keys"`
	Removed    int `json:"removed"`
	Leftover   int `json:"leftover"`
}

// Sweeper reconciles every duplicated key in the store. It is the "later
// pass" that retries deletes a partial reconciliation left behind, and it
// catches duplicates on days nobody has touched since.
type Sweeper struct {
	Store      Store
	Reconciler *Reconciler
	Cache      Cache
	Log        logrus.FieldLogger
}

func NewSweeper(store Store, reconciler *Reconciler, cache Cache, log logrus.FieldLogger) *Sweeper {
	if cache == nil {
		cache = NopCache{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if reconciler == nil {
		reconciler = NewReconciler(store, log)
	}
	return &Sweeper{Store: store, Reconciler: reconciler, Cache: cache, Log: log.WithField("component", "sweeper")}
}

// Sweep reconciles all keys that currently hold more than one record.
// A storage error on one key is logged and the sweep moves on.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	all, err := s.Store.Filter(ctx, Query{})
	if err != nil {
		return SweepReport{}, storageErr("filter", Key{}, err)
	}

	groups, order := GroupByKey(all)
	report := SweepReport{Records: len(all), Keys: len(order)}
	for _, key := range order {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		report.Duplicated++
		_, removed, err := s.Reconciler.reconcile(ctx, group)
		if err != nil {
			report.Leftover += len(group) - 1
			s.Log.WithError(err).WithField("key", key.String()).Warn("sweep could not reconcile key")
			continue
		}
		report.Removed += removed
		report.Leftover += len(group) - 1 - removed
		if err := s.Cache.Invalidate(ctx, PairKey{ClientID: key.ClientID, PlanID: key.PlanID}); err != nil {
			s.Log.WithError(err).Warn("cache invalidation failed")
		}
	}

	s.Log.WithFields(logrus.Fields{
		"records":    report.Records,
		"duplicated": report.Duplicated,
		"removed":    report.Removed,
		"leftover":   report.Leftover,
	}).Info("compliance sweep finished")
	return report, nil
}
