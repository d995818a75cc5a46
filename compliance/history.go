package compliance

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"
)

// History serves reconciled record lists for analytics and calendar reads.
// Same-day duplicates are merged before the list is returned or cached, so
// a stale duplicate never counts twice.
type History struct {
	Store      Store
	Reconciler *Reconciler
	Cache      Cache
	Log        logrus.FieldLogger
}

func NewHistory(store Store, reconciler *Reconciler, cache Cache, log logrus.FieldLogger) *History {
	if cache == nil {
		cache = NopCache{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if reconciler == nil {
		reconciler = NewReconciler(store, log)
	}
	return &History{Store: store, Reconciler: reconciler, Cache: cache, Log: log.WithField("component", "history")}
}

// Records returns one canonical record per day for a client+plan, ordered by
// date ascending.
func (h *History) Records(ctx context.Context, clientID ClientID, planID PlanID) ([]Record, error) {
	pair := PairKey{ClientID: clientID, PlanID: planID}
	if cached, ok := h.Cache.Get(ctx, pair); ok {
		return cached, nil
	}
	version := h.Cache.Version(ctx, pair)

	raw, err := h.Store.Filter(ctx, PairQuery(clientID, planID))
	if err != nil {
		return nil, storageErr("filter", Key{}, err)
	}

	groups, order := GroupByKey(raw)
	records := make([]Record, 0, len(order))
	merged := false
	for _, key := range order {
		group := groups[key]
		canonical, err := h.Reconciler.Reconcile(ctx, group)
		if err != nil {
			return nil, err
		}
		if len(group) > 1 {
			merged = true
		}
		records = append(records, *canonical)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })

	if merged {
		h.Log.WithField("key", pair.String()).Debug("history read merged duplicates")
	}
	h.Cache.Set(ctx, pair, records, version)
	return records, nil
}

// Day returns the canonical record for one day, or nil if none exists.
func (h *History) Day(ctx context.Context, clientID ClientID, planID PlanID, date Date) (*Record, error) {
	key := Key{ClientID: clientID, PlanID: planID, Date: date}
	candidates, err := h.Store.Filter(ctx, KeyQuery(key))
	if err != nil {
		return nil, storageErr("filter", key, err)
	}
	rec, err := h.Reconciler.Reconcile(ctx, candidates)
	if err != nil {
		return nil, err
	}
	if len(candidates) > 1 {
		if err := h.Cache.Invalidate(ctx, PairKey{ClientID: clientID, PlanID: planID}); err != nil {
			h.Log.WithError(err).Warn("cache invalidation failed")
		}
	}
	return rec, nil
}

// GroupByKey buckets records by (client, plan, day), keeping arrival order
// inside each bucket and first-seen order across buckets.
func GroupByKey(records []Record) (map[Key][]Record, []Key) {
	groups := make(map[Key][]Record)
	var order []Key
	for _, rec := range records {
		k := rec.Key()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], rec)
	}
	return groups, order
}
