package compliance

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// CACHE - Caller-owned history cache with explicit invalidation
// =============================================================================

// PairKey identifies a client's history under one plan. It is the unit of
// caching and invalidation.
type PairKey struct {
	ClientID ClientID
	PlanID   PlanID
}

func (k PairKey) String() string { return string(k.ClientID) + "/" + string(k.PlanID) }

// Cache holds reconciled record lists per client+plan. The Mutator calls
// Invalidate after every successful write; nothing is invalidated implicitly.
//
// Fills are conditional: a reader takes Version before reading the store and
// passes it to Set. Set drops the fill when the key was invalidated after
// that Version was taken, so a slow read can never put back rows that a
// concurrent write already invalidated.
type Cache interface {
	Get(ctx context.Context, key PairKey) ([]Record, bool)
	Version(ctx context.Context, key PairKey) uint64
	Set(ctx context.Context, key PairKey, records []Record, version uint64)
	Invalidate(ctx context.Context, key PairKey) error
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, PairKey) ([]Record, bool)  { return nil, false }
func (NopCache) Version(context.Context, PairKey) uint64        { return 0 }
func (NopCache) Set(context.Context, PairKey, []Record, uint64) {}
func (NopCache) Invalidate(context.Context, PairKey) error      { return nil }

const (
	// pruneEvery is how many Sets pass between expiry sweeps.
	pruneEvery = 256
	// maxInvalidations bounds the per-key invalidation marks kept for
	// conditional fills. Past it the marks collapse into one floor.
	maxInvalidations = 4096
)

// MemoryCache is a process-local Cache with a fixed TTL.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[PairKey]cacheEntry

	// clock ticks on every Invalidate. invalidated holds the tick of each
	// key's latest invalidation; fills versioned below floor are dropped.
	clock       uint64
	invalidated map[PairKey]uint64
	floor       uint64
	sets        int
}

type cacheEntry struct {
	records []Record
	expires time.Time
}

// NewMemoryCache creates a cache; ttl <= 0 means entries never expire.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:         ttl,
		now:         time.Now,
		entries:     make(map[PairKey]cacheEntry),
		invalidated: make(map[PairKey]uint64),
	}
}

func (c *MemoryCache) Get(_ context.Context, key PairKey) ([]Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.expired(e) {
		delete(c.entries, key)
		return nil, false
	}
	return cloneRecords(e.records), true
}

func (c *MemoryCache) Version(context.Context, PairKey) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock
}

func (c *MemoryCache) Set(_ context.Context, key PairKey, records []Record, version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if version < c.floor || c.invalidated[key] > version {
		return
	}
	c.entries[key] = cacheEntry{records: cloneRecords(records), expires: c.now().Add(c.ttl)}

	c.sets++
	if c.ttl > 0 && c.sets%pruneEvery == 0 {
		for k, e := range c.entries {
			if c.expired(e) {
				delete(c.entries, k)
			}
		}
	}
}

func (c *MemoryCache) Invalidate(_ context.Context, key PairKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	c.clock++
	if len(c.invalidated) >= maxInvalidations {
		c.invalidated = make(map[PairKey]uint64)
		c.floor = c.clock
		return nil
	}
	c.invalidated[key] = c.clock
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) expired(e cacheEntry) bool {
	return c.ttl > 0 && c.now().After(e.expires)
}

func cloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
