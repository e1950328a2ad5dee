// Package counters holds the process-wide query/cache counters shared by
// the worker pool, the sweeper, and the control plane.
package counters

import "sync/atomic"

// Counters is the full set of atomic counters the spec names. Each field
// is independently incremented/read; there is no cross-field invariant
// enforced here beyond what callers maintain (e.g. InCacheCount tracking
// PositiveCache.Size()).
type Counters struct {
	processedQueries uint32
	blockedQueries   uint32
	cacheHits        uint32
	inCacheCount     uint32
	queueDepth       uint32
	blocklistDomains uint32
}

// New returns a zeroed Counters.
func New() *Counters {
	return &Counters{}
}

func (c *Counters) IncProcessedQueries() { atomic.AddUint32(&c.processedQueries, 1) }
func (c *Counters) IncBlockedQueries()   { atomic.AddUint32(&c.blockedQueries, 1) }
func (c *Counters) IncCacheHits()        { atomic.AddUint32(&c.cacheHits, 1) }

func (c *Counters) SetInCacheCount(v uint32)     { atomic.StoreUint32(&c.inCacheCount, v) }
func (c *Counters) SetBlocklistDomains(v uint32) { atomic.StoreUint32(&c.blocklistDomains, v) }
func (c *Counters) IncBlocklistDomains()         { atomic.AddUint32(&c.blocklistDomains, 1) }

// SetQueueDepth publishes the queue's current length. The work queue
// calls it under its own lock (see internal/workqueue), so the counter
// always matches the queue's visible contents.
func (c *Counters) SetQueueDepth(v uint32) { atomic.StoreUint32(&c.queueDepth, v) }

func (c *Counters) ProcessedQueries() uint32 { return atomic.LoadUint32(&c.processedQueries) }
func (c *Counters) BlockedQueries() uint32   { return atomic.LoadUint32(&c.blockedQueries) }
func (c *Counters) CacheHits() uint32        { return atomic.LoadUint32(&c.cacheHits) }
func (c *Counters) InCacheCount() uint32     { return atomic.LoadUint32(&c.inCacheCount) }
func (c *Counters) QueueDepth() uint32       { return atomic.LoadUint32(&c.queueDepth) }
func (c *Counters) BlocklistDomains() uint32 { return atomic.LoadUint32(&c.blocklistDomains) }

// Snapshot is an immutable point-in-time read of every counter, the shape
// the control plane's numQueries operation reads and the sweeper logs.
type Snapshot struct {
	ProcessedQueries uint32
	BlockedQueries   uint32
	CacheHits        uint32
	InCacheCount     uint32
	QueueDepth       uint32
	BlocklistDomains uint32
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		ProcessedQueries: c.ProcessedQueries(),
		BlockedQueries:   c.BlockedQueries(),
		CacheHits:        c.CacheHits(),
		InCacheCount:     c.InCacheCount(),
		QueueDepth:       c.QueueDepth(),
		BlocklistDomains: c.BlocklistDomains(),
	}
}
