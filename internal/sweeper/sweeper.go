// Package sweeper implements the periodic maintenance goroutine: expiring
// positive-cache entries, rotating the flat server log, and emitting a
// counters snapshot to the log.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/jroosing/dnsden/internal/resolvercore"
)

// Interval is the fixed wake period.
const Interval = 5 * time.Second

// MaxLogLines is the number of most-recent lines the server log is
// truncated to once it grows past this size.
const MaxLogLines = 500

// LogRotator owns the flat server log file the Sweeper keeps bounded.
type LogRotator interface {
	RotateServerLog(maxLines int) error
}

// Sweeper periodically expires cache entries and performs housekeeping.
type Sweeper struct {
	Core   *resolvercore.Context
	Logs   LogRotator
	Logger *slog.Logger

	ticker *time.Ticker
	stop   chan struct{}
}

// New constructs a Sweeper. Logs may be nil, in which case log rotation
// is skipped (useful for tests and for deployments with no file-backed
// server log configured).
func New(core *resolvercore.Context, logs LogRotator, logger *slog.Logger) *Sweeper {
	return &Sweeper{Core: core, Logs: logs, Logger: logger}
}

// Run blocks, waking every Interval to sweep and rotate, until ctx is
// cancelled or Stop is called.
func (s *Sweeper) Run(ctx context.Context) {
	s.ticker = time.NewTicker(Interval)
	s.stop = make(chan struct{})
	defer s.ticker.Stop()

	for {
		select {
		case <-s.ticker.C:
			s.tick()
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends a running Run loop from another goroutine.
func (s *Sweeper) Stop() {
	if s.stop != nil {
		close(s.stop)
	}
}

// tick performs one maintenance cycle.
func (s *Sweeper) tick() {
	removed := s.Core.Cache.Sweep(time.Now())
	s.Core.Counters.SetInCacheCount(uint32(s.Core.Cache.PositiveSize()))
	s.Core.Counters.SetBlocklistDomains(s.Core.Cache.BlocklistDomains())

	if s.Logs != nil {
		if err := s.Logs.RotateServerLog(MaxLogLines); err != nil && s.Logger != nil {
			s.Logger.Warn("sweeper: failed to rotate server log", "error", err)
		}
	}

	if s.Logger != nil {
		snap := s.Core.Counters.Snapshot()
		s.Logger.Info("sweeper tick",
			"expired", removed,
			"in_cache", snap.InCacheCount,
			"blocklist_domains", snap.BlocklistDomains,
			"processed_queries", snap.ProcessedQueries,
			"blocked_queries", snap.BlockedQueries,
			"cache_hits", snap.CacheHits,
			"queue_depth", snap.QueueDepth,
		)
	}
}
