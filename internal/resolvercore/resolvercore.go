// Package resolvercore defines the single shared Context the workers,
// sweeper and control plane are constructed against: the cache layer, the latency
// windows, the query counters, and the two mutable knobs (ad-cache
// enablement and the upstream resolver address) that the control plane
// and worker pool both touch.
package resolvercore

import (
	"sync"

	"github.com/jroosing/dnsden/internal/cachelayer"
	"github.com/jroosing/dnsden/internal/counters"
	"github.com/jroosing/dnsden/internal/statswindow"
)

// Context is passed by reference to every Worker, the Sweeper and the
// ControlPlane at construction time. The Receiver does not take it: it
// gets only the work queue, which publishes its depth to the Context's
// Counters. It owns no goroutines itself — it is pure shared state plus
// the small amount of synchronization its two scalar knobs need.
type Context struct {
	Cache   *cachelayer.CacheLayer
	Stats   *statswindow.Windows
	Counters *counters.Counters

	mu             sync.RWMutex
	adCacheEnabled bool
	upstreamIP     string
}

// New builds a Context with ad-caching enabled by default and the given
// initial upstream resolver address.
func New(upstreamIP string) *Context {
	return &Context{
		Cache:          cachelayer.New(),
		Stats:          statswindow.NewWindows(statswindow.DefaultCapacity),
		Counters:       counters.New(),
		adCacheEnabled: true,
		upstreamIP:     upstreamIP,
	}
}

// AdCacheEnabled reports whether blocklist checks are currently active.
func (c *Context) AdCacheEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.adCacheEnabled
}

// SetAdCacheEnabled flips the blocklist-check gate.
func (c *Context) SetAdCacheEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adCacheEnabled = enabled
}

// UpstreamIP returns the current upstream resolver address.
func (c *Context) UpstreamIP() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.upstreamIP
}

// SetUpstreamIP updates the upstream resolver address used by every
// subsequent cache-miss lookup.
func (c *Context) SetUpstreamIP(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upstreamIP = ip
}
