// Package mxcache provides a TTL-based cache for MX lookups with
// singleflight deduplication for concurrent requests to the same domain.
package mxcache

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/mailprobe/mailprobe/resolve"
)

// Cache is a thread-safe MX lookup cache in front of a resolve.Resolver.
// Concurrent lookups for the same domain are deduplicated: only one
// resolver call is made, and all waiters receive its result.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	ttl      time.Duration
	resolver resolve.Resolver
}

type entry struct {
	records []*net.MX
	err     error
	expires time.Time
	done    chan struct{} // closed when the lookup completes
}

// New creates a cache over r with the given entry TTL.
func New(r resolve.Resolver, ttl time.Duration) *Cache {
	return &Cache{
		entries:  make(map[string]*entry),
		ttl:      ttl,
		resolver: r,
	}
}

// LookupMX returns the MX records for domain, resolving at most once per
// TTL window. Waiters piggyback on the in-flight leader's lookup; the
// leader's context governs that lookup. Only successful results are
// cached: a lookup failure is handed to the waiters already in flight and
// then forgotten, so the next caller resolves fresh.
func (c *Cache) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	c.mu.Lock()

	if e, ok := c.entries[domain]; ok {
		select {
		case <-e.done:
			if time.Now().Before(e.expires) {
				c.mu.Unlock()
				return copyMX(e.records), e.err
			}
			// Expired, fall through to refresh.
		default:
			c.mu.Unlock()
			select {
			case <-e.done:
				return copyMX(e.records), e.err
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	e := &entry{done: make(chan struct{})}
	c.entries[domain] = e
	c.mu.Unlock()

	e.records, e.err = c.resolver.LookupMX(ctx, domain)
	e.expires = time.Now().Add(c.ttl)
	if e.err != nil {
		// A failure here can be the leader's own cancellation; caching it
		// would fail every healthy request for the domain until expiry.
		c.mu.Lock()
		if c.entries[domain] == e {
			delete(c.entries, domain)
		}
		c.mu.Unlock()
	}
	close(e.done)

	return copyMX(e.records), e.err
}

// Len returns the number of entries in the cache (for diagnostics).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// copyMX returns a deep copy of MX records so callers cannot mutate cached
// data (e.g., while sorting).
func copyMX(records []*net.MX) []*net.MX {
	if records == nil {
		return nil
	}
	out := make([]*net.MX, len(records))
	for i, r := range records {
		cp := *r
		out[i] = &cp
	}
	return out
}
