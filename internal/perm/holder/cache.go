// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package holder

import (
	"sync"
	"time"

	"github.com/permgate/permgate/internal/perm"
)

// PermissionCache maps a lookup fingerprint to a previously computed
// PermissionData for one holder. At most one compute runs per fingerprint:
// concurrent lookups during an in-flight compute await its result instead
// of starting their own.
type PermissionCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	done chan struct{}
	data *PermissionData
}

// NewPermissionCache creates an empty cache.
func NewPermissionCache() *PermissionCache {
	return &PermissionCache{entries: make(map[string]*cacheEntry)}
}

// Lookup returns the cached data for the fingerprint, or runs compute on a
// miss. Waiters joining an in-flight compute block until it finishes.
func (c *PermissionCache) Lookup(fingerprint string, compute func() *PermissionData) *PermissionData {
	c.mu.Lock()
	if e, ok := c.entries[fingerprint]; ok {
		// Joining an in-flight compute is a shared miss, not a hit.
		result := lookupHit
		select {
		case <-e.done:
		default:
			result = lookupWait
		}
		c.mu.Unlock()
		<-e.done
		recordCacheLookup(result)
		return e.data
	}
	e := &cacheEntry{done: make(chan struct{})}
	c.entries[fingerprint] = e
	c.mu.Unlock()

	start := time.Now()
	e.data = compute()
	close(e.done)
	recordCacheLookup(lookupMiss)
	recordResolution(time.Since(start))
	return e.data
}

// Invalidate discards every cached entry. An in-flight compute still
// completes for its waiters; its result is simply no longer cached.
func (c *PermissionCache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
	recordInvalidation()
}

// Len returns the number of cached fingerprints.
func (c *PermissionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// PermissionData resolves (or fetches from cache) the holder's merged
// permission map for the lookup. This is the read path of every check.
func (h *Holder) PermissionData(lk perm.Lookup, groups GroupResolver) *PermissionData {
	return h.cache.Lookup(lk.Fingerprint(), func() *PermissionData {
		return h.ExportPermissions(lk, groups)
	})
}
