// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cache provides a TTL-keyed store for secondary-source verification
// results, keyed by source, subject reference, and a hash of the lookup
// context. Duplicate writes under a cache-miss race are idempotent.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// Store is the cache surface the verification layer depends on. The default
// implementation is in-process; an external key-value client can be swapped
// in behind the same interface.
type Store interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
}

// SourceType selects the TTL class for a verification source.
type SourceType string

const (
	// SourceReference is a fully trusted reference catalog.
	SourceReference SourceType = "reference"

	// SourceOfficial is a manufacturer or official distributor source.
	SourceOfficial SourceType = "official"

	// SourceScraped is an ad-hoc scraped source; shortest TTL.
	SourceScraped SourceType = "scraped"
)

// ttlTable maps source types to retention. Trusted reference data changes
// rarely; scraped answers go stale fast.
var ttlTable = map[SourceType]time.Duration{
	SourceReference: 24 * time.Hour,
	SourceOfficial:  6 * time.Hour,
	SourceScraped:   15 * time.Minute,
}

// DefaultTTL is used for unknown source types.
const DefaultTTL = time.Hour

// TTLFor returns the retention for a source type.
func TTLFor(source SourceType) time.Duration {
	if ttl, ok := ttlTable[source]; ok {
		return ttl
	}
	return DefaultTTL
}

// Key builds the canonical cache key source:subjectRef:contextHash. The
// context map is hashed over its canonical JSON form so key order does not
// matter.
func Key(source, subjectRef string, context map[string]any) string {
	digest := sha256.Sum256(canonicalJSON(context))
	return source + ":" + subjectRef + ":" + hex.EncodeToString(digest[:8])
}

func canonicalJSON(context map[string]any) []byte {
	if len(context) == 0 {
		return []byte("{}")
	}
	// encoding/json-compatible marshalers emit map keys in sorted order.
	data, err := json.Marshal(context)
	if err != nil {
		return []byte("{}")
	}
	return data
}

// binaryFields are payload keys whose values are screenshots or other binary
// artifacts; they are stripped before caching to bound cache size.
var binaryFields = map[string]bool{
	"screenshot":  true,
	"screenshots": true,
	"image":       true,
	"images":      true,
	"binary":      true,
	"pdf":         true,
}

// SanitizePayload returns a copy of a verification payload with binary
// artifact fields removed, recursively.
func SanitizePayload(payload any) any {
	switch v := payload.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			if binaryFields[key] {
				continue
			}
			out[key] = SanitizePayload(value)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, value := range v {
			out[i] = SanitizePayload(value)
		}
		return out
	default:
		return payload
	}
}

type entry struct {
	value   any
	expires time.Time
}

// Metrics tracks cache performance statistics.
type Metrics struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

// ResultCache is the in-process TTL store.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	metrics Metrics

	// now is injectable for tests.
	now func() time.Time
}

// NewResultCache creates an empty cache.
func NewResultCache() *ResultCache {
	return &ResultCache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// SetClock replaces the cache's time source. Test hook.
func (c *ResultCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the cached value for key, expiring it lazily.
func (c *ResultCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.metrics.Misses++
		return nil, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		c.metrics.Evictions++
		c.metrics.Misses++
		return nil, false
	}
	c.metrics.Hits++
	return e.value, true
}

// Set stores value under key for ttl. Binary artifacts are stripped from
// map/slice payloads before storage.
func (c *ResultCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		value:   SanitizePayload(value),
		expires: c.now().Add(ttl),
	}
	c.metrics.Size = len(c.entries)
}

// GetMetrics returns a metrics snapshot.
func (c *ResultCache) GetMetrics() Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m := c.metrics
	m.Size = len(c.entries)
	return m
}

// Purge removes every expired entry eagerly and returns how many were removed.
func (c *ResultCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, key)
			removed++
		}
	}
	c.metrics.Evictions += int64(removed)
	c.metrics.Size = len(c.entries)
	return removed
}
