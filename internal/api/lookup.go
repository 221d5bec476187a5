// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/partlinx/truthlayer/internal/cache"
	"github.com/partlinx/truthlayer/internal/validation"
)

// LookupRegistry maps data domains to their secondary-source lookup
// functions. Registration happens at startup; lookups at request time.
type LookupRegistry struct {
	mu      sync.RWMutex
	lookups map[validation.DataDomain]validation.LookupFunc
}

// NewLookupRegistry creates an empty registry.
func NewLookupRegistry() *LookupRegistry {
	return &LookupRegistry{lookups: make(map[validation.DataDomain]validation.LookupFunc)}
}

// Register binds a lookup to a domain, replacing any previous binding.
func (r *LookupRegistry) Register(domain validation.DataDomain, fn validation.LookupFunc) {
	r.mu.Lock()
	r.lookups[domain] = fn
	r.mu.Unlock()
}

// Get returns the lookup bound to a domain.
func (r *LookupRegistry) Get(domain validation.DataDomain) (validation.LookupFunc, bool) {
	r.mu.RLock()
	fn, ok := r.lookups[domain]
	r.mu.RUnlock()
	return fn, ok
}

// Domains returns every registered domain.
func (r *LookupRegistry) Domains() []validation.DataDomain {
	r.mu.RLock()
	defer r.mu.RUnlock()

	domains := make([]validation.DataDomain, 0, len(r.lookups))
	for d := range r.lookups {
		domains = append(domains, d)
	}
	return domains
}

// CachedLookup wraps a lookup with the verification result cache. The cache
// key derives from the source, the subject reference, and the business keys,
// so two requests about different vehicles never share an entry. Fetched
// payloads are sanitized before caching, and the sanitized copy is what the
// caller sees on a miss too, so comparisons do not depend on cache state.
func CachedLookup(store cache.Store, source cache.SourceType, fn validation.LookupFunc) validation.LookupFunc {
	return func(ctx context.Context, vctx *validation.ValidationContext) (any, error) {
		key := cache.Key(string(source), subjectRef(vctx), vctx.Keys)
		if value, ok := store.Get(key); ok {
			return value, nil
		}

		value, err := fn(ctx, vctx)
		if err != nil {
			return nil, err
		}
		if value != nil {
			value = cache.SanitizePayload(value)
			store.Set(key, value, cache.TTLFor(source))
		}
		return value, nil
	}
}

// subjectRef picks the most specific identifier available from the business
// keys, falling back to the endpoint.
func subjectRef(vctx *validation.ValidationContext) string {
	for _, key := range []string{"oem", "sku", "articleId", "vehicleId", "id"} {
		if v, ok := vctx.Keys[key]; ok {
			return fmt.Sprintf("%v", v)
		}
	}
	return vctx.Endpoint
}
