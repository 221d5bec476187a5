// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partlinx/truthlayer/internal/cache"
	"github.com/partlinx/truthlayer/internal/validation"
)

func lookupCtx(keys map[string]any) *validation.ValidationContext {
	return &validation.ValidationContext{
		RequestID: "req-1",
		Endpoint:  "/api/products/:sku/price",
		Domain:    validation.DomainPrice,
		Keys:      keys,
	}
}

func TestCachedLookup_SecondCallHitsCache(t *testing.T) {
	store := cache.NewResultCache()
	calls := 0
	fn := CachedLookup(store, cache.SourceOfficial, func(context.Context, *validation.ValidationContext) (any, error) {
		calls++
		return map[string]any{"price": 10.0}, nil
	})

	vctx := lookupCtx(map[string]any{"sku": "BRK-1001"})

	first, err := fn(context.Background(), vctx)
	require.NoError(t, err)
	second, err := fn(context.Background(), vctx)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "second call must be served from the cache")
	assert.Equal(t, first, second)
}

func TestCachedLookup_MissAndHitSeeTheSamePayload(t *testing.T) {
	store := cache.NewResultCache()
	fn := CachedLookup(store, cache.SourceOfficial, func(context.Context, *validation.ValidationContext) (any, error) {
		return map[string]any{"price": 10.0, "screenshot": "base64..."}, nil
	})

	vctx := lookupCtx(map[string]any{"sku": "BRK-1001"})

	miss, err := fn(context.Background(), vctx)
	require.NoError(t, err)
	hit, err := fn(context.Background(), vctx)
	require.NoError(t, err)

	assert.NotContains(t, miss.(map[string]any), "screenshot",
		"the miss path must return the sanitized copy, not the raw fetch")
	assert.Equal(t, miss, hit, "cache state must not change what a comparison sees")
}

func TestCachedLookup_DifferentKeysDoNotCollide(t *testing.T) {
	store := cache.NewResultCache()
	calls := 0
	fn := CachedLookup(store, cache.SourceOfficial, func(_ context.Context, vctx *validation.ValidationContext) (any, error) {
		calls++
		return map[string]any{"sku": vctx.Keys["sku"]}, nil
	})

	_, err := fn(context.Background(), lookupCtx(map[string]any{"sku": "BRK-1001"}))
	require.NoError(t, err)
	_, err = fn(context.Background(), lookupCtx(map[string]any{"sku": "FLT-2034"}))
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}

func TestCachedLookup_ErrorsAndNilResultsAreNotCached(t *testing.T) {
	store := cache.NewResultCache()
	calls := 0
	fail := true
	fn := CachedLookup(store, cache.SourceScraped, func(context.Context, *validation.ValidationContext) (any, error) {
		calls++
		if fail {
			return nil, errors.New("scraper down")
		}
		return nil, nil
	})

	vctx := lookupCtx(map[string]any{"sku": "BRK-1001"})

	_, err := fn(context.Background(), vctx)
	require.Error(t, err)

	fail = false
	value, err := fn(context.Background(), vctx)
	require.NoError(t, err)
	assert.Nil(t, value)

	_, err = fn(context.Background(), vctx)
	require.NoError(t, err)
	assert.Equal(t, 3, calls, "neither errors nor empty answers may be cached")
}

func TestLookupRegistry(t *testing.T) {
	r := NewLookupRegistry()

	_, ok := r.Get(validation.DomainPrice)
	assert.False(t, ok)

	r.Register(validation.DomainPrice, func(context.Context, *validation.ValidationContext) (any, error) {
		return "first", nil
	})
	r.Register(validation.DomainPrice, func(context.Context, *validation.ValidationContext) (any, error) {
		return "second", nil
	})

	fn, ok := r.Get(validation.DomainPrice)
	require.True(t, ok)
	value, err := fn(context.Background(), lookupCtx(nil))
	require.NoError(t, err)
	assert.Equal(t, "second", value, "registration replaces")
	assert.Equal(t, []validation.DataDomain{validation.DomainPrice}, r.Domains())
}
