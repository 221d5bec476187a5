// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLFor(t *testing.T) {
	assert.Equal(t, 24*time.Hour, TTLFor(SourceReference))
	assert.Equal(t, 6*time.Hour, TTLFor(SourceOfficial))
	assert.Equal(t, 15*time.Minute, TTLFor(SourceScraped))
	assert.Equal(t, DefaultTTL, TTLFor("unknown"))
}

func TestKey_Shape(t *testing.T) {
	key := Key("official", "5Q0615301F", map[string]any{"vehicleId": "VW-GOLF-7"})

	parts := strings.SplitN(key, ":", 3)
	require.Len(t, parts, 3)
	assert.Equal(t, "official", parts[0])
	assert.Equal(t, "5Q0615301F", parts[1])
	assert.Len(t, parts[2], 16, "context hash is 8 bytes hex-encoded")
}

func TestKey_ContextSensitivity(t *testing.T) {
	a := Key("official", "X", map[string]any{"vehicleId": "VW-GOLF-7"})
	b := Key("official", "X", map[string]any{"vehicleId": "AUDI-A3-8V"})
	c := Key("official", "X", map[string]any{"vehicleId": "VW-GOLF-7"})

	assert.NotEqual(t, a, b, "different contexts must not share a key")
	assert.Equal(t, a, c, "identical contexts must collide")

	empty := Key("official", "X", nil)
	alsoEmpty := Key("official", "X", map[string]any{})
	assert.Equal(t, empty, alsoEmpty)
}

func TestResultCache_GetSet(t *testing.T) {
	c := NewResultCache()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", map[string]any{"price": 10.0}, time.Minute)
	value, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"price": 10.0}, value)

	metrics := c.GetMetrics()
	assert.Equal(t, int64(1), metrics.Hits)
	assert.Equal(t, int64(1), metrics.Misses)
	assert.Equal(t, 1, metrics.Size)
}

func TestResultCache_Expiry(t *testing.T) {
	c := NewResultCache()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	c.Set("k", "v", 15*time.Minute)

	now = now.Add(14 * time.Minute)
	_, ok := c.Get("k")
	assert.True(t, ok, "entry must survive within its TTL")

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry must expire after its TTL")

	metrics := c.GetMetrics()
	assert.Equal(t, int64(1), metrics.Evictions)
	assert.Equal(t, 0, metrics.Size)
}

func TestResultCache_Purge(t *testing.T) {
	c := NewResultCache()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	c.Set("short", "v", time.Minute)
	c.Set("long", "v", time.Hour)

	now = now.Add(10 * time.Minute)
	removed := c.Purge()

	assert.Equal(t, 1, removed)
	_, ok := c.Get("long")
	assert.True(t, ok)
}

func TestResultCache_ZeroTTLGetsDefault(t *testing.T) {
	c := NewResultCache()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	c.Set("k", "v", 0)

	now = now.Add(DefaultTTL - time.Minute)
	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestSanitizePayload_StripsBinaryFields(t *testing.T) {
	payload := map[string]any{
		"price":      10.0,
		"screenshot": "base64...",
		"nested": map[string]any{
			"images": []any{"a", "b"},
			"name":   "brake disc",
		},
		"list": []any{
			map[string]any{"pdf": "...", "sku": "BRK-1001"},
		},
	}

	sanitized := SanitizePayload(payload).(map[string]any)

	assert.NotContains(t, sanitized, "screenshot")
	assert.Equal(t, 10.0, sanitized["price"])

	nested := sanitized["nested"].(map[string]any)
	assert.NotContains(t, nested, "images")
	assert.Equal(t, "brake disc", nested["name"])

	item := sanitized["list"].([]any)[0].(map[string]any)
	assert.NotContains(t, item, "pdf")
	assert.Equal(t, "BRK-1001", item["sku"])
}

func TestSanitizePayload_LeavesOriginalIntact(t *testing.T) {
	payload := map[string]any{"screenshot": "x", "sku": "BRK-1001"}
	_ = SanitizePayload(payload)
	assert.Contains(t, payload, "screenshot", "sanitize must copy, not mutate")
}
