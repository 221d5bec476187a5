// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partlinx/truthlayer/internal/validation"
)

func TestLoadBytes_Defaults(t *testing.T) {
	table := NewTable()
	err := table.LoadBytes([]byte(`
routes:
  - endpoint: /api/products/:sku/price
    domain: price
`))
	require.NoError(t, err)

	route, ok := table.Lookup("/api/products/:sku/price", nil)
	require.True(t, ok)

	assert.Equal(t, validation.ModeVerification, route.Policy.Mode)
	assert.Equal(t, validation.MismatchWarn, route.Policy.OnMismatch)
	assert.Equal(t, 0.9, route.Policy.MinConfidence)
	assert.Equal(t, 3*time.Second, route.Policy.Timeout)
	assert.True(t, route.Policy.IncludeInResponse)
	assert.True(t, route.Policy.RedirectOnEnforcement)
	assert.True(t, route.Policy.FallbackAllowed)
	assert.Equal(t, 1.0, route.ShadowSampleRate)
	assert.Nil(t, route.Policy.SeverityOverride)
}

func TestLoadBytes_SafetyDomainFailsClosedByDefault(t *testing.T) {
	table := NewTable()
	err := table.LoadBytes([]byte(`
routes:
  - endpoint: /api/products/:sku/safety
    domain: safety
    mode: gatekeeper
  - endpoint: /api/products/:sku/safety-open
    domain: safety
    mode: gatekeeper
    fallback_allowed: true
`))
	require.NoError(t, err)

	closed, ok := table.Lookup("/api/products/:sku/safety", nil)
	require.True(t, ok)
	assert.False(t, closed.Policy.FallbackAllowed)

	open, ok := table.Lookup("/api/products/:sku/safety-open", nil)
	require.True(t, ok)
	assert.True(t, open.Policy.FallbackAllowed, "explicit fallback_allowed wins over the safety default")
}

func TestLoadBytes_FieldListsBecomeSeverityOverride(t *testing.T) {
	table := NewTable()
	err := table.LoadBytes([]byte(`
routes:
  - endpoint: /api/custom
    domain: content
    critical_fields: [linkage]
    high_fields: [grade]
`))
	require.NoError(t, err)

	route, ok := table.Lookup("/api/custom", nil)
	require.True(t, ok)
	require.NotNil(t, route.Policy.SeverityOverride)
	assert.Equal(t, validation.SeverityCritical, route.Policy.SeverityOverride.Classify("linkage"))
	assert.Equal(t, validation.SeverityHigh, route.Policy.SeverityOverride.Classify("grade"))
	assert.Equal(t, validation.SeverityLow, route.Policy.SeverityOverride.Classify("other"))
}

func TestLoadBytes_InvalidRouteFailsWholeLoad(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.LoadBytes([]byte(`
routes:
  - endpoint: /api/ok
    domain: price
`)))

	err := table.LoadBytes([]byte(`
routes:
  - endpoint: /api/ok
    domain: price
  - endpoint: /api/broken
    domain: not-a-domain
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, validation.ErrConfiguration)

	// Previous table survives a failed reload.
	_, ok := table.Lookup("/api/ok", nil)
	assert.True(t, ok)
}

func TestLoadBytes_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"missing endpoint": `
routes:
  - domain: price
`,
		"unknown mode": `
routes:
  - endpoint: /x
    domain: price
    mode: observe
`,
		"enforcement with block": `
routes:
  - endpoint: /x
    domain: price
    mode: enforcement
    on_mismatch: block
`,
		"sample rate out of range": `
routes:
  - endpoint: /x
    domain: price
    shadow_sample_rate: 1.5
`,
		"duplicate endpoint": `
routes:
  - endpoint: /x
    domain: price
  - endpoint: /x
    domain: stock
`,
		"bad condition": `
routes:
  - endpoint: /x
    domain: price
    condition: "((("
`,
	}

	for name, yaml := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, NewTable().LoadBytes([]byte(yaml)))
		})
	}
}

func TestLookup_Condition(t *testing.T) {
	table := NewTable()
	err := table.LoadBytes([]byte(`
routes:
  - endpoint: /api/products/:sku/compatibility
    domain: compatibility
    condition: Query.vehicleId != nil
`))
	require.NoError(t, err)

	withVehicle := map[string]any{"Query": map[string]any{"vehicleId": "VW-GOLF-7"}}
	_, ok := table.Lookup("/api/products/:sku/compatibility", withVehicle)
	assert.True(t, ok)

	withoutVehicle := map[string]any{"Query": map[string]any{}}
	_, ok = table.Lookup("/api/products/:sku/compatibility", withoutVehicle)
	assert.False(t, ok, "condition must gate the route")

	_, ok = table.Lookup("/api/unknown", withVehicle)
	assert.False(t, ok)
}

func TestLoadBytes_AtomicReplace(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.LoadBytes([]byte(`
routes:
  - endpoint: /api/a
    domain: price
`)))
	require.NoError(t, table.LoadBytes([]byte(`
routes:
  - endpoint: /api/b
    domain: stock
`)))

	_, ok := table.Lookup("/api/a", nil)
	assert.False(t, ok, "reload replaces, not merges")
	_, ok = table.Lookup("/api/b", nil)
	assert.True(t, ok)
	assert.Equal(t, []string{"/api/b"}, table.Endpoints())
}
