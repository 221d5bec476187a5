// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare_IdenticalPayloads(t *testing.T) {
	c := NewComparator()

	payload := map[string]any{
		"sku":      "BRK-1001",
		"price":    64.90,
		"currency": "EUR",
	}
	result := c.Compare(payload, payload, DomainPrice)

	assert.Equal(t, StatusMatch, result.MatchStatus)
	assert.Empty(t, result.Discrepancies)
	assert.Equal(t, 1.0, result.Similarity)
}

func TestCompare_PriceDiscrepancyIsCritical(t *testing.T) {
	c := NewComparator()

	primary := map[string]any{"sku": "BRK-1001", "price": 19.99, "currency": "EUR"}
	secondary := map[string]any{"sku": "BRK-1001", "price": 21.50, "currency": "EUR"}

	result := c.Compare(primary, secondary, DomainPrice)

	require.Equal(t, StatusMismatch, result.MatchStatus)
	require.Len(t, result.Discrepancies, 1)
	d := result.Discrepancies[0]
	assert.Equal(t, "price", d.Field)
	assert.Equal(t, 19.99, d.Primary)
	assert.Equal(t, 21.50, d.Secondary)
	assert.Equal(t, SeverityCritical, d.Severity)
	assert.Equal(t, 0.0, result.Similarity, "any critical discrepancy forces similarity to zero")
}

func TestCompare_LowSeverityDifferencesStillMismatch(t *testing.T) {
	c := NewComparator()

	primary := map[string]any{"compatible": true, "notes": "fits well"}
	secondary := map[string]any{"compatible": true, "notes": "fits"}

	result := c.Compare(primary, secondary, DomainCompatibility)

	assert.Equal(t, StatusMismatch, result.MatchStatus)
	require.Len(t, result.Discrepancies, 1)
	assert.Equal(t, SeverityLow, result.Discrepancies[0].Severity)
	assert.InDelta(t, 0.95, result.Similarity, 1e-9)
}

func TestCompare_MissingSides(t *testing.T) {
	c := NewComparator()

	both := c.Compare(nil, nil, DomainStock)
	assert.Equal(t, StatusMatch, both.MatchStatus)

	primaryOnly := c.Compare(map[string]any{"inStock": true}, nil, DomainStock)
	assert.Equal(t, StatusPrimaryOnly, primaryOnly.MatchStatus)
	assert.Equal(t, 0.0, primaryOnly.Similarity)

	secondaryOnly := c.Compare(nil, map[string]any{"inStock": true}, DomainStock)
	assert.Equal(t, StatusSecondaryOnly, secondaryOnly.MatchStatus)
}

func TestCompare_NestedPathsAndSeverityFromNearestKey(t *testing.T) {
	c := NewComparator()

	primary := map[string]any{
		"article": map[string]any{
			"price": 10.0,
			"meta":  map[string]any{"updated": "2026-01-01"},
		},
	}
	secondary := map[string]any{
		"article": map[string]any{
			"price": 12.0,
			"meta":  map[string]any{"updated": "2026-02-01"},
		},
	}

	result := c.Compare(primary, secondary, DomainPrice)

	require.Len(t, result.Discrepancies, 2)
	byField := map[string]Discrepancy{}
	for _, d := range result.Discrepancies {
		byField[d.Field] = d
	}
	assert.Equal(t, SeverityCritical, byField["article.price"].Severity)
	assert.Equal(t, SeverityLow, byField["article.meta.updated"].Severity)
}

func TestCompare_MissingFieldOnOneSide(t *testing.T) {
	c := NewComparator()

	primary := map[string]any{"inStock": true, "quantity": 4}
	secondary := map[string]any{"inStock": true}

	result := c.Compare(primary, secondary, DomainStock)

	require.Len(t, result.Discrepancies, 1)
	d := result.Discrepancies[0]
	assert.Equal(t, "quantity", d.Field)
	assert.Equal(t, 4, d.Primary)
	assert.Nil(t, d.Secondary)
	assert.Equal(t, SeverityCritical, d.Severity)
}

func TestCompare_TypeMismatchIsCritical(t *testing.T) {
	c := NewComparator()

	primary := map[string]any{"notes": "12"}
	secondary := map[string]any{"notes": 12.0}

	result := c.Compare(primary, secondary, DomainContent)

	require.Len(t, result.Discrepancies, 1)
	assert.Equal(t, SeverityCritical, result.Discrepancies[0].Severity)
}

func TestCompare_ArraysByIndex(t *testing.T) {
	c := NewComparator()

	primary := map[string]any{"vehicles": []any{"VW-GOLF-7", "AUDI-A3-8V"}}
	secondary := map[string]any{"vehicles": []any{"VW-GOLF-7"}}

	result := c.Compare(primary, secondary, DomainCompatibility)

	require.Len(t, result.Discrepancies, 1)
	assert.Equal(t, "vehicles[1]", result.Discrepancies[0].Field)
}

func TestCompare_NumericTypesAreComparable(t *testing.T) {
	c := NewComparator()

	primary := map[string]any{"quantity": 4}
	secondary := map[string]any{"quantity": 4.0}

	result := c.Compare(primary, secondary, DomainStock)
	assert.Equal(t, StatusMatch, result.MatchStatus)
}

func TestCompareJSON_UndecodableInput(t *testing.T) {
	c := NewComparator()

	result := c.CompareJSON([]byte("{not json"), []byte(`{"ok":true}`), DomainContent)
	assert.Equal(t, StatusError, result.MatchStatus)
	assert.Equal(t, 0.0, result.Similarity)
}

func TestCompareWithTable_OverrideFields(t *testing.T) {
	c := NewComparator()
	table := NewSeverityTable([]string{"linkage"}, nil)

	primary := map[string]any{"linkage": "A", "color": "red"}
	secondary := map[string]any{"linkage": "B", "color": "blue"}

	result := c.CompareWithTable(primary, secondary, table)

	require.Len(t, result.Discrepancies, 2)
	byField := map[string]Severity{}
	for _, d := range result.Discrepancies {
		byField[d.Field] = d.Severity
	}
	assert.Equal(t, SeverityCritical, byField["linkage"])
	assert.Equal(t, SeverityLow, byField["color"])
	assert.Equal(t, 0.0, result.Similarity)
}

func TestCompare_DeterministicDiscrepancyOrder(t *testing.T) {
	c := NewComparator()

	primary := map[string]any{"b": 1.0, "a": 2.0, "c": 3.0}
	secondary := map[string]any{"b": 9.0, "a": 8.0, "c": 7.0}

	for i := 0; i < 10; i++ {
		result := c.Compare(primary, secondary, DomainContent)
		require.Len(t, result.Discrepancies, 3)
		assert.Equal(t, "a", result.Discrepancies[0].Field)
		assert.Equal(t, "b", result.Discrepancies[1].Field)
		assert.Equal(t, "c", result.Discrepancies[2].Field)
	}
}
