// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeOemRef(t *testing.T) {
	cases := map[string]string{
		"5Q0 615 301 F":  "5Q0615301F",
		"5q0-615-301-f":  "5Q0615301F",
		"5q0.615.301_f":  "5Q0615301F",
		" 5Q0\t615301F ": "5Q0615301F",
		"":               "",
	}
	for input, want := range cases {
		assert.Equal(t, want, NormalizeOemRef(input), "input %q", input)
	}
}

func TestCrossValidateOemReferences_EquivalentFormsTallyTogether(t *testing.T) {
	externals := []ExternalVerification{
		{Source: "oem-portal", Weight: 0.9, OemReferences: []string{"5Q0 615 301 F"}},
		{Source: "distributor", Weight: 0.8, OemReferences: []string{"5q0615301f"}},
		{Source: "scraper", Weight: 0.4, OemReferences: []string{"5Q0-615-301-F"}},
	}

	result := CrossValidateOemReferences(externals)

	require.Len(t, result.Validated, 1)
	ref := result.Validated[0]
	assert.Equal(t, "5Q0615301F", ref.NormalizedRef)
	assert.Equal(t, "5Q0 615 301 F", ref.Ref, "first-seen original form wins")
	assert.Equal(t, 3, ref.OccurrenceCount)
	assert.Equal(t, []string{"distributor", "oem-portal", "scraper"}, ref.Sources)
	assert.Equal(t, 1.0, ref.Confidence)
	assert.False(t, result.HasConflicts)
	assert.Equal(t, "5Q0 615 301 F", result.PrimaryRef)
}

func TestCrossValidateOemReferences_RepeatedDisagreementIsConflict(t *testing.T) {
	externals := []ExternalVerification{
		{Source: "a", OemReferences: []string{"111-AAA"}},
		{Source: "b", OemReferences: []string{"111 AAA"}},
		{Source: "c", OemReferences: []string{"222-BBB"}},
		{Source: "d", OemReferences: []string{"222 BBB"}},
	}

	result := CrossValidateOemReferences(externals)

	assert.True(t, result.HasConflicts)
	assert.NotEmpty(t, result.ConflictDetails)
}

func TestCrossValidateOemReferences_DisjointHighTrustSources(t *testing.T) {
	externals := []ExternalVerification{
		{Source: "oem-portal", Weight: 0.9, OemReferences: []string{"111-AAA"}},
		{Source: "distributor", Weight: 0.85, OemReferences: []string{"222-BBB"}},
	}

	result := CrossValidateOemReferences(externals)

	assert.True(t, result.HasConflicts)
	assert.Contains(t, result.ConflictDetails, "disjoint")
}

func TestCrossValidateOemReferences_LowTrustDisagreementIsNoConflict(t *testing.T) {
	externals := []ExternalVerification{
		{Source: "scraper-1", Weight: 0.3, OemReferences: []string{"111-AAA"}},
		{Source: "scraper-2", Weight: 0.3, OemReferences: []string{"222-BBB"}},
	}

	result := CrossValidateOemReferences(externals)

	assert.False(t, result.HasConflicts, "one-off scraper disagreement is not a conflict")
	require.Len(t, result.Validated, 2)
}

func TestCrossValidateOemReferences_MostFrequentIsPrimary(t *testing.T) {
	externals := []ExternalVerification{
		{Source: "a", OemReferences: []string{"RARE-1"}},
		{Source: "b", OemReferences: []string{"COMMON-2"}},
		{Source: "c", OemReferences: []string{"common 2"}},
	}

	result := CrossValidateOemReferences(externals)

	assert.Equal(t, "COMMON-2", result.PrimaryRef)
	assert.InDelta(t, 2.0/3.0, result.Validated[0].Confidence, 1e-9)
}

func TestCrossValidateOemReferences_Empty(t *testing.T) {
	result := CrossValidateOemReferences(nil)
	assert.Empty(t, result.Validated)
	assert.Empty(t, result.PrimaryRef)
	assert.False(t, result.HasConflicts)
}
