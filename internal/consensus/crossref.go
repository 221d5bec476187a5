// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package consensus

import (
	"fmt"
	"sort"
	"strings"
)

// ValidatedReference is one normalized OEM reference with its tally.
type ValidatedReference struct {
	Ref             string   `json:"ref"`
	NormalizedRef   string   `json:"normalizedRef"`
	OccurrenceCount int      `json:"occurrenceCount"`
	Sources         []string `json:"sources"`
	Confidence      float64  `json:"confidence"`
}

// OemCrossValidationResult is the cross-source reference tally.
type OemCrossValidationResult struct {
	Validated       []ValidatedReference `json:"validated"`
	HasConflicts    bool                 `json:"hasConflicts"`
	PrimaryRef      string               `json:"primaryRef"`
	ConflictDetails string               `json:"conflictDetails,omitempty"`
}

// NormalizeOemRef canonicalizes a manufacturer reference for comparison:
// uppercase with whitespace, dashes, dots, and underscores stripped.
func NormalizeOemRef(ref string) string {
	var b strings.Builder
	b.Grow(len(ref))
	for _, r := range strings.ToUpper(ref) {
		switch r {
		case ' ', '\t', '-', '.', '_':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CrossValidateOemReferences tallies the reference numbers reported by each
// source under their normalized form. The primary ref is the original form
// of the most frequent normalized value. Conflicts arise when two distinct
// normalized values are each reported at least twice, or when two high-trust
// sources report fully disjoint reference sets.
func CrossValidateOemReferences(externals []ExternalVerification) OemCrossValidationResult {
	type tally struct {
		original string
		count    int
		sources  map[string]bool
	}

	tallies := make(map[string]*tally)
	order := make([]string, 0)

	for _, ext := range externals {
		for _, ref := range ext.OemReferences {
			normalized := NormalizeOemRef(ref)
			if normalized == "" {
				continue
			}
			t, ok := tallies[normalized]
			if !ok {
				t = &tally{original: ref, sources: make(map[string]bool)}
				tallies[normalized] = t
				order = append(order, normalized)
			}
			t.count++
			t.sources[ext.Source] = true
		}
	}

	totalOccurrences := 0
	for _, t := range tallies {
		totalOccurrences += t.count
	}

	validated := make([]ValidatedReference, 0, len(tallies))
	for _, normalized := range order {
		t := tallies[normalized]
		sources := make([]string, 0, len(t.sources))
		for s := range t.sources {
			sources = append(sources, s)
		}
		sort.Strings(sources)

		confidence := 0.0
		if totalOccurrences > 0 {
			confidence = float64(t.count) / float64(totalOccurrences)
		}
		validated = append(validated, ValidatedReference{
			Ref:             t.original,
			NormalizedRef:   normalized,
			OccurrenceCount: t.count,
			Sources:         sources,
			Confidence:      confidence,
		})
	}

	// Most frequent first; ties resolved by discovery order via stable sort.
	sort.SliceStable(validated, func(i, j int) bool {
		return validated[i].OccurrenceCount > validated[j].OccurrenceCount
	})

	result := OemCrossValidationResult{Validated: validated}
	if len(validated) > 0 {
		result.PrimaryRef = validated[0].Ref
	}

	repeated := make([]string, 0)
	for _, v := range validated {
		if v.OccurrenceCount >= 2 {
			repeated = append(repeated, v.NormalizedRef)
		}
	}
	if len(repeated) >= 2 {
		result.HasConflicts = true
		result.ConflictDetails = fmt.Sprintf("multiple repeated references disagree: %s", strings.Join(repeated, ", "))
	}

	if !result.HasConflicts {
		if a, b, disjoint := disjointHighTrustSources(externals); disjoint {
			result.HasConflicts = true
			result.ConflictDetails = fmt.Sprintf("high-trust sources %s and %s report disjoint reference sets", a, b)
		}
	}

	return result
}

// disjointHighTrustSources looks for two high-trust sources whose non-empty
// reference sets share no normalized value.
func disjointHighTrustSources(externals []ExternalVerification) (string, string, bool) {
	type refSet struct {
		source string
		refs   map[string]bool
	}

	sets := make([]refSet, 0)
	for _, ext := range externals {
		if ext.Weight < highTrustWeight || len(ext.OemReferences) == 0 {
			continue
		}
		refs := make(map[string]bool, len(ext.OemReferences))
		for _, ref := range ext.OemReferences {
			if normalized := NormalizeOemRef(ref); normalized != "" {
				refs[normalized] = true
			}
		}
		if len(refs) > 0 {
			sets = append(sets, refSet{source: ext.Source, refs: refs})
		}
	}

	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			if !intersects(sets[i].refs, sets[j].refs) {
				return sets[i].source, sets[j].source, true
			}
		}
	}
	return "", "", false
}

func intersects(a, b map[string]bool) bool {
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}
