// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package validation

import (
	"fmt"
	"math"
	"sort"

	json "github.com/goccy/go-json"
)

// Similarity penalties per discrepancy class. Any critical discrepancy forces
// the score to zero regardless of these.
const (
	criticalPenalty = 0.5
	highPenalty     = 0.2
	totalPenalty    = 0.05

	// matchThreshold is the minimum similarity for a clean match verdict.
	matchThreshold = 0.9
)

// Comparator deep-diffs primary and secondary payloads and classifies every
// differing field using the per-domain severity tables.
type Comparator struct {
	tables map[DataDomain]SeverityTable
}

// NewComparator creates a comparator with the compiled-in severity tables.
func NewComparator() *Comparator {
	return &Comparator{tables: map[DataDomain]SeverityTable{}}
}

// OverrideTable replaces the severity table for one domain. Used by route
// policies that carry explicit field lists.
func (c *Comparator) OverrideTable(domain DataDomain, table SeverityTable) {
	c.tables[domain] = table
}

func (c *Comparator) tableFor(domain DataDomain) SeverityTable {
	if t, ok := c.tables[domain]; ok {
		return t
	}
	return SeverityTableFor(domain)
}

// Compare diffs two decoded JSON payloads. Either side may be nil, which
// yields a primary_only/secondary_only verdict instead of a field walk.
func (c *Comparator) Compare(primary, secondary any, domain DataDomain) *ShadowComparison {
	return c.CompareWithTable(primary, secondary, c.tableFor(domain))
}

// CompareWithTable diffs two payloads using an explicit severity table,
// bypassing the per-domain lookup. Used by routes with field-list overrides.
func (c *Comparator) CompareWithTable(primary, secondary any, table SeverityTable) *ShadowComparison {
	if primary == nil && secondary == nil {
		return &ShadowComparison{MatchStatus: StatusMatch, Discrepancies: []Discrepancy{}, Similarity: 1.0}
	}
	if secondary == nil {
		return &ShadowComparison{MatchStatus: StatusPrimaryOnly, Discrepancies: []Discrepancy{}, Similarity: 0}
	}
	if primary == nil {
		return &ShadowComparison{MatchStatus: StatusSecondaryOnly, Discrepancies: []Discrepancy{}, Similarity: 0}
	}

	discrepancies := make([]Discrepancy, 0)
	walkValues("", "", primary, secondary, table, &discrepancies)

	return finishComparison(discrepancies)
}

// CompareJSON decodes two raw JSON payloads and diffs them. Undecodable
// input on either side is reported as an error verdict rather than panicking
// into the request path.
func (c *Comparator) CompareJSON(primary, secondary []byte, domain DataDomain) *ShadowComparison {
	var p, s any
	if len(primary) > 0 {
		if err := json.Unmarshal(primary, &p); err != nil {
			return &ShadowComparison{MatchStatus: StatusError, Discrepancies: []Discrepancy{}, Similarity: 0}
		}
	}
	if len(secondary) > 0 {
		if err := json.Unmarshal(secondary, &s); err != nil {
			return &ShadowComparison{MatchStatus: StatusError, Discrepancies: []Discrepancy{}, Similarity: 0}
		}
	}
	return c.Compare(p, s, domain)
}

func finishComparison(discrepancies []Discrepancy) *ShadowComparison {
	critical, high := 0, 0
	for _, d := range discrepancies {
		switch d.Severity {
		case SeverityCritical:
			critical++
		case SeverityHigh:
			high++
		}
	}

	similarity := 1.0 - criticalPenalty*float64(critical) - highPenalty*float64(high) - totalPenalty*float64(len(discrepancies))
	if similarity < 0 {
		similarity = 0
	}
	if critical > 0 {
		similarity = 0
	}

	status := StatusMismatch
	if len(discrepancies) == 0 && similarity > matchThreshold {
		status = StatusMatch
	}

	return &ShadowComparison{
		MatchStatus:   status,
		Discrepancies: discrepancies,
		Similarity:    similarity,
	}
}

// walkValues recurses over the union of both structures. path is the full
// dotted path for reporting; field is the nearest map key, which drives
// severity classification.
func walkValues(path, field string, primary, secondary any, table SeverityTable, out *[]Discrepancy) {
	pMissing := isMissing(primary)
	sMissing := isMissing(secondary)
	if pMissing && sMissing {
		return
	}
	if pMissing != sMissing {
		*out = append(*out, Discrepancy{
			Field:     path,
			Primary:   primary,
			Secondary: secondary,
			Severity:  table.Classify(field),
		})
		return
	}

	pMap, pIsMap := primary.(map[string]any)
	sMap, sIsMap := secondary.(map[string]any)
	if pIsMap && sIsMap {
		for _, key := range unionKeys(pMap, sMap) {
			walkValues(joinPath(path, key), key, pMap[key], sMap[key], table, out)
		}
		return
	}

	pList, pIsList := primary.([]any)
	sList, sIsList := secondary.([]any)
	if pIsList && sIsList {
		n := len(pList)
		if len(sList) > n {
			n = len(sList)
		}
		for i := 0; i < n; i++ {
			var pv, sv any
			if i < len(pList) {
				pv = pList[i]
			}
			if i < len(sList) {
				sv = sList[i]
			}
			walkValues(fmt.Sprintf("%s[%d]", path, i), field, pv, sv, table, out)
		}
		return
	}

	// A structural type mismatch between the two sides is always critical.
	if pIsMap != sIsMap || pIsList != sIsList {
		*out = append(*out, Discrepancy{Field: path, Primary: primary, Secondary: secondary, Severity: SeverityCritical})
		return
	}

	if !leafEqual(primary, secondary) {
		severity := table.Classify(field)
		if !sameLeafType(primary, secondary) {
			severity = SeverityCritical
		}
		*out = append(*out, Discrepancy{Field: path, Primary: primary, Secondary: secondary, Severity: severity})
	}
}

// isMissing treats nil and NaN as absent values, not as zeroes.
func isMissing(v any) bool {
	if v == nil {
		return true
	}
	if f, ok := asFloat(v); ok && math.IsNaN(f) {
		return true
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func sameLeafType(a, b any) bool {
	if _, ok := asFloat(a); ok {
		_, ok2 := asFloat(b)
		return ok2
	}
	switch a.(type) {
	case string:
		_, ok := b.(string)
		return ok
	case bool:
		_, ok := b.(bool)
		return ok
	}
	return fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}

func leafEqual(a, b any) bool {
	if af, ok := asFloat(a); ok {
		if bf, ok2 := asFloat(b); ok2 {
			return af == bf
		}
		return false
	}
	return a == b
}

// unionKeys returns the sorted union of both maps' keys. Sorting keeps
// discrepancy order deterministic for display.
func unionKeys(a, b map[string]any) []string {
	seen := make(map[string]bool, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
