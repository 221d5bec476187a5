// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package consensus combines heterogeneous external verification results
// into a single weighted verdict with a confidence score, and cross-checks
// manufacturer reference numbers across sources.
package consensus

// Consensus is the aggregated verdict class.
type Consensus string

const (
	ConsensusConfirmed    Consensus = "confirmed"
	ConsensusDivergent    Consensus = "divergent"
	ConsensusPartial      Consensus = "partial"
	ConsensusInconclusive Consensus = "inconclusive"
)

// Thresholds on the weighted agreement score.
const (
	confirmedThreshold = 0.7
	divergentThreshold = 0.3

	// highTrustWeight marks a source reliable enough to count toward the
	// redundant-agreement bonus.
	highTrustWeight = 0.75

	agreementBonus = 0.05
	confidenceCap  = 0.98
)

// ExternalVerification is one external source's answer for a subject.
// Compatible is nil when the source could not produce a verdict.
type ExternalVerification struct {
	Source        string   `json:"source"`
	Weight        float64  `json:"weight"`
	Compatible    *bool    `json:"compatible"`
	Error         string   `json:"error,omitempty"`
	OemReferences []string `json:"oemReferences,omitempty"`
}

// valid reports whether this result can contribute to consensus.
func (e ExternalVerification) valid() bool {
	return e.Compatible != nil && e.Error == ""
}

// SourceContribution records how one source affected the consensus.
type SourceContribution struct {
	Source       string  `json:"source"`
	Weight       float64 `json:"weight"`
	Agreed       bool    `json:"agreed"`
	Contribution float64 `json:"contribution"`
}

// WeightedConsensusResult is the combined verdict over all valid sources.
type WeightedConsensusResult struct {
	Consensus       Consensus            `json:"consensus"`
	Confidence      float64              `json:"confidence"`
	WeightedScore   float64              `json:"weightedScore"`
	SourceBreakdown []SourceContribution `json:"sourceBreakdown"`
}

// AnalyzeConsensusWeighted combines external results against the internal
// verdict. Each valid source contributes its reliability weight; it counts
// toward agreement only when its verdict matches the internal result.
// Redundant high-trust agreement earns a small confidence bonus so that no
// single source can dominate.
func AnalyzeConsensusWeighted(internalCompatible bool, externals []ExternalVerification) WeightedConsensusResult {
	breakdown := make([]SourceContribution, 0, len(externals))

	totalWeight := 0.0
	compatibleWeight := 0.0
	highTrustAgreements := 0

	for _, ext := range externals {
		if !ext.valid() {
			continue
		}
		weight := clamp01(ext.Weight)
		agreed := *ext.Compatible == internalCompatible

		totalWeight += weight
		contribution := 0.0
		if agreed {
			compatibleWeight += weight
			contribution = weight
			if weight >= highTrustWeight {
				highTrustAgreements++
			}
		}
		breakdown = append(breakdown, SourceContribution{
			Source:       ext.Source,
			Weight:       weight,
			Agreed:       agreed,
			Contribution: contribution,
		})
	}

	if totalWeight == 0 {
		return WeightedConsensusResult{
			Consensus:       ConsensusInconclusive,
			Confidence:      0,
			WeightedScore:   0,
			SourceBreakdown: breakdown,
		}
	}

	score := compatibleWeight / totalWeight

	verdict := ConsensusPartial
	switch {
	case score >= confirmedThreshold:
		verdict = ConsensusConfirmed
	case score <= divergentThreshold:
		verdict = ConsensusDivergent
	}

	confidence := score
	if verdict == ConsensusConfirmed && highTrustAgreements >= 2 {
		confidence += agreementBonus
	}
	if confidence > confidenceCap {
		confidence = confidenceCap
	}

	return WeightedConsensusResult{
		Consensus:       verdict,
		Confidence:      confidence,
		WeightedScore:   score,
		SourceBreakdown: breakdown,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
