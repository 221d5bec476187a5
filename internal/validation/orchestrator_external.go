// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package validation

import (
	"time"

	"github.com/partlinx/truthlayer/internal/consensus"
)

// ExternalOutcome is the result of combining several independent external
// verification sources for one subject.
type ExternalOutcome struct {
	Consensus      consensus.WeightedConsensusResult `json:"consensus"`
	CrossReference consensus.OemCrossValidationResult `json:"crossReference"`
	Recommendation RecommendedAction                  `json:"recommendation"`
	Envelope       *VerificationEnvelope              `json:"envelope"`
}

// VerifyExternal combines N external verification results against the
// internal verdict. This path never refuses a request: divergence produces a
// diagnostic recommendation, not a block.
func (o *Orchestrator) VerifyExternal(internalCompatible bool, externals []consensus.ExternalVerification, vctx *ValidationContext, policy Policy) *ExternalOutcome {
	start := time.Now()

	weighted := consensus.AnalyzeConsensusWeighted(internalCompatible, externals)
	crossRef := consensus.CrossValidateOemReferences(externals)
	recommendation := BuildRecommendation(weighted.Consensus, vctx.Domain)

	status := EnvelopeUnverified
	warnings := []string{}
	switch weighted.Consensus {
	case consensus.ConsensusConfirmed:
		status = EnvelopeVerified
	case consensus.ConsensusPartial:
		status = EnvelopeWarning
		warnings = append(warnings, "external sources partially agree")
	case consensus.ConsensusDivergent:
		status = EnvelopeWarning
		warnings = append(warnings, "external sources disagree with the internal result")
	default:
		warnings = append(warnings, "no usable external source")
	}
	if crossRef.HasConflicts {
		warnings = append(warnings, "conflicting manufacturer references: "+crossRef.ConflictDetails)
	}

	confidence := weighted.Confidence
	envelope := o.envelope(vctx, policy, status, warnings, &confidence, start)

	if o.alerts != nil && (weighted.Consensus == consensus.ConsensusDivergent || crossRef.HasConflicts) {
		o.alerts.Dispatch(MismatchAlert{
			Severity:  SeverityHigh,
			DataType:  vctx.Domain,
			Endpoint:  vctx.Endpoint,
			RequestID: vctx.RequestID,
			Timestamp: time.Now(),
			Context: map[string]any{
				"consensus":      string(weighted.Consensus),
				"weighted_score": weighted.WeightedScore,
				"ref_conflicts":  crossRef.HasConflicts,
			},
			Discrepancies: []Discrepancy{},
		})
	}

	return &ExternalOutcome{
		Consensus:      weighted,
		CrossReference: crossRef,
		Recommendation: recommendation,
		Envelope:       envelope,
	}
}
