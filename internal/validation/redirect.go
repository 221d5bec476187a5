// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package validation

import (
	"fmt"

	"github.com/partlinx/truthlayer/internal/consensus"
)

// RecommendedAction is the user-facing suggestion derived from a consensus
// verdict. The action set is {proceed, verify, diagnostic}; a blocking action
// does not exist and must not be added — enforcement proceeds or redirects,
// never blocks.
type RecommendedAction struct {
	Action      string `json:"action"`
	Message     string `json:"message"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// BuildRecommendation maps a consensus verdict to its fixed action.
func BuildRecommendation(verdict consensus.Consensus, domain DataDomain) RecommendedAction {
	switch verdict {
	case consensus.ConsensusConfirmed:
		return RecommendedAction{
			Action:  "proceed",
			Message: "All sources agree. You can proceed with confidence.",
		}
	case consensus.ConsensusDivergent:
		return RecommendedAction{
			Action:      "diagnostic",
			Message:     "Sources disagree on this result. A guided diagnostic is recommended before purchase.",
			RedirectURL: fmt.Sprintf("/diagnostic/%s", domain),
		}
	case consensus.ConsensusPartial:
		return RecommendedAction{
			Action:      "verify",
			Message:     "Sources partially agree. Consider verifying the details before purchase.",
			RedirectURL: fmt.Sprintf("/verify/%s", domain),
		}
	default: // inconclusive: suggest verification but offer no redirect target
		return RecommendedAction{
			Action:  "verify",
			Message: "Independent confirmation was not possible. Verify the details manually if in doubt.",
		}
	}
}

// BuildRedirect builds the enforcement-mode detour envelope. CanContinue is
// always true; the redirect is a suggestion, not a gate.
func BuildRedirect(vctx *ValidationContext, reason string) *RedirectEnvelope {
	queryParams := make(map[string]string, len(vctx.Keys)+1)
	queryParams["source"] = "verification"
	originalRequest := make(map[string]any, len(vctx.Keys))
	for key, value := range vctx.Keys {
		queryParams[key] = fmt.Sprintf("%v", value)
		originalRequest[key] = value
	}

	return &RedirectEnvelope{
		Redirect:        true,
		URL:             fmt.Sprintf("/diagnostic/%s", vctx.Domain),
		Reason:          reason,
		OriginalRequest: originalRequest,
		CanContinue:     true,
		Recommendations: []string{
			"Run the guided diagnostic to confirm this result independently.",
			"You can continue with your purchase; this check is advisory only.",
		},
		QueryParams: queryParams,
	}
}

// PurchaseWarning is the warning string attached next to a redirect hint at
// the outer response level.
func PurchaseWarning(domain DataDomain) string {
	switch domain {
	case DomainCompatibility:
		return "Compatibility could not be independently confirmed. Purchase is allowed, but a diagnostic check is recommended."
	case DomainPrice:
		return "The displayed price could not be independently confirmed. Please review before checkout."
	default:
		return "This result could not be independently confirmed. Purchase is allowed."
	}
}
