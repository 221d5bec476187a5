// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"

	json "github.com/goccy/go-json"

	"github.com/partlinx/truthlayer/internal/validation"
)

// Response keys injected by the verification layer. Prefixed so they never
// collide with catalog payload fields.
const (
	verificationKey = "_mcp_verification"
	redirectKey     = "_mcp_redirect"
)

// redirectWrapper is the response shape for enforcement redirects: the
// original payload survives under "data" and purchasing stays allowed.
type redirectWrapper struct {
	Data            json.RawMessage                  `json:"data"`
	Redirect        *validation.RedirectEnvelope     `json:"_mcp_redirect"`
	Verification    *validation.VerificationEnvelope `json:"_mcp_verification,omitempty"`
	CanPurchase     bool                             `json:"can_purchase"`
	PurchaseWarning string                           `json:"purchase_warning"`
}

// finalizeBody rewrites the captured response body according to the
// verification outcome. On any marshalling trouble the original body wins;
// verification must never corrupt a working response.
func finalizeBody(body []byte, outcome *validation.Outcome, vctx *validation.ValidationContext, policy validation.Policy) []byte {
	if outcome == nil {
		return body
	}

	if outcome.Redirect != nil {
		wrapper := redirectWrapper{
			Data:            json.RawMessage(body),
			Redirect:        outcome.Redirect,
			CanPurchase:     true,
			PurchaseWarning: validation.PurchaseWarning(vctx.Domain),
		}
		if policy.IncludeInResponse {
			wrapper.Verification = outcome.Envelope
		}
		wrapped, err := json.Marshal(wrapper)
		if err != nil {
			log.WithField("request_id", vctx.RequestID).WithError(err).Error("redirect wrapper marshal failed")
			return body
		}
		return wrapped
	}

	if !policy.IncludeInResponse || outcome.Envelope == nil {
		return body
	}
	injected, err := sjson.SetBytes(body, verificationKey, outcome.Envelope)
	if err != nil {
		log.WithField("request_id", vctx.RequestID).WithError(err).Error("envelope injection failed")
		return body
	}
	return injected
}
