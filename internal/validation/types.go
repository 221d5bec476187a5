// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package validation implements the truth verification layer: it re-derives
// catalog answers from secondary sources, diffs them against the primary
// response, and decides whether the response passes, gets a warning, is
// refused, or is converted into a diagnostic redirect.
package validation

import (
	"context"
	"time"
)

// DataDomain identifies which verification table and policy applies to a payload.
type DataDomain string

const (
	DomainCompatibility   DataDomain = "compatibility"
	DomainPrice           DataDomain = "price"
	DomainStock           DataDomain = "stock"
	DomainSafety          DataDomain = "safety"
	DomainReference       DataDomain = "reference"
	DomainVehicleIdentity DataDomain = "vehicle-identity"
	DomainDiagnostic      DataDomain = "diagnostic"
	DomainPageRole        DataDomain = "page-role"
	DomainContent         DataDomain = "content"
)

// KnownDomain reports whether d is one of the closed set of data domains.
func KnownDomain(d DataDomain) bool {
	switch d {
	case DomainCompatibility, DomainPrice, DomainStock, DomainSafety,
		DomainReference, DomainVehicleIdentity, DomainDiagnostic,
		DomainPageRole, DomainContent:
		return true
	}
	return false
}

// Mode selects how verification interacts with the primary response path.
type Mode string

const (
	// ModeShadow runs the secondary check off the request path; results are
	// logged only and never affect the response.
	ModeShadow Mode = "shadow"

	// ModeVerification runs the secondary check synchronously and may attach
	// warnings to the response.
	ModeVerification Mode = "verification"

	// ModeGatekeeper requires a successful secondary check before allowing
	// safety-critical actions; fails closed when fallback is not allowed.
	ModeGatekeeper Mode = "gatekeeper"

	// ModeEnforcement converts every would-be failure into a redirect hint.
	// It can never block a request by itself.
	ModeEnforcement Mode = "enforcement"
)

// KnownMode reports whether m is a valid verification mode.
func KnownMode(m Mode) bool {
	switch m {
	case ModeShadow, ModeVerification, ModeGatekeeper, ModeEnforcement:
		return true
	}
	return false
}

// Severity classifies how dangerous a single field discrepancy is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for threshold filtering.
func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is at or above the min severity.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank(s) >= severityRank(min)
}

// MatchStatus is the outcome class of one comparison.
type MatchStatus string

const (
	StatusMatch         MatchStatus = "match"
	StatusMismatch      MatchStatus = "mismatch"
	StatusSecondaryOnly MatchStatus = "secondary_only"
	StatusPrimaryOnly   MatchStatus = "primary_only"
	StatusError         MatchStatus = "error"
)

// ValidationContext identifies one verification attempt. It is created by the
// request-scoped caller and treated as immutable for the life of the request.
type ValidationContext struct {
	RequestID string         `json:"request_id"`
	Endpoint  string         `json:"endpoint"`
	Domain    DataDomain     `json:"domain"`
	Mode      Mode           `json:"mode"`
	Keys      map[string]any `json:"keys,omitempty"`
	StartedAt time.Time      `json:"started_at"`
}

// Discrepancy records one differing field between primary and secondary data.
// Never mutated after the comparator produces it.
type Discrepancy struct {
	Field     string   `json:"field"`
	Primary   any      `json:"value_from_primary"`
	Secondary any      `json:"value_from_secondary"`
	Severity  Severity `json:"severity"`
}

// ShadowComparison is the comparator's verdict on a primary/secondary pair.
type ShadowComparison struct {
	MatchStatus   MatchStatus   `json:"match_status"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	Similarity    float64       `json:"similarity"`
}

// HasCritical reports whether any discrepancy is critical.
func (c *ShadowComparison) HasCritical() bool {
	for _, d := range c.Discrepancies {
		if d.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// EnvelopeStatus is the outward-facing verification verdict.
type EnvelopeStatus string

const (
	EnvelopeVerified   EnvelopeStatus = "verified"
	EnvelopeUnverified EnvelopeStatus = "unverified"
	EnvelopeWarning    EnvelopeStatus = "warning"
	EnvelopeBlocked    EnvelopeStatus = "blocked"
)

// VerificationEnvelope is attached to (or wraps) a response when the route
// policy asks for it.
type VerificationEnvelope struct {
	Status     EnvelopeStatus `json:"status"`
	Mode       Mode           `json:"mode"`
	Warnings   []string       `json:"warnings"`
	Confidence *float64       `json:"confidence,omitempty"`
	Tool       string         `json:"tool,omitempty"`
	LatencyMS  int64          `json:"latency_ms"`
	RequestID  string         `json:"requestId"`
	Timestamp  string         `json:"timestamp"`
}

// RedirectEnvelope is the enforcement-mode detour hint. CanContinue is a
// constant true: enforcement may suggest a diagnostic flow, never block.
type RedirectEnvelope struct {
	Redirect        bool              `json:"redirect"`
	URL             string            `json:"url"`
	Reason          string            `json:"reason"`
	OriginalRequest map[string]any    `json:"original_request"`
	CanContinue     bool              `json:"can_continue"`
	Recommendations []string          `json:"recommendations"`
	QueryParams     map[string]string `json:"query_params"`
}

// OnMismatch selects what a synchronous mismatch does to the request.
type OnMismatch string

const (
	MismatchWarn  OnMismatch = "warning"
	MismatchBlock OnMismatch = "block"
)

// Policy is the per-route verification policy. All fields are explicit; the
// route table fills defaults at load time, not per request.
type Policy struct {
	Mode                  Mode
	OnMismatch            OnMismatch
	MinConfidence         float64
	Timeout               time.Duration
	IncludeInResponse     bool
	RedirectOnEnforcement bool

	// FallbackAllowed controls gatekeeper behavior when the secondary source
	// is unavailable. False means fail closed (refuse the request).
	FallbackAllowed bool

	// SeverityOverride replaces the compiled-in per-domain severity table
	// for routes that declare explicit field lists.
	SeverityOverride *SeverityTable
}

// LookupFunc obtains the secondary result for a verification attempt.
// A nil result with nil error means the secondary source had no answer.
type LookupFunc func(ctx context.Context, vctx *ValidationContext) (any, error)

// MismatchAlert is the value handed to the alert dispatcher when a
// high-severity discrepancy is found. Buffered, then flushed; never
// persisted individually before flush.
type MismatchAlert struct {
	Severity      Severity       `json:"severity"`
	DataType      DataDomain     `json:"dataType"`
	Endpoint      string         `json:"endpoint"`
	RequestID     string         `json:"requestId"`
	Timestamp     time.Time      `json:"timestamp"`
	Discrepancies []Discrepancy  `json:"discrepancies"`
	Context       map[string]any `json:"context,omitempty"`
	Blocked       bool           `json:"blocked"`
}

// AlertSink receives mismatch alerts. The dispatcher implements it; the
// orchestrator only depends on this interface so tests can inject a recorder.
type AlertSink interface {
	Dispatch(alert MismatchAlert)
}
