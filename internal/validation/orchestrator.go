// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/partlinx/truthlayer/internal/breaker"
	"github.com/partlinx/truthlayer/internal/events"
)

// Outcome is the result of one synchronous verification. Exactly one of the
// decision fields matters: a Redirect outcome always carries an envelope too,
// but the redirect governs the response shape.
type Outcome struct {
	Envelope   *VerificationEnvelope
	Redirect   *RedirectEnvelope
	Comparison *ShadowComparison
}

// Orchestrator runs the synchronous verification path: secondary lookup
// bounded by the policy timeout, comparison, and the mode/threshold decision
// table. Retries belong to the caller, never to the orchestrator.
type Orchestrator struct {
	comparator *Comparator
	breaker    *breaker.Breaker
	alerts     AlertSink
	bus        *events.Bus

	// tool names the secondary-source mechanism in envelopes.
	tool string
}

// NewOrchestrator creates an orchestrator. alerts and bus may be nil.
func NewOrchestrator(comparator *Comparator, b *breaker.Breaker, alerts AlertSink, bus *events.Bus, tool string) *Orchestrator {
	if tool == "" {
		tool = "secondary-lookup"
	}
	return &Orchestrator{comparator: comparator, breaker: b, alerts: alerts, bus: bus, tool: tool}
}

// ValidatePolicy fails fast on malformed policies. Called at route-table load
// time, never per request.
func ValidatePolicy(policy Policy) error {
	if !KnownMode(policy.Mode) {
		return ConfigError("unknown verification mode %q", policy.Mode)
	}
	if policy.OnMismatch != MismatchWarn && policy.OnMismatch != MismatchBlock {
		return ConfigError("unknown onMismatch %q", policy.OnMismatch)
	}
	if policy.Mode == ModeEnforcement && policy.OnMismatch == MismatchBlock {
		return ConfigError("enforcement mode cannot be combined with onMismatch=block")
	}
	if policy.MinConfidence < 0 || policy.MinConfidence > 1 {
		return ConfigError("minConfidence %v out of range", policy.MinConfidence)
	}
	if policy.Timeout <= 0 {
		return ConfigError("timeout must be positive")
	}
	return nil
}

// Verify runs the decision table for one request. The returned error is
// non-nil only for the refusal paths: onMismatch=block outside enforcement,
// and fail-closed gatekeeper unavailability. Enforcement never errors.
func (o *Orchestrator) Verify(ctx context.Context, primary any, fn LookupFunc, vctx *ValidationContext, policy Policy) (*Outcome, error) {
	start := time.Now()

	if o.breaker.IsOpen(vctx.Endpoint) {
		return o.handleUnavailable(vctx, policy, start, ErrCircuitOpen)
	}

	secondary, err := o.callSecondary(ctx, fn, vctx, policy.Timeout)
	if err != nil {
		o.breaker.RecordFailure(vctx.Endpoint)
		o.publishFailure(vctx, err)
		return o.handleUnavailable(vctx, policy, start, err)
	}
	o.breaker.RecordSuccess(vctx.Endpoint)

	if secondary == nil {
		// The source answered but had nothing to say about this subject.
		return o.handleUnavailable(vctx, policy, start, fmt.Errorf("%w: no secondary result", ErrSecondaryUnavailable))
	}

	var comparison *ShadowComparison
	if policy.SeverityOverride != nil {
		comparison = o.comparator.CompareWithTable(primary, secondary, *policy.SeverityOverride)
	} else {
		comparison = o.comparator.Compare(primary, secondary, vctx.Domain)
	}
	o.alertOnCritical(vctx, comparison, policy)

	confidence := comparison.Similarity

	if comparison.MatchStatus == StatusMatch && confidence >= policy.MinConfidence {
		return &Outcome{
			Envelope:   o.envelope(vctx, policy, EnvelopeVerified, nil, &confidence, start),
			Comparison: comparison,
		}, nil
	}

	if policy.Mode == ModeEnforcement {
		return o.redirectOutcome(vctx, policy, comparison, &confidence, start, "verification mismatch"), nil
	}

	if comparison.MatchStatus == StatusMismatch && policy.OnMismatch == MismatchBlock {
		log.WithFields(log.Fields{
			"request_id": vctx.RequestID,
			"endpoint":   vctx.Endpoint,
		}).Warn("verification mismatch on block-configured endpoint")
		return nil, NewMismatchRefusal(vctx)
	}

	warnings := mismatchWarnings(comparison)
	return &Outcome{
		Envelope:   o.envelope(vctx, policy, EnvelopeWarning, warnings, &confidence, start),
		Comparison: comparison,
	}, nil
}

// handleUnavailable branches an unavailable secondary source by mode:
// enforcement redirects, fail-closed gatekeeper refuses, everything else
// degrades to an unverified envelope.
func (o *Orchestrator) handleUnavailable(vctx *ValidationContext, policy Policy, start time.Time, cause error) (*Outcome, error) {
	if policy.Mode == ModeEnforcement {
		return o.redirectOutcome(vctx, policy, nil, nil, start, "verification unavailable"), nil
	}
	if policy.Mode == ModeGatekeeper && !policy.FallbackAllowed {
		return nil, NewUnavailableRefusal(vctx, cause)
	}

	warning := "verification skipped: secondary source unavailable"
	if errors.Is(cause, ErrCircuitOpen) {
		warning = "verification skipped: circuit open"
	}
	return &Outcome{
		Envelope: o.envelope(vctx, policy, EnvelopeUnverified, []string{warning}, nil, start),
	}, nil
}

func (o *Orchestrator) redirectOutcome(vctx *ValidationContext, policy Policy, comparison *ShadowComparison, confidence *float64, start time.Time, reason string) *Outcome {
	warnings := []string{reason}
	if comparison != nil {
		warnings = append(warnings, mismatchWarnings(comparison)...)
	}
	outcome := &Outcome{
		Envelope:   o.envelope(vctx, policy, EnvelopeWarning, warnings, confidence, start),
		Comparison: comparison,
	}
	if policy.RedirectOnEnforcement {
		outcome.Redirect = BuildRedirect(vctx, reason)
	}
	return outcome
}

// callSecondary bounds fn by the policy timeout. A timeout is indistinguishable
// from a connection failure for the caller; the eventual result of a timed-out
// call is discarded, not cancelled cooperatively.
func (o *Orchestrator) callSecondary(ctx context.Context, fn LookupFunc, vctx *ValidationContext, timeout time.Duration) (any, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type lookupResult struct {
		value any
		err   error
	}
	ch := make(chan lookupResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- lookupResult{nil, fmt.Errorf("%w: lookup panic: %v", ErrSecondaryUnavailable, r)}
			}
		}()
		value, err := fn(cctx, vctx)
		ch <- lookupResult{value, err}
	}()

	select {
	case <-cctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrSecondaryUnavailable, cctx.Err())
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSecondaryUnavailable, res.err)
		}
		return res.value, nil
	}
}

// alertOnCritical forwards critical discrepancies to the dispatcher no matter
// which decision branch the request takes.
func (o *Orchestrator) alertOnCritical(vctx *ValidationContext, comparison *ShadowComparison, policy Policy) {
	if o.alerts == nil || !comparison.HasCritical() {
		return
	}
	blocked := policy.OnMismatch == MismatchBlock && policy.Mode != ModeEnforcement
	o.alerts.Dispatch(MismatchAlert{
		Severity:      SeverityCritical,
		DataType:      vctx.Domain,
		Endpoint:      vctx.Endpoint,
		RequestID:     vctx.RequestID,
		Timestamp:     time.Now(),
		Discrepancies: comparison.Discrepancies,
		Context:       vctx.Keys,
		Blocked:       blocked,
	})
}

func (o *Orchestrator) publishFailure(vctx *ValidationContext, err error) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.Event{
		Type:      events.EventSecondaryFailure,
		RequestID: vctx.RequestID,
		Endpoint:  vctx.Endpoint,
		Data:      map[string]any{"error": err.Error(), "domain": string(vctx.Domain)},
	})
}

func (o *Orchestrator) envelope(vctx *ValidationContext, policy Policy, status EnvelopeStatus, warnings []string, confidence *float64, start time.Time) *VerificationEnvelope {
	if warnings == nil {
		warnings = []string{}
	}
	return &VerificationEnvelope{
		Status:     status,
		Mode:       policy.Mode,
		Warnings:   warnings,
		Confidence: confidence,
		Tool:       o.tool,
		LatencyMS:  time.Since(start).Milliseconds(),
		RequestID:  vctx.RequestID,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

func mismatchWarnings(comparison *ShadowComparison) []string {
	warnings := make([]string, 0, len(comparison.Discrepancies))
	for _, d := range comparison.Discrepancies {
		warnings = append(warnings, fmt.Sprintf("field %s differs (%s severity)", d.Field, d.Severity))
	}
	return warnings
}
