// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package validation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/partlinx/truthlayer/internal/breaker"
	"github.com/partlinx/truthlayer/internal/events"
)

// ShadowValidator runs the secondary lookup off the request path. Outcomes
// are logged and published to the event bus; they never influence the
// primary response.
type ShadowValidator struct {
	comparator *Comparator
	breaker    *breaker.Breaker
	bus        *events.Bus
	alerts     AlertSink

	// timeout bounds the detached secondary call so a hung source cannot
	// leak goroutines indefinitely.
	timeout time.Duration
}

// NewShadowValidator creates a shadow validator. The bus and alerts may be
// nil when no telemetry consumer is wired. Critical discrepancies reach the
// alert sink even though shadow results never touch the response.
func NewShadowValidator(comparator *Comparator, b *breaker.Breaker, bus *events.Bus, alerts AlertSink, timeout time.Duration) *ShadowValidator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ShadowValidator{comparator: comparator, breaker: b, bus: bus, alerts: alerts, timeout: timeout}
}

// Run detaches the shadow validation from the caller. It returns immediately;
// the primary response path has no dependency on the spawned work.
func (v *ShadowValidator) Run(primary any, fn LookupFunc, vctx *ValidationContext) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.WithField("request_id", vctx.RequestID).Errorf("panic in shadow validation: %v", r)
			}
		}()
		v.Validate(primary, fn, vctx)
	}()
}

// Validate performs one shadow comparison synchronously. It never lets an
// error escape: a failing secondary lookup yields an error-status comparison
// and a breaker failure record, nothing more.
func (v *ShadowValidator) Validate(primary any, fn LookupFunc, vctx *ValidationContext) *ShadowComparison {
	start := time.Now()

	if v.breaker.IsOpen(vctx.Endpoint) {
		comparison := &ShadowComparison{MatchStatus: StatusError, Discrepancies: []Discrepancy{}, Similarity: 0}
		v.publish(vctx, comparison, start, "circuit open")
		return comparison
	}

	secondary, err := v.callSecondary(fn, vctx)
	if err != nil {
		v.breaker.RecordFailure(vctx.Endpoint)
		comparison := &ShadowComparison{MatchStatus: StatusError, Discrepancies: []Discrepancy{}, Similarity: 0}
		v.publish(vctx, comparison, start, err.Error())
		return comparison
	}
	v.breaker.RecordSuccess(vctx.Endpoint)

	comparison := v.comparator.Compare(primary, secondary, vctx.Domain)
	v.logOutcome(vctx, primary, secondary, comparison, start)
	v.alertOnCritical(vctx, comparison)
	v.publish(vctx, comparison, start, "")
	return comparison
}

// alertOnCritical forwards critical discrepancies to the alert sink. Shadow
// mode never affects the response, but critical findings still page.
func (v *ShadowValidator) alertOnCritical(vctx *ValidationContext, comparison *ShadowComparison) {
	if v.alerts == nil || !comparison.HasCritical() {
		return
	}
	v.alerts.Dispatch(MismatchAlert{
		Severity:      SeverityCritical,
		DataType:      vctx.Domain,
		Endpoint:      vctx.Endpoint,
		RequestID:     vctx.RequestID,
		Timestamp:     time.Now(),
		Discrepancies: comparison.Discrepancies,
		Context:       vctx.Keys,
	})
}

// callSecondary bounds the lookup and converts panics into errors so the
// shadow path keeps its own error boundary.
func (v *ShadowValidator) callSecondary(fn LookupFunc, vctx *ValidationContext) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("secondary lookup panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()
	return fn(ctx, vctx)
}

func (v *ShadowValidator) logOutcome(vctx *ValidationContext, primary, secondary any, comparison *ShadowComparison, start time.Time) {
	entry := log.WithFields(log.Fields{
		"request_id":     vctx.RequestID,
		"endpoint":       vctx.Endpoint,
		"domain":         vctx.Domain,
		"match_status":   comparison.MatchStatus,
		"similarity":     comparison.Similarity,
		"discrepancies":  len(comparison.Discrepancies),
		"primary_hash":   payloadHash(primary),
		"secondary_hash": payloadHash(secondary),
		"latency_ms":     time.Since(start).Milliseconds(),
	})
	if comparison.MatchStatus == StatusMismatch {
		entry.Warn("shadow validation mismatch")
	} else {
		entry.Debug("shadow validation complete")
	}
}

func (v *ShadowValidator) publish(vctx *ValidationContext, comparison *ShadowComparison, start time.Time, errMsg string) {
	if v.bus == nil {
		return
	}
	data := map[string]any{
		"domain":        string(vctx.Domain),
		"match_status":  string(comparison.MatchStatus),
		"similarity":    comparison.Similarity,
		"discrepancies": comparison.Discrepancies,
		"latency_ms":    time.Since(start).Milliseconds(),
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	v.bus.Publish(events.Event{
		Type:      events.EventShadowComparison,
		RequestID: vctx.RequestID,
		Endpoint:  vctx.Endpoint,
		Data:      data,
	})
}

// payloadHash returns a short content hash for correlation logging. Payloads
// themselves are never logged.
func payloadHash(payload any) string {
	if payload == nil {
		return "-"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "-"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
