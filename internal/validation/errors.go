// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package validation

import (
	"errors"
	"fmt"
)

// Sentinel errors for the verification taxonomy. Callers branch with
// errors.Is; user-visible refusals are built from RefusalError.
var (
	// ErrSecondaryUnavailable marks a timeout or connection failure on the
	// secondary source. Recorded by the circuit breaker, recovered locally
	// except in fail-closed gatekeeper routes.
	ErrSecondaryUnavailable = errors.New("secondary source unavailable")

	// ErrCircuitOpen marks a secondary call skipped preemptively.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrDataMismatch marks a critical discrepancy on a block-configured route.
	ErrDataMismatch = errors.New("data mismatch")

	// ErrConfiguration marks an invalid policy or config value. Raised at
	// setup time, never per request.
	ErrConfiguration = errors.New("configuration error")
)

// RefusalError is the structured refusal returned for blocked requests.
type RefusalError struct {
	Code      string     `json:"code"`
	Message   string     `json:"message_localized"`
	DataType  DataDomain `json:"dataType"`
	RequestID string     `json:"requestId"`

	cause error
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("%s: %s (domain=%s, request=%s)", e.Code, e.Message, e.DataType, e.RequestID)
}

// Unwrap exposes the sentinel cause so errors.Is works on refusals.
func (e *RefusalError) Unwrap() error { return e.cause }

// NewMismatchRefusal builds the refusal for a block-configured mismatch.
func NewMismatchRefusal(vctx *ValidationContext) *RefusalError {
	return &RefusalError{
		Code:      "DATA_MISMATCH",
		Message:   "The requested data could not be confirmed against a second source.",
		DataType:  vctx.Domain,
		RequestID: vctx.RequestID,
		cause:     ErrDataMismatch,
	}
}

// NewUnavailableRefusal builds the refusal for a fail-closed gatekeeper route
// whose secondary source is unavailable.
func NewUnavailableRefusal(vctx *ValidationContext, cause error) *RefusalError {
	if cause == nil {
		cause = ErrSecondaryUnavailable
	}
	return &RefusalError{
		Code:      "VERIFICATION_UNAVAILABLE",
		Message:   "This check requires independent confirmation which is currently unavailable.",
		DataType:  vctx.Domain,
		RequestID: vctx.RequestID,
		cause:     cause,
	}
}

// ConfigError wraps a setup-time configuration problem.
func ConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
