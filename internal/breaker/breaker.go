// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package breaker provides a per-endpoint circuit breaker guarding
// secondary-source calls. State is process-lifetime only; a restart resets
// every circuit to closed, which is the documented cold-start risk.
package breaker

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// State is the circuit state for one endpoint.
type State string

const (
	StateClosed   State = "closed"
	StateHalfOpen State = "half_open"
	StateOpen     State = "open"
)

// Config holds the breaker thresholds.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens a circuit.
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit waits before allowing a probe.
	RecoveryTimeout time.Duration

	// HalfOpenProbes is the number of consecutive successes in half-open
	// state required to close the circuit again.
	HalfOpenProbes int
}

// DefaultConfig returns the default breaker thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		HalfOpenProbes:   3,
	}
}

// Status is a snapshot of one endpoint's circuit.
type Status struct {
	State         State      `json:"state"`
	FailureCount  int        `json:"failure_count"`
	SuccessCount  int        `json:"success_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
}

type circuit struct {
	state         State
	failureCount  int
	successCount  int
	lastFailureAt time.Time
	nextRetryAt   time.Time
}

// Breaker tracks circuit state per endpoint. Circuits are created lazily on
// first failure and never destroyed.
type Breaker struct {
	mu       sync.Mutex
	config   Config
	circuits map[string]*circuit

	// now is injectable for tests.
	now func() time.Time
}

// New creates a breaker with the given config. Zero or negative thresholds
// fall back to the defaults.
func New(config Config) *Breaker {
	defaults := DefaultConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = defaults.RecoveryTimeout
	}
	if config.HalfOpenProbes <= 0 {
		config.HalfOpenProbes = defaults.HalfOpenProbes
	}
	return &Breaker{
		config:   config,
		circuits: make(map[string]*circuit),
		now:      time.Now,
	}
}

// SetClock replaces the breaker's time source. Test hook.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// IsOpen reports whether calls for endpoint should be skipped. When an open
// circuit's retry time has passed, the read transitions it to half-open and
// returns false so one probe goes through. Callers must tolerate that
// side-effect mutation.
func (b *Breaker) IsOpen(endpoint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[endpoint]
	if !ok || c.state == StateClosed {
		return false
	}
	if c.state == StateOpen {
		if !b.now().Before(c.nextRetryAt) {
			c.state = StateHalfOpen
			c.successCount = 0
			log.WithField("endpoint", endpoint).Info("circuit half-open, allowing probe")
			return false
		}
		return true
	}
	// Half-open circuits allow probes through.
	return false
}

// RecordSuccess notes a successful secondary call for endpoint.
func (b *Breaker) RecordSuccess(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[endpoint]
	if !ok {
		return
	}

	switch c.state {
	case StateHalfOpen:
		c.successCount++
		if c.successCount >= b.config.HalfOpenProbes {
			c.state = StateClosed
			c.failureCount = 0
			c.successCount = 0
			log.WithField("endpoint", endpoint).Info("circuit closed after recovery probes")
		}
	case StateClosed:
		c.failureCount = 0
	}
}

// RecordFailure notes a failed secondary call for endpoint, opening the
// circuit when the threshold is reached.
func (b *Breaker) RecordFailure(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[endpoint]
	if !ok {
		c = &circuit{state: StateClosed}
		b.circuits[endpoint] = c
	}

	now := b.now()
	c.lastFailureAt = now

	switch c.state {
	case StateHalfOpen:
		// Any failure during probing sends the circuit straight back to open.
		c.state = StateOpen
		c.successCount = 0
		c.nextRetryAt = now.Add(b.config.RecoveryTimeout)
		log.WithField("endpoint", endpoint).Warn("probe failed, circuit re-opened")
	case StateClosed:
		c.failureCount++
		if c.failureCount >= b.config.FailureThreshold {
			c.state = StateOpen
			c.nextRetryAt = now.Add(b.config.RecoveryTimeout)
			log.WithFields(log.Fields{
				"endpoint": endpoint,
				"failures": c.failureCount,
			}).Warn("circuit opened")
		}
	case StateOpen:
		c.nextRetryAt = now.Add(b.config.RecoveryTimeout)
	}
}

// Status returns a snapshot for one endpoint. Unknown endpoints report a
// closed circuit with zero counters.
func (b *Breaker) Status(endpoint string) Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[endpoint]
	if !ok {
		return Status{State: StateClosed}
	}
	return snapshot(c)
}

// Snapshot returns the status of every known endpoint.
func (b *Breaker) Snapshot() map[string]Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]Status, len(b.circuits))
	for endpoint, c := range b.circuits {
		out[endpoint] = snapshot(c)
	}
	return out
}

func snapshot(c *circuit) Status {
	s := Status{
		State:        c.state,
		FailureCount: c.failureCount,
		SuccessCount: c.successCount,
	}
	if !c.lastFailureAt.IsZero() {
		t := c.lastFailureAt
		s.LastFailureAt = &t
	}
	if !c.nextRetryAt.IsZero() {
		t := c.nextRetryAt
		s.NextRetryAt = &t
	}
	return s
}
