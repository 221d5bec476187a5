// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package alerting buffers mismatch alerts and fans them out to notification
// channels. Alerting is eventually-consistent telemetry: there is no ordering
// guarantee between a flush and the request that produced the alert.
package alerting

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/partlinx/truthlayer/internal/validation"
)

// Channel delivers a batch of alerts to one destination. Channel failures are
// isolated: one failing channel never prevents others from receiving a batch.
type Channel interface {
	Name() string
	Send(batch []validation.MismatchAlert) error
}

// Config holds dispatcher limits.
type Config struct {
	// MinSeverity drops alerts below this level before any other processing.
	MinSeverity validation.Severity

	// RateLimitWindow is the sliding window for per-endpoint rate limiting.
	RateLimitWindow time.Duration

	// RateLimitMax is the maximum accepted alerts per endpoint per window.
	// Excess alerts are dropped, not queued.
	RateLimitMax int

	// MaxBufferSize triggers a flush when the buffer reaches it.
	MaxBufferSize int

	// FlushInterval is the periodic flush cadence.
	FlushInterval time.Duration
}

// DefaultConfig returns the default dispatcher limits.
func DefaultConfig() Config {
	return Config{
		MinSeverity:     validation.SeverityMedium,
		RateLimitWindow: time.Minute,
		RateLimitMax:    10,
		MaxBufferSize:   50,
		FlushInterval:   30 * time.Second,
	}
}

// Stats is a dispatcher counters snapshot.
type Stats struct {
	Accepted    int64 `json:"accepted"`
	RateLimited int64 `json:"rate_limited"`
	Filtered    int64 `json:"filtered"`
	Flushes     int64 `json:"flushes"`
	SendErrors  int64 `json:"send_errors"`
	Buffered    int   `json:"buffered"`
}

// Dispatcher implements validation.AlertSink.
type Dispatcher struct {
	mu       sync.Mutex
	config   Config
	channels []Channel
	buffer   []validation.MismatchAlert
	windows  map[string][]time.Time
	stats    Stats

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	// now is injectable for tests.
	now func() time.Time
}

// NewDispatcher creates a dispatcher and starts its flush timer.
func NewDispatcher(config Config, channels ...Channel) *Dispatcher {
	defaults := DefaultConfig()
	if config.RateLimitWindow <= 0 {
		config.RateLimitWindow = defaults.RateLimitWindow
	}
	if config.RateLimitMax <= 0 {
		config.RateLimitMax = defaults.RateLimitMax
	}
	if config.MaxBufferSize <= 0 {
		config.MaxBufferSize = defaults.MaxBufferSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = defaults.FlushInterval
	}
	if config.MinSeverity == "" {
		config.MinSeverity = defaults.MinSeverity
	}

	d := &Dispatcher{
		config:   config,
		channels: channels,
		buffer:   make([]validation.MismatchAlert, 0, config.MaxBufferSize),
		windows:  make(map[string][]time.Time),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	go d.run()
	return d
}

// SetClock replaces the dispatcher's time source. Test hook.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

// Dispatch accepts one alert: severity filter, per-endpoint rate limit,
// buffer. Critical severity or a blocked request flushes immediately.
func (d *Dispatcher) Dispatch(alert validation.MismatchAlert) {
	d.mu.Lock()

	if !alert.Severity.AtLeast(d.config.MinSeverity) {
		d.stats.Filtered++
		d.mu.Unlock()
		return
	}

	if !d.allowLocked(alert.Endpoint) {
		d.stats.RateLimited++
		d.mu.Unlock()
		log.WithFields(log.Fields{
			"endpoint": alert.Endpoint,
			"severity": alert.Severity,
		}).Debug("alert dropped by rate limit")
		return
	}

	if alert.Timestamp.IsZero() {
		alert.Timestamp = d.now()
	}
	d.buffer = append(d.buffer, alert)
	d.stats.Accepted++

	urgent := alert.Severity == validation.SeverityCritical || alert.Blocked
	full := len(d.buffer) >= d.config.MaxBufferSize

	var batch []validation.MismatchAlert
	if urgent || full {
		batch = d.takeBufferLocked()
	}
	d.mu.Unlock()

	if batch != nil {
		d.send(batch)
	}
}

// allowLocked applies the sliding-window rate limit for one endpoint.
func (d *Dispatcher) allowLocked(endpoint string) bool {
	now := d.now()
	cutoff := now.Add(-d.config.RateLimitWindow)

	window := d.windows[endpoint]
	kept := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= d.config.RateLimitMax {
		d.windows[endpoint] = kept
		return false
	}
	d.windows[endpoint] = append(kept, now)
	return true
}

func (d *Dispatcher) takeBufferLocked() []validation.MismatchAlert {
	if len(d.buffer) == 0 {
		return nil
	}
	batch := d.buffer
	d.buffer = make([]validation.MismatchAlert, 0, d.config.MaxBufferSize)
	return batch
}

// Flush sends any buffered alerts now.
func (d *Dispatcher) Flush() {
	d.mu.Lock()
	batch := d.takeBufferLocked()
	d.mu.Unlock()

	if batch != nil {
		d.send(batch)
	}
}

func (d *Dispatcher) send(batch []validation.MismatchAlert) {
	d.mu.Lock()
	d.stats.Flushes++
	channels := make([]Channel, len(d.channels))
	copy(channels, d.channels)
	d.mu.Unlock()

	for _, ch := range channels {
		if err := ch.Send(batch); err != nil {
			d.mu.Lock()
			d.stats.SendErrors++
			d.mu.Unlock()
			log.WithFields(log.Fields{
				"channel": ch.Name(),
				"alerts":  len(batch),
			}).Errorf("alert channel failed: %v", err)
		}
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	ticker := time.NewTicker(d.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			d.Flush()
			return
		case <-ticker.C:
			d.Flush()
		}
	}
}

// GetStats returns a counters snapshot.
func (d *Dispatcher) GetStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.stats
	s.Buffered = len(d.buffer)
	return s
}

// Shutdown stops the flush timer after a final flush.
func (d *Dispatcher) Shutdown() {
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.done
}
