// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package events provides a bounded one-way event bus carrying verification
// outcomes from the request path to telemetry consumers. Publishing never
// blocks; events are dropped when the queue is full.
package events

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// EventType classifies bus events.
type EventType string

const (
	// EventShadowComparison is emitted after every shadow validation run.
	EventShadowComparison EventType = "shadow_comparison"

	// EventVerificationDecision is emitted after every synchronous verify.
	EventVerificationDecision EventType = "verification_decision"

	// EventSecondaryFailure is emitted when a secondary lookup fails.
	EventSecondaryFailure EventType = "secondary_failure"
)

// Event is one telemetry record. Data carries type-specific fields; the bus
// itself is payload-agnostic.
type Event struct {
	Type      EventType      `json:"type"`
	RequestID string         `json:"request_id"`
	Endpoint  string         `json:"endpoint"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Subscription is a handle for a registered subscriber.
type Subscription struct {
	id       int64
	event    EventType
	callback func(Event)
}

// Bus distributes events to subscribers via a buffered queue and a single
// worker goroutine.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]*Subscription
	nextID      int64
	queue       chan Event
	ctx         context.Context
	cancel      context.CancelFunc
	closeOnce   sync.Once

	dropped int64
}

// NewBus creates a bus with the given queue depth and starts its worker.
func NewBus(depth int) *Bus {
	if depth <= 0 {
		depth = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		subscribers: make(map[EventType][]*Subscription),
		queue:       make(chan Event, depth),
		ctx:         ctx,
		cancel:      cancel,
	}
	go b.process()
	return b
}

// Subscribe registers a callback for one event type and returns an
// unsubscribe function.
func (b *Bus) Subscribe(event EventType, callback func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, event: event, callback: callback}
	b.subscribers[event] = append(b.subscribers[event], sub)

	return func() { b.unsubscribe(sub) }
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.event]
	for i, s := range subs {
		if s.id == sub.id {
			b.subscribers[sub.event] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// Publish queues an event without blocking. Full queue drops the event and
// counts it.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case <-b.ctx.Done():
	case b.queue <- event:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
		log.Warnf("event queue full, dropping %s event for %s", event.Type, event.Endpoint)
	}
}

func (b *Bus) process() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case event, ok := <-b.queue:
			if !ok {
				return
			}
			b.deliver(event)
		}
	}
}

func (b *Bus) deliver(event Event) {
	b.mu.RLock()
	subs := make([]*Subscription, len(b.subscribers[event.Type]))
	copy(subs, b.subscribers[event.Type])
	b.mu.RUnlock()

	for _, sub := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("panic in event subscriber for %s: %v", event.Type, r)
				}
			}()
			sub.callback(event)
		}()
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (b *Bus) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Shutdown stops the worker. Queued events are discarded.
func (b *Bus) Shutdown() {
	b.closeOnce.Do(b.cancel)
}
