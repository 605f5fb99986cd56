package drainhub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultTickInterval is the default period between broadcast cycles.
const DefaultTickInterval = 10 * time.Second

// Notification is the outbound payload pushed to every live session on each
// broadcast cycle.
type Notification struct {
	Type              string `json:"type"`
	Message           string `json:"message,omitempty"`
	Timestamp         string `json:"timestamp"`
	Sequence          uint64 `json:"sequence"`
	ActiveConnections int    `json:"active_connections,omitempty"`
}

// Broadcaster periodically fans a notification out to every registered
// session. It is a cooperative background loop: cancellation is observed at
// the tick boundary and never aborts a send already in progress.
type Broadcaster struct {
	registry *Registry
	interval time.Duration

	clock Clock
	log   Logger

	// seq counts started broadcast cycles for the process lifetime.
	seq atomic.Uint64
}

// NewBroadcaster creates a Broadcaster over the given registry.
// A non-positive interval falls back to DefaultTickInterval.
func NewBroadcaster(registry *Registry, interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Broadcaster{
		registry: registry,
		interval: interval,
		clock:    SystemClock(),
		log:      noopLogger{},
	}
}

// SetLogger sets the Logger implementation.
//
// If log is nil, then NOOP logger implementation will be used.
func (b *Broadcaster) SetLogger(log Logger) {
	if log == nil {
		log = noopLogger{}
	}
	b.log = log
}

// SetClock sets the Clock implementation. If clock is nil, the system clock
// will be used.
func (b *Broadcaster) SetClock(clock Clock) {
	if clock == nil {
		clock = SystemClock()
	}
	b.clock = clock
}

// Sequence returns the number of broadcast cycles started so far. It stops
// advancing once cancellation has been observed.
func (b *Broadcaster) Sequence() uint64 { return b.seq.Load() }

// Run executes broadcast cycles every tick interval until ctx is cancelled.
// No new cycle starts after cancellation has been requested and observed.
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.log.Infof("notification broadcaster stopped")
			return
		case <-b.clock.After(b.interval):
		}

		// The tick and the cancellation may race; never start a cycle once
		// cancellation is visible.
		if ctx.Err() != nil {
			b.log.Infof("notification broadcaster stopped")
			return
		}

		b.broadcast()
	}
}

// broadcast performs one cycle: build the payload, take a registry snapshot
// and attempt a send to every session. A failed send evicts the offending
// session but is not fatal to the cycle.
func (b *Broadcaster) broadcast() {
	seq := b.seq.Load()
	b.seq.Add(1)

	n := Notification{
		Type:              "notification",
		Message:           fmt.Sprintf("periodic notification #%d", seq),
		Timestamp:         b.clock.Now().UTC().Format(time.RFC3339),
		Sequence:          seq,
		ActiveConnections: b.registry.Count(),
	}

	payload, err := json.Marshal(n)
	if err != nil {
		b.log.Errorf("marshal notification #%d: %v", seq, err)
		return
	}

	for _, s := range b.registry.Snapshot() {
		if err := s.Send(payload); err != nil {
			b.log.Errorf("send to client %s: %v", s.ID(), err)
			b.registry.Unregister(s.ID())
			if cerr := s.Close("send failed"); cerr != nil {
				b.log.Debugf("close client %s: %v", s.ID(), cerr)
			}
		}
	}

	b.log.Debugf("broadcast notification #%d", seq)
}
