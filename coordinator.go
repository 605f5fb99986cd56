package drainhub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Phase is the shutdown coordinator lifecycle phase.
//
// Transitions are strictly ordered and monotonic:
// PhaseRunning -> PhaseDraining -> PhaseForcing -> PhaseComplete,
// where PhaseForcing is skipped when the registry drains before the deadline.
type Phase int32

const (
	PhaseRunning Phase = iota
	PhaseDraining
	PhaseForcing
	PhaseComplete
)

// String returns string representation of Phase.
func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhaseDraining:
		return "draining"
	case PhaseForcing:
		return "forcing"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}

const (
	// DefaultShutdownTimeout is the default hard deadline for draining.
	DefaultShutdownTimeout = 30 * time.Minute
	// DefaultPollInterval is the default period between drain-progress polls.
	DefaultPollInterval = 5 * time.Second
)

// Coordinator drives the graceful-shutdown state machine of one process.
//
// On Trigger it stops registry admission, cancels the broadcaster and polls
// the registry until it drains or the deadline elapses; on deadline it
// force-closes every remaining session. The Coordinator is the sole writer of
// the phase, and once triggered the shutdown is irrevocable.
type Coordinator struct {
	registry      *Registry
	stopBroadcast context.CancelFunc

	timeout      time.Duration
	pollInterval time.Duration

	clock Clock
	log   Logger

	phase       atomic.Int32
	triggerOnce sync.Once
	done        chan struct{}
}

// NewCoordinator creates a Coordinator over the given registry.
//
// stopBroadcast is invoked once on entering the draining phase; it is expected
// to cancel the broadcaster's context and may be nil. Non-positive timeout and
// pollInterval fall back to DefaultShutdownTimeout and DefaultPollInterval.
func NewCoordinator(registry *Registry, stopBroadcast context.CancelFunc, timeout, pollInterval time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Coordinator{
		registry:      registry,
		stopBroadcast: stopBroadcast,
		timeout:       timeout,
		pollInterval:  pollInterval,
		clock:         SystemClock(),
		log:           noopLogger{},
		done:          make(chan struct{}),
	}
}

// SetLogger sets the Logger implementation.
//
// If log is nil, then NOOP logger implementation will be used.
func (c *Coordinator) SetLogger(log Logger) {
	if log == nil {
		log = noopLogger{}
	}
	c.log = log
}

// SetClock sets the Clock implementation. If clock is nil, the system clock
// will be used.
func (c *Coordinator) SetClock(clock Clock) {
	if clock == nil {
		clock = SystemClock()
	}
	c.clock = clock
}

// Phase returns the current shutdown phase. Readers always observe phases in
// transition order.
func (c *Coordinator) Phase() Phase { return Phase(c.phase.Load()) }

// Done returns a channel that is closed exactly once, when the shutdown
// sequence reaches PhaseComplete. The host waits on it before terminating the
// process.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Trigger begins the shutdown sequence. It is the single external "begin
// shutdown" entry point, invoked by the host once an OS-level termination
// request arrives. Every call after the first is a no-op.
//
// Trigger does not block; the drain runs on its own goroutine. Wait on Done
// for completion.
func (c *Coordinator) Trigger() {
	c.triggerOnce.Do(func() {
		c.log.Infof("shutdown signal received")
		go c.drain()
	})
}

// Wait blocks until appCtx is done (most likely, when the registered os.Signal
// will be received), triggers the shutdown sequence and waits for it to
// complete.
func (c *Coordinator) Wait(appCtx context.Context) {
	<-appCtx.Done()
	c.Trigger()
	<-c.done
}

// drain runs the draining phase: no new admissions, no new broadcast cycles,
// existing connections are allowed to finish naturally until the deadline.
func (c *Coordinator) drain() {
	c.phase.Store(int32(PhaseDraining))
	c.log.Infof("graceful shutdown initiated")

	snapshot := c.registry.BeginDraining()
	if c.stopBroadcast != nil {
		c.stopBroadcast()
	}

	deadline := c.clock.Now().Add(c.timeout)

	for {
		remaining := c.registry.Count()
		if remaining == 0 {
			c.log.Infof("all connections closed. proceeding with shutdown")
			break
		}

		now := c.clock.Now()
		if !now.Before(deadline) {
			c.force(snapshot)
			break
		}

		c.log.Infof("waiting for %d connections to close. time remaining: %.0fs",
			remaining, deadline.Sub(now).Seconds())

		select {
		case <-c.clock.After(c.pollInterval):
		case <-c.registry.Drained():
		}
	}

	c.phase.Store(int32(PhaseComplete))
	c.log.Infof("shutdown complete")
	close(c.done)
}

// force closes every session left in the drain snapshot. Sessions that already
// closed on their own are skipped by the idempotent Close guard. Individual
// close failures are logged and never block the sweep.
func (c *Coordinator) force(snapshot []Session) {
	c.phase.Store(int32(PhaseForcing))
	c.log.Warnf("shutdown timeout (%v) reached. forcing shutdown with %d active connections",
		c.timeout, c.registry.Count())

	for _, s := range snapshot {
		if err := s.Close("server shutting down"); err != nil {
			c.log.Errorf("force close client %s: %v", s.ID(), err)
		}
		c.registry.Unregister(s.ID())
	}
}
