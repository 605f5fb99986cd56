package drainhub

import (
	"errors"
	"sync"
)

// ErrRegistryClosed is returned by Registry.Register once draining has begun:
// the registry no longer admits new sessions.
var ErrRegistryClosed = errors.New("registry closed: service is draining")

// Registry tracks the live sessions of one process and is the admission gate
// for new connections. All mutations are serialized under a single mutex, so
// the count is always consistent and never negative.
//
// There is exactly one Registry per process; no state is shared across
// independently running worker processes.
type Registry struct {
	mu        sync.Mutex
	accepting bool
	sessions  map[string]Session

	drainOnce sync.Once
	snapshot  []Session
	drained   chan struct{}

	log Logger
}

// NewRegistry creates an empty, accepting Registry.
func NewRegistry() *Registry {
	return &Registry{
		accepting: true,
		sessions:  make(map[string]Session),
		drained:   make(chan struct{}),
		log:       noopLogger{},
	}
}

// SetLogger sets the Logger implementation.
//
// If log is nil, then NOOP logger implementation will be used.
func (r *Registry) SetLogger(log Logger) {
	if log == nil {
		log = noopLogger{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = log
}

// Register admits a session into the live set. It fails with ErrRegistryClosed
// once draining has begun.
func (r *Registry) Register(s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.accepting {
		return ErrRegistryClosed
	}

	r.sessions[s.ID()] = s
	r.log.Infof("client connected. total connections: %d", len(r.sessions))
	return nil
}

// Unregister removes a session from the live set. It is idempotent: removing
// an absent id is a no-op, not an error.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return
	}

	delete(r.sessions, id)
	r.log.Infof("client disconnected. total connections: %d", len(r.sessions))

	if !r.accepting && len(r.sessions) == 0 {
		r.closeDrainedLocked()
	}
}

// Count returns the current live session count.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Accepting reports whether the registry still admits new sessions.
func (r *Registry) Accepting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accepting
}

// Snapshot returns an immutable copy of the live session set, taken at one
// instant. The broadcaster fans out over a snapshot to avoid iterating a
// concurrently-mutating collection.
func (r *Registry) Snapshot() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// BeginDraining atomically stops admission and returns an immutable snapshot
// of the sessions that were live at that instant. It takes effect exactly once
// per process lifetime: subsequent calls are no-ops returning the same
// snapshot.
func (r *Registry) BeginDraining() []Session {
	r.drainOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		r.accepting = false
		r.snapshot = r.snapshotLocked()
		if len(r.sessions) == 0 {
			r.closeDrainedLocked()
		}
	})
	return r.snapshot
}

// Drained returns a channel that is closed once the live set empties after
// BeginDraining. It is the "last session closed" wake-up for the shutdown
// coordinator.
func (r *Registry) Drained() <-chan struct{} {
	return r.drained
}

func (r *Registry) snapshotLocked() []Session {
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) closeDrainedLocked() {
	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
}
