package wsgate

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/driftlock/drainhub"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// readIdleTimeout is how long the receive loop waits for inbound activity
	// before probing the peer with a ping frame.
	readIdleTimeout = 60 * time.Second
)

// wsSession owns one upgraded WebSocket connection and implements
// drainhub.Session over it. The underlying transport is closed exactly once.
type wsSession struct {
	id   string
	conn net.Conn

	// state holds a drainhub.SessionState; transitions are monotonic
	// open -> closing -> closed, guarded by the CAS in Close.
	state atomic.Int32

	// writeMu serializes frame writes so per-session delivery stays FIFO.
	writeMu sync.Mutex

	metrics *Metrics
	log     drainhub.Logger
}

var _ drainhub.Session = &wsSession{}

func newSession(id string, conn net.Conn, metrics *Metrics, log drainhub.Logger) *wsSession {
	s := &wsSession{id: id, conn: conn, metrics: metrics, log: log}
	s.state.Store(int32(drainhub.StateOpen))
	return s
}

func (s *wsSession) ID() string { return s.id }

// State returns the current lifecycle state of the session.
func (s *wsSession) State() drainhub.SessionState {
	return drainhub.SessionState(s.state.Load())
}

// Send writes one server text frame to the peer.
func (s *wsSession) Send(payload []byte) error {
	if s.State() != drainhub.StateOpen {
		return net.ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := wsutil.WriteServerText(s.conn, payload); err != nil {
		s.metrics.sendFailures.Inc()
		return err
	}

	s.metrics.notificationsSent.Inc()
	return nil
}

// Close terminates the session with the given reason. Only the first call has
// effect; any later call returns nil.
//
// The close policy is: write a protocol-level close frame (1001 going away,
// carrying the reason) so well-behaved clients observe why they were dropped,
// then tear the TCP connection down without waiting for the peer's close
// acknowledgement.
func (s *wsSession) Close(reason string) error {
	if !s.state.CompareAndSwap(int32(drainhub.StateOpen), int32(drainhub.StateClosing)) {
		return nil
	}

	s.writeMu.Lock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	frame := ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusGoingAway, reason))
	if err := ws.WriteFrame(s.conn, frame); err != nil {
		s.log.Debugf("write close frame to client %s: %v", s.id, err)
	}
	s.writeMu.Unlock()

	err := s.conn.Close()
	s.state.Store(int32(drainhub.StateClosed))
	return err
}

// ping probes the peer after a read-idle period.
func (s *wsSession) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return wsutil.WriteServerMessage(s.conn, ws.OpPing, nil)
}
