// Package wsgate terminates WebSocket connections and bridges them into the
// core registry/broadcaster/coordinator triple: each accepted connection
// becomes a registered session, each rejected one is closed with a
// protocol-level "service draining" indication.
package wsgate

import (
	_ "embed"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/driftlock/drainhub"
)

// statusTryAgainLater (RFC 6455 registry, 1013) tells clients the rejection is
// temporary: another worker process may still be accepting.
const statusTryAgainLater = ws.StatusCode(1013)

//go:embed client.html
var clientHTML []byte

// Gate is the WebSocket gateway of one process.
type Gate struct {
	registry *drainhub.Registry
	metrics  *Metrics
	log      drainhub.Logger
}

// New creates a Gate over the given registry.
func New(registry *drainhub.Registry, metrics *Metrics) *Gate {
	return &Gate{
		registry: registry,
		metrics:  metrics,
		log:      drainhub.NopLogger(),
	}
}

// SetLogger sets the Logger implementation.
//
// If log is nil, then NOOP logger implementation will be used.
func (g *Gate) SetLogger(log drainhub.Logger) {
	if log == nil {
		log = drainhub.NopLogger()
	}
	g.log = log
}

// Routes returns the gateway's HTTP handler.
func (g *Gate) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", g.handleIndex)
	r.Get("/healthz", g.handleHealth)
	r.Get("/ws", g.handleWS)
	r.Method(http.MethodGet, "/metrics", g.metrics.Handler())

	return r
}

func (g *Gate) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(clientHTML)
}

// handleHealth reports 503 once draining so load balancers stop routing new
// traffic to this process.
func (g *Gate) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !g.registry.Accepting() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWS upgrades the connection and admits it into the registry. While
// draining, the upgrade still succeeds but the client is immediately sent a
// close frame naming the reason; the registry count is left untouched.
func (g *Gate) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		g.log.Errorf("websocket upgrade: %v", err)
		return
	}

	sess := newSession(uuid.NewString(), conn, g.metrics, g.log)
	if err := g.registry.Register(sess); err != nil {
		g.metrics.connectionsRejected.Inc()
		g.log.Infof("connection rejected: %v", err)
		g.reject(conn)
		return
	}

	g.metrics.connectionsAccepted.Inc()
	g.welcome(sess)
	go g.readLoop(sess)
}

// reject closes a connection that was refused admission.
func (g *Gate) reject(conn net.Conn) {
	frame := ws.NewCloseFrame(ws.NewCloseFrameBody(statusTryAgainLater, "service draining"))
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteFrame(conn, frame); err != nil {
		g.log.Debugf("write rejection frame: %v", err)
	}
	_ = conn.Close()
}

func (g *Gate) welcome(s *wsSession) {
	payload, err := json.Marshal(drainhub.Notification{
		Type:      "welcome",
		Message:   "connected to notification server",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		g.log.Errorf("marshal welcome: %v", err)
		return
	}
	if err := s.Send(payload); err != nil {
		g.log.Errorf("send welcome to client %s: %v", s.ID(), err)
	}
}

// readLoop exists to detect client disconnects and transport errors; inbound
// text is echoed back, everything else is ignored. A read error is handled
// identically to a clean disconnect.
func (g *Gate) readLoop(s *wsSession) {
	defer func() {
		_ = s.Close("connection closed")
		g.registry.Unregister(s.ID())
	}()

	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(readIdleTimeout))

		data, op, err := wsutil.ReadClientData(s.conn)
		if err != nil {
			if isIdleTimeout(err) {
				if perr := s.ping(); perr != nil {
					g.log.Debugf("ping client %s: %v", s.ID(), perr)
					return
				}
				continue
			}

			var closed wsutil.ClosedError
			switch {
			case errors.As(err, &closed):
				g.log.Debugf("client %s closed the connection: %v", s.ID(), closed)
			case s.State() != drainhub.StateOpen:
				// The session was closed on our side; the read error is expected.
			default:
				g.log.Errorf("read from client %s: %v", s.ID(), err)
			}
			return
		}

		if op == ws.OpText {
			g.echo(s, data)
		}
	}
}

func (g *Gate) echo(s *wsSession, data []byte) {
	g.log.Debugf("received from client %s: %s", s.ID(), data)

	payload, err := json.Marshal(drainhub.Notification{
		Type:      "echo",
		Message:   "server received: " + string(data),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		g.log.Errorf("marshal echo: %v", err)
		return
	}
	if err := s.Send(payload); err != nil {
		g.log.Debugf("send echo to client %s: %v", s.ID(), err)
	}
}

func isIdleTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
