package wsgate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"

	"github.com/driftlock/drainhub"
)

func newTestGate(t *testing.T) (*drainhub.Registry, *httptest.Server) {
	t.Helper()

	registry := drainhub.NewRegistry()
	metrics := NewMetrics(registry, drainhub.NewBroadcaster(registry, time.Hour))
	gate := New(registry, metrics)

	srv := httptest.NewServer(gate.Routes())
	t.Cleanup(srv.Close)
	return registry, srv
}

type testClient struct {
	conn net.Conn
	rw   io.ReadWriter
}

type readWriter struct {
	io.Reader
	io.Writer
}

func dialWS(t *testing.T, httpURL string) *testClient {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
	conn, br, _, err := ws.Dial(ctx, wsURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	var rd io.Reader = conn
	if br != nil {
		rd = br
	}
	return &testClient{conn: conn, rw: readWriter{Reader: rd, Writer: conn}}
}

func (c *testClient) readText(t *testing.T) ([]byte, error) {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return wsutil.ReadServerText(c.rw)
}

func TestGate_HandleWS(t *testing.T) {
	t.Parallel()

	t.Run("welcomes_and_echoes", func(t *testing.T) {
		t.Parallel()

		registry, srv := newTestGate(t)
		c := dialWS(t, srv.URL)

		data, err := c.readText(t)
		require.NoError(t, err)

		var welcome drainhub.Notification
		require.NoError(t, json.Unmarshal(data, &welcome))
		require.Equal(t, "welcome", welcome.Type)

		require.Equal(t, 1, registry.Count())

		require.NoError(t, wsutil.WriteClientText(c.rw, []byte("hello")))

		data, err = c.readText(t)
		require.NoError(t, err)

		var echo drainhub.Notification
		require.NoError(t, json.Unmarshal(data, &echo))
		require.Equal(t, "echo", echo.Type)
		require.Contains(t, echo.Message, "hello")
	})

	t.Run("rejects_with_service_draining_close", func(t *testing.T) {
		t.Parallel()

		registry, srv := newTestGate(t)
		registry.BeginDraining()

		c := dialWS(t, srv.URL)

		_, err := c.readText(t)
		require.Error(t, err)

		var closed wsutil.ClosedError
		require.ErrorAs(t, err, &closed)
		require.Equal(t, statusTryAgainLater, closed.Code)
		require.Equal(t, "service draining", closed.Reason)

		require.Equal(t, 0, registry.Count())
	})

	t.Run("disconnect_unregisters_session", func(t *testing.T) {
		t.Parallel()

		registry, srv := newTestGate(t)
		c := dialWS(t, srv.URL)

		_, err := c.readText(t) // welcome
		require.NoError(t, err)
		require.Equal(t, 1, registry.Count())

		require.NoError(t, c.conn.Close())
		require.Eventually(t, func() bool { return registry.Count() == 0 },
			5*time.Second, 10*time.Millisecond)
	})
}

func TestGate_HandleHealth(t *testing.T) {
	t.Parallel()

	registry, srv := newTestGate(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `"ok"`)

	registry.BeginDraining()

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Contains(t, string(body), `"draining"`)
}

func TestGate_HandleIndex(t *testing.T) {
	t.Parallel()

	_, srv := newTestGate(t)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	require.Contains(t, string(body), "test client")
}

func TestGate_Metrics(t *testing.T) {
	t.Parallel()

	_, srv := newTestGate(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "drainhub_active_connections")
	require.Contains(t, string(body), "drainhub_broadcast_sequence")
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsIdleTimeout(t *testing.T) {
	t.Parallel()

	require.True(t, isIdleTimeout(timeoutErr{}))
	require.False(t, isIdleTimeout(errors.New("other")))
	require.False(t, isIdleTimeout(io.EOF))
}
