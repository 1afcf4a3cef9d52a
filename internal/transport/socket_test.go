package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mkritz/bulkeval/pkg/events"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var upgrader = websocket.Upgrader{}

// socketServer upgrades one connection at a time and hands it to fn.
func socketServer(t *testing.T, fn func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fn(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialSocketRefused(t *testing.T) {
	_, err := DialSocket(context.Background(), "ws://127.0.0.1:1/events", nil)
	require.Error(t, err)
}

func TestSocketStreamDelivery(t *testing.T) {
	ready := make(chan struct{})
	srv := socketServer(t, func(conn *websocket.Conn) {
		<-ready
		for _, env := range []events.Envelope{
			{Type: events.TypeLog, CorrelationID: "corr-1", Payload: []byte(`"warming up"`)},
			{Type: events.TypeResult, CorrelationID: "corr-1", Payload: []byte(`{"question_index":0}`)},
			{Type: events.TypeResult, CorrelationID: "other", Payload: []byte(`{"question_index":9}`)},
			{Type: events.TypeProgress, Payload: []byte(`{}`)}, // no correlation id, dropped
		} {
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
		// Hold the connection open until the client hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	stream, err := DialSocket(context.Background(), wsURL(srv), nil)
	require.NoError(t, err)
	defer stream.Close()

	ch, cancel, err := stream.Subscribe("corr-1")
	require.NoError(t, err)
	defer cancel()
	close(ready)

	env := recvEnvelope(t, ch)
	assert.Equal(t, events.TypeLog, env.Type)
	env = recvEnvelope(t, ch)
	assert.Equal(t, events.TypeResult, env.Type)
	assert.Equal(t, "corr-1", env.CorrelationID)

	select {
	case extra := <-ch:
		t.Fatalf("frame for another correlation id leaked through: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSocketStreamReconnect(t *testing.T) {
	ready := make(chan struct{})
	var conns atomic.Int32
	srv := socketServer(t, func(conn *websocket.Conn) {
		if conns.Add(1) == 1 {
			// Drop the first connection immediately to force a redial.
			return
		}
		<-ready
		_ = conn.WriteJSON(events.Envelope{
			Type: events.TypeLog, CorrelationID: "corr-1", Payload: []byte(`"back"`),
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	stream, err := DialSocket(context.Background(), wsURL(srv), nil)
	require.NoError(t, err)
	defer stream.Close()

	ch, cancel, err := stream.Subscribe("corr-1")
	require.NoError(t, err)
	defer cancel()
	close(ready)

	env := recvEnvelope(t, ch)
	assert.JSONEq(t, `"back"`, string(env.Payload))
}

func TestSocketStreamClose(t *testing.T) {
	srv := socketServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	stream, err := DialSocket(context.Background(), wsURL(srv), nil)
	require.NoError(t, err)

	ch, _, err := stream.Subscribe("corr-1")
	require.NoError(t, err)

	stream.Close()
	stream.Close()

	_, open := <-ch
	assert.False(t, open, "close shuts every subscription down")

	_, _, err = stream.Subscribe("corr-2")
	require.ErrorIs(t, err, events.ErrBusClosed)
}

// TestSocketStreamCloseUnblocksIdleRead verifies Close returns promptly while
// the read loop is parked on a healthy idle connection, rather than waiting
// out the read deadline.
func TestSocketStreamCloseUnblocksIdleRead(t *testing.T) {
	srv := socketServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	stream, err := DialSocket(context.Background(), wsURL(srv), nil)
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		stream.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return while the read loop was idle")
	}
}

func recvEnvelope(t *testing.T, ch <-chan events.Envelope) events.Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return events.Envelope{}
	}
}
