package transport

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mkritz/bulkeval/pkg/events"
)

// Socket keepalive and reconnect tuning.
const (
	socketPingInterval   = 20 * time.Second
	socketPongWait       = 60 * time.Second
	socketWriteWait      = 10 * time.Second
	reconnectInitial     = 500 * time.Millisecond
	reconnectMax         = 30 * time.Second
	reconnectMultiplier  = 2.0
	socketReadLimitBytes = 1 << 20
)

// SocketStream implements events.Stream over a WebSocket connection carrying
// {type, correlation_id, payload} frames. A single read loop decodes frames
// and fans them out to per-correlation-id subscribers through an embedded
// in-memory bus. The loop reconnects with capped exponential backoff and
// full jitter when the connection drops; frames lost during a reconnect are
// gone, which is acceptable because the terminal summary supersedes streamed
// state.
type SocketStream struct {
	url    string
	logger *slog.Logger
	bus    *events.Bus

	cancel context.CancelFunc
	done   chan struct{}

	// connMu guards conn, the connection the read loop is currently parked
	// on. Close closes it directly: cancelling the loop context alone would
	// leave a blocked ReadJSON waiting out the read deadline. closed marks
	// the stream so a connection stored after Close is shut immediately.
	connMu sync.Mutex
	conn   *websocket.Conn
	closed bool

	closeOnce sync.Once
}

// DialSocket connects to the push event channel at url and starts the read
// loop. The initial dial must succeed; later drops are handled by reconnect.
func DialSocket(ctx context.Context, url string, logger *slog.Logger) (*SocketStream, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &SocketStream{
		url:    url,
		logger: logger,
		bus:    events.NewBus(),
		cancel: cancel,
		done:   make(chan struct{}),
		conn:   conn,
	}
	go s.run(loopCtx, conn)
	return s, nil
}

// Subscribe implements events.Stream.
func (s *SocketStream) Subscribe(correlationID string) (<-chan events.Envelope, func(), error) {
	return s.bus.Subscribe(correlationID)
}

// Close tears down the connection, the read loop, and every subscription.
// The active connection is closed directly so a reader parked in ReadJSON
// unblocks immediately instead of waiting out its read deadline.
func (s *SocketStream) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.connMu.Lock()
		s.closed = true
		if s.conn != nil {
			s.conn.Close()
		}
		s.connMu.Unlock()
		<-s.done
		s.bus.Close()
	})
}

// setConn records the connection the read loop is parked on. A connection
// stored after Close is shut on the spot so the loop's next read fails
// instead of parking.
func (s *SocketStream) setConn(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closed {
		conn.Close()
	}
	s.conn = conn
}

// run reads frames until ctx is cancelled, redialing on connection loss.
func (s *SocketStream) run(ctx context.Context, conn *websocket.Conn) {
	defer close(s.done)

	for {
		s.readFrames(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		var err error
		conn, err = s.redial(ctx)
		if err != nil {
			return
		}
		s.setConn(conn)
	}
}

// readFrames decodes envelopes from one connection until it fails or ctx is
// cancelled. Undecodable frames are logged and skipped.
func (s *SocketStream) readFrames(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(socketReadLimitBytes)
	_ = conn.SetReadDeadline(time.Now().Add(socketPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(socketPongWait))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go s.keepalive(ctx, conn, pingDone)

	for {
		var env events.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("push channel read failed", "error", err)
			}
			return
		}
		if env.CorrelationID == "" {
			continue
		}
		if err := s.bus.Publish(env); err != nil {
			return
		}
	}
}

// keepalive sends pings until the connection's read loop finishes.
func (s *SocketStream) keepalive(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(socketPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(socketWriteWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// redial reconnects with capped exponential backoff and full jitter.
// It keeps trying until ctx is cancelled.
func (s *SocketStream) redial(ctx context.Context) (*websocket.Conn, error) {
	backoff := reconnectInitial
	for {
		// Full jitter: random delay between 0 and the current backoff.
		delay := time.Duration(rand.Int64N(backoff.Milliseconds()+1)) * time.Millisecond
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err == nil {
			s.logger.Info("push channel reconnected", "url", s.url)
			return conn, nil
		}
		s.logger.Warn("push channel reconnect failed", "url", s.url, "error", err)

		backoff = time.Duration(float64(backoff) * reconnectMultiplier)
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}
