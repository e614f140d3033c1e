package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// Options tunes a WebSocket connection.
type Options struct {
	HandshakeTimeout time.Duration // opening handshake, 0 means the dialer default
	WriteTimeout     time.Duration // per message, 0 disables
	PingInterval     time.Duration // keep-alive pings, 0 disables
	PongTimeout      time.Duration // read deadline extended by each pong, 0 means twice PingInterval
	Header           http.Header
	Logger           *slog.Logger
}

// Conn is a Port backed by a gorilla WebSocket connection.
type Conn struct {
	ws     *websocket.Conn
	opts   Options
	logger *slog.Logger

	writeMu   sync.Mutex // serialises data frame writes
	closed    atomic.Bool

	// deadlineMu orders pong extensions against cancellation so a late pong
	// cannot push an interrupted read's deadline back out.
	deadlineMu  sync.Mutex
	interrupted bool

	closeOnce sync.Once
	done      chan struct{}
}

var _ Port = (*Conn)(nil)

// Dial opens a WebSocket connection to url.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = websocket.DefaultDialer.HandshakeTimeout
	}

	ws, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("error connecting to websocket: %w, status: %s", err, resp.Status)
		}
		return nil, fmt.Errorf("error connecting to websocket: %w", err)
	}
	return NewConn(ws, opts), nil
}

// NewConn wraps an established WebSocket connection.
func NewConn(ws *websocket.Conn, opts Options) *Conn {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Conn{
		ws:     ws,
		opts:   opts,
		logger: logger.With("remote", ws.RemoteAddr().String()),
		done:   make(chan struct{}),
	}
	if opts.PingInterval > 0 {
		if c.opts.PongTimeout <= 0 {
			c.opts.PongTimeout = 2 * opts.PingInterval
		}
		ws.SetPongHandler(func(string) error {
			c.deadlineMu.Lock()
			defer c.deadlineMu.Unlock()
			if c.interrupted {
				return nil
			}
			return ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		})
		_ = ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		go c.pingLoop()
	}
	return c
}

// readDeadline is the deadline for a read starting now. Without pings reads
// never time out.
func (c *Conn) readDeadline() time.Time {
	if c.opts.PingInterval <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.opts.PongTimeout)
}

// Send writes msg as one text frame.
func (c *Conn) Send(ctx context.Context, msg []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var deadline time.Time
	if c.opts.WriteTimeout > 0 {
		deadline = time.Now().Add(c.opts.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("error setting write deadline: %w", err)
	}

	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		if c.closed.Load() {
			return ErrClosed
		}
		return fmt.Errorf("error writing message: %w", err)
	}
	return nil
}

// Receive blocks until the next data frame arrives, the peer closes the
// stream (io.EOF) or ctx is done. With pings enabled a peer that stops
// answering them fails the read once PongTimeout passes without a pong.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.deadlineMu.Lock()
	c.interrupted = false
	err := c.ws.SetReadDeadline(c.readDeadline())
	c.deadlineMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("error setting read deadline: %w", err)
	}

	// Cancellation moves the read deadline into the past to unblock ReadMessage.
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		c.deadlineMu.Lock()
		c.interrupted = true
		_ = c.ws.SetReadDeadline(time.Now())
		c.deadlineMu.Unlock()
		close(fired)
	})
	defer func() {
		if !stop() {
			<-fired
		}
	}()

	_, data, err := c.ws.ReadMessage()
	if err == nil {
		return data, nil
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil, io.EOF
	}
	return nil, fmt.Errorf("error reading message: %w", err)
}

// Close sends a close frame and releases the connection. It is safe to call
// more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.PingInterval)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				if c.closed.Load() {
					return
				}
				// unblock the reader so the session sees the failure
				c.logger.Warn("ping failed, dropping connection", "error", err)
				_ = c.ws.Close()
				return
			}
		}
	}
}
