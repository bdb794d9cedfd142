// Package client is a Go client for a remote CareNest server over the
// wire protocol in package dwp.
//
//	c, err := client.Dial("ws://localhost:8080/dwp", client.WithToken("ck_..."))
//	if err != nil { ... }
//	defer c.Close()
//
//	outcome, err := c.Claim(ctx, jobID, "+15557001")
//
// A Client satisfies sink.Source and sink.Claimer, so a remote helper can
// run a sink.Listener against it unchanged.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/gaurav-seth/carenest-helper/backoff"
	"github.com/gaurav-seth/carenest-helper/dwp"
)

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("carenest/client: closed")

// DefaultAuthTimeout bounds the auth exchange on connect.
const DefaultAuthTimeout = 10 * time.Second

// Client talks to one server over a single WebSocket.
type Client struct {
	url    string
	token  string
	codec  dwp.Codec
	logger *slog.Logger

	reconnect  bool
	maxRetries int
	backoff    backoff.Strategy

	mu        sync.Mutex // guards conn and sessionID, serialises writes
	conn      net.Conn
	sessionID string
	closed    atomic.Bool

	pending sync.Map // frame ID → chan *dwp.Frame
	subs    sync.Map // channel → *subscription
}

// Dial connects and authenticates.
func Dial(url string, opts ...Option) (*Client, error) {
	return DialContext(context.Background(), url, opts...)
}

// DialContext connects and authenticates, giving up when ctx is done.
func DialContext(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c := &Client{
		url:        url,
		codec:      dwp.JSONCodec{},
		logger:     slog.Default(),
		maxRetries: 5,
		backoff:    backoff.NewExponentialWithJitter(500*time.Millisecond, 30*time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, err := c.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("carenest/client: dial: %w", err)
	}
	go c.readLoop(conn)
	return c, nil
}

// connect dials, authenticates, and installs the connection. The auth
// exchange is read inline because no read loop is running yet.
func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	conn, _, _, err := ws.Dial(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	authFrame, err := dwp.NewRequestFrame(dwp.MethodAuth, dwp.AuthRequest{
		Token:  c.token,
		Format: c.codec.Name(),
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	authFrame.Token = c.token
	data, err := json.Marshal(authFrame)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := wsutil.WriteClientText(conn, data); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("write auth frame: %w", err)
	}

	deadline := time.Now().Add(DefaultAuthTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	raw, err := wsutil.ReadServerText(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read auth response: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	var resp dwp.Frame
	if err := json.Unmarshal(raw, &resp); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("decode auth response: %w", err)
	}
	if resp.Type == dwp.FrameErr {
		_ = conn.Close()
		if resp.Error != nil {
			return nil, resp.Error.Err()
		}
		return nil, dwp.ErrUnauthorized
	}
	var ar dwp.AuthResponse
	if err := json.Unmarshal(resp.Data, &ar); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("decode auth data: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.sessionID = ar.SessionID
	c.mu.Unlock()

	c.logger.Info("carenest client connected",
		slog.String("session_id", ar.SessionID),
		slog.String("format", ar.Format),
	)
	return conn, nil
}

// readLoop routes frames from conn until it fails.
func (c *Client) readLoop(conn net.Conn) {
	for {
		data, _, err := wsutil.ReadServerData(conn)
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Warn("carenest client read failed", slog.String("error", err.Error()))
			c.failPending()
			if c.reconnect {
				go c.tryReconnect()
			} else {
				c.closeSubscriptions()
			}
			return
		}

		frame, err := c.codec.Decode(data)
		if err != nil {
			c.logger.Warn("carenest client: invalid frame", slog.String("error", err.Error()))
			continue
		}

		switch frame.Type {
		case dwp.FrameResponse, dwp.FrameErr:
			if val, ok := c.pending.Load(frame.CorrelID); ok {
				ch := val.(chan *dwp.Frame) //nolint:errcheck // pending only holds chan *dwp.Frame
				select {
				case ch <- frame:
				default:
				}
			}
		case dwp.FrameEvent:
			if val, ok := c.subs.Load(frame.Channel); ok {
				if sub, ok := val.(*subscription); ok {
					sub.deliver(frame)
				}
			}
		case dwp.FramePong:
		}
	}
}

// failPending wakes every in-flight request with a connection error.
func (c *Client) failPending() {
	c.pending.Range(func(key, val any) bool {
		ch := val.(chan *dwp.Frame) //nolint:errcheck // pending only holds chan *dwp.Frame
		frameID := key.(string)     //nolint:errcheck // keys are frame IDs
		select {
		case ch <- dwp.NewErrorFrame(frameID, dwp.ErrCodeUnavailable, "connection lost"):
		default:
		}
		return true
	})
}

// tryReconnect redials with backoff and restores subscriptions.
func (c *Client) tryReconnect() {
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		delay := c.backoff.Delay(attempt)
		c.logger.Info("carenest client reconnecting",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		time.Sleep(delay)
		if c.closed.Load() {
			return
		}

		conn, err := c.connect(context.Background())
		if err != nil {
			c.logger.Warn("carenest client reconnect failed", slog.String("error", err.Error()))
			continue
		}
		go c.readLoop(conn)
		c.resubscribe()
		return
	}
	c.logger.Error("carenest client: giving up after reconnect attempts",
		slog.Int("attempts", c.maxRetries),
	)
	c.closeSubscriptions()
}

// request sends a request and waits for its response. An error frame is
// returned as a Go error wrapping the server's sentinel.
func (c *Client) request(ctx context.Context, method string, data any) (*dwp.Frame, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	frame, err := dwp.NewRequestFrame(method, data)
	if err != nil {
		return nil, fmt.Errorf("carenest/client: encode %s: %w", method, err)
	}

	respCh := make(chan *dwp.Frame, 1)
	c.pending.Store(frame.ID, respCh)
	defer c.pending.Delete(frame.ID)

	if err := c.writeFrame(frame); err != nil {
		return nil, err
	}

	select {
	case resp := <-respCh:
		if resp.Type == dwp.FrameErr {
			if resp.Error == nil {
				return nil, fmt.Errorf("carenest/client: %s failed", method)
			}
			return nil, resp.Error.Err()
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) writeFrame(frame *dwp.Frame) error {
	data, err := c.codec.Encode(frame)
	if err != nil {
		return fmt.Errorf("carenest/client: encode frame: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrClosed
	}
	if err := wsutil.WriteClientMessage(c.conn, c.codec.OpCode(), data); err != nil {
		return fmt.Errorf("carenest/client: write: %w", err)
	}
	return nil
}

// SessionID returns the session ID the server assigned on the latest
// connect.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Ping sends a ping frame. The pong is not awaited.
func (c *Client) Ping() error {
	return c.writeFrame(&dwp.Frame{ID: dwp.NewFrameID(), Type: dwp.FramePing, Timestamp: time.Now().UTC()})
}

// Close ends every subscription and closes the connection.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.closeSubscriptions()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
