// Package client provides a reconnecting websocket client for the
// realtime endpoint. It owns a single connection handle, fans inbound
// frames out to subscribers and retries dropped connections with
// exponential backoff and jitter up to a bounded attempt count.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Defaults for the reconnection policy.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 3 * time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// ErrNotConnected is returned by Send while no connection is open.
var ErrNotConnected = errors.New("not connected")

// Frame mirrors the wire envelope. Data is left raw for the subscriber
// to decode per frame type.
type Frame struct {
	Type     string          `json:"type"`
	Status   string          `json:"status,omitempty"`
	UserID   string          `json:"userId,omitempty"`
	SenderID string          `json:"senderId,omitempty"`
	Message  string          `json:"message,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Options tunes the reconnection policy. Zero values fall back to the
// defaults above.
type Options struct {
	MaxAttempts      int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	HandshakeTimeout time.Duration
}

// Client is a reconnecting connection to the realtime endpoint. All
// methods are safe for concurrent use.
type Client struct {
	url    string
	token  string
	opts   Options
	dialer websocket.Dialer

	mu       sync.Mutex
	sock     *websocket.Conn
	subs     map[int]func(Frame)
	nextSub  int
	attempts int
	pending  *time.Timer
	closed   bool

	writeMu sync.Mutex
}

// New creates a client for the given websocket URL. The token is sent as
// a Bearer Authorization header on the upgrade request.
func New(url, token string, opts Options) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 15 * time.Second
	}

	return &Client{
		url:   url,
		token: token,
		opts:  opts,
		dialer: websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		subs: make(map[int]func(Frame)),
	}
}

// Connect opens the connection. It is a no-op when already connected or
// closed. A failed dial counts as one reconnection attempt and schedules
// the next one.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.sock != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	sock, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		c.notify(Frame{Type: "error", Message: "connection error: " + err.Error()})
		c.mu.Lock()
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return sock.Close()
	}
	c.sock = sock
	c.attempts = 0
	c.mu.Unlock()

	c.notify(Frame{Type: "connection", Status: "connected"})
	go c.readLoop(sock)
	return nil
}

// Send writes a frame to the open connection. While disconnected it
// returns ErrNotConnected and opportunistically triggers a reconnect if
// none is already scheduled.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	sock := c.sock
	if sock == nil {
		if !c.closed && c.pending == nil {
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return sock.WriteJSON(v)
}

// Subscribe registers a callback for every inbound frame and for the
// synthetic connection/error events. The returned function removes the
// subscription. Callback invocation order across subscribers is not
// guaranteed.
func (c *Client) Subscribe(cb func(Frame)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = cb
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Close shuts the client down: no further reconnects are scheduled and
// the open connection, if any, is closed.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	sock := c.sock
	c.sock = nil
	c.mu.Unlock()

	if sock != nil {
		return sock.Close()
	}
	return nil
}

// readLoop consumes frames until the connection drops, then drives the
// reconnection state machine.
func (c *Client) readLoop(sock *websocket.Conn) {
	for {
		_, payload, err := sock.ReadMessage()
		if err != nil {
			break
		}

		var frame Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			// Bad frame, not a bad connection: report and keep reading.
			c.notify(Frame{Type: "error", Message: "failed to parse frame"})
			continue
		}
		c.notify(frame)
	}

	c.mu.Lock()
	if c.sock == sock {
		c.sock = nil
	}
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}

	c.notify(Frame{Type: "connection", Status: "disconnected"})

	c.mu.Lock()
	c.scheduleReconnectLocked()
	c.mu.Unlock()
}

// scheduleReconnectLocked schedules the next reconnect attempt, or emits
// the terminal error once the attempt limit is exhausted. Caller holds
// c.mu.
func (c *Client) scheduleReconnectLocked() {
	if c.closed || c.pending != nil {
		return
	}
	if c.attempts >= c.opts.MaxAttempts {
		go c.notify(Frame{Type: "error", Message: "max reconnect attempts reached"})
		return
	}

	c.attempts++
	delay := c.backoff(c.attempts)
	c.pending = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
		_ = c.Connect(context.Background())
	})
}

// backoff returns the delay before the given attempt: exponential from
// the base delay, capped, with up to 50% jitter to spread reconnect
// storms.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.BaseDelay << (attempt - 1)
	if d > c.opts.MaxDelay || d <= 0 {
		d = c.opts.MaxDelay
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// notify fans a frame out to the current subscribers. The subscriber set
// is snapshotted so callbacks may subscribe or unsubscribe freely.
func (c *Client) notify(frame Frame) {
	c.mu.Lock()
	cbs := make([]func(Frame), 0, len(c.subs))
	for _, cb := range c.subs {
		cbs = append(cbs, cb)
	}
	c.mu.Unlock()

	for _, cb := range cbs {
		cb(frame)
	}
}
