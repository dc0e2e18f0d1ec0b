package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Client owns at most one live connection. Run reconnects with exponential
// backoff: initialDelay, doubled per failed attempt, capped at maxDelay, and
// reset to initialDelay after a successful (re)connect.
type Client struct {
	url          string
	initialDelay time.Duration
	maxDelay     time.Duration
	pingInterval time.Duration
	log          *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	subs []interface{}

	stopOnce sync.Once
	stop     chan struct{}
}

func New(url string, initialDelay, maxDelay, pingInterval time.Duration, log *zap.Logger) *Client {
	if maxDelay < initialDelay {
		maxDelay = initialDelay
	}
	return &Client{
		url:          url,
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		pingInterval: pingInterval,
		log:          log,
		stop:         make(chan struct{}),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

// Subscribe registers a subscription for replay on reconnect and sends it
// immediately when a connection is open.
func (c *Client) Subscribe(ctx context.Context, sub interface{}) error {
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return writeJSON(ctx, conn, sub)
}

// Run reads messages until Disconnect or ctx cancellation, reconnecting after
// failures. A nil return means Disconnect was called.
func (c *Client) Run(ctx context.Context, handler func(json.RawMessage)) error {
	delay := c.initialDelay
	for {
		if c.stopRequested() {
			return nil
		}
		if err := c.ensureConnected(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if c.stopRequested() {
				return nil
			}
			if c.log != nil {
				c.log.Warn("ws connect failed", zap.Error(err), zap.Duration("retry_in", delay))
			}
			if !c.wait(ctx, delay) {
				return c.exitErr(ctx)
			}
			delay = nextBackoff(delay, c.maxDelay)
			continue
		}
		delay = c.initialDelay

		pingCtx, cancel := context.WithCancel(ctx)
		pingDone := make(chan struct{})
		go func() {
			defer close(pingDone)
			c.pingLoop(pingCtx)
		}()
		err := c.readLoop(ctx, handler)
		cancel()
		<-pingDone
		c.resetConn()
		if c.stopRequested() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logReadLoopError(err)
		if c.log != nil {
			c.log.Info("ws reconnecting", zap.Duration("delay", delay))
		}
		if !c.wait(ctx, delay) {
			return c.exitErr(ctx)
		}
		delay = nextBackoff(delay, c.maxDelay)
	}
}

// Disconnect is idempotent: it interrupts any in-flight backoff wait and
// closes the socket promptly.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	c.resetConn()
}

// Probe performs a one-shot subscribe-and-wait health check on a fresh
// connection, leaving the client's own connection untouched.
func (c *Client) Probe(ctx context.Context, sub interface{}, timeout time.Duration) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "probe done") }()
	if err := writeJSON(ctx, conn, sub); err != nil {
		return nil, err
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (c *Client) ensureConnected(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	subs := append([]interface{}(nil), c.subs...)
	c.mu.Unlock()
	if conn == nil {
		return errors.New("ws not connected")
	}
	for _, sub := range subs {
		if err := writeJSON(ctx, conn, sub); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, handler func(json.RawMessage)) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("ws not connected")
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if handler != nil {
			handler(json.RawMessage(data))
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	interval := c.pingInterval
	c.mu.Unlock()
	if conn == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			if err := writeJSON(ctx, conn, pingMessage); err != nil {
				return
			}
		}
	}
}

// wait sleeps for d, returning false when the wait was interrupted by
// Disconnect or ctx cancellation.
func (c *Client) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.stop:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Client) exitErr(ctx context.Context) error {
	if c.stopRequested() {
		return nil
	}
	return ctx.Err()
}

func (c *Client) stopRequested() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *Client) logReadLoopError(err error) {
	if c.log == nil || err == nil {
		return
	}
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure {
		c.log.Info("ws read loop ended", zap.Error(err))
		return
	}
	c.log.Warn("ws read loop ended", zap.Error(err))
}

func (c *Client) resetConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "reset")
		c.conn = nil
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

var pingMessage = map[string]any{"method": "ping"}
