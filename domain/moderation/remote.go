package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/soocke/guard-overlay-go/domain/ocr"
)

var (
	ErrDisconnected = errors.New("moderation: remote service disconnected")
	ErrRateLimited  = errors.New("moderation: remote request budget exhausted")
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// RemoteOptions tunes the remote client.
type RemoteOptions struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RequestTimeout time.Duration
	RatePerSecond  float64
	Cache          VerdictCache
}

// RemoteClient speaks the ocr_lines/tox_lines protocol over a websocket and
// reconnects forever with a capped, doubling delay.
type RemoteClient struct {
	url     string
	opts    RemoteOptions
	dialer  *websocket.Dialer
	limiter *rate.Limiter
	logger  *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan Envelope
	writeMu sync.Mutex

	connected  atomic.Bool
	reconnects atomic.Uint64
}

func NewRemoteClient(url string, opts RemoteOptions, logger *slog.Logger) *RemoteClient {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = 5 * time.Second
		if opts.MaxBackoff < opts.InitialBackoff {
			opts.MaxBackoff = opts.InitialBackoff
		}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Second
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 5
	}
	burst := int(opts.RatePerSecond)
	if burst < 1 {
		burst = 1
	}
	return &RemoteClient{
		url:     url,
		opts:    opts,
		dialer:  &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst),
		logger:  logger,
		pending: make(map[string]chan Envelope),
	}
}

// Connected reports whether a session is currently open.
func (c *RemoteClient) Connected() bool { return c.connected.Load() }

// Reconnects counts completed dial attempts after the first.
func (c *RemoteClient) Reconnects() uint64 { return c.reconnects.Load() }

// Run maintains the connection until ctx is done.
func (c *RemoteClient) Run(ctx context.Context) {
	backoff := Backoff{Initial: c.opts.InitialBackoff, Max: c.opts.MaxBackoff}
	first := true
	for ctx.Err() == nil {
		if !first {
			c.reconnects.Add(1)
		}
		first = false
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			delay := backoff.Next()
			if c.logger != nil {
				c.logger.Debug("moderation dial failed", "url", c.url, "error", err, "retry_in", delay)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		backoff.Reset()
		if c.logger != nil {
			c.logger.Info("moderation connected", "url", c.url)
		}
		c.serve(ctx, conn)
		if c.logger != nil && ctx.Err() == nil {
			c.logger.Warn("moderation disconnected", "url", c.url)
		}
	}
}

func (c *RemoteClient) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)

	done := make(chan struct{})
	defer func() {
		c.connected.Store(false)
		close(done)
		c.mu.Lock()
		c.conn = nil
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
		_ = conn.Close()
	}()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				c.writeMu.Lock()
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				c.writeMu.Unlock()
				_ = conn.Close()
				return
			case <-ticker.C:
				c.writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				c.writeMu.Unlock()
				if err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if env.Type != EventToxLines && env.Type != EventError {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		if ok {
			delete(c.pending, env.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- env
		}
	}
}

// Moderate sends one batch and waits for its verdict. It fails fast with
// ErrDisconnected while no session is open.
func (c *RemoteClient) Moderate(ctx context.Context, lines []ocr.Line) (RemoteVerdict, error) {
	if len(lines) == 0 {
		return RemoteVerdict{Indices: []int{}}, nil
	}
	key := CacheKey(lines)
	if c.opts.Cache != nil {
		if v, ok := c.opts.Cache.Get(ctx, key); ok {
			return v, nil
		}
	}
	if !c.connected.Load() {
		return RemoteVerdict{}, ErrDisconnected
	}
	if !c.limiter.Allow() {
		return RemoteVerdict{}, ErrRateLimited
	}
	id := uuid.NewString()
	reply := make(chan Envelope, 1)
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return RemoteVerdict{}, ErrDisconnected
	}
	c.pending[id] = reply
	c.mu.Unlock()
	forget := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := conn.WriteJSON(Envelope{Type: EventOCRLines, ID: id, Lines: ToWire(lines)})
	c.writeMu.Unlock()
	if err != nil {
		forget()
		return RemoteVerdict{}, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	timer := time.NewTimer(c.opts.RequestTimeout)
	defer timer.Stop()
	select {
	case env, ok := <-reply:
		if !ok {
			return RemoteVerdict{}, ErrDisconnected
		}
		if env.Type == EventError {
			return RemoteVerdict{}, fmt.Errorf("moderation: remote error: %s", env.Error)
		}
		v := RemoteVerdict{Indices: env.Indices, Score: clampScore(env.Score)}
		if v.Indices == nil {
			v.Indices = []int{}
		}
		if c.opts.Cache != nil {
			c.opts.Cache.Set(ctx, key, v)
		}
		return v, nil
	case <-timer.C:
		forget()
		return RemoteVerdict{}, fmt.Errorf("moderation: remote verdict timed out after %s", c.opts.RequestTimeout)
	case <-ctx.Done():
		forget()
		return RemoteVerdict{}, ctx.Err()
	}
}

// Backoff yields Initial, 2*Initial, ... capped at Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	next    time.Duration
}

func (b *Backoff) Next() time.Duration {
	if b.next <= 0 {
		b.next = b.Initial
	}
	d := b.next
	b.next *= 2
	if b.next > b.Max {
		b.next = b.Max
	}
	if d > b.Max {
		d = b.Max
	}
	return d
}

func (b *Backoff) Reset() { b.next = 0 }

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
