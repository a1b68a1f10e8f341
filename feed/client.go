// Package feed maintains the live market-data connection: connect with
// retries, authenticate, subscribe, and stream parsed bars into a bounded
// drop-oldest queue.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrRetriesExhausted is returned by Run when every connect attempt failed.
	ErrRetriesExhausted = errors.New("connect retries exhausted")
	// ErrHandshake is returned when authentication or subscription fails.
	ErrHandshake = errors.New("feed handshake failed")
)

// State is the connection state of a Client.
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
	Streaming
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "authenticated-subscribed"
	case Streaming:
		return "streaming"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second

	// handshakeReads bounds how many frames are read while waiting for
	// the authentication acknowledgement.
	handshakeReads = 5
)

// Config configures a Client. Key and Secret are the stream credentials.
type Config struct {
	Key         string
	Secret      string
	MaxAttempts int
	BaseDelay   time.Duration
}

type Client struct {
	conn  Conn
	cfg   Config
	queue *Queue[Message]
	log   *zap.Logger

	mu      sync.Mutex
	state   State
	closed  bool
	mirror  func([]byte)
	onState func(State)

	// replaceable in tests
	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

func NewClient(conn Conn, cfg Config, queue *Queue[Message], log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if queue == nil {
		queue = NewQueue[Message](DefaultQueueCapacity)
	}
	return &Client{
		conn:  conn,
		cfg:   cfg,
		queue: queue,
		log:   log.Named("feed"),
		sleep: Sleep,
		now:   time.Now,
	}
}

// Queue returns the queue the client streams into.
func (c *Client) Queue() *Queue[Message] { return c.queue }

// SetMirror registers a function that receives every raw inbound frame
// while streaming. It must not block.
func (c *Client) SetMirror(fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mirror = fn
}

// OnStateChange registers a callback invoked after every state transition.
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.closed && s != Closing && s != Disconnected {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = s
	fn := c.onState
	c.mu.Unlock()

	if prev != s {
		c.log.Debug("state", zap.Stringer("from", prev), zap.Stringer("to", s))
		if fn != nil {
			fn(s)
		}
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ConnectWithRetries tries to connect up to maxAttempts times, waiting
// baseDelay × 2^i after failed attempt i. It reports success and never
// returns an error.
func (c *Client) ConnectWithRetries(ctx context.Context, maxAttempts int, baseDelay time.Duration) bool {
	for i := 0; i < maxAttempts; i++ {
		if c.isClosed() || ctx.Err() != nil {
			return false
		}

		c.setState(Connecting)
		err := c.conn.Connect(ctx)
		if err == nil {
			c.log.Info("connected", zap.Int("attempt", i+1))
			return true
		}
		c.setState(Disconnected)
		c.log.Warn("connect failed",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err))

		if i == maxAttempts-1 {
			break
		}
		if err := c.sleep(ctx, Backoff(baseDelay, i)); err != nil {
			return false
		}
	}
	return false
}

// Handshake authenticates, waits for the acknowledgement, then subscribes
// to bars for symbols.
func (c *Client) Handshake(ctx context.Context, symbols []string) error {
	auth, err := json.Marshal(authRequest{Action: "auth", Key: c.cfg.Key, Secret: c.cfg.Secret})
	if err != nil {
		return err
	}
	if err := c.conn.Send(ctx, auth); err != nil {
		return fmt.Errorf("%w: send auth: %v", ErrHandshake, err)
	}

	authenticated := false
	for i := 0; i < handshakeReads && !authenticated; i++ {
		raw, err := c.conn.Receive(ctx)
		if err != nil {
			return fmt.Errorf("%w: await auth: %v", ErrHandshake, err)
		}
		evs, err := parseEvents(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrHandshake, err)
		}
		for _, e := range evs {
			switch {
			case e.T == "error":
				return fmt.Errorf("%w: %s (code %d)", ErrHandshake, e.Msg, e.Code)
			case e.T == "success" && e.Msg == "authenticated":
				authenticated = true
			}
		}
	}
	if !authenticated {
		return fmt.Errorf("%w: no authentication acknowledgement", ErrHandshake)
	}

	sub, err := json.Marshal(subscribeRequest{Action: "subscribe", Bars: symbols})
	if err != nil {
		return err
	}
	if err := c.conn.Send(ctx, sub); err != nil {
		return fmt.Errorf("%w: send subscribe: %v", ErrHandshake, err)
	}

	c.setState(Subscribed)
	c.log.Info("subscribed", zap.Strings("symbols", symbols))
	return nil
}

// Stream reads until ctx is done or the connection fails. Receive timeouts
// and undecodable frames are logged and skipped. Frames carrying bars are
// queued; every frame goes to the mirror.
func (c *Client) Stream(ctx context.Context) error {
	c.setState(Streaming)
	for {
		if ctx.Err() != nil || c.isClosed() {
			return nil
		}

		raw, err := c.conn.Receive(ctx)
		switch {
		case errors.Is(err, ErrReceiveTimeout):
			c.log.Warn("receive timed out")
			continue
		case err != nil:
			if ctx.Err() != nil || c.isClosed() {
				return nil
			}
			c.setState(Disconnected)
			return err
		}

		c.mu.Lock()
		mirror := c.mirror
		c.mu.Unlock()
		if mirror != nil {
			mirror(raw)
		}

		msg, err := ParseMessage(raw, c.now())
		if err != nil {
			c.log.Warn("bad frame", zap.Error(err), zap.ByteString("raw", raw))
			continue
		}
		if len(msg.Bars) == 0 {
			continue
		}
		if c.queue.Put(msg) {
			c.log.Debug("queue full, dropped oldest", zap.Int("capacity", c.queue.Cap()))
		}
	}
}

// Run connects, performs the handshake and streams. It returns
// ErrRetriesExhausted when no connection could be made, nil when ctx is
// done or the client was closed, and the read error on connection loss.
func (c *Client) Run(ctx context.Context, symbols []string) error {
	if !c.ConnectWithRetries(ctx, c.cfg.MaxAttempts, c.cfg.BaseDelay) {
		if ctx.Err() != nil || c.isClosed() {
			return nil
		}
		return ErrRetriesExhausted
	}
	defer func() { _ = c.conn.Close() }()

	if err := c.Handshake(ctx, symbols); err != nil {
		c.setState(Disconnected)
		return err
	}
	return c.Stream(ctx)
}

// Close shuts the connection down and stops any Run in progress at its next
// checkpoint. It is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.setState(Closing)

	err := c.conn.Close()
	c.setState(Disconnected)
	return err
}
