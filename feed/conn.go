package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrReceiveTimeout is returned by Receive when no message arrived in
	// time. It is transient: the connection is still usable.
	ErrReceiveTimeout = errors.New("receive timed out")
	// ErrClosed is returned by operations on a connection that is not open.
	ErrClosed = errors.New("connection closed")
)

const (
	DefaultReceiveTimeout = 10 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	maxMessageSize        = 4 << 20
)

// Conn is the push-feed transport.
type Conn interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, msg []byte) error
	// Receive returns the next message, or ErrReceiveTimeout.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// WSConn is a websocket Conn. A background reader feeds Receive so that a
// receive timeout never interrupts a frame mid-read. WSConn can be
// reconnected after Close.
type WSConn struct {
	URL            string
	Header         http.Header
	ReceiveTimeout time.Duration
	Dialer         *websocket.Dialer

	mu      sync.Mutex
	sess    *session
	writeMu sync.Mutex
}

type session struct {
	ws     *websocket.Conn
	in     chan []byte
	done   chan struct{} // reader exited; err is set
	closed chan struct{} // Close was called
	err    error
	once   sync.Once
}

func NewWSConn(url string) *WSConn {
	return &WSConn{URL: url, ReceiveTimeout: DefaultReceiveTimeout}
}

func (c *WSConn) Connect(ctx context.Context) error {
	dialer := c.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}

	ws, _, err := dialer.DialContext(ctx, c.URL, c.Header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.URL, err)
	}
	ws.SetReadLimit(maxMessageSize)

	s := &session{
		ws:     ws,
		in:     make(chan []byte),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}

	c.mu.Lock()
	old := c.sess
	c.sess = s
	c.mu.Unlock()
	if old != nil {
		old.close()
	}

	go s.read()
	return nil
}

func (s *session) read() {
	defer close(s.done)
	for {
		_, msg, err := s.ws.ReadMessage()
		if err != nil {
			s.err = err
			return
		}
		select {
		case s.in <- msg:
		case <-s.closed:
			s.err = ErrClosed
			return
		}
	}
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.closed)
		_ = s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.ws.Close()
	})
}

func (c *WSConn) current() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func (c *WSConn) Send(ctx context.Context, msg []byte) error {
	s := c.current()
	if s == nil {
		return ErrClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = s.ws.SetWriteDeadline(deadline)
	if err := s.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *WSConn) Receive(ctx context.Context) ([]byte, error) {
	s := c.current()
	if s == nil {
		return nil, ErrClosed
	}

	timeout := c.ReceiveTimeout
	if timeout <= 0 {
		timeout = DefaultReceiveTimeout
	}
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case msg := <-s.in:
		return msg, nil
	case <-s.done:
		return nil, fmt.Errorf("read: %w", s.err)
	case <-t.C:
		return nil, ErrReceiveTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts the current session down. It is safe to call repeatedly.
func (c *WSConn) Close() error {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.mu.Unlock()
	if s != nil {
		s.close()
	}
	return nil
}
