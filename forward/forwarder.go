// Package forward mirrors ingested feed frames to a secondary websocket
// listener and provides that listener.
package forward

import (
	"context"
	"errors"
	"time"

	"github.com/Zia-Rashid/Krusty-Krab/feed"
	"go.uber.org/zap"
)

const (
	DefaultURL      = "ws://localhost:8080"
	defaultCapacity = 256

	// maxRetryDelay bounds the wait between reconnects to the listener,
	// which may stay down for the whole run.
	maxRetryDelay = time.Minute
)

// Forwarder is a fire-and-forget sink. Publish never blocks; frames are
// dropped oldest-first while the listener is unreachable.
type Forwarder struct {
	conn      feed.Conn
	queue     *feed.Queue[[]byte]
	baseDelay time.Duration
	log       *zap.Logger

	// pending is a frame whose send failed. It goes out first on the next
	// connection. Only Run touches it.
	pending []byte

	sleep func(context.Context, time.Duration) error
}

func New(conn feed.Conn, capacity int, baseDelay time.Duration, log *zap.Logger) *Forwarder {
	if log == nil {
		log = zap.NewNop()
	}
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if baseDelay <= 0 {
		baseDelay = feed.DefaultBaseDelay
	}
	return &Forwarder{
		conn:      conn,
		queue:     feed.NewQueue[[]byte](capacity),
		baseDelay: baseDelay,
		log:       log.Named("forward"),
		sleep:     feed.Sleep,
	}
}

// Publish queues a copy of raw for delivery.
func (f *Forwarder) Publish(raw []byte) {
	f.queue.Put(append([]byte(nil), raw...))
}

// Pending reports frames waiting for delivery.
func (f *Forwarder) Pending() int { return f.queue.Len() }

// Run delivers queued frames until ctx is done, reconnecting with backoff
// whenever the listener goes away. Delivery failures are never returned.
func (f *Forwarder) Run(ctx context.Context) error {
	defer func() { _ = f.conn.Close() }()

	attempt := 0
	for ctx.Err() == nil {
		if err := f.conn.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			f.log.Debug("listener unavailable", zap.Int("attempt", attempt+1), zap.Error(err))
			if f.sleep(ctx, feed.CappedBackoff(f.baseDelay, attempt, maxRetryDelay)) != nil {
				break
			}
			attempt++
			continue
		}
		attempt = 0
		f.log.Info("forwarding")

		if err := f.deliver(ctx); err != nil && !errors.Is(err, context.Canceled) {
			f.log.Warn("forwarding interrupted", zap.Error(err))
		}
		_ = f.conn.Close()
	}
	return nil
}

func (f *Forwarder) deliver(ctx context.Context) error {
	for {
		if f.pending == nil {
			raw, err := f.queue.Get(ctx)
			if err != nil {
				return err
			}
			f.pending = raw
		}
		if err := f.conn.Send(ctx, f.pending); err != nil {
			return err
		}
		f.pending = nil
	}
}
