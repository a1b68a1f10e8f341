package agent

import (
	"context"
	"errors"

	"github.com/Zia-Rashid/Krusty-Krab/feed"
	"go.uber.org/zap"
)

// queueHighWater is the fraction of queue capacity at which the health
// check purges.
const queueHighWater = 0.75

// ingest keeps the feed running. When connect retries are exhausted the
// agent switches to polling and waits for the health check to ask for a
// reconnect. A dropped stream is re-run after a short pause.
func (a *Agent) ingest(ctx context.Context) error {
	if a.feed == nil {
		<-ctx.Done()
		return nil
	}

	for a.alive(ctx) {
		err := a.feed.Run(ctx, a.symbols())
		if ctx.Err() != nil {
			return nil
		}
		switch {
		case err == nil:
			return nil
		case errors.Is(err, feed.ErrRetriesExhausted):
			if !a.polling.Swap(true) {
				a.log.Warn("feed unavailable, switching to polling mode")
			}
			select {
			case <-ctx.Done():
				return nil
			case <-a.reconnect:
				a.log.Info("reconnecting feed")
			}
		default:
			a.log.Warn("feed dropped", zap.Error(err))
			if err := a.sleep(ctx, reconnectDelay); err != nil {
				return nil
			}
		}
	}
	return nil
}

func (a *Agent) requestReconnect() {
	select {
	case a.reconnect <- struct{}{}:
	default:
	}
}

// ObserveFeedState records a feed state transition. It is meant to be
// registered with the feed client's OnStateChange.
func (a *Agent) ObserveFeedState(s feed.State) {
	a.metrics.feedState.Set(float64(s))
	if s == feed.Streaming && a.polling.Swap(false) {
		a.log.Info("feed streaming, leaving polling mode")
	}
}

// monitor runs one decision cycle, then sleeps the monitor interval.
func (a *Agent) monitor(ctx context.Context) error {
	for a.alive(ctx) {
		a.Cycle(ctx)
		if err := a.sleep(ctx, a.cfg.MonitorInterval); err != nil {
			return nil
		}
	}
	return nil
}

// purgeLoop periodically empties the ingestion queue so that the monitor
// never works through a backlog of stale frames.
func (a *Agent) purgeLoop(ctx context.Context) error {
	for a.alive(ctx) {
		if err := a.sleep(ctx, a.cfg.PurgeInterval); err != nil {
			return nil
		}
		if n := a.absorb(); n > 0 {
			a.log.Debug("purged queue", zap.Int("messages", n))
		}
	}
	return nil
}

func (a *Agent) healthLoop(ctx context.Context) error {
	for a.alive(ctx) {
		if err := a.sleep(ctx, a.cfg.HealthInterval); err != nil {
			return nil
		}
		a.CheckHealth()
	}
	return nil
}

// CheckHealth publishes queue and feed metrics, asks for a reconnect while
// polling, and purges a queue that is close to full.
func (a *Agent) CheckHealth() {
	depth := a.queue.Len()
	a.metrics.queueDepth.Set(float64(depth))

	evicted := a.queue.Evicted()
	if prev := a.lastEvicted.Swap(evicted); evicted > prev {
		a.metrics.evictions.Add(float64(evicted - prev))
		a.log.Warn("queue evicted messages", zap.Uint64("count", evicted-prev))
	}

	if a.feed != nil {
		state := a.feed.State()
		a.ObserveFeedState(state)
		if a.Polling() && state != feed.Connecting {
			a.requestReconnect()
		}
	}

	if float64(depth) >= queueHighWater*float64(a.queue.Cap()) {
		n := a.absorb()
		a.log.Warn("queue near capacity, purged", zap.Int("messages", n), zap.Int("capacity", a.queue.Cap()))
	}
}

// absorb drains the queue into the bar store and returns the number of
// messages drained.
func (a *Agent) absorb() int {
	msgs := a.queue.Drain()
	for _, m := range msgs {
		for _, b := range m.Bars {
			a.bars.Update(b)
		}
	}
	a.metrics.queueDepth.Set(float64(a.queue.Len()))
	return len(msgs)
}
