package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"shelf/internal/metrics"
)

const (
	DefaultQueueSize       = 256
	DefaultDeliveryTimeout = 10 * time.Second
)

// Sink delivers a single event to an external system.
type Sink interface {
	Name() string
	Send(ctx context.Context, e Event) error
}

// Notifier queues events and delivers them to its sinks from a single
// background goroutine. When the queue is full new events are dropped.
type Notifier struct {
	sinks   []Sink
	queue   chan Event
	timeout time.Duration
}

// NewNotifier creates a Notifier with a queue of queueSize events.
func NewNotifier(queueSize int, timeout time.Duration, sinks ...Sink) *Notifier {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}

	return &Notifier{
		sinks:   sinks,
		queue:   make(chan Event, queueSize),
		timeout: timeout,
	}
}

// Publish enqueues e. It never blocks.
func (n *Notifier) Publish(e Event) {
	if len(n.sinks) == 0 {
		return
	}

	select {
	case n.queue <- e:
	default:
		metrics.NotificationsDropped.Inc()
		slog.Warn("Notification queue full, dropping event", "id", e.ID, "kind", e.Kind, "key", e.Key)
	}
}

// Run delivers queued events until ctx is cancelled, then drains whatever is
// already queued using a fresh deadline per delivery.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case e := <-n.queue:
			n.deliver(ctx, e)
		case <-ctx.Done():
			n.drain()
			return nil
		}
	}
}

func (n *Notifier) drain() {
	for {
		select {
		case e := <-n.queue:
			n.deliver(context.Background(), e)
		default:
			return
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, e Event) {
	for _, sink := range n.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
		err := sink.Send(sendCtx, e)
		cancel()

		switch {
		case err == nil:
			metrics.NotificationsTotal.WithLabelValues(sink.Name(), "success").Inc()
			slog.Debug("Notification sent", "sink", sink.Name(), "id", e.ID, "kind", e.Kind)
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			metrics.NotificationsTotal.WithLabelValues(sink.Name(), "canceled").Inc()
		default:
			metrics.NotificationsTotal.WithLabelValues(sink.Name(), "error").Inc()
			slog.Warn("Notification failed", "sink", sink.Name(), "id", e.ID, "kind", e.Kind, "err", err)
		}
	}
}
