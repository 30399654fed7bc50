package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventRequestProxied    EventType = "request_proxied"
	EventOriginFailed      EventType = "origin_failed"
	EventTrackingSkipped   EventType = "tracking_skipped"
	EventTrackingCompleted EventType = "tracking_completed"
	EventTaskDropped       EventType = "task_dropped"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	StatusCode int
	Duration   time.Duration
	// Outcome is the tracking result ("tracked", "skipped", "failed").
	Outcome string
	// Reason is the skip reason for skipped tracking attempts.
	Reason string
	// FailedSenders names the senders that could not deliver the event.
	FailedSenders []string
}

type Collector struct {
	eventCh chan MetricEvent
	done    chan struct{}
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		done:    make(chan struct{}),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// Emit queues event without blocking; events are dropped when the buffer is
// full. A nil collector ignores every event.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

// Start consumes events until ctx is cancelled, then records whatever is
// still buffered and closes Done.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

// Done is closed once the collector has drained its buffer and stopped.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer close(c.done)
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRequestProxied:
		c.metrics.RecordProxied(event.StatusCode, event.Duration)

	case EventOriginFailed:
		c.metrics.RecordOriginFailure()

	case EventTrackingSkipped:
		c.metrics.RecordSkipped(event.Reason)

	case EventTrackingCompleted:
		c.metrics.RecordTracking(event.Outcome, event.Reason, event.Duration, event.FailedSenders)

	case EventTaskDropped:
		c.metrics.RecordDropped()
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
