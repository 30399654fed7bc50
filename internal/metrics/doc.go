// Package metrics counts what the edge does with each request.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Proxied request counts, origin failures and status code distribution
//   - Origin latency percentiles (P50, P95, P99)
//   - Tracking outcomes (tracked, skipped, failed) and skip reasons
//   - Per-sender delivery failures and dropped background tasks
//   - Tracking delivery latency percentiles
//
// Emit never blocks: when the buffer is full the event is discarded, so the
// request path is never slowed down by bookkeeping.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventRequestProxied,
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	snapshot := collector.Snapshot()
//
// Storage is guarded by a sync.RWMutex and the collector drains pending
// events on shutdown.
package metrics
