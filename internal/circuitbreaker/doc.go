// Package circuitbreaker keeps a failing tracking endpoint from tying up the
// background workers.
//
// Each sender gets its own breaker. It has three states:
//
//   - CLOSED: events are delivered
//   - OPEN: the endpoint keeps failing, deliveries are skipped
//   - HALF-OPEN: a single trial delivery decides whether to close again
//
// Skipping is not retrying: a skipped event is gone.
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(5, 30*time.Second)
//	err := registry.GetBreaker("query").Execute(func() error {
//	    return sender.Send(ctx, event)
//	})
//	if errors.Is(err, circuitbreaker.ErrOpen) {
//	    // endpoint is cooling down
//	}
package circuitbreaker
