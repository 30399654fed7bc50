// Package healthcheck serves the edge's own health report: the state of each
// tracking sender's circuit breaker and the background task counters.
package healthcheck
