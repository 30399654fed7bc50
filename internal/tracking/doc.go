// Package tracking turns proxied requests into tracking events and delivers
// them, best-effort, to one or more senders.
//
// A Request is captured synchronously while the inbound *http.Request is still
// valid. The Reporter runs later, usually on a dispatch worker, and reports
// every attempt as a Result instead of an error: tracking never fails the
// client path.
package tracking
