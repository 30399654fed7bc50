// Package origin forwards inbound requests to the origin server and streams
// the response back unchanged.
//
// A Forwarder built without a target URL proxies every request to the URL it
// was addressed to, which makes the edge a transparent passthrough. The
// forwarder does not retry: an unreachable origin is answered with
// 502 Bad Gateway and reported to the caller.
package origin
