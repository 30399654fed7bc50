// Package eligibility decides whether a proxied request should produce a
// tracking event.
//
// A Policy is built from injected tables (static-asset extensions, exact
// non-content paths) and an optional method allow-list. Two profiles cover
// the supported deployments:
//
//   - minimal: any method is tracked, only the URL metadata is reported
//   - response-aware: only GET and POST are tracked, and the origin status and
//     timing are reported alongside the URL metadata
//
// Decisions are pure and deterministic; the package never performs I/O.
package eligibility
