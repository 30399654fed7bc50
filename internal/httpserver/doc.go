// Package httpserver runs the edge's http.Server with a validated listen
// address, graceful shutdown and optional PROXY protocol support.
package httpserver
