// Package logger builds the structured slog logger shared by the proxy and
// the tracking pipeline. Records carry the service name and deployment
// environment; production emits JSON, other environments emit text.
package logger
