// Package config loads the edge configuration from a YAML file and
// environment variables and validates it before anything is started.
package config
