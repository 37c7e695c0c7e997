// Package ctxkey defines shared context key types used across multiple
// packages. It must not depend on other internal packages.
package ctxkey

// LoggerKey is the context key type for the request-enriched logger.
type LoggerKey struct{}

// RequestIDKey is the context key type for the request id string.
type RequestIDKey struct{}
