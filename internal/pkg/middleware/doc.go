// Package middleware provides the HTTP middleware chain of the av1conv API:
// request IDs, panic recovery, access logging, Prometheus instrumentation
// and rendering of handler errors.
package middleware
