// Package middleware groups the HTTP middleware used by the server:
// ray-id injection for request tracing and API-key authentication.
package middleware
