// Package remote wraps outbound calls to the external media services
// (Radarr, Sonarr, Plex, Tautulli).
//
// Every call goes through a shared Client that applies a per-call timeout,
// retry with capped exponential backoff, and a short-TTL cache for GET
// responses. The cache collapses concurrent identical requests through
// singleflight so a reconciliation run never hammers the same endpoint.
//
// Unconfigured services yield nil clients. Consumers must check for nil and
// degrade gracefully (skip the source, fall back to filesystem deletion, or
// return empty results) rather than erroring.
package remote
