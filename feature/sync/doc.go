// Package sync reconciles the catalog against the configured sources. A run
// pulls the full Radarr and Sonarr listings concurrently, upserts them by
// path, removes orphans per source that listed successfully, and merges new
// Tautulli watch history on top. Progress streams over an in-process event
// bus; every run is recorded with per-source details.
package sync
