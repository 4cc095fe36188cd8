// Package config loads the application configuration from environment
// variables and an optional .env file.
//
// Each subsystem owns its partial Config struct (server, log, database,
// storage, one per external service, and the janitor tunables); this package
// composes them and binds defaults declared in struct tags. Environment
// variables map to nested keys with underscores, e.g. RADARR_URL maps to
// radarr.url and DATABASE_HOST to database.host.
package config
