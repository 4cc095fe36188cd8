package remote

// ServiceConfig holds connection settings for one external service.
// A service with an empty URL is treated as unconfigured and every
// consumer must degrade gracefully.
type ServiceConfig struct {
	// URL is the base URL of the service, e.g. "http://localhost:7878".
	URL string `mapstructure:"url" default:""`
	// ApiKey is the service API key.
	ApiKey string `mapstructure:"api_key" default:""`
	// TimeoutSeconds is the per-call timeout.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
	// CacheTTLSeconds is the TTL for cached GET responses. Zero disables caching.
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds" default:"60"`
}

// Configured reports whether the service has a base URL set.
func (c ServiceConfig) Configured() bool {
	return c.URL != ""
}
