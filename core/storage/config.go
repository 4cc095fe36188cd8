package storage

// Config holds configuration for the S3-compatible archive storage.
// Archive storage is optional; an empty endpoint disables it.
type Config struct {
	// Endpoint is the storage endpoint, e.g. "localhost:9000".
	Endpoint string `mapstructure:"endpoint" default:""`
	// AccessKey is the storage access key.
	AccessKey string `mapstructure:"access_key" default:""`
	// SecretKey is the storage secret key.
	SecretKey string `mapstructure:"secret_key" default:""`
	// Bucket is the bucket receiving history archives.
	Bucket string `mapstructure:"bucket" default:"janitor-archive"`
	// Region is the storage region.
	Region string `mapstructure:"region" default:""`
	// UseSSL enables TLS for the storage connection.
	UseSSL bool `mapstructure:"use_ssl" default:"false"`
	// TimeoutSeconds is the connection and I/O timeout.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
}

// Configured reports whether archive storage is set up.
func (c Config) Configured() bool {
	return c.Endpoint != ""
}
