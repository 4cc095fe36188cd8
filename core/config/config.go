package config

import (
	"reflect"
	"strings"

	"media-janitor/core/database"
	"media-janitor/core/logger"
	"media-janitor/core/remote"
	"media-janitor/core/server"
	"media-janitor/core/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// JanitorConfig holds tunables for the deletion and sync machinery.
type JanitorConfig struct {
	// SyncIntervalMinutes is the default interval for scheduled syncs.
	// Zero leaves the scheduler stopped until started via the API.
	SyncIntervalMinutes int `mapstructure:"sync_interval_minutes" default:"0"`
	// ExecutionIntervalMinutes is the default interval for the scheduled
	// deletion executor. Zero leaves it stopped.
	ExecutionIntervalMinutes int `mapstructure:"execution_interval_minutes" default:"0"`
	// UpsertBatchSize bounds the catalog batch-upsert size.
	UpsertBatchSize int `mapstructure:"upsert_batch_size" default:"500"`
	// SourceConcurrency bounds per-parent-entity request fan-out during sync.
	SourceConcurrency int `mapstructure:"source_concurrency" default:"5"`
	// PlexSection is the Plex library section refreshed after deletions.
	PlexSection string `mapstructure:"plex_section" default:""`
}

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the database connection.
	Database database.Config `mapstructure:"database"`
	// Storage holds configuration for the optional archive storage.
	Storage storage.Config `mapstructure:"storage"`
	// Radarr holds connection settings for the movie manager.
	Radarr remote.ServiceConfig `mapstructure:"radarr"`
	// Sonarr holds connection settings for the show manager.
	Sonarr remote.ServiceConfig `mapstructure:"sonarr"`
	// Plex holds connection settings for the library server.
	Plex remote.ServiceConfig `mapstructure:"plex"`
	// Tautulli holds connection settings for the watch-history service.
	Tautulli remote.ServiceConfig `mapstructure:"tautulli"`
	// Janitor holds deletion and sync tunables.
	Janitor JanitorConfig `mapstructure:"janitor"`
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. RADARR_URL -> radarr.url)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues uses reflection to iterate over the struct and set default values
// in Viper based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
