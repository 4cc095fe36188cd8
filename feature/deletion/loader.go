package deletion

import (
	"media-janitor/core/remote"
	"media-janitor/core/storage"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
}

// NewFeature wires the deletion workflow, executor and service. The remote
// clients and archive storage may all be nil; execution degrades to direct
// filesystem removal and history clears skip archiving.
func NewFeature(db *gorm.DB, radarr *remote.RadarrClient, sonarr *remote.SonarrClient, plex *remote.PlexClient, plexSection string, archive storage.Client, archiveBucket string, logger *zap.Logger) *Feature {
	workflow := NewWorkflow(db, logger)
	executor := NewExecutor(radarr, sonarr, logger)
	archiver := NewArchiver(archive, archiveBucket, logger)
	service := NewService(workflow, executor, archiver, plex, plexSection, logger)
	return &Feature{service: service, handler: NewHandler(service, logger)}
}

// Service returns the deletion service for features layered on top.
func (f *Feature) Service() *Service {
	return f.service
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "deletion"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return true
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}
