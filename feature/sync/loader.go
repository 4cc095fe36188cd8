package sync

import (
	"media-janitor/core/remote"
	"media-janitor/feature/catalog"
	"media-janitor/feature/deletion"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	engine  *Engine
	handler *Handler
}

// NewFeature creates the sync feature. Any of the remote clients may be nil.
func NewFeature(db *gorm.DB, store *catalog.Store, deletions *deletion.Workflow, radarr *remote.RadarrClient, sonarr *remote.SonarrClient, tautulli *remote.TautulliClient, concurrency int, logger *zap.Logger) *Feature {
	engine := NewEngine(db, store, deletions, radarr, sonarr, tautulli, concurrency, logger)
	return &Feature{engine: engine, handler: NewHandler(engine, logger)}
}

// Engine returns the reconciliation engine.
func (f *Feature) Engine() *Engine {
	return f.engine
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "sync"
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
