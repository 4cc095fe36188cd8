package catalog

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	store   *Store
	handler *Handler
}

// NewFeature creates the catalog feature.
func NewFeature(db *gorm.DB, batchSize int, logger *zap.Logger) *Feature {
	store := NewStore(db, batchSize, logger)
	return &Feature{store: store, handler: NewHandler(store, logger)}
}

// Store returns the catalog store for features layered on top.
func (f *Feature) Store() *Store {
	return f.store
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "catalog"
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
