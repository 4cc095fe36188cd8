package rules

import (
	"media-janitor/feature/catalog"
	"media-janitor/feature/deletion"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
}

// NewFeature creates the rules feature on top of the catalog store and the
// deletion workflow.
func NewFeature(db *gorm.DB, store *catalog.Store, deletions *deletion.Workflow, logger *zap.Logger) *Feature {
	service := NewService(db, store, deletions, logger)
	return &Feature{service: service, handler: NewHandler(service, logger)}
}

// Service returns the rules service.
func (f *Feature) Service() *Service {
	return f.service
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "rules"
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
