package catalog

import (
	"errors"

	"media-janitor/core/logger"
	"media-janitor/feature/catalog/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for the catalog.
type Handler struct {
	store  *Store
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(store *Store, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes registers the catalog routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/catalog")
	group.Get("/", h.HandleList)
	group.Get("/:id", h.HandleGet)
	group.Patch("/:id/protect", h.HandleProtect)
}

// HandleList returns catalog entries.
// @Summary List catalog entries
// @Description List catalog entries, filterable by kind, watched and protected flags.
// @Tags catalog
// @Produce json
// @Param kind query string false "Media kind (movie, show, other)"
// @Param watched query bool false "Watched flag"
// @Param protected query bool false "Protected flag"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]any "Entries and total"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /catalog [get]
func (h *Handler) HandleList(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	filter := Filter{
		Kind:   models.Kind(c.Query("kind")),
		Limit:  c.QueryInt("limit", 100),
		Offset: c.QueryInt("offset", 0),
	}
	if v := c.Query("watched"); v != "" {
		watched := v == "true"
		filter.Watched = &watched
	}
	if v := c.Query("protected"); v != "" {
		protected := v == "true"
		filter.Protected = &protected
	}

	entries, total, err := h.store.List(c.Context(), filter)
	if err != nil {
		l.Error("Catalog list failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"entries": entries,
		"total":   total,
	})
}

// HandleGet returns one catalog entry.
// @Summary Get a catalog entry
// @Tags catalog
// @Produce json
// @Param id path int true "Entry ID"
// @Success 200 {object} models.Entry
// @Failure 404 {object} map[string]string "Not Found"
// @Router /catalog/{id} [get]
func (h *Handler) HandleGet(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid id"})
	}

	entry, err := h.store.Get(c.Context(), uint(id))
	if errors.Is(err, ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "entry not found"})
	}
	if err != nil {
		logger.WithRayID(h.logger, c).Error("Catalog get failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(entry)
}

type protectRequest struct {
	Protected bool `json:"protected"`
}

// HandleProtect toggles the protected flag on one entry.
// @Summary Protect or unprotect a catalog entry
// @Description Protected entries are never matched by any rule.
// @Tags catalog
// @Accept json
// @Produce json
// @Param id path int true "Entry ID"
// @Param body body protectRequest true "Protected flag"
// @Success 204
// @Failure 404 {object} map[string]string "Not Found"
// @Router /catalog/{id}/protect [patch]
func (h *Handler) HandleProtect(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid id"})
	}

	var req protectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	err = h.store.SetProtected(c.Context(), uint(id), req.Protected)
	if errors.Is(err, ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "entry not found"})
	}
	if err != nil {
		logger.WithRayID(h.logger, c).Error("Protect toggle failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
