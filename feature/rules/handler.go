package rules

import (
	"errors"

	"media-janitor/core/logger"
	"media-janitor/feature/rules/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for rules.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers the rule routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/rules")
	group.Get("/", h.HandleList)
	group.Post("/", h.HandleCreate)
	group.Get("/stats", h.HandleStats)
	group.Delete("/stats", h.HandleResetStats)
	group.Post("/preview", h.HandlePreviewCandidate)
	group.Get("/:id", h.HandleGet)
	group.Put("/:id", h.HandleUpdate)
	group.Delete("/:id", h.HandleDelete)
	group.Get("/:id/preview", h.HandlePreview)
	group.Post("/:id/run", h.HandleRun)
}

// HandleList returns all rules.
// @Summary List rules
// @Tags rules
// @Produce json
// @Success 200 {array} models.Rule
// @Router /rules [get]
func (h *Handler) HandleList(c *fiber.Ctx) error {
	rules, err := h.service.List(c.Context())
	if err != nil {
		logger.WithRayID(h.logger, c).Error("Rule list failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(rules)
}

// HandleCreate creates a rule.
// @Summary Create a rule
// @Tags rules
// @Accept json
// @Produce json
// @Param body body models.Rule true "Rule definition"
// @Success 201 {object} models.Rule
// @Failure 400 {object} map[string]string "Validation error"
// @Router /rules [post]
func (h *Handler) HandleCreate(c *fiber.Ctx) error {
	var rule models.Rule
	if err := c.BodyParser(&rule); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	rule.ID = 0

	if err := h.service.Create(c.Context(), &rule); err != nil {
		if errors.Is(err, ErrInvalidRule) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		logger.WithRayID(h.logger, c).Error("Rule create failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(rule)
}

// HandleGet returns one rule.
// @Summary Get a rule
// @Tags rules
// @Produce json
// @Param id path int true "Rule ID"
// @Success 200 {object} models.Rule
// @Failure 404 {object} map[string]string "Not Found"
// @Router /rules/{id} [get]
func (h *Handler) HandleGet(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid id"})
	}

	rule, err := h.service.Get(c.Context(), uint(id))
	if errors.Is(err, ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "rule not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(rule)
}

// HandleUpdate replaces a rule definition.
// @Summary Update a rule
// @Tags rules
// @Accept json
// @Produce json
// @Param id path int true "Rule ID"
// @Param body body models.Rule true "Rule definition"
// @Success 200 {object} models.Rule
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 404 {object} map[string]string "Not Found"
// @Router /rules/{id} [put]
func (h *Handler) HandleUpdate(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid id"})
	}

	var rule models.Rule
	if err := c.BodyParser(&rule); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	updated, err := h.service.Update(c.Context(), uint(id), &rule)
	switch {
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "rule not found"})
	case errors.Is(err, ErrInvalidRule):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		logger.WithRayID(h.logger, c).Error("Rule update failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(updated)
}

// HandleDelete removes a rule and its deletion requests.
// @Summary Delete a rule
// @Description Deletes the rule along with all its deletion requests and history.
// @Tags rules
// @Produce json
// @Param id path int true "Rule ID"
// @Success 204 "No Content"
// @Failure 404 {object} map[string]string "Not Found"
// @Router /rules/{id} [delete]
func (h *Handler) HandleDelete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid id"})
	}

	err = h.service.Delete(c.Context(), uint(id))
	if errors.Is(err, ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "rule not found"})
	}
	if err != nil {
		logger.WithRayID(h.logger, c).Error("Rule delete failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandlePreview dry-runs a rule against the catalog.
// @Summary Preview a rule
// @Description Evaluates the rule against the current catalog without creating deletion requests.
// @Tags rules
// @Produce json
// @Param id path int true "Rule ID"
// @Param limit query int false "Entry sample cap" default(100)
// @Success 200 {object} PreviewReport
// @Failure 404 {object} map[string]string "Not Found"
// @Router /rules/{id}/preview [get]
func (h *Handler) HandlePreview(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid id"})
	}

	report, err := h.service.Preview(c.Context(), uint(id), c.QueryInt("limit", 100))
	if errors.Is(err, ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "rule not found"})
	}
	if err != nil {
		logger.WithRayID(h.logger, c).Error("Rule preview failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(report)
}

// HandlePreviewCandidate dry-runs a rule definition without storing it.
// @Summary Preview a candidate rule
// @Description Evaluates a rule definition from the request body against the current catalog, so edits can be dry-run before saving.
// @Tags rules
// @Accept json
// @Produce json
// @Param limit query int false "Entry sample cap" default(100)
// @Param body body models.Rule true "Rule definition"
// @Success 200 {object} PreviewReport
// @Failure 400 {object} map[string]string "Validation error"
// @Router /rules/preview [post]
func (h *Handler) HandlePreviewCandidate(c *fiber.Ctx) error {
	var rule models.Rule
	if err := c.BodyParser(&rule); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	report, err := h.service.PreviewRule(c.Context(), &rule, c.QueryInt("limit", 100))
	if errors.Is(err, ErrInvalidRule) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		logger.WithRayID(h.logger, c).Error("Rule preview failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(report)
}

// HandleRun runs a rule and proposes deletions for matches.
// @Summary Run a rule
// @Description Evaluates the rule and creates a pending deletion request per match.
// @Tags rules
// @Produce json
// @Param id path int true "Rule ID"
// @Success 200 {object} RunReport
// @Failure 400 {object} map[string]string "Rule disabled"
// @Failure 404 {object} map[string]string "Not Found"
// @Router /rules/{id}/run [post]
func (h *Handler) HandleRun(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid id"})
	}

	report, err := h.service.Run(c.Context(), uint(id))
	switch {
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "rule not found"})
	case errors.Is(err, ErrInvalidRule):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		logger.WithRayID(h.logger, c).Error("Rule run failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(report)
}

// HandleStats returns accumulated evaluation counters.
// @Summary Evaluation statistics
// @Tags rules
// @Produce json
// @Success 200 {object} Stats
// @Router /rules/stats [get]
func (h *Handler) HandleStats(c *fiber.Ctx) error {
	return c.JSON(h.service.Engine().Stats())
}

// HandleResetStats clears accumulated evaluation counters.
// @Summary Reset evaluation statistics
// @Tags rules
// @Produce json
// @Success 204 "No Content"
// @Router /rules/stats [delete]
func (h *Handler) HandleResetStats(c *fiber.Ctx) error {
	h.service.Engine().ResetStats()
	return c.SendStatus(fiber.StatusNoContent)
}
