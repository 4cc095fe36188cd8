package deletion

import (
	"errors"
	"time"

	"media-janitor/core/logger"
	"media-janitor/feature/deletion/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for pending deletions.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers the deletion routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/deletions")
	group.Get("/", h.HandleList)
	group.Get("/stats", h.HandleStats)
	group.Get("/history", h.HandleHistory)
	group.Delete("/history", h.HandleClearHistory)
	group.Post("/bulk/approve", h.HandleBulkApprove)
	group.Post("/bulk/cancel", h.HandleBulkCancel)
	group.Post("/execute", h.HandleExecuteDue)
	group.Get("/execute/status", h.HandleExecutionStatus)
	group.Post("/schedule/start", h.HandleScheduleStart)
	group.Post("/schedule/stop", h.HandleScheduleStop)
	group.Get("/:id", h.HandleGet)
	group.Post("/:id/approve", h.HandleApprove)
	group.Post("/:id/cancel", h.HandleCancel)
	group.Post("/:id/execute", h.HandleExecuteOne)
}

// HandleList returns pending deletion requests.
// @Summary List deletion requests
// @Tags deletions
// @Produce json
// @Param status query string false "Status filter"
// @Param rule_id query int false "Rule filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]any "Requests and total"
// @Router /deletions [get]
func (h *Handler) HandleList(c *fiber.Ctx) error {
	filter := ListFilter{
		Status: models.Status(c.Query("status")),
		RuleID: uint(c.QueryInt("rule_id", 0)),
		Limit:  c.QueryInt("limit", 100),
		Offset: c.QueryInt("offset", 0),
	}

	reqs, total, err := h.service.Workflow().List(c.Context(), filter)
	if err != nil {
		logger.WithRayID(h.logger, c).Error("Deletion list failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"requests": reqs, "total": total})
}

// HandleGet returns one request.
// @Summary Get a deletion request
// @Tags deletions
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} models.Request
// @Failure 404 {object} map[string]string "Not Found"
// @Router /deletions/{id} [get]
func (h *Handler) HandleGet(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid id"})
	}

	req, err := h.service.Workflow().Get(c.Context(), uint(id))
	if errors.Is(err, ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "request not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(req)
}

type approveRequest struct {
	Approver     string     `json:"approver"`
	Reason       string     `json:"reason"`
	ScheduledFor *time.Time `json:"scheduled_for"`
}

// HandleApprove approves a pending request.
// @Summary Approve a deletion request
// @Description Transitions a pending request to approved with an optional scheduled-for time.
// @Tags deletions
// @Accept json
// @Produce json
// @Param id path int true "Request ID"
// @Param body body approveRequest true "Approval"
// @Success 200 {object} models.Request
// @Failure 409 {object} map[string]string "Invalid transition"
// @Router /deletions/{id}/approve [post]
func (h *Handler) HandleApprove(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid id"})
	}

	var body approveRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	req, err := h.service.Workflow().Approve(c.Context(), uint(id), body.Approver, body.Reason, body.ScheduledFor)
	return h.respondTransition(c, req, err)
}

type cancelRequest struct {
	Canceller string `json:"canceller"`
	Reason    string `json:"reason"`
}

// HandleCancel cancels a pending or approved request.
// @Summary Cancel a deletion request
// @Tags deletions
// @Accept json
// @Produce json
// @Param id path int true "Request ID"
// @Param body body cancelRequest true "Cancellation"
// @Success 200 {object} models.Request
// @Failure 409 {object} map[string]string "Invalid transition"
// @Router /deletions/{id}/cancel [post]
func (h *Handler) HandleCancel(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid id"})
	}

	var body cancelRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	req, err := h.service.Workflow().Cancel(c.Context(), uint(id), body.Canceller, body.Reason)
	return h.respondTransition(c, req, err)
}

type bulkApproveRequest struct {
	IDs          []uint     `json:"ids"`
	Approver     string     `json:"approver"`
	Reason       string     `json:"reason"`
	ScheduledFor *time.Time `json:"scheduled_for"`
}

// HandleBulkApprove approves a set of pending requests.
// @Summary Bulk approve deletion requests
// @Description Approves every pending request in the ID set and reports how many were updated vs skipped.
// @Tags deletions
// @Accept json
// @Produce json
// @Param body body bulkApproveRequest true "Bulk approval"
// @Success 200 {object} map[string]int "Updated and skipped counts"
// @Router /deletions/bulk/approve [post]
func (h *Handler) HandleBulkApprove(c *fiber.Ctx) error {
	var body bulkApproveRequest
	if err := c.BodyParser(&body); err != nil || len(body.IDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	updated, skipped, err := h.service.Workflow().BulkApprove(c.Context(), body.IDs, body.Approver, body.Reason, body.ScheduledFor)
	if err != nil {
		logger.WithRayID(h.logger, c).Error("Bulk approve failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"updated": updated, "skipped": skipped})
}

type bulkCancelRequest struct {
	IDs       []uint `json:"ids"`
	Canceller string `json:"canceller"`
	Reason    string `json:"reason"`
}

// HandleBulkCancel cancels a set of pending or approved requests.
// @Summary Bulk cancel deletion requests
// @Tags deletions
// @Accept json
// @Produce json
// @Param body body bulkCancelRequest true "Bulk cancellation"
// @Success 200 {object} map[string]int "Updated and skipped counts"
// @Router /deletions/bulk/cancel [post]
func (h *Handler) HandleBulkCancel(c *fiber.Ctx) error {
	var body bulkCancelRequest
	if err := c.BodyParser(&body); err != nil || len(body.IDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	updated, skipped, err := h.service.Workflow().BulkCancel(c.Context(), body.IDs, body.Canceller, body.Reason)
	if err != nil {
		logger.WithRayID(h.logger, c).Error("Bulk cancel failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"updated": updated, "skipped": skipped})
}

// HandleExecuteOne executes a single approved request immediately.
// @Summary Execute one deletion request now
// @Tags deletions
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} models.Request
// @Failure 409 {object} map[string]string "Invalid transition or not due"
// @Router /deletions/{id}/execute [post]
func (h *Handler) HandleExecuteOne(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid id"})
	}

	req, err := h.service.ExecuteOne(c.Context(), uint(id))
	if errors.Is(err, ErrNotDue) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return h.respondTransition(c, req, err)
}

// HandleExecuteDue executes every approved, due request.
// @Summary Execute all due deletion requests
// @Tags deletions
// @Produce json
// @Success 200 {object} ExecutionReport
// @Failure 409 {object} map[string]string "Batch already running"
// @Router /deletions/execute [post]
func (h *Handler) HandleExecuteDue(c *fiber.Ctx) error {
	report, err := h.service.ExecuteDue(c.Context())
	if errors.Is(err, ErrExecutionRunning) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		logger.WithRayID(h.logger, c).Error("Execution pass failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(report)
}

// HandleExecutionStatus reports the execution state.
// @Summary Get execution status
// @Tags deletions
// @Produce json
// @Success 200 {object} map[string]any "Running flag and last report"
// @Router /deletions/execute/status [get]
func (h *Handler) HandleExecutionStatus(c *fiber.Ctx) error {
	running, report := h.service.ExecutionStatus()
	return c.JSON(fiber.Map{"running": running, "last_report": report})
}

type scheduleRequest struct {
	IntervalMinutes int `json:"interval_minutes"`
}

// HandleScheduleStart starts scheduled execution.
// @Summary Start the execution schedule
// @Tags deletions
// @Accept json
// @Produce json
// @Param body body scheduleRequest true "Interval in minutes"
// @Success 200 {object} map[string]any
// @Router /deletions/schedule/start [post]
func (h *Handler) HandleScheduleStart(c *fiber.Ctx) error {
	var body scheduleRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if !h.service.StartSchedule(body.IntervalMinutes) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "interval must be at least 1 minute"})
	}
	return c.JSON(fiber.Map{"running": true, "interval_minutes": body.IntervalMinutes})
}

// HandleScheduleStop stops scheduled execution.
// @Summary Stop the execution schedule
// @Tags deletions
// @Produce json
// @Success 200 {object} map[string]bool
// @Router /deletions/schedule/stop [post]
func (h *Handler) HandleScheduleStop(c *fiber.Ctx) error {
	h.service.StopSchedule()
	return c.JSON(fiber.Map{"running": false})
}

// HandleStats returns counts and bytes per status.
// @Summary Deletion request statistics
// @Tags deletions
// @Produce json
// @Success 200 {array} StatusSummary
// @Router /deletions/stats [get]
func (h *Handler) HandleStats(c *fiber.Ctx) error {
	stats, err := h.service.Workflow().Stats(c.Context())
	if err != nil {
		logger.WithRayID(h.logger, c).Error("Deletion stats failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(stats)
}

// HandleHistory returns deletion history records.
// @Summary List deletion history
// @Tags deletions
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]any "Records and total"
// @Router /deletions/history [get]
func (h *Handler) HandleHistory(c *fiber.Ctx) error {
	records, total, err := h.service.Workflow().History(c.Context(), c.QueryInt("limit", 100), c.QueryInt("offset", 0))
	if err != nil {
		logger.WithRayID(h.logger, c).Error("History list failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"records": records, "total": total})
}

// HandleClearHistory archives (when configured) and clears all history.
// @Summary Clear deletion history
// @Description Admin operation. History is archived to object storage first when configured.
// @Tags deletions
// @Produce json
// @Success 200 {object} map[string]any "Removed count and archive object"
// @Router /deletions/history [delete]
func (h *Handler) HandleClearHistory(c *fiber.Ctx) error {
	removed, object, err := h.service.ClearHistory(c.Context())
	if err != nil {
		logger.WithRayID(h.logger, c).Error("History clear failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"removed": removed, "archive_object": object})
}

// respondTransition maps workflow errors to client responses.
func (h *Handler) respondTransition(c *fiber.Ctx, req *models.Request, err error) error {
	switch {
	case err == nil:
		return c.JSON(req)
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "request not found"})
	case errors.Is(err, ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		logger.WithRayID(h.logger, c).Error("Deletion transition failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
