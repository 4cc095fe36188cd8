package sync

import (
	"context"
	"errors"

	"media-janitor/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for reconciliation runs.
type Handler struct {
	engine *Engine
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(engine *Engine, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// RegisterRoutes registers the sync routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/sync")
	group.Post("/", h.HandleRun)
	group.Get("/status", h.HandleStatus)
	group.Get("/latest", h.HandleLatest)
	group.Get("/runs", h.HandleRuns)
	group.Post("/schedule/start", h.HandleScheduleStart)
	group.Post("/schedule/stop", h.HandleScheduleStop)
	group.Post("/cache/clear", h.HandleClearCache)
}

// HandleRun triggers a reconciliation run.
// @Summary Trigger a sync run
// @Description Starts a run in the background and returns 202. With wait=true the run executes inline and the full run record is returned.
// @Tags sync
// @Produce json
// @Param wait query bool false "Run synchronously"
// @Success 200 {object} models.Run "Completed run (wait=true)"
// @Success 202 {object} map[string]bool "Run started"
// @Failure 409 {object} map[string]string "Run already in progress"
// @Router /sync [post]
func (h *Handler) HandleRun(c *fiber.Ctx) error {
	if c.QueryBool("wait", false) {
		run, err := h.engine.Run(c.Context())
		if errors.Is(err, ErrSyncRunning) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		if errors.Is(err, ErrNoSources) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err != nil {
			logger.WithRayID(h.logger, c).Error("Sync run failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(run)
	}

	if h.engine.Running() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": ErrSyncRunning.Error()})
	}

	go func() {
		if _, err := h.engine.Run(context.Background()); err != nil && !errors.Is(err, ErrSyncRunning) {
			h.logger.Error("Background sync run failed", zap.Error(err))
		}
	}()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"started": true})
}

// HandleStatus reports whether a run is in flight and the schedule state.
// @Summary Sync status
// @Tags sync
// @Produce json
// @Success 200 {object} map[string]any
// @Router /sync/status [get]
func (h *Handler) HandleStatus(c *fiber.Ctx) error {
	scheduled, interval := h.engine.ScheduleStatus()
	return c.JSON(fiber.Map{
		"running":          h.engine.Running(),
		"scheduled":        scheduled,
		"interval_minutes": int(interval.Minutes()),
	})
}

// HandleLatest returns the most recent run.
// @Summary Latest sync run
// @Tags sync
// @Produce json
// @Success 200 {object} models.Run
// @Failure 404 {object} map[string]string "No runs yet"
// @Router /sync/latest [get]
func (h *Handler) HandleLatest(c *fiber.Ctx) error {
	run, err := h.engine.Latest(c.Context())
	if err != nil {
		logger.WithRayID(h.logger, c).Error("Latest run lookup failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if run == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no sync runs recorded"})
	}
	return c.JSON(run)
}

// HandleRuns returns recent runs, newest first.
// @Summary List sync runs
// @Tags sync
// @Produce json
// @Param limit query int false "Maximum runs" default(20)
// @Success 200 {array} models.Run
// @Router /sync/runs [get]
func (h *Handler) HandleRuns(c *fiber.Ctx) error {
	runs, err := h.engine.Runs(c.Context(), c.QueryInt("limit", 20))
	if err != nil {
		logger.WithRayID(h.logger, c).Error("Run list failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(runs)
}

type scheduleRequest struct {
	IntervalMinutes int `json:"interval_minutes"`
}

// HandleScheduleStart starts scheduled runs.
// @Summary Start the sync schedule
// @Tags sync
// @Accept json
// @Produce json
// @Param body body scheduleRequest true "Interval in minutes"
// @Success 200 {object} map[string]any
// @Router /sync/schedule/start [post]
func (h *Handler) HandleScheduleStart(c *fiber.Ctx) error {
	var body scheduleRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if !h.engine.StartSchedule(body.IntervalMinutes) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "interval must be at least 1 minute"})
	}
	return c.JSON(fiber.Map{"scheduled": true, "interval_minutes": body.IntervalMinutes})
}

// HandleScheduleStop stops scheduled runs.
// @Summary Stop the sync schedule
// @Tags sync
// @Produce json
// @Success 200 {object} map[string]bool
// @Router /sync/schedule/stop [post]
func (h *Handler) HandleScheduleStop(c *fiber.Ctx) error {
	h.engine.StopSchedule()
	return c.JSON(fiber.Map{"scheduled": false})
}

// HandleClearCache drops cached remote responses.
// @Summary Clear remote caches
// @Tags sync
// @Produce json
// @Success 204 "No Content"
// @Router /sync/cache/clear [post]
func (h *Handler) HandleClearCache(c *fiber.Ctx) error {
	h.engine.ClearCaches()
	return c.SendStatus(fiber.StatusNoContent)
}
