package deletion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"media-janitor/core/remote"
	"media-janitor/core/sched"
	"media-janitor/feature/deletion/models"

	"go.uber.org/zap"
)

// ErrExecutionRunning indicates a deletion batch is already executing.
var ErrExecutionRunning = errors.New("deletion: execution batch already running")

// ErrNotDue indicates the request is approved but scheduled for the future.
var ErrNotDue = errors.New("deletion: request not due yet")

// ExecutionReport summarizes one execution pass.
type ExecutionReport struct {
	StartedAt time.Time `json:"started_at"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
}

// Service orchestrates the deletion workflow: it executes approved requests
// through the Executor, guards against overlapping batches, owns the
// execution scheduler, and pokes the library server after successful passes.
type Service struct {
	workflow *Workflow
	executor *Executor
	archiver *Archiver
	plex     *remote.PlexClient
	section  string
	logger   *zap.Logger

	running atomic.Bool
	timer   *sched.Timer

	mu         sync.Mutex
	lastReport *ExecutionReport
}

// NewService creates the deletion service. archiver and plex may be nil.
func NewService(workflow *Workflow, executor *Executor, archiver *Archiver, plex *remote.PlexClient, plexSection string, logger *zap.Logger) *Service {
	s := &Service{
		workflow: workflow,
		executor: executor,
		archiver: archiver,
		plex:     plex,
		section:  plexSection,
		logger:   logger,
	}
	s.timer = sched.NewTimer(func() {
		if _, err := s.ExecuteDue(context.Background()); err != nil && !errors.Is(err, ErrExecutionRunning) {
			logger.Error("Scheduled execution failed", zap.Error(err))
		}
	})
	return s
}

// Workflow exposes the underlying workflow for handlers and other features.
func (s *Service) Workflow() *Workflow {
	return s.workflow
}

// ExecuteOne executes a single approved, due request immediately.
func (s *Service) ExecuteOne(ctx context.Context, id uint) (*models.Request, error) {
	req, err := s.workflow.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusApproved {
		return nil, fmt.Errorf("%w: cannot execute request %d in status %s", ErrInvalidTransition, id, req.Status)
	}
	if req.ScheduledFor != nil && req.ScheduledFor.After(s.workflow.now()) {
		return nil, fmt.Errorf("%w: request %d scheduled for %s", ErrNotDue, id, req.ScheduledFor)
	}

	s.executeRequest(ctx, req)
	s.refreshLibrary(ctx)
	return s.workflow.Get(ctx, id)
}

// ExecuteDue executes every approved request whose scheduled-for time has
// passed. Only one batch runs at a time; overlapping calls fail fast.
// Per-request failures are recorded on the request and do not abort the pass.
func (s *Service) ExecuteDue(ctx context.Context) (*ExecutionReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrExecutionRunning
	}
	defer s.running.Store(false)

	due, err := s.workflow.Due(ctx)
	if err != nil {
		return nil, err
	}

	report := &ExecutionReport{StartedAt: s.workflow.now(), Total: len(due)}
	for i := range due {
		if s.executeRequest(ctx, &due[i]) {
			report.Completed++
		} else {
			report.Failed++
		}
	}

	if report.Completed > 0 {
		s.refreshLibrary(ctx)
	}

	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()

	s.logger.Info("Execution pass finished",
		zap.Int("total", report.Total),
		zap.Int("completed", report.Completed),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// executeRequest runs one request and finalizes its state. Returns true on
// success. Execution never retries within one pass.
func (s *Service) executeRequest(ctx context.Context, req *models.Request) bool {
	results, bytesFreed, err := s.executor.Execute(ctx, req)
	if err != nil {
		s.logger.Warn("Deletion execution failed",
			zap.Uint("request_id", req.ID),
			zap.String("path", req.Entry.Path),
			zap.Error(err),
		)
		if markErr := s.workflow.MarkFailed(ctx, req, err); markErr != nil {
			s.logger.Error("Failed to record execution failure", zap.Uint("request_id", req.ID), zap.Error(markErr))
		}
		return false
	}

	if markErr := s.workflow.MarkCompleted(ctx, req, results, bytesFreed); markErr != nil {
		s.logger.Error("Failed to record execution success", zap.Uint("request_id", req.ID), zap.Error(markErr))
		return false
	}
	return true
}

// ExecutionStatus reports whether a batch is running and the last report.
func (s *Service) ExecutionStatus() (bool, *ExecutionReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running.Load(), s.lastReport
}

// StartSchedule begins scheduled execution at the given interval in minutes.
func (s *Service) StartSchedule(intervalMinutes int) bool {
	return s.timer.Start(time.Duration(intervalMinutes) * time.Minute)
}

// StopSchedule clears the execution timer.
func (s *Service) StopSchedule() {
	s.timer.Stop()
}

// ScheduleStatus reports the timer state.
func (s *Service) ScheduleStatus() (bool, time.Duration) {
	return s.timer.Running()
}

// ClearHistory archives the deletion history when archive storage is
// configured, then removes it. Returns the removed count and the archive
// object name (empty when archiving is off).
func (s *Service) ClearHistory(ctx context.Context) (int64, string, error) {
	objectName := ""

	if s.archiver != nil {
		records, _, err := s.workflow.History(ctx, 0, 0)
		if err != nil {
			return 0, "", err
		}
		if len(records) > 0 {
			objectName, err = s.archiver.Archive(ctx, records)
			if err != nil {
				return 0, "", fmt.Errorf("archive history before clear: %w", err)
			}
		}
	}

	removed, err := s.workflow.ClearHistory(ctx)
	return removed, objectName, err
}

func (s *Service) refreshLibrary(ctx context.Context) {
	if s.plex == nil || s.section == "" {
		return
	}
	if err := s.plex.RefreshSection(ctx, s.section); err != nil {
		// Refresh is best effort; the next scheduled scan catches up.
		s.logger.Warn("Plex section refresh failed", zap.String("section", s.section), zap.Error(err))
	}
}
