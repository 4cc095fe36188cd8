package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"sync/atomic"
	"time"

	"media-janitor/core/remote"
	"media-janitor/core/sched"
	"media-janitor/feature/catalog"
	catalogmodels "media-janitor/feature/catalog/models"
	"media-janitor/feature/deletion"
	"media-janitor/feature/sync/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrSyncRunning indicates a reconciliation run is already in flight.
	ErrSyncRunning = errors.New("sync: run already in progress")

	// ErrNoSources indicates no remote source is configured at all.
	ErrNoSources = errors.New("sync: no sources configured")
)

// Engine reconciles the catalog against the configured sources: it pulls the
// full listings, upserts them by path, removes orphans per source, and merges
// watch history on top. Sources sync concurrently and fail independently; one
// broken service degrades the run to partial instead of aborting it.
type Engine struct {
	db        *gorm.DB
	store     *catalog.Store
	deletions *deletion.Workflow
	radarr    *remote.RadarrClient
	sonarr    *remote.SonarrClient
	tautulli  *remote.TautulliClient
	bus       *Bus
	logger    *zap.Logger

	// concurrency bounds the per-series episode file fetches.
	concurrency int

	running atomic.Bool
	timer   *sched.Timer

	// now is injectable for tests.
	now func() time.Time
}

// NewEngine creates the reconciliation engine. Any of the remote clients may
// be nil; their sources are skipped.
func NewEngine(db *gorm.DB, store *catalog.Store, deletions *deletion.Workflow, radarr *remote.RadarrClient, sonarr *remote.SonarrClient, tautulli *remote.TautulliClient, concurrency int, logger *zap.Logger) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	e := &Engine{
		db:          db,
		store:       store,
		deletions:   deletions,
		radarr:      radarr,
		sonarr:      sonarr,
		tautulli:    tautulli,
		bus:         NewBus(),
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}
	e.timer = sched.NewTimer(func() {
		if _, err := e.Run(context.Background()); err != nil && !errors.Is(err, ErrSyncRunning) {
			logger.Error("Scheduled sync failed", zap.Error(err))
		}
	})
	return e
}

// Bus exposes the event bus for progress subscribers.
func (e *Engine) Bus() *Bus {
	return e.bus
}

// sourceResult is the in-flight outcome of one source before orphan cleanup.
type sourceResult struct {
	source string
	kind   catalogmodels.Kind
	seen   map[string]struct{}
	synced int
	err    error
}

// Run performs one full reconciliation. Only one run executes at a time;
// overlapping calls fail fast with ErrSyncRunning.
func (e *Engine) Run(ctx context.Context) (*models.Run, error) {
	if e.radarr == nil && e.sonarr == nil && e.tautulli == nil {
		return nil, ErrNoSources
	}
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrSyncRunning
	}
	defer e.running.Store(false)

	// Each configured source is one progress step, as is the history merge.
	steps := 0
	if e.radarr != nil {
		steps++
	}
	if e.sonarr != nil {
		steps++
	}
	if e.tautulli != nil {
		steps++
	}

	run := &models.Run{StartedAt: e.now(), Status: models.RunRunning}
	if err := e.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	e.bus.Publish(Event{Type: EventSyncStart})

	failed := e.syncSources(ctx, run, steps)
	listed := len(run.Details.Sources)

	if e.tautulli != nil {
		merged, skipped, watermark, err := e.syncHistory(ctx, e.historyWatermark(ctx))
		run.Details.HistoryMerged = merged
		run.Details.HistorySkipped = skipped
		run.Details.HistoryWatermark = watermark
		if err != nil {
			// Watch history is an overlay; its failure never fails the run.
			run.Details.HistoryError = err.Error()
			e.logger.Warn("Watch history sync failed", zap.Error(err))
		}
	}

	switch {
	case listed > 0 && failed == listed:
		run.Status = models.RunFailed
		e.bus.Publish(Event{Type: EventSyncError})
	case failed > 0:
		run.Status = models.RunPartial
		e.bus.Publish(Event{Type: EventSyncComplete})
	default:
		run.Status = models.RunCompleted
		e.bus.Publish(Event{Type: EventSyncComplete})
	}

	run.Progress = 100
	finished := e.now()
	run.FinishedAt = &finished
	if err := e.db.WithContext(ctx).Save(run).Error; err != nil {
		return nil, err
	}

	e.logger.Info("Sync run finished",
		zap.Uint("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("sources", listed),
		zap.Int("history_merged", run.Details.HistoryMerged),
	)
	return run, nil
}

// syncSources pulls every configured source concurrently and returns the
// number of failed sources. Each source writes its report and the overall
// progress back to the run row as it moves through its phases, so a poller
// watching the latest run sees progress while the run is live.
func (e *Engine) syncSources(ctx context.Context, run *models.Run, steps int) int {
	var wg stdsync.WaitGroup
	var mu stdsync.Mutex
	var done, failed int

	// checkpoint persists the run row; callers hold mu.
	checkpoint := func() {
		if err := e.db.WithContext(ctx).Save(run).Error; err != nil {
			e.logger.Warn("Failed to checkpoint sync run", zap.Error(err))
		}
	}

	runSource := func(name string, fn func(context.Context) sourceResult) {
		mu.Lock()
		idx := len(run.Details.Sources)
		run.Details.Sources = append(run.Details.Sources, models.SourceReport{Source: name})
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()

			res := fn(ctx)
			report := models.SourceReport{Source: res.source, Synced: res.synced}

			if res.err != nil {
				report.Error = res.err.Error()
			} else {
				// Listing and upsert are done, the orphan scan is ahead.
				report.Progress = 60
				mu.Lock()
				run.Details.Sources[idx] = report
				checkpoint()
				mu.Unlock()

				// Orphan cleanup only runs for a source that listed
				// successfully; a failed listing must not look like a mass
				// removal upstream.
				removed, preserved, err := e.cleanupOrphans(ctx, res.kind, res.seen)
				if err != nil {
					report.Error = err.Error()
				} else {
					report.OrphansRemoved = removed
					report.OrphansPreserved = preserved
				}
			}

			report.Progress = 100
			if report.Error != "" {
				e.logger.Warn("Source sync failed", zap.String("source", res.source), zap.String("error", report.Error))
				e.bus.Publish(Event{Type: EventSourceError, Source: res.source, Message: report.Error})
			} else {
				e.bus.Publish(Event{Type: EventSourceDone, Source: res.source, Count: res.synced})
			}

			mu.Lock()
			run.Details.Sources[idx] = report
			if report.Error != "" {
				failed++
			}
			done++
			run.Progress = done * 100 / steps
			checkpoint()
			mu.Unlock()
		}()
	}

	if e.radarr != nil {
		runSource(sourceRadarr, e.syncMovies)
	}
	if e.sonarr != nil {
		runSource(sourceSonarr, e.syncShows)
	}
	wg.Wait()

	return failed
}

// historyWatermark recovers the newest merged history timestamp from prior
// runs. Details live in a JSON column, so recent runs are scanned in Go.
func (e *Engine) historyWatermark(ctx context.Context) int64 {
	runs, err := e.Runs(ctx, 50)
	if err != nil {
		e.logger.Warn("Failed to load history watermark, merging from scratch", zap.Error(err))
		return 0
	}
	var watermark int64
	for i := range runs {
		if runs[i].Details.HistoryWatermark > watermark {
			watermark = runs[i].Details.HistoryWatermark
		}
	}
	return watermark
}

// Latest returns the most recent run, or nil when none exist.
func (e *Engine) Latest(ctx context.Context) (*models.Run, error) {
	var run models.Run
	err := e.db.WithContext(ctx).Order("id DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Runs returns recent runs, newest first.
func (e *Engine) Runs(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.Run
	err := e.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// Running reports whether a run is in flight.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// StartSchedule begins scheduled runs at the given interval in minutes.
func (e *Engine) StartSchedule(intervalMinutes int) bool {
	return e.timer.Start(time.Duration(intervalMinutes) * time.Minute)
}

// StopSchedule clears the sync timer.
func (e *Engine) StopSchedule() {
	e.timer.Stop()
}

// ScheduleStatus reports the timer state.
func (e *Engine) ScheduleStatus() (bool, time.Duration) {
	return e.timer.Running()
}

// ClearCaches drops every cached remote response so the next run hits the
// services fresh.
func (e *Engine) ClearCaches() {
	if e.radarr != nil {
		e.radarr.ClearCache()
	}
	if e.sonarr != nil {
		e.sonarr.ClearCache()
	}
	if e.tautulli != nil {
		e.tautulli.ClearCache()
	}
}
