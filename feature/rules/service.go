package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"media-janitor/core/sched"
	"media-janitor/feature/catalog"
	catalogmodels "media-janitor/feature/catalog/models"
	"media-janitor/feature/deletion"
	"media-janitor/feature/rules/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the rule does not exist.
	ErrNotFound = errors.New("rules: rule not found")

	// ErrInvalidRule indicates the rule definition failed validation.
	ErrInvalidRule = errors.New("rules: invalid rule")
)

// PreviewReport describes what a rule would match right now, without
// creating any deletion requests.
type PreviewReport struct {
	Evaluated    int64                              `json:"evaluated"`
	Matched      int64                              `json:"matched"`
	TotalBytes   int64                              `json:"total_bytes"`
	ByKind       map[catalogmodels.Kind]int64       `json:"by_kind"`
	ByWatchState map[catalogmodels.WatchState]int64 `json:"by_watch_state"`
	ExcludedBy   map[models.FilterName]int64        `json:"excluded_by"`
	Entries      []catalogmodels.Entry              `json:"entries"`
}

// RunReport summarizes one rule run.
type RunReport struct {
	RuleID    uint      `json:"rule_id"`
	RuleName  string    `json:"rule_name"`
	Evaluated int       `json:"evaluated"`
	Matched   int       `json:"matched"`
	Proposed  int       `json:"proposed"`
	RanAt     time.Time `json:"ran_at"`
}

// Service owns rule definitions and their execution: CRUD with validation,
// dry-run previews, and runs that feed matches into the deletion workflow.
// Rules with a schedule get their own interval timer.
type Service struct {
	db        *gorm.DB
	engine    *Engine
	store     *catalog.Store
	deletions *deletion.Workflow
	logger    *zap.Logger

	mu     sync.Mutex
	timers map[uint]*sched.Timer

	// now is injectable for tests.
	now func() time.Time
}

// NewService creates the rules service.
func NewService(db *gorm.DB, store *catalog.Store, deletions *deletion.Workflow, logger *zap.Logger) *Service {
	return &Service{
		db:        db,
		engine:    NewEngine(),
		store:     store,
		deletions: deletions,
		logger:    logger,
		timers:    make(map[uint]*sched.Timer),
		now:       time.Now,
	}
}

// Engine exposes the evaluation engine for diagnostics endpoints.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Create validates and stores a new rule, scheduling it when configured.
func (s *Service) Create(ctx context.Context, rule *models.Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return err
	}
	s.reschedule(rule)
	return nil
}

// Update validates and stores changes to an existing rule. The schedule is
// re-armed to reflect the new interval or enabled flag.
func (s *Service) Update(ctx context.Context, id uint, rule *models.Rule) (*models.Rule, error) {
	if err := validateRule(rule); err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Name = rule.Name
	existing.Enabled = rule.Enabled
	existing.Kinds = rule.Kinds
	existing.Filters = rule.Filters
	existing.Strategy = rule.Strategy
	existing.ScheduleMinutes = rule.ScheduleMinutes

	if err := s.db.WithContext(ctx).Save(existing).Error; err != nil {
		return nil, err
	}
	s.reschedule(existing)
	return existing, nil
}

// Delete removes a rule along with its deletion requests and history.
func (s *Service) Delete(ctx context.Context, id uint) error {
	rule, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	s.stopSchedule(id)

	if err := s.deletions.DeleteByRule(ctx, id); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(rule).Error; err != nil {
		return err
	}

	s.logger.Info("Deleted rule", zap.Uint("rule_id", id), zap.String("name", rule.Name))
	return nil
}

// Get returns one rule by id.
func (s *Service) Get(ctx context.Context, id uint) (*models.Rule, error) {
	var rule models.Rule
	err := s.db.WithContext(ctx).First(&rule, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// List returns all rules ordered by name.
func (s *Service) List(ctx context.Context) ([]models.Rule, error) {
	var rules []models.Rule
	if err := s.db.WithContext(ctx).Order("name").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// Preview evaluates a stored rule against the current catalog without
// touching the deletion workflow.
func (s *Service) Preview(ctx context.Context, id uint, limit int) (*PreviewReport, error) {
	rule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.PreviewRule(ctx, rule, limit)
}

// PreviewRule evaluates a candidate rule definition that need not be stored,
// so edits can be dry-run before saving. limit caps the returned entry
// sample; counters always cover the full catalog.
func (s *Service) PreviewRule(ctx context.Context, rule *models.Rule, limit int) (*PreviewReport, error) {
	if err := validateRule(rule); err != nil {
		return nil, err
	}

	entries, _, err := s.store.List(ctx, catalog.Filter{})
	if err != nil {
		return nil, err
	}

	report := &PreviewReport{
		ByKind:       make(map[catalogmodels.Kind]int64),
		ByWatchState: make(map[catalogmodels.WatchState]int64),
		ExcludedBy:   make(map[models.FilterName]int64),
	}

	for i := range entries {
		entry := &entries[i]
		report.Evaluated++

		decision := s.engine.Evaluate(entry, rule)
		if !decision.Included {
			report.ExcludedBy[decision.ExcludedBy]++
			continue
		}

		report.Matched++
		report.TotalBytes += entry.SizeBytes
		report.ByKind[entry.Kind]++
		report.ByWatchState[entry.WatchState()]++
		if limit <= 0 || len(report.Entries) < limit {
			report.Entries = append(report.Entries, *entry)
		}
	}

	return report, nil
}

// Run evaluates the rule and proposes a deletion request for every match,
// then stamps the rule's last-run time. Disabled rules refuse to run.
func (s *Service) Run(ctx context.Context, id uint) (*RunReport, error) {
	rule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rule.Enabled {
		return nil, fmt.Errorf("%w: rule %q is disabled", ErrInvalidRule, rule.Name)
	}

	entries, _, err := s.store.List(ctx, catalog.Filter{})
	if err != nil {
		return nil, err
	}

	var matched []catalogmodels.Entry
	for i := range entries {
		if s.engine.Evaluate(&entries[i], rule).Included {
			matched = append(matched, entries[i])
		}
	}

	proposed, err := s.deletions.Propose(ctx, rule, matched)
	if err != nil {
		return nil, err
	}

	ranAt := s.now()
	if err := s.db.WithContext(ctx).Model(rule).Update("last_run_at", ranAt).Error; err != nil {
		return nil, err
	}

	s.logger.Info("Rule run finished",
		zap.String("rule", rule.Name),
		zap.Int("evaluated", len(entries)),
		zap.Int("matched", len(matched)),
		zap.Int("proposed", proposed),
	)

	return &RunReport{
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Evaluated: len(entries),
		Matched:   len(matched),
		Proposed:  proposed,
		RanAt:     ranAt,
	}, nil
}

// StartSchedules arms a timer for every enabled rule with a schedule.
// Called once on boot.
func (s *Service) StartSchedules(ctx context.Context) error {
	rules, err := s.List(ctx)
	if err != nil {
		return err
	}
	for i := range rules {
		s.reschedule(&rules[i])
	}
	return nil
}

// StopSchedules clears every rule timer. Called on shutdown.
func (s *Service) StopSchedules() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// reschedule arms, re-arms or disarms the timer for one rule.
func (s *Service) reschedule(rule *models.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.timers[rule.ID]
	if !rule.Enabled || rule.ScheduleMinutes <= 0 {
		if ok {
			timer.Stop()
			delete(s.timers, rule.ID)
		}
		return
	}

	if !ok {
		id := rule.ID
		timer = sched.NewTimer(func() {
			if _, err := s.Run(context.Background(), id); err != nil {
				s.logger.Error("Scheduled rule run failed", zap.Uint("rule_id", id), zap.Error(err))
			}
		})
		s.timers[rule.ID] = timer
	}
	timer.Start(time.Duration(rule.ScheduleMinutes) * time.Minute)
}

func (s *Service) stopSchedule(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
}

// validateRule rejects rules that could never run safely.
func validateRule(rule *models.Rule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}

	switch rule.Strategy.Movie {
	case "", models.StrategyFileOnly, models.StrategyRemoveMovie:
	default:
		return fmt.Errorf("%w: unknown movie strategy %q", ErrInvalidRule, rule.Strategy.Movie)
	}

	switch rule.Strategy.Show {
	case "", models.StrategyFileOnly, models.StrategyUnmonitor, models.StrategyRemoveSeries:
	default:
		return fmt.Errorf("%w: unknown show strategy %q", ErrInvalidRule, rule.Strategy.Show)
	}

	for _, kind := range rule.Kinds {
		switch kind {
		case catalogmodels.KindMovie, catalogmodels.KindShow, catalogmodels.KindOther:
		default:
			return fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, kind)
		}
	}

	f := rule.Filters
	if f.Age.Enabled && f.Age.MinDays < 0 {
		return fmt.Errorf("%w: age min_days must not be negative", ErrInvalidRule)
	}
	if f.Size.Enabled && f.Size.MinGB > 0 && f.Size.MaxGB > 0 && f.Size.MinGB > f.Size.MaxGB {
		return fmt.Errorf("%w: size band is inverted", ErrInvalidRule)
	}
	if f.Quality.Enabled && f.Quality.MinOrdinal > 0 && f.Quality.MaxOrdinal > 0 && f.Quality.MinOrdinal > f.Quality.MaxOrdinal {
		return fmt.Errorf("%w: quality band is inverted", ErrInvalidRule)
	}
	if f.WatchStatus.Enabled {
		switch f.WatchStatus.Status {
		case catalogmodels.WatchStateWatched, catalogmodels.WatchStateUnwatched, catalogmodels.WatchStateInProgress:
		default:
			return fmt.Errorf("%w: unknown watch status %q", ErrInvalidRule, f.WatchStatus.Status)
		}
	}

	return nil
}
