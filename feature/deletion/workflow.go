package deletion

import (
	"context"
	"errors"
	"fmt"
	"time"

	catalogmodels "media-janitor/feature/catalog/models"
	"media-janitor/feature/deletion/models"
	rulesmodels "media-janitor/feature/rules/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the request does not exist.
	ErrNotFound = errors.New("deletion: request not found")

	// ErrInvalidTransition indicates the requested state change is not
	// allowed from the request's current status.
	ErrInvalidTransition = errors.New("deletion: invalid status transition")
)

// Workflow drives pending deletion requests through their state machine:
// pending -> approved/cancelled, approved -> cancelled/completed/failed.
//
// Races between a human operator and the scheduled executor are resolved by
// conditional updates on the current status (last write wins); there is no
// queue or lock beyond that.
type Workflow struct {
	db     *gorm.DB
	logger *zap.Logger

	// now is injectable for tests.
	now func() time.Time
}

// NewWorkflow creates a deletion workflow over the given connection.
func NewWorkflow(db *gorm.DB, logger *zap.Logger) *Workflow {
	return &Workflow{db: db, logger: logger, now: time.Now}
}

// Propose creates one pending request per included entry, unless a
// non-terminal request already exists for the (entry, rule) pair.
// Protected entries are skipped outright. Returns the number of requests
// actually created, so a re-run reports zero for already-proposed entries.
func (w *Workflow) Propose(ctx context.Context, rule *rulesmodels.Rule, entries []catalogmodels.Entry) (int, error) {
	created := 0

	for i := range entries {
		entry := &entries[i]
		if entry.Protected {
			continue
		}

		var existing int64
		err := w.db.WithContext(ctx).Model(&models.Request{}).
			Where("entry_id = ? AND rule_id = ? AND status IN ?",
				entry.ID, rule.ID, []models.Status{models.StatusPending, models.StatusApproved}).
			Count(&existing).Error
		if err != nil {
			return created, err
		}
		if existing > 0 {
			continue
		}

		req := models.Request{
			RuleID:    rule.ID,
			EntryID:   entry.ID,
			SizeBytes: entry.SizeBytes,
			Entry:     models.EntrySnapshot(*entry),
			Rule:      models.RuleSnapshot(*rule),
			Status:    models.StatusPending,
		}
		if err := w.db.WithContext(ctx).Create(&req).Error; err != nil {
			return created, err
		}
		created++
	}

	return created, nil
}

// Approve transitions a pending request to approved, recording the approver
// identity, an optional reason and the scheduled-for time (defaults to now).
func (w *Workflow) Approve(ctx context.Context, id uint, approver, reason string, scheduledFor *time.Time) (*models.Request, error) {
	when := w.now()
	if scheduledFor != nil {
		when = *scheduledFor
	}

	res := w.db.WithContext(ctx).Model(&models.Request{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(map[string]any{
			"status":         models.StatusApproved,
			"approved_by":    approver,
			"approve_reason": reason,
			"scheduled_for":  when,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, w.transitionError(ctx, id, models.StatusApproved)
	}
	return w.Get(ctx, id)
}

// Cancel transitions a pending or approved request to cancelled, recording
// the canceller identity and reason. Terminal requests are rejected.
func (w *Workflow) Cancel(ctx context.Context, id uint, canceller, reason string) (*models.Request, error) {
	res := w.db.WithContext(ctx).Model(&models.Request{}).
		Where("id = ? AND status IN ?", id, []models.Status{models.StatusPending, models.StatusApproved}).
		Updates(map[string]any{
			"status":        models.StatusCancelled,
			"cancelled_by":  canceller,
			"cancel_reason": reason,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, w.transitionError(ctx, id, models.StatusCancelled)
	}
	return w.Get(ctx, id)
}

// BulkApprove applies Approve semantics to the requested ID set in one
// transaction, touching only requests currently pending. Returns how many
// were updated and how many were skipped.
func (w *Workflow) BulkApprove(ctx context.Context, ids []uint, approver, reason string, scheduledFor *time.Time) (updated, skipped int, err error) {
	when := w.now()
	if scheduledFor != nil {
		when = *scheduledFor
	}

	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Request{}).
			Where("id IN ? AND status = ?", ids, models.StatusPending).
			Updates(map[string]any{
				"status":         models.StatusApproved,
				"approved_by":    approver,
				"approve_reason": reason,
				"scheduled_for":  when,
			})
		if res.Error != nil {
			return res.Error
		}
		updated = int(res.RowsAffected)
		skipped = len(ids) - updated
		return nil
	})
	return updated, skipped, err
}

// BulkCancel applies Cancel semantics to the requested ID set in one
// transaction, touching only pending or approved requests.
func (w *Workflow) BulkCancel(ctx context.Context, ids []uint, canceller, reason string) (updated, skipped int, err error) {
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Request{}).
			Where("id IN ? AND status IN ?", ids, []models.Status{models.StatusPending, models.StatusApproved}).
			Updates(map[string]any{
				"status":        models.StatusCancelled,
				"cancelled_by":  canceller,
				"cancel_reason": reason,
			})
		if res.Error != nil {
			return res.Error
		}
		updated = int(res.RowsAffected)
		skipped = len(ids) - updated
		return nil
	})
	return updated, skipped, err
}

// Get returns one request by id.
func (w *Workflow) Get(ctx context.Context, id uint) (*models.Request, error) {
	var req models.Request
	err := w.db.WithContext(ctx).First(&req, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ListFilter selects requests in List.
type ListFilter struct {
	Status models.Status
	RuleID uint
	Limit  int
	Offset int
}

// List returns requests matching the filter plus the total match count.
func (w *Workflow) List(ctx context.Context, f ListFilter) ([]models.Request, int64, error) {
	q := w.db.WithContext(ctx).Model(&models.Request{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.RuleID != 0 {
		q = q.Where("rule_id = ?", f.RuleID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var reqs []models.Request
	if err := q.Order("id DESC").Find(&reqs).Error; err != nil {
		return nil, 0, err
	}
	return reqs, total, nil
}

// Due returns approved requests whose scheduled-for time has passed.
func (w *Workflow) Due(ctx context.Context) ([]models.Request, error) {
	var reqs []models.Request
	err := w.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", models.StatusApproved, w.now()).
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

// MarkCompleted finalizes a successful execution: terminal status, execution
// results, a success history record, and removal of the live catalog entry.
func (w *Workflow) MarkCompleted(ctx context.Context, req *models.Request, results []string, bytesFreed int64) error {
	completedAt := w.now()

	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Request{}).
			Where("id = ? AND status = ?", req.ID, models.StatusApproved).
			Updates(map[string]any{
				"status":       models.StatusCompleted,
				"completed_at": completedAt,
				"results":      catalogmodels.StringList(results),
				"error":        "",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: request %d is not approved", ErrInvalidTransition, req.ID)
		}

		record := models.HistoryRecord{
			RuleID:     req.RuleID,
			RuleName:   req.Rule.Name,
			EntryID:    req.EntryID,
			EntryPath:  req.Entry.Path,
			Files:      catalogmodels.StringList{req.Entry.Path},
			BytesFreed: bytesFreed,
			Success:    true,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		// The file is gone; drop the live entry. The history record above
		// keeps reporting coherent.
		return tx.Delete(&catalogmodels.Entry{}, req.EntryID).Error
	})
}

// MarkFailed finalizes a failed execution: failed status, the error message,
// and a success=false history record with zero bytes freed. The request
// stays failed until re-approved or handled manually.
func (w *Workflow) MarkFailed(ctx context.Context, req *models.Request, execErr error) error {
	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Request{}).
			Where("id = ? AND status = ?", req.ID, models.StatusApproved).
			Updates(map[string]any{
				"status": models.StatusFailed,
				"error":  execErr.Error(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: request %d is not approved", ErrInvalidTransition, req.ID)
		}

		record := models.HistoryRecord{
			RuleID:    req.RuleID,
			RuleName:  req.Rule.Name,
			EntryID:   req.EntryID,
			EntryPath: req.Entry.Path,
			Success:   false,
			Error:     execErr.Error(),
		}
		return tx.Create(&record).Error
	})
}

// StatusSummary is the per-status aggregate for the stats endpoint.
type StatusSummary struct {
	Status     models.Status `json:"status"`
	Count      int64         `json:"count"`
	TotalBytes int64         `json:"total_bytes"`
}

// Stats returns counts and total snapshot bytes per status.
func (w *Workflow) Stats(ctx context.Context) ([]StatusSummary, error) {
	var rows []StatusSummary
	err := w.db.WithContext(ctx).Model(&models.Request{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(size_bytes), 0) AS total_bytes").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// NonCompletedByEntry removes every non-completed request for the entry.
// Orphan cleanup calls this before deciding the entry's fate; those requests
// refer to a state no longer valid upstream.
func (w *Workflow) NonCompletedByEntry(ctx context.Context, entryID uint) error {
	return w.db.WithContext(ctx).
		Where("entry_id = ? AND status <> ?", entryID, models.StatusCompleted).
		Delete(&models.Request{}).Error
}

// HasCompletedByEntry reports whether the entry has any completed request,
// i.e. deletion history that orphan cleanup must preserve.
func (w *Workflow) HasCompletedByEntry(ctx context.Context, entryID uint) (bool, error) {
	var count int64
	err := w.db.WithContext(ctx).Model(&models.Request{}).
		Where("entry_id = ? AND status = ?", entryID, models.StatusCompleted).
		Count(&count).Error
	return count > 0, err
}

// DeleteByRule removes all requests and history for a rule.
// Called when the rule itself is deleted.
func (w *Workflow) DeleteByRule(ctx context.Context, ruleID uint) error {
	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("rule_id = ?", ruleID).Delete(&models.Request{}).Error; err != nil {
			return err
		}
		return tx.Where("rule_id = ?", ruleID).Delete(&models.HistoryRecord{}).Error
	})
}

// History returns history records, newest first.
func (w *Workflow) History(ctx context.Context, limit, offset int) ([]models.HistoryRecord, int64, error) {
	var total int64
	if err := w.db.WithContext(ctx).Model(&models.HistoryRecord{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q := w.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	var records []models.HistoryRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ClearHistory removes all history records. Admin operation; callers archive
// first when archive storage is configured.
func (w *Workflow) ClearHistory(ctx context.Context) (int64, error) {
	res := w.db.WithContext(ctx).Where("1 = 1").Delete(&models.HistoryRecord{})
	return res.RowsAffected, res.Error
}

// transitionError distinguishes a missing request from an invalid source
// state once a conditional update matched no rows.
func (w *Workflow) transitionError(ctx context.Context, id uint, target models.Status) error {
	req, err := w.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: cannot move request %d from %s to %s", ErrInvalidTransition, id, req.Status, target)
}
