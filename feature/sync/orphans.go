package sync

import (
	"context"

	catalogmodels "media-janitor/feature/catalog/models"

	"go.uber.org/zap"
)

// cleanupOrphans removes catalog entries of one kind that the source no
// longer lists. Non-completed deletion requests for an orphan are dropped
// first; an entry with a completed request in its past is preserved so the
// deletion history keeps a live anchor.
func (e *Engine) cleanupOrphans(ctx context.Context, kind catalogmodels.Kind, seen map[string]struct{}) (removed, preserved int, err error) {
	entries, err := e.store.EntriesByKind(ctx, kind)
	if err != nil {
		return 0, 0, err
	}

	for i := range entries {
		entry := &entries[i]
		if _, ok := seen[entry.Path]; ok {
			continue
		}

		if err := e.deletions.NonCompletedByEntry(ctx, entry.ID); err != nil {
			return removed, preserved, err
		}

		hasCompleted, err := e.deletions.HasCompletedByEntry(ctx, entry.ID)
		if err != nil {
			return removed, preserved, err
		}
		if hasCompleted {
			preserved++
			continue
		}

		if err := e.store.DeleteByID(ctx, entry.ID); err != nil {
			return removed, preserved, err
		}
		removed++
		e.logger.Debug("Removed orphaned entry",
			zap.String("path", entry.Path),
			zap.String("kind", string(kind)),
		)
	}

	return removed, preserved, nil
}
