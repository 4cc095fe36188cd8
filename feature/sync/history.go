package sync

import (
	"context"
	"errors"
	"time"

	"media-janitor/feature/catalog"
)

// historyPageSize is the Tautulli page size used while draining the feed.
const historyPageSize = 200

// watchedThreshold is the playback percentage at which one session counts
// as a full watch.
const watchedThreshold = 85

// syncHistory drains the Tautulli history feed, aggregates rows newer than
// the watermark per file, and merges the aggregates onto matching catalog
// entries. History rows whose file matches no entry are counted as skipped,
// never created. Returns the new watermark alongside the counters.
func (e *Engine) syncHistory(ctx context.Context, since int64) (merged, skipped int, watermark int64, err error) {
	aggregates := make(map[string]*catalog.WatchStats)
	watermark = since

	start := 0
	for {
		items, total, err := e.tautulli.History(ctx, start, historyPageSize)
		if err != nil {
			return 0, 0, since, err
		}
		if len(items) == 0 {
			break
		}

		for i := range items {
			item := &items[i]
			if item.File == "" || item.Date <= since {
				continue
			}
			if item.Date > watermark {
				watermark = item.Date
			}

			stats, ok := aggregates[item.File]
			if !ok {
				stats = &catalog.WatchStats{}
				aggregates[item.File] = stats
			}

			stats.Views++
			stats.WatchTimeSec += item.PlayDuration
			if item.PercentComplete >= watchedThreshold || item.WatchedStatus >= 1 {
				stats.Watched = true
			}
			if item.User != "" {
				stats.Viewers = append(stats.Viewers, item.User)
			}
			if item.Date > 0 {
				playedAt := time.Unix(item.Date, 0)
				if playedAt.After(stats.LastPlayedAt) {
					stats.LastPlayedAt = playedAt
				}
			}
		}

		start += len(items)
		if start >= total {
			break
		}
	}

	for path, stats := range aggregates {
		mergeErr := e.store.MergeWatchStats(ctx, path, *stats)
		if errors.Is(mergeErr, catalog.ErrNotFound) {
			skipped++
			continue
		}
		if mergeErr != nil {
			return merged, skipped, watermark, mergeErr
		}
		merged++
	}

	return merged, skipped, watermark, nil
}
