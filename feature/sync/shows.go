package sync

import (
	"context"
	stdsync "sync"

	"media-janitor/core/remote"
	catalogmodels "media-janitor/feature/catalog/models"

	"golang.org/x/sync/errgroup"
)

const sourceSonarr = "sonarr"

// syncShows pulls the Sonarr series listing and every series' episode files.
// Sonarr has no instance-wide file endpoint, so the per-series fetches run
// with bounded concurrency.
func (e *Engine) syncShows(ctx context.Context) sourceResult {
	res := sourceResult{
		source: sourceSonarr,
		kind:   catalogmodels.KindShow,
		seen:   make(map[string]struct{}),
	}
	e.bus.Publish(Event{Type: EventSourceStart, Source: sourceSonarr})

	series, err := e.sonarr.Series(ctx)
	if err != nil {
		res.err = err
		return res
	}

	var mu stdsync.Mutex
	var entries []catalogmodels.Entry

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.concurrency)

	for i := range series {
		sr := &series[i]
		group.Go(func() error {
			files, err := e.sonarr.EpisodeFiles(groupCtx, sr.ID)
			if err != nil {
				return err
			}

			batch := make([]catalogmodels.Entry, 0, len(files))
			for j := range files {
				entry := episodeEntry(sr, &files[j])
				if entry.Path == "" {
					continue
				}
				batch = append(batch, entry)
			}

			mu.Lock()
			entries = append(entries, batch...)
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		res.err = err
		return res
	}

	for i := range entries {
		res.seen[entries[i].Path] = struct{}{}
	}

	if err := e.store.BatchUpsert(ctx, entries); err != nil {
		res.err = err
		return res
	}

	res.synced = len(entries)
	e.bus.Publish(Event{Type: EventProgress, Source: sourceSonarr, Count: res.synced})
	return res
}

// episodeEntry maps one Sonarr episode file onto a catalog entry. The title
// is the series title; the episode identity lives in the path.
func episodeEntry(series *remote.Series, file *remote.EpisodeFile) catalogmodels.Entry {
	addedAt := file.DateAdded
	if addedAt.IsZero() {
		addedAt = series.Added
	}

	return catalogmodels.Entry{
		Path:           file.Path,
		Title:          series.Title,
		Kind:           catalogmodels.KindShow,
		SizeBytes:      file.Size,
		AddedAt:        addedAt,
		Quality:        file.Quality.Quality.Name,
		Resolution:     qualityResolution(file.Quality, file.MediaInfo),
		Codec:          file.MediaInfo.VideoCodec,
		Rating:         bestRating(series.Ratings),
		DurationSec:    parseRunTime(file.MediaInfo.RunTime),
		Monitored:      series.Monitored,
		DownloadStatus: "downloaded",
		SonarrID:       series.ID,
		SourceFileID:   file.ID,
		Tags:           tagLabels(series.Tags),
		Extra: catalogmodels.Extra{
			TvdbID:       series.TvdbID,
			ImdbID:       series.ImdbID,
			SeriesTitle:  series.Title,
			DynamicRange: file.MediaInfo.VideoDynamicRange,
		},
	}
}
