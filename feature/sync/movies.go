package sync

import (
	"context"

	"media-janitor/core/remote"
	catalogmodels "media-janitor/feature/catalog/models"
)

const sourceRadarr = "radarr"

// syncMovies pulls the full Radarr listing and upserts it into the catalog.
func (e *Engine) syncMovies(ctx context.Context) sourceResult {
	res := sourceResult{
		source: sourceRadarr,
		kind:   catalogmodels.KindMovie,
		seen:   make(map[string]struct{}),
	}
	e.bus.Publish(Event{Type: EventSourceStart, Source: sourceRadarr})

	movies, err := e.radarr.Movies(ctx)
	if err != nil {
		res.err = err
		return res
	}

	entries := make([]catalogmodels.Entry, 0, len(movies))
	for i := range movies {
		entry := movieEntry(&movies[i])
		if entry.Path == "" {
			continue
		}
		entries = append(entries, entry)
		res.seen[entry.Path] = struct{}{}
	}

	if err := e.store.BatchUpsert(ctx, entries); err != nil {
		res.err = err
		return res
	}

	res.synced = len(entries)
	e.bus.Publish(Event{Type: EventProgress, Source: sourceRadarr, Count: res.synced})
	return res
}

// movieEntry maps one Radarr movie onto a catalog entry. The file path is
// the identity when a file exists; fileless movies fall back to the movie
// directory and carry the "missing" download status so rules can target them.
func movieEntry(m *remote.Movie) catalogmodels.Entry {
	entry := catalogmodels.Entry{
		Path:           m.Path,
		Title:          m.Title,
		Kind:           catalogmodels.KindMovie,
		AddedAt:        m.Added,
		Rating:         bestRating(m.Ratings),
		Monitored:      m.Monitored,
		DownloadStatus: "missing",
		RadarrID:       m.ID,
		Tags:           tagLabels(m.Tags),
		Extra: catalogmodels.Extra{
			TmdbID: m.TmdbID,
			ImdbID: m.ImdbID,
		},
	}

	if m.MovieFile != nil {
		file := m.MovieFile
		entry.Path = file.Path
		entry.SizeBytes = file.Size
		entry.SourceFileID = file.ID
		entry.DownloadStatus = "downloaded"
		entry.Quality = file.Quality.Quality.Name
		entry.Resolution = qualityResolution(file.Quality, file.MediaInfo)
		entry.Codec = file.MediaInfo.VideoCodec
		entry.DurationSec = parseRunTime(file.MediaInfo.RunTime)
		entry.Extra.DynamicRange = file.MediaInfo.VideoDynamicRange
		if !file.DateAdded.IsZero() {
			entry.AddedAt = file.DateAdded
		}
	}

	return entry
}
