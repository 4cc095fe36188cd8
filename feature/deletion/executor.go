package deletion

import (
	"context"
	"errors"
	"fmt"
	"os"

	"media-janitor/core/remote"
	catalogmodels "media-janitor/feature/catalog/models"
	"media-janitor/feature/deletion/models"
	rulesmodels "media-janitor/feature/rules/models"

	"go.uber.org/zap"
)

// Executor carries out approved deletions by selecting a per-source
// strategy, with direct filesystem removal as the fallback when the relevant
// service is unconfigured or the entry is of no managed kind.
type Executor struct {
	radarr *remote.RadarrClient
	sonarr *remote.SonarrClient
	logger *zap.Logger

	// removeFile is injectable for tests; defaults to os.Remove.
	removeFile func(string) error
}

// NewExecutor creates an executor. Either client may be nil.
func NewExecutor(radarr *remote.RadarrClient, sonarr *remote.SonarrClient, logger *zap.Logger) *Executor {
	return &Executor{
		radarr:     radarr,
		sonarr:     sonarr,
		logger:     logger,
		removeFile: os.Remove,
	}
}

// Execute carries out one approved request according to its snapshots.
// It returns human-readable execution results and the bytes freed.
func (e *Executor) Execute(ctx context.Context, req *models.Request) ([]string, int64, error) {
	entry := catalogmodels.Entry(req.Entry)
	strategy := req.Rule.Strategy

	var results []string
	var err error

	switch entry.Kind {
	case catalogmodels.KindMovie:
		if e.radarr == nil {
			results, err = e.deleteDirect(entry.Path)
		} else {
			results, err = e.executeMovie(ctx, &entry, strategy)
		}
	case catalogmodels.KindShow:
		if e.sonarr == nil {
			results, err = e.deleteDirect(entry.Path)
		} else {
			results, err = e.executeShow(ctx, &entry, strategy)
		}
	default:
		results, err = e.deleteDirect(entry.Path)
	}

	if err != nil {
		return nil, 0, err
	}
	return results, entry.SizeBytes, nil
}

func (e *Executor) executeMovie(ctx context.Context, entry *catalogmodels.Entry, strategy rulesmodels.Strategy) ([]string, error) {
	// The snapshot must resolve to an upstream movie before any file-level
	// operation; a lookup miss is a hard failure, not a silent skip.
	movie, err := e.lookupMovie(ctx, entry)
	if err != nil {
		return nil, err
	}

	switch strategy.Movie {
	case rulesmodels.StrategyRemoveMovie:
		if err := e.radarr.DeleteMovie(ctx, movie.ID, strategy.DeleteFiles, strategy.AddImportExclusion); err != nil {
			return nil, fmt.Errorf("remove movie %q: %w", movie.Title, err)
		}
		return []string{fmt.Sprintf("removed movie %q from Radarr (deleteFiles=%t, exclusion=%t)",
			movie.Title, strategy.DeleteFiles, strategy.AddImportExclusion)}, nil

	default: // file_only
		fileID := entry.SourceFileID
		if fileID == 0 || (movie.MovieFile != nil && movie.MovieFile.ID != fileID) {
			// Stale or missing identifier; trust the fresh lookup.
			fileID = 0
			if movie.MovieFile != nil {
				fileID = movie.MovieFile.ID
			}
		}
		if fileID == 0 {
			return []string{fmt.Sprintf("movie %q has no file upstream, already removed", movie.Title)}, nil
		}
		if err := e.radarr.DeleteMovieFile(ctx, fileID); err != nil {
			if errors.Is(err, remote.ErrNotFound) {
				return []string{fmt.Sprintf("movie file %d already removed", fileID)}, nil
			}
			return nil, fmt.Errorf("delete movie file %d: %w", fileID, err)
		}
		return []string{fmt.Sprintf("deleted movie file %d (%s)", fileID, entry.Path)}, nil
	}
}

func (e *Executor) executeShow(ctx context.Context, entry *catalogmodels.Entry, strategy rulesmodels.Strategy) ([]string, error) {
	series, err := e.lookupSeries(ctx, entry)
	if err != nil {
		return nil, err
	}

	switch strategy.Show {
	case rulesmodels.StrategyRemoveSeries:
		if err := e.sonarr.DeleteSeries(ctx, series.ID, strategy.DeleteFiles, strategy.AddImportExclusion); err != nil {
			return nil, fmt.Errorf("remove series %q: %w", series.Title, err)
		}
		return []string{fmt.Sprintf("removed series %q from Sonarr (deleteFiles=%t, exclusion=%t)",
			series.Title, strategy.DeleteFiles, strategy.AddImportExclusion)}, nil

	case rulesmodels.StrategyUnmonitor:
		if err := e.sonarr.SetSeriesMonitored(ctx, series.ID, false); err != nil {
			return nil, fmt.Errorf("unmonitor series %q: %w", series.Title, err)
		}
		results := []string{fmt.Sprintf("unmonitored series %q", series.Title)}
		if strategy.DeleteFiles {
			fileResults, err := e.deleteEpisodeFile(ctx, series.ID, entry)
			if err != nil {
				return nil, err
			}
			results = append(results, fileResults...)
		}
		return results, nil

	default: // file_only
		return e.deleteEpisodeFile(ctx, series.ID, entry)
	}
}

func (e *Executor) deleteEpisodeFile(ctx context.Context, seriesID int64, entry *catalogmodels.Entry) ([]string, error) {
	fileID := entry.SourceFileID

	if fileID != 0 {
		err := e.sonarr.DeleteEpisodeFile(ctx, fileID)
		if err == nil {
			return []string{fmt.Sprintf("deleted episode file %d (%s)", fileID, entry.Path)}, nil
		}
		if !errors.Is(err, remote.ErrNotFound) {
			return nil, fmt.Errorf("delete episode file %d: %w", fileID, err)
		}
		// Identifier is stale; fall through to the path lookup.
	}

	file, err := e.sonarr.FindEpisodeFileByPath(ctx, seriesID, entry.Path)
	if err != nil {
		return nil, fmt.Errorf("episode file for %s not found upstream: %w", entry.Path, err)
	}
	if err := e.sonarr.DeleteEpisodeFile(ctx, file.ID); err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return []string{fmt.Sprintf("episode file %d already removed", file.ID)}, nil
		}
		return nil, fmt.Errorf("delete episode file %d: %w", file.ID, err)
	}
	return []string{fmt.Sprintf("deleted episode file %d (%s)", file.ID, entry.Path)}, nil
}

func (e *Executor) lookupMovie(ctx context.Context, entry *catalogmodels.Entry) (*remote.Movie, error) {
	movie, err := e.radarr.LookupByPath(ctx, entry.Path)
	if errors.Is(err, remote.ErrNotFound) && entry.Title != "" {
		movie, err = e.radarr.LookupByTitle(ctx, entry.Title)
	}
	if err != nil {
		return nil, fmt.Errorf("movie for %s not found in Radarr: %w", entry.Path, err)
	}
	return movie, nil
}

func (e *Executor) lookupSeries(ctx context.Context, entry *catalogmodels.Entry) (*remote.Series, error) {
	series, err := e.sonarr.LookupByPath(ctx, entry.Path)
	if errors.Is(err, remote.ErrNotFound) {
		title := entry.Extra.SeriesTitle
		if title == "" {
			title = entry.Title
		}
		if title != "" {
			series, err = e.sonarr.LookupByTitle(ctx, title)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("series for %s not found in Sonarr: %w", entry.Path, err)
	}
	return series, nil
}

// deleteDirect removes the snapshot path from the filesystem. A file already
// absent is success, not failure.
func (e *Executor) deleteDirect(path string) ([]string, error) {
	if path == "" {
		return nil, errors.New("snapshot has no path to delete")
	}
	err := e.removeFile(path)
	if err == nil {
		return []string{fmt.Sprintf("deleted file %s", path)}, nil
	}
	if os.IsNotExist(err) {
		return []string{fmt.Sprintf("file already removed: %s", path)}, nil
	}
	return nil, fmt.Errorf("delete file %s: %w", path, err)
}
