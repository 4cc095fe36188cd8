package remote

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Series is one series tracked by Sonarr.
type Series struct {
	ID               int64             `json:"id"`
	Title            string            `json:"title"`
	Path             string            `json:"path"`
	TvdbID           int64             `json:"tvdbId"`
	ImdbID           string            `json:"imdbId"`
	Monitored        bool              `json:"monitored"`
	QualityProfileID int64             `json:"qualityProfileId"`
	Added            time.Time         `json:"added"`
	Tags             []int64           `json:"tags"`
	Ratings          map[string]Rating `json:"ratings"`
}

// EpisodeFile is one episode file tracked by Sonarr.
type EpisodeFile struct {
	ID           int64        `json:"id"`
	SeriesID     int64        `json:"seriesId"`
	RelativePath string       `json:"relativePath"`
	Path         string       `json:"path"`
	Size         int64        `json:"size"`
	DateAdded    time.Time    `json:"dateAdded"`
	Quality      QualityModel `json:"quality"`
	MediaInfo    MediaInfo    `json:"mediaInfo"`
}

// SonarrClient talks to a Sonarr instance.
type SonarrClient struct {
	c *Client
}

// NewSonarr creates a Sonarr client, or nil when unconfigured.
func NewSonarr(cfg ServiceConfig, logger *zap.Logger) *SonarrClient {
	client := NewClient(cfg, logger, WithAuthHeader("X-Api-Key"))
	if client == nil {
		return nil
	}
	return &SonarrClient{c: client}
}

// Series returns the full series listing.
func (s *SonarrClient) Series(ctx context.Context) ([]Series, error) {
	var series []Series
	if err := s.c.GetJSON(ctx, "/api/v3/series", nil, &series); err != nil {
		return nil, err
	}
	return series, nil
}

// EpisodeFiles returns the episode files for one series. Sonarr offers no
// instance-wide file listing, so reconciliation calls this per series in
// bounded concurrent batches.
func (s *SonarrClient) EpisodeFiles(ctx context.Context, seriesID int64) ([]EpisodeFile, error) {
	query := url.Values{}
	query.Set("seriesId", strconv.FormatInt(seriesID, 10))
	var files []EpisodeFile
	if err := s.c.GetJSON(ctx, "/api/v3/episodefile", query, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// LookupByPath finds the series owning the given path (series root or any
// file under it). Returns ErrNotFound when no series matches.
func (s *SonarrClient) LookupByPath(ctx context.Context, path string) (*Series, error) {
	all, err := s.Series(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		sr := &all[i]
		if sr.Path == path || (sr.Path != "" && strings.HasPrefix(path, sr.Path+"/")) {
			return sr, nil
		}
	}
	return nil, ErrNotFound
}

// LookupByTitle finds the first series with an exact (case-insensitive) title
// match. Returns ErrNotFound when no series matches.
func (s *SonarrClient) LookupByTitle(ctx context.Context, title string) (*Series, error) {
	all, err := s.Series(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if strings.EqualFold(all[i].Title, title) {
			return &all[i], nil
		}
	}
	return nil, ErrNotFound
}

// FindEpisodeFileByPath scans a series' files for the one matching path.
// Used as the stale-identifier fallback before file-level deletes.
func (s *SonarrClient) FindEpisodeFileByPath(ctx context.Context, seriesID int64, path string) (*EpisodeFile, error) {
	files, err := s.EpisodeFiles(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	for i := range files {
		if files[i].Path == path || strings.HasSuffix(path, files[i].RelativePath) {
			return &files[i], nil
		}
	}
	return nil, ErrNotFound
}

// DeleteEpisodeFile removes a single episode file by its identifier.
func (s *SonarrClient) DeleteEpisodeFile(ctx context.Context, fileID int64) error {
	return s.c.Do(ctx, "DELETE", "/api/v3/episodefile/"+strconv.FormatInt(fileID, 10), nil, nil)
}

// SetSeriesMonitored flips the monitored flag on a series.
func (s *SonarrClient) SetSeriesMonitored(ctx context.Context, seriesID int64, monitored bool) error {
	var series map[string]any
	if err := s.c.DoJSON(ctx, "GET", "/api/v3/series/"+strconv.FormatInt(seriesID, 10), nil, nil, &series); err != nil {
		return err
	}
	series["monitored"] = monitored
	return s.c.Do(ctx, "PUT", "/api/v3/series/"+strconv.FormatInt(seriesID, 10), nil, series)
}

// DeleteSeries removes the series entry entirely. With deleteFiles the
// underlying files are removed; with addExclusion the series is added to the
// import list exclusions so it is not re-acquired.
func (s *SonarrClient) DeleteSeries(ctx context.Context, seriesID int64, deleteFiles, addExclusion bool) error {
	query := url.Values{}
	query.Set("deleteFiles", strconv.FormatBool(deleteFiles))
	query.Set("addImportListExclusion", strconv.FormatBool(addExclusion))
	return s.c.Do(ctx, "DELETE", "/api/v3/series/"+strconv.FormatInt(seriesID, 10), query, nil)
}

// ClearCache drops cached Sonarr responses.
func (s *SonarrClient) ClearCache() {
	s.c.ClearCache()
}
