package remote

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Rating is one rating value from an external metadata source.
type Rating struct {
	Value float64 `json:"value"`
	Votes int     `json:"votes"`
}

// QualityModel is the nested quality descriptor used by Radarr and Sonarr.
type QualityModel struct {
	Quality struct {
		ID         int    `json:"id"`
		Name       string `json:"name"`
		Resolution int    `json:"resolution"`
	} `json:"quality"`
}

// MediaInfo carries codec and resolution details for one file.
type MediaInfo struct {
	VideoCodec        string `json:"videoCodec"`
	Resolution        string `json:"resolution"`
	AudioCodec        string `json:"audioCodec"`
	RunTime           string `json:"runTime"`
	VideoDynamicRange string `json:"videoDynamicRange"`
}

// MovieFile is one movie file tracked by Radarr.
type MovieFile struct {
	ID           int64        `json:"id"`
	MovieID      int64        `json:"movieId"`
	RelativePath string       `json:"relativePath"`
	Path         string       `json:"path"`
	Size         int64        `json:"size"`
	DateAdded    time.Time    `json:"dateAdded"`
	Quality      QualityModel `json:"quality"`
	MediaInfo    MediaInfo    `json:"mediaInfo"`
}

// Movie is one movie tracked by Radarr, with its file embedded when present.
type Movie struct {
	ID               int64             `json:"id"`
	Title            string            `json:"title"`
	Path             string            `json:"path"`
	TmdbID           int64             `json:"tmdbId"`
	ImdbID           string            `json:"imdbId"`
	Monitored        bool              `json:"monitored"`
	HasFile          bool              `json:"hasFile"`
	QualityProfileID int64             `json:"qualityProfileId"`
	Added            time.Time         `json:"added"`
	Tags             []int64           `json:"tags"`
	Ratings          map[string]Rating `json:"ratings"`
	MovieFile        *MovieFile        `json:"movieFile"`
}

// RadarrClient talks to a Radarr instance.
type RadarrClient struct {
	c *Client
}

// NewRadarr creates a Radarr client, or nil when unconfigured.
func NewRadarr(cfg ServiceConfig, logger *zap.Logger) *RadarrClient {
	client := NewClient(cfg, logger, WithAuthHeader("X-Api-Key"))
	if client == nil {
		return nil
	}
	return &RadarrClient{c: client}
}

// Movies returns the full movie listing, files embedded. This is the bulk
// endpoint preferred by reconciliation.
func (r *RadarrClient) Movies(ctx context.Context) ([]Movie, error) {
	var movies []Movie
	if err := r.c.GetJSON(ctx, "/api/v3/movie", nil, &movies); err != nil {
		return nil, err
	}
	return movies, nil
}

// LookupByPath finds the movie whose path or file path matches the given
// path. Returns ErrNotFound when no movie matches.
func (r *RadarrClient) LookupByPath(ctx context.Context, path string) (*Movie, error) {
	movies, err := r.Movies(ctx)
	if err != nil {
		return nil, err
	}
	for i := range movies {
		m := &movies[i]
		if m.Path == path {
			return m, nil
		}
		if m.MovieFile != nil && m.MovieFile.Path == path {
			return m, nil
		}
		if m.Path != "" && strings.HasPrefix(path, m.Path+"/") {
			return m, nil
		}
	}
	return nil, ErrNotFound
}

// LookupByTitle finds the first movie with an exact (case-insensitive) title
// match. Returns ErrNotFound when no movie matches.
func (r *RadarrClient) LookupByTitle(ctx context.Context, title string) (*Movie, error) {
	movies, err := r.Movies(ctx)
	if err != nil {
		return nil, err
	}
	for i := range movies {
		if strings.EqualFold(movies[i].Title, title) {
			return &movies[i], nil
		}
	}
	return nil, ErrNotFound
}

// DeleteMovieFile removes a single movie file by its identifier.
func (r *RadarrClient) DeleteMovieFile(ctx context.Context, fileID int64) error {
	return r.c.Do(ctx, "DELETE", "/api/v3/moviefile/"+strconv.FormatInt(fileID, 10), nil, nil)
}

// DeleteMovie removes the movie entry entirely. With deleteFiles the
// underlying files are removed; with addExclusion the movie is added to the
// import exclusion list so it is not re-acquired.
func (r *RadarrClient) DeleteMovie(ctx context.Context, movieID int64, deleteFiles, addExclusion bool) error {
	query := url.Values{}
	query.Set("deleteFiles", strconv.FormatBool(deleteFiles))
	query.Set("addImportExclusion", strconv.FormatBool(addExclusion))
	return r.c.Do(ctx, "DELETE", "/api/v3/movie/"+strconv.FormatInt(movieID, 10), query, nil)
}

// ClearCache drops cached Radarr responses.
func (r *RadarrClient) ClearCache() {
	r.c.ClearCache()
}
