package deletion_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"media-janitor/core/remote"
	catalogmodels "media-janitor/feature/catalog/models"
	"media-janitor/feature/deletion"
	"media-janitor/feature/deletion/models"
	rulesmodels "media-janitor/feature/rules/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func serviceConfig(url string) remote.ServiceConfig {
	return remote.ServiceConfig{URL: url, ApiKey: "test-key", TimeoutSeconds: 5}
}

func movieRequest(path, title string, fileID int64, strategy rulesmodels.Strategy) *models.Request {
	return &models.Request{
		Entry: models.EntrySnapshot{
			Path:         path,
			Title:        title,
			Kind:         catalogmodels.KindMovie,
			SizeBytes:    2048,
			SourceFileID: fileID,
		},
		Rule:   models.RuleSnapshot{Strategy: strategy},
		Status: models.StatusApproved,
	}
}

func showRequest(path, title string, fileID int64, strategy rulesmodels.Strategy) *models.Request {
	return &models.Request{
		Entry: models.EntrySnapshot{
			Path:         path,
			Title:        title,
			Kind:         catalogmodels.KindShow,
			SizeBytes:    4096,
			SourceFileID: fileID,
		},
		Rule:   models.RuleSnapshot{Strategy: strategy},
		Status: models.StatusApproved,
	}
}

func TestExecuteFallsBackToFilesystemWhenUnconfigured(t *testing.T) {
	executor := deletion.NewExecutor(nil, nil, zap.NewNop())

	path := filepath.Join(t.TempDir(), "a.mkv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	req := movieRequest(path, "A", 0, rulesmodels.Strategy{Movie: rulesmodels.StrategyFileOnly})
	results, freed, err := executor.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), freed)
	require.Len(t, results, 1)
	assert.Contains(t, results[0], "deleted file")
	assert.NoFileExists(t, path)
}

func TestExecuteDirectTreatsAbsentFileAsSuccess(t *testing.T) {
	executor := deletion.NewExecutor(nil, nil, zap.NewNop())

	req := movieRequest(filepath.Join(t.TempDir(), "gone.mkv"), "Gone", 0, rulesmodels.Strategy{})
	results, freed, err := executor.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), freed)
	require.Len(t, results, 1)
	assert.Contains(t, results[0], "already removed")
}

func TestExecuteDirectRejectsEmptyPath(t *testing.T) {
	executor := deletion.NewExecutor(nil, nil, zap.NewNop())

	req := movieRequest("", "A", 0, rulesmodels.Strategy{})
	_, _, err := executor.Execute(context.Background(), req)
	assert.Error(t, err)
}

func TestExecuteMovieFileOnly(t *testing.T) {
	var deletedFile string

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/movie", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]remote.Movie{{
			ID:    5,
			Title: "A",
			Path:  "/movies/a",
			MovieFile: &remote.MovieFile{
				ID:   9,
				Path: "/movies/a/a.mkv",
			},
		}})
	})
	mux.HandleFunc("/api/v3/moviefile/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		deletedFile = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	radarr := remote.NewRadarr(serviceConfig(srv.URL), zap.NewNop())
	executor := deletion.NewExecutor(radarr, nil, zap.NewNop())

	// SourceFileID 99 is stale; the executor must trust the fresh lookup.
	req := movieRequest("/movies/a/a.mkv", "A", 99, rulesmodels.Strategy{Movie: rulesmodels.StrategyFileOnly})
	results, freed, err := executor.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), freed)
	assert.Equal(t, "/api/v3/moviefile/9", deletedFile)
	require.Len(t, results, 1)
	assert.Contains(t, results[0], "deleted movie file 9")
}

func TestExecuteMovieWithoutUpstreamFileSucceeds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/movie", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]remote.Movie{{ID: 5, Title: "A", Path: "/movies/a"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	radarr := remote.NewRadarr(serviceConfig(srv.URL), zap.NewNop())
	executor := deletion.NewExecutor(radarr, nil, zap.NewNop())

	req := movieRequest("/movies/a/a.mkv", "A", 0, rulesmodels.Strategy{Movie: rulesmodels.StrategyFileOnly})
	results, _, err := executor.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0], "already removed")
}

func TestExecuteMovieRemoveMovie(t *testing.T) {
	var deleteQuery string

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/movie", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]remote.Movie{{ID: 5, Title: "A", Path: "/movies/a"}})
	})
	mux.HandleFunc("/api/v3/movie/5", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		deleteQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	radarr := remote.NewRadarr(serviceConfig(srv.URL), zap.NewNop())
	executor := deletion.NewExecutor(radarr, nil, zap.NewNop())

	req := movieRequest("/movies/a/a.mkv", "A", 0, rulesmodels.Strategy{
		Movie:              rulesmodels.StrategyRemoveMovie,
		DeleteFiles:        true,
		AddImportExclusion: true,
	})
	results, _, err := executor.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, deleteQuery, "deleteFiles=true")
	assert.Contains(t, deleteQuery, "addImportExclusion=true")
	require.Len(t, results, 1)
	assert.Contains(t, results[0], "removed movie")
}

func TestExecuteMovieLookupMissIsHardFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/movie", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]remote.Movie{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	radarr := remote.NewRadarr(serviceConfig(srv.URL), zap.NewNop())
	executor := deletion.NewExecutor(radarr, nil, zap.NewNop())

	req := movieRequest("/movies/a/a.mkv", "A", 9, rulesmodels.Strategy{Movie: rulesmodels.StrategyFileOnly})
	_, _, err := executor.Execute(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in Radarr")
}

func TestExecuteShowUnmonitorWithFiles(t *testing.T) {
	var putMonitored *bool
	var deletedFile string

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/series", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]remote.Series{{ID: 3, Title: "C", Path: "/tv/c", Monitored: true}})
	})
	mux.HandleFunc("/api/v3/series/3", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{"id": 3, "title": "C", "monitored": true})
		case http.MethodPut:
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			v := body["monitored"].(bool)
			putMonitored = &v
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v3/episodefile/12", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		deletedFile = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sonarr := remote.NewSonarr(serviceConfig(srv.URL), zap.NewNop())
	executor := deletion.NewExecutor(nil, sonarr, zap.NewNop())

	req := showRequest("/tv/c/s01e01.mkv", "C", 12, rulesmodels.Strategy{
		Show:        rulesmodels.StrategyUnmonitor,
		DeleteFiles: true,
	})
	results, freed, err := executor.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), freed)
	require.NotNil(t, putMonitored)
	assert.False(t, *putMonitored)
	assert.Equal(t, "/api/v3/episodefile/12", deletedFile)
	require.Len(t, results, 2)
	assert.Contains(t, results[0], "unmonitored series")
	assert.Contains(t, results[1], "deleted episode file 12")
}

func TestExecuteShowStaleFileIDFallsBackToPathLookup(t *testing.T) {
	var deletedFile string

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/series", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]remote.Series{{ID: 3, Title: "C", Path: "/tv/c"}})
	})
	mux.HandleFunc("/api/v3/episodefile", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "3", r.URL.Query().Get("seriesId"))
		json.NewEncoder(w).Encode([]remote.EpisodeFile{{ID: 12, SeriesID: 3, Path: "/tv/c/s01e01.mkv"}})
	})
	mux.HandleFunc("/api/v3/episodefile/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		if r.URL.Path == "/api/v3/episodefile/99" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		deletedFile = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sonarr := remote.NewSonarr(serviceConfig(srv.URL), zap.NewNop())
	executor := deletion.NewExecutor(nil, sonarr, zap.NewNop())

	req := showRequest("/tv/c/s01e01.mkv", "C", 99, rulesmodels.Strategy{Show: rulesmodels.StrategyFileOnly})
	results, _, err := executor.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "/api/v3/episodefile/12", deletedFile)
	require.Len(t, results, 1)
	assert.Contains(t, results[0], "deleted episode file 12")
}

func TestExecuteShowRemoveSeries(t *testing.T) {
	var deleteQuery string

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/series", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]remote.Series{{ID: 3, Title: "C", Path: "/tv/c"}})
	})
	mux.HandleFunc("/api/v3/series/3", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		deleteQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sonarr := remote.NewSonarr(serviceConfig(srv.URL), zap.NewNop())
	executor := deletion.NewExecutor(nil, sonarr, zap.NewNop())

	req := showRequest("/tv/c/s01e01.mkv", "C", 0, rulesmodels.Strategy{
		Show:        rulesmodels.StrategyRemoveSeries,
		DeleteFiles: true,
	})
	results, _, err := executor.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, deleteQuery, "deleteFiles=true")
	require.Len(t, results, 1)
	assert.Contains(t, results[0], "removed series")
}
