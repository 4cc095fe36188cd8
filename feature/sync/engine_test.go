package sync_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"media-janitor/core/database"
	"media-janitor/core/remote"
	"media-janitor/feature/catalog"
	catalogmodels "media-janitor/feature/catalog/models"
	"media-janitor/feature/deletion"
	deletionmodels "media-janitor/feature/deletion/models"
	rulesmodels "media-janitor/feature/rules/models"
	"media-janitor/feature/sync"
	syncmodels "media-janitor/feature/sync/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	store    *catalog.Store
	workflow *deletion.Workflow
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.Connect(database.Config{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&catalogmodels.Entry{},
		&deletionmodels.Request{},
		&deletionmodels.HistoryRecord{},
		&syncmodels.Run{},
	))

	logger := zap.NewNop()
	return &fixture{
		db:       db,
		store:    catalog.NewStore(db, 100, logger),
		workflow: deletion.NewWorkflow(db, logger),
	}
}

func (f *fixture) engine(radarr *remote.RadarrClient, sonarr *remote.SonarrClient, tautulli *remote.TautulliClient) *sync.Engine {
	return sync.NewEngine(f.db, f.store, f.workflow, radarr, sonarr, tautulli, 2, zap.NewNop())
}

func serviceConfig(url string) remote.ServiceConfig {
	return remote.ServiceConfig{URL: url, ApiKey: "test-key", TimeoutSeconds: 5}
}

func radarrServer(t *testing.T, movies []remote.Movie) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/movie", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(movies)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func sonarrServer(t *testing.T, series []remote.Series, files map[string][]remote.EpisodeFile) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/series", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(series)
	})
	mux.HandleFunc("/api/v3/episodefile", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(files[r.URL.Query().Get("seriesId")])
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func tautulliServer(t *testing.T, items []remote.HistoryItem) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2", func(w http.ResponseWriter, r *http.Request) {
		start := 0
		if s := r.URL.Query().Get("start"); s != "" {
			json.Unmarshal([]byte(s), &start)
		}
		page := []remote.HistoryItem{}
		if start < len(items) {
			page = items[start:]
		}
		json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{
				"result": "success",
				"data": map[string]any{
					"recordsFiltered": len(items),
					"data":            page,
				},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunSyncsAllSources(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	radarrSrv := radarrServer(t, []remote.Movie{{
		ID:        1,
		Title:     "Big Movie",
		Path:      "/movies/big",
		Monitored: true,
		Added:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Ratings:   map[string]remote.Rating{"imdb": {Value: 7.4}},
		MovieFile: &remote.MovieFile{
			ID:   11,
			Path: "/movies/big/big.mkv",
			Size: 6 << 30,
		},
	}})
	sonarrSrv := sonarrServer(t,
		[]remote.Series{{ID: 2, Title: "Show", Path: "/tv/show", Monitored: true}},
		map[string][]remote.EpisodeFile{
			"2": {{ID: 21, SeriesID: 2, Path: "/tv/show/s01e01.mkv", Size: 2 << 30}},
		},
	)
	tautulliSrv := tautulliServer(t, []remote.HistoryItem{{
		File:            "/movies/big/big.mkv",
		User:            "alice",
		Date:            time.Now().Unix(),
		PlayDuration:    5400,
		PercentComplete: 96,
	}})

	logger := zap.NewNop()
	engine := f.engine(
		remote.NewRadarr(serviceConfig(radarrSrv.URL), logger),
		remote.NewSonarr(serviceConfig(sonarrSrv.URL), logger),
		remote.NewTautulli(serviceConfig(tautulliSrv.URL), logger),
	)

	run, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncmodels.RunCompleted, run.Status)
	require.NotNil(t, run.FinishedAt)
	assert.Len(t, run.Details.Sources, 2)
	assert.Equal(t, 1, run.Details.HistoryMerged)

	movie, err := f.store.GetByPath(ctx, "/movies/big/big.mkv")
	require.NoError(t, err)
	assert.Equal(t, "Big Movie", movie.Title)
	assert.Equal(t, int64(6<<30), movie.SizeBytes)
	assert.Equal(t, 7.4, movie.Rating)
	assert.Equal(t, int64(11), movie.SourceFileID)
	assert.True(t, movie.Watched, "96% complete counts as watched")
	assert.Equal(t, int64(1), movie.ViewCount)
	assert.Equal(t, catalogmodels.StringList{"alice"}, movie.Viewers)

	episode, err := f.store.GetByPath(ctx, "/tv/show/s01e01.mkv")
	require.NoError(t, err)
	assert.Equal(t, catalogmodels.KindShow, episode.Kind)
	assert.Equal(t, "Show", episode.Extra.SeriesTitle)
	assert.Equal(t, int64(2), episode.SonarrID)
}

func TestRunRemovesOrphansButPreservesDeletionAnchors(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	// Three pre-existing movie entries. Only "kept" is still listed upstream.
	require.NoError(t, f.store.BatchUpsert(ctx, []catalogmodels.Entry{
		{Path: "/movies/kept/kept.mkv", Title: "Kept", Kind: catalogmodels.KindMovie},
		{Path: "/movies/gone/gone.mkv", Title: "Gone", Kind: catalogmodels.KindMovie},
		{Path: "/movies/deleted/deleted.mkv", Title: "Deleted", Kind: catalogmodels.KindMovie},
	}))

	gone, err := f.store.GetByPath(ctx, "/movies/gone/gone.mkv")
	require.NoError(t, err)
	deleted, err := f.store.GetByPath(ctx, "/movies/deleted/deleted.mkv")
	require.NoError(t, err)

	// "gone" has a pending request that must be dropped with it.
	rule := &rulesmodels.Rule{ID: 1, Name: "r", Enabled: true}
	_, err = f.workflow.Propose(ctx, rule, []catalogmodels.Entry{*gone})
	require.NoError(t, err)

	// "deleted" carries completed deletion history and must survive cleanup.
	_, err = f.workflow.Propose(ctx, rule, []catalogmodels.Entry{*deleted})
	require.NoError(t, err)
	pending, _, err := f.workflow.List(ctx, deletion.ListFilter{RuleID: rule.ID, Status: deletionmodels.StatusPending})
	require.NoError(t, err)
	var completedID uint
	for i := range pending {
		if pending[i].EntryID != deleted.ID {
			continue
		}
		req, err := f.workflow.Approve(ctx, pending[i].ID, "alice", "", nil)
		require.NoError(t, err)
		require.NoError(t, f.workflow.MarkCompleted(ctx, req, nil, 0))
		completedID = req.ID
	}
	require.NotZero(t, completedID)

	// MarkCompleted drops the live entry; restore it to model an entry that
	// was re-acquired and then vanished upstream again.
	restored := *deleted
	restored.ID = 0
	require.NoError(t, f.store.BatchUpsert(ctx, []catalogmodels.Entry{restored}))
	restoredEntry, err := f.store.GetByPath(ctx, "/movies/deleted/deleted.mkv")
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&deletionmodels.Request{}).
		Where("id = ?", completedID).
		Update("entry_id", restoredEntry.ID).Error)

	radarrSrv := radarrServer(t, []remote.Movie{{
		ID:        1,
		Title:     "Kept",
		Path:      "/movies/kept",
		MovieFile: &remote.MovieFile{ID: 11, Path: "/movies/kept/kept.mkv"},
	}})
	engine := f.engine(remote.NewRadarr(serviceConfig(radarrSrv.URL), zap.NewNop()), nil, nil)

	run, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncmodels.RunCompleted, run.Status)
	require.Len(t, run.Details.Sources, 1)
	assert.Equal(t, 1, run.Details.Sources[0].OrphansRemoved)
	assert.Equal(t, 1, run.Details.Sources[0].OrphansPreserved)

	_, err = f.store.GetByPath(ctx, "/movies/gone/gone.mkv")
	assert.ErrorIs(t, err, catalog.ErrNotFound, "orphan without history is removed")

	_, err = f.store.GetByPath(ctx, "/movies/deleted/deleted.mkv")
	assert.NoError(t, err, "orphan with completed history is preserved")

	_, total, err := f.workflow.List(ctx, deletion.ListFilter{Status: deletionmodels.StatusPending})
	require.NoError(t, err)
	assert.Zero(t, total, "pending requests for orphans are dropped")
}

func TestRunPartialFailureSkipsOrphanCleanupForFailedSource(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	// An existing movie entry that a healthy Radarr listing would orphan.
	require.NoError(t, f.store.BatchUpsert(ctx, []catalogmodels.Entry{
		{Path: "/movies/old/old.mkv", Title: "Old", Kind: catalogmodels.KindMovie},
	}))

	// Radarr answers 404; a failed listing must not be read as "everything
	// was removed upstream".
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/movie", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	radarrSrv := httptest.NewServer(mux)
	t.Cleanup(radarrSrv.Close)

	sonarrSrv := sonarrServer(t,
		[]remote.Series{{ID: 2, Title: "Show", Path: "/tv/show"}},
		map[string][]remote.EpisodeFile{
			"2": {{ID: 21, SeriesID: 2, Path: "/tv/show/s01e01.mkv"}},
		},
	)

	logger := zap.NewNop()
	engine := f.engine(
		remote.NewRadarr(serviceConfig(radarrSrv.URL), logger),
		remote.NewSonarr(serviceConfig(sonarrSrv.URL), logger),
		nil,
	)

	run, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncmodels.RunPartial, run.Status)

	_, err = f.store.GetByPath(ctx, "/movies/old/old.mkv")
	assert.NoError(t, err, "movie entries survive a failed Radarr listing")

	_, err = f.store.GetByPath(ctx, "/tv/show/s01e01.mkv")
	assert.NoError(t, err, "the healthy source still syncs")
}

func TestRunRequiresAtLeastOneSource(t *testing.T) {
	f := setupFixture(t)

	engine := f.engine(nil, nil, nil)
	_, err := engine.Run(context.Background())
	assert.ErrorIs(t, err, sync.ErrNoSources)
}

func TestHistoryWatermarkPreventsDoubleCounting(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	playedAt := time.Now().Add(-time.Hour).Unix()
	radarrSrv := radarrServer(t, []remote.Movie{{
		ID:        1,
		Title:     "Big",
		Path:      "/movies/big",
		MovieFile: &remote.MovieFile{ID: 11, Path: "/movies/big/big.mkv"},
	}})
	tautulliSrv := tautulliServer(t, []remote.HistoryItem{{
		File:         "/movies/big/big.mkv",
		User:         "alice",
		Date:         playedAt,
		PlayDuration: 3600,
	}})

	logger := zap.NewNop()
	engine := f.engine(
		remote.NewRadarr(serviceConfig(radarrSrv.URL), logger),
		nil,
		remote.NewTautulli(serviceConfig(tautulliSrv.URL), logger),
	)

	run, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Details.HistoryMerged)
	assert.Equal(t, playedAt, run.Details.HistoryWatermark)

	// Same feed again: nothing new to merge, counters unchanged.
	engine.ClearCaches()
	run, err = engine.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, run.Details.HistoryMerged)

	movie, err := f.store.GetByPath(ctx, "/movies/big/big.mkv")
	require.NoError(t, err)
	assert.Equal(t, int64(1), movie.ViewCount)
	assert.Equal(t, int64(3600), movie.WatchTimeSec)
}

func TestRunProgressVisibleToPollers(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	radarrSrv := radarrServer(t, []remote.Movie{{
		ID:        1,
		Title:     "Big",
		Path:      "/movies/big",
		MovieFile: &remote.MovieFile{ID: 11, Path: "/movies/big/big.mkv"},
	}})

	// Tautulli blocks until released, holding the run between the source
	// passes and the history merge so its row can be observed mid-flight.
	entered := make(chan struct{})
	release := make(chan struct{})
	var once atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2", func(w http.ResponseWriter, r *http.Request) {
		if once.CompareAndSwap(false, true) {
			close(entered)
		}
		<-release
		json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{
				"result": "success",
				"data": map[string]any{
					"recordsFiltered": 0,
					"data":            []remote.HistoryItem{},
				},
			},
		})
	})
	tautulliSrv := httptest.NewServer(mux)
	t.Cleanup(tautulliSrv.Close)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})

	logger := zap.NewNop()
	engine := f.engine(
		remote.NewRadarr(serviceConfig(radarrSrv.URL), logger),
		nil,
		remote.NewTautulli(serviceConfig(tautulliSrv.URL), logger),
	)

	done := make(chan struct{})
	var run *syncmodels.Run
	var runErr error
	go func() {
		defer close(done)
		run, runErr = engine.Run(ctx)
	}()

	<-entered
	latest, err := engine.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, syncmodels.RunRunning, latest.Status)
	assert.Equal(t, 50, latest.Progress, "one of two steps is done")
	require.Len(t, latest.Details.Sources, 1)
	assert.Equal(t, 100, latest.Details.Sources[0].Progress)
	assert.Equal(t, 1, latest.Details.Sources[0].Synced)

	close(release)
	<-done
	require.NoError(t, runErr)
	assert.Equal(t, 100, run.Progress)
	assert.Equal(t, syncmodels.RunCompleted, run.Status)
}

func TestRunPublishesEvents(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	radarrSrv := radarrServer(t, []remote.Movie{})
	engine := f.engine(remote.NewRadarr(serviceConfig(radarrSrv.URL), zap.NewNop()), nil, nil)

	id, events := engine.Bus().Subscribe(64)
	defer engine.Bus().Unsubscribe(id)

	_, err := engine.Run(ctx)
	require.NoError(t, err)

	seen := make(map[sync.EventType]bool)
	for {
		select {
		case event := <-events:
			seen[event.Type] = true
		default:
			assert.True(t, seen[sync.EventSyncStart])
			assert.True(t, seen[sync.EventSourceStart])
			assert.True(t, seen[sync.EventSyncComplete])
			return
		}
	}
}
