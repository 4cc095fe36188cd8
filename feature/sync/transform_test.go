package sync

import (
	"testing"

	"media-janitor/core/remote"

	"github.com/stretchr/testify/assert"
)

func TestBestRatingPrefersImdb(t *testing.T) {
	ratings := map[string]remote.Rating{
		"tmdb":           {Value: 6.1},
		"imdb":           {Value: 7.9},
		"rottenTomatoes": {Value: 91},
	}
	assert.Equal(t, 7.9, bestRating(ratings))

	// Without IMDb, the next priority source wins.
	delete(ratings, "imdb")
	assert.Equal(t, 6.1, bestRating(ratings))

	// Percentage scales are normalized to 0-10.
	assert.Equal(t, 9.1, bestRating(map[string]remote.Rating{"rottenTomatoes": {Value: 91}}))

	assert.Zero(t, bestRating(nil))
	assert.Zero(t, bestRating(map[string]remote.Rating{"imdb": {Value: 0}}))
}

func TestNormalizeResolution(t *testing.T) {
	cases := map[string]string{
		"1920x1080":     "1080p",
		"3840x2160":     "2160p",
		"1280x720":      "720p",
		"720x576":       "576p",
		"640x480":       "480p",
		"Bluray-1080p":  "1080p",
		"WEBDL-2160p":   "2160p",
		"4K Remux":      "2160p",
		"":              "",
		"unknown label": "unknown label",
	}
	for input, want := range cases {
		assert.Equal(t, want, normalizeResolution(input), "input %q", input)
	}
}

func TestQualityResolutionFallbackChain(t *testing.T) {
	var q remote.QualityModel
	q.Quality.Name = "Bluray-1080p"
	q.Quality.Resolution = 1080

	// MediaInfo dimensions win when present.
	got := qualityResolution(q, remote.MediaInfo{Resolution: "3840x2160"})
	assert.Equal(t, "2160p", got)

	// Then the numeric quality resolution.
	got = qualityResolution(q, remote.MediaInfo{})
	assert.Equal(t, "1080p", got)

	// Then the quality name.
	q.Quality.Resolution = 0
	got = qualityResolution(q, remote.MediaInfo{})
	assert.Equal(t, "1080p", got)
}

func TestParseRunTime(t *testing.T) {
	assert.Equal(t, int64(6750), parseRunTime("1:52:30"))
	assert.Equal(t, int64(2700), parseRunTime("45:00"))
	assert.Equal(t, int64(50), parseRunTime("50"))
	assert.Zero(t, parseRunTime(""))
	assert.Zero(t, parseRunTime("bogus"))
	assert.Zero(t, parseRunTime("1:2:3:4"))
}

func TestMovieEntryWithoutFile(t *testing.T) {
	entry := movieEntry(&remote.Movie{ID: 4, Title: "Unreleased", Path: "/movies/unreleased"})
	assert.Equal(t, "/movies/unreleased", entry.Path)
	assert.Equal(t, "missing", entry.DownloadStatus)
	assert.Zero(t, entry.SizeBytes)
	assert.Equal(t, int64(4), entry.RadarrID)
}
