package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Kind classifies a catalog entry by media type.
type Kind string

const (
	KindMovie Kind = "movie"
	KindShow  Kind = "show"
	KindOther Kind = "other"
)

// WatchState is the derived viewing status of an entry.
type WatchState string

const (
	WatchStateWatched    WatchState = "watched"
	WatchStateUnwatched  WatchState = "unwatched"
	WatchStateInProgress WatchState = "in_progress"
)

// StringList is a JSON-encoded list of strings stored in a text column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported type for StringList: %T", value)
	}
}

// Extra carries per-source metadata that does not warrant its own column.
// Known fields are typed; Residual keeps anything a future source version
// reports that we do not model yet.
type Extra struct {
	TmdbID       int64             `json:"tmdb_id,omitempty"`
	TvdbID       int64             `json:"tvdb_id,omitempty"`
	ImdbID       string            `json:"imdb_id,omitempty"`
	SeriesTitle  string            `json:"series_title,omitempty"`
	DynamicRange string            `json:"dynamic_range,omitempty"`
	Residual     map[string]string `json:"residual,omitempty"`
}

// Value implements driver.Valuer.
func (e Extra) Value() (driver.Value, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (e *Extra) Scan(value any) error {
	if value == nil {
		*e = Extra{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, e)
	case string:
		return json.Unmarshal([]byte(v), e)
	default:
		return fmt.Errorf("unsupported type for Extra: %T", value)
	}
}

// Entry is one managed media file and its known metadata.
//
// Entries are created and refreshed by reconciliation, mutated in place by
// watch-history merges, and removed only by orphan cleanup or a successful
// deletion execution. Locally owned fields (Protected, the watch counters)
// are never overwritten by reconciliation.
type Entry struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Path is the stable identity of the entry.
	Path  string `gorm:"uniqueIndex;size:768;not null" json:"path"`
	Title string `gorm:"size:512" json:"title"`
	Kind  Kind   `gorm:"index;size:16" json:"kind"`

	SizeBytes int64     `json:"size_bytes"`
	AddedAt   time.Time `json:"added_at"`

	Quality        string  `gorm:"size:64" json:"quality"`
	Resolution     string  `gorm:"size:32" json:"resolution"`
	Codec          string  `gorm:"size:32" json:"codec"`
	QualityProfile string  `gorm:"size:128" json:"quality_profile"`
	Rating         float64 `json:"rating"`
	DurationSec    int64   `json:"duration_sec"`

	Monitored      bool   `json:"monitored"`
	DownloadStatus string `gorm:"size:32" json:"download_status"`

	// Protected entries are never matched by any rule.
	Protected bool `gorm:"index" json:"protected"`

	// Per-source foreign identifiers. Zero means "not tracked by that source".
	RadarrID     int64 `gorm:"index" json:"radarr_id"`
	SonarrID     int64 `gorm:"index" json:"sonarr_id"`
	SourceFileID int64 `json:"source_file_id"`

	Tags StringList `gorm:"type:text" json:"tags"`

	// Aggregated watch-history counters, merged additively from the
	// watch-history service.
	Watched      bool       `json:"watched"`
	ViewCount    int64      `json:"view_count"`
	LastPlayedAt *time.Time `json:"last_played_at"`
	WatchTimeSec int64      `json:"watch_time_sec"`
	Viewers      StringList `gorm:"type:text" json:"viewers"`

	Extra Extra `gorm:"type:text" json:"extra"`
}

// TableName specifies the table name for Entry.
func (Entry) TableName() string {
	return "catalog_entries"
}

// WatchState derives the viewing status from the watch counters.
func (e *Entry) WatchState() WatchState {
	switch {
	case e.Watched:
		return WatchStateWatched
	case e.ViewCount > 0 || e.WatchTimeSec > 0:
		return WatchStateInProgress
	default:
		return WatchStateUnwatched
	}
}

// AgeDays returns the whole days elapsed since the entry was added.
func (e *Entry) AgeDays(now time.Time) int {
	if e.AddedAt.IsZero() {
		return 0
	}
	return int(now.Sub(e.AddedAt).Hours() / 24)
}
