package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	catalogmodels "media-janitor/feature/catalog/models"
)

// FilterName identifies one filter category for diagnostics.
type FilterName string

const (
	FilterProtected    FilterName = "protected"
	FilterKind         FilterName = "kind"
	FilterAge          FilterName = "age"
	FilterRating       FilterName = "rating"
	FilterQuality      FilterName = "quality"
	FilterSize         FilterName = "size"
	FilterWatchStatus  FilterName = "watch_status"
	FilterTitle        FilterName = "title"
	FilterSource       FilterName = "source"
	FilterWatchHistory FilterName = "watch_history"
)

// AgeFilter rejects entries younger than MinDays whole days since they were
// added to the source.
type AgeFilter struct {
	Enabled bool `json:"enabled"`
	MinDays int  `json:"min_days"`
}

// RatingFilter rejects entries rated below Min. An entry without any rating
// is rejected (unlike quality absence, which is lenient).
type RatingFilter struct {
	Enabled bool    `json:"enabled"`
	Min     float64 `json:"min"`
}

// QualityFilter rejects entries whose quality ordinal falls outside the
// inclusive [MinOrdinal, MaxOrdinal] band, and/or whose quality strings do
// not contain Match. Entries with no quality data at all are included.
type QualityFilter struct {
	Enabled    bool   `json:"enabled"`
	MinOrdinal int    `json:"min_ordinal"`
	MaxOrdinal int    `json:"max_ordinal"`
	Match      string `json:"match"`
}

// SizeFilter rejects entries outside the inclusive [MinGB, MaxGB] band.
// Zero means unbounded on that side.
type SizeFilter struct {
	Enabled bool    `json:"enabled"`
	MinGB   float64 `json:"min_gb"`
	MaxGB   float64 `json:"max_gb"`
}

// WatchStatusFilter requires an exact watch-state match.
type WatchStatusFilter struct {
	Enabled bool                     `json:"enabled"`
	Status  catalogmodels.WatchState `json:"status"`
}

// TitleFilter matches the title by substring and/or exactly,
// case-insensitive. When both are set, both must hold.
type TitleFilter struct {
	Enabled  bool   `json:"enabled"`
	Contains string `json:"contains"`
	Exact    string `json:"exact"`
}

// SourceFilter rejects on acquisition-manager state: monitoring flag,
// download status, and tag intersection.
type SourceFilter struct {
	Enabled        bool     `json:"enabled"`
	Monitored      *bool    `json:"monitored,omitempty"`
	DownloadStatus string   `json:"download_status,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

// WatchHistoryFilter rejects on aggregated watch counters. Zero-valued
// thresholds are unset.
type WatchHistoryFilter struct {
	Enabled          bool    `json:"enabled"`
	MaxViews         int64   `json:"max_views"`
	MinViews         int64   `json:"min_views"`
	MinDaysSincePlay int     `json:"min_days_since_play"`
	MinWatchPercent  float64 `json:"min_watch_percent"`
}

// FilterSet is the full, typed filter catalog of one rule. Each category
// carries its own enabled flag; a disabled category is a no-op.
type FilterSet struct {
	Age          AgeFilter          `json:"age"`
	Rating       RatingFilter       `json:"rating"`
	Quality      QualityFilter      `json:"quality"`
	Size         SizeFilter         `json:"size"`
	WatchStatus  WatchStatusFilter  `json:"watch_status"`
	Title        TitleFilter        `json:"title"`
	Source       SourceFilter       `json:"source"`
	WatchHistory WatchHistoryFilter `json:"watch_history"`
}

// Value implements driver.Valuer.
func (f FilterSet) Value() (driver.Value, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (f *FilterSet) Scan(value any) error {
	return scanJSON(value, f, "FilterSet")
}

// StrategyKind is one source-specific deletion behavior.
type StrategyKind string

const (
	StrategyFileOnly     StrategyKind = "file_only"
	StrategyUnmonitor    StrategyKind = "unmonitor"
	StrategyRemoveMovie  StrategyKind = "remove_movie"
	StrategyRemoveSeries StrategyKind = "remove_series"
)

// Strategy describes how an approved deletion is carried out per source.
type Strategy struct {
	// Movie is the Radarr strategy: file_only or remove_movie.
	Movie StrategyKind `json:"movie"`
	// Show is the Sonarr strategy: file_only, unmonitor or remove_series.
	Show StrategyKind `json:"show"`
	// DeleteFiles also removes underlying files on unmonitor/remove.
	DeleteFiles bool `json:"delete_files"`
	// AddImportExclusion prevents re-acquisition after an entity removal.
	AddImportExclusion bool `json:"add_import_exclusion"`
}

// Value implements driver.Valuer.
func (s Strategy) Value() (driver.Value, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (s *Strategy) Scan(value any) error {
	return scanJSON(value, s, "Strategy")
}

// KindList is the set of media kinds a rule targets.
type KindList []catalogmodels.Kind

// Value implements driver.Valuer.
func (l KindList) Value() (driver.Value, error) {
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
func (l *KindList) Scan(value any) error {
	return scanJSON(value, l, "KindList")
}

// Contains reports whether the list includes the given kind.
// An empty list targets every kind.
func (l KindList) Contains(kind catalogmodels.Kind) bool {
	if len(l) == 0 {
		return true
	}
	for _, k := range l {
		if k == kind {
			return true
		}
	}
	return false
}

// Rule is a named, reusable deletion policy composed of toggleable filters.
type Rule struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name    string `gorm:"uniqueIndex;size:255;not null" json:"name"`
	Enabled bool   `json:"enabled"`

	Kinds    KindList  `gorm:"type:text" json:"kinds"`
	Filters  FilterSet `gorm:"type:text" json:"filters"`
	Strategy Strategy  `gorm:"type:text" json:"strategy"`

	// ScheduleMinutes runs the rule automatically at this interval.
	// Zero disables scheduling.
	ScheduleMinutes int        `json:"schedule_minutes"`
	LastRunAt       *time.Time `json:"last_run_at"`
}

// TableName specifies the table name for Rule.
func (Rule) TableName() string {
	return "rules"
}

func scanJSON(value, out any, kind string) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, out)
	case string:
		return json.Unmarshal([]byte(v), out)
	default:
		return fmt.Errorf("unsupported type for %s: %T", kind, value)
	}
}
