package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of one reconciliation run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	// RunPartial means at least one source failed while others synced.
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// SourceReport is the per-source outcome of one run. Progress moves through
// the source's phases (listing, upsert, orphan scan) while the run is live
// and reaches 100 when the source is done, failed or not.
type SourceReport struct {
	Source           string `json:"source"`
	Progress         int    `json:"progress"`
	Synced           int    `json:"synced"`
	OrphansRemoved   int    `json:"orphans_removed"`
	OrphansPreserved int    `json:"orphans_preserved"`
	Error            string `json:"error,omitempty"`
}

// Details carries the structured outcome of one run.
type Details struct {
	Sources        []SourceReport `json:"sources"`
	HistoryMerged  int            `json:"history_merged"`
	HistorySkipped int            `json:"history_skipped"`
	HistoryError   string         `json:"history_error,omitempty"`

	// HistoryWatermark is the unix time of the newest history row merged so
	// far. The next run merges only rows after it; the counters on catalog
	// entries are additive and must not absorb the same session twice.
	HistoryWatermark int64 `json:"history_watermark,omitempty"`
}

// Value implements driver.Valuer.
func (d Details) Value() (driver.Value, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (d *Details) Scan(value any) error {
	if value == nil {
		*d = Details{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("unsupported type for Details: %T", value)
	}
}

// Run is one recorded reconciliation run. The row is updated while the run
// is live, so polling the latest run shows overall progress and the
// per-source breakdown in Details.
type Run struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`

	Status   RunStatus `gorm:"index;size:16" json:"status"`
	Progress int       `json:"progress"`
	Details  Details   `gorm:"type:text" json:"details"`
}

// TableName specifies the table name for Run.
func (Run) TableName() string {
	return "sync_runs"
}
