package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	catalogmodels "media-janitor/feature/catalog/models"
	rulesmodels "media-janitor/feature/rules/models"
)

// Status is the lifecycle state of a pending deletion request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// EntrySnapshot is an owned copy of the catalog entry taken at proposal
// time. Later edits to the live entry never alter it.
type EntrySnapshot catalogmodels.Entry

// Value implements driver.Valuer.
func (s EntrySnapshot) Value() (driver.Value, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (s *EntrySnapshot) Scan(value any) error {
	return scanJSON(value, s, "EntrySnapshot")
}

// RuleSnapshot is an owned copy of the rule taken at proposal time.
type RuleSnapshot rulesmodels.Rule

// Value implements driver.Valuer.
func (s RuleSnapshot) Value() (driver.Value, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (s *RuleSnapshot) Scan(value any) error {
	return scanJSON(value, s, "RuleSnapshot")
}

// Request is one proposed removal of one catalog entry under one rule.
//
// At most one request with a non-terminal status may exist per
// (entry, rule) pair; the workflow enforces this on Propose.
type Request struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RuleID  uint `gorm:"index" json:"rule_id"`
	EntryID uint `gorm:"index" json:"entry_id"`

	// SizeBytes duplicates the snapshot size so status summaries can SUM
	// without unpacking JSON.
	SizeBytes int64 `json:"size_bytes"`

	Entry EntrySnapshot `gorm:"type:text" json:"entry"`
	Rule  RuleSnapshot  `gorm:"type:text" json:"rule"`

	Status       Status     `gorm:"index;size:16" json:"status"`
	ScheduledFor *time.Time `json:"scheduled_for"`

	ApprovedBy    string `gorm:"size:255" json:"approved_by"`
	ApproveReason string `gorm:"size:1024" json:"approve_reason"`
	CancelledBy   string `gorm:"size:255" json:"cancelled_by"`
	CancelReason  string `gorm:"size:1024" json:"cancel_reason"`

	CompletedAt *time.Time               `json:"completed_at"`
	Results     catalogmodels.StringList `gorm:"type:text" json:"results"`
	Error       string                   `gorm:"size:2048" json:"error"`
}

// TableName specifies the table name for Request.
func (Request) TableName() string {
	return "pending_deletions"
}

// HistoryRecord is one immutable audit log entry for an executed (or
// attempted) deletion. Never updated; deleted only by the admin bulk-clear.
type HistoryRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	RuleID    uint   `gorm:"index" json:"rule_id"`
	RuleName  string `gorm:"size:255" json:"rule_name"`
	EntryID   uint   `gorm:"index" json:"entry_id"`
	EntryPath string `gorm:"size:768" json:"entry_path"`

	Files      catalogmodels.StringList `gorm:"type:text" json:"files"`
	BytesFreed int64                    `json:"bytes_freed"`
	Success    bool                     `json:"success"`
	Error      string                   `gorm:"size:2048" json:"error"`
}

// TableName specifies the table name for HistoryRecord.
func (HistoryRecord) TableName() string {
	return "deletion_history"
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
