package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ==================== ENUMS ====================

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
)

func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

type Verdict string

const (
	VerdictBanned  Verdict = "BANNED"
	VerdictClean   Verdict = "CLEAN"
	VerdictPrivate Verdict = "PRIVATE"
	VerdictError   Verdict = "ERROR"
)

// ==================== JSONB TYPES ====================

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan JSONB: invalid type")
	}
	return json.Unmarshal(bytes, j)
}

// ==================== ENTITIES ====================

// CheckTask is the persisted unit of work for one ban-check submission.
// All mutations after creation go through the single writer owned by the
// check service, so readers always see a consistent progress/results pair.
type CheckTask struct {
	TaskID     string     `gorm:"primaryKey;size:36" json:"task_id"`
	OwnerID    string     `gorm:"size:64;index:idx_check_tasks_owner" json:"owner_id"`
	Status     TaskStatus `gorm:"size:16;not null;default:'PENDING'" json:"status"`
	Message    string     `gorm:"type:text" json:"message"`
	Progress   float64    `gorm:"not null;default:0" json:"progress"`
	Total      int        `gorm:"not null;default:0" json:"total"`
	ProxyStats JSONB      `gorm:"type:jsonb" json:"proxy_stats,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Results []CheckResult `gorm:"foreignKey:TaskID;references:TaskID" json:"results"`
}

// CheckResult is one identifier's terminal outcome within a task. The
// (task_id, steam_id) pair is unique; duplicate submissions share one row.
type CheckResult struct {
	ID       uint    `gorm:"primaryKey" json:"-"`
	TaskID   string  `gorm:"size:36;not null;uniqueIndex:idx_check_results_task_steam,priority:1" json:"-"`
	SteamID  string  `gorm:"size:64;not null;uniqueIndex:idx_check_results_task_steam,priority:2" json:"steam_id"`
	Position int     `gorm:"not null" json:"-"`
	Summary  Verdict `gorm:"size:16;not null" json:"status_summary"`
	Details  string  `gorm:"type:text" json:"details"`
}

func (CheckTask) TableName() string   { return "check_tasks" }
func (CheckResult) TableName() string { return "check_results" }

// ErrorCount counts results that ended in ERROR.
func (t *CheckTask) ErrorCount() int {
	n := 0
	for _, r := range t.Results {
		if r.Summary == VerdictError {
			n++
		}
	}
	return n
}
