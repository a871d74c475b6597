package models

import (
	"time"
)

// BatchExecution tracks one run of many test executions. Counters are
// mutated incrementally by the batch controller's accumulator; the record
// is terminal once status is completed or cancelled.
type BatchExecution struct {
	ID          string   `gorm:"primary_key" json:"id"`
	WorkspaceID uint     `gorm:"index;not null" json:"workspace_id"`
	TestType    TestType `json:"test_type"`

	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`

	Status              BatchStatus `gorm:"default:'pending'" json:"status"`
	StartedAt           time.Time   `json:"started_at"`
	EstimatedCompletion *time.Time  `json:"estimated_completion,omitempty"`
	ErrorLog            LogLines    `gorm:"type:text" json:"error_log"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
