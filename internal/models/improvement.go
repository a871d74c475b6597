package models

import (
	"time"

	"github.com/jinzhu/gorm"
)

// ImprovementReport is an AI-generated recommendation set derived from a
// batch of failing executions, driven through a review workflow before
// it may be applied.
type ImprovementReport struct {
	gorm.Model
	WorkspaceID uint       `gorm:"index;not null" json:"workspace_id"`
	AgentID     uint       `gorm:"index;not null" json:"agent_id"`
	ReportType  ReportType `gorm:"not null" json:"report_type"`

	Summary         string             `gorm:"type:text" json:"summary"`
	Recommendations RecommendationList `gorm:"type:text" json:"recommendations"`

	// OriginalRecommendations preserves the machine-generated content
	// when a reviewer submits edits. Never overwritten.
	OriginalRecommendations RecommendationList `gorm:"type:text" json:"original_recommendations"`
	HumanEdited             bool               `json:"human_edited"`

	ReviewStatus ReviewStatus `gorm:"default:'pending_review'" json:"review_status"`
	ReviewedBy   string       `json:"reviewed_by"`
	ReviewedAt   *time.Time   `json:"reviewed_at,omitempty"`
	ReviewNotes  string       `gorm:"type:text" json:"review_notes"`

	AppliedAt *time.Time `json:"applied_at,omitempty"`
	AppliedBy string     `json:"applied_by"`

	GeneratedBy string `json:"generated_by"`
}

// Improvement is one applied recommendation item, written when an
// approved report is applied.
type Improvement struct {
	gorm.Model
	WorkspaceID uint       `gorm:"index;not null" json:"workspace_id"`
	ReportID    uint       `gorm:"index;not null" json:"report_id"`
	AgentID     uint       `gorm:"index" json:"agent_id"`
	Type        ReportType `json:"type"`
	Category    string     `json:"category"`
	Rationale   string     `gorm:"type:text" json:"rationale"`
	BeforeText  string     `gorm:"type:text" json:"before_text"`
	AfterText   string     `gorm:"type:text" json:"after_text"`
	Evidence    StringList `gorm:"type:text" json:"evidence"`
	AppliedBy   string     `json:"applied_by"`
}
