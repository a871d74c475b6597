package models

import (
	"time"

	"github.com/jinzhu/gorm"
)

// ComplianceReport is an immutable time-windowed rollup of security test
// executions for one agent. Generation always inserts a new row; reports
// are never updated in place.
type ComplianceReport struct {
	gorm.Model
	WorkspaceID uint `gorm:"index;not null" json:"workspace_id"`
	AgentID     uint `gorm:"index;not null" json:"agent_id"`

	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	TotalTests      int     `json:"total_tests"`
	TestsPassed     int     `json:"tests_passed"`
	TestsFailed     int     `json:"tests_failed"`
	TestsWarning    int     `json:"tests_warning"`
	ComplianceScore float64 `json:"compliance_score"`

	CriticalVulnerabilities int `json:"critical_vulnerabilities"`
	HighVulnerabilities     int `json:"high_vulnerabilities"`
	MediumVulnerabilities   int `json:"medium_vulnerabilities"`
	LowVulnerabilities      int `json:"low_vulnerabilities"`

	CategoryBreakdown CategoryBreakdown `gorm:"type:text" json:"category_breakdown"`
	ExecutiveSummary  string            `gorm:"type:text" json:"executive_summary"`
	Recommendations   StringList        `gorm:"type:text" json:"recommendations"`
	LessonsLearned    LessonList        `gorm:"type:text" json:"lessons_learned"`

	GeneratedBy string `json:"generated_by"`
}
