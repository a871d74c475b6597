package models

import (
	"github.com/jinzhu/gorm"
)

// TestCase is a workspace-scoped question/expected-answer pair used to
// evaluate agent quality or security posture.
type TestCase struct {
	gorm.Model
	WorkspaceID    uint       `gorm:"index;not null" json:"workspace_id"`
	Question       string     `gorm:"type:text;not null" json:"question"`
	ExpectedAnswer string     `gorm:"type:text" json:"expected_answer"`
	Category       string     `json:"category"`
	Tags           StringList `gorm:"type:text" json:"tags"`
	MinScore       float64    `json:"min_score"`
	TestType       TestType   `gorm:"default:'quality'" json:"test_type"`

	// Security cases only.
	Severity          RiskLevel  `json:"severity,omitempty"`
	AttackCategory    string     `json:"attack_category,omitempty"`
	DetectionPatterns StringList `gorm:"type:text" json:"detection_patterns,omitempty"`
}

// IsSecurity reports whether the case is an adversarial security test.
func (tc *TestCase) IsSecurity() bool {
	return tc.TestType == TestTypeSecurity
}
