package models

import (
	"time"

	"github.com/jinzhu/gorm"
)

// AgreementAnalysis is the per-test-case inter-rater agreement aggregate
// across the agent set of one benchmark run. Created once per
// (workspace, test case, benchmark); only the human-review step updates
// it afterwards.
type AgreementAnalysis struct {
	gorm.Model
	WorkspaceID uint   `gorm:"index;not null;unique_index:idx_agreement_case" json:"workspace_id"`
	TestCaseID  uint   `gorm:"not null;unique_index:idx_agreement_case" json:"test_case_id"`
	BenchmarkID string `gorm:"not null;unique_index:idx_agreement_case" json:"benchmark_id"`

	KappaScore        float64           `json:"kappa_score"`
	Interpretation    string            `json:"interpretation"`
	ConsensusCategory QualityBucket     `json:"consensus_category"`
	DisagreementLevel DisagreementLevel `json:"disagreement_level"`

	RequiresHumanReview  bool       `json:"requires_human_review"`
	HumanReviewCompleted bool       `json:"human_review_completed"`
	HumanReviewNotes     string     `gorm:"type:text" json:"human_review_notes"`
	HumanReviewedAt      *time.Time `json:"human_reviewed_at,omitempty"`

	Evidence AgreementEvidence `gorm:"type:text" json:"evidence"`
}
