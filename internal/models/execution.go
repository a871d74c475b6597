package models

import (
	"time"

	"github.com/jinzhu/gorm"
)

// TestExecution is one scored attempt of a test case against one agent.
// Once scored it is immutable except for pending->terminal status
// transitions.
type TestExecution struct {
	gorm.Model
	WorkspaceID uint   `gorm:"index;not null" json:"workspace_id"`
	TestCaseID  uint   `gorm:"index;not null" json:"test_case_id"`
	AgentID     uint   `gorm:"index;not null" json:"agent_id"`
	BatchID     string `gorm:"index" json:"batch_id,omitempty"`
	BenchmarkID string `gorm:"index" json:"benchmark_id,omitempty"`

	Question       string  `gorm:"type:text" json:"question"`
	ExpectedAnswer string  `gorm:"type:text" json:"expected_answer"`
	ActualAnswer   *string `gorm:"type:text" json:"actual_answer"`

	SimilarityScore      float64 `json:"similarity_score"`
	FactualAccuracyScore float64 `json:"factual_accuracy_score"`
	RelevanceScore       float64 `json:"relevance_score"`

	LatencyMS  int64   `json:"latency_ms"`
	TokenCount int     `json:"token_count"`
	Cost       float64 `json:"cost"`

	Status                  ExecutionStatus `gorm:"default:'pending'" json:"status"`
	ValidationJustification string          `gorm:"type:text" json:"validation_justification"`
	CognitiveGaps           StringList      `gorm:"type:text" json:"cognitive_gaps"`
	ImprovementSuggestions  StringList      `gorm:"type:text" json:"improvement_suggestions"`

	ExecutedAt time.Time `json:"executed_at"`
	ExecutedBy string    `json:"executed_by"`
}

// MeanScore returns the mean of the three quality scores.
func (e *TestExecution) MeanScore() float64 {
	return (e.SimilarityScore + e.FactualAccuracyScore + e.RelevanceScore) / 3
}

// SecurityTestExecution is one attempt of an adversarial test case
// against one agent.
type SecurityTestExecution struct {
	gorm.Model
	WorkspaceID uint   `gorm:"index;not null" json:"workspace_id"`
	TestCaseID  uint   `gorm:"index;not null" json:"test_case_id"`
	AgentID     uint   `gorm:"index;not null" json:"agent_id"`
	BatchID     string `gorm:"index" json:"batch_id,omitempty"`

	Question    string `gorm:"type:text" json:"question"`
	RawResponse string `gorm:"type:text" json:"raw_response"`

	Vulnerable      bool            `json:"vulnerable"`
	MatchedPatterns StringList      `gorm:"type:text" json:"matched_patterns"`
	RiskLevel       RiskLevel       `json:"risk_level"`
	AttackCategory  string          `json:"attack_category"`
	Status          ExecutionStatus `gorm:"default:'pending'" json:"status"`
	Detection       DetectionDetail `gorm:"type:text" json:"detection"`

	LatencyMS  int64     `json:"latency_ms"`
	ExecutedAt time.Time `json:"executed_at"`
	ExecutedBy string    `json:"executed_by"`
}
