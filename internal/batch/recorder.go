package batch

import (
	"fmt"
	"time"

	"github.com/jinzhu/gorm"

	"proofbench/internal/models"
	"proofbench/internal/scoring"
	"proofbench/internal/security"
)

// Recorder persists execution attempts. Rows are created pending before
// the platform call and finalized once; scored executions are immutable
// apart from the pending to terminal status transition.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder creates a recorder over the given database.
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// BeginQuality creates a pending quality execution row. The actual
// answer stays null until the platform responds.
func (r *Recorder) BeginQuality(agent *models.Agent, testCase *models.TestCase, batchID, benchmarkID, executedBy string) (*models.TestExecution, error) {
	execution := &models.TestExecution{
		WorkspaceID:    testCase.WorkspaceID,
		TestCaseID:     testCase.ID,
		AgentID:        agent.ID,
		BatchID:        batchID,
		BenchmarkID:    benchmarkID,
		Question:       testCase.Question,
		ExpectedAnswer: testCase.ExpectedAnswer,
		Status:         models.StatusPending,
		ExecutedAt:     time.Now(),
		ExecutedBy:     executedBy,
	}
	if err := r.db.Create(execution).Error; err != nil {
		return nil, fmt.Errorf("failed to record execution: %w", err)
	}
	return execution, nil
}

// FinishQuality finalizes a quality execution with its answer, verdict
// and terminal status.
func (r *Recorder) FinishQuality(execution *models.TestExecution, answer string, verdict *scoring.Verdict, status models.ExecutionStatus, latencyMS int64, tokens int, cost float64) error {
	execution.ActualAnswer = &answer
	execution.LatencyMS = latencyMS
	execution.TokenCount = tokens
	execution.Cost = cost
	execution.Status = status
	if verdict != nil {
		execution.SimilarityScore = verdict.SimilarityScore
		execution.FactualAccuracyScore = verdict.FactualAccuracyScore
		execution.RelevanceScore = verdict.RelevanceScore
		execution.ValidationJustification = verdict.Justification
		execution.CognitiveGaps = verdict.CognitiveGaps
		execution.ImprovementSuggestions = verdict.ImprovementSuggestions
	}
	if err := r.db.Save(execution).Error; err != nil {
		return fmt.Errorf("failed to finalize execution %d: %w", execution.ID, err)
	}
	return nil
}

// FailQuality marks a pending quality execution failed with a reason.
func (r *Recorder) FailQuality(execution *models.TestExecution, reason string, latencyMS int64) error {
	execution.Status = models.StatusFailed
	execution.ValidationJustification = reason
	execution.LatencyMS = latencyMS
	if err := r.db.Save(execution).Error; err != nil {
		return fmt.Errorf("failed to record execution failure: %w", err)
	}
	return nil
}

// BeginSecurity creates a pending security execution row.
func (r *Recorder) BeginSecurity(agent *models.Agent, testCase *models.TestCase, batchID, executedBy string) (*models.SecurityTestExecution, error) {
	execution := &models.SecurityTestExecution{
		WorkspaceID:    testCase.WorkspaceID,
		TestCaseID:     testCase.ID,
		AgentID:        agent.ID,
		BatchID:        batchID,
		Question:       testCase.Question,
		RiskLevel:      testCase.Severity,
		AttackCategory: testCase.AttackCategory,
		Status:         models.StatusPending,
		ExecutedAt:     time.Now(),
		ExecutedBy:     executedBy,
	}
	if err := r.db.Create(execution).Error; err != nil {
		return nil, fmt.Errorf("failed to record security execution: %w", err)
	}
	return execution, nil
}

// FinishSecurity finalizes a security execution with the classifier
// result.
func (r *Recorder) FinishSecurity(execution *models.SecurityTestExecution, response string, result *security.Result, latencyMS int64) error {
	execution.RawResponse = response
	execution.LatencyMS = latencyMS
	execution.Status = result.Status
	execution.Vulnerable = result.Vulnerable
	execution.MatchedPatterns = result.MatchedPatterns
	execution.RiskLevel = result.RiskLevel
	execution.Detection = result.Detail
	if err := r.db.Save(execution).Error; err != nil {
		return fmt.Errorf("failed to finalize security execution %d: %w", execution.ID, err)
	}
	return nil
}

// FailSecurity marks a pending security execution failed with a reason.
func (r *Recorder) FailSecurity(execution *models.SecurityTestExecution, reason string, latencyMS int64) error {
	execution.Status = models.StatusFailed
	execution.Detection = models.DetectionDetail{Summary: reason}
	execution.LatencyMS = latencyMS
	if err := r.db.Save(execution).Error; err != nil {
		return fmt.Errorf("failed to record security execution failure: %w", err)
	}
	return nil
}
