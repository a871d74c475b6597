package agreement

import (
	"errors"
	"fmt"
	"time"

	"github.com/jinzhu/gorm"

	"proofbench/internal/models"
	"proofbench/internal/monitoring"
)

// InsufficientDataError indicates fewer than two qualifying executions.
// The caller skips the test case; no analysis record is produced and the
// condition is not surfaced to the user as a failure.
type InsufficientDataError struct {
	TestCaseID uint
	Raters     int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("test case %d has %d qualifying executions, need at least 2", e.TestCaseID, e.Raters)
}

// Analyzer aggregates same-test-case executions across agents into a
// categorical consensus and kappa score.
type Analyzer struct {
	db      *gorm.DB
	metrics *monitoring.MetricsCollector
}

// NewAnalyzer creates an analyzer over the given database.
func NewAnalyzer(db *gorm.DB, metrics *monitoring.MetricsCollector) *Analyzer {
	return &Analyzer{db: db, metrics: metrics}
}

// AnalyzeTestCase computes and persists one AgreementAnalysis for the
// executions of a test case within a benchmark run. An existing analysis
// for the same (workspace, test case, benchmark) triple is returned
// untouched: only the human-review step updates a created record.
func (a *Analyzer) AnalyzeTestCase(workspaceID, testCaseID uint, benchmarkID string) (*models.AgreementAnalysis, error) {
	var existing models.AgreementAnalysis
	err := a.db.Where("workspace_id = ? AND test_case_id = ? AND benchmark_id = ?",
		workspaceID, testCaseID, benchmarkID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !gorm.IsRecordNotFoundError(err) {
		return nil, fmt.Errorf("failed to look up existing analysis: %w", err)
	}

	var executions []models.TestExecution
	if err := a.db.Where("workspace_id = ? AND test_case_id = ? AND benchmark_id = ? AND status <> ?",
		workspaceID, testCaseID, benchmarkID, models.StatusPending).Find(&executions).Error; err != nil {
		return nil, fmt.Errorf("failed to load executions: %w", err)
	}

	if len(executions) < 2 {
		return nil, &InsufficientDataError{TestCaseID: testCaseID, Raters: len(executions)}
	}

	counts := make(map[models.QualityBucket]int)
	evidence := models.AgreementEvidence{
		BucketCounts: counts,
	}
	for _, execution := range executions {
		mean := execution.MeanScore()
		bucket := Bucketize(mean)
		counts[bucket]++
		evidence.Responses = append(evidence.Responses, models.RatedResponse{
			AgentID:     execution.AgentID,
			ExecutionID: execution.ID,
			Bucket:      bucket,
			MeanScore:   mean,
		})
		evidence.ExecutionIDs = append(evidence.ExecutionIDs, execution.ID)
	}

	kappa := FleissKappa(counts)
	level := Disagreement(counts)

	analysis := &models.AgreementAnalysis{
		WorkspaceID:         workspaceID,
		TestCaseID:          testCaseID,
		BenchmarkID:         benchmarkID,
		KappaScore:          kappa,
		Interpretation:      InterpretKappa(kappa),
		ConsensusCategory:   Consensus(counts),
		DisagreementLevel:   level,
		RequiresHumanReview: RequiresHumanReview(kappa, level),
		Evidence:            evidence,
	}
	if err := a.db.Create(analysis).Error; err != nil {
		return nil, fmt.Errorf("failed to persist agreement analysis: %w", err)
	}
	if a.metrics != nil {
		a.metrics.RecordKappa(testCaseID, kappa)
	}
	return analysis, nil
}

// AnalyzeBenchmark runs the per-test-case analysis for every test case
// that has executions under the benchmark. Test cases with fewer than
// two raters are silently skipped.
func (a *Analyzer) AnalyzeBenchmark(workspaceID uint, benchmarkID string) ([]*models.AgreementAnalysis, error) {
	var testCaseIDs []uint
	rows, err := a.db.Model(&models.TestExecution{}).
		Where("workspace_id = ? AND benchmark_id = ?", workspaceID, benchmarkID).
		Select("DISTINCT test_case_id").Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to list benchmark test cases: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uint
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan test case id: %w", err)
		}
		testCaseIDs = append(testCaseIDs, id)
	}

	var analyses []*models.AgreementAnalysis
	for _, testCaseID := range testCaseIDs {
		analysis, err := a.AnalyzeTestCase(workspaceID, testCaseID, benchmarkID)
		if err != nil {
			var insufficient *InsufficientDataError
			if errors.As(err, &insufficient) {
				continue
			}
			return nil, err
		}
		analyses = append(analyses, analysis)
	}
	return analyses, nil
}

// CompleteHumanReview records reviewer notes and marks the analysis
// reviewed. The kappa score and its derived fields are never recomputed.
func (a *Analyzer) CompleteHumanReview(workspaceID, analysisID uint, notes string) (*models.AgreementAnalysis, error) {
	var analysis models.AgreementAnalysis
	if err := a.db.Where("id = ? AND workspace_id = ?", analysisID, workspaceID).First(&analysis).Error; err != nil {
		return nil, fmt.Errorf("agreement analysis %d not found: %w", analysisID, err)
	}
	now := time.Now()
	updates := map[string]interface{}{
		"human_review_completed": true,
		"human_review_notes":     notes,
		"human_reviewed_at":      &now,
	}
	if err := a.db.Model(&analysis).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to record human review: %w", err)
	}
	analysis.HumanReviewCompleted = true
	analysis.HumanReviewNotes = notes
	analysis.HumanReviewedAt = &now
	return &analysis, nil
}
