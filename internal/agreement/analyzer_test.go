package agreement

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofbench/internal/models"
	"proofbench/internal/monitoring"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.LogMode(false)
	require.NoError(t, db.AutoMigrate(&models.TestExecution{}, &models.AgreementAnalysis{}).Error)
	return db
}

func seedExecution(t *testing.T, db *gorm.DB, agentID uint, mean float64) {
	t.Helper()
	require.NoError(t, db.Create(&models.TestExecution{
		WorkspaceID:          1,
		TestCaseID:           10,
		AgentID:              agentID,
		BenchmarkID:          "bench-1",
		SimilarityScore:      mean,
		FactualAccuracyScore: mean,
		RelevanceScore:       mean,
		Status:               models.StatusPassed,
	}).Error)
}

func TestAnalyzeTestCase_UnanimousAgents(t *testing.T) {
	db := testDB(t)
	analyzer := NewAnalyzer(db, nil)
	for agentID := uint(1); agentID <= 3; agentID++ {
		seedExecution(t, db, agentID, 90)
	}

	analysis, err := analyzer.AnalyzeTestCase(1, 10, "bench-1")
	require.NoError(t, err)

	assert.Equal(t, 1.0, analysis.KappaScore)
	assert.Equal(t, "almost_perfect", analysis.Interpretation)
	assert.Equal(t, models.BucketExcellent, analysis.ConsensusCategory)
	assert.Equal(t, models.DisagreementNone, analysis.DisagreementLevel)
	assert.False(t, analysis.RequiresHumanReview)
	assert.Len(t, analysis.Evidence.Responses, 3)
}

func TestAnalyzeTestCase_MaximalDisagreement(t *testing.T) {
	db := testDB(t)
	analyzer := NewAnalyzer(db, nil)
	seedExecution(t, db, 1, 95) // excellent
	seedExecution(t, db, 2, 75) // good
	seedExecution(t, db, 3, 55) // fair
	seedExecution(t, db, 4, 20) // poor

	analysis, err := analyzer.AnalyzeTestCase(1, 10, "bench-1")
	require.NoError(t, err)

	assert.Equal(t, models.DisagreementHigh, analysis.DisagreementLevel)
	assert.True(t, analysis.RequiresHumanReview)
	assert.True(t, analysis.KappaScore < 0.4)
}

func TestAnalyzeTestCase_InsufficientRaters(t *testing.T) {
	db := testDB(t)
	analyzer := NewAnalyzer(db, nil)
	seedExecution(t, db, 1, 90)

	_, err := analyzer.AnalyzeTestCase(1, 10, "bench-1")

	var insufficient *InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 1, insufficient.Raters)

	// No record may be produced for a skipped case.
	var count int
	require.NoError(t, db.Model(&models.AgreementAnalysis{}).Count(&count).Error)
	assert.Equal(t, 0, count)
}

func TestAnalyzeTestCase_PendingExecutionsExcluded(t *testing.T) {
	db := testDB(t)
	analyzer := NewAnalyzer(db, nil)
	seedExecution(t, db, 1, 90)
	require.NoError(t, db.Create(&models.TestExecution{
		WorkspaceID: 1, TestCaseID: 10, AgentID: 2,
		BenchmarkID: "bench-1", Status: models.StatusPending,
	}).Error)

	_, err := analyzer.AnalyzeTestCase(1, 10, "bench-1")

	var insufficient *InsufficientDataError
	assert.True(t, errors.As(err, &insufficient), "pending executions must not count as raters")
}

func TestAnalyzeTestCase_ExistingAnalysisReturnedUntouched(t *testing.T) {
	db := testDB(t)
	analyzer := NewAnalyzer(db, nil)
	seedExecution(t, db, 1, 90)
	seedExecution(t, db, 2, 90)

	first, err := analyzer.AnalyzeTestCase(1, 10, "bench-1")
	require.NoError(t, err)

	// A later, divergent execution must not change the stored analysis.
	seedExecution(t, db, 3, 10)
	second, err := analyzer.AnalyzeTestCase(1, 10, "bench-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.KappaScore, second.KappaScore)
	assert.Len(t, second.Evidence.Responses, 2)
}

func TestAnalyzeBenchmark_SkipsInsufficientCases(t *testing.T) {
	db := testDB(t)
	analyzer := NewAnalyzer(db, nil)
	seedExecution(t, db, 1, 90)
	seedExecution(t, db, 2, 90)
	// Second test case has a single rater and must be skipped silently.
	require.NoError(t, db.Create(&models.TestExecution{
		WorkspaceID: 1, TestCaseID: 11, AgentID: 1,
		BenchmarkID: "bench-1", SimilarityScore: 80,
		FactualAccuracyScore: 80, RelevanceScore: 80,
		Status: models.StatusPassed,
	}).Error)

	analyses, err := analyzer.AnalyzeBenchmark(1, "bench-1")
	require.NoError(t, err)

	require.Len(t, analyses, 1)
	assert.Equal(t, uint(10), analyses[0].TestCaseID)
}

func TestCompleteHumanReview_NeverRecomputesKappa(t *testing.T) {
	db := testDB(t)
	analyzer := NewAnalyzer(db, nil)
	seedExecution(t, db, 1, 95)
	seedExecution(t, db, 2, 20)

	analysis, err := analyzer.AnalyzeTestCase(1, 10, "bench-1")
	require.NoError(t, err)
	originalKappa := analysis.KappaScore

	reviewed, err := analyzer.CompleteHumanReview(1, analysis.ID, "manual inspection: agent 2 regression")
	require.NoError(t, err)

	assert.True(t, reviewed.HumanReviewCompleted)
	assert.Equal(t, "manual inspection: agent 2 regression", reviewed.HumanReviewNotes)
	assert.NotNil(t, reviewed.HumanReviewedAt)
	assert.Equal(t, originalKappa, reviewed.KappaScore)

	var stored models.AgreementAnalysis
	require.NoError(t, db.First(&stored, analysis.ID).Error)
	assert.Equal(t, originalKappa, stored.KappaScore)
	assert.True(t, stored.HumanReviewCompleted)
}

func TestCompleteHumanReview_ScopedToWorkspace(t *testing.T) {
	db := testDB(t)
	analyzer := NewAnalyzer(db, nil)
	seedExecution(t, db, 1, 95)
	seedExecution(t, db, 2, 20)

	analysis, err := analyzer.AnalyzeTestCase(1, 10, "bench-1")
	require.NoError(t, err)

	_, err = analyzer.CompleteHumanReview(2, analysis.ID, "cross-workspace attempt")
	assert.Error(t, err, "an analysis must not be reviewable from another workspace")

	var stored models.AgreementAnalysis
	require.NoError(t, db.First(&stored, analysis.ID).Error)
	assert.False(t, stored.HumanReviewCompleted)

	_, err = analyzer.CompleteHumanReview(1, analysis.ID, "agent 2 regression")
	require.NoError(t, err)
}

func TestAnalyzeTestCase_RecordsKappaGauge(t *testing.T) {
	db := testDB(t)
	collector := monitoring.NewMetricsCollector()
	analyzer := NewAnalyzer(db, collector)
	seedExecution(t, db, 1, 90)
	seedExecution(t, db, 2, 90)

	_, err := analyzer.AnalyzeTestCase(1, 10, "bench-1")
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(collector.Registry(), "agreement_kappa_score")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
