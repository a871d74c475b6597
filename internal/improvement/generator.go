package improvement

import (
	"context"
	"fmt"

	"github.com/jinzhu/gorm"

	"proofbench/internal/models"
	"proofbench/internal/scoring"
)

// Generator turns recent failing executions into a reviewable
// improvement report through the recommendation boundary.
type Generator struct {
	db          *gorm.DB
	recommender scoring.RecommendationGenerator
}

// NewGenerator creates a report generator.
func NewGenerator(db *gorm.DB, recommender scoring.RecommendationGenerator) *Generator {
	return &Generator{db: db, recommender: recommender}
}

// Generate builds a report from the agent's most recent failing
// executions. A generation failure aborts this report only: nothing
// partial is persisted.
func (g *Generator) Generate(ctx context.Context, workspaceID, agentID uint, reportType models.ReportType, generatedBy string) (*models.ImprovementReport, error) {
	var agent models.Agent
	if err := g.db.Where("id = ? AND workspace_id = ?", agentID, workspaceID).First(&agent).Error; err != nil {
		return nil, fmt.Errorf("agent %d not found: %w", agentID, err)
	}

	var failures []models.TestExecution
	if err := g.db.Where("workspace_id = ? AND agent_id = ? AND status = ?",
		workspaceID, agentID, models.StatusFailed).
		Order("executed_at desc").
		Limit(scoring.MaxFailureSamples).
		Find(&failures).Error; err != nil {
		return nil, fmt.Errorf("failed to load failing executions: %w", err)
	}
	if len(failures) == 0 {
		return nil, fmt.Errorf("agent %d has no failing executions to analyze", agentID)
	}

	samples := make([]scoring.FailureSample, 0, len(failures))
	for _, failure := range failures {
		sample := scoring.FailureSample{
			Question:       failure.Question,
			ExpectedAnswer: failure.ExpectedAnswer,
			MeanScore:      failure.MeanScore(),
			Justification:  failure.ValidationJustification,
		}
		if failure.ActualAnswer != nil {
			sample.ActualAnswer = *failure.ActualAnswer
		}
		var testCase models.TestCase
		if err := g.db.Select("category").First(&testCase, failure.TestCaseID).Error; err == nil {
			sample.Category = testCase.Category
		}
		samples = append(samples, sample)
	}
	// Group by category so the generator sees failure clusters together.
	grouped := make([]scoring.FailureSample, 0, len(samples))
	byCategory := make(map[string][]scoring.FailureSample)
	var order []string
	for _, sample := range samples {
		if _, seen := byCategory[sample.Category]; !seen {
			order = append(order, sample.Category)
		}
		byCategory[sample.Category] = append(byCategory[sample.Category], sample)
	}
	for _, category := range order {
		grouped = append(grouped, byCategory[category]...)
	}

	set, err := g.recommender.Generate(ctx, &agent, reportType, grouped)
	if err != nil {
		return nil, fmt.Errorf("recommendation generation for agent %d failed: %w", agentID, err)
	}

	report := &models.ImprovementReport{
		WorkspaceID:             workspaceID,
		AgentID:                 agentID,
		ReportType:              reportType,
		Summary:                 set.Summary,
		Recommendations:         set.Recommendations,
		OriginalRecommendations: set.Recommendations,
		ReviewStatus:            models.ReviewPending,
		GeneratedBy:             generatedBy,
	}
	if err := g.db.Create(report).Error; err != nil {
		return nil, fmt.Errorf("failed to persist improvement report: %w", err)
	}
	return report, nil
}
