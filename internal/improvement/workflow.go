package improvement

import (
	"fmt"
	"time"

	"github.com/jinzhu/gorm"

	"proofbench/internal/models"
)

// InvalidStateError indicates an illegal workflow transition. It is
// rejected synchronously with no partial effect.
type InvalidStateError struct {
	ReportID uint
	From     models.ReviewStatus
	To       models.ReviewStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("improvement report %d cannot move from %s to %s", e.ReportID, e.From, e.To)
}

// transitions is the finite transition table of the review workflow.
// Edges absent from the table are illegal.
var transitions = map[models.ReviewStatus][]models.ReviewStatus{
	models.ReviewPending: {
		models.ReviewUnderReview,
		models.ReviewApproved,
		models.ReviewRejected,
		models.ReviewRequiresChanges,
	},
	models.ReviewUnderReview: {
		models.ReviewApproved,
		models.ReviewRejected,
		models.ReviewRequiresChanges,
	},
	models.ReviewRequiresChanges: {
		models.ReviewPending,
		models.ReviewUnderReview,
	},
	models.ReviewApproved: {
		models.ReviewApplied,
	},
	// rejected and applied are terminal.
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to models.ReviewStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Workflow drives improvement reports through review and application.
type Workflow struct {
	db *gorm.DB
}

// NewWorkflow creates a workflow over the given database.
func NewWorkflow(db *gorm.DB) *Workflow {
	return &Workflow{db: db}
}

// Get loads a report scoped to its workspace.
func (w *Workflow) Get(workspaceID, reportID uint) (*models.ImprovementReport, error) {
	var report models.ImprovementReport
	if err := w.db.Where("id = ? AND workspace_id = ?", reportID, workspaceID).First(&report).Error; err != nil {
		return nil, fmt.Errorf("improvement report %d not found: %w", reportID, err)
	}
	return &report, nil
}

// transition applies one status edge with optimistic conflict detection:
// the update only lands if the stored status still matches the expected
// prior status, so a concurrent approve/reject loses cleanly.
func (w *Workflow) transition(report *models.ImprovementReport, to models.ReviewStatus, extra map[string]interface{}) error {
	from := report.ReviewStatus
	if !CanTransition(from, to) {
		return &InvalidStateError{ReportID: report.ID, From: from, To: to}
	}

	updates := map[string]interface{}{"review_status": to}
	for k, v := range extra {
		updates[k] = v
	}
	result := w.db.Model(&models.ImprovementReport{}).
		Where("id = ? AND review_status = ?", report.ID, from).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to transition report %d: %w", report.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		// Someone else moved the report first; reload to report the
		// true current state.
		var current models.ImprovementReport
		if err := w.db.First(&current, report.ID).Error; err == nil {
			return &InvalidStateError{ReportID: report.ID, From: current.ReviewStatus, To: to}
		}
		return &InvalidStateError{ReportID: report.ID, From: from, To: to}
	}
	report.ReviewStatus = to
	return nil
}

// StartReview moves a pending report under review.
func (w *Workflow) StartReview(workspaceID, reportID uint, reviewer string) (*models.ImprovementReport, error) {
	report, err := w.Get(workspaceID, reportID)
	if err != nil {
		return nil, err
	}
	if err := w.transition(report, models.ReviewUnderReview, map[string]interface{}{
		"reviewed_by": reviewer,
	}); err != nil {
		return nil, err
	}
	report.ReviewedBy = reviewer
	return report, nil
}

// ReviewDecision carries the reviewer's verdict. EditedRecommendations,
// when non-nil, replaces the working recommendation set; the original
// AI-generated content is preserved untouched for audit.
type ReviewDecision struct {
	Reviewer              string
	Notes                 string
	EditedRecommendations models.RecommendationList
}

// Approve marks the report approved, applying any reviewer edits.
func (w *Workflow) Approve(workspaceID, reportID uint, decision ReviewDecision) (*models.ImprovementReport, error) {
	return w.review(workspaceID, reportID, models.ReviewApproved, decision)
}

// Reject marks the report rejected (terminal).
func (w *Workflow) Reject(workspaceID, reportID uint, decision ReviewDecision) (*models.ImprovementReport, error) {
	return w.review(workspaceID, reportID, models.ReviewRejected, decision)
}

// RequestChanges sends the report back for rework.
func (w *Workflow) RequestChanges(workspaceID, reportID uint, decision ReviewDecision) (*models.ImprovementReport, error) {
	return w.review(workspaceID, reportID, models.ReviewRequiresChanges, decision)
}

// Resubmit returns a requires_changes report to the review queue.
func (w *Workflow) Resubmit(workspaceID, reportID uint) (*models.ImprovementReport, error) {
	report, err := w.Get(workspaceID, reportID)
	if err != nil {
		return nil, err
	}
	if err := w.transition(report, models.ReviewPending, nil); err != nil {
		return nil, err
	}
	return report, nil
}

func (w *Workflow) review(workspaceID, reportID uint, to models.ReviewStatus, decision ReviewDecision) (*models.ImprovementReport, error) {
	report, err := w.Get(workspaceID, reportID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	extra := map[string]interface{}{
		"reviewed_by":  decision.Reviewer,
		"reviewed_at":  &now,
		"review_notes": decision.Notes,
	}
	if decision.EditedRecommendations != nil {
		extra["recommendations"] = decision.EditedRecommendations
		extra["human_edited"] = true
	}

	if err := w.transition(report, to, extra); err != nil {
		return nil, err
	}

	report.ReviewedBy = decision.Reviewer
	report.ReviewedAt = &now
	report.ReviewNotes = decision.Notes
	if decision.EditedRecommendations != nil {
		report.Recommendations = decision.EditedRecommendations
		report.HumanEdited = true
	}
	return report, nil
}

// Apply turns an approved report into improvement records, one per
// recommendation item. Applying an already-applied report is an
// idempotent no-op signaled through the alreadyApplied return; applying
// from any other state fails with InvalidStateError.
func (w *Workflow) Apply(workspaceID, reportID uint, appliedBy string) (report *models.ImprovementReport, alreadyApplied bool, err error) {
	report, err = w.Get(workspaceID, reportID)
	if err != nil {
		return nil, false, err
	}
	if report.ReviewStatus == models.ReviewApplied {
		return report, true, nil
	}
	if report.ReviewStatus != models.ReviewApproved {
		return nil, false, &InvalidStateError{ReportID: report.ID, From: report.ReviewStatus, To: models.ReviewApplied}
	}

	now := time.Now()
	tx := w.db.Begin()
	if tx.Error != nil {
		return nil, false, fmt.Errorf("failed to open transaction: %w", tx.Error)
	}

	result := tx.Model(&models.ImprovementReport{}).
		Where("id = ? AND review_status = ?", report.ID, models.ReviewApproved).
		Updates(map[string]interface{}{
			"review_status": models.ReviewApplied,
			"applied_at":    &now,
			"applied_by":    appliedBy,
		})
	if result.Error != nil {
		tx.Rollback()
		return nil, false, fmt.Errorf("failed to apply report %d: %w", report.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		// Lost the race: either a concurrent apply (benign) or a
		// concurrent review change (illegal edge).
		var current models.ImprovementReport
		if err := w.db.First(&current, report.ID).Error; err == nil && current.ReviewStatus == models.ReviewApplied {
			return &current, true, nil
		}
		return nil, false, &InvalidStateError{ReportID: report.ID, From: report.ReviewStatus, To: models.ReviewApplied}
	}

	// For system prompt reports the before text is the prompt being
	// replaced; knowledge base reports have no stored prior content.
	var beforeText string
	if report.ReportType == models.ReportSystemPrompt {
		var agent models.Agent
		err := w.db.Where("id = ? AND workspace_id = ?", report.AgentID, report.WorkspaceID).First(&agent).Error
		if err != nil && !gorm.IsRecordNotFoundError(err) {
			tx.Rollback()
			return nil, false, fmt.Errorf("failed to load agent %d for report %d: %w", report.AgentID, report.ID, err)
		}
		beforeText = agent.SystemPrompt
	}

	for _, rec := range report.Recommendations {
		improvement := models.Improvement{
			WorkspaceID: report.WorkspaceID,
			ReportID:    report.ID,
			AgentID:     report.AgentID,
			Type:        report.ReportType,
			Category:    rec.Category,
			Rationale:   rec.Issue,
			BeforeText:  beforeText,
			AfterText:   rec.Suggestion,
			Evidence:    models.StringList(rec.Evidence),
			AppliedBy:   appliedBy,
		}
		if err := tx.Create(&improvement).Error; err != nil {
			tx.Rollback()
			return nil, false, fmt.Errorf("failed to record improvement for report %d: %w", report.ID, err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, false, fmt.Errorf("failed to commit apply of report %d: %w", report.ID, err)
	}

	report.ReviewStatus = models.ReviewApplied
	report.AppliedAt = &now
	report.AppliedBy = appliedBy
	return report, false, nil
}
