package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"proofbench/internal/improvement"
	"proofbench/internal/models"
)

// GenerateComplianceRequest asks for a compliance rollup of one agent.
type GenerateComplianceRequest struct {
	WorkspaceID uint       `json:"workspace_id" binding:"required"`
	AgentID     uint       `json:"agent_id" binding:"required"`
	PeriodStart *time.Time `json:"period_start"`
	PeriodEnd   *time.Time `json:"period_end"`
	GeneratedBy string     `json:"generated_by"`
}

// GenerateComplianceReport builds and persists a new compliance report.
func (s *Server) GenerateComplianceReport(c *gin.Context) {
	var req GenerateComplianceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var start, end time.Time
	if req.PeriodStart != nil {
		start = *req.PeriodStart
	}
	if req.PeriodEnd != nil {
		end = *req.PeriodEnd
	}

	report, err := s.compliance.Generate(req.WorkspaceID, req.AgentID, start, end, req.GeneratedBy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

// GetComplianceReport returns one stored compliance report.
func (s *Server) GetComplianceReport(c *gin.Context) {
	workspaceID, ok := workspaceParam(c)
	if !ok {
		return
	}
	reportID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return
	}

	var report models.ComplianceReport
	if err := s.db.Where("id = ? AND workspace_id = ?", reportID, workspaceID).First(&report).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GenerateImprovementRequest asks for a recommendation report.
type GenerateImprovementRequest struct {
	WorkspaceID uint              `json:"workspace_id" binding:"required"`
	AgentID     uint              `json:"agent_id" binding:"required"`
	ReportType  models.ReportType `json:"report_type" binding:"required"`
	GeneratedBy string            `json:"generated_by"`
}

// GenerateImprovementReport derives a reviewable report from the agent's
// recent failing executions.
func (s *Server) GenerateImprovementReport(c *gin.Context) {
	var req GenerateImprovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ReportType != models.ReportKnowledgeBase && req.ReportType != models.ReportSystemPrompt {
		c.JSON(http.StatusBadRequest, gin.H{"error": "report_type must be knowledge_base or system_prompt"})
		return
	}

	report, err := s.improvements.Generate(c.Request.Context(), req.WorkspaceID, req.AgentID, req.ReportType, req.GeneratedBy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

// GetImprovementReport returns one improvement report.
func (s *Server) GetImprovementReport(c *gin.Context) {
	workspaceID, ok := workspaceParam(c)
	if !ok {
		return
	}
	reportID, ok := reportParam(c)
	if !ok {
		return
	}
	report, err := s.workflow.Get(workspaceID, reportID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ReviewRequest carries the reviewer's identity, notes and optional
// edited recommendation content.
type ReviewRequest struct {
	WorkspaceID     uint                      `json:"workspace_id" binding:"required"`
	Reviewer        string                    `json:"reviewer"`
	Notes           string                    `json:"notes"`
	Recommendations models.RecommendationList `json:"recommendations"`
}

// StartImprovementReview moves a pending report under review.
func (s *Server) StartImprovementReview(c *gin.Context) {
	reportID, ok := reportParam(c)
	if !ok {
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := s.workflow.StartReview(req.WorkspaceID, reportID, req.Reviewer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ApproveImprovementReport approves the report, applying reviewer edits
// if present.
func (s *Server) ApproveImprovementReport(c *gin.Context) {
	s.decide(c, func(workspaceID, reportID uint, decision improvement.ReviewDecision) (*models.ImprovementReport, error) {
		return s.workflow.Approve(workspaceID, reportID, decision)
	})
}

// RejectImprovementReport rejects the report (terminal).
func (s *Server) RejectImprovementReport(c *gin.Context) {
	s.decide(c, func(workspaceID, reportID uint, decision improvement.ReviewDecision) (*models.ImprovementReport, error) {
		return s.workflow.Reject(workspaceID, reportID, decision)
	})
}

// RequestImprovementChanges sends the report back for rework.
func (s *Server) RequestImprovementChanges(c *gin.Context) {
	s.decide(c, func(workspaceID, reportID uint, decision improvement.ReviewDecision) (*models.ImprovementReport, error) {
		return s.workflow.RequestChanges(workspaceID, reportID, decision)
	})
}

func (s *Server) decide(c *gin.Context, apply func(uint, uint, improvement.ReviewDecision) (*models.ImprovementReport, error)) {
	reportID, ok := reportParam(c)
	if !ok {
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := apply(req.WorkspaceID, reportID, improvement.ReviewDecision{
		Reviewer:              req.Reviewer,
		Notes:                 req.Notes,
		EditedRecommendations: req.Recommendations,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ResubmitImprovementReport returns a requires_changes report to the
// review queue.
func (s *Server) ResubmitImprovementReport(c *gin.Context) {
	workspaceID, ok := workspaceParam(c)
	if !ok {
		return
	}
	reportID, ok := reportParam(c)
	if !ok {
		return
	}
	report, err := s.workflow.Resubmit(workspaceID, reportID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ApplyRequest applies an approved report.
type ApplyRequest struct {
	WorkspaceID uint   `json:"workspace_id" binding:"required"`
	AppliedBy   string `json:"applied_by"`
}

// ApplyImprovementReport applies an approved report, writing one
// improvement record per recommendation. Re-applying an applied report
// is an idempotent no-op.
func (s *Server) ApplyImprovementReport(c *gin.Context) {
	reportID, ok := reportParam(c)
	if !ok {
		return
	}
	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, alreadyApplied, err := s.workflow.Apply(req.WorkspaceID, reportID, req.AppliedBy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report, "already_applied": alreadyApplied})
}

func reportParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return 0, false
	}
	return uint(id), true
}
