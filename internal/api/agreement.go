package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"proofbench/internal/models"
)

// AnalyzeAgreementRequest triggers agreement analysis for a benchmark.
type AnalyzeAgreementRequest struct {
	WorkspaceID uint   `json:"workspace_id" binding:"required"`
	BenchmarkID string `json:"benchmark_id" binding:"required"`
}

// AnalyzeAgreement computes agreement analyses for every test case in
// the benchmark. Test cases with fewer than two raters are skipped, not
// errors.
func (s *Server) AnalyzeAgreement(c *gin.Context) {
	var req AnalyzeAgreementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	analyses, err := s.analyzer.AnalyzeBenchmark(req.WorkspaceID, req.BenchmarkID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": analyses, "count": len(analyses)})
}

// ListAgreement returns the analyses of a workspace, optionally filtered
// by benchmark or review requirement.
func (s *Server) ListAgreement(c *gin.Context) {
	workspaceID, ok := workspaceParam(c)
	if !ok {
		return
	}

	query := s.db.Where("workspace_id = ?", workspaceID)
	if benchmarkID := c.Query("benchmark_id"); benchmarkID != "" {
		query = query.Where("benchmark_id = ?", benchmarkID)
	}
	if c.Query("requires_review") == "true" {
		query = query.Where("requires_human_review = ? AND human_review_completed = ?", true, false)
	}

	var analyses []models.AgreementAnalysis
	if err := query.Find(&analyses).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analyses)
}

// CompleteAgreementReviewRequest records the human review outcome.
type CompleteAgreementReviewRequest struct {
	WorkspaceID uint   `json:"workspace_id" binding:"required"`
	Notes       string `json:"notes"`
}

// CompleteAgreementReview records reviewer notes and marks the analysis
// reviewed. The kappa score is never recomputed.
func (s *Server) CompleteAgreementReview(c *gin.Context) {
	analysisID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid analysis id"})
		return
	}
	var req CompleteAgreementReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	analysis, err := s.analyzer.CompleteHumanReview(req.WorkspaceID, uint(analysisID), req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}
