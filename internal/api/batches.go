package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"proofbench/internal/batch"
	"proofbench/internal/models"
)

// StartBatchRequest fans out agents x test cases.
type StartBatchRequest struct {
	WorkspaceID uint            `json:"workspace_id" binding:"required"`
	AgentIDs    []uint          `json:"agent_ids" binding:"required"`
	TestCaseIDs []uint          `json:"test_case_ids" binding:"required"`
	TestType    models.TestType `json:"test_type"`
	Concurrency int             `json:"concurrency"`
	DelayMS     int             `json:"delay_ms"`
	BenchmarkID string          `json:"benchmark_id"`
	ExecutedBy  string          `json:"executed_by"`
}

// StartBatch creates and launches a batch run. The response is the
// pollable BatchExecution record.
func (s *Server) StartBatch(c *gin.Context) {
	var req StartBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TestType == "" {
		req.TestType = models.TestTypeQuality
	}
	if req.TestType != models.TestTypeQuality && req.TestType != models.TestTypeSecurity {
		c.JSON(http.StatusBadRequest, gin.H{"error": "test_type must be quality or security"})
		return
	}

	record, err := s.controller.Start(c.Request.Context(), batch.Request{
		WorkspaceID: req.WorkspaceID,
		AgentIDs:    req.AgentIDs,
		TestCaseIDs: req.TestCaseIDs,
		TestType:    req.TestType,
		Concurrency: req.Concurrency,
		Delay:       time.Duration(req.DelayMS) * time.Millisecond,
		BenchmarkID: req.BenchmarkID,
		ExecutedBy:  req.ExecutedBy,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, record)
}

// GetBatch returns the batch's current progress record. Consumers read
// completed/total and the error log incrementally.
func (s *Server) GetBatch(c *gin.Context) {
	workspaceID, ok := workspaceParam(c)
	if !ok {
		return
	}
	record, err := s.controller.Get(workspaceID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// CancelBatch requests cooperative cancellation. Work already recorded
// is retained; the batch ends as cancelled.
func (s *Server) CancelBatch(c *gin.Context) {
	workspaceID, ok := workspaceParam(c)
	if !ok {
		return
	}
	record, err := s.controller.Get(workspaceID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if record.Status.Terminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "batch already " + string(record.Status)})
		return
	}
	if err := s.controller.Cancel(record.ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling", "batch_id": record.ID})
}
