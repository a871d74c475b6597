package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"proofbench/internal/models"
)

// ExecuteSingleRequest triggers one (agent, test case) execution.
type ExecuteSingleRequest struct {
	WorkspaceID uint   `json:"workspace_id" binding:"required"`
	AgentID     uint   `json:"agent_id" binding:"required"`
	TestCaseID  uint   `json:"test_case_id" binding:"required"`
	ExecutedBy  string `json:"executed_by"`
}

// ExecuteSingle runs one test case against one agent and returns the
// recorded execution. Validator failures are surfaced to the caller but
// the failed execution row is still returned for context.
func (s *Server) ExecuteSingle(c *gin.Context) {
	var req ExecuteSingleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var agent models.Agent
	if err := s.db.Where("id = ? AND workspace_id = ?", req.AgentID, req.WorkspaceID).First(&agent).Error; err != nil {
		respondError(c, err)
		return
	}
	var testCase models.TestCase
	if err := s.db.Where("id = ? AND workspace_id = ?", req.TestCaseID, req.WorkspaceID).First(&testCase).Error; err != nil {
		respondError(c, err)
		return
	}

	if testCase.IsSecurity() {
		execution, err := s.controller.ExecuteSecurity(c.Request.Context(), &agent, &testCase, "", req.ExecutedBy)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "execution": execution})
			return
		}
		c.JSON(http.StatusCreated, execution)
		return
	}

	execution, err := s.controller.ExecuteQuality(c.Request.Context(), &agent, &testCase, "", "", req.ExecutedBy)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "execution": execution})
		return
	}
	c.JSON(http.StatusCreated, execution)
}

// TestAgentConnection performs a synthetic connectivity call against the
// agent's platform, independent of any test case.
func (s *Server) TestAgentConnection(c *gin.Context) {
	agentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid agent id"})
		return
	}
	workspaceID, ok := workspaceParam(c)
	if !ok {
		return
	}

	var agent models.Agent
	if err := s.db.Where("id = ? AND workspace_id = ?", agentID, workspaceID).First(&agent).Error; err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := contextWithTimeout(c, 60*time.Second)
	defer cancel()
	result := s.registry.TestConnection(ctx, &agent)
	c.JSON(http.StatusOK, result)
}

// workspaceParam extracts the mandatory workspace_id query parameter.
// Every read is workspace-scoped at the storage boundary.
func workspaceParam(c *gin.Context) (uint, bool) {
	raw := c.Query("workspace_id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspace_id query parameter is required"})
		return 0, false
	}
	return uint(id), true
}
