package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"

	"proofbench/internal/agreement"
	"proofbench/internal/batch"
	"proofbench/internal/compliance"
	"proofbench/internal/improvement"
	"proofbench/internal/monitoring"
	"proofbench/internal/platform"
	"proofbench/internal/scoring"
)

// Server is the HTTP surface of the test execution engine.
type Server struct {
	Router *gin.Engine

	db           *gorm.DB
	registry     *platform.Registry
	controller   *batch.Controller
	analyzer     *agreement.Analyzer
	compliance   *compliance.Generator
	workflow     *improvement.Workflow
	improvements *improvement.Generator
	monitor      *monitoring.Monitor
}

// Deps bundles the server's collaborators.
type Deps struct {
	DB           *gorm.DB
	Registry     *platform.Registry
	Controller   *batch.Controller
	Analyzer     *agreement.Analyzer
	Compliance   *compliance.Generator
	Workflow     *improvement.Workflow
	Improvements *improvement.Generator
	Monitor      *monitoring.Monitor
}

// NewServer creates the API server and registers all routes.
func NewServer(deps Deps) *Server {
	server := &Server{
		Router:       gin.Default(),
		db:           deps.DB,
		registry:     deps.Registry,
		controller:   deps.Controller,
		analyzer:     deps.Analyzer,
		compliance:   deps.Compliance,
		workflow:     deps.Workflow,
		improvements: deps.Improvements,
		monitor:      deps.Monitor,
	}
	server.setupRoutes()
	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Proofbench API is running"})
	})

	v1 := s.Router.Group("/api/v1")
	{
		// Single executions and connectivity checks
		v1.POST("/executions", s.ExecuteSingle)
		v1.POST("/agents/:id/test", s.TestAgentConnection)

		// Batch execution
		v1.POST("/batches", s.StartBatch)
		v1.GET("/batches/:id", s.GetBatch)
		v1.POST("/batches/:id/cancel", s.CancelBatch)
		v1.GET("/batches/:id/ws", s.StreamBatch)

		// Agreement analysis
		v1.POST("/agreement/analyze", s.AnalyzeAgreement)
		v1.GET("/agreement", s.ListAgreement)
		v1.POST("/agreement/:id/review", s.CompleteAgreementReview)

		// Compliance reports
		v1.POST("/compliance/reports", s.GenerateComplianceReport)
		v1.GET("/compliance/reports/:id", s.GetComplianceReport)

		// Improvement report workflow
		v1.POST("/improvement/reports", s.GenerateImprovementReport)
		v1.GET("/improvement/reports/:id", s.GetImprovementReport)
		v1.POST("/improvement/reports/:id/review", s.StartImprovementReview)
		v1.POST("/improvement/reports/:id/approve", s.ApproveImprovementReport)
		v1.POST("/improvement/reports/:id/reject", s.RejectImprovementReport)
		v1.POST("/improvement/reports/:id/request-changes", s.RequestImprovementChanges)
		v1.POST("/improvement/reports/:id/resubmit", s.ResubmitImprovementReport)
		v1.POST("/improvement/reports/:id/apply", s.ApplyImprovementReport)

		// Runtime metrics
		v1.GET("/metrics", s.GetRuntimeMetrics)
	}
}

// GetRuntimeMetrics returns the ad-hoc runtime metric map.
func (s *Server) GetRuntimeMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.GetMetrics())
}

// contextWithTimeout derives a bounded context from the request.
func contextWithTimeout(c *gin.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), d)
}

// respondError maps the engine's error taxonomy onto HTTP statuses. The
// body carries enough context to be actionable without exposing
// credential values.
func respondError(c *gin.Context, err error) {
	var configErr *platform.ConfigurationError
	var upstreamErr *platform.UpstreamError
	var validationErr *scoring.ValidationError
	var stateErr *improvement.InvalidStateError

	switch {
	case errors.As(err, &configErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": configErr.Error()})
	case errors.As(err, &upstreamErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": upstreamErr.Error()})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validationErr.Error()})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{"error": stateErr.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
