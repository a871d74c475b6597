package batch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"golang.org/x/time/rate"

	"proofbench/internal/models"
	"proofbench/internal/monitoring"
	"proofbench/internal/platform"
	"proofbench/internal/scoring"
	"proofbench/internal/security"
)

// Config bounds the controller's resource usage.
type Config struct {
	// MaxConcurrency caps the worker pool size requested per batch.
	MaxConcurrency int
	// PlatformTimeout bounds each agent platform call.
	PlatformTimeout time.Duration
	// ValidatorTimeout bounds each scoring call, independently of the
	// platform call.
	ValidatorTimeout time.Duration
	// SecurityDelay is the default fixed inter-call delay for security
	// batches, to respect upstream rate limits.
	SecurityDelay time.Duration
	// CostPer1KTokens converts token counts into execution cost.
	CostPer1KTokens float64
}

// DefaultConfig returns the controller defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:   10,
		PlatformTimeout:  60 * time.Second,
		ValidatorTimeout: 60 * time.Second,
		SecurityDelay:    2 * time.Second,
	}
}

// Request describes one batch run.
type Request struct {
	WorkspaceID uint
	AgentIDs    []uint
	TestCaseIDs []uint
	TestType    models.TestType
	// Concurrency is the desired worker count for quality batches,
	// clamped to [1, Config.MaxConcurrency].
	Concurrency int
	// Delay overrides the fixed inter-call delay for security batches.
	Delay time.Duration
	// BenchmarkID groups the resulting executions for agreement
	// analysis. Defaults to the batch id.
	BenchmarkID string
	ExecutedBy  string
}

// Controller fans out agents x test cases with bounded concurrency,
// progress tracking and cooperative cancellation.
type Controller struct {
	db        *gorm.DB
	registry  *platform.Registry
	validator scoring.Validator
	detector  *security.Detector
	recorder  *Recorder
	metrics   *monitoring.MetricsCollector
	monitor   *monitoring.Monitor
	config    Config

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewController wires a controller.
func NewController(db *gorm.DB, registry *platform.Registry, validator scoring.Validator, detector *security.Detector, metrics *monitoring.MetricsCollector, monitor *monitoring.Monitor, config Config) *Controller {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if config.PlatformTimeout <= 0 {
		config.PlatformTimeout = DefaultConfig().PlatformTimeout
	}
	if config.ValidatorTimeout <= 0 {
		config.ValidatorTimeout = DefaultConfig().ValidatorTimeout
	}
	if config.SecurityDelay <= 0 {
		config.SecurityDelay = DefaultConfig().SecurityDelay
	}
	return &Controller{
		db:        db,
		registry:  registry,
		validator: validator,
		detector:  detector,
		recorder:  NewRecorder(db),
		metrics:   metrics,
		monitor:   monitor,
		config:    config,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// pair is one (agent, test case) unit of work.
type pair struct {
	agent    models.Agent
	testCase models.TestCase
}

// completionEvent is what workers submit to the accumulator. Workers
// never touch the batch counters directly.
type completionEvent struct {
	success bool
	errMsg  string
}

// Start validates the request, creates the BatchExecution record and
// launches the run in the background. The returned record is the
// pollable progress handle.
func (c *Controller) Start(ctx context.Context, req Request) (*models.BatchExecution, error) {
	pairs, err := c.loadPairs(req)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no matching (agent, test case) pairs for %s batch", req.TestType)
	}

	batch := &models.BatchExecution{
		ID:          uuid.New().String(),
		WorkspaceID: req.WorkspaceID,
		TestType:    req.TestType,
		Total:       len(pairs),
		Status:      models.BatchRunning,
		StartedAt:   time.Now(),
		ErrorLog:    models.LogLines{},
	}
	if err := c.db.Create(batch).Error; err != nil {
		return nil, fmt.Errorf("failed to create batch record: %w", err)
	}
	if req.BenchmarkID == "" {
		req.BenchmarkID = batch.ID
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancels[batch.ID] = cancel
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.cancels, batch.ID)
			c.mu.Unlock()
			cancel()
		}()
		c.run(runCtx, batch, pairs, req)
	}()

	return batch, nil
}

// Cancel requests cooperative cancellation of a running batch. In-flight
// pairs finish; no new pairs are dispatched.
func (c *Controller) Cancel(batchID string) error {
	c.mu.Lock()
	cancel, ok := c.cancels[batchID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("batch %s is not running", batchID)
	}
	cancel()
	return nil
}

// Get returns the current batch record.
func (c *Controller) Get(workspaceID uint, batchID string) (*models.BatchExecution, error) {
	var batch models.BatchExecution
	if err := c.db.Where("id = ? AND workspace_id = ?", batchID, workspaceID).First(&batch).Error; err != nil {
		return nil, fmt.Errorf("batch %s not found: %w", batchID, err)
	}
	return &batch, nil
}

// loadPairs resolves the request's agents and test cases, filtering out
// test cases of the wrong type.
func (c *Controller) loadPairs(req Request) ([]pair, error) {
	var agents []models.Agent
	if err := c.db.Where("workspace_id = ? AND id IN (?)", req.WorkspaceID, req.AgentIDs).Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("failed to load agents: %w", err)
	}
	var testCases []models.TestCase
	if err := c.db.Where("workspace_id = ? AND id IN (?) AND test_type = ?", req.WorkspaceID, req.TestCaseIDs, req.TestType).Find(&testCases).Error; err != nil {
		return nil, fmt.Errorf("failed to load test cases: %w", err)
	}

	pairs := make([]pair, 0, len(agents)*len(testCases))
	for _, agent := range agents {
		for _, testCase := range testCases {
			pairs = append(pairs, pair{agent: agent, testCase: testCase})
		}
	}
	return pairs, nil
}

// run dispatches all pairs and drives the accumulator to completion.
func (c *Controller) run(ctx context.Context, batch *models.BatchExecution, pairs []pair, req Request) {
	events := make(chan completionEvent)
	accDone := make(chan struct{})
	go c.accumulate(batch, events, accDone)

	var dispatched int
	if req.TestType == models.TestTypeSecurity {
		dispatched = c.runThrottled(ctx, batch, pairs, req, events)
	} else {
		dispatched = c.runPooled(ctx, batch, pairs, req, events)
	}
	close(events)
	<-accDone

	// A cancel that lands while the final pair is in flight leaves
	// dispatched == len(pairs); the context tells the two ends apart.
	status := models.BatchCompleted
	if dispatched < len(pairs) || ctx.Err() != nil {
		status = models.BatchCancelled
	}
	if c.monitor != nil {
		c.monitor.RecordBatchResult(batch.ID, batch.Completed, batch.Successful, batch.Failed)
	}
	if err := c.db.Model(batch).Updates(map[string]interface{}{"status": status}).Error; err != nil {
		log.Printf("batch %s: failed to persist terminal status: %v", batch.ID, err)
	}
	batch.Status = status
	log.Printf("batch %s finished: status=%s completed=%d/%d", batch.ID, status, batch.Completed, batch.Total)
}

// runPooled processes quality pairs through a bounded worker pool.
// Returns the number of pairs actually dispatched.
func (c *Controller) runPooled(ctx context.Context, batch *models.BatchExecution, pairs []pair, req Request, events chan<- completionEvent) int {
	workers := req.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > c.config.MaxConcurrency {
		workers = c.config.MaxConcurrency
	}

	jobs := make(chan pair)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				events <- c.executePair(ctx, batch, p, req)
			}
		}()
	}

	dispatched := 0
dispatch:
	for _, p := range pairs {
		// Cancellation is checked between pairs only; in-flight calls
		// are allowed to finish.
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- p:
			dispatched++
		}
	}
	close(jobs)
	wg.Wait()
	return dispatched
}

// runThrottled processes security pairs serially with a fixed inter-call
// delay to respect upstream rate limits.
func (c *Controller) runThrottled(ctx context.Context, batch *models.BatchExecution, pairs []pair, req Request, events chan<- completionEvent) int {
	delay := req.Delay
	if delay <= 0 {
		delay = c.config.SecurityDelay
	}
	limiter := rate.NewLimiter(rate.Every(delay), 1)

	dispatched := 0
	for _, p := range pairs {
		select {
		case <-ctx.Done():
			return dispatched
		default:
		}
		if err := limiter.Wait(ctx); err != nil {
			return dispatched
		}
		dispatched++
		events <- c.executePair(ctx, batch, p, req)
	}
	return dispatched
}

// accumulate is the single owner of the batch's mutable counters. It
// applies completion events, appends error log lines and recomputes the
// estimated completion time from observed throughput.
func (c *Controller) accumulate(batch *models.BatchExecution, events <-chan completionEvent, done chan<- struct{}) {
	defer close(done)
	for event := range events {
		batch.Completed++
		if event.success {
			batch.Successful++
		} else {
			batch.Failed++
			if event.errMsg != "" {
				batch.ErrorLog = append(batch.ErrorLog, models.LogLine{
					Timestamp: time.Now(),
					Level:     "error",
					Message:   event.errMsg,
				})
			}
		}

		elapsed := time.Since(batch.StartedAt)
		if batch.Completed > 0 && batch.Completed < batch.Total {
			perPair := elapsed / time.Duration(batch.Completed)
			eta := time.Now().Add(perPair * time.Duration(batch.Total-batch.Completed))
			batch.EstimatedCompletion = &eta
		}

		updates := map[string]interface{}{
			"completed":            batch.Completed,
			"successful":           batch.Successful,
			"failed":               batch.Failed,
			"error_log":            batch.ErrorLog,
			"estimated_completion": batch.EstimatedCompletion,
		}
		if err := c.db.Model(&models.BatchExecution{}).Where("id = ?", batch.ID).Updates(updates).Error; err != nil {
			log.Printf("batch %s: failed to persist progress: %v", batch.ID, err)
		}
		if c.metrics != nil {
			c.metrics.RecordBatchProgress(batch.ID, batch.Completed)
		}
	}
}

// executePair runs one pair and reports the outcome. A pair failure is
// isolated: it is recorded as a failed execution and never aborts the
// batch.
func (c *Controller) executePair(ctx context.Context, batch *models.BatchExecution, p pair, req Request) completionEvent {
	var status models.ExecutionStatus
	var err error
	if req.TestType == models.TestTypeSecurity {
		var execution *models.SecurityTestExecution
		execution, err = c.ExecuteSecurity(ctx, &p.agent, &p.testCase, batch.ID, req.ExecutedBy)
		if execution != nil {
			status = execution.Status
		}
	} else {
		var execution *models.TestExecution
		execution, err = c.ExecuteQuality(ctx, &p.agent, &p.testCase, batch.ID, req.BenchmarkID, req.ExecutedBy)
		if execution != nil {
			status = execution.Status
		}
	}
	if err != nil {
		return completionEvent{
			success: false,
			errMsg:  fmt.Sprintf("agent %d (%s) x test case %d: %v", p.agent.ID, p.agent.Platform, p.testCase.ID, err),
		}
	}
	return completionEvent{success: status != models.StatusFailed}
}

// ExecuteQuality runs one quality pair: platform call, then validation,
// then a terminal status from the verdict against the case's minimum
// acceptable score. Platform and validator calls carry independent
// timeouts; a timeout is a failed execution, not a crash.
func (c *Controller) ExecuteQuality(ctx context.Context, agent *models.Agent, testCase *models.TestCase, batchID, benchmarkID, executedBy string) (*models.TestExecution, error) {
	execution, err := c.recorder.BeginQuality(agent, testCase, batchID, benchmarkID, executedBy)
	if err != nil {
		return nil, err
	}

	// Batch cancellation gates dispatch only; a pair already dispatched
	// runs to its own timeout.
	start := time.Now()
	callCtx, cancelCall := context.WithTimeout(context.WithoutCancel(ctx), c.config.PlatformTimeout)
	reply, err := c.registry.Send(callCtx, agent, testCase.Question, "")
	cancelCall()
	latency := time.Since(start).Milliseconds()
	if err != nil {
		if recErr := c.recorder.FailQuality(execution, err.Error(), latency); recErr != nil {
			log.Printf("batch %s: %v", batchID, recErr)
		}
		return execution, err
	}

	validateCtx, cancelValidate := context.WithTimeout(context.WithoutCancel(ctx), c.config.ValidatorTimeout)
	verdict, err := c.validator.Validate(validateCtx, testCase.Question, testCase.ExpectedAnswer, reply.Text)
	cancelValidate()
	if err != nil {
		if recErr := c.recorder.FailQuality(execution, fmt.Sprintf("answer received but validation failed: %v", err), latency); recErr != nil {
			log.Printf("batch %s: %v", batchID, recErr)
		}
		return execution, err
	}

	status := models.StatusFailed
	if verdict.MeanScore() >= testCase.MinScore {
		status = models.StatusPassed
	}
	cost := float64(reply.TokensUsed) / 1000 * c.config.CostPer1KTokens
	if err := c.recorder.FinishQuality(execution, reply.Text, verdict, status, latency, reply.TokensUsed, cost); err != nil {
		return execution, err
	}
	if c.metrics != nil {
		c.metrics.RecordExecution(string(agent.Platform), string(models.TestTypeQuality), string(status), latency)
	}
	return execution, nil
}

// ExecuteSecurity runs one adversarial pair: platform call, then pattern
// and heuristic classification.
func (c *Controller) ExecuteSecurity(ctx context.Context, agent *models.Agent, testCase *models.TestCase, batchID, executedBy string) (*models.SecurityTestExecution, error) {
	execution, err := c.recorder.BeginSecurity(agent, testCase, batchID, executedBy)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	callCtx, cancelCall := context.WithTimeout(context.WithoutCancel(ctx), c.config.PlatformTimeout)
	reply, err := c.registry.Send(callCtx, agent, testCase.Question, "")
	cancelCall()
	latency := time.Since(start).Milliseconds()
	if err != nil {
		if recErr := c.recorder.FailSecurity(execution, err.Error(), latency); recErr != nil {
			log.Printf("batch %s: %v", batchID, recErr)
		}
		return execution, err
	}

	result := c.detector.Analyze(testCase, reply.Text)
	if err := c.recorder.FinishSecurity(execution, reply.Text, result, latency); err != nil {
		return execution, err
	}
	if c.metrics != nil {
		c.metrics.RecordExecution(string(agent.Platform), string(models.TestTypeSecurity), string(result.Status), latency)
		if result.Vulnerable {
			c.metrics.RecordVulnerability(string(result.RiskLevel))
		}
	}
	return execution, nil
}
