package monitoring

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector handles metrics collection and reporting for the
// execution engine.
type MetricsCollector struct {
	registry *prometheus.Registry

	executionLatency *prometheus.HistogramVec
	executionsTotal  *prometheus.CounterVec
	batchProgress    *prometheus.GaugeVec
	vulnerabilities  *prometheus.CounterVec
	complianceScore  *prometheus.GaugeVec
	kappaScore       *prometheus.GaugeVec
}

// NewMetricsCollector creates a collector with its own registry.
func NewMetricsCollector() *MetricsCollector {
	registry := prometheus.NewRegistry()

	executionLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_execution_latency_ms",
			Help:    "Latency of test executions against agent platforms",
			Buckets: prometheus.ExponentialBuckets(50, 2, 12),
		},
		[]string{"platform", "test_type"},
	)

	executionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_executions_total",
			Help: "Test executions by terminal status",
		},
		[]string{"test_type", "status"},
	)

	batchProgress := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batch_execution_progress",
			Help: "Completed pairs of in-flight batches",
		},
		[]string{"batch_id"},
	)

	vulnerabilities := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_vulnerabilities_total",
			Help: "Detected vulnerabilities by risk level",
		},
		[]string{"risk_level"},
	)

	complianceScore := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "compliance_score_percent",
			Help: "Latest compliance score per agent",
		},
		[]string{"agent_id"},
	)

	kappaScore := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agreement_kappa_score",
			Help: "Latest Fleiss' kappa per test case",
		},
		[]string{"test_case_id"},
	)

	collectors := []prometheus.Collector{
		executionLatency, executionsTotal, batchProgress,
		vulnerabilities, complianceScore, kappaScore,
	}
	for _, collector := range collectors {
		registry.MustRegister(collector)
	}

	return &MetricsCollector{
		registry:         registry,
		executionLatency: executionLatency,
		executionsTotal:  executionsTotal,
		batchProgress:    batchProgress,
		vulnerabilities:  vulnerabilities,
		complianceScore:  complianceScore,
		kappaScore:       kappaScore,
	}
}

// Registry returns the prometheus registry for the metrics endpoint.
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// RecordExecution records a completed test execution.
func (mc *MetricsCollector) RecordExecution(platform, testType, status string, latencyMS int64) {
	mc.executionLatency.WithLabelValues(platform, testType).Observe(float64(latencyMS))
	mc.executionsTotal.WithLabelValues(testType, status).Inc()
}

// RecordBatchProgress records the completed count of a batch.
func (mc *MetricsCollector) RecordBatchProgress(batchID string, completed int) {
	mc.batchProgress.WithLabelValues(batchID).Set(float64(completed))
}

// RecordVulnerability records a detected vulnerability.
func (mc *MetricsCollector) RecordVulnerability(riskLevel string) {
	mc.vulnerabilities.WithLabelValues(riskLevel).Inc()
}

// RecordComplianceScore records an agent's latest compliance score.
func (mc *MetricsCollector) RecordComplianceScore(agentID uint, score float64) {
	mc.complianceScore.WithLabelValues(fmt.Sprintf("%d", agentID)).Set(score)
}

// RecordKappa records a test case's latest agreement score.
func (mc *MetricsCollector) RecordKappa(testCaseID uint, kappa float64) {
	mc.kappaScore.WithLabelValues(fmt.Sprintf("%d", testCaseID)).Set(kappa)
}
