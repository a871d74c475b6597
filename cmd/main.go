package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"gopkg.in/yaml.v3"

	"proofbench/internal/agreement"
	"proofbench/internal/api"
	"proofbench/internal/batch"
	"proofbench/internal/compliance"
	"proofbench/internal/database"
	"proofbench/internal/improvement"
	"proofbench/internal/models"
	"proofbench/internal/monitoring"
	"proofbench/internal/platform"
	"proofbench/internal/scoring"
	"proofbench/internal/secrets"
	"proofbench/internal/security"
)

var (
	port        = flag.Int("port", 8080, "API server port")
	metricsPort = flag.Int("metrics-port", 9090, "Metrics server port")
	configFile  = flag.String("config", "configs/config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	config, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := database.InitDB(config.Database.Dialect, config.Database.Source); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.CloseDB()
	if err := database.Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	judge, err := initializeJudge(config)
	if err != nil {
		log.Fatalf("Failed to initialize judge model: %v", err)
	}

	metricsCollector := monitoring.NewMetricsCollector()
	monitor := monitoring.NewMonitor()
	registry := platform.NewRegistry(secrets.Default())

	detector := security.NewDetector(security.DetectorConfig{
		EchoSeverity:    models.ExecutionStatus(config.Detector.EchoSeverity),
		EchoLengthRatio: config.Detector.EchoLengthRatio,
	})

	controller := batch.NewController(
		database.GetDB(),
		registry,
		scoring.NewLLMValidator(judge),
		detector,
		metricsCollector,
		monitor,
		batch.Config{
			MaxConcurrency:   config.Batch.MaxConcurrency,
			PlatformTimeout:  time.Duration(config.Batch.PlatformTimeoutSeconds) * time.Second,
			ValidatorTimeout: time.Duration(config.Batch.ValidatorTimeoutSeconds) * time.Second,
			SecurityDelay:    time.Duration(config.Batch.SecurityDelayMS) * time.Millisecond,
			CostPer1KTokens:  config.Batch.CostPer1KTokens,
		},
	)

	server := api.NewServer(api.Deps{
		DB:           database.GetDB(),
		Registry:     registry,
		Controller:   controller,
		Analyzer:     agreement.NewAnalyzer(database.GetDB(), metricsCollector),
		Compliance:   compliance.NewGenerator(database.GetDB(), metricsCollector),
		Workflow:     improvement.NewWorkflow(database.GetDB()),
		Improvements: improvement.NewGenerator(database.GetDB(), scoring.NewLLMRecommendationGenerator(judge)),
		Monitor:      monitor,
	})

	go startMetricsServer(*metricsPort, metricsCollector)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: server.Router,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down servers...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
	}()

	log.Printf("Starting API server on port %d", *port)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("API server error: %v", err)
	}
}

// Config represents the application configuration
type Config struct {
	Database struct {
		Dialect string `yaml:"dialect"`
		Source  string `yaml:"source"`
	} `yaml:"database"`
	Judge struct {
		KeyReference string `yaml:"key_reference"`
		BaseURL      string `yaml:"base_url"`
		Model        string `yaml:"model"`
	} `yaml:"judge"`
	Batch struct {
		MaxConcurrency          int     `yaml:"max_concurrency"`
		PlatformTimeoutSeconds  int     `yaml:"platform_timeout_seconds"`
		ValidatorTimeoutSeconds int     `yaml:"validator_timeout_seconds"`
		SecurityDelayMS         int     `yaml:"security_delay_ms"`
		CostPer1KTokens         float64 `yaml:"cost_per_1k_tokens"`
	} `yaml:"batch"`
	Detector struct {
		EchoSeverity    string  `yaml:"echo_severity"`
		EchoLengthRatio float64 `yaml:"echo_length_ratio"`
	} `yaml:"detector"`
}

func loadConfig(path string) (*Config, error) {
	config := &Config{}
	config.Database.Dialect = "sqlite3"
	config.Database.Source = "proofbench.db"
	config.Judge.Model = "gpt-4o-mini"

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file %s not found, using defaults", path)
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return config, nil
}

// initializeJudge builds the scoring model used by the validator and
// the recommendation generator.
func initializeJudge(config *Config) (llms.Model, error) {
	keyRef := config.Judge.KeyReference
	if keyRef == "" {
		keyRef = "judge"
	}
	apiKey, err := secrets.Default().Resolve(keyRef)
	if err != nil {
		return nil, fmt.Errorf("judge credential %q not resolvable: %w", keyRef, err)
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(config.Judge.Model),
	}
	if config.Judge.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.Judge.BaseURL))
	}
	judge, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize judge client: %w", err)
	}
	return judge, nil
}

func startMetricsServer(port int, collector *monitoring.MetricsCollector) {
	metricsRouter := gin.Default()
	metricsRouter.GET("/metrics", gin.WrapH(promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{})))

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: metricsRouter,
	}

	log.Printf("Starting metrics server on port %d", port)
	if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Printf("Metrics server error: %v", err)
	}
}
