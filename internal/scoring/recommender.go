package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"proofbench/internal/models"
)

// FailureSample is one failing execution handed to the recommendation
// generator, already grouped by category by the caller.
type FailureSample struct {
	Category       string  `json:"category"`
	Question       string  `json:"question"`
	ExpectedAnswer string  `json:"expected_answer"`
	ActualAnswer   string  `json:"actual_answer"`
	MeanScore      float64 `json:"mean_score"`
	Justification  string  `json:"justification"`
}

// RecommendationSet is the generator's parsed output.
type RecommendationSet struct {
	Summary         string                    `json:"summary"`
	Recommendations models.RecommendationList `json:"recommendations"`
}

// RecommendationGenerator produces improvement recommendations from a
// batch of failing executions. Malformed generator output is a hard
// failure of report generation, never silently dropped.
type RecommendationGenerator interface {
	Generate(ctx context.Context, agent *models.Agent, reportType models.ReportType, failures []FailureSample) (*RecommendationSet, error)
}

const recommenderSystemPrompt = `You analyze failing evaluations of an AI agent
and produce concrete improvement recommendations. Respond with a single
JSON object and nothing else:
{"summary": "...", "recommendations": [{"priority": "high|medium|low",
"category": "...", "issue": "...", "suggestion": "...",
"evidence": ["..."]}]}`

// MaxFailureSamples bounds how many failing executions are sent to the
// generator in one call.
const MaxFailureSamples = 100

// LLMRecommendationGenerator prompts a model for a recommendation set.
type LLMRecommendationGenerator struct {
	Model llms.Model
}

// NewLLMRecommendationGenerator creates a generator backed by the given model.
func NewLLMRecommendationGenerator(model llms.Model) *LLMRecommendationGenerator {
	return &LLMRecommendationGenerator{Model: model}
}

// Generate implements RecommendationGenerator.
func (g *LLMRecommendationGenerator) Generate(ctx context.Context, agent *models.Agent, reportType models.ReportType, failures []FailureSample) (*RecommendationSet, error) {
	if len(failures) > MaxFailureSamples {
		failures = failures[:MaxFailureSamples]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Agent %q (platform %s, model %s), report type %s.\n", agent.Name, agent.Platform, agent.ModelName, reportType)
	if reportType == models.ReportSystemPrompt && agent.SystemPrompt != "" {
		fmt.Fprintf(&sb, "Current system prompt:\n%s\n", agent.SystemPrompt)
	}
	sb.WriteString("\nFailing executions grouped by category:\n")
	encoded, err := json.Marshal(failures)
	if err != nil {
		return nil, fmt.Errorf("failed to encode failure samples: %w", err)
	}
	sb.Write(encoded)

	response, err := g.Model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, recommenderSystemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, sb.String()),
	}, llms.WithTemperature(0.2))
	if err != nil {
		return nil, &ValidationError{Stage: "recommendation call", Detail: err.Error()}
	}
	if response == nil || len(response.Choices) == 0 {
		return nil, &ValidationError{Stage: "recommendation call", Detail: "empty response"}
	}

	payload, err := extractJSON(response.Choices[0].Content)
	if err != nil {
		return nil, &ValidationError{Stage: "recommendation output", Detail: err.Error()}
	}
	var set RecommendationSet
	if err := json.Unmarshal([]byte(payload), &set); err != nil {
		return nil, &ValidationError{Stage: "recommendation output", Detail: fmt.Sprintf("unparseable recommendations: %v", err)}
	}
	if len(set.Recommendations) == 0 {
		return nil, &ValidationError{Stage: "recommendation output", Detail: "no recommendations returned"}
	}
	return &set, nil
}
