package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

const validatorSystemPrompt = `You are a strict evaluation judge for AI assistant answers.
Score the actual answer against the expected answer on three 0-100 scales:
similarity (semantic closeness to the expected answer), factual accuracy
(correctness of every claim), and relevance (how directly the question is
answered). Respond with a single JSON object and nothing else:
{"similarity_score": 0-100, "factual_accuracy_score": 0-100,
"relevance_score": 0-100, "justification": "...",
"cognitive_gaps": ["..."], "improvement_suggestions": ["..."]}`

// LLMValidator scores answers by prompting a judge model for strict JSON.
type LLMValidator struct {
	Model llms.Model
}

// NewLLMValidator creates a validator backed by the given judge model.
func NewLLMValidator(model llms.Model) *LLMValidator {
	return &LLMValidator{Model: model}
}

// Validate implements Validator.
func (v *LLMValidator) Validate(ctx context.Context, question, expectedAnswer, actualAnswer string) (*Verdict, error) {
	prompt := fmt.Sprintf("Question:\n%s\n\nExpected answer:\n%s\n\nActual answer:\n%s", question, expectedAnswer, actualAnswer)

	response, err := v.Model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, validatorSystemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}, llms.WithTemperature(0))
	if err != nil {
		return nil, &ValidationError{Stage: "judge call", Detail: err.Error()}
	}
	if response == nil || len(response.Choices) == 0 {
		return nil, &ValidationError{Stage: "judge call", Detail: "empty response"}
	}

	verdict, err := parseVerdict(response.Choices[0].Content)
	if err != nil {
		return nil, err
	}
	return verdict, nil
}

// parseVerdict extracts and decodes the JSON object from judge output,
// tolerating surrounding prose and markdown fences.
func parseVerdict(raw string) (*Verdict, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return nil, &ValidationError{Stage: "judge output", Detail: err.Error()}
	}
	var verdict Verdict
	if err := json.Unmarshal([]byte(payload), &verdict); err != nil {
		return nil, &ValidationError{Stage: "judge output", Detail: fmt.Sprintf("unparseable verdict: %v", err)}
	}
	verdict.Clamp()
	return &verdict, nil
}

// extractJSON returns the first top-level JSON object or array in raw.
func extractJSON(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return "", fmt.Errorf("no JSON found in output")
	}
	var end int
	if raw[start] == '{' {
		end = strings.LastIndex(raw, "}")
	} else {
		end = strings.LastIndex(raw, "]")
	}
	if end <= start {
		return "", fmt.Errorf("unterminated JSON in output")
	}
	return raw[start : end+1], nil
}
