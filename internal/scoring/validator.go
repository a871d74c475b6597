package scoring

import (
	"context"
	"fmt"
)

// Verdict is the scoring oracle's judgment of one answer.
type Verdict struct {
	SimilarityScore        float64  `json:"similarity_score"`
	FactualAccuracyScore   float64  `json:"factual_accuracy_score"`
	RelevanceScore         float64  `json:"relevance_score"`
	Justification          string   `json:"justification"`
	CognitiveGaps          []string `json:"cognitive_gaps"`
	ImprovementSuggestions []string `json:"improvement_suggestions"`
}

// MeanScore returns the mean of the three scores.
func (v *Verdict) MeanScore() float64 {
	return (v.SimilarityScore + v.FactualAccuracyScore + v.RelevanceScore) / 3
}

// Clamp bounds all scores to the 0-100 range.
func (v *Verdict) Clamp() {
	v.SimilarityScore = clamp(v.SimilarityScore)
	v.FactualAccuracyScore = clamp(v.FactualAccuracyScore)
	v.RelevanceScore = clamp(v.RelevanceScore)
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Validator scores an actual answer against the expected one. It is an
// opaque oracle: callers only depend on the verdict shape.
type Validator interface {
	Validate(ctx context.Context, question, expectedAnswer, actualAnswer string) (*Verdict, error)
}

// ValidationError indicates the scoring oracle failed or returned
// output the engine could not parse.
type ValidationError struct {
	Stage  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed at %s: %s", e.Stage, e.Detail)
}
