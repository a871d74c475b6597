package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// jsonScan unmarshals a json column value into dst, tolerating NULL.
func jsonScan(src, dst interface{}) error {
	if src == nil {
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

// StringList is a []string stored as a json column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	return jsonScan(src, l)
}

// LogLine is one entry in a batch's append-only error log.
type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// LogLines is a []LogLine stored as a json column.
type LogLines []LogLine

// Value implements driver.Valuer.
func (l LogLines) Value() (driver.Value, error) {
	if l == nil {
		l = LogLines{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *LogLines) Scan(src interface{}) error {
	return jsonScan(src, l)
}

// RatedResponse is one agent's bucketed answer inside agreement evidence.
type RatedResponse struct {
	AgentID     uint          `json:"agent_id"`
	ExecutionID uint          `json:"execution_id"`
	Bucket      QualityBucket `json:"bucket"`
	MeanScore   float64       `json:"mean_score"`
}

// AgreementEvidence is the structured evidence behind a kappa score.
type AgreementEvidence struct {
	Responses    []RatedResponse       `json:"responses"`
	BucketCounts map[QualityBucket]int `json:"bucket_counts"`
	ExecutionIDs []uint                `json:"execution_ids"`
}

// Value implements driver.Valuer.
func (e AgreementEvidence) Value() (driver.Value, error) {
	return json.Marshal(e)
}

// Scan implements sql.Scanner.
func (e *AgreementEvidence) Scan(src interface{}) error {
	return jsonScan(src, e)
}

// DetectionDetail is the structured output of the security detector.
type DetectionDetail struct {
	MatchedPatterns      []string `json:"matched_patterns"`
	SuspiciousIndicators []string `json:"suspicious_indicators"`
	Summary              string   `json:"summary"`
}

// Value implements driver.Valuer.
func (d DetectionDetail) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner.
func (d *DetectionDetail) Scan(src interface{}) error {
	return jsonScan(src, d)
}

// Recommendation is one AI-generated improvement item.
type Recommendation struct {
	Priority   string   `json:"priority"`
	Category   string   `json:"category"`
	Issue      string   `json:"issue"`
	Suggestion string   `json:"suggestion"`
	Evidence   []string `json:"evidence"`
}

// RecommendationList is a []Recommendation stored as a json column.
type RecommendationList []Recommendation

// Value implements driver.Valuer.
func (l RecommendationList) Value() (driver.Value, error) {
	if l == nil {
		l = RecommendationList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *RecommendationList) Scan(src interface{}) error {
	return jsonScan(src, l)
}

// CategoryTally is the pass/fail/warning count for one attack category.
type CategoryTally struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Warning int `json:"warning"`
}

// Total returns the number of executions in the category.
func (t CategoryTally) Total() int {
	return t.Passed + t.Failed + t.Warning
}

// PassRate returns the category pass rate as a percentage.
func (t CategoryTally) PassRate() float64 {
	total := t.Total()
	if total == 0 {
		return 0
	}
	return float64(t.Passed) / float64(total) * 100
}

// CategoryBreakdown maps attack categories to their tallies.
type CategoryBreakdown map[string]CategoryTally

// Value implements driver.Valuer.
func (b CategoryBreakdown) Value() (driver.Value, error) {
	if b == nil {
		b = CategoryBreakdown{}
	}
	return json.Marshal(b)
}

// Scan implements sql.Scanner.
func (b *CategoryBreakdown) Scan(src interface{}) error {
	return jsonScan(src, b)
}

// Lesson groups the vulnerabilities of one attack category in a
// compliance report.
type Lesson struct {
	AttackCategory  string   `json:"attack_category"`
	Vulnerabilities int      `json:"vulnerabilities"`
	PatternsToBlock []string `json:"patterns_to_block"`
	Description     string   `json:"description"`
}

// LessonList is a []Lesson stored as a json column.
type LessonList []Lesson

// Value implements driver.Valuer.
func (l LessonList) Value() (driver.Value, error) {
	if l == nil {
		l = LessonList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *LessonList) Scan(src interface{}) error {
	return jsonScan(src, l)
}
