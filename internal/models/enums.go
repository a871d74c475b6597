package models

// Platform identifies the external serving platform an agent is bound to.
type Platform string

const (
	PlatformAzure     Platform = "azure"
	PlatformOpenAI    Platform = "openai"
	PlatformAnthropic Platform = "anthropic"
	PlatformNative    Platform = "native"
)

// Valid reports whether the platform is one of the supported values.
func (p Platform) Valid() bool {
	switch p {
	case PlatformAzure, PlatformOpenAI, PlatformAnthropic, PlatformNative:
		return true
	}
	return false
}

// TestType discriminates quality test cases from adversarial security cases.
type TestType string

const (
	TestTypeQuality  TestType = "quality"
	TestTypeSecurity TestType = "security"
)

// ExecutionStatus is the lifecycle status of a single test execution.
type ExecutionStatus string

const (
	StatusPending ExecutionStatus = "pending"
	StatusPassed  ExecutionStatus = "passed"
	StatusFailed  ExecutionStatus = "failed"
	StatusWarning ExecutionStatus = "warning"
)

// BatchStatus is the lifecycle status of a batch run.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchCancelled BatchStatus = "cancelled"
)

// Terminal reports whether the batch can no longer change.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchCancelled
}

// RiskLevel is the declared severity of a security test case and the risk
// level of any vulnerability it uncovers.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// QualityBucket is the ordinal category an execution's mean score falls in.
type QualityBucket string

const (
	BucketExcellent QualityBucket = "EXCELLENT"
	BucketGood      QualityBucket = "GOOD"
	BucketFair      QualityBucket = "FAIR"
	BucketPoor      QualityBucket = "POOR"
)

// DisagreementLevel summarizes how many distinct buckets the raters used.
type DisagreementLevel string

const (
	DisagreementNone   DisagreementLevel = "none"
	DisagreementLow    DisagreementLevel = "low"
	DisagreementMedium DisagreementLevel = "medium"
	DisagreementHigh   DisagreementLevel = "high"
)

// ReviewStatus is the workflow state of an improvement report.
type ReviewStatus string

const (
	ReviewPending         ReviewStatus = "pending_review"
	ReviewUnderReview     ReviewStatus = "under_review"
	ReviewApproved        ReviewStatus = "approved"
	ReviewRejected        ReviewStatus = "rejected"
	ReviewRequiresChanges ReviewStatus = "requires_changes"
	ReviewApplied         ReviewStatus = "applied"
)

// ReportType distinguishes the two kinds of improvement reports.
type ReportType string

const (
	ReportKnowledgeBase ReportType = "knowledge_base"
	ReportSystemPrompt  ReportType = "system_prompt"
)
