package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringList_NilValueIsEmptyArray(t *testing.T) {
	var list StringList
	value, err := list.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(value.([]byte)), "nil must serialize as [] so readers never see SQL NULL")
}

func TestStringList_ScanAcceptsStringAndBytes(t *testing.T) {
	var fromBytes StringList
	require.NoError(t, fromBytes.Scan([]byte(`["a","b"]`)))
	assert.Equal(t, StringList{"a", "b"}, fromBytes)

	// sqlite hands text columns back as string.
	var fromString StringList
	require.NoError(t, fromString.Scan(`["c"]`))
	assert.Equal(t, StringList{"c"}, fromString)

	var fromNil StringList
	require.NoError(t, fromNil.Scan(nil))
	assert.Nil(t, fromNil)
}

func TestStringList_ScanRejectsUnsupportedType(t *testing.T) {
	var list StringList
	assert.Error(t, list.Scan(42))
}

func TestCategoryTally(t *testing.T) {
	tally := CategoryTally{Passed: 7, Failed: 2, Warning: 1}
	assert.Equal(t, 10, tally.Total())
	assert.InDelta(t, 70.0, tally.PassRate(), 1e-9)

	var empty CategoryTally
	assert.Equal(t, 0.0, empty.PassRate(), "empty tally must not divide by zero")
}

func TestAgreementEvidence_RoundTrip(t *testing.T) {
	evidence := AgreementEvidence{
		BucketCounts: map[QualityBucket]int{BucketGood: 2, BucketFair: 1},
		Responses: []RatedResponse{
			{AgentID: 1, ExecutionID: 10, Bucket: BucketGood, MeanScore: 75},
		},
		ExecutionIDs: []uint{10, 11, 12},
	}

	value, err := evidence.Value()
	require.NoError(t, err)

	var decoded AgreementEvidence
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, evidence.BucketCounts, decoded.BucketCounts)
	assert.Equal(t, evidence.Responses, decoded.Responses)
	assert.Equal(t, evidence.ExecutionIDs, decoded.ExecutionIDs)
}

func TestExecutionMeanScore(t *testing.T) {
	execution := TestExecution{
		SimilarityScore:      90,
		FactualAccuracyScore: 60,
		RelevanceScore:       75,
	}
	assert.InDelta(t, 75.0, execution.MeanScore(), 1e-9)
}

func TestBatchStatus_Terminal(t *testing.T) {
	assert.True(t, BatchCompleted.Terminal())
	assert.True(t, BatchCancelled.Terminal())
	assert.False(t, BatchRunning.Terminal())
	assert.False(t, BatchPending.Terminal())
}

func TestPlatform_Valid(t *testing.T) {
	for _, p := range []Platform{PlatformAzure, PlatformOpenAI, PlatformAnthropic, PlatformNative} {
		assert.True(t, p.Valid(), "%s must be a valid platform", p)
	}
	assert.False(t, Platform("mainframe").Valid())
}
