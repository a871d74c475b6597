package agreement

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"proofbench/internal/models"
)

func TestBucketize(t *testing.T) {
	cases := []struct {
		score float64
		want  models.QualityBucket
	}{
		{100, models.BucketExcellent},
		{85, models.BucketExcellent},
		{84.9, models.BucketGood},
		{70, models.BucketGood},
		{69.9, models.BucketFair},
		{50, models.BucketFair},
		{49.9, models.BucketPoor},
		{0, models.BucketPoor},
	}
	for _, tc := range cases {
		if got := Bucketize(tc.score); got != tc.want {
			t.Errorf("Bucketize(%v) = %v, want %v", tc.score, got, tc.want)
		}
	}
}

func TestFleissKappa_PerfectAgreement(t *testing.T) {
	counts := map[models.QualityBucket]int{models.BucketGood: 5}

	kappa := FleissKappa(counts)

	assert.Equal(t, 1.0, kappa)
	assert.Equal(t, "almost_perfect", InterpretKappa(kappa))
	assert.False(t, RequiresHumanReview(kappa, Disagreement(counts)))
}

func TestFleissKappa_EvenSplit(t *testing.T) {
	// Two raters, two buckets: P_o = 0, P_e = 0.5, kappa = -1.
	counts := map[models.QualityBucket]int{
		models.BucketExcellent: 1,
		models.BucketPoor:      1,
	}

	kappa := FleissKappa(counts)

	assert.InDelta(t, -1.0, kappa, 1e-9)
	assert.Equal(t, "poor", InterpretKappa(kappa))
	assert.True(t, RequiresHumanReview(kappa, Disagreement(counts)))
}

func TestFleissKappa_MajorityAgreement(t *testing.T) {
	// 4 of 5 raters agree: P_o = (16+1-5)/20 = 0.6, P_e = 0.64+0.04 = 0.68.
	counts := map[models.QualityBucket]int{
		models.BucketGood: 4,
		models.BucketFair: 1,
	}

	kappa := FleissKappa(counts)
	want := (0.6 - 0.68) / (1 - 0.68)
	assert.InDelta(t, want, kappa, 1e-9)
}

func TestFleissKappa_FewerThanTwoRaters(t *testing.T) {
	if got := FleissKappa(map[models.QualityBucket]int{}); got != 0 {
		t.Errorf("FleissKappa(empty) = %v, want 0", got)
	}
	if got := FleissKappa(map[models.QualityBucket]int{models.BucketGood: 1}); got != 0 {
		t.Errorf("FleissKappa(single rater) = %v, want 0", got)
	}
}

func TestInterpretKappa_Bands(t *testing.T) {
	cases := []struct {
		kappa float64
		want  string
	}{
		{-0.5, "poor"},
		{0, "slight"},
		{0.19, "slight"},
		{0.2, "fair"},
		{0.4, "moderate"},
		{0.6, "substantial"},
		{0.8, "almost_perfect"},
		{1, "almost_perfect"},
	}
	for _, tc := range cases {
		if got := InterpretKappa(tc.kappa); got != tc.want {
			t.Errorf("InterpretKappa(%v) = %q, want %q", tc.kappa, got, tc.want)
		}
	}
}

func TestConsensus_TieBreaksTowardBetterBucket(t *testing.T) {
	counts := map[models.QualityBucket]int{
		models.BucketExcellent: 2,
		models.BucketPoor:      2,
	}
	assert.Equal(t, models.BucketExcellent, Consensus(counts))

	counts = map[models.QualityBucket]int{
		models.BucketGood: 1,
		models.BucketFair: 3,
	}
	assert.Equal(t, models.BucketFair, Consensus(counts))
}

func TestDisagreement_Levels(t *testing.T) {
	assert.Equal(t, models.DisagreementNone, Disagreement(map[models.QualityBucket]int{models.BucketGood: 3}))
	assert.Equal(t, models.DisagreementLow, Disagreement(map[models.QualityBucket]int{
		models.BucketGood: 2, models.BucketFair: 1,
	}))
	assert.Equal(t, models.DisagreementMedium, Disagreement(map[models.QualityBucket]int{
		models.BucketExcellent: 1, models.BucketGood: 1, models.BucketFair: 1,
	}))
	assert.Equal(t, models.DisagreementHigh, Disagreement(map[models.QualityBucket]int{
		models.BucketExcellent: 1, models.BucketGood: 1, models.BucketFair: 1, models.BucketPoor: 1,
	}))
}

func TestRequiresHumanReview(t *testing.T) {
	assert.True(t, RequiresHumanReview(0.39, models.DisagreementLow), "weak kappa forces review")
	assert.True(t, RequiresHumanReview(0.9, models.DisagreementHigh), "maximal disagreement forces review")
	assert.False(t, RequiresHumanReview(0.4, models.DisagreementMedium))
}

func TestFleissKappa_NeverNaN(t *testing.T) {
	counts := map[models.QualityBucket]int{models.BucketPoor: 2}
	if math.IsNaN(FleissKappa(counts)) {
		t.Fatal("kappa must be 1, not NaN, when expected agreement is 1")
	}
}
