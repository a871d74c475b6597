package agreement

import (
	"proofbench/internal/models"
)

// buckets is the fixed ordinal category set used for rating executions.
var buckets = []models.QualityBucket{
	models.BucketExcellent,
	models.BucketGood,
	models.BucketFair,
	models.BucketPoor,
}

// Bucketize maps a mean quality score onto its ordinal bucket.
func Bucketize(meanScore float64) models.QualityBucket {
	switch {
	case meanScore >= 85:
		return models.BucketExcellent
	case meanScore >= 70:
		return models.BucketGood
	case meanScore >= 50:
		return models.BucketFair
	default:
		return models.BucketPoor
	}
}

// FleissKappa computes Fleiss' Kappa for a single subject: one test case
// rated into the fixed bucket set by k agents. counts maps each bucket to
// the number of raters that chose it; k must be >= 2.
func FleissKappa(counts map[models.QualityBucket]int) float64 {
	k := 0
	for _, n := range counts {
		k += n
	}
	if k < 2 {
		return 0
	}

	// Observed agreement for the single subject:
	// P_i = (sum n_ij^2 - k) / (k (k-1))
	sumSquares := 0
	for _, n := range counts {
		sumSquares += n * n
	}
	pObserved := float64(sumSquares-k) / float64(k*(k-1))

	// Expected agreement: P_e = sum (n_ij / k)^2
	pExpected := 0.0
	for _, n := range counts {
		pj := float64(n) / float64(k)
		pExpected += pj * pj
	}

	if pExpected == 1 {
		// Every rater chose the same bucket: perfect agreement.
		return 1
	}
	return (pObserved - pExpected) / (1 - pExpected)
}

// InterpretKappa maps a kappa value onto the standard qualitative bands.
func InterpretKappa(kappa float64) string {
	switch {
	case kappa < 0:
		return "poor"
	case kappa < 0.2:
		return "slight"
	case kappa < 0.4:
		return "fair"
	case kappa < 0.6:
		return "moderate"
	case kappa < 0.8:
		return "substantial"
	default:
		return "almost_perfect"
	}
}

// Consensus returns the modal bucket. Ties break toward the better
// bucket so a split verdict reads optimistically but deterministically.
func Consensus(counts map[models.QualityBucket]int) models.QualityBucket {
	best := models.BucketPoor
	bestCount := -1
	for _, bucket := range buckets {
		if counts[bucket] > bestCount {
			best = bucket
			bestCount = counts[bucket]
		}
	}
	return best
}

// Disagreement maps the number of distinct buckets used onto a level.
func Disagreement(counts map[models.QualityBucket]int) models.DisagreementLevel {
	distinct := 0
	for _, n := range counts {
		if n > 0 {
			distinct++
		}
	}
	switch distinct {
	case 0, 1:
		return models.DisagreementNone
	case 2:
		return models.DisagreementLow
	case 3:
		return models.DisagreementMedium
	default:
		return models.DisagreementHigh
	}
}

// reviewKappaThreshold is the kappa value below which human review is
// required.
const reviewKappaThreshold = 0.4

// RequiresHumanReview applies the review rule: weak agreement or maximal
// disagreement flags the case for a human.
func RequiresHumanReview(kappa float64, level models.DisagreementLevel) bool {
	return kappa < reviewKappaThreshold || level == models.DisagreementHigh
}
