package prob

import "github.com/korhall/sigcast/internal/models"

// ClassifyTier buckets a probability into a presentation tier.
//
// The floors are a presentation rule layered on top of the raw number: a
// district that has already verified 80% of its threshold is never shown
// below LIKELY, and one at 60% never below POSSIBLE, even when the raw
// probability is low. The raw probability is always reported alongside.
func ClassifyTier(probability, pctVerified float64) models.Tier {
	switch {
	case probability >= 1.0:
		return models.TierConfirmed
	case probability >= 0.90:
		return models.TierNearlyCertain
	case probability >= 0.70:
		return models.TierVeryLikely
	case probability >= 0.50:
		return models.TierLikely
	case probability >= 0.25:
		return models.TierPossible
	}
	if pctVerified >= 0.80 {
		return models.TierLikely
	}
	if pctVerified >= 0.60 {
		return models.TierPossible
	}
	if probability >= 0.10 {
		return models.TierUnlikely
	}
	return models.TierNoChance
}
