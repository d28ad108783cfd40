package prob

import (
	"testing"

	"github.com/korhall/sigcast/internal/models"
)

func TestClassifyTier(t *testing.T) {
	tests := []struct {
		name        string
		probability float64
		pctVerified float64
		want        models.Tier
	}{
		{"confirmed", 1.0, 1.0, models.TierConfirmed},
		{"nearly certain", 0.92, 0.85, models.TierNearlyCertain},
		{"nearly certain boundary", 0.90, 0.0, models.TierNearlyCertain},
		{"very likely", 0.75, 0.70, models.TierVeryLikely},
		{"likely", 0.55, 0.60, models.TierLikely},
		{"possible", 0.30, 0.40, models.TierPossible},
		{"unlikely", 0.15, 0.20, models.TierUnlikely},
		{"no chance", 0.05, 0.10, models.TierNoChance},
		{"zero everywhere", 0.0, 0.0, models.TierNoChance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyTier(tt.probability, tt.pctVerified); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestClassifyTier_VerifiedFloors(t *testing.T) {
	// A district that already verified 80% of threshold is never presented
	// below LIKELY, whatever the raw probability says.
	if got := ClassifyTier(0.01, 0.80); got != models.TierLikely {
		t.Errorf("Expected LIKELY floor at 80%% verified, got %s", got)
	}
	if got := ClassifyTier(0.01, 0.60); got != models.TierPossible {
		t.Errorf("Expected POSSIBLE floor at 60%% verified, got %s", got)
	}
	// The floor only raises, never lowers: a high probability keeps its tier.
	if got := ClassifyTier(0.95, 0.60); got != models.TierNearlyCertain {
		t.Errorf("Expected NEARLY_CERTAIN unaffected by floor, got %s", got)
	}
}
