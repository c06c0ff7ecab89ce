package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFinalRating_CapsAtFive(t *testing.T) {
	tests := []struct {
		name  string
		base  float64
		boost float64
		want  float64
	}{
		{"no boost", 4.2, 0, 4.2},
		{"boost under cap", 3.0, 0.5, 3.5},
		{"boost over cap", 4.6, 1.0, 5.0},
		{"already max", 5.0, 0.3, 5.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &ProviderRankingAttributes{BaseRating: tt.base, AdminBoost: tt.boost}
			assert.InDelta(t, tt.want, p.FinalRating(), 1e-9)
			assert.Equal(t, tt.boost > 0, p.RatingBoostActive())
		})
	}
}

func TestProviderListing_UsesDerivedValues(t *testing.T) {
	boostedAt := time.Now()
	p := &ProviderRankingAttributes{
		ProviderID: "d1", Name: "Dr. Ade", Specialization: "cardiology",
		BaseRating: 4.5, AdminBoost: 0.8, BoostedAt: &boostedAt, ExperienceYears: 7,
	}

	listing := NewProviderListing(p, 1)

	assert.Equal(t, 1, listing.Rank)
	assert.Equal(t, 5.0, listing.FinalRating)
	assert.True(t, listing.RatingBoostActive)

	clone := p.Clone()
	*clone.BoostedAt = boostedAt.Add(time.Hour)
	assert.Equal(t, boostedAt, *p.BoostedAt)
}
