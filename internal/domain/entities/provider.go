package entities

import (
	"math"
	"time"
)

const (
	// MaxRating caps both the base rating and the final rating
	MaxRating = 5.0
	// MaxAdminBoost caps the additive admin boost
	MaxAdminBoost = 1.0
)

// ProviderRankingAttributes holds the verified signals used to order providers in discovery.
// The final rating is derived from BaseRating and AdminBoost on every read and is never stored.
type ProviderRankingAttributes struct {
	ProviderID      string     `json:"provider_id" db:"provider_id"`
	Name            string     `json:"name" db:"name"`
	Specialization  string     `json:"specialization" db:"specialization"`
	ManualPin       bool       `json:"manual_pin" db:"manual_pin"`
	Featured        bool       `json:"featured" db:"featured"`
	BaseRating      float64    `json:"base_rating" db:"base_rating"`
	AdminBoost      float64    `json:"admin_boost" db:"admin_boost"`
	ExperienceYears int        `json:"experience_years" db:"experience_years"`
	BoostReason     string     `json:"boost_reason,omitempty" db:"boost_reason"`
	BoostedAt       *time.Time `json:"boosted_at,omitempty" db:"boosted_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// FinalRating returns min(5, BaseRating + AdminBoost)
func (p *ProviderRankingAttributes) FinalRating() float64 {
	return math.Min(MaxRating, p.BaseRating+p.AdminBoost)
}

// RatingBoostActive reports whether an admin boost has been applied
func (p *ProviderRankingAttributes) RatingBoostActive() bool {
	return p.AdminBoost > 0
}

// Clone returns a copy that shares no state with p
func (p *ProviderRankingAttributes) Clone() *ProviderRankingAttributes {
	if p == nil {
		return nil
	}
	c := *p
	if p.BoostedAt != nil {
		t := *p.BoostedAt
		c.BoostedAt = &t
	}
	return &c
}

// ProviderListing is the read model returned by discovery listings
type ProviderListing struct {
	Rank              int     `json:"rank"`
	ProviderID        string  `json:"provider_id"`
	Name              string  `json:"name"`
	Specialization    string  `json:"specialization"`
	ManualPin         bool    `json:"manual_pin"`
	Featured          bool    `json:"featured"`
	RatingBoostActive bool    `json:"rating_boost_active"`
	BaseRating        float64 `json:"base_rating"`
	AdminBoost        float64 `json:"admin_boost"`
	FinalRating       float64 `json:"final_rating"`
	ExperienceYears   int     `json:"experience_years"`
}

// NewProviderListing builds the listing for p at the given 1-based rank
func NewProviderListing(p *ProviderRankingAttributes, rank int) ProviderListing {
	return ProviderListing{
		Rank:              rank,
		ProviderID:        p.ProviderID,
		Name:              p.Name,
		Specialization:    p.Specialization,
		ManualPin:         p.ManualPin,
		Featured:          p.Featured,
		RatingBoostActive: p.RatingBoostActive(),
		BaseRating:        p.BaseRating,
		AdminBoost:        p.AdminBoost,
		FinalRating:       p.FinalRating(),
		ExperienceYears:   p.ExperienceYears,
	}
}
