package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/repositories"
)

// RankingService defines the interface for provider discovery and admin operations
type RankingService interface {
	Rank(ctx context.Context, filter repositories.ProviderFilter) ([]entities.ProviderListing, error)
	GetProvider(ctx context.Context, providerID string) (*entities.ProviderRankingAttributes, error)
	RegisterProvider(ctx context.Context, p *entities.ProviderRankingAttributes) (*entities.ProviderRankingAttributes, error)
	SetProviderBoost(ctx context.Context, providerID string, boost float64, reason string) (*entities.ProviderRankingAttributes, error)
	SetManualPin(ctx context.Context, providerID string, pinned bool) (*entities.ProviderRankingAttributes, error)
	SetFeatured(ctx context.Context, providerID string, featured bool) (*entities.ProviderRankingAttributes, error)
}

// ProviderHandler handles provider discovery requests
type ProviderHandler struct {
	service RankingService
}

// NewProviderHandler creates a new provider handler
func NewProviderHandler(service RankingService) *ProviderHandler {
	return &ProviderHandler{service: service}
}

// RegisterProviderRequest is the payload for PUT /api/providers/{id}
type RegisterProviderRequest struct {
	Name            string  `json:"name"`
	Specialization  string  `json:"specialization"`
	BaseRating      float64 `json:"base_rating"`
	ExperienceYears int     `json:"experience_years"`
}

// BoostRequest is the payload for POST /api/providers/{id}/boost
type BoostRequest struct {
	Boost  *float64 `json:"boost"`
	Reason string   `json:"reason"`
}

// FlagRequest is the payload for the pin and featured admin endpoints
type FlagRequest struct {
	Enabled *bool `json:"enabled"`
}

// ProviderDetail is a provider's stored attributes plus its derived rating
type ProviderDetail struct {
	*entities.ProviderRankingAttributes
	FinalRating       float64 `json:"final_rating"`
	RatingBoostActive bool    `json:"rating_boost_active"`
}

func newProviderDetail(p *entities.ProviderRankingAttributes) ProviderDetail {
	return ProviderDetail{
		ProviderRankingAttributes: p,
		FinalRating:               p.FinalRating(),
		RatingBoostActive:         p.RatingBoostActive(),
	}
}

// ListProviders handles GET /api/providers?specialization=
func (h *ProviderHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	listings, err := h.service.Rank(r.Context(), repositories.ProviderFilter{
		Specialization: r.URL.Query().Get("specialization"),
	})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if listings == nil {
		listings = []entities.ProviderListing{}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"providers": listings,
		"count":     len(listings),
	})
}

// GetProvider handles GET /api/providers/{id}
func (h *ProviderHandler) GetProvider(w http.ResponseWriter, r *http.Request) {
	provider, err := h.service.GetProvider(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newProviderDetail(provider))
}

// RegisterProvider handles PUT /api/providers/{id}
func (h *ProviderHandler) RegisterProvider(w http.ResponseWriter, r *http.Request) {
	var req RegisterProviderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	provider, err := h.service.RegisterProvider(r.Context(), &entities.ProviderRankingAttributes{
		ProviderID:      r.PathValue("id"),
		Name:            req.Name,
		Specialization:  req.Specialization,
		BaseRating:      req.BaseRating,
		ExperienceYears: req.ExperienceYears,
	})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, newProviderDetail(provider))
}

// SetBoost handles POST /api/providers/{id}/boost
func (h *ProviderHandler) SetBoost(w http.ResponseWriter, r *http.Request) {
	var req BoostRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Boost == nil {
		respondWithError(w, http.StatusBadRequest, "boost is required")
		return
	}

	provider, err := h.service.SetProviderBoost(r.Context(), r.PathValue("id"), *req.Boost, req.Reason)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, newProviderDetail(provider))
}

// SetManualPin handles POST /api/providers/{id}/pin
func (h *ProviderHandler) SetManualPin(w http.ResponseWriter, r *http.Request) {
	h.setFlag(w, r, h.service.SetManualPin)
}

// SetFeatured handles POST /api/providers/{id}/featured
func (h *ProviderHandler) SetFeatured(w http.ResponseWriter, r *http.Request) {
	h.setFlag(w, r, h.service.SetFeatured)
}

func (h *ProviderHandler) setFlag(w http.ResponseWriter, r *http.Request, apply func(context.Context, string, bool) (*entities.ProviderRankingAttributes, error)) {
	var req FlagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		respondWithError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	provider, err := apply(r.Context(), r.PathValue("id"), *req.Enabled)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, newProviderDetail(provider))
}
