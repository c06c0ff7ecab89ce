package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/zatekoja/Patientqueuedesign/backend/internal/application/services"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/Patientqueuedesign/backend/pkg/errors"
	"github.com/zatekoja/Patientqueuedesign/backend/pkg/retry"
)

// ReferralService defines the interface for referral operations
type ReferralService interface {
	Refer(ctx context.Context, req services.ReferralRequest) (*services.ReferralResult, error)
}

// ReferralHandler handles referral requests
type ReferralHandler struct {
	service     ReferralService
	retryConfig retry.Config
}

// NewReferralHandler creates a new referral handler
func NewReferralHandler(service ReferralService) *ReferralHandler {
	return &ReferralHandler{
		service: service,
		retryConfig: retry.Config{
			MaxAttempts:     3,
			InitialDelay:    50 * time.Millisecond,
			MaxDelay:        500 * time.Millisecond,
			BackoffFactor:   2.0,
			MaxTotalTimeout: 5 * time.Second,
			ShouldRetry: func(err error) bool {
				return apperrors.IsType(err, apperrors.ErrorTypePartialFailure)
			},
		},
	}
}

// ReferralRequest is the payload for POST /api/queue-entries/{id}/referral
type ReferralRequest struct {
	FromProviderID string `json:"from_provider_id"`
	ToProviderID   string `json:"to_provider_id"`
	Reason         string `json:"reason"`
	// RetryPartial resumes the destination step automatically after a partial failure
	RetryPartial bool `json:"retry_partial,omitempty"`
}

// Refer handles POST /api/queue-entries/{id}/referral
func (h *ReferralHandler) Refer(w http.ResponseWriter, r *http.Request) {
	var body ReferralRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	req := services.ReferralRequest{
		EntryID:        r.PathValue("id"),
		FromProviderID: body.FromProviderID,
		ToProviderID:   body.ToProviderID,
		Reason:         body.Reason,
	}

	var (
		result *services.ReferralResult
		err    error
	)
	if body.RetryPartial {
		err = retry.DoWithLog(r.Context(), h.retryConfig, "referral", func() error {
			result, err = h.service.Refer(r.Context(), req)
			return err
		}, func(attempt int, err error, nextDelay time.Duration) {
			observability.LoggerFromContext(r.Context()).Warn().
				Err(err).
				Int("attempt", attempt).
				Dur("next_delay", nextDelay).
				Str("entry_id", req.EntryID).
				Msg("referral partially failed, resuming")
		})
	} else {
		result, err = h.service.Refer(r.Context(), req)
	}

	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypePartialFailure) {
			appErr, _ := apperrors.As(err)
			respondWithJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error":             appErr.Message,
				"type":              string(appErr.Type),
				"id":                appErr.ID,
				"source_entry":      sourceOf(result),
				"referred_entry_id": services.ReferralEntryID(req.EntryID, req.ToProviderID),
			})
			return
		}
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"source_entry":      result.Original,
		"referred_entry":    result.Referred,
		"destination_queue": newQueueResponse(req.ToProviderID, result.DestinationQueue),
	})
}

func sourceOf(result *services.ReferralResult) interface{} {
	if result == nil {
		return nil
	}
	return result.Original
}
