package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/providers"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/repositories"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/Patientqueuedesign/backend/pkg/errors"
)

// ProviderLess reports whether a ranks ahead of b: pinned, then featured,
// then higher final rating, then more experience.
func ProviderLess(a, b *entities.ProviderRankingAttributes) bool {
	if a.ManualPin != b.ManualPin {
		return a.ManualPin
	}
	if a.Featured != b.Featured {
		return a.Featured
	}
	if ra, rb := a.FinalRating(), b.FinalRating(); ra != rb {
		return ra > rb
	}
	return a.ExperienceYears > b.ExperienceYears
}

// RankProviders returns a new slice ordered by ProviderLess, keeping input order among equals.
// The input slice is left untouched.
func RankProviders(list []*entities.ProviderRankingAttributes) []*entities.ProviderRankingAttributes {
	ranked := make([]*entities.ProviderRankingAttributes, len(list))
	copy(ranked, list)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ProviderLess(ranked[i], ranked[j])
	})
	return ranked
}

// ProviderRankingService serves discovery listings and the admin operations that change ranking inputs.
// Rank is computed on every read; no order is ever stored.
type ProviderRankingService struct {
	repo     repositories.ProviderRepository
	notifier *Notifier
	now      func() time.Time

	// adminMu serializes read-modify-write admin operations
	adminMu sync.Mutex
}

// NewProviderRankingService creates a new ranking service
func NewProviderRankingService(repo repositories.ProviderRepository, notifier *Notifier) *ProviderRankingService {
	return &ProviderRankingService{
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
	}
}

// Rank lists providers, optionally restricted to one specialization, in ranking order
func (s *ProviderRankingService) Rank(ctx context.Context, filter repositories.ProviderFilter) ([]entities.ProviderListing, error) {
	ctx, span := observability.StartSpan(ctx, "ProviderRankingService.Rank",
		attribute.String("specialization", filter.Specialization))
	defer span.End()

	list, err := s.repo.List(ctx, filter)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	ranked := RankProviders(list)
	listings := make([]entities.ProviderListing, 0, len(ranked))
	for i, p := range ranked {
		listings = append(listings, entities.NewProviderListing(p, i+1))
	}
	return listings, nil
}

// GetProvider returns a provider's ranking attributes
func (s *ProviderRankingService) GetProvider(ctx context.Context, providerID string) (*entities.ProviderRankingAttributes, error) {
	return s.repo.Get(ctx, providerID)
}

// RegisterProvider creates or updates a provider's descriptive attributes.
// Admin-controlled fields (pin, featured, boost) survive re-registration.
func (s *ProviderRankingService) RegisterProvider(ctx context.Context, p *entities.ProviderRankingAttributes) (*entities.ProviderRankingAttributes, error) {
	if p == nil || strings.TrimSpace(p.ProviderID) == "" {
		return nil, apperrors.NewValidationError("provider id is required", "")
	}
	if math.IsNaN(p.BaseRating) || p.BaseRating < 0 || p.BaseRating > entities.MaxRating {
		return nil, apperrors.NewOutOfRangeError(
			fmt.Sprintf("base rating %v outside [0, %v]", p.BaseRating, entities.MaxRating), p.ProviderID)
	}
	if p.ExperienceYears < 0 {
		return nil, apperrors.NewOutOfRangeError("experience years cannot be negative", p.ProviderID)
	}

	s.adminMu.Lock()
	defer s.adminMu.Unlock()

	now := s.now()
	provider := &entities.ProviderRankingAttributes{
		ProviderID: strings.TrimSpace(p.ProviderID),
		CreatedAt:  now,
	}
	existing, err := s.repo.Get(ctx, provider.ProviderID)
	switch {
	case err == nil:
		provider = existing
	case !apperrors.IsNotFound(err):
		return nil, err
	}

	provider.Name = p.Name
	provider.Specialization = p.Specialization
	provider.BaseRating = p.BaseRating
	provider.ExperienceYears = p.ExperienceYears
	provider.UpdatedAt = now

	if err := s.repo.Put(ctx, provider); err != nil {
		return nil, fmt.Errorf("failed to save provider: %w", err)
	}
	return provider, nil
}

// SetProviderBoost sets the admin rating boost. The boost replaces any earlier one,
// so repeated calls never accumulate past the requested amount.
func (s *ProviderRankingService) SetProviderBoost(ctx context.Context, providerID string, boost float64, reason string) (*entities.ProviderRankingAttributes, error) {
	ctx, span := observability.StartSpan(ctx, "ProviderRankingService.SetProviderBoost",
		attribute.String("provider_id", providerID),
		attribute.Float64("boost", boost),
	)
	defer span.End()

	if math.IsNaN(boost) || boost < 0 || boost > entities.MaxAdminBoost {
		err := apperrors.NewOutOfRangeError(
			fmt.Sprintf("boost %v outside [0, %v]", boost, entities.MaxAdminBoost), providerID)
		observability.RecordError(span, err)
		return nil, err
	}

	provider, err := s.update(ctx, providerID, func(p *entities.ProviderRankingAttributes, now time.Time) {
		p.AdminBoost = boost
		p.BoostReason = strings.TrimSpace(reason)
		p.BoostedAt = &now
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	observability.LoggerFromContext(ctx).Info().
		Str("provider_id", providerID).
		Float64("admin_boost", provider.AdminBoost).
		Float64("final_rating", provider.FinalRating()).
		Str("reason", provider.BoostReason).
		Msg("provider boost updated")
	s.notify(ctx, entities.QueueEventTypeProviderBoosted, provider, map[string]interface{}{
		"admin_boost":  provider.AdminBoost,
		"final_rating": provider.FinalRating(),
		"reason":       provider.BoostReason,
	})
	return provider, nil
}

// SetManualPin pins or unpins a provider. Pinning clears the pin of every other provider.
// The target is saved first; if an older pin cannot be cleared the saved provider is returned
// with a PARTIAL_FAILURE naming the providers that are still pinned.
func (s *ProviderRankingService) SetManualPin(ctx context.Context, providerID string, pinned bool) (*entities.ProviderRankingAttributes, error) {
	s.adminMu.Lock()
	defer s.adminMu.Unlock()

	provider, err := s.repo.Get(ctx, providerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	provider.ManualPin = pinned
	provider.UpdatedAt = now
	if err := s.repo.Put(ctx, provider); err != nil {
		return nil, fmt.Errorf("failed to save provider: %w", err)
	}
	s.notify(ctx, entities.QueueEventTypeProviderFlagsChanged, provider, map[string]interface{}{"manual_pin": pinned})

	if !pinned {
		return provider, nil
	}

	all, err := s.repo.List(ctx, repositories.ProviderFilter{})
	if err != nil {
		return provider, apperrors.NewPartialFailureError("provider pinned but other pins could not be listed", providerID, err)
	}

	var stillPinned []string
	var firstErr error
	for _, other := range all {
		if other.ProviderID == providerID || !other.ManualPin {
			continue
		}
		other.ManualPin = false
		other.UpdatedAt = now
		if err := s.repo.Put(ctx, other); err != nil {
			stillPinned = append(stillPinned, other.ProviderID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.notify(ctx, entities.QueueEventTypeProviderFlagsChanged, other, map[string]interface{}{"manual_pin": false})
	}

	if len(stillPinned) > 0 {
		observability.LoggerFromContext(ctx).Warn().
			Err(firstErr).
			Str("provider_id", providerID).
			Strs("still_pinned", stillPinned).
			Msg("failed to clear previous pins")
		return provider, apperrors.NewPartialFailureError(
			fmt.Sprintf("provider pinned but %s could not be unpinned", strings.Join(stillPinned, ", ")), providerID, firstErr)
	}
	return provider, nil
}

// SetFeatured sets or clears the featured flag
func (s *ProviderRankingService) SetFeatured(ctx context.Context, providerID string, featured bool) (*entities.ProviderRankingAttributes, error) {
	provider, err := s.update(ctx, providerID, func(p *entities.ProviderRankingAttributes, _ time.Time) {
		p.Featured = featured
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, entities.QueueEventTypeProviderFlagsChanged, provider, map[string]interface{}{"featured": featured})
	return provider, nil
}

func (s *ProviderRankingService) update(ctx context.Context, providerID string, apply func(*entities.ProviderRankingAttributes, time.Time)) (*entities.ProviderRankingAttributes, error) {
	s.adminMu.Lock()
	defer s.adminMu.Unlock()

	provider, err := s.repo.Get(ctx, providerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	apply(provider, now)
	provider.UpdatedAt = now

	if err := s.repo.Put(ctx, provider); err != nil {
		return nil, fmt.Errorf("failed to save provider: %w", err)
	}
	return provider, nil
}

func (s *ProviderRankingService) notify(ctx context.Context, eventType entities.QueueEventType, p *entities.ProviderRankingAttributes, data map[string]interface{}) {
	s.notifier.Notify(ctx, providers.EventChannelProviderUpdates, entities.NewQueueEvent(p.ProviderID, eventType, nil, data))
}
