package services_test

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/Patientqueuedesign/backend/internal/adapters/memory"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/application/services"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/Patientqueuedesign/backend/pkg/errors"
)

func rankingExample() []*entities.ProviderRankingAttributes {
	return []*entities.ProviderRankingAttributes{
		{ProviderID: "rated", BaseRating: 4.2, ExperienceYears: 5},
		{ProviderID: "featured", Featured: true, BaseRating: 4.0, ExperienceYears: 2},
		{ProviderID: "pinned", ManualPin: true, BaseRating: 3.0, ExperienceYears: 1},
	}
}

func providerIDs(list []*entities.ProviderRankingAttributes) []string {
	ids := make([]string, 0, len(list))
	for _, p := range list {
		ids = append(ids, p.ProviderID)
	}
	return ids
}

func TestRankProviders_PinThenFeaturedThenRating(t *testing.T) {
	permutations := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	example := rankingExample()

	for _, perm := range permutations {
		input := []*entities.ProviderRankingAttributes{example[perm[0]], example[perm[1]], example[perm[2]]}
		before := providerIDs(input)

		ranked := services.RankProviders(input)

		assert.Equal(t, []string{"pinned", "featured", "rated"}, providerIDs(ranked))
		assert.Equal(t, before, providerIDs(input), "input must not be reordered")
	}
}

func TestRankProviders_RatingExperienceAndStability(t *testing.T) {
	input := []*entities.ProviderRankingAttributes{
		{ProviderID: "a", BaseRating: 4.0, ExperienceYears: 3},
		{ProviderID: "b", BaseRating: 3.5, AdminBoost: 0.5, ExperienceYears: 10},
		{ProviderID: "c", BaseRating: 4.5},
		{ProviderID: "d", BaseRating: 4.0, ExperienceYears: 3},
	}

	ranked := services.RankProviders(input)

	// b's boosted rating ties a and d; experience decides, then input order.
	assert.Equal(t, []string{"c", "b", "a", "d"}, providerIDs(ranked))
}

func TestProviderRankingService_RankBySpecialization(t *testing.T) {
	svc := services.NewProviderRankingService(memory.NewProviderRepository(), nil)
	ctx := context.Background()

	for _, p := range []*entities.ProviderRankingAttributes{
		{ProviderID: "d1", Specialization: "cardiology", BaseRating: 4.0},
		{ProviderID: "d2", Specialization: "dermatology", BaseRating: 4.9},
		{ProviderID: "d3", Specialization: "Cardiology", BaseRating: 4.6},
	} {
		_, err := svc.RegisterProvider(ctx, p)
		require.NoError(t, err)
	}

	listings, err := svc.Rank(ctx, repositories.ProviderFilter{Specialization: "cardiology"})
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "d3", listings[0].ProviderID)
	assert.Equal(t, 1, listings[0].Rank)
	assert.Equal(t, "d1", listings[1].ProviderID)
	assert.Equal(t, 2, listings[1].Rank)

	all, err := svc.Rank(ctx, repositories.ProviderFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "d2", all[0].ProviderID)
}

func TestProviderRankingService_RepeatedBoostsNeverExceedCap(t *testing.T) {
	svc := services.NewProviderRankingService(memory.NewProviderRepository(), nil)
	ctx := context.Background()

	_, err := svc.RegisterProvider(ctx, &entities.ProviderRankingAttributes{ProviderID: "d1", BaseRating: 4.6})
	require.NoError(t, err)

	for _, boost := range []float64{0.2, 1.0, 1.0, 0.7} {
		p, err := svc.SetProviderBoost(ctx, "d1", boost, "verified reviews")
		require.NoError(t, err)
		assert.InDelta(t, boost, p.AdminBoost, 1e-9)
		assert.InDelta(t, math.Min(5, 4.6+boost), p.FinalRating(), 1e-9)
		assert.True(t, p.RatingBoostActive())
		require.NotNil(t, p.BoostedAt)
		assert.Equal(t, "verified reviews", p.BoostReason)
	}

	listings, err := svc.Rank(ctx, repositories.ProviderFilter{})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, listings[0].FinalRating, 1e-9)

	p, err := svc.SetProviderBoost(ctx, "d1", 0, "reset")
	require.NoError(t, err)
	assert.False(t, p.RatingBoostActive())
	assert.InDelta(t, 4.6, p.FinalRating(), 1e-9)
}

func TestProviderRankingService_BoostOutOfRange(t *testing.T) {
	svc := services.NewProviderRankingService(memory.NewProviderRepository(), nil)
	ctx := context.Background()

	_, err := svc.RegisterProvider(ctx, &entities.ProviderRankingAttributes{ProviderID: "d1", BaseRating: 4.0})
	require.NoError(t, err)

	for _, boost := range []float64{-0.1, 1.01, math.NaN()} {
		_, err := svc.SetProviderBoost(ctx, "d1", boost, "x")
		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrorTypeOutOfRange, appErr.Type)
		assert.Equal(t, "d1", appErr.ID)
	}

	_, err = svc.SetProviderBoost(ctx, "missing", 0.5, "x")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestProviderRankingService_RegisterValidatesAndKeepsAdminFields(t *testing.T) {
	svc := services.NewProviderRankingService(memory.NewProviderRepository(), nil)
	ctx := context.Background()

	_, err := svc.RegisterProvider(ctx, &entities.ProviderRankingAttributes{ProviderID: "d1", BaseRating: 5.5})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeOutOfRange))
	_, err = svc.RegisterProvider(ctx, &entities.ProviderRankingAttributes{ProviderID: "d1", ExperienceYears: -1})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeOutOfRange))
	_, err = svc.RegisterProvider(ctx, &entities.ProviderRankingAttributes{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	first, err := svc.RegisterProvider(ctx, &entities.ProviderRankingAttributes{ProviderID: "d1", Name: "Dr. A", BaseRating: 4.0})
	require.NoError(t, err)
	_, err = svc.SetProviderBoost(ctx, "d1", 0.5, "x")
	require.NoError(t, err)
	_, err = svc.SetFeatured(ctx, "d1", true)
	require.NoError(t, err)

	updated, err := svc.RegisterProvider(ctx, &entities.ProviderRankingAttributes{ProviderID: "d1", Name: "Dr. A", BaseRating: 4.2, ExperienceYears: 8})
	require.NoError(t, err)
	assert.True(t, updated.Featured)
	assert.InDelta(t, 0.5, updated.AdminBoost, 1e-9)
	assert.Equal(t, 8, updated.ExperienceYears)
	assert.Equal(t, first.CreatedAt, updated.CreatedAt)
}

func TestProviderRankingService_PinIsExclusive(t *testing.T) {
	svc := services.NewProviderRankingService(memory.NewProviderRepository(), nil)
	ctx := context.Background()

	for _, id := range []string{"d1", "d2"} {
		_, err := svc.RegisterProvider(ctx, &entities.ProviderRankingAttributes{ProviderID: id, BaseRating: 3})
		require.NoError(t, err)
	}

	_, err := svc.SetManualPin(ctx, "d1", true)
	require.NoError(t, err)
	_, err = svc.SetManualPin(ctx, "d2", true)
	require.NoError(t, err)

	d1, err := svc.GetProvider(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, d1.ManualPin)

	listings, err := svc.Rank(ctx, repositories.ProviderFilter{})
	require.NoError(t, err)
	assert.Equal(t, "d2", listings[0].ProviderID)
	assert.True(t, listings[0].ManualPin)

	unpinned, err := svc.SetManualPin(ctx, "d2", false)
	require.NoError(t, err)
	assert.False(t, unpinned.ManualPin)
}

// failingProviderRepository rejects writes for one provider while armed
type failingProviderRepository struct {
	*memory.ProviderRepository

	mu       sync.Mutex
	failPuts string
}

func (r *failingProviderRepository) failPutsFor(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failPuts = providerID
}

func (r *failingProviderRepository) Put(ctx context.Context, provider *entities.ProviderRankingAttributes) error {
	r.mu.Lock()
	target := r.failPuts
	r.mu.Unlock()
	if target != "" && provider.ProviderID == target {
		return errStorageDown
	}
	return r.ProviderRepository.Put(ctx, provider)
}

func TestProviderRankingService_PinKeepsTargetWhenUnpinFails(t *testing.T) {
	repo := &failingProviderRepository{ProviderRepository: memory.NewProviderRepository()}
	svc := services.NewProviderRankingService(repo, nil)
	ctx := context.Background()

	for _, id := range []string{"d1", "d2"} {
		_, err := svc.RegisterProvider(ctx, &entities.ProviderRankingAttributes{ProviderID: id, BaseRating: 3})
		require.NoError(t, err)
	}
	_, err := svc.SetManualPin(ctx, "d1", true)
	require.NoError(t, err)

	repo.failPutsFor("d1")
	pinned, err := svc.SetManualPin(ctx, "d2", true)
	require.Error(t, err)
	repo.failPutsFor("")

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypePartialFailure, appErr.Type)
	assert.Contains(t, appErr.Message, "d1")
	assert.ErrorIs(t, err, errStorageDown)

	require.NotNil(t, pinned)
	assert.True(t, pinned.ManualPin)
	d2, err := svc.GetProvider(ctx, "d2")
	require.NoError(t, err)
	assert.True(t, d2.ManualPin)

	// Pinning again clears the leftover pin.
	_, err = svc.SetManualPin(ctx, "d2", true)
	require.NoError(t, err)
	d1, err := svc.GetProvider(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, d1.ManualPin)
}

func TestProviderRankingService_PinFailsWhenTargetCannotBeSaved(t *testing.T) {
	repo := &failingProviderRepository{ProviderRepository: memory.NewProviderRepository()}
	svc := services.NewProviderRankingService(repo, nil)
	ctx := context.Background()

	for _, id := range []string{"d1", "d2"} {
		_, err := svc.RegisterProvider(ctx, &entities.ProviderRankingAttributes{ProviderID: id, BaseRating: 3})
		require.NoError(t, err)
	}
	_, err := svc.SetManualPin(ctx, "d1", true)
	require.NoError(t, err)

	repo.failPutsFor("d2")
	_, err = svc.SetManualPin(ctx, "d2", true)
	require.ErrorIs(t, err, errStorageDown)
	repo.failPutsFor("")

	d1, err := svc.GetProvider(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, d1.ManualPin)
}
