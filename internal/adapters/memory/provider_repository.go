package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/Patientqueuedesign/backend/pkg/errors"
)

// ProviderRepository keeps provider ranking attributes in process memory
type ProviderRepository struct {
	mu sync.RWMutex

	providers map[string]*entities.ProviderRankingAttributes
	order     []string // registration order
}

var _ repositories.ProviderRepository = (*ProviderRepository)(nil)

// NewProviderRepository creates an empty in-memory provider repository
func NewProviderRepository() *ProviderRepository {
	return &ProviderRepository{
		providers: map[string]*entities.ProviderRankingAttributes{},
	}
}

// Get retrieves a provider by ID
func (r *ProviderRepository) Get(_ context.Context, providerID string) (*entities.ProviderRankingAttributes, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[providerID]
	if !ok {
		return nil, apperrors.NewNotFoundError("provider not found", providerID)
	}
	return p.Clone(), nil
}

// Put creates or replaces a provider
func (r *ProviderRepository) Put(_ context.Context, provider *entities.ProviderRankingAttributes) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[provider.ProviderID]; !ok {
		r.order = append(r.order, provider.ProviderID)
	}
	r.providers[provider.ProviderID] = provider.Clone()
	return nil
}

// List retrieves providers in registration order
func (r *ProviderRepository) List(_ context.Context, filter repositories.ProviderFilter) ([]*entities.ProviderRankingAttributes, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entities.ProviderRankingAttributes, 0, len(r.order))
	for _, id := range r.order {
		p := r.providers[id]
		if filter.Specialization != "" && !strings.EqualFold(p.Specialization, filter.Specialization) {
			continue
		}
		out = append(out, p.Clone())
	}
	return out, nil
}
