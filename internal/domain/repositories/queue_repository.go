package repositories

import (
	"context"

	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
)

// QueueEntryRepository defines the key-value interface for queue entry storage.
// Implementations hand out copies: mutating a returned entry has no effect until it is Put.
type QueueEntryRepository interface {
	// Get retrieves an entry by ID, returning a NOT_FOUND AppError when absent
	Get(ctx context.Context, id string) (*entities.QueueEntry, error)

	// Put creates or replaces an entry by ID
	Put(ctx context.Context, entry *entities.QueueEntry) error

	// PutAll writes all entries as one unit
	PutAll(ctx context.Context, entries []*entities.QueueEntry) error

	// Delete removes an entry
	Delete(ctx context.Context, id string) error

	// DeleteAndPutAll removes an entry and writes entries as one unit.
	// Either both happen or neither does.
	DeleteAndPutAll(ctx context.Context, id string, entries []*entities.QueueEntry) error

	// ListByProvider retrieves every entry of a provider regardless of status
	ListByProvider(ctx context.Context, providerID string) ([]*entities.QueueEntry, error)

	// ListByPatient retrieves every entry of a patient regardless of status
	ListByPatient(ctx context.Context, patientID string) ([]*entities.QueueEntry, error)
}

// ProviderRepository defines the key-value interface for provider ranking attributes
type ProviderRepository interface {
	// Get retrieves a provider by ID, returning a NOT_FOUND AppError when absent
	Get(ctx context.Context, providerID string) (*entities.ProviderRankingAttributes, error)

	// Put creates or replaces a provider by ID
	Put(ctx context.Context, provider *entities.ProviderRankingAttributes) error

	// List retrieves providers in registration order
	List(ctx context.Context, filter ProviderFilter) ([]*entities.ProviderRankingAttributes, error)
}

// ProviderFilter defines filters for listing providers
type ProviderFilter struct {
	// Specialization matches case-insensitively; empty matches all
	Specialization string
}
