package memory

import (
	"context"
	"sync"

	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/Patientqueuedesign/backend/pkg/errors"
)

// QueueEntryRepository keeps queue entries in process memory.
// It backs the default store backend and gives every test a fresh, isolated store.
type QueueEntryRepository struct {
	mu sync.RWMutex

	entries    map[string]*entities.QueueEntry // entryID -> entry
	byProvider map[string]map[string]struct{}  // providerID -> entryIDs
	byPatient  map[string]map[string]struct{}  // patientID -> entryIDs
}

var _ repositories.QueueEntryRepository = (*QueueEntryRepository)(nil)

// NewQueueEntryRepository creates an empty in-memory queue entry repository
func NewQueueEntryRepository() *QueueEntryRepository {
	return &QueueEntryRepository{
		entries:    map[string]*entities.QueueEntry{},
		byProvider: map[string]map[string]struct{}{},
		byPatient:  map[string]map[string]struct{}{},
	}
}

// Get retrieves an entry by ID
func (r *QueueEntryRepository) Get(_ context.Context, id string) (*entities.QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, apperrors.NewEntryNotFoundError(id)
	}
	return e.Clone(), nil
}

// Put creates or replaces an entry
func (r *QueueEntryRepository) Put(_ context.Context, entry *entities.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.put(entry)
	return nil
}

// PutAll writes all entries under one lock so readers never observe half a compaction
func (r *QueueEntryRepository) PutAll(_ context.Context, entries []*entities.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entries {
		r.put(e)
	}
	return nil
}

func (r *QueueEntryRepository) put(entry *entities.QueueEntry) {
	if prev, ok := r.entries[entry.ID]; ok {
		removeIndex(r.byProvider, prev.ProviderID, prev.ID)
		removeIndex(r.byPatient, prev.PatientID, prev.ID)
	}
	r.entries[entry.ID] = entry.Clone()
	addIndex(r.byProvider, entry.ProviderID, entry.ID)
	addIndex(r.byPatient, entry.PatientID, entry.ID)
}

// Delete removes an entry
func (r *QueueEntryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.delete(id)
}

// DeleteAndPutAll removes id and writes entries under one lock
func (r *QueueEntryRepository) DeleteAndPutAll(_ context.Context, id string, entries []*entities.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.delete(id); err != nil {
		return err
	}
	for _, e := range entries {
		r.put(e)
	}
	return nil
}

func (r *QueueEntryRepository) delete(id string) error {
	e, ok := r.entries[id]
	if !ok {
		return apperrors.NewEntryNotFoundError(id)
	}
	delete(r.entries, id)
	removeIndex(r.byProvider, e.ProviderID, id)
	removeIndex(r.byPatient, e.PatientID, id)
	return nil
}

// ListByProvider retrieves every entry of a provider
func (r *QueueEntryRepository) ListByProvider(_ context.Context, providerID string) ([]*entities.QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(r.byProvider[providerID]), nil
}

// ListByPatient retrieves every entry of a patient
func (r *QueueEntryRepository) ListByPatient(_ context.Context, patientID string) ([]*entities.QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(r.byPatient[patientID]), nil
}

func (r *QueueEntryRepository) collect(ids map[string]struct{}) []*entities.QueueEntry {
	out := make([]*entities.QueueEntry, 0, len(ids))
	for id := range ids {
		out = append(out, r.entries[id].Clone())
	}
	return out
}

func addIndex(index map[string]map[string]struct{}, key, id string) {
	if index[key] == nil {
		index[key] = map[string]struct{}{}
	}
	index[key][id] = struct{}{}
}

func removeIndex(index map[string]map[string]struct{}, key, id string) {
	ids, ok := index[key]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(index, key)
	}
}
