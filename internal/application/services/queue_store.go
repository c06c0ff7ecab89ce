package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/Patientqueuedesign/backend/pkg/errors"
)

// QueueStore owns the ordering of each provider's active entries on top of a key-value repository.
// It takes no locks itself: every mutating call must be made while holding the provider's lock.
type QueueStore struct {
	repo      repositories.QueueEntryRepository
	estimator *WaitEstimator
	now       func() time.Time
}

// NewQueueStore creates a queue store
func NewQueueStore(repo repositories.QueueEntryRepository, estimator *WaitEstimator) *QueueStore {
	if estimator == nil {
		estimator = NewWaitEstimator(DefaultAverageConsultationMinutes)
	}
	return &QueueStore{
		repo:      repo,
		estimator: estimator,
		now:       time.Now,
	}
}

// Entry returns a single entry with its current wait estimate
func (s *QueueStore) Entry(ctx context.Context, entryID string) (*entities.QueueEntry, error) {
	entry, err := s.repo.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	s.estimate(entry)
	return entry, nil
}

// Get returns the provider's active entries ordered by position
func (s *QueueStore) Get(ctx context.Context, providerID string) ([]*entities.QueueEntry, error) {
	all, err := s.repo.ListByProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue for provider %s: %w", providerID, err)
	}

	active := make([]*entities.QueueEntry, 0, len(all))
	for _, e := range all {
		if e.IsActive() {
			s.estimate(e)
			active = append(active, e)
		}
	}
	sortByPosition(active)
	return active, nil
}

// Enqueue appends entry to the end of the provider's active set and returns its position
func (s *QueueStore) Enqueue(ctx context.Context, providerID string, entry *entities.QueueEntry) (int, error) {
	active, err := s.Get(ctx, providerID)
	if err != nil {
		return 0, err
	}

	now := s.now()
	entry.ProviderID = providerID
	entry.Status = entities.QueueStatusWaiting
	entry.Position = len(active) + 1
	entry.CreatedAt = now
	entry.UpdatedAt = now
	s.estimate(entry)

	if err := s.repo.Put(ctx, entry); err != nil {
		return 0, fmt.Errorf("failed to save queue entry: %w", err)
	}
	return entry.Position, nil
}

// InsertFront admits a referred-in entry at position 1 of the provider's active set,
// shifting every other active entry down by one. It returns the resulting queue.
func (s *QueueStore) InsertFront(ctx context.Context, providerID string, entry *entities.QueueEntry) ([]*entities.QueueEntry, error) {
	active, err := s.Get(ctx, providerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	entry.ProviderID = providerID
	entry.Status = entities.QueueStatusReferredIn
	entry.CreatedAt = now
	entry.UpdatedAt = now

	next, ok := entities.NextStatus(entities.QueueActionAdmit, entry.Status)
	if !ok {
		return nil, apperrors.NewInvalidTransitionError("referred-in entry cannot be admitted", entry.ID)
	}
	entry.Status = next

	queue := append([]*entities.QueueEntry{entry}, active...)
	changed := s.renumber(queue)
	if !containsEntry(changed, entry.ID) {
		changed = append(changed, entry)
	}

	if err := s.repo.PutAll(ctx, changed); err != nil {
		return nil, fmt.Errorf("failed to insert referred entry: %w", err)
	}
	return queue, nil
}

// UpdateStatus moves an entry to newStatus, compacting the queue when the entry leaves the active set.
// It returns the updated entry and the provider's resulting active queue.
func (s *QueueStore) UpdateStatus(ctx context.Context, entryID string, newStatus entities.QueueStatus) (*entities.QueueEntry, []*entities.QueueEntry, error) {
	entry, err := s.repo.Get(ctx, entryID)
	if err != nil {
		return nil, nil, err
	}
	return s.transition(ctx, entry, newStatus)
}

// transition applies newStatus to entry, which may carry other pending field changes, and saves
// the entry together with every compacted neighbour in one write.
func (s *QueueStore) transition(ctx context.Context, entry *entities.QueueEntry, newStatus entities.QueueStatus) (*entities.QueueEntry, []*entities.QueueEntry, error) {
	if !entities.CanTransition(entry.Status, newStatus) {
		return nil, nil, apperrors.NewInvalidTransitionError(
			fmt.Sprintf("cannot move entry from %s to %s", entry.Status, newStatus), entry.ID)
	}

	active, err := s.Get(ctx, entry.ProviderID)
	if err != nil {
		return nil, nil, err
	}

	if newStatus == entities.QueueStatusInConsultation {
		for _, other := range active {
			if other.ID != entry.ID && other.Status == entities.QueueStatusInConsultation {
				return nil, nil, apperrors.NewInvalidTransitionError(
					fmt.Sprintf("provider %s already has entry %s in consultation", entry.ProviderID, other.ID), entry.ID)
			}
		}
	}

	entry.Status = newStatus
	s.touch(entry)

	remaining := active
	if newStatus.IsTerminal() {
		entry.Position = 0
		remaining = withoutEntry(active, entry.ID)
	} else {
		for i, e := range remaining {
			if e.ID == entry.ID {
				remaining[i] = entry
			}
		}
	}

	changed := s.renumber(remaining)
	if !containsEntry(changed, entry.ID) {
		changed = append(changed, entry)
	}
	s.estimate(entry)

	if err := s.repo.PutAll(ctx, changed); err != nil {
		return nil, nil, fmt.Errorf("failed to save status change: %w", err)
	}
	return entry, remaining, nil
}

// Remove deletes a waiting entry outright and compacts the queue behind it
func (s *QueueStore) Remove(ctx context.Context, entryID string) ([]*entities.QueueEntry, error) {
	entry, err := s.repo.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != entities.QueueStatusWaiting {
		return nil, apperrors.NewInvalidTransitionError(
			fmt.Sprintf("only waiting entries can be removed, entry is %s", entry.Status), entryID)
	}

	active, err := s.Get(ctx, entry.ProviderID)
	if err != nil {
		return nil, err
	}

	remaining := withoutEntry(active, entryID)
	if err := s.repo.DeleteAndPutAll(ctx, entryID, s.renumber(remaining)); err != nil {
		return nil, fmt.Errorf("failed to remove queue entry: %w", err)
	}
	return remaining, nil
}

// Reorder saves ordered as the provider's new active ordering
func (s *QueueStore) Reorder(ctx context.Context, ordered []*entities.QueueEntry) ([]*entities.QueueEntry, error) {
	if changed := s.renumber(ordered); len(changed) > 0 {
		if err := s.repo.PutAll(ctx, changed); err != nil {
			return nil, fmt.Errorf("failed to reorder queue: %w", err)
		}
	}
	return ordered, nil
}

// ActiveForPatient returns the patient's active entry, or nil when the patient has none
func (s *QueueStore) ActiveForPatient(ctx context.Context, patientID string) (*entities.QueueEntry, error) {
	entries, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for patient %s: %w", patientID, err)
	}
	for _, e := range entries {
		if e.IsActive() {
			s.estimate(e)
			return e, nil
		}
	}
	return nil, nil
}

// renumber assigns positions 1..N in slice order, refreshes wait estimates,
// and returns the entries whose stored position changed.
func (s *QueueStore) renumber(queue []*entities.QueueEntry) []*entities.QueueEntry {
	var changed []*entities.QueueEntry
	for i, e := range queue {
		position := i + 1
		if e.Position != position {
			e.Position = position
			s.touch(e)
			changed = append(changed, e)
		}
		s.estimate(e)
	}
	return changed
}

func (s *QueueStore) estimate(e *entities.QueueEntry) {
	e.EstimatedWait = s.estimator.Estimate(e.Position, e.Status)
}

// touch bumps UpdatedAt without ever moving it backwards
func (s *QueueStore) touch(e *entities.QueueEntry) {
	if now := s.now(); now.After(e.UpdatedAt) {
		e.UpdatedAt = now
	}
}

func sortByPosition(entries []*entities.QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Position != entries[j].Position {
			return entries[i].Position < entries[j].Position
		}
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
}

func withoutEntry(entries []*entities.QueueEntry, id string) []*entities.QueueEntry {
	out := make([]*entities.QueueEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

func containsEntry(entries []*entities.QueueEntry, id string) bool {
	for _, e := range entries {
		if e.ID == id {
			return true
		}
	}
	return false
}
