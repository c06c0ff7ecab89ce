package services_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/adapters/memory"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/application/services"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
)

type queueFixture struct {
	repo        *failingQueueRepository
	bus         *memory.EventBus
	manager     *services.QueueManager
	coordinator *services.ReferralCoordinator
}

func newQueueFixture(t *testing.T) *queueFixture {
	t.Helper()

	repo := &failingQueueRepository{QueueEntryRepository: memory.NewQueueEntryRepository()}
	bus := memory.NewEventBus()
	t.Cleanup(func() { _ = bus.Close() })

	store := services.NewQueueStore(repo, services.NewWaitEstimator(20))
	manager := services.NewQueueManager(store, services.NewProviderLocks(), services.NewNotifier(bus, 0))
	return &queueFixture{
		repo:        repo,
		bus:         bus,
		manager:     manager,
		coordinator: services.NewReferralCoordinator(manager),
	}
}

func (f *queueFixture) enqueue(t *testing.T, providerID, patientID string) *entities.QueueEntry {
	t.Helper()
	entry, err := f.manager.Enqueue(context.Background(), services.EnqueueRequest{ProviderID: providerID, PatientID: patientID})
	require.NoError(t, err)
	return entry
}

func (f *queueFixture) queue(t *testing.T, providerID string) []*entities.QueueEntry {
	t.Helper()
	queue, err := f.manager.GetQueue(context.Background(), providerID)
	require.NoError(t, err)
	return queue
}

func requireContiguous(t *testing.T, queue []*entities.QueueEntry) {
	t.Helper()
	consulting := 0
	for i, e := range queue {
		require.Equal(t, i+1, e.Position, "entry %s", e.ID)
		if e.Status == entities.QueueStatusInConsultation {
			consulting++
		}
	}
	require.LessOrEqual(t, consulting, 1)
}

func patientIDs(queue []*entities.QueueEntry) []string {
	ids := make([]string, 0, len(queue))
	for _, e := range queue {
		ids = append(ids, e.PatientID)
	}
	return ids
}

var errStorageDown = errors.New("storage unavailable")

// failingQueueRepository fails multi-entry writes touching failProvider while armed
type failingQueueRepository struct {
	*memory.QueueEntryRepository

	failProvider atomic.Value
}

func (r *failingQueueRepository) failWritesFor(providerID string) {
	r.failProvider.Store(providerID)
}

func (r *failingQueueRepository) PutAll(ctx context.Context, entries []*entities.QueueEntry) error {
	if r.touchesFailing(entries) {
		return errStorageDown
	}
	return r.QueueEntryRepository.PutAll(ctx, entries)
}

func (r *failingQueueRepository) DeleteAndPutAll(ctx context.Context, id string, entries []*entities.QueueEntry) error {
	if r.touchesFailing(entries) {
		return errStorageDown
	}
	if current, err := r.QueueEntryRepository.Get(ctx, id); err == nil && r.touchesFailing([]*entities.QueueEntry{current}) {
		return errStorageDown
	}
	return r.QueueEntryRepository.DeleteAndPutAll(ctx, id, entries)
}

func (r *failingQueueRepository) touchesFailing(entries []*entities.QueueEntry) bool {
	target, _ := r.failProvider.Load().(string)
	if target == "" {
		return false
	}
	for _, e := range entries {
		if e.ProviderID == target {
			return true
		}
	}
	return false
}
