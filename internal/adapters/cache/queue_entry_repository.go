package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/repositories"
	redisclient "github.com/zatekoja/Patientqueuedesign/backend/internal/infrastructure/clients/redis"
	apperrors "github.com/zatekoja/Patientqueuedesign/backend/pkg/errors"
)

const (
	queueEntryKeyPrefix      = "queue:entry:"
	queueProviderIndexFormat = "queue:provider:%s:entries"
	queuePatientIndexFormat  = "queue:patient:%s:entries"
)

func queueEntryKey(id string) string { return queueEntryKeyPrefix + id }

func queueProviderIndexKey(providerID string) string { return fmt.Sprintf(queueProviderIndexFormat, providerID) }

func patientIndexKey(patientID string) string { return fmt.Sprintf(queuePatientIndexFormat, patientID) }

// QueueEntryRepository stores queue entries in Redis as JSON values with
// per-provider and per-patient index sets.
type QueueEntryRepository struct {
	client *redisclient.Client
}

var _ repositories.QueueEntryRepository = (*QueueEntryRepository)(nil)

// NewQueueEntryRepository creates a Redis-backed queue entry repository
func NewQueueEntryRepository(client *redisclient.Client) *QueueEntryRepository {
	return &QueueEntryRepository{client: client}
}

// Get retrieves an entry by ID
func (r *QueueEntryRepository) Get(ctx context.Context, id string) (*entities.QueueEntry, error) {
	data, err := r.client.Client().Get(ctx, queueEntryKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NewEntryNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return decodeEntry(data)
}

// Put creates or replaces an entry
func (r *QueueEntryRepository) Put(ctx context.Context, entry *entities.QueueEntry) error {
	return r.PutAll(ctx, []*entities.QueueEntry{entry})
}

// PutAll writes every entry and its index memberships in one MULTI/EXEC
func (r *QueueEntryRepository) PutAll(ctx context.Context, entries []*entities.QueueEntry) error {
	if len(entries) == 0 {
		return nil
	}

	write, err := r.prepareWrite(ctx, entries)
	if err != nil {
		return err
	}

	if _, err := r.client.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		write(pipe)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to save queue entries: %w", err)
	}
	return nil
}

// Delete removes an entry and its index memberships
func (r *QueueEntryRepository) Delete(ctx context.Context, id string) error {
	return r.DeleteAndPutAll(ctx, id, nil)
}

// DeleteAndPutAll removes id and writes entries in the same MULTI/EXEC
func (r *QueueEntryRepository) DeleteAndPutAll(ctx context.Context, id string, entries []*entities.QueueEntry) error {
	entry, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	write, err := r.prepareWrite(ctx, entries)
	if err != nil {
		return err
	}

	_, err = r.client.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, queueEntryKey(id))
		pipe.SRem(ctx, queueProviderIndexKey(entry.ProviderID), id)
		pipe.SRem(ctx, patientIndexKey(entry.PatientID), id)
		write(pipe)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}
	return nil
}

// prepareWrite encodes entries and returns the commands that store them and move their index memberships
func (r *QueueEntryRepository) prepareWrite(ctx context.Context, entries []*entities.QueueEntry) (func(redis.Pipeliner), error) {
	previous, err := r.load(ctx, entryIDs(entries))
	if err != nil {
		return nil, err
	}

	payloads := make([][]byte, len(entries))
	for i, e := range entries {
		if payloads[i], err = json.Marshal(e); err != nil {
			return nil, fmt.Errorf("failed to marshal queue entry %s: %w", e.ID, err)
		}
	}

	return func(pipe redis.Pipeliner) {
		for i, e := range entries {
			if prev, ok := previous[e.ID]; ok {
				if prev.ProviderID != e.ProviderID {
					pipe.SRem(ctx, queueProviderIndexKey(prev.ProviderID), e.ID)
				}
				if prev.PatientID != e.PatientID {
					pipe.SRem(ctx, patientIndexKey(prev.PatientID), e.ID)
				}
			}
			pipe.Set(ctx, queueEntryKey(e.ID), payloads[i], 0)
			pipe.SAdd(ctx, queueProviderIndexKey(e.ProviderID), e.ID)
			pipe.SAdd(ctx, patientIndexKey(e.PatientID), e.ID)
		}
	}, nil
}

// ListByProvider retrieves every entry of a provider
func (r *QueueEntryRepository) ListByProvider(ctx context.Context, providerID string) ([]*entities.QueueEntry, error) {
	return r.listIndex(ctx, queueProviderIndexKey(providerID))
}

// ListByPatient retrieves every entry of a patient
func (r *QueueEntryRepository) ListByPatient(ctx context.Context, patientID string) ([]*entities.QueueEntry, error) {
	return r.listIndex(ctx, patientIndexKey(patientID))
}

func (r *QueueEntryRepository) listIndex(ctx context.Context, indexKey string) ([]*entities.QueueEntry, error) {
	ids, err := r.client.Client().SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", indexKey, err)
	}

	byID, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*entities.QueueEntry, 0, len(byID))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// load fetches the stored entries for ids; missing keys are left out
func (r *QueueEntryRepository) load(ctx context.Context, ids []string) (map[string]*entities.QueueEntry, error) {
	out := make(map[string]*entities.QueueEntry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = queueEntryKey(id)
	}

	values, err := r.client.Client().MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load queue entries: %w", err)
	}

	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		entry, err := decodeEntry([]byte(raw))
		if err != nil {
			return nil, err
		}
		out[entry.ID] = entry
	}
	return out, nil
}

func decodeEntry(data []byte) (*entities.QueueEntry, error) {
	var entry entities.QueueEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue entry: %w", err)
	}
	return &entry, nil
}

func entryIDs(entries []*entities.QueueEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}
