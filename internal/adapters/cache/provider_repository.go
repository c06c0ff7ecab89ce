package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/repositories"
	redisclient "github.com/zatekoja/Patientqueuedesign/backend/internal/infrastructure/clients/redis"
	apperrors "github.com/zatekoja/Patientqueuedesign/backend/pkg/errors"
)

const (
	providerKeyPrefix = "provider:"
	// providerIndexKey is a sorted set scored by registration time
	providerIndexKey = "providers:index"
)

func providerKey(id string) string { return providerKeyPrefix + id }

// ProviderRepository stores provider ranking attributes in Redis
type ProviderRepository struct {
	client *redisclient.Client
}

var _ repositories.ProviderRepository = (*ProviderRepository)(nil)

// NewProviderRepository creates a Redis-backed provider repository
func NewProviderRepository(client *redisclient.Client) *ProviderRepository {
	return &ProviderRepository{client: client}
}

// Get retrieves a provider by ID
func (r *ProviderRepository) Get(ctx context.Context, providerID string) (*entities.ProviderRankingAttributes, error) {
	data, err := r.client.Client().Get(ctx, providerKey(providerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NewNotFoundError("provider not found", providerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return decodeProvider(data)
}

// Put creates or replaces a provider; the registration order is fixed by the first write
func (r *ProviderRepository) Put(ctx context.Context, provider *entities.ProviderRankingAttributes) error {
	data, err := json.Marshal(provider)
	if err != nil {
		return fmt.Errorf("failed to marshal provider: %w", err)
	}

	_, err = r.client.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, providerKey(provider.ProviderID), data, 0)
		pipe.ZAddNX(ctx, providerIndexKey, redis.Z{
			Score:  float64(provider.CreatedAt.UnixNano()),
			Member: provider.ProviderID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save provider: %w", err)
	}
	return nil
}

// List retrieves providers in registration order
func (r *ProviderRepository) List(ctx context.Context, filter repositories.ProviderFilter) ([]*entities.ProviderRankingAttributes, error) {
	ids, err := r.client.Client().ZRange(ctx, providerIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read provider index: %w", err)
	}
	if len(ids) == 0 {
		return []*entities.ProviderRankingAttributes{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = providerKey(id)
	}
	values, err := r.client.Client().MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load providers: %w", err)
	}

	out := make([]*entities.ProviderRankingAttributes, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		p, err := decodeProvider([]byte(raw))
		if err != nil {
			return nil, err
		}
		if filter.Specialization != "" && !strings.EqualFold(p.Specialization, filter.Specialization) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func decodeProvider(data []byte) (*entities.ProviderRankingAttributes, error) {
	var p entities.ProviderRankingAttributes
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal provider: %w", err)
	}
	return &p, nil
}
