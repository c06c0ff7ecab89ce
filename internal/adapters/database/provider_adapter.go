package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/repositories"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/Patientqueuedesign/backend/pkg/errors"
)

var providerColumns = []interface{}{
	"provider_id", "name", "specialization", "manual_pin", "featured",
	"base_rating", "admin_boost", "experience_years", "boost_reason", "boosted_at",
	"created_at", "updated_at",
}

// ProviderAdapter implements the ProviderRepository interface on PostgreSQL
type ProviderAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

var _ repositories.ProviderRepository = (*ProviderAdapter)(nil)

// NewProviderAdapter creates a new provider adapter
func NewProviderAdapter(client *postgres.Client) *ProviderAdapter {
	return &ProviderAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Get retrieves a provider by ID
func (a *ProviderAdapter) Get(ctx context.Context, providerID string) (*entities.ProviderRankingAttributes, error) {
	query, args, err := a.db.Select(providerColumns...).
		From(providersTable).
		Where(goqu.Ex{"provider_id": providerID}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	provider, err := scanProvider(a.client.DB().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("provider not found", providerID)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get provider", err)
	}
	return provider, nil
}

// Put creates or replaces a provider, keeping the original created_at
func (a *ProviderAdapter) Put(ctx context.Context, p *entities.ProviderRankingAttributes) error {
	var boostedAt interface{}
	if p.BoostedAt != nil {
		boostedAt = *p.BoostedAt
	}

	query, args, err := a.db.Insert(providersTable).
		Rows(goqu.Record{
			"provider_id":      p.ProviderID,
			"name":             p.Name,
			"specialization":   p.Specialization,
			"manual_pin":       p.ManualPin,
			"featured":         p.Featured,
			"base_rating":      p.BaseRating,
			"admin_boost":      p.AdminBoost,
			"experience_years": p.ExperienceYears,
			"boost_reason":     p.BoostReason,
			"boosted_at":       boostedAt,
			"created_at":       p.CreatedAt,
			"updated_at":       p.UpdatedAt,
		}).
		OnConflict(goqu.DoUpdate("provider_id", goqu.Record{
			"name":             goqu.L("EXCLUDED.name"),
			"specialization":   goqu.L("EXCLUDED.specialization"),
			"manual_pin":       goqu.L("EXCLUDED.manual_pin"),
			"featured":         goqu.L("EXCLUDED.featured"),
			"base_rating":      goqu.L("EXCLUDED.base_rating"),
			"admin_boost":      goqu.L("EXCLUDED.admin_boost"),
			"experience_years": goqu.L("EXCLUDED.experience_years"),
			"boost_reason":     goqu.L("EXCLUDED.boost_reason"),
			"boosted_at":       goqu.L("EXCLUDED.boosted_at"),
			"updated_at":       goqu.L("EXCLUDED.updated_at"),
		})).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build upsert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to save provider", err)
	}
	return nil
}

// List retrieves providers in registration order
func (a *ProviderAdapter) List(ctx context.Context, filter repositories.ProviderFilter) ([]*entities.ProviderRankingAttributes, error) {
	ds := a.db.Select(providerColumns...).
		From(providersTable).
		Order(goqu.I("created_at").Asc(), goqu.I("provider_id").Asc())

	if filter.Specialization != "" {
		ds = ds.Where(goqu.Func("LOWER", goqu.I("specialization")).Eq(strings.ToLower(filter.Specialization)))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list providers", err)
	}
	defer rows.Close()

	providers := make([]*entities.ProviderRankingAttributes, 0)
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan provider", err)
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate providers", err)
	}
	return providers, nil
}

func scanProvider(row rowScanner) (*entities.ProviderRankingAttributes, error) {
	p := &entities.ProviderRankingAttributes{}
	var boostedAt sql.NullTime
	err := row.Scan(
		&p.ProviderID,
		&p.Name,
		&p.Specialization,
		&p.ManualPin,
		&p.Featured,
		&p.BaseRating,
		&p.AdminBoost,
		&p.ExperienceYears,
		&p.BoostReason,
		&boostedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if boostedAt.Valid {
		t := boostedAt.Time
		p.BoostedAt = &t
	}
	return p, nil
}
