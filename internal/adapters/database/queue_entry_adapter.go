package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/repositories"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/Patientqueuedesign/backend/pkg/errors"
)

var queueEntryColumns = []interface{}{
	"id", "provider_id", "patient_id", "status", "priority", "position",
	"referral_note", "referred_from_entry_id", "referred_to_provider_id",
	"created_at", "updated_at",
}

// QueueEntryAdapter implements the QueueEntryRepository interface on PostgreSQL
type QueueEntryAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

var _ repositories.QueueEntryRepository = (*QueueEntryAdapter)(nil)

// NewQueueEntryAdapter creates a new queue entry adapter
func NewQueueEntryAdapter(client *postgres.Client) *QueueEntryAdapter {
	return &QueueEntryAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Get retrieves an entry by ID
func (a *QueueEntryAdapter) Get(ctx context.Context, id string) (*entities.QueueEntry, error) {
	query, args, err := a.db.Select(queueEntryColumns...).
		From(queueEntriesTable).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	entry, err := scanQueueEntry(a.client.DB().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewEntryNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get queue entry", err)
	}
	return entry, nil
}

// Put creates or replaces an entry
func (a *QueueEntryAdapter) Put(ctx context.Context, entry *entities.QueueEntry) error {
	query, args, err := a.upsert(entry)
	if err != nil {
		return apperrors.NewInternalError("failed to build upsert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to save queue entry", err)
	}
	return nil
}

// PutAll upserts every entry in one transaction
func (a *QueueEntryAdapter) PutAll(ctx context.Context, entries []*entities.QueueEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query, args, err := a.upsert(entries...)
	if err != nil {
		return apperrors.NewInternalError("failed to build upsert query", err)
	}

	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return apperrors.NewInternalError("failed to save queue entries", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit queue entries", err)
	}
	return nil
}

// Delete removes an entry
func (a *QueueEntryAdapter) Delete(ctx context.Context, id string) error {
	query, args, err := a.db.Delete(queueEntriesTable).Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to delete queue entry", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return apperrors.NewEntryNotFoundError(id)
	}
	return nil
}

// DeleteAndPutAll deletes id and upserts entries in one transaction
func (a *QueueEntryAdapter) DeleteAndPutAll(ctx context.Context, id string, entries []*entities.QueueEntry) error {
	deleteQuery, deleteArgs, err := a.db.Delete(queueEntriesTable).Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}

	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}

	result, err := tx.ExecContext(ctx, deleteQuery, deleteArgs...)
	if err != nil {
		_ = tx.Rollback()
		return apperrors.NewInternalError("failed to delete queue entry", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		_ = tx.Rollback()
		return apperrors.NewEntryNotFoundError(id)
	}

	if len(entries) > 0 {
		query, args, err := a.upsert(entries...)
		if err != nil {
			_ = tx.Rollback()
			return apperrors.NewInternalError("failed to build upsert query", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			_ = tx.Rollback()
			return apperrors.NewInternalError("failed to save queue entries", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit queue entries", err)
	}
	return nil
}

// ListByProvider retrieves every entry of a provider
func (a *QueueEntryAdapter) ListByProvider(ctx context.Context, providerID string) ([]*entities.QueueEntry, error) {
	return a.list(ctx, goqu.Ex{"provider_id": providerID})
}

// ListByPatient retrieves every entry of a patient
func (a *QueueEntryAdapter) ListByPatient(ctx context.Context, patientID string) ([]*entities.QueueEntry, error) {
	return a.list(ctx, goqu.Ex{"patient_id": patientID})
}

func (a *QueueEntryAdapter) list(ctx context.Context, where goqu.Ex) ([]*entities.QueueEntry, error) {
	query, args, err := a.db.Select(queueEntryColumns...).
		From(queueEntriesTable).
		Where(where).
		Order(goqu.I("position").Asc(), goqu.I("created_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list queue entries", err)
	}
	defer rows.Close()

	entries := make([]*entities.QueueEntry, 0)
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan queue entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate queue entries", err)
	}
	return entries, nil
}

func (a *QueueEntryAdapter) upsert(entries ...*entities.QueueEntry) (string, []interface{}, error) {
	rows := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, goqu.Record{
			"id":                      e.ID,
			"provider_id":             e.ProviderID,
			"patient_id":              e.PatientID,
			"status":                  string(e.Status),
			"priority":                string(e.Priority),
			"position":                e.Position,
			"referral_note":           e.ReferralNote,
			"referred_from_entry_id":  e.ReferredFromEntryID,
			"referred_to_provider_id": e.ReferredToProviderID,
			"created_at":              e.CreatedAt,
			"updated_at":              e.UpdatedAt,
		})
	}

	return a.db.Insert(queueEntriesTable).
		Rows(rows...).
		OnConflict(goqu.DoUpdate("id", goqu.Record{
			"provider_id":             goqu.L("EXCLUDED.provider_id"),
			"patient_id":              goqu.L("EXCLUDED.patient_id"),
			"status":                  goqu.L("EXCLUDED.status"),
			"priority":                goqu.L("EXCLUDED.priority"),
			"position":                goqu.L("EXCLUDED.position"),
			"referral_note":           goqu.L("EXCLUDED.referral_note"),
			"referred_from_entry_id":  goqu.L("EXCLUDED.referred_from_entry_id"),
			"referred_to_provider_id": goqu.L("EXCLUDED.referred_to_provider_id"),
			"updated_at":              goqu.L("EXCLUDED.updated_at"),
		})).
		ToSQL()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueueEntry(row rowScanner) (*entities.QueueEntry, error) {
	entry := &entities.QueueEntry{}
	err := row.Scan(
		&entry.ID,
		&entry.ProviderID,
		&entry.PatientID,
		&entry.Status,
		&entry.Priority,
		&entry.Position,
		&entry.ReferralNote,
		&entry.ReferredFromEntryID,
		&entry.ReferredToProviderID,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}
