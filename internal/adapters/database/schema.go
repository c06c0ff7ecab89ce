package database

import (
	"context"
	"fmt"

	"github.com/zatekoja/Patientqueuedesign/backend/internal/infrastructure/clients/postgres"
)

const (
	queueEntriesTable = "queue_entries"
	providersTable    = "providers"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS queue_entries (
		id TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL,
		patient_id TEXT NOT NULL,
		status TEXT NOT NULL,
		priority TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		referral_note TEXT NOT NULL DEFAULT '',
		referred_from_entry_id TEXT NOT NULL DEFAULT '',
		referred_to_provider_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_entries_provider ON queue_entries (provider_id, position)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_entries_patient ON queue_entries (patient_id)`,
	`CREATE TABLE IF NOT EXISTS providers (
		provider_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		specialization TEXT NOT NULL DEFAULT '',
		manual_pin BOOLEAN NOT NULL DEFAULT FALSE,
		featured BOOLEAN NOT NULL DEFAULT FALSE,
		base_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
		admin_boost DOUBLE PRECISION NOT NULL DEFAULT 0,
		experience_years INTEGER NOT NULL DEFAULT 0,
		boost_reason TEXT NOT NULL DEFAULT '',
		boosted_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_providers_specialization ON providers (LOWER(specialization))`,
}

// EnsureSchema creates the queue and provider tables when they do not exist yet
func EnsureSchema(ctx context.Context, client *postgres.Client) error {
	for _, stmt := range schemaStatements {
		if _, err := client.DB().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
