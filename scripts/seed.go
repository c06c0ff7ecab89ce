package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/adapters/cache"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/adapters/database"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/application/services"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/repositories"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/infrastructure/observability"
	"github.com/zatekoja/Patientqueuedesign/backend/pkg/config"
)

type seedProvider struct {
	attrs    entities.ProviderRankingAttributes
	boost    float64
	pinned   bool
	featured bool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	observability.InitLogger("patient-queue-seed", cfg.Server.Env)

	ctx := context.Background()

	queueRepo, providerRepo, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Queue.StoreBackend).Msg("failed to open store")
	}
	defer cleanup()

	ranking := services.NewProviderRankingService(providerRepo, nil)

	providers := []seedProvider{
		{attrs: entities.ProviderRankingAttributes{ProviderID: "dr-adeyemi", Name: "Dr. Adeyemi", Specialization: "Cardiology", BaseRating: 4.0, ExperienceYears: 5}, pinned: true},
		{attrs: entities.ProviderRankingAttributes{ProviderID: "dr-okafor", Name: "Dr. Okafor", Specialization: "Cardiology", BaseRating: 4.6, ExperienceYears: 10}, boost: 0.8},
		{attrs: entities.ProviderRankingAttributes{ProviderID: "dr-bello", Name: "Dr. Bello", Specialization: "Cardiology", BaseRating: 4.2, ExperienceYears: 20}, featured: true},
		{attrs: entities.ProviderRankingAttributes{ProviderID: "dr-nwosu", Name: "Dr. Nwosu", Specialization: "General Practice", BaseRating: 4.4, ExperienceYears: 12}},
		{attrs: entities.ProviderRankingAttributes{ProviderID: "dr-eze", Name: "Dr. Eze", Specialization: "Paediatrics", BaseRating: 3.9, ExperienceYears: 7}},
	}

	for _, p := range providers {
		attrs := p.attrs
		if _, err := ranking.RegisterProvider(ctx, &attrs); err != nil {
			log.Error().Err(err).Str("provider_id", attrs.ProviderID).Msg("failed to register provider")
			continue
		}
		if p.boost > 0 {
			if _, err := ranking.SetProviderBoost(ctx, attrs.ProviderID, p.boost, "seeded outcome data"); err != nil {
				log.Error().Err(err).Str("provider_id", attrs.ProviderID).Msg("failed to boost provider")
			}
		}
		if p.pinned {
			if _, err := ranking.SetManualPin(ctx, attrs.ProviderID, true); err != nil {
				log.Error().Err(err).Str("provider_id", attrs.ProviderID).Msg("failed to pin provider")
			}
		}
		if p.featured {
			if _, err := ranking.SetFeatured(ctx, attrs.ProviderID, true); err != nil {
				log.Error().Err(err).Str("provider_id", attrs.ProviderID).Msg("failed to feature provider")
			}
		}
	}
	log.Info().Int("count", len(providers)).Msg("seeded providers")

	if os.Getenv("SEED_QUEUE") != "true" {
		return
	}

	store := services.NewQueueStore(queueRepo, services.NewWaitEstimator(cfg.Queue.AverageConsultationMinutes))
	manager := services.NewQueueManager(store, services.NewProviderLocks(), nil)

	for i, priority := range []entities.QueuePriority{
		entities.QueuePriorityMedium, entities.QueuePriorityMedium, entities.QueuePriorityHigh, entities.QueuePriorityUrgent,
	} {
		entry, err := manager.Enqueue(ctx, services.EnqueueRequest{
			ProviderID: "dr-nwosu",
			PatientID:  fmt.Sprintf("seed-patient-%d", i+1),
			Priority:   priority,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to enqueue seed patient")
			continue
		}
		log.Info().Str("entry_id", entry.ID).Int("position", entry.Position).Msg("enqueued seed patient")
	}
}

func openStore(ctx context.Context, cfg *config.Config) (repositories.QueueEntryRepository, repositories.ProviderRepository, func(), error) {
	switch cfg.Queue.StoreBackend {
	case config.StoreBackendPostgres:
		pgClient, err := postgres.NewClient(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.EnsureSchema(ctx, pgClient); err != nil {
			pgClient.Close()
			return nil, nil, nil, err
		}
		if os.Getenv("RESET_DB") == "true" {
			log.Warn().Msg("RESET_DB=true detected, truncating tables before seeding")
			if _, err := pgClient.DB().ExecContext(ctx, `TRUNCATE TABLE queue_entries, providers`); err != nil {
				pgClient.Close()
				return nil, nil, nil, fmt.Errorf("failed to reset tables: %w", err)
			}
		}
		return database.NewQueueEntryAdapter(pgClient), database.NewProviderAdapter(pgClient), func() { pgClient.Close() }, nil

	case config.StoreBackendRedis:
		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		return cache.NewQueueEntryRepository(redisClient), cache.NewProviderRepository(redisClient), func() { redisClient.Close() }, nil

	default:
		return nil, nil, nil, fmt.Errorf("seeding needs a persistent store, got %q", cfg.Queue.StoreBackend)
	}
}
