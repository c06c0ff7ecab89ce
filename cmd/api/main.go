package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/adapters/cache"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/adapters/database"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/adapters/events"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/adapters/memory"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/api/handlers"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/api/routes"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/application/services"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/providers"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/repositories"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/infrastructure/observability"
	"github.com/zatekoja/Patientqueuedesign/backend/pkg/config"
)

// optionalRedisTimeout bounds the connection attempt when Redis only backs the event bus
const optionalRedisTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			log.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	redisClient := connectRedis(ctx, cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	queueRepo, providerRepo, closeStore, err := buildRepositories(ctx, cfg, redisClient)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Queue.StoreBackend).Msg("failed to initialize store")
	}
	defer closeStore()

	eventBus := buildEventBus(cfg, redisClient)
	defer eventBus.Close()

	notifier := services.NewNotifier(eventBus, cfg.Queue.NotifyTimeout)
	notifier.SetMetrics(metrics)

	store := services.NewQueueStore(queueRepo, services.NewWaitEstimator(cfg.Queue.AverageConsultationMinutes))
	manager := services.NewQueueManager(store, services.NewProviderLocks(), notifier)
	manager.SetMetrics(metrics)

	referrals := services.NewReferralCoordinator(manager)
	referrals.SetMetrics(metrics)

	ranking := services.NewProviderRankingService(providerRepo, notifier)

	router := routes.NewRouter(
		handlers.NewQueueHandler(manager),
		handlers.NewReferralHandler(referrals),
		handlers.NewProviderHandler(ranking),
		handlers.NewSSEHandler(eventBus, manager),
		cfg.Server.AllowedOrigins,
		metrics,
	)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.SetupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("store", cfg.Queue.StoreBackend).
			Int("average_consultation_minutes", cfg.Queue.AverageConsultationMinutes).
			Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

// connectRedis connects when Redis backs the store or the event bus. A Redis store fails hard;
// an unreachable event bus falls back to in-process delivery.
func connectRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	required := cfg.Queue.StoreBackend == config.StoreBackendRedis
	if !required && !cfg.Queue.EventBusEnabled {
		return nil
	}

	connectCtx := ctx
	if !required {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, optionalRedisTimeout)
		defer cancel()
	}

	client, err := redis.NewClient(connectCtx, &cfg.Redis)
	if err != nil {
		if required {
			log.Fatal().Err(err).Str("addr", cfg.Redis.RedisAddr()).Msg("failed to connect to Redis")
		}
		log.Warn().Err(err).Str("addr", cfg.Redis.RedisAddr()).Msg("Redis unavailable, using in-process event bus")
		return nil
	}

	log.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("connected to Redis")
	return client
}

func buildRepositories(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (repositories.QueueEntryRepository, repositories.ProviderRepository, func(), error) {
	switch cfg.Queue.StoreBackend {
	case config.StoreBackendRedis:
		return cache.NewQueueEntryRepository(redisClient), cache.NewProviderRepository(redisClient), func() {}, nil

	case config.StoreBackendPostgres:
		pgClient, err := postgres.NewClient(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.EnsureSchema(ctx, pgClient); err != nil {
			pgClient.Close()
			return nil, nil, nil, err
		}
		return database.NewQueueEntryAdapter(pgClient), database.NewProviderAdapter(pgClient), func() {
			if err := pgClient.Close(); err != nil {
				log.Error().Err(err).Msg("error closing PostgreSQL client")
			}
		}, nil

	default:
		log.Warn().Msg("using in-memory store; queue state is lost on restart")
		return memory.NewQueueEntryRepository(), memory.NewProviderRepository(), func() {}, nil
	}
}

func buildEventBus(cfg *config.Config, redisClient *redis.Client) providers.EventBus {
	if cfg.Queue.EventBusEnabled && redisClient != nil {
		return events.NewRedisEventBus(redisClient)
	}
	return memory.NewEventBus()
}
