// Package main provides the entry point for the SLA engine server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/kneutral-org/sla-engine/internal/api"
	"github.com/kneutral-org/sla-engine/internal/calendar"
	"github.com/kneutral-org/sla-engine/internal/config"
	"github.com/kneutral-org/sla-engine/internal/engine"
	"github.com/kneutral-org/sla-engine/internal/escalation"
	"github.com/kneutral-org/sla-engine/internal/ingest"
	"github.com/kneutral-org/sla-engine/internal/lock"
	"github.com/kneutral-org/sla-engine/internal/logging"
	"github.com/kneutral-org/sla-engine/internal/metrics"
	"github.com/kneutral-org/sla-engine/internal/middleware"
	"github.com/kneutral-org/sla-engine/internal/rule"
	"github.com/kneutral-org/sla-engine/internal/tracker"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.LogPretty {
		logger = logging.NewPrettyLogger("sla-engine", cfg.LogLevel)
	} else {
		logger = logging.NewLogger("sla-engine", cfg.LogLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize stores")
	}
	defer cleanup()

	var dispatcher escalation.Dispatcher
	if cfg.EscalationWebhookURL != "" {
		dispatcher = escalation.NewWebhookDispatcher(cfg.EscalationWebhookURL, 10*time.Second, logger)
	}

	var resolver escalation.RecipientResolver
	if cfg.EscalationRosterFile != "" {
		roster, err := escalation.LoadRosterFile(cfg.EscalationRosterFile)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.EscalationRosterFile).Msg("failed to load escalation roster")
		}
		resolver = escalation.NewStaticRecipientResolver(roster)
		logger.Info().Str("path", cfg.EscalationRosterFile).Int("entries", len(roster)).Msg("escalation roster loaded")
	}

	eng := engine.New(engine.Options{
		Rules:         stores.rules,
		Records:       stores.records,
		Schedules:     stores.schedules,
		Calendars:     stores.calendars,
		Resolver:      resolver,
		Dispatcher:    dispatcher,
		WarningRatio:  cfg.WarningRatio,
		RepeatCeiling: cfg.RepeatCeiling,
		SweepWorkers:  cfg.SweepWorkers,
		Logger:        logger,
	})

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	leader := startSweepLeader(ctx, cfg, redisClient, logger)
	sweeper := startSweeper(ctx, cfg, eng, leader, logger)

	deduper, dedupCleanup := buildDeduper(cfg, redisClient, stores.pool, logger)
	defer dedupCleanup()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	metrics.RegisterMetricsEndpoint(router)

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.BodyLimit(cfg.AdminMaxPayloadSize, logger))

	eventMiddleware := []gin.HandlerFunc{
		ingest.SignatureMiddleware(ingest.DefaultSignatureConfig(cfg.TicketWebhookSecret)),
		ingest.Middleware(ingest.NewConfig(deduper).
			WithTTL(cfg.EventDedupTTL).
			WithLogger(logger)),
	}

	handler := api.NewHandler(eng, stores.rules, stores.schedules, stores.calendars, logger)
	handler.RegisterRoutes(apiV1, eventMiddleware...)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Wait for any running sweep jobs to finish.
	<-sweeper.Stop().Done()
	if leader != nil {
		leader.Stop(context.Background())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited properly")
}

// storeSet bundles the persistence implementations selected at startup.
type storeSet struct {
	rules     rule.Store
	records   tracker.RecordStore
	schedules calendar.ScheduleStore
	calendars calendar.HolidayCalendarStore

	// pool is nil when the in-memory stores are selected.
	pool *pgxpool.Pool
}

// buildStores selects PostgreSQL stores when DATABASE_URL is configured and
// in-memory stores otherwise. The returned cleanup closes any pooled
// connections.
func buildStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*storeSet, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info().Msg("using in-memory stores")
		return &storeSet{
			rules:     rule.NewInMemoryStore(),
			records:   tracker.NewInMemoryRecordStore(),
			schedules: calendar.NewInMemoryScheduleStore(),
			calendars: calendar.NewInMemoryHolidayCalendarStore(),
		}, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	logger.Info().Msg("using PostgreSQL stores")
	return &storeSet{
		rules:     rule.NewPostgresStore(pool),
		records:   tracker.NewPostgresRecordStore(pool),
		schedules: calendar.NewPostgresScheduleStore(pool),
		calendars: calendar.NewPostgresHolidayCalendarStore(pool),
		pool:      pool,
	}, pool.Close, nil
}

// buildDeduper selects the ticket-event deduplication backend: Redis when
// available, PostgreSQL with a periodic cleanup job otherwise, in-memory as
// the fallback.
func buildDeduper(cfg *config.Config, redisClient *redis.Client, pool *pgxpool.Pool, logger zerolog.Logger) (ingest.Deduper, func()) {
	if redisClient != nil {
		logger.Info().Msg("using Redis event deduplication")
		return ingest.NewRedisDeduper(redisClient), func() {}
	}

	if pool != nil {
		logger.Info().Msg("using PostgreSQL event deduplication")
		deduper := ingest.NewPostgresDeduper(pool)
		cleanupJob := ingest.NewCleanupJob(deduper, time.Hour, logger)
		cleanupJob.Start()
		return deduper, cleanupJob.Stop
	}

	logger.Info().Msg("using in-memory event deduplication")
	deduper := ingest.NewMemoryDeduper()
	return deduper, deduper.Close
}

// startSweepLeader starts the Redis-backed sweep leadership loop when
// REDIS_ADDR is configured. With a single instance and no Redis, every
// instance sweeps.
func startSweepLeader(ctx context.Context, cfg *config.Config, client *redis.Client, logger zerolog.Logger) *lock.SweepLeader {
	if client == nil {
		return nil
	}

	leader := lock.NewSweepLeader(lock.NewRedisLease(client), logger)
	leader.Start(ctx)

	logger.Info().Str("redisAddr", cfg.RedisAddr).Msg("sweep leader election enabled")
	return leader
}

// startSweeper schedules the periodic recompute sweep. When leader election
// is enabled only the leading replica sweeps.
func startSweeper(ctx context.Context, cfg *config.Config, eng *engine.Engine, leader *lock.SweepLeader, logger zerolog.Logger) *cron.Cron {
	c := cron.New()

	_, err := c.AddFunc("@every "+cfg.SweepInterval.String(), func() {
		if leader != nil && !leader.IsLeader() {
			return
		}
		if _, err := eng.Sweep(ctx); err != nil {
			logger.Error().Err(err).Msg("sweep failed")
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule sweep")
	}

	c.Start()
	logger.Info().Dur("interval", cfg.SweepInterval).Msg("sweep scheduled")
	return c
}
