package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alem-hub/behavior-interpreter/config"
	"github.com/alem-hub/behavior-interpreter/internal/application/command"
	"github.com/alem-hub/behavior-interpreter/internal/application/interpreter"
	knowledgeapp "github.com/alem-hub/behavior-interpreter/internal/application/knowledge"
	userstateapp "github.com/alem-hub/behavior-interpreter/internal/application/userstate"
	"github.com/alem-hub/behavior-interpreter/internal/domain/userstate"
	"github.com/alem-hub/behavior-interpreter/internal/infrastructure/metrics"
	"github.com/alem-hub/behavior-interpreter/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/behavior-interpreter/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/behavior-interpreter/internal/infrastructure/scheduler"
	"github.com/alem-hub/behavior-interpreter/internal/infrastructure/service"
	"github.com/alem-hub/behavior-interpreter/pkg/circuitbreaker"
	"github.com/alem-hub/behavior-interpreter/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION GRAPH
// Shared by serve and consume.
// ══════════════════════════════════════════════════════════════════════════════

type app struct {
	cfg *config.Config
	log *logger.Logger

	db    *postgres.Connection
	redis *redis.Cache // nil when disabled or unreachable

	metrics   *metrics.Metrics // nil when disabled
	events    *postgres.EventRepository
	episodes  *postgres.EpisodeRepository
	store     *service.GuardedProfileStore
	profiles  *interpreter.ProfileCache
	knowledge *knowledgeapp.Service
	ingest    *command.IngestEventHandler
}

func setupLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.IsDevelopment(),
	}).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}

func connectDatabase(ctx context.Context, cfg *config.Config) (*postgres.Connection, error) {
	dbCfg := postgres.DefaultConfig()
	dbCfg.URL = cfg.Database.URL
	dbCfg.MaxConns = cfg.Database.MaxConns
	dbCfg.MinConns = cfg.Database.MinConns
	dbCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	dbCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	dbCfg.ConnectTimeout = cfg.Database.ConnectTimeout

	conn, err := postgres.NewConnection(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return conn, nil
}

// newApp builds the interpretation pipeline. The caller must call close.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	// ─────────────────────────────────────────────────────────────────────────
	// 1. METRICS
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Observability.MetricsEnabled {
		a.metrics = metrics.New()
	}
	onBreakerChange := func(name string, from, to circuitbreaker.State) {
		a.metrics.BreakerStateChanged(name, from, to)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. POSTGRES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database")
	db, err := connectDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.db = db

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var publisher userstate.Publisher
	if !cfg.Redis.Disabled {
		cache, err := redis.NewCache(redis.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("failed to connect to Redis, episode broadcast disabled", logger.Err(err))
		} else {
			a.redis = cache
			publisher = redis.NewEpisodePublisher(cache, circuitbreaker.PublisherBreaker(onBreakerChange))
			log.Info("Redis connection established", logger.String("addr", cfg.Redis.Addr))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REPOSITORIES AND COLLABORATORS
	// ─────────────────────────────────────────────────────────────────────────
	a.events = postgres.NewEventRepository(db)
	a.episodes = postgres.NewEpisodeRepository(db)

	a.store = service.NewGuardedProfileStore(
		postgres.NewProfileStore(db, postgres.ProfileStoreConfig{
			MaxSubmissions: cfg.Database.ProfileMaxSubmissions,
			Lookback:       cfg.Database.ProfileLookback,
		}),
		cfg.Interpreter.ProfileTimeout,
		log,
		onBreakerChange,
	)

	a.knowledge = knowledgeapp.NewService(postgres.NewKnowledgeRepository(db), cfg.Knowledge.Params(), log)
	notifier := userstateapp.NewService(a.episodes, publisher, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. INTERPRETER
	// ─────────────────────────────────────────────────────────────────────────
	var rec interpreter.Recorder
	if a.metrics != nil {
		rec = a.metrics
	}

	a.profiles = interpreter.NewProfileCache(a.store, interpreter.CacheConfig{
		MaxEntries: cfg.Interpreter.CacheMaxEntries,
		TTL:        cfg.Interpreter.CacheTTL,
	})
	if rec != nil {
		a.profiles.SetRecorder(rec)
	}

	interp := interpreter.New(a.profiles, a.knowledge, notifier, log, rec)
	a.ingest = command.NewIngestEventHandler(a.events, interp, a.profiles, log, command.IngestEventHandlerConfig{
		RetryStoreOutages: cfg.Interpreter.RetryStoreOutages,
	})

	return a, nil
}

// newScheduler registers the retention job. Returns nil when the scheduler
// is disabled.
func (a *app) newScheduler() (*scheduler.Scheduler, error) {
	if !a.cfg.Scheduler.Enabled {
		return nil, nil
	}
	s := scheduler.New(scheduler.Config{Timezone: a.cfg.Scheduler.Location()}, a.log)
	job := scheduler.NewRetentionJob(a.events, a.episodes, a.cfg.Scheduler.EventRetention, a.cfg.Scheduler.JobTimeout, a.log)
	if err := s.Register(job, a.cfg.Scheduler.RetentionSchedule); err != nil {
		return nil, fmt.Errorf("failed to register retention job: %w", err)
	}
	return s, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("failed to close Redis", logger.Err(err))
		}
	}
	if a.db != nil {
		a.log.Info("closing database connection")
		a.db.Close()
	}
}
