package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"movievault/internal/api"
	"movievault/internal/bot"
	"movievault/internal/config"
	"movievault/internal/logging"
	"movievault/internal/ratelimit"
	"movievault/internal/redis"
	"movievault/internal/service/ingest"
	"movievault/internal/service/retention"
	"movievault/internal/service/search"
	"movievault/internal/session"
	"movievault/internal/storage"
	"movievault/internal/supervisor"
	"movievault/internal/worker"
)

const httpShutdownTimeout = 10 * time.Second

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the bot: event API, per-user workers and retention sweeps",
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return outputError(err)
	}
	if err := cfg.Validate(); err != nil {
		return outputError(err)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, catalog, err := openCatalog(ctx, cfg)
	if err != nil {
		return outputError(err)
	}
	defer db.Close()

	tracker, redisProbe, closeTracker, err := newTracker(cfg)
	if err != nil {
		return outputError(err)
	}
	defer closeTracker()

	sessions := session.NewStore(cfg.Catalog.SessionTimeout)
	limiter := ratelimit.New(cfg.Catalog.RateLimitRequests, cfg.Catalog.RateLimitWindow)
	engine := search.NewEngine(catalog, search.Options{
		DirectLimit:     cfg.Catalog.DirectLimit,
		SuggestionLimit: cfg.Catalog.SuggestionLimit,
		SuggestionChars: cfg.Catalog.SuggestionChars,
	})
	orchestrator := ingest.NewOrchestrator(sessions, catalog, cfg.Catalog.StorageRoomID)
	messenger := newMessenger(cfg)

	scheduler := retention.NewScheduler(tracker, messenger, retention.Options{
		MaxAge:       cfg.Catalog.MessageRetention,
		Interval:     cfg.Catalog.SweepInterval,
		ErrorBackoff: cfg.Catalog.SweepBackoff,
		Sessions:     sessions,
		Limiter:      limiter,
	})
	handler := bot.New(messenger, orchestrator, engine, limiter, scheduler, bot.Config{
		SearchRoomID:    cfg.Catalog.SearchRoomID,
		StorageRoomID:   cfg.Catalog.StorageRoomID,
		AdminID:         cfg.Catalog.AdminID,
		InviteURL:       cfg.Catalog.InviteURL,
		SuggestionChars: cfg.Catalog.SuggestionChars,
	})
	manager := worker.NewManager(handler, worker.Config{
		QueueSize:   cfg.BasicConfig.QueueSize,
		IdleTimeout: cfg.BasicConfig.WorkerIdleTimeout,
		JobTimeout:  cfg.BasicConfig.JobTimeout,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger())
	probes := []api.Probe{manager, scheduler}
	if redisProbe != nil {
		probes = append(probes, redisProbe)
	}
	api.NewHandler(manager, cfg.BasicConfig.EventToken, probes...).RegisterRoutes(router)
	server := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	tree.AddPipelineService(manager)
	tree.AddMaintenanceService(scheduler)
	tree.AddAPIService(supervisor.NewHTTPServerService(server, httpShutdownTimeout))

	logging.Info().
		Str("addr", server.Addr).
		Str("db_type", cfg.BasicConfig.DBType).
		Int64("search_room_id", cfg.Catalog.SearchRoomID).
		Int64("storage_room_id", cfg.Catalog.StorageRoomID).
		Bool("redis", cfg.Redis.Enabled).
		Str("version", Version).
		Msg("movievault starting")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return outputError(fmt.Errorf("supervisor stopped: %w", err))
	}
	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
		}
	}
	logging.Info().Msg("movievault stopped")
	return nil
}

// openCatalog connects with retry and migrates the schema. Exhausting the
// retry policy is fatal to the caller.
func openCatalog(ctx context.Context, cfg *config.Config) (*sql.DB, *storage.CatalogStore, error) {
	dbType := cfg.BasicConfig.DBType
	db, err := storage.OpenWithRetry(ctx, dbType, cfg, storage.RetryPolicyFromConfig(cfg.BasicConfig))
	if err != nil {
		return nil, nil, err
	}
	if err := storage.Migrate(db, dbType); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, storage.NewCatalogStore(db), nil
}

// newTracker picks the tracked-message store. The returned probe is nil for
// the in-memory tracker.
func newTracker(cfg *config.Config) (retention.Tracker, api.Probe, func(), error) {
	if !cfg.Redis.Enabled {
		return retention.NewMemoryTracker(), nil, func() {}, nil
	}
	client, err := redis.NewRedisClient(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create redis client: %w", err)
	}
	return retention.NewRedisTracker(client, cfg.Redis.TrackedKey), client, func() { client.Close() }, nil
}

func newMessenger(cfg *config.Config) bot.Messenger {
	var m bot.Messenger
	if cfg.BasicConfig.OutboundURL == "" {
		logging.Warn().Msg("no outbound bridge configured, replies are only logged")
		m = bot.NewLogMessenger()
	} else {
		m = bot.NewBridgeMessenger(bot.BridgeConfig{
			BaseURL: cfg.BasicConfig.OutboundURL,
			Token:   cfg.BasicConfig.OutboundToken,
			Timeout: cfg.BasicConfig.OutboundTimeout,
		})
	}
	return bot.NewThrottled(m, cfg.BasicConfig.OutboundPerSecond, cfg.BasicConfig.OutboundBurst)
}
