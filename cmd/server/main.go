// Package main is the entry point for the hostdesk calendar sync server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/hostdesk/backend/internal/api"
	"github.com/hostdesk/backend/internal/calendar"
	"github.com/hostdesk/backend/internal/config"
	"github.com/hostdesk/backend/internal/logger"
	"github.com/hostdesk/backend/internal/notify"
	"github.com/hostdesk/backend/internal/staging"
	"github.com/hostdesk/backend/internal/storage"
	"github.com/hostdesk/backend/internal/validation"
	"github.com/hostdesk/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	// Flags override the environment
	addr := flag.String("addr", cfg.Server.Addr, "HTTP server address")
	dataDir := flag.String("data", cfg.Data.Dir, "Data directory for SQLite database")
	staticDir := flag.String("static", cfg.Server.StaticDir, "Directory for static frontend files")
	logLevel := flag.String("log-level", cfg.Server.LogLevel, "Log level (debug, info, warn, error)")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	cfg.Server.Addr = *addr
	cfg.Data.Dir = *dataDir
	cfg.Server.StaticDir = *staticDir
	cfg.Server.LogLevel = *logLevel

	logger.Init(cfg.Server.LogLevel)

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.Server.Addr); err != nil {
			log.Fatal().Err(err).Msg("health check failed")
		}
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	log.Info().Str("version", version).Msg("starting hostdesk")

	if err := run(cfg); err != nil {
		logger.ErrorWithStack(err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewDB(filepath.Join(cfg.Data.Dir, "hostdesk.db"))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := websocket.NewHub()
	go hub.Run(hubCtx)
	events := websocket.NewEventBroadcaster(hub)

	locker, closeLocker, err := newLocker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	overrides := make(map[string]calendar.Rules, len(cfg.Platforms))
	for name, rules := range cfg.Platforms {
		overrides[name] = calendar.Rules{
			BlockedMarkers:   rules.BlockedMarkers,
			NamePrefixes:     rules.NamePrefixes,
			NameFromAttendee: rules.NameFromAttendee,
		}
	}
	parser := calendar.NewParser(calendar.NewExtractors(overrides))
	fetcher := calendar.NewFetcher(cfg.Sync.FetchTimeout, cfg.Sync.MaxFeedBytes)

	syncService := calendar.NewSyncService(db, fetcher, parser, locker, calendar.SyncConfig{
		MaxConcurrentFetches:    cfg.Sync.MaxConcurrentFetches,
		MaxConcurrentProperties: cfg.Sync.MaxConcurrentProperties,
	})
	syncService.SetNotifier(notify.NewSink(storage.NewNotificationRepository(db), events))
	syncService.SetEvents(events)

	scheduler := calendar.NewScheduler(syncService, cfg.Sync.Schedule, cfg.Sync.RunTimeout)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer scheduler.Stop()

	validator := validation.New()

	router := api.NewRouter(api.Services{
		DB:        db,
		Hub:       hub,
		Events:    events,
		Syncer:    syncService,
		Scheduler: scheduler,
		Workflow:  staging.NewWorkflow(db, validator, events),
		Review:    staging.NewReview(db),
		Validator: validator,
		StaticDir: cfg.Server.StaticDir,
	})

	server := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// A synchronous sync answers only after every feed was fetched
		WriteTimeout: cfg.Sync.RunTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("serving http: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}

// newLocker returns a Redis locker when Redis is configured, otherwise an
// in-process one.
func newLocker(ctx context.Context, cfg *config.Config) (calendar.Locker, func(), error) {
	if cfg.Redis.Addr == "" {
		return calendar.NewMemoryLocker(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
	}

	log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis for sync locks")
	return calendar.NewRedisLocker(client, cfg.Redis.LockTTL), func() { client.Close() }, nil
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://localhost" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}
