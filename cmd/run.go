package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"spinearn/api"
	"spinearn/catalog"
	"spinearn/config"
	"spinearn/database"
	"spinearn/events"
	"spinearn/metrics"
	"spinearn/repository"
	"spinearn/repository/memory"
	"spinearn/security"
	"spinearn/service"
	"spinearn/session"
)

// Run initializes and starts the application, returning after ctx is cancelled
func Run(ctx context.Context) error {
	cfg := config.Get()
	configureLogging(cfg)

	log.WithField("environment", cfg.Environment).Info("Starting spinearn...")

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	// Initialize event bus
	eventBus := events.NewBus()
	metrics.SubscribeLedger(eventBus)

	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	if cfg.NATSServers != "" {
		log.Info("Connecting to NATS...")
		natsClient := events.NewNATSClient(cfg.NATSServers)
		if err := natsClient.Connect(ctx); err != nil {
			return err
		}
		cleanups = append(cleanups, func() {
			if err := natsClient.Close(); err != nil {
				log.WithError(err).Warn("Error closing NATS connection")
			}
		})
		if err := natsClient.EnsureStream(events.StreamName, events.AllSubjects()); err != nil {
			return err
		}
		events.NewForwarder(natsClient).Attach(eventBus)
		log.Info("Event forwarding to NATS enabled")
	}

	// Initialize unit of work factory
	var uowFactory service.UnitOfWorkFactory
	var healthCheck func(ctx context.Context) error
	switch cfg.StorageBackend {
	case config.StorageBackendMemory:
		log.Warn("Using in-memory storage, data is lost on restart")
		uowFactory = memory.NewUnitOfWorkFactory(memory.NewStore(), eventBus)
	default:
		log.Info("Connecting to database...")
		db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		cleanups = append(cleanups, func() {
			log.Info("Closing database connection...")
			db.Close()
		})
		log.Info("Database connection established successfully")
		uowFactory = repository.NewUnitOfWorkFactory(db, eventBus)
		healthCheck = db.Ping
	}

	sessionStore, err := newSessionStore(ctx, cfg, &cleanups)
	if err != nil {
		return err
	}
	sessions := session.NewManager(cfg.SessionSecret, time.Duration(cfg.SessionTTLHours)*time.Hour, sessionStore)

	// Initialize services
	policy := service.NewDailyResetPolicy(service.SystemClock{}, cat)
	services := api.Services{
		Accounts:    service.NewAccountService(uowFactory, policy, security.NewPasswordHasher()),
		Rewards:     service.NewRewardService(uowFactory, policy),
		Referrals:   service.NewReferralService(uowFactory, policy),
		Withdrawals: service.NewWithdrawalService(uowFactory, policy),
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(services, sessions, api.Options{
		CookieSecure: cfg.CookieSecure,
		Debug:        cfg.Debug,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		Debug:          cfg.Debug,
		HealthCheck:    healthCheck,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown did not complete cleanly")
	}
	log.Info("Shutdown completed")
	return nil
}

func configureLogging(cfg *config.Config) {
	if cfg.IsProduction() {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("Unknown LOG_LEVEL, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.CatalogFile == "" {
		return catalog.Default(), nil
	}

	cat, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"file":  cfg.CatalogFile,
		"tasks": len(cat.Tasks()),
		"tiers": len(cat.Tiers()),
	}).Info("Loaded catalog")
	return cat, nil
}

func newSessionStore(ctx context.Context, cfg *config.Config, cleanups *[]func()) (session.Store, error) {
	if cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR not set, sessions are kept in memory")
		return session.NewMemoryStore(), nil
	}

	client, err := session.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, err
	}
	*cleanups = append(*cleanups, func() {
		if err := client.Close(); err != nil {
			log.WithError(err).Warn("Error closing redis client")
		}
	})
	log.Info("Session store connected to Redis")
	return session.NewRedisStore(client), nil
}
