package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"github.com/tidemark-dev/authority/pkg/audit"
	"github.com/tidemark-dev/authority/pkg/authority"
	"github.com/tidemark-dev/authority/pkg/config"
	"github.com/tidemark-dev/authority/pkg/middleware"
	"github.com/tidemark-dev/authority/pkg/observability"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	// Assignment store
	var (
		store authority.Store
		db    *sql.DB
	)
	switch cfg.Store.Type {
	case "postgres":
		db, err = sql.Open("postgres", cfg.Store.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.Store.PostgresMaxConns)

		if cfg.Store.RunMigrations {
			if err := authority.RunMigrations(context.Background(), db); err != nil {
				log.Fatalf("Failed to run migrations: %v", err)
			}
		}
		store = authority.NewPostgresStore(db)
	case "memory":
		store = authority.NewMemoryStore()
		logger.Warn("using in-memory store; assignments will not survive a restart")
	}

	// Assignment cache
	var (
		cache      authority.Cache
		redisCache *authority.RedisCache
	)
	switch cfg.Cache.Type {
	case "memory":
		cache = authority.NewMemoryCache(cfg.Cache.TTL, cfg.Cache.Size)
	case "redis":
		redisCache, err = authority.NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisCache.Close()
		cache = redisCache
	}

	// Legacy allow-list
	var legacy *authority.LegacyAdmins
	if cfg.Legacy.AdminsFile != "" {
		legacy, err = authority.LoadLegacyAdmins(cfg.Legacy.AdminsFile)
		if err != nil {
			log.Fatalf("Failed to load legacy admin list: %v", err)
		}
		logger.WithField("count", len(legacy.Principals())).Info("legacy admin allow-list loaded")
	}

	// Audit trail
	var auditor audit.Logger
	if cfg.Audit.LogFile != "" {
		fileAuditor, err := audit.NewFileLogger(cfg.Audit.LogFile)
		if err != nil {
			log.Fatalf("Failed to open audit log: %v", err)
		}
		defer fileAuditor.Close()
		auditor = fileAuditor
	} else {
		auditor = audit.NewSlogLogger(logger)
	}

	opts := []authority.EngineOption{
		authority.WithLogger(logger),
		authority.WithAuditLogger(auditor),
	}
	if cache != nil {
		opts = append(opts, authority.WithCache(cache))
	}
	if legacy != nil {
		opts = append(opts, authority.WithLegacyAdmins(legacy))
	}
	if metrics != nil {
		opts = append(opts, authority.WithMetrics(metrics))
	}
	if cfg.Legacy.AutoPersist {
		opts = append(opts, authority.WithLegacyAutoPersist())
	}
	engine := authority.NewEngine(store, opts...)

	// API router. The principal header is optional here; check and
	// read routes are open, and RegisterRoutes gates the assignment
	// mutations on roles:manage itself.
	router := mux.NewRouter()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.PrincipalMiddleware(false))
	if metrics != nil {
		router.Use(metrics.HTTPMiddleware)
	}
	authority.NewHandlers(engine).RegisterRoutes(router)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes.
	healthRouter := mux.NewRouter()
	var redisClient *redis.Client
	if redisCache != nil {
		redisClient = redisCache.Client()
	}
	health := observability.NewHealthChecker(db, redisClient)
	healthRouter.HandleFunc("/livez", health.Liveness).Methods("GET")
	healthRouter.HandleFunc("/readyz", health.Readiness).Methods("GET")
	if metrics != nil {
		healthRouter.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthRouter,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()
	go func() {
		logger.WithField("addr", apiServer.Addr).Info("authority server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("server shutdown incomplete")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("health server shutdown incomplete")
	}
}
