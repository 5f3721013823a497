// Package main provides the main entry point for the Tsubame URL shortening service
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/kairoshi/tsubame/app/handlers"
	"github.com/kairoshi/tsubame/app/router"
	"github.com/kairoshi/tsubame/app/services"
	businessflow "github.com/kairoshi/tsubame/business_flow"
	"github.com/kairoshi/tsubame/config"
	"github.com/kairoshi/tsubame/repository"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Tsubame application...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg.Logging)

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop accepting requests first so in-flight visits still reach the
	// dispatcher before it drains.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	log.Println("Server stopped")
}

// setupLogging routes the standard logger to a rotating file, with an
// optional stderr tee for container setups
func setupLogging(cfg config.LoggingConfig) {
	if cfg.FilePath == "" {
		return
	}
	rotating := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	if cfg.ToStderr {
		log.SetOutput(io.MultiWriter(os.Stderr, rotating))
		return
	}
	log.SetOutput(rotating)
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeRedis initializes the Redis client used by the redis cache
// provider and verifies connectivity
func initializeRedis(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// startRedisHealthMonitor starts a background goroutine that periodically
// pings Redis to detect connectivity issues. The returned cancel function
// stops the monitor.
func startRedisHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeRedirectCache picks the cache implementation from configuration
func initializeRedirectCache(cfg *config.ProductionConfig, rc *redis.Client) businessflow.RedirectCache {
	if !cfg.Cache.Enabled || cfg.ShortURL.RedirectCacheTTL <= 0 {
		return businessflow.NoopRedirectCache{}
	}
	if cfg.Cache.Provider == "redis" && rc != nil {
		return businessflow.NewRedisRedirectCache(rc, cfg.Cache.RedisPrefix)
	}
	return businessflow.NewMemoryRedirectCache(cfg.ShortURL.RedirectCacheSize)
}

// initializeGeolocation opens the GeoIP database when enabled. A missing or
// unreadable database disables enrichment instead of failing startup.
func initializeGeolocation(cfg config.GeoIPConfig) services.GeolocationService {
	if !cfg.Enabled {
		return nil
	}
	geoService, err := services.NewMaxMindGeolocationService(cfg.MMDBPath)
	if err != nil {
		log.Printf("Geolocation disabled: %v", err)
		return nil
	}
	log.Printf("Geolocation database loaded from %s", cfg.MMDBPath)
	return geoService
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeRedis(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		cancel := startRedisHealthMonitor(context.Background(), rc, cfg.Cache.HealthCheck)
		stopFuncs = append(stopFuncs, cancel)
	}

	// Initialize repositories
	shortURLRepo := repository.NewShortURLRepository(db)
	domainRepo := repository.NewDomainRepository(db)
	tagRepo := repository.NewTagRepository(db)
	visitRepo := repository.NewVisitRepository(db)
	visitsCountRepo := repository.NewVisitsCountRepository(db)

	// Initialize services
	dispatcher := services.NewTaskDispatcher(cfg.Tracking.DispatchBuffer, cfg.Tracking.DispatchWorkers)
	stopFuncs = append(stopFuncs, func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		dispatcher.Stop(drainCtx)
	})

	geoService := initializeGeolocation(cfg.GeoIP)
	if geoService != nil {
		stopFuncs = append(stopFuncs, func() { _ = geoService.Close() })
	}

	var webhookService services.WebhookService
	if len(cfg.Webhooks.URLs) > 0 {
		webhookService = services.NewHTTPWebhookService(cfg.Webhooks.URLs, cfg.Webhooks.Timeout, cfg.Webhooks.RetryCount)
	}

	redirectCache := initializeRedirectCache(cfg, rc)

	// Initialize flows
	resolver := businessflow.NewShortURLResolver(shortURLRepo, domainRepo, visitsCountRepo, cfg.ShortURL)
	decider := businessflow.NewRedirectDecider(cfg.ShortURL)
	relationResolver := businessflow.NewRelationResolver(domainRepo, tagRepo)
	generator := businessflow.NewShortCodeGenerator(shortURLRepo, cfg.ShortURL.DefaultCodeLength)

	redirectFlow := businessflow.NewRedirectFlow(resolver, decider, redirectCache, domainRepo, cfg.ShortURL)
	visitTracker := businessflow.NewVisitTracker(db, visitRepo, visitsCountRepo, dispatcher,
		geoService, webhookService, cfg.Tracking, cfg.ShortURL.AnonymizeRemoteAddr)
	creationFlow := businessflow.NewShortURLCreationFlow(db, shortURLRepo, domainRepo,
		relationResolver, generator, redirectCache, cfg.ShortURL)

	// Initialize handlers
	redirectHandler := handlers.NewRedirectHandler(redirectFlow, visitTracker)
	pixelHandler := handlers.NewPixelHandler(redirectFlow, visitTracker)
	shortURLHandler := handlers.NewShortURLHandler(creationFlow)

	// Initialize router
	appRouter := router.NewFiberRouter(cfg, redirectHandler, pixelHandler, shortURLHandler)

	// Create application struct from FiberRouter
	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
