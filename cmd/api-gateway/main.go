package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/internship-placement-api/api/swagger"
	"github.com/noah-isme/internship-placement-api/internal/handler"
	internalmiddleware "github.com/noah-isme/internship-placement-api/internal/middleware"
	"github.com/noah-isme/internship-placement-api/internal/models"
	"github.com/noah-isme/internship-placement-api/internal/repository"
	"github.com/noah-isme/internship-placement-api/internal/service"
	"github.com/noah-isme/internship-placement-api/pkg/cache"
	"github.com/noah-isme/internship-placement-api/pkg/config"
	"github.com/noah-isme/internship-placement-api/pkg/database"
	"github.com/noah-isme/internship-placement-api/pkg/jobs"
	"github.com/noah-isme/internship-placement-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/internship-placement-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/internship-placement-api/pkg/middleware/requestid"
)

// @title Internship Placement API
// @version 1.0.0
// @description Batches, placement lifecycle and evaluation scoring
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]handler.ReadinessCheck{}

	stores, db, err := openStores(ctx, cfg, logr)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		checks["postgres"] = db.PingContext
	}

	metrics := service.NewMetricsService()

	aggregateCache := service.NewCacheService(nil, metrics, cfg.Redis.CacheTTL, logr, false)
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, aggregate cache disabled", zap.Error(err))
		} else {
			cacheRepo := repository.NewCacheRepository(client, logr)
			defer cacheRepo.Close() //nolint:errcheck
			aggregateCache = service.NewCacheService(cacheRepo, metrics, cfg.Redis.CacheTTL, logr, true)
			checks["redis"] = cacheRepo.Ping
		}
	}

	model, err := service.NewScoreModel(cfg.Evaluation.Sections)
	if err != nil {
		return fmt.Errorf("rubric: %w", err)
	}
	weights, err := service.NewRoleWeights(cfg.Evaluation)
	if err != nil {
		return fmt.Errorf("evaluation weights: %w", err)
	}

	batches := service.NewBatchService(stores.Batches, metrics, nil, logr)
	allocator := service.NewEnrollmentAllocator(batches, stores.Internships, nil, metrics, logr)
	releaseQueue := jobs.NewQueue("seat-release", allocator.ReleaseJobHandler(), jobs.QueueConfig{
		Workers:     1,
		BufferSize:  cfg.Events.BufferSize,
		MaxRetries:  cfg.Events.MaxRetries,
		RetryDelay:  cfg.Events.ReleaseRetryDelay,
		Logger:      logr,
		OnExhausted: allocator.ReleaseExhausted,
	})
	allocator.SetReleaseQueue(releaseQueue)

	eventQueue := jobs.NewQueue("lifecycle-events", service.LifecycleEventHandler(service.NewLogNotifier(logr)), jobs.QueueConfig{
		Workers:    cfg.Events.Workers,
		BufferSize: cfg.Events.BufferSize,
		MaxRetries: cfg.Events.MaxRetries,
		Logger:     logr,
	})

	evaluations, err := service.NewEvaluationService(stores.Evaluations, stores.Internships, service.SameRubric(model), weights,
		aggregateCache, cfg.Redis.CacheTTL, metrics, nil, logr)
	if err != nil {
		return err
	}
	internships := service.NewInternshipService(stores.Internships, batches, allocator, evaluations,
		service.NewEventPublisher(eventQueue, logr), metrics, nil, logr)

	releaseQueue.Start(ctx)
	eventQueue.Start(ctx)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	auth := internalmiddleware.JWT(service.NewTokenVerifier(cfg.JWT))
	api.GET("/metrics/summary", auth, internalmiddleware.RequireRoles(models.RoleAdmin), metricsHandler.Summary)
	handler.Routes{
		Batches:     handler.NewBatchHandler(batches),
		Internships: handler.NewInternshipHandler(internships),
		Evaluations: handler.NewEvaluationHandler(evaluations, internships),
	}.Register(api, auth)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	eventQueue.Stop()
	releaseQueue.Stop()
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, logr *zap.Logger) (repository.Stores, *sqlx.DB, error) {
	if cfg.Storage.Driver != config.StoragePostgres {
		logr.Info("using in-memory storage")
		return repository.NewMemoryStores(), nil, nil
	}
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return repository.Stores{}, nil, fmt.Errorf("postgres: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db.DB, logr); err != nil {
			db.Close()
			return repository.Stores{}, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return repository.NewSQLStores(db), db, nil
}
