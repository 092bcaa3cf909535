package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/openpermit/ahj-registry-api/api/swagger"
	"github.com/openpermit/ahj-registry-api/internal/handler"
	"github.com/openpermit/ahj-registry-api/internal/middleware"
	"github.com/openpermit/ahj-registry-api/internal/models"
	"github.com/openpermit/ahj-registry-api/internal/repository"
	"github.com/openpermit/ahj-registry-api/internal/service"
	"github.com/openpermit/ahj-registry-api/pkg/cache"
	"github.com/openpermit/ahj-registry-api/pkg/config"
	"github.com/openpermit/ahj-registry-api/pkg/database"
	"github.com/openpermit/ahj-registry-api/pkg/jobs"
	"github.com/openpermit/ahj-registry-api/pkg/logger"
	corsmiddleware "github.com/openpermit/ahj-registry-api/pkg/middleware/cors"
	reqidmiddleware "github.com/openpermit/ahj-registry-api/pkg/middleware/requestid"
)

// @title AHJ Registry API
// @version 1.0.0
// @description Public registry of permitting authorities with a moderated edit ledger
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// cacheFlushingApplier invalidates cached search results whenever an apply
// pass materializes at least one edit.
type cacheFlushingApplier struct {
	apply  *service.ApplyService
	cache  *repository.CacheRepository
	logger *zap.Logger
}

func (a *cacheFlushingApplier) ApplyDueEdits(ctx context.Context) (int, error) {
	applied, err := a.apply.ApplyDueEdits(ctx)
	if applied > 0 {
		if cerr := a.cache.DeleteByPattern(ctx, "ahj:search:*"); cerr != nil {
			a.logger.Warn("failed to flush search cache after apply", zap.Error(cerr))
		}
	}
	return applied, err
}

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The registry serves reads without a cache; searches just hit the
		// database on every request.
		logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		redisClient = nil
	}

	metricsSvc := service.NewMetricsService()

	editRepo := repository.NewEditRepository(db)
	recordStore := repository.NewRecordStore()
	ahjRepo := repository.NewAHJRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr, metricsSvc)
	defer cacheRepo.Close() //nolint:errcheck
	txRunner := repository.NewTxRunner(db)

	authSvc := service.NewAuthService(userRepo, validator.New(), logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "ahj-registry-api",
		Audience:           []string{"ahj-registry"},
	})
	editSvc := service.NewEditService(editRepo, recordStore, userRepo, txRunner, userRepo, logr, cfg.Edits.EffectiveGrace)
	applySvc := service.NewApplyService(editRepo, recordStore, txRunner, logr, metricsSvc)
	reversalSvc := service.NewReversalService(editRepo, recordStore, userRepo, txRunner, userRepo, logr)
	ahjSvc := service.NewAHJService(ahjRepo, editRepo, cacheRepo, cfg.Search, logr)
	userSvc := service.NewUserService(userRepo, logr)

	applier := &cacheFlushingApplier{apply: applySvc, cache: cacheRepo, logger: logr}

	authHandler := handler.NewAuthHandler(authSvc)
	editHandler := handler.NewEditHandler(editSvc, applier, reversalSvc, metricsSvc)
	ahjHandler := handler.NewAHJHandler(ahjSvc, cfg.Exports)
	userHandler := handler.NewUserHandler(userSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/activate", authHandler.Activate)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	auth.PUT("/password", middleware.JWT(authSvc), authHandler.ChangePassword)

	// Reads are anonymous. The optional token only matters for request logs.
	public := api.Group("")
	public.Use(middleware.OptionalJWT(authSvc))
	public.POST("/ahjs/search", ahjHandler.Search)
	public.GET("/ahjs/export", ahjHandler.Export)
	public.GET("/ahjs/:id", ahjHandler.Get)
	public.GET("/edits", editHandler.List)
	public.GET("/edits/:id", editHandler.Get)
	public.GET("/users/:username", userHandler.Get)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	authed.POST("/edits/update", editHandler.SubmitUpdates)
	authed.POST("/edits/add", editHandler.SubmitAddition)
	authed.POST("/edits/delete", editHandler.SubmitDeletion)
	authed.GET("/users/me", userHandler.Me)
	authed.PUT("/users/me", userHandler.Update)

	// Moderation authorization (admin or active maintainer of the target
	// authority) is enforced in the services because it depends on the edit
	// being moderated, not on the route.
	moderation := api.Group("/edits")
	moderation.Use(middleware.JWT(authSvc))
	moderation.POST("/review", editHandler.Review)
	moderation.POST("/:id/revert", editHandler.Revert)
	moderation.GET("/:id/resettable", editHandler.Resettable)
	moderation.POST("/:id/reset", editHandler.Reset)
	moderation.POST("/:id/pending", editHandler.MakePending)

	admin := api.Group("/admin")
	admin.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/edits/apply", middleware.Audit(userRepo, models.AuditActionEditApply, "edits"), editHandler.ApplyDue)
	admin.POST("/maintainers", userHandler.SetMaintainer)
	admin.DELETE("/maintainers", userHandler.RevokeMaintainer)
	admin.GET("/metrics", metricsHandler.Snapshot)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sweeper *jobs.Sweeper
	if cfg.Edits.SweepInterval > 0 {
		sweeper = jobs.NewSweeper("edit-apply", func(ctx context.Context) error {
			_, err := applier.ApplyDueEdits(ctx)
			return err
		}, jobs.SweeperConfig{
			Interval: cfg.Edits.SweepInterval,
			Logger:   logr,
		})
		sweeper.Start(ctx)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	if sweeper != nil {
		sweeper.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
