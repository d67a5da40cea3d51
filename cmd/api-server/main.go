package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/litholog/rock-registry-api/api/swagger"
	"github.com/litholog/rock-registry-api/internal/handler"
	"github.com/litholog/rock-registry-api/internal/middleware"
	"github.com/litholog/rock-registry-api/internal/models"
	"github.com/litholog/rock-registry-api/internal/repository"
	"github.com/litholog/rock-registry-api/internal/service"
	"github.com/litholog/rock-registry-api/pkg/cache"
	"github.com/litholog/rock-registry-api/pkg/config"
	"github.com/litholog/rock-registry-api/pkg/database"
	"github.com/litholog/rock-registry-api/pkg/logger"
	corsmiddleware "github.com/litholog/rock-registry-api/pkg/middleware/cors"
	reqidmiddleware "github.com/litholog/rock-registry-api/pkg/middleware/requestid"
	"github.com/litholog/rock-registry-api/pkg/storage"
)

// @title Rock Registry API
// @version 1.0.0
// @description Role-based rock sample registry with verification workflow
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Catalog.CacheEnabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
			redisClient = nil
		}
	}

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	sampleRepo := repository.NewSampleRepository(db)
	userRepo := repository.NewUserRepository(db)
	imageRepo := repository.NewImageRepository(db)
	archiveRepo := repository.NewArchiveRepository(db)
	logRepo := repository.NewLogRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Catalog.CacheTTL, logr,
		cfg.Catalog.CacheEnabled && redisClient != nil)

	authService := service.NewAuthService(userRepo, logRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "rock-registry-api",
	})
	sampleService := service.NewSampleService(sampleRepo, cacheService, metricsService, nil, logr)
	catalogService := service.NewCatalogService(sampleRepo, imageRepo, logRepo, cacheService, logr)
	userService := service.NewUserService(userRepo, logRepo, nil, logr)
	activityService := service.NewActivityService(logRepo, archiveRepo, logr)
	imageService := service.NewImageService(imageRepo, sampleRepo, logr)
	exportService := service.NewExportService(sampleRepo, imageRepo, exportStore, signer, logr)

	uploadLimits := handler.UploadLimits{
		MaxImageBytes: cfg.Uploads.MaxImageSizeBytes,
		AllowedMIMEs:  mimeSet(cfg.Uploads.AllowedMIMEs),
	}

	authHandler := handler.NewAuthHandler(authService)
	sampleHandler := handler.NewSampleHandler(sampleService, catalogService, uploadLimits)
	userHandler := handler.NewUserHandler(userService, uploadLimits)
	activityHandler := handler.NewActivityHandler(activityService)
	imageHandler := handler.NewImageHandler(imageService)
	exportHandler := handler.NewExportHandler(exportService, exportStore, signer)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsService.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authService), authHandler.ChangePassword)
	}

	// The download token authenticates on its own.
	api.GET("/exports/download", exportHandler.Download)

	protected := api.Group("")
	protected.Use(middleware.JWT(authService))
	{
		samples := protected.Group("/samples")
		{
			samples.POST("", sampleHandler.Create)
			samples.GET("", sampleHandler.List)
			samples.GET("/facets", sampleHandler.Facets)
			samples.GET("/map", sampleHandler.MapPoints)
			samples.GET("/:id", sampleHandler.Detail)
			samples.PUT("/:id", sampleHandler.Update)
			samples.DELETE("/:id", sampleHandler.Delete)
			samples.GET("/:id/images/:type", imageHandler.GetSlot)

			staff := samples.Group("")
			staff.Use(middleware.RequireRoles(models.RolePersonnel, models.RoleAdmin))
			{
				staff.POST("/:id/decision", sampleHandler.Decide)
				staff.POST("/:id/archive", sampleHandler.Archive)
			}

			samples.DELETE("/:id/archive",
				middleware.RequireRoles(models.RoleAdmin), sampleHandler.Unarchive)
		}

		protected.GET("/images/:id", imageHandler.Get)
		protected.GET("/dashboard/stats", sampleHandler.Stats)
		protected.GET("/activity", activityHandler.ListActivity)
		protected.GET("/archives",
			middleware.RequireRoles(models.RolePersonnel, models.RoleAdmin), activityHandler.ListArchives)
		protected.POST("/exports", exportHandler.Generate)

		users := protected.Group("/users")
		{
			users.GET("/me", userHandler.Profile)
			users.PUT("/me", userHandler.UpdateProfile)

			admin := users.Group("")
			admin.Use(middleware.RequireRoles(models.RoleAdmin))
			{
				admin.GET("", userHandler.List)
				admin.POST("", userHandler.Create)
				admin.PUT("/:id", userHandler.Update)
				admin.DELETE("/:id", userHandler.Deactivate)
				admin.POST("/:id/activate", userHandler.Reactivate)
			}
		}
	}

	go cleanupExports(exportStore, cfg.Exports.ResultTTL, logr)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

// cleanupExports prunes rendered export files after their retention window.
func cleanupExports(store *storage.LocalStorage, ttl time.Duration, logr *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		removed, err := store.CleanupOlderThan(ttl)
		if err != nil {
			logr.Sugar().Warnw("export cleanup failed", "error", err)
			continue
		}
		if len(removed) > 0 {
			logr.Sugar().Infow("pruned expired exports", "count", len(removed))
		}
	}
}

func mimeSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
