package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/lemarcheluxe/backend/internal/auth"
	"github.com/lemarcheluxe/backend/internal/cache"
	"github.com/lemarcheluxe/backend/internal/config"
	"github.com/lemarcheluxe/backend/internal/database"
	"github.com/lemarcheluxe/backend/internal/email"
	"github.com/lemarcheluxe/backend/internal/handlers"
	"github.com/lemarcheluxe/backend/internal/logger"
	"github.com/lemarcheluxe/backend/internal/messaging"
	"github.com/lemarcheluxe/backend/internal/metrics"
	"github.com/lemarcheluxe/backend/internal/middleware"
	"github.com/lemarcheluxe/backend/internal/products"
	"github.com/lemarcheluxe/backend/internal/profiles"
	"github.com/lemarcheluxe/backend/internal/repository"
	"github.com/lemarcheluxe/backend/internal/search"
	"github.com/lemarcheluxe/backend/internal/storage"
	"github.com/lemarcheluxe/backend/internal/telemetry"
	"github.com/lemarcheluxe/backend/internal/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const serviceName = "lemarcheluxe-backend"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Close()

	logger.Log.Info("=== Le Marché Luxe server starting ===",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Port),
	)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.Initialize()

	ctx := context.Background()

	tp, err := telemetry.InitTracer(ctx, telemetry.Config{
		ServiceName:  serviceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		logger.WarnWithFields("Tracing disabled", err)
	}
	if tp != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.WarnWithFields("Tracer shutdown failed", err)
			}
		}()
	}

	if err := database.Initialize(cfg.DatabaseURL, cfg.IsDevelopment()); err != nil {
		logger.FatalWithFields("Failed to initialize database", err)
	}
	defer database.Close()

	if err := database.Migrate(database.DB); err != nil {
		logger.FatalWithFields("Failed to run migrations", err)
	}

	profileRepo := repository.NewProfileRepository(database.DB)
	productRepo := repository.NewProductRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.DB)
	resetRepo := repository.NewPasswordResetRepository(database.DB)

	// Redis backs token revocation, unread counters and the auth rate limit.
	// Without it the server still runs with in-process fallbacks.
	var redisClient *cache.RedisClient
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.WarnWithFields("Redis unavailable, continuing without cache", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var uploader storage.ImageUploader
	if cfg.S3Bucket != "" {
		s3Uploader, err := storage.NewS3Uploader(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.CDNBaseURL)
		if err != nil {
			logger.FatalWithFields("Failed to initialize S3 uploader", err)
		}
		if err := s3Uploader.CheckBucketAccess(ctx); err != nil {
			logger.WarnWithFields("S3 bucket access failed, uploads will fail", err)
		}
		uploader = s3Uploader
	} else {
		logger.Log.Warn("S3_BUCKET not set, image uploads disabled")
	}

	var searchClient *search.Client
	if cfg.ElasticsearchURL != "" {
		searchClient, err = search.NewClient(cfg.ElasticsearchURL)
		if err != nil {
			logger.WarnWithFields("Elasticsearch unavailable, search falls back to Postgres", err)
			searchClient = nil
		} else if err := searchClient.InitializeIndices(ctx); err != nil {
			logger.WarnWithFields("Failed to initialize search indices", err)
		}
	}

	authService := auth.NewService(profileRepo, resetRepo, []byte(cfg.JWTSecret), cfg.JWTTTL)
	if redisClient != nil {
		authService.SetRevoker(redisClient)
	}
	if cfg.Google != nil {
		authService.SetGoogleConfig(cfg.Google)
	}
	mailer, err := email.NewEmailService(cfg.AWSRegion, cfg.SESFromEmail, "Le Marché Luxe", cfg.FrontendURL)
	if err != nil {
		logger.WarnWithFields("SES unavailable, account emails disabled", err)
	} else {
		authService.SetMailer(mailer)
	}

	var (
		profileService *profiles.Service
		productService *products.Service
	)
	if searchClient != nil {
		profileService = profiles.NewService(profileRepo, uploader, searchClient)
		productService = products.NewService(productRepo, uploader, searchClient)

		reconciler := search.NewReconciliationService(searchClient, database.DB, 10*time.Minute)
		reconciler.Start()
		defer reconciler.Stop()
	} else {
		profileService = profiles.NewService(profileRepo, uploader, nil)
		productService = products.NewService(productRepo, uploader, nil)
	}

	messagingService := messaging.NewService(conversationRepo, profileRepo, productRepo)
	if redisClient != nil {
		messagingService.SetUnreadCache(redisClient)
		productService.SetUnreadCache(redisClient)
	}

	wsHub := websocket.NewHub()
	go wsHub.Run()
	wsHandler := websocket.NewHandler(wsHub, authService, conversationRepo, originPatterns(cfg.CORSOrigins))
	messagingService.SetPublisher(wsHub)

	sweeper := messaging.NewOrphanSweeper(conversationRepo, cfg.OrphanSweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	h := handlers.NewHandlers(authService, profileService, productService, messagingService)
	h.SetWebSocketHandler(wsHandler)
	h.SetFrontendURL(cfg.FrontendURL, !cfg.IsDevelopment())
	h.AddHealthCheck("database", func(context.Context) error { return database.Health() })
	if redisClient != nil {
		h.AddHealthCheck("redis", redisClient.Ping)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Request-ID", "X-Correlation-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "X-Correlation-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"}
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1/ws"})))
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.CorrelationMiddleware())
	r.Use(middleware.TracingMiddleware(serviceName))
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.RateLimit("api", cfg.RateLimitRPS, 0))

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth endpoints get a stricter shared limit when Redis is available
	authLimit := middleware.RateLimit("auth", 1, 10)
	if redisClient != nil {
		authLimit = middleware.RedisRateLimitMiddleware(redisClient, "auth", 10, time.Minute)
	}

	h.RegisterRoutes(r.Group("/api/v1"), handlers.RouteMiddleware{
		RequireAuth:  middleware.AuthMiddleware(authService),
		OptionalAuth: middleware.OptionalAuthMiddleware(authService),
		AuthLimit:    authLimit,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Le Marché Luxe backend listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.FatalWithFields("Failed to start server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := wsHandler.Shutdown(shutdownCtx); err != nil {
		logger.WarnWithFields("WebSocket shutdown warning", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithFields("Server forced to shutdown", err)
	}

	logger.Log.Info("Server exited")
}

// originPatterns turns CORS origins into the host patterns the
// WebSocket upgrader matches against
func originPatterns(origins []string) []string {
	var patterns []string
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}
