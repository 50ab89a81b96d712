package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"giveaway-bot-backend/internal/common/config"
	"giveaway-bot-backend/internal/common/logger"
	"giveaway-bot-backend/internal/common/middleware"
	giveawayhttp "giveaway-bot-backend/internal/features/giveaway/delivery/http"
	giveawayredis "giveaway-bot-backend/internal/features/giveaway/repository/redis"
	"giveaway-bot-backend/internal/features/giveaway/service"
	"giveaway-bot-backend/internal/platform/discord"
	"giveaway-bot-backend/internal/platform/redis"
)

func main() {
	cfg := config.Load()

	logger.Init("giveaway-bot-backend", cfg.Debug)

	ctx := context.Background()

	redisClient, err := redis.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()
	logger.Info().Msg("Redis connection established")

	recordStore := giveawayredis.NewRedisRecordStore(redisClient.Client)
	discordClient := discord.NewClient(cfg, logger.With("discord"))

	giveawaySvc := service.NewGiveawayService(
		recordStore,
		discordClient,
		service.NewSystemClock(),
		cfg.Giveaway.RefreshInterval,
		logger.With("giveaway-service"),
	)

	// Re-arm end and refresh timers for everything that was live before the
	// last shutdown; overdue giveaways end immediately.
	if err := giveawaySvc.RestoreActive(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to restore active giveaways")
	}
	logger.Info().Msg("Active giveaways restored")

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.HandleErrors(logger.With("http")))
	router.Use(middleware.ErrorHandler(logger.With("http")))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Accept"}
	router.Use(cors.New(corsConfig))

	statusHandler := giveawayhttp.NewHandler(recordStore, discordClient, logger.With("status-api"))
	statusHandler.Register(router.Group("/api"))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   "giveaway-bot-backend",
		})
	})

	router.GET("/live", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unready",
				"error":   "redis unavailable",
				"details": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	giveawaySvc.Stop()
	logger.Info().Msg("Server exited")
}
