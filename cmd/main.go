package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/profelabs/profe/server/adapters/lipsync"
	"github.com/profelabs/profe/server/adapters/llm"
	mongodb "github.com/profelabs/profe/server/adapters/mongo"
	redisstore "github.com/profelabs/profe/server/adapters/redis"
	"github.com/profelabs/profe/server/adapters/stt"
	"github.com/profelabs/profe/server/adapters/tts"
	"github.com/profelabs/profe/server/domain/repositories"
	"github.com/profelabs/profe/server/internal/api"
	"github.com/profelabs/profe/server/internal/cache"
	"github.com/profelabs/profe/server/internal/config"
	"github.com/profelabs/profe/server/internal/guard"
	"github.com/profelabs/profe/server/internal/ratelimit"
	"github.com/profelabs/profe/server/internal/websocket"
	"github.com/profelabs/profe/server/usecase"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// External providers
	speechToText, generator, synthesizer, aligner := buildProviders(ctx, cfg, logger)

	// Response cache, optionally layered over Redis
	cacheOpts := []cache.Option{}
	if cfg.RedisURL != "" {
		redisOpts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Invalid REDIS_URL", zap.Error(err))
		}
		store := redisstore.NewCacheStore(goredis.NewClient(redisOpts),
			redisstore.WithTTL(cfg.CacheTTL))
		cacheOpts = append(cacheOpts, cache.WithStore(store))
		logger.Info("Shared cache store enabled")
	}
	responseCache := cache.New(cache.Config{
		TTL:        cfg.CacheTTL,
		MaxEntries: cfg.CacheMaxEntries,
	}, logger, cacheOpts...)
	go responseCache.RunJanitor(ctx, cfg.CacheSweepInterval)

	limiter := ratelimit.New(ratelimit.Config{
		MaxPerMinute: cfg.RateMaxPerMinute,
		MaxPerHour:   cfg.RateMaxPerHour,
	}, logger)

	// Interaction analytics, only when Mongo is configured
	var analytics repositories.InteractionSink
	var mongoClient *mongodb.Client
	if cfg.MongoURI != "" {
		mongoClient, err = mongodb.NewClient(logger)
		if err != nil {
			logger.Warn("Interaction analytics disabled", zap.Error(err))
		} else {
			analytics = mongodb.NewInteractionRepository(mongoClient.Database)
		}
	}

	pipeline := usecase.NewVoicePipeline(
		speechToText, generator, synthesizer, aligner,
		responseCache, limiter, analytics,
		usecase.PipelineConfig{
			DefaultVoice: cfg.DefaultVoice,
			Model:        cfg.Model,
			Language:     cfg.Language,
			Guard: guard.Options{
				Retries: cfg.GuardRetries,
				Timeout: cfg.GuardTimeout,
				Logger:  logger,
			},
		},
		logger,
	)

	// Create Echo instance
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	hub := websocket.NewHub(pipeline, logger)
	go hub.Run()

	api.InitRoutes(e, pipeline, hub, logger)

	// Start server
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", cfg.Port),
		zap.Bool("mockProviders", cfg.UseMockProviders))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	if mongoClient != nil {
		if err := mongoClient.Close(shutdownCtx); err != nil {
			logger.Warn("Failed to close MongoDB connection", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

// buildProviders wires the real external providers, or their in-memory
// mocks when USE_MOCK_PROVIDERS is set.
func buildProviders(ctx context.Context, cfg config.Service, logger *zap.Logger) (
	repositories.SpeechToText,
	repositories.AnswerGenerator,
	repositories.SpeechSynthesizer,
	repositories.Aligner,
) {
	if cfg.UseMockProviders {
		logger.Info("Using mock providers")
		return stt.NewMockSpeechToText(logger),
			llm.NewMockGenerator(),
			tts.NewMockTextToSpeech(logger),
			&lipsync.FakeAligner{}
	}

	generator, err := llm.NewGeminiGenerator(ctx, llm.NewGeminiConfigFromEnv(), logger)
	if err != nil {
		logger.Fatal("Failed to initialize answer generator", zap.Error(err))
	}

	synthesizer, err := tts.NewElevenLabsTTS(tts.NewElevenLabsConfigFromEnv(), logger)
	if err != nil {
		logger.Fatal("Failed to initialize speech synthesizer", zap.Error(err))
	}

	aligner, err := lipsync.NewRhubarbAligner(lipsync.NewRhubarbConfigFromEnv(), logger)
	if err != nil {
		logger.Fatal("Failed to initialize lip-sync aligner", zap.Error(err))
	}

	return stt.NewGoogleSpeechToText(logger), generator, synthesizer, aligner
}
