package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/satriahrh/kuber/server/adapters"
	"github.com/satriahrh/kuber/server/internal/api"
	"github.com/satriahrh/kuber/server/internal/audio"
	"github.com/satriahrh/kuber/server/internal/cache"
	"github.com/satriahrh/kuber/server/internal/config"
	"github.com/satriahrh/kuber/server/internal/events"
	"github.com/satriahrh/kuber/server/internal/logging"
	"github.com/satriahrh/kuber/server/internal/metrics"
	"github.com/satriahrh/kuber/server/internal/nudge"
	"github.com/satriahrh/kuber/server/internal/stages"
	"github.com/satriahrh/kuber/server/internal/websocket"
	"github.com/satriahrh/kuber/server/usecase"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := logging.New(logging.Config{Level: cfg.Server.LogLevel, Format: cfg.Server.LogFormat})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	var resultCache *cache.ResultCache
	if cfg.Cache.Enabled {
		resultCache = cache.New(cache.Config{
			DefaultTTL: cfg.Cache.DefaultTTL(),
			MaxSize:    cfg.Cache.MaxSize,
		}, m, logging.WithComponent(logger, "cache"))
		sweeper := cache.NewSweeper(resultCache, cfg.Cache.SweepInterval(), logger)
		sweeper.Start()
		defer sweeper.Stop()
	}

	throttle := nudge.NewThrottle(nudge.Config{
		Keywords: cfg.Nudge.Keywords,
		Message:  cfg.Nudge.Message,
		Cooldown: cfg.Nudge.CooldownInteractions,
	}, logging.WithComponent(logger, "nudge"))

	publisher := events.New(events.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		Enabled: cfg.Kafka.Enabled,
	}, m, logging.WithComponent(logger, "events"))

	// Initialize adapters
	speechToText, err := adapters.NewSpeechToText(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize speech-to-text", zap.Error(err))
	}
	languageModel, err := adapters.NewLanguageModel(ctx, cfg, throttle, logger)
	if err != nil {
		logger.Fatal("Failed to initialize language model", zap.Error(err))
	}
	textToSpeech, err := adapters.NewTextToSpeech(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize text-to-speech", zap.Error(err))
	}

	deps := usecase.Dependencies{
		STT:       speechToText,
		LLM:       languageModel,
		TTS:       textToSpeech,
		Throttle:  throttle,
		Publisher: publisher,
		Runner:    stages.NewRunner(cfg.Pipeline.StageTimeout(), m, logger),
		Metrics:   m,
	}
	if resultCache != nil {
		deps.Cache = resultCache
	}
	orchestrator := usecase.NewOrchestrator(deps, usecase.OrchestratorConfig{
		CacheEnabled: cfg.Cache.Enabled,
		CacheTTL:     cfg.Cache.DefaultTTL(),
	}, logging.WithComponent(logger, "orchestrator"))

	// Initialize WebSocket hub
	sessionRepo := adapters.NewMemorySessionRepository()
	hub := websocket.NewHub(orchestrator, sessionRepo, realtimeConfig(cfg.Realtime), m, logging.WithComponent(logger, "realtime"))
	go hub.Run(ctx)

	cleanup := websocket.NewSessionCleanupService(
		sessionRepo,
		hub,
		cfg.Realtime.IdleTimeout(),
		cfg.Realtime.CleanupInterval(),
		logger,
	)
	cleanup.Start()
	defer cleanup.Stop()

	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, &api.Handler{
		Orchestrator: orchestrator,
		Cache:        resultCache,
		Hub:          hub,
		Sessions:     sessionRepo,
		Config:       cfg,
		Keywords:     throttle.Keywords(),
		Gatherer:     registry,
		Logger:       logger,
	})

	go func() {
		if err := e.Start(cfg.Server.Address()); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("address", cfg.Server.Address()),
		zap.String("stt", cfg.Providers.STT),
		zap.String("llm", cfg.Providers.LLM),
		zap.String("tts", cfg.Providers.TTS),
		zap.Bool("cacheEnabled", cfg.Cache.Enabled),
	)

	<-ctx.Done()
	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	// Realtime turns may still publish events until their sessions drain.
	if err := hub.Wait(shutdownCtx); err != nil {
		logger.Warn("Realtime sessions did not drain", zap.Error(err))
	}
	orchestrator.Close()
	if err := publisher.Close(); err != nil {
		logger.Error("Failed to close event publisher", zap.Error(err))
	}

	logger.Info("Server exited")
}

func realtimeConfig(cfg config.RealtimeConfig) usecase.RealtimeConfig {
	return usecase.RealtimeConfig{
		WelcomeMessage:        cfg.WelcomeMessage,
		FarewellMessage:       cfg.FarewellMessage,
		ClosingPhrases:        cfg.ClosingPhrases,
		ChunkMs:               cfg.ChunkMs,
		FarewellChunkMs:       cfg.FarewellChunkMs,
		ChunkPacing:           time.Duration(cfg.ChunkPacingMs) * time.Millisecond,
		FarewellPacing:        time.Duration(cfg.FarewellPacingMs) * time.Millisecond,
		HistoryExchanges:      cfg.HistoryExchanges,
		PartialThresholdBytes: cfg.PartialThresholdBytes,
		MaxTurnAudioBytes:     cfg.MaxTurnAudioBytes,
		RawFormat: audio.Format{
			SampleRate:    cfg.RawSampleRate,
			Channels:      1,
			BitsPerSample: 16,
		},
	}
}
