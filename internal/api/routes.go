package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satriahrh/kuber/server/adapters"
	"github.com/satriahrh/kuber/server/domain"
	"github.com/satriahrh/kuber/server/domain/entities"
	"github.com/satriahrh/kuber/server/domain/repositories"
	"github.com/satriahrh/kuber/server/internal/audio"
	"github.com/satriahrh/kuber/server/internal/cache"
	"github.com/satriahrh/kuber/server/internal/config"
	"github.com/satriahrh/kuber/server/internal/websocket"
	"github.com/satriahrh/kuber/server/usecase"
)

const serviceName = "kuber-voice"

// maxUploadBytes bounds a batch audio upload
const maxUploadBytes = 25 << 20

// Handler holds the dependencies of the HTTP endpoints
type Handler struct {
	Orchestrator *usecase.Orchestrator
	// Cache is nil when caching is disabled
	Cache    *cache.ResultCache
	Hub      *websocket.Hub
	Sessions repositories.SessionRepository
	Config   *config.Config
	Keywords []string
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, h *Handler) {
	e.GET("/health", h.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})))

	v1 := e.Group("/v1")

	// Voice APIs
	v1.POST("/voice/query", h.voiceQuery)
	v1.GET("/realtime/ws", func(c echo.Context) error {
		return websocket.HandleWebSocket(h.Hub, c, h.Logger)
	})

	// Cache management
	v1.GET("/cache/stats", h.cacheStats)
	v1.POST("/cache/clear", h.cacheClear)
	v1.POST("/cache/cleanup", h.cacheCleanup)

	// Introspection
	v1.GET("/providers", h.providers)
	v1.GET("/config", h.configInfo)
	v1.GET("/sessions", h.listSessions)
	v1.GET("/sessions/:id", h.getSession)

	v1.GET("/gold/invest", goldInvestmentPage)
}

func (h *Handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:         "healthy",
		Service:        serviceName,
		Version:        h.Config.Server.Version,
		Providers:      currentProviders(h.Config),
		CacheEnabled:   h.Cache != nil,
		ActiveSessions: h.Hub.Count(),
	})
}

func (h *Handler) voiceQuery(c echo.Context) error {
	requestID := uuid.NewString()
	logger := h.Logger.With(zap.String("requestID", requestID))

	data, err := readAudio(c)
	if err != nil {
		logger.Warn("Rejected voice query", zap.Error(err))
		return errorResponse(c, err, requestID)
	}

	useCache := true
	if v := c.FormValue("use_cache"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:     true,
				ErrorType: "ValidationError",
				Message:   fmt.Sprintf("invalid use_cache value %q", v),
				RequestID: requestID,
			})
		}
		useCache = parsed
	}

	result, err := h.Orchestrator.Process(c.Request().Context(), entities.PipelineRequest{
		RequestID: requestID,
		Audio:     data,
		SessionID: c.FormValue("session_id"),
		Language:  c.FormValue("lang"),
		Voice:     c.FormValue("voice"),
		UseCache:  useCache,
	})
	if err != nil {
		logger.Error("Voice query failed", zap.Error(err))
		return errorResponse(c, err, requestID)
	}

	return c.JSON(http.StatusOK, VoiceQueryResponse{
		RequestID:  result.RequestID,
		SessionID:  result.SessionID,
		Transcript: result.Transcript,
		LLMText:    result.ResponseText,
		AudioB64:   base64.StdEncoding.EncodeToString(result.Audio),
		Timings:    result.Timings,
		Confidence: result.Confidence,
		FromCache:  result.FromCache,
		GoldNudge:  result.GoldNudge,
	})
}

// readAudio extracts the uploaded audio part. Missing, empty or non-audio
// uploads are client errors.
func readAudio(c echo.Context) ([]byte, error) {
	file, err := c.FormFile("audio")
	if err != nil {
		return nil, &domain.AudioProcessingError{Reason: "Audio file is required"}
	}
	if !audio.IsAudioContentType(file.Header.Get("Content-Type")) {
		return nil, &domain.AudioProcessingError{Reason: "Invalid audio file format"}
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open audio upload: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read audio upload: %w", err)
	}
	if len(data) == 0 {
		return nil, &domain.AudioProcessingError{Reason: "Empty audio file"}
	}
	if len(data) > maxUploadBytes {
		return nil, &domain.AudioProcessingError{Reason: "Audio file too large"}
	}
	return data, nil
}

// errorResponse maps voice processing errors to 422 and anything else to 500
func errorResponse(c echo.Context, err error, requestID string) error {
	status := http.StatusInternalServerError
	kind := domain.ErrorKind(err)
	if domain.IsClientError(err) {
		status = http.StatusUnprocessableEntity
	}
	if kind == "" {
		kind = "InternalError"
	}

	return c.JSON(status, ErrorResponse{
		Error:     true,
		ErrorType: kind,
		Message:   err.Error(),
		RequestID: requestID,
	})
}

func (h *Handler) cacheStats(c echo.Context) error {
	if h.Cache == nil {
		return c.JSON(http.StatusOK, cache.Stats{})
	}
	return c.JSON(http.StatusOK, h.Cache.Stats())
}

func (h *Handler) cacheClear(c echo.Context) error {
	if h.Cache != nil {
		h.Cache.Clear()
	}
	h.Logger.Info("Cache cleared")
	return c.JSON(http.StatusOK, MessageResponse{Message: "Cache cleared successfully"})
}

func (h *Handler) cacheCleanup(c echo.Context) error {
	removed := 0
	if h.Cache != nil {
		removed = h.Cache.Sweep()
	}
	return c.JSON(http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("Removed %d expired entries", removed),
	})
}

func (h *Handler) providers(c echo.Context) error {
	available := adapters.AvailableProviders()
	return c.JSON(http.StatusOK, ProvidersResponse{
		STTProviders:  available.STT,
		LLMProviders:  available.LLM,
		TTSProviders:  available.TTS,
		CurrentConfig: currentProviders(h.Config),
	})
}

func (h *Handler) configInfo(c echo.Context) error {
	cfg := h.Config.Sanitized()
	return c.JSON(http.StatusOK, ConfigResponse{
		Providers: currentProviders(&cfg),
		Server: ServerInfo{
			Host:     cfg.Server.Host,
			Port:     cfg.Server.Port,
			LogLevel: cfg.Server.LogLevel,
			Version:  cfg.Server.Version,
		},
		Nudge: NudgeInfo{
			CooldownInteractions: cfg.Nudge.CooldownInteractions,
			KeywordsCount:        len(h.Keywords),
		},
		Cache: CacheInfo{
			Enabled:    cfg.Cache.Enabled,
			DefaultTTL: cfg.Cache.DefaultTTLSeconds,
			MaxSize:    cfg.Cache.MaxSize,
		},
		Pipeline: PipelineInfo{StageTimeoutSeconds: cfg.Pipeline.StageTimeoutSeconds},
		Kafka:    KafkaInfo{Enabled: cfg.Kafka.Enabled, Topic: cfg.Kafka.Topic},
	})
}

func (h *Handler) listSessions(c echo.Context) error {
	sessions, err := h.Sessions.List(c.Request().Context())
	if err != nil {
		h.Logger.Error("Failed to list sessions", zap.Error(err))
		return errorResponse(c, err, "")
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, newSessionSummary(s))
	}
	return c.JSON(http.StatusOK, summaries)
}

func (h *Handler) getSession(c echo.Context) error {
	session, err := h.Sessions.GetByID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     true,
			ErrorType: "NotFound",
			Message:   err.Error(),
		})
	}
	if err != nil {
		return errorResponse(c, err, "")
	}
	return c.JSON(http.StatusOK, session)
}

func currentProviders(cfg *config.Config) map[string]string {
	return map[string]string{
		"stt": cfg.Providers.STT,
		"llm": cfg.Providers.LLM,
		"tts": cfg.Providers.TTS,
	}
}
