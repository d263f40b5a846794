package api

import (
	"time"

	"github.com/satriahrh/kuber/server/domain/entities"
)

// VoiceQueryResponse is the payload of a successful batch voice query
type VoiceQueryResponse struct {
	RequestID  string                `json:"request_id"`
	SessionID  string                `json:"session_id"`
	Transcript string                `json:"transcript"`
	LLMText    string                `json:"llm_text"`
	AudioB64   string                `json:"audio_b64"`
	Timings    entities.StageTimings `json:"timings"`
	Confidence float64               `json:"confidence"`
	FromCache  bool                  `json:"from_cache"`
	GoldNudge  *entities.GoldNudge   `json:"gold_nudge,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     bool   `json:"error"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// MessageResponse carries a human readable outcome
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse reports liveness and the active providers
type HealthResponse struct {
	Status         string            `json:"status"`
	Service        string            `json:"service"`
	Version        string            `json:"version"`
	Providers      map[string]string `json:"providers"`
	CacheEnabled   bool              `json:"cache_enabled"`
	ActiveSessions int               `json:"active_sessions"`
}

// ProvidersResponse lists the selectable adapters per stage
type ProvidersResponse struct {
	STTProviders  []string          `json:"stt_providers"`
	LLMProviders  []string          `json:"llm_providers"`
	TTSProviders  []string          `json:"tts_providers"`
	CurrentConfig map[string]string `json:"current_config"`
}

// ConfigResponse is the non-sensitive part of the configuration
type ConfigResponse struct {
	Providers map[string]string `json:"providers"`
	Server    ServerInfo        `json:"server"`
	Nudge     NudgeInfo         `json:"nudge"`
	Cache     CacheInfo         `json:"cache"`
	Pipeline  PipelineInfo      `json:"pipeline"`
	Kafka     KafkaInfo         `json:"kafka"`
}

type ServerInfo struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
	Version  string `json:"version"`
}

type NudgeInfo struct {
	CooldownInteractions int `json:"cooldown_interactions"`
	KeywordsCount        int `json:"keywords_count"`
}

type CacheInfo struct {
	Enabled    bool `json:"enabled"`
	DefaultTTL int  `json:"default_ttl"`
	MaxSize    int  `json:"max_size"`
}

type PipelineInfo struct {
	StageTimeoutSeconds int `json:"stage_timeout"`
}

type KafkaInfo struct {
	Enabled bool   `json:"enabled"`
	Topic   string `json:"topic"`
}

// SessionSummary describes a live realtime session
type SessionSummary struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	Turns        int       `json:"turns"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

func newSessionSummary(s *entities.Session) SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		Status:       string(s.Status),
		Turns:        s.Turns,
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.LastActiveAt,
	}
}
