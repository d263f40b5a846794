// Package config loads server configuration from an optional YAML file, a
// .env file and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "config.yaml"

// Provider names accepted in providers.*
const (
	ProviderGoogleSTT  = "google_stt"
	ProviderLitSTT     = "lit_stt"
	ProviderMockSTT    = "mock_stt"
	ProviderGemini     = "gemini"
	ProviderMockLLM    = "mock_llm"
	ProviderElevenLabs = "elevenlabs"
	ProviderLitTTS     = "lit_tts"
	ProviderMockTTS    = "mock_tts"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	GoogleSTT  GoogleSTTConfig  `yaml:"google_stt"`
	LitSTT     HTTPModelConfig  `yaml:"lit_stt"`
	LitTTS     HTTPModelConfig  `yaml:"lit_tts"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	Cache      CacheConfig      `yaml:"cache"`
	Nudge      NudgeConfig      `yaml:"nudge"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Kafka      KafkaConfig      `yaml:"kafka"`
}

type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Version   string `yaml:"version"`
}

// Address returns host:port for the HTTP listener
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type ProvidersConfig struct {
	STT string `yaml:"stt"`
	LLM string `yaml:"llm"`
	TTS string `yaml:"tts"`
}

type GoogleSTTConfig struct {
	Language   string `yaml:"language"`
	Encoding   string `yaml:"encoding"`
	SampleRate int    `yaml:"sample_rate"`
}

// HTTPModelConfig points at a self-hosted inference server
type HTTPModelConfig struct {
	APIURL         string `yaml:"api_url"`
	Language       string `yaml:"language"`
	Format         string `yaml:"format"`
	Voice          string `yaml:"voice"`
	TimeoutSeconds int    `yaml:"timeout"`
}

type GeminiConfig struct {
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model_name"`
	Temperature    float32 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout"`
}

type ElevenLabsConfig struct {
	APIKey       string  `yaml:"api_key"`
	APIBaseURL   string  `yaml:"api_base_url"`
	VoiceID      string  `yaml:"voice_id"`
	ModelID      string  `yaml:"model_id"`
	OutputFormat string  `yaml:"output_format"`
	Stability    float64 `yaml:"stability"`
	Clarity      float64 `yaml:"clarity"`
}

type CacheConfig struct {
	Enabled              bool `yaml:"enabled"`
	DefaultTTLSeconds    int  `yaml:"default_ttl"`
	MaxSize              int  `yaml:"max_size"`
	SweepIntervalSeconds int  `yaml:"sweep_interval"`
}

func (c CacheConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

func (c CacheConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

type NudgeConfig struct {
	Keywords             []string `yaml:"keywords"`
	Message              string   `yaml:"message"`
	CooldownInteractions int      `yaml:"cooldown_interactions"`
}

type PipelineConfig struct {
	StageTimeoutSeconds int `yaml:"stage_timeout"`
}

func (p PipelineConfig) StageTimeout() time.Duration {
	return time.Duration(p.StageTimeoutSeconds) * time.Second
}

type RealtimeConfig struct {
	WelcomeMessage         string   `yaml:"welcome_message"`
	ClosingPhrases         []string `yaml:"closing_phrases"`
	FarewellMessage        string   `yaml:"farewell_message"`
	ChunkMs                int      `yaml:"chunk_ms"`
	FarewellChunkMs        int      `yaml:"farewell_chunk_ms"`
	ChunkPacingMs          int      `yaml:"chunk_pacing_ms"`
	FarewellPacingMs       int      `yaml:"farewell_pacing_ms"`
	HistoryExchanges       int      `yaml:"history_exchanges"`
	PartialThresholdBytes  int      `yaml:"partial_threshold_bytes"`
	MaxTurnAudioBytes      int      `yaml:"max_turn_audio_bytes"`
	RawSampleRate          int      `yaml:"raw_sample_rate"`
	IdleTimeoutSeconds     int      `yaml:"idle_timeout"`
	CleanupIntervalSeconds int      `yaml:"cleanup_interval"`
}

func (r RealtimeConfig) IdleTimeout() time.Duration {
	return time.Duration(r.IdleTimeoutSeconds) * time.Second
}

func (r RealtimeConfig) CleanupInterval() time.Duration {
	return time.Duration(r.CleanupIntervalSeconds) * time.Second
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8000,
			LogLevel:  "info",
			LogFormat: "json",
			Version:   "1.0.0",
		},
		Providers: ProvidersConfig{
			STT: ProviderLitSTT,
			LLM: ProviderGemini,
			TTS: ProviderLitTTS,
		},
		GoogleSTT: GoogleSTTConfig{
			Language:   "en-US",
			Encoding:   "LINEAR16",
			SampleRate: 16000,
		},
		LitSTT: HTTPModelConfig{
			APIURL:         "http://localhost:8001/predict",
			Language:       "en",
			Format:         "wav",
			TimeoutSeconds: 30,
		},
		LitTTS: HTTPModelConfig{
			APIURL:         "http://localhost:8002/predict",
			Voice:          "af_sarah",
			TimeoutSeconds: 30,
		},
		Gemini: GeminiConfig{
			Model:          "gemini-2.0-flash",
			Temperature:    0.7,
			MaxTokens:      2000,
			TimeoutSeconds: 30,
		},
		Cache: CacheConfig{
			Enabled:              true,
			DefaultTTLSeconds:    300,
			MaxSize:              1000,
			SweepIntervalSeconds: 60,
		},
		Nudge: NudgeConfig{
			Keywords:             []string{"gold", "digital gold", "sovereign gold", "invest", "investment"},
			Message:              "Also, you may consider exploring digital gold on Simplify. Want a quick summary?",
			CooldownInteractions: 2,
		},
		Pipeline: PipelineConfig{
			StageTimeoutSeconds: 30,
		},
		Realtime: RealtimeConfig{
			WelcomeMessage:         "Real-time mode active! Start speaking naturally - responses will stream back in real-time.",
			ClosingPhrases:         []string{"goodbye", "bye", "exit", "quit", "end conversation"},
			FarewellMessage:        "Goodbye! Thanks for chatting.",
			ChunkMs:                250,
			FarewellChunkMs:        500,
			ChunkPacingMs:          10,
			FarewellPacingMs:       50,
			HistoryExchanges:       10,
			PartialThresholdBytes:  32000,
			MaxTurnAudioBytes:      10 * 1024 * 1024,
			RawSampleRate:          24000,
			IdleTimeoutSeconds:     1800,
			CleanupIntervalSeconds: 60,
		},
		Kafka: KafkaConfig{
			Topic: "voice.turns",
		},
	}
}

// Load builds the configuration. A missing file is not an error; path falls
// back to CONFIG_FILE and then config.yaml when empty.
func Load(path string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if path == "" {
		path = envOrDefault("CONFIG_FILE", defaultConfigFile)
	}

	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(content))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = envOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = envInt("SERVER_PORT", c.Server.Port)
	c.Server.LogLevel = envOrDefault("LOG_LEVEL", c.Server.LogLevel)
	c.Server.LogFormat = envOrDefault("LOG_FORMAT", c.Server.LogFormat)

	c.Providers.STT = envOrDefault("STT_PROVIDER", c.Providers.STT)
	c.Providers.LLM = envOrDefault("LLM_PROVIDER", c.Providers.LLM)
	c.Providers.TTS = envOrDefault("TTS_PROVIDER", c.Providers.TTS)

	c.GoogleSTT.Language = envOrDefault("GOOGLE_STT_LANGUAGE", c.GoogleSTT.Language)
	c.LitSTT.APIURL = envOrDefault("LIT_STT_API_URL", c.LitSTT.APIURL)
	c.LitTTS.APIURL = envOrDefault("LIT_TTS_API_URL", c.LitTTS.APIURL)

	c.Gemini.APIKey = envOrDefault("GEMINI_API_KEY", c.Gemini.APIKey)
	c.Gemini.Model = envOrDefault("GEMINI_MODEL", c.Gemini.Model)
	c.Gemini.Temperature = float32(envFloat("GEMINI_TEMPERATURE", float64(c.Gemini.Temperature)))
	c.Gemini.MaxTokens = envInt("GEMINI_MAX_TOKENS", c.Gemini.MaxTokens)

	c.ElevenLabs.APIKey = envOrDefault("ELEVEN_LABS_API_KEY", c.ElevenLabs.APIKey)
	c.ElevenLabs.APIBaseURL = envOrDefault("ELEVEN_LABS_API_BASE_URL", c.ElevenLabs.APIBaseURL)
	c.ElevenLabs.VoiceID = envOrDefault("ELEVEN_LABS_VOICE_ID", c.ElevenLabs.VoiceID)
	c.ElevenLabs.ModelID = envOrDefault("ELEVEN_LABS_MODEL_ID", c.ElevenLabs.ModelID)
	c.ElevenLabs.OutputFormat = envOrDefault("ELEVEN_LABS_OUTPUT_FORMAT", c.ElevenLabs.OutputFormat)
	c.ElevenLabs.Stability = envFloat("ELEVEN_LABS_STABILITY", c.ElevenLabs.Stability)
	c.ElevenLabs.Clarity = envFloat("ELEVEN_LABS_CLARITY", c.ElevenLabs.Clarity)

	c.Cache.Enabled = envBool("CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.DefaultTTLSeconds = envInt("CACHE_TTL", c.Cache.DefaultTTLSeconds)
	c.Cache.MaxSize = envInt("CACHE_MAX_SIZE", c.Cache.MaxSize)

	c.Nudge.CooldownInteractions = envInt("NUDGE_COOLDOWN", c.Nudge.CooldownInteractions)
	c.Pipeline.StageTimeoutSeconds = envInt("STAGE_TIMEOUT", c.Pipeline.StageTimeoutSeconds)
	c.Realtime.IdleTimeoutSeconds = envInt("REALTIME_IDLE_TIMEOUT", c.Realtime.IdleTimeoutSeconds)

	c.Kafka.Enabled = envBool("KAFKA_ENABLED", c.Kafka.Enabled)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}
	c.Kafka.Topic = envOrDefault("KAFKA_TOPIC", c.Kafka.Topic)
}

// Validate checks values that would otherwise fail deep inside a component
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Cache.MaxSize < 0 {
		return fmt.Errorf("cache max_size must not be negative, got %d", c.Cache.MaxSize)
	}
	if c.Nudge.CooldownInteractions < 0 {
		return fmt.Errorf("nudge cooldown_interactions must not be negative, got %d", c.Nudge.CooldownInteractions)
	}
	if c.Realtime.ChunkMs < 0 || c.Realtime.FarewellChunkMs < 0 {
		return errors.New("realtime chunk durations must not be negative")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka is enabled but no brokers are configured")
	}
	return nil
}

// Sanitized returns a copy safe to expose over the API, with secrets masked
func (c *Config) Sanitized() Config {
	out := *c
	out.Gemini.APIKey = mask(out.Gemini.APIKey)
	out.ElevenLabs.APIKey = mask(out.ElevenLabs.APIKey)
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
