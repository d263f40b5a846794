package adapters

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/kuber/server/adapters/llm"
	"github.com/satriahrh/kuber/server/adapters/stt"
	"github.com/satriahrh/kuber/server/adapters/tts"
	"github.com/satriahrh/kuber/server/domain/repositories"
	"github.com/satriahrh/kuber/server/internal/config"
)

// Providers lists the adapter names that can be selected per stage
type Providers struct {
	STT []string `json:"stt"`
	LLM []string `json:"llm"`
	TTS []string `json:"tts"`
}

var sttFactories = map[string]func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.SpeechToText, error){
	config.ProviderGoogleSTT: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.SpeechToText, error) {
		return stt.NewGoogleSpeechToText(ctx, stt.GoogleConfig{
			Language:   cfg.GoogleSTT.Language,
			Encoding:   cfg.GoogleSTT.Encoding,
			SampleRate: cfg.GoogleSTT.SampleRate,
		}, logger)
	},
	config.ProviderLitSTT: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.SpeechToText, error) {
		return stt.NewLitSpeechToText(stt.LitConfig{
			APIURL:   cfg.LitSTT.APIURL,
			Language: cfg.LitSTT.Language,
			Format:   cfg.LitSTT.Format,
			Timeout:  time.Duration(cfg.LitSTT.TimeoutSeconds) * time.Second,
		}, logger), nil
	},
	config.ProviderMockSTT: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.SpeechToText, error) {
		return stt.NewMockSpeechToText(logger), nil
	},
}

var llmFactories = map[string]func(ctx context.Context, cfg *config.Config, intents llm.IntentDetector, logger *zap.Logger) (repositories.LargeLanguageModel, error){
	config.ProviderGemini: func(ctx context.Context, cfg *config.Config, intents llm.IntentDetector, logger *zap.Logger) (repositories.LargeLanguageModel, error) {
		return llm.NewGeminiLLM(ctx, llm.GeminiConfig{
			APIKey:         cfg.Gemini.APIKey,
			Model:          cfg.Gemini.Model,
			Temperature:    cfg.Gemini.Temperature,
			MaxTokens:      cfg.Gemini.MaxTokens,
			TimeoutSeconds: cfg.Gemini.TimeoutSeconds,
		}, intents, logger)
	},
	config.ProviderMockLLM: func(ctx context.Context, cfg *config.Config, intents llm.IntentDetector, logger *zap.Logger) (repositories.LargeLanguageModel, error) {
		return llm.NewMockGeminiClient(intents), nil
	},
}

var ttsFactories = map[string]func(cfg *config.Config, logger *zap.Logger) (repositories.TextToSpeech, error){
	config.ProviderElevenLabs: func(cfg *config.Config, logger *zap.Logger) (repositories.TextToSpeech, error) {
		return tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:       cfg.ElevenLabs.APIKey,
			APIBaseURL:   cfg.ElevenLabs.APIBaseURL,
			VoiceID:      cfg.ElevenLabs.VoiceID,
			ModelID:      cfg.ElevenLabs.ModelID,
			OutputFormat: cfg.ElevenLabs.OutputFormat,
			Stability:    cfg.ElevenLabs.Stability,
			Clarity:      cfg.ElevenLabs.Clarity,
		}, logger)
	},
	config.ProviderLitTTS: func(cfg *config.Config, logger *zap.Logger) (repositories.TextToSpeech, error) {
		return tts.NewLitTextToSpeech(tts.LitConfig{
			APIURL:  cfg.LitTTS.APIURL,
			Voice:   cfg.LitTTS.Voice,
			Timeout: time.Duration(cfg.LitTTS.TimeoutSeconds) * time.Second,
		}, logger), nil
	},
	config.ProviderMockTTS: func(cfg *config.Config, logger *zap.Logger) (repositories.TextToSpeech, error) {
		return tts.NewMockTextToSpeech(logger), nil
	},
}

// NewSpeechToText builds the STT adapter named by cfg.Providers.STT
func NewSpeechToText(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.SpeechToText, error) {
	factory, ok := sttFactories[cfg.Providers.STT]
	if !ok {
		return nil, fmt.Errorf("unknown STT provider %q", cfg.Providers.STT)
	}
	adapter, err := factory(ctx, cfg, logger.With(zap.String("provider", cfg.Providers.STT)))
	if err != nil {
		return nil, fmt.Errorf("failed to create STT provider %s: %w", cfg.Providers.STT, err)
	}
	return adapter, nil
}

// NewLanguageModel builds the LLM adapter named by cfg.Providers.LLM
func NewLanguageModel(ctx context.Context, cfg *config.Config, intents llm.IntentDetector, logger *zap.Logger) (repositories.LargeLanguageModel, error) {
	factory, ok := llmFactories[cfg.Providers.LLM]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Providers.LLM)
	}
	adapter, err := factory(ctx, cfg, intents, logger.With(zap.String("provider", cfg.Providers.LLM)))
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider %s: %w", cfg.Providers.LLM, err)
	}
	return adapter, nil
}

// NewTextToSpeech builds the TTS adapter named by cfg.Providers.TTS
func NewTextToSpeech(cfg *config.Config, logger *zap.Logger) (repositories.TextToSpeech, error) {
	factory, ok := ttsFactories[cfg.Providers.TTS]
	if !ok {
		return nil, fmt.Errorf("unknown TTS provider %q", cfg.Providers.TTS)
	}
	adapter, err := factory(cfg, logger.With(zap.String("provider", cfg.Providers.TTS)))
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS provider %s: %w", cfg.Providers.TTS, err)
	}
	return adapter, nil
}

// AvailableProviders returns the registered adapter names, sorted
func AvailableProviders() Providers {
	return Providers{
		STT: sortedKeys(sttFactories),
		LLM: sortedKeys(llmFactories),
		TTS: sortedKeys(ttsFactories),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
