package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/kuber/server/domain/repositories"
)

const (
	defaultLitURL     = "http://localhost:8002/predict"
	defaultLitVoice   = "af_sarah"
	defaultLitTimeout = 30 * time.Second
)

// LitConfig holds settings for a self-hosted synthesis server
type LitConfig struct {
	APIURL  string
	Voice   string
	Timeout time.Duration
}

type litRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type litResponse struct {
	Success   bool   `json:"success"`
	AudioData string `json:"audio_data"`
	Error     string `json:"error"`
}

// LitTextToSpeech calls a JSON synthesis endpoint that returns base64 audio
type LitTextToSpeech struct {
	apiURL string
	voice  string
	client *http.Client
	logger *zap.Logger
}

// Ensure LitTextToSpeech implements the TextToSpeech interface
var _ repositories.TextToSpeech = (*LitTextToSpeech)(nil)

// NewLitTextToSpeech creates a client for the synthesis server
func NewLitTextToSpeech(config LitConfig, logger *zap.Logger) *LitTextToSpeech {
	apiURL := config.APIURL
	if apiURL == "" {
		apiURL = defaultLitURL
		logger.Info("Using default TTS API URL", zap.String("apiURL", apiURL))
	}

	voice := config.Voice
	if voice == "" {
		voice = defaultLitVoice
		logger.Info("Using default TTS voice", zap.String("voice", voice))
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultLitTimeout
	}

	return &LitTextToSpeech{
		apiURL: apiURL,
		voice:  voice,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Synthesize posts the text and decodes the returned audio
func (l *LitTextToSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	requestBody, err := json.Marshal(litRequest{Text: text, Voice: l.voice})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.apiURL, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("TTS API returned error %d: %s", resp.StatusCode, string(errorBody))
	}

	var result litResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.Success {
		if result.Error == "" {
			result.Error = "unknown error"
		}
		return nil, fmt.Errorf("TTS API error: %s", result.Error)
	}
	if result.AudioData == "" {
		return nil, fmt.Errorf("no audio data in successful response")
	}

	data, err := base64.StdEncoding.DecodeString(result.AudioData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio data: %w", err)
	}

	l.logger.Debug("Received synthesized audio",
		zap.Int("textLength", len(text)),
		zap.Int("audioSize", len(data)))
	return data, nil
}
