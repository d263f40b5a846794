package stt

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
	defaultLitURL        = "http://localhost:8001/predict"
	defaultLitLanguage   = "en"
	defaultLitFormat     = "wav"
	defaultLitTimeout    = 30 * time.Second
	defaultLitConfidence = 0.9
)

// LitConfig holds settings for a self-hosted transcription server
type LitConfig struct {
	APIURL   string
	Language string
	Format   string
	Timeout  time.Duration
}

type litRequest struct {
	AudioData string `json:"audio_data"`
	Format    string `json:"format"`
	Language  string `json:"language"`
	Task      string `json:"task"`
}

type litResponse struct {
	Success       bool     `json:"success"`
	Transcription string   `json:"transcription"`
	Confidence    *float64 `json:"confidence"`
	Error         string   `json:"error"`
}

// LitSpeechToText calls a JSON transcription endpoint that takes base64 audio
type LitSpeechToText struct {
	apiURL   string
	language string
	format   string
	client   *http.Client
	logger   *zap.Logger
}

// Ensure LitSpeechToText implements the SpeechToText interface
var _ repositories.SpeechToText = (*LitSpeechToText)(nil)

// NewLitSpeechToText creates a client for the transcription server
func NewLitSpeechToText(config LitConfig, logger *zap.Logger) *LitSpeechToText {
	apiURL := config.APIURL
	if apiURL == "" {
		apiURL = defaultLitURL
		logger.Info("Using default STT API URL", zap.String("apiURL", apiURL))
	}

	language := config.Language
	if language == "" {
		language = defaultLitLanguage
	}

	format := config.Format
	if format == "" {
		format = defaultLitFormat
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultLitTimeout
	}

	return &LitSpeechToText{
		apiURL:   apiURL,
		language: language,
		format:   format,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Transcribe posts the audio and returns the trimmed transcription. A missing
// confidence in the response defaults to 0.9.
func (l *LitSpeechToText) Transcribe(ctx context.Context, data []byte) (repositories.Transcription, error) {
	requestBody, err := json.Marshal(litRequest{
		AudioData: base64.StdEncoding.EncodeToString(data),
		Format:    l.format,
		Language:  l.language,
		Task:      "transcribe",
	})
	if err != nil {
		return repositories.Transcription{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.apiURL, bytes.NewReader(requestBody))
	if err != nil {
		return repositories.Transcription{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return repositories.Transcription{}, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		return repositories.Transcription{}, fmt.Errorf("STT API returned error %d: %s", resp.StatusCode, string(errorBody))
	}

	var result litResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return repositories.Transcription{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.Success {
		if result.Error != "" {
			return repositories.Transcription{}, fmt.Errorf("STT API returned success=false: %s", result.Error)
		}
		return repositories.Transcription{}, fmt.Errorf("STT API returned success=false")
	}

	confidence := defaultLitConfidence
	if result.Confidence != nil {
		confidence = *result.Confidence
	}

	l.logger.Debug("Received transcription",
		zap.Int("audioSize", len(data)),
		zap.Float64("confidence", confidence))

	return repositories.Transcription{
		Text:       strings.TrimSpace(result.Transcription),
		Confidence: confidence,
	}, nil
}
