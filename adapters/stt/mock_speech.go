package stt

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/kuber/server/domain/repositories"
)

// MockSpeechToText is a placeholder implementation for speech recognition
type MockSpeechToText struct {
	logger *zap.Logger
}

// Ensure MockSpeechToText implements the SpeechToText interface
var _ repositories.SpeechToText = (*MockSpeechToText)(nil)

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) *MockSpeechToText {
	return &MockSpeechToText{
		logger: logger,
	}
}

// Transcribe returns a canned transcription chosen by audio size
func (s *MockSpeechToText) Transcribe(ctx context.Context, data []byte) (repositories.Transcription, error) {
	s.logger.Info("Processing speech-to-text", zap.Int("audioSize", len(data)))

	if len(data) == 0 {
		return repositories.Transcription{}, fmt.Errorf("no audio data received")
	}

	// Mock transcription based on audio size
	switch {
	case len(data) > 64000:
		return repositories.Transcription{Text: "Is digital gold a good investment for me this year?", Confidence: 0.92}, nil
	case len(data) > 16000:
		return repositories.Transcription{Text: "How much should I be saving every month?", Confidence: 0.9}, nil
	case len(data) > 4000:
		return repositories.Transcription{Text: "Hello, can you help me with my finances?", Confidence: 0.88}, nil
	default:
		return repositories.Transcription{Text: "Hello", Confidence: 0.85}, nil
	}
}
