package tts

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/kuber/server/domain/repositories"
	"github.com/satriahrh/kuber/server/internal/audio"
)

var mockFormat = audio.Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}

// MockTextToSpeech is a placeholder implementation for text-to-speech
type MockTextToSpeech struct {
	logger *zap.Logger
}

// Ensure MockTextToSpeech implements the TextToSpeech interface
var _ repositories.TextToSpeech = (*MockTextToSpeech)(nil)

// NewMockTextToSpeech creates a new mock text-to-speech service
func NewMockTextToSpeech(logger *zap.Logger) *MockTextToSpeech {
	return &MockTextToSpeech{
		logger: logger,
	}
}

// Synthesize returns a quiet tone as 16kHz mono WAV, 60ms per word
func (t *MockTextToSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	t.logger.Info("Processing text-to-speech", zap.Int("textLength", len(text)))

	words := len(strings.Fields(text))
	samples := words * 60 * mockFormat.SampleRate / 1000
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(1000 * math.Sin(2*math.Pi*440*float64(i)/float64(mockFormat.SampleRate)))
		pcm[2*i] = byte(v)
		pcm[2*i+1] = byte(v >> 8)
	}

	return audio.EncodeWAV(pcm, mockFormat), nil
}
