package repositories

import "context"

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// Transcribe converts a complete utterance to text
	Transcribe(ctx context.Context, audio []byte) (Transcription, error)
}

// Transcription is the recognised text of an utterance
type Transcription struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}
