package stt

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/satriahrh/kuber/server/internal/audio"
)

func newTestGoogle(fn recognizeFunc) *GoogleSpeechToText {
	return &GoogleSpeechToText{
		recognize: fn,
		config:    GoogleConfig{Language: "en-US", Encoding: "OGG_OPUS", SampleRate: 48000},
		logger:    zap.NewNop(),
	}
}

func result(transcript string, confidence float32) *speechpb.SpeechRecognitionResult {
	return &speechpb.SpeechRecognitionResult{
		Alternatives: []*speechpb.SpeechRecognitionAlternative{
			{Transcript: transcript, Confidence: confidence},
		},
	}
}

func TestGoogleTranscribe_WAVUsesHeader(t *testing.T) {
	var got *speechpb.RecognizeRequest
	g := newTestGoogle(func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		got = req
		return &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{result("hello", 0.8)}}, nil
	})

	pcm := make([]byte, 320)
	wav := audio.EncodeWAV(pcm, audio.Format{SampleRate: 22050, Channels: 1, BitsPerSample: 16})

	transcription, err := g.Transcribe(context.Background(), wav)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transcription.Text != "hello" {
		t.Errorf("expected hello, got %q", transcription.Text)
	}
	if got.Config.Encoding != speechpb.RecognitionConfig_LINEAR16 || got.Config.SampleRateHertz != 22050 {
		t.Errorf("expected LINEAR16 at 22050Hz, got %v at %d", got.Config.Encoding, got.Config.SampleRateHertz)
	}
	if len(got.Audio.GetContent()) != len(pcm) {
		t.Errorf("expected header stripped, got %d bytes", len(got.Audio.GetContent()))
	}
}

func TestGoogleTranscribe_RawUsesConfig(t *testing.T) {
	var got *speechpb.RecognizeRequest
	g := newTestGoogle(func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		got = req
		return &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{
			result("part one", 0.9),
			result("part two", 0.7),
		}}, nil
	})

	transcription, err := g.Transcribe(context.Background(), []byte("opus bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transcription.Text != "part one part two" {
		t.Errorf("unexpected text %q", transcription.Text)
	}
	if transcription.Confidence < 0.79 || transcription.Confidence > 0.81 {
		t.Errorf("expected averaged confidence 0.8, got %v", transcription.Confidence)
	}
	if got.Config.Encoding != speechpb.RecognitionConfig_OGG_OPUS || got.Config.SampleRateHertz != 48000 {
		t.Errorf("unexpected config %v", got.Config)
	}
}

func TestGoogleTranscribe_Errors(t *testing.T) {
	rpcErr := errors.New("unavailable")
	tests := []struct {
		name  string
		input []byte
		resp  *speechpb.RecognizeResponse
		err   error
	}{
		{"empty audio", nil, nil, nil},
		{"rpc error", []byte("x"), nil, rpcErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGoogle(func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
				return tt.resp, tt.err
			})
			if _, err := g.Transcribe(context.Background(), tt.input); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGoogleTranscribe_SilenceIsEmptyTranscript(t *testing.T) {
	tests := []struct {
		name string
		resp *speechpb.RecognizeResponse
	}{
		{"no results", &speechpb.RecognizeResponse{}},
		{"empty transcript", &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{result("", 0)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGoogle(func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
				return tt.resp, nil
			})
			transcription, err := g.Transcribe(context.Background(), []byte("x"))
			if err != nil {
				t.Fatalf("expected no error for silence, got %v", err)
			}
			if transcription.Text != "" || transcription.Confidence != 0 {
				t.Errorf("expected empty transcription, got %+v", transcription)
			}
		})
	}
}

func TestGetAudioEncoding(t *testing.T) {
	if enc, err := getAudioEncoding("WAV"); err != nil || enc != speechpb.RecognitionConfig_LINEAR16 {
		t.Errorf("WAV should map to LINEAR16, got %v %v", enc, err)
	}
	if _, err := getAudioEncoding("MP3ISH"); err == nil {
		t.Error("expected unsupported encoding error")
	}
}
