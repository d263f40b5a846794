package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/kuber/server/internal/audio"
)

func TestLitSynthesize(t *testing.T) {
	want := []byte("RIFF....WAVEdata")
	var received litRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(litResponse{
			Success:   true,
			AudioData: base64.StdEncoding.EncodeToString(want),
		})
	}))
	defer server.Close()

	l := NewLitTextToSpeech(LitConfig{APIURL: server.URL}, zaptest.NewLogger(t))
	got, err := l.Synthesize(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("Expected decoded audio, got %q", got)
	}
	if received.Text != "Hello" || received.Voice != "af_sarah" {
		t.Errorf("Unexpected request %+v", received)
	}
}

func TestLitSynthesize_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, "down"},
		{"unsuccessful", http.StatusOK, `{"success": false, "error": "voice missing"}`},
		{"no audio", http.StatusOK, `{"success": true, "audio_data": ""}`},
		{"bad base64", http.StatusOK, `{"success": true, "audio_data": "%%%"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			l := NewLitTextToSpeech(LitConfig{APIURL: server.URL}, zaptest.NewLogger(t))
			if _, err := l.Synthesize(context.Background(), "Hello"); err == nil {
				t.Error("Expected error")
			}
		})
	}

	l := NewLitTextToSpeech(LitConfig{}, zaptest.NewLogger(t))
	if _, err := l.Synthesize(context.Background(), " "); err == nil {
		t.Error("Expected error for blank text")
	}
}

func TestMockSynthesize(t *testing.T) {
	m := NewMockTextToSpeech(zaptest.NewLogger(t))

	out, err := m.Synthesize(context.Background(), "one two three four five")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := audio.Duration(out); got != 300 {
		t.Errorf("Expected 300ms of audio, got %dms", got)
	}
	if _, err := m.Synthesize(context.Background(), ""); err == nil {
		t.Error("Expected error for empty text")
	}
}
