package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/satriahrh/kuber/server/adapters"
	"github.com/satriahrh/kuber/server/adapters/llm"
	"github.com/satriahrh/kuber/server/adapters/stt"
	"github.com/satriahrh/kuber/server/adapters/tts"
	"github.com/satriahrh/kuber/server/domain"
	"github.com/satriahrh/kuber/server/domain/repositories"
	"github.com/satriahrh/kuber/server/internal/audio"
	"github.com/satriahrh/kuber/server/internal/metrics"
	"github.com/satriahrh/kuber/server/internal/nudge"
	"github.com/satriahrh/kuber/server/internal/stages"
	"github.com/satriahrh/kuber/server/usecase"
)

type testServer struct {
	hub      *Hub
	sessions *adapters.MemorySessionRepository
	server   *httptest.Server
	cancel   context.CancelFunc
}

func setupTestHub(t testing.TB) *testServer {
	return setupTestHubWithSTT(t, stt.NewMockSpeechToText(zap.NewNop()))
}

func setupTestHubWithSTT(t testing.TB, speech repositories.SpeechToText) *testServer {
	logger := zap.NewNop()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	throttle := nudge.NewThrottle(nudge.Config{}, logger)

	orchestrator := usecase.NewOrchestrator(usecase.Dependencies{
		STT:      speech,
		LLM:      llm.NewMockGeminiClient(throttle),
		TTS:      tts.NewMockTextToSpeech(logger),
		Throttle: throttle,
		Runner:   stages.NewRunner(5*time.Second, m, logger),
		Metrics:  m,
	}, usecase.OrchestratorConfig{}, logger)

	sessions := adapters.NewMemorySessionRepository()
	hub := NewHub(orchestrator, sessions, usecase.RealtimeConfig{
		WelcomeMessage:        "welcome",
		FarewellMessage:       "Goodbye! Thanks for chatting.",
		ClosingPhrases:        []string{"goodbye"},
		ChunkMs:               250,
		FarewellChunkMs:       500,
		HistoryExchanges:      10,
		PartialThresholdBytes: 32000,
		MaxTurnAudioBytes:     1 << 20,
		RawFormat:             audio.Format{SampleRate: 24000, Channels: 1, BitsPerSample: 16},
	}, m, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	e := echo.New()
	e.GET("/ws", func(c echo.Context) error {
		return HandleWebSocket(hub, c, logger)
	})
	server := httptest.NewServer(e)

	ts := &testServer{hub: hub, sessions: sessions, server: server, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return ts
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.server.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WebSocket connection failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) domain.ServerEvent {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, message, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var event domain.ServerEvent
	if err := json.Unmarshal(message, &event); err != nil {
		t.Fatalf("Failed to decode message %s: %v", message, err)
	}
	return event
}

func readUntil(t *testing.T, ws *websocket.Conn, eventType domain.EventType) []domain.ServerEvent {
	t.Helper()
	var events []domain.ServerEvent
	for i := 0; i < 100; i++ {
		event := readEvent(t, ws)
		events = append(events, event)
		if event.Type == eventType {
			return events
		}
	}
	t.Fatalf("Never received %s", eventType)
	return nil
}

func sendJSON(t *testing.T, ws *websocket.Conn, event domain.ClientEvent) {
	t.Helper()
	if err := ws.WriteJSON(event); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Condition not met before deadline")
}

func TestWebSocket_SessionCreated(t *testing.T) {
	ts := setupTestHub(t)
	ws := ts.dial(t)

	event := readEvent(t, ws)
	if event.Type != domain.EventSessionCreated || event.SessionID == "" {
		t.Fatalf("Expected session.created, got %+v", event)
	}
	if event.Message != "welcome" {
		t.Errorf("Expected welcome message, got %q", event.Message)
	}

	waitFor(t, func() bool { return ts.hub.Count() == 1 })
	if _, err := ts.sessions.GetByID(context.Background(), event.SessionID); err != nil {
		t.Errorf("Expected session registered: %v", err)
	}
}

func TestWebSocket_Turn(t *testing.T) {
	ts := setupTestHub(t)
	ws := ts.dial(t)
	readEvent(t, ws)

	sendJSON(t, ws, domain.ClientEvent{
		Type:  domain.EventInputAudio,
		Audio: base64.StdEncoding.EncodeToString(make([]byte, 2000)),
	})
	ack := readEvent(t, ws)
	if ack.Type != domain.EventTranscriptPartial || ack.Text == nil || *ack.Text != "..." {
		t.Fatalf("Expected chunk acknowledgement, got %+v", ack)
	}

	sendJSON(t, ws, domain.ClientEvent{Type: domain.EventInputCommit})
	events := readUntil(t, ws, domain.EventOutputComplete)

	if events[0].Type != domain.EventTranscriptFinal || *events[0].Text != "Hello" {
		t.Errorf("Expected final transcript first, got %+v", events[0])
	}
	if events[1].Type != domain.EventLLMResponse || events[2].Type != domain.EventSynthesisStarted {
		t.Errorf("Expected llm.response then synthesis.started, got %s, %s", events[1].Type, events[2].Type)
	}

	chunks := events[3 : len(events)-1]
	complete := events[len(events)-1]
	if len(chunks) == 0 || *complete.TotalChunks != len(chunks) {
		t.Fatalf("Expected %d chunks announced, got %d", len(chunks), *complete.TotalChunks)
	}
	for i, chunk := range chunks {
		if chunk.Type != domain.EventAudioChunk || *chunk.ChunkIndex != i || *chunk.TotalChunks != len(chunks) {
			t.Errorf("Unexpected chunk %d: %+v", i, chunk)
		}
		data, err := base64.StdEncoding.DecodeString(chunk.Audio)
		if err != nil || !audio.IsWAV(data) {
			t.Errorf("Chunk %d should be a playable WAV", i)
		}
	}
}

func TestWebSocket_BinaryAudio(t *testing.T) {
	ts := setupTestHub(t)
	ws := ts.dial(t)
	readEvent(t, ws)

	if err := ws.WriteMessage(websocket.BinaryMessage, make([]byte, 5000)); err != nil {
		t.Fatalf("Failed to send binary frame: %v", err)
	}
	readEvent(t, ws)

	sendJSON(t, ws, domain.ClientEvent{Type: domain.EventInputCommit})
	final := readEvent(t, ws)
	if final.Type != domain.EventTranscriptFinal {
		t.Fatalf("Expected final transcript, got %+v", final)
	}
	readUntil(t, ws, domain.EventOutputComplete)
}

func TestWebSocket_RejectsInvalidMessages(t *testing.T) {
	ts := setupTestHub(t)
	ws := ts.dial(t)
	readEvent(t, ws)

	ws.WriteMessage(websocket.TextMessage, []byte("{not json"))
	if event := readEvent(t, ws); event.Type != domain.EventError {
		t.Errorf("Expected error for malformed JSON, got %+v", event)
	}

	sendJSON(t, ws, domain.ClientEvent{Type: domain.EventInputCommit})
	event := readEvent(t, ws)
	if event.Type != domain.EventError || event.Message != "No audio data to process" {
		t.Errorf("Expected empty commit error, got %+v", event)
	}

	// The session is still usable.
	sendJSON(t, ws, domain.ClientEvent{
		Type:  domain.EventInputAudio,
		Audio: base64.StdEncoding.EncodeToString([]byte("audio")),
	})
	if event := readEvent(t, ws); event.Type != domain.EventTranscriptPartial {
		t.Errorf("Expected acknowledgement, got %+v", event)
	}
}

func TestWebSocket_DisconnectCleansUp(t *testing.T) {
	ts := setupTestHub(t)
	ws := ts.dial(t)
	created := readEvent(t, ws)
	waitFor(t, func() bool { return ts.hub.Count() == 1 })

	ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ws.Close()

	waitFor(t, func() bool { return ts.hub.Count() == 0 })
	waitFor(t, func() bool {
		_, err := ts.sessions.GetByID(context.Background(), created.SessionID)
		return err != nil
	})
}

func TestHub_Disconnect(t *testing.T) {
	ts := setupTestHub(t)
	ws := ts.dial(t)
	created := readEvent(t, ws)
	waitFor(t, func() bool { return ts.hub.Count() == 1 })

	if !ts.hub.Disconnect(created.SessionID) {
		t.Fatal("Expected connected session to be disconnected")
	}
	if ts.hub.Disconnect("unknown") {
		t.Error("Expected unknown session to report false")
	}

	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := ws.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("Expected normal close, got %v", err)
	}
	waitFor(t, func() bool { return ts.hub.Count() == 0 })
}

func TestHub_StopClosesClients(t *testing.T) {
	ts := setupTestHub(t)
	ws := ts.dial(t)
	readEvent(t, ws)
	waitFor(t, func() bool { return ts.hub.Count() == 1 })

	ts.cancel()

	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Error("Expected connection closed after hub stop")
	}
}

// slowSTT blocks every call for delay and records completed calls
type slowSTT struct {
	started  chan struct{}
	once     atomic.Bool
	finished atomic.Int32
	delay    time.Duration
}

func (s *slowSTT) Transcribe(ctx context.Context, data []byte) (repositories.Transcription, error) {
	if s.once.CompareAndSwap(false, true) {
		close(s.started)
	}
	time.Sleep(s.delay)
	s.finished.Add(1)
	return repositories.Transcription{Text: "Hello", Confidence: 0.9}, nil
}

func TestHub_WaitDrainsRunningTurns(t *testing.T) {
	speech := &slowSTT{started: make(chan struct{}), delay: 300 * time.Millisecond}
	ts := setupTestHubWithSTT(t, speech)
	ws := ts.dial(t)
	created := readEvent(t, ws)
	waitFor(t, func() bool { return ts.hub.Count() == 1 })

	sendJSON(t, ws, domain.ClientEvent{
		Type:  domain.EventInputAudio,
		Audio: base64.StdEncoding.EncodeToString([]byte("audio")),
	})
	sendJSON(t, ws, domain.ClientEvent{Type: domain.EventInputCommit})
	select {
	case <-speech.started:
	case <-time.After(2 * time.Second):
		t.Fatal("Turn never started")
	}

	ts.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ts.hub.Wait(ctx); err != nil {
		t.Fatalf("Expected hub to drain, got %v", err)
	}
	if speech.finished.Load() != 1 {
		t.Error("Expected the running turn to finish before Wait returned")
	}
	if _, err := ts.sessions.GetByID(context.Background(), created.SessionID); err == nil {
		t.Error("Expected session removed after drain")
	}
}

func TestHub_WaitRespectsContext(t *testing.T) {
	ts := setupTestHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ts.hub.Wait(ctx); err == nil {
		t.Error("Expected context error while the hub is running")
	}
}
