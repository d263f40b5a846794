package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/kuber/server/domain"
	"github.com/satriahrh/kuber/server/domain/entities"
	"github.com/satriahrh/kuber/server/domain/repositories"
	"github.com/satriahrh/kuber/server/internal/cache"
	"github.com/satriahrh/kuber/server/internal/metrics"
	"github.com/satriahrh/kuber/server/internal/nudge"
	"github.com/satriahrh/kuber/server/internal/stages"
)

type fakeSTT struct {
	calls      atomic.Int32
	text       string
	confidence float64
	err        error
	delay      time.Duration
}

func (f *fakeSTT) Transcribe(ctx context.Context, audio []byte) (repositories.Transcription, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return repositories.Transcription{}, f.err
	}
	return repositories.Transcription{Text: f.text, Confidence: f.confidence}, nil
}

type fakeLLM struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	reply   string
	intent  bool
	err     error
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (repositories.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return repositories.Generation{}, f.err
	}
	gen := repositories.Generation{Text: f.reply}
	if f.intent {
		gen.FunctionCall = &repositories.FunctionCall{Name: "suggest_gold_investment"}
	}
	return gen, nil
}

func (f *fakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeLLM) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

type fakeTTS struct {
	calls atomic.Int32
	audio []byte
	err   error
}

func (f *fakeTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []entities.TurnEvent
}

func (p *recordingPublisher) PublishTurn(ctx context.Context, event entities.TurnEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Events() []entities.TurnEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]entities.TurnEvent(nil), p.events...)
}

type testPipeline struct {
	orchestrator *Orchestrator
	stt          *fakeSTT
	llm          *fakeLLM
	tts          *fakeTTS
	publisher    *recordingPublisher
	metrics      *metrics.Metrics
}

func setupPipeline(t *testing.T) *testPipeline {
	t.Helper()
	logger := zaptest.NewLogger(t)
	m := metrics.NewMetrics(prometheus.NewRegistry())

	p := &testPipeline{
		stt:       &fakeSTT{text: "what is the weather", confidence: 0.9},
		llm:       &fakeLLM{reply: "It is sunny."},
		tts:       &fakeTTS{audio: []byte("speech")},
		publisher: &recordingPublisher{},
		metrics:   m,
	}
	p.orchestrator = NewOrchestrator(Dependencies{
		STT:       p.stt,
		LLM:       p.llm,
		TTS:       p.tts,
		Cache:     cache.New(cache.Config{DefaultTTL: time.Hour, MaxSize: 10}, m, logger),
		Throttle:  nudge.NewThrottle(nudge.Config{Cooldown: 2}, logger),
		Publisher: p.publisher,
		Runner:    stages.NewRunner(time.Second, m, logger),
		Metrics:   m,
	}, OrchestratorConfig{CacheEnabled: true, CacheTTL: time.Hour}, logger)
	return p
}

func TestProcess_Success(t *testing.T) {
	p := setupPipeline(t)

	result, err := p.orchestrator.Process(context.Background(), entities.PipelineRequest{
		Audio:     []byte("some audio bytes"),
		SessionID: "session-1",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.Transcript != "what is the weather" {
		t.Errorf("Expected transcript, got %q", result.Transcript)
	}
	if result.ResponseText != "It is sunny." {
		t.Errorf("Expected unmodified reply, got %q", result.ResponseText)
	}
	if string(result.Audio) != "speech" {
		t.Errorf("Expected synthesized audio, got %q", result.Audio)
	}
	if result.RequestID == "" || result.SessionID != "session-1" {
		t.Errorf("Unexpected ids %q/%q", result.RequestID, result.SessionID)
	}
	if result.FromCache || result.GoldNudge != nil {
		t.Errorf("Expected fresh result without gold nudge, got %+v", result)
	}
	if result.Timings.TotalMs < result.Timings.STTMs+result.Timings.LLMMs+result.Timings.TTSMs {
		t.Errorf("Total should cover stages: %+v", result.Timings)
	}
	if got := testutil.ToFloat64(p.metrics.PipelineTotal.WithLabelValues("completed")); got != 1 {
		t.Errorf("Expected 1 completed pipeline, got %v", got)
	}

	p.orchestrator.Close()
	events := p.publisher.Events()
	if len(events) != 1 || events[0].Source != entities.TurnSourceBatch || events[0].AudioBytes != 6 {
		t.Errorf("Unexpected published events %+v", events)
	}
}

func TestProcess_GeneratesSessionID(t *testing.T) {
	p := setupPipeline(t)

	result, err := p.orchestrator.Process(context.Background(), entities.PipelineRequest{Audio: []byte("x")})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.SessionID == "" {
		t.Error("Expected a generated session id")
	}
}

func TestProcess_EmptyAudio(t *testing.T) {
	p := setupPipeline(t)

	_, err := p.orchestrator.Process(context.Background(), entities.PipelineRequest{})
	if !errors.Is(err, domain.ErrEmptyAudio) {
		t.Fatalf("Expected ErrEmptyAudio, got %v", err)
	}
	if !domain.IsClientError(err) {
		t.Error("Expected empty audio to be a client error")
	}
	if p.stt.calls.Load() != 0 {
		t.Error("STT must not run for empty audio")
	}
}

func TestProcess_CacheHitSkipsStages(t *testing.T) {
	p := setupPipeline(t)
	req := entities.PipelineRequest{Audio: []byte("repeat me"), SessionID: "s", UseCache: true}

	first, err := p.orchestrator.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := p.orchestrator.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !second.FromCache {
		t.Error("Expected second result from cache")
	}
	if second.RequestID == first.RequestID {
		t.Error("Cached result must carry a new request id")
	}
	if second.ResponseText != first.ResponseText || string(second.Audio) != string(first.Audio) {
		t.Error("Cached result differs from original")
	}
	if p.stt.calls.Load() != 1 || p.llm.Calls() != 1 || p.tts.calls.Load() != 1 {
		t.Errorf("Expected one call per stage, got %d/%d/%d",
			p.stt.calls.Load(), p.llm.Calls(), p.tts.calls.Load())
	}

	// Different session, same audio: miss.
	req.SessionID = "other"
	third, _ := p.orchestrator.Process(context.Background(), req)
	if third.FromCache {
		t.Error("Expected cache scoped by session")
	}
}

func TestProcess_CacheBypassed(t *testing.T) {
	p := setupPipeline(t)
	req := entities.PipelineRequest{Audio: []byte("repeat me"), SessionID: "s"}

	p.orchestrator.Process(context.Background(), req)
	result, _ := p.orchestrator.Process(context.Background(), req)

	if result.FromCache {
		t.Error("Expected no cache use when UseCache is false")
	}
	if p.stt.calls.Load() != 2 {
		t.Errorf("Expected 2 STT calls, got %d", p.stt.calls.Load())
	}
}

func TestProcess_StageFailures(t *testing.T) {
	cause := errors.New("provider down")

	tests := []struct {
		name     string
		setup    func(p *testPipeline)
		kind     string
		llmCalls int
		ttsCalls int32
	}{
		{
			name:  "stt",
			setup: func(p *testPipeline) { p.stt.err = cause },
			kind:  "STTFailure",
		},
		{
			name:  "llm",
			setup: func(p *testPipeline) { p.llm.err = cause },
			kind:  "LLMFailure", llmCalls: 1,
		},
		{
			name:  "tts",
			setup: func(p *testPipeline) { p.tts.err = cause },
			kind:  "TTSFailure", llmCalls: 1, ttsCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := setupPipeline(t)
			tt.setup(p)

			result, err := p.orchestrator.Process(context.Background(), entities.PipelineRequest{
				Audio:    []byte("audio"),
				UseCache: true,
			})
			if result != nil {
				t.Error("Expected no result on failure")
			}
			if got := domain.ErrorKind(err); got != tt.kind {
				t.Errorf("Expected kind %s, got %s (%v)", tt.kind, got, err)
			}
			if !errors.Is(err, cause) {
				t.Error("Expected adapter error to be wrapped")
			}
			if p.llm.Calls() != tt.llmCalls || p.tts.calls.Load() != tt.ttsCalls {
				t.Errorf("Unexpected downstream calls llm=%d tts=%d", p.llm.Calls(), p.tts.calls.Load())
			}
			if got := testutil.ToFloat64(p.metrics.PipelineTotal.WithLabelValues("failed")); got != 1 {
				t.Errorf("Expected 1 failed pipeline, got %v", got)
			}
		})
	}
}

func TestProcess_FailureIsNotCached(t *testing.T) {
	p := setupPipeline(t)
	p.tts.err = errors.New("boom")
	req := entities.PipelineRequest{Audio: []byte("audio"), SessionID: "s", UseCache: true}

	p.orchestrator.Process(context.Background(), req)
	p.tts.err = nil
	result, err := p.orchestrator.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.FromCache {
		t.Error("Failed run must not populate the cache")
	}
}

func TestProcess_GoldNudgeOnKeyword(t *testing.T) {
	p := setupPipeline(t)
	p.stt.text = "should I buy Gold this year"

	result, err := p.orchestrator.Process(context.Background(), entities.PipelineRequest{Audio: []byte("a")})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.GoldNudge == nil || result.GoldNudge.Link != "/v1/gold/invest" {
		t.Errorf("Expected gold nudge, got %+v", result.GoldNudge)
	}
	// No intent signal, so no appended sentence.
	if result.ResponseText != "It is sunny." {
		t.Errorf("Expected reply untouched, got %q", result.ResponseText)
	}
}

func TestReply_ThrottledNudge(t *testing.T) {
	p := setupPipeline(t)
	p.llm.intent = true
	message := nudge.NewThrottle(nudge.Config{}, zap.NewNop()).Message()

	var nudged []bool
	for i := 0; i < 5; i++ {
		reply, err := p.orchestrator.Reply(context.Background(), stages.NewTrace(), "session", "hi", "hi")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		nudged = append(nudged, reply.Nudged)
		if reply.Nudged != strings.HasSuffix(reply.Text, " "+message) {
			t.Errorf("Turn %d: nudged=%v but text %q", i+1, reply.Nudged, reply.Text)
		}
	}

	want := []bool{true, false, true, false, true}
	for i := range want {
		if nudged[i] != want[i] {
			t.Fatalf("Expected nudge pattern %v, got %v", want, nudged)
		}
	}

	// A forgotten session starts over.
	p.orchestrator.EndSession("session")
	reply, _ := p.orchestrator.Reply(context.Background(), stages.NewTrace(), "session", "hi", "hi")
	if !reply.Nudged {
		t.Error("Expected first turn after EndSession to nudge")
	}
}

func TestReply_UsesPrompt(t *testing.T) {
	p := setupPipeline(t)

	p.orchestrator.Reply(context.Background(), stages.NewTrace(), "s", "hello", "Previous conversation:\nUser: hi\n")
	prompts := p.llm.Prompts()
	if len(prompts) != 1 || !strings.HasPrefix(prompts[0], "Previous conversation:") {
		t.Errorf("Expected prompt passed through, got %v", prompts)
	}
}

func TestProcess_CacheExpiryRunsFullPass(t *testing.T) {
	p := setupPipeline(t)
	p.llm.intent = true
	logger := zaptest.NewLogger(t)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	resultCache := cache.New(cache.Config{DefaultTTL: time.Minute, MaxSize: 10}, p.metrics, logger,
		cache.WithClock(func() time.Time { return now }))
	orchestrator := NewOrchestrator(Dependencies{
		STT:      p.stt,
		LLM:      p.llm,
		TTS:      p.tts,
		Cache:    resultCache,
		Throttle: nudge.NewThrottle(nudge.Config{Cooldown: 2}, logger),
		Runner:   stages.NewRunner(time.Second, p.metrics, logger),
		Metrics:  p.metrics,
	}, OrchestratorConfig{CacheEnabled: true, CacheTTL: time.Minute}, logger)

	req := entities.PipelineRequest{Audio: []byte("same audio"), SessionID: "s", UseCache: true}
	process := func() *entities.PipelineResult {
		t.Helper()
		result, err := orchestrator.Process(context.Background(), req)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		return result
	}

	first := process()
	if first.FromCache || !strings.Contains(first.ResponseText, "digital gold") {
		t.Fatalf("Expected fresh nudged result, got %+v", first)
	}

	now = now.Add(30 * time.Second)
	if second := process(); !second.FromCache {
		t.Error("Expected cache hit within TTL")
	}

	// The hit above must not count as an interaction, so the throttle is
	// still inside its cooldown on the next full pass.
	now = now.Add(time.Minute)
	third := process()
	if third.FromCache {
		t.Error("Expected full pass after TTL elapsed")
	}
	if strings.Contains(third.ResponseText, "digital gold") {
		t.Errorf("Expected no nudge inside cooldown, got %q", third.ResponseText)
	}
	if p.stt.calls.Load() != 2 || p.llm.Calls() != 2 || p.tts.calls.Load() != 2 {
		t.Errorf("Expected two full passes, got %d/%d/%d",
			p.stt.calls.Load(), p.llm.Calls(), p.tts.calls.Load())
	}
}

func TestPublish_AfterCloseIsDropped(t *testing.T) {
	p := setupPipeline(t)

	p.orchestrator.Publish(entities.TurnEvent{SessionID: "before"})
	p.orchestrator.Close()
	p.orchestrator.Publish(entities.TurnEvent{SessionID: "after"})
	p.orchestrator.Close()

	events := p.publisher.Events()
	if len(events) != 1 || events[0].SessionID != "before" {
		t.Errorf("Expected only the event published before close, got %+v", events)
	}
}
