package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/kuber/server/domain"
	"github.com/satriahrh/kuber/server/domain/entities"
	"github.com/satriahrh/kuber/server/domain/repositories"
	"github.com/satriahrh/kuber/server/internal/audio"
	"github.com/satriahrh/kuber/server/internal/metrics"
	"github.com/satriahrh/kuber/server/internal/stages"
)

const publishTimeout = 5 * time.Second

// Dependencies are the collaborators injected into the orchestrator. Cache and
// Publisher are optional.
type Dependencies struct {
	STT       repositories.SpeechToText
	LLM       repositories.LargeLanguageModel
	TTS       repositories.TextToSpeech
	Cache     repositories.ResultCache
	Throttle  repositories.NudgeThrottle
	Publisher repositories.TurnPublisher
	Runner    *stages.Runner
	Metrics   *metrics.Metrics
}

// OrchestratorConfig holds pipeline settings
type OrchestratorConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// Reply is the outcome of the language stage after nudges are applied
type Reply struct {
	Text      string
	GoldNudge *entities.GoldNudge
	Nudged    bool
	Intent    bool
}

// Orchestrator drives STT, LLM and TTS for one utterance. It keeps no state of
// its own between calls.
type Orchestrator struct {
	stt       repositories.SpeechToText
	llm       repositories.LargeLanguageModel
	tts       repositories.TextToSpeech
	cache     repositories.ResultCache
	throttle  repositories.NudgeThrottle
	publisher repositories.TurnPublisher
	runner    *stages.Runner
	metrics   *metrics.Metrics

	cacheEnabled bool
	cacheTTL     time.Duration

	// publishMu guards closed and orders publishing.Add against Close
	publishMu  sync.Mutex
	closed     bool
	publishing sync.WaitGroup
	logger     *zap.Logger
}

// NewOrchestrator creates a new pipeline orchestrator
func NewOrchestrator(deps Dependencies, config OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		stt:          deps.STT,
		llm:          deps.LLM,
		tts:          deps.TTS,
		cache:        deps.Cache,
		throttle:     deps.Throttle,
		publisher:    deps.Publisher,
		runner:       deps.Runner,
		metrics:      deps.Metrics,
		cacheEnabled: config.CacheEnabled && deps.Cache != nil,
		cacheTTL:     config.CacheTTL,
		logger:       logger,
	}
}

// Process runs a batch request through the whole pipeline. A cache hit skips
// every stage and has no other side effect.
func (o *Orchestrator) Process(ctx context.Context, req entities.PipelineRequest) (*entities.PipelineResult, error) {
	if len(req.Audio) == 0 {
		o.metrics.RecordPipeline("rejected")
		return nil, domain.ErrEmptyAudio
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	logger := o.logger.With(
		zap.String("requestID", requestID),
		zap.String("sessionID", sessionID))
	logger.Info("Processing voice query",
		zap.Int("audioSize", len(req.Audio)),
		zap.String("language", req.Language),
		zap.String("voice", req.Voice),
		zap.Bool("useCache", req.UseCache))

	useCache := req.UseCache && o.cacheEnabled
	var key string
	if useCache {
		key = o.cache.Key(req.Audio, sessionID)
		if cached, ok := o.cache.Get(key); ok {
			cached.RequestID = requestID
			cached.FromCache = true
			logger.Info("Serving voice query from cache")
			o.metrics.RecordPipeline("cache_hit")
			return &cached, nil
		}
	}

	trace := stages.NewTrace()

	transcription, err := o.Transcribe(ctx, trace, req.Audio)
	if err != nil {
		o.metrics.RecordPipeline("failed")
		return nil, err
	}

	reply, err := o.Reply(ctx, trace, sessionID, transcription.Text, transcription.Text)
	if err != nil {
		o.metrics.RecordPipeline("failed")
		return nil, err
	}

	speech, err := o.Synthesize(ctx, trace, reply.Text)
	if err != nil {
		o.metrics.RecordPipeline("failed")
		return nil, err
	}

	result := &entities.PipelineResult{
		RequestID:    requestID,
		SessionID:    sessionID,
		Transcript:   transcription.Text,
		Confidence:   transcription.Confidence,
		ResponseText: reply.Text,
		Audio:        speech,
		Timings:      trace.Timings(),
		GoldNudge:    reply.GoldNudge,
		CompletedAt:  time.Now(),
	}

	if useCache {
		o.cache.Put(key, result.Clone(), o.cacheTTL)
	}

	logger.Info("Voice query completed",
		zap.Float64("totalMs", result.Timings.TotalMs),
		zap.Bool("nudged", reply.Nudged))
	o.metrics.RecordPipeline("completed")

	o.Publish(entities.TurnEvent{
		SessionID:    sessionID,
		Source:       entities.TurnSourceBatch,
		Transcript:   result.Transcript,
		Confidence:   result.Confidence,
		ResponseText: result.ResponseText,
		AudioBytes:   len(result.Audio),
		Nudged:       reply.Nudged,
		Timings:      result.Timings,
	})

	return result, nil
}

// Transcribe runs the STT stage on normalised audio. An empty transcript is a
// valid result; adapter failures are never masked.
func (o *Orchestrator) Transcribe(ctx context.Context, trace *stages.Trace, data []byte) (repositories.Transcription, error) {
	if len(data) == 0 {
		return repositories.Transcription{}, domain.ErrEmptyAudio
	}
	normalized := audio.Normalize(data)

	return stages.Run(ctx, o.runner, trace, domain.StageSTT, func(ctx context.Context) (repositories.Transcription, error) {
		return o.stt.Transcribe(ctx, normalized)
	})
}

// Reply runs the LLM stage on prompt and applies both nudges. Keywords are
// scanned on the transcript and the reply; the throttle is consulted with the
// model's intent signal.
func (o *Orchestrator) Reply(ctx context.Context, trace *stages.Trace, sessionID, transcript, prompt string) (Reply, error) {
	generation, err := stages.Run(ctx, o.runner, trace, domain.StageLLM, func(ctx context.Context) (repositories.Generation, error) {
		return o.llm.Generate(ctx, prompt)
	})
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{
		Text:   generation.Text,
		Intent: generation.HasIntent(),
	}

	if o.throttle.HasTriggerKeywords(transcript) || o.throttle.HasTriggerKeywords(generation.Text) {
		reply.GoldNudge = o.throttle.GoldNudge()
		o.metrics.RecordNudge("gold")
	}

	if o.throttle.ShouldNudge(sessionID, reply.Intent) {
		reply.Text = appendSentence(reply.Text, o.throttle.Message())
		reply.Nudged = true
		o.metrics.RecordNudge("throttled")
	}

	return reply, nil
}

// Synthesize runs the TTS stage
func (o *Orchestrator) Synthesize(ctx context.Context, trace *stages.Trace, text string) ([]byte, error) {
	return stages.Run(ctx, o.runner, trace, domain.StageTTS, func(ctx context.Context) ([]byte, error) {
		return o.tts.Synthesize(ctx, text)
	})
}

// EndSession drops per-session nudge state
func (o *Orchestrator) EndSession(sessionID string) {
	o.throttle.Forget(sessionID)
}

// Publish emits a turn event in the background. Failures are logged only.
func (o *Orchestrator) Publish(event entities.TurnEvent) {
	if o.publisher == nil {
		return
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	o.publishMu.Lock()
	if o.closed {
		o.publishMu.Unlock()
		o.logger.Warn("Dropping turn event after close", zap.String("sessionID", event.SessionID))
		return
	}
	o.publishing.Add(1)
	o.publishMu.Unlock()

	go func() {
		defer o.publishing.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := o.publisher.PublishTurn(ctx, event); err != nil {
			o.logger.Warn("Failed to publish turn event",
				zap.String("sessionID", event.SessionID),
				zap.Error(err))
		}
	}()
}

// Close waits for pending turn events. Events published afterwards are
// dropped.
func (o *Orchestrator) Close() {
	o.publishMu.Lock()
	o.closed = true
	o.publishMu.Unlock()
	o.publishing.Wait()
}

func appendSentence(text, sentence string) string {
	if text == "" {
		return sentence
	}
	return text + " " + sentence
}
