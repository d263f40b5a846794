package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/satriahrh/kuber/server/domain"
	"github.com/satriahrh/kuber/server/domain/entities"
	"github.com/satriahrh/kuber/server/domain/repositories"
	"github.com/satriahrh/kuber/server/internal/audio"
	"github.com/satriahrh/kuber/server/internal/metrics"
	"github.com/satriahrh/kuber/server/internal/stages"
)

const (
	ackText          = "..."
	busyText         = "Processing previous input..."
	synthesisText    = "Generating audio response..."
	readyText        = "Ready for next input. Continue speaking naturally!"
	chunkDecodeError = "Failed to process audio chunk"
	bufferLimitError = "Audio buffer limit exceeded for this turn"
	unknownTypeError = "Unknown message type"
)

// SessionState is the protocol state of a realtime session
type SessionState string

const (
	StateIdle         SessionState = "idle"
	StateOpen         SessionState = "open"
	StateAccumulating SessionState = "accumulating"
	StateTurnInFlight SessionState = "turn_in_flight"
	StateClosed       SessionState = "closed"
)

// Emitter delivers server events to the connected client
type Emitter interface {
	Emit(event domain.ServerEvent) error
	// Close ends the connection after queued events are flushed
	Close()
}

// RealtimeConfig holds the realtime protocol settings
type RealtimeConfig struct {
	WelcomeMessage        string
	FarewellMessage       string
	ClosingPhrases        []string
	ChunkMs               int
	FarewellChunkMs       int
	ChunkPacing           time.Duration
	FarewellPacing        time.Duration
	HistoryExchanges      int
	PartialThresholdBytes int
	MaxTurnAudioBytes     int
	RawFormat             audio.Format
}

// RealtimeSession runs the streaming protocol for one connection. Inbound
// messages and the turn goroutine run concurrently; buffer, state and the
// in-flight flag are guarded by mu.
type RealtimeSession struct {
	mu             sync.Mutex
	session        *entities.Session
	state          SessionState
	buffer         []byte
	inFlight       bool
	partialRunning bool
	// generation counts committed turns. An interim result is only emitted
	// while the generation it was started in is still current.
	generation    uint64
	cancelInterim context.CancelFunc

	// interimMu orders interim emission against Commit
	interimMu sync.Mutex

	orchestrator *Orchestrator
	sessions     repositories.SessionRepository
	emitter      Emitter
	config       RealtimeConfig
	metrics      *metrics.Metrics

	work   sync.WaitGroup
	logger *zap.Logger
}

// NewRealtimeSession creates a session bound to one client connection
func NewRealtimeSession(
	orchestrator *Orchestrator,
	sessions repositories.SessionRepository,
	emitter Emitter,
	config RealtimeConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *RealtimeSession {
	return &RealtimeSession{
		state:        StateIdle,
		orchestrator: orchestrator,
		sessions:     sessions,
		emitter:      emitter,
		config:       config,
		metrics:      m,
		logger:       logger,
	}
}

// Open registers the session and greets the client
func (s *RealtimeSession) Open(ctx context.Context) error {
	session := entities.NewSession()
	if err := s.sessions.Create(ctx, session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	s.mu.Lock()
	s.session = session
	s.state = StateOpen
	s.logger = s.logger.With(zap.String("sessionID", session.ID))
	s.mu.Unlock()

	s.metrics.RecordSessionStart()
	s.logger.Info("Realtime session opened")
	s.emit(domain.NewSessionCreatedEvent(session.ID, s.config.WelcomeMessage))
	return nil
}

// ID returns the session id, empty before Open
func (s *RealtimeSession) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.ID
}

// State returns the current protocol state
func (s *RealtimeSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HandleEvent dispatches one decoded client message
func (s *RealtimeSession) HandleEvent(ctx context.Context, event domain.ClientEvent) {
	switch event.Type {
	case domain.EventInputAudio:
		data, err := base64.StdEncoding.DecodeString(event.Audio)
		if err != nil {
			s.logger.Warn("Failed to decode audio chunk", zap.Error(err))
			s.emit(domain.NewErrorEvent(chunkDecodeError))
			return
		}
		s.AppendAudio(data)
	case domain.EventInputCommit:
		s.Commit()
	case domain.EventSessionUpdate:
		s.logger.Debug("Session update accepted")
	default:
		s.logger.Warn("Unknown message type", zap.String("type", string(event.Type)))
		s.emit(domain.NewErrorEvent(fmt.Sprintf("%s: %s", unknownTypeError, event.Type)))
	}
}

// AppendAudio adds a chunk to the turn buffer and acknowledges it. Once the
// buffer crosses the partial threshold an interim transcription runs in the
// background, unless a turn or another interim transcription is running.
func (s *RealtimeSession) AppendAudio(data []byte) {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	if s.config.MaxTurnAudioBytes > 0 && len(s.buffer)+len(data) > s.config.MaxTurnAudioBytes {
		size := len(s.buffer)
		s.mu.Unlock()
		s.logger.Warn("Turn audio limit exceeded",
			zap.Int("bufferSize", size),
			zap.Int("chunkSize", len(data)))
		s.metrics.AudioLimitExceeded.Inc()
		s.emit(domain.NewErrorEvent(bufferLimitError))
		return
	}

	s.buffer = append(s.buffer, data...)
	if !s.inFlight {
		s.state = StateAccumulating
	}

	var snapshot []byte
	var generation uint64
	var interimCtx context.Context
	threshold := s.config.PartialThresholdBytes
	if threshold > 0 && len(s.buffer) > threshold && !s.inFlight && !s.partialRunning {
		s.partialRunning = true
		snapshot = append([]byte(nil), s.buffer...)
		generation = s.generation
		interimCtx, s.cancelInterim = context.WithCancel(context.Background())
		// Added under mu so Close followed by Wait always observes it
		s.work.Add(1)
	}
	s.mu.Unlock()

	s.metrics.RecordAudioReceived(len(data))
	s.emit(domain.NewPartialTranscriptEvent(ackText))

	if snapshot != nil {
		go s.runInterim(interimCtx, snapshot, generation)
	}
}

// runInterim transcribes a snapshot of the buffer. The result is dropped when
// a commit happened in the meantime.
func (s *RealtimeSession) runInterim(ctx context.Context, snapshot []byte, generation uint64) {
	defer s.work.Done()
	defer func() {
		s.mu.Lock()
		s.partialRunning = false
		if s.cancelInterim != nil {
			s.cancelInterim()
			s.cancelInterim = nil
		}
		s.mu.Unlock()
	}()

	transcription, err := s.orchestrator.Transcribe(ctx, stages.NewTrace(), snapshot)
	if err != nil {
		s.logger.Debug("Interim transcription failed", zap.Error(err))
		return
	}
	if strings.TrimSpace(transcription.Text) == "" {
		return
	}

	s.interimMu.Lock()
	defer s.interimMu.Unlock()

	s.mu.Lock()
	stale := generation != s.generation || s.inFlight
	s.mu.Unlock()
	if stale {
		s.logger.Debug("Dropping stale interim transcript", zap.Uint64("generation", generation))
		return
	}
	s.emit(domain.NewInterimTranscriptEvent(transcription.Text, transcription.Confidence))
}

// Commit ends the current utterance. The buffer is handed to a new turn and
// reset; a commit while a turn is in flight is dropped with a notice.
func (s *RealtimeSession) Commit() {
	s.interimMu.Lock()
	defer s.interimMu.Unlock()

	s.mu.Lock()
	if s.state == StateClosed || s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	if s.inFlight {
		s.mu.Unlock()
		s.metrics.RecordCommitRejected("busy")
		s.emit(domain.NewPartialTranscriptEvent(busyText))
		return
	}
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		s.metrics.RecordCommitRejected("empty")
		s.emit(domain.NewErrorEvent(domain.ErrEmptyAudio.Error()))
		return
	}

	utterance := s.buffer
	s.buffer = nil
	s.inFlight = true
	s.state = StateTurnInFlight
	s.generation++
	if s.cancelInterim != nil {
		s.cancelInterim()
	}
	s.work.Add(1)
	s.mu.Unlock()

	s.logger.Info("Turn committed", zap.Int("audioSize", len(utterance)))
	go s.runTurn(utterance)
}

func (s *RealtimeSession) runTurn(utterance []byte) {
	defer s.work.Done()

	outcome, err := s.turn(context.Background(), utterance)
	if err != nil {
		outcome = "failed"
		s.logger.Error("Turn failed", zap.Error(err))
		s.emit(domain.NewErrorEvent(err.Error()))
	}
	s.metrics.RecordTurn(outcome)

	// A closing turn keeps the in-flight flag until the session is closed so
	// no commit can start another turn after the farewell.
	if outcome == "closing" {
		s.Close()
		s.emitter.Close()
	}

	s.mu.Lock()
	s.inFlight = false
	switch {
	case s.state == StateClosed:
	case len(s.buffer) > 0:
		s.state = StateAccumulating
	default:
		s.state = StateOpen
	}
	s.mu.Unlock()
}

func (s *RealtimeSession) turn(ctx context.Context, utterance []byte) (string, error) {
	trace := stages.NewTrace()
	sessionID := s.ID()

	transcription, err := s.orchestrator.Transcribe(ctx, trace, utterance)
	if err != nil {
		return "", err
	}
	s.emit(domain.NewFinalTranscriptEvent(transcription.Text, transcription.Confidence))

	if IsClosingPhrase(transcription.Text, s.config.ClosingPhrases) {
		return "closing", s.farewell(ctx, trace, sessionID, transcription)
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return "discarded", nil
	}
	prompt := s.session.ConversationPrompt(transcription.Text, s.config.HistoryExchanges)
	confidence := transcription.Confidence
	s.session.AddMessage(entities.MessageRoleUser, transcription.Text, audio.Duration(utterance),
		entities.SessionMessageMetadata{TranscriptionConfidence: &confidence})
	s.mu.Unlock()

	reply, err := s.orchestrator.Reply(ctx, trace, sessionID, transcription.Text, prompt)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.session.AddMessage(entities.MessageRoleAssistant, reply.Text, 0, entities.SessionMessageMetadata{})
	snapshot := s.session.Snapshot()
	s.mu.Unlock()
	s.saveSession(ctx, snapshot)

	s.emit(domain.NewLLMResponseEvent(reply.Text, reply.GoldNudge))
	s.emit(domain.NewSynthesisStartedEvent(synthesisText))

	speech, err := s.orchestrator.Synthesize(ctx, trace, reply.Text)
	if err != nil {
		return "", err
	}

	chunks := audio.Chunk(speech, s.config.ChunkMs, s.config.RawFormat)
	total := len(chunks)
	for i, chunk := range chunks {
		if !s.emit(domain.NewAudioChunkEvent(chunk, i, total)) {
			return "discarded", nil
		}
		s.pace(s.config.ChunkPacing)
	}
	s.emit(domain.NewOutputCompleteEvent(total, readyText))

	s.orchestrator.Publish(entities.TurnEvent{
		SessionID:    sessionID,
		Source:       entities.TurnSourceRealtime,
		Transcript:   transcription.Text,
		Confidence:   transcription.Confidence,
		ResponseText: reply.Text,
		AudioBytes:   len(speech),
		Nudged:       reply.Nudged,
		Timings:      trace.Timings(),
	})
	return "completed", nil
}

// farewell streams the goodbye message. The language model is not consulted.
func (s *RealtimeSession) farewell(ctx context.Context, trace *stages.Trace, sessionID string, transcription repositories.Transcription) error {
	s.emit(domain.NewConversationEndingEvent(s.config.FarewellMessage))

	speech, err := s.orchestrator.Synthesize(ctx, trace, s.config.FarewellMessage)
	if err != nil {
		return err
	}

	chunks := audio.Chunk(speech, s.config.FarewellChunkMs, s.config.RawFormat)
	for i, chunk := range chunks {
		if !s.emit(domain.NewAudioChunkEvent(chunk, i, -1)) {
			return nil
		}
		s.pace(s.config.FarewellPacing)
	}
	s.emit(domain.NewOutputCompleteEvent(len(chunks), ""))

	s.orchestrator.Publish(entities.TurnEvent{
		SessionID:    sessionID,
		Source:       entities.TurnSourceRealtime,
		Transcript:   transcription.Text,
		Confidence:   transcription.Confidence,
		ResponseText: s.config.FarewellMessage,
		AudioBytes:   len(speech),
		Closing:      true,
		Timings:      trace.Timings(),
	})
	return nil
}

// Close tears the session down. Results of a running turn are discarded.
func (s *RealtimeSession) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	opened := s.session != nil
	s.state = StateClosed
	s.buffer = nil
	if s.cancelInterim != nil {
		s.cancelInterim()
	}
	var sessionID string
	if opened {
		s.session.Close()
		sessionID = s.session.ID
	}
	s.mu.Unlock()

	if !opened {
		return
	}

	s.orchestrator.EndSession(sessionID)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, repositories.ErrSessionNotFound) {
		s.logger.Warn("Failed to delete session", zap.Error(err))
	}
	s.metrics.RecordSessionEnd()
	s.logger.Info("Realtime session closed")
}

// Wait blocks until background turns and interim transcriptions finish
func (s *RealtimeSession) Wait() {
	s.work.Wait()
}

func (s *RealtimeSession) saveSession(ctx context.Context, snapshot *entities.Session) {
	if err := s.sessions.Update(ctx, snapshot); err != nil && !errors.Is(err, repositories.ErrSessionNotFound) {
		s.logger.Warn("Failed to update session", zap.Error(err))
	}
}

// emit sends an event unless the session is closed. It reports whether the
// event was handed to the emitter.
func (s *RealtimeSession) emit(event domain.ServerEvent) bool {
	s.mu.Lock()
	closed := s.state == StateClosed
	s.mu.Unlock()
	if closed {
		return false
	}

	if err := s.emitter.Emit(event); err != nil {
		s.logger.Warn("Failed to emit event",
			zap.String("type", string(event.Type)),
			zap.Error(err))
		return false
	}
	return true
}

func (s *RealtimeSession) pace(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// IsClosingPhrase reports whether text contains one of phrases as whole
// words, ignoring case and punctuation.
func IsClosingPhrase(text string, phrases []string) bool {
	normalized := " " + normalizeWords(text) + " "
	for _, phrase := range phrases {
		p := normalizeWords(phrase)
		if p == "" {
			continue
		}
		if strings.Contains(normalized, " "+p+" ") {
			return true
		}
	}
	return false
}

func normalizeWords(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
	return strings.Join(fields, " ")
}
