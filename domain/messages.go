package domain

import (
	"encoding/base64"

	"github.com/satriahrh/kuber/server/domain/entities"
)

// EventType is the "type" discriminator of a realtime protocol message
type EventType string

// Client to server
const (
	EventInputAudio    EventType = "input.audio"
	EventInputCommit   EventType = "input.commit"
	EventSessionUpdate EventType = "session.update"
)

// Server to client
const (
	EventSessionCreated     EventType = "session.created"
	EventTranscriptPartial  EventType = "transcript.partial"
	EventTranscriptFinal    EventType = "transcript.final"
	EventConversationEnding EventType = "conversation.ending"
	EventLLMResponse        EventType = "llm.response"
	EventSynthesisStarted   EventType = "synthesis.started"
	EventAudioChunk         EventType = "output.audio_chunk"
	EventOutputComplete     EventType = "output.complete"
	EventError              EventType = "error"
)

// ClientEvent is an inbound realtime message
type ClientEvent struct {
	Type  EventType `json:"type"`
	Audio string    `json:"audio,omitempty"` // base64 encoded
}

// ServerEvent is an outbound realtime message. Optional fields are pointers so
// that zero values (chunk 0, confidence 0) are still serialised.
type ServerEvent struct {
	Type        EventType           `json:"type"`
	SessionID   string              `json:"session_id,omitempty"`
	Message     string              `json:"message,omitempty"`
	Text        *string             `json:"text,omitempty"`
	Confidence  *float64            `json:"confidence,omitempty"`
	Audio       string              `json:"audio,omitempty"`
	ChunkIndex  *int                `json:"chunk_index,omitempty"`
	TotalChunks *int                `json:"total_chunks,omitempty"`
	GoldNudge   *entities.GoldNudge `json:"gold_nudge,omitempty"`
}

func NewSessionCreatedEvent(sessionID, message string) ServerEvent {
	return ServerEvent{Type: EventSessionCreated, SessionID: sessionID, Message: message}
}

func NewPartialTranscriptEvent(text string) ServerEvent {
	return ServerEvent{Type: EventTranscriptPartial, Text: &text}
}

func NewInterimTranscriptEvent(text string, confidence float64) ServerEvent {
	return ServerEvent{Type: EventTranscriptPartial, Text: &text, Confidence: &confidence}
}

func NewFinalTranscriptEvent(text string, confidence float64) ServerEvent {
	return ServerEvent{Type: EventTranscriptFinal, Text: &text, Confidence: &confidence}
}

func NewConversationEndingEvent(message string) ServerEvent {
	return ServerEvent{Type: EventConversationEnding, Message: message}
}

func NewLLMResponseEvent(text string, nudge *entities.GoldNudge) ServerEvent {
	return ServerEvent{Type: EventLLMResponse, Text: &text, GoldNudge: nudge}
}

func NewSynthesisStartedEvent(message string) ServerEvent {
	return ServerEvent{Type: EventSynthesisStarted, Message: message}
}

// NewAudioChunkEvent builds an audio chunk message. A negative total omits
// total_chunks from the payload.
func NewAudioChunkEvent(chunk []byte, index, total int) ServerEvent {
	event := ServerEvent{
		Type:       EventAudioChunk,
		Audio:      base64.StdEncoding.EncodeToString(chunk),
		ChunkIndex: &index,
	}
	if total >= 0 {
		event.TotalChunks = &total
	}
	return event
}

func NewOutputCompleteEvent(total int, message string) ServerEvent {
	return ServerEvent{Type: EventOutputComplete, TotalChunks: &total, Message: message}
}

func NewErrorEvent(message string) ServerEvent {
	return ServerEvent{Type: EventError, Message: message}
}
