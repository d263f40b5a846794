package entities

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the status of a session
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusClosed SessionStatus = "closed"
)

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// SessionMessage represents a message within a session
type SessionMessage struct {
	Timestamp  time.Time              `json:"timestamp"`
	Role       MessageRole            `json:"role"`
	Content    string                 `json:"content"`
	DurationMs int64                  `json:"duration_ms"`
	Metadata   SessionMessageMetadata `json:"metadata"`
}

// SessionMessageMetadata contains additional metadata for a message
type SessionMessageMetadata struct {
	TranscriptionConfidence *float64 `json:"transcription_confidence,omitempty"`
}

// Session is one conversation held over a realtime connection. It lives only
// as long as the connection.
type Session struct {
	ID           string           `json:"id"`
	CreatedAt    time.Time        `json:"created_at"`
	LastActiveAt time.Time        `json:"last_active_at"`
	Status       SessionStatus    `json:"status"`
	Turns        int              `json:"turns"`
	Messages     []SessionMessage `json:"messages"`
}

// NewSession creates an active session with a fresh identifier
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		LastActiveAt: now,
		Status:       SessionStatusActive,
		Messages:     make([]SessionMessage, 0),
	}
}

// AddMessage appends a message to the history. Each user message starts a new turn.
func (s *Session) AddMessage(role MessageRole, content string, durationMs int64, metadata SessionMessageMetadata) {
	s.Messages = append(s.Messages, SessionMessage{
		Timestamp:  time.Now(),
		Role:       role,
		Content:    content,
		DurationMs: durationMs,
		Metadata:   metadata,
	})
	if role == MessageRoleUser {
		s.Turns++
	}
	s.UpdateLastActive()
}

// UpdateLastActive updates the last active timestamp
func (s *Session) UpdateLastActive() {
	s.LastActiveAt = time.Now()
}

// Close marks the session as closed
func (s *Session) Close() {
	s.Status = SessionStatusClosed
	s.UpdateLastActive()
}

// IsClosed reports whether the session has been closed
func (s *Session) IsClosed() bool {
	return s.Status == SessionStatusClosed
}

// Window returns at most the last n exchanges (2n messages) of the history.
// Older messages are dropped, never summarised.
func (s *Session) Window(exchanges int) []SessionMessage {
	limit := exchanges * 2
	if limit <= 0 {
		return nil
	}
	if len(s.Messages) <= limit {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-limit:]
}

// ConversationPrompt builds the LLM prompt for the current utterance from the
// recent history. The current utterance must not yet be in the history.
func (s *Session) ConversationPrompt(utterance string, exchanges int) string {
	window := s.Window(exchanges)
	if len(window) == 0 {
		return utterance
	}

	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, msg := range window {
		switch msg.Role {
		case MessageRoleUser:
			fmt.Fprintf(&b, "User: %s\n", msg.Content)
		default:
			fmt.Fprintf(&b, "Assistant: %s\n", msg.Content)
		}
	}
	fmt.Fprintf(&b, "\nUser: %s\nAssistant:", utterance)
	return b.String()
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}

	if s.Status != SessionStatusActive && s.Status != SessionStatusClosed {
		return errors.New("invalid session status")
	}

	return nil
}

// Snapshot returns a copy that shares no slices with s
func (s *Session) Snapshot() *Session {
	out := *s
	out.Messages = append([]SessionMessage(nil), s.Messages...)
	return &out
}
