package websocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/satriahrh/kuber/server/domain"
)

// ErrInvalidMessage is returned for frames that are not a realtime client message
var ErrInvalidMessage = errors.New("invalid message format")

// WriteData is one frame queued for the write pump
type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// MessageValidator parses and validates inbound text frames
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage decodes a text frame into a client event
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (domain.ClientEvent, error) {
	var event domain.ClientEvent
	if err := json.Unmarshal(messageBytes, &event); err != nil {
		return event, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	switch event.Type {
	case "":
		return event, fmt.Errorf("%w: type is required", ErrInvalidMessage)
	case domain.EventInputAudio:
		if event.Audio == "" {
			return event, fmt.Errorf("%w: audio is required", ErrInvalidMessage)
		}
	case domain.EventInputCommit, domain.EventSessionUpdate:
	default:
		return event, fmt.Errorf("unsupported message type: %s", event.Type)
	}
	return event, nil
}

// EncodeEvent serialises a server event as a text frame
func EncodeEvent(event domain.ServerEvent) (WriteData, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return WriteData{}, fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}
	return WriteData{Type: websocket.TextMessage, Payload: payload}, nil
}
