// Command voiceclient streams a WAV file through the realtime voice protocol
// and saves the synthesized reply.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/kuber/server/domain"
)

func main() {
	addr := flag.String("addr", "localhost:8000", "server host:port")
	input := flag.String("audio", "sample_audio.wav", "WAV file to stream")
	output := flag.String("out", "reply.wav", "where to write the reply audio")
	chunkSize := flag.Int("chunk", 4096, "bytes per input.audio message")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	audioData, err := os.ReadFile(*input)
	if err != nil {
		logger.Fatal("Failed to read audio file", zap.String("path", *input), zap.Error(err))
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/v1/realtime/ws"}
	logger.Info("Connecting", zap.String("url", u.String()))

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Fatal("Failed to dial", zap.Error(err))
	}
	defer c.Close()

	done := make(chan struct{})
	go handleIncomingMessages(c, *output, done, logger)

	if err := streamAudio(c, audioData, *chunkSize, logger); err != nil {
		logger.Error("Failed to stream audio", zap.Error(err))
		return
	}

	select {
	case <-done:
	case <-interrupt:
		logger.Info("Interrupted")
		err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			logger.Error("Failed to write close message", zap.Error(err))
			return
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

func streamAudio(c *websocket.Conn, data []byte, chunkSize int, logger *zap.Logger) error {
	if chunkSize <= 0 {
		chunkSize = 4096
	}
	start := time.Now()
	sent := 0

	for offset := 0; offset < len(data); offset += chunkSize {
		end := min(offset+chunkSize, len(data))
		if err := sendEvent(c, domain.ClientEvent{
			Type:  domain.EventInputAudio,
			Audio: base64.StdEncoding.EncodeToString(data[offset:end]),
		}); err != nil {
			return fmt.Errorf("failed to send audio chunk %d: %w", sent, err)
		}
		sent++
		time.Sleep(20 * time.Millisecond)
	}

	logger.Info("Finished sending audio",
		zap.Int("chunks", sent),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return sendEvent(c, domain.ClientEvent{Type: domain.EventInputCommit})
}

func sendEvent(c *websocket.Conn, event domain.ClientEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, data)
}

// handleIncomingMessages collects audio chunks until the reply is complete or
// the server ends the conversation
func handleIncomingMessages(c *websocket.Conn, output string, done chan struct{}, logger *zap.Logger) {
	defer close(done)

	var reply []byte
	var replyStarted time.Time

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			logger.Info("Connection closed", zap.Error(err))
			return
		}

		var event domain.ServerEvent
		if err := json.Unmarshal(message, &event); err != nil {
			logger.Warn("Failed to decode server event", zap.Error(err))
			continue
		}

		switch event.Type {
		case domain.EventSessionCreated:
			logger.Info("Session created", zap.String("sessionID", event.SessionID), zap.String("message", event.Message))
		case domain.EventTranscriptPartial:
			if event.Text != nil {
				logger.Info("Partial transcript", zap.String("text", *event.Text))
			}
		case domain.EventTranscriptFinal:
			logger.Info("Final transcript", zap.String("text", deref(event.Text)), zap.Float64p("confidence", event.Confidence))
		case domain.EventLLMResponse:
			logger.Info("Assistant reply", zap.String("text", deref(event.Text)))
			if event.GoldNudge != nil {
				logger.Info("Gold nudge", zap.String("link", event.GoldNudge.Link))
			}
		case domain.EventSynthesisStarted:
			replyStarted = time.Now()
			reply = reply[:0]
		case domain.EventAudioChunk:
			chunk, err := base64.StdEncoding.DecodeString(event.Audio)
			if err != nil {
				logger.Warn("Failed to decode audio chunk", zap.Error(err))
				continue
			}
			reply = append(reply, chunk...)
		case domain.EventOutputComplete:
			logger.Info("Reply complete",
				zap.Int("bytes", len(reply)),
				zap.Duration("elapsed", time.Since(replyStarted)),
			)
			if err := os.WriteFile(output, reply, 0o644); err != nil {
				logger.Error("Failed to write reply audio", zap.Error(err))
			}
			if event.Message != "" {
				return
			}
		case domain.EventConversationEnding:
			logger.Info("Conversation ending", zap.String("message", event.Message))
		case domain.EventError:
			logger.Warn("Server error", zap.String("message", event.Message))
		default:
			logger.Debug("Ignoring event", zap.String("type", string(event.Type)))
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
