package entities

import (
	"time"
)

// PipelineRequest is a single batch voice query
type PipelineRequest struct {
	// RequestID is generated when empty
	RequestID string
	Audio     []byte
	SessionID string
	Language  string
	Voice     string
	UseCache  bool
}

// GoldNudge is the unthrottled "explore" payload attached when a turn mentions
// one of the configured trigger keywords.
type GoldNudge struct {
	Message     string `json:"message" cbor:"message"`
	Link        string `json:"link" cbor:"link"`
	DisplayText string `json:"display_text" cbor:"display_text"`
}

// StageTimings holds per-stage latencies in milliseconds
type StageTimings struct {
	STTMs   float64 `json:"stt_ms"`
	LLMMs   float64 `json:"llm_ms"`
	TTSMs   float64 `json:"tts_ms"`
	TotalMs float64 `json:"total_ms"`
}

// PipelineResult is the outcome of one pipeline pass
type PipelineResult struct {
	RequestID    string
	SessionID    string
	Transcript   string
	Confidence   float64
	ResponseText string
	Audio        []byte
	Timings      StageTimings
	FromCache    bool
	GoldNudge    *GoldNudge
	CompletedAt  time.Time
}

// Clone returns a deep copy so callers never share audio buffers with a cache
func (r PipelineResult) Clone() PipelineResult {
	out := r
	if r.Audio != nil {
		out.Audio = append([]byte(nil), r.Audio...)
	}
	if r.GoldNudge != nil {
		nudge := *r.GoldNudge
		out.GoldNudge = &nudge
	}
	return out
}

// TurnSource names where a turn was served from
type TurnSource string

const (
	TurnSourceBatch    TurnSource = "batch"
	TurnSourceRealtime TurnSource = "realtime"
)

// TurnEvent is the record published after a turn completes
type TurnEvent struct {
	EventID      string       `json:"event_id"`
	SessionID    string       `json:"session_id"`
	Source       TurnSource   `json:"source"`
	Transcript   string       `json:"transcript"`
	Confidence   float64      `json:"confidence"`
	ResponseText string       `json:"response_text"`
	AudioBytes   int          `json:"audio_bytes"`
	Nudged       bool         `json:"nudged"`
	FromCache    bool         `json:"from_cache"`
	Closing      bool         `json:"closing,omitempty"`
	Timings      StageTimings `json:"timings"`
	OccurredAt   time.Time    `json:"occurred_at"`
}
