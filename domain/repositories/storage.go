package repositories

import (
	"time"

	"github.com/satriahrh/kuber/server/domain/entities"
)

// ResultCache memoises pipeline results by audio content and session
type ResultCache interface {
	Key(audio []byte, sessionID string) string
	Get(key string) (entities.PipelineResult, bool)
	Put(key string, result entities.PipelineResult, ttl time.Duration)
}

// NudgeThrottle gates the promotional nudge per session
type NudgeThrottle interface {
	ShouldNudge(sessionID string, hadIntent bool) bool
	HasTriggerKeywords(text string) bool
	Forget(sessionID string)
	// Message is the sentence appended when ShouldNudge returns true
	Message() string
	// GoldNudge is the unthrottled payload attached on a keyword match
	GoldNudge() *entities.GoldNudge
}
