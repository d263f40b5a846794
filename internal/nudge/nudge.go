// Package nudge decides when a response carries a promotional nudge.
package nudge

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/kuber/server/domain/entities"
	"github.com/satriahrh/kuber/server/domain/repositories"
)

var (
	defaultKeywords = []string{"gold", "digital gold", "sovereign gold", "invest", "investment"}
	defaultMessage  = "Also, you may consider exploring digital gold on Simplify. Want a quick summary?"
	defaultCooldown = 2

	defaultGoldNudge = entities.GoldNudge{
		Message:     "💰 Interested in gold investment? Discover smart gold investment options with Simplify Money!",
		Link:        "/v1/gold/invest",
		DisplayText: "Explore Gold Investment Options",
	}
)

// Config holds nudge settings
type Config struct {
	Keywords  []string
	Message   string
	Cooldown  int
	GoldNudge entities.GoldNudge
}

type sessionState struct {
	interactions int
	lastNudge    int
	nudged       bool
}

// Throttle tracks per-session interaction counts. It is safe for concurrent use.
type Throttle struct {
	mu       sync.Mutex
	sessions map[string]*sessionState

	keywords  []string
	message   string
	cooldown  int
	goldNudge entities.GoldNudge

	logger *zap.Logger
}

// Ensure Throttle implements the NudgeThrottle interface
var _ repositories.NudgeThrottle = (*Throttle)(nil)

// NewThrottle creates a nudge throttle
func NewThrottle(config Config, logger *zap.Logger) *Throttle {
	keywords := config.Keywords
	if len(keywords) == 0 {
		keywords = defaultKeywords
		logger.Info("Using default nudge keywords", zap.Strings("keywords", keywords))
	}
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}

	message := config.Message
	if message == "" {
		message = defaultMessage
		logger.Info("Using default nudge message")
	}

	cooldown := config.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
		logger.Info("Using default nudge cooldown", zap.Int("cooldown", cooldown))
	}

	goldNudge := config.GoldNudge
	if goldNudge == (entities.GoldNudge{}) {
		goldNudge = defaultGoldNudge
	}

	return &Throttle{
		sessions:  make(map[string]*sessionState),
		keywords:  lowered,
		message:   message,
		cooldown:  cooldown,
		goldNudge: goldNudge,
		logger:    logger,
	}
}

// ShouldNudge records an interaction for the session and reports whether the
// nudge sentence should be appended. Interactions without an intent signal are
// not counted and never nudge. The first qualifying interaction always nudges;
// after that at least cooldown interactions must pass between nudges.
func (t *Throttle) ShouldNudge(sessionID string, hadIntent bool) bool {
	if !hadIntent {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.sessions[sessionID]
	if !ok {
		state = &sessionState{}
		t.sessions[sessionID] = state
	}
	state.interactions++

	if state.nudged && state.interactions-state.lastNudge < t.cooldown {
		return false
	}

	state.nudged = true
	state.lastNudge = state.interactions
	t.logger.Debug("Nudge triggered",
		zap.String("sessionID", sessionID),
		zap.Int("interaction", state.interactions))
	return true
}

// HasTriggerKeywords reports whether text mentions any configured keyword,
// case-insensitively. It is stateless.
func (t *Throttle) HasTriggerKeywords(text string) bool {
	lowered := strings.ToLower(text)
	for _, k := range t.keywords {
		if strings.Contains(lowered, k) {
			return true
		}
	}
	return false
}

// Forget drops the state of a finished session
func (t *Throttle) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
}

// Message returns the sentence appended when ShouldNudge returns true
func (t *Throttle) Message() string {
	return t.message
}

// GoldNudge returns a copy of the unthrottled explore payload
func (t *Throttle) GoldNudge() *entities.GoldNudge {
	nudge := t.goldNudge
	return &nudge
}

// Keywords returns the configured trigger keywords
func (t *Throttle) Keywords() []string {
	return append([]string(nil), t.keywords...)
}

// Sessions returns the number of tracked sessions
func (t *Throttle) Sessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
