package nudge

import (
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
)

func TestShouldNudge_DefaultCooldown(t *testing.T) {
	throttle := NewThrottle(Config{}, zap.NewNop())

	want := []bool{true, false, true, false, true}
	for i, expected := range want {
		if got := throttle.ShouldNudge("session1", true); got != expected {
			t.Errorf("Call %d: expected %v, got %v", i+1, expected, got)
		}
	}
}

func TestShouldNudge_Cooldowns(t *testing.T) {
	tests := []struct {
		name     string
		cooldown int
		want     []bool
	}{
		{"cooldown 1", 1, []bool{true, true, true}},
		{"cooldown 3", 3, []bool{true, false, false, true, false, false, true}},
		{"cooldown 4", 4, []bool{true, false, false, false, true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			throttle := NewThrottle(Config{Cooldown: tt.cooldown}, zap.NewNop())
			for i, expected := range tt.want {
				if got := throttle.ShouldNudge("s", true); got != expected {
					t.Errorf("Call %d: expected %v, got %v", i+1, expected, got)
				}
			}
		})
	}
}

func TestShouldNudge_NoIntent(t *testing.T) {
	throttle := NewThrottle(Config{}, zap.NewNop())

	for i := 0; i < 3; i++ {
		if throttle.ShouldNudge("session1", false) {
			t.Fatal("No intent signal should never trigger a nudge")
		}
	}

	// Intent-less calls do not count as interactions.
	if !throttle.ShouldNudge("session1", true) {
		t.Error("First qualifying interaction should nudge")
	}
}

func TestShouldNudge_SessionsIndependent(t *testing.T) {
	throttle := NewThrottle(Config{}, zap.NewNop())

	if !throttle.ShouldNudge("session1", true) {
		t.Error("session1 first call should nudge")
	}
	for i := 0; i < 5; i++ {
		throttle.ShouldNudge("session2", true)
	}
	if throttle.ShouldNudge("session1", true) {
		t.Error("session1 second call should be throttled regardless of session2")
	}
	if !throttle.ShouldNudge("session1", true) {
		t.Error("session1 third call should nudge")
	}
}

func TestForget(t *testing.T) {
	throttle := NewThrottle(Config{}, zap.NewNop())

	throttle.ShouldNudge("session1", true)
	throttle.Forget("session1")

	if throttle.Sessions() != 0 {
		t.Errorf("Expected no tracked sessions, got %d", throttle.Sessions())
	}
	if !throttle.ShouldNudge("session1", true) {
		t.Error("A forgotten session starts over")
	}
}

func TestShouldNudge_Concurrent(t *testing.T) {
	throttle := NewThrottle(Config{Cooldown: 2}, zap.NewNop())

	var mu sync.Mutex
	nudges := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if throttle.ShouldNudge("shared", true) {
				mu.Lock()
				nudges++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Interactions 1, 3, 5, ... 99 nudge.
	if nudges != 50 {
		t.Errorf("Expected 50 nudges, got %d", nudges)
	}
}

func TestHasTriggerKeywords(t *testing.T) {
	throttle := NewThrottle(Config{}, zap.NewNop())

	tests := []struct {
		text string
		want bool
	}{
		{"Should I buy GOLD this year?", true},
		{"tell me about Digital Gold", true},
		{"I want to invest some money", true},
		{"investment options please", true},
		{"What is the weather today?", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := throttle.HasTriggerKeywords(tt.text); got != tt.want {
			t.Errorf("HasTriggerKeywords(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestCustomConfig(t *testing.T) {
	throttle := NewThrottle(Config{
		Keywords: []string{" Silver "},
		Message:  "Try silver.",
	}, zap.NewNop())

	if !throttle.HasTriggerKeywords("silver coins") {
		t.Error("Custom keyword should match after trimming and lowering")
	}
	if throttle.HasTriggerKeywords("gold coins") {
		t.Error("Default keywords should be replaced by custom ones")
	}
	if throttle.Message() != "Try silver." {
		t.Errorf("Unexpected message %q", throttle.Message())
	}
}

func TestDefaultMessageAndPayload(t *testing.T) {
	throttle := NewThrottle(Config{}, zap.NewNop())

	message := strings.ToLower(throttle.Message())
	if !strings.Contains(message, "digital gold") || !strings.Contains(message, "simplify") {
		t.Errorf("Unexpected default message %q", throttle.Message())
	}

	payload := throttle.GoldNudge()
	if payload.Link != "/v1/gold/invest" {
		t.Errorf("Unexpected link %q", payload.Link)
	}
	payload.Link = "mutated"
	if throttle.GoldNudge().Link != "/v1/gold/invest" {
		t.Error("GoldNudge should return a copy")
	}
}
