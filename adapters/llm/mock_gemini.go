package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/satriahrh/kuber/server/domain/repositories"
)

// MockGeminiClient is a placeholder implementation for Gemini LLM
type MockGeminiClient struct {
	intents IntentDetector
}

// Ensure MockGeminiClient implements the LargeLanguageModel interface
var _ repositories.LargeLanguageModel = (*MockGeminiClient)(nil)

// NewMockGeminiClient creates a new mock Gemini client. Keyword matches on
// the prompt are reported as intent signals, like the real adapter does.
func NewMockGeminiClient(intents IntentDetector) *MockGeminiClient {
	return &MockGeminiClient{intents: intents}
}

// Generate echoes the last user line of the prompt
func (g *MockGeminiClient) Generate(ctx context.Context, prompt string) (repositories.Generation, error) {
	if err := ctx.Err(); err != nil {
		return repositories.Generation{}, err
	}

	utterance := lastUserLine(prompt)
	generation := repositories.Generation{
		Text: "Hello! I'm your financial assistant. How can I help you today?",
	}
	if utterance != "" {
		generation.Text = fmt.Sprintf("Thanks for asking about %q. A steady monthly plan is a good place to start.", utterance)
	}

	if g.intents != nil && g.intents.HasTriggerKeywords(utterance) {
		generation.FunctionCall = &repositories.FunctionCall{Name: GoldInvestmentFunction}
	}
	return generation, nil
}

func lastUserLine(prompt string) string {
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if rest, ok := strings.CutPrefix(line, "User:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	if len(lines) == 1 {
		return strings.TrimSpace(lines[0])
	}
	return ""
}
