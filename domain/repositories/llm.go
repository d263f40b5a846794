package repositories

import "context"

// LargeLanguageModel abstracts any chat/LLM provider
type LargeLanguageModel interface {
	// Generate takes a prompt and returns the model's reply
	Generate(ctx context.Context, prompt string) (Generation, error)
}

// Generation is a model reply
type Generation struct {
	Text string `json:"text"`
	// FunctionCall is set when the model signalled an intent
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// FunctionCall is an intent signal emitted by the model
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// HasIntent reports whether the reply carried an intent signal
func (g Generation) HasIntent() bool {
	return g.FunctionCall != nil
}
