package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/kuber/server/domain/repositories"
)

const (
	defaultModel          = "gemini-2.0-flash"
	defaultTemperature    = 0.7
	defaultMaxTokens      = 2000
	defaultTimeoutSeconds = 30
	defaultRetries        = 3

	// Replies are spoken, so they are kept to a few sentences.
	conversationalTokenCap = 100

	// GoldInvestmentFunction is the intent the model can signal
	GoldInvestmentFunction = "suggest_gold_investment"

	// Spoken when the model answered with a function call only
	functionOnlyReply = "Gold can be a steady way to diversify your savings. Would you like to hear more about it?"
)

const systemPrompt = `You are a friendly, conversational financial expert. Keep your responses:
- Concise and conversational (2-3 sentences max)
- Easy to understand for beginners
- Practical and actionable
- Warm and approachable in tone
- Focus on key points, not lengthy explanations`

var goldInvestmentDeclaration = &genai.FunctionDeclaration{
	Name:        GoldInvestmentFunction,
	Description: "Call when the user shows interest in gold or in investing, so the app can suggest gold investment options.",
	Parameters: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"reason": {
				Type:        genai.TypeString,
				Description: "Short reason the user might be interested in gold",
			},
		},
	},
}

// IntentDetector flags text that should count as an intent signal when the
// model did not call a function itself
type IntentDetector interface {
	HasTriggerKeywords(text string) bool
}

// GeminiConfig holds configuration for the Gemini adapter
type GeminiConfig struct {
	APIKey         string  // Required
	Model          string  // Optional: default gemini-2.0-flash
	Temperature    float32 // Optional: between 0 and 2, default 0.7
	MaxTokens      int     // Optional: further capped for spoken replies
	TimeoutSeconds int     // Optional: per attempt, default 30
	Retries        int     // Optional: attempts before giving up, default 3
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiLLM implements the LargeLanguageModel interface using Google's Gemini API
type GeminiLLM struct {
	generate    generateFunc
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	retries     int
	retryDelay  time.Duration
	intents     IntentDetector
	logger      *zap.Logger
}

// Ensure GeminiLLM implements the LargeLanguageModel interface
var _ repositories.LargeLanguageModel = (*GeminiLLM)(nil)

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("gemini API key is required")
	}

	if config.Temperature < 0 || config.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", config.Temperature)
	}

	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens must be positive, got %d", config.MaxTokens)
	}

	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}

	return nil
}

// NewGeminiLLM creates a new Gemini LLM instance
func NewGeminiLLM(ctx context.Context, config GeminiConfig, intents IntentDetector, logger *zap.Logger) (*GeminiLLM, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newGeminiLLM(client.Models.GenerateContent, config, intents, logger), nil
}

func newGeminiLLM(generate generateFunc, config GeminiConfig, intents IntentDetector, logger *zap.Logger) *GeminiLLM {
	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}

	temperature := config.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
		logger.Info("Using default temperature", zap.Float32("temperature", temperature))
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
		logger.Info("Using default maxTokens", zap.Int("maxTokens", maxTokens))
	}

	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
		logger.Info("Using default timeoutSeconds", zap.Int("timeoutSeconds", timeoutSeconds))
	}

	retries := config.Retries
	if retries <= 0 {
		retries = defaultRetries
	}

	return &GeminiLLM{
		generate:    generate,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     time.Duration(timeoutSeconds) * time.Second,
		retries:     retries,
		retryDelay:  time.Second,
		intents:     intents,
		logger:      logger,
	}
}

// Generate sends the prompt with the gold investment function declared. When
// the model does not call it, keywords in the prompt or reply stand in for the
// intent signal.
func (g *GeminiLLM) Generate(ctx context.Context, prompt string) (repositories.Generation, error) {
	contents := genai.Text(prompt)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
		MaxOutputTokens:   int32(min(g.maxTokens, conversationalTokenCap)),
		CandidateCount:    1,
		Tools: []*genai.Tool{
			{FunctionDeclarations: []*genai.FunctionDeclaration{goldInvestmentDeclaration}},
		},
	}

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < g.retries; attempt++ {
		response, err = g.attempt(ctx, contents, config)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return repositories.Generation{}, fmt.Errorf("failed to generate content: %w", ctx.Err())
		}

		g.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < g.retries-1 {
			select {
			case <-ctx.Done():
				return repositories.Generation{}, fmt.Errorf("failed to generate content: %w", ctx.Err())
			case <-time.After(time.Duration(attempt+1) * g.retryDelay):
			}
		}
	}
	if err != nil {
		return repositories.Generation{}, fmt.Errorf("failed to generate content after %d attempts: %w", g.retries, err)
	}

	generation, err := parseResponse(response)
	if err != nil {
		return repositories.Generation{}, err
	}

	if generation.FunctionCall == nil && g.intents != nil &&
		(g.intents.HasTriggerKeywords(prompt) || g.intents.HasTriggerKeywords(generation.Text)) {
		generation.FunctionCall = &repositories.FunctionCall{Name: GoldInvestmentFunction}
	}

	g.logger.Info("Generated reply",
		zap.Int("promptLength", len(prompt)),
		zap.Int("replyLength", len(generation.Text)),
		zap.Bool("intent", generation.HasIntent()))

	return generation, nil
}

func (g *GeminiLLM) attempt(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.generate(ctx, g.model, contents, config)
}

func parseResponse(response *genai.GenerateContentResponse) (repositories.Generation, error) {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return repositories.Generation{}, fmt.Errorf("no content generated")
	}

	var text strings.Builder
	var call *repositories.FunctionCall
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil && call == nil {
			call = &repositories.FunctionCall{
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			}
		}
	}

	reply := strings.TrimSpace(text.String())
	if reply == "" {
		if call == nil {
			return repositories.Generation{}, fmt.Errorf("empty response from model")
		}
		reply = functionOnlyReply
	}

	return repositories.Generation{Text: reply, FunctionCall: call}, nil
}
