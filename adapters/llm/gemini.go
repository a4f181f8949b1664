// Package llm generates teacher replies from conversation context.
package llm

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/profelabs/profe/server/domain/repositories"
)

const (
	defaultModel           = "gemini-2.0-flash"
	defaultTemperature     = 0.7
	defaultTopP            = 0.95
	defaultTopK            = 40
	defaultMaxOutputTokens = 512

	// historyLimit is the number of trailing turns sent as context.
	historyLimit = 10
)

const systemPromptTemplate = `You are a friendly, patient language teacher speaking with a student.
Always answer with a single JSON object and nothing else, in this exact shape:
{"text": "<your spoken reply>", "animation": "<Idle|Talking|Explaining|Happy|Sad|Thinking|Greeting>", "expression": "<default|smile|sad|surprised|thinking>"}
Keep replies short and conversational, suited to being spoken aloud.
Language formality: %s.
%s`

// GeminiConfig holds configuration for the Gemini answer generator.
// Required fields:
// - APIKey: Google AI API key
// Optional fields with defaults:
// - Model, Temperature, TopP, TopK, MaxOutputTokens
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}
	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", config.Temperature)
	}
	if config.TopP != 0 && (config.TopP < 0 || config.TopP > 1) {
		return fmt.Errorf("topP must be between 0 and 1, got %f", config.TopP)
	}
	if config.TopK < 0 {
		return fmt.Errorf("topK must be positive, got %f", config.TopK)
	}
	return nil
}

// NewGeminiConfigFromEnv creates a GeminiConfig from environment variables
func NewGeminiConfigFromEnv() GeminiConfig {
	config := GeminiConfig{
		APIKey: os.Getenv("GEMINI_API_KEY"),
		Model:  os.Getenv("GEMINI_MODEL"),
	}
	if tempStr := os.Getenv("GEMINI_TEMPERATURE"); tempStr != "" {
		if temp, err := strconv.ParseFloat(tempStr, 32); err == nil && temp >= 0 && temp <= 1 {
			config.Temperature = float32(temp)
		}
	}
	return config
}

// GeminiGenerator implements the AnswerGenerator interface using Gemini
type GeminiGenerator struct {
	client          *genai.Client
	logger          *zap.Logger
	model           string
	temperature     float32
	topP            float32
	topK            float32
	maxOutputTokens int
	safetySettings  []*genai.SafetySetting
}

// Ensure GeminiGenerator implements the AnswerGenerator interface
var _ repositories.AnswerGenerator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a new Gemini answer generator.
// Retries are deliberately left to the caller's guard wrapper.
func NewGeminiGenerator(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiGenerator, error) {
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

	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}
	temperature := config.Temperature
	if temperature == 0 {
		temperature = float32(defaultTemperature)
	}
	topP := config.TopP
	if topP == 0 {
		topP = float32(defaultTopP)
	}
	topK := config.TopK
	if topK == 0 {
		topK = float32(defaultTopK)
	}
	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = defaultMaxOutputTokens
	}

	return &GeminiGenerator{
		client:          client,
		logger:          logger,
		model:           model,
		temperature:     temperature,
		topP:            topP,
		topK:            topK,
		maxOutputTokens: maxOutputTokens,
		safetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockLowAndAbove},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
		},
	}, nil
}

// Generate produces the raw reply string for one student utterance.
func (g *GeminiGenerator) Generate(ctx context.Context, req repositories.GenerationRequest) (string, error) {
	contents := g.buildContents(req)

	config := &genai.GenerateContentConfig{
		SafetySettings:  g.safetySettings,
		Temperature:     genai.Ptr(g.temperature),
		TopP:            genai.Ptr(g.topP),
		TopK:            genai.Ptr(g.topK),
		MaxOutputTokens: int32(g.maxOutputTokens),
	}

	response, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil ||
		len(response.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no content")
	}

	var text string
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini returned empty text")
	}

	g.logger.Info("Answer generated",
		zap.String("preview", text[:min(80, len(text))]),
		zap.Int("historyTurns", len(req.Context.History)))
	return text, nil
}

// buildContents assembles system prompt, trailing history and the current input.
func (g *GeminiGenerator) buildContents(req repositories.GenerationRequest) []*genai.Content {
	formality := req.Context.Formality
	if formality == "" {
		formality = "mixed"
	}
	activity := ""
	if req.Context.ActivityContext != "" {
		activity = "Current activity: " + req.Context.ActivityContext
	}
	systemPrompt := fmt.Sprintf(systemPromptTemplate, formality, activity)

	contents := []*genai.Content{genai.NewContentFromText(systemPrompt, genai.RoleUser)}

	history := req.Context.History
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	for _, turn := range history {
		role := genai.Role(genai.RoleUser)
		if turn.Role == "teacher" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}

	return append(contents, genai.NewContentFromText(req.Input, genai.RoleUser))
}
