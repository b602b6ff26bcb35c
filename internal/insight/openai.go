package insight

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGenerator implements Generator against the OpenAI chat-completion
// API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

// NewOpenAIGenerator builds the generator. No network calls here.
func NewOpenAIGenerator(apiKey, model string, log zerolog.Logger) *OpenAIGenerator {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGenerator{
		client: openai.NewClient(apiKey),
		model:  model,
		log:    log.With().Str("component", "openai").Logger(),
	}
}

// Generate runs one chat completion for a feature.
func (g *OpenAIGenerator) Generate(ctx context.Context, feature string, payload map[string]any, maxTokens int) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPersona},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(feature, payload)},
		},
	}
	if maxTokens > 0 {
		req.MaxCompletionTokens = maxTokens
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion for %s: %w", feature, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion for %s: empty response", feature)
	}
	g.log.Debug().Str("feature", feature).Str("finish_reason", string(resp.Choices[0].FinishReason)).Msg("completion received")
	return resp.Choices[0].Message.Content, nil
}
