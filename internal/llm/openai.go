package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/nbeier/meetscribe/internal/config"
	"github.com/sashabaranov/go-openai"
)

// openAIClientInterface is the slice of the OpenAI client we use, extracted so
// tests can inject a mock.
type openAIClientInterface interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient talks to an OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	config       *config.LLM
	openaiClient openAIClientInterface
}

func NewOpenAIClient(cfg *config.LLM, httpClient *http.Client) *OpenAIClient {
	openaiConfig := openai.DefaultConfig(cfg.APIKey)
	openaiConfig.BaseURL = cfg.Endpoint
	if httpClient != nil {
		openaiConfig.HTTPClient = httpClient
	}

	return &OpenAIClient{
		config:       cfg,
		openaiClient: openai.NewClientWithConfig(openaiConfig),
	}
}

func (c *OpenAIClient) GenerateText(ctx context.Context, systemPrompt, userPrompt string, format *jsonschema.Schema) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.3,
	}

	if format != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "structured_output",
				Schema: format,
				Strict: true,
			},
		}
	}

	resp, err := c.openaiClient.CreateChatCompletion(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", TimeoutError(err, "generation call exceeded its deadline")
		}
		return "", NetworkError(err, "chat completion request failed")
	}

	if len(resp.Choices) == 0 {
		return "", ParseError(nil, "chat completion returned no choices")
	}

	// Some models wrap JSON replies in markdown fences despite the schema.
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content), nil
}
