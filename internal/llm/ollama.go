package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/invopop/jsonschema"
	"github.com/nbeier/meetscribe/internal/config"
	"github.com/nbeier/meetscribe/internal/logger"
)

const apiGenerateEndpoint = "/api/generate"

// OllamaClient talks to a local Ollama server via /api/generate.
type OllamaClient struct {
	config     *config.LLM
	httpClient *http.Client
}

func NewOllamaClient(cfg *config.LLM, httpClient *http.Client) *OllamaClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaClient{
		config:     cfg,
		httpClient: httpClient,
	}
}

// ollamaRequest is the non-streaming generate payload. The format field, when
// present, constrains the output shape server-side.
type ollamaRequest struct {
	Model  string             `json:"model"`
	Prompt string             `json:"prompt"`
	Stream bool               `json:"stream"`
	NumCtx int                `json:"num_ctx"`
	Format *jsonschema.Schema `json:"format,omitempty"`
}

type ollamaResponse struct {
	Model      string `json:"model"`
	CreatedAt  string `json:"created_at"`
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason"`
}

func (c *OllamaClient) GenerateText(ctx context.Context, systemPrompt, userPrompt string, format *jsonschema.Schema) (string, error) {
	// Ollama's generate endpoint takes a single prompt field.
	fullPrompt := fmt.Sprintf("System: %s\nUser: %s", systemPrompt, userPrompt)

	payload := ollamaRequest{
		Model:  c.config.Model,
		Prompt: fullPrompt,
		Stream: false,
		NumCtx: c.config.ContextSize,
		Format: format,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", SerializationError(err, "failed to encode generate request")
	}

	url := c.config.Endpoint + apiGenerateEndpoint
	logger.Debugf("[LLM] POST %s model=%s prompt_chars=%d", url, c.config.Model, len(fullPrompt))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", NetworkError(err, "failed to build request to %s", url)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", TimeoutError(err, "generation call exceeded its deadline")
		}
		return "", NetworkError(err, "failed to reach inference endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", NetworkError(nil, "inference endpoint returned status %d: %s", resp.StatusCode, string(snippet))
	}

	var decoded ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", ParseError(err, "failed to decode generate response")
	}

	return decoded.Response, nil
}
