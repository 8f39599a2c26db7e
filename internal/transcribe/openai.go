package transcribe

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient calls the OpenAI audio transcription API through go-openai.
// Implements the Provider interface.
type OpenAIClient struct {
	client *openai.Client
	model  string
	opts   Options
}

// NewOpenAIClient creates a client for baseURL (the API root, e.g.
// https://api.openai.com/v1).
func NewOpenAIClient(apiKey, baseURL, model string, timeout time.Duration, opts Options) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: httpTimeout(timeout)}
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		opts:   opts,
	}
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string { return "openai" }

// Model returns the configured model identifier.
func (c *OpenAIClient) Model() string { return c.model }

// Transcribe uploads req and returns the plain-text transcription.
func (c *OpenAIClient) Transcribe(ctx context.Context, req Request) (string, error) {
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       c.model,
		FilePath:    req.Filename,
		Reader:      bytes.NewReader(req.Audio),
		Prompt:      req.Prompt,
		Language:    c.opts.Language,
		Temperature: float32(c.opts.Temperature),
		Format:      openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", serviceError("openai", statusOf(err), err)
	}
	return resp.Text, nil
}

func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
