package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// WhisperClient calls an OpenAI-compatible /v1/audio/transcriptions endpoint
// directly, for self-hosted servers that go-openai's request shape does not
// suit. Implements the Provider interface.
type WhisperClient struct {
	url     string
	apiKey  string
	model   string
	opts    Options
	timeout time.Duration
	client  *http.Client
}

// NewWhisperClient creates a new Whisper HTTP client.
func NewWhisperClient(url, apiKey, model string, timeout time.Duration, opts Options) *WhisperClient {
	timeout = httpTimeout(timeout)
	return &WhisperClient{
		url:     url,
		apiKey:  apiKey,
		model:   model,
		opts:    opts,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (wc *WhisperClient) Name() string { return "whisper" }

// Model returns the configured model identifier.
func (wc *WhisperClient) Model() string { return wc.model }

// Transcribe sends the payload as multipart/form-data and returns the
// plain-text body. Only non-default parameters are sent.
func (wc *WhisperClient) Transcribe(ctx context.Context, req Request) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	// Audio file field
	part, err := w.CreateFormFile("file", req.Filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}

	// Model
	if wc.model != "" {
		w.WriteField("model", wc.model)
	}

	// Response format: plain text, no timestamps
	w.WriteField("response_format", "text")

	if req.Prompt != "" {
		w.WriteField("prompt", req.Prompt)
	}

	if wc.opts.Language != "" {
		w.WriteField("language", wc.opts.Language)
	}

	if wc.opts.Temperature > 0 {
		w.WriteField("temperature", fmt.Sprintf("%.2f", wc.opts.Temperature))
	}

	w.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, wc.url, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	if wc.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+wc.apiKey)
	}

	resp, err := wc.client.Do(httpReq)
	if err != nil {
		return "", serviceError("whisper", 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", serviceError("whisper", resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", serviceError("whisper", resp.StatusCode, errors.New(strings.TrimSpace(string(body))))
	}

	// Servers that ignore response_format answer with JSON.
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return "", serviceError("whisper", resp.StatusCode, fmt.Errorf("expected text response, got JSON: %.200s", body))
	}

	return string(body), nil
}
