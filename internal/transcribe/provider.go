// Package transcribe submits encoded audio to a speech-to-text service and
// returns plain text.
package transcribe

import (
	"context"
	"fmt"
	"time"

	"github.com/ruyvieira/openai-whisper/internal/config"
	"github.com/ruyvieira/openai-whisper/internal/failure"
)

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, req Request) (string, error)
	Name() string  // "openai", "whisper"
	Model() string // model identifier for logs
}

// Request is one upload. It lives only for the duration of the call.
type Request struct {
	Audio    []byte
	Filename string // carries the container extension the service sniffs
	Prompt   string // empty means no prompt
}

// Options are per-client decoding hints. Zero values are omitted.
type Options struct {
	Language    string
	Temperature float64
}

// NewProvider builds the provider selected in cfg.
func NewProvider(cfg *config.Config) (Provider, error) {
	opts := Options{Language: cfg.Language, Temperature: cfg.Temperature}
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout, opts), nil
	case "whisper":
		return NewWhisperClient(cfg.BaseURL+"/audio/transcriptions", cfg.APIKey, cfg.Model, cfg.Timeout, opts), nil
	default:
		return nil, failure.Configf("unknown transcription provider %q", cfg.Provider)
	}
}

func serviceError(provider string, status int, err error) error {
	if status > 0 {
		return failure.Wrap(failure.ErrService, fmt.Sprintf("%s (status %d)", provider, status), err)
	}
	return failure.Wrap(failure.ErrService, provider, err)
}

func httpTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Minute
	}
	return d
}
