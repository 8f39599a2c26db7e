package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/ruyvieira/openai-whisper/internal/failure"
)

// Config is the explicit run configuration handed to every component.
// OPENAI_API_KEY is the only required field.
type Config struct {
	APIKey      string        `env:"OPENAI_API_KEY,required,notEmpty"`
	BaseURL     string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	Provider    string        `env:"TRANSCRIBE_PROVIDER" envDefault:"openai"`
	Model       string        `env:"TRANSCRIBE_MODEL" envDefault:"whisper-1"`
	Language    string        `env:"TRANSCRIBE_LANGUAGE"`
	Temperature float64       `env:"TRANSCRIBE_TEMPERATURE" envDefault:"0"`
	Timeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10m"`

	PayloadFormat   string        `env:"PAYLOAD_FORMAT" envDefault:"mp3"`
	FFmpegPath      string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	PreprocessAudio bool          `env:"PREPROCESS_AUDIO" envDefault:"false"`
	Passthrough     bool          `env:"PASSTHROUGH" envDefault:"true"`
	MinSegment      time.Duration `env:"MIN_SEGMENT" envDefault:"100ms"`
	Concurrency     int           `env:"CONCURRENCY" envDefault:"1"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	MetricsTextfile string `env:"METRICS_TEXTFILE"`

	S3 S3Config
}

// S3Config holds settings for s3:// input and output locations.
type S3Config struct {
	Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"S3_ENDPOINT"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
}

// StaticCredentials reports whether an explicit key pair is configured.
// Without one the default AWS credential chain is used.
func (c S3Config) StaticCredentials() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	LogLevel      string
	PayloadFormat string
	Concurrency   int
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, failure.Wrap(failure.ErrConfiguration, "read "+envFile, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, failure.Wrap(failure.ErrConfiguration, "", err)
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.PayloadFormat != "" {
		cfg.PayloadFormat = overrides.PayloadFormat
	}
	if overrides.Concurrency != 0 {
		cfg.Concurrency = overrides.Concurrency
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.PayloadFormat = strings.ToLower(strings.TrimSpace(cfg.PayloadFormat))
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env parsing cannot.
func (c *Config) Validate() error {
	switch c.Provider {
	case "openai", "whisper":
	default:
		return failure.Configf("unknown TRANSCRIBE_PROVIDER %q (want openai or whisper)", c.Provider)
	}
	switch c.PayloadFormat {
	case "wav", "mp3", "flac", "ogg":
	default:
		return failure.Configf("unknown PAYLOAD_FORMAT %q (want wav, mp3, flac or ogg)", c.PayloadFormat)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return failure.Configf("unknown LOG_FORMAT %q (want console or json)", c.LogFormat)
	}
	if c.Concurrency < 1 {
		return failure.Configf("CONCURRENCY must be at least 1, got %d", c.Concurrency)
	}
	if c.MinSegment < 0 {
		return failure.Configf("MIN_SEGMENT must not be negative, got %s", c.MinSegment)
	}
	if c.Timeout <= 0 {
		return failure.Configf("REQUEST_TIMEOUT must be positive, got %s", c.Timeout)
	}
	return nil
}
