package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ruyvieira/openai-whisper/internal/audio"
	"github.com/ruyvieira/openai-whisper/internal/batch"
	"github.com/ruyvieira/openai-whisper/internal/config"
	"github.com/ruyvieira/openai-whisper/internal/failure"
)

type cliFlags struct {
	batchSize   int
	offset      int
	limit       int
	concurrency int
	prompt      string
	format      string
	envFile     string
	logLevel    string
}

func newRootCommand() *cobra.Command {
	var f cliFlags

	cmd := &cobra.Command{
		Use:   "openai-whisper <input_audio_path> <output_text_path>",
		Short: "Transcribe an audio file with the OpenAI speech-to-text API",
		Long: `openai-whisper uploads an audio file to a Whisper-compatible transcription
API and writes the returned text to a file.

Long recordings can be split into fixed-length batches (--batch-size), in
which case every batch's text is written on its own line. --offset and
--limit select a window of the recording. Paths may be local or
s3://bucket/key. The API key is read from OPENAI_API_KEY or a .env file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(2)(cmd, args); err != nil {
				return failure.Wrap(failure.ErrConfiguration, "", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.validate(cmd); err != nil {
				return err
			}

			cfg, err := config.Load(config.Overrides{
				EnvFile:       f.envFile,
				LogLevel:      f.logLevel,
				PayloadFormat: f.format,
				Concurrency:   f.concurrency,
			})
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			return a.run(ctx, args[0], args[1], f.options(cfg))
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return failure.Wrap(failure.ErrConfiguration, "", err)
	})

	flags := cmd.Flags()
	flags.IntVar(&f.batchSize, "batch-size", 0, "Split the audio into batches of this many seconds")
	flags.IntVar(&f.offset, "offset", 0, "Seconds to skip from the beginning")
	flags.IntVar(&f.limit, "limit", 0, "Maximum duration to transcribe in seconds (0 = to the end)")
	flags.StringVar(&f.prompt, "prompt", "", "Text to guide the transcription (names, jargon)")
	flags.IntVar(&f.concurrency, "concurrency", 0, "Batches uploaded in parallel (default from CONCURRENCY)")
	flags.StringVar(&f.format, "format", "", "Upload container: wav, mp3, flac or ogg (default from PAYLOAD_FORMAT)")
	flags.StringVar(&f.envFile, "env-file", "", "Path to a .env file (default .env)")
	flags.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	return cmd
}

// validate rejects flag values before any configuration is loaded.
func (f *cliFlags) validate(cmd *cobra.Command) error {
	if cmd.Flags().Changed("batch-size") && f.batchSize <= 0 {
		return failure.Configf("--batch-size must be a positive number of seconds, got %d", f.batchSize)
	}
	if f.offset < 0 {
		return failure.Configf("--offset must not be negative, got %d", f.offset)
	}
	if f.limit < 0 {
		return failure.Configf("--limit must not be negative, got %d", f.limit)
	}
	if cmd.Flags().Changed("concurrency") && f.concurrency < 1 {
		return failure.Configf("--concurrency must be at least 1, got %d", f.concurrency)
	}
	return nil
}

func (f *cliFlags) options(cfg *config.Config) batch.Options {
	return batch.Options{
		BatchSize:   time.Duration(f.batchSize) * time.Second,
		Offset:      time.Duration(f.offset) * time.Second,
		Limit:       time.Duration(f.limit) * time.Second,
		Prompt:      f.prompt,
		Format:      audio.Format(cfg.PayloadFormat),
		MinSegment:  cfg.MinSegment,
		Concurrency: cfg.Concurrency,
	}
}

// newLogger builds the process logger. Every line carries the run id so
// interleaved runs can be told apart in a shared log.
func newLogger(level, format string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("run_id", uuid.NewString()).
		Logger()
}
