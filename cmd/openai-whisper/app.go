package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruyvieira/openai-whisper/internal/audio"
	"github.com/ruyvieira/openai-whisper/internal/batch"
	"github.com/ruyvieira/openai-whisper/internal/config"
	"github.com/ruyvieira/openai-whisper/internal/failure"
	"github.com/ruyvieira/openai-whisper/internal/metrics"
	"github.com/ruyvieira/openai-whisper/internal/storage"
	"github.com/ruyvieira/openai-whisper/internal/transcribe"
)

// app holds the collaborators of one run.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	svc     batch.Service
	store   *storage.Router
	codec   *audio.Codec
	metrics *metrics.Metrics
}

func newApp(cfg *config.Config, log zerolog.Logger) (*app, error) {
	provider, err := transcribe.NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("provider", provider.Name()).
		Str("model", provider.Model()).
		Str("version", version).
		Msg("openai-whisper starting")

	return &app{
		cfg:     cfg,
		log:     log,
		svc:     provider,
		store:   storage.NewRouter(cfg.S3, log),
		codec:   audio.NewCodec(cfg.FFmpegPath, cfg.PreprocessAudio),
		metrics: metrics.New(),
	}, nil
}

// run transcribes input into output. The output is written only once
// every segment has succeeded; a failed run leaves it untouched.
func (a *app) run(ctx context.Context, input, output string, opts batch.Options) (err error) {
	start := time.Now()
	defer func() {
		a.metrics.Finish(err)
		if werr := a.metrics.WriteTextfile(a.cfg.MetricsTextfile); werr != nil {
			a.log.Warn().Err(werr).Str("path", a.cfg.MetricsTextfile).Msg("failed to write metrics textfile")
		}
	}()

	in, err := storage.ParseLocation(input)
	if err != nil {
		return err
	}
	out, err := storage.ParseLocation(output)
	if err != nil {
		return err
	}

	drv := batch.New(opts, a.svc, a.metrics, a.log.With().Str("component", "batch").Logger())

	var text string
	if a.cfg.Passthrough && drv.WholeFile() {
		text, err = a.runWhole(ctx, drv, in)
	} else {
		text, err = a.runDecoded(ctx, drv, in)
	}
	if err != nil {
		return err
	}

	if err = a.store.Write(ctx, out, []byte(text)); err != nil {
		return err
	}
	a.log.Info().
		Str("output", out.String()).
		Int("chars", len(text)).
		Dur("took", time.Since(start)).
		Msg("transcription saved")
	return nil
}

// runWhole uploads the input bytes unmodified. The audio is not decoded,
// so only an empty file is caught as having no audio.
func (a *app) runWhole(ctx context.Context, drv *batch.Driver, in storage.Location) (string, error) {
	data, err := a.store.ReadAll(ctx, in)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", failure.Configf("offset 0s exceeds audio length 0s: %s is empty", in)
	}
	name := in.Name()
	return drv.RunPayload(ctx, audio.NewPayload(data, name, audio.FormatOf(name)))
}

func (a *app) runDecoded(ctx context.Context, drv *batch.Driver, in storage.Location) (string, error) {
	src := audio.Source{Name: in.Name()}
	if in.Remote() {
		data, err := a.store.ReadAll(ctx, in)
		if err != nil {
			return "", err
		}
		src.Data = data
	} else {
		if _, err := os.Stat(in.Key); err != nil {
			return "", failure.Wrap(failure.ErrIO, "open input", err)
		}
		src.Path = in.Key
	}

	tl, err := a.codec.Decode(ctx, src)
	if err != nil {
		op := "decode " + in.String()
		if !a.codec.CheckFFmpeg() {
			op += " (ffmpeg not found)"
		}
		return "", failure.Wrap(failure.ErrIO, op, err)
	}
	a.log.Debug().
		Int64("duration_ms", tl.DurationMs()).
		Int("sample_rate", tl.SampleRate()).
		Int("channels", tl.Channels()).
		Msg("audio decoded")
	return drv.Run(ctx, tl)
}
