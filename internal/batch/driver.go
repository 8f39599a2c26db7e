package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruyvieira/openai-whisper/internal/audio"
	"github.com/ruyvieira/openai-whisper/internal/failure"
	"github.com/ruyvieira/openai-whisper/internal/metrics"
	"github.com/ruyvieira/openai-whisper/internal/transcribe"
)

// Service is the transcription capability the driver needs.
// transcribe.Provider satisfies it.
type Service interface {
	Transcribe(ctx context.Context, req transcribe.Request) (string, error)
}

// Timeline is the decoded audio the driver slices. *audio.Timeline
// satisfies it.
type Timeline interface {
	DurationMs() int64
	EncodeRange(ctx context.Context, startMs, endMs int64, format audio.Format) (*audio.Payload, error)
}

// Options configures one run.
type Options struct {
	BatchSize   time.Duration // 0 disables batching
	Offset      time.Duration
	Limit       time.Duration // 0 means to the end
	Prompt      string
	Format      audio.Format
	MinSegment  time.Duration
	Concurrency int // segments in flight; 1 submits sequentially
}

// Driver runs the resolve → plan → submit → assemble pipeline.
type Driver struct {
	opts    Options
	svc     Service
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New creates a Driver. m may be nil.
func New(opts Options, svc Service, m *metrics.Metrics, log zerolog.Logger) *Driver {
	if opts.Format == "" {
		opts.Format = audio.FormatMP3
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Driver{opts: opts, svc: svc, metrics: m, log: log}
}

// Batched reports whether output is assembled line per segment.
func (d *Driver) Batched() bool { return d.opts.BatchSize > 0 }

// WholeFile reports whether the run covers the entire input in one
// request, so the input can be uploaded without decoding.
func (d *Driver) WholeFile() bool {
	return d.opts.BatchSize == 0 && d.opts.Offset == 0 && d.opts.Limit == 0
}

// Run transcribes tl and returns the assembled text. Nothing is returned
// unless every segment succeeded.
func (d *Driver) Run(ctx context.Context, tl Timeline) (string, error) {
	rng, err := ResolveRange(tl.DurationMs(), d.opts.Offset, d.opts.Limit)
	if err != nil {
		return "", err
	}
	if rng.Clamped {
		d.log.Warn().
			Dur("limit", d.opts.Limit).
			Int64("remaining_ms", rng.DurationMs()).
			Msg("limit is longer than remaining audio; using full audio after offset")
	}

	plan := Plan(rng.DurationMs(), d.opts.BatchSize)
	kept := DropShort(plan, d.opts.MinSegment)
	if dropped := len(plan) - len(kept); dropped > 0 {
		d.metrics.ObserveDropped(dropped)
		d.log.Debug().
			Int("dropped", dropped).
			Dur("min_segment", d.opts.MinSegment).
			Msg("skipping segments below minimum length")
	}

	d.log.Info().
		Int64("offset_ms", rng.StartMs).
		Int64("duration_ms", rng.DurationMs()).
		Dur("batch_size", d.opts.BatchSize).
		Int("segments", len(kept)).
		Int("concurrency", d.opts.Concurrency).
		Msg("transcribing")

	var results []string
	if d.opts.Concurrency > 1 && len(kept) > 1 {
		results, err = d.submitConcurrent(ctx, tl, rng, kept)
	} else {
		results, err = d.submitSequential(ctx, tl, rng, kept)
	}
	if err != nil {
		return "", err
	}
	return Assemble(results, d.Batched()), nil
}

// RunPayload submits an already encoded payload as a single request and
// releases it. Used to upload the input file unmodified.
func (d *Driver) RunPayload(ctx context.Context, p *audio.Payload) (string, error) {
	defer p.Release()
	d.log.Info().Str("file", p.Filename).Int("bytes", p.Len()).Msg("transcribing whole file")

	start := time.Now()
	text, err := d.svc.Transcribe(ctx, transcribe.Request{
		Audio:    p.Bytes(),
		Filename: p.Filename,
		Prompt:   d.opts.Prompt,
	})
	d.metrics.ObserveRequest(time.Since(start), p.Len(), 0, err)
	if err != nil {
		return "", asServiceError(err, "transcribe "+p.Filename)
	}
	return Assemble([]string{text}, false), nil
}

func (d *Driver) submitSequential(ctx context.Context, tl Timeline, rng Range, plan []Segment) ([]string, error) {
	results := make([]string, 0, len(plan))
	for _, seg := range plan {
		text, err := d.submitSegment(ctx, tl, rng, seg)
		if err != nil {
			return nil, err
		}
		results = append(results, text)
	}
	return results, nil
}

// submitSegment encodes one segment, uploads it and releases the payload
// whatever the outcome.
func (d *Driver) submitSegment(ctx context.Context, tl Timeline, rng Range, seg Segment) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	log := d.log.With().Int("segment", seg.Index).Logger()

	payload, err := tl.EncodeRange(ctx, rng.StartMs+seg.StartMs, rng.StartMs+seg.EndMs, d.opts.Format)
	if err != nil {
		return "", failure.Wrap(failure.ErrIO, fmt.Sprintf("encode segment %d", seg.Index), err)
	}
	defer payload.Release()
	payload.Filename = fmt.Sprintf("segment-%03d.%s", seg.Index, payload.Format)

	start := time.Now()
	text, err := d.svc.Transcribe(ctx, transcribe.Request{
		Audio:    payload.Bytes(),
		Filename: payload.Filename,
		Prompt:   d.opts.Prompt,
	})
	took := time.Since(start)
	d.metrics.ObserveRequest(took, payload.Len(), time.Duration(seg.DurationMs())*time.Millisecond, err)
	if err != nil {
		return "", asServiceError(err, fmt.Sprintf("segment %d [%dms-%dms]", seg.Index, seg.StartMs, seg.EndMs))
	}

	log.Debug().
		Int64("start_ms", seg.StartMs).
		Int64("end_ms", seg.EndMs).
		Int("bytes", payload.Len()).
		Int("chars", len(text)).
		Int64("took_ms", took.Milliseconds()).
		Msg("segment transcribed")
	return text, nil
}

func asServiceError(err error, op string) error {
	if errors.Is(err, failure.ErrService) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return failure.Wrap(failure.ErrService, op, err)
}
