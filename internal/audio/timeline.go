package audio

import (
	"context"
	"fmt"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/valyala/bytebufferpool"
)

// encodeBlock is the number of samples handed to the WAV encoder per write.
const encodeBlock = 1 << 16

// Timeline is decoded 16-bit PCM audio. Slices share the parent's samples.
type Timeline struct {
	samples    []int16 // interleaved
	sampleRate int
	channels   int
	codec      *Codec
}

// NewTimeline wraps interleaved PCM16 samples. A nil codec restricts
// encoding to WAV.
func NewTimeline(samples []int16, sampleRate, channels int, codec *Codec) (*Timeline, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}
	if len(samples)%channels != 0 {
		return nil, fmt.Errorf("%d samples do not divide into %d channels", len(samples), channels)
	}
	return &Timeline{samples: samples, sampleRate: sampleRate, channels: channels, codec: codec}, nil
}

// SampleRate returns frames per second.
func (t *Timeline) SampleRate() int { return t.sampleRate }

// Channels returns the channel count.
func (t *Timeline) Channels() int { return t.channels }

// Frames returns the number of sample frames.
func (t *Timeline) Frames() int64 { return int64(len(t.samples) / t.channels) }

// DurationMs returns the length in whole milliseconds.
func (t *Timeline) DurationMs() int64 {
	return t.Frames() * 1000 / int64(t.sampleRate)
}

// Slice returns the sub-range [startMs, endMs). A boundary equal to
// DurationMs maps to the last frame, so a sub-millisecond tail belongs to
// exactly one slice.
func (t *Timeline) Slice(startMs, endMs int64) (*Timeline, error) {
	total := t.DurationMs()
	if startMs < 0 || startMs > endMs || endMs > total {
		return nil, fmt.Errorf("slice [%d, %d) outside timeline of %dms", startMs, endMs, total)
	}
	from := t.frameAt(startMs)
	to := t.frameAt(endMs)
	if startMs == total {
		from = t.Frames()
	}
	if endMs == total {
		to = t.Frames()
	}
	ch := int64(t.channels)
	return &Timeline{
		samples:    t.samples[from*ch : to*ch],
		sampleRate: t.sampleRate,
		channels:   t.channels,
		codec:      t.codec,
	}, nil
}

func (t *Timeline) frameAt(ms int64) int64 {
	return ms * int64(t.sampleRate) / 1000
}

// Encode packages the timeline as a self-contained container. The caller
// owns the returned payload and must Release it.
func (t *Timeline) Encode(ctx context.Context, format Format) (*Payload, error) {
	wavBuf := bytebufferpool.Get()
	if err := t.writeWAV(wavBuf); err != nil {
		bytebufferpool.Put(wavBuf)
		return nil, err
	}
	if format == FormatWAV {
		return newPayload(wavBuf, "audio.wav", FormatWAV), nil
	}
	defer bytebufferpool.Put(wavBuf)

	if t.codec == nil {
		return nil, fmt.Errorf("encode %s: no ffmpeg codec configured", format)
	}
	out := bytebufferpool.Get()
	if err := t.codec.transcode(ctx, wavBuf.B, format, out); err != nil {
		bytebufferpool.Put(out)
		return nil, err
	}
	return newPayload(out, "audio."+string(format), format), nil
}

// EncodeRange slices and encodes in one step.
func (t *Timeline) EncodeRange(ctx context.Context, startMs, endMs int64, format Format) (*Payload, error) {
	sub, err := t.Slice(startMs, endMs)
	if err != nil {
		return nil, err
	}
	return sub.Encode(ctx, format)
}

func (t *Timeline) writeWAV(buf *bytebufferpool.ByteBuffer) error {
	enc := wav.NewEncoder(&seekBuffer{buf: buf}, t.sampleRate, 16, t.channels, 1)
	block := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: t.channels, SampleRate: t.sampleRate},
		SourceBitDepth: 16,
	}
	step := encodeBlock - encodeBlock%t.channels
	for i := 0; i < len(t.samples); i += step {
		end := min(i+step, len(t.samples))
		block.Data = block.Data[:0]
		for _, s := range t.samples[i:end] {
			block.Data = append(block.Data, int(s))
		}
		if err := enc.Write(block); err != nil {
			return fmt.Errorf("encode wav: %w", err)
		}
	}
	if len(t.samples) == 0 {
		block.Data = block.Data[:0]
		if err := enc.Write(block); err != nil {
			return fmt.Errorf("encode wav: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}
