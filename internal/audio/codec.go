package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// decodeRate is the sample rate ffmpeg resamples to. Whisper models work at
// 16 kHz mono, so nothing is lost by decoding at that rate.
const decodeRate = 16000

// Voice cleanup applied when preprocessing is enabled: band-pass to the
// speech range, then loudness normalization.
const preprocessFilter = "highpass=f=300,lowpass=f=3000,loudnorm"

// Source is an input recording, either a local path or bytes already in
// memory (for example downloaded from object storage).
type Source struct {
	Path string
	Data []byte
	Name string
}

// commandRunner executes an external binary. stdin may be nil.
type commandRunner interface {
	Run(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Codec decodes inputs into timelines and encodes timelines into upload
// containers, using ffmpeg for everything but 16-bit WAV.
type Codec struct {
	ffmpegPath string
	preprocess bool
	cmd        commandRunner

	lookOnce  sync.Once
	available bool
}

// NewCodec creates a Codec. preprocess forces inputs through ffmpeg with a
// voice band-pass and loudness normalization.
func NewCodec(ffmpegPath string, preprocess bool) *Codec {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Codec{ffmpegPath: ffmpegPath, preprocess: preprocess, cmd: execRunner{}}
}

// CheckFFmpeg reports whether the ffmpeg binary is in PATH. The lookup runs once.
func (c *Codec) CheckFFmpeg() bool {
	c.lookOnce.Do(func() {
		_, err := exec.LookPath(c.ffmpegPath)
		c.available = err == nil
	})
	return c.available
}

// Decode loads src into a timeline. 16-bit PCM WAV is read in-process;
// anything else is decoded by ffmpeg to mono 16 kHz.
func (c *Codec) Decode(ctx context.Context, src Source) (*Timeline, error) {
	if !c.preprocess {
		tl, err := c.decodeWAV(src)
		if err == nil {
			return tl, nil
		}
		if !errors.Is(err, errNotPCM16) {
			return nil, err
		}
	}
	return c.decodeFFmpeg(ctx, src)
}

var errNotPCM16 = errors.New("not a 16-bit PCM wav")

func (c *Codec) decodeWAV(src Source) (*Timeline, error) {
	var r io.ReadSeeker
	if src.Path != "" {
		f, err := os.Open(src.Path)
		if err != nil {
			return nil, fmt.Errorf("open audio file: %w", err)
		}
		defer f.Close()
		r = f
	} else {
		r = bytes.NewReader(src.Data)
	}

	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errNotPCM16
	}
	if d.BitDepth != 16 || d.WavAudioFormat != 1 {
		return nil, errNotPCM16
	}
	channels := int(d.NumChans)
	rate := int(d.SampleRate)

	var samples []int16
	block := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:   make([]int, encodeBlock),
	}
	for {
		n, err := d.PCMBuffer(block)
		for _, s := range block.Data[:n] {
			samples = append(samples, int16(s))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode wav: %w", err)
		}
		if n == 0 {
			break
		}
	}
	// Drop a trailing partial frame from a truncated file.
	samples = samples[:len(samples)-len(samples)%channels]
	return NewTimeline(samples, rate, channels, c)
}

func (c *Codec) decodeFFmpeg(ctx context.Context, src Source) (*Timeline, error) {
	args := []string{"-hide_banner", "-loglevel", "error"}
	var stdin io.Reader
	if src.Path != "" {
		args = append(args, "-nostdin", "-i", src.Path)
	} else {
		args = append(args, "-i", "pipe:0")
		stdin = bytes.NewReader(src.Data)
	}
	args = append(args, "-vn", "-sn", "-dn")
	if c.preprocess {
		args = append(args, "-af", preprocessFilter)
	}
	args = append(args,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", decodeRate),
		"-f", "s16le",
		"pipe:1",
	)

	var out bytes.Buffer
	if err := c.cmd.Run(ctx, c.ffmpegPath, args, stdin, &out); err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w", src.label(), err)
	}
	raw := out.Bytes()
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return NewTimeline(samples, decodeRate, 1, c)
}

// transcode converts a WAV container into format, writing to out.
func (c *Codec) transcode(ctx context.Context, wavData []byte, format Format, out io.Writer) error {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", "wav", "-i", "pipe:0", "-vn"}
	switch format {
	case FormatMP3:
		args = append(args, "-c:a", "libmp3lame", "-q:a", "4", "-f", "mp3")
	case FormatFLAC:
		args = append(args, "-c:a", "flac", "-f", "flac")
	case FormatOGG:
		args = append(args, "-c:a", "libopus", "-b:a", "32k", "-f", "ogg")
	default:
		return fmt.Errorf("encode: unsupported format %q", format)
	}
	args = append(args, "pipe:1")
	if err := c.cmd.Run(ctx, c.ffmpegPath, args, bytes.NewReader(wavData), out); err != nil {
		return fmt.Errorf("ffmpeg encode %s: %w", format, err)
	}
	return nil
}

func (s Source) label() string {
	switch {
	case s.Path != "":
		return s.Path
	case s.Name != "":
		return s.Name
	default:
		return "input"
	}
}
