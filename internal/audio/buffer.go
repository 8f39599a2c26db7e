package audio

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// Format is an upload container format.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
	FormatOGG  Format = "ogg"
)

// ParseFormat validates a container name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatWAV, FormatMP3, FormatFLAC, FormatOGG:
		return f, nil
	default:
		return "", errors.New("unsupported payload format: " + s)
	}
}

// FormatOf guesses the container from a file name's extension.
func FormatOf(name string) Format {
	return Format(strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")))
}

// Payload is an encoded audio container held in a pooled buffer.
// Callers must Release it once the bytes are no longer needed.
type Payload struct {
	Filename string
	Format   Format

	buf      *bytebufferpool.ByteBuffer
	released atomic.Bool
}

func newPayload(buf *bytebufferpool.ByteBuffer, filename string, format Format) *Payload {
	return &Payload{Filename: filename, Format: format, buf: buf}
}

// NewPayload copies data into a pooled buffer.
func NewPayload(data []byte, filename string, format Format) *Payload {
	buf := bytebufferpool.Get()
	buf.Write(data)
	return newPayload(buf, filename, format)
}

// Bytes returns the encoded container. The slice is invalid after Release.
func (p *Payload) Bytes() []byte {
	if p.released.Load() {
		return nil
	}
	return p.buf.B
}

// Len returns the payload size in bytes.
func (p *Payload) Len() int { return len(p.Bytes()) }

// Release returns the buffer to the pool. Safe to call more than once.
func (p *Payload) Release() {
	if p.released.CompareAndSwap(false, true) {
		bytebufferpool.Put(p.buf)
		p.buf = nil
	}
}

// Released reports whether Release has been called.
func (p *Payload) Released() bool { return p.released.Load() }

// seekBuffer adapts a pooled buffer to io.WriteSeeker for the WAV encoder,
// which rewrites header sizes after the samples are written.
type seekBuffer struct {
	buf *bytebufferpool.ByteBuffer
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf.B) {
		s.buf.B = append(s.buf.B, make([]byte, end-len(s.buf.B))...)
	}
	copy(s.buf.B[s.pos:], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(s.pos) + offset
	case io.SeekEnd:
		abs = int64(len(s.buf.B)) + offset
	default:
		return 0, errors.New("seek: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("seek: negative position")
	}
	s.pos = int(abs)
	return abs, nil
}
