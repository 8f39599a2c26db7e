package batch

import (
	"time"

	"github.com/ruyvieira/openai-whisper/internal/failure"
)

// Range is the effective window of the timeline, in absolute milliseconds.
type Range struct {
	StartMs int64
	EndMs   int64
	Clamped bool // limit exceeded the remaining audio and was cut back
}

// DurationMs returns the window length.
func (r Range) DurationMs() int64 { return r.EndMs - r.StartMs }

// ResolveRange applies offset and limit to a timeline of totalMs.
// A zero limit means "to the end". An offset at or past the end is a
// configuration error; a limit past the end is clamped.
func ResolveRange(totalMs int64, offset, limit time.Duration) (Range, error) {
	if offset < 0 {
		return Range{}, failure.Configf("offset must not be negative, got %s", offset)
	}
	if limit < 0 {
		return Range{}, failure.Configf("limit must not be negative, got %s", limit)
	}
	offsetMs := offset.Milliseconds()
	if offsetMs >= totalMs {
		return Range{}, failure.Configf("offset %s exceeds audio length %s",
			offset, time.Duration(totalMs)*time.Millisecond)
	}

	r := Range{StartMs: offsetMs, EndMs: totalMs}
	if limit == 0 {
		return r, nil
	}
	limitMs := limit.Milliseconds()
	if limitMs > r.DurationMs() {
		r.Clamped = true
		return r, nil
	}
	r.EndMs = r.StartMs + limitMs
	return r, nil
}
