package batch

import "time"

// Segment is one upload, in milliseconds relative to the effective range.
type Segment struct {
	Index   int
	StartMs int64
	EndMs   int64
}

// DurationMs returns the segment length.
func (s Segment) DurationMs() int64 { return s.EndMs - s.StartMs }

// Plan splits durationMs into segments of batchSize. A zero batchSize
// yields a single segment covering everything.
//
// The count is durationMs/batchMs + 1, so an exact multiple produces a
// trailing zero-length segment. DropShort removes it.
func Plan(durationMs int64, batchSize time.Duration) []Segment {
	batchMs := batchSize.Milliseconds()
	if batchMs <= 0 {
		return []Segment{{Index: 0, StartMs: 0, EndMs: durationMs}}
	}

	count := durationMs/batchMs + 1
	plan := make([]Segment, 0, count)
	for i := int64(0); i < count; i++ {
		start := i * batchMs
		plan = append(plan, Segment{
			Index:   int(i),
			StartMs: start,
			EndMs:   min(start+batchMs, durationMs),
		})
	}
	return plan
}

// DropShort removes segments shorter than minLen. The plan is never
// emptied: a single-segment plan is returned as is. A zero minLen keeps
// every segment, including empty ones.
func DropShort(plan []Segment, minLen time.Duration) []Segment {
	if len(plan) <= 1 || minLen <= 0 {
		return plan
	}
	minMs := minLen.Milliseconds()
	kept := make([]Segment, 0, len(plan))
	for _, s := range plan {
		if s.DurationMs() >= minMs {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return plan[:1]
	}
	return kept
}
