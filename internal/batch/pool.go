package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// submitConcurrent uploads up to Concurrency segments at a time. Results
// are stored by plan position, so assembly order never depends on
// completion order. The first failure cancels the shared context and no
// further segments are started.
func (d *Driver) submitConcurrent(ctx context.Context, tl Timeline, rng Range, plan []Segment) ([]string, error) {
	results := make([]string, len(plan))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)

	for i, seg := range plan {
		if gctx.Err() != nil {
			break
		}
		i, seg := i, seg
		g.Go(func() error {
			text, err := d.submitSegment(gctx, tl, rng, seg)
			if err != nil {
				return err
			}
			results[i] = text
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Parent cancellation can stop scheduling without any segment failing.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
