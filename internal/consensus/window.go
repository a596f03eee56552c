package consensus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// FrameSource yields captured frames. NextFrame may block; it returns io.EOF
// when the source is exhausted.
type FrameSource interface {
	NextFrame(ctx context.Context) (Frame, error)
}

// Progress is reported after every observed frame.
type Progress struct {
	Elapsed time.Duration
	Frames  int
	Labels  []string
}

// Window runs one bounded observation loop over a FrameSource.
type Window struct {
	Duration  time.Duration
	MinFrames int
	Tolerance float64
	Labeler   Labeler

	// Now defaults to time.Now.
	Now func() time.Time
	// OnFrame, if set, is called after each frame is observed.
	OnFrame func(Progress)
}

// Run observes frames until the window duration elapses or the source ends,
// then finalizes exactly once. Cancelling ctx stops the loop early and the
// counts gathered so far are finalized with Decision.Interrupted set.
// A capture error discards the partial window.
func (w *Window) Run(ctx context.Context, src FrameSource) (Decision, error) {
	now := w.Now
	if now == nil {
		now = time.Now
	}

	agg := NewAggregator()
	start := now()

	for now().Sub(start) < w.Duration {
		if ctx.Err() != nil {
			return w.interrupted(agg), nil
		}

		frame, err := src.NextFrame(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return w.interrupted(agg), nil
		}
		if err != nil {
			return Decision{Frames: agg.Frames()}, fmt.Errorf("capture frame %d: %w", agg.Frames()+1, err)
		}

		labels := frame.Labels(w.Tolerance, w.Labeler)
		if err := agg.Observe(labels); err != nil {
			return Decision{}, err
		}
		if w.OnFrame != nil {
			w.OnFrame(Progress{Elapsed: now().Sub(start), Frames: agg.Frames(), Labels: labels})
		}
	}

	return agg.Finalize(w.MinFrames), nil
}

func (w *Window) interrupted(agg *Aggregator) Decision {
	d := agg.Finalize(w.MinFrames)
	d.Interrupted = true
	return d
}
