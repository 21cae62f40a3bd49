package engine

import (
	"context"
	"errors"
	"io"
	"time"
)

// Stream is the byte source the sampler consumes. Read returns the payload
// size of the next message and must be bounded in time so a stalled server
// surfaces as an error.
type Stream interface {
	Read() (int, error)
	Close() error
}

// Config selects the test mode and, for tests, overrides engine timing.
type Config struct {
	// Adaptive enables convergence-based early termination.
	Adaptive bool
	// Duration is the fixed-mode test length (0 = FixedDuration).
	Duration time.Duration
	// Interval overrides the sampling window length (0 = Interval).
	// Production code leaves it zero.
	Interval time.Duration
}

// Run consumes the stream until the controller ends the test, the context
// is cancelled, the server closes the stream, or a read fails. One Sample
// is emitted per elapsed sampling window. The returned error is non-nil
// exactly when the summary reason is ReasonError.
func Run(ctx context.Context, stream Stream, cfg Config, emit func(Sample)) (Summary, error) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = Interval
	}
	ctrl := NewController(cfg.Adaptive, cfg.Duration)

	start := time.Now()
	windowStart := start
	var window uint64
	var windowBytes, totalBytes uint64

	finish := func(reason Reason) Summary {
		elapsed := time.Since(start)
		if elapsed <= 0 {
			elapsed = time.Millisecond
		}
		return Summary{
			TotalBytes: totalBytes,
			DurationMs: uint64(elapsed.Milliseconds()),
			FinalBps:   float64(totalBytes*8) / elapsed.Seconds(),
			Reason:     reason,
		}
	}

	for {
		select {
		case <-ctx.Done():
			return finish(ReasonCancelled), nil
		default:
		}

		n, err := stream.Read()
		if err != nil {
			if ctx.Err() != nil {
				return finish(ReasonCancelled), nil
			}
			if errors.Is(err, io.EOF) {
				// The server enforces its own duration cap and closed
				// the stream first.
				return finish(ReasonDurationCap), nil
			}
			return finish(ReasonError), err
		}
		windowBytes += uint64(n)
		totalBytes += uint64(n)

		now := time.Now()
		windowDur := now.Sub(windowStart)
		if windowDur < interval {
			continue
		}
		elapsed := now.Sub(start)
		sample := Sample{
			Window:      window,
			ElapsedMs:   uint64(elapsed.Milliseconds()),
			WindowBytes: windowBytes,
			TotalBytes:  totalBytes,
			InstantBps:  float64(windowBytes*8) / windowDur.Seconds(),
			AverageBps:  float64(totalBytes*8) / elapsed.Seconds(),
		}
		emit(sample)
		window++
		windowBytes = 0
		windowStart = now

		if reason, stop := ctrl.Observe(sample); stop {
			return finish(reason), nil
		}
	}
}
