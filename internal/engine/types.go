// Package engine drives the download read/measure loop: it partitions
// elapsed time into fixed sampling windows, computes per-window and
// cumulative throughput, and decides when the test ends.
package engine

import "time"

// Timing and convergence constants. These are engine-fixed: the boundary
// interface does not expose them.
const (
	// Interval is the wall-clock sampling window length.
	Interval = 250 * time.Millisecond

	// FixedDuration is the default fixed-mode test length.
	FixedDuration = 10 * time.Second

	// MaxDuration is the hard safety cap in adaptive mode.
	MaxDuration = 30 * time.Second

	// MinWindows is the adaptive warm-up before convergence is considered.
	MinWindows = 4

	// ChangeWindow is how many recent average-bitrate samples the relative
	// change is computed over.
	ChangeWindow = 4

	// StableWindows is how many consecutive windows must stay below Epsilon
	// before the test is declared converged.
	StableWindows = 3

	// Epsilon is the relative-change tolerance for convergence.
	Epsilon = 0.05
)

// Reason explains why a test ended.
type Reason int

const (
	// ReasonConverged: adaptive mode detected a stable average bitrate.
	ReasonConverged Reason = iota
	// ReasonDurationCap: the configured or maximum duration elapsed.
	ReasonDurationCap
	// ReasonCancelled: a stop request was observed.
	ReasonCancelled
	// ReasonError: the transport failed mid-stream.
	ReasonError
)

var reasonNames = map[Reason]string{
	ReasonConverged:   "converged",
	ReasonDurationCap: "duration_cap",
	ReasonCancelled:   "cancelled",
	ReasonError:       "error",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return "unknown"
}

// Sample is one sampling window's measurement.
type Sample struct {
	// Window is the zero-based window index.
	Window uint64
	// ElapsedMs is milliseconds since the test started.
	ElapsedMs uint64
	// WindowBytes is the payload received inside this window.
	WindowBytes uint64
	// TotalBytes is the cumulative payload received.
	TotalBytes uint64
	// InstantBps is the window throughput in bits per second.
	InstantBps float64
	// AverageBps is the cumulative throughput in bits per second.
	AverageBps float64
}

// Summary aggregates a completed test.
type Summary struct {
	TotalBytes uint64
	DurationMs uint64
	FinalBps   float64
	Reason     Reason
}
