package dlprobe

// EventType identifies the kind of a measurement event.
type EventType string

const (
	// EventSample carries one sampling window's measurement.
	EventSample EventType = "sample"
	// EventSummary carries the final aggregate; exactly one per session.
	EventSummary EventType = "summary"
	// EventError carries a transport or protocol failure.
	EventError EventType = "error"
)

// Reason explains why a session's measurement ended.
type Reason string

const (
	// ReasonConverged: adaptive mode detected a stable average bitrate.
	ReasonConverged Reason = "converged"
	// ReasonDurationCap: the configured or maximum duration elapsed.
	ReasonDurationCap Reason = "duration_cap"
	// ReasonCancelled: Stop was observed by the measurement loop.
	ReasonCancelled Reason = "cancelled"
	// ReasonError: the transport failed.
	ReasonError Reason = "error"
)

// Sample is one sampling window's throughput measurement.
type Sample struct {
	// Window is the zero-based window index.
	Window uint64 `json:"window"`
	// ElapsedMs is milliseconds since the measurement started.
	ElapsedMs uint64 `json:"elapsed_ms"`
	// WindowBytes is the payload received inside this window.
	WindowBytes uint64 `json:"window_bytes"`
	// TotalBytes is the cumulative payload received.
	TotalBytes uint64 `json:"total_bytes"`
	// InstantBps is the window throughput in bits per second.
	InstantBps float64 `json:"instant_bps"`
	// AverageBps is the cumulative throughput in bits per second.
	AverageBps float64 `json:"average_bps"`
}

// Summary is the final aggregate of a session.
type Summary struct {
	// TotalBytes is the payload received over the whole test.
	TotalBytes uint64 `json:"total_bytes"`
	// DurationMs is the wall-clock test duration in milliseconds.
	DurationMs uint64 `json:"duration_ms"`
	// FinalBps is the overall throughput in bits per second.
	FinalBps float64 `json:"final_bps"`
	// Reason tells why the test ended.
	Reason Reason `json:"reason"`
}

// Failure describes an in-session error surfaced through the stream.
type Failure struct {
	// Message is the failure description.
	Message string `json:"message"`
}

// Event is one item in a session's event stream. Exactly one of Sample,
// Summary, or Failure is set, matching Type.
type Event struct {
	// Seq increases monotonically within a session, starting at 1.
	Seq uint64 `json:"seq"`
	// TS is the emission time in Unix milliseconds.
	TS int64 `json:"ts"`
	// Session identifies the session that produced the event.
	Session string `json:"session"`
	// Type tags the payload.
	Type EventType `json:"type"`

	Sample  *Sample  `json:"sample,omitempty"`
	Summary *Summary `json:"summary,omitempty"`
	Failure *Failure `json:"error,omitempty"`
}
