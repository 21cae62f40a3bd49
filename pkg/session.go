package dlprobe

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NodePath81/dlprobe/internal/engine"
	"github.com/NodePath81/dlprobe/internal/transport"
)

// State is the lifecycle state of a Session.
type State int

const (
	// StateIdle: no measurement has been started yet.
	StateIdle State = iota
	// StateConnecting: the transport handshake is in progress.
	StateConnecting
	// StateMeasuring: the sampling loop is running.
	StateMeasuring
	// StateStopping: Stop was requested and the producer has not exited.
	StateStopping
	// StateCompleted: the stream terminated normally.
	StateCompleted
	// StateFailed: the stream terminated on a transport/protocol error.
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:       "idle",
	StateConnecting: "connecting",
	StateMeasuring:  "measuring",
	StateStopping:   "stopping",
	StateCompleted:  "completed",
	StateFailed:     "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Session owns one download measurement at a time: it validates the
// configuration, runs the measurement loop in a producer goroutine, and
// bridges it to the caller through a blocking event queue.
//
// Whatever the exit path (completion, error, cancellation), the stream
// carries exactly one summary event followed by the terminal marker, so
// consumers never block forever.
type Session struct {
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	queue  *EventQueue
	id     string

	// seq is touched only by the producer goroutine after Start resets it.
	seq uint64
}

// NewSession creates an idle session. logger may be nil.
func NewSession(logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{logger: logger}
}

// Start validates cfg, transitions to Connecting, and spawns the
// measurement producer. It never blocks. It fails with ErrAlreadyRunning
// while a previous run is still active, and with ErrInvalidConfig for
// malformed input. A fresh event queue is allocated per run.
func (s *Session) Start(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateConnecting, StateMeasuring, StateStopping:
		return ErrAlreadyRunning
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.queue = NewEventQueue()
	s.id = uuid.New().String()
	s.seq = 0
	s.state = StateConnecting
	s.logger.Info("session starting", "session", s.id,
		"host", cfg.Hostname, "port", cfg.Port, "adaptive", cfg.Adaptive)
	go s.run(ctx, cfg, s.queue, s.id)
	return nil
}

// NextEvent blocks until the next event is available or the stream has
// terminated. The second value is false exactly once the terminal marker
// is reached, and on every call thereafter. Before the first Start it
// reports end-of-stream immediately.
func (s *Session) NextEvent() (Event, bool) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return Event{}, false
	}
	return q.Pop()
}

// Stop requests cooperative cancellation. It never blocks and is safe to
// call any number of times, in any state. The producer observes the request
// at its next window boundary or bounded read.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateConnecting, StateMeasuring:
		s.state = StateStopping
		s.cancel()
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the identifier of the current (or last) run.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// run is the producer goroutine: connect, sample, summarize, terminate.
func (s *Session) run(ctx context.Context, cfg Config, q *EventQueue, id string) {
	defer q.Close()

	emit := func(ev Event) {
		s.seq++
		ev.Seq = s.seq
		ev.TS = time.Now().UnixMilli()
		ev.Session = id
		q.Push(ev)
	}
	summarize := func(sum Summary) {
		emit(Event{Type: EventSummary, Summary: &sum})
	}

	opts := transport.Options{
		Hostname:      cfg.Hostname,
		Port:          cfg.Port,
		SkipTLSVerify: cfg.SkipTLSVerify,
		DisableTLS:    cfg.DisableTLS,
		Scramble:      cfg.Scramble,
		Proxy:         cfg.Proxy,
		Adaptive:      cfg.Adaptive,
		Duration:      int(cfg.Duration / time.Second),
		Logger:        s.logger,
	}
	started := time.Now()
	conn, err := transport.Connect(ctx, opts)
	if err != nil {
		if ctx.Err() != nil {
			summarize(Summary{
				DurationMs: uint64(time.Since(started).Milliseconds()),
				Reason:     ReasonCancelled,
			})
			s.setFinal(StateCompleted)
			s.logger.Info("session cancelled during connect", "session", id)
			return
		}
		emit(Event{Type: EventError, Failure: &Failure{Message: err.Error()}})
		summarize(Summary{
			DurationMs: uint64(time.Since(started).Milliseconds()),
			Reason:     ReasonError,
		})
		s.setFinal(StateFailed)
		s.logger.Warn("session connect failed", "session", id, "err", err)
		return
	}
	defer conn.Close()
	s.toMeasuring()
	s.logger.Info("session measuring", "session", id)

	sum, runErr := engine.Run(ctx, conn, engine.Config{
		Adaptive: cfg.Adaptive,
		Duration: cfg.Duration,
	}, func(smp engine.Sample) {
		emit(Event{Type: EventSample, Sample: &Sample{
			Window:      smp.Window,
			ElapsedMs:   smp.ElapsedMs,
			WindowBytes: smp.WindowBytes,
			TotalBytes:  smp.TotalBytes,
			InstantBps:  smp.InstantBps,
			AverageBps:  smp.AverageBps,
		}})
	})
	if info, err := conn.TCPInfo(); err == nil {
		s.logger.Debug("tcp info", "session", id,
			"rtt", info.RTT, "retransmits", info.Retransmits)
	}
	if runErr != nil {
		emit(Event{Type: EventError, Failure: &Failure{Message: runErr.Error()}})
	}
	summarize(Summary{
		TotalBytes: sum.TotalBytes,
		DurationMs: sum.DurationMs,
		FinalBps:   sum.FinalBps,
		Reason:     reasonFromEngine(sum.Reason),
	})
	if sum.Reason == engine.ReasonError {
		s.setFinal(StateFailed)
	} else {
		s.setFinal(StateCompleted)
	}
	s.logger.Info("session finished", "session", id,
		"reason", sum.Reason.String(), "bytes", sum.TotalBytes,
		"duration_ms", sum.DurationMs)
}

func (s *Session) toMeasuring() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnecting {
		s.state = StateMeasuring
	}
}

func (s *Session) setFinal(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func reasonFromEngine(r engine.Reason) Reason {
	switch r {
	case engine.ReasonConverged:
		return ReasonConverged
	case engine.ReasonDurationCap:
		return ReasonDurationCap
	case engine.ReasonCancelled:
		return ReasonCancelled
	default:
		return ReasonError
	}
}
