package dlprobe

import (
	"errors"
	"net"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/NodePath81/dlprobe/internal/server"
)

func startTestServer(t *testing.T, cfg server.Config) (string, string) {
	t.Helper()
	ts := httptest.NewServer(server.NewHandler(cfg))
	t.Cleanup(ts.Close)
	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u.Hostname(), u.Port()
}

func drain(t *testing.T, s *Session) []Event {
	t.Helper()
	var events []Event
	for {
		ev, ok := s.NextEvent()
		if !ok {
			return events
		}
		events = append(events, ev)
	}
}

func checkStreamShape(t *testing.T, events []Event) *Summary {
	t.Helper()
	if len(events) == 0 {
		t.Fatalf("empty event stream")
	}
	var lastSeq uint64
	for i, ev := range events {
		if ev.Seq <= lastSeq {
			t.Fatalf("event %d: seq %d not monotonic after %d", i, ev.Seq, lastSeq)
		}
		lastSeq = ev.Seq
		if ev.TS == 0 {
			t.Fatalf("event %d: missing timestamp", i)
		}
		if ev.Session == "" {
			t.Fatalf("event %d: missing session id", i)
		}
	}
	var summaries int
	for _, ev := range events {
		if ev.Type == EventSummary {
			summaries++
		}
	}
	if summaries != 1 {
		t.Fatalf("expected exactly one summary, got %d", summaries)
	}
	last := events[len(events)-1]
	if last.Type != EventSummary || last.Summary == nil {
		t.Fatalf("stream must end with the summary, ended with %+v", last)
	}
	return last.Summary
}

func TestSessionFixedModeDrain(t *testing.T) {
	host, port := startTestServer(t, server.Config{MessageSize: 2048})

	s := NewSession(nil)
	err := s.Start(Config{
		Hostname:   host,
		Port:       port,
		DisableTLS: true,
		Duration:   time.Second,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	events := drain(t, s)
	sum := checkStreamShape(t, events)
	if sum.Reason != ReasonDurationCap {
		t.Fatalf("expected duration_cap, got %v", sum.Reason)
	}
	if sum.TotalBytes == 0 {
		t.Fatalf("expected payload bytes")
	}

	var samples int
	for _, ev := range events {
		if ev.Type == EventSample {
			if ev.Sample == nil {
				t.Fatalf("sample event without payload")
			}
			samples++
		}
	}
	// One second at 250 ms windows: floor(D/I) = 4, allow boundary slack.
	if samples < 3 || samples > 5 {
		t.Fatalf("expected ~4 samples, got %d", samples)
	}

	if st := s.State(); st != StateCompleted {
		t.Fatalf("expected completed, got %v", st)
	}
	// The terminal marker is idempotent.
	if _, ok := s.NextEvent(); ok {
		t.Fatalf("events after the terminal marker")
	}
	if _, ok := s.NextEvent(); ok {
		t.Fatalf("terminal marker observed more than once")
	}
}

func TestSessionAdaptiveConverges(t *testing.T) {
	// A paced server yields a stable average quickly.
	host, port := startTestServer(t, server.Config{MessageSize: 4096, RateBps: 16e6, Duration: 45 * time.Second})

	s := NewSession(nil)
	err := s.Start(Config{
		Hostname:   host,
		Port:       port,
		DisableTLS: true,
		Adaptive:   true,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	events := drain(t, s)
	sum := checkStreamShape(t, events)
	if sum.Reason != ReasonConverged {
		t.Fatalf("expected converged, got %v", sum.Reason)
	}
	if sum.DurationMs >= 30_000 {
		t.Fatalf("convergence must beat the safety cap, took %dms", sum.DurationMs)
	}
}

func TestSessionRejectsConcurrentStart(t *testing.T) {
	host, port := startTestServer(t, server.Config{MessageSize: 2048})

	s := NewSession(nil)
	cfg := Config{Hostname: host, Port: port, DisableTLS: true, Duration: 3 * time.Second}
	if err := s.Start(cfg); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Wait until the first event proves the session is live.
	if _, ok := s.NextEvent(); !ok {
		t.Fatalf("stream ended before any event")
	}
	if err := s.Start(cfg); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	s.Stop()
	events := drain(t, s)
	if sum := events[len(events)-1].Summary; sum == nil || sum.Reason != ReasonCancelled {
		t.Fatalf("expected a cancelled summary, got %+v", events[len(events)-1])
	}
}

func TestSessionStopCancelsWithinGracePeriod(t *testing.T) {
	host, port := startTestServer(t, server.Config{MessageSize: 2048, Duration: 30 * time.Second})

	s := NewSession(nil)
	err := s.Start(Config{Hostname: host, Port: port, DisableTLS: true, Duration: 25 * time.Second})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, ok := s.NextEvent(); !ok {
		t.Fatalf("stream ended before any event")
	}
	start := time.Now()
	s.Stop()
	s.Stop() // idempotent
	events := drain(t, s)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("stop took too long: %v", elapsed)
	}
	sum := events[len(events)-1].Summary
	if sum == nil || sum.Reason != ReasonCancelled {
		t.Fatalf("expected cancelled, got %+v", events[len(events)-1])
	}
	if st := s.State(); st != StateCompleted {
		t.Fatalf("expected completed after cancel, got %v", st)
	}
	s.Stop() // safe after completion
}

func TestSessionConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()

	s := NewSession(nil)
	if err := s.Start(Config{Hostname: "127.0.0.1", Port: port, DisableTLS: true}); err != nil {
		t.Fatalf("start: %v", err)
	}
	events := drain(t, s)
	if len(events) != 2 {
		t.Fatalf("expected error + summary, got %d events", len(events))
	}
	if events[0].Type != EventError || events[0].Failure == nil {
		t.Fatalf("expected an error event first, got %+v", events[0])
	}
	sum := checkStreamShape(t, events)
	if sum.Reason != ReasonError {
		t.Fatalf("expected error reason, got %v", sum.Reason)
	}
	if st := s.State(); st != StateFailed {
		t.Fatalf("expected failed, got %v", st)
	}
}

func TestSessionInvalidConfig(t *testing.T) {
	s := NewSession(nil)
	cases := []Config{
		{Port: "443"},
		{Hostname: "example.org", Port: "not-a-port"},
		{Hostname: "example.org", Port: "99999"},
	}
	for i, cfg := range cases {
		if err := s.Start(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
	// Boundary failures produce no events and leave the session idle.
	if st := s.State(); st != StateIdle {
		t.Fatalf("expected idle, got %v", st)
	}
	if _, ok := s.NextEvent(); ok {
		t.Fatalf("no events expected after rejected starts")
	}
}

func TestSessionRestartAfterCompletion(t *testing.T) {
	host, port := startTestServer(t, server.Config{MessageSize: 2048})

	s := NewSession(nil)
	cfg := Config{Hostname: host, Port: port, DisableTLS: true, Duration: time.Second}
	if err := s.Start(cfg); err != nil {
		t.Fatalf("first start: %v", err)
	}
	first := drain(t, s)
	firstID := first[0].Session

	if err := s.Start(cfg); err != nil {
		t.Fatalf("restart: %v", err)
	}
	second := drain(t, s)
	checkStreamShape(t, second)
	if second[0].Session == firstID {
		t.Fatalf("restart must produce a fresh session id")
	}
	if second[0].Seq != 1 {
		t.Fatalf("restart must reset the sequence, got %d", second[0].Seq)
	}
}
