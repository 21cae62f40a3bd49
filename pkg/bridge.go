package dlprobe

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Settings is the serialized configuration accepted by the bridge.
type Settings struct {
	// Adaptive enables convergence-based early termination.
	Adaptive bool `json:"adaptive"`
	// Hostname is the measurement server host (required).
	Hostname string `json:"hostname"`
	// Port is the server port as a numeric string ("" = scheme default).
	Port string `json:"port"`
	// SkipTLSVerify disables certificate validation.
	SkipTLSVerify bool `json:"skip_tls_verify"`
	// DisableTLS connects over plain ws://.
	DisableTLS bool `json:"disable_tls"`
	// Duration overrides the fixed-mode test length, in seconds.
	Duration int `json:"duration"`
}

// Status codes returned by StartDownload.
const (
	// StatusOK: the session was accepted and is running.
	StatusOK = 0
	// StatusAlreadyRunning: a session is still active.
	StatusAlreadyRunning = 2
	// StatusBadSettings: the settings text is not valid JSON.
	StatusBadSettings = 3
	// StatusBadConfig: the settings decode but fail validation.
	StatusBadConfig = 4
)

// Bridge is the embedding-oriented boundary around a single Session: it
// takes serialized settings, hands out serialized events with explicit
// transfer of ownership, and keeps the "one active session" check and the
// stop dispatch atomic with respect to each other.
type Bridge struct {
	logger *slog.Logger

	mu          sync.Mutex
	session     *Session
	outstanding map[*string]struct{}
}

// NewBridge creates a bridge with no active session. logger may be nil.
func NewBridge(logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bridge{
		logger:      logger,
		session:     NewSession(logger),
		outstanding: make(map[*string]struct{}),
	}
}

// StartDownload parses settingsJSON and starts a measurement session.
// It returns StatusOK on success and a non-zero status otherwise; boundary
// failures never produce events.
func (b *Bridge) StartDownload(settingsJSON string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var settings Settings
	if err := json.Unmarshal([]byte(settingsJSON), &settings); err != nil {
		b.logger.Warn("rejecting malformed settings", "err", err)
		return StatusBadSettings
	}
	err := b.session.Start(Config{
		Adaptive:      settings.Adaptive,
		Hostname:      settings.Hostname,
		Port:          settings.Port,
		SkipTLSVerify: settings.SkipTLSVerify,
		DisableTLS:    settings.DisableTLS,
		Duration:      time.Duration(settings.Duration) * time.Second,
	})
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrAlreadyRunning):
		return StatusAlreadyRunning
	default:
		b.logger.Warn("rejecting invalid configuration", "err", err)
		return StatusBadConfig
	}
}

// NextEvent blocks until an event is available or the stream has ended.
// It returns a serialized event whose ownership transfers to the caller,
// who must release it exactly once via FreeEvent; nil marks end-of-stream
// and is returned on every call thereafter.
func (b *Bridge) NextEvent() *string {
	b.mu.Lock()
	session := b.session
	b.mu.Unlock()

	ev, ok := session.NextEvent()
	if !ok {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		// Should not happen for engine-built events; end the stream
		// instead of handing the caller garbage.
		b.logger.Error("dropping unserializable event", "err", err)
		session.Stop()
		for {
			if _, more := session.NextEvent(); !more {
				return nil
			}
		}
	}
	text := string(data)
	b.mu.Lock()
	b.outstanding[&text] = struct{}{}
	b.mu.Unlock()
	return &text
}

// Stop requests cooperative cancellation of the active session. It returns
// immediately and is safe to call at any time.
func (b *Bridge) Stop() {
	b.mu.Lock()
	session := b.session
	b.mu.Unlock()
	session.Stop()
}

// FreeEvent releases a value previously returned by NextEvent. Each value
// must be released exactly once; releasing nil, a foreign pointer, or an
// already-released value returns ErrAlreadyFreed.
func (b *Bridge) FreeEvent(ev *string) error {
	if ev == nil {
		return ErrAlreadyFreed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.outstanding[ev]; !ok {
		return ErrAlreadyFreed
	}
	delete(b.outstanding, ev)
	return nil
}

// Outstanding reports how many returned events have not been released yet.
func (b *Bridge) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.outstanding)
}
