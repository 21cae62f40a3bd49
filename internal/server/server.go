// Package server implements a minimal ndt7 download server: it upgrades
// the WebSocket, then streams binary payload messages interleaved with
// periodic server-side measurements until the requested duration elapses.
// It exists for loopback testing and for running a local endpoint.
package server

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/NodePath81/dlprobe/internal/transport"
)

const (
	defaultMessageSize = 1 << 13
	defaultDuration    = 10 * time.Second
	maxDuration        = 60 * time.Second
	measureInterval    = 250 * time.Millisecond
	writeTimeout       = 5 * time.Second
)

// Config controls the server.
type Config struct {
	// Addr is the listen address for Run (for example ":4443").
	Addr string
	// RateBps paces the byte stream in bits per second (0 = unpaced).
	RateBps float64
	// MessageSize is the binary message payload size in bytes.
	MessageSize int
	// Duration is the default test length when the client sends none.
	Duration time.Duration
	// Logger receives request logs. May be nil.
	Logger *slog.Logger
}

// Handler serves the ndt7 download endpoint.
type Handler struct {
	cfg      Config
	upgrader websocket.Upgrader
	payload  []byte
}

// NewHandler prepares a download handler with a random payload buffer.
func NewHandler(cfg Config) *Handler {
	if cfg.MessageSize <= 0 {
		cfg.MessageSize = defaultMessageSize
	}
	if cfg.Duration <= 0 {
		cfg.Duration = defaultDuration
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	payload := make([]byte, cfg.MessageSize)
	_, _ = rand.Read(payload)
	return &Handler{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin:  func(r *http.Request) bool { return true },
			Subprotocols: []string{transport.SecWebSocketProtocol},
		},
		payload: payload,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !offersSubprotocol(r) {
		http.Error(w, "missing ndt7 subprotocol", http.StatusBadRequest)
		return
	}
	duration := h.cfg.Duration
	if raw := r.URL.Query().Get("duration"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs < 1 {
			http.Error(w, "invalid duration", http.StatusBadRequest)
			return
		}
		duration = time.Duration(secs) * time.Second
		if duration > maxDuration {
			duration = maxDuration
		}
	}
	adaptive := r.URL.Query().Get("adaptive") == "true"

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	h.cfg.Logger.Info("download started", "remote", r.RemoteAddr,
		"duration", duration, "adaptive", adaptive)

	var limiter *rate.Limiter
	if h.cfg.RateBps > 0 {
		bytesPerSec := h.cfg.RateBps / 8
		limiter = rate.NewLimiter(rate.Limit(bytesPerSec), len(h.payload)*2)
	}

	start := time.Now()
	lastMeasure := start
	var sent int64
	for time.Since(start) < duration {
		if limiter != nil {
			if err := limiter.WaitN(r.Context(), len(h.payload)); err != nil {
				return
			}
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, h.payload); err != nil {
			h.cfg.Logger.Debug("client went away", "err", err)
			return
		}
		sent += int64(len(h.payload))

		if now := time.Now(); now.Sub(lastMeasure) >= measureInterval {
			lastMeasure = now
			meas, _ := json.Marshal(transport.ServerMeasurement{
				Elapsed:  now.Sub(start).Seconds(),
				NumBytes: sent,
			})
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, meas); err != nil {
				return
			}
		}
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeTimeout))
	// Give the client a moment to finish the close handshake.
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.cfg.Logger.Info("download finished", "remote", r.RemoteAddr, "bytes", sent)
}

func offersSubprotocol(r *http.Request) bool {
	for _, proto := range websocket.Subprotocols(r) {
		if proto == transport.SecWebSocketProtocol {
			return true
		}
	}
	return false
}

// Run serves the download endpoint on cfg.Addr until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	mux := http.NewServeMux()
	mux.Handle(transport.DownloadPath, NewHandler(cfg))
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
