package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NodePath81/dlprobe/internal/transport"
)

func wsURL(t *testing.T, httpURL, query string) string {
	t.Helper()
	u := "ws" + strings.TrimPrefix(httpURL, "http") + transport.DownloadPath
	if query != "" {
		u += "?" + query
	}
	return u
}

func TestRejectsMissingSubprotocol(t *testing.T) {
	ts := httptest.NewServer(NewHandler(Config{}))
	defer ts.Close()

	dialer := websocket.Dialer{}
	_, resp, err := dialer.Dial(wsURL(t, ts.URL, ""), nil)
	if err == nil {
		t.Fatalf("expected the upgrade to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %+v", resp)
	}
}

func TestRejectsInvalidDuration(t *testing.T) {
	ts := httptest.NewServer(NewHandler(Config{}))
	defer ts.Close()

	headers := http.Header{}
	headers.Add("Sec-WebSocket-Protocol", transport.SecWebSocketProtocol)
	dialer := websocket.Dialer{}
	_, resp, err := dialer.Dial(wsURL(t, ts.URL, "duration=zero"), headers)
	if err == nil {
		t.Fatalf("expected the upgrade to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %+v", resp)
	}
}

func TestStreamsPayloadAndClosesNormally(t *testing.T) {
	ts := httptest.NewServer(NewHandler(Config{MessageSize: 2048}))
	defer ts.Close()

	headers := http.Header{}
	headers.Add("Sec-WebSocket-Protocol", transport.SecWebSocketProtocol)
	dialer := websocket.Dialer{}
	conn, _, err := dialer.Dial(wsURL(t, ts.URL, "duration=1"), headers)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var binary, text int64
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		mtype, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("expected a normal close, got %v", err)
			}
			break
		}
		switch mtype {
		case websocket.BinaryMessage:
			binary += int64(len(data))
		case websocket.TextMessage:
			text++
		}
	}
	if binary == 0 {
		t.Fatalf("expected payload bytes")
	}
	if text == 0 {
		t.Fatalf("expected at least one server measurement")
	}
}

func TestPacedStreamRespectsRate(t *testing.T) {
	// 8 Mbit/s for one second should deliver roughly one megabyte.
	ts := httptest.NewServer(NewHandler(Config{MessageSize: 4096, RateBps: 8e6}))
	defer ts.Close()

	headers := http.Header{}
	headers.Add("Sec-WebSocket-Protocol", transport.SecWebSocketProtocol)
	dialer := websocket.Dialer{}
	conn, _, err := dialer.Dial(wsURL(t, ts.URL, "duration=1"), headers)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var total int64
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		total += int64(len(data))
	}
	// Allow generous slack for limiter burst and scheduling.
	if total < 500_000 || total > 2_500_000 {
		t.Fatalf("paced transfer out of range: %d bytes", total)
	}
}
