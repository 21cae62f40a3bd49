// Package transport establishes the ndt7 download stream: DNS resolution,
// TCP connect, optional TLS, WebSocket upgrade with the ndt7 subprotocol,
// and bounded-time message reads on the resulting connection.
package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"
)

const (
	// SecWebSocketProtocol is the subprotocol spoken by ndt7 servers.
	SecWebSocketProtocol = "net.measurementlab.ndt.v7"

	// DownloadPath is the ndt7 download endpoint.
	DownloadPath = "/ndt/v7/download"

	// DefaultHandshakeTimeout bounds DNS + connect + TLS + upgrade.
	DefaultHandshakeTimeout = 3 * time.Second

	// DefaultReadTimeout bounds every message read so a silent server
	// surfaces as an error instead of hanging the measurement loop.
	DefaultReadTimeout = 3 * time.Second

	// maxMessageSize is the largest WebSocket message we accept.
	maxMessageSize = 1 << 17
)

// Options configures a download connection.
type Options struct {
	// Hostname is the server host (name, IPv4, or IPv6 literal).
	Hostname string
	// Port is the optional server port ("" uses the scheme default).
	Port string
	// SkipTLSVerify disables certificate validation.
	SkipTLSVerify bool
	// DisableTLS uses plain ws:// instead of wss://.
	DisableTLS bool
	// Scramble obfuscates the TCP stream with a pre-shared RC4 key.
	// Only honored when DisableTLS is set.
	Scramble bool
	// Proxy is an optional SOCKS5 proxy address ("host:port").
	Proxy string
	// Adaptive asks the server to end the test early once its own
	// congestion-control view of the path has converged.
	Adaptive bool
	// Duration is the requested test duration in seconds (0 = server default).
	Duration int
	// HandshakeTimeout overrides DefaultHandshakeTimeout when > 0.
	HandshakeTimeout time.Duration
	// ReadTimeout overrides DefaultReadTimeout when > 0.
	ReadTimeout time.Duration
	// Logger receives connection-level debug output. May be nil.
	Logger *slog.Logger
}

// ServerMeasurement is a server-side ndt7 measurement delivered on the
// stream as a text message.
type ServerMeasurement struct {
	// Elapsed is seconds since the server started the test.
	Elapsed float64 `json:"elapsed"`
	// NumBytes is the number of bytes the server has sent.
	NumBytes int64 `json:"num_bytes"`
}

// Conn is an established download stream. Read returns the payload size of
// the next message under a bounded deadline; text frames are decoded as
// server measurements and counted like any other payload.
type Conn struct {
	ws          *websocket.Conn
	readTimeout time.Duration
	logger      *slog.Logger

	mu         sync.Mutex
	serverMeas *ServerMeasurement
}

// URL builds the download endpoint URL for opts. Hostname validation is the
// caller's job; IPv6 literals are bracketed here.
func URL(opts Options) url.URL {
	var u url.URL
	u.Scheme = "wss"
	if opts.DisableTLS {
		u.Scheme = "ws"
	}
	host := opts.Hostname
	if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
		host = "[" + host + "]"
	}
	u.Host = host
	if opts.Port != "" {
		u.Host += ":" + opts.Port
	}
	u.Path = DownloadPath
	query := u.Query()
	if opts.Duration > 0 {
		query.Add("duration", strconv.Itoa(opts.Duration))
	}
	if opts.Adaptive {
		query.Add("adaptive", "true")
	}
	u.RawQuery = query.Encode()
	return u
}

// Connect dials the server and performs the ndt7 handshake. Failures are
// returned as *ConnectError and are never retried here.
func Connect(ctx context.Context, opts Options) (*Conn, error) {
	u := URL(opts)
	handshakeTimeout := opts.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = DefaultHandshakeTimeout
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	if opts.SkipTLSVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	netDial, err := makeNetDial(opts, handshakeTimeout)
	if err != nil {
		return nil, err
	}
	if netDial != nil {
		dialer.NetDialContext = netDial
	}

	headers := http.Header{}
	headers.Add("Sec-WebSocket-Protocol", SecWebSocketProtocol)
	if opts.Logger != nil {
		opts.Logger.Debug("connecting", "url", u.String())
	}
	ws, _, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, classifyDialError(err)
	}
	ws.SetReadLimit(maxMessageSize)
	return &Conn{ws: ws, readTimeout: readTimeout, logger: opts.Logger}, nil
}

// makeNetDial returns a custom dial function when scrambling or proxying is
// requested, nil otherwise.
func makeNetDial(opts Options, timeout time.Duration) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	base := &net.Dialer{Timeout: timeout}
	var dial func(ctx context.Context, network, addr string) (net.Conn, error) = base.DialContext

	if opts.Proxy != "" {
		socks, err := proxy.SOCKS5("tcp", opts.Proxy, nil, base)
		if err != nil {
			return nil, &ConnectError{Kind: KindProtocolHandshake, Err: err}
		}
		cd, ok := socks.(proxy.ContextDialer)
		if !ok {
			return nil, &ConnectError{Kind: KindProtocolHandshake, Err: errors.New("socks5 dialer lacks context support")}
		}
		dial = cd.DialContext
	}

	if opts.DisableTLS && opts.Scramble {
		inner := dial
		dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := inner(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return newScrambleConn(conn)
		}
		return dial, nil
	}
	if opts.Proxy != "" {
		return dial, nil
	}
	return nil, nil
}

// Read returns the payload length of the next WebSocket message. A normal
// server close yields io.EOF. Every other failure, including a read
// deadline hit (stalled server), is returned as *ConnectError.
func (c *Conn) Read() (int, error) {
	if err := c.ws.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return 0, &ConnectError{Kind: KindRead, Err: err}
	}
	mtype, data, err := c.ws.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			return 0, io.EOF
		}
		return 0, classifyReadError(err)
	}
	if mtype == websocket.TextMessage {
		var m ServerMeasurement
		if jerr := json.Unmarshal(data, &m); jerr == nil {
			c.mu.Lock()
			c.serverMeas = &m
			c.mu.Unlock()
			if c.logger != nil {
				c.logger.Debug("server measurement", "elapsed", m.Elapsed, "num_bytes", m.NumBytes)
			}
		}
	}
	return len(data), nil
}

// ServerMeasurement returns the most recent server-side measurement seen on
// the stream, or nil if none arrived yet.
func (c *Conn) ServerMeasurement() *ServerMeasurement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverMeas
}

// Close tears down the WebSocket connection.
func (c *Conn) Close() error {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
	return c.ws.Close()
}
