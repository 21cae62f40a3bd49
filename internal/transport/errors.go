package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"syscall"
)

// ErrKind classifies connection and stream failures.
type ErrKind int

const (
	// KindDNS is a name resolution failure.
	KindDNS ErrKind = iota + 1
	// KindConnectTimeout is a TCP connect or handshake timeout.
	KindConnectTimeout
	// KindConnectionRefused is a refused TCP connection.
	KindConnectionRefused
	// KindTLSHandshake is a TLS negotiation or certificate failure.
	KindTLSHandshake
	// KindProtocolHandshake is a failed WebSocket/ndt7 upgrade.
	KindProtocolHandshake
	// KindRead is a mid-stream read failure, including stalls.
	KindRead
)

var errKindNames = map[ErrKind]string{
	KindDNS:               "dns failure",
	KindConnectTimeout:    "connect timeout",
	KindConnectionRefused: "connection refused",
	KindTLSHandshake:      "tls handshake failure",
	KindProtocolHandshake: "protocol handshake failure",
	KindRead:              "read failure",
}

func (k ErrKind) String() string {
	if s, ok := errKindNames[k]; ok {
		return s
	}
	return "transport failure"
}

// ConnectError wraps a transport failure with its classification.
type ConnectError struct {
	Kind ErrKind
	Err  error
}

func (e *ConnectError) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// classifyDialError maps a dial failure onto the connect-phase taxonomy.
// Anything unrecognized failed the upgrade path, so it lands in
// KindProtocolHandshake.
func classifyDialError(err error) *ConnectError {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &ConnectError{Kind: KindDNS, Err: err}
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return &ConnectError{Kind: KindConnectionRefused, Err: err}
	}
	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var recordErr tls.RecordHeaderError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) || errors.As(err, &recordErr) {
		return &ConnectError{Kind: KindTLSHandshake, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ConnectError{Kind: KindConnectTimeout, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ConnectError{Kind: KindConnectTimeout, Err: err}
	}
	return &ConnectError{Kind: KindProtocolHandshake, Err: err}
}

func classifyReadError(err error) *ConnectError {
	return &ConnectError{Kind: KindRead, Err: err}
}
