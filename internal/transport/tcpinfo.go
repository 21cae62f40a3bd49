package transport

import (
	"net"
	"time"
)

// TCPInfo is a snapshot of the kernel's view of the download connection.
type TCPInfo struct {
	// RTT is the smoothed round-trip time.
	RTT time.Duration
	// RTTVar is the round-trip time variance.
	RTTVar time.Duration
	// Retransmits is the total number of retransmitted segments.
	Retransmits uint64
	// BytesReceived is the number of bytes the kernel has received.
	BytesReceived uint64
}

func (c *scrambleConn) NetConn() net.Conn {
	return c.Conn
}

type netConner interface {
	NetConn() net.Conn
}

// tcpConn unwraps TLS and scramble layers down to the raw TCP connection.
func (c *Conn) tcpConn() *net.TCPConn {
	conn := c.ws.NetConn()
	for {
		if tcp, ok := conn.(*net.TCPConn); ok {
			return tcp
		}
		inner, ok := conn.(netConner)
		if !ok {
			return nil
		}
		conn = inner.NetConn()
	}
}
