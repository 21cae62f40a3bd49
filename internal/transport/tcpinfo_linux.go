//go:build linux

package transport

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// TCPInfo reads TCP_INFO from the underlying connection. It is best-effort
// extra context for summaries and logs, never part of the measurement math.
func (c *Conn) TCPInfo() (TCPInfo, error) {
	tcp := c.tcpConn()
	if tcp == nil {
		return TCPInfo{}, errors.New("no raw tcp connection available")
	}
	rawConn, err := tcp.SyscallConn()
	if err != nil {
		return TCPInfo{}, fmt.Errorf("syscall conn: %w", err)
	}
	var info *unix.TCPInfo
	var sockErr error
	if err := rawConn.Control(func(fd uintptr) {
		info, sockErr = unix.GetsockoptTCPInfo(int(fd), unix.IPPROTO_TCP, unix.TCP_INFO)
	}); err != nil {
		return TCPInfo{}, fmt.Errorf("control syscall: %w", err)
	}
	if sockErr != nil {
		return TCPInfo{}, fmt.Errorf("getsockopt TCP_INFO: %w", sockErr)
	}
	if info == nil {
		return TCPInfo{}, errors.New("getsockopt TCP_INFO: nil info")
	}
	return TCPInfo{
		RTT:           time.Duration(info.Rtt) * time.Microsecond,
		RTTVar:        time.Duration(info.Rttvar) * time.Microsecond,
		Retransmits:   uint64(info.Total_retrans),
		BytesReceived: info.Bytes_received,
	}, nil
}
