//go:build !linux

package transport

import "errors"

// TCPInfo is only available on Linux.
func (c *Conn) TCPInfo() (TCPInfo, error) {
	return TCPInfo{}, errors.New("tcp info is only supported on linux")
}
