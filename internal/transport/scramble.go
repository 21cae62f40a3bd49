package transport

import (
	"crypto/rc4"
	"net"
)

// scrambleKey is the pre-shared key used to obfuscate TLS-less streams.
// Both endpoints must agree on it; this provides obfuscation, not secrecy.
var scrambleKey = []byte{
	0x83, 0x48, 0x46, 0xc7, 0x42, 0xd1, 0x00, 0xd3, 0x2c, 0x5d, 0xc4, 0x92,
	0x5a, 0xa5, 0xf9, 0xd1, 0x6b, 0x7e, 0x93, 0x12, 0xd6, 0xbd, 0x40, 0xe0,
	0xac, 0x0d, 0xc9, 0xdb, 0xda, 0x55, 0xd5, 0x95, 0xa0, 0x29, 0xc6, 0xf9,
	0x4e, 0xe2, 0x77, 0x1d, 0x7f, 0xda, 0x1c, 0x45, 0xe6, 0x05, 0x58, 0x88,
	0x12, 0x36, 0x6b, 0x60, 0xd9, 0x83, 0xb4, 0x1d, 0x54, 0x11, 0xf4, 0xd4,
	0xd8, 0xc8, 0x9b, 0x47, 0xd0, 0x5d, 0x35, 0x62, 0x40, 0x1d, 0x9d, 0xde,
	0x38, 0x56, 0xcf, 0x0f, 0xab, 0x14, 0x7e, 0xe6, 0x8f, 0x64, 0xee, 0x81,
	0xb2, 0x6d, 0x01, 0xef, 0x7c, 0x03, 0xa5, 0xc3, 0x2c, 0x4a, 0xe8, 0x48,
	0x1b, 0xbf, 0xb9, 0x78, 0xe1, 0x77, 0x32, 0x1d, 0xfe, 0xac, 0x94, 0xcf,
	0xc8, 0x5d, 0xae, 0xf9, 0xe9, 0x06, 0x9e, 0x3f, 0xc6, 0x09, 0x7f, 0x36,
	0x10, 0x63, 0x5c, 0x92, 0x43, 0x3d, 0xb0, 0x49,
}

// scrambleConn XORs the byte stream with an RC4 keystream in each direction.
// Separate cipher states are required because read and write positions in
// the keystream advance independently.
type scrambleConn struct {
	net.Conn
	rd *rc4.Cipher
	wr *rc4.Cipher
}

func newScrambleConn(conn net.Conn) (net.Conn, error) {
	rd, err := rc4.NewCipher(scrambleKey)
	if err != nil {
		return nil, err
	}
	wr, err := rc4.NewCipher(scrambleKey)
	if err != nil {
		return nil, err
	}
	return &scrambleConn{Conn: conn, rd: rd, wr: wr}, nil
}

func (c *scrambleConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 {
		c.rd.XORKeyStream(b[:n], b[:n])
	}
	return n, err
}

func (c *scrambleConn) Write(b []byte) (int, error) {
	out := make([]byte, len(b))
	c.wr.XORKeyStream(out, b)
	n, err := c.Conn.Write(out)
	return n, err
}
