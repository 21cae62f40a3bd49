package dlprobe

import (
	"fmt"
	"strconv"
	"time"
)

// Config defines parameters for one download measurement session. It is
// immutable once the session starts.
type Config struct {
	// Adaptive enables convergence-based early termination.
	Adaptive bool
	// Hostname is the measurement server host (required).
	Hostname string
	// Port is the server port as a numeric string ("" uses the scheme
	// default).
	Port string
	// SkipTLSVerify disables certificate validation.
	SkipTLSVerify bool

	// DisableTLS connects over plain ws:// instead of wss://.
	DisableTLS bool
	// Scramble obfuscates TLS-less streams with a pre-shared key.
	Scramble bool
	// Proxy is an optional SOCKS5 proxy address ("host:port").
	Proxy string
	// Duration overrides the fixed-mode test length (0 = engine default).
	// Ignored in adaptive mode.
	Duration time.Duration
}

func (c Config) validate() error {
	if c.Hostname == "" {
		return fmt.Errorf("%w: hostname is required", ErrInvalidConfig)
	}
	if c.Port != "" {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			return fmt.Errorf("%w: port %q is not numeric", ErrInvalidConfig, c.Port)
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, port)
		}
	}
	if c.Duration < 0 {
		return fmt.Errorf("%w: duration must be >= 0", ErrInvalidConfig)
	}
	return nil
}
