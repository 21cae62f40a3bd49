package dlprobe

import "errors"

var (
	// ErrAlreadyRunning indicates Start while a session is still active.
	ErrAlreadyRunning = errors.New("a measurement session is already running")

	// ErrInvalidConfig indicates a malformed session configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrAlreadyFreed indicates FreeEvent on a value that was never issued
	// by the bridge or was already released.
	ErrAlreadyFreed = errors.New("event not owned or already released")
)
