package ratemon

import "errors"

// Configuration errors, returned without partial effect on monitor state.
var (
	ErrInvalidCountMode = errors.New("ratemon: type must be PACKETS or BYTES")
	ErrInvalidOffset    = errors.New("ratemon: offset must be non-negative")
	ErrInvalidRatio     = errors.New("ratemon: ratio must be in (0, 1]")
	ErrInvalidThreshold = errors.New("ratemon: threshold must be positive")
	ErrInvalidLevel     = errors.New("ratemon: level must be in [0, 3]")
	ErrInvalidSeconds   = errors.New("ratemon: when_seconds must be >= 1")
	ErrInvalidArgCount  = errors.New("ratemon: wrong argument count")
	ErrInvalidAddress   = errors.New("ratemon: malformed IPv4 address")

	// ErrMemoryExceeded is returned by handlers that must allocate
	// (anno_level, memmax write) when the memory cap cannot be satisfied.
	// It is never returned from the packet path, which silently aborts
	// zoom-in instead (spec.md §7, "Allocation failure").
	ErrMemoryExceeded = errors.New("ratemon: memory cap exceeded")

	ErrUnknownHandler = errors.New("ratemon: unknown handler")
)
