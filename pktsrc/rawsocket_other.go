//go:build !linux

package pktsrc

import (
	"context"
	"fmt"

	"github.com/flowlens/ratemon/ratemon"
)

// RawSocketSource is unavailable on this platform: AF_PACKET capture is
// Linux-only. This stub keeps the type referenceable from portable
// callers (cmd/ratemon) without a build tag of their own.
type RawSocketSource struct{}

// OpenRawSocket always fails off Linux.
func OpenRawSocket(iface string) (*RawSocketSource, error) {
	return nil, fmt.Errorf("pktsrc: AF_PACKET capture is not supported on this platform")
}

// Close is a no-op; no RawSocketSource is ever constructed on this
// platform.
func (s *RawSocketSource) Close() error { return nil }

// Run always fails; OpenRawSocket never returns a usable source here.
func (s *RawSocketSource) Run(ctx context.Context, m *ratemon.Monitor) error {
	return fmt.Errorf("pktsrc: AF_PACKET capture is not supported on this platform")
}
