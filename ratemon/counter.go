package ratemon

import (
	"unsafe"

	"github.com/flowlens/ratemon/ewma"
)

// counter is one address bucket's traffic state: a forward and reverse
// EWMA, an optional child node for the next address-octet level, and an
// annotation deadline. Every counter is owned by exactly one node slot;
// node.parent points back to the counter that owns that node.
type counter struct {
	fwd, rev ewma.EWMA
	child    *node
	annoTick uint64 // SetAnnoLevel deadline; 0 means never annotated
}

// sizeCounter is the per-counter contribution to Monitor.Allocated, used
// both to size-check allocations against the memory cap and to report
// memory pressure to operators via the mem handler.
const sizeCounter = unsafe.Sizeof(counter{})
