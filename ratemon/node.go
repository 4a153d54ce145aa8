package ratemon

import "unsafe"

// node is one level of the address tree: 256 counter slots, one per
// possible octet value at this depth. The root node has a nil parent;
// every other node is reached only via some counter's child pointer,
// and satisfies parent.child == self (spec.md §3, tree invariant).
type node struct {
	counters [256]*counter
	parent   *counter // nil only for the root

	// prev/next thread every non-root node through the monitor's
	// age-list in creation order, so fold can walk it without a
	// separate traversal of the tree.
	prev, next *node
}

// sizeNode is the per-node contribution to Monitor.Allocated.
const sizeNode = unsafe.Sizeof(node{})
