// Package ipheader defines the packet collaborator contract and the
// IPv4 header parsing the monitor needs. The host framework that
// produces and forwards Packets is out of scope for this repo; this
// package only pins down the shape it must expose.
package ipheader

import "errors"

// HeaderLen is the fixed length of an IPv4 header without options.
// The monitor only reads the fixed fields and never interprets options.
const HeaderLen = 20

// ErrTooShort is returned when a packet does not carry a full IPv4
// header at the configured offset.
var ErrTooShort = errors.New("ipheader: packet shorter than offset+20 bytes")

// ErrNotIPv4 is returned when the byte at offset is not an IPv4
// version/IHL byte (version nibble != 4).
var ErrNotIPv4 = errors.New("ipheader: not an IPv4 packet")

// Packet is the host collaborator's contract: a borrowed, read-mostly
// view over one network packet plus a single writable annotation byte.
// Implementations must make Bytes stable for the lifetime of one
// Monitor.Push or Monitor.Pull call; the monitor never retains the
// slice afterward.
type Packet interface {
	// Bytes returns the packet's raw contents starting at byte 0 of the
	// link/network payload the host hands to the monitor (i.e. offset
	// is relative to this slice, not to some larger frame).
	Bytes() []byte
	// Annotation returns the current annotation byte.
	Annotation() byte
	// SetAnnotation stamps the annotation byte.
	SetAnnotation(b byte)
}

// Header is the subset of an IPv4 header the monitor cares about.
type Header struct {
	Src      [4]byte
	Dst      [4]byte
	TotalLen uint16
}

// Parse extracts the IPv4 header from data at offset. It never panics;
// malformed or short input yields an error and the monitor must leave
// the packet untouched (spec.md §7, "Parse failure").
func Parse(data []byte, offset int) (Header, error) {
	if offset < 0 || len(data) < offset+HeaderLen {
		return Header{}, ErrTooShort
	}
	b := data[offset : offset+HeaderLen]
	if b[0]>>4 != 4 {
		return Header{}, ErrNotIPv4
	}
	var h Header
	h.TotalLen = uint16(b[2])<<8 | uint16(b[3])
	copy(h.Src[:], b[12:16])
	copy(h.Dst[:], b[16:20])
	return h, nil
}
