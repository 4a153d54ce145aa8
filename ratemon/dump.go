package ratemon

import (
	"fmt"
	"strconv"
	"strings"
)

// handleLookRead implements the look handler: a line giving seconds
// since the last reset, followed by a recursive textual dump of every
// counter with non-zero traffic. It never blocks the packet path — if
// the monitor lock is held elsewhere, it reports the tree as
// unavailable rather than waiting (spec.md §4.4, §5).
func (m *Monitor) handleLookRead() string {
	seconds := (m.clock.Now() - m.resetAt.Load()) / uint64(m.clock.Freq())

	if !m.mu.TryLock() {
		return fmt.Sprintf("%d\nunavailable\n", seconds)
	}
	defer m.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d\n", seconds)
	m.dump(&sb, m.root, nil, 0)
	return sb.String()
}

// dump writes one line per counter in n that carries non-zero traffic
// in either direction, indented one tab per tree depth below the root,
// then recurses into each counter's child node if present.
func (m *Monitor) dump(sb *strings.Builder, n *node, prefix []byte, depth int) {
	for slot := 0; slot < 256; slot++ {
		c := n.counters[slot]
		if c == nil {
			continue
		}
		fwd, rev := c.fwd.ScaledRate(), c.rev.ScaledRate()
		if fwd == 0 && rev == 0 {
			continue
		}

		addr := append(append([]byte(nil), prefix...), byte(slot))
		for i := 0; i < depth; i++ {
			sb.WriteByte('\t')
		}
		sb.WriteString(dottedPrefix(addr))
		fmt.Fprintf(sb, "\t%d\t%d\n", fwd, rev)

		if c.child != nil {
			m.dump(sb, c.child, addr, depth+1)
		}
	}
}

func dottedPrefix(octets []byte) string {
	var sb strings.Builder
	for i, b := range octets {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(strconv.Itoa(int(b)))
	}
	return sb.String()
}
