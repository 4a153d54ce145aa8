// Package ratemon implements the IP rate monitor: a lazily-expanding,
// depth-4, 256-way-fanout tree of per-address-prefix EWMA counters,
// with threshold-triggered zoom-in and memory-pressure-triggered fold.
package ratemon

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/flowlens/ratemon/ewma"
	"github.com/flowlens/ratemon/ipheader"
	"github.com/flowlens/ratemon/tick"
)

// Monitor is the rate-monitoring element. The zero value is not usable;
// construct one with New. A Monitor is safe for concurrent use: every
// exported method and handler takes the monitor lock except the look
// read handler, which uses a non-blocking TryLock and reports the tree
// as unavailable instead of waiting (spec.md §5).
type Monitor struct {
	// ID is a random per-instance identifier assigned by New. It is not
	// part of notify.Event, and the monitor does not pass it to OnEvent.
	ID uuid.UUID

	mu   sync.Mutex
	root *node
	age  ageList

	allocated int64
	memMax    int64 // bytes; 0 = unbounded

	clock tick.Clock

	countMode    CountMode
	offset       int
	ratioFixed   int64 // Q16.16, in (0, ewma.Scale]
	thresh       int64 // rescaled by ratioFixed; compared against ScaledRate
	annotate     bool
	ewmaInterval float64
	sample       func() bool
	onEvent      func(kind, detail string)

	resetAt atomic.Uint64
}

// New constructs a Monitor. clock supplies the tick source every EWMA
// and annotation deadline is measured against.
func New(clock tick.Clock, cfg Config) (*Monitor, error) {
	if cfg.Type != CountPackets && cfg.Type != CountBytes {
		return nil, ErrInvalidCountMode
	}
	if cfg.Offset < 0 {
		return nil, ErrInvalidOffset
	}
	if cfg.Ratio <= 0 || cfg.Ratio > 1 {
		return nil, ErrInvalidRatio
	}
	if cfg.Thresh <= 0 {
		return nil, ErrInvalidThreshold
	}

	ratioFixed := int64(cfg.Ratio * ewma.Scale)
	if ratioFixed < 1 {
		ratioFixed = 1
	}
	if ratioFixed > ewma.Scale {
		ratioFixed = ewma.Scale
	}

	interval := cfg.EWMAIntervalTicks
	if interval <= 0 {
		interval = float64(clock.Freq())
	}

	m := &Monitor{
		ID:           uuid.New(),
		root:         &node{},
		clock:        clock,
		countMode:    cfg.Type,
		offset:       cfg.Offset,
		ratioFixed:   ratioFixed,
		thresh:       (cfg.Thresh * ratioFixed) >> 16,
		annotate:     cfg.Annotate,
		ewmaInterval: interval,
		sample:       cfg.Sampler,
		onEvent:      cfg.OnEvent,
	}
	if m.thresh <= 0 {
		m.thresh = 1
	}
	if m.sample == nil {
		m.sample = func() bool { return rand.Float64() < cfg.Ratio }
	}
	m.allocated = int64(sizeNode)
	if cfg.MemMaxKiB > 0 {
		m.memMax = roundMemMax(cfg.MemMaxKiB)
	}
	m.resetAt.Store(clock.Now())
	return m, nil
}

func roundMemMax(kib uint64) int64 {
	bytes := int64(kib) * 1024
	if bytes < MemMaxMin {
		return MemMaxMin
	}
	return bytes
}

func (m *Monitor) newEWMA() ewma.EWMA {
	return *ewma.New(m.clock.Freq(), m.ewmaInterval)
}

// Allocated reports current tree memory usage in bytes.
func (m *Monitor) Allocated() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocated
}

// makeCounter allocates a fresh counter for slot within n, seeding its
// rates from n.parent (the counter that owns n) when one exists, or
// starting cold for root-level counters. It fails, returning nil, only
// when the memory cap would be exceeded.
func (m *Monitor) makeCounter(n *node) *counter {
	if m.memMax > 0 && m.allocated+int64(sizeCounter) > m.memMax {
		m.fireEvent("memmax_exceeded", "")
		return nil
	}
	c := &counter{}
	if n.parent != nil {
		c.fwd = *ewma.Seeded(&n.parent.fwd)
		c.rev = *ewma.Seeded(&n.parent.rev)
	} else {
		c.fwd = m.newEWMA()
		c.rev = m.newEWMA()
	}
	m.allocated += int64(sizeCounter)
	return c
}

// allocNode allocates a new node owned by parent (a counter gaining a
// child for the next address-octet level), threading it onto the
// age-list. It fails, returning nil, only when the memory cap would be
// exceeded.
func (m *Monitor) allocNode(parent *counter) *node {
	if m.memMax > 0 && m.allocated+int64(sizeNode) > m.memMax {
		m.fireEvent("memmax_exceeded", "")
		return nil
	}
	n := &node{parent: parent}
	m.allocated += int64(sizeNode)
	m.age.pushBack(n)
	return n
}

// fetchOrAlloc returns the counter at n.counters[slot], allocating one
// if absent and create is true. It returns nil when absent-and-!create,
// or when allocation fails under the memory cap — in both cases the
// caller must stop descending this path (spec.md §4.3).
func (m *Monitor) fetchOrAlloc(n *node, slot byte, create bool) *counter {
	if c := n.counters[slot]; c != nil {
		return c
	}
	if !create {
		return nil
	}
	c := m.makeCounter(n)
	if c == nil {
		return nil
	}
	n.counters[slot] = c
	return c
}

// maybeZoom allocates a child node for c if its sampled rate in either
// direction exceeds the configured threshold and depth allows it. It is
// a no-op if c is nil, already has a child, or level is already the
// deepest (3).
func (m *Monitor) maybeZoom(c *counter, level int) {
	if c == nil || c.child != nil || level >= 3 {
		return
	}
	if c.fwd.ScaledRate() > m.thresh || c.rev.ScaledRate() > m.thresh {
		c.child = m.allocNode(c)
		if c.child != nil {
			m.fireEvent("zoom_in", fmt.Sprintf("level %d", level+1))
		}
	}
}

// fireEvent invokes the configured event hook, if any. Called while
// m.mu is held; the hook must not call back into the Monitor.
func (m *Monitor) fireEvent(kind, detail string) {
	if m.onEvent != nil {
		m.onEvent(kind, detail)
	}
}

// updateRates is the shared body of Push and Pull: it walks the tree
// once per address octet for both source and destination, updating
// EWMAs, stamping annotations, and deciding zoom-in (spec.md §4.3).
func (m *Monitor) updateRates(p ipheader.Packet, forward, doEWMA bool) {
	hdr, err := ipheader.Parse(p.Bytes(), m.offset)
	if err != nil {
		return
	}
	var x int64
	if m.countMode == CountBytes {
		x = int64(hdr.TotalLen)
	} else {
		x = 1
	}

	now := m.clock.Now()
	curSrc, curDst := m.root, m.root
	srcAlive, dstAlive := true, true

	for level := 0; level < 4 && (srcAlive || dstAlive); level++ {
		var sc, dc *counter
		if srcAlive {
			sc = m.fetchOrAlloc(curSrc, hdr.Src[level], doEWMA)
		}
		if dstAlive {
			dc = m.fetchOrAlloc(curDst, hdr.Dst[level], doEWMA)
		}

		if doEWMA {
			if forward {
				if sc != nil {
					sc.fwd.Update(now, x)
				}
				if dc != nil {
					dc.rev.Update(now, x)
				}
			} else {
				if sc != nil {
					sc.rev.Update(now, x)
				}
				if dc != nil {
					dc.fwd.Update(now, x)
				}
			}
		}

		if m.annotate {
			active := (sc != nil && now < sc.annoTick) || (dc != nil && now < dc.annoTick)
			if active {
				p.SetAnnotation(byte(level + 1))
				return
			}
		}

		if doEWMA {
			m.maybeZoom(sc, level)
			m.maybeZoom(dc, level)
		}

		if sc != nil && sc.child != nil {
			curSrc = sc.child
		} else {
			srcAlive = false
		}
		if dc != nil && dc.child != nil {
			curDst = dc.child
		} else {
			dstAlive = false
		}
	}
}

// Push processes a packet arriving on push port 0 (forward) or 1
// (reverse). Forward packets are sampled at the configured ratio;
// reverse packets are always sampled. Malformed or non-IPv4 packets are
// left untouched and do not mutate monitor state.
func (m *Monitor) Push(port int, p ipheader.Packet) {
	forward := port == 0
	doEWMA := true
	if forward {
		doEWMA = m.sample()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateRates(p, forward, doEWMA)
}

// Pull processes a packet arriving on pull port 0 (forward) or 1
// (reverse). Every pulled packet is a sample, regardless of ratio.
func (m *Monitor) Pull(port int, p ipheader.Packet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateRates(p, port == 0, true)
}

// destroyNode recursively frees n and every counter and descendant node
// it owns, splices n out of the age-list, and clears n.parent.child. It
// returns n's former age-list neighbors so a caller iterating the list
// can resume without re-deriving them.
func (m *Monitor) destroyNode(n *node) (prev, next *node) {
	for i := range n.counters {
		c := n.counters[i]
		if c == nil {
			continue
		}
		if c.child != nil {
			m.destroyNode(c.child)
		}
		n.counters[i] = nil
		m.allocated -= int64(sizeCounter)
	}
	prev, next = m.age.remove(n)
	if n.parent != nil {
		n.parent.child = nil
	}
	m.allocated -= int64(sizeNode)
	return prev, next
}

// Reset destroys the entire tree below and including the root's own
// counters, leaving allocated accounting at exactly one empty root node,
// and records the current tick as the new reset time (spec.md §4.4,
// handler "reset").
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.root.counters {
		c := m.root.counters[i]
		if c == nil {
			continue
		}
		if c.child != nil {
			m.destroyNode(c.child)
		}
		m.root.counters[i] = nil
		m.allocated -= int64(sizeCounter)
	}
	m.resetAt.Store(m.clock.Now())
}

// SetAnnoLevel marks every packet matching addr's first level+1 octets
// for annotation until the given tick, allocating any counters or nodes
// missing along that path (subject to the memory cap). level must be in
// [0, 3].
func (m *Monitor) SetAnnoLevel(addr [4]byte, level int, untilTick uint64) error {
	if level < 0 || level > 3 {
		return ErrInvalidLevel
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.root
	var c *counter
	for k := 0; k <= level; k++ {
		c = m.fetchOrAlloc(cur, addr[k], true)
		if c == nil {
			return ErrMemoryExceeded
		}
		if k < level {
			if c.child == nil {
				c.child = m.allocNode(c)
				if c.child == nil {
					return ErrMemoryExceeded
				}
			}
			cur = c.child
		}
	}
	c.annoTick = untilTick
	return nil
}

// fold evicts aged-out nodes until allocated usage is at or below a
// target: memMax when a cap is set, otherwise foldFactor of current
// usage. It walks the age-list from one randomly chosen end, aging
// each visited node's owning counter with a zero sample before deciding
// whether to evict it — so even a round that evicts nothing still
// reflects decay (spec.md §4.3, "fold").
func (m *Monitor) fold(threshNow int64) int {
	if m.memMax > 0 {
		return m.foldTo(threshNow, m.memMax)
	}
	target := int64(float64(m.allocated) * foldFactor)
	return m.foldTo(threshNow, target)
}

// Fold runs one round of periodic eviction at the monitor's configured
// threshold. The host is expected to call this roughly once per tick
// (or on whatever cadence it drives the monitor), independent of any
// memory cap being exceeded — it is what keeps long-idle branches of
// the tree from lingering forever even when memMax is unset. It returns
// the number of nodes evicted.
func (m *Monitor) Fold() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := m.fold(m.thresh)
	if evicted > 0 {
		m.fireEvent("fold", fmt.Sprintf("evicted %d", evicted))
	}
	return evicted
}

func (m *Monitor) foldTo(threshNow, target int64) int {
	now := m.clock.Now()
	evicted := 0

	forward := rand.IntN(2) == 0
	var n *node
	if forward {
		n = m.age.first
	} else {
		n = m.age.last
	}

	for n != nil && m.allocated > target {
		p := n.parent
		p.fwd.Update(now, 0)
		p.rev.Update(now, 0)

		next := n.next
		prev := n.prev

		if p.fwd.ScaledRate() < threshNow && p.rev.ScaledRate() < threshNow {
			resumePrev, resumeNext := m.destroyNode(n)
			next, prev = resumeNext, resumePrev
			evicted++
		}

		if forward {
			n = next
		} else {
			n = prev
		}
	}
	return evicted
}

// forcedFold is called when a newly lowered memory cap leaves the tree
// over budget. It doubles the fold threshold on each pass until usage
// fits, so that even traffic many multiples over the configured
// threshold eventually yields ground under pressure. Reports whether
// allocated now fits within memMax; a false return means the cap
// itself is unsatisfiable (below what the root node and its own
// counters, which fold never evicts, occupy) and
// is the caller's signal to surface ErrMemoryExceeded rather than
// silently leaving the invariant violated. Callers must hold m.mu.
func (m *Monitor) forcedFold() bool {
	const maxThreshBeforeOverflow = math.MaxInt64 / forcedFoldGrowth
	threshNow := m.thresh

	for pass := 1; m.allocated > m.memMax && pass <= forcedFoldMaxPasses; pass++ {
		m.foldTo(threshNow, m.memMax)
		if threshNow > maxThreshBeforeOverflow {
			threshNow = math.MaxInt64
		} else {
			threshNow *= forcedFoldGrowth
		}
	}
	return m.allocated <= m.memMax
}

// Handler is one named operator-facing read/write entry point. Either
// field may be nil if the handler does not support that direction.
type Handler struct {
	Read  func() string
	Write func(string) error
}

// Handlers returns the monitor's named handler table: thresh, look,
// mem, memmax, anno_level, reset (spec.md §4.4).
func (m *Monitor) Handlers() map[string]Handler {
	return map[string]Handler{
		"thresh":     {Read: m.handleThreshRead},
		"look":       {Read: m.handleLookRead},
		"mem":        {Read: m.handleMemRead},
		"memmax":     {Read: m.handleMemMaxRead, Write: m.handleMemMaxWrite},
		"anno_level": {Write: m.handleAnnoLevelWrite},
		"reset":      {Write: m.handleResetWrite},
	}
}

// HandleRead dispatches a read by handler name, the lookup operator
// interfaces (a CLI, a control socket) use instead of indexing
// Handlers() directly. Returns ErrUnknownHandler for a name with no
// handler, or one whose handler does not support reads.
func (m *Monitor) HandleRead(name string) (string, error) {
	h, ok := m.Handlers()[name]
	if !ok || h.Read == nil {
		return "", ErrUnknownHandler
	}
	return h.Read(), nil
}

// HandleWrite dispatches a write by handler name. Returns
// ErrUnknownHandler for a name with no handler, or one whose handler
// does not support writes.
func (m *Monitor) HandleWrite(name, value string) error {
	h, ok := m.Handlers()[name]
	if !ok || h.Write == nil {
		return ErrUnknownHandler
	}
	return h.Write(value)
}

func (m *Monitor) handleThreshRead() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("%d\n", m.thresh)
}

func (m *Monitor) handleMemRead() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("%d\n", m.allocated)
}

func (m *Monitor) handleMemMaxRead() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("%d\n", m.memMax)
}

func (m *Monitor) handleMemMaxWrite(value string) error {
	var kib uint64
	if _, err := fmt.Sscanf(value, "%d", &kib); err != nil {
		return fmt.Errorf("ratemon: memmax: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if kib == 0 {
		m.memMax = 0
		return nil
	}
	newMax := roundMemMax(kib)
	if m.allocated > newMax {
		oldMax := m.memMax
		m.memMax = newMax
		if ok := m.forcedFold(); !ok {
			// Cap unsatisfiable even after condemning every non-root
			// node: restore the prior cap so the invariant (allocated
			// <= memMax whenever memMax > 0) holds on return, rather
			// than leaving it violated alongside a reported error.
			m.memMax = oldMax
			return ErrMemoryExceeded
		}
		return nil
	}
	m.memMax = newMax
	return nil
}

func (m *Monitor) handleAnnoLevelWrite(value string) error {
	fields := strings.Fields(value)
	if len(fields) != 3 {
		return ErrInvalidArgCount
	}

	addr, err := parseIPv4(fields[0])
	if err != nil {
		return err
	}
	level, err := strconv.Atoi(fields[1])
	if err != nil {
		return ErrInvalidArgCount
	}
	seconds, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return ErrInvalidArgCount
	}
	if seconds < 1 {
		return ErrInvalidSeconds
	}

	until := m.clock.Now() + seconds*uint64(m.clock.Freq())
	return m.SetAnnoLevel(addr, level, until)
}

// parseIPv4 parses a dotted-quad address string, returning
// ErrInvalidAddress for anything malformed (wrong octet count, an
// octet out of [0,255], or trailing garbage).
func parseIPv4(s string) ([4]byte, error) {
	var addr [4]byte
	octets := strings.Split(s, ".")
	if len(octets) != 4 {
		return addr, ErrInvalidAddress
	}
	for i, o := range octets {
		v, err := strconv.Atoi(o)
		if err != nil || v < 0 || v > 255 {
			return addr, ErrInvalidAddress
		}
		addr[i] = byte(v)
	}
	return addr, nil
}

func (m *Monitor) handleResetWrite(string) error {
	m.Reset()
	return nil
}
