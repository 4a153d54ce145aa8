package ratemon

import (
	"strings"
	"testing"

	"github.com/flowlens/ratemon/tick"
)

func TestZoomInCreatesNodesAlongSharedAndDivergentPrefix(t *testing.T) {
	clk := tick.NewVirtualClock(10)
	m := newTestMonitor(clk, nil)

	src := [4]byte{10, 0, 0, 1}
	dst := [4]byte{10, 0, 0, 2}
	for i := 0; i < 40; i++ {
		clk.Advance(1)
		m.Push(0, newIPv4Packet(src, dst, 100))
	}

	dump := m.Handlers()["look"].Read()
	for _, want := range []string{"10\t", "10.0\t", "10.0.0\t", "10.0.0.1\t", "10.0.0.2\t"} {
		if !strings.Contains(dump, want) {
			t.Fatalf("expected dump to contain prefix %q, got:\n%s", want, dump)
		}
	}
}

func TestZoomInRespectsDepthLimitOfFour(t *testing.T) {
	clk := tick.NewVirtualClock(10)
	m := newTestMonitor(clk, nil)

	src := [4]byte{10, 0, 0, 1}
	dst := [4]byte{10, 0, 0, 2}
	for i := 0; i < 50; i++ {
		clk.Advance(1)
		m.Push(0, newIPv4Packet(src, dst, 100))
	}

	// Depth 4 is the deepest level (the final octet); its counters must
	// never grow a child node.
	leaf := m.root.counters[10].child.counters[0].child.counters[0].child.counters[1]
	if leaf == nil {
		t.Fatalf("expected leaf counter for 10.0.0.1 to exist")
	}
	if leaf.child != nil {
		t.Fatalf("expected no child beyond depth 4, found one")
	}
}

func TestPushSamplesForwardTrafficOnlyAtConfiguredRatio(t *testing.T) {
	clk := tick.NewVirtualClock(10)
	m := newTestMonitor(clk, func(c *Config) { c.Sampler = neverSample })

	src := [4]byte{1, 2, 3, 4}
	dst := [4]byte{5, 6, 7, 8}
	clk.Advance(1)
	m.Push(0, newIPv4Packet(src, dst, 64))

	if m.root.counters[1] != nil {
		t.Fatalf("expected no counter allocated when sampler always declines")
	}
}

func TestPullAlwaysSamplesRegardlessOfRatio(t *testing.T) {
	clk := tick.NewVirtualClock(10)
	m := newTestMonitor(clk, func(c *Config) { c.Sampler = neverSample })

	src := [4]byte{1, 2, 3, 4}
	dst := [4]byte{5, 6, 7, 8}
	clk.Advance(1)
	m.Pull(0, newIPv4Packet(src, dst, 64))

	if m.root.counters[1] == nil {
		t.Fatalf("expected pull to allocate a counter even with a declining sampler")
	}
}

func TestMalformedPacketLeavesTreeUntouched(t *testing.T) {
	clk := tick.NewVirtualClock(10)
	m := newTestMonitor(clk, nil)

	clk.Advance(1)
	m.Push(0, &fakePacket{b: []byte{0x01, 0x02}})

	for _, c := range m.root.counters {
		if c != nil {
			t.Fatalf("expected no counters after a too-short packet")
		}
	}
}

func TestSetAnnoLevelStampsMatchingPacketAndStopsDescent(t *testing.T) {
	clk := tick.NewVirtualClock(10)
	m := newTestMonitor(clk, func(c *Config) { c.Annotate = true })

	addr := [4]byte{172, 16, 0, 5}
	if err := m.SetAnnoLevel(addr, 1, clk.Now()+100); err != nil {
		t.Fatalf("SetAnnoLevel failed: %v", err)
	}

	p := newIPv4Packet(addr, [4]byte{9, 9, 9, 9}, 40)
	m.Push(0, p)

	if p.Annotation() != 2 {
		t.Fatalf("expected annotation byte 2 (level+1), got %d", p.Annotation())
	}
}

func TestSetAnnoLevelDoesNotStampUnrelatedTraffic(t *testing.T) {
	clk := tick.NewVirtualClock(10)
	m := newTestMonitor(clk, func(c *Config) { c.Annotate = true })

	addr := [4]byte{172, 16, 0, 5}
	if err := m.SetAnnoLevel(addr, 1, clk.Now()+100); err != nil {
		t.Fatalf("SetAnnoLevel failed: %v", err)
	}

	p := newIPv4Packet([4]byte{8, 8, 8, 8}, [4]byte{9, 9, 9, 9}, 40)
	m.Push(0, p)

	if p.Annotation() != 0 {
		t.Fatalf("expected no annotation for unrelated traffic, got %d", p.Annotation())
	}
}

func TestSetAnnoLevelExpiresAfterDeadline(t *testing.T) {
	clk := tick.NewVirtualClock(10)
	m := newTestMonitor(clk, func(c *Config) { c.Annotate = true })

	addr := [4]byte{172, 16, 0, 5}
	if err := m.SetAnnoLevel(addr, 0, clk.Now()+5); err != nil {
		t.Fatalf("SetAnnoLevel failed: %v", err)
	}

	clk.Advance(10)
	p := newIPv4Packet(addr, [4]byte{9, 9, 9, 9}, 40)
	m.Push(0, p)

	if p.Annotation() != 0 {
		t.Fatalf("expected expired annotation to leave packet unstamped, got %d", p.Annotation())
	}
}

func TestSetAnnoLevelRejectsOutOfRangeLevel(t *testing.T) {
	clk := tick.NewVirtualClock(10)
	m := newTestMonitor(clk, nil)

	if err := m.SetAnnoLevel([4]byte{1, 2, 3, 4}, 4, 1000); err != ErrInvalidLevel {
		t.Fatalf("expected ErrInvalidLevel, got %v", err)
	}
}

func TestResetLeavesOnlyRootAllocated(t *testing.T) {
	clk := tick.NewVirtualClock(10)
	m := newTestMonitor(clk, nil)

	for i := 0; i < 20; i++ {
		clk.Advance(1)
		m.Push(0, newIPv4Packet([4]byte{10, 0, 0, byte(i)}, [4]byte{20, 0, 0, byte(i)}, 100))
	}
	if m.Allocated() <= int64(sizeNode) {
		t.Fatalf("expected tree to have grown before reset")
	}

	m.Reset()

	if got := m.Allocated(); got != int64(sizeNode) {
		t.Fatalf("expected allocated == sizeof(root) == %d after reset, got %d", sizeNode, got)
	}
	for _, c := range m.root.counters {
		if c != nil {
			t.Fatalf("expected no root counters to survive reset")
		}
	}
	if m.age.first != nil || m.age.last != nil {
		t.Fatalf("expected age-list to be empty after reset")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	clk := tick.NewVirtualClock(10)

	cases := []struct {
		name string
		cfg  Config
		want error
	}{
		{"bad ratio", Config{Type: CountPackets, Ratio: 0, Thresh: 1}, ErrInvalidRatio},
		{"bad ratio high", Config{Type: CountPackets, Ratio: 1.5, Thresh: 1}, ErrInvalidRatio},
		{"bad thresh", Config{Type: CountPackets, Ratio: 1, Thresh: 0}, ErrInvalidThreshold},
		{"bad offset", Config{Type: CountPackets, Ratio: 1, Thresh: 1, Offset: -1}, ErrInvalidOffset},
		{"bad mode", Config{Type: CountMode(99), Ratio: 1, Thresh: 1}, ErrInvalidCountMode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(clk, tc.cfg); err != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
