package ratemon

import "github.com/flowlens/ratemon/tick"

// fakePacket is a minimal ipheader.Packet for tests: a raw IPv4 header
// (no payload) plus a settable annotation byte.
type fakePacket struct {
	b    []byte
	anno byte
}

func newIPv4Packet(src, dst [4]byte, totalLen uint16) *fakePacket {
	b := make([]byte, 20)
	b[0] = 0x45
	b[2] = byte(totalLen >> 8)
	b[3] = byte(totalLen)
	copy(b[12:16], src[:])
	copy(b[16:20], dst[:])
	return &fakePacket{b: b}
}

func (f *fakePacket) Bytes() []byte        { return f.b }
func (f *fakePacket) Annotation() byte     { return f.anno }
func (f *fakePacket) SetAnnotation(b byte) { f.anno = b }

// alwaysSample and neverSample are deterministic Config.Sampler values
// for tests that need to pin down Push's sampling decision.
func alwaysSample() bool { return true }
func neverSample() bool  { return false }

func newTestMonitor(clock tick.Clock, mutate func(*Config)) *Monitor {
	cfg := Config{
		Type:    CountPackets,
		Ratio:   1,
		Thresh:  1,
		Sampler: alwaysSample,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := New(clock, cfg)
	if err != nil {
		panic(err)
	}
	return m
}
