package ipheader

import "testing"

func buildIPv4(src, dst [4]byte, totalLen uint16) []byte {
	b := make([]byte, HeaderLen)
	b[0] = 0x45 // version 4, IHL 5
	b[2] = byte(totalLen >> 8)
	b[3] = byte(totalLen)
	copy(b[12:16], src[:])
	copy(b[16:20], dst[:])
	return b
}

func TestParseValidHeader(t *testing.T) {
	src := [4]byte{10, 0, 0, 1}
	dst := [4]byte{10, 0, 0, 2}
	data := buildIPv4(src, dst, 1500)

	h, err := Parse(data, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Src != src || h.Dst != dst || h.TotalLen != 1500 {
		t.Fatalf("parsed header mismatch: %+v", h)
	}
}

func TestParseRespectsOffset(t *testing.T) {
	src := [4]byte{192, 168, 1, 1}
	dst := [4]byte{192, 168, 1, 2}
	payload := append([]byte{0xAA, 0xBB, 0xCC, 0xDD}, buildIPv4(src, dst, 64)...)

	h, err := Parse(payload, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Src != src {
		t.Fatalf("expected src %v, got %v", src, h.Src)
	}
}

func TestParseTooShort(t *testing.T) {
	_, err := Parse(make([]byte, 10), 0)
	if err != ErrTooShort {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestParseNotIPv4(t *testing.T) {
	b := make([]byte, HeaderLen)
	b[0] = 0x60 // version 6
	_, err := Parse(b, 0)
	if err != ErrNotIPv4 {
		t.Fatalf("expected ErrNotIPv4, got %v", err)
	}
}

func TestParseNegativeOffset(t *testing.T) {
	_, err := Parse(make([]byte, 40), -1)
	if err != ErrTooShort {
		t.Fatalf("expected ErrTooShort for negative offset, got %v", err)
	}
}
