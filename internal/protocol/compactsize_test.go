package protocol

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestCompactSizeRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 0xfc, 0xfd, 0xfe, 0xff,
		0xffff, 0x10000, 0xffffffff, 0x100000000,
		math.MaxUint64,
	}
	for _, v := range values {
		cs := CompactSize(v)
		enc := cs.Encode()
		got, n, err := DecodeCompactSize(enc)
		if err != nil {
			t.Fatalf("value %d: decode error: %v", v, err)
		}
		if uint64(got) != v {
			t.Fatalf("value %d: round-trip got %d", v, got)
		}
		if n != len(enc) {
			t.Fatalf("value %d: consumed %d, encoded length %d", v, n, len(enc))
		}
	}
}

func TestCompactSizeMinimalEncoding(t *testing.T) {
	cases := []struct {
		value    uint64
		wantLen  int
		wantDisc byte
	}{
		{0, 1, 0},
		{0xfc, 1, 0xfc},
		{0xfd, 3, 0xfd},
		{0xffff, 3, 0xfd},
		{0x10000, 5, 0xfe},
		{0xffffffff, 5, 0xfe},
		{0x100000000, 9, 0xff},
		{math.MaxUint64, 9, 0xff},
	}
	for _, c := range cases {
		enc := CompactSize(c.value).Encode()
		if len(enc) != c.wantLen {
			t.Errorf("value %d: encoded length %d, want %d", c.value, len(enc), c.wantLen)
		}
		if c.wantLen > 1 && enc[0] != c.wantDisc {
			t.Errorf("value %d: discriminator %#x, want %#x", c.value, enc[0], c.wantDisc)
		}
	}
}

func TestDecodeCompactSizeShortBuffer(t *testing.T) {
	cases := [][]byte{
		{},
		{0xfd},
		{0xfd, 0x01},
		{0xfe, 0x01, 0x02},
		{0xff, 0x01, 0x02, 0x03},
	}
	for _, buf := range cases {
		_, _, err := DecodeCompactSize(buf)
		if !errors.Is(err, ErrShortBuffer) {
			t.Errorf("buf %v: got err %v, want ErrShortBuffer", buf, err)
		}
	}
}

func TestCompactSizeNonCanonicalDecodeAccepted(t *testing.T) {
	// 0xfd with a value that would fit in one byte is non-canonical but
	// still decodes: decoders accept what encoders never produce.
	buf := append([]byte{0xfd}, 0x05, 0x00)
	got, n, err := DecodeCompactSize(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 5 || n != 3 {
		t.Fatalf("got value %d consumed %d, want 5 consumed 3", got, n)
	}
	if bytes.Equal(buf, CompactSize(5).Encode()) {
		t.Fatalf("expected non-canonical input to differ from canonical encoding")
	}
}
