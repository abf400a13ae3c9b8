package frame

import (
	"errors"
	"testing"
	"time"
)

func TestNewPixelBufferLength(t *testing.T) {
	for _, tc := range []struct {
		w, h, n int
		ok      bool
	}{
		{2, 2, 12, true},
		{640, 480, 640 * 480 * 3, true},
		{2, 2, 11, false},
		{2, 2, 13, false},
		{2, 2, 16, false}, // RGBA-sized
		{0, 2, 0, false},
		{2, -1, 0, false},
	} {
		b, err := NewPixelBuffer(tc.w, tc.h, make([]byte, tc.n), time.Now(), 1)
		if tc.ok {
			if err != nil {
				t.Errorf("%dx%d len %d: unexpected error %v", tc.w, tc.h, tc.n, err)
				continue
			}
			if b.Len() != b.Width()*b.Height()*BytesPerPixel {
				t.Errorf("%v: length invariant broken", b)
			}
			continue
		}
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("%dx%d len %d: got %v, want ErrUnsupportedFormat", tc.w, tc.h, tc.n, err)
		}
	}
}

func TestZeroPixelBufferInvalid(t *testing.T) {
	var b *PixelBuffer
	if err := b.Validate(); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("nil buffer: got %v", err)
	}
	if err := (&PixelBuffer{}).Validate(); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("zero buffer: got %v", err)
	}
}

func TestWithPixelsKeepsMetadata(t *testing.T) {
	now := time.Now()
	b, err := NewPixelBuffer(4, 1, make([]byte, 12), now, 7)
	if err != nil {
		t.Fatal(err)
	}
	out, err := b.WithPixels(make([]byte, 12))
	if err != nil {
		t.Fatal(err)
	}
	if out.Seq() != 7 || !out.Time().Equal(now) || out.Width() != 4 || out.Height() != 1 {
		t.Fatalf("metadata not preserved: %v", out)
	}
	if _, err := b.WithPixels(make([]byte, 3)); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("short output accepted: %v", err)
	}
}
