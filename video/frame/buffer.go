package frame

import (
	"fmt"
	"time"
)

// BytesPerPixel is the stride of a PixelBuffer: packed R, G, B.
const BytesPerPixel = 3

// PixelBuffer holds one frame as packed interleaved RGB, row-major, top row
// first. Bytes 3k, 3k+1 and 3k+2 are the red, green and blue of pixel k.
//
// A PixelBuffer is immutable once constructed. The constructor takes
// ownership of pix; callers must not modify it afterwards.
type PixelBuffer struct {
	width, height int
	pix           []byte

	time time.Time
	seq  uint64
}

// NewPixelBuffer validates and wraps pix. The length must be exactly
// width*height*3.
func NewPixelBuffer(width, height int, pix []byte, t time.Time, seq uint64) (*PixelBuffer, error) {
	b := &PixelBuffer{
		width:  width,
		height: height,
		pix:    pix,
		time:   t,
		seq:    seq,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks the length invariant. A nil or zero PixelBuffer is invalid.
func (b *PixelBuffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrUnsupportedFormat)
	}
	if b.width <= 0 || b.height <= 0 {
		return fmt.Errorf("%w: invalid size %dx%d", ErrUnsupportedFormat, b.width, b.height)
	}
	if want := b.width * b.height * BytesPerPixel; len(b.pix) != want {
		return fmt.Errorf("%w: buffer length %d, want %d for %dx%d", ErrUnsupportedFormat, len(b.pix), want, b.width, b.height)
	}
	return nil
}

// WithPixels returns a buffer with the same size, time and sequence as b but
// different contents, validated against the same invariant.
func (b *PixelBuffer) WithPixels(pix []byte) (*PixelBuffer, error) {
	return NewPixelBuffer(b.width, b.height, pix, b.time, b.seq)
}

func (b *PixelBuffer) Width() int  { return b.width }
func (b *PixelBuffer) Height() int { return b.height }
func (b *PixelBuffer) Len() int    { return len(b.pix) }

// Pix returns the underlying bytes. They must be treated as read-only.
func (b *PixelBuffer) Pix() []byte { return b.pix }

// Time is the capture time of the frame.
func (b *PixelBuffer) Time() time.Time { return b.time }

// Seq is the capture sequence number, increasing per captured frame.
func (b *PixelBuffer) Seq() uint64 { return b.seq }

func (b *PixelBuffer) String() string {
	return fmt.Sprintf("PixelBuffer{%dx%d seq=%d}", b.width, b.height, b.seq)
}
