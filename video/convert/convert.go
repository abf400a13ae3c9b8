// Package convert turns captured frames into packed RGB PixelBuffers.
package convert

import (
	"fmt"

	"edgecam/video/frame"
)

// Convert copies f into a new PixelBuffer tagged with seq. It is
// deterministic and never produces partial output: a frame whose format is
// unknown or whose planes are too short fails with frame.ErrUnsupportedFormat.
func Convert(f frame.CapturedFrame, seq uint64) (*frame.PixelBuffer, error) {
	size := f.Size()
	w, h := size.X, size.Y
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: invalid frame size %v", frame.ErrUnsupportedFormat, size)
	}
	format := f.Format()
	planes, strides := f.Planes(), f.Strides()
	if n := format.PlaneCount(); n == 0 {
		return nil, fmt.Errorf("%w: %v", frame.ErrUnsupportedFormat, format)
	} else if len(planes) < n || len(strides) < n {
		return nil, fmt.Errorf("%w: %v needs %d planes, got %d", frame.ErrUnsupportedFormat, format, n, len(planes))
	}

	out := make([]byte, w*h*frame.BytesPerPixel)
	var err error
	switch format {
	case frame.FormatRGB24:
		err = packed(out, planes[0], strides[0], w, h, 3, 0, 1, 2)
	case frame.FormatBGR24:
		err = packed(out, planes[0], strides[0], w, h, 3, 2, 1, 0)
	case frame.FormatRGBA32:
		err = packed(out, planes[0], strides[0], w, h, 4, 0, 1, 2)
	case frame.FormatBGRA32, frame.FormatARGB8888:
		err = packed(out, planes[0], strides[0], w, h, 4, 2, 1, 0)
	case frame.FormatGray8:
		err = packed(out, planes[0], strides[0], w, h, 1, 0, 0, 0)
	case frame.FormatI420:
		err = planarYCbCr(out, planes, strides, w, h, 1, 1)
	case frame.FormatI422:
		err = planarYCbCr(out, planes, strides, w, h, 1, 0)
	case frame.FormatI444:
		err = planarYCbCr(out, planes, strides, w, h, 0, 0)
	}
	if err != nil {
		return nil, err
	}
	return frame.NewPixelBuffer(w, h, out, f.Time(), seq)
}

// packed copies a single-plane format with bpp bytes per pixel, taking the
// red, green and blue bytes at offsets r, g and b within each pixel.
func packed(out, src []byte, stride, w, h, bpp, r, g, b int) error {
	if err := checkPlane(src, stride, w*bpp, h); err != nil {
		return err
	}
	o := 0
	for y := 0; y < h; y++ {
		row := src[y*stride : y*stride+w*bpp]
		for x := 0; x < w*bpp; x += bpp {
			out[o] = row[x+r]
			out[o+1] = row[x+g]
			out[o+2] = row[x+b]
			o += 3
		}
	}
	return nil
}

// planarYCbCr converts planar YCbCr whose chroma planes are subsampled by
// 1<<xs horizontally and 1<<ys vertically, using BT.601 full-range
// coefficients in 16.16 fixed point, as image/color does.
func planarYCbCr(out []byte, planes [][]byte, strides []int, w, h int, xs, ys uint) error {
	cw, ch := (w+(1<<xs)-1)>>xs, (h+(1<<ys)-1)>>ys
	if err := checkPlane(planes[0], strides[0], w, h); err != nil {
		return err
	}
	if err := checkPlane(planes[1], strides[1], cw, ch); err != nil {
		return err
	}
	if err := checkPlane(planes[2], strides[2], cw, ch); err != nil {
		return err
	}
	o := 0
	for y := 0; y < h; y++ {
		yrow := planes[0][y*strides[0]:]
		urow := planes[1][(y>>ys)*strides[1]:]
		vrow := planes[2][(y>>ys)*strides[2]:]
		for x := 0; x < w; x++ {
			out[o], out[o+1], out[o+2] = ycbcrToRGB(yrow[x], urow[x>>xs], vrow[x>>xs])
			o += 3
		}
	}
	return nil
}

func ycbcrToRGB(y, cb, cr uint8) (uint8, uint8, uint8) {
	yy := int32(y) * 0x10101
	cb1 := int32(cb) - 128
	cr1 := int32(cr) - 128
	r := clamp(yy + 91881*cr1)
	g := clamp(yy - 22554*cb1 - 46802*cr1)
	b := clamp(yy + 116130*cb1)
	return r, g, b
}

func clamp(v int32) uint8 {
	if uint32(v)&0xff000000 == 0 {
		return uint8(v >> 16)
	}
	if v < 0 {
		return 0
	}
	return 255
}

func checkPlane(p []byte, stride, rowBytes, rows int) error {
	if stride < rowBytes {
		return fmt.Errorf("%w: stride %d shorter than row %d", frame.ErrUnsupportedFormat, stride, rowBytes)
	}
	if need := stride*(rows-1) + rowBytes; len(p) < need {
		return fmt.Errorf("%w: plane has %d bytes, need %d", frame.ErrUnsupportedFormat, len(p), need)
	}
	return nil
}
