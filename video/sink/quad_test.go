package sink

import (
	"image"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestQuadCornersIdentityFillsViewport(t *testing.T) {
	got := QuadCorners(mgl32.Ident4(), image.Point{X: 200, Y: 100})
	want := [4]mgl32.Vec2{{0, 100}, {200, 100}, {0, 0}, {200, 0}}
	for i := range want {
		if !got[i].ApproxEqual(want[i]) {
			t.Fatalf("corner %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTextureCornersMatchQuad(t *testing.T) {
	got := TextureCorners(image.Point{X: 640, Y: 480})
	// Bottom-left vertex samples the bottom-left texel; rows are top first.
	want := [4]mgl32.Vec2{{0, 480}, {640, 480}, {0, 0}, {640, 0}}
	for i := range want {
		if !got[i].ApproxEqual(want[i]) {
			t.Fatalf("corner %d: got %v, want %v", i, got[i], want[i])
		}
	}
}
