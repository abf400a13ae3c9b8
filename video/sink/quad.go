package sink

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
)

// QuadCorners projects the four QuadVertices through mvp into pixel
// coordinates of a viewport, origin top-left, in QuadVertices order.
// Software backends use it to place the texture.
func QuadCorners(mvp mgl32.Mat4, viewport image.Point) [4]mgl32.Vec2 {
	var out [4]mgl32.Vec2
	for i := range out {
		v := mvp.Mul4x1(mgl32.Vec4{QuadVertices[i*3], QuadVertices[i*3+1], QuadVertices[i*3+2], 1})
		w := v.W()
		if w == 0 {
			w = 1
		}
		ndcX, ndcY := v.X()/w, v.Y()/w
		out[i] = mgl32.Vec2{
			(ndcX + 1) / 2 * float32(viewport.X),
			(1 - ndcY) / 2 * float32(viewport.Y),
		}
	}
	return out
}

// TextureCorners returns the texel positions matching QuadCorners for a
// texture of the given size, following QuadTexCoords.
func TextureCorners(size image.Point) [4]mgl32.Vec2 {
	var out [4]mgl32.Vec2
	for i := range out {
		out[i] = mgl32.Vec2{QuadTexCoords[i*2] * float32(size.X), QuadTexCoords[i*2+1] * float32(size.Y)}
	}
	return out
}
