package sink

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Program and Texture are opaque GPU object handles.
type (
	Program uint32
	Texture uint32
)

type Filter int

const (
	FilterLinear Filter = iota
	FilterNearest
)

type Wrap int

const (
	WrapClampToEdge Wrap = iota
	WrapRepeat
)

type TextureParams struct {
	MinFilter, MagFilter Filter
	WrapS, WrapT         Wrap
}

// DefaultTextureParams is linear filtering clamped at the edges.
var DefaultTextureParams = TextureParams{
	MinFilter: FilterLinear,
	MagFilter: FilterLinear,
	WrapS:     WrapClampToEdge,
	WrapT:     WrapClampToEdge,
}

// GPU is the display boundary. All methods are called from the render
// goroutine only.
type GPU interface {
	CompileProgram(vertex, fragment string) (Program, error)
	DeleteProgram(p Program)

	GenTexture(params TextureParams) (Texture, error)
	DeleteTexture(t Texture)

	Viewport(width, height int)
	Clear()
	UseProgram(p Program)

	// TexImage allocates storage for t at the given size and fills it with
	// packed RGB.
	TexImage(t Texture, width, height int, rgb []byte) error
	// TexSubImage replaces all of t's contents; the size must match the last
	// TexImage.
	TexSubImage(t Texture, width, height int, rgb []byte) error

	// DrawQuad draws QuadVertices textured with t using QuadTexCoords.
	DrawQuad(p Program, t Texture, mvp mgl32.Mat4) error
}

// QuadVertices is a full-screen triangle strip in clip space.
var QuadVertices = []float32{
	-1, -1, 0,
	1, -1, 0,
	-1, 1, 0,
	1, 1, 0,
}

// QuadTexCoords maps the top row of the texture to the top of the quad.
var QuadTexCoords = []float32{
	0, 1,
	1, 1,
	0, 0,
	1, 0,
}

const VertexShader = `
uniform mat4 uMVPMatrix;
attribute vec4 vPosition;
attribute vec2 vTexCoord;
varying vec2 v_TexCoord;
void main() {
    gl_Position = uMVPMatrix * vPosition;
    v_TexCoord = vTexCoord;
}
`

const FragmentShader = `
precision mediump float;
varying vec2 v_TexCoord;
uniform sampler2D u_Texture;
void main() {
    gl_FragColor = texture2D(u_Texture, v_TexCoord);
}
`

// Projection returns the model-view-projection transform for a surface of
// the given size: a frustum matching the aspect ratio viewed from z=-3.
func Projection(width, height int) mgl32.Mat4 {
	ratio := float32(width) / float32(height)
	proj := mgl32.Frustum(-ratio, ratio, -1, 1, 3, 7)
	view := mgl32.LookAt(0, 0, -3, 0, 0, 0, 0, 1, 0)
	return proj.Mul4(view)
}
