// Package opencv renders presenter output with OpenCV, either into a
// desktop window or as an MJPEG stream.
package opencv

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"gocv.io/x/gocv"

	"edgecam/video/sink"
)

// canvas implements sink.GPU in software. Textures are BGR Mats and a draw
// warps the texture onto the output frame through the quad's projection.
type canvas struct {
	// Caption, if set, is drawn over every presented frame.
	Caption func() string

	out      gocv.Mat
	viewport image.Point

	next     uint32
	programs map[sink.Program]bool
	textures map[sink.Texture]*gocv.Mat
	pool     *matPool
}

func newCanvas(size image.Point) *canvas {
	c := &canvas{
		out:      gocv.NewMat(),
		programs: make(map[sink.Program]bool),
		textures: make(map[sink.Texture]*gocv.Mat),
		pool:     newMatPool(maxTextures),
	}
	c.Viewport(size.X, size.Y)
	return c
}

// CompileProgram only checks that the sources look like shaders; there is
// no shader stage in a software canvas.
func (c *canvas) CompileProgram(vertex, fragment string) (sink.Program, error) {
	if !strings.Contains(vertex, "gl_Position") || !strings.Contains(fragment, "gl_FragColor") {
		return 0, errors.New("shader sources missing entry points")
	}
	c.next++
	p := sink.Program(c.next)
	c.programs[p] = true
	return p, nil
}

func (c *canvas) DeleteProgram(p sink.Program) {
	delete(c.programs, p)
}

func (c *canvas) GenTexture(params sink.TextureParams) (sink.Texture, error) {
	m, err := c.pool.get()
	if err != nil {
		return 0, err
	}
	c.next++
	t := sink.Texture(c.next)
	c.textures[t] = &m
	return t, nil
}

func (c *canvas) DeleteTexture(t sink.Texture) {
	if m, ok := c.textures[t]; ok {
		c.pool.put(*m)
		delete(c.textures, t)
	}
}

func (c *canvas) Viewport(width, height int) {
	if c.viewport.X == width && c.viewport.Y == height && !c.out.Empty() {
		return
	}
	c.out.Close()
	c.out = gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	c.viewport = image.Point{X: width, Y: height}
}

func (c *canvas) Clear() {
	c.out.SetTo(gocv.NewScalar(0, 0, 0, 0))
}

func (c *canvas) UseProgram(p sink.Program) {}

func (c *canvas) TexImage(t sink.Texture, width, height int, rgb []byte) error {
	m, ok := c.textures[t]
	if !ok {
		return fmt.Errorf("unknown texture %d", t)
	}
	src, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC3, rgb)
	if err != nil {
		return err
	}
	defer src.Close()
	gocv.CvtColor(src, m, gocv.ColorRGBToBGR)
	return nil
}

func (c *canvas) TexSubImage(t sink.Texture, width, height int, rgb []byte) error {
	m, ok := c.textures[t]
	if !ok {
		return fmt.Errorf("unknown texture %d", t)
	}
	if m.Cols() != width || m.Rows() != height {
		return fmt.Errorf("sub-image %dx%d does not match texture %dx%d", width, height, m.Cols(), m.Rows())
	}
	return c.TexImage(t, width, height, rgb)
}

func (c *canvas) DrawQuad(p sink.Program, t sink.Texture, mvp mgl32.Mat4) error {
	if !c.programs[p] {
		return fmt.Errorf("unknown program %d", p)
	}
	tex, ok := c.textures[t]
	if !ok {
		return fmt.Errorf("unknown texture %d", t)
	}
	if tex.Empty() {
		// Nothing uploaded yet; the cleared frame is the draw.
		return nil
	}

	src := gocv.NewPointVectorFromPoints(points(sink.TextureCorners(image.Point{X: tex.Cols(), Y: tex.Rows()})))
	defer src.Close()
	dst := gocv.NewPointVectorFromPoints(points(sink.QuadCorners(mvp, c.viewport)))
	defer dst.Close()

	m := gocv.GetPerspectiveTransform(src, dst)
	defer m.Close()
	gocv.WarpPerspective(*tex, &c.out, m, c.viewport)
	return nil
}

func points(v [4]mgl32.Vec2) []image.Point {
	out := make([]image.Point, len(v))
	for i, p := range v {
		out[i] = image.Point{X: int(p.X() + 0.5), Y: int(p.Y() + 0.5)}
	}
	return out
}

func (c *canvas) close() {
	for t := range c.textures {
		c.DeleteTexture(t)
	}
	c.pool.shutdown()
	c.out.Close()
}
