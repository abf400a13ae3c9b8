package sink

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// fakeGPU records every call it receives.
type fakeGPU struct {
	mu sync.Mutex

	failCompile bool
	failTexture bool

	nextHandle uint32
	live       map[string]bool
	calls      []string
	uploads    [][]byte
	drawn      int
	mvp        mgl32.Mat4
}

func newFakeGPU() *fakeGPU {
	return &fakeGPU{live: make(map[string]bool)}
}

func (g *fakeGPU) record(s string) {
	g.calls = append(g.calls, s)
}

func (g *fakeGPU) CompileProgram(vertex, fragment string) (Program, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("compile")
	if g.failCompile {
		return 0, errors.New("syntax error")
	}
	g.nextHandle++
	g.live[fmt.Sprintf("program%d", g.nextHandle)] = true
	return Program(g.nextHandle), nil
}

func (g *fakeGPU) DeleteProgram(p Program) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("deleteProgram")
	delete(g.live, fmt.Sprintf("program%d", p))
}

func (g *fakeGPU) GenTexture(TextureParams) (Texture, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("genTexture")
	if g.failTexture {
		return 0, errors.New("out of memory")
	}
	g.nextHandle++
	g.live[fmt.Sprintf("texture%d", g.nextHandle)] = true
	return Texture(g.nextHandle), nil
}

func (g *fakeGPU) DeleteTexture(t Texture) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("deleteTexture")
	delete(g.live, fmt.Sprintf("texture%d", t))
}

func (g *fakeGPU) Viewport(w, h int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record(fmt.Sprintf("viewport %dx%d", w, h))
}

func (g *fakeGPU) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("clear")
}

func (g *fakeGPU) UseProgram(Program) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("use")
}

func (g *fakeGPU) TexImage(t Texture, w, h int, rgb []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record(fmt.Sprintf("texImage %dx%d", w, h))
	g.uploads = append(g.uploads, rgb)
	return nil
}

func (g *fakeGPU) TexSubImage(t Texture, w, h int, rgb []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record(fmt.Sprintf("texSubImage %dx%d", w, h))
	g.uploads = append(g.uploads, rgb)
	return nil
}

func (g *fakeGPU) DrawQuad(p Program, t Texture, mvp mgl32.Mat4) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("draw")
	g.drawn++
	g.mvp = mvp
	return nil
}

func (g *fakeGPU) callLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGPU) draws() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.drawn
}

func (g *fakeGPU) liveObjects() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.live)
}

// fakeHost is a window of adjustable size.
type fakeHost struct {
	mu     sync.Mutex
	size   image.Point
	closed bool
	shown  int
}

func (h *fakeHost) Size() image.Point {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

func (h *fakeHost) Present() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shown++
	return !h.closed
}

func (h *fakeHost) resize(w, ht int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.size = image.Point{X: w, Y: ht}
}

func (h *fakeHost) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

func imagePoint(x, y int) image.Point {
	return image.Point{X: x, Y: y}
}
