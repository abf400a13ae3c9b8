package sink

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"

	"edgecam/video/frame"
)

// State is the presenter lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateSurfaceReady
	StateRendering
	StateSurfaceLost
	StateDestroyed
	// StateFailed is entered when GPU setup fails; nothing is drawn anymore.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSurfaceReady:
		return "surface-ready"
	case StateRendering:
		return "rendering"
	case StateSurfaceLost:
		return "surface-lost"
	case StateDestroyed:
		return "destroyed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ErrInvalidState is returned for surface events that do not apply to the
// current state.
var ErrInvalidState = errors.New("invalid presenter state")

// Presenter owns the GPU objects that display the latest processed frame.
// Surface and tick events must come from the render goroutine; SetFrame and
// the edge detection toggle may be called from anywhere.
type Presenter struct {
	// OnError is called once when rendering fails permanently.
	OnError func(error)

	gpu     GPU
	mailbox frame.Mailbox[frame.PixelBuffer]
	edge    atomic.Bool
	state   atomic.Int32

	uploads atomic.Uint64
	ticks   atomic.Uint64

	// Render goroutine only.
	program    Program
	texture    Texture
	texW, texH int
	allocated  bool
	last       *frame.PixelBuffer
	mvp        mgl32.Mat4
}

func NewPresenter(gpu GPU) *Presenter {
	p := &Presenter{
		gpu: gpu,
		mvp: mgl32.Ident4(),
	}
	p.edge.Store(true)
	return p
}

func (p *Presenter) State() State {
	return State(p.state.Load())
}

func (p *Presenter) setState(s State) {
	old := State(p.state.Swap(int32(s)))
	if old != s {
		log.Debugf("Presenter %v -> %v", old, s)
	}
}

// OnSurfaceCreated builds the shader program and texture. On failure the
// presenter enters StateFailed and the error, wrapping
// frame.ErrGpuInitFailure, is returned and passed to OnError.
func (p *Presenter) OnSurfaceCreated() error {
	switch st := p.State(); st {
	case StateUninitialized, StateSurfaceLost:
	default:
		return fmt.Errorf("%w: surface created while %v", ErrInvalidState, st)
	}

	prog, err := p.gpu.CompileProgram(VertexShader, FragmentShader)
	if err != nil {
		return p.fail(fmt.Errorf("%w: shader program: %v", frame.ErrGpuInitFailure, err))
	}
	tex, err := p.gpu.GenTexture(DefaultTextureParams)
	if err != nil {
		p.gpu.DeleteProgram(prog)
		return p.fail(fmt.Errorf("%w: texture: %v", frame.ErrGpuInitFailure, err))
	}
	p.program, p.texture = prog, tex
	p.allocated = false
	p.setState(StateSurfaceReady)
	log.Infof("Render surface ready")
	return nil
}

func (p *Presenter) fail(err error) error {
	p.setState(StateFailed)
	log.Errorf("Rendering disabled: %v", err)
	if p.OnError != nil {
		p.OnError(err)
	}
	return err
}

// OnSurfaceResized updates the viewport and projection.
func (p *Presenter) OnSurfaceResized(width, height int) error {
	switch st := p.State(); st {
	case StateSurfaceReady, StateRendering:
	default:
		return fmt.Errorf("%w: resize while %v", ErrInvalidState, st)
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	p.gpu.Viewport(width, height)
	p.mvp = Projection(width, height)
	return nil
}

// OnRenderTick draws one frame, uploading the latest buffer first if a new
// one arrived. Outside SurfaceReady and Rendering it does nothing.
func (p *Presenter) OnRenderTick() {
	switch p.State() {
	case StateSurfaceReady:
		p.setState(StateRendering)
	case StateRendering:
	default:
		return
	}
	p.ticks.Add(1)

	p.gpu.Clear()
	p.gpu.UseProgram(p.program)

	b := p.mailbox.Take()
	if b == nil && !p.allocated && p.last != nil {
		// Surface was recreated; restore the last frame.
		b = p.last
	}
	if b != nil {
		if err := p.upload(b); err != nil {
			log.Errorf("Texture upload of %v failed: %v", b, err)
		}
	}

	if err := p.gpu.DrawQuad(p.program, p.texture, p.mvp); err != nil {
		log.Errorf("Draw failed: %v", err)
	}
}

func (p *Presenter) upload(b *frame.PixelBuffer) error {
	var err error
	if !p.allocated || b.Width() != p.texW || b.Height() != p.texH {
		err = p.gpu.TexImage(p.texture, b.Width(), b.Height(), b.Pix())
	} else {
		err = p.gpu.TexSubImage(p.texture, b.Width(), b.Height(), b.Pix())
	}
	if err != nil {
		return err
	}
	p.texW, p.texH = b.Width(), b.Height()
	p.allocated = true
	p.last = b
	p.uploads.Add(1)
	return nil
}

// OnSurfaceDestroyed releases GPU objects. The last frame is kept and
// restored once a new surface is created.
func (p *Presenter) OnSurfaceDestroyed() {
	switch p.State() {
	case StateSurfaceReady, StateRendering:
		p.release()
		p.setState(StateSurfaceLost)
	}
}

func (p *Presenter) release() {
	p.gpu.DeleteTexture(p.texture)
	p.gpu.DeleteProgram(p.program)
	p.allocated = false
}

// Destroy releases everything. The presenter cannot be used afterwards.
func (p *Presenter) Destroy() {
	switch p.State() {
	case StateSurfaceReady, StateRendering:
		p.release()
	}
	p.setState(StateDestroyed)
	p.mailbox.Take()
	p.last = nil
}

// SetFrame publishes b as the next frame to display. It never blocks; a
// frame not yet uploaded is replaced. Invalid buffers are rejected.
func (p *Presenter) SetFrame(b *frame.PixelBuffer) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if p.State() == StateDestroyed {
		return nil
	}
	p.mailbox.Put(b)
	return nil
}

// ToggleEdgeDetection flips the edge detection flag and returns the new
// value. Frames already processed are not affected.
func (p *Presenter) ToggleEdgeDetection() bool {
	for {
		old := p.edge.Load()
		if p.edge.CompareAndSwap(old, !old) {
			log.Infof("Edge detection enabled: %v", !old)
			return !old
		}
	}
}

func (p *Presenter) SetEdgeDetection(enabled bool) {
	p.edge.Store(enabled)
}

func (p *Presenter) EdgeDetectionEnabled() bool {
	return p.edge.Load()
}

// Received is the number of buffers accepted by SetFrame.
func (p *Presenter) Received() uint64 { return p.mailbox.Puts() }

// Uploads is the number of buffers uploaded to the texture.
func (p *Presenter) Uploads() uint64 { return p.uploads.Load() }

// Ticks is the number of render ticks that drew.
func (p *Presenter) Ticks() uint64 { return p.ticks.Load() }

// Dropped is the number of buffers replaced before they were uploaded.
func (p *Presenter) Dropped() uint64 { return p.mailbox.Drops() }
