package sink

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"edgecam/video/frame"
)

func pixels(t *testing.T, w, h int, fill byte, seq uint64) *frame.PixelBuffer {
	t.Helper()
	pix := make([]byte, w*h*3)
	for i := range pix {
		pix[i] = fill
	}
	b, err := frame.NewPixelBuffer(w, h, pix, time.Now(), seq)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func ready(t *testing.T, g *fakeGPU) *Presenter {
	t.Helper()
	p := NewPresenter(g)
	if err := p.OnSurfaceCreated(); err != nil {
		t.Fatal(err)
	}
	if err := p.OnSurfaceResized(640, 480); err != nil {
		t.Fatal(err)
	}
	return p
}

func count(calls []string, prefix string) int {
	n := 0
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func TestLastWriterWins(t *testing.T) {
	g := newFakeGPU()
	p := ready(t, g)

	first := pixels(t, 4, 4, 1, 1)
	second := pixels(t, 4, 4, 2, 2)
	if err := p.SetFrame(first); err != nil {
		t.Fatal(err)
	}
	if err := p.SetFrame(second); err != nil {
		t.Fatal(err)
	}
	p.OnRenderTick()
	p.OnRenderTick()

	if len(g.uploads) != 1 {
		t.Fatalf("%d uploads, want 1", len(g.uploads))
	}
	if g.uploads[0][0] != 2 {
		t.Fatalf("uploaded first buffer instead of second")
	}
	if p.Dropped() != 1 || p.Uploads() != 1 {
		t.Fatalf("dropped=%d uploads=%d", p.Dropped(), p.Uploads())
	}
	if g.draws() != 2 {
		t.Fatalf("%d draws, want one per tick", g.draws())
	}
}

func TestTextureReallocatedOnSizeChange(t *testing.T) {
	g := newFakeGPU()
	p := ready(t, g)
	for _, b := range []*frame.PixelBuffer{
		pixels(t, 4, 4, 0, 1),
		pixels(t, 4, 4, 0, 2),
		pixels(t, 8, 2, 0, 3),
		pixels(t, 8, 2, 0, 4),
	} {
		p.SetFrame(b)
		p.OnRenderTick()
	}
	calls := g.callLog()
	if n := count(calls, "texImage"); n != 2 {
		t.Fatalf("%d texImage calls, want 2: %v", n, calls)
	}
	if n := count(calls, "texSubImage"); n != 2 {
		t.Fatalf("%d texSubImage calls, want 2: %v", n, calls)
	}
}

func TestSetFrameRejectsInvalid(t *testing.T) {
	p := NewPresenter(newFakeGPU())
	if err := p.SetFrame(&frame.PixelBuffer{}); !errors.Is(err, frame.ErrUnsupportedFormat) {
		t.Fatalf("got %v", err)
	}
	if err := p.SetFrame(nil); !errors.Is(err, frame.ErrUnsupportedFormat) {
		t.Fatalf("got %v", err)
	}
}

func TestToggleEdgeDetectionPair(t *testing.T) {
	p := NewPresenter(newFakeGPU())
	orig := p.EdgeDetectionEnabled()
	if got := p.ToggleEdgeDetection(); got == orig {
		t.Fatal("toggle did not flip")
	}
	p.ToggleEdgeDetection()
	if p.EdgeDetectionEnabled() != orig {
		t.Fatal("two toggles did not restore the original value")
	}
}

func TestGpuInitFailureStopsRendering(t *testing.T) {
	for name, g := range map[string]*fakeGPU{
		"compile": {failCompile: true, live: map[string]bool{}},
		"texture": {failTexture: true, live: map[string]bool{}},
	} {
		p := NewPresenter(g)
		var reported error
		p.OnError = func(err error) { reported = err }

		err := p.OnSurfaceCreated()
		if !errors.Is(err, frame.ErrGpuInitFailure) {
			t.Fatalf("%s: got %v, want ErrGpuInitFailure", name, err)
		}
		if !errors.Is(reported, frame.ErrGpuInitFailure) {
			t.Fatalf("%s: failure not reported upward: %v", name, reported)
		}
		if p.State() != StateFailed {
			t.Fatalf("%s: state %v", name, p.State())
		}
		if g.liveObjects() != 0 {
			t.Fatalf("%s: leaked %d GPU objects", name, g.liveObjects())
		}

		before := len(g.callLog())
		p.SetFrame(pixels(t, 2, 2, 0, 1))
		p.OnRenderTick()
		p.OnRenderTick()
		if after := len(g.callLog()); after != before {
			t.Fatalf("%s: tick touched the GPU: %v", name, g.callLog()[before:])
		}
		if err := p.OnSurfaceResized(10, 10); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("%s: resize in failed state: %v", name, err)
		}
	}
}

func TestSurfaceLifecycle(t *testing.T) {
	g := newFakeGPU()
	p := NewPresenter(g)
	if err := p.OnSurfaceResized(10, 10); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("resize before create: %v", err)
	}
	p.OnRenderTick()
	if g.draws() != 0 {
		t.Fatal("drew before surface creation")
	}

	if err := p.OnSurfaceCreated(); err != nil {
		t.Fatal(err)
	}
	if p.State() != StateSurfaceReady {
		t.Fatalf("state %v", p.State())
	}
	if err := p.OnSurfaceCreated(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double create: %v", err)
	}
	p.SetFrame(pixels(t, 2, 2, 7, 1))
	p.OnRenderTick()
	if p.State() != StateRendering {
		t.Fatalf("state %v", p.State())
	}

	p.OnSurfaceDestroyed()
	if p.State() != StateSurfaceLost || g.liveObjects() != 0 {
		t.Fatalf("state %v, live objects %d", p.State(), g.liveObjects())
	}
	p.OnRenderTick()
	draws := g.draws()

	if err := p.OnSurfaceCreated(); err != nil {
		t.Fatal(err)
	}
	p.OnRenderTick()
	if g.draws() != draws+1 {
		t.Fatal("no draw after surface recreated")
	}
	// The last frame is restored into the new texture.
	if last := g.uploads[len(g.uploads)-1]; last[0] != 7 || len(g.uploads) != 2 {
		t.Fatalf("last frame not restored, uploads=%d", len(g.uploads))
	}

	p.Destroy()
	if p.State() != StateDestroyed || g.liveObjects() != 0 {
		t.Fatalf("state %v, live objects %d", p.State(), g.liveObjects())
	}
	if err := p.OnSurfaceCreated(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("create after destroy: %v", err)
	}
}

func TestProjectionUsesAspectRatio(t *testing.T) {
	g := newFakeGPU()
	p := ready(t, g)
	p.OnRenderTick()
	if !g.mvp.ApproxEqual(Projection(640, 480)) {
		t.Fatalf("mvp %v", g.mvp)
	}
	if g.mvp.ApproxEqual(mgl32.Ident4()) {
		t.Fatal("mvp not updated on resize")
	}
	// The quad's top edge lands at the top of clip space.
	v := g.mvp.Mul4x1(mgl32.Vec4{-1, 1, 0, 1})
	if y := v.Y() / v.W(); y < 0.99 || y > 1.01 {
		t.Fatalf("top edge maps to y=%v", y)
	}
}

func TestRunLoop(t *testing.T) {
	g := newFakeGPU()
	h := &fakeHost{size: imagePoint(320, 240)}
	p := NewPresenter(g)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunLoop(ctx, p, h, time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for p.Ticks() < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	h.resize(100, 50)
	p.SetFrame(pixels(t, 2, 2, 3, 1))
	for p.Uploads() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if p.State() != StateDestroyed {
		t.Fatalf("state %v after loop", p.State())
	}
	calls := g.callLog()
	if count(calls, "viewport 320x240") != 1 || count(calls, "viewport 100x50") != 1 {
		t.Fatalf("resizes not forwarded: %v", calls)
	}
	if g.liveObjects() != 0 {
		t.Fatalf("leaked %d GPU objects", g.liveObjects())
	}
}

func TestRunLoopHostClosed(t *testing.T) {
	h := &fakeHost{size: imagePoint(10, 10)}
	h.close()
	if err := RunLoop(context.Background(), NewPresenter(newFakeGPU()), h, time.Millisecond); err != nil {
		t.Fatal(err)
	}
}

func TestRunLoopInitFailure(t *testing.T) {
	g := newFakeGPU()
	g.failCompile = true
	err := RunLoop(context.Background(), NewPresenter(g), &fakeHost{size: imagePoint(10, 10)}, time.Millisecond)
	if !errors.Is(err, frame.ErrGpuInitFailure) {
		t.Fatalf("got %v", err)
	}
}
