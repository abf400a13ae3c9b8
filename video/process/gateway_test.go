package process

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"edgecam/video/frame"
)

type recordingTarget struct {
	mu     sync.Mutex
	frames []*frame.PixelBuffer
}

func (r *recordingTarget) SetFrame(b *frame.PixelBuffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, b)
	return nil
}

func (r *recordingTarget) seqs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uint64
	for _, f := range r.frames {
		out = append(out, f.Seq())
	}
	return out
}

func buffer(t *testing.T, seq uint64) *frame.PixelBuffer {
	t.Helper()
	b, err := frame.NewPixelBuffer(2, 2, make([]byte, 12), time.Now(), seq)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func invert(pix []byte, w, h int) ([]byte, error) {
	out := make([]byte, len(pix))
	for i, v := range pix {
		out[i] = 255 - v
	}
	return out, nil
}

func TestEnabledFlagSelectsFunction(t *testing.T) {
	target := &recordingTarget{}
	var enabled atomic.Bool
	enabled.Store(true)
	g := NewGateway(Options{Process: invert, Enabled: enabled.Load, Target: target})
	defer g.Close()

	g.Submit(buffer(t, 1))
	waitFor(t, "first frame", func() bool { return len(target.seqs()) == 1 })
	enabled.Store(false)
	g.Submit(buffer(t, 2))
	waitFor(t, "second frame", func() bool { return len(target.seqs()) == 2 })

	target.mu.Lock()
	defer target.mu.Unlock()
	if target.frames[0].Pix()[0] != 255 {
		t.Errorf("edge function not applied while enabled")
	}
	if target.frames[1].Pix()[0] != 0 {
		t.Errorf("pass-through not used while disabled")
	}
}

func TestFailuresAreDropped(t *testing.T) {
	target := &recordingTarget{}
	var calls atomic.Int32
	fn := func(pix []byte, w, h int) ([]byte, error) {
		switch calls.Add(1) {
		case 1:
			return nil, errors.New("boom")
		case 2:
			panic("native crash")
		case 3:
			return pix[:3], nil
		default:
			return pix, nil
		}
	}
	g := NewGateway(Options{Process: fn, Target: target})
	defer g.Close()

	for i := uint64(1); i <= 4; i++ {
		g.Submit(buffer(t, i))
		waitFor(t, "call", func() bool { return calls.Load() == int32(i) })
	}
	waitFor(t, "delivery", func() bool { return len(target.seqs()) == 1 })
	if got := target.seqs(); got[0] != 4 {
		t.Fatalf("delivered %v, want only seq 4", got)
	}
	if g.Failed() != 3 || g.Processed() != 1 {
		t.Fatalf("failed=%d processed=%d", g.Failed(), g.Processed())
	}
}

func TestSingleInFlightAndSupersede(t *testing.T) {
	target := &recordingTarget{}
	release := make(chan struct{})
	var inFlight, maxInFlight atomic.Int32
	var calls atomic.Int32
	fn := func(pix []byte, w, h int) ([]byte, error) {
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		if calls.Add(1) == 1 {
			<-release
		}
		inFlight.Add(-1)
		return pix, nil
	}
	g := NewGateway(Options{Process: fn, Target: target})
	defer g.Close()

	g.Submit(buffer(t, 1))
	waitFor(t, "first call", func() bool { return calls.Load() == 1 })
	start := time.Now()
	for i := uint64(2); i <= 5; i++ {
		g.Submit(buffer(t, i))
	}
	if el := time.Since(start); el > 100*time.Millisecond {
		t.Fatalf("Submit blocked for %v", el)
	}
	close(release)

	waitFor(t, "two deliveries", func() bool { return len(target.seqs()) == 2 })
	time.Sleep(20 * time.Millisecond)
	got := target.seqs()
	if len(got) != 2 || got[0] != 1 || got[1] != 5 {
		t.Fatalf("delivered %v, want [1 5]", got)
	}
	if g.Superseded() != 3 {
		t.Fatalf("superseded %d, want 3", g.Superseded())
	}
	if maxInFlight.Load() != 1 {
		t.Fatalf("max in-flight %d", maxInFlight.Load())
	}
}

func TestCloseDuringInFlightCall(t *testing.T) {
	target := &recordingTarget{}
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(pix []byte, w, h int) ([]byte, error) {
		close(started)
		<-release
		return pix, nil
	}
	g := NewGateway(Options{Process: fn, Target: target, CloseTimeout: 20 * time.Millisecond})
	g.Submit(buffer(t, 1))
	<-started

	start := time.Now()
	g.Close()
	if el := time.Since(start); el > time.Second {
		t.Fatalf("Close blocked for %v", el)
	}
	close(release)
	time.Sleep(20 * time.Millisecond)
	if n := len(target.seqs()); n != 0 {
		t.Fatalf("result delivered after Close: %d frames", n)
	}
	g.Submit(buffer(t, 2))
	g.Close()
}

func TestNoTargetDiscardsFrames(t *testing.T) {
	var calls atomic.Int32
	fn := func(pix []byte, w, h int) ([]byte, error) {
		calls.Add(1)
		return pix, nil
	}
	g := NewGateway(Options{Process: fn})
	defer g.Close()

	g.Submit(buffer(t, 1))
	waitFor(t, "processing", func() bool { return g.Processed() == 1 })
	g.Submit(buffer(t, 2))
	waitFor(t, "second frame", func() bool { return g.Processed() == 2 })
	if g.Failed() != 0 || calls.Load() != 2 {
		t.Fatalf("failed=%d calls=%d", g.Failed(), calls.Load())
	}
}
