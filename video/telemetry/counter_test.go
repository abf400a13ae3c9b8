package telemetry

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Unix(1000, 0)}
}

func TestCounterThirtyInOneSecond(t *testing.T) {
	clock := newClock()
	var got []int
	c := NewCounter(clock.Now, func(fps int) { got = append(got, fps) })

	// 29 frames spread over the first 966ms, the 30th lands at 1000ms.
	for i := 0; i < 29; i++ {
		clock.Advance(33 * time.Millisecond)
		if _, ok := c.Tick(); ok {
			t.Fatalf("published early at frame %d", i)
		}
	}
	clock.Advance(time.Second - 29*33*time.Millisecond)
	fps, ok := c.Tick()
	if !ok {
		t.Fatalf("expected a value after one second")
	}
	if fps != 30 {
		t.Errorf("got fps %d, want 30", fps)
	}
	if len(got) != 1 || got[0] != 30 {
		t.Errorf("published %v, want [30]", got)
	}
	if c.FPS() != 30 {
		t.Errorf("FPS() = %d, want 30", c.FPS())
	}
}

func TestCounterFloorsLongWindow(t *testing.T) {
	clock := newClock()
	c := NewCounter(clock.Now, nil)

	for i := 0; i < 9; i++ {
		clock.Advance(100 * time.Millisecond)
		c.Tick()
	}
	// 10 frames in 1500ms is 6.66...
	clock.Advance(600 * time.Millisecond)
	fps, ok := c.Tick()
	if !ok || fps != 6 {
		t.Errorf("got (%d, %v), want (6, true)", fps, ok)
	}
}

func TestCounterStartsNewWindow(t *testing.T) {
	clock := newClock()
	c := NewCounter(clock.Now, nil)

	clock.Advance(time.Second)
	if fps, ok := c.Tick(); !ok || fps != 1 {
		t.Fatalf("got (%d, %v), want (1, true)", fps, ok)
	}
	clock.Advance(500 * time.Millisecond)
	if _, ok := c.Tick(); ok {
		t.Errorf("second window published after 500ms")
	}
	clock.Advance(500 * time.Millisecond)
	if fps, ok := c.Tick(); !ok || fps != 2 {
		t.Errorf("got (%d, %v), want (2, true)", fps, ok)
	}
}

func TestCounterReset(t *testing.T) {
	clock := newClock()
	c := NewCounter(clock.Now, nil)
	for i := 0; i < 50; i++ {
		c.Tick()
	}
	clock.Advance(2 * time.Second)
	c.Reset()
	clock.Advance(time.Second)
	if fps, ok := c.Tick(); !ok || fps != 1 {
		t.Errorf("got (%d, %v), want (1, true)", fps, ok)
	}
}

func TestCounterConcurrentTicks(t *testing.T) {
	clock := newClock()
	c := NewCounter(clock.Now, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				c.Tick()
			}
		}()
	}
	wg.Wait()
	clock.Advance(time.Second)
	// 100 ticks plus this one, all in the same window.
	if fps, ok := c.Tick(); !ok || fps != 101 {
		t.Errorf("got (%d, %v), want (101, true)", fps, ok)
	}
}
