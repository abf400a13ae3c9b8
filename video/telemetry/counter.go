// Package telemetry derives frame rates from the pipeline and exports them.
package telemetry

import (
	"sync"
	"time"
)

// Window is the minimum span over which a frame rate is computed.
const Window = time.Second

// Counter computes frames per second from frame arrivals. Tick may be called
// from any goroutine concurrently with FPS.
type Counter struct {
	now     func() time.Time
	publish func(fps int)

	mu    sync.Mutex
	count int
	start time.Time
	fps   int
}

// NewCounter starts a window now. publish, if set, receives every computed
// value; it is called outside the counter's lock. A nil clock means
// time.Now.
func NewCounter(now func() time.Time, publish func(fps int)) *Counter {
	if now == nil {
		now = time.Now
	}
	return &Counter{
		now:     now,
		publish: publish,
		start:   now(),
	}
}

// Reset discards the current window and starts a new one.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = 0
	c.start = c.now()
}

// Tick records one frame. Once at least Window has passed it computes
// floor(count*1000/elapsedMs), starts a new window and returns the value
// with published set.
func (c *Counter) Tick() (fps int, published bool) {
	c.mu.Lock()
	c.count++
	now := c.now()
	elapsed := now.Sub(c.start)
	if elapsed < Window {
		c.mu.Unlock()
		return 0, false
	}
	fps = int(int64(c.count) * 1000 / elapsed.Milliseconds())
	c.fps = fps
	c.count = 0
	c.start = now
	c.mu.Unlock()

	if c.publish != nil {
		c.publish(fps)
	}
	return fps, true
}

// FPS returns the last published value.
func (c *Counter) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}
