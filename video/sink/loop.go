package sink

import (
	"context"
	"image"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
)

// Host is the window system side of a render surface.
type Host interface {
	// Size returns the current drawable size.
	Size() image.Point
	// Present shows the drawn frame. It returns false once the surface has
	// gone away, for example because the window was closed.
	Present() bool
}

// RunLoop drives p from the calling goroutine, which it locks to its OS
// thread: create the surface, then tick every interval until ctx is done or
// the host surface disappears. Resizes are detected between ticks. The
// presenter is destroyed on return.
//
// A GPU init failure is returned immediately.
func RunLoop(ctx context.Context, p *Presenter, host Host, interval time.Duration) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer p.Destroy()

	if err := p.OnSurfaceCreated(); err != nil {
		return err
	}
	size := host.Size()
	if err := p.OnSurfaceResized(size.X, size.Y); err != nil {
		log.Warnf("Initial resize: %v", err)
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			p.OnSurfaceDestroyed()
			return nil
		case <-t.C:
		}

		if s := host.Size(); s != size {
			size = s
			if err := p.OnSurfaceResized(size.X, size.Y); err != nil {
				log.Warnf("Resize to %v: %v", size, err)
			}
		}
		p.OnRenderTick()
		if !host.Present() {
			log.Infof("Render surface closed")
			p.OnSurfaceDestroyed()
			return nil
		}
	}
}
