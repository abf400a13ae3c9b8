package opencv

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// maxTextures bounds live texture storage, like a GPU running out of memory.
const maxTextures = 16

type matRequest struct {
	m   gocv.Mat
	err error
}

// matPool recycles texture storage across surface recreation. Requests are
// served by a single goroutine.
type matPool struct {
	new   chan chan matRequest
	free  chan gocv.Mat
	close chan bool

	limit     int
	allocated int
	available []gocv.Mat
}

func newMatPool(limit int) *matPool {
	p := &matPool{
		new:   make(chan chan matRequest),
		free:  make(chan gocv.Mat),
		close: make(chan bool),
		limit: limit,
	}
	go func() {
		for {
			select {
			case done := <-p.close:
				for _, m := range p.available {
					m.Close()
					p.allocated--
				}
				p.available = nil
				if p.allocated > 0 {
					log.Warnf("Texture pool closed with %d textures still in use", p.allocated)
				}
				p.close <- done
				return
			case m := <-p.free:
				p.available = append(p.available, m)
			case r := <-p.new:
				if n := len(p.available); n > 0 {
					m := p.available[n-1]
					p.available = p.available[:n-1]
					r <- matRequest{m: m}
					continue
				}
				if p.allocated >= p.limit {
					r <- matRequest{err: fmt.Errorf("texture limit of %d reached", p.limit)}
					continue
				}
				p.allocated++
				r <- matRequest{m: gocv.NewMat()}
			}
		}
	}()
	return p
}

func (p *matPool) get() (gocv.Mat, error) {
	r := make(chan matRequest)
	p.new <- r
	res := <-r
	return res.m, res.err
}

func (p *matPool) put(m gocv.Mat) {
	p.free <- m
}

// shutdown releases pooled storage. Mats still held by callers are theirs to
// close.
func (p *matPool) shutdown() {
	p.close <- true
	<-p.close
}
