package opencv

import (
	"fmt"
	"image"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// MJPEG multi-streaming, based on implementation by saljam:
// https://github.com/saljam/mjpeg/blob/master/stream.go

const boundaryWord = "MJPEGBOUNDARY"
const headerf = "\r\n" +
	"--" + boundaryWord + "\r\n" +
	"Content-Type: image/jpeg\r\n" +
	"Content-Length: %d\r\n" +
	"X-Timestamp: 0.000000\r\n" +
	"\r\n"

// MJPEG renders presenter output into a multipart JPEG stream served over
// HTTP. It is both the GPU and the Host for sink.RunLoop. Encoding is
// skipped while nobody is watching.
type MJPEG struct {
	*canvas

	size image.Point

	m    map[chan []byte]bool
	lock sync.Mutex
	done chan struct{}
	once sync.Once
}

func NewMJPEG(size image.Point) *MJPEG {
	return &MJPEG{
		canvas: newCanvas(size),
		size:   size,
		m:      make(map[chan []byte]bool),
		done:   make(chan struct{}),
	}
}

func (s *MJPEG) Size() image.Point {
	return s.size
}

func (s *MJPEG) empty() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.m) == 0
}

// Present encodes the drawn frame and offers it to every connected client.
func (s *MJPEG) Present() bool {
	select {
	case <-s.done:
		return false
	default:
	}
	if s.empty() {
		// Nobody is listening; don't bother encoding.
		return true
	}

	s.drawCaption()
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, s.out)
	if err != nil {
		log.Errorf("Error encoding to JPG for MJPEG stream: %v", err)
		return true
	}
	defer buf.Close()
	jpeg := buf.GetBytes()

	header := fmt.Sprintf(headerf, len(jpeg))
	// buf is freed on return, so clients get their own copy.
	out := make([]byte, len(header)+len(jpeg))
	copy(out, header)
	copy(out[len(header):], jpeg)

	s.lock.Lock()
	defer s.lock.Unlock()
	for c := range s.m {
		select {
		case c <- out:
		default:
			// Skip listeners not ready for next frame.
		}
	}
	return true
}

// ServeHTTP implements http.Handler interface, serving MJPEG.
func (s *MJPEG) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clog := log.WithField("addr", r.RemoteAddr)
	clog.Infof("MJPEG stream connected")
	w.Header().Add("Content-Type", "multipart/x-mixed-replace;boundary="+boundaryWord)

	c := make(chan []byte, 1)
	s.lock.Lock()
	s.m[c] = true
	s.lock.Unlock()
	defer func() {
		s.lock.Lock()
		delete(s.m, c)
		s.lock.Unlock()
		clog.Infof("MJPEG stream disconnected")
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case b := <-c:
			if _, err := w.Write(b); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

// Close ends the stream for all clients and frees the canvas. It must be
// called after the render loop has returned.
func (s *MJPEG) Close() {
	s.once.Do(func() {
		close(s.done)
		s.canvas.close()
	})
}
