// Package serve hosts the HTTP control surface.
package serve

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type Options struct {
	Pipeline Pipeline
	FPS      Subscriber
	// Gatherer backs /metrics; omitted if nil.
	Gatherer prometheus.Gatherer
	// MJPEG is mounted at /mjpeg if set.
	MJPEG http.Handler
}

// NewHandler builds the request-logged mux.
func NewHandler(o Options) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/status", &StatusServer{Pipeline: o.Pipeline})
	mux.Handle("/toggle", &ToggleServer{Pipeline: o.Pipeline})
	if o.FPS != nil {
		mux.Handle("/fps", NewFPSStream(o.FPS))
	}
	if o.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(o.Gatherer, promhttp.HandlerOpts{}))
	}
	if o.MJPEG != nil {
		mux.Handle("/mjpeg", o.MJPEG)
	}
	return handlers.CombinedLoggingHandler(log.StandardLogger().WriterLevel(log.DebugLevel), mux)
}
