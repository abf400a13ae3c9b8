package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Drop stages.
const (
	StageConvert = "convert"
	StageGateway = "gateway"
	StageProcess = "process"
)

// Metrics holds the pipeline's Prometheus collectors. It satisfies
// process.Observer.
type Metrics struct {
	FramesCaptured  prometheus.Counter
	FramesProcessed prometheus.Counter
	FramesDropped   *prometheus.CounterVec
	ProcessSeconds  prometheus.Histogram
	FPS             prometheus.Gauge
	EdgeDetection   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "edgecam",
			Name:      "frames_captured_total",
			Help:      "Frames delivered by the camera.",
		}),
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "edgecam",
			Name:      "frames_processed_total",
			Help:      "Frames successfully run through the processing function.",
		}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgecam",
			Name:      "frames_dropped_total",
			Help:      "Frames discarded, by pipeline stage.",
		}, []string{"stage"}),
		ProcessSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "edgecam",
			Name:      "process_duration_seconds",
			Help:      "Time spent in the processing function.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		FPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "edgecam",
			Name:      "capture_fps",
			Help:      "Frames per second over the last window.",
		}),
		EdgeDetection: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "edgecam",
			Name:      "edge_detection_enabled",
			Help:      "1 while edge detection is enabled.",
		}),
	}
	reg.MustRegister(m.FramesCaptured, m.FramesProcessed, m.FramesDropped, m.ProcessSeconds, m.FPS, m.EdgeDetection)
	return m
}

func (m *Metrics) FrameCaptured() { m.FramesCaptured.Inc() }

func (m *Metrics) FrameRejected() { m.FramesDropped.WithLabelValues(StageConvert).Inc() }

func (m *Metrics) FrameProcessed(d time.Duration) {
	m.FramesProcessed.Inc()
	m.ProcessSeconds.Observe(d.Seconds())
}

func (m *Metrics) FrameSuperseded() { m.FramesDropped.WithLabelValues(StageGateway).Inc() }

func (m *Metrics) FrameFailed() { m.FramesDropped.WithLabelValues(StageProcess).Inc() }

func (m *Metrics) SetFPS(fps int) { m.FPS.Set(float64(fps)) }

func (m *Metrics) SetEdgeDetection(enabled bool) {
	if enabled {
		m.EdgeDetection.Set(1)
	} else {
		m.EdgeDetection.Set(0)
	}
}
