package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"edgecam/config"
	"edgecam/serve"
	"edgecam/video"
	cvprocess "edgecam/video/process/opencv"
	"edgecam/video/sink"
	cvsink "edgecam/video/sink/opencv"
	"edgecam/video/source"
	mdsource "edgecam/video/source/mediadevices"
	cvsource "edgecam/video/source/opencv"
	"edgecam/video/telemetry"
)

var (
	configPath = flag.String("config", "", "Path to the JSON configuration file.")
	port       = flag.Int("port", 0, "Port to host the HTTP control surface. Overrides the config file.")
	verbose    = flag.Bool("v", false, "Log every frame event.")
)

func init() {
	// Window systems want to be driven from the main thread.
	runtime.LockOSThread()
}

func newDriver(c *config.Config) (source.Driver, source.Selector) {
	switch c.Driver {
	case config.DriverMediaDevices:
		return mdsource.NewDriver(), c.Camera.Selector()
	case config.DriverSynthetic:
		return &source.Synthetic{FPS: c.Camera.FPS}, c.Camera.Selector()
	default:
		if c.URI != "" {
			return cvsource.NewDriver(c.URI), source.Selector{}
		}
		return cvsource.NewDriver(), c.Camera.Selector()
	}
}

func main() {
	flag.Parse()
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *configPath != "" {
		if err := config.Load(ctx, *configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	cfg := config.Get()
	httpPort := cfg.Port
	if *port != 0 {
		httpPort = *port
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	fps := telemetry.NewPublisher()

	size := image.Point{X: cfg.Camera.Width, Y: cfg.Camera.Height}
	var (
		gpu    sink.GPU
		host   sink.Host
		window *cvsink.Window
		mjpeg  *cvsink.MJPEG
	)
	switch cfg.Backend {
	case config.BackendMJPEG:
		mjpeg = cvsink.NewMJPEG(size)
		defer mjpeg.Close()
		gpu, host = mjpeg, mjpeg
	default:
		window = cvsink.NewWindow("edgecam", size)
		defer window.Close()
		gpu, host = window, window
	}

	presenter := sink.NewPresenter(gpu)
	presenter.SetEdgeDetection(!cfg.EdgeDetectionOff)
	presenter.OnError = func(err error) {
		log.Errorf("Rendering stopped: %v", err)
	}

	edges := cvprocess.NewEdgeDetector(func() cvprocess.CannyParams {
		c := config.Get().Canny
		return cvprocess.CannyParams{Blur: c.Blur, Low: float32(c.Low), High: float32(c.High)}
	})
	defer edges.Close()

	driver, sel := newDriver(cfg)
	p, err := video.Start(video.Options{
		Driver:    driver,
		Selector:  sel,
		Surface:   cfg.Camera.Surface(),
		Process:   edges.Process,
		Presenter: presenter,
		Metrics:   metrics,
		Publisher: fps,
	})
	if err != nil {
		log.Fatalf("Failed to start camera: %v", err)
	}
	defer p.Close()

	caption := func() string {
		edge := "off"
		if p.EdgeDetectionEnabled() {
			edge = "on"
		}
		return fmt.Sprintf("%d fps - edges %s", p.FPS(), edge)
	}
	if window != nil {
		window.Caption = caption
		window.OnKey = func(key int) {
			if key == 't' {
				p.ToggleEdgeDetection()
			}
		}
	}
	if mjpeg != nil {
		mjpeg.Caption = caption
	}

	if cfg.DatabaseDSN != "" {
		store, err := telemetry.OpenStore(cfg.DatabaseDSN)
		if err != nil {
			log.Errorf("Frame rate samples will not be stored: %v", err)
		} else {
			samples, unsubscribe := fps.Subscribe()
			defer unsubscribe()
			go store.Run(ctx, samples, func() telemetry.Sample {
				return p.Status().Sample()
			})
		}
	}

	o := serve.Options{
		Pipeline: p,
		FPS:      fps,
		Gatherer: prometheus.DefaultGatherer,
	}
	if mjpeg != nil {
		o.MJPEG = mjpeg
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", httpPort),
		Handler: serve.NewHandler(o),
	}
	go func() {
		log.Infof("Hosting control surface on port %d", httpPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("HTTP server failed: %v", err)
		}
	}()
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		srv.Shutdown(sctx)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Infof("Caught signal %v", sig)
		cancel()
	}()

	if err := sink.RunLoop(ctx, presenter, host, cfg.RefreshInterval()); err != nil {
		log.Errorf("Render loop failed: %v", err)
	}
	log.Infof("Shutting down")
}
