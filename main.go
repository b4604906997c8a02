package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/handlers"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"depthcam/config"
	"depthcam/serve"
	"depthcam/video"
	"depthcam/video/calib"
	"depthcam/video/display"
	"depthcam/video/process"
	"depthcam/video/sink"
	"depthcam/video/source"
)

var (
	configPath = flag.String("config", "", "Path to JSON configuration file. Defaults are used if empty.")
	port       = flag.Int("port", 0, "Port to host the web frontend. Overrides the configuration.")
	window     = flag.Bool("window", false, "Show the frames in a local window.")
)

func init() {
	// HighGUI wants the main thread; keep main on it.
	runtime.LockOSThread()
}

func main() {
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(ctx, *configPath); err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *window {
		cfg.Window = true
	}
	log.SetLevel(cfg.Level())

	if err := run(ctx, cancel, cfg); err != nil {
		log.Errorf("Session ended with error: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config) (err error) {
	dev := source.NewSynthetic(source.SyntheticOptions{})
	if err := dev.Start(cfg.Device); err != nil {
		return errors.Wrap(err, "failed to start device")
	}
	defer func() {
		err = multierr.Combine(err, dev.Close())
	}()

	var cal *calib.Calibration
	if cfg.CalibrationPath != "" {
		cal, err = calib.FromJSONFile(cfg.CalibrationPath)
	} else {
		cal, err = dev.Calibration()
	}
	if err != nil {
		return errors.Wrap(err, "no calibration")
	}
	log.Infof("Calibration: %v", cal)

	src, err := source.NewFrameSource(dev, cfg.Device)
	if err != nil {
		return err
	}
	dcfg := src.Config()
	if !dcfg.DepthMode.HasDepth() {
		return errors.Errorf("depth mode %v produces no depth to overlay", dcfg.DepthMode)
	}
	if err := dcfg.CheckCalibration(cal); err != nil {
		return errors.Wrap(err, "calibration does not match the device configuration")
	}

	mjpegServer := display.NewMJPEGServer()
	streams := display.NewMJPEGPresenter(mjpegServer)
	defer streams.Close()
	throttle := sink.NewThrottle(streams, cfg.MaxStreamFPS, clock.New())

	events := serve.NewEventUpdater()
	defer events.Close()

	presenters := sink.Fanout{throttle, events}
	var win *display.Window
	if cfg.Window {
		win = display.NewWindow("depthcam")
		presenters = append(presenters, win)
	}

	config.Subscribe(func(old, new *config.Config) {
		log.SetLevel(new.Level())
		throttle.SetMaxFPS(new.MaxStreamFPS)
	})

	pipe, err := video.NewPipeline(src, cal, presenters, video.PipelineOptions{
		Colorizer:     process.Colorizer{FarThreshold: uint16(cfg.FarThresholdMM)},
		RateWindow:    time.Duration(cfg.RateWindowSec * float64(time.Second)),
		OnStateChange: events.StateChanged,
	})
	if err != nil {
		return err
	}

	cw, ch := dcfg.ColorResolution.Dimensions()
	dw, dh := dcfg.DepthMode.Dimensions()
	mux := http.NewServeMux()
	mux.Handle("/mjpeg", mjpegServer)
	mux.Handle("/events", events)
	mux.Handle("/status", &serve.StatusServer{
		Pipeline:    pipe,
		ColorWidth:  cw,
		ColorHeight: ch,
		DepthWidth:  dw,
		DepthHeight: dh,
		Config:      config.Get,
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	srv := serve.NewServer(fmt.Sprintf(":%d", cfg.Port), handlers.CombinedLoggingHandler(log.StandardLogger().Writer(), mux))
	go func() {
		log.Infof("Hosting web frontend on port %d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil {
			log.Errorf("HTTP server failed: %v", err)
		}
	}()
	defer func() {
		err = multierr.Combine(err, srv.Shutdown(5*time.Second))
	}()

	go func() {
		if err := pipe.Run(ctx); err != nil {
			log.Errorf("Pipeline failed: %v", err)
		}
		// Ends the window loop too.
		cancel()
	}()

	if win != nil {
		win.Run(ctx)
		pipe.Stop()
	}
	return pipe.Wait()
}
