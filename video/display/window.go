package display

import (
	"context"
	"image"
	"sync"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

type framePair struct {
	raw, annotated *image.RGBA
}

// Window shows the raw and annotated frames side by side in a HighGUI
// window. HighGUI must be driven from the main OS thread, so Publish only
// hands frames over; Run does the drawing and has to be called from main.
type Window struct {
	name string

	frames chan framePair

	mu  sync.Mutex
	fps float64
}

func NewWindow(name string) *Window {
	return &Window{
		name:   name,
		frames: make(chan framePair, 1),
	}
}

// Publish replaces any frame the window has not drawn yet.
func (w *Window) Publish(raw, annotated *image.RGBA) {
	p := framePair{raw: raw, annotated: annotated}
	for {
		select {
		case w.frames <- p:
			return
		default:
		}
		select {
		case <-w.frames:
		default:
		}
	}
}

func (w *Window) ReportRate(fps float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fps = fps
}

func (w *Window) rate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fps
}

// Run draws frames until ctx ends or the user presses Esc or q. It must run
// on the main OS thread.
func (w *Window) Run(ctx context.Context) {
	window := gocv.NewWindow(w.name)
	defer window.Close()

	combined := gocv.NewMat()
	defer combined.Close()

	sizeSet := false
	for ctx.Err() == nil {
		select {
		case p := <-w.frames:
			if err := w.compose(p, &combined); err != nil {
				log.Errorf("Failed to compose window frame: %v", err)
				break
			}
			if !sizeSet {
				window.ResizeWindow(combined.Cols()/2, combined.Rows()/2)
				sizeSet = true
			}
			window.IMShow(combined)
		default:
		}
		// WaitKey also pumps the HighGUI event loop.
		if key := window.WaitKey(10); key == 27 || key == 'q' {
			log.Infof("Window %q closed by user", w.name)
			return
		}
	}
}

func (w *Window) compose(p framePair, dst *gocv.Mat) error {
	raw, err := toMat(p.raw)
	if err != nil {
		return err
	}
	defer raw.Close()
	annotated, err := toMat(p.annotated)
	if err != nil {
		return err
	}
	defer annotated.Close()

	gocv.Hconcat(raw, annotated, dst)
	if fps := w.rate(); fps > 0 {
		DrawLabel(dst, FormatRate(fps))
	}
	return nil
}
