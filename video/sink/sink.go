package sink

import (
	"image"
)

// Presenter is the destination for finished frames, such as a window or a
// network stream. Both methods are called from the pipeline goroutine, not a
// fixed thread; a Presenter tied to a particular thread must hand the work
// over itself.
type Presenter interface {
	// Publish delivers the raw color frame and its annotated counterpart.
	// Both images are immutable and may be retained.
	Publish(raw, annotated *image.RGBA)

	// ReportRate delivers the measured pipeline frame rate.
	ReportRate(fps float64)
}

// Fanout forwards everything to each Presenter in order.
type Fanout []Presenter

func (f Fanout) Publish(raw, annotated *image.RGBA) {
	for _, p := range f {
		p.Publish(raw, annotated)
	}
}

func (f Fanout) ReportRate(fps float64) {
	for _, p := range f {
		p.ReportRate(fps)
	}
}

// Discard drops everything.
type Discard struct{}

func (Discard) Publish(raw, annotated *image.RGBA) {}

func (Discard) ReportRate(fps float64) {}
