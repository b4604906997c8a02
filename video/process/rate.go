package process

import (
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultRateWindow is how long frames are counted before a rate is reported.
const DefaultRateWindow = 2 * time.Second

// RateCounter measures frames per second over fixed windows. It is not safe
// for concurrent use; the pipeline owns it.
type RateCounter struct {
	clock  clock.Clock
	window time.Duration

	frames int
	start  time.Time
}

// NewRateCounter starts a window now. A nil clock means the wall clock.
func NewRateCounter(clk clock.Clock, window time.Duration) *RateCounter {
	if clk == nil {
		clk = clock.New()
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RateCounter{
		clock:  clk,
		window: window,
		start:  clk.Now(),
	}
}

// Tick counts one frame. Once more than the window has elapsed it returns the
// rate over the window and starts a new one.
func (r *RateCounter) Tick() (fps float64, ok bool) {
	r.frames++
	now := r.clock.Now()
	elapsed := now.Sub(r.start)
	if elapsed <= r.window {
		return 0, false
	}
	fps = float64(r.frames) / elapsed.Seconds()
	r.frames = 0
	r.start = now
	return fps, true
}

// Frames returns the frames counted in the current window.
func (r *RateCounter) Frames() int {
	return r.frames
}
