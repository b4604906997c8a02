package sink

import (
	"image"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Throttle wraps another Presenter so that it receives frames at no more
// than a maximum rate. Frames arriving before the next slot are dropped;
// rate reports always pass through. This keeps expensive presenters, like
// JPEG encoding for remote viewers, from holding up the pipeline.
type Throttle struct {
	// p is the wrapped Presenter which will receive a rate-limited stream.
	p     Presenter
	clock clock.Clock

	mu       sync.Mutex
	frameDur time.Duration
	next     time.Time
}

// NewThrottle wraps p, forwarding at most fps frames per second. An fps of
// zero or less forwards every frame.
func NewThrottle(p Presenter, fps int, clk clock.Clock) *Throttle {
	if clk == nil {
		clk = clock.New()
	}
	t := &Throttle{p: p, clock: clk}
	t.SetMaxFPS(fps)
	return t
}

// SetMaxFPS changes the forwarding rate.
func (t *Throttle) SetMaxFPS(fps int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fps <= 0 {
		t.frameDur = 0
	} else {
		t.frameDur = time.Second / time.Duration(fps)
	}
	t.next = time.Time{}
}

func (t *Throttle) Publish(raw, annotated *image.RGBA) {
	if !t.admit() {
		return
	}
	t.p.Publish(raw, annotated)
}

func (t *Throttle) admit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frameDur == 0 {
		return true
	}
	now := t.clock.Now()
	if now.Before(t.next) {
		// Don't need a new frame yet.
		return false
	}
	if t.next.IsZero() || now.Sub(t.next) >= t.frameDur {
		// First frame, or we fell behind; restart the schedule from now.
		t.next = now.Add(t.frameDur)
	} else {
		t.next = t.next.Add(t.frameDur)
	}
	return true
}

func (t *Throttle) ReportRate(fps float64) {
	t.p.ReportRate(fps)
}
