package source

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = errors.New("image pool closed")

// ImagePool hands out fixed-size images and takes them back for reuse. All
// bookkeeping happens on a single goroutine; callers talk to it over
// channels. Once Max images are outstanding, Get blocks until one is Put back.
type ImagePool struct {
	format        Format
	width, height int
	max           int

	get    chan chan *Image
	cancel chan chan *Image
	put    chan *Image
	inUse  chan chan int
	close  chan chan bool
	done   chan struct{}
}

// NewImagePool creates a pool of width x height images of the given format.
// A max of zero or less means no limit.
func NewImagePool(format Format, width, height, max int) *ImagePool {
	p := &ImagePool{
		format: format,
		width:  width,
		height: height,
		max:    max,
		get:    make(chan chan *Image),
		cancel: make(chan chan *Image),
		put:    make(chan *Image),
		inUse:  make(chan chan int),
		close:  make(chan chan bool),
		done:   make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *ImagePool) loop() {
	var (
		available []*Image
		waiting   []chan *Image
		allocated int
	)
	for {
		select {
		case r := <-p.get:
			switch {
			case len(available) > 0:
				var img *Image
				img, available = available[len(available)-1], available[:len(available)-1]
				r <- img
			case p.max <= 0 || allocated < p.max:
				allocated++
				r <- NewImage(p.format, p.width, p.height)
			default:
				waiting = append(waiting, r)
			}
		case r := <-p.cancel:
			for i, w := range waiting {
				if w == r {
					waiting = append(waiting[:i], waiting[i+1:]...)
					break
				}
			}
		case img := <-p.put:
			if len(waiting) > 0 {
				var r chan *Image
				r, waiting = waiting[0], waiting[1:]
				r <- img
			} else {
				available = append(available, img)
			}
		case r := <-p.inUse:
			r <- allocated - len(available)
		case c := <-p.close:
			if n := allocated - len(available); n > 0 {
				log.Warnf("Image pool closed with %d %v images still in use", n, p.format)
			}
			close(p.done)
			c <- true
			return
		}
	}
}

// Get returns an image from the pool, blocking while the pool is exhausted.
// The contents of the returned image are unspecified.
func (p *ImagePool) Get(ctx context.Context) (*Image, error) {
	r := make(chan *Image, 1)
	select {
	case p.get <- r:
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case img := <-r:
		return img, nil
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		select {
		case p.cancel <- r:
		case <-p.done:
			return nil, ErrPoolClosed
		}
		// The pool may have answered before it saw the cancellation.
		select {
		case img := <-r:
			p.Put(img)
		default:
		}
		return nil, ctx.Err()
	}
}

// Put returns an image to the pool. Images of another shape are dropped.
func (p *ImagePool) Put(img *Image) {
	if img == nil || img.Format != p.format || img.Width != p.width || img.Height != p.height {
		return
	}
	select {
	case p.put <- img:
	case <-p.done:
	}
}

// InUse returns the number of images handed out and not yet returned.
func (p *ImagePool) InUse() int {
	r := make(chan int, 1)
	select {
	case p.inUse <- r:
		return <-r
	case <-p.done:
		return 0
	}
}

// Close stops the pool. Outstanding images may still be Put; they are dropped.
func (p *ImagePool) Close() {
	c := make(chan bool)
	select {
	case p.close <- c:
		<-c
	case <-p.done:
	}
}
