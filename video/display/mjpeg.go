package display

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

// Stream names served by MJPEGServer.
const (
	StreamRaw       = "raw"
	StreamAnnotated = "annotated"
)

type MJPEGServer struct {
	m map[string]*MJPEGStream

	lock sync.Mutex
}

func NewMJPEGServer() *MJPEGServer {
	return &MJPEGServer{
		m: make(map[string]*MJPEGStream),
	}
}

func (s *MJPEGServer) NewStream(name string) *MJPEGStream {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.m[name]; ok {
		log.Panicf("A stream for %v already exists", name)
	}

	ms := &MJPEGStream{
		name:   name,
		m:      make(map[chan []byte]bool),
		parent: s,
	}

	s.m[name] = ms
	return ms
}

func (s *MJPEGServer) getStream(name string) *MJPEGStream {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.m[name]
}

// ServeHTTP implements http.Handler interface, serving MJPEG.
func (s *MJPEGServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	name := r.Form.Get("name")
	if name == "" {
		http.Error(w, "missing name", http.StatusBadRequest)
		return
	}

	stream := s.getStream(name)
	if stream == nil {
		http.Error(w, "unknown stream", http.StatusNotFound)
		return
	}

	log.WithField("addr", r.RemoteAddr).Infof("MJPEG stream connected to %v", name)
	w.Header().Add("Content-Type", "multipart/x-mixed-replace;boundary="+boundaryWord)

	c := make(chan []byte, 1)
	if !stream.add(c) {
		http.Error(w, "unknown stream", http.StatusNotFound)
		return
	}

loop:
	for {
		select {
		case b, ok := <-c:
			if !ok {
				// Stream closed.
				break loop
			}
			if _, err := w.Write(b); err != nil {
				break loop
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		case <-r.Context().Done():
			break loop
		}
	}

	stream.lock.Lock()
	delete(stream.m, c)
	stream.lock.Unlock()
	log.WithField("addr", r.RemoteAddr).Infof("MJPEG stream disconnected from %v", name)
}

type MJPEGStream struct {
	name   string
	m      map[chan []byte]bool
	closed bool

	parent *MJPEGServer
	lock   sync.Mutex
}

func (s *MJPEGStream) add(c chan []byte) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return false
	}
	s.m[c] = true
	return true
}

func (s *MJPEGStream) empty() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.m) == 0
}

// Put encodes img and offers it to every connected client. Clients that are
// still busy with the previous frame skip this one.
func (s *MJPEGStream) Put(img *image.RGBA, label string) {
	if s.empty() {
		// Nobody is listening; don't bother encoding.
		return
	}

	mat, err := toMat(img)
	if err != nil {
		log.Errorf("Error converting frame for MJPEG stream %v: %v", s.name, err)
		return
	}
	defer mat.Close()
	if label != "" {
		DrawLabel(&mat, label)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		log.Errorf("Error encoding to JPG for MJPEG stream %v: %v", s.name, err)
		return
	}
	defer buf.Close()
	jpeg := buf.GetBytes()

	header := fmt.Sprintf(headerf, len(jpeg))
	// Each client gets its own frame slice, it may still be writing the
	// previous one.
	frame := make([]byte, len(header)+len(jpeg))
	copy(frame, header)
	copy(frame[len(header):], jpeg)

	s.lock.Lock()
	defer s.lock.Unlock()
	for c := range s.m {
		select {
		case c <- frame:
		default:
			// Skip listeners not ready for next frame.
		}
	}
}

// Close unregisters the stream and disconnects its clients.
func (s *MJPEGStream) Close() {
	s.parent.lock.Lock()
	if s.parent.m[s.name] == s {
		delete(s.parent.m, s.name)
	}
	s.parent.lock.Unlock()

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for c := range s.m {
		close(c)
	}
	s.m = make(map[chan []byte]bool)
}

// MJPEGPresenter publishes the raw and annotated frames to two streams and
// stamps the latest frame rate on the annotated one.
type MJPEGPresenter struct {
	Raw       *MJPEGStream
	Annotated *MJPEGStream

	mu  sync.Mutex
	fps float64
}

// NewMJPEGPresenter registers the raw and annotated streams on s.
func NewMJPEGPresenter(s *MJPEGServer) *MJPEGPresenter {
	return &MJPEGPresenter{
		Raw:       s.NewStream(StreamRaw),
		Annotated: s.NewStream(StreamAnnotated),
	}
}

func (p *MJPEGPresenter) Publish(raw, annotated *image.RGBA) {
	p.mu.Lock()
	fps := p.fps
	p.mu.Unlock()

	label := ""
	if fps > 0 {
		label = FormatRate(fps)
	}
	p.Raw.Put(raw, "")
	p.Annotated.Put(annotated, label)
}

func (p *MJPEGPresenter) ReportRate(fps float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fps = fps
}

// Close unregisters both streams.
func (p *MJPEGPresenter) Close() {
	p.Raw.Close()
	p.Annotated.Close()
}
