package serve

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Server is an http.Server whose request contexts all derive from one base
// context. Streaming handlers (MJPEG, websockets) only return when their
// request context ends, so Shutdown cancels the base first.
type Server struct {
	srv    *http.Server
	cancel context.CancelFunc
}

func NewServer(addr string, h http.Handler) *Server {
	base, cancel := context.WithCancel(context.Background())
	return &Server{
		srv: &http.Server{
			Addr:        addr,
			Handler:     h,
			BaseContext: func(net.Listener) context.Context { return base },
		},
		cancel: cancel,
	}
}

// ListenAndServe blocks until the server fails or is shut down. A shutdown is
// not an error.
func (s *Server) ListenAndServe() error {
	return s.Serve(nil)
}

// Serve is ListenAndServe on an existing listener. A nil listener listens on
// the server's address.
func (s *Server) Serve(l net.Listener) error {
	var err error
	if l == nil {
		err = s.srv.ListenAndServe()
	} else {
		err = s.srv.Serve(l)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown ends all in-flight requests and stops the server. Handlers that
// ignore their context get timeout to finish before their connections are
// closed under them; that is logged, not returned.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := s.srv.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warnf("HTTP handlers still running after %v; closing their connections", timeout)
		// The listeners are already closed, so Close only reports that again.
		if err := s.srv.Close(); err != nil {
			log.Debugf("Closing HTTP server: %v", err)
		}
		return nil
	}
	return err
}
