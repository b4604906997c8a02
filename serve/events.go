package serve

import (
	"encoding/json"
	"image"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"depthcam/video"
)

const (
	// Time allowed to write message to the client
	writeWait  = 10 * time.Second
	pingPeriod = 10 * time.Second
)

// Event is the JSON message pushed to websocket clients.
type Event struct {
	Type  string  `json:"type"`
	FPS   float64 `json:"fps,omitempty"`
	State string  `json:"state,omitempty"`
	Error string  `json:"error,omitempty"`
}

// EventUpdater pushes frame rate and session state changes to websocket
// clients. It is a Presenter that ignores the frames themselves.
type EventUpdater struct {
	upgrader websocket.Upgrader
	cs       map[chan []byte]bool
	addc     chan chan []byte
	delc     chan chan []byte
	notify   chan []byte
	close    chan chan bool
	done     chan struct{}
}

func NewEventUpdater() *EventUpdater {
	m := &EventUpdater{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		cs:     make(map[chan []byte]bool),
		addc:   make(chan chan []byte),
		delc:   make(chan chan []byte),
		notify: make(chan []byte),
		close:  make(chan chan bool),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case c := <-m.addc:
				m.cs[c] = true
			case c := <-m.delc:
				delete(m.cs, c)
			case b := <-m.notify:
				for k := range m.cs {
					select {
					case k <- b:
					default:
						// Slow client; it will catch the next one.
					}
				}
			case c := <-m.close:
				for k := range m.cs {
					close(k)
				}
				m.cs = nil
				close(m.done)
				c <- true
				return
			}
		}
	}()
	return m
}

func (m *EventUpdater) send(e Event) {
	b, err := json.Marshal(e)
	if err != nil {
		log.Errorf("Failed to encode event %+v: %v", e, err)
		return
	}
	select {
	case m.notify <- b:
	case <-m.done:
	}
}

func (m *EventUpdater) Publish(raw, annotated *image.RGBA) {}

func (m *EventUpdater) ReportRate(fps float64) {
	m.send(Event{Type: "rate", FPS: fps})
}

// StateChanged reports when the session starts running and when it stops.
// The per-frame cycle between capturing, processing and publishing is not
// forwarded.
func (m *EventUpdater) StateChanged(from, to video.State, err error) {
	if from != video.StateIdle && to != video.StateStopped {
		return
	}
	e := Event{Type: "state", State: to.String()}
	if err != nil {
		e.Error = err.Error()
	}
	m.send(e)
}

// Close disconnects all clients and stops the updater.
func (m *EventUpdater) Close() {
	c := make(chan bool)
	select {
	case m.close <- c:
		<-c
	case <-m.done:
	}
}

func (m *EventUpdater) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if _, ok := err.(websocket.HandshakeError); !ok {
			log.WithField("addr", r.RemoteAddr).Errorf("Websocket handshake failed for event stream: %v", err)
		}
		return
	}
	go m.serve(ws)
}

func (m *EventUpdater) serve(ws *websocket.Conn) {
	clog := log.WithField("addr", ws.RemoteAddr())
	clog.Info("connected to event socket")
	defer func() {
		ws.Close()
		clog.Info("disconnected from event socket")
	}()
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	notifyc := make(chan []byte, 8)
	select {
	case m.addc <- notifyc:
	case <-m.done:
		return
	}
	defer func() {
		select {
		case m.delc <- notifyc:
		case <-m.done:
		}
	}()

	// Even though we don't care about incoming messages, we need to read from
	// the socket in order to process control messages.
	go func() {
		for {
			if _, _, err := ws.NextReader(); err != nil {
				ws.Close()
				return
			}
		}
	}()

	for {
		select {
		case b, ok := <-notifyc:
			if !ok {
				ws.SetWriteDeadline(time.Now().Add(writeWait))
				ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-pingTicker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}
