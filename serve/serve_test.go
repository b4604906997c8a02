package serve

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"depthcam/config"
	"depthcam/video"
)

type fixedStats video.Stats

func (f fixedStats) Stats() video.Stats { return video.Stats(f) }

func TestStatusServer(t *testing.T) {
	s := &StatusServer{
		Pipeline:    fixedStats{SessionID: "abc", State: "capturing", Frames: 42, FPS: 29.5},
		ColorWidth:  2560,
		ColorHeight: 1440,
		DepthWidth:  512,
		DepthHeight: 512,
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	test.That(t, rec.Code, test.ShouldEqual, http.StatusOK)
	test.That(t, rec.Header().Get("Content-Type"), test.ShouldEqual, "application/json")

	var got map[string]interface{}
	test.That(t, json.Unmarshal(rec.Body.Bytes(), &got), test.ShouldBeNil)
	test.That(t, got["session_id"], test.ShouldEqual, "abc")
	test.That(t, got["state"], test.ShouldEqual, "capturing")
	test.That(t, got["frames"], test.ShouldEqual, 42.0)
	test.That(t, got["fps"], test.ShouldEqual, 29.5)
	test.That(t, got["color_width"], test.ShouldEqual, 2560.0)
	test.That(t, got["depth_height"], test.ShouldEqual, 512.0)
	_, hasError := got["error"]
	test.That(t, hasError, test.ShouldBeFalse)
	_, hasConfig := got["config"]
	test.That(t, hasConfig, test.ShouldBeFalse)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	test.That(t, rec.Code, test.ShouldEqual, http.StatusMethodNotAllowed)
}

type eventClient struct {
	msgs chan Event
	// err is the read error that ended msgs. Set before msgs is closed.
	err error
}

func TestStatusServerConfig(t *testing.T) {
	live := config.Default()
	live.MaxStreamFPS = 7
	s := &StatusServer{
		Pipeline: fixedStats{State: "idle"},
		Config:   func() *config.Config { return live },
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	var got struct {
		State  string `json:"state"`
		Config struct {
			MaxStreamFPS int `json:"max_stream_fps"`
			Device       struct {
				DepthMode string `json:"depth_mode"`
			} `json:"device"`
		} `json:"config"`
	}
	test.That(t, json.Unmarshal(rec.Body.Bytes(), &got), test.ShouldBeNil)
	test.That(t, got.State, test.ShouldEqual, "idle")
	test.That(t, got.Config.MaxStreamFPS, test.ShouldEqual, 7)
	test.That(t, got.Config.Device.DepthMode, test.ShouldEqual, "wfov_2x2binned")
}

func dialEvents(t *testing.T, m *EventUpdater) *eventClient {
	t.Helper()
	srv := httptest.NewServer(m)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() { ws.Close() })

	c := &eventClient{msgs: make(chan Event, 64)}
	go func() {
		for {
			var e Event
			if err := ws.ReadJSON(&e); err != nil {
				c.err = err
				close(c.msgs)
				return
			}
			c.msgs <- e
		}
	}()
	return c
}

// readEvent keeps calling send until the client sees an event of the given
// type. The client registers asynchronously, so early sends may be missed.
func readEvent(t *testing.T, c *eventClient, typ string, send func()) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	send()
	for {
		select {
		case e, ok := <-c.msgs:
			if !ok {
				t.Fatalf("event socket closed: %v", c.err)
			}
			if e.Type == typ {
				return e
			}
		case <-tick.C:
			send()
		case <-deadline:
			t.Fatalf("no %q event", typ)
		}
	}
}

func TestEventUpdaterRate(t *testing.T) {
	m := NewEventUpdater()
	defer m.Close()
	c := dialEvents(t, m)

	e := readEvent(t, c, "rate", func() { m.ReportRate(29.97) })
	test.That(t, e.FPS, test.ShouldEqual, 29.97)
}

func TestEventUpdaterState(t *testing.T) {
	m := NewEventUpdater()
	defer m.Close()
	c := dialEvents(t, m)

	e := readEvent(t, c, "state", func() {
		// Per-frame transitions are not forwarded.
		m.StateChanged(video.StateCapturing, video.StateProcessing, nil)
		m.StateChanged(video.StateIdle, video.StateStopped, errors.New("device error: unplugged"))
	})
	test.That(t, e.State, test.ShouldEqual, "stopped")
	test.That(t, e.Error, test.ShouldEqual, "device error: unplugged")
}

func TestEventUpdaterClose(t *testing.T) {
	m := NewEventUpdater()
	c := dialEvents(t, m)
	readEvent(t, c, "rate", func() { m.ReportRate(1) })

	m.Close()
	timeout := time.After(5 * time.Second)
	for open := true; open; {
		select {
		case _, open = <-c.msgs:
		case <-timeout:
			t.Fatal("socket not closed")
		}
	}
	test.That(t, websocket.IsCloseError(c.err, websocket.CloseNormalClosure), test.ShouldBeTrue)

	// Safe after Close.
	m.ReportRate(2)
	m.Publish(nil, nil)
	m.Close()
}
