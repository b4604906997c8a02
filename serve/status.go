package serve

import (
	"encoding/json"
	"net/http"

	"depthcam/config"
	"depthcam/video"
)

// StatsProvider is implemented by video.Pipeline.
type StatsProvider interface {
	Stats() video.Stats
}

// StatusResponse is served as JSON by StatusServer.
type StatusResponse struct {
	video.Stats

	ColorWidth  int `json:"color_width"`
	ColorHeight int `json:"color_height"`
	DepthWidth  int `json:"depth_width"`
	DepthHeight int `json:"depth_height"`

	Config *config.Config `json:"config,omitempty"`
}

type StatusServer struct {
	Pipeline StatsProvider

	// Session geometry, reported as is.
	ColorWidth, ColorHeight int
	DepthWidth, DepthHeight int

	// Config returns the live configuration. Optional.
	Config func() *config.Config
}

func (s *StatusServer) BuildResponse() *StatusResponse {
	resp := &StatusResponse{
		Stats:       s.Pipeline.Stats(),
		ColorWidth:  s.ColorWidth,
		ColorHeight: s.ColorHeight,
		DepthWidth:  s.DepthWidth,
		DepthHeight: s.DepthHeight,
	}
	if s.Config != nil {
		resp.Config = s.Config()
	}
	return resp
}

func (s *StatusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}
	js, err := json.Marshal(s.BuildResponse())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(js)
}
