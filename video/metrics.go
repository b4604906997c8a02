package video

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reasons a frame is dropped, used as the "reason" label.
const (
	dropTimeout    = "timeout"
	dropIncomplete = "incomplete"
	dropTask       = "task"
)

var (
	framesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "depthcam",
		Name:      "frames_published_total",
		Help:      "Frames handed to the presenter.",
	})
	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "depthcam",
		Name:      "frames_dropped_total",
		Help:      "Frames abandoned before publishing, by reason.",
	}, []string{"reason"})
	frameRate = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "depthcam",
		Name:      "frame_rate",
		Help:      "Frames per second over the last measurement window.",
	})
	stageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "depthcam",
		Name:      "stage_seconds",
		Help:      "Time spent in each pipeline stage.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"stage"})
	pipelineState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "depthcam",
		Name:      "pipeline_state",
		Help:      "1 for the state the pipeline is in, 0 otherwise.",
	}, []string{"state"})
)
