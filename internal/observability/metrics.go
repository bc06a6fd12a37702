package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Bus drop reasons.
const (
	DropUnknownMessage = "unknown_message"
	DropDecode         = "decode"
	DropFrame          = "frame"
	DropUnknownStamp   = "unknown_stamp"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lanesight",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"service", "method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lanesight",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "route", "status"},
	)
	framesAcquired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lanesight",
			Subsystem: "frame",
			Name:      "acquired_total",
			Help:      "Frames copied out of the shared-memory channel.",
		},
	)
	frameAcquireDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lanesight",
			Subsystem: "frame",
			Name:      "acquire_duration_seconds",
			Help:      "Time spent waiting for and copying one frame.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
	detections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lanesight",
			Subsystem: "detect",
			Name:      "detections_total",
			Help:      "Detections produced per kind.",
		},
		[]string{"kind"},
	)
	emptyFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lanesight",
			Subsystem: "detect",
			Name:      "empty_frames_total",
			Help:      "Frames that produced no detections.",
		},
	)
	detectErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lanesight",
			Subsystem: "detect",
			Name:      "errors_total",
			Help:      "Detector failures.",
		},
	)
	busReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lanesight",
			Subsystem: "bus",
			Name:      "received_total",
			Help:      "Envelopes dispatched to a handler.",
		},
		[]string{"message_id"},
	)
	busDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lanesight",
			Subsystem: "bus",
			Name:      "dropped_total",
			Help:      "Inbound envelopes dropped before or during dispatch.",
		},
		[]string{"reason"},
	)
	busSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lanesight",
			Subsystem: "bus",
			Name:      "sent_total",
			Help:      "Envelopes sent.",
		},
		[]string{"message_id"},
	)
	distance = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lanesight",
			Subsystem: "state",
			Name:      "distance_meters",
			Help:      "Latest distance reading per slot.",
		},
		[]string{"slot"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			framesAcquired,
			frameAcquireDuration,
			detections,
			emptyFrames,
			detectErrors,
			busReceived,
			busDropped,
			busSent,
			distance,
		)
	})
}

func RecordHTTPRequest(service, method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, route, statusLabel).Observe(duration.Seconds())
}

func RecordFrameAcquired(duration time.Duration) {
	RegisterMetrics()
	framesAcquired.Inc()
	frameAcquireDuration.Observe(duration.Seconds())
}

// RecordDetections counts kinds; an empty slice counts as an empty frame.
func RecordDetections(kinds []string) {
	RegisterMetrics()
	if len(kinds) == 0 {
		emptyFrames.Inc()
		return
	}
	for _, k := range kinds {
		detections.WithLabelValues(k).Inc()
	}
}

func RecordDetectError() {
	RegisterMetrics()
	detectErrors.Inc()
}

func RecordBusReceived(messageID uint32) {
	RegisterMetrics()
	busReceived.WithLabelValues(strconv.FormatUint(uint64(messageID), 10)).Inc()
}

func RecordBusDropped(reason string) {
	RegisterMetrics()
	busDropped.WithLabelValues(reason).Inc()
}

func RecordBusSent(messageID uint32) {
	RegisterMetrics()
	busSent.WithLabelValues(strconv.FormatUint(uint64(messageID), 10)).Inc()
}

func SetDistance(slot string, meters float64) {
	RegisterMetrics()
	distance.WithLabelValues(slot).Set(meters)
}
