// Package metrics exposes Prometheus instrumentation for the synthesis
// pipeline. Registration happens at init; the handler is only served when a
// metrics address is configured.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pixelsRendered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satsim_pixels_rendered_total",
			Help: "Output pixels written with a valid sample.",
		},
	)

	pixelsNoData = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satsim_pixels_nodata_total",
			Help: "Output pixels marked no-data, by cause.",
		},
		[]string{"cause"},
	)

	camerasSynthesized = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satsim_cameras_synthesized_total",
			Help: "Cameras whose synthetic image completed.",
		},
	)

	cameraFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satsim_camera_failures_total",
			Help: "Cameras whose synthesis failed and was skipped.",
		},
	)

	synthesisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "satsim_camera_synthesis_duration_seconds",
			Help:    "Wall time to synthesize one camera's image.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)
)

func init() {
	prometheus.MustRegister(pixelsRendered)
	prometheus.MustRegister(pixelsNoData)
	prometheus.MustRegister(camerasSynthesized)
	prometheus.MustRegister(cameraFailures)
	prometheus.MustRegister(synthesisDuration)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCamera records the outcome of one camera's synthesis.
func RecordCamera(duration time.Duration, rendered, missDEM, outsideOrtho int) {
	synthesisDuration.Observe(duration.Seconds())
	camerasSynthesized.Inc()
	pixelsRendered.Add(float64(rendered))
	pixelsNoData.WithLabelValues("dem_miss").Add(float64(missDEM))
	pixelsNoData.WithLabelValues("outside_ortho").Add(float64(outsideOrtho))
}

// RecordCameraFailure counts a camera whose synthesis was skipped.
func RecordCameraFailure() {
	cameraFailures.Inc()
}
