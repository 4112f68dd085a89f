// Package metrics collects per-conversion Prometheus metrics and writes them
// to a node-exporter textfile, since conversions are short-lived processes
// with no endpoint to scrape.
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration   *prometheus.HistogramVec
	conversions     *prometheus.CounterVec
	thresholdStages *prometheus.CounterVec
	meshVertices    prometheus.Gauge
	meshFaces       prometheus.Gauge
	slicesLoaded    prometheus.Counter
	slicesSkipped   prometheus.Counter
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aortec_stage_duration_seconds",
			Help:    "Duration of pipeline stages.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"stage"}),
		conversions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aortec_conversions_total",
			Help: "Conversions by mode and outcome.",
		}, []string{"mode", "outcome"}),
		thresholdStages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aortec_threshold_stage_total",
			Help: "Threshold selections by the relaxation stage that produced them.",
		}, []string{"stage"}),
		meshVertices: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aortec_mesh_vertices",
			Help: "Vertex count of the last exported mesh.",
		}),
		meshFaces: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aortec_mesh_faces",
			Help: "Face count of the last exported mesh.",
		}),
		slicesLoaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "aortec_slices_loaded_total",
			Help: "Slices parsed successfully.",
		}),
		slicesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "aortec_slices_skipped_total",
			Help: "Candidate files skipped because they could not be parsed.",
		}),
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Time starts timing stage; call the returned func when it ends
func (m *Metrics) Time(stage string) func() {
	start := time.Now()
	return func() {
		if m != nil {
			m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
		}
	}
}

// Conversion counts a finished conversion
func (m *Metrics) Conversion(mode, outcome string) {
	if m != nil {
		m.conversions.WithLabelValues(mode, outcome).Inc()
	}
}

// ThresholdStage counts a threshold selection
func (m *Metrics) ThresholdStage(stage string) {
	if m != nil {
		m.thresholdStages.WithLabelValues(stage).Inc()
	}
}

// MeshSize records the size of the exported mesh
func (m *Metrics) MeshSize(vertices, faces int) {
	if m != nil {
		m.meshVertices.Set(float64(vertices))
		m.meshFaces.Set(float64(faces))
	}
}

// Slices records the loader's parsed and skipped counts
func (m *Metrics) Slices(loaded, skipped int) {
	if m != nil {
		m.slicesLoaded.Add(float64(loaded))
		m.slicesSkipped.Add(float64(skipped))
	}
}

// WriteTextfile writes every collector in the text exposition format
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Wrapf(err, "failed to write metrics to %s", path)
	}
	return nil
}
