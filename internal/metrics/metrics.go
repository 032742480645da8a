// Package metrics records render statistics in Prometheus form. Batch runs
// dump them to a node_exporter textfile since there is no server to scrape.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Render outcomes.
const (
	ResultRendered = "rendered"
	ResultCached   = "cached"
	ResultFailed   = "failed"
)

// Recorder owns a private registry. A nil *Recorder records nothing.
type Recorder struct {
	reg *prometheus.Registry

	renders         *prometheus.CounterVec
	renderDuration  *prometheus.HistogramVec
	queryDuration   prometheus.Histogram
	featuresPerTile prometheus.Histogram
	labelsPlaced    prometheus.Counter
}

// New creates a recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		renders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "osmtile",
			Subsystem: "render",
			Name:      "tiles_total",
			Help:      "Tiles processed, by outcome",
		}, []string{"result"}),
		renderDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "osmtile",
			Subsystem: "render",
			Name:      "duration_seconds",
			Help:      "Time from request to committed artifact",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"zoom"}),
		queryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "osmtile",
			Subsystem: "store",
			Name:      "query_duration_seconds",
			Help:      "Duration of the two-phase feature query",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		featuresPerTile: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "osmtile",
			Subsystem: "render",
			Name:      "features_per_tile",
			Help:      "Features returned by the store per rendered tile",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		labelsPlaced: f.NewCounter(prometheus.CounterOpts{
			Namespace: "osmtile",
			Subsystem: "render",
			Name:      "labels_placed_total",
			Help:      "Labels drawn across all tiles",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// ObserveRender counts one tile outcome. Durations are only recorded for
// fresh renders.
func (r *Recorder) ObserveRender(zoom int, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.renders.WithLabelValues(result).Inc()
	if result == ResultRendered {
		r.renderDuration.WithLabelValues(fmt.Sprint(zoom)).Observe(d.Seconds())
	}
}

// ObserveQuery records one feature query.
func (r *Recorder) ObserveQuery(d time.Duration, features int) {
	if r == nil {
		return
	}
	r.queryDuration.Observe(d.Seconds())
	r.featuresPerTile.Observe(float64(features))
}

// AddLabels counts placed labels.
func (r *Recorder) AddLabels(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.labelsPlaced.Add(float64(n))
}

// WriteTextfile writes all metrics in text exposition format to path.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
