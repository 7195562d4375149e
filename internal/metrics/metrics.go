// Package metrics keeps prometheus counters for a run and exports them as a
// node_exporter textfile when the run ends.
package metrics

import (
	"fmt"

	"github.com/flthibaud/rapidimg/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

type Recorder struct {
	registry         *prometheus.Registry
	itemsTotal       *prometheus.CounterVec
	itemDuration     *prometheus.HistogramVec
	inputBytesTotal  prometheus.Counter
	outputBytesTotal prometheus.Counter
	bytesSavedTotal  prometheus.Counter
	pixelsTotal      prometheus.Counter
	lastRunFailures  prometheus.Gauge
}

func New() *Recorder {
	registry := prometheus.NewRegistry()

	r := &Recorder{
		registry: registry,
		itemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rapidimg_items_total",
			Help: "Processed items by detected format, operation and final status.",
		}, []string{"format", "operation", "status"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rapidimg_item_duration_seconds",
			Help:    "Processing duration of each item.",
			Buckets: prometheus.DefBuckets,
		}, []string{"format", "status"}),
		inputBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rapidimg_input_bytes_total",
			Help: "Total size of inputs that produced an output.",
		}),
		outputBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rapidimg_output_bytes_total",
			Help: "Total size of written outputs.",
		}),
		bytesSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rapidimg_bytes_saved_total",
			Help: "Total bytes saved across items whose output is smaller than the input.",
		}),
		pixelsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rapidimg_pixels_processed_total",
			Help: "Total pixels encoded across successful items.",
		}),
		lastRunFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rapidimg_run_failed_items",
			Help: "Failed items in the current run.",
		}),
	}

	registry.MustRegister(
		r.itemsTotal,
		r.itemDuration,
		r.inputBytesTotal,
		r.outputBytesTotal,
		r.bytesSavedTotal,
		r.pixelsTotal,
		r.lastRunFailures,
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Report implements pipeline.Reporter.
func (r *Recorder) Report(outcome domain.Outcome) {
	status := string(outcome.Status)
	operation := "none"
	if outcome.OK() {
		operation = outcome.Operation.String()
	}
	format := outcome.Format.String()

	r.itemsTotal.WithLabelValues(format, operation, status).Inc()
	r.itemDuration.WithLabelValues(format, status).Observe(outcome.Duration.Seconds())

	if !outcome.OK() {
		r.lastRunFailures.Inc()
		return
	}
	r.pixelsTotal.Add(float64(outcome.Width) * float64(outcome.Height))
	if outcome.Stats == nil {
		return
	}
	r.inputBytesTotal.Add(float64(outcome.Stats.InputSize))
	r.outputBytesTotal.Add(float64(outcome.Stats.OutputSize))
	if saved := outcome.Stats.Saved(); saved > 0 {
		r.bytesSavedTotal.Add(float64(saved))
	}
}

// WriteTextfile atomically writes every metric to path in the text
// exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
