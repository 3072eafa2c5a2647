package optbacktest

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const kMetricsNamespace = "optbacktest"

// BatchMetrics counts what a batch run did. It lives in its own registry and
// is written once at the end of a run as a node-exporter textfile.
type BatchMetrics struct {
	registry     *prometheus.Registry
	filesTotal   *prometheus.CounterVec
	rowsTotal    *prometheus.CounterVec
	ivOutcomes   *prometheus.CounterVec
	fileDuration *prometheus.HistogramVec
	lastRun      prometheus.Gauge
}

func NewBatchMetrics() (*BatchMetrics, error) {
	registry := prometheus.NewRegistry()

	filesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: kMetricsNamespace,
		Subsystem: "batch",
		Name:      "files_total",
		Help:      "Option files processed, by operation and status.",
	}, []string{"op", "status"})

	rowsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: kMetricsNamespace,
		Subsystem: "batch",
		Name:      "rows_total",
		Help:      "Rows read by operation.",
	}, []string{"op"})

	ivOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: kMetricsNamespace,
		Subsystem: "iv",
		Name:      "outcomes_total",
		Help:      "Implied volatility solves by outcome.",
	}, []string{"outcome"})

	fileDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: kMetricsNamespace,
		Subsystem: "batch",
		Name:      "file_duration_seconds",
		Help:      "Time spent reading, transforming and writing one file.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: kMetricsNamespace,
		Subsystem: "batch",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last batch finished.",
	})

	for _, c := range []prometheus.Collector{filesTotal, rowsTotal, ivOutcomes,
		fileDuration, lastRun} {

		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("registering metric: %w", err)
		}
	}

	return &BatchMetrics{
		registry:     registry,
		filesTotal:   filesTotal,
		rowsTotal:    rowsTotal,
		ivOutcomes:   ivOutcomes,
		fileDuration: fileDuration,
		lastRun:      lastRun,
	}, nil
}

func (self *BatchMetrics) Registry() *prometheus.Registry {
	return self.registry
}

func (self *BatchMetrics) ObserveFile(
	op string,
	status string,
	rows int,
	duration time.Duration) {

	self.filesTotal.WithLabelValues(op, status).Inc()
	self.rowsTotal.WithLabelValues(op).Add(float64(rows))
	self.fileDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (self *BatchMetrics) ObserveIvOutcomes(outcomes map[IvOutcome]int) {
	for outcome, n := range outcomes {
		self.ivOutcomes.WithLabelValues(outcome.String()).Add(float64(n))
	}
}

func (self *BatchMetrics) MarkRun(at time.Time) {
	self.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile atomically replaces path with the current values.
func (self *BatchMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, self.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
