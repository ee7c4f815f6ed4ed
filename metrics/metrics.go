// Package metrics defines the Recorder interface MultiLock reports
// admission and release events to. A Recorder is optional: the zero-cost
// NoopRecorder is the default, and PrometheusRecorder is provided for
// callers who want observability, following the MustRegister-once,
// package-level-vector shape used throughout
// buildbarn-bb-remote-execution/pkg/filesystem/fuse's metrics decorators.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives one call per admission decision and one per release.
// Implementations must be safe for concurrent use.
type Recorder interface {
	// AdmittedHead is called when a caller head-merges into the active
	// group.
	AdmittedHead()
	// AdmittedTail is called when a caller merges into an existing,
	// not-yet-active tail group (global-read tail merge).
	AdmittedTail()
	// AdmittedNew is called when a caller's request becomes a fresh
	// queue tail.
	AdmittedNew()
	// Released is called by the torch-bearer once per group that
	// finishes draining, with the time that group spent as the active
	// head.
	Released(heldFor time.Duration)
}

// NoopRecorder discards every event. It is the default Recorder so that
// MultiLock has no forced runtime cost when metrics are not wanted.
type NoopRecorder struct{}

func (NoopRecorder) AdmittedHead()          {}
func (NoopRecorder) AdmittedTail()          {}
func (NoopRecorder) AdmittedNew()           {}
func (NoopRecorder) Released(time.Duration) {}

var (
	registerOnce sync.Once

	admissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multilock",
			Name:      "admissions_total",
			Help:      "Total number of callers admitted, by admission path.",
		},
		[]string{"path"})

	groupHeldSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "multilock",
			Name:      "group_held_seconds",
			Help:      "Time an admission group spent as the active head before fully draining.",
			Buckets:   prometheus.DefBuckets,
		})
)

// PrometheusRecorder reports admission and release events to the default
// Prometheus registry. Metrics are package-level vectors registered
// exactly once via sync.Once, the same pattern
// NewMetricsRawFileSystem uses to guard MustRegister against being called
// by more than one instance.
type PrometheusRecorder struct {
	head    prometheus.Counter
	tail    prometheus.Counter
	newTail prometheus.Counter
	held    prometheus.Observer
}

// NewPrometheusRecorder registers multilock's metrics with the default
// registry if this is the first instance created, and returns a Recorder
// bound to those metrics.
func NewPrometheusRecorder() *PrometheusRecorder {
	registerOnce.Do(func() {
		prometheus.MustRegister(admissionsTotal)
		prometheus.MustRegister(groupHeldSeconds)
	})
	return &PrometheusRecorder{
		head:    admissionsTotal.WithLabelValues("head"),
		tail:    admissionsTotal.WithLabelValues("tail"),
		newTail: admissionsTotal.WithLabelValues("new"),
		held:    groupHeldSeconds,
	}
}

func (r *PrometheusRecorder) AdmittedHead() { r.head.Inc() }
func (r *PrometheusRecorder) AdmittedTail() { r.tail.Inc() }
func (r *PrometheusRecorder) AdmittedNew()  { r.newTail.Inc() }
func (r *PrometheusRecorder) Released(heldFor time.Duration) {
	r.held.Observe(heldFor.Seconds())
}
