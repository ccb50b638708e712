package jobmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs           *prometheus.CounterVec
	failures       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	rebuiltEntries *prometheus.CounterVec
	chainBreaks    *prometheus.CounterVec
	mirrorDrift    *prometheus.GaugeVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddRebuiltEntries counts entries written by a company rebuild.
func (m *Metrics) AddRebuiltEntries(companyID int64, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.rebuiltEntries.WithLabelValues(company(companyID)).Add(float64(count))
}

// ObserveVerification records the outcome of a company verification run.
func (m *Metrics) ObserveVerification(companyID int64, breaks, mismatches int) {
	if m == nil {
		return
	}
	label := company(companyID)
	if breaks > 0 {
		m.chainBreaks.WithLabelValues(label).Add(float64(breaks))
	}
	m.mirrorDrift.WithLabelValues(label).Set(float64(mismatches))
}

func company(id int64) string {
	if id <= 0 {
		return "0"
	}
	return strconv.FormatInt(id, 10)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_ledger_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_ledger_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stock_ledger_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	rebuilt := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_ledger_rebuilt_entries_total",
		Help: "Ledger entries regenerated by rebuild runs per company.",
	}, []string{"company"})
	breaks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_ledger_chain_breaks_total",
		Help: "Running balance inconsistencies detected by verification per company.",
	}, []string{"company"})
	drift := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stock_ledger_mirror_mismatches",
		Help: "Items whose stock mirror disagreed with the ledger at the last verification.",
	}, []string{"company"})
	registerer.MustRegister(runs, failures, duration, rebuilt, breaks, drift)
	return &Metrics{
		runs:           runs,
		failures:       failures,
		duration:       duration,
		rebuiltEntries: rebuilt,
		chainBreaks:    breaks,
		mirrorDrift:    drift,
	}
}
