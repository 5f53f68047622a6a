package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the pipeline's Prometheus collectors in a private
// registry. The long-running server exposes it via Registry(); one-shot
// runs (CLI, Lambda) Push it to a Pushgateway.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	// ======================
	// Fetch
	// ======================

	// FetchObjects: remote objects downloaded and decoded, per site.
	FetchObjects *prometheus.CounterVec
	// FetchRows: records decoded from those objects.
	FetchRows *prometheus.CounterVec
	// BatchColumns: schema width of the last fetched batch.
	BatchColumns *prometheus.GaugeVec

	// BlobErrors: failed object-store attempts by operation (list, get).
	// One call that retries three times adds 3.
	BlobErrors *prometheus.CounterVec

	// ======================
	// Preprocess
	// ======================

	// StageRowsDropped: rows removed by each stage. Stages that only
	// rewrite values never add to it.
	StageRowsDropped *prometheus.CounterVec

	// ======================
	// Write
	// ======================

	// WriteInserted / WriteSkipped: rows accepted by the table vs rows
	// that hit the (site_name, event_id) conflict. Re-running an hour
	// shows up here as skipped only.
	WriteInserted *prometheus.CounterVec
	WriteSkipped  *prometheus.CounterVec

	// NewsletterSignups: records passing the site's signup validator.
	NewsletterSignups *prometheus.CounterVec

	// ======================
	// Trigger
	// ======================

	// TriggerRequests: HTTP trigger notifications by outcome
	// (accepted, queue_full, bad_request, too_large). A steady queue_full rate means
	// runs are slower than notifications arrive.
	TriggerRequests *prometheus.CounterVec

	// ======================
	// Runs
	// ======================

	// Runs: finished runs by status (ok, error).
	Runs *prometheus.CounterVec
	// RunDuration: wall time of a full fetch → write run.
	RunDuration *prometheus.HistogramVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		FetchObjects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ata",
			Name:      "fetch_objects_total",
			Help:      "Remote event objects fetched and decoded.",
		}, []string{"site"}),
		FetchRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ata",
			Name:      "fetch_rows_total",
			Help:      "Event records decoded from fetched objects.",
		}, []string{"site"}),
		BatchColumns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ata",
			Name:      "batch_columns",
			Help:      "Number of columns in the most recent fetched batch.",
		}, []string{"site"}),
		BlobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ata",
			Name:      "blob_errors_total",
			Help:      "Failed object-store call attempts.",
		}, []string{"op"}),
		StageRowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ata",
			Name:      "stage_rows_dropped_total",
			Help:      "Rows removed by each preprocessing stage.",
		}, []string{"stage"}),
		WriteInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ata",
			Name:      "write_inserted_total",
			Help:      "Rows newly inserted into the events table.",
		}, []string{"site"}),
		WriteSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ata",
			Name:      "write_skipped_total",
			Help:      "Rows skipped because (site_name, event_id) already existed.",
		}, []string{"site"}),
		NewsletterSignups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ata",
			Name:      "newsletter_signups_total",
			Help:      "Processed events recognized as newsletter signups.",
		}, []string{"site"}),
		TriggerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ata",
			Name:      "trigger_requests_total",
			Help:      "HTTP trigger notifications by outcome.",
		}, []string{"outcome"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ata",
			Name:      "runs_total",
			Help:      "Finished pipeline runs by status.",
		}, []string{"site", "status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ata",
			Name:      "run_duration_seconds",
			Help:      "Duration of full pipeline runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"site"}),
	}

	m.reg.MustRegister(
		m.FetchObjects,
		m.FetchRows,
		m.BatchColumns,
		m.BlobErrors,
		m.StageRowsDropped,
		m.WriteInserted,
		m.WriteSkipped,
		m.NewsletterSignups,
		m.TriggerRequests,
		m.Runs,
		m.RunDuration,
	)
	return m
}

// Registry returns the registry for promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObjectFetched records one decoded object of rows records.
func (m *Metrics) ObjectFetched(site string, rows int) {
	if m == nil {
		return
	}
	m.FetchObjects.WithLabelValues(site).Inc()
	m.FetchRows.WithLabelValues(site).Add(float64(rows))
}

// BatchShape records the column count of a fetched batch.
func (m *Metrics) BatchShape(site string, cols int) {
	if m == nil {
		return
	}
	m.BatchColumns.WithLabelValues(site).Set(float64(cols))
}

// BlobError records one failed object-store attempt.
func (m *Metrics) BlobError(op string) {
	if m == nil {
		return
	}
	m.BlobErrors.WithLabelValues(op).Inc()
}

// StageDropped records rows removed by a stage. Non-positive deltas are
// ignored.
func (m *Metrics) StageDropped(stage string, rows int) {
	if m == nil || rows <= 0 {
		return
	}
	m.StageRowsDropped.WithLabelValues(stage).Add(float64(rows))
}

// Written records the outcome of one write call.
func (m *Metrics) Written(site string, inserted, skipped int64) {
	if m == nil {
		return
	}
	m.WriteInserted.WithLabelValues(site).Add(float64(inserted))
	m.WriteSkipped.WithLabelValues(site).Add(float64(skipped))
}

// Signups records newsletter signups seen in a run.
func (m *Metrics) Signups(site string, n int) {
	if m == nil {
		return
	}
	m.NewsletterSignups.WithLabelValues(site).Add(float64(n))
}

// Trigger records one HTTP trigger outcome.
func (m *Metrics) Trigger(outcome string) {
	if m == nil {
		return
	}
	m.TriggerRequests.WithLabelValues(outcome).Inc()
}

// RunFinished records a run's status and duration.
func (m *Metrics) RunFinished(site string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Runs.WithLabelValues(site, status).Inc()
	m.RunDuration.WithLabelValues(site).Observe(d.Seconds())
}

// Push sends the registry to a Pushgateway under job. An empty url is a
// no-op.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
