// Package metrics provides Prometheus instrumentation for the moderation bot.
// It exposes gauges for live session and queue sizes, counters for report and
// review outcomes, and histograms for enrichment latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveReports tracks the number of reporter conversations in progress.
	ActiveReports = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "modbot_active_reports",
		Help: "Current number of in-progress report sessions",
	})

	// QueueSize tracks the number of finalized reports awaiting review.
	QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "modbot_triage_queue_size",
		Help: "Current number of reports waiting in the triage queue",
	})

	// ReportsTotal counts report sessions that ended, labeled by outcome:
	// "submitted", "cancelled", "rejected" or "throttled".
	ReportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modbot_reports_total",
		Help: "Total number of report sessions by outcome",
	}, []string{"outcome"})

	// AutoReportsTotal counts reports synthesized from monitored channels.
	AutoReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modbot_auto_reports_total",
		Help: "Total number of automatically synthesized reports",
	})

	// ReviewsTotal counts completed reviews, labeled by terminal state.
	ReviewsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modbot_reviews_total",
		Help: "Total number of completed moderator reviews by outcome",
	}, []string{"outcome"})

	// EnrichmentDuration records how long a full enrichment run takes.
	EnrichmentDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "modbot_enrichment_duration_seconds",
		Help:    "Time to compute all risk signals for a report",
		Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
	})

	// EnrichmentWaitTimeouts counts finalizations that gave up waiting on
	// enrichment and proceeded with fail-open values.
	EnrichmentWaitTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modbot_enrichment_wait_timeouts_total",
		Help: "Total number of enrichment waits that timed out",
	})

	// ClassifierCalls counts external classifier calls, labeled by service
	// ("text", "visual", "translate", "assistant") and result ("ok", "error").
	ClassifierCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modbot_classifier_calls_total",
		Help: "Total number of external classifier calls",
	}, []string{"service", "result"})
)

func init() {
	prometheus.MustRegister(
		ActiveReports,
		QueueSize,
		ReportsTotal,
		AutoReportsTotal,
		ReviewsTotal,
		EnrichmentDuration,
		EnrichmentWaitTimeouts,
		ClassifierCalls,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
