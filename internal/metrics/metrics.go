package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "outreach"

var (
	BatchesScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_scheduled_total",
		Help:      "Batches handed to the scheduled job queue.",
	})

	RecipientsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recipients_scheduled_total",
		Help:      "Recipients registered and scheduled.",
	})

	DuplicateRecipients = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recipients_duplicate_total",
		Help:      "Recipients skipped because they were already registered.",
	})

	ScheduleLeadSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "schedule_lead_seconds",
		Help:      "Time between planning a batch and its scheduled send time.",
		Buckets:   prometheus.ExponentialBuckets(60, 4, 8),
	})

	SchedulingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduling_runs_total",
		Help:      "Finished scheduling runs by status.",
	}, []string{"status"})

	Dispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emails_dispatched_total",
		Help:      "Dispatch outcomes by task status.",
	}, []string{"status"})

	OpensTracked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "opens_tracked_total",
		Help:      "Tracking pixel hits that marked a task opened.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
