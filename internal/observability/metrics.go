package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the alert service.
type Metrics struct {
	ReportsConsumed    prometheus.Counter
	ReportDecodeErrors prometheus.Counter
	PipelineRunning    prometheus.Gauge
	BatchSize          prometheus.Histogram
	PassDuration       prometheus.Histogram
	ClustersEvaluated  prometheus.Counter
	ClustersRejected   *prometheus.CounterVec // labels: reason={too_few_reports,low_confidence}
	AlertsCreated      prometheus.Counter
	AlertsUpdated      prometheus.Counter
	AlertsResolved     *prometheus.CounterVec // labels: path={votes,manual,expiry}
	ActiveAlerts       prometheus.Gauge
	Votes              *prometheus.CounterVec // labels: vote={confirm,resolved}, accepted={true,false}
	FollowUpsSent      prometheus.Counter
	Notifications      *prometheus.CounterVec // labels: outcome={sent,error}
	PhotoVerifications *prometheus.CounterVec // labels: outcome={flood,not_flood,error}
	WeatherFallbacks   prometheus.Counter
	ArchiveErrors      prometheus.Counter

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty,fallback}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
}

const namespace = "floodwatch"

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		ReportsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reports_consumed_total",
			Help: help("Total report messages read from the reports topic."),
		}),
		ReportDecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "report_decode_errors_total",
			Help: help("Report messages skipped because they failed to decode or validate."),
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pipeline_running",
			Help: help("1 when the ingestion pipeline is active, 0 when shut down."),
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "batch_size",
			Help:    help("Number of report messages per batch extracted from Kafka."),
			Buckets: []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "pass_duration_seconds",
			Help:    help("Duration of one cluster-score-upsert processing pass."),
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		ClustersEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "clusters_evaluated_total",
			Help: help("Report clusters considered by the admission gate."),
		}),
		ClustersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "clusters_rejected_total",
			Help: help("Report clusters rejected by the admission gate, by reason."),
		}, []string{"reason"}),
		AlertsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_created_total",
			Help: help("Alerts created."),
		}),
		AlertsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_updated_total",
			Help: help("Existing alerts updated in place."),
		}),
		AlertsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_resolved_total",
			Help: help("Alerts deactivated, by resolution path."),
		}, []string{"path"}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_alerts",
			Help: help("Currently active alerts."),
		}),
		Votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "votes_total",
			Help: help("Community votes by kind and whether they were accepted."),
		}, []string{"vote", "accepted"}),
		FollowUpsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "followups_sent_total",
			Help: help("Follow-up prompts broadcast."),
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total",
			Help: help("Notification deliveries by outcome."),
		}, []string{"outcome"}),
		PhotoVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "photo_verifications_total",
			Help: help("Photo verification calls by outcome."),
		}, []string{"outcome"}),
		WeatherFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "weather_fallback_total",
			Help: help("Weather lookups answered with the conservative fallback snapshot."),
		}),
		ArchiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "archive_errors_total",
			Help: help("Failed alert archive writes."),
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "geocode_requests_total",
			Help: help("Area name resolutions by outcome."),
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "geocode_cache_total",
			Help: help("Geocoding cache lookups by result."),
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "geocode_api_duration_seconds",
			Help:    help("Mapbox API request duration in seconds."),
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.ReportsConsumed,
		m.ReportDecodeErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.PassDuration,
		m.ClustersEvaluated,
		m.ClustersRejected,
		m.AlertsCreated,
		m.AlertsUpdated,
		m.AlertsResolved,
		m.ActiveAlerts,
		m.Votes,
		m.FollowUpsSent,
		m.Notifications,
		m.PhotoVerifications,
		m.WeatherFallbacks,
		m.ArchiveErrors,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

// NewUnregisteredMetrics creates Metrics that are never exported, for offline tools.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics(false)
}
