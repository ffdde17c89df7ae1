package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LeadsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_leads_received_total",
			Help: "Total number of lead requests received",
		},
		[]string{"country"},
	)

	LeadsDeduplicated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "affiliate_leads_deduplicated_total",
			Help: "Lead requests answered from the fingerprint cache",
		},
	)

	LeadsPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_leads_persisted_total",
			Help: "Lead records written to the store",
		},
		[]string{"status"},
	)

	TagsClaimed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_tags_claimed_total",
			Help: "Tags claimed for incoming leads",
		},
		[]string{"country"},
	)

	TagPoolExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_tag_pool_exhausted_total",
			Help: "Lead requests rejected because no tag was available",
		},
		[]string{"country"},
	)

	TagsReset = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_tags_reset_total",
			Help: "Tags returned to the pool after the claim expired",
		},
		[]string{"country"},
	)

	ConversionsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_conversions_sent_total",
			Help: "Purchases reported to an ad network",
		},
		[]string{"network"},
	)

	ConversionsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_conversions_failed_total",
			Help: "Conversion groups rejected by an ad network",
		},
		[]string{"network"},
	)

	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_job_runs_total",
			Help: "Scheduled job runs by outcome",
		},
		[]string{"job", "status"},
	)

	JobsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_jobs_skipped_total",
			Help: "Job triggers skipped because the previous run was still in flight",
		},
		[]string{"job"},
	)

	ResponseTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status_code"},
	)

	QueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lead_queue_size",
			Help: "Current size of the lead side-effect queue",
		},
	)
)

func init() {
	prometheus.MustRegister(LeadsReceived)
	prometheus.MustRegister(LeadsDeduplicated)
	prometheus.MustRegister(LeadsPersisted)
	prometheus.MustRegister(TagsClaimed)
	prometheus.MustRegister(TagPoolExhausted)
	prometheus.MustRegister(TagsReset)
	prometheus.MustRegister(ConversionsSent)
	prometheus.MustRegister(ConversionsFailed)
	prometheus.MustRegister(JobRuns)
	prometheus.MustRegister(JobsSkipped)
	prometheus.MustRegister(ResponseTime)
	prometheus.MustRegister(QueueSize)
}
