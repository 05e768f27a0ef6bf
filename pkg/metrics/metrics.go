package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EmailsProcessed counts queue delivery attempts by result (sent|retried|exhausted).
	EmailsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resonate_emails_processed_total",
			Help: "Total number of queued email delivery attempts",
		},
		[]string{"result"},
	)

	// EmailQueueDepth tracks the number of pending queued emails after each pass.
	EmailQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resonate_email_queue_depth",
			Help: "Number of queued emails awaiting delivery",
		},
	)

	// VerificationRedemptions counts token redemption outcomes (success|not_found|used|expired).
	VerificationRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resonate_verification_redemptions_total",
			Help: "Total number of verification token redemption attempts",
		},
		[]string{"result"},
	)

	// SongViews counts recorded song plays.
	SongViews = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resonate_song_views_total",
			Help: "Total number of recorded song views",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resonate_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
