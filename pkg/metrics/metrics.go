package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	RebalancesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rebalancer_rebalances_total",
		Help: "The total number of executed rebalances by strategy and outcome",
	}, []string{"strategy", "status"})

	QuoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rebalancer_quote_requests_total",
		Help: "The total number of quote requests by strategy and outcome",
	}, []string{"strategy", "status"})

	QuoteRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rebalancer_quote_rejections_total",
		Help: "The total number of rejected quote requests (no supported route)",
	}, []string{"strategy"})

	QuoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rebalancer_quote_seconds",
		Help:    "Time taken to obtain a quote from an external API",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"strategy"})

	ExecutionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rebalancer_execution_seconds",
		Help:    "Time taken to execute a rebalance quote",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"strategy"})

	SigningQueueWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rebalancer_signing_queue_wait_seconds",
		Help:    "Time spent waiting for the per-wallet signing slot",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"chain_id"})

	AttestationChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rebalancer_attestation_checks_total",
		Help: "The total number of attestation polls by result",
	}, []string{"result"})

	AttestationJobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rebalancer_attestation_jobs_in_flight",
		Help: "Number of burn transactions awaiting attestation",
	})

	CoreTokenFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rebalancer_core_token_fallbacks_total",
		Help: "The total number of core-token fallback attempts by outcome",
	}, []string{"status"})

	ChainKeyRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rebalancer_chain_key_refreshes_total",
		Help: "The total number of chain-key directory loads",
	})

	ScheduledJobs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rebalancer_scheduled_jobs",
		Help: "Number of jobs waiting in the in-process scheduler",
	}, []string{"job_type"})

	ProviderAPIErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rebalancer_provider_api_errors_total",
		Help: "Total number of external provider API errors",
	}, []string{"strategy", "endpoint"})
)
