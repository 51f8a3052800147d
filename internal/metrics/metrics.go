package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CampaignsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campaigns_created_total",
			Help: "Total campaigns created",
		},
	)

	CampaignsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campaigns_started_total",
			Help: "Total campaign starts that enqueued at least one message",
		},
	)

	MessagesEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_enqueued_total",
			Help: "Total send jobs appended to the queue",
		},
	)

	// MessagesProcessed is labelled by the worker's outcome: sent, failed,
	// skipped_opt_out, duplicate, missing, invalid.
	MessagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_processed_total",
			Help: "Total send jobs processed by the worker",
		},
		[]string{"outcome"},
	)

	SendRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "provider_send_retries_total",
			Help: "Total provider send attempts retried after a transient failure",
		},
	)

	WorkerErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_loop_errors_total",
			Help: "Total infrastructure errors absorbed by the worker loop",
		},
	)

	// WebhookCallbacks is labelled matched or unmatched.
	WebhookCallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_callbacks_total",
			Help: "Total provider status callbacks received",
		},
		[]string{"result"},
	)
)

func Init() {
	prometheus.MustRegister(CampaignsCreated)
	prometheus.MustRegister(CampaignsStarted)
	prometheus.MustRegister(MessagesEnqueued)
	prometheus.MustRegister(MessagesProcessed)
	prometheus.MustRegister(SendRetries)
	prometheus.MustRegister(WorkerErrors)
	prometheus.MustRegister(WebhookCallbacks)
}
