package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorsRegisterOnce(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	collectors := []prometheus.Collector{
		CampaignsCreated, CampaignsStarted, MessagesEnqueued, MessagesProcessed,
		SendRetries, WorkerErrors, WebhookCallbacks,
	}
	for _, c := range collectors {
		assert.NoError(t, reg.Register(c))
	}

	MessagesProcessed.WithLabelValues("sent").Inc()
	WebhookCallbacks.WithLabelValues("unmatched").Inc()

	assert.Equal(t, 2, testutil.CollectAndCount(MessagesProcessed)+testutil.CollectAndCount(WebhookCallbacks))
}
