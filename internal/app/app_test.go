package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/unclebandit/campaign-messaging/internal/config"
	"github.com/unclebandit/campaign-messaging/internal/model"
	"github.com/unclebandit/campaign-messaging/internal/service"
)

func memoryConfig() *config.Config {
	return &config.Config{
		MetricsPort:        "0",
		StoreBackend:       "memory",
		QueueBackend:       "memory",
		QueueStream:        "whatsapp_queue",
		QueueGroup:         "whatsapp_workers",
		WorkerConsumer:     "worker_1",
		WorkerBlockTimeout: 10 * time.Millisecond,
		WorkerErrorBackoff: time.Millisecond,
		WorkerClaimBatch:   10,
		SendMaxAttempts:    1,
		SendTimeout:        time.Second,
		TwilioChannel:      "whatsapp",
	}
}

func TestNewWiresMemoryBackends(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Shutdown()

	router := a.Router()

	req := httptest.NewRequest(http.MethodPost, "/campaigns", strings.NewReader(`{"name":"Promo","template_body":"Hi!"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWorkerFailsWithoutProviderCredentials(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Shutdown()
	ctx := context.Background()

	require.NoError(t, a.Store.Clients.Upsert(ctx, &model.Client{Phone: "+15550001", OptIn: true}))
	svc := a.CampaignService()
	c, err := svc.CreateCampaign(ctx, service.CreateCampaignInput{Name: "Promo", TemplateBody: "Hi!"})
	require.NoError(t, err)
	_, err = svc.StartCampaign(ctx, c.ID)
	require.NoError(t, err)

	d, err := a.Queue.ReadNext(ctx, "worker_1", a.Config.WorkerBlockTimeout)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.NoError(t, a.Worker().Process(ctx, *d))

	status, err := svc.GetCampaignStatus(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, status.Stats, 1)
	assert.Equal(t, model.StatusFailed, status.Stats[0].Status)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.QueueBackend = "kafka"
	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
