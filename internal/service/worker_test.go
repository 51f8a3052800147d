package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-messaging/internal/model"
	"github.com/unclebandit/campaign-messaging/internal/provider"
	"github.com/unclebandit/campaign-messaging/internal/queue"
)

func TestWorkerSendsToOptedInClient(t *testing.T) {
	p := newPipeline(t)
	p.addClient(t, "+1555", true)
	p.startedCampaign(t)

	p.drain(t)

	m := p.message(t, "+1555")
	assert.Equal(t, model.StatusSent, m.Status)
	assert.Equal(t, "SM123", m.ProviderSID)
	assert.Nil(t, m.ErrorCode)
	assert.Equal(t, 1, p.provider.Calls())
	assert.Equal(t, []string{"+1555"}, p.provider.to)
	assert.Zero(t, p.queue.Pending(), "job acknowledged")
}

func TestWorkerNeverSendsWithoutConsent(t *testing.T) {
	p := newPipeline(t)
	p.addClient(t, "+1555", true)
	p.startedCampaign(t)

	// consent withdrawn after the campaign was started
	p.addClient(t, "+1555", false)
	p.drain(t)

	m := p.message(t, "+1555")
	assert.Equal(t, model.StatusSkippedOptOut, m.Status)
	require.NotNil(t, m.ErrorCode)
	assert.Equal(t, model.ErrorCodeConsentRequired, *m.ErrorCode)
	assert.Empty(t, m.ProviderSID)
	assert.Zero(t, p.provider.Calls())
	assert.Zero(t, p.queue.Pending())
}

func TestWorkerSkipsUnknownRecipient(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	require.NoError(t, p.store.Messages.InsertMany(ctx, []*model.Message{
		{MessageID: "m-1", CampaignID: "c-1", ClientPhone: "+1999", Status: model.StatusQueued},
	}))
	require.NoError(t, p.queue.Enqueue(ctx, model.Job{MessageID: "m-1", ClientPhone: "+1999", TemplateBody: "Hi!"}))

	p.drain(t)

	m := p.message(t, "+1999")
	assert.Equal(t, model.StatusSkippedOptOut, m.Status)
	assert.Zero(t, p.provider.Calls())
}

func TestWorkerRecordsProviderFailure(t *testing.T) {
	p := newPipeline(t)
	p.provider.err = &provider.SendError{Code: "21211", Detail: "21211: invalid number"}
	p.addClient(t, "+1555", true)
	p.startedCampaign(t)

	p.drain(t)

	m := p.message(t, "+1555")
	assert.Equal(t, model.StatusFailed, m.Status)
	require.NotNil(t, m.ErrorCode)
	assert.Equal(t, "21211: invalid number", *m.ErrorCode)
	assert.Empty(t, m.ProviderSID)
	assert.Zero(t, p.queue.Pending(), "failed sends are acknowledged, not requeued")
}

func TestWorkerUnconfiguredProviderFails(t *testing.T) {
	p := newPipeline(t)
	p.worker.Provider = provider.NewTwilio(provider.TwilioConfig{})
	p.addClient(t, "+1555", true)
	p.startedCampaign(t)

	p.drain(t)

	m := p.message(t, "+1555")
	assert.Equal(t, model.StatusFailed, m.Status)
	require.NotNil(t, m.ErrorCode)
	assert.Equal(t, "provider client not initialized", *m.ErrorCode)
}

func TestWorkerRedeliveryDoesNotResend(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	p.addClient(t, "+1555", true)
	p.startedCampaign(t)

	d, err := p.queue.ReadNext(ctx, "worker_1", time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, d)

	require.NoError(t, p.worker.Process(ctx, *d))
	require.NoError(t, p.worker.Process(ctx, *d))

	assert.Equal(t, 1, p.provider.Calls())
	assert.Equal(t, model.StatusSent, p.message(t, "+1555").Status)
}

func TestWorkerDropsJobWithoutRecord(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	require.NoError(t, p.queue.Enqueue(ctx, model.Job{MessageID: "ghost", ClientPhone: "+1555"}))

	p.drain(t)

	assert.Zero(t, p.provider.Calls())
	assert.Zero(t, p.queue.Pending())
}

func TestWorkerDropsInvalidDelivery(t *testing.T) {
	p := newPipeline(t)
	err := p.worker.Process(context.Background(), queue.Delivery{ID: "1-0", Invalid: assert.AnError})
	assert.NoError(t, err)
	assert.Zero(t, p.provider.Calls())
}

func TestWorkerLeavesEntryPendingOnStoreError(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	p.addClient(t, "+1555", true)
	p.startedCampaign(t)
	p.worker.MessageRepo = &flakyMessages{MessageRepositoryInterface: p.store.Messages, failures: 1}

	d, err := p.queue.ReadNext(ctx, "worker_1", time.Millisecond)
	require.NoError(t, err)

	assert.ErrorIs(t, p.worker.Process(ctx, *d), errStoreDown)
	assert.Equal(t, 1, p.queue.Pending())
	assert.Zero(t, p.provider.Calls())
}

func TestWorkerRunProcessesUntilCancelled(t *testing.T) {
	p := newPipeline(t)
	p.addClient(t, "+1555", true)
	p.addClient(t, "+1666", true)
	p.startedCampaign(t)
	// one transient store failure must not stop the loop
	p.worker.MessageRepo = &flakyMessages{MessageRepositoryInterface: p.store.Messages, failures: 1}
	p.worker.Config.ClaimMinIdle = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		for _, m := range p.mem.AllMessages() {
			if m.Status != model.StatusSent {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
	assert.Equal(t, 2, p.provider.Calls())
}

func TestWorkerRunReclaimsStaleEntries(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	p.addClient(t, "+1555", true)
	p.startedCampaign(t)

	// a previous consumer read the job and died before acknowledging it
	d, err := p.queue.ReadNext(ctx, "worker_dead", time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, d)
	p.worker.Config.ClaimMinIdle = 0

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- p.worker.Run(runCtx) }()

	require.Eventually(t, func() bool {
		return p.message(t, "+1555").Status == model.StatusSent
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, p.queue.Pending())
}

// shutdownProvider cancels the worker's context while a send is in flight,
// then answers with sid or err.
type shutdownProvider struct {
	stubProvider
	cancel context.CancelFunc
}

func (s *shutdownProvider) Send(ctx context.Context, to, body string) (string, error) {
	s.cancel()
	if s.err == nil && s.sid == "" {
		return "", ctx.Err()
	}
	return s.stubProvider.Send(ctx, to, body)
}

func TestWorkerRecordsSendAnsweredDuringShutdown(t *testing.T) {
	tests := []struct {
		name   string
		sid    string
		err    error
		status model.MessageStatus
	}{
		{"accepted", "SM77", nil, model.StatusSent},
		{"rejected", "", &provider.SendError{Code: "TIMEOUT", Detail: "request timed out"}, model.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t)
			p.addClient(t, "+1555", true)
			p.startedCampaign(t)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sp := &shutdownProvider{stubProvider: stubProvider{sid: tt.sid, err: tt.err}, cancel: cancel}
			p.worker.Provider = sp

			d, err := p.queue.ReadNext(ctx, "worker_1", time.Millisecond)
			require.NoError(t, err)
			require.NoError(t, p.worker.Process(ctx, *d))

			m := p.message(t, "+1555")
			assert.Equal(t, tt.status, m.Status)
			assert.Equal(t, tt.sid, m.ProviderSID)
			assert.Zero(t, p.queue.Pending(), "job acknowledged")
			assert.Equal(t, 1, sp.Calls())
		})
	}
}

func TestWorkerLeavesUnsentEntryPendingOnShutdown(t *testing.T) {
	p := newPipeline(t)
	p.addClient(t, "+1555", true)
	p.startedCampaign(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.worker.Provider = &shutdownProvider{cancel: cancel}

	d, err := p.queue.ReadNext(ctx, "worker_1", time.Millisecond)
	require.NoError(t, err)

	assert.ErrorIs(t, p.worker.Process(ctx, *d), context.Canceled)
	assert.Equal(t, model.StatusSending, p.message(t, "+1555").Status)
	assert.Equal(t, 1, p.queue.Pending())
}
