package service_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-messaging/internal/model"
	"github.com/unclebandit/campaign-messaging/internal/provider"
	"github.com/unclebandit/campaign-messaging/internal/queue"
	"github.com/unclebandit/campaign-messaging/internal/repository"
	"github.com/unclebandit/campaign-messaging/internal/service"
)

// stubProvider counts sends and answers with a fixed sid or error.
type stubProvider struct {
	mu    sync.Mutex
	sid   string
	err   error
	calls int
	to    []string
}

func (p *stubProvider) Send(ctx context.Context, to, body string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.to = append(p.to, to)
	if p.err != nil {
		return "", p.err
	}
	return p.sid, nil
}

func (p *stubProvider) ParseCallback(values url.Values) provider.CallbackEvent {
	return provider.ParseTwilioCallback(values)
}

func (p *stubProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type pipeline struct {
	mem        *repository.MemoryStore
	store      *repository.Store
	queue      *queue.InMemoryQueue
	provider   *stubProvider
	campaigns  *service.CampaignService
	worker     *service.Worker
	reconciler *service.Reconciler
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	mem := repository.NewMemoryStore()
	store := mem.Store()
	q := queue.NewInMemoryQueue()
	p := &stubProvider{sid: "SM123"}
	log := zap.NewNop()

	return &pipeline{
		mem:       mem,
		store:     store,
		queue:     q,
		provider:  p,
		campaigns: service.NewCampaignService(store, q, log, false),
		worker: service.NewWorker(q, store, p, service.WorkerConfig{
			Consumer:     "worker_1",
			BlockTimeout: 10 * time.Millisecond,
			ErrorBackoff: time.Millisecond,
			ClaimMinIdle: time.Minute,
			ClaimBatch:   10,
		}, log),
		reconciler: service.NewReconciler(store.Messages, p, log),
	}
}

func (p *pipeline) addClient(t *testing.T, phone string, optIn bool) {
	t.Helper()
	require.NoError(t, p.store.Clients.Upsert(context.Background(), &model.Client{Phone: phone, OptIn: optIn}))
}

func (p *pipeline) startedCampaign(t *testing.T) *model.Campaign {
	t.Helper()
	ctx := context.Background()
	c, err := p.campaigns.CreateCampaign(ctx, service.CreateCampaignInput{Name: "Promo", TemplateBody: "Hi!"})
	require.NoError(t, err)
	_, err = p.campaigns.StartCampaign(ctx, c.ID)
	require.NoError(t, err)
	return c
}

// drain processes every job currently in the queue.
func (p *pipeline) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for {
		d, err := p.queue.ReadNext(ctx, "worker_1", time.Millisecond)
		require.NoError(t, err)
		if d == nil {
			return
		}
		require.NoError(t, p.worker.Process(ctx, *d))
	}
}

func (p *pipeline) message(t *testing.T, phone string) model.Message {
	t.Helper()
	for _, m := range p.mem.AllMessages() {
		if m.ClientPhone == phone {
			return m
		}
	}
	t.Fatalf("no message for %s", phone)
	return model.Message{}
}

var errStoreDown = errors.New("connection refused")

// flakyMessages fails the first failures reads, then delegates.
type flakyMessages struct {
	repository.MessageRepositoryInterface
	mu       sync.Mutex
	failures int
}

func (f *flakyMessages) GetByMessageID(ctx context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, errStoreDown
	}
	f.mu.Unlock()
	return f.MessageRepositoryInterface.GetByMessageID(ctx, id)
}

// failingInsert rejects every bulk insert.
type failingInsert struct {
	repository.MessageRepositoryInterface
}

func (f *failingInsert) InsertMany(ctx context.Context, msgs []*model.Message) error {
	return errStoreDown
}
