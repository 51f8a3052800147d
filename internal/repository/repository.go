package repository

import (
	"context"
	"time"

	"github.com/unclebandit/campaign-messaging/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	// GetByID returns *appErrors.ErrCampaignNotFound when id is unknown.
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	SetStatus(ctx context.Context, id, status string, startedAt *time.Time) error
	// TransitionStatus moves the campaign from one status to another only if
	// it is currently in from. It reports whether the transition happened.
	TransitionStatus(ctx context.Context, id, from, to string, startedAt *time.Time) (bool, error)
	ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error)
}

// ClientRepositoryInterface is the slice of the CRM the pipeline reads.
type ClientRepositoryInterface interface {
	// GetByPhone returns (nil, nil) when no client has the phone.
	GetByPhone(ctx context.Context, phone string) (*model.Client, error)
	ListOptedIn(ctx context.Context) ([]model.Client, error)
	Upsert(ctx context.Context, c *model.Client) error
}

type MessageRepositoryInterface interface {
	// InsertMany bulk inserts without deduplication.
	InsertMany(ctx context.Context, msgs []*model.Message) error
	// GetByMessageID returns (nil, nil) when the message is unknown.
	GetByMessageID(ctx context.Context, messageID string) (*model.Message, error)
	// UpdateByMessageID applies u unconditionally; an unknown id is a no-op.
	UpdateByMessageID(ctx context.Context, messageID string, u model.MessageUpdate) error
	// UpdateByProviderSID reports whether a record was updated. An unknown sid
	// is not an error.
	UpdateByProviderSID(ctx context.Context, sid string, u model.MessageUpdate) (bool, error)
	StatusCounts(ctx context.Context, campaignID string) ([]model.StatusCount, error)
}

// Store bundles the repositories of one backend.
type Store struct {
	Campaigns CampaignRepositoryInterface
	Clients   ClientRepositoryInterface
	Messages  MessageRepositoryInterface

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}
