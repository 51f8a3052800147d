// internal/service/campaign_service.go
package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/campaign-messaging/internal/errors"
	"github.com/unclebandit/campaign-messaging/internal/metrics"
	"github.com/unclebandit/campaign-messaging/internal/model"
	"github.com/unclebandit/campaign-messaging/internal/queue"
	"github.com/unclebandit/campaign-messaging/internal/repository"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ClientRepo   repository.ClientRepositoryInterface
	MessageRepo  repository.MessageRepositoryInterface
	Queue        queue.Queue
	Log          *zap.Logger

	// AllowRestart lets StartCampaign run again on a campaign that already
	// left draft, re-enqueueing every eligible client.
	AllowRestart bool

	validate *validator.Validate
}

func NewCampaignService(store *repository.Store, q queue.Queue, log *zap.Logger, allowRestart bool) *CampaignService {
	return &CampaignService{
		CampaignRepo: store.Campaigns,
		ClientRepo:   store.Clients,
		MessageRepo:  store.Messages,
		Queue:        q,
		Log:          log,
		AllowRestart: allowRestart,
		validate:     newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type CreateCampaignInput struct {
	Name         string `json:"name" validate:"required"`
	TemplateBody string `json:"template_body" validate:"required"`
}

// StartResult is the outcome of StartCampaign. NoEligible is set, with
// Queued zero, when no client has opted in.
type StartResult struct {
	Queued     int
	NoEligible bool
}

// CampaignStatus is a campaign with its live per-status message counts.
type CampaignStatus struct {
	Campaign *model.Campaign     `json:"campaign"`
	Stats    []model.StatusCount `json:"stats"`
}

func (s *CampaignService) inputValidator() *validator.Validate {
	if s.validate == nil {
		s.validate = newValidator()
	}
	return s.validate
}

func (s *CampaignService) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*model.Campaign, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.TemplateBody = strings.TrimSpace(in.TemplateBody)

	if err := s.inputValidator().Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, appErrors.NewValidation(verrs[0].Field(), "is required")
		}
		return nil, err
	}

	c := &model.Campaign{
		Name:         in.Name,
		TemplateBody: in.TemplateBody,
		Status:       model.CampaignStatusDraft,
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}

	metrics.CampaignsCreated.Inc()
	s.Log.Info("campaign created", zap.String("campaign_id", c.ID), zap.String("name", c.Name))
	return c, nil
}

// StartCampaign fans the campaign out to every opted-in client: one queued
// Message record and one queue job each. Records are written before jobs so a
// worker never reads a job whose record does not exist yet.
func (s *CampaignService) StartCampaign(ctx context.Context, campaignID string) (*StartResult, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !s.AllowRestart && !campaign.Draft() {
		return nil, appErrors.NewCampaignAlreadyStarted(campaign.ID, campaign.Status)
	}

	clients, err := s.ClientRepo.ListOptedIn(ctx)
	if err != nil {
		return nil, err
	}
	if len(clients) == 0 {
		s.Log.Info("no eligible contacts", zap.String("campaign_id", campaign.ID))
		return &StartResult{NoEligible: true}, nil
	}

	startedAt := time.Now().UTC()
	if !s.AllowRestart {
		ok, err := s.CampaignRepo.TransitionStatus(ctx, campaign.ID, model.CampaignStatusDraft, model.CampaignStatusProcessing, &startedAt)
		if err != nil {
			return nil, err
		}
		if !ok {
			// lost a race with a concurrent start
			current, err := s.CampaignRepo.GetByID(ctx, campaign.ID)
			if err != nil {
				return nil, err
			}
			return nil, appErrors.NewCampaignAlreadyStarted(current.ID, current.Status)
		}
	}

	msgs := make([]*model.Message, len(clients))
	jobs := make([]model.Job, len(clients))
	for i, c := range clients {
		msgs[i] = &model.Message{
			MessageID:   uuid.NewString(),
			CampaignID:  campaign.ID,
			ClientPhone: c.Phone,
			Status:      model.StatusQueued,
			CreatedAt:   startedAt,
			UpdatedAt:   startedAt,
		}
		jobs[i] = model.Job{
			MessageID:    msgs[i].MessageID,
			ClientPhone:  c.Phone,
			TemplateBody: campaign.TemplateBody,
		}
	}

	if err := s.MessageRepo.InsertMany(ctx, msgs); err != nil {
		if !s.AllowRestart {
			// nothing was written, so the campaign can be started again
			if rerr := s.CampaignRepo.SetStatus(ctx, campaign.ID, model.CampaignStatusDraft, nil); rerr != nil {
				s.Log.Error("failed to release campaign after insert failure",
					zap.String("campaign_id", campaign.ID), zap.Error(rerr))
			}
		}
		return nil, err
	}

	if err := s.Queue.Enqueue(ctx, jobs...); err != nil {
		s.Log.Error("enqueue failed after records were written",
			zap.String("campaign_id", campaign.ID),
			zap.Int("records", len(msgs)),
			zap.Error(err),
		)
		return nil, appErrors.Queue("enqueue campaign jobs", err)
	}

	if s.AllowRestart {
		if err := s.CampaignRepo.SetStatus(ctx, campaign.ID, model.CampaignStatusProcessing, &startedAt); err != nil {
			return nil, err
		}
	}

	metrics.CampaignsStarted.Inc()
	metrics.MessagesEnqueued.Add(float64(len(jobs)))
	s.Log.Info("campaign started", zap.String("campaign_id", campaign.ID), zap.Int("queued", len(jobs)))
	return &StartResult{Queued: len(jobs)}, nil
}

func (s *CampaignService) GetCampaignStatus(ctx context.Context, campaignID string) (*CampaignStatus, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	stats, err := s.MessageRepo.StatusCounts(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	return &CampaignStatus{Campaign: campaign, Stats: stats}, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}
