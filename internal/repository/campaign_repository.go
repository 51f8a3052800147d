package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/campaign-messaging/internal/errors"
	"github.com/unclebandit/campaign-messaging/internal/model"
)

// CampaignRepository is the PostgreSQL campaign store.
type CampaignRepository struct {
	DB *sql.DB
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now().UTC()
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	query := `INSERT INTO campaigns (id, name, template_body, status, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.DB.ExecContext(ctx, query, c.ID, c.Name, c.TemplateBody, c.Status, c.CreatedAt); err != nil {
		return appErrors.Store("create campaign", err)
	}
	return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	query := `SELECT id, name, template_body, status, created_at, started_at FROM campaigns WHERE id=$1`
	var c model.Campaign
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.TemplateBody, &c.Status, &c.CreatedAt, &c.StartedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, appErrors.Store("get campaign", err)
	}
	return &c, nil
}

func (r *CampaignRepository) SetStatus(ctx context.Context, id, status string, startedAt *time.Time) error {
	query := `UPDATE campaigns SET status=$1, started_at=COALESCE($2, started_at) WHERE id=$3`
	res, err := r.DB.ExecContext(ctx, query, status, startedAt, id)
	if err != nil {
		return appErrors.Store("set campaign status", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

func (r *CampaignRepository) TransitionStatus(ctx context.Context, id, from, to string, startedAt *time.Time) (bool, error) {
	query := `UPDATE campaigns SET status=$1, started_at=COALESCE($2, started_at) WHERE id=$3 AND status=$4`
	res, err := r.DB.ExecContext(ctx, query, to, startedAt, id, from)
	if err != nil {
		return false, appErrors.Store("transition campaign status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, appErrors.Store("transition campaign status", err)
	}
	return n == 1, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT id, name, template_body, status, created_at, started_at FROM campaigns WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		filter := fmt.Sprintf(" AND status=$%d", argPos)
		query += filter
		countQuery += filter
		args = append(args, status)
		argPos++
	}
	countArgs := append([]interface{}{}, args...)

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, appErrors.Store("list campaigns", err)
	}
	defer rows.Close()

	for rows.Next() {
		c := &model.Campaign{}
		if err := rows.Scan(&c.ID, &c.Name, &c.TemplateBody, &c.Status, &c.CreatedAt, &c.StartedAt); err != nil {
			return nil, 0, appErrors.Store("list campaigns", err)
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, appErrors.Store("list campaigns", err)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, appErrors.Store("count campaigns", err)
	}

	return campaigns, total, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
