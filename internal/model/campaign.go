// internal/model/campaign.go
package model

import "time"

const (
	CampaignStatusDraft      = "draft"
	CampaignStatusProcessing = "processing"
)

type Campaign struct {
	ID           string     `bson:"-" json:"id"`
	Name         string     `bson:"name" json:"name"`
	TemplateBody string     `bson:"template_body" json:"template_body"`
	Status       string     `bson:"status" json:"status"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	StartedAt    *time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
}

// Draft reports whether the campaign has never been started.
func (c *Campaign) Draft() bool {
	return c.Status == CampaignStatusDraft
}

// StatusCount is one row of a campaign's live message aggregate.
type StatusCount struct {
	Status MessageStatus `bson:"status" json:"status"`
	Count  int           `bson:"count" json:"count"`
}
