package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appErrors "github.com/unclebandit/campaign-messaging/internal/errors"
	"github.com/unclebandit/campaign-messaging/internal/model"
)

type campaignDocument struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	model.Campaign `bson:",inline"`
}

func (d campaignDocument) toModel() *model.Campaign {
	c := d.Campaign
	c.ID = d.ID.Hex()
	return &c
}

// MongoCampaignRepository stores campaigns keyed by ObjectID.
type MongoCampaignRepository struct {
	coll *mongo.Collection
}

func NewMongoCampaignRepository(coll *mongo.Collection) *MongoCampaignRepository {
	return &MongoCampaignRepository{coll: coll}
}

func (r *MongoCampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now().UTC()
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	res, err := r.coll.InsertOne(ctx, campaignDocument{Campaign: *c})
	if err != nil {
		return appErrors.Store("create campaign", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		c.ID = oid.Hex()
	}
	return nil
}

func (r *MongoCampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, appErrors.NewCampaignNotFound(id)
	}

	var doc campaignDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, appErrors.Store("get campaign", err)
	}
	return doc.toModel(), nil
}

func (r *MongoCampaignRepository) SetStatus(ctx context.Context, id, status string, startedAt *time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return appErrors.NewCampaignNotFound(id)
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": campaignStatusSet(status, startedAt)})
	if err != nil {
		return appErrors.Store("set campaign status", err)
	}
	if res.MatchedCount == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

func (r *MongoCampaignRepository) TransitionStatus(ctx context.Context, id, from, to string, startedAt *time.Time) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, appErrors.NewCampaignNotFound(id)
	}
	filter := bson.M{"_id": oid, "status": from}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": campaignStatusSet(to, startedAt)})
	if err != nil {
		return false, appErrors.Store("transition campaign status", err)
	}
	return res.MatchedCount == 1, nil
}

func (r *MongoCampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, appErrors.Store("list campaigns", err)
	}
	defer cursor.Close(ctx)

	campaigns := []*model.Campaign{}
	for cursor.Next(ctx) {
		var doc campaignDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, appErrors.Store("list campaigns", err)
		}
		campaigns = append(campaigns, doc.toModel())
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, appErrors.Store("list campaigns", err)
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Store("count campaigns", err)
	}
	return campaigns, int(total), nil
}

func campaignStatusSet(status string, startedAt *time.Time) bson.M {
	set := bson.M{"status": status}
	if startedAt != nil {
		set["started_at"] = *startedAt
	}
	return set
}

var _ CampaignRepositoryInterface = (*MongoCampaignRepository)(nil)
