package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	appErrors "github.com/unclebandit/campaign-messaging/internal/errors"
	"github.com/unclebandit/campaign-messaging/internal/model"
)

type MongoMessageRepository struct {
	coll *mongo.Collection
}

func NewMongoMessageRepository(coll *mongo.Collection) *MongoMessageRepository {
	return &MongoMessageRepository{coll: coll}
}

func (r *MongoMessageRepository) InsertMany(ctx context.Context, msgs []*model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	docs := make([]interface{}, len(msgs))
	for i, m := range msgs {
		docs[i] = m
	}
	if _, err := r.coll.InsertMany(ctx, docs); err != nil {
		return appErrors.Store("insert messages", err)
	}
	return nil
}

func (r *MongoMessageRepository) GetByMessageID(ctx context.Context, messageID string) (*model.Message, error) {
	var m model.Message
	if err := r.coll.FindOne(ctx, bson.M{"message_id": messageID}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, appErrors.Store("get message", err)
	}
	return &m, nil
}

func (r *MongoMessageRepository) UpdateByMessageID(ctx context.Context, messageID string, u model.MessageUpdate) error {
	filter := messageFilter("message_id", messageID, u)
	if _, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": messageSet(u)}); err != nil {
		return appErrors.Store("update message", err)
	}
	return nil
}

func (r *MongoMessageRepository) UpdateByProviderSID(ctx context.Context, sid string, u model.MessageUpdate) (bool, error) {
	if sid == "" {
		return false, nil
	}
	res, err := r.coll.UpdateOne(ctx, messageFilter("provider_sid", sid, u), bson.M{"$set": messageSet(u)})
	if err != nil {
		return false, appErrors.Store("update message by provider sid", err)
	}
	return res.MatchedCount > 0, nil
}

func (r *MongoMessageRepository) StatusCounts(ctx context.Context, campaignID string) ([]model.StatusCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"campaign_id": campaignID}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
		{{Key: "$project", Value: bson.M{"status": "$_id", "count": 1, "_id": 0}}},
		{{Key: "$sort", Value: bson.M{"status": 1}}},
	}
	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, appErrors.Store("campaign stats", err)
	}
	defer cursor.Close(ctx)

	stats := []model.StatusCount{}
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, appErrors.Store("campaign stats", err)
	}
	return stats, nil
}

func messageFilter(key, value string, u model.MessageUpdate) bson.M {
	filter := bson.M{key: value}
	if len(u.UnlessStatusIn) > 0 {
		filter["status"] = bson.M{"$nin": u.UnlessStatusIn}
	}
	return filter
}

func messageSet(u model.MessageUpdate) bson.M {
	set := bson.M{
		"status":     u.Status,
		"updated_at": time.Now().UTC(),
	}
	if u.ProviderSID != "" {
		set["provider_sid"] = u.ProviderSID
	}
	if u.SetErrorCode {
		set["error_code"] = u.ErrorCode
	}
	return set
}

var _ MessageRepositoryInterface = (*MongoMessageRepository)(nil)
