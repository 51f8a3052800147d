package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appErrors "github.com/unclebandit/campaign-messaging/internal/errors"
	"github.com/unclebandit/campaign-messaging/internal/model"
)

type MongoClientRepository struct {
	coll *mongo.Collection
}

func NewMongoClientRepository(coll *mongo.Collection) *MongoClientRepository {
	return &MongoClientRepository{coll: coll}
}

func (r *MongoClientRepository) GetByPhone(ctx context.Context, phone string) (*model.Client, error) {
	var c model.Client
	if err := r.coll.FindOne(ctx, bson.M{"phone": phone}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, appErrors.Store("get client", err)
	}
	return &c, nil
}

func (r *MongoClientRepository) ListOptedIn(ctx context.Context) ([]model.Client, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"opt_in": true}, options.Find().SetSort(bson.D{{Key: "phone", Value: 1}}))
	if err != nil {
		return nil, appErrors.Store("list clients", err)
	}
	defer cursor.Close(ctx)

	clients := []model.Client{}
	if err := cursor.All(ctx, &clients); err != nil {
		return nil, appErrors.Store("list clients", err)
	}
	return clients, nil
}

func (r *MongoClientRepository) Upsert(ctx context.Context, c *model.Client) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"phone": c.Phone},
		bson.M{"$set": bson.M{"opt_in": c.OptIn}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return appErrors.Store("upsert client", err)
	}
	return nil
}

var _ ClientRepositoryInterface = (*MongoClientRepository)(nil)
