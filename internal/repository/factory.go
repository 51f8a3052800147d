package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/unclebandit/campaign-messaging/internal/config"
	"github.com/unclebandit/campaign-messaging/internal/db"
)

// NewStore connects the backend selected by cfg.StoreBackend.
func NewStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	switch cfg.StoreBackend {
	case "mongo":
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		database := client.Database(cfg.MongoDBName)
		if err := db.EnsureIndexes(ctx, database); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return NewMongoStore(client, database), nil
	case "postgres":
		conn, err := db.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(conn), nil
	case "memory":
		return NewMemoryStore().Store(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.StoreBackend)
	}
}

func NewMongoStore(client *mongo.Client, database *mongo.Database) *Store {
	return &Store{
		Campaigns: NewMongoCampaignRepository(database.Collection(db.CampaignsCollection)),
		Clients:   NewMongoClientRepository(database.Collection(db.ClientsCollection)),
		Messages:  NewMongoMessageRepository(database.Collection(db.MessagesCollection)),
		ping: func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		},
		close: client.Disconnect,
	}
}

func NewPostgresStore(conn *sql.DB) *Store {
	return &Store{
		Campaigns: &CampaignRepository{DB: conn},
		Clients:   &ClientRepository{DB: conn},
		Messages:  &MessageRepository{DB: conn},
		ping:      conn.PingContext,
		close: func(context.Context) error {
			return conn.Close()
		},
	}
}
