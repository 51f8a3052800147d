package queue

import (
	"fmt"

	"github.com/unclebandit/campaign-messaging/internal/config"
	"github.com/unclebandit/campaign-messaging/internal/db"
)

// New connects the backend selected by cfg.QueueBackend.
func New(cfg *config.Config) (Queue, error) {
	switch cfg.QueueBackend {
	case "valkey":
		client, err := db.ConnectValkey(db.ValkeyConfig{
			Address:  cfg.RedisAddress(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return NewStreamQueue(client, cfg.QueueStream, cfg.QueueGroup), nil
	case "rabbitmq":
		return DialRabbitMQ(cfg.AMQPURL, cfg.QueueStream)
	case "memory":
		return NewInMemoryQueue(), nil
	default:
		return nil, fmt.Errorf("unsupported queue backend: %s", cfg.QueueBackend)
	}
}
