package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cinema-reservation/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient builds a client from config and pings it.
func NewRedisClient(config utils.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", config.Addr, err)
	}

	return client, nil
}

// RedisPublisher publishes each batch as JSON on a per-screening Pub/Sub channel,
// so every API instance and socket gateway sees the same stream.
type RedisPublisher struct {
	client redis.Cmdable
	prefix string
	log    *zap.Logger
}

func NewRedisPublisher(client redis.Cmdable, prefix string, log *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		prefix: prefix,
		log:    log.With(zap.String("publisher", "redis")),
	}
}

// Channel is the Pub/Sub channel of a screening, e.g. cinema:screening:<id>.
func (p *RedisPublisher) Channel(screeningID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", p.prefix, screeningID.String())
}

func (p *RedisPublisher) Publish(ctx context.Context, screeningID uuid.UUID, events []SeatEvent) error {
	payload, err := json.Marshal(NewMessage(screeningID, events))
	if err != nil {
		return fmt.Errorf("marshal seat events: %w", err)
	}

	channel := p.Channel(screeningID)
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		p.log.Error("Failed to publish to redis",
			zap.Error(err),
			zap.String("channel", channel),
		)
		return fmt.Errorf("publish to %s: %w", channel, err)
	}

	return nil
}
