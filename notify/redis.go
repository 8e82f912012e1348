package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/config"
	"github.com/BaSui01/ticketflow/types"
)

// publishTimeout bounds one PUBLISH call.
const publishTimeout = 2 * time.Second

// RedisPublisher forwards progress events to a Redis channel so external
// consumers (other dashboards, audit pipelines) can subscribe without
// holding a websocket to this process.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher connects to Redis and returns a publisher Listener.
func NewRedisPublisher(cfg config.RedisConfig, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	channel := cfg.Channel
	if channel == "" {
		channel = "ticketflow:events"
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logger.With(zap.String("component", "redis_publisher")),
	}
}

// Notify implements Listener. Publish failures are logged and swallowed;
// event delivery is best-effort by contract.
func (p *RedisPublisher) Notify(event types.ProgressEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal progress event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Warn("publish progress event failed",
			zap.String("channel", p.channel),
			zap.Error(err),
		)
	}
}

// Ping verifies connectivity, used by the health endpoint.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
