package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Presence tracks which users currently hold at least one live connection.
// Implementations must tolerate being called off the hub goroutine.
type Presence interface {
	Touch(ctx context.Context, userID string)
	Drop(ctx context.Context, userID string)
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// NopPresence is used when presence tracking is disabled.
type NopPresence struct{}

func (NopPresence) Touch(context.Context, string)  {}
func (NopPresence) Drop(context.Context, string)   {}
func (NopPresence) IsOnline(context.Context, string) (bool, error) {
	return false, nil
}

// RedisPresence marks users online with a TTL key refreshed by the liveness
// cycle, so a crashed process's markers age out on their own.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisPresence(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisPresence {
	return &RedisPresence{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func presenceKey(userID string) string {
	return fmt.Sprintf("presence:user:%s", userID)
}

func (p *RedisPresence) Touch(ctx context.Context, userID string) {
	if err := p.client.Set(ctx, presenceKey(userID), "1", p.ttl).Err(); err != nil {
		p.logger.Warn("Presence touch failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
}

func (p *RedisPresence) Drop(ctx context.Context, userID string) {
	if err := p.client.Del(ctx, presenceKey(userID)).Err(); err != nil {
		p.logger.Warn("Presence drop failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
}

func (p *RedisPresence) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := p.client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("presence lookup: %w", err)
	}
	return n > 0, nil
}
