package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/ports"
)

const replyChannelPrefix = "case:reply:"

// RedisReplyChannels maps every reply channel onto a Redis Pub/Sub channel.
// Publishing to a channel nobody subscribes to is a no-op on the server.
type RedisReplyChannels struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisReplyChannels(client *redis.Client, logger *slog.Logger) *RedisReplyChannels {
	return &RedisReplyChannels{client: client, logger: logger}
}

func (r *RedisReplyChannels) Subscribe(ctx context.Context, channelID string) (ports.ReplySubscription, error) {
	pubsub := r.client.Subscribe(ctx, replyChannelPrefix+channelID)
	// Receive blocks until the server confirms, so a publish issued after
	// Subscribe returns cannot be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe reply channel: %w", err)
	}
	sub := &redisSubscription{
		pubsub:    pubsub,
		channelID: channelID,
		replies:   make(chan domain.CaseResolved, 1),
		logger:    r.logger,
	}
	go sub.pump()
	return sub, nil
}

func (r *RedisReplyChannels) Publish(ctx context.Context, channelID string, result domain.CaseResolved) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	if err := r.client.Publish(ctx, replyChannelPrefix+channelID, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish reply: %v", domain.ErrDependencyUnavailable, err)
	}
	return nil
}

type redisSubscription struct {
	pubsub    *redis.PubSub
	channelID string
	replies   chan domain.CaseResolved
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

func (s *redisSubscription) pump() {
	defer close(s.replies)
	for msg := range s.pubsub.Channel() {
		var result domain.CaseResolved
		if err := json.Unmarshal([]byte(msg.Payload), &result); err != nil {
			s.logger.Warn("reply payload undecodable",
				"module", "cache.reply_channels",
				"layer", "adapter",
				"operation", "receive",
				"outcome", "failure",
				"reply_channel", s.channelID,
				"error", err,
			)
			continue
		}
		select {
		case s.replies <- result:
		default:
		}
	}
}

func (s *redisSubscription) Replies() <-chan domain.CaseResolved { return s.replies }

func (s *redisSubscription) Unsubscribe() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.pubsub.Close()
	})
	return s.closeErr
}
