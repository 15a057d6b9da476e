package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mediconsult/pkg/models"
)

// messageTTL bounds how long a conversation log stays hot.
const messageTTL = 7 * 24 * time.Hour

// Redis keeps per-conversation message logs in Redis lists with a sliding
// TTL. It is never authoritative; the store is.
type Redis struct {
	client    *redis.Client
	logger    zerolog.Logger
	available atomic.Bool
}

// NewRedis connects to Redis and pings it once. A failed ping does not fail
// construction; the cache starts unavailable and recovers on the next
// successful operation.
func NewRedis(ctx context.Context, addr, password string, db int, logger zerolog.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	c := &Redis{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
	}

	if err := client.Ping(ctx).Err(); err != nil {
		c.logger.Warn().Err(err).Str("addr", addr).Msg("redis unreachable, cache starts unavailable")
	} else {
		c.available.Store(true)
	}

	return c
}

func key(conversationID string) string {
	return "conversation:messages:" + conversationID
}

func (c *Redis) observe(err error) error {
	if err != nil {
		if c.available.Swap(false) {
			c.logger.Warn().Err(err).Msg("redis became unavailable")
		}
		return err
	}
	if !c.available.Swap(true) {
		c.logger.Info().Msg("redis available again")
	}
	return nil
}

// Append pushes the message onto the conversation list and refreshes the TTL.
func (c *Redis) Append(ctx context.Context, conversationID string, msg *models.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	k := key(conversationID)
	if err := c.client.RPush(ctx, k, payload).Err(); err != nil {
		return c.observe(fmt.Errorf("failed to append to cache: %w", err))
	}
	if err := c.client.Expire(ctx, k, messageTTL).Err(); err != nil {
		return c.observe(fmt.Errorf("failed to set cache ttl: %w", err))
	}
	return c.observe(nil)
}

// List returns the cached log in append order. Entries that fail to decode
// are skipped with a log line rather than failing the whole read.
func (c *Redis) List(ctx context.Context, conversationID string) ([]*models.Message, error) {
	raw, err := c.client.LRange(ctx, key(conversationID), 0, -1).Result()
	if err != nil {
		return nil, c.observe(fmt.Errorf("failed to read cache: %w", err))
	}
	c.observe(nil)

	messages := make([]*models.Message, 0, len(raw))
	for _, entry := range raw {
		msg := &models.Message{}
		if err := json.Unmarshal([]byte(entry), msg); err != nil {
			c.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("skipping undecodable cache entry")
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Delete drops the conversation's cached log.
func (c *Redis) Delete(ctx context.Context, conversationID string) error {
	if err := c.client.Del(ctx, key(conversationID)).Err(); err != nil {
		return c.observe(fmt.Errorf("failed to delete cache entry: %w", err))
	}
	return c.observe(nil)
}

// Available reports the last observed reachability.
func (c *Redis) Available() bool {
	return c.available.Load()
}
