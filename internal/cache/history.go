package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/marketplace/internal/domain"
)

const historyPrefix = "orders:history:"

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// OrderHistory caches per-user order history. Every failure degrades to a
// miss so callers fall back to the order store.
type OrderHistory struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewOrderHistory(client *redis.Client, ttl time.Duration, logger *slog.Logger) *OrderHistory {
	return &OrderHistory{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func historyKey(userID string) string {
	return historyPrefix + userID
}

func (c *OrderHistory) Get(ctx context.Context, userID string) ([]domain.OrderSummary, bool) {
	data, err := c.client.Get(ctx, historyKey(userID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false
	case err != nil:
		c.logger.Warn("order history cache read failed", "error", err, "user_id", userID)
		return nil, false
	}

	var history []domain.OrderSummary
	if err := json.Unmarshal(data, &history); err != nil {
		c.logger.Warn("order history cache entry is corrupt", "error", err, "user_id", userID)
		return nil, false
	}
	return history, true
}

func (c *OrderHistory) Set(ctx context.Context, userID string, history []domain.OrderSummary) {
	data, err := json.Marshal(history)
	if err != nil {
		c.logger.Error("failed to marshal order history", "error", err, "user_id", userID)
		return
	}
	if err := c.client.Set(ctx, historyKey(userID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("order history cache write failed", "error", err, "user_id", userID)
	}
}

func (c *OrderHistory) Invalidate(ctx context.Context, userIDs ...string) {
	if len(userIDs) == 0 {
		return
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = historyKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("order history cache invalidation failed", "error", err, "users", len(userIDs))
	}
}

// InvalidateAll drops every cached history with SCAN so the server is never
// blocked by KEYS.
func (c *OrderHistory) InvalidateAll(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, historyPrefix+"*", 200).Iterator()

	batch := make([]string, 0, 200)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			c.logger.Warn("order history cache invalidation failed", "error", err, "keys", len(batch))
		}
		batch = batch[:0]
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			flush()
		}
	}
	flush()

	if err := iter.Err(); err != nil {
		c.logger.Warn("order history cache scan failed", "error", err)
	}
}
