// Package cache provides a Redis-backed pending-question store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ashureev/checkin/internal/config"
	"github.com/ashureev/checkin/internal/domain"
	"github.com/ashureev/checkin/internal/store"
	redis "github.com/redis/go-redis/v9"
)

const (
	pendingKeyPrefix = "checkin:pending:"
	pendingIndexKey  = "checkin:pending:sent"
)

// PendingStore keeps one JSON value per user plus a sorted set of send
// times so stale slots can be found without scanning keys.
type PendingStore struct {
	client *redis.Client
}

var _ store.PendingStore = (*PendingStore)(nil)

// NewPendingStore connects to Redis and verifies the connection.
func NewPendingStore(cfg config.RedisConfig) (*PendingStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}
	return &PendingStore{client: client}, nil
}

// NewPendingStoreWithClient wraps an existing client.
func NewPendingStoreWithClient(client *redis.Client) *PendingStore {
	return &PendingStore{client: client}
}

func pendingKey(userID string) string {
	return pendingKeyPrefix + userID
}

// GetPending loads the slot of a user.
func (s *PendingStore) GetPending(ctx context.Context, userID string) (*domain.PendingQuestion, error) {
	raw, err := s.client.Get(ctx, pendingKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending question: %w", err)
	}

	var p domain.PendingQuestion
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode pending question: %w", err)
	}
	if p.UserID != userID {
		slog.Warn("Pending question owner mismatch", "key_user_id", userID, "stored_user_id", p.UserID)
		return nil, nil
	}
	return &p, nil
}

// SavePending writes the slot and its index entry in one transaction.
func (s *PendingStore) SavePending(ctx context.Context, p *domain.PendingQuestion) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pending question: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, pendingKey(p.UserID), data, 0)
		pipe.ZAdd(ctx, pendingIndexKey, redis.Z{Score: float64(p.SentAt.UnixMilli()), Member: p.UserID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save pending question: %w", err)
	}
	return nil
}

// DeletePending removes the slot and its index entry.
func (s *PendingStore) DeletePending(ctx context.Context, userID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, pendingKey(userID))
		pipe.ZRem(ctx, pendingIndexKey, userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete pending question: %w", err)
	}
	return nil
}

// ListPendingBefore returns slots whose question was sent before cutoff.
func (s *PendingStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*domain.PendingQuestion, error) {
	users, err := s.client.ZRangeByScore(ctx, pendingIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query stale pending questions: %w", err)
	}

	out := make([]*domain.PendingQuestion, 0, len(users))
	for _, userID := range users {
		p, err := s.GetPending(ctx, userID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			// Index entry without a value; drop it.
			if err := s.client.ZRem(ctx, pendingIndexKey, userID).Err(); err != nil {
				slog.Warn("Failed to drop dangling pending index entry", "user_id", userID, "error", err)
			}
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Ping verifies Redis connectivity.
func (s *PendingStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *PendingStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
