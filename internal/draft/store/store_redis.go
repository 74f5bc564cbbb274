package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"immimate/internal/draft/models"
	"immimate/pkg/platform/sentinel"
)

const (
	draftKeyPrefix = "draft:"
	indexKeyPrefix = "drafts:"
	maxTxRetries   = 3
)

// RedisStore keeps each draft under its own key with a TTL and a per-user
// sorted set of form IDs scored by modification time. Index members whose
// draft has expired are pruned on read.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

type redisDraft struct {
	ID             uuid.UUID      `json:"id"`
	UserEmail      string         `json:"user_email"`
	FormID         string         `json:"form_id"`
	FormData       map[string]any `json:"form_data"`
	ClientDevice   string         `json:"client_device"`
	CreatedAt      time.Time      `json:"created_at"`
	LastModifiedAt time.Time      `json:"last_modified_at"`
}

func draftKey(userID uuid.UUID, formID string) string {
	return draftKeyPrefix + userID.String() + ":" + formID
}

func indexKey(userID uuid.UUID) string {
	return indexKeyPrefix + userID.String()
}

func (s *RedisStore) Upsert(ctx context.Context, d *models.Draft) error {
	key := draftKey(d.UserID, d.FormID)
	index := indexKey(d.UserID)

	txf := func(tx *redis.Tx) error {
		existing, err := s.get(ctx, tx, key)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		if existing != nil {
			d.ID = existing.ID
			d.CreatedAt = existing.CreatedAt
		}
		value, err := json.Marshal(redisDraft{
			ID:             d.ID,
			UserEmail:      d.UserEmail,
			FormID:         d.FormID,
			FormData:       d.FormData,
			ClientDevice:   d.ClientDevice,
			CreatedAt:      d.CreatedAt,
			LastModifiedAt: d.LastModifiedAt,
		})
		if err != nil {
			return fmt.Errorf("encode draft: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, value, s.ttl)
			pipe.ZAdd(ctx, index, redis.Z{Score: float64(d.LastModifiedAt.UnixMilli()), Member: d.FormID})
			pipe.Expire(ctx, index, s.ttl)
			return nil
		})
		return err
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("upsert draft: %w", err)
		}
		return nil
	}
	return fmt.Errorf("upsert draft: concurrent modification of %s", key)
}

func (s *RedisStore) Latest(ctx context.Context, userID uuid.UUID) (*models.Draft, error) {
	index := indexKey(userID)
	formIDs, err := s.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read draft index: %w", err)
	}
	for _, formID := range formIDs {
		stored, err := s.get(ctx, s.client, draftKey(userID, formID))
		if errors.Is(err, sentinel.ErrNotFound) {
			_ = s.client.ZRem(ctx, index, formID).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		return &models.Draft{
			ID:             stored.ID,
			UserID:         userID,
			UserEmail:      stored.UserEmail,
			FormID:         stored.FormID,
			FormData:       stored.FormData,
			ClientDevice:   stored.ClientDevice,
			CreatedAt:      stored.CreatedAt,
			LastModifiedAt: stored.LastModifiedAt,
		}, nil
	}
	return nil, fmt.Errorf("draft for user %s: %w", userID, sentinel.ErrNotFound)
}

func (s *RedisStore) Delete(ctx context.Context, userID uuid.UUID, formID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, draftKey(userID, formID))
		pipe.ZRem(ctx, indexKey(userID), formID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteAll(ctx context.Context, userID uuid.UUID) (int, error) {
	index := indexKey(userID)
	formIDs, err := s.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("read draft index: %w", err)
	}
	keys := make([]string, 0, len(formIDs))
	for _, formID := range formIDs {
		keys = append(keys, draftKey(userID, formID))
	}

	var deleted *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			deleted = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, index)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete drafts: %w", err)
	}
	if deleted == nil {
		return 0, nil
	}
	return int(deleted.Val()), nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, c getter, key string) (*redisDraft, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	var d redisDraft
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %w", key, sentinel.ErrMalformed, err)
	}
	return &d, nil
}
