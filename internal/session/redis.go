// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/pdiddy/viva-examiner/pkg/types"
)

const (
	sessionKeyPrefix = "viva:session:"
	sessionIndexKey  = "viva:sessions"
)

// RedisRepository stores each session as a JSON string under
// viva:session:<id>, with the set viva:sessions indexing every id.
// Updates use WATCH/MULTI so a concurrent writer aborts the transaction.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository connects to the Redis server named in cfg.
func NewRedisRepository(ctx context.Context, cfg types.StoreConfig) (*RedisRepository, error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("redis backend requires store.redis_addr")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	return NewRedisRepositoryFromClient(client), nil
}

// NewRedisRepositoryFromClient wraps an existing client.
func NewRedisRepositoryFromClient(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

// Get returns the session with the given id.
func (r *RedisRepository) Get(ctx context.Context, id string) (*types.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errNotFound(id)
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}
	return decodeSession(data)
}

// Create stores s with Version 1 unless the id is taken.
func (r *RedisRepository) Create(ctx context.Context, s *types.Session) error {
	next := s.Clone()
	next.Version = 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	key := sessionKey(s.ID)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("reading session: %w", err)
		}
		if n > 0 {
			return errExists(s.ID)
		}
		// The record and its index entry land together or not at all.
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, sessionIndexKey, s.ID)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return errExists(s.ID)
	}
	if err != nil {
		return err
	}
	s.Version = 1
	return nil
}

// Update writes s if the stored version equals expectedVersion.
func (r *RedisRepository) Update(ctx context.Context, s *types.Session, expectedVersion int64) error {
	key := sessionKey(s.ID)
	next := s.Clone()
	next.Version = expectedVersion + 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return errNotFound(s.ID)
			}
			return fmt.Errorf("reading session: %w", err)
		}
		current, err := decodeSession(raw)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return errConflict(s.ID, expectedVersion)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return errConflict(s.ID, expectedVersion)
	}
	if err != nil {
		return err
	}
	s.Version = next.Version
	return nil
}

// List returns the sessions keep accepts, oldest start first.
func (r *RedisRepository) List(ctx context.Context, keep func(*types.Session) bool) ([]*types.Session, error) {
	ids, err := r.client.SMembers(ctx, sessionIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading sessions: %w", err)
	}

	var out []*types.Session
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		s, err := decodeSession([]byte(str))
		if err != nil {
			return nil, err
		}
		if keep == nil || keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

// Close closes the client.
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
