package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores every chat under its own key and keeps a
// per-namespace id index as a redis set, so concurrent saves of
// different chats never overwrite each other.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func chatKey(namespace, id string) string {
	return fmt.Sprintf("chat:%s:%s", namespace, id)
}

func indexKey(namespace string) string {
	return fmt.Sprintf("chats:%s", namespace)
}

func (r *RedisCache) Get(ctx context.Context, namespace, id string) (Chat, error) {
	raw, err := r.rdb.Get(ctx, chatKey(namespace, id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Chat{}, ErrNotFound
		}
		return Chat{}, fmt.Errorf("redis get %s: %w", id, err)
	}
	var c Chat
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Chat{}, fmt.Errorf("unmarshal chat %s: %w", id, err)
	}
	return c, nil
}

func (r *RedisCache) Put(ctx context.Context, namespace string, c Chat) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal chat %s: %w", c.ID, err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, chatKey(namespace, c.ID), raw, 0)
		pipe.SAdd(ctx, indexKey(namespace), c.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put %s: %w", c.ID, err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, namespace, id string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, chatKey(namespace, id))
		pipe.SRem(ctx, indexKey(namespace), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", id, err)
	}
	return nil
}

func (r *RedisCache) List(ctx context.Context, namespace string) ([]Chat, error) {
	ids, err := r.rdb.SMembers(ctx, indexKey(namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis index %s: %w", namespace, err)
	}
	chats := make([]Chat, 0, len(ids))
	for _, id := range ids {
		c, err := r.Get(ctx, namespace, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// index entry outlived the chat key
				continue
			}
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, nil
}
