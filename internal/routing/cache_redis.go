package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCacheStore is a CacheStore shared across instances through Redis.
// Documents are stored as JSON with the TTL enforced by Redis itself.
type RedisCacheStore struct {
	client redis.Cmdable
}

// NewRedisCacheStore creates a store on top of an existing Redis client.
func NewRedisCacheStore(client redis.Cmdable) *RedisCacheStore {
	return &RedisCacheStore{client: client}
}

// storedDocument is the Redis value layout. Body is base64 in JSON.
type storedDocument struct {
	Body        []byte `json:"body"`
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
}

// Get returns the cached document for key, or (nil, nil) on a miss.
func (s *RedisCacheStore) Get(ctx context.Context, key string) (*Document, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("routing: cache: redis get: %w", err)
	}

	var sd storedDocument
	if err := json.Unmarshal(raw, &sd); err != nil {
		return nil, fmt.Errorf("routing: cache: redis decode: %w", err)
	}
	return &Document{Body: sd.Body, StatusCode: sd.StatusCode, ContentType: sd.ContentType}, nil
}

// Set stores doc under key with the given TTL.
func (s *RedisCacheStore) Set(ctx context.Context, key string, doc *Document, ttl time.Duration) error {
	data, err := json.Marshal(storedDocument{
		Body:        doc.Body,
		StatusCode:  doc.StatusCode,
		ContentType: doc.ContentType,
	})
	if err != nil {
		return fmt.Errorf("routing: cache: redis encode: %w", err)
	}

	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("routing: cache: redis set: %w", err)
	}
	return nil
}
