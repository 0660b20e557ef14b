// Package redis persists language preferences in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/couchcryptid/region-compare-service/internal/config"
	"github.com/couchcryptid/region-compare-service/internal/preference"
)

const keyPrefix = "region-compare:lang:"

// PreferenceStore implements preference.Store on a Redis client. Entries
// expire after the configured TTL.
type PreferenceStore struct {
	client goredis.Cmdable
	ttl    time.Duration
}

// NewClient opens a Redis client from the service configuration.
func NewClient(cfg *config.Config) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// NewPreferenceStore wraps client. ttl of zero stores entries without expiry.
func NewPreferenceStore(client goredis.Cmdable, ttl time.Duration) *PreferenceStore {
	return &PreferenceStore{client: client, ttl: ttl}
}

func (s *PreferenceStore) Get(ctx context.Context, clientID string) (string, error) {
	lang, err := s.client.Get(ctx, keyPrefix+clientID).Result()
	if errors.Is(err, goredis.Nil) {
		return "", preference.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get language preference: %w", err)
	}
	return lang, nil
}

func (s *PreferenceStore) Set(ctx context.Context, clientID, lang string) error {
	if err := s.client.Set(ctx, keyPrefix+clientID, lang, s.ttl).Err(); err != nil {
		return fmt.Errorf("set language preference: %w", err)
	}
	return nil
}

// CheckReadiness pings Redis.
func (s *PreferenceStore) CheckReadiness(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
