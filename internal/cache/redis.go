package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/aidlens/aidlens/internal/api"
)

// SharedForecasts is a Redis-backed cache of serialized forecast results,
// shared across engine instances. Writes overwrite unconditionally: the
// newest forecast for a request key is the only valid one.
type SharedForecasts struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSharedForecasts connects to Redis at addr.
func NewSharedForecasts(ctx context.Context, addr string, ttl time.Duration) (*SharedForecasts, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &SharedForecasts{client: client, ttl: ttl}, nil
}

func forecastKey(requestKey string) string {
	return "aidlens:forecast:" + requestKey
}

// Get returns the cached forecast for the request key, or (nil, nil) on miss.
func (s *SharedForecasts) Get(ctx context.Context, requestKey string) (*api.ForecastResult, error) {
	raw, err := s.client.Get(ctx, forecastKey(requestKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var result api.ForecastResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode cached forecast: %w", err)
	}
	return &result, nil
}

// Put stores the forecast for the request key, superseding prior entries.
func (s *SharedForecasts) Put(ctx context.Context, requestKey string, result *api.ForecastResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode forecast: %w", err)
	}
	if err := s.client.Set(ctx, forecastKey(requestKey), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *SharedForecasts) Close() error {
	return s.client.Close()
}
