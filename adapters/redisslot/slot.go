// Package redisslot stores the idle window start in redis so the countdown
// survives process restarts and is shared across replicas.
package redisslot

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Slot is a redis-backed IdleSlot. The stored value is the window start as
// epoch milliseconds; an absent key means no countdown is live.
type Slot struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// Option customizes the slot.
type Option func(*Slot)

// WithTTL bounds how long a stored window start lives. Use a value
// comfortably above the idle timeout so a crashed process cannot leave a
// permanent key behind.
func WithTTL(ttl time.Duration) Option {
	return func(s *Slot) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// New creates a slot at the given key.
func New(client *redis.Client, key string, opts ...Option) *Slot {
	s := &Slot{
		client: client,
		key:    key,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Load implements consoleauth.IdleSlot.
func (s *Slot) Load(ctx context.Context) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// a corrupted value behaves like an empty slot
		return time.Time{}, false, nil
	}

	return time.UnixMilli(millis), true, nil
}

// Save implements consoleauth.IdleSlot.
func (s *Slot) Save(ctx context.Context, startedAt time.Time) error {
	value := strconv.FormatInt(startedAt.UnixMilli(), 10)
	return s.client.Set(ctx, s.key, value, s.ttl).Err()
}

// Clear implements consoleauth.IdleSlot.
func (s *Slot) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
