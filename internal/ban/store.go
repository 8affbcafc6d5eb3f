// Package ban keeps the list of reporters barred from filing reports.
// The Redis-backed Store stores records as simple key-value pairs:
//
//	Key:   reportban:<user id>
//	Value: <reason>
//	TTL:   ban duration (none for permanent bans)
//
// MemStore is the in-process default when no Redis is configured.
package ban

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Prefix is the Redis key prefix for report-ban records.
const Prefix = "reportban:"

// Permanent is the duration of a ban that never expires.
const Permanent time.Duration = 0

// List is the report-ban list.
type List interface {
	// IsBanned reports whether userID may not file reports, and why.
	IsBanned(ctx context.Context, userID string) (bool, string, error)
	// Ban bars userID for the given duration (Permanent for no expiry).
	Ban(ctx context.Context, userID string, duration time.Duration, reason string) error
	// Unban lifts a ban immediately.
	Unban(ctx context.Context, userID string) error
}

// Store manages report-ban records in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a new ban store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// IsBanned checks if a user is currently barred from reporting. Redis errors
// are returned so callers can decide how to handle them (the controller
// fails open).
func (s *Store) IsBanned(ctx context.Context, userID string) (bool, string, error) {
	reason, err := s.client.Get(ctx, Prefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	return true, reason, nil
}

// Ban records a report ban. A zero duration never expires.
func (s *Store) Ban(ctx context.Context, userID string, duration time.Duration, reason string) error {
	return s.client.Set(ctx, Prefix+userID, reason, duration).Err()
}

// Unban removes a report ban immediately.
func (s *Store) Unban(ctx context.Context, userID string) error {
	return s.client.Del(ctx, Prefix+userID).Err()
}

// Remaining returns how long the ban on userID has left. It returns zero for
// permanent bans and for users who are not banned.
func (s *Store) Remaining(ctx context.Context, userID string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, Prefix+userID).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
