package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
)

const sessionPrefix = "session:"

// RedisStore keeps sessions as JSON under session:<contact> with a Redis
// TTL, for deployments running more than one instance.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore returns a store on client.  ttl <= 0 selects DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

// WithClock replaces the store clock.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	s.now = now
	return s
}

func (s *RedisStore) Get(ctx context.Context, contactID string) (*model.Session, error) {
	key := sessionPrefix + contactID
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	// Redis expiry has second granularity; the stored timestamp is exact.
	if sess.Expired(s.now()) {
		_ = s.client.Del(ctx, key).Err()
		return nil, nil
	}
	return &sess, nil
}

func (s *RedisStore) Put(ctx context.Context, sess *model.Session) error {
	sess.ExpiresAt = s.now().Add(s.ttl)
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionPrefix+sess.ContactID, b, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, contactID string) error {
	return s.client.Del(ctx, sessionPrefix+contactID).Err()
}
