package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "checkout:idempotency:"

// RedisCommands is the subset of the go-redis client used by RedisStore.
type RedisCommands interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore implements Store with one key per reservation. Records expire through the key TTL,
// so CleanupExpired has nothing to do.
type RedisStore struct {
	client RedisCommands
}

// NewRedisStore constructs a Redis-backed idempotency store.
func NewRedisStore(client RedisCommands) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("idempotency: redis client is required")
	}
	return &RedisStore{client: client}, nil
}

// Reserve implements Store. A key that disappears between SETNX and GET is reserved again once.
func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	ttl = normalizeTTL(ttl)
	redisKey := redisKeyPrefix + recordID(key)

	for attempt := 0; attempt < 2; attempt++ {
		record := pendingRecord(key, fingerprint, now, ttl)
		payload, err := encodeRedisRecord(record)
		if err != nil {
			return Reservation{}, err
		}
		created, err := s.client.SetNX(ctx, redisKey, payload, ttl).Result()
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
		}
		if created {
			return Reservation{State: ReservationStateNew, Record: record}, nil
		}

		existing, found, err := s.load(ctx, redisKey)
		if err != nil {
			return Reservation{}, err
		}
		if found {
			return reservationFor(existing, fingerprint)
		}
	}
	return Reservation{}, errors.New("idempotency: reservation kept expiring")
}

// SaveResponse implements Store.
func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	ttl = normalizeTTL(ttl)
	redisKey := redisKeyPrefix + recordID(key)

	existing, found, err := s.load(ctx, redisKey)
	if err != nil {
		return err
	}
	if found && existing.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	payload, err := encodeRedisRecord(completeRecord(existing, key, fingerprint, resp, now, ttl))
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKey, payload, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: save response: %w", err)
	}
	return nil
}

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, key, _ string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+recordID(key)).Err(); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}

// CleanupExpired implements Store.
func (s *RedisStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (s *RedisStore) load(ctx context.Context, redisKey string) (Record, bool, error) {
	raw, err := s.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("idempotency: load: %w", err)
	}
	var stored redisRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return Record{}, false, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return stored.toRecord(), true, nil
}

type redisRecord struct {
	Key             string              `json:"key"`
	Fingerprint     string              `json:"fingerprint"`
	Status          Status              `json:"status"`
	ResponseStatus  int                 `json:"responseStatus,omitempty"`
	ResponseHeaders map[string][]string `json:"responseHeaders,omitempty"`
	ResponseBody    []byte              `json:"responseBody,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
	ExpiresAt       time.Time           `json:"expiresAt"`
}

func encodeRedisRecord(r Record) ([]byte, error) {
	payload, err := json.Marshal(redisRecord(r))
	if err != nil {
		return nil, fmt.Errorf("idempotency: encode record: %w", err)
	}
	return payload, nil
}

func (r redisRecord) toRecord() Record {
	return Record(r)
}
