package idempotency

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.values[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	value, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisStoreReserveLifecycle(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	store, err := NewRedisStore(client)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	first, err := store.Reserve(ctx, "key|usr_ada", "fp", fixedTime, time.Hour)
	if err != nil || first.State != ReservationStateNew {
		t.Fatalf("expected new reservation, got %+v err=%v", first, err)
	}
	if ttl := client.ttls[redisKeyPrefix+recordID("key|usr_ada")]; ttl != time.Hour {
		t.Fatalf("expected key ttl of one hour, got %s", ttl)
	}

	pending, err := store.Reserve(ctx, "key|usr_ada", "fp", fixedTime, time.Hour)
	if err != nil || pending.State != ReservationStatePending {
		t.Fatalf("expected pending reservation, got %+v err=%v", pending, err)
	}

	if _, err := store.Reserve(ctx, "key|usr_ada", "other", fixedTime, time.Hour); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("expected fingerprint mismatch, got %v", err)
	}

	resp := Response{Status: http.StatusCreated, Headers: http.Header{"Content-Type": {"application/json"}, "Date": {"now"}}, Body: []byte(`{"ok":true}`)}
	if err := store.SaveResponse(ctx, "key|usr_ada", "fp", resp, fixedTime.Add(time.Second), time.Hour); err != nil {
		t.Fatalf("save response: %v", err)
	}

	completed, err := store.Reserve(ctx, "key|usr_ada", "fp", fixedTime.Add(2*time.Second), time.Hour)
	if err != nil || completed.State != ReservationStateCompleted {
		t.Fatalf("expected completed reservation, got %+v err=%v", completed, err)
	}
	if completed.Record.ResponseStatus != http.StatusCreated || string(completed.Record.ResponseBody) != `{"ok":true}` {
		t.Fatalf("unexpected stored response %+v", completed.Record)
	}
	if _, ok := completed.Record.ResponseHeaders["Date"]; ok {
		t.Fatalf("expected hop headers to be dropped, got %v", completed.Record.ResponseHeaders)
	}
	if !completed.Record.CreatedAt.Equal(fixedTime) {
		t.Fatalf("expected creation time to be kept, got %s", completed.Record.CreatedAt)
	}
}

func TestRedisStoreRelease(t *testing.T) {
	ctx := context.Background()
	store, _ := NewRedisStore(newFakeRedis())

	if _, err := store.Reserve(ctx, "key", "fp", fixedTime, 0); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Release(ctx, "key", "fp"); err != nil {
		t.Fatalf("release: %v", err)
	}
	again, err := store.Reserve(ctx, "key", "other", fixedTime, 0)
	if err != nil || again.State != ReservationStateNew {
		t.Fatalf("expected released key to be reservable, got %+v err=%v", again, err)
	}
}

func TestRedisStoreSurfacesClientErrors(t *testing.T) {
	client := newFakeRedis()
	store, _ := NewRedisStore(client)
	ctx := context.Background()
	if _, err := store.Reserve(ctx, "key", "fp", fixedTime, 0); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	client.getErr = errors.New("connection reset")
	if _, err := store.Reserve(ctx, "key", "fp", fixedTime, 0); err == nil {
		t.Fatalf("expected error when redis is unavailable")
	}
}

func TestNewRedisStoreRequiresClient(t *testing.T) {
	if _, err := NewRedisStore(nil); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestMemoryStoreCleanupExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Reserve(ctx, "old", "fp", fixedTime, time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := store.Reserve(ctx, "fresh", "fp", fixedTime.Add(time.Hour), time.Hour); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	removed, err := store.CleanupExpired(ctx, fixedTime.Add(time.Hour), 10)
	if err != nil || removed != 1 {
		t.Fatalf("expected one expired record removed, got %d err=%v", removed, err)
	}

	again, err := store.Reserve(ctx, "fresh", "other", fixedTime.Add(time.Hour), time.Hour)
	if !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("expected live record to survive cleanup, got %+v err=%v", again, err)
	}
}
