package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps reservations in process. It backs local runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty memory-backed idempotency store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	id := recordID(key)
	if record, ok := s.records[id]; ok && !record.expired(now) {
		return reservationFor(record, fingerprint)
	}
	record := pendingRecord(key, fingerprint, now, normalizeTTL(ttl))
	s.records[id] = record
	return Reservation{State: ReservationStateNew, Record: record}, nil
}

// SaveResponse implements Store.
func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	id := recordID(key)
	record, ok := s.records[id]
	if ok && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	s.records[id] = completeRecord(record, key, fingerprint, resp, now, normalizeTTL(ttl))
	return nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, recordID(key))
	return nil
}

// CleanupExpired implements Store.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.records {
		if limit > 0 && removed >= limit {
			break
		}
		if record.expired(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}
