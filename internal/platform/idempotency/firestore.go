package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/couture-field/checkout/internal/platform/firestore"
)

const defaultCollection = "checkout_idempotency_keys"

// FirestoreStore implements Store on a Firestore collection. Reservations are taken in a
// transaction so concurrent requests with the same key see a single winner.
type FirestoreStore struct {
	records *pfirestore.BaseRepository[firestoreRecord]
	uow     *pfirestore.UnitOfWork
}

// NewFirestoreStore constructs a Firestore-backed idempotency store. An empty collection
// selects the default one.
func NewFirestoreStore(provider *pfirestore.Provider, collection string, opts ...pfirestore.TxOption) (*FirestoreStore, error) {
	uow, err := pfirestore.NewUnitOfWork(provider, opts...)
	if err != nil {
		return nil, err
	}
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{
		records: pfirestore.NewBaseRepository[firestoreRecord](provider, collection),
		uow:     uow,
	}, nil
}

// Reserve implements Store.
func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	id := recordID(key)

	var result Reservation
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := s.records.Get(ctx, id)
		switch {
		case err == nil && !doc.Data.toRecord().expired(now):
			result, err = reservationFor(doc.Data.toRecord(), fingerprint)
			return err
		case err != nil && !isNotFound(err):
			return err
		}
		record := pendingRecord(key, fingerprint, now, normalizeTTL(ttl))
		if err := s.records.Set(ctx, id, fromRecord(record)); err != nil {
			return err
		}
		result = Reservation{State: ReservationStateNew, Record: record}
		return nil
	})
	return result, err
}

// SaveResponse implements Store.
func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	id := recordID(key)

	return s.uow.RunInTx(ctx, func(ctx context.Context) error {
		var record Record
		doc, err := s.records.Get(ctx, id)
		switch {
		case err == nil:
			record = doc.Data.toRecord()
			if record.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
		case !isNotFound(err):
			return err
		}
		err = s.records.Set(ctx, id, fromRecord(completeRecord(record, key, fingerprint, resp, now, normalizeTTL(ttl))))
		return err
	})
}

// Release implements Store.
func (s *FirestoreStore) Release(ctx context.Context, key, _ string) error {
	return s.records.Delete(ctx, recordID(key))
}

// CleanupExpired implements Store.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	docs, err := s.records.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("expiresAt", "<=", now.UTC()).Limit(limit)
	})
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, doc := range docs {
		if err := s.records.Delete(ctx, doc.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func isNotFound(err error) bool {
	var classified interface{ IsNotFound() bool }
	return errors.As(err, &classified) && classified.IsNotFound()
}

type firestoreRecord struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"responseStatus"`
	ResponseHeaders map[string][]string `firestore:"responseHeaders,omitempty"`
	ResponseBody    []byte              `firestore:"responseBody,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
	ExpiresAt       time.Time           `firestore:"expiresAt"`
}

func fromRecord(r Record) firestoreRecord {
	return firestoreRecord{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          string(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func (r firestoreRecord) toRecord() Record {
	return Record{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          Status(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}
