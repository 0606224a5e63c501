package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

const labelContentType = "application/pdf"

type objectWriterFactory func(ctx context.Context, object string) io.WriteCloser

// LabelStore writes purchased shipping labels to a Cloud Storage bucket.
type LabelStore struct {
	bucket    string
	newWriter objectWriterFactory
	now       func() time.Time
}

// NewLabelStore constructs a LabelStore writing to bucket.
func NewLabelStore(client *gcs.Client, bucket string, clock func() time.Time) (*LabelStore, error) {
	if client == nil {
		return nil, errors.New("storage label store: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	return newLabelStore(bucket, func(ctx context.Context, object string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = labelContentType
		w.CacheControl = "private, max-age=0"
		return w
	}, clock), nil
}

func newLabelStore(bucket string, factory objectWriterFactory, clock func() time.Time) *LabelStore {
	if clock == nil {
		clock = time.Now
	}
	return &LabelStore{bucket: bucket, newWriter: factory, now: clock}
}

// Bucket returns the bucket labels are written to.
func (s *LabelStore) Bucket() string {
	return s.bucket
}

// SaveLabel uploads the label document and returns its object path.
func (s *LabelStore) SaveLabel(ctx context.Context, orderID string, pdf []byte) (string, error) {
	if s == nil || s.newWriter == nil {
		return "", errors.New("storage label store: not initialised")
	}
	if len(pdf) == 0 {
		return "", errors.New("storage label store: label document is empty")
	}
	object, err := LabelObjectPath(orderID, s.now())
	if err != nil {
		return "", err
	}

	w := s.newWriter(ctx, object)
	if _, err := w.Write(pdf); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage: write label %s: %w", object, err)
	}
	// The upload is only committed by Close.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: commit label %s: %w", object, err)
	}
	return object, nil
}
