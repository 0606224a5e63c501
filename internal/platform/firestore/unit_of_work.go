package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

type txContextKey struct{}

// WithTransaction returns a context carrying tx so repositories stage their reads and writes on it.
func WithTransaction(ctx context.Context, tx *firestore.Transaction) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TransactionFromContext returns the transaction carried by ctx, if any.
func TransactionFromContext(ctx context.Context) (*firestore.Transaction, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txContextKey{}).(*firestore.Transaction)
	return tx, ok && tx != nil
}

// TxOption tunes the transactions run by a UnitOfWork.
type TxOption func(*txSettings)

type txSettings struct {
	attempts int
	timeout  time.Duration
}

// WithTxAttempts sets how often a contended transaction is retried.
func WithTxAttempts(attempts int) TxOption {
	return func(s *txSettings) {
		if attempts > 0 {
			s.attempts = attempts
		}
	}
}

// WithTxTimeout caps the wall time of a transaction including its retries.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(s *txSettings) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// UnitOfWork implements repositories.UnitOfWork on top of Firestore transactions.
// Firestore requires all reads of a transaction to happen before its writes.
type UnitOfWork struct {
	provider *Provider
	settings txSettings
}

// NewUnitOfWork constructs a UnitOfWork bound to the provider.
func NewUnitOfWork(provider *Provider, opts ...TxOption) (*UnitOfWork, error) {
	if provider == nil {
		return nil, errors.New("firestore: unit of work requires provider")
	}
	settings := txSettings{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}
	return &UnitOfWork{provider: provider, settings: settings}, nil
}

// RunInTx runs fn inside a transaction. The transaction is retried on contention, so fn must be
// free of side effects outside the store. Nested calls join the outer transaction.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("firestore: transaction function is nil")
	}
	if _, ok := TransactionFromContext(ctx); ok {
		return fn(ctx)
	}

	client, err := u.provider.Client(ctx)
	if err != nil {
		return WrapError("transaction", err)
	}

	// A shorter deadline already on ctx wins.
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > u.settings.timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.settings.timeout)
		defer cancel()
	}

	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(WithTransaction(ctx, tx))
	}, firestore.MaxAttempts(u.settings.attempts))
	return WrapError("transaction", err)
}
