package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind groups Firestore failures by how callers react to them.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	// KindConflict covers duplicate creates, failed preconditions and aborted transactions.
	KindConflict
	// KindUnavailable covers outages and throttling; the request may succeed later.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

var kindByCode = map[codes.Code]Kind{
	codes.NotFound:           KindNotFound,
	codes.AlreadyExists:      KindConflict,
	codes.FailedPrecondition: KindConflict,
	codes.Aborted:            KindConflict,
	codes.OutOfRange:         KindConflict,
	codes.Unavailable:        KindUnavailable,
	codes.ResourceExhausted:  KindUnavailable,
	codes.Internal:           KindUnavailable,
	codes.DeadlineExceeded:   KindUnavailable,
}

// Error is a classified Firestore failure. It satisfies repositories.RepositoryError.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Op == "" {
		return fmt.Sprintf("firestore %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *Error) IsNotFound() bool    { return e != nil && e.Kind == KindNotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.Kind == KindConflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.Kind == KindUnavailable }

// WrapError classifies err by its gRPC status. Cancellation is returned as the plain context
// error so callers can tell a client hang-up from a store failure. Already classified errors
// keep their kind and gain op when they had none.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled {
		return context.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return context.DeadlineExceeded
	}

	var classified *Error
	if errors.As(err, &classified) {
		if classified.Op == "" {
			classified.Op = op
		}
		return classified
	}
	return &Error{Op: op, Kind: kindByCode[status.Code(err)], Err: err}
}
