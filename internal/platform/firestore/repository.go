package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document is a decoded snapshot plus the server timestamps the repositories rely on for
// optimistic bookkeeping.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// QueryBuilder narrows the collection query: filters, ordering, cursors and limits.
type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository is a typed view over one collection. T is decoded with Firestore struct tags.
//
// Every call joins the transaction carried by ctx (see UnitOfWork.RunInTx). Inside a transaction
// writes are staged and only applied on commit, so they cannot report failures that depend on
// server state, such as Create on an existing document; those surface from RunInTx instead.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
}

func NewBaseRepository[T any](provider *Provider, collection string) *BaseRepository[T] {
	return &BaseRepository[T]{provider: provider, collection: strings.TrimSpace(collection)}
}

// Create writes a new document; an existing one yields a conflict.
func (r *BaseRepository[T]) Create(ctx context.Context, id string, value T) error {
	return r.write(ctx, "create", id,
		func(tx *firestore.Transaction, doc *firestore.DocumentRef) error { return tx.Create(doc, value) },
		func(doc *firestore.DocumentRef) error { _, err := doc.Create(ctx, value); return err },
	)
}

// Set replaces the document, or merges into it with firestore.MergeAll.
func (r *BaseRepository[T]) Set(ctx context.Context, id string, value T, opts ...firestore.SetOption) error {
	return r.write(ctx, "set", id,
		func(tx *firestore.Transaction, doc *firestore.DocumentRef) error { return tx.Set(doc, value, opts...) },
		func(doc *firestore.DocumentRef) error { _, err := doc.Set(ctx, value, opts...); return err },
	)
}

// Update patches fields of an existing document; a missing one yields not found.
func (r *BaseRepository[T]) Update(ctx context.Context, id string, updates []firestore.Update, preconds ...firestore.Precondition) error {
	return r.write(ctx, "update", id,
		func(tx *firestore.Transaction, doc *firestore.DocumentRef) error { return tx.Update(doc, updates, preconds...) },
		func(doc *firestore.DocumentRef) error { _, err := doc.Update(ctx, updates, preconds...); return err },
	)
}

// Delete removes the document. Deleting a missing document is not an error.
func (r *BaseRepository[T]) Delete(ctx context.Context, id string, preconds ...firestore.Precondition) error {
	return r.write(ctx, "delete", id,
		func(tx *firestore.Transaction, doc *firestore.DocumentRef) error { return tx.Delete(doc, preconds...) },
		func(doc *firestore.DocumentRef) error { _, err := doc.Delete(ctx, preconds...); return err },
	)
}

func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	doc, err := r.doc(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	var snap *firestore.DocumentSnapshot
	if tx, ok := TransactionFromContext(ctx); ok {
		snap, err = tx.Get(doc)
	} else {
		snap, err = doc.Get(ctx)
	}
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}
	return r.decode(snap)
}

// Query runs build over the collection and decodes every match, in query order.
func (r *BaseRepository[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	client, err := r.client(ctx)
	if err != nil {
		return nil, err
	}
	query := client.Collection(r.collection).Query
	if build != nil {
		query = build(query)
	}

	var iter *firestore.DocumentIterator
	if tx, ok := TransactionFromContext(ctx); ok {
		iter = tx.Documents(query)
	} else {
		iter = query.Documents(ctx)
	}
	defer iter.Stop()

	var docs []Document[T]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		decoded, err := r.decode(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, decoded)
	}
}

func (r *BaseRepository[T]) write(ctx context.Context, action, id string,
	staged func(*firestore.Transaction, *firestore.DocumentRef) error,
	direct func(*firestore.DocumentRef) error,
) error {
	doc, err := r.doc(ctx, id)
	if err != nil {
		return err
	}
	if tx, ok := TransactionFromContext(ctx); ok {
		err = staged(tx, doc)
	} else {
		err = direct(doc)
	}
	if err != nil {
		return WrapError(r.op(action), err)
	}
	return nil
}

func (r *BaseRepository[T]) decode(snap *firestore.DocumentSnapshot) (Document[T], error) {
	var data T
	if err := snap.DataTo(&data); err != nil {
		return Document[T]{}, fmt.Errorf("%s: decode %s: %w", r.op("get"), snap.Ref.ID, err)
	}
	return Document[T]{
		ID:         snap.Ref.ID,
		Data:       data,
		CreateTime: snap.CreateTime,
		UpdateTime: snap.UpdateTime,
	}, nil
}

func (r *BaseRepository[T]) client(ctx context.Context) (*firestore.Client, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("firestore: repository has no provider")
	}
	if r.collection == "" {
		return nil, errors.New("firestore: repository has no collection")
	}
	return r.provider.Client(ctx)
}

func (r *BaseRepository[T]) doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%s: empty document id", r.op("doc"))
	}
	client, err := r.client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.collection).Doc(id), nil
}

func (r *BaseRepository[T]) op(action string) string {
	if r == nil || r.collection == "" {
		return "firestore." + action
	}
	return r.collection + "." + action
}
