// Package docstore is the collection-oriented document store the application
// reads and writes records and profiles through.  A document is an opaque
// id, a JSON object body and two store-assigned timestamps.  Every
// implementation offers per-document CRUD, ordered listing, atomic batches
// and a continuous subscription that delivers the full ordered result set
// after every change to a collection.
package docstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get and Update when the document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrInvalidCollection is returned for an empty collection name or document id.
var ErrInvalidCollection = errors.New("invalid collection or document id")

// Document is one stored document.  CreatedAt is assigned on first write and
// never changes; UpdatedAt is assigned on every write.
type Document struct {
	ID        string         `json:"id"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// System order keys.  Any other Order.Field is looked up as a key of the
// document body.
const (
	OrderCreatedAt = "createdAt"
	OrderUpdatedAt = "updatedAt"
	OrderID        = "id"
)

// Order is the ordering of a listing or subscription.
type Order struct {
	Field string
	Desc  bool
}

// DefaultOrder lists newest documents first.
var DefaultOrder = Order{Field: OrderCreatedAt, Desc: true}

// OpKind selects the mutation performed by one batch operation.
type OpKind int

const (
	OpSet    OpKind = iota // write the whole body (or merge when Op.Merge)
	OpUpdate               // merge into an existing document, ErrNotFound when absent
	OpDelete               // remove the document, no-op when absent
)

// Op is one operation of an atomic batch.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Data       map[string]any
	Merge      bool
}

// SetOp builds a merge-or-replace operation.
func SetOp(collection, id string, data map[string]any, merge bool) Op {
	return Op{Kind: OpSet, Collection: collection, ID: id, Data: data, Merge: merge}
}

// UpdateOp builds a partial update operation.
func UpdateOp(collection, id string, data map[string]any) Op {
	return Op{Kind: OpUpdate, Collection: collection, ID: id, Data: data}
}

// DeleteOp builds a delete operation.
func DeleteOp(collection, id string) Op {
	return Op{Kind: OpDelete, Collection: collection, ID: id}
}

// Store is the document store contract.  All mutations are last-write-wins;
// only Batch spans several documents, and it either applies every
// operation or none.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Create(ctx context.Context, collection string, data map[string]any) (string, error)
	Update(ctx context.Context, collection, id string, partial map[string]any) error
	Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string, order Order) ([]Document, error)
	Subscribe(ctx context.Context, collection string, order Order) (*Subscription, error)
	// SubscribeDocument delivers one document after every change to its
	// collection.  The snapshot is empty while the document does not exist.
	SubscribeDocument(ctx context.Context, collection, id string) (*Subscription, error)
	Batch(ctx context.Context, ops []Op) error
}

// documentEvent turns a Get result into a subscription event.
func documentEvent(doc Document, err error) Event {
	switch {
	case errors.Is(err, ErrNotFound):
		return Event{Snapshot: []Document{}}
	case err != nil:
		return Event{Err: err}
	}
	return Event{Snapshot: []Document{doc}}
}

func validName(collection, id string) bool {
	return collection != "" && id != ""
}

func copyData(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func mergeData(base, patch map[string]any) map[string]any {
	out := copyData(base)
	for k, v := range patch {
		out[k] = v
	}
	return out
}
