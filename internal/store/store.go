// Package store defines the document store contract the reservation
// protocol runs against: per-collection snapshot subscriptions that
// deliver added/modified/removed change events, point reads, field
// queries, single writes and all-or-nothing batches. The batch is the
// system's only transactional boundary.
package store

import (
	"context"
	"errors"
)

// Collection names shared by every backend.
const (
	CollectionPending = "pending_reservations"
	CollectionSales   = "confirmed_sales"
	CollectionConfig  = "config"
)

// ErrNotFound is returned by Get and Delete when no document with the
// requested id exists in the collection.
var ErrNotFound = errors.New("document not found")

// Document is an id plus the full JSON snapshot of its fields.
type Document struct {
	ID   string
	Data []byte
}

// ChangeKind classifies a change event.
type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Removed
)

// Change is one delta delivered to subscribers. For Removed changes the
// Doc snapshot carries the last known fields.
type Change struct {
	Kind ChangeKind
	Doc  Document
}

// BatchOpKind classifies a batch operation.
type BatchOpKind int

const (
	BatchInsert BatchOpKind = iota
	BatchDelete
)

// BatchOp is one operation inside an atomic batch. For inserts, a
// non-empty ID pins the document id (an existing document with that id
// is replaced and observed as Modified); an empty ID gets a generated
// one. Batch deletes of an id that no longer exists are no-ops so a
// batch cannot half-fail on a raced delete.
type BatchOp struct {
	Kind       BatchOpKind
	Collection string
	ID         string
	Data       []byte
}

// Store is the abstract document database. Subscribe first replays the
// collection's current contents as Added changes, then delivers live
// deltas until the returned cancel function is called. Delivery order
// across different collections is not guaranteed.
type Store interface {
	Subscribe(collection string, fn func([]Change)) (cancel func())
	Get(ctx context.Context, collection, id string) (Document, error)
	List(ctx context.Context, collection string) ([]Document, error)
	QueryField(ctx context.Context, collection, field, value string) ([]Document, error)
	Add(ctx context.Context, collection string, data []byte) (string, error)
	Delete(ctx context.Context, collection, id string) error
	RunBatch(ctx context.Context, ops []BatchOp) error
}
