package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/omegabingo/card-reservation/internal/model"
	"github.com/omegabingo/card-reservation/internal/store"
)

// PendingItem pairs a pending reservation with its document id, which
// admins need to confirm or reject it.
type PendingItem struct {
	ID string `json:"id"`
	model.PendingReservation
}

// ReservationRepo reads pending reservations from the document store.
type ReservationRepo struct {
	docs store.Store
}

// NewReservationRepo returns a repo bound to the given store.
func NewReservationRepo(docs store.Store) *ReservationRepo {
	return &ReservationRepo{docs: docs}
}

// Get returns one pending reservation by id.
func (r *ReservationRepo) Get(ctx context.Context, id string) (PendingItem, error) {
	doc, err := r.docs.Get(ctx, store.CollectionPending, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return PendingItem{}, ErrNotFound
		}
		return PendingItem{}, err
	}
	return decodePending(doc)
}

// ListPending returns every pending reservation, newest first.
func (r *ReservationRepo) ListPending(ctx context.Context) ([]PendingItem, error) {
	docs, err := r.docs.List(ctx, store.CollectionPending)
	if err != nil {
		return nil, err
	}
	items := make([]PendingItem, 0, len(docs))
	for _, doc := range docs {
		item, err := decodePending(doc)
		if err != nil {
			continue // skip undecodable documents rather than failing the list
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Timestamp.After(items[j].Timestamp)
	})
	return items, nil
}

// ByPhone returns the pending reservations for a phone number.
func (r *ReservationRepo) ByPhone(ctx context.Context, phone string) ([]PendingItem, error) {
	docs, err := r.docs.QueryField(ctx, store.CollectionPending, "phone", phone)
	if err != nil {
		return nil, err
	}
	items := make([]PendingItem, 0, len(docs))
	for _, doc := range docs {
		item, err := decodePending(doc)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func decodePending(doc store.Document) (PendingItem, error) {
	var res model.PendingReservation
	if err := json.Unmarshal(doc.Data, &res); err != nil {
		return PendingItem{}, err
	}
	return PendingItem{ID: doc.ID, PendingReservation: res}, nil
}
