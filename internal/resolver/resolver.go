// Package resolver implements the admin-side confirmation procedure:
// re-validate every card of a pending reservation against the live
// cache, then commit the confirmable subset and the pending-document
// deletion in one atomic batch.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/omegabingo/card-reservation/internal/livecache"
	"github.com/omegabingo/card-reservation/internal/model"
	"github.com/omegabingo/card-reservation/internal/store"
)

// ErrReservationGone is returned when the pending reservation no longer
// exists, usually because another admin action raced ahead.
var ErrReservationGone = errors.New("reservation no longer exists")

// Result reports the outcome of a confirmation. Sold and Conflicts
// together cover exactly the cards of the original reservation and
// never overlap. SaleID is empty when every card conflicted and the
// confirmation degraded to a forced rejection.
type Result struct {
	SaleID    string `json:"saleId,omitempty"`
	Sold      []int  `json:"sold"`
	Conflicts []int  `json:"conflicts"`
}

// Resolver reconciles pending reservations against current global
// state at approval time.
type Resolver struct {
	docs      store.Store
	cache     *livecache.Cache
	cardPrice int
	now       func() time.Time
}

// New returns a resolver over the given store and cache.
func New(docs store.Store, cache *livecache.Cache, cardPrice int) *Resolver {
	return &Resolver{docs: docs, cache: cache, cardPrice: cardPrice, now: time.Now}
}

// Confirm approves the pending reservation with the given id on behalf
// of adminEmail. Cards already sold, or reserved under a different
// reservation, are excluded as conflicts; the rest become one confirmed
// sale. Insert and delete commit together or not at all. When every
// card conflicts, the batch only deletes the pending document.
//
// The partition uses the freshest cache state available at the moment
// of the call; the cache itself is eventually consistent with the
// store, which leaves a narrow accepted race window.
func (r *Resolver) Confirm(ctx context.Context, reservationID, adminEmail string) (Result, error) {
	doc, err := r.docs.Get(ctx, store.CollectionPending, reservationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, ErrReservationGone
		}
		return Result{}, err
	}
	var pending model.PendingReservation
	if err := json.Unmarshal(doc.Data, &pending); err != nil {
		return Result{}, err
	}

	var confirmable, conflicts []int
	for _, card := range pending.Cards {
		entry, ok := r.cache.Entry(card)
		switch {
		case ok && entry.Status == model.StatusSold:
			conflicts = append(conflicts, card)
		case ok && entry.Status == model.StatusReserved && entry.ReservationID != reservationID:
			conflicts = append(conflicts, card)
		default:
			confirmable = append(confirmable, card)
		}
	}

	ops := []store.BatchOp{{
		Kind:       store.BatchDelete,
		Collection: store.CollectionPending,
		ID:         reservationID,
	}}
	var saleID string
	if len(confirmable) > 0 {
		sale := model.ConfirmedSale{
			Cards:       confirmable,
			Name:        pending.Name,
			Phone:       pending.Phone,
			Reference:   pending.Reference,
			ProofURL:    pending.ProofURL,
			TotalAmount: len(confirmable) * r.cardPrice,
			SaleDate:    r.now().UTC(),
			ConfirmedBy: adminEmail,
		}
		data, err := json.Marshal(sale)
		if err != nil {
			return Result{}, err
		}
		saleID = uuid.NewString()
		ops = append(ops, store.BatchOp{
			Kind:       store.BatchInsert,
			Collection: store.CollectionSales,
			ID:         saleID,
			Data:       data,
		})
	}
	if err := r.docs.RunBatch(ctx, ops); err != nil {
		return Result{}, err
	}
	return Result{SaleID: saleID, Sold: confirmable, Conflicts: conflicts}, nil
}

// Reject deletes a pending reservation; its cards become available
// again once the caches observe the removal.
func (r *Resolver) Reject(ctx context.Context, reservationID string) error {
	err := r.docs.Delete(ctx, store.CollectionPending, reservationID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrReservationGone
	}
	return err
}

// DeleteSale removes a confirmed sale (admin housekeeping), releasing
// its cards.
func (r *Resolver) DeleteSale(ctx context.Context, saleID string) error {
	err := r.docs.Delete(ctx, store.CollectionSales, saleID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrReservationGone
	}
	return err
}
