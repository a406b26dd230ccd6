package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/omegabingo/card-reservation/internal/model"
	"github.com/omegabingo/card-reservation/internal/store"
)

// SaleItem pairs a confirmed sale with its document id.
type SaleItem struct {
	ID string `json:"id"`
	model.ConfirmedSale
}

// Stats aggregates the confirmed-sale collection for the admin
// dashboard.
type Stats struct {
	CardsSold    int `json:"cardsSold"`
	TotalRevenue int `json:"totalRevenue"`
	SalesCount   int `json:"salesCount"`
}

// SaleRepo reads confirmed sales from the document store.
type SaleRepo struct {
	docs store.Store
}

// NewSaleRepo returns a repo bound to the given store.
func NewSaleRepo(docs store.Store) *SaleRepo {
	return &SaleRepo{docs: docs}
}

// Get returns one confirmed sale by id.
func (r *SaleRepo) Get(ctx context.Context, id string) (SaleItem, error) {
	doc, err := r.docs.Get(ctx, store.CollectionSales, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SaleItem{}, ErrNotFound
		}
		return SaleItem{}, err
	}
	return decodeSale(doc)
}

// ListSales returns confirmed sales, newest first, capped at limit
// when limit > 0.
func (r *SaleRepo) ListSales(ctx context.Context, limit int) ([]SaleItem, error) {
	docs, err := r.docs.List(ctx, store.CollectionSales)
	if err != nil {
		return nil, err
	}
	items := make([]SaleItem, 0, len(docs))
	for _, doc := range docs {
		item, err := decodeSale(doc)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].SaleDate.After(items[j].SaleDate)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// ByPhone returns the confirmed sales for a phone number.
func (r *SaleRepo) ByPhone(ctx context.Context, phone string) ([]SaleItem, error) {
	docs, err := r.docs.QueryField(ctx, store.CollectionSales, "phone", phone)
	if err != nil {
		return nil, err
	}
	items := make([]SaleItem, 0, len(docs))
	for _, doc := range docs {
		item, err := decodeSale(doc)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// Stats sums sold card counts and revenue over all confirmed sales.
func (r *SaleRepo) Stats(ctx context.Context) (Stats, error) {
	items, err := r.ListSales(ctx, 0)
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	for _, item := range items {
		st.CardsSold += len(item.Cards)
		st.TotalRevenue += item.TotalAmount
		st.SalesCount++
	}
	return st, nil
}

func decodeSale(doc store.Document) (SaleItem, error) {
	var sale model.ConfirmedSale
	if err := json.Unmarshal(doc.Data, &sale); err != nil {
		return SaleItem{}, err
	}
	return SaleItem{ID: doc.ID, ConfirmedSale: sale}, nil
}
