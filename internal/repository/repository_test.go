package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegabingo/card-reservation/internal/model"
	"github.com/omegabingo/card-reservation/internal/store"
)

func addPendingDoc(t *testing.T, docs store.Store, phone string, ts time.Time, cards ...int) string {
	t.Helper()
	data, err := json.Marshal(model.PendingReservation{
		Cards:     cards,
		Name:      "Ana Lopez",
		Phone:     phone,
		Timestamp: ts,
		Status:    model.PendingStatus,
	})
	require.NoError(t, err)
	id, err := docs.Add(context.Background(), store.CollectionPending, data)
	require.NoError(t, err)
	return id
}

func addSaleDoc(t *testing.T, docs store.Store, phone string, amount int, date time.Time, cards ...int) {
	t.Helper()
	data, err := json.Marshal(model.ConfirmedSale{
		Cards:       cards,
		Phone:       phone,
		TotalAmount: amount,
		SaleDate:    date,
	})
	require.NoError(t, err)
	_, err = docs.Add(context.Background(), store.CollectionSales, data)
	require.NoError(t, err)
}

func TestListPendingNewestFirst(t *testing.T) {
	docs := store.NewMemory()
	repo := NewReservationRepo(docs)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	oldID := addPendingDoc(t, docs, "5550001111", base, 1)
	newID := addPendingDoc(t, docs, "5550002222", base.Add(time.Hour), 2)

	items, err := repo.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, newID, items[0].ID)
	assert.Equal(t, oldID, items[1].ID)
}

func TestReservationByPhone(t *testing.T) {
	docs := store.NewMemory()
	repo := NewReservationRepo(docs)

	id := addPendingDoc(t, docs, "5550001111", time.Now().UTC(), 3, 4)
	addPendingDoc(t, docs, "5550009999", time.Now().UTC(), 5)

	items, err := repo.ByPhone(context.Background(), "5550001111")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, []int{3, 4}, items[0].Cards)
}

func TestListSalesLimitAndOrder(t *testing.T) {
	docs := store.NewMemory()
	repo := NewSaleRepo(docs)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	addSaleDoc(t, docs, "5550001111", 300, base, 1)
	addSaleDoc(t, docs, "5550001111", 600, base.Add(time.Hour), 2, 3)
	addSaleDoc(t, docs, "5550001111", 300, base.Add(2*time.Hour), 4)

	items, err := repo.ListSales(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []int{4}, items[0].Cards)
	assert.Equal(t, []int{2, 3}, items[1].Cards)
}

func TestSaleStats(t *testing.T) {
	docs := store.NewMemory()
	repo := NewSaleRepo(docs)

	now := time.Now().UTC()
	addSaleDoc(t, docs, "5550001111", 600, now, 1, 2)
	addSaleDoc(t, docs, "5550002222", 300, now, 3)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.CardsSold)
	assert.Equal(t, 900, stats.TotalRevenue)
	assert.Equal(t, 2, stats.SalesCount)
}

func TestConfigRepoDefaultsToOpen(t *testing.T) {
	docs := store.NewMemory()
	repo := NewConfigRepo(docs)
	assert.True(t, repo.IsOpen())
}

func TestConfigRepoFollowsToggle(t *testing.T) {
	docs := store.NewMemory()
	repo := NewConfigRepo(docs)
	ctx := context.Background()

	require.NoError(t, repo.SetOpen(ctx, false, "admin@example.com"))
	assert.False(t, repo.IsOpen())
	assert.Equal(t, "admin@example.com", repo.Current().UpdatedBy)

	require.NoError(t, repo.SetOpen(ctx, true, "admin@example.com"))
	assert.True(t, repo.IsOpen())
}

func TestConfigRepoSeesRemoteUpdates(t *testing.T) {
	docs := store.NewMemory()
	repoA := NewConfigRepo(docs)
	repoB := NewConfigRepo(docs)

	require.NoError(t, repoA.SetOpen(context.Background(), false, "admin@example.com"))

	// Both repos watch the same change stream and converge.
	assert.False(t, repoA.IsOpen())
	assert.False(t, repoB.IsOpen())
}
