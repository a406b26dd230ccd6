package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReplaysSnapshot(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	id1, err := s.Add(ctx, CollectionPending, []byte(`{"cards":[1]}`))
	require.NoError(t, err)
	id2, err := s.Add(ctx, CollectionPending, []byte(`{"cards":[2]}`))
	require.NoError(t, err)

	var seen []string
	cancel := s.Subscribe(CollectionPending, func(changes []Change) {
		for _, ch := range changes {
			assert.Equal(t, Added, ch.Kind)
			seen = append(seen, ch.Doc.ID)
		}
	})
	defer cancel()

	assert.ElementsMatch(t, []string{id1, id2}, seen)
}

func TestSubscribeDeliversLiveChanges(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	var kinds []ChangeKind
	cancel := s.Subscribe(CollectionSales, func(changes []Change) {
		for _, ch := range changes {
			kinds = append(kinds, ch.Kind)
		}
	})
	defer cancel()

	id, err := s.Add(ctx, CollectionSales, []byte(`{"cards":[3]}`))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, CollectionSales, id))

	assert.Equal(t, []ChangeKind{Added, Removed}, kinds)
}

func TestCancelStopsDelivery(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	calls := 0
	cancel := s.Subscribe(CollectionSales, func([]Change) { calls++ })
	cancel()

	_, err := s.Add(ctx, CollectionSales, []byte(`{}`))
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestGetAndDeleteMissing(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_, err := s.Get(ctx, CollectionPending, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, CollectionPending, "nope"), ErrNotFound)
}

func TestQueryFieldMatchesTopLevelString(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_, err := s.Add(ctx, CollectionPending, []byte(`{"phone":"5550001111","name":"Ana"}`))
	require.NoError(t, err)
	_, err = s.Add(ctx, CollectionPending, []byte(`{"phone":"5550002222","name":"Luis"}`))
	require.NoError(t, err)

	docs, err := s.QueryField(ctx, CollectionPending, "phone", "5550001111")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, string(docs[0].Data), "Ana")
}

func TestRunBatchDeliversInsertAndDeleteTogether(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	pendingID, err := s.Add(ctx, CollectionPending, []byte(`{"cards":[5]}`))
	require.NoError(t, err)

	var pendingEvents, saleEvents []ChangeKind
	defer s.Subscribe(CollectionPending, func(changes []Change) {
		for _, ch := range changes {
			pendingEvents = append(pendingEvents, ch.Kind)
		}
	})()
	defer s.Subscribe(CollectionSales, func(changes []Change) {
		for _, ch := range changes {
			saleEvents = append(saleEvents, ch.Kind)
		}
	})()

	err = s.RunBatch(ctx, []BatchOp{
		{Kind: BatchDelete, Collection: CollectionPending, ID: pendingID},
		{Kind: BatchInsert, Collection: CollectionSales, ID: "sale-1", Data: []byte(`{"cards":[5]}`)},
	})
	require.NoError(t, err)

	assert.Equal(t, []ChangeKind{Added, Removed}, pendingEvents)
	assert.Equal(t, []ChangeKind{Added}, saleEvents)

	_, err = s.Get(ctx, CollectionPending, pendingID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, CollectionSales, "sale-1")
	assert.NoError(t, err)
}

func TestRunBatchDeleteOfMissingDocIsNoOp(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	err := s.RunBatch(ctx, []BatchOp{
		{Kind: BatchDelete, Collection: CollectionPending, ID: "already-gone"},
		{Kind: BatchInsert, Collection: CollectionSales, ID: "sale-2", Data: []byte(`{"cards":[6]}`)},
	})
	require.NoError(t, err)

	_, err = s.Get(ctx, CollectionSales, "sale-2")
	assert.NoError(t, err)
}

func TestRunBatchInsertOverExistingIsModified(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.RunBatch(ctx, []BatchOp{
		{Kind: BatchInsert, Collection: CollectionConfig, ID: "general", Data: []byte(`{"isStoreOpen":true}`)},
	}))

	var last ChangeKind
	defer s.Subscribe(CollectionConfig, func(changes []Change) {
		last = changes[len(changes)-1].Kind
	})()

	require.NoError(t, s.RunBatch(ctx, []BatchOp{
		{Kind: BatchInsert, Collection: CollectionConfig, ID: "general", Data: []byte(`{"isStoreOpen":false}`)},
	}))
	assert.Equal(t, Modified, last)
}
