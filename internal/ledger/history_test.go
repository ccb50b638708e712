package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func seedHistory(t *testing.T) (*memoryStore, StreamKey) {
	t.Helper()
	store := newMemoryStore()
	key := seedItem(store, 1, 7, 50)
	seedDocuments(store, key)
	_, err := NewRebuilder(store, nil, nil, ServiceConfig{}).RebuildItem(context.Background(), 1, 7)
	require.NoError(t, err)
	return store, key
}

func TestHistoryNewestFirstWithDocuments(t *testing.T) {
	store, key := seedHistory(t)
	projector := NewProjector(store)

	rows, err := projector.History(context.Background(), key.CompanyID, key.ItemID, HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 4)

	require.Equal(t, TypeOut, rows[0].Entry.Type)
	require.Equal(t, "DSP-5", rows[0].DocumentNumber)
	require.Equal(t, "Northwind", rows[0].Counterparty)
	require.Nil(t, rows[0].Received)

	require.Equal(t, TypeRej, rows[1].Entry.Type)
	require.NotNil(t, rows[1].Rejected)
	require.Equal(t, int64(10), *rows[1].Rejected)

	require.Equal(t, TypeIn, rows[2].Entry.Type)
	require.Equal(t, "GRN-1", rows[2].DocumentNumber)
	require.Equal(t, int64(20), *rows[2].Received)
	require.Equal(t, "Acme Supplies", rows[2].Counterparty)

	require.Equal(t, TypeOpening, rows[3].Entry.Type)
	require.Equal(t, "SKU-1", rows[3].DocumentNumber)
}

func TestHistoryFallsBackToReferenceLabel(t *testing.T) {
	store := newMemoryStore()
	key := seedItem(store, 1, 7, 0)
	svc, _, _ := newTestService(store)
	_, err := svc.Post(context.Background(), AppendInput{
		CompanyID: 1, ItemID: 7, TransactionDate: day(1), Type: TypeIn,
		ReferenceLabel: "IN / INV-2031", CounterpartyLabel: "Legacy Vendor", QuantityChange: 4,
	})
	require.NoError(t, err)

	rows, err := NewProjector(store).History(context.Background(), key.CompanyID, key.ItemID, HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "INV-2031", rows[0].DocumentNumber)
	require.Equal(t, "Legacy Vendor", rows[0].Counterparty)
	require.Nil(t, rows[0].Received)
}

func TestHistoryFilters(t *testing.T) {
	store, key := seedHistory(t)
	projector := NewProjector(store)
	ctx := context.Background()

	rows, err := projector.History(ctx, key.CompanyID, key.ItemID, HistoryFilter{Types: []Category{CategoryIncoming, CategoryRejected}})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rows, err = projector.History(ctx, key.CompanyID, key.ItemID, HistoryFilter{DateFrom: day(1)})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	rows, err = projector.History(ctx, key.CompanyID, key.ItemID, HistoryFilter{Search: "NORTHWIND"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, TypeOut, rows[0].Entry.Type)

	rows, err = projector.History(ctx, key.CompanyID, key.ItemID, HistoryFilter{Search: "grn-1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, TypeRej, rows[0].Entry.Type)

	rows, err = projector.History(ctx, key.CompanyID, key.ItemID, HistoryFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	_, err = projector.History(ctx, key.CompanyID, key.ItemID, HistoryFilter{Types: []Category{"transfer"}})
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorIs(t, err, ErrUnknownType)

	_, err = projector.History(ctx, key.CompanyID, key.ItemID, HistoryFilter{DateFrom: day(3), DateTo: day(1)})
	require.ErrorIs(t, err, ErrValidation)
}

// Search pages through the store until enough rows match.
func TestHistorySearchSpansPages(t *testing.T) {
	store := newMemoryStore()
	key := seedItem(store, 1, 7, 0)
	svc, _, _ := newTestService(store)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		counterparty := "Walk-in"
		if i == 0 {
			counterparty = "Globex"
		}
		_, err := svc.Post(ctx, AppendInput{
			CompanyID: 1, ItemID: 7, TransactionDate: day(i), Type: TypeIn,
			ReferenceLabel: FormatReference(TypeIn, "GRN"), CounterpartyLabel: counterparty, QuantityChange: 1,
		})
		require.NoError(t, err)
	}

	rows, err := NewProjector(store).History(ctx, key.CompanyID, key.ItemID, HistoryFilter{Search: "globex", Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0].Entry.NetBalance)
}

func TestHistoryEmpty(t *testing.T) {
	store := newMemoryStore()
	key := seedItem(store, 1, 7, 0)

	rows, err := NewProjector(store).History(context.Background(), key.CompanyID, key.ItemID, HistoryFilter{})
	require.NoError(t, err)
	require.NotNil(t, rows)
	require.Empty(t, rows)
}
