package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukapos/dukapos/internal/ledger"
)

func (s *memoryStore) GetMovements(_ context.Context, filters MovementFilters) ([]Movement, error) {
	var out []Movement
	for _, m := range s.movements {
		if m.ChannelID != filters.ChannelID {
			continue
		}
		if filters.LocationID != 0 && m.LocationID != filters.LocationID {
			continue
		}
		if filters.VariantID != "" && m.VariantID != filters.VariantID {
			continue
		}
		if filters.Type != "" && m.Type != filters.Type {
			continue
		}
		if filters.From != nil && m.CreatedAt.Before(*filters.From) {
			continue
		}
		if filters.To != nil && !m.CreatedAt.Before(*filters.To) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *memoryStore) SumBatchMovements(_ context.Context, channelID, locationID int64, variantID string) (int64, error) {
	var total int64
	for _, m := range s.movements {
		if m.ChannelID != channelID || m.LocationID != locationID || m.VariantID != variantID {
			continue
		}
		if m.BatchID == nil {
			continue
		}
		total += m.Quantity
	}
	return total, nil
}

type stubBalanceReader struct {
	net int64
}

func (r *stubBalanceReader) GetAccountBalance(_ context.Context, channelID int64, code string) (ledger.AccountBalance, error) {
	return ledger.AccountBalance{ChannelID: channelID, AccountCode: code, Net: r.net}, nil
}

func newTestReconciliation(store *memoryStore, reader *stubBalanceReader) *ReconciliationService {
	recon := NewReconciliationService(store, reader, testLogger())
	recon.WithNow(func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) })
	return recon
}

func TestCheckValuationAgainstLedger(t *testing.T) {
	store := newMemoryStore()
	svc, _ := newTestService(store, &recordingPoster{})
	seedPurchase(t, svc, "v1", PurchaseLine{Quantity: 10, UnitCost: 500})

	reader := &stubBalanceReader{net: 5000}
	recon := newTestReconciliation(store, reader)

	result, err := recon.CheckValuation(context.Background(), 1, 0)
	require.NoError(t, err)
	require.True(t, result.Balanced)
	require.Equal(t, int64(5000), result.InventoryValuation)
	require.Equal(t, int64(0), result.Difference)

	// An inventory asset balance behind the batches is surfaced as drift.
	reader.net = 4400
	result, err = recon.CheckValuation(context.Background(), 1, 0)
	require.NoError(t, err)
	require.False(t, result.Balanced)
	require.Equal(t, int64(600), result.Difference)
}

func TestCheckStockLevelMatchesBatchMovements(t *testing.T) {
	store := newMemoryStore()
	svc, _ := newTestService(store, &recordingPoster{})
	ctx := context.Background()

	seedPurchase(t, svc, "v1", PurchaseLine{Quantity: 10, UnitCost: 100})
	_, err := svc.RecordSale(ctx, SaleInput{
		ChannelID: 1, OrderID: "order-1",
		Lines: []ConsumeLine{{VariantID: "v1", LocationID: 1, Quantity: 4}},
	})
	require.NoError(t, err)

	recon := newTestReconciliation(store, &stubBalanceReader{})
	check, err := recon.CheckStockLevel(ctx, 1, 1, "v1")
	require.NoError(t, err)
	require.Equal(t, int64(6), check.BatchSum)
	require.Equal(t, int64(6), check.MovementSum)
	require.True(t, check.Balanced)

	// Quantity-only adjustments have no batch reference and stay out of
	// the comparison.
	_, err = svc.RecordAdjustment(ctx, AdjustmentInput{
		ChannelID:    1,
		AdjustmentID: "adj-1",
		Lines:        []AdjustmentLine{{VariantID: "v1", LocationID: 1, QuantityDelta: -2, Reason: "stocktake"}},
	})
	require.NoError(t, err)

	check, err = recon.CheckStockLevel(ctx, 1, 1, "v1")
	require.NoError(t, err)
	require.True(t, check.Balanced)
}

func TestMovementTrailFiltersAndDateRange(t *testing.T) {
	store := newMemoryStore()
	svc, _ := newTestService(store, &recordingPoster{})
	ctx := context.Background()

	seedPurchase(t, svc, "v1", PurchaseLine{Quantity: 10, UnitCost: 100})
	_, err := svc.RecordSale(ctx, SaleInput{
		ChannelID: 1, OrderID: "order-1",
		Lines: []ConsumeLine{{VariantID: "v1", LocationID: 1, Quantity: 3}},
	})
	require.NoError(t, err)

	recon := newTestReconciliation(store, &stubBalanceReader{})

	trail, err := recon.GetMovementTrail(ctx, MovementFilters{ChannelID: 1})
	require.NoError(t, err)
	require.Equal(t, 2, trail.TotalMovements)
	require.True(t, trail.From.Before(trail.To))

	trail, err = recon.GetMovementTrail(ctx, MovementFilters{ChannelID: 1, Type: MovementTypeSale})
	require.NoError(t, err)
	require.Equal(t, 1, trail.TotalMovements)
	require.Equal(t, MovementTypeSale, trail.Movements[0].Type)

	trail, err = recon.GetMovementTrail(ctx, MovementFilters{ChannelID: 9})
	require.NoError(t, err)
	require.Zero(t, trail.TotalMovements)
	require.Equal(t, trail.From, trail.To)
}

func TestReconciliationReportCounts(t *testing.T) {
	store := newMemoryStore()
	svc, _ := newTestService(store, &recordingPoster{})
	seedPurchase(t, svc, "v1", PurchaseLine{Quantity: 10, UnitCost: 100})
	seedPurchase(t, svc, "v2", PurchaseLine{Quantity: 5, UnitCost: 200})

	recon := newTestReconciliation(store, &stubBalanceReader{net: 2000})
	report, err := recon.GetReport(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), report.TotalBatches)
	require.Equal(t, 2, report.TotalMovements)
	require.Equal(t, int64(10*100+5*200), report.Valuation.InventoryValuation)
	require.True(t, report.Valuation.Balanced)
}
