package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukapos/dukapos/internal/shared"
)

type staticBatchSource []Batch

func (s staticBatchSource) GetOpenBatches(context.Context, BatchFilters) ([]Batch, error) {
	return s, nil
}

func day(d int) time.Time {
	return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

func dayPtr(d int) *time.Time {
	t := day(d)
	return &t
}

func TestFIFOAllocatesOldestFirst(t *testing.T) {
	source := staticBatchSource{
		{ID: 1, Quantity: 10, UnitCost: 100, CreatedAt: day(1)},
		{ID: 2, Quantity: 20, UnitCost: 110, CreatedAt: day(2)},
		{ID: 3, Quantity: 30, UnitCost: 120, CreatedAt: day(3)},
	}
	strategy := NewFIFOStrategy(source)

	result, err := strategy.AllocateCost(context.Background(), CostAllocationRequest{
		ChannelID: 1, VariantID: "v1", Quantity: 15,
	})
	require.NoError(t, err)
	require.Equal(t, StrategyFIFO, result.Strategy)
	require.Len(t, result.Allocations, 2)
	require.Equal(t, int64(1), result.Allocations[0].BatchID)
	require.Equal(t, int64(10), result.Allocations[0].Quantity)
	require.Equal(t, int64(2), result.Allocations[1].BatchID)
	require.Equal(t, int64(5), result.Allocations[1].Quantity)

	var total int64
	for _, a := range result.Allocations {
		total += a.Quantity
	}
	require.Equal(t, int64(15), total)
	require.Equal(t, int64(10*100+5*110), result.TotalCost)
}

func TestFIFOInsufficientStock(t *testing.T) {
	source := staticBatchSource{
		{ID: 1, Quantity: 10, UnitCost: 100, CreatedAt: day(1)},
	}
	strategy := NewFIFOStrategy(source)

	_, err := strategy.AllocateCost(context.Background(), CostAllocationRequest{
		ChannelID: 1, VariantID: "v1", Quantity: 11,
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestFIFORejectsNonPositiveQuantity(t *testing.T) {
	strategy := NewFIFOStrategy(staticBatchSource{})
	_, err := strategy.AllocateCost(context.Background(), CostAllocationRequest{Quantity: 0})
	require.ErrorIs(t, err, shared.ErrInvariantViolation)
}

func TestFIFOSkipsDrainedBatches(t *testing.T) {
	source := staticBatchSource{
		{ID: 1, Quantity: 0, UnitCost: 100, CreatedAt: day(1)},
		{ID: 2, Quantity: 8, UnitCost: 110, CreatedAt: day(2)},
	}
	strategy := NewFIFOStrategy(source)

	result, err := strategy.AllocateCost(context.Background(), CostAllocationRequest{
		ChannelID: 1, VariantID: "v1", Quantity: 8,
	})
	require.NoError(t, err)
	require.Len(t, result.Allocations, 1)
	require.Equal(t, int64(2), result.Allocations[0].BatchID)
}

func TestFEFOOrdersByExpiryThenReceipt(t *testing.T) {
	source := staticBatchSource{
		{ID: 1, Quantity: 10, UnitCost: 100, CreatedAt: day(1)},                         // no expiry, last
		{ID: 2, Quantity: 10, UnitCost: 110, CreatedAt: day(2), ExpiryDate: dayPtr(20)}, // expires later
		{ID: 3, Quantity: 10, UnitCost: 120, CreatedAt: day(3), ExpiryDate: dayPtr(10)}, // expires first
	}
	strategy := NewFEFOStrategy(source)

	result, err := strategy.AllocateCost(context.Background(), CostAllocationRequest{
		ChannelID: 1, VariantID: "v1", Quantity: 25,
	})
	require.NoError(t, err)
	require.Equal(t, StrategyFEFO, result.Strategy)
	require.Len(t, result.Allocations, 3)
	require.Equal(t, int64(3), result.Allocations[0].BatchID)
	require.Equal(t, int64(2), result.Allocations[1].BatchID)
	require.Equal(t, int64(1), result.Allocations[2].BatchID)
	require.Equal(t, int64(5), result.Allocations[2].Quantity)
}

func TestFEFOTieBreaksByReceiptThenID(t *testing.T) {
	source := staticBatchSource{
		{ID: 5, Quantity: 10, UnitCost: 100, CreatedAt: day(2), ExpiryDate: dayPtr(10)},
		{ID: 4, Quantity: 10, UnitCost: 110, CreatedAt: day(2), ExpiryDate: dayPtr(10)},
		{ID: 6, Quantity: 10, UnitCost: 120, CreatedAt: day(1), ExpiryDate: dayPtr(10)},
	}
	strategy := NewFEFOStrategy(source)

	result, err := strategy.AllocateCost(context.Background(), CostAllocationRequest{
		ChannelID: 1, VariantID: "v1", Quantity: 30,
	})
	require.NoError(t, err)
	require.Equal(t, int64(6), result.Allocations[0].BatchID)
	require.Equal(t, int64(4), result.Allocations[1].BatchID)
	require.Equal(t, int64(5), result.Allocations[2].BatchID)
}

func TestStrategyRegistryResolve(t *testing.T) {
	registry := NewStrategyRegistry(NewFIFOStrategy(staticBatchSource{}), NewFEFOStrategy(staticBatchSource{}))

	s, err := registry.Resolve(StrategyFIFO)
	require.NoError(t, err)
	require.Equal(t, StrategyFIFO, s.Name())

	_, err = registry.Resolve("WAVG")
	require.ErrorIs(t, err, shared.ErrConfiguration)
	require.Contains(t, err.Error(), "FEFO")
	require.Contains(t, err.Error(), "FIFO")
}
