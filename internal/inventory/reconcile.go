package inventory

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukapos/dukapos/internal/ledger"
)

// LedgerBalanceReader reads account balances from the journal's query side.
type LedgerBalanceReader interface {
	GetAccountBalance(ctx context.Context, channelID int64, accountCode string) (ledger.AccountBalance, error)
}

// ReconciliationStore is the read surface reconciliation aggregates over.
type ReconciliationStore interface {
	GetValuationSnapshot(ctx context.Context, filters BatchFilters) (ValuationSnapshot, error)
	GetOpenBatches(ctx context.Context, filters BatchFilters) ([]Batch, error)
	GetMovements(ctx context.Context, filters MovementFilters) ([]Movement, error)
	SumBatchMovements(ctx context.Context, channelID, locationID int64, variantID string) (int64, error)
}

// ReconciliationService cross-checks the batch ledger against the financial
// ledger and against its own movement history. Every posting-enabled mutation
// writes both sides in one transaction, so a persistent difference means a
// bug or channels that ran with valuation off for a while.
type ReconciliationService struct {
	store  ReconciliationStore
	ledger LedgerBalanceReader
	logger *slog.Logger
	now    func() time.Time
}

// NewReconciliationService builds ReconciliationService.
func NewReconciliationService(store ReconciliationStore, ledger LedgerBalanceReader, logger *slog.Logger) *ReconciliationService {
	return &ReconciliationService{store: store, ledger: ledger, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *ReconciliationService) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CheckValuation compares open-batch value with the inventory asset account.
// A zero locationID checks the whole channel.
func (s *ReconciliationService) CheckValuation(ctx context.Context, channelID, locationID int64) (ValuationReconciliation, error) {
	snap, err := s.store.GetValuationSnapshot(ctx, BatchFilters{ChannelID: channelID, LocationID: locationID})
	if err != nil {
		return ValuationReconciliation{}, err
	}
	bal, err := s.ledger.GetAccountBalance(ctx, channelID, ledger.AccountInventoryAsset)
	if err != nil {
		return ValuationReconciliation{}, err
	}

	diff := snap.TotalValue - bal.Net
	if diff != 0 {
		s.logger.Warn("inventory valuation drift",
			slog.Int64("channel_id", channelID),
			slog.Int64("valuation", snap.TotalValue),
			slog.Int64("ledger_balance", bal.Net),
			slog.Int64("difference", diff))
	}
	return ValuationReconciliation{
		ChannelID:          channelID,
		LocationID:         locationID,
		InventoryValuation: snap.TotalValue,
		LedgerBalance:      bal.Net,
		Difference:         diff,
		Balanced:           diff == 0,
		AsOf:               s.now().UTC(),
	}, nil
}

// CheckStockLevel compares what the batches hold for one variant at one
// location with the signed sum of its batch-linked movements. The two are
// written together, so they must agree exactly.
func (s *ReconciliationService) CheckStockLevel(ctx context.Context, channelID, locationID int64, variantID string) (StockLevelCheck, error) {
	batches, err := s.store.GetOpenBatches(ctx, BatchFilters{
		ChannelID:  channelID,
		LocationID: locationID,
		VariantID:  variantID,
	})
	if err != nil {
		return StockLevelCheck{}, err
	}
	var batchSum int64
	for _, b := range batches {
		batchSum += b.Quantity
	}

	movementSum, err := s.store.SumBatchMovements(ctx, channelID, locationID, variantID)
	if err != nil {
		return StockLevelCheck{}, err
	}

	diff := batchSum - movementSum
	if diff != 0 {
		s.logger.Warn("stock level drift",
			slog.String("variant_id", variantID),
			slog.Int64("location_id", locationID),
			slog.Int64("batch_sum", batchSum),
			slog.Int64("movement_sum", movementSum))
	}
	return StockLevelCheck{
		VariantID:   variantID,
		LocationID:  locationID,
		BatchSum:    batchSum,
		MovementSum: movementSum,
		Difference:  diff,
		Balanced:    diff == 0,
	}, nil
}

// GetMovementTrail returns the filtered movement history with the date range
// it actually covers.
func (s *ReconciliationService) GetMovementTrail(ctx context.Context, filters MovementFilters) (MovementAuditTrail, error) {
	movements, err := s.store.GetMovements(ctx, filters)
	if err != nil {
		return MovementAuditTrail{}, err
	}

	trail := MovementAuditTrail{
		Movements:      movements,
		TotalMovements: len(movements),
	}
	if len(movements) == 0 {
		now := s.now().UTC()
		trail.From, trail.To = now, now
		return trail, nil
	}
	trail.From, trail.To = movements[0].CreatedAt, movements[0].CreatedAt
	for _, m := range movements[1:] {
		if m.CreatedAt.Before(trail.From) {
			trail.From = m.CreatedAt
		}
		if m.CreatedAt.After(trail.To) {
			trail.To = m.CreatedAt
		}
	}
	return trail, nil
}

// GetReport aggregates the channel-wide reconciliation view.
func (s *ReconciliationService) GetReport(ctx context.Context, channelID int64) (ReconciliationReport, error) {
	valuation, err := s.CheckValuation(ctx, channelID, 0)
	if err != nil {
		return ReconciliationReport{}, err
	}
	batches, err := s.store.GetOpenBatches(ctx, BatchFilters{ChannelID: channelID})
	if err != nil {
		return ReconciliationReport{}, err
	}
	movements, err := s.store.GetMovements(ctx, MovementFilters{ChannelID: channelID})
	if err != nil {
		return ReconciliationReport{}, err
	}
	return ReconciliationReport{
		Valuation:      valuation,
		TotalBatches:   int64(len(batches)),
		TotalMovements: len(movements),
	}, nil
}
