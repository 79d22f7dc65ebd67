package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukapos/dukapos/internal/ledger"
	"github.com/dukapos/dukapos/internal/shared"
)

// StorePort abstracts batch and movement persistence for the service.
type StorePort interface {
	BatchSource
	CreateBatch(ctx context.Context, input CreateBatchInput) (Batch, error)
	VerifyBatchExists(ctx context.Context, id int64) (bool, error)
	GetBatch(ctx context.Context, id int64) (Batch, error)
	UpdateBatchQuantity(ctx context.Context, id int64, delta int64) error
	CreateMovement(ctx context.Context, input CreateMovementInput) (Movement, error)
	VerifyStockLevel(ctx context.Context, channelID, locationID int64, variantID string, quantity int64) (bool, error)
	GetValuationSnapshot(ctx context.Context, filters BatchFilters) (ValuationSnapshot, error)
}

// LedgerPoster records the financial effect of inventory operations. Postings
// run on the same context as the inventory mutations and therefore inside the
// same transaction.
type LedgerPoster interface {
	PostInventoryPurchase(ctx context.Context, sourceID string, ic ledger.InventoryPurchaseContext) error
	PostInventorySaleCogs(ctx context.Context, sourceID string, cc ledger.CogsContext) error
	PostInventoryWriteOff(ctx context.Context, sourceID string, wc ledger.WriteOffContext) error
}

// TxRunner opens the all-or-nothing transaction around each operation.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service orchestrates inventory operations. Each public mutation runs in one
// transaction: batches, movements and ledger legs commit together or not at
// all.
type Service struct {
	runner TxRunner
	store  StorePort
	config *ConfigService
	poster LedgerPoster
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(runner TxRunner, store StorePort, config *ConfigService, poster LedgerPoster, logger *slog.Logger) *Service {
	return &Service{runner: runner, store: store, config: config, poster: poster, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// RecordPurchase creates one batch and one PURCHASE movement per line and
// posts the received value to the ledger.
func (s *Service) RecordPurchase(ctx context.Context, input PurchaseInput) (PurchaseResult, error) {
	var result PurchaseResult
	err := s.runner.WithTx(ctx, func(ctx context.Context) error {
		policy, err := s.config.ResolveExpiryPolicy(ctx, input.ChannelID)
		if err != nil {
			return err
		}

		var legs []ledger.CostLeg
		for _, line := range input.Lines {
			batch, err := s.store.CreateBatch(ctx, CreateBatchInput{
				ChannelID:  input.ChannelID,
				LocationID: line.LocationID,
				VariantID:  line.VariantID,
				Quantity:   line.Quantity,
				UnitCost:   line.UnitCost,
				ExpiryDate: line.ExpiryDate,
				SourceType: "Purchase",
				SourceID:   input.PurchaseID,
			})
			if err != nil {
				return err
			}
			exists, err := s.store.VerifyBatchExists(ctx, batch.ID)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: batch %d missing after create", shared.ErrInvariantViolation, batch.ID)
			}

			movement, err := s.store.CreateMovement(ctx, CreateMovementInput{
				ChannelID:  input.ChannelID,
				LocationID: line.LocationID,
				VariantID:  line.VariantID,
				Type:       MovementTypePurchase,
				Quantity:   line.Quantity,
				BatchID:    &batch.ID,
				SourceType: "Purchase",
				SourceID:   input.PurchaseID,
			})
			if err != nil {
				return err
			}
			policy.OnBatchCreated(batch)

			result.Batches = append(result.Batches, batch)
			result.Movements = append(result.Movements, movement)
			result.TotalCost += line.Quantity * line.UnitCost
			legs = append(legs, ledger.CostLeg{
				BatchID:   batch.ID,
				Quantity:  line.Quantity,
				UnitCost:  line.UnitCost,
				TotalCost: line.Quantity * line.UnitCost,
			})
		}

		enabled, err := s.config.IsValuationEnabled(ctx, input.ChannelID)
		if err != nil {
			return err
		}
		if enabled {
			return s.poster.PostInventoryPurchase(ctx, input.PurchaseID, ledger.InventoryPurchaseContext{
				ChannelID:         input.ChannelID,
				PurchaseID:        input.PurchaseID,
				PurchaseReference: input.Reference,
				SupplierID:        input.SupplierID,
				TotalCost:         result.TotalCost,
				IsCreditPurchase:  input.IsCreditPurchase,
				Allocations:       legs,
			})
		}
		return nil
	})
	if err != nil {
		s.logger.Error("record purchase failed",
			slog.String("purchase_id", input.PurchaseID),
			slog.Any("error", err))
		return PurchaseResult{}, err
	}
	return result, nil
}

// RecordSale prices each line with the channel's costing strategy, consumes
// the allocated batches under expiry validation, appends SALE movements and
// posts total COGS.
func (s *Service) RecordSale(ctx context.Context, input SaleInput) (SaleResult, error) {
	var result SaleResult
	err := s.runner.WithTx(ctx, func(ctx context.Context) error {
		strategy, err := s.config.ResolveCostingStrategy(ctx, input.ChannelID)
		if err != nil {
			return err
		}
		policy, err := s.config.ResolveExpiryPolicy(ctx, input.ChannelID)
		if err != nil {
			return err
		}

		for _, line := range input.Lines {
			ok, err := s.store.VerifyStockLevel(ctx, input.ChannelID, line.LocationID, line.VariantID, line.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				open, err := s.store.GetOpenBatches(ctx, BatchFilters{
					ChannelID:  input.ChannelID,
					LocationID: line.LocationID,
					VariantID:  line.VariantID,
				})
				if err != nil {
					return err
				}
				var available int64
				for _, b := range open {
					available += b.Quantity
				}
				return shared.InsufficientStockError(line.VariantID, line.Quantity, available)
			}

			allocations, movements, err := s.consume(ctx, consumeRequest{
				channelID:    input.ChannelID,
				locationID:   line.LocationID,
				variantID:    line.VariantID,
				quantity:     line.Quantity,
				movementType: MovementTypeSale,
				sourceType:   "Order",
				sourceID:     input.OrderID,
				strategy:     strategy,
				policy:       policy,
			})
			if err != nil {
				return err
			}
			result.Allocations = append(result.Allocations, allocations...)
			result.Movements = append(result.Movements, movements...)
			for _, a := range allocations {
				result.TotalCogs += a.TotalCost
			}
		}

		enabled, err := s.config.IsValuationEnabled(ctx, input.ChannelID)
		if err != nil {
			return err
		}
		if enabled {
			return s.poster.PostInventorySaleCogs(ctx, input.OrderID, ledger.CogsContext{
				ChannelID:   input.ChannelID,
				OrderID:     input.OrderID,
				OrderCode:   input.OrderCode,
				CustomerID:  input.CustomerID,
				TotalCogs:   result.TotalCogs,
				Allocations: toCostLegs(result.Allocations),
			})
		}
		return nil
	})
	if err != nil {
		s.logger.Error("record sale failed",
			slog.String("order_id", input.OrderID),
			slog.Any("error", err))
		return SaleResult{}, err
	}
	return result, nil
}

// RecordAdjustment appends one ADJUSTMENT movement per line with the signed
// quantity change. Adjustments carry no batch reference, no costing and no
// ledger leg.
func (s *Service) RecordAdjustment(ctx context.Context, input AdjustmentInput) ([]Movement, error) {
	var movements []Movement
	err := s.runner.WithTx(ctx, func(ctx context.Context) error {
		for _, line := range input.Lines {
			m, err := s.store.CreateMovement(ctx, CreateMovementInput{
				ChannelID:  input.ChannelID,
				LocationID: line.LocationID,
				VariantID:  line.VariantID,
				Type:       MovementTypeAdjustment,
				Quantity:   line.QuantityDelta,
				SourceType: "Adjustment",
				SourceID:   input.AdjustmentID,
				Meta:       map[string]any{"reason": line.Reason},
			})
			if err != nil {
				return err
			}
			movements = append(movements, m)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("record adjustment failed",
			slog.String("adjustment_id", input.AdjustmentID),
			slog.Any("error", err))
		return nil, err
	}
	return movements, nil
}

// RecordWriteOff consumes stock as a loss: WRITE_OFF movements priced by the
// channel's strategy, with the lost value posted against the inventory asset.
func (s *Service) RecordWriteOff(ctx context.Context, input WriteOffInput) (WriteOffResult, error) {
	var result WriteOffResult
	err := s.runner.WithTx(ctx, func(ctx context.Context) error {
		strategy, err := s.config.ResolveCostingStrategy(ctx, input.ChannelID)
		if err != nil {
			return err
		}
		policy, err := s.config.ResolveExpiryPolicy(ctx, input.ChannelID)
		if err != nil {
			return err
		}

		for _, line := range input.Lines {
			allocations, movements, err := s.consume(ctx, consumeRequest{
				channelID:    input.ChannelID,
				locationID:   line.LocationID,
				variantID:    line.VariantID,
				quantity:     line.Quantity,
				movementType: MovementTypeWriteOff,
				sourceType:   "Adjustment",
				sourceID:     input.AdjustmentID,
				strategy:     strategy,
				policy:       policy,
			})
			if err != nil {
				return err
			}
			result.Allocations = append(result.Allocations, allocations...)
			result.Movements = append(result.Movements, movements...)
			for _, a := range allocations {
				result.TotalLoss += a.TotalCost
			}
		}

		enabled, err := s.config.IsValuationEnabled(ctx, input.ChannelID)
		if err != nil {
			return err
		}
		if enabled {
			return s.poster.PostInventoryWriteOff(ctx, input.AdjustmentID, ledger.WriteOffContext{
				ChannelID:    input.ChannelID,
				AdjustmentID: input.AdjustmentID,
				Reason:       input.Reason,
				TotalLoss:    result.TotalLoss,
				Allocations:  toCostLegs(result.Allocations),
			})
		}
		return nil
	})
	if err != nil {
		s.logger.Error("record write-off failed",
			slog.String("adjustment_id", input.AdjustmentID),
			slog.Any("error", err))
		return WriteOffResult{}, err
	}
	return result, nil
}

// RecordExpiry clears every expired open batch on the channel: EXPIRY
// movements per batch plus one loss posting keyed by the scan id. The nightly
// scan job drives it; the scan id makes re-runs idempotent.
func (s *Service) RecordExpiry(ctx context.Context, channelID int64, scanID string) (ExpiryResult, error) {
	var result ExpiryResult
	err := s.runner.WithTx(ctx, func(ctx context.Context) error {
		policy, err := s.config.ResolveExpiryPolicy(ctx, channelID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		expired, err := s.store.GetOpenBatches(ctx, BatchFilters{
			ChannelID:     channelID,
			ExpiredBefore: &now,
		})
		if err != nil {
			return err
		}

		for _, batch := range expired {
			decision := policy.ValidateBeforeConsume(batch, batch.Quantity, MovementTypeExpiry, now)
			if !decision.Allowed {
				return fmt.Errorf("%w: %s", shared.ErrExpiryViolation, decision.Reason)
			}
			if decision.Warning != "" {
				s.logger.Warn("expiry scan warning",
					slog.Int64("batch_id", batch.ID),
					slog.String("warning", decision.Warning))
			}
			policy.OnBatchExpired(batch)

			if err := s.store.UpdateBatchQuantity(ctx, batch.ID, -batch.Quantity); err != nil {
				return err
			}
			if _, err := s.store.CreateMovement(ctx, CreateMovementInput{
				ChannelID:  channelID,
				LocationID: batch.LocationID,
				VariantID:  batch.VariantID,
				Type:       MovementTypeExpiry,
				Quantity:   -batch.Quantity,
				BatchID:    &batch.ID,
				SourceType: "ExpiryScan",
				SourceID:   scanID,
			}); err != nil {
				return err
			}

			result.BatchesExpired++
			result.Allocations = append(result.Allocations, BatchAllocation{
				BatchID:   batch.ID,
				Quantity:  batch.Quantity,
				UnitCost:  batch.UnitCost,
				TotalCost: batch.Quantity * batch.UnitCost,
			})
			result.TotalLoss += batch.Quantity * batch.UnitCost
		}

		if result.BatchesExpired == 0 {
			return nil
		}
		enabled, err := s.config.IsValuationEnabled(ctx, channelID)
		if err != nil {
			return err
		}
		if enabled {
			return s.poster.PostInventoryWriteOff(ctx, scanID, ledger.WriteOffContext{
				ChannelID:    channelID,
				AdjustmentID: scanID,
				Reason:       "expired",
				TotalLoss:    result.TotalLoss,
				Allocations:  toCostLegs(result.Allocations),
			})
		}
		return nil
	})
	if err != nil {
		s.logger.Error("expiry scan failed",
			slog.Int64("channel_id", channelID),
			slog.String("scan_id", scanID),
			slog.Any("error", err))
		return ExpiryResult{}, err
	}
	return result, nil
}

// GetValuation delegates to the store.
func (s *Service) GetValuation(ctx context.Context, filters BatchFilters) (ValuationSnapshot, error) {
	return s.store.GetValuationSnapshot(ctx, filters)
}

// GetOpenBatches delegates to the store.
func (s *Service) GetOpenBatches(ctx context.Context, filters BatchFilters) ([]Batch, error) {
	return s.store.GetOpenBatches(ctx, filters)
}

type consumeRequest struct {
	channelID    int64
	locationID   int64
	variantID    string
	quantity     int64
	movementType MovementType
	sourceType   string
	sourceID     string
	strategy     CostingStrategy
	policy       ExpiryPolicy
}

// consume prices one outbound line and applies it batch by batch: expiry
// validation, guarded decrement, negative movement. The batch is re-fetched
// before validation so the policy sees current state, not the snapshot the
// strategy priced against.
func (s *Service) consume(ctx context.Context, req consumeRequest) ([]BatchAllocation, []Movement, error) {
	allocation, err := req.strategy.AllocateCost(ctx, CostAllocationRequest{
		ChannelID:  req.channelID,
		LocationID: req.locationID,
		VariantID:  req.variantID,
		Quantity:   req.quantity,
		SourceType: req.sourceType,
		SourceID:   req.sourceID,
	})
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	var movements []Movement
	for _, alloc := range allocation.Allocations {
		batch, err := s.store.GetBatch(ctx, alloc.BatchID)
		if err != nil {
			return nil, nil, err
		}
		decision := req.policy.ValidateBeforeConsume(batch, alloc.Quantity, req.movementType, now)
		if !decision.Allowed {
			return nil, nil, fmt.Errorf("%w: %s", shared.ErrExpiryViolation, decision.Reason)
		}
		if decision.Warning != "" {
			s.logger.Warn("expiry policy warning",
				slog.Int64("batch_id", batch.ID),
				slog.String("movement_type", string(req.movementType)),
				slog.String("warning", decision.Warning))
		}

		if err := s.store.UpdateBatchQuantity(ctx, alloc.BatchID, -alloc.Quantity); err != nil {
			return nil, nil, err
		}
		batchID := alloc.BatchID
		m, err := s.store.CreateMovement(ctx, CreateMovementInput{
			ChannelID:  req.channelID,
			LocationID: req.locationID,
			VariantID:  req.variantID,
			Type:       req.movementType,
			Quantity:   -alloc.Quantity,
			BatchID:    &batchID,
			SourceType: req.sourceType,
			SourceID:   req.sourceID,
			Meta:       map[string]any{"unitCost": alloc.UnitCost, "totalCost": alloc.TotalCost},
		})
		if err != nil {
			return nil, nil, err
		}
		movements = append(movements, m)
	}
	return allocation.Allocations, movements, nil
}

func toCostLegs(allocations []BatchAllocation) []ledger.CostLeg {
	legs := make([]ledger.CostLeg, 0, len(allocations))
	for _, a := range allocations {
		legs = append(legs, ledger.CostLeg{
			BatchID:   a.BatchID,
			Quantity:  a.Quantity,
			UnitCost:  a.UnitCost,
			TotalCost: a.TotalCost,
		})
	}
	return legs
}
