package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/dukapos/dukapos/internal/shared"
)

// Costing strategy names resolvable through the registry.
const (
	StrategyFIFO = "FIFO"
	StrategyFEFO = "FEFO"
)

// BatchSource is the read surface costing strategies price against.
type BatchSource interface {
	GetOpenBatches(ctx context.Context, filters BatchFilters) ([]Batch, error)
}

// CostingStrategy allocates a requested quantity across open batches. The
// returned allocation quantities sum exactly to the requested quantity or the
// call fails with shared.ErrInsufficientStock.
type CostingStrategy interface {
	Name() string
	AllocateCost(ctx context.Context, req CostAllocationRequest) (CostAllocationResult, error)
}

// StrategyRegistry resolves costing strategies by name.
type StrategyRegistry struct {
	strategies map[string]CostingStrategy
}

// NewStrategyRegistry builds a registry over the given strategies.
func NewStrategyRegistry(strategies ...CostingStrategy) *StrategyRegistry {
	r := &StrategyRegistry{strategies: make(map[string]CostingStrategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.Name()] = s
	}
	return r
}

// Resolve returns the named strategy or ErrConfiguration listing the options.
func (r *StrategyRegistry) Resolve(name string) (CostingStrategy, error) {
	if s, ok := r.strategies[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: unknown costing strategy %q, available: %v",
		shared.ErrConfiguration, name, r.Names())
}

// Names lists registered strategy names, sorted.
func (r *StrategyRegistry) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FIFOStrategy prices consumption oldest-received-first.
type FIFOStrategy struct {
	source BatchSource
}

// NewFIFOStrategy constructs a FIFO strategy over the batch source.
func NewFIFOStrategy(source BatchSource) *FIFOStrategy {
	return &FIFOStrategy{source: source}
}

// Name implements CostingStrategy.
func (s *FIFOStrategy) Name() string { return StrategyFIFO }

// AllocateCost walks open batches in receipt order, taking
// min(remaining, batch.Quantity) from each. Equal receipt times break by batch
// id, which the store's ordering already guarantees.
func (s *FIFOStrategy) AllocateCost(ctx context.Context, req CostAllocationRequest) (CostAllocationResult, error) {
	batches, err := s.source.GetOpenBatches(ctx, BatchFilters{
		ChannelID:  req.ChannelID,
		LocationID: req.LocationID,
		VariantID:  req.VariantID,
	})
	if err != nil {
		return CostAllocationResult{}, err
	}
	return allocateAcross(batches, req, StrategyFIFO)
}

// FEFOStrategy prices consumption earliest-expiry-first, so perishables leave
// the shelf before they spoil. Batches without an expiry date go last.
type FEFOStrategy struct {
	source BatchSource
}

// NewFEFOStrategy constructs a FEFO strategy over the batch source.
func NewFEFOStrategy(source BatchSource) *FEFOStrategy {
	return &FEFOStrategy{source: source}
}

// Name implements CostingStrategy.
func (s *FEFOStrategy) Name() string { return StrategyFEFO }

// AllocateCost orders open batches by expiry ascending, nil-expiry last, then
// receipt time, then id, and allocates like FIFO over that order.
func (s *FEFOStrategy) AllocateCost(ctx context.Context, req CostAllocationRequest) (CostAllocationResult, error) {
	batches, err := s.source.GetOpenBatches(ctx, BatchFilters{
		ChannelID:  req.ChannelID,
		LocationID: req.LocationID,
		VariantID:  req.VariantID,
	})
	if err != nil {
		return CostAllocationResult{}, err
	}

	sorted := make([]Batch, len(batches))
	copy(sorted, batches)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.ExpiryDate == nil && b.ExpiryDate == nil:
			// fall through to receipt order
		case a.ExpiryDate == nil:
			return false
		case b.ExpiryDate == nil:
			return true
		case !a.ExpiryDate.Equal(*b.ExpiryDate):
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return allocateAcross(sorted, req, StrategyFEFO)
}

func allocateAcross(batches []Batch, req CostAllocationRequest, strategy string) (CostAllocationResult, error) {
	if req.Quantity <= 0 {
		return CostAllocationResult{}, fmt.Errorf("%w: allocation quantity must be positive, got %d",
			shared.ErrInvariantViolation, req.Quantity)
	}

	var available int64
	for _, b := range batches {
		available += b.Quantity
	}
	if available < req.Quantity {
		return CostAllocationResult{}, shared.InsufficientStockError(req.VariantID, req.Quantity, available)
	}

	result := CostAllocationResult{Strategy: strategy}
	remaining := req.Quantity
	for _, b := range batches {
		if remaining == 0 {
			break
		}
		if b.Quantity <= 0 {
			continue
		}
		take := min(remaining, b.Quantity)
		result.Allocations = append(result.Allocations, BatchAllocation{
			BatchID:   b.ID,
			Quantity:  take,
			UnitCost:  b.UnitCost,
			TotalCost: take * b.UnitCost,
		})
		result.TotalCost += take * b.UnitCost
		remaining -= take
	}
	return result, nil
}
