// Package inventory implements batch-level stock costing. Stock arrives as
// cost-tagged batches, every quantity change is an append-only movement, and
// consumption is priced by a pluggable costing strategy before the financial
// effect is posted to the ledger.
package inventory

import "time"

// MovementType enumerates supported inventory movements.
type MovementType string

const (
	// MovementTypePurchase represents inbound stock from a supplier.
	MovementTypePurchase MovementType = "PURCHASE"
	// MovementTypeSale represents stock consumed by a customer order.
	MovementTypeSale MovementType = "SALE"
	// MovementTypeTransfer represents stock moved between locations.
	MovementTypeTransfer MovementType = "TRANSFER"
	// MovementTypeAdjustment represents a manual quantity correction.
	MovementTypeAdjustment MovementType = "ADJUSTMENT"
	// MovementTypeWriteOff represents stock removed as a loss.
	MovementTypeWriteOff MovementType = "WRITE_OFF"
	// MovementTypeExpiry represents stock removed because it expired.
	MovementTypeExpiry MovementType = "EXPIRY"
)

// Batch is a quantity of one product variant received at one point in time at
// one location. Quantity only ever decreases after creation; unit cost is
// immutable, re-costing creates a new batch. Exhausted batches stay on record
// for valuation history.
type Batch struct {
	ID         int64
	ChannelID  int64
	LocationID int64
	VariantID  string
	Quantity   int64
	UnitCost   int64
	ExpiryDate *time.Time
	SourceType string
	SourceID   string
	Meta       map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Expired reports whether the batch has an expiry date in the past of now.
func (b Batch) Expired(now time.Time) bool {
	return b.ExpiryDate != nil && b.ExpiryDate.Before(now)
}

// Movement is one immutable stock quantity change. Quantity is signed:
// positive inbound, negative outbound. BatchID is nil for adjustments that do
// not target a specific batch.
type Movement struct {
	ID         int64
	ChannelID  int64
	LocationID int64
	VariantID  string
	Type       MovementType
	Quantity   int64
	BatchID    *int64
	SourceType string
	SourceID   string
	Meta       map[string]any
	CreatedAt  time.Time
}

// CreateBatchInput describes a batch to persist.
type CreateBatchInput struct {
	ChannelID  int64
	LocationID int64
	VariantID  string
	Quantity   int64
	UnitCost   int64
	ExpiryDate *time.Time
	SourceType string
	SourceID   string
	Meta       map[string]any
}

// CreateMovementInput describes a movement to persist.
type CreateMovementInput struct {
	ChannelID  int64
	LocationID int64
	VariantID  string
	Type       MovementType
	Quantity   int64
	BatchID    *int64
	SourceType string
	SourceID   string
	Meta       map[string]any
}

// BatchFilters narrows open-batch and valuation queries.
type BatchFilters struct {
	ChannelID     int64
	LocationID    int64
	VariantID     string
	ExpiredBefore *time.Time
}

// ValuationSnapshot is a point-in-time aggregate over open batches. It is
// derived from batches and never persisted independently.
type ValuationSnapshot struct {
	ChannelID     int64     `json:"channelId"`
	LocationID    int64     `json:"locationId,omitempty"`
	VariantID     string    `json:"variantId,omitempty"`
	BatchCount    int64     `json:"batchCount"`
	TotalQuantity int64     `json:"totalQuantity"`
	TotalValue    int64     `json:"totalValue"`
	AsOf          time.Time `json:"asOf"`
}

// CostAllocationRequest asks a costing strategy to price a consumption.
type CostAllocationRequest struct {
	ChannelID  int64
	LocationID int64
	VariantID  string
	Quantity   int64
	SourceType string
	SourceID   string
}

// BatchAllocation is one batch's share of a priced consumption.
type BatchAllocation struct {
	BatchID   int64 `json:"batchId"`
	Quantity  int64 `json:"quantity"`
	UnitCost  int64 `json:"unitCost"`
	TotalCost int64 `json:"totalCost"`
}

// CostAllocationResult is the full allocation for one request. Allocation
// quantities sum exactly to the requested quantity.
type CostAllocationResult struct {
	Allocations []BatchAllocation `json:"allocations"`
	TotalCost   int64             `json:"totalCost"`
	Strategy    string            `json:"strategy"`
}

// PurchaseLine is one received batch within a purchase.
type PurchaseLine struct {
	VariantID  string     `json:"variantId" validate:"required"`
	LocationID int64      `json:"locationId" validate:"required"`
	Quantity   int64      `json:"quantity" validate:"required,gt=0"`
	UnitCost   int64      `json:"unitCost" validate:"gte=0"`
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`
}

// PurchaseInput records stock received from a supplier.
type PurchaseInput struct {
	ChannelID        int64          `json:"channelId" validate:"required"`
	PurchaseID       string         `json:"purchaseId" validate:"required"`
	Reference        string         `json:"reference"`
	SupplierID       string         `json:"supplierId"`
	IsCreditPurchase bool           `json:"isCreditPurchase"`
	Lines            []PurchaseLine `json:"lines" validate:"required,min=1,dive"`
}

// PurchaseResult reports the batches and movements a purchase created.
type PurchaseResult struct {
	Batches   []Batch    `json:"batches"`
	Movements []Movement `json:"movements"`
	TotalCost int64      `json:"totalCost"`
}

// ConsumeLine is one variant quantity to take out of stock.
type ConsumeLine struct {
	VariantID  string `json:"variantId" validate:"required"`
	LocationID int64  `json:"locationId" validate:"required"`
	Quantity   int64  `json:"quantity" validate:"required,gt=0"`
}

// SaleInput records stock consumed by a customer order.
type SaleInput struct {
	ChannelID  int64         `json:"channelId" validate:"required"`
	OrderID    string        `json:"orderId" validate:"required"`
	OrderCode  string        `json:"orderCode"`
	CustomerID string        `json:"customerId"`
	Lines      []ConsumeLine `json:"lines" validate:"required,min=1,dive"`
}

// SaleResult reports the cost allocated to a sale.
type SaleResult struct {
	Allocations []BatchAllocation `json:"allocations"`
	Movements   []Movement        `json:"movements"`
	TotalCogs   int64             `json:"totalCogs"`
}

// AdjustmentLine is one signed quantity correction.
type AdjustmentLine struct {
	VariantID     string `json:"variantId" validate:"required"`
	LocationID    int64  `json:"locationId" validate:"required"`
	QuantityDelta int64  `json:"quantityDelta" validate:"required"`
	Reason        string `json:"reason"`
}

// AdjustmentInput records quantity-only corrections. Adjustments carry no
// batch reference, no costing and no ledger leg.
type AdjustmentInput struct {
	ChannelID    int64            `json:"channelId" validate:"required"`
	AdjustmentID string           `json:"adjustmentId" validate:"required"`
	Lines        []AdjustmentLine `json:"lines" validate:"required,min=1,dive"`
}

// WriteOffInput records stock removed as a loss (damage, theft, expiry).
type WriteOffInput struct {
	ChannelID    int64         `json:"channelId" validate:"required"`
	AdjustmentID string        `json:"adjustmentId" validate:"required"`
	Reason       string        `json:"reason"`
	Lines        []ConsumeLine `json:"lines" validate:"required,min=1,dive"`
}

// WriteOffResult reports the cost removed by a write-off.
type WriteOffResult struct {
	Allocations []BatchAllocation `json:"allocations"`
	Movements   []Movement        `json:"movements"`
	TotalLoss   int64             `json:"totalLoss"`
}

// ExpiryResult reports one expiry-scan pass over a channel.
type ExpiryResult struct {
	BatchesExpired int64             `json:"batchesExpired"`
	Allocations    []BatchAllocation `json:"allocations"`
	TotalLoss      int64             `json:"totalLoss"`
}

// MovementFilters narrows movement audit queries.
type MovementFilters struct {
	ChannelID  int64
	LocationID int64
	VariantID  string
	Type       MovementType
	From       *time.Time
	To         *time.Time
	Limit      int
}

// ValuationReconciliation compares open-batch value against the inventory
// asset balance carried in the ledger. Both sides are integer minor units, so
// any nonzero difference is drift, not rounding.
type ValuationReconciliation struct {
	ChannelID          int64     `json:"channelId"`
	LocationID         int64     `json:"locationId,omitempty"`
	InventoryValuation int64     `json:"inventoryValuation"`
	LedgerBalance      int64     `json:"ledgerBalance"`
	Difference         int64     `json:"difference"`
	Balanced           bool      `json:"balanced"`
	AsOf               time.Time `json:"asOf"`
}

// StockLevelCheck compares batch quantities with the batch-linked movement
// sum for one variant at one location.
type StockLevelCheck struct {
	VariantID   string `json:"variantId"`
	LocationID  int64  `json:"locationId"`
	BatchSum    int64  `json:"batchSum"`
	MovementSum int64  `json:"movementSum"`
	Difference  int64  `json:"difference"`
	Balanced    bool   `json:"balanced"`
}

// MovementAuditTrail is a filtered slice of the movement history with its
// observed date range.
type MovementAuditTrail struct {
	Movements      []Movement `json:"movements"`
	TotalMovements int        `json:"totalMovements"`
	From           time.Time  `json:"from"`
	To             time.Time  `json:"to"`
}

// ReconciliationReport is the channel-wide health view.
type ReconciliationReport struct {
	Valuation      ValuationReconciliation `json:"valuation"`
	TotalBatches   int64                   `json:"totalBatches"`
	TotalMovements int                     `json:"totalMovements"`
}
