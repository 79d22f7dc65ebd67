// Package ledger implements the double-entry posting engine. It is the
// single source of financial truth: every economic event is recorded as a
// balanced set of debit/credit lines, keyed so that retries never post twice.
package ledger

import (
	"time"
)

// Account codes used by the posting policy. Accounts are provisioned per
// channel when a store is onboarded.
const (
	AccountCashOnHand         = "CASH_ON_HAND"
	AccountClearingMpesa      = "CLEARING_MPESA"
	AccountClearingCredit     = "CLEARING_CREDIT"
	AccountClearingGeneric    = "CLEARING_GENERIC"
	AccountAccountsReceivable = "ACCOUNTS_RECEIVABLE"
	AccountAccountsPayable    = "ACCOUNTS_PAYABLE"
	AccountSales              = "SALES"
	AccountPurchases          = "PURCHASES"
	AccountSalesReturns       = "SALES_RETURNS"
	AccountExpenses           = "EXPENSES"
	AccountInventoryAsset     = "INVENTORY_ASSET"
	AccountCOGS               = "COGS"
	AccountInventoryLoss      = "INVENTORY_LOSS"
)

// Account is one chart-of-accounts row within a channel.
type Account struct {
	ID        int64
	ChannelID int64
	Code      string
	Name      string
	CreatedAt time.Time
}

// JournalEntry is the header of one posted economic event. The pair
// (ChannelID, SourceType, SourceID) is the idempotency key: at most one entry
// exists per key.
type JournalEntry struct {
	ID         int64
	ChannelID  int64
	EntryDate  time.Time
	Memo       string
	SourceType string
	SourceID   string
	CreatedAt  time.Time
	Lines      []JournalLine
}

// JournalLine is one debit or credit leg. Amounts are integer minor currency
// units; exactly one of Debit/Credit is non-zero.
type JournalLine struct {
	ID          int64
	EntryID     int64
	ChannelID   int64
	AccountID   int64
	AccountCode string
	Debit       int64
	Credit      int64
	Meta        map[string]any
}

// PostingLine is one template leg before account resolution.
type PostingLine struct {
	AccountCode string
	Debit       int64
	Credit      int64
	Meta        map[string]any
}

// PostingPayload carries a full entry template into the posting engine.
type PostingPayload struct {
	ChannelID int64
	EntryDate time.Time
	Memo      string
	Lines     []PostingLine
}

// PaymentContext describes a customer payment settlement or allocation.
type PaymentContext struct {
	ChannelID  int64
	Amount     int64
	Method     string
	OrderID    string
	OrderCode  string
	CustomerID string
}

// SaleContext describes an order fulfilled on credit.
type SaleContext struct {
	ChannelID    int64
	Amount       int64
	OrderID      string
	OrderCode    string
	CustomerID   string
	IsCreditSale bool
}

// PurchaseContext describes a supplier purchase.
type PurchaseContext struct {
	ChannelID         int64
	Amount            int64
	PurchaseID        string
	PurchaseReference string
	SupplierID        string
	IsCreditPurchase  bool
}

// SupplierPaymentContext describes paying down a supplier balance.
type SupplierPaymentContext struct {
	ChannelID         int64
	Amount            int64
	PurchaseID        string
	PurchaseReference string
	SupplierID        string
	Method            string
}

// RefundContext describes returning money to a customer.
type RefundContext struct {
	ChannelID         int64
	Amount            int64
	OrderID           string
	OrderCode         string
	OriginalPaymentID string
	Method            string
}

// CostLeg is one batch-level cost component of an inventory posting.
type CostLeg struct {
	BatchID   int64
	Quantity  int64
	UnitCost  int64
	TotalCost int64
}

// InventoryPurchaseContext describes batches received from a supplier.
type InventoryPurchaseContext struct {
	ChannelID         int64
	PurchaseID        string
	PurchaseReference string
	SupplierID        string
	TotalCost         int64
	IsCreditPurchase  bool
	Allocations       []CostLeg
}

// CogsContext describes the cost allocated to a sale.
type CogsContext struct {
	ChannelID   int64
	OrderID     string
	OrderCode   string
	CustomerID  string
	TotalCogs   int64
	Allocations []CostLeg
}

// WriteOffContext describes inventory value lost to damage or expiry.
type WriteOffContext struct {
	ChannelID    int64
	AdjustmentID string
	Reason       string
	TotalLoss    int64
	Allocations  []CostLeg
}
