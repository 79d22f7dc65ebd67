// Package payments allocates incoming customer payments across open orders
// and records the ledger effect of every allocation.
package payments

import "time"

// Order is the slice of the order read-model this service needs: totals,
// settled sums and age. The order lifecycle itself is owned elsewhere.
type Order struct {
	ID           string
	Code         string
	ChannelID    int64
	CustomerID   string
	Total        int64
	SettledTotal int64
	State        string
	CreatedAt    time.Time
}

// AmountOwed is the unpaid remainder of the order.
func (o Order) AmountOwed() int64 {
	owed := o.Total - o.SettledTotal
	if owed < 0 {
		return 0
	}
	return owed
}

// AllocationInput describes one incoming payment to spread across orders.
// OrderIDs optionally restricts allocation to a subset of the customer's
// unpaid orders.
type AllocationInput struct {
	ChannelID     int64    `json:"channelId" validate:"required"`
	CustomerID    string   `json:"customerId" validate:"required"`
	PaymentID     string   `json:"paymentId" validate:"required"`
	Method        string   `json:"method"`
	PaymentAmount int64    `json:"paymentAmount" validate:"required,gt=0"`
	OrderIDs      []string `json:"orderIds,omitempty"`
}

// OrderAllocation is one order's share of a payment.
type OrderAllocation struct {
	OrderID    string `json:"orderId"`
	OrderCode  string `json:"orderCode"`
	AmountOwed int64  `json:"amountOwed"`
	Allocated  int64  `json:"allocated"`
}

// AllocationResult reports how a payment was spread.
// sum(Allocated) + RemainingPayment always equals the input amount.
type AllocationResult struct {
	Allocations      []OrderAllocation `json:"allocations"`
	RemainingPayment int64             `json:"remainingPayment"`
	CustomerBalance  int64             `json:"customerBalance"`
}
