package payments

import (
	"context"
	"log/slog"

	"github.com/dukapos/dukapos/internal/ledger"
)

// OrderStore is the order read/write surface the allocator needs.
type OrderStore interface {
	// GetUnpaidOrders returns the customer's orders in an open or fulfilled
	// state whose settled-payment sum is below their total, oldest first.
	// A non-empty orderIDs restricts the result to that subset.
	GetUnpaidOrders(ctx context.Context, channelID int64, customerID string, orderIDs []string) ([]Order, error)
	// RecordSettledPayment appends a settled payment row against one order.
	RecordSettledPayment(ctx context.Context, orderID, paymentID string, amount int64) error
	// GetOutstandingTotal sums the remaining owed amount across all of the
	// customer's unpaid orders.
	GetOutstandingTotal(ctx context.Context, channelID int64, customerID string) (int64, error)
}

// LedgerPoster records one allocation entry per order paid down.
type LedgerPoster interface {
	PostPaymentAllocation(ctx context.Context, sourceID string, pc ledger.PaymentContext) error
}

// TxRunner opens the transaction an allocation executes in.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service spreads incoming payments across unpaid orders, oldest first.
type Service struct {
	runner TxRunner
	orders OrderStore
	poster LedgerPoster
	logger *slog.Logger
}

// NewService builds Service.
func NewService(runner TxRunner, orders OrderStore, poster LedgerPoster, logger *slog.Logger) *Service {
	return &Service{runner: runner, orders: orders, poster: poster, logger: logger}
}

// AllocatePaymentToOrders walks the customer's unpaid orders oldest-first,
// allocating min(remaining, amountOwed) to each until the payment or the
// order list is exhausted. Every allocation settles a payment on the order
// and posts a ledger entry keyed by "{paymentID}:{orderID}", so a retried
// allocation run cannot double-post. No order is ever over-paid.
func (s *Service) AllocatePaymentToOrders(ctx context.Context, input AllocationInput) (AllocationResult, error) {
	result := AllocationResult{RemainingPayment: input.PaymentAmount}
	err := s.runner.WithTx(ctx, func(ctx context.Context) error {
		orders, err := s.orders.GetUnpaidOrders(ctx, input.ChannelID, input.CustomerID, input.OrderIDs)
		if err != nil {
			return err
		}

		for _, order := range orders {
			if result.RemainingPayment == 0 {
				break
			}
			owed := order.AmountOwed()
			if owed <= 0 {
				continue
			}
			allocated := min(result.RemainingPayment, owed)

			if err := s.orders.RecordSettledPayment(ctx, order.ID, input.PaymentID, allocated); err != nil {
				return err
			}
			if err := s.poster.PostPaymentAllocation(ctx, input.PaymentID+":"+order.ID, ledger.PaymentContext{
				ChannelID:  input.ChannelID,
				Amount:     allocated,
				Method:     input.Method,
				OrderID:    order.ID,
				OrderCode:  order.Code,
				CustomerID: input.CustomerID,
			}); err != nil {
				return err
			}

			result.Allocations = append(result.Allocations, OrderAllocation{
				OrderID:    order.ID,
				OrderCode:  order.Code,
				AmountOwed: owed,
				Allocated:  allocated,
			})
			result.RemainingPayment -= allocated
		}

		balance, err := s.orders.GetOutstandingTotal(ctx, input.ChannelID, input.CustomerID)
		if err != nil {
			return err
		}
		result.CustomerBalance = balance
		return nil
	})
	if err != nil {
		s.logger.Error("payment allocation failed",
			slog.String("payment_id", input.PaymentID),
			slog.String("customer_id", input.CustomerID),
			slog.Any("error", err))
		return AllocationResult{}, err
	}

	s.logger.Info("payment allocated",
		slog.String("payment_id", input.PaymentID),
		slog.Int("orders", len(result.Allocations)),
		slog.Int64("remaining", result.RemainingPayment))
	return result, nil
}
