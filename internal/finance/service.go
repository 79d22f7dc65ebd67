// Package finance is the business-vocabulary façade over the ledger. Internal
// components exchange integer minor currency units; this service is the one
// place those are converted to display units and formatted for operators.
package finance

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dukapos/dukapos/internal/ledger"
)

// Poster is the ledger write surface the façade drives.
type Poster interface {
	PostPayment(ctx context.Context, sourceID string, pc ledger.PaymentContext) error
	PostCreditSale(ctx context.Context, sourceID string, sc ledger.SaleContext) error
	PostPaymentAllocation(ctx context.Context, sourceID string, pc ledger.PaymentContext) error
	PostSupplierPurchase(ctx context.Context, sourceID string, pc ledger.PurchaseContext) error
	PostSupplierPayment(ctx context.Context, sourceID string, sc ledger.SupplierPaymentContext) error
	PostRefund(ctx context.Context, sourceID string, rc ledger.RefundContext) error
}

// Querier is the ledger read surface the façade aggregates over.
type Querier interface {
	GetCustomerBalance(ctx context.Context, channelID int64, customerID string) (int64, error)
	GetSupplierBalance(ctx context.Context, channelID int64, supplierID string) (int64, error)
	GetSalesTotal(ctx context.Context, channelID int64, from, to *time.Time) (int64, error)
	GetPurchaseTotal(ctx context.Context, channelID int64, from, to *time.Time) (int64, error)
	GetExpenseTotal(ctx context.Context, channelID int64, from, to *time.Time) (int64, error)
}

// Amount is one monetary value in both representations.
type Amount struct {
	Minor     int64   `json:"minor"`
	Display   float64 `json:"display"`
	Formatted string  `json:"formatted"`
}

// Service translates business vocabulary into ledger operations.
type Service struct {
	poster  Poster
	queries Querier
	printer *message.Printer
	logger  *slog.Logger
}

// NewService builds the façade.
func NewService(poster Poster, queries Querier, logger *slog.Logger) *Service {
	return &Service{
		poster:  poster,
		queries: queries,
		printer: message.NewPrinter(language.English),
		logger:  logger,
	}
}

// displayAmount converts minor units to display units by dividing by 100.
func (s *Service) displayAmount(minor int64) Amount {
	display := float64(minor) / 100
	return Amount{
		Minor:     minor,
		Display:   display,
		Formatted: s.printer.Sprintf("%.2f", display),
	}
}

// RecordPayment posts a settled customer payment.
func (s *Service) RecordPayment(ctx context.Context, paymentID string, pc ledger.PaymentContext) error {
	return s.poster.PostPayment(ctx, paymentID, pc)
}

// RecordCreditSale posts an order fulfilled on credit.
func (s *Service) RecordCreditSale(ctx context.Context, orderID string, sc ledger.SaleContext) error {
	return s.poster.PostCreditSale(ctx, orderID, sc)
}

// RecordPaymentAllocation posts one payment-to-order allocation.
func (s *Service) RecordPaymentAllocation(ctx context.Context, allocationID string, pc ledger.PaymentContext) error {
	return s.poster.PostPaymentAllocation(ctx, allocationID, pc)
}

// RecordSupplierPurchase posts a purchase made on supplier credit.
func (s *Service) RecordSupplierPurchase(ctx context.Context, purchaseID string, pc ledger.PurchaseContext) error {
	return s.poster.PostSupplierPurchase(ctx, purchaseID, pc)
}

// RecordSupplierPayment posts a payment to a supplier.
func (s *Service) RecordSupplierPayment(ctx context.Context, paymentID string, sc ledger.SupplierPaymentContext) error {
	return s.poster.PostSupplierPayment(ctx, paymentID, sc)
}

// RecordRefund posts money returned to a customer.
func (s *Service) RecordRefund(ctx context.Context, refundID string, rc ledger.RefundContext) error {
	return s.poster.PostRefund(ctx, refundID, rc)
}

// GetCustomerBalance returns what a customer owes, in display units.
func (s *Service) GetCustomerBalance(ctx context.Context, channelID int64, customerID string) (Amount, error) {
	minor, err := s.queries.GetCustomerBalance(ctx, channelID, customerID)
	if err != nil {
		return Amount{}, err
	}
	return s.displayAmount(minor), nil
}

// GetSupplierBalance returns what the store owes a supplier, in display units.
func (s *Service) GetSupplierBalance(ctx context.Context, channelID int64, supplierID string) (Amount, error) {
	minor, err := s.queries.GetSupplierBalance(ctx, channelID, supplierID)
	if err != nil {
		return Amount{}, err
	}
	return s.displayAmount(minor), nil
}

// Summary is a channel's headline financial picture over a period.
type Summary struct {
	ChannelID   int64      `json:"channelId"`
	From        *time.Time `json:"from,omitempty"`
	To          *time.Time `json:"to,omitempty"`
	Sales       Amount     `json:"sales"`
	Purchases   Amount     `json:"purchases"`
	Expenses    Amount     `json:"expenses"`
	GrossMargin Amount     `json:"grossMargin"`
}

// GetSummary aggregates sales, purchases and expenses for a period.
func (s *Service) GetSummary(ctx context.Context, channelID int64, from, to *time.Time) (Summary, error) {
	sales, err := s.queries.GetSalesTotal(ctx, channelID, from, to)
	if err != nil {
		return Summary{}, err
	}
	purchases, err := s.queries.GetPurchaseTotal(ctx, channelID, from, to)
	if err != nil {
		return Summary{}, err
	}
	expenses, err := s.queries.GetExpenseTotal(ctx, channelID, from, to)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		ChannelID:   channelID,
		From:        from,
		To:          to,
		Sales:       s.displayAmount(sales),
		Purchases:   s.displayAmount(purchases),
		Expenses:    s.displayAmount(expenses),
		GrossMargin: s.displayAmount(sales - purchases - expenses),
	}, nil
}
