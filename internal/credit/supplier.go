package credit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukapos/dukapos/internal/shared"
)

// SupplierFields is the stored supplier credit terms. Unlike the customer
// side there is no stored outstanding balance: supplier exposure is read from
// the payables ledger, which is the single source of truth for what the
// store owes.
type SupplierFields struct {
	ApprovedForCredit   bool       `json:"approvedForCredit"`
	CreditLimit         int64      `json:"creditLimit"`
	CreditDurationDays  int        `json:"creditDurationDays"`
	LastRepaymentDate   *time.Time `json:"lastRepaymentDate,omitempty"`
	LastRepaymentAmount int64      `json:"lastRepaymentAmount"`
}

// SupplierSummary is the derived view over a supplier's credit state.
type SupplierSummary struct {
	SupplierID          string     `json:"supplierId"`
	ApprovedForCredit   bool       `json:"approvedForCredit"`
	CreditLimit         int64      `json:"creditLimit"`
	OutstandingAmount   int64      `json:"outstandingAmount"`
	AvailableCredit     int64      `json:"availableCredit"`
	CreditDurationDays  int        `json:"creditDurationDays"`
	LastRepaymentDate   *time.Time `json:"lastRepaymentDate,omitempty"`
	LastRepaymentAmount int64      `json:"lastRepaymentAmount"`
}

// SupplierStore reads and writes credit terms on the supplier record.
type SupplierStore interface {
	GetSupplierCreditFields(ctx context.Context, channelID int64, supplierID string) (SupplierFields, error)
	SaveSupplierCreditFields(ctx context.Context, channelID int64, supplierID string, fields SupplierFields) error
}

// PayableBalanceReader reads supplier exposure from the ledger.
type PayableBalanceReader interface {
	GetSupplierBalance(ctx context.Context, channelID int64, supplierID string) (int64, error)
}

// SupplierService exposes supplier credit operations.
type SupplierService struct {
	runner   TxRunner
	store    SupplierStore
	payables PayableBalanceReader
	logger   *slog.Logger
	now      func() time.Time
}

// NewSupplierService builds SupplierService.
func NewSupplierService(runner TxRunner, store SupplierStore, payables PayableBalanceReader, logger *slog.Logger) *SupplierService {
	return &SupplierService{runner: runner, store: store, payables: payables, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *SupplierService) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func summarizeSupplier(supplierID string, f SupplierFields, outstanding int64) SupplierSummary {
	abs := outstanding
	if abs < 0 {
		abs = -abs
	}
	available := f.CreditLimit - abs
	if available < 0 {
		available = 0
	}
	return SupplierSummary{
		SupplierID:          supplierID,
		ApprovedForCredit:   f.ApprovedForCredit,
		CreditLimit:         f.CreditLimit,
		OutstandingAmount:   outstanding,
		AvailableCredit:     available,
		CreditDurationDays:  f.CreditDurationDays,
		LastRepaymentDate:   f.LastRepaymentDate,
		LastRepaymentAmount: f.LastRepaymentAmount,
	}
}

// GetSupplierCreditSummary returns the derived credit view for a supplier,
// with the outstanding exposure read from the payables ledger.
func (s *SupplierService) GetSupplierCreditSummary(ctx context.Context, channelID int64, supplierID string) (SupplierSummary, error) {
	fields, err := s.store.GetSupplierCreditFields(ctx, channelID, supplierID)
	if err != nil {
		return SupplierSummary{}, err
	}
	outstanding, err := s.payables.GetSupplierBalance(ctx, channelID, supplierID)
	if err != nil {
		return SupplierSummary{}, err
	}
	return summarizeSupplier(supplierID, fields, outstanding), nil
}

// ApproveSupplierCredit marks a supplier as extending credit terms.
func (s *SupplierService) ApproveSupplierCredit(ctx context.Context, channelID int64, supplierID string, approved bool) (SupplierSummary, error) {
	return s.mutate(ctx, channelID, supplierID, func(f *SupplierFields) error {
		f.ApprovedForCredit = approved
		return nil
	})
}

// UpdateSupplierCreditLimit sets how much the store may owe the supplier.
func (s *SupplierService) UpdateSupplierCreditLimit(ctx context.Context, channelID int64, supplierID string, limit int64) (SupplierSummary, error) {
	if limit < 0 {
		return SupplierSummary{}, fmt.Errorf("%w: credit limit must be non-negative", shared.ErrInvariantViolation)
	}
	return s.mutate(ctx, channelID, supplierID, func(f *SupplierFields) error {
		f.CreditLimit = limit
		return nil
	})
}

// UpdateSupplierCreditDuration sets how many days a credit purchase may stay
// unpaid.
func (s *SupplierService) UpdateSupplierCreditDuration(ctx context.Context, channelID int64, supplierID string, days int) (SupplierSummary, error) {
	if days < 0 {
		return SupplierSummary{}, fmt.Errorf("%w: credit duration must be non-negative", shared.ErrInvariantViolation)
	}
	return s.mutate(ctx, channelID, supplierID, func(f *SupplierFields) error {
		f.CreditDurationDays = days
		return nil
	})
}

// RecordSupplierRepayment stamps the last-repayment fields after a supplier
// payment. The exposure itself moves through the supplier-payment posting;
// this only keeps the tracking fields current.
func (s *SupplierService) RecordSupplierRepayment(ctx context.Context, channelID int64, supplierID string, amount int64) (SupplierSummary, error) {
	if amount <= 0 {
		return SupplierSummary{}, fmt.Errorf("%w: repayment amount must be positive", shared.ErrInvariantViolation)
	}
	return s.mutate(ctx, channelID, supplierID, func(f *SupplierFields) error {
		now := s.now().UTC()
		f.LastRepaymentDate = &now
		f.LastRepaymentAmount = amount
		return nil
	})
}

func (s *SupplierService) mutate(ctx context.Context, channelID int64, supplierID string, apply func(*SupplierFields) error) (SupplierSummary, error) {
	var fields SupplierFields
	err := s.runner.WithTx(ctx, func(ctx context.Context) error {
		var err error
		fields, err = s.store.GetSupplierCreditFields(ctx, channelID, supplierID)
		if err != nil {
			return err
		}
		if err := apply(&fields); err != nil {
			return err
		}
		return s.store.SaveSupplierCreditFields(ctx, channelID, supplierID, fields)
	})
	if err != nil {
		s.logger.Error("supplier credit mutation failed",
			slog.String("supplier_id", supplierID),
			slog.Any("error", err))
		return SupplierSummary{}, err
	}
	outstanding, err := s.payables.GetSupplierBalance(ctx, channelID, supplierID)
	if err != nil {
		return SupplierSummary{}, err
	}
	return summarizeSupplier(supplierID, fields, outstanding), nil
}
