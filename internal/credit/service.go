// Package credit manages store-credit terms for customers. Credit state lives
// in the customer's extensible attribute bag; this service is the only writer
// of those fields and derives the summary callers see.
package credit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukapos/dukapos/internal/shared"
)

// Fields is the raw credit state stored on a customer. Outstanding is a
// signed running balance: charges subtract, releases (repayments) add.
type Fields struct {
	ApprovedForCredit   bool       `json:"approvedForCredit"`
	CreditLimit         int64      `json:"creditLimit"`
	OutstandingAmount   int64      `json:"outstandingAmount"`
	CreditDurationDays  int        `json:"creditDurationDays"`
	LastRepaymentDate   *time.Time `json:"lastRepaymentDate,omitempty"`
	LastRepaymentAmount int64      `json:"lastRepaymentAmount"`
}

// Summary is the derived view over a customer's credit state.
type Summary struct {
	CustomerID          string     `json:"customerId"`
	ApprovedForCredit   bool       `json:"approvedForCredit"`
	CreditLimit         int64      `json:"creditLimit"`
	OutstandingAmount   int64      `json:"outstandingAmount"`
	AvailableCredit     int64      `json:"availableCredit"`
	CreditDurationDays  int        `json:"creditDurationDays"`
	LastRepaymentDate   *time.Time `json:"lastRepaymentDate,omitempty"`
	LastRepaymentAmount int64      `json:"lastRepaymentAmount"`
}

// CustomerStore reads and writes credit fields on the customer record.
type CustomerStore interface {
	GetCreditFields(ctx context.Context, channelID int64, customerID string) (Fields, error)
	SaveCreditFields(ctx context.Context, channelID int64, customerID string, fields Fields) error
}

// TxRunner wraps each read-modify-write in one transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service exposes credit operations.
type Service struct {
	runner TxRunner
	store  CustomerStore
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(runner TxRunner, store CustomerStore, logger *slog.Logger) *Service {
	return &Service{runner: runner, store: store, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func summarize(customerID string, f Fields) Summary {
	outstanding := f.OutstandingAmount
	if outstanding < 0 {
		outstanding = -outstanding
	}
	available := f.CreditLimit - outstanding
	if available < 0 {
		available = 0
	}
	return Summary{
		CustomerID:          customerID,
		ApprovedForCredit:   f.ApprovedForCredit,
		CreditLimit:         f.CreditLimit,
		OutstandingAmount:   f.OutstandingAmount,
		AvailableCredit:     available,
		CreditDurationDays:  f.CreditDurationDays,
		LastRepaymentDate:   f.LastRepaymentDate,
		LastRepaymentAmount: f.LastRepaymentAmount,
	}
}

// GetCreditSummary returns the derived credit view for a customer.
func (s *Service) GetCreditSummary(ctx context.Context, channelID int64, customerID string) (Summary, error) {
	fields, err := s.store.GetCreditFields(ctx, channelID, customerID)
	if err != nil {
		return Summary{}, err
	}
	return summarize(customerID, fields), nil
}

// ApproveCredit marks a customer as approved for credit purchases.
func (s *Service) ApproveCredit(ctx context.Context, channelID int64, customerID string, approved bool) (Summary, error) {
	return s.mutate(ctx, channelID, customerID, func(f *Fields) error {
		f.ApprovedForCredit = approved
		return nil
	})
}

// UpdateCreditLimit sets a customer's credit limit in minor units.
func (s *Service) UpdateCreditLimit(ctx context.Context, channelID int64, customerID string, limit int64) (Summary, error) {
	if limit < 0 {
		return Summary{}, fmt.Errorf("%w: credit limit must be non-negative", shared.ErrInvariantViolation)
	}
	return s.mutate(ctx, channelID, customerID, func(f *Fields) error {
		f.CreditLimit = limit
		return nil
	})
}

// UpdateCreditDuration sets how many days a credit sale may stay unpaid.
func (s *Service) UpdateCreditDuration(ctx context.Context, channelID int64, customerID string, days int) (Summary, error) {
	if days < 0 {
		return Summary{}, fmt.Errorf("%w: credit duration must be non-negative", shared.ErrInvariantViolation)
	}
	return s.mutate(ctx, channelID, customerID, func(f *Fields) error {
		f.CreditDurationDays = days
		return nil
	})
}

// ApplyCreditCharge records a credit purchase against the customer's running
// balance. Charges subtract from the outstanding amount.
func (s *Service) ApplyCreditCharge(ctx context.Context, channelID int64, customerID string, amount int64) (Summary, error) {
	if amount <= 0 {
		return Summary{}, fmt.Errorf("%w: charge amount must be positive", shared.ErrInvariantViolation)
	}
	return s.mutate(ctx, channelID, customerID, func(f *Fields) error {
		if !f.ApprovedForCredit {
			return fmt.Errorf("%w: customer %s is not approved for credit", shared.ErrInvariantViolation, customerID)
		}
		f.OutstandingAmount -= amount
		return nil
	})
}

// ReleaseCreditCharge records a repayment: the outstanding balance moves back
// by the released amount and the last-repayment fields are stamped.
func (s *Service) ReleaseCreditCharge(ctx context.Context, channelID int64, customerID string, amount int64) (Summary, error) {
	if amount <= 0 {
		return Summary{}, fmt.Errorf("%w: release amount must be positive", shared.ErrInvariantViolation)
	}
	return s.mutate(ctx, channelID, customerID, func(f *Fields) error {
		now := s.now().UTC()
		f.OutstandingAmount += amount
		f.LastRepaymentDate = &now
		f.LastRepaymentAmount = amount
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, channelID int64, customerID string, apply func(*Fields) error) (Summary, error) {
	var result Summary
	err := s.runner.WithTx(ctx, func(ctx context.Context) error {
		fields, err := s.store.GetCreditFields(ctx, channelID, customerID)
		if err != nil {
			return err
		}
		if err := apply(&fields); err != nil {
			return err
		}
		if err := s.store.SaveCreditFields(ctx, channelID, customerID, fields); err != nil {
			return err
		}
		result = summarize(customerID, fields)
		return nil
	})
	if err != nil {
		s.logger.Error("credit mutation failed",
			slog.String("customer_id", customerID),
			slog.Any("error", err))
		return Summary{}, err
	}
	return result, nil
}
