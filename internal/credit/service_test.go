package credit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukapos/dukapos/internal/shared"
)

type memCustomerStore struct {
	fields map[string]Fields
}

func newMemCustomerStore(customers ...string) *memCustomerStore {
	s := &memCustomerStore{fields: make(map[string]Fields)}
	for _, id := range customers {
		s.fields[id] = Fields{}
	}
	return s
}

func (s *memCustomerStore) GetCreditFields(_ context.Context, _ int64, customerID string) (Fields, error) {
	f, ok := s.fields[customerID]
	if !ok {
		return Fields{}, shared.ErrNotFound
	}
	return f, nil
}

func (s *memCustomerStore) SaveCreditFields(_ context.Context, _ int64, customerID string, fields Fields) error {
	if _, ok := s.fields[customerID]; !ok {
		return shared.ErrNotFound
	}
	s.fields[customerID] = fields
	return nil
}

type noTxRunner struct{}

func (noTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var creditNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestCreditService(store CustomerStore) *Service {
	svc := NewService(noTxRunner{}, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.WithNow(func() time.Time { return creditNow })
	return svc
}

func TestAvailableCreditArithmetic(t *testing.T) {
	store := newMemCustomerStore("cust-1")
	store.fields["cust-1"] = Fields{ApprovedForCredit: true, CreditLimit: 1000, OutstandingAmount: 200}
	svc := newTestCreditService(store)

	summary, err := svc.GetCreditSummary(context.Background(), 1, "cust-1")
	require.NoError(t, err)
	require.Equal(t, int64(800), summary.AvailableCredit)
}

func TestAvailableCreditUsesAbsoluteOutstanding(t *testing.T) {
	store := newMemCustomerStore("cust-1")
	store.fields["cust-1"] = Fields{ApprovedForCredit: true, CreditLimit: 1000, OutstandingAmount: -300}
	svc := newTestCreditService(store)

	summary, err := svc.GetCreditSummary(context.Background(), 1, "cust-1")
	require.NoError(t, err)
	require.Equal(t, int64(700), summary.AvailableCredit)
}

func TestAvailableCreditFloorsAtZero(t *testing.T) {
	store := newMemCustomerStore("cust-1")
	store.fields["cust-1"] = Fields{ApprovedForCredit: true, CreditLimit: 100, OutstandingAmount: -500}
	svc := newTestCreditService(store)

	summary, err := svc.GetCreditSummary(context.Background(), 1, "cust-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), summary.AvailableCredit)
}

func TestChargeAndReleaseRoundTrip(t *testing.T) {
	store := newMemCustomerStore("cust-1")
	store.fields["cust-1"] = Fields{ApprovedForCredit: true, CreditLimit: 1000, OutstandingAmount: 200}
	svc := newTestCreditService(store)
	ctx := context.Background()

	summary, err := svc.ApplyCreditCharge(ctx, 1, "cust-1", 150)
	require.NoError(t, err)
	require.Equal(t, int64(50), summary.OutstandingAmount)

	summary, err = svc.ReleaseCreditCharge(ctx, 1, "cust-1", 150)
	require.NoError(t, err)
	require.Equal(t, int64(200), summary.OutstandingAmount)
	require.Equal(t, int64(150), summary.LastRepaymentAmount)
	require.NotNil(t, summary.LastRepaymentDate)
	require.Equal(t, creditNow, *summary.LastRepaymentDate)
}

func TestChargeRequiresApproval(t *testing.T) {
	store := newMemCustomerStore("cust-1")
	store.fields["cust-1"] = Fields{CreditLimit: 1000}
	svc := newTestCreditService(store)

	_, err := svc.ApplyCreditCharge(context.Background(), 1, "cust-1", 100)
	require.ErrorIs(t, err, shared.ErrInvariantViolation)
}

func TestChargeAndReleaseRejectNonPositiveAmounts(t *testing.T) {
	store := newMemCustomerStore("cust-1")
	store.fields["cust-1"] = Fields{ApprovedForCredit: true}
	svc := newTestCreditService(store)
	ctx := context.Background()

	_, err := svc.ApplyCreditCharge(ctx, 1, "cust-1", 0)
	require.ErrorIs(t, err, shared.ErrInvariantViolation)
	_, err = svc.ReleaseCreditCharge(ctx, 1, "cust-1", -5)
	require.ErrorIs(t, err, shared.ErrInvariantViolation)
}

func TestApproveAndTermUpdates(t *testing.T) {
	store := newMemCustomerStore("cust-1")
	svc := newTestCreditService(store)
	ctx := context.Background()

	summary, err := svc.ApproveCredit(ctx, 1, "cust-1", true)
	require.NoError(t, err)
	require.True(t, summary.ApprovedForCredit)

	summary, err = svc.UpdateCreditLimit(ctx, 1, "cust-1", 5000)
	require.NoError(t, err)
	require.Equal(t, int64(5000), summary.CreditLimit)
	require.Equal(t, int64(5000), summary.AvailableCredit)

	summary, err = svc.UpdateCreditDuration(ctx, 1, "cust-1", 30)
	require.NoError(t, err)
	require.Equal(t, 30, summary.CreditDurationDays)

	_, err = svc.UpdateCreditLimit(ctx, 1, "cust-1", -1)
	require.ErrorIs(t, err, shared.ErrInvariantViolation)

	_, err = svc.GetCreditSummary(ctx, 1, "missing")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
