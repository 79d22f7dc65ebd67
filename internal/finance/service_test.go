package finance

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukapos/dukapos/internal/ledger"
)

type stubPoster struct {
	calls []string
}

func (p *stubPoster) PostPayment(_ context.Context, sourceID string, _ ledger.PaymentContext) error {
	p.calls = append(p.calls, "payment:"+sourceID)
	return nil
}

func (p *stubPoster) PostCreditSale(_ context.Context, sourceID string, _ ledger.SaleContext) error {
	p.calls = append(p.calls, "creditSale:"+sourceID)
	return nil
}

func (p *stubPoster) PostPaymentAllocation(_ context.Context, sourceID string, _ ledger.PaymentContext) error {
	p.calls = append(p.calls, "allocation:"+sourceID)
	return nil
}

func (p *stubPoster) PostSupplierPurchase(_ context.Context, sourceID string, _ ledger.PurchaseContext) error {
	p.calls = append(p.calls, "supplierPurchase:"+sourceID)
	return nil
}

func (p *stubPoster) PostSupplierPayment(_ context.Context, sourceID string, _ ledger.SupplierPaymentContext) error {
	p.calls = append(p.calls, "supplierPayment:"+sourceID)
	return nil
}

func (p *stubPoster) PostRefund(_ context.Context, sourceID string, _ ledger.RefundContext) error {
	p.calls = append(p.calls, "refund:"+sourceID)
	return nil
}

type stubQuerier struct {
	customer  int64
	supplier  int64
	sales     int64
	purchases int64
	expenses  int64
}

func (q stubQuerier) GetCustomerBalance(context.Context, int64, string) (int64, error) {
	return q.customer, nil
}

func (q stubQuerier) GetSupplierBalance(context.Context, int64, string) (int64, error) {
	return q.supplier, nil
}

func (q stubQuerier) GetSalesTotal(context.Context, int64, *time.Time, *time.Time) (int64, error) {
	return q.sales, nil
}

func (q stubQuerier) GetPurchaseTotal(context.Context, int64, *time.Time, *time.Time) (int64, error) {
	return q.purchases, nil
}

func (q stubQuerier) GetExpenseTotal(context.Context, int64, *time.Time, *time.Time) (int64, error) {
	return q.expenses, nil
}

func newTestService(poster Poster, queries Querier) *Service {
	return NewService(poster, queries, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCustomerBalanceConvertsToDisplayUnits(t *testing.T) {
	svc := newTestService(&stubPoster{}, stubQuerier{customer: 123456})

	amount, err := svc.GetCustomerBalance(context.Background(), 1, "cust-1")
	require.NoError(t, err)
	require.Equal(t, int64(123456), amount.Minor)
	require.InDelta(t, 1234.56, amount.Display, 0.0001)
	require.Equal(t, "1,234.56", amount.Formatted)
}

func TestSupplierBalanceConversion(t *testing.T) {
	svc := newTestService(&stubPoster{}, stubQuerier{supplier: 50})

	amount, err := svc.GetSupplierBalance(context.Background(), 1, "sup-1")
	require.NoError(t, err)
	require.InDelta(t, 0.50, amount.Display, 0.0001)
	require.Equal(t, "0.50", amount.Formatted)
}

func TestSummaryComputesGrossMargin(t *testing.T) {
	svc := newTestService(&stubPoster{}, stubQuerier{sales: 100000, purchases: 40000, expenses: 15000})

	summary, err := svc.GetSummary(context.Background(), 1, nil, nil)
	require.NoError(t, err)
	require.Equal(t, int64(100000), summary.Sales.Minor)
	require.Equal(t, int64(45000), summary.GrossMargin.Minor)
	require.InDelta(t, 450.00, summary.GrossMargin.Display, 0.0001)
}

func TestWriteMethodsDelegateToPoster(t *testing.T) {
	poster := &stubPoster{}
	svc := newTestService(poster, stubQuerier{})
	ctx := context.Background()

	require.NoError(t, svc.RecordPayment(ctx, "p1", ledger.PaymentContext{}))
	require.NoError(t, svc.RecordCreditSale(ctx, "o1", ledger.SaleContext{IsCreditSale: true}))
	require.NoError(t, svc.RecordPaymentAllocation(ctx, "a1", ledger.PaymentContext{}))
	require.NoError(t, svc.RecordSupplierPurchase(ctx, "sp1", ledger.PurchaseContext{IsCreditPurchase: true}))
	require.NoError(t, svc.RecordSupplierPayment(ctx, "spay1", ledger.SupplierPaymentContext{}))
	require.NoError(t, svc.RecordRefund(ctx, "r1", ledger.RefundContext{}))

	require.Equal(t, []string{
		"payment:p1", "creditSale:o1", "allocation:a1",
		"supplierPurchase:sp1", "supplierPayment:spay1", "refund:r1",
	}, poster.calls)
}
