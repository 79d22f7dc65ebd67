package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukapos/dukapos/internal/shared"
)

type passthroughRunner struct{}

func (passthroughRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memEntry struct {
	entry JournalEntry
	lines []JournalLine
}

type memLedgerRepo struct {
	accounts map[string]Account
	entries  map[string]*memEntry
	nextID   int64
}

func newMemLedgerRepo(channelID int64, codes ...string) *memLedgerRepo {
	r := &memLedgerRepo{
		accounts: make(map[string]Account),
		entries:  make(map[string]*memEntry),
		nextID:   1,
	}
	for i, code := range codes {
		r.accounts[code] = Account{ID: int64(i + 1), ChannelID: channelID, Code: code, Name: code}
	}
	return r
}

func entryKey(channelID int64, sourceType, sourceID string) string {
	return fmt.Sprintf("%d/%s/%s", channelID, sourceType, sourceID)
}

func (r *memLedgerRepo) EntryExists(_ context.Context, channelID int64, sourceType, sourceID string) (bool, error) {
	_, ok := r.entries[entryKey(channelID, sourceType, sourceID)]
	return ok, nil
}

func (r *memLedgerRepo) AccountsByCode(_ context.Context, _ int64, codes []string) (map[string]Account, error) {
	out := make(map[string]Account)
	for _, code := range codes {
		if a, ok := r.accounts[code]; ok {
			out[code] = a
		}
	}
	return out, nil
}

func (r *memLedgerRepo) InsertEntry(_ context.Context, entry JournalEntry) (int64, error) {
	key := entryKey(entry.ChannelID, entry.SourceType, entry.SourceID)
	if _, ok := r.entries[key]; ok {
		return 0, shared.ErrPostingExists
	}
	entry.ID = r.nextID
	r.nextID++
	r.entries[key] = &memEntry{entry: entry}
	return entry.ID, nil
}

func (r *memLedgerRepo) InsertLines(_ context.Context, entryID int64, lines []JournalLine) error {
	for _, e := range r.entries {
		if e.entry.ID == entryID {
			e.lines = append(e.lines, lines...)
			return nil
		}
	}
	return errors.New("entry not found")
}

func (r *memLedgerRepo) get(channelID int64, sourceType, sourceID string) *memEntry {
	return r.entries[entryKey(channelID, sourceType, sourceID)]
}

type recordingInvalidator struct {
	codes []string
}

func (ri *recordingInvalidator) InvalidateAccount(_ context.Context, _ int64, code string) error {
	ri.codes = append(ri.codes, code)
	return nil
}

func allAccountCodes() []string {
	return []string{
		AccountCashOnHand, AccountClearingMpesa, AccountClearingCredit, AccountClearingGeneric,
		AccountAccountsReceivable, AccountAccountsPayable, AccountSales, AccountPurchases,
		AccountSalesReturns, AccountExpenses, AccountInventoryAsset, AccountCOGS, AccountInventoryLoss,
	}
}

func newTestPostingService(repo *memLedgerRepo, inv Invalidator) *PostingService {
	svc := NewPostingService(passthroughRunner{}, repo, inv, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.WithNow(func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) })
	return svc
}

func TestPostPaymentWritesBalancedEntry(t *testing.T) {
	repo := newMemLedgerRepo(1, allAccountCodes()...)
	svc := newTestPostingService(repo, nil)

	err := svc.PostPayment(context.Background(), "pay-1", PaymentContext{
		ChannelID: 1,
		Amount:    15000,
		Method:    "cash-payment",
		OrderID:   "42",
		OrderCode: "ORD-42",
	})
	require.NoError(t, err)

	e := repo.get(1, "Payment", "pay-1")
	require.NotNil(t, e)
	require.Len(t, e.lines, 2)
	require.Equal(t, AccountCashOnHand, e.lines[0].AccountCode)
	require.Equal(t, int64(15000), e.lines[0].Debit)
	require.Equal(t, AccountSales, e.lines[1].AccountCode)
	require.Equal(t, int64(15000), e.lines[1].Credit)
}

func TestPostPaymentMethodRouting(t *testing.T) {
	cases := []struct {
		method string
		want   string
	}{
		{"cash-payment", AccountCashOnHand},
		{"mpesa-payment", AccountClearingMpesa},
		{"credit-payment", AccountClearingCredit},
		{"stripe-payment", AccountClearingGeneric},
		{"", AccountClearingGeneric},
	}
	for _, tc := range cases {
		repo := newMemLedgerRepo(1, allAccountCodes()...)
		svc := newTestPostingService(repo, nil)

		err := svc.PostPayment(context.Background(), "pay-1", PaymentContext{
			ChannelID: 1, Amount: 100, Method: tc.method, OrderCode: "ORD-1",
		})
		require.NoError(t, err)

		e := repo.get(1, "Payment", "pay-1")
		require.Equal(t, tc.want, e.lines[0].AccountCode, "method %q", tc.method)
	}
}

func TestPostPaymentIdempotent(t *testing.T) {
	repo := newMemLedgerRepo(1, allAccountCodes()...)
	svc := newTestPostingService(repo, nil)

	pc := PaymentContext{ChannelID: 1, Amount: 5000, Method: "cash-payment", OrderCode: "ORD-7"}
	require.NoError(t, svc.PostPayment(context.Background(), "pay-7", pc))
	require.NoError(t, svc.PostPayment(context.Background(), "pay-7", pc))

	require.Len(t, repo.entries, 1)
	require.Len(t, repo.get(1, "Payment", "pay-7").lines, 2)
}

// blindRepo never sees the row on the exists-check, forcing the insert to hit
// the duplicate key path like a concurrent poster would.
type blindRepo struct {
	*memLedgerRepo
}

func (r blindRepo) EntryExists(context.Context, int64, string, string) (bool, error) {
	return false, nil
}

func TestPostDuplicateInsertTreatedAsSuccess(t *testing.T) {
	mem := newMemLedgerRepo(1, allAccountCodes()...)
	_, err := mem.InsertEntry(context.Background(), JournalEntry{
		ChannelID: 1, SourceType: "Payment", SourceID: "pay-9",
	})
	require.NoError(t, err)

	svc := NewPostingService(passthroughRunner{}, blindRepo{mem}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err = svc.PostPayment(context.Background(), "pay-9", PaymentContext{
		ChannelID: 1, Amount: 100, Method: "cash-payment", OrderCode: "ORD-9",
	})
	require.NoError(t, err)
	require.Len(t, mem.entries, 1)
}

func TestPostMissingAccountIsConfigurationError(t *testing.T) {
	repo := newMemLedgerRepo(1, AccountCashOnHand) // no SALES account
	svc := newTestPostingService(repo, nil)

	err := svc.PostPayment(context.Background(), "pay-1", PaymentContext{
		ChannelID: 1, Amount: 100, Method: "cash-payment", OrderCode: "ORD-1",
	})
	require.ErrorIs(t, err, shared.ErrConfiguration)
	require.Empty(t, repo.entries)
}

func TestPostRejectsEmptySourceID(t *testing.T) {
	repo := newMemLedgerRepo(1, allAccountCodes()...)
	svc := newTestPostingService(repo, nil)

	err := svc.PostPayment(context.Background(), "", PaymentContext{
		ChannelID: 1, Amount: 100, Method: "cash-payment",
	})
	require.Error(t, err)
	require.Empty(t, repo.entries)
}

func TestPostCreditSaleRequiresCreditFlag(t *testing.T) {
	repo := newMemLedgerRepo(1, allAccountCodes()...)
	svc := newTestPostingService(repo, nil)

	err := svc.PostCreditSale(context.Background(), "order-1", SaleContext{
		ChannelID: 1, Amount: 100, OrderCode: "ORD-1", IsCreditSale: false,
	})
	require.Error(t, err)

	err = svc.PostCreditSale(context.Background(), "order-1", SaleContext{
		ChannelID: 1, Amount: 100, OrderCode: "ORD-1", IsCreditSale: true, CustomerID: "cust-1",
	})
	require.NoError(t, err)

	e := repo.get(1, "CreditSale", "order-1")
	require.Equal(t, AccountAccountsReceivable, e.lines[0].AccountCode)
	require.Equal(t, AccountSales, e.lines[1].AccountCode)
}

func TestPostPaymentAllocationCreditsReceivable(t *testing.T) {
	repo := newMemLedgerRepo(1, allAccountCodes()...)
	svc := newTestPostingService(repo, nil)

	err := svc.PostPaymentAllocation(context.Background(), "pay-3:order-5", PaymentContext{
		ChannelID: 1, Amount: 2500, Method: "mpesa-payment", OrderID: "5", OrderCode: "ORD-5", CustomerID: "cust-1",
	})
	require.NoError(t, err)

	e := repo.get(1, "PaymentAllocation", "pay-3:order-5")
	require.Equal(t, AccountClearingMpesa, e.lines[0].AccountCode)
	require.Equal(t, int64(2500), e.lines[0].Debit)
	require.Equal(t, AccountAccountsReceivable, e.lines[1].AccountCode)
	require.Equal(t, int64(2500), e.lines[1].Credit)
}

func TestPostInventoryPurchaseCreditSide(t *testing.T) {
	repo := newMemLedgerRepo(1, allAccountCodes()...)
	svc := newTestPostingService(repo, nil)

	legs := []CostLeg{{BatchID: 1, Quantity: 10, UnitCost: 500, TotalCost: 5000}}

	err := svc.PostInventoryPurchase(context.Background(), "purch-1", InventoryPurchaseContext{
		ChannelID: 1, PurchaseReference: "PO-1", TotalCost: 5000, IsCreditPurchase: true, Allocations: legs,
	})
	require.NoError(t, err)
	e := repo.get(1, "InventoryPurchase", "purch-1")
	require.Equal(t, AccountInventoryAsset, e.lines[0].AccountCode)
	require.Equal(t, AccountAccountsPayable, e.lines[1].AccountCode)

	err = svc.PostInventoryPurchase(context.Background(), "purch-2", InventoryPurchaseContext{
		ChannelID: 1, PurchaseReference: "PO-2", TotalCost: 5000, IsCreditPurchase: false, Allocations: legs,
	})
	require.NoError(t, err)
	e = repo.get(1, "InventoryPurchase", "purch-2")
	require.Equal(t, AccountCashOnHand, e.lines[1].AccountCode)
}

func TestPostInventorySaleCogs(t *testing.T) {
	repo := newMemLedgerRepo(1, allAccountCodes()...)
	svc := newTestPostingService(repo, nil)

	err := svc.PostInventorySaleCogs(context.Background(), "order-8", CogsContext{
		ChannelID: 1, OrderCode: "ORD-8", TotalCogs: 3200,
		Allocations: []CostLeg{
			{BatchID: 1, Quantity: 3, UnitCost: 400, TotalCost: 1200},
			{BatchID: 2, Quantity: 4, UnitCost: 500, TotalCost: 2000},
		},
	})
	require.NoError(t, err)

	e := repo.get(1, "InventorySaleCogs", "order-8")
	require.Equal(t, AccountCOGS, e.lines[0].AccountCode)
	require.Equal(t, int64(3200), e.lines[0].Debit)
	require.Equal(t, AccountInventoryAsset, e.lines[1].AccountCode)
	require.Equal(t, int64(3200), e.lines[1].Credit)

	batches, ok := e.lines[0].Meta["batches"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, batches, 2)
}

func TestPostInventoryWriteOff(t *testing.T) {
	repo := newMemLedgerRepo(1, allAccountCodes()...)
	svc := newTestPostingService(repo, nil)

	err := svc.PostInventoryWriteOff(context.Background(), "adj-2", WriteOffContext{
		ChannelID: 1, AdjustmentID: "adj-2", Reason: "damaged", TotalLoss: 900,
		Allocations: []CostLeg{{BatchID: 4, Quantity: 3, UnitCost: 300, TotalCost: 900}},
	})
	require.NoError(t, err)

	e := repo.get(1, "InventoryWriteOff", "adj-2")
	require.Equal(t, AccountInventoryLoss, e.lines[0].AccountCode)
	require.Equal(t, AccountInventoryAsset, e.lines[1].AccountCode)
}

func TestPostInvalidatesTouchedAccounts(t *testing.T) {
	repo := newMemLedgerRepo(1, allAccountCodes()...)
	inv := &recordingInvalidator{}
	svc := newTestPostingService(repo, inv)

	err := svc.PostRefund(context.Background(), "refund-1", RefundContext{
		ChannelID: 1, Amount: 700, OrderCode: "ORD-1", Method: "cash-payment",
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{AccountCashOnHand, AccountSalesReturns}, inv.codes)
}

func TestPostDuplicateSkipsInvalidation(t *testing.T) {
	repo := newMemLedgerRepo(1, allAccountCodes()...)
	inv := &recordingInvalidator{}
	svc := newTestPostingService(repo, inv)

	pc := PaymentContext{ChannelID: 1, Amount: 5000, Method: "cash-payment", OrderCode: "ORD-7"}
	require.NoError(t, svc.PostPayment(context.Background(), "pay-7", pc))
	first := len(inv.codes)
	require.NoError(t, svc.PostPayment(context.Background(), "pay-7", pc))

	// The no-op replay writes nothing, so it must not bump cache versions.
	require.Len(t, inv.codes, first)
}

func TestValidateBalanced(t *testing.T) {
	err := validateBalanced(PostingPayload{ChannelID: 1})
	require.ErrorIs(t, err, shared.ErrUnbalancedEntry)

	err = validateBalanced(PostingPayload{ChannelID: 1, Lines: []PostingLine{
		{AccountCode: AccountCashOnHand, Debit: 100},
		{AccountCode: AccountSales, Credit: 90},
	}})
	require.ErrorIs(t, err, shared.ErrUnbalancedEntry)

	err = validateBalanced(PostingPayload{ChannelID: 1, Lines: []PostingLine{
		{AccountCode: AccountCashOnHand, Debit: 100, Credit: 100},
		{AccountCode: AccountSales, Credit: 0},
	}})
	require.ErrorIs(t, err, shared.ErrUnbalancedEntry)

	err = validateBalanced(PostingPayload{ChannelID: 1, Lines: []PostingLine{
		{AccountCode: AccountCashOnHand, Debit: -100},
		{AccountCode: AccountSales, Credit: -100},
	}})
	require.ErrorIs(t, err, shared.ErrUnbalancedEntry)

	err = validateBalanced(PostingPayload{ChannelID: 1, Lines: []PostingLine{
		{AccountCode: AccountCashOnHand, Debit: 100},
		{AccountCode: AccountSales, Credit: 100},
	}})
	require.NoError(t, err)
}
