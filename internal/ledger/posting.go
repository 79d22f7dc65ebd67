package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dukapos/dukapos/internal/platform/db"
	"github.com/dukapos/dukapos/internal/shared"
)

// TxRunner opens the transaction a posting executes in. Nested calls join the
// caller's transaction, which is how inventory operations post their ledger
// legs atomically with batch mutations.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RepositoryPort abstracts journal persistence for the posting engine.
type RepositoryPort interface {
	EntryExists(ctx context.Context, channelID int64, sourceType, sourceID string) (bool, error)
	AccountsByCode(ctx context.Context, channelID int64, codes []string) (map[string]Account, error)
	InsertEntry(ctx context.Context, entry JournalEntry) (int64, error)
	InsertLines(ctx context.Context, entryID int64, lines []JournalLine) error
}

// Invalidator drops cached balances for an account after a posting.
type Invalidator interface {
	InvalidateAccount(ctx context.Context, channelID int64, accountCode string) error
}

// NopInvalidator satisfies Invalidator when no query cache is wired.
type NopInvalidator struct{}

// InvalidateAccount is a no-op.
func (NopInvalidator) InvalidateAccount(context.Context, int64, string) error { return nil }

// PostingService writes balanced, idempotent journal entries.
type PostingService struct {
	runner      TxRunner
	repo        RepositoryPort
	invalidator Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewPostingService constructs the posting engine.
func NewPostingService(runner TxRunner, repo RepositoryPort, invalidator Invalidator, logger *slog.Logger) *PostingService {
	if invalidator == nil {
		invalidator = NopInvalidator{}
	}
	return &PostingService{runner: runner, repo: repo, invalidator: invalidator, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *PostingService) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PostPayment records a settled customer payment.
func (s *PostingService) PostPayment(ctx context.Context, sourceID string, pc PaymentContext) error {
	return s.post(ctx, "Payment", sourceID, paymentEntry(pc))
}

// PostCreditSale records an order fulfilled without payment.
func (s *PostingService) PostCreditSale(ctx context.Context, sourceID string, sc SaleContext) error {
	if !sc.IsCreditSale {
		return fmt.Errorf("ledger: PostCreditSale called for non-credit sale %s", sc.OrderCode)
	}
	return s.post(ctx, "CreditSale", sourceID, creditSaleEntry(sc))
}

// PostPaymentAllocation records a customer paying down credit against one order.
func (s *PostingService) PostPaymentAllocation(ctx context.Context, sourceID string, pc PaymentContext) error {
	return s.post(ctx, "PaymentAllocation", sourceID, paymentAllocationEntry(pc))
}

// PostSupplierPurchase records a purchase made on supplier credit.
func (s *PostingService) PostSupplierPurchase(ctx context.Context, sourceID string, pc PurchaseContext) error {
	if !pc.IsCreditPurchase {
		return fmt.Errorf("ledger: PostSupplierPurchase called for non-credit purchase %s", pc.PurchaseReference)
	}
	return s.post(ctx, "SupplierPurchase", sourceID, supplierPurchaseEntry(pc))
}

// PostSupplierPayment records paying a supplier.
func (s *PostingService) PostSupplierPayment(ctx context.Context, sourceID string, sc SupplierPaymentContext) error {
	return s.post(ctx, "SupplierPayment", sourceID, supplierPaymentEntry(sc))
}

// PostRefund records money returned to a customer.
func (s *PostingService) PostRefund(ctx context.Context, sourceID string, rc RefundContext) error {
	return s.post(ctx, "Refund", sourceID, refundEntry(rc))
}

// PostInventoryPurchase records batch receipt value.
func (s *PostingService) PostInventoryPurchase(ctx context.Context, sourceID string, ic InventoryPurchaseContext) error {
	return s.post(ctx, "InventoryPurchase", sourceID, inventoryPurchaseEntry(ic))
}

// PostInventorySaleCogs records the cost allocated to a sale.
func (s *PostingService) PostInventorySaleCogs(ctx context.Context, sourceID string, cc CogsContext) error {
	return s.post(ctx, "InventorySaleCogs", sourceID, inventorySaleCogsEntry(cc))
}

// PostInventoryWriteOff records inventory value lost.
func (s *PostingService) PostInventoryWriteOff(ctx context.Context, sourceID string, wc WriteOffContext) error {
	return s.post(ctx, "InventoryWriteOff", sourceID, inventoryWriteOffEntry(wc))
}

// post persists one balanced entry for (sourceType, sourceID) at most once.
// An existing entry for the key makes the call a successful no-op, which is
// what lets the async safety-net listener re-post settled payments without
// double-applying them.
func (s *PostingService) post(ctx context.Context, sourceType, sourceID string, payload PostingPayload) error {
	if sourceID == "" {
		return fmt.Errorf("ledger: source id required for %s posting", sourceType)
	}
	if err := validateBalanced(payload); err != nil {
		s.logger.Error("unbalanced posting rejected",
			slog.String("source_type", sourceType),
			slog.String("source_id", sourceID),
			slog.Any("error", err))
		return err
	}

	err := s.runner.WithTx(ctx, func(ctx context.Context) error {
		exists, err := s.repo.EntryExists(ctx, payload.ChannelID, sourceType, sourceID)
		if err != nil {
			return err
		}
		if exists {
			return shared.ErrPostingExists
		}

		codes := uniqueCodes(payload.Lines)
		accounts, err := s.repo.AccountsByCode(ctx, payload.ChannelID, codes)
		if err != nil {
			return err
		}
		if missing := missingCodes(codes, accounts); len(missing) > 0 {
			return fmt.Errorf("%w: missing accounts for channel %d: %s",
				shared.ErrConfiguration, payload.ChannelID, strings.Join(missing, ", "))
		}

		entryDate := payload.EntryDate
		if entryDate.IsZero() {
			entryDate = s.now().UTC()
		}
		entryID, err := s.repo.InsertEntry(ctx, JournalEntry{
			ChannelID:  payload.ChannelID,
			EntryDate:  entryDate,
			Memo:       payload.Memo,
			SourceType: sourceType,
			SourceID:   sourceID,
		})
		if err != nil {
			// The unique constraint on (channel, source_type, source_id) is
			// the last line of defence against concurrent duplicate posts.
			return err
		}

		lines := make([]JournalLine, 0, len(payload.Lines))
		for _, l := range payload.Lines {
			lines = append(lines, JournalLine{
				EntryID:     entryID,
				ChannelID:   payload.ChannelID,
				AccountID:   accounts[l.AccountCode].ID,
				AccountCode: l.AccountCode,
				Debit:       l.Debit,
				Credit:      l.Credit,
				Meta:        l.Meta,
			})
		}
		if err := s.repo.InsertLines(ctx, entryID, lines); err != nil {
			return err
		}

		// Invalidation must wait for the outermost commit. Bumping the cache
		// version while an enclosing transaction is still open lets a
		// concurrent reader repopulate the new version with the pre-commit
		// balance, which would then serve stale numbers for a full TTL.
		db.AfterCommit(ctx, func(ctx context.Context) {
			for _, code := range codes {
				if err := s.invalidator.InvalidateAccount(ctx, payload.ChannelID, code); err != nil {
					s.logger.Warn("cache invalidation failed",
						slog.String("account", code),
						slog.Any("error", err))
				}
			}
		})
		return nil
	})
	if errors.Is(err, shared.ErrPostingExists) {
		s.logger.Info("posting already exists, skipping",
			slog.String("source_type", sourceType),
			slog.String("source_id", sourceID))
		return nil
	}
	if err != nil {
		s.logger.Error("posting failed",
			slog.String("source_type", sourceType),
			slog.String("source_id", sourceID),
			slog.Any("error", err))
		return err
	}

	s.logger.Info("posted ledger entry",
		slog.String("source_type", sourceType),
		slog.String("source_id", sourceID),
		slog.Int64("channel_id", payload.ChannelID))
	return nil
}

func validateBalanced(payload PostingPayload) error {
	if len(payload.Lines) == 0 {
		return fmt.Errorf("%w: entry has no lines", shared.ErrUnbalancedEntry)
	}
	var debit, credit int64
	for _, l := range payload.Lines {
		if l.Debit < 0 || l.Credit < 0 {
			return fmt.Errorf("%w: negative amount on %s", shared.ErrUnbalancedEntry, l.AccountCode)
		}
		if (l.Debit == 0) == (l.Credit == 0) {
			return fmt.Errorf("%w: line on %s must set exactly one of debit/credit", shared.ErrUnbalancedEntry, l.AccountCode)
		}
		debit += l.Debit
		credit += l.Credit
	}
	if debit != credit {
		return fmt.Errorf("%w: debit=%d credit=%d", shared.ErrUnbalancedEntry, debit, credit)
	}
	return nil
}

func uniqueCodes(lines []PostingLine) []string {
	seen := make(map[string]struct{}, len(lines))
	var codes []string
	for _, l := range lines {
		if _, ok := seen[l.AccountCode]; ok {
			continue
		}
		seen[l.AccountCode] = struct{}{}
		codes = append(codes, l.AccountCode)
	}
	sort.Strings(codes)
	return codes
}

func missingCodes(codes []string, accounts map[string]Account) []string {
	var missing []string
	for _, code := range codes {
		if _, ok := accounts[code]; !ok {
			missing = append(missing, code)
		}
	}
	return missing
}
