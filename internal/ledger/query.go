package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const balanceCacheTTL = 5 * time.Minute

// QueryRepository is the read surface the query service aggregates over.
type QueryRepository interface {
	SumAccountLines(ctx context.Context, channelID int64, accountCode string, from, to *time.Time) (debit, credit int64, err error)
	SumPartyLines(ctx context.Context, channelID int64, accountCode, metaKey, partyID string) (debit, credit int64, err error)
	ListEntries(ctx context.Context, channelID int64, limit int) ([]JournalEntry, error)
}

// QueryService answers balance questions from the journal. Whole-account
// balances are cached in redis behind a per-account version counter: postings
// bump the counter, which orphans the old value key instead of racing a
// delete. Cold loads collapse through singleflight so a burst of dashboard
// reads costs one aggregate query.
type QueryService struct {
	repo   QueryRepository
	rdb    *redis.Client
	group  singleflight.Group
	logger *slog.Logger
}

// NewQueryService constructs the read side. rdb may be nil, in which case
// every read hits the journal directly.
func NewQueryService(repo QueryRepository, rdb *redis.Client, logger *slog.Logger) *QueryService {
	return &QueryService{repo: repo, rdb: rdb, logger: logger}
}

// AccountBalance is a signed debit-minus-credit balance in minor units.
type AccountBalance struct {
	ChannelID   int64  `json:"channelId"`
	AccountCode string `json:"accountCode"`
	Debit       int64  `json:"debit"`
	Credit      int64  `json:"credit"`
	Net         int64  `json:"net"`
}

func versionKey(channelID int64, code string) string {
	return fmt.Sprintf("ledger:ver:%d:%s", channelID, code)
}

// InvalidateAccount bumps the account's cache version. It satisfies the
// posting engine's Invalidator port.
func (s *QueryService) InvalidateAccount(ctx context.Context, channelID int64, accountCode string) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Incr(ctx, versionKey(channelID, accountCode)).Err()
}

// GetAccountBalance returns lifetime debits, credits and net for one account.
func (s *QueryService) GetAccountBalance(ctx context.Context, channelID int64, accountCode string) (AccountBalance, error) {
	load := func(ctx context.Context) (AccountBalance, error) {
		debit, credit, err := s.repo.SumAccountLines(ctx, channelID, accountCode, nil, nil)
		if err != nil {
			return AccountBalance{}, err
		}
		return AccountBalance{
			ChannelID:   channelID,
			AccountCode: accountCode,
			Debit:       debit,
			Credit:      credit,
			Net:         debit - credit,
		}, nil
	}

	if s.rdb == nil {
		return load(ctx)
	}

	ver, err := s.rdb.Get(ctx, versionKey(channelID, accountCode)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn("balance cache unavailable", slog.Any("error", err))
		return load(ctx)
	}
	valueKey := fmt.Sprintf("ledger:bal:%d:%s:v%d", channelID, accountCode, ver)

	if raw, err := s.rdb.HGetAll(ctx, valueKey).Result(); err == nil && len(raw) == 2 {
		debit, derr := strconv.ParseInt(raw["d"], 10, 64)
		credit, cerr := strconv.ParseInt(raw["c"], 10, 64)
		if derr == nil && cerr == nil {
			return AccountBalance{
				ChannelID:   channelID,
				AccountCode: accountCode,
				Debit:       debit,
				Credit:      credit,
				Net:         debit - credit,
			}, nil
		}
	}

	v, err, _ := s.group.Do(valueKey, func() (any, error) {
		bal, err := load(ctx)
		if err != nil {
			return AccountBalance{}, err
		}
		if err := s.rdb.HSet(ctx, valueKey, "d", bal.Debit, "c", bal.Credit).Err(); err != nil {
			s.logger.Warn("balance cache write failed", slog.Any("error", err))
		} else {
			_ = s.rdb.Expire(ctx, valueKey, balanceCacheTTL).Err()
		}
		return bal, nil
	})
	if err != nil {
		return AccountBalance{}, err
	}
	return v.(AccountBalance), nil
}

// GetAccountActivity returns debits, credits and net for one account over
// [from, to). Ranged reads bypass the cache; only lifetime balances are hot
// enough to cache.
func (s *QueryService) GetAccountActivity(ctx context.Context, channelID int64, accountCode string, from, to *time.Time) (AccountBalance, error) {
	debit, credit, err := s.repo.SumAccountLines(ctx, channelID, accountCode, from, to)
	if err != nil {
		return AccountBalance{}, err
	}
	return AccountBalance{
		ChannelID:   channelID,
		AccountCode: accountCode,
		Debit:       debit,
		Credit:      credit,
		Net:         debit - credit,
	}, nil
}

// GetCustomerBalance returns what a customer owes: receivable debits minus
// credits for lines tagged with the customer id. Party balances are not
// cached; the meta-filtered aggregate is cheap at retail volumes.
func (s *QueryService) GetCustomerBalance(ctx context.Context, channelID int64, customerID string) (int64, error) {
	debit, credit, err := s.repo.SumPartyLines(ctx, channelID, AccountAccountsReceivable, "customerId", customerID)
	if err != nil {
		return 0, err
	}
	return debit - credit, nil
}

// GetSupplierBalance returns what the store owes a supplier: payable credits
// minus debits for lines tagged with the supplier id.
func (s *QueryService) GetSupplierBalance(ctx context.Context, channelID int64, supplierID string) (int64, error) {
	debit, credit, err := s.repo.SumPartyLines(ctx, channelID, AccountAccountsPayable, "supplierId", supplierID)
	if err != nil {
		return 0, err
	}
	return credit - debit, nil
}

// GetSalesTotal returns recognized revenue in [from, to).
func (s *QueryService) GetSalesTotal(ctx context.Context, channelID int64, from, to *time.Time) (int64, error) {
	debit, credit, err := s.repo.SumAccountLines(ctx, channelID, AccountSales, from, to)
	if err != nil {
		return 0, err
	}
	return credit - debit, nil
}

// GetPurchaseTotal returns recorded purchase cost in [from, to).
func (s *QueryService) GetPurchaseTotal(ctx context.Context, channelID int64, from, to *time.Time) (int64, error) {
	debit, credit, err := s.repo.SumAccountLines(ctx, channelID, AccountPurchases, from, to)
	if err != nil {
		return 0, err
	}
	return debit - credit, nil
}

// GetExpenseTotal returns recorded expenses in [from, to).
func (s *QueryService) GetExpenseTotal(ctx context.Context, channelID int64, from, to *time.Time) (int64, error) {
	debit, credit, err := s.repo.SumAccountLines(ctx, channelID, AccountExpenses, from, to)
	if err != nil {
		return 0, err
	}
	return debit - credit, nil
}

// ListEntries returns recent journal entries for review screens.
func (s *QueryService) ListEntries(ctx context.Context, channelID int64, limit int) ([]JournalEntry, error) {
	return s.repo.ListEntries(ctx, channelID, limit)
}
