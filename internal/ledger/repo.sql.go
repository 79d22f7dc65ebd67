package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dukapos/dukapos/internal/platform/db"
	"github.com/dukapos/dukapos/internal/shared"
)

// Repository persists journal entries and lines via pgx. All statements run
// through the context-scoped querier so a posting joins the caller's
// transaction.
type Repository struct {
	runner *db.Runner
}

// NewRepository constructs a Repository.
func NewRepository(runner *db.Runner) *Repository {
	return &Repository{runner: runner}
}

// EntryExists reports whether an entry for the idempotency key is persisted.
func (r *Repository) EntryExists(ctx context.Context, channelID int64, sourceType, sourceID string) (bool, error) {
	q := r.runner.Querier(ctx)
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM journal_entries
			WHERE channel_id = $1 AND source_type = $2 AND source_id = $3
		)`, channelID, sourceType, sourceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ledger: check entry exists: %w", err)
	}
	return exists, nil
}

// AccountsByCode resolves channel accounts for the given codes. Missing codes
// are simply absent from the result map.
func (r *Repository) AccountsByCode(ctx context.Context, channelID int64, codes []string) (map[string]Account, error) {
	q := r.runner.Querier(ctx)
	rows, err := q.Query(ctx, `
		SELECT id, channel_id, code, name, created_at
		FROM ledger_accounts
		WHERE channel_id = $1 AND code = ANY($2)`, channelID, codes)
	if err != nil {
		return nil, fmt.Errorf("ledger: query accounts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Account, len(codes))
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.ChannelID, &a.Code, &a.Name, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan account: %w", err)
		}
		out[a.Code] = a
	}
	return out, rows.Err()
}

// GetAccountByCode fetches one channel account.
func (r *Repository) GetAccountByCode(ctx context.Context, channelID int64, code string) (Account, error) {
	q := r.runner.Querier(ctx)
	var a Account
	err := q.QueryRow(ctx, `
		SELECT id, channel_id, code, name, created_at
		FROM ledger_accounts
		WHERE channel_id = $1 AND code = $2`, channelID, code).
		Scan(&a.ID, &a.ChannelID, &a.Code, &a.Name, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: account %s on channel %d", shared.ErrNotFound, code, channelID)
	}
	if err != nil {
		return Account{}, fmt.Errorf("ledger: get account: %w", err)
	}
	return a, nil
}

// InsertEntry writes a journal entry header. A duplicate idempotency key maps
// to shared.ErrPostingExists via the unique constraint.
func (r *Repository) InsertEntry(ctx context.Context, entry JournalEntry) (int64, error) {
	q := r.runner.Querier(ctx)
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO journal_entries (channel_id, entry_date, memo, source_type, source_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		entry.ChannelID, entry.EntryDate, entry.Memo, entry.SourceType, entry.SourceID).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, shared.ErrPostingExists
		}
		return 0, fmt.Errorf("ledger: insert entry: %w", err)
	}
	return id, nil
}

// InsertLines writes the debit/credit legs of one entry.
func (r *Repository) InsertLines(ctx context.Context, entryID int64, lines []JournalLine) error {
	q := r.runner.Querier(ctx)
	for _, l := range lines {
		meta, err := json.Marshal(l.Meta)
		if err != nil {
			return fmt.Errorf("ledger: marshal line meta: %w", err)
		}
		_, err = q.Exec(ctx, `
			INSERT INTO journal_lines (entry_id, channel_id, account_id, account_code, debit, credit, meta)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			entryID, l.ChannelID, l.AccountID, l.AccountCode, l.Debit, l.Credit, meta)
		if err != nil {
			return fmt.Errorf("ledger: insert line: %w", err)
		}
	}
	return nil
}

// SumAccountLines returns total debits and credits for one account, optionally
// bounded to entry dates in [from, to).
func (r *Repository) SumAccountLines(ctx context.Context, channelID int64, accountCode string, from, to *time.Time) (debit, credit int64, err error) {
	q := r.runner.Querier(ctx)
	err = q.QueryRow(ctx, `
		SELECT COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
		FROM journal_lines l
		JOIN journal_entries e ON e.id = l.entry_id
		WHERE l.channel_id = $1 AND l.account_code = $2
		  AND ($3::timestamptz IS NULL OR e.entry_date >= $3)
		  AND ($4::timestamptz IS NULL OR e.entry_date < $4)`,
		channelID, accountCode, from, to).Scan(&debit, &credit)
	if err != nil {
		return 0, 0, fmt.Errorf("ledger: sum account lines: %w", err)
	}
	return debit, credit, nil
}

// SumPartyLines returns total debits and credits for one account restricted to
// lines whose meta carries the given party id under key (customerId or
// supplierId). It backs per-customer receivable and per-supplier payable
// balances.
func (r *Repository) SumPartyLines(ctx context.Context, channelID int64, accountCode, metaKey, partyID string) (debit, credit int64, err error) {
	q := r.runner.Querier(ctx)
	err = q.QueryRow(ctx, `
		SELECT COALESCE(SUM(debit), 0), COALESCE(SUM(credit), 0)
		FROM journal_lines
		WHERE channel_id = $1 AND account_code = $2 AND meta->>$3 = $4`,
		channelID, accountCode, metaKey, partyID).Scan(&debit, &credit)
	if err != nil {
		return 0, 0, fmt.Errorf("ledger: sum party lines: %w", err)
	}
	return debit, credit, nil
}

// ListEntries returns recent entries for a channel with their lines, newest
// first.
func (r *Repository) ListEntries(ctx context.Context, channelID int64, limit int) ([]JournalEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.runner.Querier(ctx)
	rows, err := q.Query(ctx, `
		SELECT id, channel_id, entry_date, memo, source_type, source_id, created_at
		FROM journal_entries
		WHERE channel_id = $1
		ORDER BY entry_date DESC, id DESC
		LIMIT $2`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list entries: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	ids := make([]int64, 0, limit)
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.ChannelID, &e.EntryDate, &e.Memo, &e.SourceType, &e.SourceID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan entry: %w", err)
		}
		entries = append(entries, e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return entries, nil
	}

	lineRows, err := q.Query(ctx, `
		SELECT id, entry_id, channel_id, account_id, account_code, debit, credit, meta
		FROM journal_lines
		WHERE entry_id = ANY($1)
		ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("ledger: list lines: %w", err)
	}
	defer lineRows.Close()

	byEntry := make(map[int64][]JournalLine, len(entries))
	for lineRows.Next() {
		var l JournalLine
		var meta []byte
		if err := lineRows.Scan(&l.ID, &l.EntryID, &l.ChannelID, &l.AccountID, &l.AccountCode, &l.Debit, &l.Credit, &meta); err != nil {
			return nil, fmt.Errorf("ledger: scan line: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &l.Meta); err != nil {
				return nil, fmt.Errorf("ledger: unmarshal line meta: %w", err)
			}
		}
		byEntry[l.EntryID] = append(byEntry[l.EntryID], l)
	}
	if err := lineRows.Err(); err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Lines = byEntry[entries[i].ID]
	}
	return entries, nil
}
