package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx operations shared by the pool and a transaction.
// Repositories run all statements through a Querier resolved from the context
// so that every write inside one business operation lands in one transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

type hookKey struct{}

// txHooks collects functions to run once the outermost transaction commits.
type txHooks struct {
	fns []func(ctx context.Context)
}

func (h *txHooks) run(ctx context.Context) {
	for _, fn := range h.fns {
		fn(ctx)
	}
}

// Runner opens transactions and scopes them to the context.
type Runner struct {
	pool *pgxpool.Pool
}

// NewRunner constructs a Runner over the pool.
func NewRunner(pool *pgxpool.Pool) *Runner {
	return &Runner{pool: pool}
}

// WithTx executes fn inside a repeatable-read transaction. The transaction is
// carried in the context; nested calls join the enclosing transaction rather
// than opening a new one. Hooks registered through AfterCommit run once the
// outermost transaction has committed, and never on rollback.
func (r *Runner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	hooks := &txHooks{}
	txCtx := context.WithValue(context.WithValue(ctx, txKey{}, tx), hookKey{}, hooks)
	if err := fn(txCtx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	// The hooks see the pre-transaction context: the tx they waited on is gone.
	hooks.run(ctx)
	return nil
}

// AfterCommit defers fn until the outermost transaction on ctx commits. A
// rolled-back transaction drops its hooks. Outside any transaction fn runs
// immediately.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if hooks, ok := ctx.Value(hookKey{}).(*txHooks); ok {
		hooks.fns = append(hooks.fns, fn)
		return
	}
	fn(ctx)
}

// Querier returns the transaction bound to ctx, or the pool when none is open.
func (r *Runner) Querier(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.pool
}
