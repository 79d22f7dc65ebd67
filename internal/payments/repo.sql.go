package payments

import (
	"context"
	"fmt"

	"github.com/dukapos/dukapos/internal/platform/db"
)

// Repository reads the order model and appends settled payments via pgx.
type Repository struct {
	runner *db.Runner
}

// NewRepository constructs Repository.
func NewRepository(runner *db.Runner) *Repository {
	return &Repository{runner: runner}
}

// GetUnpaidOrders lists open/fulfilled orders whose settled payments fall
// short of their total, oldest first with id as tie-break.
func (r *Repository) GetUnpaidOrders(ctx context.Context, channelID int64, customerID string, orderIDs []string) ([]Order, error) {
	sql := `
		SELECT o.external_id, o.code, o.channel_id, o.customer_id, o.total,
		       COALESCE(SUM(p.amount), 0) AS settled, o.state, o.created_at
		FROM orders o
		LEFT JOIN order_payments p ON p.order_id = o.external_id AND p.state = 'settled'
		WHERE o.channel_id = $1 AND o.customer_id = $2
		  AND o.state IN ('open', 'fulfilled')
		  AND (cardinality($3::text[]) = 0 OR o.external_id = ANY($3))
		GROUP BY o.external_id, o.code, o.channel_id, o.customer_id, o.total, o.state, o.created_at
		HAVING COALESCE(SUM(p.amount), 0) < o.total
		ORDER BY o.created_at, o.external_id`
	if orderIDs == nil {
		orderIDs = []string{}
	}

	q := r.runner.Querier(ctx)
	rows, err := q.Query(ctx, sql, channelID, customerID, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("payments: list unpaid orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.Code, &o.ChannelID, &o.CustomerID, &o.Total, &o.SettledTotal, &o.State, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("payments: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// RecordSettledPayment appends one settled payment row.
func (r *Repository) RecordSettledPayment(ctx context.Context, orderID, paymentID string, amount int64) error {
	q := r.runner.Querier(ctx)
	_, err := q.Exec(ctx, `
		INSERT INTO order_payments (order_id, payment_id, amount, state)
		VALUES ($1, $2, $3, 'settled')`, orderID, paymentID, amount)
	if err != nil {
		return fmt.Errorf("payments: record settled payment: %w", err)
	}
	return nil
}

// GetOutstandingTotal sums the owed remainder across the customer's unpaid
// orders.
func (r *Repository) GetOutstandingTotal(ctx context.Context, channelID int64, customerID string) (int64, error) {
	q := r.runner.Querier(ctx)
	var total int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(owed), 0) FROM (
			SELECT o.total - COALESCE(SUM(p.amount), 0) AS owed
			FROM orders o
			LEFT JOIN order_payments p ON p.order_id = o.external_id AND p.state = 'settled'
			WHERE o.channel_id = $1 AND o.customer_id = $2
			  AND o.state IN ('open', 'fulfilled')
			GROUP BY o.external_id, o.total
			HAVING o.total - COALESCE(SUM(p.amount), 0) > 0
		) unpaid`, channelID, customerID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("payments: outstanding total: %w", err)
	}
	return total, nil
}
