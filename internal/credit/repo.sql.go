package credit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dukapos/dukapos/internal/platform/db"
	"github.com/dukapos/dukapos/internal/shared"
)

// Repository stores credit fields inside the customer attribute bag, a JSONB
// column on the customers table, under one namespaced key.
type Repository struct {
	runner *db.Runner
}

// NewRepository constructs Repository.
func NewRepository(runner *db.Runner) *Repository {
	return &Repository{runner: runner}
}

const (
	attributeKey         = "credit"
	supplierAttributeKey = "supplierCredit"
)

// supplierGuard restricts supplier credit operations to customer rows marked
// as suppliers.
const supplierGuard = `COALESCE((attributes ->> 'isSupplier')::boolean, false)`

// GetCreditFields loads a customer's credit state. A customer without the
// attribute gets zero-valued fields, not an error.
func (r *Repository) GetCreditFields(ctx context.Context, channelID int64, customerID string) (Fields, error) {
	q := r.runner.Querier(ctx)
	var raw []byte
	err := q.QueryRow(ctx, `
		SELECT attributes -> $3
		FROM customers
		WHERE channel_id = $1 AND external_id = $2`,
		channelID, customerID, attributeKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Fields{}, fmt.Errorf("%w: customer %s on channel %d", shared.ErrNotFound, customerID, channelID)
	}
	if err != nil {
		return Fields{}, fmt.Errorf("credit: get fields: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return Fields{}, nil
	}
	var fields Fields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Fields{}, fmt.Errorf("credit: unmarshal fields: %w", err)
	}
	return fields, nil
}

// SaveCreditFields writes a customer's credit state back into the bag.
func (r *Repository) SaveCreditFields(ctx context.Context, channelID int64, customerID string, fields Fields) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("credit: marshal fields: %w", err)
	}
	q := r.runner.Querier(ctx)
	tag, err := q.Exec(ctx, `
		UPDATE customers
		SET attributes = jsonb_set(COALESCE(attributes, '{}'::jsonb), ARRAY[$3], $4::jsonb, true),
		    updated_at = now()
		WHERE channel_id = $1 AND external_id = $2`,
		channelID, customerID, attributeKey, raw)
	if err != nil {
		return fmt.Errorf("credit: save fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: customer %s on channel %d", shared.ErrNotFound, customerID, channelID)
	}
	return nil
}

// GetSupplierCreditFields loads a supplier's credit terms. Suppliers live in
// the customers table behind the isSupplier flag; a flagged row without the
// attribute gets zero-valued fields.
func (r *Repository) GetSupplierCreditFields(ctx context.Context, channelID int64, supplierID string) (SupplierFields, error) {
	q := r.runner.Querier(ctx)
	var raw []byte
	err := q.QueryRow(ctx, `
		SELECT attributes -> $3
		FROM customers
		WHERE channel_id = $1 AND external_id = $2 AND `+supplierGuard,
		channelID, supplierID, supplierAttributeKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return SupplierFields{}, fmt.Errorf("%w: supplier %s on channel %d", shared.ErrNotFound, supplierID, channelID)
	}
	if err != nil {
		return SupplierFields{}, fmt.Errorf("credit: get supplier fields: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return SupplierFields{}, nil
	}
	var fields SupplierFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return SupplierFields{}, fmt.Errorf("credit: unmarshal supplier fields: %w", err)
	}
	return fields, nil
}

// SaveSupplierCreditFields writes a supplier's credit terms back into the bag.
func (r *Repository) SaveSupplierCreditFields(ctx context.Context, channelID int64, supplierID string, fields SupplierFields) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("credit: marshal supplier fields: %w", err)
	}
	q := r.runner.Querier(ctx)
	tag, err := q.Exec(ctx, `
		UPDATE customers
		SET attributes = jsonb_set(COALESCE(attributes, '{}'::jsonb), ARRAY[$3], $4::jsonb, true),
		    updated_at = now()
		WHERE channel_id = $1 AND external_id = $2 AND `+supplierGuard,
		channelID, supplierID, supplierAttributeKey, raw)
	if err != nil {
		return fmt.Errorf("credit: save supplier fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: supplier %s on channel %d", shared.ErrNotFound, supplierID, channelID)
	}
	return nil
}
