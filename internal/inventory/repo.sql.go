package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dukapos/dukapos/internal/platform/db"
	"github.com/dukapos/dukapos/internal/shared"
)

// Repository persists batches, movements and channel configuration in
// PostgreSQL. It holds no transaction discipline of its own: every statement
// runs through the context-scoped querier, joining whatever transaction the
// orchestrating service opened.
type Repository struct {
	runner *db.Runner
}

// NewRepository constructs Repository.
func NewRepository(runner *db.Runner) *Repository {
	return &Repository{runner: runner}
}

// CreateBatch inserts a batch and returns it with its assigned id.
func (r *Repository) CreateBatch(ctx context.Context, input CreateBatchInput) (Batch, error) {
	meta, err := json.Marshal(input.Meta)
	if err != nil {
		return Batch{}, fmt.Errorf("inventory: marshal batch meta: %w", err)
	}
	q := r.runner.Querier(ctx)
	var b Batch
	err = q.QueryRow(ctx, `
		INSERT INTO inventory_batches
			(channel_id, location_id, variant_id, quantity, unit_cost, expiry_date, source_type, source_id, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		input.ChannelID, input.LocationID, input.VariantID, input.Quantity,
		input.UnitCost, input.ExpiryDate, input.SourceType, input.SourceID, meta).
		Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Batch{}, fmt.Errorf("inventory: create batch: %w", err)
	}
	b.ChannelID = input.ChannelID
	b.LocationID = input.LocationID
	b.VariantID = input.VariantID
	b.Quantity = input.Quantity
	b.UnitCost = input.UnitCost
	b.ExpiryDate = input.ExpiryDate
	b.SourceType = input.SourceType
	b.SourceID = input.SourceID
	b.Meta = input.Meta
	return b, nil
}

// VerifyBatchExists reports whether a batch row exists.
func (r *Repository) VerifyBatchExists(ctx context.Context, id int64) (bool, error) {
	q := r.runner.Querier(ctx)
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inventory_batches WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("inventory: verify batch exists: %w", err)
	}
	return exists, nil
}

// GetBatch fetches one batch.
func (r *Repository) GetBatch(ctx context.Context, id int64) (Batch, error) {
	q := r.runner.Querier(ctx)
	b, err := scanBatch(q.QueryRow(ctx, `
		SELECT id, channel_id, location_id, variant_id, quantity, unit_cost,
		       expiry_date, source_type, source_id, meta, created_at, updated_at
		FROM inventory_batches WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, fmt.Errorf("%w: batch %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return Batch{}, fmt.Errorf("inventory: get batch: %w", err)
	}
	return b, nil
}

// UpdateBatchQuantity applies a signed delta to a batch's quantity. The guard
// in the WHERE clause is what enforces the non-negative invariant under
// concurrency: a competing decrement that would overshoot matches zero rows.
func (r *Repository) UpdateBatchQuantity(ctx context.Context, id int64, delta int64) error {
	q := r.runner.Querier(ctx)
	tag, err := q.Exec(ctx, `
		UPDATE inventory_batches
		SET quantity = quantity + $2, updated_at = now()
		WHERE id = $1 AND quantity + $2 >= 0`, id, delta)
	if err != nil {
		return fmt.Errorf("inventory: update batch quantity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		exists, verr := r.VerifyBatchExists(ctx, id)
		if verr != nil {
			return verr
		}
		if !exists {
			return fmt.Errorf("%w: batch %d", shared.ErrNotFound, id)
		}
		return fmt.Errorf("%w: batch %d quantity would go negative with delta %d",
			shared.ErrInvariantViolation, id, delta)
	}
	return nil
}

// CreateMovement appends one movement row.
func (r *Repository) CreateMovement(ctx context.Context, input CreateMovementInput) (Movement, error) {
	meta, err := json.Marshal(input.Meta)
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: marshal movement meta: %w", err)
	}
	q := r.runner.Querier(ctx)
	var m Movement
	err = q.QueryRow(ctx, `
		INSERT INTO inventory_movements
			(channel_id, location_id, variant_id, movement_type, quantity, batch_id, source_type, source_id, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		input.ChannelID, input.LocationID, input.VariantID, input.Type, input.Quantity,
		input.BatchID, input.SourceType, input.SourceID, meta).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: create movement: %w", err)
	}
	m.ChannelID = input.ChannelID
	m.LocationID = input.LocationID
	m.VariantID = input.VariantID
	m.Type = input.Type
	m.Quantity = input.Quantity
	m.BatchID = input.BatchID
	m.SourceType = input.SourceType
	m.SourceID = input.SourceID
	m.Meta = input.Meta
	return m, nil
}

// GetOpenBatches lists batches with remaining quantity, oldest received first
// with batch id as the deterministic tie-break.
func (r *Repository) GetOpenBatches(ctx context.Context, filters BatchFilters) ([]Batch, error) {
	sql, args := openBatchQuery(filters)
	q := r.runner.Querier(ctx)
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: list open batches: %w", err)
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("inventory: scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func openBatchQuery(filters BatchFilters) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, channel_id, location_id, variant_id, quantity, unit_cost,
		       expiry_date, source_type, source_id, meta, created_at, updated_at
		FROM inventory_batches
		WHERE quantity > 0 AND channel_id = $1`)
	args := []any{filters.ChannelID}
	if filters.LocationID != 0 {
		args = append(args, filters.LocationID)
		fmt.Fprintf(&sb, " AND location_id = $%d", len(args))
	}
	if filters.VariantID != "" {
		args = append(args, filters.VariantID)
		fmt.Fprintf(&sb, " AND variant_id = $%d", len(args))
	}
	if filters.ExpiredBefore != nil {
		args = append(args, *filters.ExpiredBefore)
		fmt.Fprintf(&sb, " AND expiry_date IS NOT NULL AND expiry_date < $%d", len(args))
	}
	sb.WriteString(" ORDER BY created_at, id")
	return sb.String(), args
}

// VerifyStockLevel reports whether open batches cover the requested quantity.
func (r *Repository) VerifyStockLevel(ctx context.Context, channelID, locationID int64, variantID string, quantity int64) (bool, error) {
	q := r.runner.Querier(ctx)
	var total int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM inventory_batches
		WHERE channel_id = $1 AND location_id = $2 AND variant_id = $3 AND quantity > 0`,
		channelID, locationID, variantID).Scan(&total)
	if err != nil {
		return false, fmt.Errorf("inventory: verify stock level: %w", err)
	}
	return total >= quantity, nil
}

// GetValuationSnapshot aggregates open-batch value for the filter set.
func (r *Repository) GetValuationSnapshot(ctx context.Context, filters BatchFilters) (ValuationSnapshot, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT COUNT(*), COALESCE(SUM(quantity), 0), COALESCE(SUM(quantity * unit_cost), 0)
		FROM inventory_batches
		WHERE quantity > 0 AND channel_id = $1`)
	args := []any{filters.ChannelID}
	if filters.LocationID != 0 {
		args = append(args, filters.LocationID)
		fmt.Fprintf(&sb, " AND location_id = $%d", len(args))
	}
	if filters.VariantID != "" {
		args = append(args, filters.VariantID)
		fmt.Fprintf(&sb, " AND variant_id = $%d", len(args))
	}

	q := r.runner.Querier(ctx)
	snap := ValuationSnapshot{
		ChannelID:  filters.ChannelID,
		LocationID: filters.LocationID,
		VariantID:  filters.VariantID,
		AsOf:       time.Now().UTC(),
	}
	err := q.QueryRow(ctx, sb.String(), args...).
		Scan(&snap.BatchCount, &snap.TotalQuantity, &snap.TotalValue)
	if err != nil {
		return ValuationSnapshot{}, fmt.Errorf("inventory: valuation snapshot: %w", err)
	}
	return snap, nil
}

// GetMovements lists movements newest first for audit review.
func (r *Repository) GetMovements(ctx context.Context, filters MovementFilters) ([]Movement, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, channel_id, location_id, variant_id, movement_type, quantity,
		       batch_id, source_type, source_id, meta, created_at
		FROM inventory_movements
		WHERE channel_id = $1`)
	args := []any{filters.ChannelID}
	if filters.LocationID != 0 {
		args = append(args, filters.LocationID)
		fmt.Fprintf(&sb, " AND location_id = $%d", len(args))
	}
	if filters.VariantID != "" {
		args = append(args, filters.VariantID)
		fmt.Fprintf(&sb, " AND variant_id = $%d", len(args))
	}
	if filters.Type != "" {
		args = append(args, string(filters.Type))
		fmt.Fprintf(&sb, " AND movement_type = $%d", len(args))
	}
	if filters.From != nil {
		args = append(args, *filters.From)
		fmt.Fprintf(&sb, " AND created_at >= $%d", len(args))
	}
	if filters.To != nil {
		args = append(args, *filters.To)
		fmt.Fprintf(&sb, " AND created_at < $%d", len(args))
	}
	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	args = append(args, limit)
	fmt.Fprintf(&sb, " ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	q := r.runner.Querier(ctx)
	rows, err := q.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: list movements: %w", err)
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		var meta []byte
		err := rows.Scan(&m.ID, &m.ChannelID, &m.LocationID, &m.VariantID, &m.Type,
			&m.Quantity, &m.BatchID, &m.SourceType, &m.SourceID, &meta, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("inventory: scan movement: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &m.Meta); err != nil {
				return nil, fmt.Errorf("inventory: unmarshal movement meta: %w", err)
			}
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// SumBatchMovements sums signed quantities over batch-linked movements for
// one variant at one location. Quantity-only adjustments carry no batch
// reference and are excluded: the sum must equal what the batches hold.
func (r *Repository) SumBatchMovements(ctx context.Context, channelID, locationID int64, variantID string) (int64, error) {
	q := r.runner.Querier(ctx)
	var total int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM inventory_movements
		WHERE channel_id = $1 AND location_id = $2 AND variant_id = $3 AND batch_id IS NOT NULL`,
		channelID, locationID, variantID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("inventory: sum batch movements: %w", err)
	}
	return total, nil
}

// GetConfig loads a channel's stored configuration.
func (r *Repository) GetConfig(ctx context.Context, channelID int64) (ChannelConfig, error) {
	q := r.runner.Querier(ctx)
	var cfg ChannelConfig
	err := q.QueryRow(ctx, `
		SELECT channel_id, strategy_name, policy_name, valuation_mode
		FROM channel_inventory_config WHERE channel_id = $1`, channelID).
		Scan(&cfg.ChannelID, &cfg.StrategyName, &cfg.PolicyName, &cfg.ValuationMode)
	if errors.Is(err, pgx.ErrNoRows) {
		return ChannelConfig{}, fmt.Errorf("%w: inventory config for channel %d", shared.ErrNotFound, channelID)
	}
	if err != nil {
		return ChannelConfig{}, fmt.Errorf("inventory: get config: %w", err)
	}
	return cfg, nil
}

// UpsertConfig stores a channel's configuration.
func (r *Repository) UpsertConfig(ctx context.Context, cfg ChannelConfig) error {
	q := r.runner.Querier(ctx)
	_, err := q.Exec(ctx, `
		INSERT INTO channel_inventory_config (channel_id, strategy_name, policy_name, valuation_mode, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (channel_id) DO UPDATE
		SET strategy_name = EXCLUDED.strategy_name,
		    policy_name = EXCLUDED.policy_name,
		    valuation_mode = EXCLUDED.valuation_mode,
		    updated_at = now()`,
		cfg.ChannelID, cfg.StrategyName, cfg.PolicyName, cfg.ValuationMode)
	if err != nil {
		return fmt.Errorf("inventory: upsert config: %w", err)
	}
	return nil
}

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	var meta []byte
	err := row.Scan(&b.ID, &b.ChannelID, &b.LocationID, &b.VariantID, &b.Quantity, &b.UnitCost,
		&b.ExpiryDate, &b.SourceType, &b.SourceID, &meta, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Batch{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &b.Meta); err != nil {
			return Batch{}, fmt.Errorf("unmarshal batch meta: %w", err)
		}
	}
	return b, nil
}
