package inventory

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dukapos/dukapos/internal/shared"
)

// Expiry policy names resolvable through the registry.
const (
	PolicyDefault = "DEFAULT"
	PolicyStrict  = "STRICT"
)

// ConsumeDecision is an expiry policy's verdict on consuming a batch.
type ConsumeDecision struct {
	Allowed bool
	Warning string
	Reason  string
}

// ExpiryPolicy gates batch consumption by movement type and expiry state. The
// lifecycle hooks are notification points only and mutate nothing.
type ExpiryPolicy interface {
	Name() string
	ValidateBeforeConsume(batch Batch, quantity int64, movementType MovementType, now time.Time) ConsumeDecision
	OnBatchCreated(batch Batch)
	OnBatchExpired(batch Batch)
}

// PolicyRegistry resolves expiry policies by name.
type PolicyRegistry struct {
	policies map[string]ExpiryPolicy
}

// NewPolicyRegistry builds a registry over the given policies.
func NewPolicyRegistry(policies ...ExpiryPolicy) *PolicyRegistry {
	r := &PolicyRegistry{policies: make(map[string]ExpiryPolicy, len(policies))}
	for _, p := range policies {
		r.policies[p.Name()] = p
	}
	return r
}

// Resolve returns the named policy or ErrConfiguration listing the options.
func (r *PolicyRegistry) Resolve(name string) (ExpiryPolicy, error) {
	if p, ok := r.policies[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: unknown expiry policy %q, available: %v",
		shared.ErrConfiguration, name, r.Names())
}

// Names lists registered policy names, sorted.
func (r *PolicyRegistry) Names() []string {
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultExpiryPolicy blocks sales of expired stock but lets controlled
// disposal flows (transfer, adjustment, write-off, expiry) proceed with a
// warning.
type DefaultExpiryPolicy struct {
	logger *slog.Logger
}

// NewDefaultExpiryPolicy constructs the default policy.
func NewDefaultExpiryPolicy(logger *slog.Logger) *DefaultExpiryPolicy {
	return &DefaultExpiryPolicy{logger: logger}
}

// Name implements ExpiryPolicy.
func (p *DefaultExpiryPolicy) Name() string { return PolicyDefault }

// ValidateBeforeConsume applies the rules in order: purchases never consume an
// existing batch; batches without an expiry date or with a future one pass;
// expired batches depend on the movement type.
func (p *DefaultExpiryPolicy) ValidateBeforeConsume(batch Batch, _ int64, movementType MovementType, now time.Time) ConsumeDecision {
	if movementType == MovementTypePurchase {
		return ConsumeDecision{Reason: "purchase should not reference existing batch"}
	}
	if !batch.Expired(now) {
		return ConsumeDecision{Allowed: true}
	}

	switch movementType {
	case MovementTypeSale:
		return ConsumeDecision{Reason: fmt.Sprintf("batch %d expired on %s", batch.ID, batch.ExpiryDate.Format(time.DateOnly))}
	case MovementTypeTransfer, MovementTypeAdjustment:
		return ConsumeDecision{
			Allowed: true,
			Warning: fmt.Sprintf("batch %d is expired, movement %s allowed", batch.ID, movementType),
		}
	case MovementTypeWriteOff, MovementTypeExpiry:
		return ConsumeDecision{
			Allowed: true,
			Warning: fmt.Sprintf("disposing expired batch %d", batch.ID),
		}
	default:
		return ConsumeDecision{Reason: fmt.Sprintf("unknown movement type %s", movementType)}
	}
}

// OnBatchCreated logs a new batch for traceability.
func (p *DefaultExpiryPolicy) OnBatchCreated(batch Batch) {
	p.logger.Info("batch created",
		slog.Int64("batch_id", batch.ID),
		slog.String("variant_id", batch.VariantID),
		slog.Int64("quantity", batch.Quantity))
}

// OnBatchExpired logs a batch crossing its expiry date.
func (p *DefaultExpiryPolicy) OnBatchExpired(batch Batch) {
	p.logger.Warn("batch expired",
		slog.Int64("batch_id", batch.ID),
		slog.String("variant_id", batch.VariantID),
		slog.Int64("quantity", batch.Quantity))
}

// StrictExpiryPolicy refuses every consumption of an expired batch, including
// disposal flows. Channels handling regulated goods use it so expired stock
// can only leave through the dedicated expiry scan after review.
type StrictExpiryPolicy struct {
	logger *slog.Logger
}

// NewStrictExpiryPolicy constructs the strict policy.
func NewStrictExpiryPolicy(logger *slog.Logger) *StrictExpiryPolicy {
	return &StrictExpiryPolicy{logger: logger}
}

// Name implements ExpiryPolicy.
func (p *StrictExpiryPolicy) Name() string { return PolicyStrict }

// ValidateBeforeConsume allows only unexpired stock, except the EXPIRY
// movement itself which must be able to clear expired batches.
func (p *StrictExpiryPolicy) ValidateBeforeConsume(batch Batch, _ int64, movementType MovementType, now time.Time) ConsumeDecision {
	if movementType == MovementTypePurchase {
		return ConsumeDecision{Reason: "purchase should not reference existing batch"}
	}
	if !batch.Expired(now) {
		return ConsumeDecision{Allowed: true}
	}
	if movementType == MovementTypeExpiry {
		return ConsumeDecision{
			Allowed: true,
			Warning: fmt.Sprintf("disposing expired batch %d", batch.ID),
		}
	}
	return ConsumeDecision{Reason: fmt.Sprintf("batch %d expired on %s, strict policy blocks %s",
		batch.ID, batch.ExpiryDate.Format(time.DateOnly), movementType)}
}

// OnBatchCreated logs a new batch.
func (p *StrictExpiryPolicy) OnBatchCreated(batch Batch) {
	p.logger.Info("batch created",
		slog.Int64("batch_id", batch.ID),
		slog.String("variant_id", batch.VariantID))
}

// OnBatchExpired logs a batch crossing its expiry date.
func (p *StrictExpiryPolicy) OnBatchExpired(batch Batch) {
	p.logger.Warn("batch expired under strict policy",
		slog.Int64("batch_id", batch.ID),
		slog.String("variant_id", batch.VariantID))
}
