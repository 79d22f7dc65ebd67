package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukapos/dukapos/internal/shared"
)

// ValuationMode controls how inventory cost tracking participates in the
// financial picture.
type ValuationMode string

const (
	// ValuationModeNone disables cost tracking entirely.
	ValuationModeNone ValuationMode = "none"
	// ValuationModeShadow records costs and ledger legs for reporting but
	// never blocks the triggering business operation on inventory errors.
	ValuationModeShadow ValuationMode = "shadow"
	// ValuationModeAuthoritative makes inventory costing the source of truth;
	// inventory failures abort the triggering operation.
	ValuationModeAuthoritative ValuationMode = "authoritative"
)

// ChannelConfig is one channel's inventory configuration.
type ChannelConfig struct {
	ChannelID     int64         `json:"channelId"`
	StrategyName  string        `json:"strategyName"`
	PolicyName    string        `json:"policyName"`
	ValuationMode ValuationMode `json:"valuationMode"`
}

// DefaultConfig returns the configuration applied to channels that never set
// one explicitly.
func DefaultConfig(channelID int64) ChannelConfig {
	return ChannelConfig{
		ChannelID:     channelID,
		StrategyName:  StrategyFIFO,
		PolicyName:    PolicyDefault,
		ValuationMode: ValuationModeShadow,
	}
}

// ConfigStore persists per-channel configuration.
type ConfigStore interface {
	GetConfig(ctx context.Context, channelID int64) (ChannelConfig, error)
	UpsertConfig(ctx context.Context, cfg ChannelConfig) error
}

// ConfigService resolves which costing strategy, expiry policy and valuation
// mode apply to a channel.
type ConfigService struct {
	store      ConfigStore
	strategies *StrategyRegistry
	policies   *PolicyRegistry
}

// NewConfigService constructs the configuration resolver.
func NewConfigService(store ConfigStore, strategies *StrategyRegistry, policies *PolicyRegistry) *ConfigService {
	return &ConfigService{store: store, strategies: strategies, policies: policies}
}

// GetConfiguration returns the channel's configuration, falling back to
// defaults when none is stored.
func (s *ConfigService) GetConfiguration(ctx context.Context, channelID int64) (ChannelConfig, error) {
	cfg, err := s.store.GetConfig(ctx, channelID)
	if errors.Is(err, shared.ErrNotFound) {
		return DefaultConfig(channelID), nil
	}
	if err != nil {
		return ChannelConfig{}, err
	}
	return cfg, nil
}

// SetConfiguration validates and upserts a channel's configuration.
func (s *ConfigService) SetConfiguration(ctx context.Context, cfg ChannelConfig) error {
	if _, err := s.strategies.Resolve(cfg.StrategyName); err != nil {
		return err
	}
	if _, err := s.policies.Resolve(cfg.PolicyName); err != nil {
		return err
	}
	switch cfg.ValuationMode {
	case ValuationModeNone, ValuationModeShadow, ValuationModeAuthoritative:
	default:
		return fmt.Errorf("%w: unknown valuation mode %q", shared.ErrConfiguration, cfg.ValuationMode)
	}
	return s.store.UpsertConfig(ctx, cfg)
}

// ResolveCostingStrategy returns the channel's active costing strategy.
func (s *ConfigService) ResolveCostingStrategy(ctx context.Context, channelID int64) (CostingStrategy, error) {
	cfg, err := s.GetConfiguration(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return s.strategies.Resolve(cfg.StrategyName)
}

// ResolveExpiryPolicy returns the channel's active expiry policy.
func (s *ConfigService) ResolveExpiryPolicy(ctx context.Context, channelID int64) (ExpiryPolicy, error) {
	cfg, err := s.GetConfiguration(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return s.policies.Resolve(cfg.PolicyName)
}

// IsValuationEnabled reports whether cost tracking runs at all for a channel.
func (s *ConfigService) IsValuationEnabled(ctx context.Context, channelID int64) (bool, error) {
	cfg, err := s.GetConfiguration(ctx, channelID)
	if err != nil {
		return false, err
	}
	return cfg.ValuationMode != ValuationModeNone, nil
}

// IsAuthoritativeMode reports whether inventory errors must block the
// triggering business operation.
func (s *ConfigService) IsAuthoritativeMode(ctx context.Context, channelID int64) (bool, error) {
	cfg, err := s.GetConfiguration(ctx, channelID)
	if err != nil {
		return false, err
	}
	return cfg.ValuationMode == ValuationModeAuthoritative, nil
}
