package cartrule

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/catalog"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Source resolves rule definitions.
type Source interface {
	GetRule(ctx context.Context, id pricing.RuleID) (pricing.Rule, error)
}

// Consumer tracks rule usage. Consume must be atomic: concurrent callers
// sharing a rule never consume more than its remaining quantity.
type Consumer interface {
	Consume(ctx context.Context, id pricing.RuleID, customer string) (bool, error)
	// Release gives back one usage taken by Consume.
	Release(ctx context.Context, id pricing.RuleID, customer string) error
	Usage(ctx context.Context, id pricing.RuleID, customer string) (int, error)
}

// Repository is what carts need from a rule registry.
type Repository interface {
	Source
	Consumer
}

// UsageCounter stores the shared counters behind a Registry.
type UsageCounter interface {
	// Seed initialises the remaining quantity of a rule unless already set.
	Seed(ctx context.Context, id pricing.RuleID, quantity int) error
	// Consume atomically takes one usage for customer, honouring perUser
	// when positive. It reports false when a quota is exhausted.
	Consume(ctx context.Context, id pricing.RuleID, customer string, perUser int) (bool, error)
	// Release undoes one Consume for customer.
	Release(ctx context.Context, id pricing.RuleID, customer string) error
	Remaining(ctx context.Context, id pricing.RuleID) (int, error)
	Usage(ctx context.Context, id pricing.RuleID, customer string) (int, error)
}

// Registry holds rule definitions in registration order. Definitions are
// immutable once registered; quantities live in the UsageCounter.
type Registry struct {
	products catalog.Lookup
	usage    UsageCounter
	logger   zerolog.Logger

	mu    sync.RWMutex
	rules map[pricing.RuleID]pricing.Rule
	order []pricing.RuleID
}

// NewRegistry wires a registry. A nil counter defaults to NewMemoryUsage.
func NewRegistry(products catalog.Lookup, usage UsageCounter, logger zerolog.Logger) *Registry {
	if usage == nil {
		usage = NewMemoryUsage()
	}
	return &Registry{
		products: products,
		usage:    usage,
		logger:   logger,
		rules:    make(map[pricing.RuleID]pricing.Rule),
	}
}

// Register validates rule and stores it.
func (r *Registry) Register(ctx context.Context, rule pricing.Rule) error {
	if err := Validate(ctx, rule, r.products); err != nil {
		r.logger.Warn().Err(err).Int64("rule_id", int64(rule.ID)).Msg("cart rule refused")
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[rule.ID]; exists {
		return &ConfigError{RuleID: rule.ID, Field: "id", Err: ErrDuplicateRule}
	}
	if err := r.usage.Seed(ctx, rule.ID, rule.QuantityRemaining); err != nil {
		return fmt.Errorf("cartrule: seed usage: %w", err)
	}
	r.rules[rule.ID] = rule
	r.order = append(r.order, rule.ID)
	r.logger.Debug().
		Int64("rule_id", int64(rule.ID)).
		Int("priority", rule.Priority).
		Str("kind", string(rule.Kind())).
		Str("scope", string(rule.Scope())).
		Msg("cart rule registered")
	return nil
}

// GetRule returns the rule with its current remaining quantity.
func (r *Registry) GetRule(ctx context.Context, id pricing.RuleID) (pricing.Rule, error) {
	r.mu.RLock()
	rule, ok := r.rules[id]
	r.mu.RUnlock()
	if !ok {
		return pricing.Rule{}, ErrRuleNotFound
	}
	remaining, err := r.usage.Remaining(ctx, id)
	if err != nil {
		return pricing.Rule{}, fmt.Errorf("cartrule: remaining quantity: %w", err)
	}
	rule.QuantityRemaining = remaining
	return rule, nil
}

// List returns every rule in registration order.
func (r *Registry) List(ctx context.Context) ([]pricing.Rule, error) {
	r.mu.RLock()
	ids := append([]pricing.RuleID(nil), r.order...)
	r.mu.RUnlock()

	out := make([]pricing.Rule, 0, len(ids))
	for _, id := range ids {
		rule, err := r.GetRule(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// Consume takes one usage of rule id for customer.
func (r *Registry) Consume(ctx context.Context, id pricing.RuleID, customer string) (bool, error) {
	r.mu.RLock()
	rule, ok := r.rules[id]
	r.mu.RUnlock()
	if !ok {
		return false, ErrRuleNotFound
	}
	consumed, err := r.usage.Consume(ctx, id, customer, rule.QuantityPerUser)
	if err != nil {
		return false, fmt.Errorf("cartrule: consume: %w", err)
	}
	if !consumed {
		r.logger.Info().Int64("rule_id", int64(id)).Str("customer", customer).Msg("cart rule quota exhausted")
	}
	return consumed, nil
}

// Release returns one usage of rule id taken by customer.
func (r *Registry) Release(ctx context.Context, id pricing.RuleID, customer string) error {
	r.mu.RLock()
	_, ok := r.rules[id]
	r.mu.RUnlock()
	if !ok {
		return ErrRuleNotFound
	}
	if err := r.usage.Release(ctx, id, customer); err != nil {
		return fmt.Errorf("cartrule: release: %w", err)
	}
	return nil
}

// Usage reports how many times customer used rule id.
func (r *Registry) Usage(ctx context.Context, id pricing.RuleID, customer string) (int, error) {
	return r.usage.Usage(ctx, id, customer)
}
