package cart

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-pricing/internal/cartrule"
	"github.com/noah-isme/toko-pricing/internal/catalog"
	"github.com/noah-isme/toko-pricing/internal/events"
	"github.com/noah-isme/toko-pricing/internal/lock"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/ratelimit"
)

// Service encapsulates cart domain operations. Carts live in memory; products
// and rules are resolved through the configured collaborators on every call.
type Service struct {
	Products catalog.Lookup
	Rules    cartrule.Repository
	Locker   lock.Locker
	// Attempts throttles rule attachments per customer. Nil disables it.
	Attempts ratelimit.Guard
	Currency pricing.Currency
	Now      func() time.Time
	Logger   zerolog.Logger
	Metrics  *obs.PricingMetrics
	// Events receives checkout events. Nil disables them.
	Events Emitter

	lockOnce sync.Once
	mu       sync.RWMutex
	carts    map[uuid.UUID]*Cart
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (events.Event, error)
}

type checkoutEvent struct {
	Customer     string           `json:"customer"`
	Currency     string           `json:"currency"`
	Total        string           `json:"total"`
	AppliedRules []pricing.RuleID `json:"applied_rules"`
	Exhausted    []pricing.RuleID `json:"exhausted_rules,omitempty"`
}

// Quote is a priced cart.
type Quote struct {
	CartID   uuid.UUID `json:"cart_id"`
	Customer string    `json:"customer"`
	pricing.Result
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) currency() pricing.Currency {
	if s.Currency.Code == "" {
		return pricing.DefaultCurrency
	}
	return s.Currency
}

func (s *Service) locker() lock.Locker {
	s.lockOnce.Do(func() {
		if s.Locker == nil {
			s.Locker = lock.NewLocal()
		}
	})
	return s.Locker
}

func (s *Service) configured() error {
	if s == nil || s.Products == nil || s.Rules == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

// Create opens an empty cart for customer.
func (s *Service) Create(customer string) (uuid.UUID, error) {
	if err := s.configured(); err != nil {
		return uuid.Nil, err
	}
	c := New(customer)
	s.mu.Lock()
	if s.carts == nil {
		s.carts = make(map[uuid.UUID]*Cart)
	}
	s.carts[c.ID] = c
	s.mu.Unlock()
	s.Logger.Debug().Str("cart_id", c.ID.String()).Str("customer", customer).Msg("cart created")
	return c.ID, nil
}

// Lines returns the stored lines of cart id.
func (s *Service) Lines(ctx context.Context, id uuid.UUID) ([]pricing.LineItem, error) {
	var lines []pricing.LineItem
	err := s.withCart(ctx, id, func(_ context.Context, c *Cart) error {
		lines = c.Lines()
		return nil
	})
	return lines, err
}

// UpdateQty sets the quantity of productID in cart id. Zero removes the line.
func (s *Service) UpdateQty(ctx context.Context, id uuid.UUID, productID pricing.ProductID, qty int) error {
	return s.withCart(ctx, id, func(ctx context.Context, c *Cart) error {
		if qty == 0 {
			return c.UpdateQty(pricing.Product{ID: productID}, 0)
		}
		p, err := s.Products.GetProduct(ctx, productID)
		if err != nil {
			return fmt.Errorf("lookup product %d: %w", productID, err)
		}
		return c.UpdateQty(p, qty)
	})
}

// AddRule attaches ruleID to cart id and reports whether it is currently
// valid. Invalid rules stay attached.
func (s *Service) AddRule(ctx context.Context, id uuid.UUID, ruleID pricing.RuleID) (bool, error) {
	var valid bool
	err := s.withCart(ctx, id, func(ctx context.Context, c *Cart) error {
		if s.Attempts != nil {
			ok, err := s.Attempts.Allow(ctx, "cartrule:"+c.Customer)
			if err != nil {
				s.Logger.Warn().Err(err).Str("customer", c.Customer).Msg("rule attempt limiter unavailable")
			} else if !ok {
				return ErrRateLimited
			}
		}
		rule, err := s.Rules.GetRule(ctx, ruleID)
		if err != nil {
			return fmt.Errorf("lookup rule %d: %w", ruleID, err)
		}
		used, err := s.Rules.Usage(ctx, ruleID, c.Customer)
		if err != nil {
			return fmt.Errorf("rule usage %d: %w", ruleID, err)
		}
		valid, err = c.AddRule(rule, s.now(), map[pricing.RuleID]int{ruleID: used})
		if err != nil {
			return err
		}
		s.Logger.Debug().
			Str("cart_id", id.String()).
			Int64("rule_id", int64(ruleID)).
			Bool("valid", valid).
			Msg("cart rule attached")
		return nil
	})
	return valid, err
}

// RemoveRule detaches ruleID from cart id and reports whether it was attached.
func (s *Service) RemoveRule(ctx context.Context, id uuid.UUID, ruleID pricing.RuleID) (bool, error) {
	var removed bool
	err := s.withCart(ctx, id, func(_ context.Context, c *Cart) error {
		if c.CheckedOut {
			return ErrCheckedOut
		}
		removed = c.RemoveRule(ruleID)
		return nil
	})
	return removed, err
}

// Quote prices cart id with fresh rule quantities, usage and gift products.
func (s *Service) Quote(ctx context.Context, id uuid.UUID) (Quote, error) {
	var q Quote
	err := s.withCart(ctx, id, func(ctx context.Context, c *Cart) error {
		var err error
		q, err = s.price(ctx, "quote", c, nil)
		return err
	})
	return q, err
}

// Checkout prices cart id, consumes one usage of every applied rule and
// closes the cart. Rules whose quota ran out meanwhile are dropped and the
// cart is priced again without them.
func (s *Service) Checkout(ctx context.Context, id uuid.UUID) (Quote, error) {
	var q Quote
	err := s.withCart(ctx, id, func(ctx context.Context, c *Cart) error {
		if c.CheckedOut {
			return ErrCheckedOut
		}
		in, err := s.resolve(ctx, c)
		if err != nil {
			return err
		}
		res := pricing.Price(in.state, in.rules, in.now, s.currency())

		var dropped, taken []pricing.RuleID
		for _, outcome := range res.AppliedRules() {
			ok, err := s.Rules.Consume(ctx, outcome.RuleID, c.Customer)
			if err != nil {
				s.Metrics.ObserveConsumption("error")
				s.release(ctx, c, taken)
				return fmt.Errorf("consume rule %d: %w", outcome.RuleID, err)
			}
			if !ok {
				s.Metrics.ObserveConsumption("exhausted")
				dropped = append(dropped, outcome.RuleID)
				continue
			}
			s.Metrics.ObserveConsumption("ok")
			taken = append(taken, outcome.RuleID)
		}
		if len(dropped) > 0 {
			in.rules = slices.DeleteFunc(in.rules, func(r pricing.Rule) bool {
				return slices.Contains(dropped, r.ID)
			})
			s.Logger.Warn().
				Str("cart_id", c.ID.String()).
				Interface("rule_ids", dropped).
				Msg("cart rules exhausted at checkout")
		}

		q, err = s.price(ctx, "checkout", c, &in)
		if err != nil {
			s.release(ctx, c, taken)
			return err
		}
		c.CheckedOut = true
		s.emitCheckout(ctx, q, dropped)
		return nil
	})
	return q, err
}

// release gives back usages taken by a checkout that did not complete, so a
// retry does not count them twice.
func (s *Service) release(ctx context.Context, c *Cart, ids []pricing.RuleID) {
	for _, id := range ids {
		if err := s.Rules.Release(ctx, id, c.Customer); err != nil {
			s.Metrics.ObserveConsumption("release_error")
			s.Logger.Error().Err(err).
				Str("cart_id", c.ID.String()).
				Int64("rule_id", int64(id)).
				Msg("release cart rule usage")
			continue
		}
		s.Metrics.ObserveConsumption("released")
	}
}

func (s *Service) emitCheckout(ctx context.Context, q Quote, exhausted []pricing.RuleID) {
	if s.Events == nil {
		return
	}
	payload := checkoutEvent{
		Customer:  q.Customer,
		Currency:  q.Currency,
		Total:     q.Total.StringFixed(s.currency().Precision),
		Exhausted: exhausted,
	}
	for _, o := range q.AppliedRules() {
		payload.AppliedRules = append(payload.AppliedRules, o.RuleID)
	}
	if _, err := s.Events.Emit(ctx, events.TopicCartCheckedOut, q.CartID, payload); err != nil {
		s.Logger.Error().Err(err).Str("cart_id", q.CartID.String()).Msg("emit checkout event")
	}
	for _, id := range exhausted {
		ruleEvent := map[string]any{"rule_id": id, "customer": q.Customer}
		if _, err := s.Events.Emit(ctx, events.TopicCartRuleExhausted, q.CartID, ruleEvent); err != nil {
			s.Logger.Error().Err(err).Int64("rule_id", int64(id)).Msg("emit rule exhausted event")
		}
	}
}

type pricingInput struct {
	state pricing.CartState
	rules []pricing.Rule
	now   time.Time
}

// resolve loads current rule definitions, per-customer usage and gift
// products for c. Rules deleted from the registry are kept as inactive so
// they show up as rejected.
func (s *Service) resolve(ctx context.Context, c *Cart) (pricingInput, error) {
	attached := c.Rules()
	rules := make([]pricing.Rule, 0, len(attached))
	usage := make(map[pricing.RuleID]int, len(attached))
	gifts := make(map[pricing.ProductID]pricing.Product)

	for _, r := range attached {
		rule, err := s.Rules.GetRule(ctx, r.ID)
		switch {
		case errors.Is(err, cartrule.ErrRuleNotFound):
			rule = r
			rule.Active = false
		case err != nil:
			return pricingInput{}, fmt.Errorf("lookup rule %d: %w", r.ID, err)
		}
		used, err := s.Rules.Usage(ctx, r.ID, c.Customer)
		if err != nil {
			return pricingInput{}, fmt.Errorf("rule usage %d: %w", r.ID, err)
		}
		usage[r.ID] = used
		if rule.GiftProductID != nil {
			gid := *rule.GiftProductID
			if _, ok := gifts[gid]; !ok {
				p, err := s.Products.GetProduct(ctx, gid)
				if err != nil {
					return pricingInput{}, fmt.Errorf("lookup gift %d: %w", gid, err)
				}
				gifts[gid] = p
			}
		}
		rules = append(rules, rule)
	}
	return pricingInput{
		state: c.State(usage, gifts),
		rules: rules,
		now:   s.now(),
	}, nil
}

func (s *Service) price(ctx context.Context, operation string, c *Cart, in *pricingInput) (q Quote, err error) {
	ctx, span := obs.PricingTracer().Start(ctx, "Service."+operation)
	defer span.End()
	span.SetAttributes(
		attribute.String("cart.id", c.ID.String()),
		attribute.Int("cart.lines", len(c.lines)),
		attribute.Int("cart.rules", len(c.attachments)),
	)
	start := time.Now()
	defer func() {
		s.Metrics.ObservePass(operation, err, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if in == nil {
		resolved, err := s.resolve(ctx, c)
		if err != nil {
			return Quote{}, err
		}
		in = &resolved
	}
	res := pricing.Price(in.state, in.rules, in.now, s.currency())

	applied := 0
	for _, o := range res.Rules {
		s.Metrics.ObserveRule(string(o.Kind), string(o.Scope), o.Applied)
		if o.Applied {
			applied++
		}
	}
	span.SetAttributes(
		attribute.Int("pricing.rules_applied", applied),
		attribute.String("pricing.total", res.Total.String()),
	)
	s.Logger.Info().
		Str("cart_id", c.ID.String()).
		Str("operation", operation).
		Str("subtotal", res.Subtotal.String()).
		Str("total", res.Total.String()).
		Int("rules_applied", applied).
		Int("product_count", res.ProductCount).
		Msg("cart priced")
	return Quote{CartID: c.ID, Customer: c.Customer, Result: res}, nil
}

func (s *Service) withCart(ctx context.Context, id uuid.UUID, fn func(context.Context, *Cart) error) error {
	if err := s.configured(); err != nil {
		return err
	}
	s.mu.RLock()
	c, ok := s.carts[id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return s.locker().WithLock(ctx, "cart:"+id.String(), func(ctx context.Context) error {
		return fn(ctx, c)
	})
}
