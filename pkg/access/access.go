// Package access layers usage-limit and feature-access policy on top of
// subscription data: the global enforcement kill-switch, the admin bypass,
// and the per-resource quota decisions.
//
// Turning the kill-switch off disables enforcement only. Usage tracking keeps
// running: IncrementUsage and ConsumeUsage still count every action so the
// recommendation engine and a later switch-on see real history.
package access

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/stridehq/subscription-engine/pkg/logger"
	"github.com/stridehq/subscription-engine/pkg/subscription"
	"github.com/stridehq/subscription-engine/pkg/tier"
)

// Store is the slice of the subscription store the access layer needs.
type Store interface {
	Ensure(ctx context.Context, userID uuid.UUID) (*subscription.Record, error)
	IncrementUsage(ctx context.Context, userID uuid.UUID, res tier.Resource) (int64, error)
	IncrementUsageBelow(ctx context.Context, userID uuid.UUID, res tier.Resource, limit int64) (int64, bool, error)
}

// AdminResolver reports whether a user bypasses all enforcement.
type AdminResolver func(ctx context.Context, userID uuid.UUID) bool

// StaticAdminList returns an AdminResolver backed by a fixed set of user IDs.
func StaticAdminList(ids ...uuid.UUID) AdminResolver {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(_ context.Context, userID uuid.UUID) bool {
		_, ok := set[userID]
		return ok
	}
}

// Reason explains a denied usage-limit check.
type Reason string

const (
	ReasonNoSubscription Reason = "NO_SUBSCRIPTION"
	ReasonLimitExceeded  Reason = "LIMIT_EXCEEDED"
)

// Feature denial reasons.
const (
	FeatureReasonNoSubscription = "no_subscription"
	FeatureReasonTierTooLow     = "tier_too_low"
)

// LimitDecision is the outcome of a usage-limit evaluation. Used always
// reflects the real counter value, even for admins and with enforcement off.
type LimitDecision struct {
	Allowed     bool   `json:"allowed"`
	Enforced    bool   `json:"enforced"`
	Reason      Reason `json:"reason,omitempty"`
	Used        int64  `json:"used"`
	Limit       int64  `json:"limit"`
	Remaining   int64  `json:"remaining"`
	Unlimited   bool   `json:"unlimited"`
	AdminBypass bool   `json:"adminBypass,omitempty"`
}

// FeatureDecision is the outcome of a feature-access evaluation.
type FeatureDecision struct {
	HasAccess bool   `json:"hasAccess"`
	Reason    string `json:"reason,omitempty"`
}

// Control evaluates usage limits and feature access. It is the only writer of
// usage counters outside the manager's period resets.
type Control struct {
	store      Store
	catalog    *tier.Catalog
	killSwitch Switch
	isAdmin    AdminResolver
	log        *slog.Logger
}

// ControlOption configures a Control.
type ControlOption func(*Control)

// WithAdminResolver sets the admin bypass policy. Default: nobody is admin.
func WithAdminResolver(r AdminResolver) ControlOption {
	return func(c *Control) {
		if r != nil {
			c.isAdmin = r
		}
	}
}

// WithControlLogger supplies a structured logger.
func WithControlLogger(log *slog.Logger) ControlOption {
	return func(c *Control) {
		if log != nil {
			c.log = log
		}
	}
}

// NewControl creates an access Control.
// Panics on nil required dependencies to fail fast during wiring.
func NewControl(store Store, catalog *tier.Catalog, killSwitch Switch, opts ...ControlOption) *Control {
	if store == nil {
		panic("access: Store is required")
	}
	if catalog == nil {
		panic("access: tier.Catalog is required")
	}
	if killSwitch == nil {
		panic("access: Switch is required")
	}

	c := &Control{
		store:      store,
		catalog:    catalog,
		killSwitch: killSwitch,
		isAdmin:    func(context.Context, uuid.UUID) bool { return false },
		log:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckUsageLimit evaluates whether the user may perform one more action on
// the resource. Precedence: admin bypass, then the kill-switch, then the
// subscription itself, then the tier limit. The call never consumes quota;
// pair it with IncrementUsage after the gated action succeeds, or use
// ConsumeUsage for an atomic path.
func (c *Control) CheckUsageLimit(ctx context.Context, userID uuid.UUID, res tier.Resource) (LimitDecision, error) {
	if !res.Valid() {
		return LimitDecision{}, ErrUnknownResource
	}

	// First sighting of a user creates their tracking-only record.
	rec, err := c.store.Ensure(ctx, userID)
	if err != nil {
		return LimitDecision{}, err
	}
	used := rec.Usage.Get(res)

	if c.isAdmin(ctx, userID) {
		return LimitDecision{
			Allowed:     true,
			Enforced:    true,
			Used:        used,
			Limit:       tier.Unlimited,
			Remaining:   tier.Unlimited,
			Unlimited:   true,
			AdminBypass: true,
		}, nil
	}

	if !c.killSwitch.Enabled(ctx) {
		return LimitDecision{
			Allowed:   true,
			Enforced:  false,
			Used:      used,
			Limit:     tier.Unlimited,
			Remaining: tier.Unlimited,
			Unlimited: true,
		}, nil
	}

	if !rec.Subscribed() {
		return LimitDecision{
			Allowed:  false,
			Enforced: true,
			Reason:   ReasonNoSubscription,
			Used:     used,
		}, nil
	}

	limit, err := c.catalog.Limit(rec.Tier, res)
	if err != nil {
		return LimitDecision{}, err
	}

	return buildDecision(used, limit), nil
}

// IncrementUsage bumps the counter by one. Call it only after the gated
// action completed successfully, never when the preceding check denied; a
// failed downstream action must not consume quota.
func (c *Control) IncrementUsage(ctx context.Context, userID uuid.UUID, res tier.Resource) (int64, error) {
	if !res.Valid() {
		return 0, ErrUnknownResource
	}
	used, err := c.store.IncrementUsage(ctx, userID, res)
	if err != nil {
		return 0, err
	}
	c.log.DebugContext(ctx, "usage incremented",
		logger.UserID(userID),
		slog.String("resource", string(res)),
		slog.Int64("used", used),
	)
	return used, nil
}

// ConsumeUsage folds check and increment into one conditional update, closing
// the overshoot window the split pattern leaves open under concurrency.
// Tracking continues with enforcement off or bypassed: those paths still
// count the action, they just never deny it.
func (c *Control) ConsumeUsage(ctx context.Context, userID uuid.UUID, res tier.Resource) (LimitDecision, error) {
	if !res.Valid() {
		return LimitDecision{}, ErrUnknownResource
	}

	rec, err := c.store.Ensure(ctx, userID)
	if err != nil {
		return LimitDecision{}, err
	}

	if c.isAdmin(ctx, userID) {
		used, err := c.store.IncrementUsage(ctx, userID, res)
		if err != nil {
			return LimitDecision{}, err
		}
		return LimitDecision{
			Allowed:     true,
			Enforced:    true,
			Used:        used,
			Limit:       tier.Unlimited,
			Remaining:   tier.Unlimited,
			Unlimited:   true,
			AdminBypass: true,
		}, nil
	}

	if !c.killSwitch.Enabled(ctx) {
		used, err := c.store.IncrementUsage(ctx, userID, res)
		if err != nil {
			return LimitDecision{}, err
		}
		return LimitDecision{
			Allowed:   true,
			Enforced:  false,
			Used:      used,
			Limit:     tier.Unlimited,
			Remaining: tier.Unlimited,
			Unlimited: true,
		}, nil
	}

	if !rec.Subscribed() {
		return LimitDecision{
			Allowed:  false,
			Enforced: true,
			Reason:   ReasonNoSubscription,
			Used:     rec.Usage.Get(res),
		}, nil
	}

	limit, err := c.catalog.Limit(rec.Tier, res)
	if err != nil {
		return LimitDecision{}, err
	}

	if limit == tier.Unlimited {
		used, err := c.store.IncrementUsage(ctx, userID, res)
		if err != nil {
			return LimitDecision{}, err
		}
		return LimitDecision{
			Allowed:   true,
			Enforced:  true,
			Used:      used,
			Limit:     tier.Unlimited,
			Remaining: tier.Unlimited,
			Unlimited: true,
		}, nil
	}

	used, applied, err := c.store.IncrementUsageBelow(ctx, userID, res, limit)
	if err != nil {
		return LimitDecision{}, err
	}
	if !applied {
		return LimitDecision{
			Allowed:  false,
			Enforced: true,
			Reason:   ReasonLimitExceeded,
			Used:     used,
			Limit:    limit,
		}, nil
	}
	decision := buildDecision(used, limit)
	decision.Allowed = true
	decision.Reason = ""
	return decision, nil
}

// CheckFeatureAccess evaluates tier-gated feature availability with the same
// admin and kill-switch precedence as usage checks.
func (c *Control) CheckFeatureAccess(ctx context.Context, userID uuid.UUID, f tier.Feature) (FeatureDecision, error) {
	if !f.Valid() {
		return FeatureDecision{}, ErrUnknownFeature
	}

	if c.isAdmin(ctx, userID) {
		return FeatureDecision{HasAccess: true}, nil
	}
	if !c.killSwitch.Enabled(ctx) {
		return FeatureDecision{HasAccess: true}, nil
	}

	rec, err := c.store.Ensure(ctx, userID)
	if err != nil {
		return FeatureDecision{}, err
	}
	if !rec.Subscribed() {
		return FeatureDecision{Reason: FeatureReasonNoSubscription}, nil
	}

	if !c.catalog.HasFeature(rec.Tier, f) {
		return FeatureDecision{Reason: FeatureReasonTierTooLow}, nil
	}
	return FeatureDecision{HasAccess: true}, nil
}

func buildDecision(used, limit int64) LimitDecision {
	d := LimitDecision{
		Enforced:  true,
		Used:      used,
		Limit:     limit,
		Unlimited: limit == tier.Unlimited,
	}
	if d.Unlimited {
		d.Allowed = true
		d.Remaining = tier.Unlimited
		return d
	}
	d.Allowed = used < limit
	if remaining := limit - used; remaining > 0 {
		d.Remaining = remaining
	}
	if !d.Allowed {
		d.Reason = ReasonLimitExceeded
	}
	return d
}
