package tier

import (
	"context"
	"errors"
	"fmt"
)

// Source defines how tier definitions are loaded into a Catalog.
type Source interface {
	Load(ctx context.Context) (map[Tier]Definition, error)
}

// Catalog is an immutable, validated lookup table of tier definitions.
// It is safe for concurrent use after construction.
type Catalog struct {
	defs map[Tier]Definition
}

// NewCatalog loads and validates tier definitions from the given source.
func NewCatalog(ctx context.Context, src Source) (*Catalog, error) {
	if src == nil {
		panic("tier: Source is required")
	}

	defs, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}

	if err := validateDefinitions(defs); err != nil {
		return nil, err
	}

	return &Catalog{defs: defs}, nil
}

// Get returns the definition for a tier.
func (c *Catalog) Get(t Tier) (Definition, error) {
	d, ok := c.defs[t]
	if !ok {
		return Definition{}, ErrTierNotFound
	}
	return d, nil
}

// Price returns the price of the tier for the given billing period.
func (c *Catalog) Price(t Tier, p BillingPeriod) (Money, error) {
	d, err := c.Get(t)
	if err != nil {
		return Money{}, err
	}
	m, ok := d.Price(p)
	if !ok {
		return Money{}, ErrPriceNotDefined
	}
	return m, nil
}

// Limit returns the usage cap for a resource on the given tier.
// Unknown resources map to 0 rather than an error: a tier that does not
// declare a resource does not grant any quota for it.
func (c *Catalog) Limit(t Tier, r Resource) (int64, error) {
	d, err := c.Get(t)
	if err != nil {
		return 0, err
	}
	l, ok := d.Limit(r)
	if !ok {
		return 0, nil
	}
	return l, nil
}

// HasFeature reports whether the tier includes the feature.
func (c *Catalog) HasFeature(t Tier, f Feature) bool {
	d, ok := c.defs[t]
	if !ok {
		return false
	}
	return d.HasFeature(f)
}

// validateDefinitions catches tier table misconfiguration at startup, before any
// billing decisions are made against it.
func validateDefinitions(defs map[Tier]Definition) error {
	for _, t := range Tiers() {
		d, ok := defs[t]
		if !ok {
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("tier %q is not defined", t))
		}
		if d.Name != t {
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("tier map key %q does not match definition name %q", t, d.Name))
		}
		for _, p := range []BillingPeriod{Monthly, Quarterly, Yearly} {
			m, ok := d.Prices[p]
			if !ok {
				return errors.Join(ErrInvalidConfiguration,
					fmt.Errorf("tier %q has no %s price", t, p))
			}
			if m.Amount < 0 {
				return errors.Join(ErrInvalidConfiguration,
					fmt.Errorf("tier %q has negative %s price: %d", t, p, m.Amount))
			}
		}
		for _, r := range Resources() {
			l, ok := d.Limits[r]
			if !ok {
				return errors.Join(ErrInvalidConfiguration,
					fmt.Errorf("tier %q has no limit for resource %q", t, r))
			}
			if l < Unlimited {
				return errors.Join(ErrInvalidConfiguration,
					fmt.Errorf("tier %q has invalid limit for resource %q: %d", t, r, l))
			}
		}
	}

	for t := range defs {
		if !t.Valid() {
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("unknown tier %q in configuration", t))
		}
	}

	return nil
}
