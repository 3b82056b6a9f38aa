package tier

import "slices"

// Definition describes a tier's pricing, resource limits and included features.
// The per-resource limit -1 (Unlimited) disables metering for that resource.
type Definition struct {
	Name     Tier                    `yaml:"name"`
	Prices   map[BillingPeriod]Money `yaml:"prices"`
	Limits   map[Resource]int64      `yaml:"limits"`
	Features []Feature               `yaml:"features"`
}

// Price returns the price charged per billing period.
func (d Definition) Price(p BillingPeriod) (Money, bool) {
	m, ok := d.Prices[p]
	return m, ok
}

// Limit returns the usage cap for a resource.
func (d Definition) Limit(r Resource) (int64, bool) {
	l, ok := d.Limits[r]
	return l, ok
}

// HasFeature reports whether the feature is included in this tier.
func (d Definition) HasFeature(f Feature) bool {
	return slices.Contains(d.Features, f)
}

func (d Definition) clone() Definition {
	out := Definition{
		Name:     d.Name,
		Prices:   make(map[BillingPeriod]Money, len(d.Prices)),
		Limits:   make(map[Resource]int64, len(d.Limits)),
		Features: slices.Clone(d.Features),
	}
	for p, m := range d.Prices {
		out.Prices[p] = m
	}
	for r, l := range d.Limits {
		out.Limits[r] = l
	}
	return out
}
