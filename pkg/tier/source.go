package tier

import (
	"context"
	"sync"
)

// inMemSource implements Source over a static definition map.
type inMemSource struct {
	mu   sync.RWMutex
	defs map[Tier]Definition
}

// NewInMemSource returns a Source backed by a deep copy of the given definitions.
func NewInMemSource(defs map[Tier]Definition) Source {
	copied := make(map[Tier]Definition, len(defs))
	for t, d := range defs {
		copied[t] = d.clone()
	}
	return &inMemSource{defs: copied}
}

// Load returns a copy of the definitions so callers cannot mutate shared state.
func (s *inMemSource) Load(ctx context.Context) (map[Tier]Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[Tier]Definition, len(s.defs))
	for t, d := range s.defs {
		out[t] = d.clone()
	}
	return out, nil
}

// DefaultSource returns a Source with the built-in tier table.
// Deployments override it with a FileSource pointing at the pricing file.
func DefaultSource() Source {
	return NewInMemSource(defaultDefinitions())
}

func defaultDefinitions() map[Tier]Definition {
	usd := func(cents int64) Money { return Money{Amount: cents, Currency: "USD"} }

	return map[Tier]Definition{
		Momentum: {
			Name: Momentum,
			Prices: map[BillingPeriod]Money{
				Monthly:   usd(1200),
				Quarterly: usd(3200),
				Yearly:    usd(11500),
			},
			Limits: map[Resource]int64{
				ResourceApplications: 10,
				ResourceCVs:          10,
				ResourceInterviews:   4,
				ResourceCompensation: 4,
				ResourceContracts:    3,
				ResourceAIAvatar:     0,
			},
			Features: []Feature{
				FeatureCVTailoring,
				FeatureJobMatching,
				FeatureInterviewPractice,
			},
		},
		Accelerate: {
			Name: Accelerate,
			Prices: map[BillingPeriod]Money{
				Monthly:   usd(1800),
				Quarterly: usd(4900),
				Yearly:    usd(17300),
			},
			Limits: map[Resource]int64{
				ResourceApplications: 30,
				ResourceCVs:          30,
				ResourceInterviews:   12,
				ResourceCompensation: 12,
				ResourceContracts:    10,
				ResourceAIAvatar:     6,
			},
			Features: []Feature{
				FeatureCVTailoring,
				FeatureJobMatching,
				FeatureInterviewPractice,
				FeatureCompensationCoach,
				FeatureContractReview,
				FeatureAICompanion,
			},
		},
		Elite: {
			Name: Elite,
			Prices: map[BillingPeriod]Money{
				Monthly:   usd(2900),
				Quarterly: usd(7800),
				Yearly:    usd(27800),
			},
			Limits: map[Resource]int64{
				ResourceApplications: Unlimited,
				ResourceCVs:          Unlimited,
				ResourceInterviews:   Unlimited,
				ResourceCompensation: Unlimited,
				ResourceContracts:    Unlimited,
				ResourceAIAvatar:     Unlimited,
			},
			Features: []Feature{
				FeatureCVTailoring,
				FeatureJobMatching,
				FeatureInterviewPractice,
				FeatureCompensationCoach,
				FeatureContractReview,
				FeatureAICompanion,
				FeatureAIAvatar,
				FeaturePrioritySupport,
			},
		},
	}
}
