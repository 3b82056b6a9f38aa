package tier

import "time"

// Tier identifies a subscription plan level.
type Tier string

const (
	Momentum   Tier = "momentum"
	Accelerate Tier = "accelerate"
	Elite      Tier = "elite"
)

// tierRank orders tiers for upgrade/downgrade direction checks.
// Higher rank means a more expensive plan.
var tierRank = map[Tier]int{
	Momentum:   1,
	Accelerate: 2,
	Elite:      3,
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Rank returns the ordering position of the tier, or 0 for unknown tiers.
func (t Tier) Rank() int {
	return tierRank[t]
}

// HigherThan reports whether t is strictly higher-ranked than other.
func (t Tier) HigherThan(other Tier) bool {
	return t.Rank() > other.Rank()
}

// LowerThan reports whether t is strictly lower-ranked than other.
func (t Tier) LowerThan(other Tier) bool {
	return t.Valid() && other.Valid() && t.Rank() < other.Rank()
}

// Tiers returns all known tiers ordered from lowest to highest.
func Tiers() []Tier {
	return []Tier{Momentum, Accelerate, Elite}
}

// BillingPeriod represents the billing cadence of a subscription.
type BillingPeriod string

const (
	Monthly   BillingPeriod = "monthly"
	Quarterly BillingPeriod = "quarterly"
	Yearly    BillingPeriod = "yearly"
)

// Valid reports whether p is a known billing period.
func (p BillingPeriod) Valid() bool {
	switch p {
	case Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

// Next returns the end of a billing period that starts at from.
func (p BillingPeriod) Next(from time.Time) time.Time {
	switch p {
	case Quarterly:
		return from.AddDate(0, 3, 0)
	case Yearly:
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}

// Label returns the human-readable cadence name used on invoice documents.
func (p BillingPeriod) Label() string {
	switch p {
	case Quarterly:
		return "Quarterly"
	case Yearly:
		return "Annual"
	default:
		return "Monthly"
	}
}

// Resource represents a metered product resource.
type Resource string

const (
	ResourceApplications Resource = "applications"
	ResourceCVs          Resource = "cvs"
	ResourceInterviews   Resource = "interviews"
	ResourceCompensation Resource = "compensation"
	ResourceContracts    Resource = "contracts"
	ResourceAIAvatar     Resource = "ai_avatar"
)

// Resources returns all metered resources in stable order.
func Resources() []Resource {
	return []Resource{
		ResourceApplications,
		ResourceCVs,
		ResourceInterviews,
		ResourceCompensation,
		ResourceContracts,
		ResourceAIAvatar,
	}
}

// Valid reports whether r is a known metered resource.
func (r Resource) Valid() bool {
	switch r {
	case ResourceApplications, ResourceCVs, ResourceInterviews,
		ResourceCompensation, ResourceContracts, ResourceAIAvatar:
		return true
	}
	return false
}

// Feature represents a tier-gated product capability.
type Feature string

const (
	FeatureCVTailoring       Feature = "cv_tailoring"
	FeatureJobMatching       Feature = "job_matching"
	FeatureInterviewPractice Feature = "interview_practice"
	FeatureCompensationCoach Feature = "compensation_coach"
	FeatureContractReview    Feature = "contract_review"
	FeatureAICompanion       Feature = "ai_companion"
	FeatureAIAvatar          Feature = "ai_avatar"
	FeaturePrioritySupport   Feature = "priority_support"
)

// Valid reports whether f is a known feature flag.
func (f Feature) Valid() bool {
	switch f {
	case FeatureCVTailoring, FeatureJobMatching, FeatureInterviewPractice,
		FeatureCompensationCoach, FeatureContractReview, FeatureAICompanion,
		FeatureAIAvatar, FeaturePrioritySupport:
		return true
	}
	return false
}

// Unlimited marks a resource without a usage cap (-1 for SQL compatibility).
const Unlimited int64 = -1

// Money represents a monetary amount in the smallest currency unit.
type Money struct {
	Amount   int64  `yaml:"amount" json:"amount"`     // cents for USD
	Currency string `yaml:"currency" json:"currency"` // ISO 4217 code
}
