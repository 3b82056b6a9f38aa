// Package recommend suggests a subscription tier from a user's historical
// monthly usage. Averages come from the immutable monthly snapshots, so a
// mid-month spike never skews the suggestion until the month closes.
package recommend

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/stridehq/subscription-engine/pkg/subscription"
	"github.com/stridehq/subscription-engine/pkg/tier"
)

// SnapshotSource provides the monthly usage history for a user.
type SnapshotSource interface {
	ListSnapshots(ctx context.Context, userID uuid.UUID) ([]subscription.Snapshot, error)
}

// UsageAverages holds the per-resource mean across all tracked months.
type UsageAverages struct {
	Applications  float64 `json:"applications"`
	CVs           float64 `json:"cvs"`
	Interviews    float64 `json:"interviews"`
	Compensation  float64 `json:"compensation"`
	Contracts     float64 `json:"contracts"`
	AIAvatar      float64 `json:"aiAvatar"`
	MonthsTracked int     `json:"monthsTracked"`
}

// Recommendation is a suggested tier with the averages that produced it.
type Recommendation struct {
	Tier     tier.Tier     `json:"recommendedTier"`
	Reason   string        `json:"reason"`
	Averages UsageAverages `json:"averages"`
}

// Engine computes tier recommendations from snapshot history.
type Engine struct {
	snapshots SnapshotSource
}

func NewEngine(snapshots SnapshotSource) *Engine {
	if snapshots == nil {
		panic("recommend: snapshot source is required")
	}
	return &Engine{snapshots: snapshots}
}

// GetUsageAverages averages each counter across all of the user's monthly
// snapshots. A user with no history gets zeros and MonthsTracked of 0.
func (e *Engine) GetUsageAverages(ctx context.Context, userID uuid.UUID) (UsageAverages, error) {
	snaps, err := e.snapshots.ListSnapshots(ctx, userID)
	if err != nil {
		return UsageAverages{}, fmt.Errorf("list snapshots: %w", err)
	}
	if len(snaps) == 0 {
		return UsageAverages{}, nil
	}

	var totals [6]int64
	for _, s := range snaps {
		totals[0] += s.Usage.Get(tier.ResourceApplications)
		totals[1] += s.Usage.Get(tier.ResourceCVs)
		totals[2] += s.Usage.Get(tier.ResourceInterviews)
		totals[3] += s.Usage.Get(tier.ResourceCompensation)
		totals[4] += s.Usage.Get(tier.ResourceContracts)
		totals[5] += s.Usage.Get(tier.ResourceAIAvatar)
	}

	n := float64(len(snaps))
	return UsageAverages{
		Applications:  float64(totals[0]) / n,
		CVs:           float64(totals[1]) / n,
		Interviews:    float64(totals[2]) / n,
		Compensation:  float64(totals[3]) / n,
		Contracts:     float64(totals[4]) / n,
		AIAvatar:      float64(totals[5]) / n,
		MonthsTracked: len(snaps),
	}, nil
}

// GetRecommendation runs the threshold ladder over the user's averages.
func (e *Engine) GetRecommendation(ctx context.Context, userID uuid.UUID) (Recommendation, error) {
	avg, err := e.GetUsageAverages(ctx, userID)
	if err != nil {
		return Recommendation{}, err
	}
	rec := Recommend(avg)
	rec.Averages = avg
	return rec, nil
}

// Recommend is the pure threshold ladder: heavy AI-avatar usage points to
// elite, sustained activity above the entry limits points to accelerate,
// everything else stays on momentum.
func Recommend(avg UsageAverages) Recommendation {
	if avg.AIAvatar > 5 {
		return Recommendation{
			Tier:     tier.Elite,
			Reason:   "heavy AI avatar usage",
			Averages: avg,
		}
	}

	switch {
	case avg.Applications > 8:
		return accelerateFor(avg, "application volume above the entry limit")
	case avg.CVs > 8:
		return accelerateFor(avg, "CV volume above the entry limit")
	case avg.Interviews > 3:
		return accelerateFor(avg, "frequent interview practice")
	case avg.Compensation > 3:
		return accelerateFor(avg, "frequent compensation sessions")
	case avg.Contracts > 2:
		return accelerateFor(avg, "frequent contract reviews")
	case avg.AIAvatar > 0:
		return accelerateFor(avg, "AI avatar usage requires a higher tier")
	}

	return Recommendation{
		Tier:     tier.Momentum,
		Reason:   "usage fits the entry tier",
		Averages: avg,
	}
}

func accelerateFor(avg UsageAverages, reason string) Recommendation {
	return Recommendation{
		Tier:     tier.Accelerate,
		Reason:   reason,
		Averages: avg,
	}
}
