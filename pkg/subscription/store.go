package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stridehq/subscription-engine/pkg/tier"
)

// Store is the persistence boundary for subscription state. It holds no
// business rules: lifecycle invariants live in Manager, limit policy in the
// access package.
type Store interface {
	// Get retrieves the record for a user. Returns ErrNotFound if absent.
	Get(ctx context.Context, userID uuid.UUID) (*Record, error)

	// Ensure returns the record for a user, creating a tracking-only row
	// on first sighting.
	Ensure(ctx context.Context, userID uuid.UUID) (*Record, error)

	// Save persists the record using an optimistic version check. Returns
	// ErrConcurrentModification when another writer updated the row since
	// it was read, ErrNotFound when the row does not exist.
	Save(ctx context.Context, rec *Record) error

	// AppendEvent appends to the immutable subscription event log.
	AppendEvent(ctx context.Context, ev Event) error

	// ListCancelledDue returns cancelled records whose cancellation
	// effective date is at or before now.
	ListCancelledDue(ctx context.Context, now time.Time) ([]Record, error)

	// ListPastDueBefore returns past_due records last updated before cutoff.
	ListPastDueBefore(ctx context.Context, cutoff time.Time) ([]Record, error)

	// IncrementUsage atomically adds 1 to the named counter and returns the
	// new value. Creates a tracking-only row if none exists.
	IncrementUsage(ctx context.Context, userID uuid.UUID, res tier.Resource) (int64, error)

	// IncrementUsageBelow adds 1 to the counter only while it is strictly
	// below limit, as a single conditional update. Returns the counter value
	// after the attempt and whether the increment was applied.
	IncrementUsageBelow(ctx context.Context, userID uuid.UUID, res tier.Resource, limit int64) (used int64, applied bool, err error)

	// SaveSnapshot writes the monthly rollup. A snapshot already recorded
	// for the same (user, month) is left untouched.
	SaveSnapshot(ctx context.Context, snap Snapshot) error

	// ListSnapshots returns all monthly snapshots for a user, oldest first.
	ListSnapshots(ctx context.Context, userID uuid.UUID) ([]Snapshot, error)

	// ListCorruptSnapshots returns snapshots holding a negative counter
	// value. Used by the cron reconciliation pass.
	ListCorruptSnapshots(ctx context.Context) ([]Snapshot, error)
}
