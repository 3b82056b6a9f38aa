package subscription

import (
	"time"

	"github.com/google/uuid"

	"github.com/stridehq/subscription-engine/pkg/tier"
)

// Status represents the lifecycle state of a subscription record.
// A tracking-only record (no tier yet) has an empty status.
type Status string

const (
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Usage holds the per-resource counters for the current billing period.
type Usage map[tier.Resource]int64

// NewUsage returns a zeroed counter set covering every metered resource.
func NewUsage() Usage {
	u := make(Usage, len(tier.Resources()))
	for _, r := range tier.Resources() {
		u[r] = 0
	}
	return u
}

// Get returns the counter value for a resource, 0 if never tracked.
func (u Usage) Get(r tier.Resource) int64 {
	return u[r]
}

// Clone returns an independent copy of the counters.
func (u Usage) Clone() Usage {
	out := make(Usage, len(u))
	for r, v := range u {
		out[r] = v
	}
	return out
}

// Record is the single per-user subscription row. Rows are created lazily as
// tracking-only records (empty Tier) so usage history accumulates before the
// user ever pays.
type Record struct {
	UserID uuid.UUID

	Tier          tier.Tier          // empty = never subscribed
	BillingPeriod tier.BillingPeriod // empty iff Tier is empty
	Status        Status

	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time

	CancelledAt             *time.Time
	CancellationEffectiveAt *time.Time

	// Pending change applied at the next successful renewal, never immediately.
	ScheduledTier          tier.Tier
	ScheduledBillingPeriod tier.BillingPeriod

	// Selection recorded before the user completes the out-of-band payment
	// flow; cleared once a webhook activates the subscription.
	PendingTier          tier.Tier
	PendingBillingPeriod tier.BillingPeriod

	PaymentToken        string
	RecurringID         string
	LastTransactionCode string // renewal de-duplication key

	InvoiceCustomerID string

	Usage       Usage
	LastResetAt *time.Time

	// Version increments on every write and backs the optimistic
	// concurrency check in Store.Save.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subscribed reports whether the user has ever activated a tier.
func (r *Record) Subscribed() bool {
	return r.Tier != ""
}

// IsActive reports whether the subscription is in active status.
func (r *Record) IsActive() bool {
	return r.Status == StatusActive
}

// IsCancelled reports whether the subscription has been cancelled.
func (r *Record) IsCancelled() bool {
	return r.Status == StatusCancelled
}

// HasScheduledChange reports whether a tier or billing-period change is pending.
func (r *Record) HasScheduledChange() bool {
	return r.ScheduledTier != "" || r.ScheduledBillingPeriod != ""
}

// EventType classifies entries in the append-only subscription event log.
type EventType string

const (
	EventActivated                EventType = "activated"
	EventRenewed                  EventType = "renewed"
	EventUpgraded                 EventType = "upgraded"
	EventDowngradeScheduled       EventType = "downgrade_scheduled"
	EventScheduledChangeCancelled EventType = "scheduled_change_cancelled"
	EventCancelled                EventType = "cancelled"
	EventPaymentFailed            EventType = "payment_failed"
)

// Event is an immutable audit entry. The log is never used to derive current
// state; the Record is authoritative.
type Event struct {
	UserID     uuid.UUID
	Type       EventType
	Payload    map[string]any
	OccurredAt time.Time
}

// Snapshot is a frozen monthly copy of the usage counters plus the tier held
// at snapshot time. Written once per (user, month) and never overwritten; the
// recommendation engine averages over these rows.
type Snapshot struct {
	UserID    uuid.UUID
	Month     string // "2006-01" of the billing period being closed
	Tier      tier.Tier
	Usage     Usage
	CreatedAt time.Time
}

// PaymentDetails carries the provider identifiers captured from a checkout or
// renewal webhook.
type PaymentDetails struct {
	Token           string
	RecurringID     string
	TransactionCode string
}
