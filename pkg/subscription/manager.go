package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stridehq/subscription-engine/pkg/logger"
	"github.com/stridehq/subscription-engine/pkg/tier"
)

// Charger performs an immediate one-time charge against a stored payment
// token. Satisfied by the payment gateway adapter.
type Charger interface {
	ChargeOnce(ctx context.Context, paymentToken string, amount tier.Money, description string) (transactionID string, err error)
}

// pastDueGrace is how long a past_due subscription survives before the daily
// expiration scan flips it to expired.
const pastDueGrace = 3 * 24 * time.Hour

// Manager owns every tier/period/counter transition on subscription records.
// It is the only writer of lifecycle fields; the access package only
// increments usage counters.
type Manager struct {
	store   Store
	catalog *tier.Catalog
	charger Charger
	now     func() time.Time
	log     *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger supplies a structured logger.
func WithLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewManager creates a subscription Manager.
// Panics on nil required dependencies to fail fast during wiring.
func NewManager(store Store, catalog *tier.Catalog, charger Charger, opts ...ManagerOption) *Manager {
	if store == nil {
		panic("subscription: Store is required")
	}
	if catalog == nil {
		panic("subscription: tier.Catalog is required")
	}
	if charger == nil {
		panic("subscription: Charger is required")
	}

	m := &Manager{
		store:   store,
		catalog: catalog,
		charger: charger,
		now:     func() time.Time { return time.Now().UTC() },
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ActivateSubscription activates (or re-activates) a subscription as an
// idempotent upsert. It opens a fresh billing period anchored at now, zeroes
// all usage counters, and clears pending, scheduled, and cancellation state.
// LastResetAt is deliberately left unset so the first renewal always performs
// its own counter reset instead of skipping it.
func (m *Manager) ActivateSubscription(ctx context.Context, userID uuid.UUID, t tier.Tier, p tier.BillingPeriod, pay *PaymentDetails) (*Record, error) {
	if !t.Valid() {
		return nil, ErrUnknownTier
	}
	if !p.Valid() {
		return nil, ErrUnknownBillingPeriod
	}

	rec, err := m.store.Ensure(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	end := p.Next(now)

	rec.Tier = t
	rec.BillingPeriod = p
	rec.Status = StatusActive
	rec.CurrentPeriodStart = &now
	rec.CurrentPeriodEnd = &end
	rec.Usage = NewUsage()
	rec.LastResetAt = nil
	rec.PendingTier = ""
	rec.PendingBillingPeriod = ""
	rec.ScheduledTier = ""
	rec.ScheduledBillingPeriod = ""
	rec.CancelledAt = nil
	rec.CancellationEffectiveAt = nil
	if pay != nil {
		if pay.Token != "" {
			rec.PaymentToken = pay.Token
		}
		if pay.RecurringID != "" {
			rec.RecurringID = pay.RecurringID
		}
		if pay.TransactionCode != "" {
			rec.LastTransactionCode = pay.TransactionCode
		}
	}

	if err := m.store.Save(ctx, rec); err != nil {
		return nil, err
	}

	m.appendEvent(ctx, userID, EventActivated, map[string]any{
		"tier":           string(t),
		"billing_period": string(p),
		"period_end":     end,
	})

	m.log.InfoContext(ctx, "subscription activated",
		logger.UserID(userID),
		slog.String("tier", string(t)),
		slog.String("billing_period", string(p)),
	)

	return rec, nil
}

// RecordPendingSelection remembers the tier and billing period a user picked
// at checkout. The selection is confirmed (or discarded) by the webhook that
// follows payment; until then it has no effect on access.
func (m *Manager) RecordPendingSelection(ctx context.Context, userID uuid.UUID, t tier.Tier, p tier.BillingPeriod) (*Record, error) {
	if !t.Valid() {
		return nil, ErrUnknownTier
	}
	if !p.Valid() {
		return nil, ErrUnknownBillingPeriod
	}

	rec, err := m.store.Ensure(ctx, userID)
	if err != nil {
		return nil, err
	}

	rec.PendingTier = t
	rec.PendingBillingPeriod = p

	if err := m.store.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpgradeResult reports the outcome of an immediate upgrade.
type UpgradeResult struct {
	Record         *Record
	ProratedAmount tier.Money
	TransactionID  string
}

// UpgradeSubscription switches the user to a strictly higher tier right away,
// charging a prorated difference for the remainder of the current period.
// Period dates, billing period and usage counters are left untouched; a
// pending scheduled downgrade is superseded.
func (m *Manager) UpgradeSubscription(ctx context.Context, userID uuid.UUID, target tier.Tier) (*UpgradeResult, error) {
	if !target.Valid() {
		return nil, ErrUnknownTier
	}

	rec, err := m.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !rec.Subscribed() {
		return nil, ErrNoSubscription
	}
	if !target.HigherThan(rec.Tier) {
		return nil, ErrNotAnUpgrade
	}
	if rec.PaymentToken == "" {
		return nil, ErrNoPaymentToken
	}

	amount, err := m.prorateUpgrade(rec, target)
	if err != nil {
		return nil, err
	}

	description := fmt.Sprintf("Upgrade to %s (prorated)", target)
	txID, err := m.charger.ChargeOnce(ctx, rec.PaymentToken, amount, description)
	if err != nil {
		return nil, errors.Join(ErrChargeFailed, err)
	}

	from := rec.Tier
	rec.Tier = target
	// An upgrade supersedes any pending downgrade.
	rec.ScheduledTier = ""

	if err := m.store.Save(ctx, rec); err != nil {
		return nil, err
	}

	m.appendEvent(ctx, userID, EventUpgraded, map[string]any{
		"from":            string(from),
		"to":              string(target),
		"prorated_amount": amount.Amount,
		"currency":        amount.Currency,
		"transaction_id":  txID,
	})

	m.log.InfoContext(ctx, "subscription upgraded",
		logger.UserID(userID),
		slog.String("from", string(from)),
		slog.String("to", string(target)),
		slog.Int64("prorated_amount", amount.Amount),
	)

	return &UpgradeResult{Record: rec, ProratedAmount: amount, TransactionID: txID}, nil
}

// prorateUpgrade computes the one-time charge for the tier price difference
// over the remaining whole days of the current period.
func (m *Manager) prorateUpgrade(rec *Record, target tier.Tier) (tier.Money, error) {
	if rec.CurrentPeriodStart == nil || rec.CurrentPeriodEnd == nil ||
		!rec.CurrentPeriodEnd.After(*rec.CurrentPeriodStart) {
		return tier.Money{}, ErrInvalidPeriod
	}

	currentPrice, err := m.catalog.Price(rec.Tier, rec.BillingPeriod)
	if err != nil {
		return tier.Money{}, err
	}
	targetPrice, err := m.catalog.Price(target, rec.BillingPeriod)
	if err != nil {
		return tier.Money{}, err
	}

	totalDays := wholeDays(rec.CurrentPeriodEnd.Sub(*rec.CurrentPeriodStart))
	remainingDays := wholeDays(rec.CurrentPeriodEnd.Sub(m.now()))
	if totalDays <= 0 {
		return tier.Money{}, ErrInvalidPeriod
	}
	if remainingDays < 0 {
		remainingDays = 0
	}
	if remainingDays > totalDays {
		remainingDays = totalDays
	}

	diff := targetPrice.Amount - currentPrice.Amount
	if diff < 0 {
		diff = 0
	}

	return tier.Money{
		Amount:   diff * remainingDays / totalDays,
		Currency: targetPrice.Currency,
	}, nil
}

func wholeDays(d time.Duration) int64 {
	return int64(d.Hours() / 24)
}

// ScheduleDowngrade records a strictly lower target tier to be applied at the
// next successful renewal. The current tier, period and counters stay as they
// are. Returns the effective date, which is the current period end.
func (m *Manager) ScheduleDowngrade(ctx context.Context, userID uuid.UUID, target tier.Tier) (time.Time, error) {
	if !target.Valid() {
		return time.Time{}, ErrUnknownTier
	}

	rec, err := m.store.Get(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	if !rec.Subscribed() {
		return time.Time{}, ErrNoSubscription
	}
	if !target.LowerThan(rec.Tier) {
		return time.Time{}, ErrNotADowngrade
	}
	if rec.CurrentPeriodEnd == nil {
		return time.Time{}, ErrInvalidPeriod
	}

	rec.ScheduledTier = target
	if err := m.store.Save(ctx, rec); err != nil {
		return time.Time{}, err
	}

	effective := *rec.CurrentPeriodEnd
	m.appendEvent(ctx, userID, EventDowngradeScheduled, map[string]any{
		"from":         string(rec.Tier),
		"to":           string(target),
		"effective_at": effective,
	})

	return effective, nil
}

// ScheduleBillingPeriodChange records a new billing cadence to take effect at
// the next successful renewal.
func (m *Manager) ScheduleBillingPeriodChange(ctx context.Context, userID uuid.UUID, p tier.BillingPeriod) (*Record, error) {
	if !p.Valid() {
		return nil, ErrUnknownBillingPeriod
	}

	rec, err := m.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !rec.Subscribed() {
		return nil, ErrNoSubscription
	}

	rec.ScheduledBillingPeriod = p
	if err := m.store.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CancelScheduledChange clears any pending tier or billing-period change.
func (m *Manager) CancelScheduledChange(ctx context.Context, userID uuid.UUID) (*Record, error) {
	rec, err := m.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !rec.HasScheduledChange() {
		return nil, ErrNoScheduledChange
	}

	cleared := map[string]any{}
	if rec.ScheduledTier != "" {
		cleared["scheduled_tier"] = string(rec.ScheduledTier)
	}
	if rec.ScheduledBillingPeriod != "" {
		cleared["scheduled_billing_period"] = string(rec.ScheduledBillingPeriod)
	}

	rec.ScheduledTier = ""
	rec.ScheduledBillingPeriod = ""

	if err := m.store.Save(ctx, rec); err != nil {
		return nil, err
	}

	m.appendEvent(ctx, userID, EventScheduledChangeCancelled, cleared)
	return rec, nil
}

// RenewSubscription processes a renewal delivered by the payment provider.
//
// Webhook delivery is at-least-once and may repeat with a fresh transaction
// code, so two independent idempotency guards apply: a transaction code equal
// to the stored one is a duplicate delivery and mutates nothing, and counters
// are reset only when LastResetAt predates the current period start.
func (m *Manager) RenewSubscription(ctx context.Context, userID uuid.UUID, transactionCode string) (*Record, error) {
	rec, err := m.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoSubscription
		}
		return nil, err
	}
	if rec.Tier == "" || rec.BillingPeriod == "" {
		return nil, ErrNoTier
	}

	if transactionCode != "" && transactionCode == rec.LastTransactionCode {
		m.log.InfoContext(ctx, "duplicate renewal webhook ignored",
			logger.UserID(userID),
			slog.String("transaction_code", transactionCode),
		)
		return rec, nil
	}

	now := m.now()

	resetDue := rec.LastResetAt == nil ||
		(rec.CurrentPeriodStart != nil && rec.LastResetAt.Before(*rec.CurrentPeriodStart))

	if resetDue && rec.CurrentPeriodStart != nil {
		// Freeze the closing period's counters before they are zeroed.
		// The snapshot keeps the tier held during that period, so it is
		// written before the scheduled change is applied.
		snap := Snapshot{
			UserID: userID,
			Month:  rec.CurrentPeriodStart.Format("2006-01"),
			Tier:   rec.Tier,
			Usage:  rec.Usage.Clone(),
		}
		if err := m.store.SaveSnapshot(ctx, snap); err != nil {
			m.log.ErrorContext(ctx, "failed to freeze usage snapshot",
				logger.UserID(userID),
				logger.Error(err),
			)
		}
	}

	if rec.ScheduledTier != "" {
		rec.Tier = rec.ScheduledTier
		rec.ScheduledTier = ""
	}
	if rec.ScheduledBillingPeriod != "" {
		rec.BillingPeriod = rec.ScheduledBillingPeriod
		rec.ScheduledBillingPeriod = ""
	}

	end := rec.BillingPeriod.Next(now)
	rec.CurrentPeriodStart = &now
	rec.CurrentPeriodEnd = &end
	rec.Status = StatusActive

	if resetDue {
		rec.Usage = NewUsage()
		rec.LastResetAt = &now
	}

	rec.LastTransactionCode = transactionCode

	if err := m.store.Save(ctx, rec); err != nil {
		return nil, err
	}

	m.appendEvent(ctx, userID, EventRenewed, map[string]any{
		"transaction_code": transactionCode,
		"tier":             string(rec.Tier),
		"billing_period":   string(rec.BillingPeriod),
		"counters_reset":   resetDue,
	})

	m.log.InfoContext(ctx, "subscription renewed",
		logger.UserID(userID),
		slog.String("tier", string(rec.Tier)),
		slog.Bool("counters_reset", resetDue),
	)

	return rec, nil
}

// CancelSubscription marks the subscription cancelled effective at the end of
// the paid period. Tier and counters are untouched: the user keeps full
// access until the effective date.
func (m *Manager) CancelSubscription(ctx context.Context, userID uuid.UUID) (*Record, error) {
	rec, err := m.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	// A tracking-only record has no subscription to cancel.
	if !rec.Subscribed() {
		return nil, ErrNotFound
	}
	if rec.IsCancelled() {
		return nil, ErrAlreadyCancelled
	}
	if rec.CurrentPeriodEnd == nil {
		return nil, ErrInvalidPeriod
	}

	now := m.now()
	effective := *rec.CurrentPeriodEnd

	rec.Status = StatusCancelled
	rec.CancelledAt = &now
	rec.CancellationEffectiveAt = &effective

	if err := m.store.Save(ctx, rec); err != nil {
		return nil, err
	}

	m.appendEvent(ctx, userID, EventCancelled, map[string]any{
		"effective_at": effective,
	})

	m.log.InfoContext(ctx, "subscription cancelled",
		logger.UserID(userID),
		slog.Time("effective_at", effective),
	)

	return rec, nil
}

// HandlePaymentFailure marks the subscription past_due. Tier and counters are
// untouched; the provider keeps retrying and a later successful renewal
// reactivates the record.
func (m *Manager) HandlePaymentFailure(ctx context.Context, userID uuid.UUID) error {
	rec, err := m.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNoSubscription
		}
		return err
	}
	if !rec.Subscribed() {
		return ErrNoSubscription
	}

	rec.Status = StatusPastDue
	if err := m.store.Save(ctx, rec); err != nil {
		return err
	}

	m.appendEvent(ctx, userID, EventPaymentFailed, nil)

	m.log.WarnContext(ctx, "payment failure recorded", logger.UserID(userID))
	return nil
}

// ProcessExpirations flips cancelled records past their effective date and
// past_due records beyond the grace window to expired, returning how many
// records transitioned. Active and tracking-only records are never touched.
// Safe to run more than once per day: expiring is a status precondition.
func (m *Manager) ProcessExpirations(ctx context.Context) (int, error) {
	now := m.now()
	expired := 0

	dueCancelled, err := m.store.ListCancelledDue(ctx, now)
	if err != nil {
		return 0, err
	}
	for i := range dueCancelled {
		if m.expireRecord(ctx, &dueCancelled[i]) {
			expired++
		}
	}

	duePastDue, err := m.store.ListPastDueBefore(ctx, now.Add(-pastDueGrace))
	if err != nil {
		return expired, err
	}
	for i := range duePastDue {
		if m.expireRecord(ctx, &duePastDue[i]) {
			expired++
		}
	}

	return expired, nil
}

// expireRecord flips one record to expired. A concurrent modification means
// another writer got there first; skip rather than fail the whole scan.
func (m *Manager) expireRecord(ctx context.Context, rec *Record) bool {
	rec.Status = StatusExpired
	if err := m.store.Save(ctx, rec); err != nil {
		m.log.WarnContext(ctx, "skipping expiration",
			logger.UserID(rec.UserID),
			logger.Error(err),
		)
		return false
	}
	return true
}

// appendEvent writes to the audit log. Log failures are reported but never
// fail the state transition that already succeeded.
func (m *Manager) appendEvent(ctx context.Context, userID uuid.UUID, typ EventType, payload map[string]any) {
	ev := Event{
		UserID:     userID,
		Type:       typ,
		Payload:    payload,
		OccurredAt: m.now(),
	}
	if err := m.store.AppendEvent(ctx, ev); err != nil {
		m.log.ErrorContext(ctx, "failed to append subscription event",
			logger.UserID(userID),
			logger.Event(string(typ)),
			logger.Error(err),
		)
	}
}
