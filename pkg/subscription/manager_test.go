package subscription_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stridehq/subscription-engine/pkg/subscription"
	"github.com/stridehq/subscription-engine/pkg/tier"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{t: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type chargeCall struct {
	token       string
	amount      tier.Money
	description string
}

type fakeCharger struct {
	mu    sync.Mutex
	txID  string
	err   error
	calls []chargeCall
}

func (f *fakeCharger) ChargeOnce(ctx context.Context, paymentToken string, amount tier.Money, description string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, chargeCall{token: paymentToken, amount: amount, description: description})
	if f.err != nil {
		return "", f.err
	}
	if f.txID == "" {
		return "txn_test", nil
	}
	return f.txID, nil
}

func newTestManager(t *testing.T, clock *testClock) (*subscription.Manager, *subscription.MemoryStore, *fakeCharger) {
	t.Helper()

	catalog, err := tier.NewCatalog(context.Background(), tier.DefaultSource())
	require.NoError(t, err)

	store := subscription.NewMemoryStore()
	store.SetClock(clock.Now)

	charger := &fakeCharger{}
	mgr := subscription.NewManager(store, catalog, charger, subscription.WithClock(clock.Now))
	return mgr, store, charger
}

func eventTypes(store *subscription.MemoryStore) []subscription.EventType {
	events := store.Events()
	types := make([]subscription.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func TestManager_ActivateSubscription(t *testing.T) {
	t.Parallel()

	baseTime := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	t.Run("activates with zeroed counters and fresh period", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock(baseTime)
		mgr, store, _ := newTestManager(t, clock)
		userID := uuid.New()

		rec, err := mgr.ActivateSubscription(context.Background(), userID, tier.Momentum, tier.Monthly, &subscription.PaymentDetails{
			Token:           "tok_1",
			RecurringID:     "rcr_1",
			TransactionCode: "code_1",
		})
		require.NoError(t, err)

		assert.Equal(t, tier.Momentum, rec.Tier)
		assert.Equal(t, tier.Monthly, rec.BillingPeriod)
		assert.Equal(t, subscription.StatusActive, rec.Status)
		require.NotNil(t, rec.CurrentPeriodStart)
		require.NotNil(t, rec.CurrentPeriodEnd)
		assert.Equal(t, baseTime, *rec.CurrentPeriodStart)
		assert.Equal(t, baseTime.AddDate(0, 1, 0), *rec.CurrentPeriodEnd)
		for _, res := range tier.Resources() {
			assert.Zero(t, rec.Usage.Get(res), "counter %s must be zero", res)
		}
		// First renewal must perform its own reset, so activation leaves this unset.
		assert.Nil(t, rec.LastResetAt)
		assert.Equal(t, "tok_1", rec.PaymentToken)
		assert.Equal(t, "code_1", rec.LastTransactionCode)

		assert.Equal(t, []subscription.EventType{subscription.EventActivated}, eventTypes(store))
	})

	t.Run("re-activation clears cancellation and scheduled state", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock(baseTime)
		mgr, _, _ := newTestManager(t, clock)
		userID := uuid.New()

		_, err := mgr.ActivateSubscription(context.Background(), userID, tier.Accelerate, tier.Monthly, nil)
		require.NoError(t, err)
		_, err = mgr.ScheduleDowngrade(context.Background(), userID, tier.Momentum)
		require.NoError(t, err)
		_, err = mgr.CancelSubscription(context.Background(), userID)
		require.NoError(t, err)

		rec, err := mgr.ActivateSubscription(context.Background(), userID, tier.Accelerate, tier.Yearly, nil)
		require.NoError(t, err)

		assert.Equal(t, subscription.StatusActive, rec.Status)
		assert.Empty(t, rec.ScheduledTier)
		assert.Nil(t, rec.CancelledAt)
		assert.Nil(t, rec.CancellationEffectiveAt)
		assert.Equal(t, baseTime.AddDate(1, 0, 0), *rec.CurrentPeriodEnd)
	})

	t.Run("rejects unknown tier and billing period", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock(baseTime)
		mgr, _, _ := newTestManager(t, clock)

		_, err := mgr.ActivateSubscription(context.Background(), uuid.New(), "platinum", tier.Monthly, nil)
		assert.ErrorIs(t, err, subscription.ErrUnknownTier)

		_, err = mgr.ActivateSubscription(context.Background(), uuid.New(), tier.Momentum, "weekly", nil)
		assert.ErrorIs(t, err, subscription.ErrUnknownBillingPeriod)
	})
}

func TestManager_UpgradeSubscription(t *testing.T) {
	t.Parallel()

	baseTime := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	setupMidCycle := func(t *testing.T) (*subscription.Manager, *subscription.MemoryStore, *fakeCharger, uuid.UUID) {
		t.Helper()
		// 28-day period with 14 days remaining at upgrade time.
		clock := newTestClock(baseTime)
		mgr, store, charger := newTestManager(t, clock)
		userID := uuid.New()

		_, err := mgr.ActivateSubscription(context.Background(), userID, tier.Momentum, tier.Monthly, &subscription.PaymentDetails{Token: "tok_1"})
		require.NoError(t, err)

		rec, err := store.Get(context.Background(), userID)
		require.NoError(t, err)
		start := baseTime
		end := baseTime.Add(28 * 24 * time.Hour)
		rec.CurrentPeriodStart = &start
		rec.CurrentPeriodEnd = &end
		require.NoError(t, store.Save(context.Background(), rec))

		clock.Set(baseTime.Add(14 * 24 * time.Hour))
		return mgr, store, charger, userID
	}

	t.Run("charges prorated difference for remaining days", func(t *testing.T) {
		t.Parallel()
		mgr, _, charger, userID := setupMidCycle(t)

		// ($18.00 - $12.00) / 28 days * 14 days = $3.00
		res, err := mgr.UpgradeSubscription(context.Background(), userID, tier.Accelerate)
		require.NoError(t, err)

		assert.Equal(t, int64(300), res.ProratedAmount.Amount)
		assert.Equal(t, "USD", res.ProratedAmount.Currency)
		require.Len(t, charger.calls, 1)
		assert.Equal(t, "tok_1", charger.calls[0].token)
		assert.Equal(t, int64(300), charger.calls[0].amount.Amount)
	})

	t.Run("changes only the tier", func(t *testing.T) {
		t.Parallel()
		mgr, store, _, userID := setupMidCycle(t)

		before, err := store.Get(context.Background(), userID)
		require.NoError(t, err)
		_, err = store.IncrementUsage(context.Background(), userID, tier.ResourceApplications)
		require.NoError(t, err)

		res, err := mgr.UpgradeSubscription(context.Background(), userID, tier.Accelerate)
		require.NoError(t, err)

		after := res.Record
		assert.Equal(t, tier.Accelerate, after.Tier)
		assert.Equal(t, before.BillingPeriod, after.BillingPeriod)
		assert.Equal(t, *before.CurrentPeriodStart, *after.CurrentPeriodStart)
		assert.Equal(t, *before.CurrentPeriodEnd, *after.CurrentPeriodEnd)
		assert.Equal(t, int64(1), after.Usage.Get(tier.ResourceApplications))
	})

	t.Run("supersedes a pending downgrade", func(t *testing.T) {
		t.Parallel()
		mgr, store, _, userID := setupMidCycle(t)

		rec, err := store.Get(context.Background(), userID)
		require.NoError(t, err)
		rec.Tier = tier.Accelerate
		rec.ScheduledTier = tier.Momentum
		require.NoError(t, store.Save(context.Background(), rec))

		up, err := mgr.UpgradeSubscription(context.Background(), userID, tier.Elite)
		require.NoError(t, err)
		assert.Equal(t, tier.Elite, up.Record.Tier)
		assert.Empty(t, up.Record.ScheduledTier)
	})

	t.Run("rejects non-upgrades", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock(baseTime)
		mgr, _, _ := newTestManager(t, clock)
		userID := uuid.New()

		_, err := mgr.ActivateSubscription(context.Background(), userID, tier.Elite, tier.Monthly, &subscription.PaymentDetails{Token: "tok_1"})
		require.NoError(t, err)

		_, err = mgr.UpgradeSubscription(context.Background(), userID, tier.Momentum)
		assert.ErrorIs(t, err, subscription.ErrNotAnUpgrade)

		_, err = mgr.UpgradeSubscription(context.Background(), userID, tier.Elite)
		assert.ErrorIs(t, err, subscription.ErrNotAnUpgrade)
	})

	t.Run("charge failure leaves the record untouched", func(t *testing.T) {
		t.Parallel()
		mgr, store, charger, userID := setupMidCycle(t)
		charger.err = assert.AnError

		_, err := mgr.UpgradeSubscription(context.Background(), userID, tier.Accelerate)
		assert.ErrorIs(t, err, subscription.ErrChargeFailed)

		rec, err := store.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, tier.Momentum, rec.Tier)
	})

	t.Run("requires an existing subscription", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock(baseTime)
		mgr, store, _ := newTestManager(t, clock)
		userID := uuid.New()

		// Tracking-only record: usage tracked, nothing to upgrade.
		_, err := store.Ensure(context.Background(), userID)
		require.NoError(t, err)

		_, err = mgr.UpgradeSubscription(context.Background(), userID, tier.Accelerate)
		assert.ErrorIs(t, err, subscription.ErrNoSubscription)
	})
}

func TestManager_ScheduleDowngrade(t *testing.T) {
	t.Parallel()

	baseTime := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	t.Run("records the change without touching current state", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock(baseTime)
		mgr, store, _ := newTestManager(t, clock)
		userID := uuid.New()

		_, err := mgr.ActivateSubscription(context.Background(), userID, tier.Elite, tier.Quarterly, nil)
		require.NoError(t, err)

		effective, err := mgr.ScheduleDowngrade(context.Background(), userID, tier.Momentum)
		require.NoError(t, err)
		assert.Equal(t, baseTime.AddDate(0, 3, 0), effective)

		rec, err := store.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, tier.Elite, rec.Tier)
		assert.Equal(t, tier.Momentum, rec.ScheduledTier)
		assert.Equal(t, baseTime, *rec.CurrentPeriodStart)
	})

	t.Run("rejects equal or higher targets", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock(baseTime)
		mgr, _, _ := newTestManager(t, clock)
		userID := uuid.New()

		_, err := mgr.ActivateSubscription(context.Background(), userID, tier.Momentum, tier.Monthly, nil)
		require.NoError(t, err)

		_, err = mgr.ScheduleDowngrade(context.Background(), userID, tier.Elite)
		assert.ErrorIs(t, err, subscription.ErrNotADowngrade)

		_, err = mgr.ScheduleDowngrade(context.Background(), userID, tier.Momentum)
		assert.ErrorIs(t, err, subscription.ErrNotADowngrade)
	})
}

func TestManager_CancelScheduledChange(t *testing.T) {
	t.Parallel()

	baseTime := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	t.Run("downgrade then cancel then renew keeps the original tier", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock(baseTime)
		mgr, _, _ := newTestManager(t, clock)
		userID := uuid.New()

		_, err := mgr.ActivateSubscription(context.Background(), userID, tier.Accelerate, tier.Monthly, nil)
		require.NoError(t, err)

		_, err = mgr.ScheduleDowngrade(context.Background(), userID, tier.Momentum)
		require.NoError(t, err)

		_, err = mgr.CancelScheduledChange(context.Background(), userID)
		require.NoError(t, err)

		clock.Advance(31 * 24 * time.Hour)
		rec, err := mgr.RenewSubscription(context.Background(), userID, "code_renew_1")
		require.NoError(t, err)
		assert.Equal(t, tier.Accelerate, rec.Tier)
	})

	t.Run("fails when nothing is scheduled", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock(baseTime)
		mgr, _, _ := newTestManager(t, clock)
		userID := uuid.New()

		_, err := mgr.ActivateSubscription(context.Background(), userID, tier.Accelerate, tier.Monthly, nil)
		require.NoError(t, err)

		_, err = mgr.CancelScheduledChange(context.Background(), userID)
		assert.ErrorIs(t, err, subscription.ErrNoScheduledChange)
	})
}

func TestManager_RenewSubscription(t *testing.T) {
	t.Parallel()

	baseTime := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	activate := func(t *testing.T, clock *testClock) (*subscription.Manager, *subscription.MemoryStore, uuid.UUID) {
		t.Helper()
		mgr, store, _ := newTestManager(t, clock)
		userID := uuid.New()
		_, err := mgr.ActivateSubscription(context.Background(), userID, tier.Momentum, tier.Monthly, &subscription.PaymentDetails{TransactionCode: "code_0"})
		require.NoError(t, err)
		return mgr, store, userID
	}

	t.Run("resets counters and re-anchors the period", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock(baseTime)
		mgr, store, userID := activate(t, clock)

		_, err := store.IncrementUsage(context.Background(), userID, tier.ResourceApplications)
		require.NoError(t, err)

		renewAt := baseTime.AddDate(0, 1, 0)
		clock.Set(renewAt)

		rec, err := mgr.RenewSubscription(context.Background(), userID, "code_1")
		require.NoError(t, err)

		assert.Equal(t, renewAt, *rec.CurrentPeriodStart)
		assert.Equal(t, renewAt.AddDate(0, 1, 0), *rec.CurrentPeriodEnd)
		assert.Zero(t, rec.Usage.Get(tier.ResourceApplications))
		require.NotNil(t, rec.LastResetAt)
		assert.Equal(t, renewAt, *rec.LastResetAt)
		assert.Equal(t, "code_1", rec.LastTransactionCode)
		assert.Equal(t, subscription.StatusActive, rec.Status)
	})

	t.Run("same transaction code is a no-op", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock(baseTime)
		mgr, store, userID := activate(t, clock)

		clock.Advance(30 * 24 * time.Hour)
		_, err := mgr.RenewSubscription(context.Background(), userID, "code_1")
		require.NoError(t, err)

		_, err = store.IncrementUsage(context.Background(), userID, tier.ResourceApplications)
		require.NoError(t, err)

		rec, err := mgr.RenewSubscription(context.Background(), userID, "code_1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec.Usage.Get(tier.ResourceApplications),
			"duplicate delivery must not reset counters")
	})

	t.Run("fresh code within the same period does not double-reset", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock(baseTime)
		mgr, store, userID := activate(t, clock)

		clock.Advance(30 * 24 * time.Hour)
		_, err := mgr.RenewSubscription(context.Background(), userID, "code_1")
		require.NoError(t, err)

		_, err = store.IncrementUsage(context.Background(), userID, tier.ResourceApplications)
		require.NoError(t, err)

		// Provider retry delivers the same renewal under a new code.
		rec, err := mgr.RenewSubscription(context.Background(), userID, "code_1_retry")
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec.Usage.Get(tier.ResourceApplications))
		assert.Equal(t, "code_1_retry", rec.LastTransactionCode)
	})

	t.Run("applies and clears scheduled changes", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock(baseTime)
		mgr, store, _ := newTestManager(t, clock)
		userID := uuid.New()

		_, err := mgr.ActivateSubscription(context.Background(), userID, tier.Elite, tier.Monthly, nil)
		require.NoError(t, err)
		_, err = mgr.ScheduleDowngrade(context.Background(), userID, tier.Accelerate)
		require.NoError(t, err)
		_, err = mgr.ScheduleBillingPeriodChange(context.Background(), userID, tier.Yearly)
		require.NoError(t, err)

		renewAt := baseTime.AddDate(0, 1, 0)
		clock.Set(renewAt)
		rec, err := mgr.RenewSubscription(context.Background(), userID, "code_1")
		require.NoError(t, err)

		assert.Equal(t, tier.Accelerate, rec.Tier)
		assert.Equal(t, tier.Yearly, rec.BillingPeriod)
		assert.Empty(t, rec.ScheduledTier)
		assert.Empty(t, rec.ScheduledBillingPeriod)
		assert.Equal(t, renewAt.AddDate(1, 0, 0), *rec.CurrentPeriodEnd)

		// Snapshot froze the closing month under the pre-downgrade tier.
		snaps, err := store.ListSnapshots(context.Background(), userID)
		require.NoError(t, err)
		require.Len(t, snaps, 1)
		assert.Equal(t, "2026-02", snaps[0].Month)
		assert.Equal(t, tier.Elite, snaps[0].Tier)
	})

	t.Run("requires a subscribed record", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock(baseTime)
		mgr, store, _ := newTestManager(t, clock)

		_, err := mgr.RenewSubscription(context.Background(), uuid.New(), "code_1")
		assert.ErrorIs(t, err, subscription.ErrNoSubscription)

		userID := uuid.New()
		_, err = store.Ensure(context.Background(), userID)
		require.NoError(t, err)
		_, err = mgr.RenewSubscription(context.Background(), userID, "code_1")
		assert.ErrorIs(t, err, subscription.ErrNoTier)
	})
}

func TestManager_CancelSubscription(t *testing.T) {
	t.Parallel()

	t.Run("keeps tier access until the period end", func(t *testing.T) {
		t.Parallel()
		activatedAt := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
		clock := newTestClock(activatedAt)
		mgr, _, _ := newTestManager(t, clock)
		userID := uuid.New()

		_, err := mgr.ActivateSubscription(context.Background(), userID, tier.Momentum, tier.Monthly, nil)
		require.NoError(t, err)

		clock.Advance(5 * 24 * time.Hour)
		rec, err := mgr.CancelSubscription(context.Background(), userID)
		require.NoError(t, err)

		assert.Equal(t, subscription.StatusCancelled, rec.Status)
		assert.Equal(t, tier.Momentum, rec.Tier, "tier survives cancellation")
		require.NotNil(t, rec.CancellationEffectiveAt)
		assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), *rec.CancellationEffectiveAt)
	})

	t.Run("rejects repeat or pointless cancellations", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock(time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC))
		mgr, store, _ := newTestManager(t, clock)
		userID := uuid.New()

		_, err := mgr.CancelSubscription(context.Background(), userID)
		assert.ErrorIs(t, err, subscription.ErrNotFound)

		// A tracking-only record is not a subscription either.
		_, err = store.Ensure(context.Background(), userID)
		require.NoError(t, err)
		_, err = mgr.CancelSubscription(context.Background(), userID)
		assert.ErrorIs(t, err, subscription.ErrNotFound)

		_, err = mgr.ActivateSubscription(context.Background(), userID, tier.Momentum, tier.Monthly, nil)
		require.NoError(t, err)
		_, err = mgr.CancelSubscription(context.Background(), userID)
		require.NoError(t, err)
		_, err = mgr.CancelSubscription(context.Background(), userID)
		assert.ErrorIs(t, err, subscription.ErrAlreadyCancelled)
	})
}

func TestManager_HandlePaymentFailure(t *testing.T) {
	t.Parallel()

	clock := newTestClock(time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC))
	mgr, store, _ := newTestManager(t, clock)
	userID := uuid.New()

	_, err := mgr.ActivateSubscription(context.Background(), userID, tier.Accelerate, tier.Monthly, nil)
	require.NoError(t, err)

	require.NoError(t, mgr.HandlePaymentFailure(context.Background(), userID))

	rec, err := store.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPastDue, rec.Status)
	assert.Equal(t, tier.Accelerate, rec.Tier)
	assert.Contains(t, eventTypes(store), subscription.EventPaymentFailed)
}

func TestManager_ProcessExpirations(t *testing.T) {
	t.Parallel()

	baseTime := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("expires due cancellations and stale past_due records", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock(baseTime)
		mgr, store, _ := newTestManager(t, clock)

		cancelledUser := uuid.New()
		_, err := mgr.ActivateSubscription(context.Background(), cancelledUser, tier.Momentum, tier.Monthly, nil)
		require.NoError(t, err)
		_, err = mgr.CancelSubscription(context.Background(), cancelledUser)
		require.NoError(t, err)

		pastDueUser := uuid.New()
		_, err = mgr.ActivateSubscription(context.Background(), pastDueUser, tier.Elite, tier.Monthly, nil)
		require.NoError(t, err)
		require.NoError(t, mgr.HandlePaymentFailure(context.Background(), pastDueUser))

		activeUser := uuid.New()
		_, err = mgr.ActivateSubscription(context.Background(), activeUser, tier.Accelerate, tier.Yearly, nil)
		require.NoError(t, err)

		trackingUser := uuid.New()
		_, err = store.Ensure(context.Background(), trackingUser)
		require.NoError(t, err)

		// Within grace / before effective date: nothing happens.
		clock.Advance(2 * 24 * time.Hour)
		count, err := mgr.ProcessExpirations(context.Background())
		require.NoError(t, err)
		assert.Zero(t, count)

		// Past the cancellation effective date and the 3-day grace window.
		clock.Set(baseTime.AddDate(0, 1, 2))
		count, err = mgr.ProcessExpirations(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		rec, err := store.Get(context.Background(), cancelledUser)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusExpired, rec.Status)

		rec, err = store.Get(context.Background(), pastDueUser)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusExpired, rec.Status)

		rec, err = store.Get(context.Background(), activeUser)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, rec.Status)

		rec, err = store.Get(context.Background(), trackingUser)
		require.NoError(t, err)
		assert.Empty(t, rec.Status)
	})

	t.Run("rerun is a no-op", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock(baseTime)
		mgr, _, _ := newTestManager(t, clock)
		userID := uuid.New()

		_, err := mgr.ActivateSubscription(context.Background(), userID, tier.Momentum, tier.Monthly, nil)
		require.NoError(t, err)
		_, err = mgr.CancelSubscription(context.Background(), userID)
		require.NoError(t, err)

		clock.Set(baseTime.AddDate(0, 2, 0))
		count, err := mgr.ProcessExpirations(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		count, err = mgr.ProcessExpirations(context.Background())
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}
