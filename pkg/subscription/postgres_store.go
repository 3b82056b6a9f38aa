package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stridehq/subscription-engine/pkg/tier"
)

// usageColumns maps metered resources to their snake_case columns. The map is
// the whitelist that keeps resource names out of SQL string interpolation.
var usageColumns = map[tier.Resource]string{
	tier.ResourceApplications: "usage_applications",
	tier.ResourceCVs:          "usage_cvs",
	tier.ResourceInterviews:   "usage_interviews",
	tier.ResourceCompensation: "usage_compensation",
	tier.ResourceContracts:    "usage_contracts",
	tier.ResourceAIAvatar:     "usage_ai_avatar",
}

const recordColumns = `user_id, tier, billing_period, status,
	current_period_start, current_period_end,
	cancelled_at, cancellation_effective_at,
	scheduled_tier, scheduled_billing_period,
	pending_tier, pending_billing_period,
	payment_token, recurring_id, last_transaction_code, invoice_customer_id,
	usage_applications, usage_cvs, usage_interviews,
	usage_compensation, usage_contracts, usage_ai_avatar,
	last_reset_at, version, created_at, updated_at`

// PostgresStore implements Store on a pgx connection pool. All camelCase to
// snake_case translation happens here, at the persistence boundary.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("subscription: pgx pool is required")
	}
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, userID uuid.UUID) (*Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM user_subscriptions WHERE user_id = $1`,
		userID)
	return scanRecord(row)
}

func (s *PostgresStore) Ensure(ctx context.Context, userID uuid.UUID) (*Record, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_subscriptions (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("ensure subscription record: %w", err)
	}
	return s.Get(ctx, userID)
}

func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE user_subscriptions SET
			tier = $2, billing_period = $3, status = $4,
			current_period_start = $5, current_period_end = $6,
			cancelled_at = $7, cancellation_effective_at = $8,
			scheduled_tier = $9, scheduled_billing_period = $10,
			pending_tier = $11, pending_billing_period = $12,
			payment_token = $13, recurring_id = $14,
			last_transaction_code = $15, invoice_customer_id = $16,
			usage_applications = $17, usage_cvs = $18, usage_interviews = $19,
			usage_compensation = $20, usage_contracts = $21, usage_ai_avatar = $22,
			last_reset_at = $23,
			version = version + 1, updated_at = now()
		 WHERE user_id = $1 AND version = $24`,
		rec.UserID,
		nullString(string(rec.Tier)), nullString(string(rec.BillingPeriod)), nullString(string(rec.Status)),
		rec.CurrentPeriodStart, rec.CurrentPeriodEnd,
		rec.CancelledAt, rec.CancellationEffectiveAt,
		nullString(string(rec.ScheduledTier)), nullString(string(rec.ScheduledBillingPeriod)),
		nullString(string(rec.PendingTier)), nullString(string(rec.PendingBillingPeriod)),
		nullString(rec.PaymentToken), nullString(rec.RecurringID),
		nullString(rec.LastTransactionCode), nullString(rec.InvoiceCustomerID),
		rec.Usage.Get(tier.ResourceApplications), rec.Usage.Get(tier.ResourceCVs),
		rec.Usage.Get(tier.ResourceInterviews), rec.Usage.Get(tier.ResourceCompensation),
		rec.Usage.Get(tier.ResourceContracts), rec.Usage.Get(tier.ResourceAIAvatar),
		rec.LastResetAt,
		rec.Version,
	)
	if err != nil {
		return fmt.Errorf("save subscription record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a lost optimistic race.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM user_subscriptions WHERE user_id = $1)`,
			rec.UserID).Scan(&exists); err != nil {
			return fmt.Errorf("save subscription record: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConcurrentModification
	}
	rec.Version++
	return nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO subscription_events (user_id, event_type, payload, occurred_at)
		 VALUES ($1, $2, $3, $4)`,
		ev.UserID, string(ev.Type), payload, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("append subscription event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCancelledDue(ctx context.Context, now time.Time) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM user_subscriptions
		 WHERE status = 'cancelled' AND cancellation_effective_at <= $1`,
		now)
	if err != nil {
		return nil, fmt.Errorf("list cancelled due: %w", err)
	}
	return collectRecords(rows)
}

func (s *PostgresStore) ListPastDueBefore(ctx context.Context, cutoff time.Time) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM user_subscriptions
		 WHERE status = 'past_due' AND updated_at < $1`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("list past due: %w", err)
	}
	return collectRecords(rows)
}

func (s *PostgresStore) IncrementUsage(ctx context.Context, userID uuid.UUID, res tier.Resource) (int64, error) {
	col, ok := usageColumns[res]
	if !ok {
		return 0, fmt.Errorf("unknown resource %q", res)
	}

	if _, err := s.Ensure(ctx, userID); err != nil {
		return 0, err
	}

	var used int64
	err := s.pool.QueryRow(ctx,
		`UPDATE user_subscriptions
		 SET `+col+` = `+col+` + 1, version = version + 1
		 WHERE user_id = $1
		 RETURNING `+col,
		userID).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("increment usage %s: %w", res, err)
	}
	return used, nil
}

func (s *PostgresStore) IncrementUsageBelow(ctx context.Context, userID uuid.UUID, res tier.Resource, limit int64) (int64, bool, error) {
	col, ok := usageColumns[res]
	if !ok {
		return 0, false, fmt.Errorf("unknown resource %q", res)
	}

	if _, err := s.Ensure(ctx, userID); err != nil {
		return 0, false, err
	}

	// Check and increment collapse into one conditional update so concurrent
	// callers cannot overshoot the limit.
	var used int64
	err := s.pool.QueryRow(ctx,
		`UPDATE user_subscriptions
		 SET `+col+` = `+col+` + 1, version = version + 1
		 WHERE user_id = $1 AND `+col+` < $2
		 RETURNING `+col,
		userID, limit).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		// At or over the limit; report the current value.
		if err := s.pool.QueryRow(ctx,
			`SELECT `+col+` FROM user_subscriptions WHERE user_id = $1`,
			userID).Scan(&used); err != nil {
			return 0, false, fmt.Errorf("read usage %s: %w", res, err)
		}
		return used, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("consume usage %s: %w", res, err)
	}
	return used, true, nil
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_snapshots (user_id, month, tier,
			usage_applications, usage_cvs, usage_interviews,
			usage_compensation, usage_contracts, usage_ai_avatar)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (user_id, month) DO NOTHING`,
		snap.UserID, snap.Month, nullString(string(snap.Tier)),
		snap.Usage.Get(tier.ResourceApplications), snap.Usage.Get(tier.ResourceCVs),
		snap.Usage.Get(tier.ResourceInterviews), snap.Usage.Get(tier.ResourceCompensation),
		snap.Usage.Get(tier.ResourceContracts), snap.Usage.Get(tier.ResourceAIAvatar))
	if err != nil {
		return fmt.Errorf("save usage snapshot: %w", err)
	}
	return nil
}

const snapshotColumns = `user_id, month, tier,
	usage_applications, usage_cvs, usage_interviews,
	usage_compensation, usage_contracts, usage_ai_avatar, created_at`

func (s *PostgresStore) ListSnapshots(ctx context.Context, userID uuid.UUID) ([]Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+snapshotColumns+` FROM usage_snapshots
		 WHERE user_id = $1 ORDER BY month`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list usage snapshots: %w", err)
	}
	return collectSnapshots(rows)
}

func (s *PostgresStore) ListCorruptSnapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+snapshotColumns+` FROM usage_snapshots
		 WHERE usage_applications < 0 OR usage_cvs < 0 OR usage_interviews < 0
			OR usage_compensation < 0 OR usage_contracts < 0 OR usage_ai_avatar < 0
		 ORDER BY user_id, month`)
	if err != nil {
		return nil, fmt.Errorf("list corrupt snapshots: %w", err)
	}
	return collectSnapshots(rows)
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec                                        Record
		tierVal, period, status                    *string
		schedTier, schedPeriod                     *string
		pendTier, pendPeriod                       *string
		payToken, recurringID, txCode, invCustomer *string
		apps, cvs, interviews, comp, contracts, ai int64
	)

	err := row.Scan(
		&rec.UserID, &tierVal, &period, &status,
		&rec.CurrentPeriodStart, &rec.CurrentPeriodEnd,
		&rec.CancelledAt, &rec.CancellationEffectiveAt,
		&schedTier, &schedPeriod,
		&pendTier, &pendPeriod,
		&payToken, &recurringID, &txCode, &invCustomer,
		&apps, &cvs, &interviews, &comp, &contracts, &ai,
		&rec.LastResetAt, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan subscription record: %w", err)
	}

	rec.Tier = tier.Tier(deref(tierVal))
	rec.BillingPeriod = tier.BillingPeriod(deref(period))
	rec.Status = Status(deref(status))
	rec.ScheduledTier = tier.Tier(deref(schedTier))
	rec.ScheduledBillingPeriod = tier.BillingPeriod(deref(schedPeriod))
	rec.PendingTier = tier.Tier(deref(pendTier))
	rec.PendingBillingPeriod = tier.BillingPeriod(deref(pendPeriod))
	rec.PaymentToken = deref(payToken)
	rec.RecurringID = deref(recurringID)
	rec.LastTransactionCode = deref(txCode)
	rec.InvoiceCustomerID = deref(invCustomer)
	rec.Usage = Usage{
		tier.ResourceApplications: apps,
		tier.ResourceCVs:          cvs,
		tier.ResourceInterviews:   interviews,
		tier.ResourceCompensation: comp,
		tier.ResourceContracts:    contracts,
		tier.ResourceAIAvatar:     ai,
	}
	return &rec, nil
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func collectSnapshots(rows pgx.Rows) ([]Snapshot, error) {
	defer rows.Close()
	var out []Snapshot
	for rows.Next() {
		var (
			snap                                       Snapshot
			tierVal                                    *string
			apps, cvs, interviews, comp, contracts, ai int64
		)
		if err := rows.Scan(&snap.UserID, &snap.Month, &tierVal,
			&apps, &cvs, &interviews, &comp, &contracts, &ai,
			&snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage snapshot: %w", err)
		}
		snap.Tier = tier.Tier(deref(tierVal))
		snap.Usage = Usage{
			tier.ResourceApplications: apps,
			tier.ResourceCVs:          cvs,
			tier.ResourceInterviews:   interviews,
			tier.ResourceCompensation: comp,
			tier.ResourceContracts:    contracts,
			tier.ResourceAIAvatar:     ai,
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
