package subscription

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stridehq/subscription-engine/pkg/tier"
)

// MemoryStore is an in-memory Store used in tests and local development.
// It mirrors the concurrency semantics of the Postgres store, including the
// optimistic version check on Save.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[uuid.UUID]*Record
	events    []Event
	snapshots map[uuid.UUID]map[string]Snapshot
	now       func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[uuid.UUID]*Record),
		snapshots: make(map[uuid.UUID]map[string]Snapshot),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store's time source for tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Get(ctx context.Context, userID uuid.UUID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Ensure(ctx context.Context, userID uuid.UUID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRecord(s.ensureLocked(userID)), nil
}

func (s *MemoryStore) ensureLocked(userID uuid.UUID) *Record {
	if rec, ok := s.records[userID]; ok {
		return rec
	}
	now := s.now()
	rec := &Record{
		UserID:    userID,
		Usage:     NewUsage(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.records[userID] = rec
	return rec
}

func (s *MemoryStore) Save(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.records[rec.UserID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != rec.Version {
		return ErrConcurrentModification
	}

	updated := cloneRecord(rec)
	updated.Version++
	updated.UpdatedAt = s.now()
	updated.CreatedAt = stored.CreatedAt
	s.records[rec.UserID] = updated

	rec.Version = updated.Version
	rec.UpdatedAt = updated.UpdatedAt
	return nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of the append-only event log, for test assertions.
func (s *MemoryStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

func (s *MemoryStore) ListCancelledDue(ctx context.Context, now time.Time) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for _, rec := range s.records {
		if rec.Status == StatusCancelled &&
			rec.CancellationEffectiveAt != nil &&
			!rec.CancellationEffectiveAt.After(now) {
			out = append(out, *cloneRecord(rec))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListPastDueBefore(ctx context.Context, cutoff time.Time) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for _, rec := range s.records {
		if rec.Status == StatusPastDue && rec.UpdatedAt.Before(cutoff) {
			out = append(out, *cloneRecord(rec))
		}
	}
	return out, nil
}

func (s *MemoryStore) IncrementUsage(ctx context.Context, userID uuid.UUID, res tier.Resource) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.ensureLocked(userID)
	rec.Usage[res]++
	rec.Version++
	return rec.Usage[res], nil
}

func (s *MemoryStore) IncrementUsageBelow(ctx context.Context, userID uuid.UUID, res tier.Resource, limit int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.ensureLocked(userID)
	if rec.Usage[res] >= limit {
		return rec.Usage[res], false, nil
	}
	rec.Usage[res]++
	rec.Version++
	return rec.Usage[res], true, nil
}

func (s *MemoryStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	months, ok := s.snapshots[snap.UserID]
	if !ok {
		months = make(map[string]Snapshot)
		s.snapshots[snap.UserID] = months
	}
	if _, exists := months[snap.Month]; exists {
		return nil // snapshots are immutable once written
	}
	snap.Usage = snap.Usage.Clone()
	snap.CreatedAt = s.now()
	months[snap.Month] = snap
	return nil
}

func (s *MemoryStore) ListSnapshots(ctx context.Context, userID uuid.UUID) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	months := s.snapshots[userID]
	out := make([]Snapshot, 0, len(months))
	for _, snap := range months {
		snap.Usage = snap.Usage.Clone()
		out = append(out, snap)
	}
	slices.SortFunc(out, func(a, b Snapshot) int {
		return strings.Compare(a.Month, b.Month)
	})
	return out, nil
}

func (s *MemoryStore) ListCorruptSnapshots(ctx context.Context) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Snapshot
	for _, months := range s.snapshots {
		for _, snap := range months {
			for _, v := range snap.Usage {
				if v < 0 {
					snap.Usage = snap.Usage.Clone()
					out = append(out, snap)
					break
				}
			}
		}
	}
	return out, nil
}

func cloneRecord(rec *Record) *Record {
	out := *rec
	out.Usage = rec.Usage.Clone()
	out.CurrentPeriodStart = cloneTime(rec.CurrentPeriodStart)
	out.CurrentPeriodEnd = cloneTime(rec.CurrentPeriodEnd)
	out.CancelledAt = cloneTime(rec.CancelledAt)
	out.CancellationEffectiveAt = cloneTime(rec.CancellationEffectiveAt)
	out.LastResetAt = cloneTime(rec.LastResetAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
