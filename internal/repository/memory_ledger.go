package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/hayak-access/internal/domain"
)

// zoneSlot is one zone counter guarded by a single-slot channel, so a
// waiter can give up after a bounded time instead of blocking forever.
type zoneSlot struct {
	lock      chan struct{}
	eventID   string
	capacity  int
	remaining int
}

// MemoryZoneLedger keeps counters in process. It is used for tests and
// single-instance local runs.
type MemoryZoneLedger struct {
	mu          sync.RWMutex
	zones       map[string]*zoneSlot
	holds       map[string]*domain.ZoneHold
	lockTimeout time.Duration
}

// DefaultMemoryLockTimeout bounds per-zone waits when no timeout is given
const DefaultMemoryLockTimeout = 2 * time.Second

// NewMemoryZoneLedger creates a ledger whose per-zone waits are bounded by
// lockTimeout. A non-positive timeout falls back to DefaultMemoryLockTimeout.
func NewMemoryZoneLedger(lockTimeout time.Duration) *MemoryZoneLedger {
	if lockTimeout <= 0 {
		lockTimeout = DefaultMemoryLockTimeout
	}
	return &MemoryZoneLedger{
		zones:       make(map[string]*zoneSlot),
		holds:       make(map[string]*domain.ZoneHold),
		lockTimeout: lockTimeout,
	}
}

func (l *MemoryZoneLedger) slot(zoneID string) (*zoneSlot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.zones[zoneID]
	if !ok {
		return nil, domain.ErrZoneNotFound
	}
	return s, nil
}

func (l *MemoryZoneLedger) acquire(ctx context.Context, s *zoneSlot) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.ErrTimeout
		}
		return err
	}

	// uncontended fast path
	select {
	case s.lock <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(l.lockTimeout)
	defer timer.Stop()

	select {
	case s.lock <- struct{}{}:
		return nil
	case <-timer.C:
		return domain.ErrTimeout
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.ErrTimeout
		}
		return ctx.Err()
	}
}

func (s *zoneSlot) unlock() {
	<-s.lock
}

// Reserve implements ZoneLedger
func (l *MemoryZoneLedger) Reserve(ctx context.Context, zoneID string, count int, now, expiresAt time.Time) (*domain.ZoneHold, error) {
	s, err := l.slot(zoneID)
	if err != nil {
		return nil, err
	}
	if err := l.acquire(ctx, s); err != nil {
		return nil, err
	}
	defer s.unlock()

	if s.remaining < count {
		return nil, domain.ErrInsufficientCapacity
	}
	s.remaining -= count

	hold := &domain.ZoneHold{
		Token:     uuid.New().String(),
		ZoneID:    zoneID,
		EventID:   s.eventID,
		Count:     count,
		Status:    domain.HoldStatusHeld,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}

	l.mu.Lock()
	l.holds[hold.Token] = hold
	l.mu.Unlock()

	c := *hold
	return &c, nil
}

// holdSlot locks the zone a token belongs to. Hold state is mutated under
// that zone's lock and l.mu, in that order.
func (l *MemoryZoneLedger) holdSlot(ctx context.Context, token string) (*domain.ZoneHold, *zoneSlot, error) {
	l.mu.RLock()
	hold, ok := l.holds[token]
	l.mu.RUnlock()
	if !ok {
		return nil, nil, domain.ErrHoldNotFound
	}

	s, err := l.slot(hold.ZoneID)
	if err != nil {
		return nil, nil, err
	}
	if err := l.acquire(ctx, s); err != nil {
		return nil, nil, err
	}
	return hold, s, nil
}

// Confirm implements ZoneLedger
func (l *MemoryZoneLedger) Confirm(ctx context.Context, token string, now time.Time) (*domain.ZoneHold, error) {
	hold, s, err := l.holdSlot(ctx, token)
	if err != nil {
		return nil, err
	}
	defer s.unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	switch hold.Status {
	case domain.HoldStatusReleased:
		return nil, domain.ErrAlreadyReleased
	case domain.HoldStatusHeld:
		hold.Status = domain.HoldStatusConfirmed
		hold.ConfirmedAt = &now
	}

	c := *hold
	return &c, nil
}

// Release implements ZoneLedger
func (l *MemoryZoneLedger) Release(ctx context.Context, token string, now time.Time) (*domain.ZoneHold, error) {
	hold, s, err := l.holdSlot(ctx, token)
	if err != nil {
		return nil, err
	}
	defer s.unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	if hold.Status == domain.HoldStatusReleased {
		return nil, domain.ErrAlreadyReleased
	}

	s.remaining += hold.Count
	if s.remaining > s.capacity {
		s.remaining = s.capacity
	}
	hold.Status = domain.HoldStatusReleased
	hold.ReleasedAt = &now

	c := *hold
	return &c, nil
}

// Remaining implements ZoneLedger
func (l *MemoryZoneLedger) Remaining(ctx context.Context, zoneID string) (int, error) {
	s, err := l.slot(zoneID)
	if err != nil {
		return 0, err
	}
	if err := l.acquire(ctx, s); err != nil {
		return 0, err
	}
	defer s.unlock()
	return s.remaining, nil
}

// ExpiredHolds implements ZoneLedger
func (l *MemoryZoneLedger) ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*domain.ZoneHold, error) {
	l.mu.RLock()
	var out []*domain.ZoneHold
	for _, h := range l.holds {
		if h.IsExpiredAt(now) {
			c := *h
			out = append(out, &c)
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SyncZone implements ZoneLedger
func (l *MemoryZoneLedger) SyncZone(ctx context.Context, zone *domain.Zone, force bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.zones[zone.ID]; ok && !force {
		s.capacity = zone.Capacity
		return nil
	}
	l.zones[zone.ID] = &zoneSlot{
		lock:      make(chan struct{}, 1),
		eventID:   zone.EventID,
		capacity:  zone.Capacity,
		remaining: zone.Remaining,
	}
	return nil
}
