package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prohmpiriya/hayak-access/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func seedZone(t *testing.T, l ZoneLedger, id string, capacity int) {
	t.Helper()
	require.NoError(t, l.SyncZone(context.Background(), &domain.Zone{
		ID: id, EventID: "evt-1", Name: id, Capacity: capacity, Remaining: capacity,
	}, true))
}

func TestMemoryZoneLedger_ReserveConfirmRelease(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryZoneLedger(time.Second)
	seedZone(t, l, "zone-a", 5)

	hold, err := l.Reserve(ctx, "zone-a", 2, t0, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.HoldStatusHeld, hold.Status)
	assert.Equal(t, "evt-1", hold.EventID)

	remaining, _ := l.Remaining(ctx, "zone-a")
	assert.Equal(t, 3, remaining)

	confirmed, err := l.Confirm(ctx, hold.Token, t0)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldStatusConfirmed, confirmed.Status)

	// confirming again changes nothing
	again, err := l.Confirm(ctx, hold.Token, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, t0, *again.ConfirmedAt)

	_, err = l.Release(ctx, hold.Token, t0)
	require.NoError(t, err)
	remaining, _ = l.Remaining(ctx, "zone-a")
	assert.Equal(t, 5, remaining)

	_, err = l.Release(ctx, hold.Token, t0)
	assert.ErrorIs(t, err, domain.ErrAlreadyReleased)
	remaining, _ = l.Remaining(ctx, "zone-a")
	assert.Equal(t, 5, remaining)

	_, err = l.Confirm(ctx, hold.Token, t0)
	assert.ErrorIs(t, err, domain.ErrAlreadyReleased)
}

func TestMemoryZoneLedger_Errors(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryZoneLedger(time.Second)
	seedZone(t, l, "zone-a", 1)

	_, err := l.Reserve(ctx, "missing", 1, t0, t0)
	assert.ErrorIs(t, err, domain.ErrZoneNotFound)

	_, err = l.Reserve(ctx, "zone-a", 2, t0, t0)
	assert.ErrorIs(t, err, domain.ErrInsufficientCapacity)

	_, err = l.Release(ctx, "no-such-token", t0)
	assert.ErrorIs(t, err, domain.ErrHoldNotFound)
}

func TestMemoryZoneLedger_LockTimeout(t *testing.T) {
	l := NewMemoryZoneLedger(20 * time.Millisecond)
	seedZone(t, l, "zone-a", 1)

	s, err := l.slot("zone-a")
	require.NoError(t, err)
	s.lock <- struct{}{}
	defer s.unlock()

	_, err = l.Reserve(context.Background(), "zone-a", 1, t0, t0)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestMemoryZoneLedger_ZeroTimeoutUsesDefault(t *testing.T) {
	l := NewMemoryZoneLedger(0)
	assert.Equal(t, DefaultMemoryLockTimeout, l.lockTimeout)
	seedZone(t, l, "zone-a", 100)

	for i := 0; i < 100; i++ {
		_, err := l.Reserve(context.Background(), "zone-a", 1, t0, t0.Add(time.Minute))
		require.NoError(t, err, "uncontended reserve %d", i)
	}
	remaining, err := l.Remaining(context.Background(), "zone-a")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestMemoryZoneLedger_ConcurrentReserveNeverOversells(t *testing.T) {
	const (
		capacity = 10
		callers  = 50
	)
	ctx := context.Background()
	l := NewMemoryZoneLedger(5 * time.Second)
	seedZone(t, l, "zone-a", capacity)

	var ok, rejected int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Reserve(ctx, "zone-a", 1, t0, t0.Add(time.Minute))
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case assert.ErrorIs(t, err, domain.ErrInsufficientCapacity):
				atomic.AddInt32(&rejected, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, capacity, ok)
	assert.EqualValues(t, callers-capacity, rejected)
	remaining, _ := l.Remaining(ctx, "zone-a")
	assert.Equal(t, 0, remaining)
}

func TestMemoryZoneLedger_ExpiredHolds(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryZoneLedger(time.Second)
	seedZone(t, l, "zone-a", 5)

	early, _ := l.Reserve(ctx, "zone-a", 1, t0, t0.Add(time.Minute))
	late, _ := l.Reserve(ctx, "zone-a", 1, t0, t0.Add(time.Hour))
	confirmed, _ := l.Reserve(ctx, "zone-a", 1, t0, t0.Add(time.Minute))
	_, err := l.Confirm(ctx, confirmed.Token, t0)
	require.NoError(t, err)

	expired, err := l.ExpiredHolds(ctx, t0.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, early.Token, expired[0].Token)

	expired, _ = l.ExpiredHolds(ctx, t0.Add(2*time.Hour), 10)
	assert.Len(t, expired, 2)
	_ = late
}

func TestMemoryZoneLedger_SyncKeepsCounterWithoutForce(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryZoneLedger(time.Second)
	seedZone(t, l, "zone-a", 5)
	_, err := l.Reserve(ctx, "zone-a", 2, t0, t0)
	require.NoError(t, err)

	require.NoError(t, l.SyncZone(ctx, &domain.Zone{ID: "zone-a", EventID: "evt-1", Capacity: 5, Remaining: 5}, false))
	remaining, _ := l.Remaining(ctx, "zone-a")
	assert.Equal(t, 3, remaining)
}
