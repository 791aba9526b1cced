package service

import (
	"context"
	"testing"
	"time"

	"github.com/prohmpiriya/hayak-access/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerService_ReserveAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.event(t)
	a := f.zone(t, ev.ID, "A", 2)
	b := f.zone(t, ev.ID, "B", 1)

	holds, err := f.ledger.ReserveAll(ctx, []string{b.ID, a.ID, b.ID}, 1)
	require.NoError(t, err)
	require.Len(t, holds, 2)
	assert.Equal(t, SortedUnique([]string{a.ID, b.ID}), []string{holds[0].ZoneID, holds[1].ZoneID})
	assert.Equal(t, t0.Add(time.Minute), holds[0].ExpiresAt)

	t.Run("partial failure releases earlier zones", func(t *testing.T) {
		_, err := f.ledger.ReserveAll(ctx, []string{a.ID, b.ID}, 1)
		assert.ErrorIs(t, err, domain.ErrInsufficientCapacity)
		assert.Equal(t, 1, f.remaining(t, a.ID))
		assert.Equal(t, 0, f.remaining(t, b.ID))
	})

	t.Run("release all skips released tokens", func(t *testing.T) {
		_, err := f.ledger.Release(ctx, holds[0].Token)
		require.NoError(t, err)

		require.NoError(t, f.ledger.ReleaseAll(ctx, []string{holds[0].Token, holds[1].Token}))
		assert.Equal(t, 2, f.remaining(t, a.ID))
		assert.Equal(t, 1, f.remaining(t, b.ID))
	})

	t.Run("unknown token is reported", func(t *testing.T) {
		err := f.ledger.ReleaseAll(ctx, []string{"missing"})
		assert.ErrorIs(t, err, domain.ErrHoldNotFound)
	})
}

func TestLedgerService_ReserveValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Reserve(context.Background(), "", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidZoneID)
	_, err = f.ledger.Reserve(context.Background(), "z", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidCount)
	_, err = f.ledger.Reserve(context.Background(), "z", 1)
	assert.ErrorIs(t, err, domain.ErrZoneNotFound)
}

func TestLedgerService_ReleaseExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.event(t)
	z := f.zone(t, ev.ID, "Z", 3)

	abandoned, err := f.ledger.Reserve(ctx, z.ID, 1)
	require.NoError(t, err)
	kept, err := f.ledger.Reserve(ctx, z.ID, 1)
	require.NoError(t, err)
	_, err = f.ledger.Confirm(ctx, kept.Token)
	require.NoError(t, err)

	n, err := f.ledger.ReleaseExpired(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing has expired yet")

	f.clock.Advance(time.Minute)
	n, err = f.ledger.ReleaseExpired(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, f.remaining(t, z.ID))

	_, err = f.ledger.Confirm(ctx, abandoned.Token)
	assert.ErrorIs(t, err, domain.ErrAlreadyReleased)
}

func TestSortedUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedUnique([]string{"c", "a", "", "b", "a"}))
	assert.Empty(t, SortedUnique(nil))
}
