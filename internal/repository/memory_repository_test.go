package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prohmpiriya/hayak-access/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestMemoryTicketRepository_QuantityBounds(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryTicketRepository()
	require.NoError(t, r.Create(ctx, &domain.Ticket{ID: "t1", EventID: "e1", Name: "GA", Quantity: 2}))

	seq1, err := r.ReserveQuantity(ctx, "t1")
	require.NoError(t, err)
	seq2, err := r.ReserveQuantity(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq1)
	assert.Equal(t, int64(2), seq2)

	_, err = r.ReserveQuantity(ctx, "t1")
	assert.ErrorIs(t, err, domain.ErrQuantityExhausted)

	require.NoError(t, r.ReleaseQuantity(ctx, "t1"))
	seq3, err := r.ReserveQuantity(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), seq3, "sequence never repeats")

	_, err = r.ReserveQuantity(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)
}

func TestMemoryCouponRepository_RedemptionBound(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryCouponRepository()
	require.NoError(t, r.Create(ctx, &domain.Coupon{ID: "c1", EventID: "e1", Code: " save10 ", Usage: intPtr(1), IsActive: true}))

	c, err := r.GetByCode(ctx, "e1", "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", c.Code)

	err = r.Create(ctx, &domain.Coupon{ID: "c2", EventID: "e1", Code: "Save10"})
	assert.ErrorIs(t, err, domain.ErrDuplicateCouponCode)

	require.NoError(t, r.RecordRedemption(ctx, "c1"))
	assert.ErrorIs(t, r.RecordRedemption(ctx, "c1"), domain.ErrCouponUsageExceeded)

	require.NoError(t, r.RevokeRedemption(ctx, "c1"))
	require.NoError(t, r.RevokeRedemption(ctx, "c1"))
	c, _ = r.GetByID(ctx, "c1")
	assert.Equal(t, 0, c.Redeemed)
}

func TestMemoryCouponRepository_ConcurrentRedemption(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryCouponRepository()
	require.NoError(t, r.Create(ctx, &domain.Coupon{ID: "c1", EventID: "e1", Code: "ONCE", Usage: intPtr(1), IsActive: true}))

	const n = 20
	var wg sync.WaitGroup
	var redeemed, exceeded atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.RecordRedemption(ctx, "c1")
			switch {
			case err == nil:
				redeemed.Add(1)
			case errors.Is(err, domain.ErrCouponUsageExceeded):
				exceeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), redeemed.Load())
	assert.Equal(t, int32(n-1), exceeded.Load())
	c, err := r.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Redeemed)
}

func TestMemoryInvitationRepository_Versioning(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryInvitationRepository()
	inv := &domain.Invitation{ID: "i1", UserID: "u1", TicketNo: "T-1", Barcode: "B-1", State: domain.StatePending, IdempotencyKey: "k1"}
	require.NoError(t, r.Create(ctx, inv))

	dup := &domain.Invitation{ID: "i2", UserID: "u1", TicketNo: "T-2", Barcode: "B-2", IdempotencyKey: "k1"}
	assert.ErrorIs(t, r.Create(ctx, dup), domain.ErrInvitationAlreadyExists)

	first, _ := r.GetByID(ctx, "i1")
	second, _ := r.GetByID(ctx, "i1")

	first.State = domain.StateAccepted
	require.NoError(t, r.Update(ctx, first))
	assert.Equal(t, 1, first.Version)

	second.State = domain.StateDeclined
	assert.ErrorIs(t, r.Update(ctx, second), domain.ErrConcurrencyConflict)

	got, err := r.GetByIdempotencyKey(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateAccepted, got.State)

	got, err = r.GetByBarcode(ctx, "B-1")
	require.NoError(t, err)
	assert.Equal(t, "i1", got.ID)
}
