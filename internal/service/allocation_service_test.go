package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prohmpiriya/hayak-access/internal/domain"
	"github.com/prohmpiriya/hayak-access/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocationService_Reserve(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t)
	vip := f.zone(t, ev.ID, "VIP", 5)
	lounge := f.zone(t, ev.ID, "Lounge", 3)
	tk := f.ticket(t, ev.ID, dto.CreateTicketRequest{Price: 100, Discount: floatPtr(20), Quantity: 10, ZoneIDs: []string{vip.ID, lounge.ID}})

	inv, err := f.reserve(ev.ID, tk.ID, "user-1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatePending, inv.State)
	assert.Equal(t, 80.0, inv.Price)
	assert.Equal(t, 80.0, inv.FinalPrice)
	assert.Nil(t, inv.CouponID)
	assert.Len(t, inv.Barcode, 20)
	assert.Equal(t, TicketNumber(tk.ID, 1), inv.TicketNo)
	assert.ElementsMatch(t, []string{vip.ID, lounge.ID}, inv.ZoneIDs())

	assert.Equal(t, 4, f.remaining(t, vip.ID))
	assert.Equal(t, 2, f.remaining(t, lounge.ID))
	assert.Equal(t, 1, f.issued(t, tk.ID))

	hold, err := f.ledger.Confirm(context.Background(), inv.Holds[0].Token)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldStatusConfirmed, hold.Status)
	assert.Equal(t, t0, *hold.ConfirmedAt)

	history, err := f.invitations.History(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.ActionCreate, history[0].Action)
	assert.Equal(t, []domain.Action{domain.ActionCreate}, f.publisher.actions())
}

func TestAllocationService_Reserve_ZoneSelection(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t)
	a := f.zone(t, ev.ID, "A", 5)
	b := f.zone(t, ev.ID, "B", 5)
	other := f.zone(t, ev.ID, "C", 5)
	tk := f.ticket(t, ev.ID, dto.CreateTicketRequest{Price: 50, Quantity: 10, ZoneIDs: []string{a.ID, b.ID}})
	ga := f.ticket(t, ev.ID, dto.CreateTicketRequest{Name: "GA", Price: 20, Quantity: 10})

	t.Run("subset of granted zones", func(t *testing.T) {
		inv, err := f.reserve(ev.ID, tk.ID, "user-1", b.ID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{b.ID}, inv.ZoneIDs())
		assert.Equal(t, 5, f.remaining(t, a.ID))
		assert.Equal(t, 4, f.remaining(t, b.ID))
	})

	t.Run("zone not granted", func(t *testing.T) {
		_, err := f.reserve(ev.ID, tk.ID, "user-2", other.ID)
		assert.ErrorIs(t, err, domain.ErrZoneNotGranted)
		assert.Equal(t, 5, f.remaining(t, other.ID))
		assert.Equal(t, 1, f.issued(t, tk.ID), "ticket unit is not taken")
	})

	t.Run("blank zone ids are rejected", func(t *testing.T) {
		for _, selection := range [][]string{{""}, {"  "}, {b.ID, ""}} {
			_, err := f.reserve(ev.ID, tk.ID, "user-blank", selection...)
			assert.ErrorIs(t, err, domain.ErrInvalidZoneID, "selection %q", selection)
		}
		assert.Equal(t, 5, f.remaining(t, a.ID))
		assert.Equal(t, 4, f.remaining(t, b.ID))
		assert.Equal(t, 1, f.issued(t, tk.ID), "ticket unit is given back")
	})

	t.Run("general admission takes no zone", func(t *testing.T) {
		inv, err := f.reserve(ev.ID, ga.ID, "user-3")
		require.NoError(t, err)
		assert.Empty(t, inv.Holds)
	})

	t.Run("general admission rejects a selection", func(t *testing.T) {
		_, err := f.reserve(ev.ID, ga.ID, "user-4", a.ID)
		assert.ErrorIs(t, err, domain.ErrZoneNotGranted)
	})
}

func TestAllocationService_Reserve_Rejections(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t)
	z := f.zone(t, ev.ID, "Floor", 5)
	onSale := f.ticket(t, ev.ID, dto.CreateTicketRequest{Price: 10, Quantity: 1, ZoneIDs: []string{z.ID}})
	later := f.ticket(t, ev.ID, dto.CreateTicketRequest{
		Name: "Late", Price: 10, Quantity: 5, ZoneIDs: []string{z.ID},
		WindowRequest: dto.WindowRequest{StartDate: "2026-07-01", EndDate: "2026-07-31"},
	})

	closed, err := f.catalog.CreateEvent(context.Background(), "organizer-1", &dto.CreateEventRequest{Name: "Past", Status: string(domain.EventStatusCompleted)})
	require.NoError(t, err)
	closedTicket := f.ticket(t, closed.ID, dto.CreateTicketRequest{Price: 10, Quantity: 5})

	other := f.event(t)

	tests := []struct {
		name     string
		userID   string
		eventID  string
		ticketID string
		wantErr  error
	}{
		{name: "missing user", eventID: ev.ID, ticketID: onSale.ID, wantErr: domain.ErrInvalidUserID},
		{name: "missing event", userID: "u", ticketID: onSale.ID, wantErr: domain.ErrInvalidEventID},
		{name: "missing ticket", userID: "u", eventID: ev.ID, wantErr: domain.ErrInvalidTicketID},
		{name: "unknown event", userID: "u", eventID: "nope", ticketID: onSale.ID, wantErr: domain.ErrEventNotFound},
		{name: "unknown ticket", userID: "u", eventID: ev.ID, ticketID: "nope", wantErr: domain.ErrTicketNotFound},
		{name: "ticket of another event", userID: "u", eventID: other.ID, ticketID: onSale.ID, wantErr: domain.ErrTicketNotFound},
		{name: "event completed", userID: "u", eventID: closed.ID, ticketID: closedTicket.ID, wantErr: domain.ErrEventClosed},
		{name: "ticket window not open", userID: "u", eventID: ev.ID, ticketID: later.ID, wantErr: domain.ErrTicketNotOnSale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reserve(tt.eventID, tt.ticketID, tt.userID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("quantity exhausted", func(t *testing.T) {
		_, err := f.reserve(ev.ID, onSale.ID, "u1")
		require.NoError(t, err)
		_, err = f.reserve(ev.ID, onSale.ID, "u2")
		assert.ErrorIs(t, err, domain.ErrQuantityExhausted)
		assert.Equal(t, 4, f.remaining(t, z.ID))
	})
}

// Zone capacity 2, three users reserving at once: exactly two succeed.
func TestAllocationService_Reserve_ThreeUsersTwoSeats(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t)
	z := f.zone(t, ev.ID, "Z", 2)
	tk := f.ticket(t, ev.ID, dto.CreateTicketRequest{Price: 10, Quantity: 10, ZoneIDs: []string{z.ID}})

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i, user := range []string{"A", "B", "C"} {
		wg.Add(1)
		go func(i int, user string) {
			defer wg.Done()
			_, errs[i] = f.reserve(ev.ID, tk.ID, user)
		}(i, user)
	}
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientCapacity):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 0, f.remaining(t, z.ID))
	assert.Equal(t, 2, f.issued(t, tk.ID), "failed reservation gives its ticket unit back")
}

func TestAllocationService_Reserve_ConcurrentNeverOversells(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t)
	a := f.zone(t, ev.ID, "A", 10)
	b := f.zone(t, ev.ID, "B", 25)
	tk := f.ticket(t, ev.ID, dto.CreateTicketRequest{Price: 10, Quantity: 100, ZoneIDs: []string{a.ID, b.ID}})

	const n = 50
	var wg sync.WaitGroup
	var ok int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// alternate selection order; acquisition order is still ascending
			zones := []string{a.ID, b.ID}
			if i%2 == 1 {
				zones = []string{b.ID, a.ID}
			}
			if _, err := f.reserve(ev.ID, tk.ID, fmt.Sprintf("user-%d", i), zones...); err == nil {
				atomic.AddInt32(&ok, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(10), ok)
	assert.Equal(t, 0, f.remaining(t, a.ID))
	assert.Equal(t, 15, f.remaining(t, b.ID))
	assert.Equal(t, 10, f.issued(t, tk.ID))
}

func TestAllocationService_Reserve_Coupon(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t)
	z := f.zone(t, ev.ID, "Main", 10)
	tk := f.ticket(t, ev.ID, dto.CreateTicketRequest{Price: 100, Quantity: 10, ZoneIDs: []string{z.ID}})
	save10 := f.coupon(t, ev.ID, dto.CreateCouponRequest{Code: "SAVE10", Discount: 10, Usage: intPtr(1)})

	req := &dto.ReserveRequest{EventID: ev.ID, TicketID: tk.ID, CouponCode: "save10"}

	first, err := f.allocation.Reserve(context.Background(), "user-1", req)
	require.NoError(t, err)
	assert.Equal(t, 90.0, first.FinalPrice)
	assert.Equal(t, 10.0, first.CouponDiscount)
	require.NotNil(t, first.CouponID)
	assert.Equal(t, save10.ID, *first.CouponID)

	_, err = f.allocation.Reserve(context.Background(), "user-2", req)
	assert.ErrorIs(t, err, domain.ErrCouponUsageExceeded)

	assert.Equal(t, 1, f.redeemed(t, save10.ID))
	assert.Equal(t, 9, f.remaining(t, z.ID), "rejected reservation releases its zone hold")
	assert.Equal(t, 1, f.issued(t, tk.ID), "rejected reservation releases its ticket unit")
}

// One coupon use left and many reservations racing for it: exactly one
// redeems, the rest are rejected and give back what they took.
func TestAllocationService_Reserve_ConcurrentCouponLastUse(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t)
	z := f.zone(t, ev.ID, "Main", 50)
	tk := f.ticket(t, ev.ID, dto.CreateTicketRequest{Price: 100, Quantity: 50, ZoneIDs: []string{z.ID}})
	once := f.coupon(t, ev.ID, dto.CreateCouponRequest{Code: "ONCE", Discount: 50, Usage: intPtr(1)})

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.allocation.Reserve(context.Background(), fmt.Sprintf("user-%d", i), &dto.ReserveRequest{
				EventID:    ev.ID,
				TicketID:   tk.ID,
				CouponCode: "ONCE",
			})
		}(i)
	}
	wg.Wait()

	succeeded, exceeded := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrCouponUsageExceeded):
			exceeded++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, exceeded)
	assert.Equal(t, 1, f.redeemed(t, once.ID))
	assert.Equal(t, 49, f.remaining(t, z.ID), "losers release their zone holds")
	assert.Equal(t, 1, f.issued(t, tk.ID), "losers release their ticket units")
}

func TestAllocationService_Reserve_UntilSoldOutCountsOwnHold(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t)
	z := f.zone(t, ev.ID, "Last", 1)
	tk := f.ticket(t, ev.ID, dto.CreateTicketRequest{Price: 40, Quantity: 1, ZoneIDs: []string{z.ID}})
	f.coupon(t, ev.ID, dto.CreateCouponRequest{Code: "EARLY", DiscountType: "fixed", Discount: 15, UntilSoldOut: true})

	inv, err := f.allocation.Reserve(context.Background(), "user-1", &dto.ReserveRequest{EventID: ev.ID, TicketID: tk.ID, CouponCode: "EARLY"})
	require.NoError(t, err)
	assert.Equal(t, 25.0, inv.FinalPrice)
	assert.Equal(t, 0, f.remaining(t, z.ID))
}

func TestAllocationService_Reserve_DeclineRestoresState(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t)
	a := f.zone(t, ev.ID, "A", 3)
	b := f.zone(t, ev.ID, "B", 3)
	tk := f.ticket(t, ev.ID, dto.CreateTicketRequest{Price: 100, Quantity: 5, ZoneIDs: []string{a.ID, b.ID}})
	c := f.coupon(t, ev.ID, dto.CreateCouponRequest{Code: "HALF", Discount: 50, Usage: intPtr(5)})

	inv, err := f.allocation.Reserve(context.Background(), "user-1", &dto.ReserveRequest{EventID: ev.ID, TicketID: tk.ID, CouponCode: "HALF"})
	require.NoError(t, err)
	assert.Equal(t, 2, f.remaining(t, a.ID))
	assert.Equal(t, 1, f.redeemed(t, c.ID))

	declined, err := f.invitations.Decline(context.Background(), inv.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateDeclined, declined.State)

	assert.Equal(t, 3, f.remaining(t, a.ID))
	assert.Equal(t, 3, f.remaining(t, b.ID))
	assert.Equal(t, 0, f.issued(t, tk.ID))
	assert.Equal(t, 0, f.redeemed(t, c.ID))

	// declining again is a no-op and releases nothing twice
	_, err = f.invitations.Decline(context.Background(), inv.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, f.remaining(t, a.ID))
}

func TestAllocationService_Reserve_CreateFailureCompensates(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t)
	z := f.zone(t, ev.ID, "Z", 2)
	tk := f.ticket(t, ev.ID, dto.CreateTicketRequest{Price: 100, Quantity: 5, ZoneIDs: []string{z.ID}})
	c := f.coupon(t, ev.ID, dto.CreateCouponRequest{Code: "TEN", Discount: 10})

	storeDown := errors.New("store unavailable")
	f.invRepo.CreateFunc = func(ctx context.Context, inv *domain.Invitation) error { return storeDown }

	_, err := f.allocation.Reserve(context.Background(), "user-1", &dto.ReserveRequest{EventID: ev.ID, TicketID: tk.ID, CouponCode: "TEN"})
	assert.ErrorIs(t, err, storeDown)

	assert.Equal(t, 2, f.remaining(t, z.ID), "confirmed hold is released")
	assert.Equal(t, 0, f.issued(t, tk.ID))
	assert.Equal(t, 0, f.redeemed(t, c.ID))
}

func TestAllocationService_Reserve_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t)
	z := f.zone(t, ev.ID, "Z", 2)
	tk := f.ticket(t, ev.ID, dto.CreateTicketRequest{Price: 10, Quantity: 5, ZoneIDs: []string{z.ID}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.allocation.Reserve(ctx, "user-1", &dto.ReserveRequest{EventID: ev.ID, TicketID: tk.ID})
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, 2, f.remaining(t, z.ID))
	assert.Equal(t, 0, f.issued(t, tk.ID))
}

func TestAllocationService_Reserve_Idempotent(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t)
	z := f.zone(t, ev.ID, "Z", 5)
	tk := f.ticket(t, ev.ID, dto.CreateTicketRequest{Price: 10, Quantity: 5, ZoneIDs: []string{z.ID}})

	req := &dto.ReserveRequest{EventID: ev.ID, TicketID: tk.ID, IdempotencyKey: "key-1"}
	first, err := f.allocation.Reserve(context.Background(), "user-1", req)
	require.NoError(t, err)
	second, err := f.allocation.Reserve(context.Background(), "user-1", req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 4, f.remaining(t, z.ID))
	assert.Equal(t, 1, f.issued(t, tk.ID))

	// the key is scoped per user
	third, err := f.allocation.Reserve(context.Background(), "user-2", req)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestAllocationService_ValidateCoupon(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t)
	z := f.zone(t, ev.ID, "Z", 5)
	tk := f.ticket(t, ev.ID, dto.CreateTicketRequest{Price: 100, Quantity: 5, ZoneIDs: []string{z.ID}})
	f.coupon(t, ev.ID, dto.CreateCouponRequest{Code: "QUARTER", Discount: 25})

	res, err := f.allocation.ValidateCoupon(context.Background(), &dto.ValidateCouponRequest{EventID: ev.ID, Code: "quarter", TicketID: tk.ID})
	require.NoError(t, err)
	assert.Equal(t, 75.0, res.DiscountedPrice)
	assert.Equal(t, 25.0, res.DiscountAmount)

	assert.Equal(t, 5, f.remaining(t, z.ID), "dry run takes nothing")
	assert.Equal(t, 0, f.issued(t, tk.ID))

	_, err = f.allocation.ValidateCoupon(context.Background(), &dto.ValidateCouponRequest{EventID: ev.ID, Code: "quarter", TicketID: tk.ID, ZoneIDs: []string{""}})
	assert.ErrorIs(t, err, domain.ErrInvalidZoneID)
}
