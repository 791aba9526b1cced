package service

import (
	"context"
	"testing"

	"github.com/prohmpiriya/hayak-access/internal/domain"
	"github.com/prohmpiriya/hayak-access/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogService_Zones(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.event(t)
	z := f.zone(t, ev.ID, "Balcony", 4)

	assert.Equal(t, 4, f.remaining(t, z.ID), "zone is registered with the ledger")

	_, err := f.ledger.Reserve(ctx, z.ID, 3)
	require.NoError(t, err)

	zones, err := f.catalog.ListZones(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Equal(t, 1, zones[0].Remaining)

	_, err = f.catalog.CreateZone(ctx, ev.ID, &dto.CreateZoneRequest{Name: "Bad", Capacity: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidCapacity)
	_, err = f.catalog.CreateZone(ctx, "missing", &dto.CreateZoneRequest{Name: "Orphan", Capacity: 1})
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestCatalogService_Tickets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.event(t)
	other := f.event(t)
	z := f.zone(t, ev.ID, "Pit", 10)
	foreign := f.zone(t, other.ID, "Elsewhere", 10)

	tk := f.ticket(t, ev.ID, dto.CreateTicketRequest{Price: 60, Discount: floatPtr(5), Quantity: 2, ZoneIDs: []string{z.ID, z.ID}})
	assert.Equal(t, []string{z.ID}, tk.ZoneIDs)

	resp, err := f.catalog.GetTicket(ctx, tk.ID)
	require.NoError(t, err)
	assert.True(t, resp.OnSale)
	assert.Equal(t, 2, resp.Remaining)
	assert.Equal(t, 55.0, resp.NetPrice())

	zones, err := f.catalog.ListZonesForTicket(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{z.ID}, zones)

	_, err = f.catalog.CreateTicket(ctx, ev.ID, &dto.CreateTicketRequest{Name: "Cross", Quantity: 1, ZoneIDs: []string{foreign.ID}})
	assert.ErrorIs(t, err, domain.ErrZoneEventMismatch)
	_, err = f.catalog.CreateTicket(ctx, ev.ID, &dto.CreateTicketRequest{Name: "Ghost", Quantity: 1, ZoneIDs: []string{"missing"}})
	assert.ErrorIs(t, err, domain.ErrZoneNotFound)
	_, err = f.catalog.CreateTicket(ctx, ev.ID, &dto.CreateTicketRequest{Name: "Bad", Quantity: 1, WindowRequest: dto.WindowRequest{Timezone: "Mars/Olympus"}})
	assert.ErrorIs(t, err, domain.ErrInvalidTimezone)

	_, err = f.catalog.ReserveQuantity(ctx, tk.ID)
	require.NoError(t, err)
	left, err := f.catalog.RemainingQuantity(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	open, err := f.catalog.ValidateTicketWindow(ctx, tk.ID, t0)
	require.NoError(t, err)
	assert.True(t, open)
}

func TestCatalogService_Coupons(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.event(t)

	c := f.coupon(t, ev.ID, dto.CreateCouponRequest{Code: "  summer ", Discount: 15})
	assert.Equal(t, "SUMMER", c.Code)
	assert.True(t, c.IsActive)

	_, err := f.catalog.CreateCoupon(ctx, ev.ID, &dto.CreateCouponRequest{Code: "Summer", DiscountType: "fixed", Discount: 1})
	assert.ErrorIs(t, err, domain.ErrDuplicateCouponCode)

	_, err = f.catalog.CreateCoupon(ctx, ev.ID, &dto.CreateCouponRequest{Code: "TOOMUCH", DiscountType: "percentage", Discount: 120})
	assert.ErrorIs(t, err, domain.ErrInvalidDiscount)

	// the same code is free under another event
	other := f.event(t)
	_, err = f.catalog.CreateCoupon(ctx, other.ID, &dto.CreateCouponRequest{Code: "SUMMER", DiscountType: "fixed", Discount: 1})
	assert.NoError(t, err)
}
