package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

func TestNextState_Table(t *testing.T) {
	tests := []struct {
		from    InvitationState
		action  Action
		want    InvitationState
		changed bool
		err     error
	}{
		{StatePending, ActionAccept, StateAccepted, true, nil},
		{StatePending, ActionDecline, StateDeclined, true, nil},
		{StatePending, ActionCheckIn, StatePending, false, ErrNotAccepted},
		{StatePending, ActionCheckOut, StatePending, false, ErrNotCheckedIn},
		{StateAccepted, ActionAccept, StateAccepted, false, nil},
		{StateAccepted, ActionDecline, StateAccepted, false, ErrInvalidTransition},
		{StateAccepted, ActionCheckIn, StateCheckedIn, true, nil},
		{StateDeclined, ActionAccept, StateDeclined, false, ErrInvalidTransition},
		{StateDeclined, ActionDecline, StateDeclined, false, nil},
		{StateDeclined, ActionCheckIn, StateDeclined, false, ErrNotAccepted},
		{StateCheckedIn, ActionCheckIn, StateCheckedIn, false, ErrAlreadyCheckedIn},
		{StateCheckedIn, ActionCheckOut, StateCheckedOut, true, nil},
		{StateCheckedOut, ActionCheckIn, StateCheckedIn, true, nil},
		{StateCheckedOut, ActionCheckOut, StateCheckedOut, false, ErrNotCheckedIn},
		{StateCheckedOut, ActionDecline, StateCheckedOut, false, ErrInvalidTransition},
		{StatePending, ActionExpire, StatePending, false, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			got, changed, err := NextState(tt.from, tt.action)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestInvitation_CheckOutWithoutCheckIn(t *testing.T) {
	for _, state := range []InvitationState{StatePending, StateAccepted, StateDeclined, StateCheckedOut} {
		inv := &Invitation{State: state}
		assert.ErrorIs(t, inv.CheckOut(t0), ErrNotCheckedIn, "state %s", state)
	}
}

// no_of_entries counts lifetime check-ins: with a limit of one, a holder
// who checked out cannot come back in.
func TestInvitation_SingleEntryIsLifetime(t *testing.T) {
	inv := &Invitation{State: StateAccepted}

	require.NoError(t, inv.CheckIn(t0, 1))
	require.NoError(t, inv.CheckOut(t0.Add(time.Hour)))

	err := inv.CheckIn(t0.Add(2*time.Hour), 1)
	assert.ErrorIs(t, err, ErrEntriesExhausted)
	assert.Equal(t, StateCheckedOut, inv.State)
	assert.Equal(t, 1, inv.EntryCount)
}

func TestInvitation_ReentryWithinLimit(t *testing.T) {
	inv := &Invitation{State: StateAccepted}

	for i := 0; i < 3; i++ {
		in := t0.Add(time.Duration(2*i) * time.Hour)
		require.NoError(t, inv.CheckIn(in, 3))
		require.NoError(t, inv.CheckOut(in.Add(time.Hour)))
	}
	assert.ErrorIs(t, inv.CheckIn(t0.Add(10*time.Hour), 3), ErrEntriesExhausted)
	assert.Equal(t, 3, inv.EntryCount)
}

func TestInvitation_UnlimitedEntries(t *testing.T) {
	inv := &Invitation{State: StateAccepted}
	for i := 0; i < 10; i++ {
		in := t0.Add(time.Duration(2*i) * time.Hour)
		require.NoError(t, inv.CheckIn(in, 0))
		require.NoError(t, inv.CheckOut(in.Add(time.Minute)))
	}
	assert.Equal(t, 10, inv.EntryCount)
}

func TestInvitation_CheckoutMustFollowCheckin(t *testing.T) {
	inv := &Invitation{State: StateAccepted}
	require.NoError(t, inv.CheckIn(t0, 0))

	assert.ErrorIs(t, inv.CheckOut(t0), ErrCheckoutBeforeCheckin)
	assert.ErrorIs(t, inv.CheckOut(t0.Add(-time.Second)), ErrCheckoutBeforeCheckin)
	assert.Equal(t, StateCheckedIn, inv.State)

	require.NoError(t, inv.CheckOut(t0.Add(time.Second)))
	assert.True(t, inv.Checkout.After(*inv.Checkin))
}

func TestInvitation_CheckinClearsCheckout(t *testing.T) {
	inv := &Invitation{State: StateAccepted}
	require.NoError(t, inv.CheckIn(t0, 0))
	require.NoError(t, inv.CheckOut(t0.Add(time.Hour)))

	assert.ErrorIs(t, inv.CheckIn(t0.Add(30*time.Minute), 0), ErrCheckinBeforeCheckout)

	require.NoError(t, inv.CheckIn(t0.Add(2*time.Hour), 0))
	assert.Nil(t, inv.Checkout)
	assert.Equal(t, t0.Add(2*time.Hour), *inv.Checkin)
}

func TestInvitation_AcceptDeclineIdempotency(t *testing.T) {
	inv := &Invitation{State: StatePending}

	changed, err := inv.Accept(t0)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = inv.Accept(t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, t0, *inv.ActionedAt)

	_, err = inv.Decline(t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	declined := &Invitation{State: StatePending}
	changed, err = declined.Decline(t0)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = declined.Decline(t0)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = declined.Accept(t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestInvitation_Clone(t *testing.T) {
	coupon := "c1"
	inv := &Invitation{State: StateAccepted, CouponID: &coupon, Holds: []HoldRef{{Token: "a"}}}
	require.NoError(t, inv.CheckIn(t0, 0))

	c := inv.Clone()
	c.Holds[0].Token = "b"
	*c.CouponID = "c2"
	*c.Checkin = t0.Add(time.Hour)

	assert.Equal(t, "a", inv.Holds[0].Token)
	assert.Equal(t, "c1", *inv.CouponID)
	assert.Equal(t, t0, *inv.Checkin)
}
