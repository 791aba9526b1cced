package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prohmpiriya/hayak-access/internal/domain"
	"github.com/prohmpiriya/hayak-access/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pendingInvitation reserves one invitation for a ticket with the given
// entry limit
func pendingInvitation(t *testing.T, f *fixture, entries *int) *domain.Invitation {
	t.Helper()
	ev := f.event(t)
	z := f.zone(t, ev.ID, "Hall", 10)
	tk := f.ticket(t, ev.ID, dto.CreateTicketRequest{Price: 10, Quantity: 10, NoOfEntries: entries, ZoneIDs: []string{z.ID}})
	inv, err := f.reserve(ev.ID, tk.ID, "guest-1")
	require.NoError(t, err)
	return inv
}

func TestInvitationService_AcceptDecline(t *testing.T) {
	ctx := context.Background()

	t.Run("accept is idempotent", func(t *testing.T) {
		f := newFixture(t)
		inv := pendingInvitation(t, f, nil)

		got, err := f.invitations.Accept(ctx, inv.ID, "guest-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StateAccepted, got.State)
		assert.Equal(t, t0, *got.ActionedAt)

		got, err = f.invitations.Accept(ctx, inv.ID, "guest-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StateAccepted, got.State)
		assert.Equal(t, 1, got.Version, "no-op is not written")

		_, err = f.invitations.Decline(ctx, inv.ID, "guest-1")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("declined cannot be accepted", func(t *testing.T) {
		f := newFixture(t)
		inv := pendingInvitation(t, f, nil)

		_, err := f.invitations.Decline(ctx, inv.ID, "guest-1")
		require.NoError(t, err)
		_, err = f.invitations.Accept(ctx, inv.ID, "guest-1")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		_, err = f.invitations.CheckIn(ctx, inv.ID, "door", time.Time{})
		assert.ErrorIs(t, err, domain.ErrNotAccepted)
	})

	t.Run("unknown invitation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.invitations.Accept(ctx, "missing", "guest-1")
		assert.ErrorIs(t, err, domain.ErrInvitationNotFound)
	})
}

func TestInvitationService_CheckInOut(t *testing.T) {
	ctx := context.Background()

	t.Run("pending cannot check in or out", func(t *testing.T) {
		f := newFixture(t)
		inv := pendingInvitation(t, f, nil)

		_, err := f.invitations.CheckIn(ctx, inv.ID, "door", time.Time{})
		assert.ErrorIs(t, err, domain.ErrNotAccepted)
		_, err = f.invitations.CheckOut(ctx, inv.ID, "door", time.Time{})
		assert.ErrorIs(t, err, domain.ErrNotCheckedIn)
	})

	t.Run("check out without check in", func(t *testing.T) {
		f := newFixture(t)
		inv := pendingInvitation(t, f, nil)
		_, err := f.invitations.Accept(ctx, inv.ID, "guest-1")
		require.NoError(t, err)

		_, err = f.invitations.CheckOut(ctx, inv.ID, "door", time.Time{})
		assert.ErrorIs(t, err, domain.ErrNotCheckedIn)
	})

	t.Run("checkout must follow checkin", func(t *testing.T) {
		f := newFixture(t)
		inv := pendingInvitation(t, f, nil)
		_, err := f.invitations.Accept(ctx, inv.ID, "guest-1")
		require.NoError(t, err)

		at := t0.Add(time.Hour)
		_, err = f.invitations.CheckIn(ctx, inv.ID, "door", at)
		require.NoError(t, err)
		_, err = f.invitations.CheckIn(ctx, inv.ID, "door", at.Add(time.Minute))
		assert.ErrorIs(t, err, domain.ErrAlreadyCheckedIn)

		_, err = f.invitations.CheckOut(ctx, inv.ID, "door", at)
		assert.ErrorIs(t, err, domain.ErrCheckoutBeforeCheckin)

		got, err := f.invitations.CheckOut(ctx, inv.ID, "door", at.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, domain.StateCheckedOut, got.State)
		assert.True(t, got.Checkout.After(*got.Checkin))
	})

	t.Run("unlimited reentry", func(t *testing.T) {
		f := newFixture(t)
		inv := pendingInvitation(t, f, nil)
		_, err := f.invitations.Accept(ctx, inv.ID, "guest-1")
		require.NoError(t, err)

		at := t0
		for i := 0; i < 3; i++ {
			at = at.Add(time.Hour)
			_, err = f.invitations.CheckIn(ctx, inv.ID, "door", at)
			require.NoError(t, err)
			at = at.Add(time.Hour)
			_, err = f.invitations.CheckOut(ctx, inv.ID, "door", at)
			require.NoError(t, err)
		}

		status, err := f.invitations.Status(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, status.EntryCount)
		assert.Equal(t, domain.StateCheckedOut, status.State)
	})
}

// no_of_entries limits lifetime check-ins: with a limit of one, a second
// check-in after checking out is rejected.
func TestInvitationService_SingleEntryIsLifetime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv := pendingInvitation(t, f, intPtr(1))

	_, err := f.invitations.Accept(ctx, inv.ID, "guest-1")
	require.NoError(t, err)
	_, err = f.invitations.CheckIn(ctx, inv.ID, "door", t0.Add(time.Hour))
	require.NoError(t, err)
	_, err = f.invitations.CheckOut(ctx, inv.ID, "door", t0.Add(2*time.Hour))
	require.NoError(t, err)

	_, err = f.invitations.CheckIn(ctx, inv.ID, "door", t0.Add(3*time.Hour))
	assert.ErrorIs(t, err, domain.ErrEntriesExhausted)

	got, err := f.invitations.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCheckedOut, got.State)
	assert.Equal(t, 1, got.EntryCount)
}

func TestInvitationService_History(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv := pendingInvitation(t, f, nil)

	f.clock.Advance(time.Minute)
	_, err := f.invitations.Accept(ctx, inv.ID, "guest-1")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.invitations.CheckIn(ctx, inv.ID, "door-7", time.Time{})
	require.NoError(t, err)

	history, err := f.invitations.History(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, domain.ActionCreate, history[0].Action)
	assert.Equal(t, domain.StatePending, history[0].ToState)
	assert.Equal(t, domain.ActionAccept, history[1].Action)
	assert.Equal(t, domain.StatePending, history[1].FromState)
	assert.Equal(t, domain.ActionCheckIn, history[2].Action)
	assert.Equal(t, domain.StateCheckedIn, history[2].ToState)
	assert.Equal(t, "door-7", history[2].ActorID)

	assert.Equal(t,
		[]domain.Action{domain.ActionCreate, domain.ActionAccept, domain.ActionCheckIn},
		f.publisher.actions())

	_, err = f.invitations.History(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrInvitationNotFound)
}

func TestInvitationService_RetriesVersionConflicts(t *testing.T) {
	ctx := context.Background()

	t.Run("conflict then success", func(t *testing.T) {
		f := newFixture(t)
		inv := pendingInvitation(t, f, nil)

		calls := 0
		f.invRepo.UpdateFunc = func(ctx context.Context, i *domain.Invitation) error {
			calls++
			if calls == 1 {
				return domain.ErrConcurrencyConflict
			}
			return f.invRepo.InvitationRepository.Update(ctx, i)
		}

		got, err := f.invitations.Accept(ctx, inv.ID, "guest-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StateAccepted, got.State)
		assert.Equal(t, 2, calls)
	})

	t.Run("conflicts exhaust retries", func(t *testing.T) {
		f := newFixture(t)
		inv := pendingInvitation(t, f, nil)

		calls := 0
		f.invRepo.UpdateFunc = func(ctx context.Context, i *domain.Invitation) error {
			calls++
			return domain.ErrConcurrencyConflict
		}

		_, err := f.invitations.Accept(ctx, inv.ID, "guest-1")
		assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
		assert.Equal(t, 4, calls)
	})

	t.Run("domain errors are not retried", func(t *testing.T) {
		f := newFixture(t)
		inv := pendingInvitation(t, f, nil)

		calls := 0
		f.invRepo.UpdateFunc = func(ctx context.Context, i *domain.Invitation) error {
			calls++
			return nil
		}

		_, err := f.invitations.CheckOut(ctx, inv.ID, "door", time.Time{})
		assert.ErrorIs(t, err, domain.ErrNotCheckedIn)
		assert.Zero(t, calls)
	})
}

func TestInvitationService_SideEffectsAreBestEffort(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv := pendingInvitation(t, f, nil)

	f.auditRepo.AppendFunc = func(ctx context.Context, entry *domain.AuditEntry) error {
		return errors.New("audit store down")
	}
	f.publisher.PublishInvitationEventFunc = func(ctx context.Context, action domain.Action, inv *domain.Invitation) error {
		return errors.New("broker down")
	}

	got, err := f.invitations.Accept(ctx, inv.ID, "guest-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateAccepted, got.State)
}

func TestInvitationService_CheckInByScan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv := pendingInvitation(t, f, nil)
	_, err := f.invitations.Accept(ctx, inv.ID, "guest-1")
	require.NoError(t, err)

	t.Run("tampered payload", func(t *testing.T) {
		parts := strings.Split(f.signer.Payload(inv.EventID, inv.Barcode), "|")
		require.Len(t, parts, 3)
		tampered := strings.Join([]string{parts[0], parts[1] + "0", parts[2]}, "|")
		_, err := f.invitations.CheckInByScan(ctx, tampered, "door", time.Time{})
		assert.ErrorIs(t, err, domain.ErrInvalidScan)
	})

	t.Run("payload signed for another event", func(t *testing.T) {
		payload := f.signer.Payload("other-event", inv.Barcode)
		_, err := f.invitations.CheckInByScan(ctx, payload, "door", time.Time{})
		assert.ErrorIs(t, err, domain.ErrInvalidScan)
	})

	t.Run("unknown barcode", func(t *testing.T) {
		payload := f.signer.Payload(inv.EventID, "0000000000")
		_, err := f.invitations.CheckInByScan(ctx, payload, "door", time.Time{})
		assert.ErrorIs(t, err, domain.ErrInvitationNotFound)
	})

	t.Run("valid payload", func(t *testing.T) {
		payload := f.signer.Payload(inv.EventID, inv.Barcode)
		got, err := f.invitations.CheckInByScan(ctx, payload, "door", time.Time{})
		require.NoError(t, err)
		assert.Equal(t, domain.StateCheckedIn, got.State)
		assert.Equal(t, t0, *got.Checkin)
	})
}

func TestInvitationService_BarcodePNG(t *testing.T) {
	f := newFixture(t)
	inv := pendingInvitation(t, f, nil)

	png, err := f.invitations.BarcodePNG(context.Background(), inv.ID, 128)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestTicketNumber(t *testing.T) {
	assert.Equal(t, "3F2A9C1B-000042", TicketNumber("3f2a9c1b-77aa-4c1e-9d1e-0a1b2c3d4e5f", 42))
	assert.Equal(t, "T1-000001", TicketNumber("t1", 1))
}
