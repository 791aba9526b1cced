package repository

import (
	"context"
	"time"

	"github.com/prohmpiriya/hayak-access/internal/domain"
)

// ZoneLedger is the capacity counter backend. Every method is a single
// atomic conditional update on one zone or one hold.
type ZoneLedger interface {
	// Reserve decrements remaining by count when remaining >= count and
	// records a held token that expires at expiresAt.
	Reserve(ctx context.Context, zoneID string, count int, now, expiresAt time.Time) (*domain.ZoneHold, error)

	// Confirm moves a held token to confirmed. Confirming twice is a no-op.
	Confirm(ctx context.Context, token string, now time.Time) (*domain.ZoneHold, error)

	// Release returns the token's capacity. A second release reports
	// domain.ErrAlreadyReleased.
	Release(ctx context.Context, token string, now time.Time) (*domain.ZoneHold, error)

	// Remaining reads the current counter
	Remaining(ctx context.Context, zoneID string) (int, error)

	// ExpiredHolds lists held tokens whose expiry is at or before now
	ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*domain.ZoneHold, error)

	// SyncZone registers a zone counter with the ledger. Existing counters
	// are left alone unless force is set.
	SyncZone(ctx context.Context, zone *domain.Zone, force bool) error
}

// EventRepository stores events
type EventRepository interface {
	Create(ctx context.Context, event *domain.Event) error
	GetByID(ctx context.Context, id string) (*domain.Event, error)
}

// ZoneRepository stores zone definitions
type ZoneRepository interface {
	Create(ctx context.Context, zone *domain.Zone) error
	GetByID(ctx context.Context, id string) (*domain.Zone, error)
	ListByEvent(ctx context.Context, eventID string) ([]*domain.Zone, error)
	// ListAll pages through every live zone, used by the zone sync job
	ListAll(ctx context.Context, limit, offset int) ([]*domain.Zone, error)
}

// TicketRepository stores ticket types and their issued counters
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)

	// ReserveQuantity increments issued when issued < quantity and returns
	// the next issue sequence number.
	ReserveQuantity(ctx context.Context, ticketID string) (int64, error)

	// ReleaseQuantity decrements issued, never below zero
	ReleaseQuantity(ctx context.Context, ticketID string) error
}

// CouponRepository stores coupons and their redemption counters
type CouponRepository interface {
	Create(ctx context.Context, coupon *domain.Coupon) error
	GetByID(ctx context.Context, id string) (*domain.Coupon, error)
	GetByCode(ctx context.Context, eventID, code string) (*domain.Coupon, error)

	// RecordRedemption increments redeemed when usage allows it, otherwise
	// domain.ErrCouponUsageExceeded.
	RecordRedemption(ctx context.Context, couponID string) error

	// RevokeRedemption decrements redeemed, never below zero
	RevokeRedemption(ctx context.Context, couponID string) error
}

// InvitationRepository stores invitations with optimistic versioning
type InvitationRepository interface {
	Create(ctx context.Context, inv *domain.Invitation) error
	GetByID(ctx context.Context, id string) (*domain.Invitation, error)
	GetByBarcode(ctx context.Context, barcode string) (*domain.Invitation, error)
	GetByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Invitation, error)

	// Update persists inv when the stored version equals inv.Version and
	// bumps inv.Version. A stale version returns domain.ErrConcurrencyConflict.
	Update(ctx context.Context, inv *domain.Invitation) error
}

// AuditRepository is the append-only invitation trail
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	ListByInvitation(ctx context.Context, invitationID string) ([]*domain.AuditEntry, error)
}
