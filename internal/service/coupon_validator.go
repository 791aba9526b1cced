package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prohmpiriya/hayak-access/internal/domain"
	"github.com/prohmpiriya/hayak-access/internal/metrics"
	"github.com/prohmpiriya/hayak-access/internal/repository"
	"github.com/prohmpiriya/hayak-access/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// CouponCheck is one coupon validation request
type CouponCheck struct {
	EventID  string
	Code     string
	TicketID string
	// Ticket skips the ticket lookup when the caller already loaded it
	Ticket  *domain.Ticket
	ZoneIDs []string
	At      time.Time
	// HeldZoneUnits and HeldTicketUnits are units the calling request has
	// already taken; they still count as available for until_sold_out.
	HeldZoneUnits   map[string]int
	HeldTicketUnits int
}

// CouponValidator checks coupon eligibility and counts redemptions
type CouponValidator interface {
	// Validate runs the checks in order and returns the discount for the
	// ticket's net price. The first failing check wins.
	Validate(ctx context.Context, check *CouponCheck) (*domain.DiscountResult, error)

	// RecordRedemption increments the redemption counter
	RecordRedemption(ctx context.Context, couponID string) error

	// RevokeRedemption undoes RecordRedemption
	RevokeRedemption(ctx context.Context, couponID string) error
}

type couponValidator struct {
	coupons repository.CouponRepository
	tickets repository.TicketRepository
	ledger  LedgerService
}

// NewCouponValidator creates a new coupon validator
func NewCouponValidator(coupons repository.CouponRepository, tickets repository.TicketRepository, ledger LedgerService) CouponValidator {
	return &couponValidator{coupons: coupons, tickets: tickets, ledger: ledger}
}

func (v *couponValidator) Validate(ctx context.Context, check *CouponCheck) (*domain.DiscountResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.coupon.validate")
	defer span.End()

	ticket := check.Ticket
	if ticket == nil {
		t, err := v.tickets.GetByID(ctx, check.TicketID)
		if err != nil {
			return nil, err
		}
		ticket = t
	}
	eventID := check.EventID
	if eventID == "" {
		eventID = ticket.EventID
	}
	span.SetAttributes(attribute.String("event_id", eventID), attribute.String("ticket_id", ticket.ID))

	coupon, err := v.coupons.GetByCode(ctx, eventID, check.Code)
	if err != nil {
		return nil, err
	}
	if !coupon.IsUsable() {
		return nil, domain.ErrCouponNotFound
	}

	pos, err := coupon.Window.Position(check.At)
	if err != nil {
		return nil, err
	}
	switch pos {
	case domain.BeforeWindow:
		return nil, domain.ErrCouponNotYetValid
	case domain.AfterWindow:
		return nil, domain.ErrCouponExpired
	}

	if coupon.TicketType != "" && !strings.EqualFold(coupon.TicketType, ticket.Type) {
		return nil, domain.ErrCouponTicketTypeMismatch
	}

	zones := SortedUnique(check.ZoneIDs)
	if len(zones) == 0 {
		zones = ticket.ZoneIDs
	}
	if coupon.HasZoneScope() {
		if len(zones) == 0 {
			return nil, domain.ErrCouponZoneMismatch
		}
		for _, z := range zones {
			if !coupon.CoversZone(z) {
				return nil, domain.ErrCouponZoneMismatch
			}
		}
	}

	if !coupon.UsageLeft() {
		return nil, domain.ErrCouponUsageExceeded
	}

	if coupon.UntilSoldOut {
		soldOut, err := v.soldOut(ctx, ticket, zones, check)
		if err != nil {
			return nil, err
		}
		if soldOut {
			return nil, domain.ErrCouponSoldOut
		}
	}

	price := ticket.NetPrice()
	discounted := coupon.Apply(price)
	return &domain.DiscountResult{
		CouponID:        coupon.ID,
		Code:            coupon.Code,
		DiscountType:    coupon.DiscountType,
		Discount:        coupon.Discount,
		OriginalPrice:   price,
		DiscountedPrice: discounted,
		DiscountAmount:  domain.RoundCents(price - discounted),
	}, nil
}

// soldOut reports whether the ticket or every considered zone is out of
// units, counting what the caller already holds as still available.
func (v *couponValidator) soldOut(ctx context.Context, ticket *domain.Ticket, zones []string, check *CouponCheck) (bool, error) {
	if ticket.RemainingQuantity()+check.HeldTicketUnits <= 0 {
		return true, nil
	}
	if len(zones) == 0 {
		return false, nil
	}
	for _, z := range zones {
		remaining, err := v.ledger.Remaining(ctx, z)
		if err != nil {
			if errors.Is(err, domain.ErrZoneNotFound) {
				continue
			}
			return false, err
		}
		if remaining+check.HeldZoneUnits[z] > 0 {
			return false, nil
		}
	}
	return true, nil
}

func (v *couponValidator) RecordRedemption(ctx context.Context, couponID string) error {
	if err := v.coupons.RecordRedemption(ctx, couponID); err != nil {
		return err
	}
	if c, err := v.coupons.GetByID(ctx, couponID); err == nil {
		metrics.RecordCouponRedemption(ctx, c.EventID, c.Code)
	}
	return nil
}

func (v *couponValidator) RevokeRedemption(ctx context.Context, couponID string) error {
	return v.coupons.RevokeRedemption(ctx, couponID)
}
