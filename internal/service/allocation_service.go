package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prohmpiriya/hayak-access/internal/clock"
	"github.com/prohmpiriya/hayak-access/internal/domain"
	"github.com/prohmpiriya/hayak-access/internal/dto"
	"github.com/prohmpiriya/hayak-access/internal/metrics"
	"github.com/prohmpiriya/hayak-access/internal/repository"
	"github.com/prohmpiriya/hayak-access/pkg/logger"
	"github.com/prohmpiriya/hayak-access/pkg/saga"
	"github.com/prohmpiriya/hayak-access/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AllocationService issues invitations against ticket quantity, zone
// capacity and coupon usage
type AllocationService interface {
	// Reserve validates the request, takes one ticket unit and one unit in
	// every selected zone, redeems the coupon and creates a pending
	// invitation. On any failure everything taken so far is given back.
	Reserve(ctx context.Context, userID string, req *dto.ReserveRequest) (*domain.Invitation, error)

	// ValidateCoupon is a dry run of the coupon checks for a selection
	ValidateCoupon(ctx context.Context, req *dto.ValidateCouponRequest) (*domain.DiscountResult, error)
}

// AllocationServiceConfig contains configuration for the allocation service
type AllocationServiceConfig struct {
	// RequestTimeout bounds one Reserve call, compensation excluded
	RequestTimeout time.Duration
	// CompensationTimeout bounds the undo phase of a failed reservation
	CompensationTimeout time.Duration
}

type allocationService struct {
	catalog     CatalogService
	ledger      LedgerService
	coupons     CouponValidator
	invitations InvitationService
	lookup      repository.InvitationRepository
	clock       clock.Clock
	log         *logger.Logger
	cfg         AllocationServiceConfig
	orch        *saga.Orchestrator[reservation]
}

// NewAllocationService creates a new allocation service
func NewAllocationService(
	catalog CatalogService,
	ledger LedgerService,
	coupons CouponValidator,
	invitations InvitationService,
	lookup repository.InvitationRepository,
	clk clock.Clock,
	log *logger.Logger,
	cfg *AllocationServiceConfig,
) AllocationService {
	c := AllocationServiceConfig{
		RequestTimeout:      10 * time.Second,
		CompensationTimeout: 10 * time.Second,
	}
	if cfg != nil {
		if cfg.RequestTimeout > 0 {
			c.RequestTimeout = cfg.RequestTimeout
		}
		if cfg.CompensationTimeout > 0 {
			c.CompensationTimeout = cfg.CompensationTimeout
		}
	}
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = logger.Get()
	}

	s := &allocationService{
		catalog:     catalog,
		ledger:      ledger,
		coupons:     coupons,
		invitations: invitations,
		lookup:      lookup,
		clock:       clk,
		log:         log,
		cfg:         c,
	}
	s.orch = saga.NewOrchestrator(s.reservationSaga(), log)
	return s
}

// reservation is the state threaded through the reservation saga
type reservation struct {
	userID         string
	eventID        string
	ticketID       string
	selection      []string
	couponCode     string
	idempotencyKey string
	at             time.Time

	ticket    *domain.Ticket
	zones     []string
	issueSeq  int64
	holds     []*domain.ZoneHold
	discount  *domain.DiscountResult
	redeemed  bool
	confirmed bool

	invitation *domain.Invitation
}

func (s *allocationService) reservationSaga() *saga.Definition[reservation] {
	return saga.NewDefinition[reservation]("reserve_invitation").
		WithCompensationTimeout(s.cfg.CompensationTimeout).
		AddStep(&saga.Step[reservation]{
			Name:    "load",
			Execute: s.load,
		}).
		AddStep(&saga.Step[reservation]{
			Name: "reserve_ticket_quantity",
			Execute: func(ctx context.Context, r *reservation) error {
				seq, err := s.catalog.ReserveQuantity(ctx, r.ticketID)
				if err != nil {
					return err
				}
				r.issueSeq = seq
				return nil
			},
			Compensate: func(ctx context.Context, r *reservation) error {
				return s.catalog.ReleaseQuantity(ctx, r.ticketID)
			},
		}).
		AddStep(&saga.Step[reservation]{
			Name: "reserve_zones",
			Execute: func(ctx context.Context, r *reservation) error {
				if len(r.zones) == 0 {
					return nil
				}
				holds, err := s.ledger.ReserveAll(ctx, r.zones, 1)
				if err != nil {
					return err
				}
				r.holds = holds
				return nil
			},
			Compensate: func(ctx context.Context, r *reservation) error {
				return s.ledger.ReleaseAll(ctx, holdTokens(r.holds))
			},
		}).
		AddStep(&saga.Step[reservation]{
			Name: "validate_coupon",
			Execute: func(ctx context.Context, r *reservation) error {
				if r.couponCode == "" {
					return nil
				}
				held := make(map[string]int, len(r.holds))
				for _, h := range r.holds {
					held[h.ZoneID] += h.Count
				}
				// The ticket is reloaded so that its issued count includes
				// the unit this request just took.
				discount, err := s.coupons.Validate(ctx, &CouponCheck{
					EventID:         r.eventID,
					Code:            r.couponCode,
					TicketID:        r.ticketID,
					ZoneIDs:         r.zones,
					At:              r.at,
					HeldZoneUnits:   held,
					HeldTicketUnits: 1,
				})
				if err != nil {
					return err
				}
				r.discount = discount
				return nil
			},
		}).
		AddStep(&saga.Step[reservation]{
			Name: "redeem_coupon",
			Execute: func(ctx context.Context, r *reservation) error {
				if r.discount == nil {
					return nil
				}
				if err := s.coupons.RecordRedemption(ctx, r.discount.CouponID); err != nil {
					return err
				}
				r.redeemed = true
				return nil
			},
			Compensate: func(ctx context.Context, r *reservation) error {
				if !r.redeemed {
					return nil
				}
				return s.coupons.RevokeRedemption(ctx, r.discount.CouponID)
			},
		}).
		AddStep(&saga.Step[reservation]{
			Name: "confirm_zones",
			Execute: func(ctx context.Context, r *reservation) error {
				for _, h := range r.holds {
					confirmed, err := s.ledger.Confirm(ctx, h.Token)
					if err != nil {
						return err
					}
					*h = *confirmed
				}
				r.confirmed = true
				return nil
			},
		}).
		AddStep(&saga.Step[reservation]{
			Name: "create_invitation",
			Execute: func(ctx context.Context, r *reservation) error {
				inv, err := s.invitations.Create(ctx, &NewInvitation{
					EventID:        r.eventID,
					UserID:         r.userID,
					Ticket:         r.ticket,
					IssueSeq:       r.issueSeq,
					Holds:          r.holds,
					Discount:       r.discount,
					IdempotencyKey: r.idempotencyKey,
				})
				if err != nil {
					return err
				}
				r.invitation = inv
				return nil
			},
		})
}

// load validates the event, ticket and zone selection
func (s *allocationService) load(ctx context.Context, r *reservation) error {
	event, err := s.catalog.GetEvent(ctx, r.eventID)
	if err != nil {
		return err
	}
	if !event.AcceptsReservations(r.at) {
		return domain.ErrEventClosed
	}

	resp, err := s.catalog.GetTicket(ctx, r.ticketID)
	if err != nil {
		return err
	}
	ticket := resp.Ticket
	if ticket.EventID != event.ID {
		return domain.ErrTicketNotFound
	}
	onSale, err := ticket.Window.Contains(r.at)
	if err != nil {
		return err
	}
	if !onSale {
		return domain.ErrTicketNotOnSale
	}
	if ticket.RemainingQuantity() <= 0 {
		return domain.ErrQuantityExhausted
	}
	r.ticket = ticket

	zones, err := resolveZones(ticket, r.selection)
	if err != nil {
		return err
	}
	r.zones = zones
	return nil
}

// resolveZones checks a selection against the zones a ticket grants. An
// empty selection takes every granted zone.
func resolveZones(ticket *domain.Ticket, selection []string) ([]string, error) {
	if len(selection) == 0 {
		return SortedUnique(ticket.ZoneIDs), nil
	}
	for _, id := range selection {
		if strings.TrimSpace(id) == "" {
			return nil, domain.ErrInvalidZoneID
		}
	}
	zones := SortedUnique(selection)
	if len(zones) == 0 {
		return nil, domain.ErrInvalidZoneID
	}
	for _, id := range zones {
		if !ticket.Grants(id) {
			return nil, domain.ErrZoneNotGranted
		}
	}
	return zones, nil
}

func holdTokens(holds []*domain.ZoneHold) []string {
	tokens := make([]string, 0, len(holds))
	for _, h := range holds {
		tokens = append(tokens, h.Token)
	}
	return tokens
}

func (s *allocationService) Reserve(ctx context.Context, userID string, req *dto.ReserveRequest) (*domain.Invitation, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.allocation.reserve")
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrInvalidUserID
	}
	if strings.TrimSpace(req.EventID) == "" {
		return nil, domain.ErrInvalidEventID
	}
	if strings.TrimSpace(req.TicketID) == "" {
		return nil, domain.ErrInvalidTicketID
	}
	span.SetAttributes(
		attribute.String("event_id", req.EventID),
		attribute.String("ticket_id", req.TicketID),
		attribute.String("user_id", userID),
	)

	if req.IdempotencyKey != "" {
		existing, err := s.lookup.GetByIdempotencyKey(ctx, userID, req.IdempotencyKey)
		if err == nil {
			span.SetAttributes(attribute.Bool("idempotent_replay", true))
			return existing, nil
		}
		if !errors.Is(err, domain.ErrInvitationNotFound) {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	started := time.Now()
	r := &reservation{
		userID:         userID,
		eventID:        req.EventID,
		ticketID:       req.TicketID,
		selection:      req.ZoneIDs,
		couponCode:     strings.TrimSpace(req.CouponCode),
		idempotencyKey: req.IdempotencyKey,
		at:             s.clock.Now(),
	}

	if _, err := s.orch.Execute(ctx, r); err != nil {
		// A concurrent request with the same key won the insert
		if req.IdempotencyKey != "" && errors.Is(err, domain.ErrInvitationAlreadyExists) {
			existing, lookupErr := s.lookup.GetByIdempotencyKey(context.WithoutCancel(ctx), userID, req.IdempotencyKey)
			if lookupErr == nil {
				return existing, nil
			}
		}
		return nil, s.reserveFailed(ctx, span, req.EventID, err)
	}

	metrics.RecordReservation(ctx, req.EventID, req.TicketID, len(r.zones), time.Since(started).Seconds())
	s.log.InfoContext(ctx, "invitation reserved",
		"invitation_id", r.invitation.ID,
		"event_id", req.EventID,
		"ticket_id", req.TicketID,
		"zones", len(r.zones),
		"coupon", r.discount != nil,
	)
	return r.invitation, nil
}

func (s *allocationService) reserveFailed(ctx context.Context, span trace.Span, eventID string, err error) error {
	var sagaErr *saga.Error
	if errors.As(err, &sagaErr) {
		if sagaErr.CompensationErr != nil {
			s.log.ErrorContext(ctx, "reservation rollback incomplete",
				"event_id", eventID, "step", sagaErr.Step, "error", sagaErr.CompensationErr)
		}
		err = sagaErr.Err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		err = domain.ErrTimeout
	}
	telemetry.RecordError(span, err)
	metrics.RecordReservationFailure(ctx, eventID, domain.ErrorCode(err))
	return err
}

func (s *allocationService) ValidateCoupon(ctx context.Context, req *dto.ValidateCouponRequest) (*domain.DiscountResult, error) {
	resp, err := s.catalog.GetTicket(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}
	if resp.Ticket.EventID != req.EventID {
		return nil, domain.ErrTicketNotFound
	}
	zones, err := resolveZones(resp.Ticket, req.ZoneIDs)
	if err != nil {
		return nil, err
	}
	return s.coupons.Validate(ctx, &CouponCheck{
		EventID: req.EventID,
		Code:    req.Code,
		Ticket:  resp.Ticket,
		ZoneIDs: zones,
		At:      s.clock.Now(),
	})
}
