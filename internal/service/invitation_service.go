package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/hayak-access/internal/clock"
	"github.com/prohmpiriya/hayak-access/internal/domain"
	"github.com/prohmpiriya/hayak-access/internal/dto"
	"github.com/prohmpiriya/hayak-access/internal/metrics"
	"github.com/prohmpiriya/hayak-access/internal/repository"
	"github.com/prohmpiriya/hayak-access/pkg/logger"
	"github.com/prohmpiriya/hayak-access/pkg/retry"
	"github.com/prohmpiriya/hayak-access/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// NewInvitation is what the allocation engine hands over once capacity,
// quantity and coupon are secured.
type NewInvitation struct {
	EventID        string
	UserID         string
	Ticket         *domain.Ticket
	IssueSeq       int64
	Holds          []*domain.ZoneHold
	Discount       *domain.DiscountResult
	IdempotencyKey string
}

// InvitationService is the invitation lifecycle manager
type InvitationService interface {
	// Create stores a pending invitation with a unique barcode and ticket number
	Create(ctx context.Context, in *NewInvitation) (*domain.Invitation, error)

	Get(ctx context.Context, invitationID string) (*domain.Invitation, error)
	Status(ctx context.Context, invitationID string) (*dto.InvitationStatusResponse, error)
	// History returns the audit trail, oldest first
	History(ctx context.Context, invitationID string) ([]*domain.AuditEntry, error)

	Accept(ctx context.Context, invitationID, actorID string) (*domain.Invitation, error)
	// Decline returns the invitation's zone holds, ticket unit and coupon redemption
	Decline(ctx context.Context, invitationID, actorID string) (*domain.Invitation, error)
	CheckIn(ctx context.Context, invitationID, actorID string, at time.Time) (*domain.Invitation, error)
	CheckOut(ctx context.Context, invitationID, actorID string, at time.Time) (*domain.Invitation, error)

	// CheckInByScan verifies a signed QR payload and checks the holder in
	CheckInByScan(ctx context.Context, payload, actorID string, at time.Time) (*domain.Invitation, error)
	// BarcodePNG renders the invitation's signed QR code
	BarcodePNG(ctx context.Context, invitationID string, size int) ([]byte, error)
}

// InvitationServiceConfig contains configuration for the invitation service
type InvitationServiceConfig struct {
	ConflictRetries int
}

type invitationService struct {
	invitations repository.InvitationRepository
	tickets     repository.TicketRepository
	audit       repository.AuditRepository
	ledger      LedgerService
	coupons     CouponValidator
	publisher   EventPublisher
	signer      *BarcodeSigner
	clock       clock.Clock
	log         *logger.Logger
	retries     int
}

// NewInvitationService creates a new invitation service
func NewInvitationService(
	invitations repository.InvitationRepository,
	tickets repository.TicketRepository,
	audit repository.AuditRepository,
	ledger LedgerService,
	coupons CouponValidator,
	publisher EventPublisher,
	signer *BarcodeSigner,
	clk clock.Clock,
	log *logger.Logger,
	cfg *InvitationServiceConfig,
) InvitationService {
	retries := 3
	if cfg != nil && cfg.ConflictRetries >= 0 {
		retries = cfg.ConflictRetries
	}
	if publisher == nil {
		publisher = NewNoOpEventPublisher()
	}
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = logger.Get()
	}
	return &invitationService{
		invitations: invitations,
		tickets:     tickets,
		audit:       audit,
		ledger:      ledger,
		coupons:     coupons,
		publisher:   publisher,
		signer:      signer,
		clock:       clk,
		log:         log,
		retries:     retries,
	}
}

// TicketNumber formats a human-readable ticket number from the ticket id
// and its issue sequence.
func TicketNumber(ticketID string, seq int64) string {
	prefix := strings.ReplaceAll(ticketID, "-", "")
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("%s-%06d", strings.ToUpper(prefix), seq)
}

func (s *invitationService) Create(ctx context.Context, in *NewInvitation) (*domain.Invitation, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.invitation.create")
	defer span.End()

	barcode, err := s.signer.NewBarcode()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	inv := &domain.Invitation{
		ID:             uuid.New().String(),
		EventID:        in.EventID,
		UserID:         in.UserID,
		TicketID:       in.Ticket.ID,
		TicketType:     in.Ticket.Type,
		TicketNo:       TicketNumber(in.Ticket.ID, in.IssueSeq),
		Barcode:        barcode,
		State:          domain.StatePending,
		Price:          in.Ticket.NetPrice(),
		FinalPrice:     in.Ticket.NetPrice(),
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, h := range in.Holds {
		inv.Holds = append(inv.Holds, domain.HoldRef{Token: h.Token, ZoneID: h.ZoneID, Count: h.Count})
	}
	if in.Discount != nil {
		couponID := in.Discount.CouponID
		inv.CouponID = &couponID
		inv.CouponDiscount = in.Discount.DiscountAmount
		inv.FinalPrice = in.Discount.DiscountedPrice
	}

	span.SetAttributes(attribute.String("invitation_id", inv.ID), attribute.String("ticket_no", inv.TicketNo))

	if err := s.invitations.Create(ctx, inv); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.recordTransition(ctx, inv, domain.ActionCreate, "", in.UserID, nil)
	return inv, nil
}

func (s *invitationService) Get(ctx context.Context, invitationID string) (*domain.Invitation, error) {
	if invitationID == "" {
		return nil, domain.ErrInvitationNotFound
	}
	return s.invitations.GetByID(ctx, invitationID)
}

func (s *invitationService) Status(ctx context.Context, invitationID string) (*dto.InvitationStatusResponse, error) {
	inv, err := s.Get(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	return dto.NewInvitationStatusResponse(inv), nil
}

func (s *invitationService) History(ctx context.Context, invitationID string) ([]*domain.AuditEntry, error) {
	if _, err := s.Get(ctx, invitationID); err != nil {
		return nil, err
	}
	return s.audit.ListByInvitation(ctx, invitationID)
}

func (s *invitationService) Accept(ctx context.Context, invitationID, actorID string) (*domain.Invitation, error) {
	at := s.clock.Now().UTC()
	inv, _, err := s.transition(ctx, invitationID, actorID, domain.ActionAccept, func(inv *domain.Invitation) (bool, error) {
		return inv.Accept(at)
	})
	return inv, err
}

func (s *invitationService) Decline(ctx context.Context, invitationID, actorID string) (*domain.Invitation, error) {
	at := s.clock.Now().UTC()
	inv, changed, err := s.transition(ctx, invitationID, actorID, domain.ActionDecline, func(inv *domain.Invitation) (bool, error) {
		return inv.Decline(at)
	})
	if err != nil || !changed {
		return inv, err
	}

	// The declined state is already stored; give back what the
	// invitation held even if the caller goes away.
	s.releaseResources(context.WithoutCancel(ctx), inv)
	return inv, nil
}

func (s *invitationService) releaseResources(ctx context.Context, inv *domain.Invitation) {
	if err := s.ledger.ReleaseAll(ctx, inv.HoldTokens()); err != nil {
		s.log.ErrorContext(ctx, "failed to release zone holds on decline", "invitation_id", inv.ID, "error", err)
	}
	if err := s.tickets.ReleaseQuantity(ctx, inv.TicketID); err != nil {
		s.log.ErrorContext(ctx, "failed to release ticket quantity on decline", "invitation_id", inv.ID, "ticket_id", inv.TicketID, "error", err)
	}
	if inv.CouponID != nil {
		if err := s.coupons.RevokeRedemption(ctx, *inv.CouponID); err != nil {
			s.log.ErrorContext(ctx, "failed to revoke coupon redemption on decline", "invitation_id", inv.ID, "coupon_id", *inv.CouponID, "error", err)
		}
	}
}

func (s *invitationService) CheckIn(ctx context.Context, invitationID, actorID string, at time.Time) (*domain.Invitation, error) {
	if at.IsZero() {
		at = s.clock.Now()
	}
	at = at.UTC()

	var entryLimit int
	loaded := false
	inv, _, err := s.transition(ctx, invitationID, actorID, domain.ActionCheckIn, func(inv *domain.Invitation) (bool, error) {
		if !loaded {
			ticket, err := s.tickets.GetByID(ctx, inv.TicketID)
			if err != nil {
				return false, err
			}
			entryLimit = ticket.EntryLimit()
			loaded = true
		}
		if err := inv.CheckIn(at, entryLimit); err != nil {
			return false, err
		}
		return true, nil
	})
	return inv, err
}

func (s *invitationService) CheckOut(ctx context.Context, invitationID, actorID string, at time.Time) (*domain.Invitation, error) {
	if at.IsZero() {
		at = s.clock.Now()
	}
	at = at.UTC()

	inv, _, err := s.transition(ctx, invitationID, actorID, domain.ActionCheckOut, func(inv *domain.Invitation) (bool, error) {
		if err := inv.CheckOut(at); err != nil {
			return false, err
		}
		return true, nil
	})
	return inv, err
}

func (s *invitationService) CheckInByScan(ctx context.Context, payload, actorID string, at time.Time) (*domain.Invitation, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.invitation.check_in_by_scan")
	defer span.End()

	eventID, barcode, err := s.signer.Verify(payload)
	if err != nil {
		return nil, err
	}
	inv, err := s.invitations.GetByBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}
	if inv.EventID != eventID {
		return nil, domain.ErrInvalidScan
	}
	return s.CheckIn(ctx, inv.ID, actorID, at)
}

func (s *invitationService) BarcodePNG(ctx context.Context, invitationID string, size int) ([]byte, error) {
	inv, err := s.Get(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	return s.signer.PNG(inv.EventID, inv.Barcode, size)
}

func isConcurrencyConflict(err error) bool {
	return errors.Is(err, domain.ErrConcurrencyConflict)
}

// transition loads the invitation, applies one FSM action and stores it
// with an optimistic version check, retrying on conflicts. changed is
// false when the action was a no-op.
func (s *invitationService) transition(
	ctx context.Context,
	invitationID, actorID string,
	action domain.Action,
	apply func(inv *domain.Invitation) (bool, error),
) (*domain.Invitation, bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.invitation."+string(action))
	defer span.End()
	span.SetAttributes(attribute.String("invitation_id", invitationID))

	var (
		result  *domain.Invitation
		from    domain.InvitationState
		changed bool
	)

	retrier := retry.New(retry.ConflictConfig(s.retries, isConcurrencyConflict))
	outcome := retrier.Do(ctx, func(ctx context.Context) error {
		inv, err := s.Get(ctx, invitationID)
		if err != nil {
			return retry.Permanent(err)
		}
		from = inv.State

		ok, err := apply(inv)
		if err != nil {
			return retry.Permanent(err)
		}
		if !ok {
			result, changed = inv, false
			return nil
		}
		if err := s.invitations.Update(ctx, inv); err != nil {
			return err
		}
		result, changed = inv, true
		return nil
	})

	if err := outcome.Err; err != nil {
		switch {
		case errors.Is(err, retry.ErrMaxRetriesExceeded):
			err = domain.ErrConcurrencyConflict
		case errors.Is(err, retry.ErrContextCanceled):
			err = contextError(ctx)
		}
		telemetry.RecordError(span, err)
		metrics.RecordTransitionFailure(ctx, string(action), domain.ErrorCode(err))
		return nil, false, err
	}

	if changed {
		s.recordTransition(ctx, result, action, from, actorID, nil)
	}
	return result, changed, nil
}

// recordTransition appends the audit entry and publishes the domain event.
// Both are best effort once the state change is stored.
func (s *invitationService) recordTransition(ctx context.Context, inv *domain.Invitation, action domain.Action, from domain.InvitationState, actorID string, metadata map[string]string) {
	entry := &domain.AuditEntry{
		ID:           uuid.New().String(),
		InvitationID: inv.ID,
		EventID:      inv.EventID,
		Action:       action,
		FromState:    from,
		ToState:      inv.State,
		ActorID:      actorID,
		At:           s.clock.Now().UTC(),
		Metadata:     metadata,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.ErrorContext(ctx, "failed to append audit entry", "invitation_id", inv.ID, "action", action, "error", err)
	}
	if err := s.publisher.PublishInvitationEvent(ctx, action, inv); err != nil {
		s.log.WarnContext(ctx, "failed to publish invitation event", "invitation_id", inv.ID, "action", action, "error", err)
	}
	if action != domain.ActionCreate {
		metrics.RecordTransition(ctx, string(action), string(from), string(inv.State))
	}
}

// contextError maps a finished context to the domain timeout error
func contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.ErrTimeout
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return domain.ErrTimeout
}
