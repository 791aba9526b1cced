package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/hayak-access/internal/clock"
	"github.com/prohmpiriya/hayak-access/internal/domain"
	"github.com/prohmpiriya/hayak-access/internal/dto"
	"github.com/prohmpiriya/hayak-access/internal/repository"
	"github.com/prohmpiriya/hayak-access/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// CatalogService manages events, zones, tickets and coupons
type CatalogService interface {
	CreateEvent(ctx context.Context, organizerID string, req *dto.CreateEventRequest) (*domain.Event, error)
	GetEvent(ctx context.Context, eventID string) (*domain.Event, error)

	// CreateZone adds a zone and registers its counter with the ledger
	CreateZone(ctx context.Context, eventID string, req *dto.CreateZoneRequest) (*domain.Zone, error)
	// ListZones lists an event's zones with live remaining capacity
	ListZones(ctx context.Context, eventID string) ([]*domain.Zone, error)

	CreateTicket(ctx context.Context, eventID string, req *dto.CreateTicketRequest) (*domain.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (*dto.TicketResponse, error)

	// ListZonesForTicket returns the zones a ticket grants; empty is general admission
	ListZonesForTicket(ctx context.Context, ticketID string) ([]string, error)
	// ValidateTicketWindow reports whether the ticket is on sale at at
	ValidateTicketWindow(ctx context.Context, ticketID string, at time.Time) (bool, error)
	// RemainingQuantity is quantity minus issued
	RemainingQuantity(ctx context.Context, ticketID string) (int, error)
	// ReserveQuantity issues one unit and returns its sequence number
	ReserveQuantity(ctx context.Context, ticketID string) (int64, error)
	// ReleaseQuantity gives one unit back
	ReleaseQuantity(ctx context.Context, ticketID string) error

	CreateCoupon(ctx context.Context, eventID string, req *dto.CreateCouponRequest) (*domain.Coupon, error)
}

type catalogService struct {
	events  repository.EventRepository
	zones   repository.ZoneRepository
	tickets repository.TicketRepository
	coupons repository.CouponRepository
	ledger  LedgerService
	clock   clock.Clock
}

// NewCatalogService creates a new catalog service
func NewCatalogService(
	events repository.EventRepository,
	zones repository.ZoneRepository,
	tickets repository.TicketRepository,
	coupons repository.CouponRepository,
	ledger LedgerService,
	clk clock.Clock,
) CatalogService {
	if clk == nil {
		clk = clock.System()
	}
	return &catalogService{
		events:  events,
		zones:   zones,
		tickets: tickets,
		coupons: coupons,
		ledger:  ledger,
		clock:   clk,
	}
}

func (s *catalogService) CreateEvent(ctx context.Context, organizerID string, req *dto.CreateEventRequest) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.catalog.create_event")
	defer span.End()

	now := s.clock.Now().UTC()
	event := &domain.Event{
		ID:          uuid.New().String(),
		OrganizerID: organizerID,
		Name:        req.Name,
		Type:        req.Type,
		Description: req.Description,
		Window:      req.WindowRequest.ToDomain(),
		Address:     req.Address,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Status:      domain.EventStatus(req.Status),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if err := s.events.Create(ctx, event); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return event, nil
}

func (s *catalogService) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidEventID
	}
	return s.events.GetByID(ctx, eventID)
}

func (s *catalogService) CreateZone(ctx context.Context, eventID string, req *dto.CreateZoneRequest) (*domain.Zone, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.catalog.create_zone")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID))

	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	zone := &domain.Zone{
		ID:        uuid.New().String(),
		EventID:   eventID,
		Name:      req.Name,
		Type:      req.Type,
		Color:     req.Color,
		Capacity:  req.Capacity,
		Remaining: req.Capacity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := zone.Validate(); err != nil {
		return nil, err
	}
	if err := s.zones.Create(ctx, zone); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.ledger.SyncZone(ctx, zone, true); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return zone, nil
}

func (s *catalogService) ListZones(ctx context.Context, eventID string) ([]*domain.Zone, error) {
	zones, err := s.zones.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	for _, z := range zones {
		remaining, err := s.ledger.Remaining(ctx, z.ID)
		if err != nil {
			if errors.Is(err, domain.ErrZoneNotFound) {
				continue
			}
			return nil, err
		}
		z.Remaining = remaining
	}
	return zones, nil
}

// checkZones verifies every zone exists and belongs to eventID
func (s *catalogService) checkZones(ctx context.Context, eventID string, zoneIDs []string) error {
	for _, id := range zoneIDs {
		zone, err := s.zones.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if zone.EventID != eventID {
			return domain.ErrZoneEventMismatch
		}
	}
	return nil
}

func (s *catalogService) CreateTicket(ctx context.Context, eventID string, req *dto.CreateTicketRequest) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.catalog.create_ticket")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID))

	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	ticket := &domain.Ticket{
		ID:          uuid.New().String(),
		EventID:     eventID,
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Price:       req.Price,
		Discount:    req.Discount,
		Quantity:    req.Quantity,
		NoOfEntries: req.NoOfEntries,
		Color:       req.Color,
		Window:      req.WindowRequest.ToDomain(),
		ZoneIDs:     SortedUnique(req.ZoneIDs),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := ticket.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkZones(ctx, eventID, ticket.ZoneIDs); err != nil {
		return nil, err
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return ticket, nil
}

func (s *catalogService) GetTicket(ctx context.Context, ticketID string) (*dto.TicketResponse, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	onSale, err := ticket.Window.Contains(s.clock.Now())
	if err != nil {
		return nil, err
	}
	return &dto.TicketResponse{Ticket: ticket, Remaining: ticket.RemainingQuantity(), OnSale: onSale}, nil
}

func (s *catalogService) ListZonesForTicket(ctx context.Context, ticketID string) ([]string, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return ticket.ZoneIDs, nil
}

func (s *catalogService) ValidateTicketWindow(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return false, err
	}
	return ticket.Window.Contains(at)
}

func (s *catalogService) RemainingQuantity(ctx context.Context, ticketID string) (int, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return 0, err
	}
	return ticket.RemainingQuantity(), nil
}

func (s *catalogService) ReserveQuantity(ctx context.Context, ticketID string) (int64, error) {
	return s.tickets.ReserveQuantity(ctx, ticketID)
}

func (s *catalogService) ReleaseQuantity(ctx context.Context, ticketID string) error {
	return s.tickets.ReleaseQuantity(ctx, ticketID)
}

func (s *catalogService) CreateCoupon(ctx context.Context, eventID string, req *dto.CreateCouponRequest) (*domain.Coupon, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.catalog.create_coupon")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID))

	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	now := s.clock.Now().UTC()
	coupon := &domain.Coupon{
		ID:           uuid.New().String(),
		EventID:      eventID,
		Name:         req.Name,
		Code:         domain.NormalizeCouponCode(req.Code),
		DiscountType: domain.DiscountType(req.DiscountType),
		Discount:     req.Discount,
		Usage:        req.Usage,
		UntilSoldOut: req.UntilSoldOut,
		TicketType:   req.TicketType,
		Window:       req.WindowRequest.ToDomain(),
		ZoneIDs:      SortedUnique(req.ZoneIDs),
		IsActive:     active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := coupon.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkZones(ctx, eventID, coupon.ZoneIDs); err != nil {
		return nil, err
	}
	if err := s.coupons.Create(ctx, coupon); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return coupon, nil
}
