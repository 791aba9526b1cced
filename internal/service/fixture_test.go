package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/hayak-access/internal/clock"
	"github.com/prohmpiriya/hayak-access/internal/domain"
	"github.com/prohmpiriya/hayak-access/internal/dto"
	"github.com/prohmpiriya/hayak-access/internal/repository"
	"github.com/prohmpiriya/hayak-access/pkg/logger"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu                         sync.Mutex
	Published                  []domain.Action
	PublishInvitationEventFunc func(ctx context.Context, action domain.Action, inv *domain.Invitation) error
}

func (m *MockEventPublisher) PublishInvitationEvent(ctx context.Context, action domain.Action, inv *domain.Invitation) error {
	m.mu.Lock()
	m.Published = append(m.Published, action)
	m.mu.Unlock()
	if m.PublishInvitationEventFunc != nil {
		return m.PublishInvitationEventFunc(ctx, action, inv)
	}
	return nil
}

func (m *MockEventPublisher) Close() error { return nil }

func (m *MockEventPublisher) actions() []domain.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Action(nil), m.Published...)
}

// MockInvitationRepository overrides selected calls of an in-memory repository
type MockInvitationRepository struct {
	repository.InvitationRepository
	CreateFunc func(ctx context.Context, inv *domain.Invitation) error
	UpdateFunc func(ctx context.Context, inv *domain.Invitation) error
}

func (m *MockInvitationRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, inv)
	}
	return m.InvitationRepository.Create(ctx, inv)
}

func (m *MockInvitationRepository) Update(ctx context.Context, inv *domain.Invitation) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, inv)
	}
	return m.InvitationRepository.Update(ctx, inv)
}

// MockAuditRepository overrides Append of an in-memory trail
type MockAuditRepository struct {
	repository.AuditRepository
	AppendFunc func(ctx context.Context, entry *domain.AuditEntry) error
}

func (m *MockAuditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, entry)
	}
	return m.AuditRepository.Append(ctx, entry)
}

type fixture struct {
	clock *clock.Fixed

	tickets     *repository.MemoryTicketRepository
	couponRepo  *repository.MemoryCouponRepository
	invRepo     *MockInvitationRepository
	auditRepo   *MockAuditRepository
	zoneLedger  *repository.MemoryZoneLedger
	publisher   *MockEventPublisher
	signer      *BarcodeSigner
	ledger      LedgerService
	catalog     CatalogService
	coupons     CouponValidator
	invitations InvitationService
	allocation  AllocationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:      clock.NewFixed(t0),
		tickets:    repository.NewMemoryTicketRepository(),
		couponRepo: repository.NewMemoryCouponRepository(),
		invRepo:    &MockInvitationRepository{InvitationRepository: repository.NewMemoryInvitationRepository()},
		auditRepo:  &MockAuditRepository{AuditRepository: repository.NewMemoryAuditRepository()},
		zoneLedger: repository.NewMemoryZoneLedger(time.Second),
		publisher:  &MockEventPublisher{},
		signer:     NewBarcodeSigner("test-secret"),
	}
	log := logger.Nop()

	f.ledger = NewLedgerService(f.zoneLedger, f.clock, log, &LedgerServiceConfig{HoldTTL: time.Minute})
	f.catalog = NewCatalogService(
		repository.NewMemoryEventRepository(),
		repository.NewMemoryZoneRepository(),
		f.tickets,
		f.couponRepo,
		f.ledger,
		f.clock,
	)
	f.coupons = NewCouponValidator(f.couponRepo, f.tickets, f.ledger)
	f.invitations = NewInvitationService(
		f.invRepo, f.tickets, f.auditRepo, f.ledger, f.coupons,
		f.publisher, f.signer, f.clock, log,
		&InvitationServiceConfig{ConflictRetries: 3},
	)
	f.allocation = NewAllocationService(
		f.catalog, f.ledger, f.coupons, f.invitations, f.invRepo,
		f.clock, log,
		&AllocationServiceConfig{RequestTimeout: 5 * time.Second},
	)
	return f
}

func (f *fixture) event(t *testing.T) *domain.Event {
	t.Helper()
	ev, err := f.catalog.CreateEvent(context.Background(), "organizer-1", &dto.CreateEventRequest{
		Name:          "Launch Night",
		WindowRequest: dto.WindowRequest{StartDate: "2026-05-01", EndDate: "2026-12-31"},
	})
	require.NoError(t, err)
	return ev
}

func (f *fixture) zone(t *testing.T, eventID, name string, capacity int) *domain.Zone {
	t.Helper()
	z, err := f.catalog.CreateZone(context.Background(), eventID, &dto.CreateZoneRequest{Name: name, Capacity: capacity})
	require.NoError(t, err)
	return z
}

func (f *fixture) ticket(t *testing.T, eventID string, req dto.CreateTicketRequest) *domain.Ticket {
	t.Helper()
	if req.Name == "" {
		req.Name = "Regular"
	}
	if req.Type == "" {
		req.Type = "regular"
	}
	tk, err := f.catalog.CreateTicket(context.Background(), eventID, &req)
	require.NoError(t, err)
	return tk
}

func (f *fixture) coupon(t *testing.T, eventID string, req dto.CreateCouponRequest) *domain.Coupon {
	t.Helper()
	if req.DiscountType == "" {
		req.DiscountType = string(domain.DiscountTypePercentage)
	}
	c, err := f.catalog.CreateCoupon(context.Background(), eventID, &req)
	require.NoError(t, err)
	return c
}

func (f *fixture) remaining(t *testing.T, zoneID string) int {
	t.Helper()
	n, err := f.ledger.Remaining(context.Background(), zoneID)
	require.NoError(t, err)
	return n
}

func (f *fixture) issued(t *testing.T, ticketID string) int {
	t.Helper()
	tk, err := f.tickets.GetByID(context.Background(), ticketID)
	require.NoError(t, err)
	return tk.Issued
}

func (f *fixture) redeemed(t *testing.T, couponID string) int {
	t.Helper()
	c, err := f.couponRepo.GetByID(context.Background(), couponID)
	require.NoError(t, err)
	return c.Redeemed
}

func (f *fixture) reserve(eventID, ticketID, userID string, zones ...string) (*domain.Invitation, error) {
	return f.allocation.Reserve(context.Background(), userID, &dto.ReserveRequest{
		EventID:  eventID,
		TicketID: ticketID,
		ZoneIDs:  zones,
	})
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
