package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/prohmpiriya/hayak-access/internal/domain"
)

// MemoryEventRepository is an in-process EventRepository
type MemoryEventRepository struct {
	mu     sync.RWMutex
	events map[string]*domain.Event
}

// NewMemoryEventRepository creates an empty store
func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{events: make(map[string]*domain.Event)}
}

func (r *MemoryEventRepository) Create(ctx context.Context, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *event
	r.events[event.ID] = &c
	return nil
}

func (r *MemoryEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[id]
	if !ok || e.IsDeleted {
		return nil, domain.ErrEventNotFound
	}
	c := *e
	return &c, nil
}

// MemoryZoneRepository is an in-process ZoneRepository
type MemoryZoneRepository struct {
	mu    sync.RWMutex
	zones map[string]*domain.Zone
}

// NewMemoryZoneRepository creates an empty store
func NewMemoryZoneRepository() *MemoryZoneRepository {
	return &MemoryZoneRepository{zones: make(map[string]*domain.Zone)}
}

func (r *MemoryZoneRepository) Create(ctx context.Context, zone *domain.Zone) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *zone
	r.zones[zone.ID] = &c
	return nil
}

func (r *MemoryZoneRepository) GetByID(ctx context.Context, id string) (*domain.Zone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	z, ok := r.zones[id]
	if !ok || z.IsDeleted {
		return nil, domain.ErrZoneNotFound
	}
	c := *z
	return &c, nil
}

func (r *MemoryZoneRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Zone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Zone
	for _, z := range r.zones {
		if z.EventID == eventID && !z.IsDeleted {
			c := *z
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryZoneRepository) ListAll(ctx context.Context, limit, offset int) ([]*domain.Zone, error) {
	r.mu.RLock()
	all := make([]*domain.Zone, 0, len(r.zones))
	for _, z := range r.zones {
		if !z.IsDeleted {
			c := *z
			all = append(all, &c)
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// MemoryTicketRepository is an in-process TicketRepository
type MemoryTicketRepository struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
}

// NewMemoryTicketRepository creates an empty store
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{tickets: make(map[string]*domain.Ticket)}
}

func copyTicket(t *domain.Ticket) *domain.Ticket {
	c := *t
	c.ZoneIDs = append([]string(nil), t.ZoneIDs...)
	return &c
}

func (r *MemoryTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[ticket.ID] = copyTicket(ticket)
	return nil
}

func (r *MemoryTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok || t.IsDeleted {
		return nil, domain.ErrTicketNotFound
	}
	return copyTicket(t), nil
}

func (r *MemoryTicketRepository) ReserveQuantity(ctx context.Context, ticketID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[ticketID]
	if !ok || t.IsDeleted {
		return 0, domain.ErrTicketNotFound
	}
	if t.Issued >= t.Quantity {
		return 0, domain.ErrQuantityExhausted
	}
	t.Issued++
	t.IssueSeq++
	return t.IssueSeq, nil
}

func (r *MemoryTicketRepository) ReleaseQuantity(ctx context.Context, ticketID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[ticketID]
	if !ok {
		return domain.ErrTicketNotFound
	}
	if t.Issued > 0 {
		t.Issued--
	}
	return nil
}

// MemoryCouponRepository is an in-process CouponRepository
type MemoryCouponRepository struct {
	mu      sync.Mutex
	coupons map[string]*domain.Coupon
	byCode  map[string]string
}

// NewMemoryCouponRepository creates an empty store
func NewMemoryCouponRepository() *MemoryCouponRepository {
	return &MemoryCouponRepository{
		coupons: make(map[string]*domain.Coupon),
		byCode:  make(map[string]string),
	}
}

func couponKey(eventID, code string) string {
	return eventID + "|" + domain.NormalizeCouponCode(code)
}

func copyCoupon(c *domain.Coupon) *domain.Coupon {
	out := *c
	out.ZoneIDs = append([]string(nil), c.ZoneIDs...)
	if c.Usage != nil {
		u := *c.Usage
		out.Usage = &u
	}
	return &out
}

func (r *MemoryCouponRepository) Create(ctx context.Context, coupon *domain.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := couponKey(coupon.EventID, coupon.Code)
	if _, exists := r.byCode[key]; exists {
		return domain.ErrDuplicateCouponCode
	}
	c := copyCoupon(coupon)
	c.Code = domain.NormalizeCouponCode(c.Code)
	r.coupons[c.ID] = c
	r.byCode[key] = c.ID
	return nil
}

func (r *MemoryCouponRepository) GetByID(ctx context.Context, id string) (*domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[id]
	if !ok || c.IsDeleted {
		return nil, domain.ErrCouponNotFound
	}
	return copyCoupon(c), nil
}

func (r *MemoryCouponRepository) GetByCode(ctx context.Context, eventID, code string) (*domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCode[couponKey(eventID, code)]
	if !ok {
		return nil, domain.ErrCouponNotFound
	}
	c := r.coupons[id]
	if c.IsDeleted {
		return nil, domain.ErrCouponNotFound
	}
	return copyCoupon(c), nil
}

func (r *MemoryCouponRepository) RecordRedemption(ctx context.Context, couponID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[couponID]
	if !ok || c.IsDeleted {
		return domain.ErrCouponNotFound
	}
	if !c.UsageLeft() {
		return domain.ErrCouponUsageExceeded
	}
	c.Redeemed++
	return nil
}

func (r *MemoryCouponRepository) RevokeRedemption(ctx context.Context, couponID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[couponID]
	if !ok {
		return domain.ErrCouponNotFound
	}
	if c.Redeemed > 0 {
		c.Redeemed--
	}
	return nil
}
