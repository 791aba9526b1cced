package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/prohmpiriya/hayak-access/internal/domain"
)

// MemoryInvitationRepository is an in-process InvitationRepository with
// the same uniqueness and version rules as the Postgres store.
type MemoryInvitationRepository struct {
	mu          sync.RWMutex
	invitations map[string]*domain.Invitation
	byBarcode   map[string]string
	byTicketNo  map[string]string
	byIdemKey   map[string]string
}

// NewMemoryInvitationRepository creates an empty store
func NewMemoryInvitationRepository() *MemoryInvitationRepository {
	return &MemoryInvitationRepository{
		invitations: make(map[string]*domain.Invitation),
		byBarcode:   make(map[string]string),
		byTicketNo:  make(map[string]string),
		byIdemKey:   make(map[string]string),
	}
}

func idemKey(userID, key string) string {
	return userID + "|" + key
}

func (r *MemoryInvitationRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.invitations[inv.ID]; ok {
		return domain.ErrInvitationAlreadyExists
	}
	if _, ok := r.byBarcode[inv.Barcode]; ok {
		return domain.ErrInvitationAlreadyExists
	}
	if _, ok := r.byTicketNo[inv.TicketNo]; ok {
		return domain.ErrInvitationAlreadyExists
	}
	if inv.IdempotencyKey != "" {
		if _, ok := r.byIdemKey[idemKey(inv.UserID, inv.IdempotencyKey)]; ok {
			return domain.ErrInvitationAlreadyExists
		}
		r.byIdemKey[idemKey(inv.UserID, inv.IdempotencyKey)] = inv.ID
	}

	r.invitations[inv.ID] = inv.Clone()
	r.byBarcode[inv.Barcode] = inv.ID
	r.byTicketNo[inv.TicketNo] = inv.ID
	return nil
}

func (r *MemoryInvitationRepository) GetByID(ctx context.Context, id string) (*domain.Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invitations[id]
	if !ok {
		return nil, domain.ErrInvitationNotFound
	}
	return inv.Clone(), nil
}

func (r *MemoryInvitationRepository) GetByBarcode(ctx context.Context, barcode string) (*domain.Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byBarcode[barcode]
	if !ok {
		return nil, domain.ErrInvitationNotFound
	}
	return r.invitations[id].Clone(), nil
}

func (r *MemoryInvitationRepository) GetByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byIdemKey[idemKey(userID, key)]
	if !ok {
		return nil, domain.ErrInvitationNotFound
	}
	return r.invitations[id].Clone(), nil
}

func (r *MemoryInvitationRepository) Update(ctx context.Context, inv *domain.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.invitations[inv.ID]
	if !ok {
		return domain.ErrInvitationNotFound
	}
	if cur.Version != inv.Version {
		return domain.ErrConcurrencyConflict
	}
	inv.Version++
	r.invitations[inv.ID] = inv.Clone()
	return nil
}

// MemoryAuditRepository keeps the audit trail in process
type MemoryAuditRepository struct {
	mu      sync.RWMutex
	entries map[string][]*domain.AuditEntry
}

// NewMemoryAuditRepository creates an empty trail
func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{entries: make(map[string][]*domain.AuditEntry)}
}

func (r *MemoryAuditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *entry
	r.entries[entry.InvitationID] = append(r.entries[entry.InvitationID], &c)
	return nil
}

func (r *MemoryAuditRepository) ListByInvitation(ctx context.Context, invitationID string) ([]*domain.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.entries[invitationID]
	out := make([]*domain.AuditEntry, 0, len(src))
	for _, e := range src {
		c := *e
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}
